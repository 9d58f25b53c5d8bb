package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siap-dev/siap-atk-api/internal/dto"
	"github.com/siap-dev/siap-atk-api/internal/models"
	appErrors "github.com/siap-dev/siap-atk-api/pkg/errors"
)

type stubSupplyStore struct {
	supplies map[string]*models.Supply
	created  *models.Supply
	listHits int
}

func newStubSupplyStore() *stubSupplyStore {
	return &stubSupplyStore{supplies: make(map[string]*models.Supply)}
}

func (s *stubSupplyStore) Create(_ context.Context, supply *models.Supply, _ string) error {
	supply.ID = "supply-new"
	s.created = supply
	s.supplies[supply.ID] = supply
	return nil
}

func (s *stubSupplyStore) GetByID(_ context.Context, id string) (*models.Supply, error) {
	supply, ok := s.supplies[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return supply, nil
}

func (s *stubSupplyStore) List(_ context.Context, _ models.SupplyFilter) ([]models.Supply, int, error) {
	s.listHits++
	result := make([]models.Supply, 0, len(s.supplies))
	for _, supply := range s.supplies {
		result = append(result, *supply)
	}
	return result, len(result), nil
}

func (s *stubSupplyStore) Update(_ context.Context, id, name, unit string) error {
	supply, ok := s.supplies[id]
	if !ok {
		return sql.ErrNoRows
	}
	supply.Name = name
	supply.Unit = unit
	return nil
}

type memCacheRepo struct {
	entries map[string][]byte
}

func newMemCacheRepo() *memCacheRepo {
	return &memCacheRepo{entries: make(map[string][]byte)}
}

func (r *memCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	data, ok := r.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(data, dest)
}

func (r *memCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.entries[key] = data
	return nil
}

func (r *memCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range r.entries {
		if strings.HasPrefix(key, prefix) {
			delete(r.entries, key)
		}
	}
	return nil
}

func TestSupplyServiceCreate(t *testing.T) {
	store := newStubSupplyStore()
	svc := NewSupplyService(store, nil, nil, time.Minute, nil)

	supply, err := svc.Create(context.Background(), adminClaims(), dto.CreateSupplyInput{
		Name:         " Kertas A4 ",
		Unit:         "rim",
		InitialStock: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, "Kertas A4", supply.Name)
	assert.Equal(t, 10, supply.StockQty)
}

func TestSupplyServiceCreateValidation(t *testing.T) {
	svc := NewSupplyService(newStubSupplyStore(), nil, nil, time.Minute, nil)

	_, err := svc.Create(context.Background(), adminClaims(), dto.CreateSupplyInput{InitialStock: -1})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Fields, "name")
	assert.Contains(t, appErr.Fields, "unit")
	assert.Contains(t, appErr.Fields, "initial_stock")
}

func TestSupplyServiceCreateForbiddenForStaff(t *testing.T) {
	svc := NewSupplyService(newStubSupplyStore(), nil, nil, time.Minute, nil)

	_, err := svc.Create(context.Background(), staffClaims(), dto.CreateSupplyInput{Name: "x", Unit: "pcs"})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestSupplyServiceGetCacheAside(t *testing.T) {
	store := newStubSupplyStore()
	store.supplies["supply-1"] = &models.Supply{ID: "supply-1", Name: "Kertas A4", Unit: "rim", StockQty: 20}
	cacheRepo := newMemCacheRepo()
	cacheSvc := NewCacheService(cacheRepo, nil, time.Minute, nil, true)
	svc := NewSupplyService(store, cacheSvc, nil, time.Minute, nil)

	first, err := svc.Get(context.Background(), "supply-1")
	require.NoError(t, err)
	assert.Equal(t, "Kertas A4", first.Name)
	assert.Contains(t, cacheRepo.entries, "supplies:item:supply-1")

	// Second read must come from cache even after the row changes.
	store.supplies["supply-1"].Name = "changed"
	second, err := svc.Get(context.Background(), "supply-1")
	require.NoError(t, err)
	assert.Equal(t, "Kertas A4", second.Name)
}

func TestSupplyServiceGetNotFound(t *testing.T) {
	svc := NewSupplyService(newStubSupplyStore(), nil, nil, time.Minute, nil)

	_, err := svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestSupplyServiceListCachesPage(t *testing.T) {
	store := newStubSupplyStore()
	store.supplies["supply-1"] = &models.Supply{ID: "supply-1", Name: "Kertas A4", Unit: "rim"}
	cacheRepo := newMemCacheRepo()
	cacheSvc := NewCacheService(cacheRepo, nil, time.Minute, nil, true)
	svc := NewSupplyService(store, cacheSvc, nil, time.Minute, nil)

	result, err := svc.List(context.Background(), models.SupplyFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Pagination.TotalCount)
	assert.Equal(t, 1, store.listHits)

	_, err = svc.List(context.Background(), models.SupplyFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, store.listHits)
}

func TestSupplyServiceUpdateNotFound(t *testing.T) {
	svc := NewSupplyService(newStubSupplyStore(), nil, nil, time.Minute, nil)

	_, err := svc.Update(context.Background(), adminClaims(), "missing", dto.UpdateSupplyInput{Name: "x", Unit: "pcs"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestCacheServiceDisabledIsNoop(t *testing.T) {
	svc := NewCacheService(nil, nil, time.Minute, nil, false)

	hit, err := svc.Get(context.Background(), "key", nil)
	require.NoError(t, err)
	assert.False(t, hit)
	require.NoError(t, svc.Set(context.Background(), "key", "value", time.Minute))
	require.NoError(t, svc.Invalidate(context.Background(), "key*"))
}
