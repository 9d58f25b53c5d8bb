package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siap-dev/siap-atk-api/internal/dto"
	"github.com/siap-dev/siap-atk-api/internal/models"
	"github.com/siap-dev/siap-atk-api/internal/repository"
	appErrors "github.com/siap-dev/siap-atk-api/pkg/errors"
)

type stubStockStore struct {
	mutation *models.StockMutation
	err      error

	lastQuantity int
	lastNote     string
}

func (s *stubStockStore) Deduct(_ context.Context, _ string, quantity int, _, note string) (*models.StockMutation, error) {
	s.lastQuantity = quantity
	s.lastNote = note
	return s.mutation, s.err
}

func (s *stubStockStore) Restock(_ context.Context, _ string, quantity int, _, note string) (*models.StockMutation, error) {
	s.lastQuantity = quantity
	s.lastNote = note
	return s.mutation, s.err
}

type stubMutationLister struct {
	mutations []models.StockMutation
	filter    models.MutationFilter
}

func (s *stubMutationLister) List(_ context.Context, filter models.MutationFilter) ([]models.StockMutation, error) {
	s.filter = filter
	return s.mutations, nil
}

func TestStockServiceQuickDeduct(t *testing.T) {
	store := &stubStockStore{mutation: &models.StockMutation{
		SupplyID:    "supply-1",
		Kind:        models.MutationOut,
		Quantity:    3,
		StockBefore: 10,
		StockAfter:  7,
	}}
	svc := NewStockService(store, &stubMutationLister{}, nil, nil, nil, nil)

	mutation, err := svc.QuickDeduct(context.Background(), adminClaims(), "supply-1", dto.AdjustStockInput{
		Quantity: 3,
		Note:     "  pemakaian rapat ",
	})
	require.NoError(t, err)
	assert.Equal(t, 7, mutation.StockAfter)
	assert.Equal(t, "pemakaian rapat", store.lastNote)
}

func TestStockServiceQuickDeductInsufficient(t *testing.T) {
	store := &stubStockStore{err: repository.ErrInsufficientStock}
	svc := NewStockService(store, &stubMutationLister{}, nil, nil, nil, nil)

	_, err := svc.QuickDeduct(context.Background(), adminClaims(), "supply-1", dto.AdjustStockInput{Quantity: 99})
	assert.ErrorIs(t, err, appErrors.ErrInsufficientStock)
}

func TestStockServiceQuickDeductValidation(t *testing.T) {
	svc := NewStockService(&stubStockStore{}, &stubMutationLister{}, nil, nil, nil, nil)

	for _, quantity := range []int{0, -1} {
		_, err := svc.QuickDeduct(context.Background(), adminClaims(), "supply-1", dto.AdjustStockInput{Quantity: quantity})
		var appErr *appErrors.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
		assert.Contains(t, appErr.Fields, "quantity")
	}
}

func TestStockServiceQuickDeductForbiddenForStaff(t *testing.T) {
	svc := NewStockService(&stubStockStore{}, &stubMutationLister{}, nil, nil, nil, nil)

	_, err := svc.QuickDeduct(context.Background(), staffClaims(), "supply-1", dto.AdjustStockInput{Quantity: 1})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestStockServiceQuickDeductUnknownSupply(t *testing.T) {
	store := &stubStockStore{err: sql.ErrNoRows}
	svc := NewStockService(store, &stubMutationLister{}, nil, nil, nil, nil)

	_, err := svc.QuickDeduct(context.Background(), adminClaims(), "missing", dto.AdjustStockInput{Quantity: 1})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestStockServiceRestock(t *testing.T) {
	store := &stubStockStore{mutation: &models.StockMutation{
		SupplyID:   "supply-1",
		Kind:       models.MutationIn,
		Quantity:   10,
		StockAfter: 12,
	}}
	svc := NewStockService(store, &stubMutationLister{}, nil, nil, nil, nil)

	mutation, err := svc.Restock(context.Background(), adminClaims(), "supply-1", dto.AdjustStockInput{Quantity: 10})
	require.NoError(t, err)
	assert.Equal(t, models.MutationIn, mutation.Kind)
	assert.Equal(t, 12, mutation.StockAfter)
}

func TestStockServiceMutations(t *testing.T) {
	lister := &stubMutationLister{mutations: []models.StockMutation{{ID: "mut-1"}}}
	svc := NewStockService(&stubStockStore{}, lister, nil, nil, nil, nil)

	mutations, err := svc.Mutations(context.Background(), adminClaims(), models.MutationFilter{SupplyID: "supply-1"})
	require.NoError(t, err)
	require.Len(t, mutations, 1)
	assert.Equal(t, "supply-1", lister.filter.SupplyID)

	_, err = svc.Mutations(context.Background(), staffClaims(), models.MutationFilter{})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}
