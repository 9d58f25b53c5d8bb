package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/siap-dev/siap-atk-api/internal/dto"
	"github.com/siap-dev/siap-atk-api/internal/models"
	appErrors "github.com/siap-dev/siap-atk-api/pkg/errors"
)

// supplyCachePattern matches every cached supply catalog entry.
const supplyCachePattern = "supplies:*"

type supplyStore interface {
	Create(ctx context.Context, supply *models.Supply, actorID string) error
	GetByID(ctx context.Context, id string) (*models.Supply, error)
	List(ctx context.Context, filter models.SupplyFilter) ([]models.Supply, int, error)
	Update(ctx context.Context, id, name, unit string) error
}

// SupplyList is a page of the supply catalog.
type SupplyList struct {
	Supplies   []models.Supply   `json:"supplies"`
	Pagination models.Pagination `json:"pagination"`
}

// SupplyService manages the supply catalog. Reads go through the cache;
// every write invalidates it.
type SupplyService struct {
	supplies supplyStore
	cache    *CacheService
	audit    auditRecorder
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewSupplyService constructs the service.
func NewSupplyService(supplies supplyStore, cache *CacheService, audit auditRecorder, cacheTTL time.Duration, logger *zap.Logger) *SupplyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SupplyService{
		supplies: supplies,
		cache:    cache,
		audit:    audit,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// Create adds a catalog entry. A positive initial stock opens the ledger.
func (s *SupplyService) Create(ctx context.Context, claims *models.JWTClaims, input dto.CreateSupplyInput) (*models.Supply, error) {
	if !claims.Can(models.CapabilitySupplyManage) {
		return nil, appErrors.ErrForbidden
	}
	if fields := validateSupplyInput(input.Name, input.Unit, input.InitialStock); len(fields) > 0 {
		return nil, appErrors.WithFields(appErrors.ErrValidation, fields)
	}

	supply := &models.Supply{
		Name:     strings.TrimSpace(input.Name),
		Unit:     strings.TrimSpace(input.Unit),
		StockQty: input.InitialStock,
	}
	if err := s.supplies.Create(ctx, supply, claims.UserID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create supply")
	}

	s.invalidateCatalog()
	s.emitAudit(claims, models.AuditActionSupplyManage, supply.ID, supply)
	return supply, nil
}

// Get returns one supply, cache-first.
func (s *SupplyService) Get(ctx context.Context, id string) (*models.Supply, error) {
	key := fmt.Sprintf("supplies:item:%s", id)
	var cached models.Supply
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	supply, err := s.supplies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load supply")
	}

	_ = s.cache.Set(ctx, key, supply, s.cacheTTL)
	return supply, nil
}

// List returns a catalog page, cache-first.
func (s *SupplyService) List(ctx context.Context, filter models.SupplyFilter) (*SupplyList, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	filter.Page = page
	filter.PageSize = pageSize

	key := fmt.Sprintf("supplies:list:%s:%d:%d", strings.ToLower(filter.Search), page, pageSize)
	var cached SupplyList
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	supplies, total, err := s.supplies.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list supplies")
	}

	result := &SupplyList{
		Supplies: supplies,
		Pagination: models.Pagination{
			Page:       page,
			PageSize:   pageSize,
			TotalCount: total,
		},
	}
	_ = s.cache.Set(ctx, key, result, s.cacheTTL)
	return result, nil
}

// Update renames a supply or changes its unit.
func (s *SupplyService) Update(ctx context.Context, claims *models.JWTClaims, id string, input dto.UpdateSupplyInput) (*models.Supply, error) {
	if !claims.Can(models.CapabilitySupplyManage) {
		return nil, appErrors.ErrForbidden
	}
	if fields := validateSupplyInput(input.Name, input.Unit, 0); len(fields) > 0 {
		return nil, appErrors.WithFields(appErrors.ErrValidation, fields)
	}

	if err := s.supplies.Update(ctx, id, strings.TrimSpace(input.Name), strings.TrimSpace(input.Unit)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update supply")
	}

	s.invalidateCatalog()
	supply, err := s.supplies.GetByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load supply")
	}
	s.emitAudit(claims, models.AuditActionSupplyManage, id, supply)
	return supply, nil
}

func (s *SupplyService) invalidateCatalog() {
	if s.cache == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.cache.Invalidate(ctx, supplyCachePattern)
	}()
}

func (s *SupplyService) emitAudit(claims *models.JWTClaims, action, resourceID string, value interface{}) {
	if s.audit == nil || claims == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     &claims.UserID,
		Action:     action,
		Resource:   "supply",
		ResourceID: &resourceID,
		NewValues:  marshalAudit(value),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
			s.logger.Sugar().Warnw("audit write failed", "action", action, "resource_id", resourceID, "error", err)
		}
	}()
}

func validateSupplyInput(name, unit string, initialStock int) map[string]string {
	fields := make(map[string]string)
	if strings.TrimSpace(name) == "" {
		fields["name"] = "name is required"
	}
	if strings.TrimSpace(unit) == "" {
		fields["unit"] = "unit is required"
	}
	if initialStock < 0 {
		fields["initial_stock"] = "initial stock cannot be negative"
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}
