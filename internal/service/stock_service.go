package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/siap-dev/siap-atk-api/internal/dto"
	"github.com/siap-dev/siap-atk-api/internal/models"
	"github.com/siap-dev/siap-atk-api/internal/repository"
	appErrors "github.com/siap-dev/siap-atk-api/pkg/errors"
)

type stockStore interface {
	Deduct(ctx context.Context, supplyID string, quantity int, actorID, note string) (*models.StockMutation, error)
	Restock(ctx context.Context, supplyID string, quantity int, actorID, note string) (*models.StockMutation, error)
}

type mutationLister interface {
	List(ctx context.Context, filter models.MutationFilter) ([]models.StockMutation, error)
}

// StockService covers direct stock movements outside the request workflow
// plus ledger reads. Unlike approval, a direct deduction is all or nothing.
type StockService struct {
	stock     stockStore
	mutations mutationLister
	cache     *CacheService
	audit     auditRecorder
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewStockService constructs the service.
func NewStockService(stock stockStore, mutations mutationLister, cache *CacheService, audit auditRecorder, metrics *MetricsService, logger *zap.Logger) *StockService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockService{
		stock:     stock,
		mutations: mutations,
		cache:     cache,
		audit:     audit,
		metrics:   metrics,
		logger:    logger,
	}
}

// QuickDeduct removes stock immediately, without a request. Short stock
// fails the whole operation; nothing is clamped and nothing is written.
func (s *StockService) QuickDeduct(ctx context.Context, claims *models.JWTClaims, supplyID string, input dto.AdjustStockInput) (*models.StockMutation, error) {
	if !claims.Can(models.CapabilityStockDeduct) {
		return nil, appErrors.ErrForbidden
	}
	if input.Quantity <= 0 {
		return nil, appErrors.WithFields(appErrors.ErrValidation, map[string]string{
			"quantity": "quantity must be positive",
		})
	}

	mutation, err := s.stock.Deduct(ctx, supplyID, input.Quantity, claims.UserID, strings.TrimSpace(input.Note))
	if err != nil {
		return nil, mapStockError(err)
	}

	s.afterMutation(claims, models.AuditActionStockDeduct, mutation)
	return mutation, nil
}

// Restock adds stock and records the inbound ledger entry.
func (s *StockService) Restock(ctx context.Context, claims *models.JWTClaims, supplyID string, input dto.AdjustStockInput) (*models.StockMutation, error) {
	if !claims.Can(models.CapabilityStockRestock) {
		return nil, appErrors.ErrForbidden
	}
	if input.Quantity <= 0 {
		return nil, appErrors.WithFields(appErrors.ErrValidation, map[string]string{
			"quantity": "quantity must be positive",
		})
	}

	mutation, err := s.stock.Restock(ctx, supplyID, input.Quantity, claims.UserID, strings.TrimSpace(input.Note))
	if err != nil {
		return nil, mapStockError(err)
	}

	s.afterMutation(claims, models.AuditActionStockRestock, mutation)
	return mutation, nil
}

// Mutations lists ledger entries for one supply, newest first.
func (s *StockService) Mutations(ctx context.Context, claims *models.JWTClaims, filter models.MutationFilter) ([]models.StockMutation, error) {
	if !claims.Can(models.CapabilitySupplyManage) {
		return nil, appErrors.ErrForbidden
	}
	mutations, err := s.mutations.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list stock mutations")
	}
	return mutations, nil
}

func (s *StockService) afterMutation(claims *models.JWTClaims, action string, mutation *models.StockMutation) {
	if s.metrics != nil {
		s.metrics.RecordMutation(mutation.Kind)
	}
	if s.cache != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.cache.Invalidate(ctx, supplyCachePattern)
		}()
	}
	if s.audit != nil && claims != nil {
		entry := &models.AuditLog{
			UserID:     &claims.UserID,
			Action:     action,
			Resource:   "supply",
			ResourceID: &mutation.SupplyID,
			NewValues:  marshalAudit(mutation),
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
				s.logger.Sugar().Warnw("audit write failed", "action", action, "supply_id", mutation.SupplyID, "error", err)
			}
		}()
	}
}

func mapStockError(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.ErrNotFound
	case errors.Is(err, repository.ErrInsufficientStock):
		return appErrors.ErrInsufficientStock
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to adjust stock")
	}
}
