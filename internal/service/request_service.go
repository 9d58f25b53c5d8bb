package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/siap-dev/siap-atk-api/internal/dto"
	"github.com/siap-dev/siap-atk-api/internal/models"
	"github.com/siap-dev/siap-atk-api/internal/repository"
	appErrors "github.com/siap-dev/siap-atk-api/pkg/errors"
)

type requestStore interface {
	Create(ctx context.Context, request *models.SupplyRequest) error
	GetByID(ctx context.Context, id string) (*models.SupplyRequest, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.SupplyRequest, error)
	Approve(ctx context.Context, id, reviewerID string, now time.Time) (*repository.ApprovalOutcome, error)
	Reject(ctx context.Context, id, reviewerID, reason string, now time.Time) (*models.SupplyRequest, error)
}

type supplyReader interface {
	GetByID(ctx context.Context, id string) (*models.Supply, error)
}

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
}

// RequestService drives the supply request lifecycle: creation by staff,
// then a single approve or reject decision by an admin.
type RequestService struct {
	requests requestStore
	supplies supplyReader
	audit    auditRecorder
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewRequestService constructs the service.
func NewRequestService(requests requestStore, supplies supplyReader, audit auditRecorder, metrics *MetricsService, logger *zap.Logger) *RequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestService{
		requests: requests,
		supplies: supplies,
		audit:    audit,
		metrics:  metrics,
		logger:   logger,
	}
}

// Create validates the payload and persists a pending request.
func (s *RequestService) Create(ctx context.Context, claims *models.JWTClaims, input dto.CreateRequestInput) (*models.SupplyRequest, error) {
	if !claims.Can(models.CapabilityRequestCreate) {
		return nil, appErrors.ErrForbidden
	}
	if fields := validateCreateInput(input); len(fields) > 0 {
		return nil, appErrors.WithFields(appErrors.ErrValidation, fields)
	}

	lines := make([]models.RequestLine, 0, len(input.Lines))
	for i, line := range input.Lines {
		if _, err := s.supplies.GetByID(ctx, line.SupplyID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.WithFields(appErrors.ErrValidation, map[string]string{
					fmt.Sprintf("lines[%d].supply_id", i): "unknown supply",
				})
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate supply")
		}
		lines = append(lines, models.RequestLine{
			SupplyID:     line.SupplyID,
			RequestedQty: line.Quantity,
		})
	}

	request := &models.SupplyRequest{
		RequesterID: claims.UserID,
		Department:  claims.Department,
		Note:        strings.TrimSpace(input.Note),
		Status:      models.RequestStatusPending,
		Lines:       lines,
	}
	if err := s.requests.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}

	s.emitAudit(claims, models.AuditActionRequestCreate, "supply_request", request.ID, nil, request)
	return request, nil
}

// Approve completes a pending request, granting each line up to the stock on
// hand. Shortfalls reduce the grant instead of failing the decision.
func (s *RequestService) Approve(ctx context.Context, claims *models.JWTClaims, id string) (*models.SupplyRequest, error) {
	if !claims.Can(models.CapabilityRequestApprove) {
		return nil, appErrors.ErrForbidden
	}

	outcome, err := s.requests.Approve(ctx, id, claims.UserID, time.Now().UTC())
	if err != nil {
		return nil, mapDecisionError(err)
	}

	if s.metrics != nil {
		s.metrics.RecordDecision(models.RequestStatusCompleted)
		for range outcome.Mutations {
			s.metrics.RecordMutation(models.MutationOut)
		}
	}
	s.emitAudit(claims, models.AuditActionRequestApprove, "supply_request", id, nil, outcome.Request)
	return outcome.Request, nil
}

// Reject moves a pending request to rejected. A non-empty reason is
// mandatory and stock is never touched.
func (s *RequestService) Reject(ctx context.Context, claims *models.JWTClaims, id string, input dto.RejectRequestInput) (*models.SupplyRequest, error) {
	if !claims.Can(models.CapabilityRequestReject) {
		return nil, appErrors.ErrForbidden
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, appErrors.WithFields(appErrors.ErrValidation, map[string]string{
			"alasan_penolakan": "rejection reason is required",
		})
	}

	request, err := s.requests.Reject(ctx, id, claims.UserID, reason, time.Now().UTC())
	if err != nil {
		return nil, mapDecisionError(err)
	}

	if s.metrics != nil {
		s.metrics.RecordDecision(models.RequestStatusRejected)
	}
	s.emitAudit(claims, models.AuditActionRequestReject, "supply_request", id, nil, request)
	return request, nil
}

// Get returns one request. Staff only see their own.
func (s *RequestService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.SupplyRequest, error) {
	request, err := s.requests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !claims.Can(models.CapabilityRequestApprove) && request.RequesterID != claims.UserID {
		return nil, appErrors.ErrForbidden
	}
	return request, nil
}

// List returns request headers. Staff are scoped to their own requests.
func (s *RequestService) List(ctx context.Context, claims *models.JWTClaims, filter models.RequestFilter) ([]models.SupplyRequest, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !claims.Can(models.CapabilityRequestApprove) {
		filter.RequesterID = claims.UserID
	}
	requests, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	return requests, nil
}

func (s *RequestService) emitAudit(claims *models.JWTClaims, action, resource, resourceID string, oldValue, newValue interface{}) {
	if s.audit == nil || claims == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     &claims.UserID,
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
		OldValues:  marshalAudit(oldValue),
		NewValues:  marshalAudit(newValue),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
			s.logger.Sugar().Warnw("audit write failed", "action", action, "resource_id", resourceID, "error", err)
		}
	}()
}

func marshalAudit(value interface{}) []byte {
	if value == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	return data
}

func validateCreateInput(input dto.CreateRequestInput) map[string]string {
	fields := make(map[string]string)
	if len(input.Lines) == 0 {
		fields["lines"] = "at least one line is required"
		return fields
	}
	seen := make(map[string]struct{}, len(input.Lines))
	for i, line := range input.Lines {
		if line.SupplyID == "" {
			fields[fmt.Sprintf("lines[%d].supply_id", i)] = "supply_id is required"
		}
		if line.Quantity <= 0 {
			fields[fmt.Sprintf("lines[%d].quantity", i)] = "quantity must be positive"
		}
		if _, dup := seen[line.SupplyID]; dup && line.SupplyID != "" {
			fields[fmt.Sprintf("lines[%d].supply_id", i)] = "duplicate supply in request"
		}
		seen[line.SupplyID] = struct{}{}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func mapDecisionError(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.ErrNotFound
	case errors.Is(err, repository.ErrRequestNotPending):
		return appErrors.Clone(appErrors.ErrInvalidState, "request has already been reviewed")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to review request")
	}
}
