package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siap-dev/siap-atk-api/internal/dto"
	"github.com/siap-dev/siap-atk-api/internal/middleware"
	"github.com/siap-dev/siap-atk-api/internal/models"
	"github.com/siap-dev/siap-atk-api/internal/repository"
	"github.com/siap-dev/siap-atk-api/internal/service"
)

type requestStoreMock struct {
	outcome     *repository.ApprovalOutcome
	decisionErr error
}

func (m *requestStoreMock) Create(_ context.Context, request *models.SupplyRequest) error {
	request.ID = "REQ-20260828-ABCDEF1234"
	return nil
}

func (m *requestStoreMock) GetByID(context.Context, string) (*models.SupplyRequest, error) {
	return &models.SupplyRequest{ID: "REQ-1", RequesterID: "staff-1"}, nil
}

func (m *requestStoreMock) List(context.Context, models.RequestFilter) ([]models.SupplyRequest, error) {
	return nil, nil
}

func (m *requestStoreMock) Approve(context.Context, string, string, time.Time) (*repository.ApprovalOutcome, error) {
	return m.outcome, m.decisionErr
}

func (m *requestStoreMock) Reject(context.Context, string, string, string, time.Time) (*models.SupplyRequest, error) {
	return nil, m.decisionErr
}

type supplyReaderMock struct{}

func (supplyReaderMock) GetByID(context.Context, string) (*models.Supply, error) {
	return &models.Supply{ID: "supply-1", Name: "Kertas A4"}, nil
}

func newRequestHandler(store *requestStoreMock) *RequestHandler {
	svc := service.NewRequestService(store, supplyReaderMock{}, nil, nil, nil)
	return NewRequestHandler(svc)
}

func TestRequestHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newRequestHandler(&requestStoreMock{})

	payload, _ := json.Marshal(dto.CreateRequestInput{
		Lines: []dto.CreateRequestLine{{SupplyID: "supply-1", Quantity: 2}},
	})
	c, w := newGinContext(http.MethodPost, "/office-requests", payload)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "staff-1", Role: models.RoleStaff, Department: "TU"})

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestRequestHandlerRejectMissingReason(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newRequestHandler(&requestStoreMock{})

	payload, _ := json.Marshal(dto.RejectRequestInput{})
	c, w := newGinContext(http.MethodPost, "/office-requests/REQ-1/reject", payload)
	c.Params = gin.Params{{Key: "id", Value: "REQ-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.Reject(c)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	fields, ok := body["errors"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, fields, "alasan_penolakan")
}

func TestRequestHandlerApproveAlreadyReviewed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newRequestHandler(&requestStoreMock{decisionErr: repository.ErrRequestNotPending})

	c, w := newGinContext(http.MethodPost, "/office-requests/REQ-1/approve", nil)
	c.Params = gin.Params{{Key: "id", Value: "REQ-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.Approve(c)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestRequestHandlerApproveForbiddenForStaff(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newRequestHandler(&requestStoreMock{})

	c, w := newGinContext(http.MethodPost, "/office-requests/REQ-1/approve", nil)
	c.Params = gin.Params{{Key: "id", Value: "REQ-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "staff-1", Role: models.RoleStaff})

	handler.Approve(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}
