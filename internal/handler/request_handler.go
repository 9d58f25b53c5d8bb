package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/siap-dev/siap-atk-api/internal/dto"
	"github.com/siap-dev/siap-atk-api/internal/models"
	"github.com/siap-dev/siap-atk-api/internal/service"
	appErrors "github.com/siap-dev/siap-atk-api/pkg/errors"
	"github.com/siap-dev/siap-atk-api/pkg/response"
)

// RequestHandler wires HTTP endpoints to the request lifecycle service.
type RequestHandler struct {
	service *service.RequestService
}

// NewRequestHandler creates a new handler.
func NewRequestHandler(svc *service.RequestService) *RequestHandler {
	return &RequestHandler{service: svc}
}

// Create godoc
// @Summary Submit a supply request
// @Description Create a pending office supply request with one or more lines
// @Tags Requests
// @Accept json
// @Produce json
// @Param payload body dto.CreateRequestInput true "Request payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.ErrorBody
// @Failure 422 {object} response.ErrorBody
// @Router /office-requests [post]
func (h *RequestHandler) Create(c *gin.Context) {
	var input dto.CreateRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid request payload"))
		return
	}

	request, err := h.service.Create(c.Request.Context(), claimsFromContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, request)
}

// Approve godoc
// @Summary Approve a pending request
// @Description Complete a request, granting each line up to available stock
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.ErrorBody
// @Failure 404 {object} response.ErrorBody
// @Failure 422 {object} response.ErrorBody
// @Router /office-requests/{id}/approve [post]
func (h *RequestHandler) Approve(c *gin.Context) {
	request, err := h.service.Approve(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, request)
}

// Reject godoc
// @Summary Reject a pending request
// @Description Reject a request with a mandatory reason; stock is untouched
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.RejectRequestInput true "Rejection payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.ErrorBody
// @Failure 404 {object} response.ErrorBody
// @Failure 422 {object} response.ErrorBody
// @Router /office-requests/{id}/reject [post]
func (h *RequestHandler) Reject(c *gin.Context) {
	var input dto.RejectRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid rejection payload"))
		return
	}

	request, err := h.service.Reject(c.Request.Context(), claimsFromContext(c), c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, request)
}

// Get godoc
// @Summary Get one request
// @Description Fetch a request with its lines
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.ErrorBody
// @Router /office-requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	request, err := h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, request)
}

// List godoc
// @Summary List requests
// @Description List request headers, filtered by status and department
// @Tags Requests
// @Produce json
// @Param status query string false "Status filter"
// @Param department query string false "Department filter"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /office-requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	filter := models.RequestFilter{
		Department: c.Query("department"),
	}
	if status := c.Query("status"); status != "" {
		filter.Status = []models.RequestStatus{models.RequestStatus(status)}
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize

	requests, err := h.service.List(c.Request.Context(), claimsFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, requests)
}
