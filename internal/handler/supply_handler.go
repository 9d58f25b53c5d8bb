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

// SupplyHandler wires HTTP endpoints to the catalog and stock services.
type SupplyHandler struct {
	supplies *service.SupplyService
	stock    *service.StockService
}

// NewSupplyHandler creates a new handler.
func NewSupplyHandler(supplies *service.SupplyService, stock *service.StockService) *SupplyHandler {
	return &SupplyHandler{supplies: supplies, stock: stock}
}

// Create godoc
// @Summary Create a supply
// @Description Add a catalog entry, optionally with opening stock
// @Tags Supplies
// @Accept json
// @Produce json
// @Param payload body dto.CreateSupplyInput true "Supply payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.ErrorBody
// @Failure 422 {object} response.ErrorBody
// @Router /supplies [post]
func (h *SupplyHandler) Create(c *gin.Context) {
	var input dto.CreateSupplyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid supply payload"))
		return
	}

	supply, err := h.supplies.Create(c.Request.Context(), claimsFromContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, supply)
}

// Get godoc
// @Summary Get one supply
// @Tags Supplies
// @Produce json
// @Param id path string true "Supply ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.ErrorBody
// @Router /supplies/{id} [get]
func (h *SupplyHandler) Get(c *gin.Context) {
	supply, err := h.supplies.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, supply)
}

// List godoc
// @Summary List supplies
// @Description Page through the supply catalog
// @Tags Supplies
// @Produce json
// @Param search query string false "Name search"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /supplies [get]
func (h *SupplyHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))

	result, err := h.supplies.List(c.Request.Context(), models.SupplyFilter{
		Search:   c.Query("search"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result.Supplies, &result.Pagination)
}

// Update godoc
// @Summary Update a supply
// @Description Rename a supply or change its unit
// @Tags Supplies
// @Accept json
// @Produce json
// @Param id path string true "Supply ID"
// @Param payload body dto.UpdateSupplyInput true "Supply payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.ErrorBody
// @Failure 422 {object} response.ErrorBody
// @Router /supplies/{id} [put]
func (h *SupplyHandler) Update(c *gin.Context) {
	var input dto.UpdateSupplyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid supply payload"))
		return
	}

	supply, err := h.supplies.Update(c.Request.Context(), claimsFromContext(c), c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, supply)
}

// Deduct godoc
// @Summary Deduct stock directly
// @Description Remove stock outside the request workflow; fails on short stock
// @Tags Stock
// @Accept json
// @Produce json
// @Param id path string true "Supply ID"
// @Param payload body dto.AdjustStockInput true "Deduction payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.ErrorBody
// @Failure 422 {object} response.ErrorBody
// @Router /supplies/{id}/deduct [post]
func (h *SupplyHandler) Deduct(c *gin.Context) {
	var input dto.AdjustStockInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid deduction payload"))
		return
	}

	mutation, err := h.stock.QuickDeduct(c.Request.Context(), claimsFromContext(c), c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, mutation)
}

// Restock godoc
// @Summary Restock a supply
// @Description Add stock and record the inbound ledger entry
// @Tags Stock
// @Accept json
// @Produce json
// @Param id path string true "Supply ID"
// @Param payload body dto.AdjustStockInput true "Restock payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.ErrorBody
// @Failure 422 {object} response.ErrorBody
// @Router /supplies/{id}/restock [post]
func (h *SupplyHandler) Restock(c *gin.Context) {
	var input dto.AdjustStockInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid restock payload"))
		return
	}

	mutation, err := h.stock.Restock(c.Request.Context(), claimsFromContext(c), c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, mutation)
}

// Mutations godoc
// @Summary Stock mutation trail
// @Description List the append-only ledger for one supply, newest first
// @Tags Stock
// @Produce json
// @Param id path string true "Supply ID"
// @Param kind query string false "Mutation kind (in/out)"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.ErrorBody
// @Router /supplies/{id}/mutations [get]
func (h *SupplyHandler) Mutations(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "100"))
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 500 {
		pageSize = 100
	}

	filter := models.MutationFilter{
		SupplyID: c.Param("id"),
		Kind:     models.MutationKind(c.Query("kind")),
		Limit:    pageSize,
		Offset:   (page - 1) * pageSize,
	}

	mutations, err := h.stock.Mutations(c.Request.Context(), claimsFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, mutations)
}
