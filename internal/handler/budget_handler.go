package handler

import (
	"net/http"
	"strconv"

	"procuretrack/internal/middleware"
	"procuretrack/internal/model"
	"procuretrack/internal/service"
	"procuretrack/pkg/response"

	"github.com/gin-gonic/gin"
)

type BudgetHandler struct {
	budgetService service.BudgetService
	auth          *middleware.Auth
}

func NewBudgetHandler(budgetService service.BudgetService, auth *middleware.Auth) *BudgetHandler {
	return &BudgetHandler{budgetService: budgetService, auth: auth}
}

func (h *BudgetHandler) RegisterRoutes(router *gin.RouterGroup) {
	allocations := router.Group("/api/allocations")
	{
		allocations.GET("", h.auth.RequireRole(), h.ListAllocations)
		allocations.GET("/:id", h.auth.RequireRole(), h.GetAllocation)
		allocations.GET("/:id/entries", h.auth.RequireRole(), h.ListEntries)
		allocations.POST("", h.auth.RequireRole(model.RoleBudget, model.RoleAdmin), h.CreateAllocation)
		allocations.POST("/:id/adjust", h.auth.RequireRole(model.RoleBudget, model.RoleAdmin), h.AdjustAllocation)
	}
}

// CreateAllocation
// @Summary      Create budget allocation
// @Tags         budget
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateAllocationRequest  true  "Allocation"
// @Success      201      {object}  response.Response{data=service.AllocationResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/allocations [post]
func (h *BudgetHandler) CreateAllocation(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req service.CreateAllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	allocation, err := h.budgetService.CreateAllocation(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, allocation))
}

// ListAllocations
// @Summary      List budget allocations
// @Tags         budget
// @Security     BearerAuth
// @Produce      json
// @Param        fiscal_year  query     int  false  "Fiscal year"
// @Success      200          {object}  response.Response{data=[]service.AllocationResponse}
// @Router       /api/allocations [get]
func (h *BudgetHandler) ListAllocations(c *gin.Context) {
	fiscalYear, _ := strconv.Atoi(c.DefaultQuery("fiscal_year", "0"))
	allocations, err := h.budgetService.ListAllocations(c.Request.Context(), fiscalYear)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, allocations))
}

// GetAllocation
// @Summary      Get budget allocation
// @Tags         budget
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Allocation ID"
// @Success      200  {object}  response.Response{data=service.AllocationResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/allocations/{id} [get]
func (h *BudgetHandler) GetAllocation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	allocation, err := h.budgetService.GetAllocation(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, allocation))
}

// AdjustAllocation changes the allocated amount by a signed delta
// @Summary      Adjust budget allocation
// @Tags         budget
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                           true  "Allocation ID"
// @Param        payload  body      service.AdjustAllocationRequest  true  "Adjustment"
// @Success      200      {object}  response.Response{data=service.AllocationResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/allocations/{id}/adjust [post]
func (h *BudgetHandler) AdjustAllocation(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.AdjustAllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	allocation, err := h.budgetService.AdjustAllocation(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, allocation))
}

// ListEntries returns the reservation ledger of one allocation
// @Summary      Budget ledger
// @Tags         budget
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Allocation ID"
// @Success      200  {object}  response.Response{data=[]service.BudgetEntryResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/allocations/{id}/entries [get]
func (h *BudgetHandler) ListEntries(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	entries, err := h.budgetService.ListEntries(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, entries))
}
