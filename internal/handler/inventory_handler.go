package handler

import (
	"net/http"

	"procuretrack/internal/middleware"
	"procuretrack/internal/model"
	"procuretrack/internal/service"
	"procuretrack/pkg/pagination"
	"procuretrack/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type InventoryHandler struct {
	inventoryService service.InventoryService
	auth             *middleware.Auth
}

func NewInventoryHandler(inventoryService service.InventoryService, auth *middleware.Auth) *InventoryHandler {
	return &InventoryHandler{inventoryService: inventoryService, auth: auth}
}

func (h *InventoryHandler) RegisterRoutes(router *gin.RouterGroup) {
	inventory := router.Group("/api/inventory")
	{
		inventory.GET("/items", h.auth.RequireRole(), h.GetItems)
		inventory.GET("/items/:id", h.auth.RequireRole(), h.GetItem)
		inventory.GET("/movements", h.auth.RequireRole(), h.GetMovements)
		inventory.POST("/items", h.auth.RequireRole(model.RoleSupply, model.RoleAdmin), h.CreateItem)
		inventory.POST("/items/:id/receive", h.auth.RequireRole(model.RoleSupply), h.ReceiveStock)
		inventory.POST("/items/:id/adjust", h.auth.RequireRole(model.RoleSupply, model.RoleAdmin), h.AdjustStock)
	}
}

// GetItems handles retrieving paginated stock levels
// @Summary      Get inventory items
// @Description  Retrieves a paginated list of items with current stock on hand
// @Tags         inventory
// @Security     BearerAuth
// @Produce      json
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Number of items per page (default 20)"
// @Param        search  query     string  false  "Search by SKU or name"
// @Success      200     {object}  response.Response{data=pagination.Page}
// @Router       /api/inventory/items [get]
func (h *InventoryHandler) GetItems(c *gin.Context) {
	p := pagination.Parse(c)
	items, total, err := h.inventoryService.ListItems(c.Request.Context(), c.Query("search"), p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.NewPage(items, total)))
}

// GetItem
// @Summary      Get inventory item
// @Tags         inventory
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Item ID"
// @Success      200  {object}  response.Response{data=service.ItemResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/inventory/items/{id} [get]
func (h *InventoryHandler) GetItem(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	item, err := h.inventoryService.GetItem(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, item))
}

// CreateItem creates a new stock item with an optional opening balance
// @Summary      Create inventory item
// @Tags         inventory
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateItemRequest  true  "Create Item Payload"
// @Success      201      {object}  response.Response{data=service.ItemResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/inventory/items [post]
func (h *InventoryHandler) CreateItem(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req service.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	item, err := h.inventoryService.CreateItem(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, item))
}

// ReceiveStock records stock received outside a purchase order
// @Summary      Receive stock
// @Tags         inventory
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                       true  "Item ID"
// @Param        payload  body      service.ReceiveStockRequest  true  "Receipt"
// @Success      201      {object}  response.Response{data=service.MovementResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/inventory/items/{id}/receive [post]
func (h *InventoryHandler) ReceiveStock(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.ReceiveStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	movement, err := h.inventoryService.Receive(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, movement))
}

// AdjustStock applies a signed correction or a return
// @Summary      Adjust stock
// @Tags         inventory
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                      true  "Item ID"
// @Param        payload  body      service.AdjustStockRequest  true  "Adjustment"
// @Success      201      {object}  response.Response{data=service.MovementResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/inventory/items/{id}/adjust [post]
func (h *InventoryHandler) AdjustStock(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	movement, err := h.inventoryService.Adjust(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, movement))
}

// GetMovements returns the stock ledger, newest first
// @Summary      Stock movements
// @Tags         inventory
// @Security     BearerAuth
// @Produce      json
// @Param        item_id      query     string  false  "Item ID"
// @Param        document_id  query     string  false  "Source document ID"
// @Param        page         query     int     false  "Page number (default 1)"
// @Param        limit        query     int     false  "Number of items per page (default 20)"
// @Success      200          {object}  response.Response{data=pagination.Page}
// @Failure      400          {object}  response.Response
// @Router       /api/inventory/movements [get]
func (h *InventoryHandler) GetMovements(c *gin.Context) {
	itemID, ok := optionalUUIDQuery(c, "item_id")
	if !ok {
		return
	}
	documentID, ok := optionalUUIDQuery(c, "document_id")
	if !ok {
		return
	}
	p := pagination.Parse(c)

	movements, total, err := h.inventoryService.ListMovements(c.Request.Context(), itemID, documentID, p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.NewPage(movements, total)))
}

func optionalUUIDQuery(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		badRequest(c, "Invalid "+name+": must be a UUID")
		return nil, false
	}
	return &id, true
}
