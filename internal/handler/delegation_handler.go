package handler

import (
	"net/http"
	"strconv"

	"procuretrack/internal/middleware"
	"procuretrack/internal/service"
	"procuretrack/pkg/response"

	"github.com/gin-gonic/gin"
)

type DelegationHandler struct {
	delegationService service.DelegationService
	auth              *middleware.Auth
}

func NewDelegationHandler(delegationService service.DelegationService, auth *middleware.Auth) *DelegationHandler {
	return &DelegationHandler{delegationService: delegationService, auth: auth}
}

func (h *DelegationHandler) RegisterRoutes(router *gin.RouterGroup) {
	delegations := router.Group("/api/delegations", h.auth.RequireRole())
	{
		delegations.GET("", h.ListDelegations)
		delegations.POST("", h.CreateDelegation)
		delegations.POST("/:id/revoke", h.RevokeDelegation)
	}
}

// CreateDelegation lets the caller hand their role to another user for a window
// @Summary      Create delegation
// @Tags         delegations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateDelegationRequest  true  "Delegation"
// @Success      201      {object}  response.Response{data=service.DelegationResponse}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Router       /api/delegations [post]
func (h *DelegationHandler) CreateDelegation(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req service.CreateDelegationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	delegation, err := h.delegationService.Create(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, delegation))
}

// RevokeDelegation ends a delegation now. Past actions stay valid.
// @Summary      Revoke delegation
// @Tags         delegations
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Delegation ID"
// @Success      200  {object}  response.Response{data=service.DelegationResponse}
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/delegations/{id}/revoke [post]
func (h *DelegationHandler) RevokeDelegation(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	delegation, err := h.delegationService.Revoke(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, delegation))
}

// ListDelegations
// @Summary      List delegations
// @Tags         delegations
// @Security     BearerAuth
// @Produce      json
// @Param        delegator_role    query     string  false  "Delegated role"
// @Param        delegate_user_id  query     string  false  "Delegate user ID"
// @Param        active            query     bool    false  "Only currently active"
// @Success      200               {object}  response.Response{data=[]service.DelegationResponse}
// @Router       /api/delegations [get]
func (h *DelegationHandler) ListDelegations(c *gin.Context) {
	active, _ := strconv.ParseBool(c.DefaultQuery("active", "false"))
	delegations, err := h.delegationService.List(c.Request.Context(), service.DelegationQuery{
		DelegatorRole:  c.Query("delegator_role"),
		DelegateUserID: c.Query("delegate_user_id"),
		ActiveOnly:     active,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, delegations))
}
