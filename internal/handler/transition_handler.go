package handler

import (
	"net/http"

	"procuretrack/internal/middleware"
	"procuretrack/internal/service"
	"procuretrack/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type TransitionHandler struct {
	transitionService service.TransitionService
	auth              *middleware.Auth
}

func NewTransitionHandler(transitionService service.TransitionService, auth *middleware.Auth) *TransitionHandler {
	return &TransitionHandler{transitionService: transitionService, auth: auth}
}

func (h *TransitionHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api", h.auth.RequireRole())
	{
		api.POST("/transitions", h.RequestTransition)
		api.GET("/documents/:id/valid-transitions", h.ValidTransitions)
	}
}

// RequestTransition moves a document along a named transition
// @Summary      Request a transition
// @Description  Validates and commits one state change. Failures carry error_code INVALID_TRANSITION, UNAUTHORIZED, MISSING_REMARKS, SIDE_EFFECT_FAILED, CONTENTION or NOT_FOUND.
// @Tags         transitions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.TransitionRequestDTO  true  "Transition request"
// @Success      200      {object}  response.Response{data=service.TransitionResult}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Failure      503      {object}  response.Response
// @Router       /api/transitions [post]
func (h *TransitionHandler) RequestTransition(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req service.TransitionRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	result, err := h.transitionService.RequestTransition(c.Request.Context(), service.TransitionRequest{
		DocumentID:      uuid.MustParse(req.DocumentID),
		Transition:      req.TransitionName,
		Actor:           actor,
		Remarks:         req.Remarks,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// ValidTransitions lists the transitions the caller may request now
// @Summary      Valid transitions
// @Description  Transitions out of the document's current state that the caller's role, or a role delegated to them, may perform
// @Tags         transitions
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Document ID"
// @Success      200  {object}  response.Response{data=[]service.TransitionOption}
// @Failure      404  {object}  response.Response
// @Router       /api/documents/{id}/valid-transitions [get]
func (h *TransitionHandler) ValidTransitions(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	options, err := h.transitionService.ValidTransitions(c.Request.Context(), id, actor)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, options))
}
