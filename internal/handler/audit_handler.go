package handler

import (
	"net/http"

	"procuretrack/internal/middleware"
	"procuretrack/internal/model"
	"procuretrack/internal/service"
	"procuretrack/pkg/pagination"
	"procuretrack/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
	auth         *middleware.Auth
}

func NewAuditHandler(auditService service.AuditService, auth *middleware.Auth) *AuditHandler {
	return &AuditHandler{auditService: auditService, auth: auth}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api")
	group.Use(h.auth.RequireRole(model.RoleAdmin, model.RoleAuditor))
	{
		group.GET("/audit-logs", h.GetActivityLogs)
		group.GET("/transition-log", h.GetTransitionLog)
	}
}

// GetActivityLogs retrieves administrative activity, newest first
// @Summary      Get activity logs
// @Description  User, allocation, inventory and delegation changes with the acting user
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Number of items per page (default 20)"
// @Success      200    {object}  response.Response{data=pagination.Page}
// @Router       /api/audit-logs [get]
func (h *AuditHandler) GetActivityLogs(c *gin.Context) {
	p := pagination.Parse(c)

	logs, total, err := h.auditService.GetActivityLogs(c.Request.Context(), p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.NewPage(logs, total)))
}

// GetTransitionLog searches document audit entries across all documents
// @Summary      Transition log
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        document_id    query     string  false  "Document ID"
// @Param        actor_user_id  query     string  false  "Acting user ID"
// @Param        transition     query     string  false  "Transition name"
// @Param        page           query     int     false  "Page number (default 1)"
// @Param        limit          query     int     false  "Number of items per page (default 20)"
// @Success      200            {object}  response.Response{data=pagination.Page}
// @Failure      400            {object}  response.Response
// @Router       /api/transition-log [get]
func (h *AuditHandler) GetTransitionLog(c *gin.Context) {
	p := pagination.Parse(c)

	entries, total, err := h.auditService.GetTransitionLog(c.Request.Context(), service.AuditQuery{
		DocumentID:  c.Query("document_id"),
		ActorUserID: c.Query("actor_user_id"),
		Transition:  c.Query("transition"),
		Page:        p.Page,
		Limit:       p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.NewPage(entries, total)))
}
