package handler

import (
	"net/http"
	"strconv"

	"procuretrack/internal/middleware"
	"procuretrack/internal/service"
	"procuretrack/pkg/pagination"
	"procuretrack/pkg/response"

	"github.com/gin-gonic/gin"
)

type DocumentHandler struct {
	documentService service.DocumentService
	slipService     service.SlipService
	auth            *middleware.Auth
}

func NewDocumentHandler(documentService service.DocumentService, slipService service.SlipService, auth *middleware.Auth) *DocumentHandler {
	return &DocumentHandler{documentService: documentService, slipService: slipService, auth: auth}
}

func (h *DocumentHandler) RegisterRoutes(router *gin.RouterGroup) {
	docs := router.Group("/api/documents", h.auth.RequireRole())
	{
		docs.POST("", h.CreateDocument)
		docs.GET("", h.ListDocuments)
		docs.GET("/:id", h.GetDocument)
		docs.GET("/:id/history", h.GetHistory)
		docs.GET("/:id/links", h.GetLinks)
		docs.GET("/:id/ris.pdf", h.GetRISSlip)
	}
}

// CreateDocument opens a new document in its type's initial state
// @Summary      Create document
// @Description  Creates a document of the given type, allocates its tracking id and records the creation audit entry
// @Tags         documents
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateDocumentRequest  true  "Create Document Payload"
// @Success      201      {object}  response.Response{data=service.DocumentResponse}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Router       /api/documents [post]
func (h *DocumentHandler) CreateDocument(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req service.CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	doc, err := h.documentService.Create(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, doc))
}

// ListDocuments returns a filtered page of documents
// @Summary      List documents
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        page           query     int     false  "Page number (default 1)"
// @Param        limit          query     int     false  "Items per page (default 20)"
// @Param        document_type  query     string  false  "Document type"
// @Param        state          query     string  false  "Current state"
// @Param        owner_office   query     string  false  "Originating office"
// @Param        mine           query     bool    false  "Only documents created by the caller"
// @Param        search         query     string  false  "Tracking id or title"
// @Success      200            {object}  response.Response{data=pagination.Page}
// @Router       /api/documents [get]
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)
	mine, _ := strconv.ParseBool(c.DefaultQuery("mine", "false"))

	docs, total, err := h.documentService.List(c.Request.Context(), actor, service.DocumentFilter{
		DocumentType: c.Query("document_type"),
		State:        c.Query("state"),
		OwnerOffice:  c.Query("owner_office"),
		Mine:         mine,
		Search:       c.Query("search"),
		Page:         p.Page,
		Limit:        p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.NewPage(docs, total)))
}

// GetDocument
// @Summary      Get document
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Document ID"
// @Success      200  {object}  response.Response{data=service.DocumentResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/documents/{id} [get]
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	doc, err := h.documentService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, doc))
}

// GetHistory returns the audit trail oldest first
// @Summary      Document history
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Document ID"
// @Success      200  {object}  response.Response{data=[]service.AuditEntryResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/documents/{id}/history [get]
func (h *DocumentHandler) GetHistory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	entries, err := h.documentService.History(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, entries))
}

// GetLinks
// @Summary      Linked documents
// @Description  Documents this one references and documents that reference it
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Document ID"
// @Success      200  {object}  response.Response{data=service.DocumentLinksResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/documents/{id}/links [get]
func (h *DocumentHandler) GetLinks(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	links, err := h.documentService.Links(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, links))
}

// GetRISSlip downloads the Requisition and Issue Slip of an issued supply request
// @Summary      RIS slip
// @Tags         documents
// @Security     BearerAuth
// @Produce      application/pdf
// @Param        id   path      string  true  "Document ID"
// @Success      200  {file}    file
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/documents/{id}/ris.pdf [get]
func (h *DocumentHandler) GetRISSlip(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	filename, pdf, err := h.slipService.RIS(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}
