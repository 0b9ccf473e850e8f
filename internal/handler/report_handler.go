package handler

import (
	"net/http"
	"strconv"
	"time"

	"procuretrack/internal/middleware"
	"procuretrack/internal/service"
	"procuretrack/pkg/pagination"
	"procuretrack/pkg/response"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ReportHandler struct {
	reportService service.ReportService
	auth          *middleware.Auth
}

func NewReportHandler(reportService service.ReportService, auth *middleware.Auth) *ReportHandler {
	return &ReportHandler{reportService: reportService, auth: auth}
}

func (h *ReportHandler) RegisterRoutes(router *gin.RouterGroup) {
	reports := router.Group("/api/reports", h.auth.RequireRole())
	{
		reports.GET("/dashboard", h.GetDashboard)
		reports.GET("/inbox", h.GetInbox)
		reports.GET("/trend", h.GetTrend)
		reports.GET("/budget", h.GetBudgetUtilization)
		reports.GET("/summary.xlsx", h.ExportSummary)
	}
}

// GetDashboard
// @Summary      Dashboard counts
// @Description  Document counts by stage plus the caller's inbox count
// @Tags         reports
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=service.DashboardResponse}
// @Router       /api/reports/dashboard [get]
func (h *ReportHandler) GetDashboard(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	dashboard, err := h.reportService.Dashboard(c.Request.Context(), actor.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, dashboard))
}

// GetInbox lists documents waiting on the caller
// @Summary      Inbox
// @Tags         reports
// @Security     BearerAuth
// @Produce      json
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Items per page (default 20)"
// @Success      200    {object}  response.Response{data=pagination.Page}
// @Router       /api/reports/inbox [get]
func (h *ReportHandler) GetInbox(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)
	docs, total, err := h.reportService.Inbox(c.Request.Context(), actor, p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.NewPage(docs, total)))
}

// GetTrend returns documents created per period
// @Summary      Creation trend
// @Tags         reports
// @Security     BearerAuth
// @Produce      json
// @Param        document_type  query     string  false  "Document type"
// @Param        group_by       query     string  false  "day, week or month (default day)"
// @Param        start          query     string  false  "Start date (YYYY-MM-DD)"
// @Param        end            query     string  false  "End date (YYYY-MM-DD, exclusive)"
// @Success      200            {object}  response.Response{data=[]model.TrendPoint}
// @Failure      400            {object}  response.Response
// @Router       /api/reports/trend [get]
func (h *ReportHandler) GetTrend(c *gin.Context) {
	q := service.TrendQuery{
		DocumentType: c.Query("document_type"),
		GroupBy:      c.Query("group_by"),
	}
	var err error
	if q.Start, err = parseDateQuery(c.Query("start")); err != nil {
		badRequest(c, "Invalid start date, expected YYYY-MM-DD")
		return
	}
	if q.End, err = parseDateQuery(c.Query("end")); err != nil {
		badRequest(c, "Invalid end date, expected YYYY-MM-DD")
		return
	}

	points, err := h.reportService.Trend(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, points))
}

// GetBudgetUtilization
// @Summary      Budget utilization
// @Tags         reports
// @Security     BearerAuth
// @Produce      json
// @Param        fiscal_year  query     int  false  "Fiscal year (default all)"
// @Success      200          {object}  response.Response{data=service.BudgetUtilizationResponse}
// @Router       /api/reports/budget [get]
func (h *ReportHandler) GetBudgetUtilization(c *gin.Context) {
	fiscalYear, _ := strconv.Atoi(c.DefaultQuery("fiscal_year", "0"))
	utilization, err := h.reportService.BudgetUtilization(c.Request.Context(), fiscalYear)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, utilization))
}

// ExportSummary downloads the status and budget workbook
// @Summary      Summary workbook
// @Tags         reports
// @Security     BearerAuth
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Success      200  {file}  file
// @Router       /api/reports/summary.xlsx [get]
func (h *ReportHandler) ExportSummary(c *gin.Context) {
	data, err := h.reportService.ExportSummary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	filename := "procurement-summary-" + time.Now().Format("20060102") + ".xlsx"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, xlsxContentType, data)
}

func parseDateQuery(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", raw)
}
