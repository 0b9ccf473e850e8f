package service

import (
	"context"
	"fmt"
	"time"

	"procuretrack/internal/export"
	"procuretrack/internal/model"
	"procuretrack/internal/repository"
	"procuretrack/internal/workflow"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// --- DTOs ---

type DashboardResponse struct {
	Role        string             `json:"role"`
	InboxCount  int64              `json:"inbox_count"`
	ByStage     []model.StateCount `json:"by_stage"`
	ByType      map[string]int64   `json:"by_type"`
	OpenTotal   int64              `json:"open_total"`
	GeneratedAt string             `json:"generated_at"`
}

type TrendQuery struct {
	DocumentType string
	GroupBy      string
	Start        time.Time
	End          time.Time
}

type BudgetUtilizationResponse struct {
	Allocations    []AllocationResponse `json:"allocations"`
	TotalAllocated string               `json:"total_allocated"`
	TotalObligated string               `json:"total_obligated"`
	TotalAvailable string               `json:"total_available"`
}

var trendGroups = map[string]bool{"day": true, "week": true, "month": true}

// --- Interface ---

// ReportService is the read-only projection layer behind dashboards and exports.
type ReportService interface {
	Dashboard(ctx context.Context, role string) (*DashboardResponse, error)
	Inbox(ctx context.Context, actor Actor, page, limit int) ([]DocumentResponse, int64, error)
	Trend(ctx context.Context, q TrendQuery) ([]model.TrendPoint, error)
	BudgetUtilization(ctx context.Context, fiscalYear int) (*BudgetUtilizationResponse, error)
	ExportSummary(ctx context.Context) ([]byte, error)
}

type reportService struct {
	def         *workflow.Definition
	docs        repository.DocumentRepository
	budgets     repository.BudgetRepository
	delegations repository.DelegationRepository
	cache       DashboardCache
	schoolName  string
	logger      *zap.Logger
	now         func() time.Time
}

func NewReportService(
	def *workflow.Definition,
	docs repository.DocumentRepository,
	budgets repository.BudgetRepository,
	delegations repository.DelegationRepository,
	cache DashboardCache,
	schoolName string,
	logger *zap.Logger,
) ReportService {
	if cache == nil {
		cache = noopCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &reportService{
		def:         def,
		docs:        docs,
		budgets:     budgets,
		delegations: delegations,
		cache:       cache,
		schoolName:  schoolName,
		logger:      logger.Named("reports"),
		now:         time.Now,
	}
}

// --- Implementation ---

func dashboardKey(role string) string {
	return "dashboard:" + role
}

// Dashboard is served from the cache when possible. Cache failures only cost a recompute.
func (s *reportService) Dashboard(ctx context.Context, role string) (*DashboardResponse, error) {
	key := dashboardKey(role)
	var cached DashboardResponse
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.logger.Warn("dashboard cache read failed", zap.String("key", key), zap.Error(err))
	}
	if hit {
		return &cached, nil
	}

	counts, err := s.docs.CountByStage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	res := &DashboardResponse{
		Role:        role,
		ByStage:     counts,
		ByType:      map[string]int64{},
		GeneratedAt: formatTime(s.now()),
	}
	if res.ByStage == nil {
		res.ByStage = []model.StateCount{}
	}
	inbox := map[model.Stage]bool{}
	for _, st := range s.def.StagesFor(role) {
		inbox[st] = true
	}
	for _, c := range counts {
		res.ByType[c.DocumentType] += c.Total
		if !s.def.IsTerminal(c.DocumentType, c.State) {
			res.OpenTotal += c.Total
		}
		if inbox[model.Stage{DocumentType: c.DocumentType, State: c.State}] {
			res.InboxCount += c.Total
		}
	}

	if err := s.cache.Set(ctx, key, res); err != nil {
		s.logger.Warn("dashboard cache write failed", zap.String("key", key), zap.Error(err))
	}
	return res, nil
}

// Inbox lists documents waiting on the actor's role or on a role delegated to them.
func (s *reportService) Inbox(ctx context.Context, actor Actor, page, limit int) ([]DocumentResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	roles := []string{actor.Role}
	active, err := s.delegations.ListActiveForDelegate(ctx, actor.UserID, s.now())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load delegations: %w", err)
	}
	for _, d := range active {
		roles = append(roles, d.DelegatorRole)
	}

	stages := s.def.StagesFor(roles...)
	if len(stages) == 0 {
		return []DocumentResponse{}, 0, nil
	}

	docs, total, err := s.docs.List(ctx, repository.DocumentFilter{
		Stages: stages,
		Offset: (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list inbox: %w", err)
	}
	res := make([]DocumentResponse, 0, len(docs))
	for i := range docs {
		res = append(res, *toDocumentResponse(s.def, &docs[i]))
	}
	return res, total, nil
}

func (s *reportService) Trend(ctx context.Context, q TrendQuery) ([]model.TrendPoint, error) {
	if q.GroupBy == "" {
		q.GroupBy = "day"
	}
	if !trendGroups[q.GroupBy] {
		return nil, invalidf("group_by must be day, week or month")
	}
	if q.DocumentType != "" {
		if _, ok := s.def.Type(q.DocumentType); !ok {
			return nil, invalidf("unknown document type %s", q.DocumentType)
		}
	}
	if q.End.IsZero() {
		q.End = s.now()
	}
	if q.Start.IsZero() {
		q.Start = q.End.AddDate(0, 0, -30)
	}
	if !q.End.After(q.Start) {
		return nil, invalidf("end must be after start")
	}

	points, err := s.docs.CreatedTrend(ctx, q.DocumentType, q.GroupBy, q.Start, q.End)
	if err != nil {
		return nil, fmt.Errorf("failed to compute trend: %w", err)
	}
	if points == nil {
		points = []model.TrendPoint{}
	}
	return points, nil
}

func (s *reportService) BudgetUtilization(ctx context.Context, fiscalYear int) (*BudgetUtilizationResponse, error) {
	rows, err := s.budgets.List(ctx, fiscalYear)
	if err != nil {
		return nil, fmt.Errorf("failed to list budget allocations: %w", err)
	}

	res := &BudgetUtilizationResponse{Allocations: make([]AllocationResponse, 0, len(rows))}
	var allocated, obligated decimal.Decimal
	for i := range rows {
		res.Allocations = append(res.Allocations, toAllocationResponse(&rows[i]))
		allocated = allocated.Add(rows[i].AllocatedAmount)
		obligated = obligated.Add(rows[i].ObligatedAmount)
	}
	res.TotalAllocated = allocated.StringFixed(2)
	res.TotalObligated = obligated.StringFixed(2)
	res.TotalAvailable = allocated.Sub(obligated).StringFixed(2)
	return res, nil
}

func (s *reportService) ExportSummary(ctx context.Context) ([]byte, error) {
	counts, err := s.docs.CountByStage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	allocations, err := s.budgets.List(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list budget allocations: %w", err)
	}

	summary := export.Summary{SchoolName: s.schoolName, GeneratedAt: s.now()}
	for _, c := range counts {
		summary.Statuses = append(summary.Statuses, export.StatusRow{
			DocumentType: c.DocumentType,
			State:        c.State,
			Total:        c.Total,
			Terminal:     s.def.IsTerminal(c.DocumentType, c.State),
		})
	}
	for _, a := range allocations {
		utilization := decimal.Zero
		if a.AllocatedAmount.IsPositive() {
			utilization = a.ObligatedAmount.Div(a.AllocatedAmount).Mul(hundred).Round(2)
		}
		summary.Budgets = append(summary.Budgets, export.BudgetRow{
			Code:           a.Code,
			FiscalYear:     a.FiscalYear,
			Office:         a.Office,
			Allocated:      a.AllocatedAmount,
			Obligated:      a.ObligatedAmount,
			Available:      a.Available(),
			UtilizationPct: utilization,
		})
	}

	data, err := export.SummaryWorkbook(summary)
	if err != nil {
		return nil, fmt.Errorf("failed to build summary workbook: %w", err)
	}
	return data, nil
}
