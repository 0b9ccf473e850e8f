package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"procuretrack/internal/model"
	"procuretrack/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateAllocationRequest struct {
	Code            string          `json:"code" binding:"required,max=60"`
	FiscalYear      int             `json:"fiscal_year" binding:"required,min=2000,max=2100"`
	Office          string          `json:"office" binding:"omitempty,max=50"`
	Description     string          `json:"description" binding:"max=255"`
	AllocatedAmount decimal.Decimal `json:"allocated_amount" binding:"required,dgte=0" swaggertype:"string"`
}

// AdjustAllocationRequest changes the allocated amount by a signed delta.
type AdjustAllocationRequest struct {
	Delta decimal.Decimal `json:"delta" binding:"required" swaggertype:"string"`
	Note  string          `json:"note" binding:"required,max=500"`
}

type AllocationResponse struct {
	ID              string `json:"id"`
	Code            string `json:"code"`
	FiscalYear      int    `json:"fiscal_year"`
	Office          string `json:"office"`
	Description     string `json:"description"`
	AllocatedAmount string `json:"allocated_amount"`
	ObligatedAmount string `json:"obligated_amount"`
	AvailableAmount string `json:"available_amount"`
	UtilizationPct  string `json:"utilization_pct"`
}

type BudgetEntryResponse struct {
	ID              string  `json:"id"`
	DocumentID      *string `json:"document_id,omitempty"`
	EntryType       string  `json:"entry_type"`
	Amount          string  `json:"amount"`
	ObligatedBefore string  `json:"obligated_before"`
	ObligatedAfter  string  `json:"obligated_after"`
	Note            string  `json:"note,omitempty"`
	CreatedAt       string  `json:"created_at"`
}

// --- Interface ---

type BudgetService interface {
	CreateAllocation(ctx context.Context, actor Actor, req CreateAllocationRequest) (*AllocationResponse, error)
	ListAllocations(ctx context.Context, fiscalYear int) ([]AllocationResponse, error)
	GetAllocation(ctx context.Context, id uuid.UUID) (*AllocationResponse, error)
	AdjustAllocation(ctx context.Context, actor Actor, id uuid.UUID, req AdjustAllocationRequest) (*AllocationResponse, error)
	ListEntries(ctx context.Context, id uuid.UUID) ([]BudgetEntryResponse, error)
}

type budgetService struct {
	repo      repository.BudgetRepository
	activity  repository.ActivityLogRepository
	txManager repository.TransactionManager
	cache     DashboardCache
	logger    *zap.Logger
}

func NewBudgetService(
	repo repository.BudgetRepository,
	activity repository.ActivityLogRepository,
	txManager repository.TransactionManager,
	cache DashboardCache,
	logger *zap.Logger,
) BudgetService {
	if cache == nil {
		cache = noopCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &budgetService{
		repo:      repo,
		activity:  activity,
		txManager: txManager,
		cache:     cache,
		logger:    logger.Named("budget"),
	}
}

// --- Implementation ---

var hundred = decimal.NewFromInt(100)

func toAllocationResponse(a *model.BudgetAllocation) AllocationResponse {
	utilization := decimal.Zero
	if a.AllocatedAmount.IsPositive() {
		utilization = a.ObligatedAmount.Div(a.AllocatedAmount).Mul(hundred)
	}
	return AllocationResponse{
		ID:              a.ID.String(),
		Code:            a.Code,
		FiscalYear:      a.FiscalYear,
		Office:          a.Office,
		Description:     a.Description,
		AllocatedAmount: a.AllocatedAmount.StringFixed(2),
		ObligatedAmount: a.ObligatedAmount.StringFixed(2),
		AvailableAmount: a.Available().StringFixed(2),
		UtilizationPct:  utilization.StringFixed(2),
	}
}

func (s *budgetService) CreateAllocation(ctx context.Context, actor Actor, req CreateAllocationRequest) (*AllocationResponse, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		return nil, invalidf("code is required")
	}
	if req.AllocatedAmount.IsNegative() {
		return nil, invalidf("allocated_amount must not be negative")
	}
	if _, err := s.repo.FindByCode(ctx, code); err == nil {
		return nil, fmt.Errorf("%w: allocation %s already exists", ErrConflict, code)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	now := time.Now()
	alloc := &model.BudgetAllocation{
		ID:              uuid.New(),
		Code:            code,
		FiscalYear:      req.FiscalYear,
		Office:          strings.TrimSpace(req.Office),
		Description:     strings.TrimSpace(req.Description),
		AllocatedAmount: req.AllocatedAmount.Round(2),
		ObligatedAmount: decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.Create(txCtx, alloc); err != nil {
			return fmt.Errorf("failed to create budget allocation: %w", err)
		}
		return logActivity(txCtx, s.activity, actor, model.ActionCreateAllocation, alloc.ID.String(), alloc.Code, map[string]interface{}{
			"fiscal_year":      alloc.FiscalYear,
			"allocated_amount": alloc.AllocatedAmount.StringFixed(2),
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	res := toAllocationResponse(alloc)
	return &res, nil
}

func (s *budgetService) ListAllocations(ctx context.Context, fiscalYear int) ([]AllocationResponse, error) {
	rows, err := s.repo.List(ctx, fiscalYear)
	if err != nil {
		return nil, fmt.Errorf("failed to list budget allocations: %w", err)
	}
	res := make([]AllocationResponse, 0, len(rows))
	for i := range rows {
		res = append(res, toAllocationResponse(&rows[i]))
	}
	return res, nil
}

func (s *budgetService) GetAllocation(ctx context.Context, id uuid.UUID) (*AllocationResponse, error) {
	alloc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundf("budget allocation %s", id)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	res := toAllocationResponse(alloc)
	return &res, nil
}

// AdjustAllocation changes the allocated amount. It may never drop below what is already obligated.
func (s *budgetService) AdjustAllocation(ctx context.Context, actor Actor, id uuid.UUID, req AdjustAllocationRequest) (*AllocationResponse, error) {
	if req.Delta.IsZero() {
		return nil, invalidf("delta must not be zero")
	}
	delta := req.Delta.Round(2)

	var alloc *model.BudgetAllocation
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		alloc, err = s.repo.FindByIDForUpdate(txCtx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundf("budget allocation %s", id)
			}
			return fmt.Errorf("failed to lock budget allocation: %w", err)
		}

		allocated := alloc.AllocatedAmount.Add(delta)
		if allocated.LessThan(alloc.ObligatedAmount) {
			return fmt.Errorf("%w: %s would be allocated %s but %s is already obligated",
				ErrConflict, alloc.Code, allocated.StringFixed(2), alloc.ObligatedAmount.StringFixed(2))
		}
		alloc.AllocatedAmount = allocated
		if err := s.repo.SaveAmounts(txCtx, alloc); err != nil {
			return fmt.Errorf("failed to update budget allocation: %w", err)
		}

		actorID := actor.UserID
		entry := &model.BudgetEntry{
			ID:              uuid.New(),
			AllocationID:    alloc.ID,
			EntryType:       model.BudgetEntryAdjustment,
			Amount:          delta,
			ObligatedBefore: alloc.ObligatedAmount,
			ObligatedAfter:  alloc.ObligatedAmount,
			Note:            strings.TrimSpace(req.Note),
			CreatedBy:       &actorID,
			CreatedAt:       time.Now(),
		}
		if err := s.repo.AppendEntry(txCtx, entry); err != nil {
			return fmt.Errorf("failed to write budget entry: %w", err)
		}

		return logActivity(txCtx, s.activity, actor, model.ActionAdjustAllocation, alloc.ID.String(), alloc.Code, map[string]interface{}{
			"delta":            delta.StringFixed(2),
			"allocated_amount": alloc.AllocatedAmount.StringFixed(2),
			"note":             entry.Note,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("budget allocation adjusted",
		zap.String("code", alloc.Code),
		zap.String("delta", delta.StringFixed(2)),
		zap.String("actor_role", actor.Role),
	)
	s.invalidate(ctx)
	res := toAllocationResponse(alloc)
	return &res, nil
}

func (s *budgetService) ListEntries(ctx context.Context, id uuid.UUID) ([]BudgetEntryResponse, error) {
	if _, err := s.GetAllocation(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListEntries(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list budget entries: %w", err)
	}

	res := make([]BudgetEntryResponse, 0, len(rows))
	for _, e := range rows {
		item := BudgetEntryResponse{
			ID:              e.ID.String(),
			EntryType:       e.EntryType,
			Amount:          e.Amount.StringFixed(2),
			ObligatedBefore: e.ObligatedBefore.StringFixed(2),
			ObligatedAfter:  e.ObligatedAfter.StringFixed(2),
			Note:            e.Note,
			CreatedAt:       formatTime(e.CreatedAt),
		}
		if e.DocumentID != nil {
			id := e.DocumentID.String()
			item.DocumentID = &id
		}
		res = append(res, item)
	}
	return res, nil
}

func (s *budgetService) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("dashboard cache invalidation failed", zap.Error(err))
	}
}
