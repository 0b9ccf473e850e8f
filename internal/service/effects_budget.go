package service

import (
	"context"
	"errors"
	"fmt"

	"procuretrack/internal/model"
	"procuretrack/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// requestedAmount returns the document amount, failing when it is missing or not positive.
func requestedAmount(doc *model.Document) (decimal.Decimal, error) {
	if doc.Amount == nil || !doc.Amount.IsPositive() {
		return decimal.Zero, workflow.NewSideEffectError(workflow.ErrIncompleteDocument,
			map[string]interface{}{"field": "amount"},
			"%s has no positive amount", doc.TrackingID)
	}
	return *doc.Amount, nil
}

func (e *effects) loadAllocation(ctx context.Context, doc *model.Document, lock bool) (*model.BudgetAllocation, error) {
	if doc.AllocationID == nil {
		return nil, workflow.NewSideEffectError(workflow.ErrMissingAllocation, nil,
			"%s is not charged to a budget allocation", doc.TrackingID)
	}

	var (
		alloc *model.BudgetAllocation
		err   error
	)
	if lock {
		alloc, err = e.budgets.FindByIDForUpdate(ctx, *doc.AllocationID)
	} else {
		alloc, err = e.budgets.FindByID(ctx, *doc.AllocationID)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, workflow.NewSideEffectError(workflow.ErrMissingAllocation,
			map[string]interface{}{"allocation_id": doc.AllocationID.String()},
			"budget allocation %s does not exist", doc.AllocationID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load budget allocation: %w", err)
	}
	return alloc, nil
}

func insufficientBudget(alloc *model.BudgetAllocation, requested decimal.Decimal) error {
	available := alloc.Available()
	shortfall := requested.Sub(available)
	return workflow.NewSideEffectError(workflow.ErrInsufficientBudget,
		map[string]interface{}{
			"allocation_id":   alloc.ID.String(),
			"allocation_code": alloc.Code,
			"available":       available.StringFixed(2),
			"requested":       requested.StringFixed(2),
			"shortfall":       shortfall.StringFixed(2),
		},
		"insufficient budget on %s: available %s, requested %s, shortfall %s",
		alloc.Code, available.StringFixed(2), requested.StringFixed(2), shortfall.StringFixed(2))
}

// budgetCheck records the allocation snapshot. An insufficient balance is
// reported, not failed, so the office can still tag the request as pending.
func (e *effects) budgetCheck(ctx context.Context, ec *EffectContext) (SideEffect, error) {
	requested, err := requestedAmount(ec.Document)
	if err != nil {
		return nil, err
	}
	alloc, err := e.loadAllocation(ctx, ec.Document, false)
	if err != nil {
		return nil, err
	}

	available := alloc.Available()
	sufficient := available.GreaterThanOrEqual(requested)
	se := SideEffect{
		"allocation_id":   alloc.ID.String(),
		"allocation_code": alloc.Code,
		"available":       available.StringFixed(2),
		"requested":       requested.StringFixed(2),
		"sufficient":      sufficient,
	}
	if !sufficient {
		se["shortfall"] = requested.Sub(available).StringFixed(2)
	}
	return se, nil
}

// budgetVerify fails when the allocation cannot cover the amount. Nothing is obligated.
func (e *effects) budgetVerify(ctx context.Context, ec *EffectContext) (SideEffect, error) {
	requested, err := requestedAmount(ec.Document)
	if err != nil {
		return nil, err
	}
	alloc, err := e.loadAllocation(ctx, ec.Document, false)
	if err != nil {
		return nil, err
	}
	if alloc.Available().LessThan(requested) {
		return nil, insufficientBudget(alloc, requested)
	}
	return SideEffect{
		"allocation_id": alloc.ID.String(),
		"available":     alloc.Available().StringFixed(2),
		"requested":     requested.StringFixed(2),
	}, nil
}

func (e *effects) budgetReserve(ctx context.Context, ec *EffectContext) (SideEffect, error) {
	requested, err := requestedAmount(ec.Document)
	if err != nil {
		return nil, err
	}
	alloc, err := e.loadAllocation(ctx, ec.Document, true)
	if err != nil {
		return nil, err
	}
	if alloc.Available().LessThan(requested) {
		return nil, insufficientBudget(alloc, requested)
	}

	before := alloc.ObligatedAmount
	alloc.ObligatedAmount = before.Add(requested)
	if err := e.budgets.SaveAmounts(ctx, alloc); err != nil {
		return nil, fmt.Errorf("failed to update budget allocation: %w", err)
	}
	if err := e.appendBudgetEntry(ctx, ec, alloc, model.BudgetEntryReserve, requested, before); err != nil {
		return nil, err
	}

	return SideEffect{
		"allocation_id":   alloc.ID.String(),
		"reserved":        requested.StringFixed(2),
		"obligated_after": alloc.ObligatedAmount.StringFixed(2),
		"available_after": alloc.Available().StringFixed(2),
	}, nil
}

func (e *effects) budgetRelease(ctx context.Context, ec *EffectContext) (SideEffect, error) {
	amount, err := requestedAmount(ec.Document)
	if err != nil {
		return nil, err
	}
	alloc, err := e.loadAllocation(ctx, ec.Document, true)
	if err != nil {
		return nil, err
	}
	if alloc.ObligatedAmount.LessThan(amount) {
		return nil, fmt.Errorf("allocation %s has only %s obligated, cannot release %s",
			alloc.Code, alloc.ObligatedAmount.StringFixed(2), amount.StringFixed(2))
	}

	before := alloc.ObligatedAmount
	alloc.ObligatedAmount = before.Sub(amount)
	if err := e.budgets.SaveAmounts(ctx, alloc); err != nil {
		return nil, fmt.Errorf("failed to update budget allocation: %w", err)
	}
	if err := e.appendBudgetEntry(ctx, ec, alloc, model.BudgetEntryRelease, amount, before); err != nil {
		return nil, err
	}

	return SideEffect{
		"allocation_id":   alloc.ID.String(),
		"released":        amount.StringFixed(2),
		"obligated_after": alloc.ObligatedAmount.StringFixed(2),
		"available_after": alloc.Available().StringFixed(2),
	}, nil
}

func (e *effects) appendBudgetEntry(ctx context.Context, ec *EffectContext, alloc *model.BudgetAllocation, entryType string, amount, before decimal.Decimal) error {
	docID := ec.Document.ID
	actorID := ec.Actor.UserID
	entry := &model.BudgetEntry{
		ID:              uuid.New(),
		AllocationID:    alloc.ID,
		DocumentID:      &docID,
		EntryType:       entryType,
		Amount:          amount,
		ObligatedBefore: before,
		ObligatedAfter:  alloc.ObligatedAmount,
		Note:            fmt.Sprintf("%s %s", ec.Transition.Name, ec.Document.TrackingID),
		CreatedBy:       &actorID,
		CreatedAt:       ec.Now,
	}
	if err := e.budgets.AppendEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to write budget entry: %w", err)
	}
	return nil
}
