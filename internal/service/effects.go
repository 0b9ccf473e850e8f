package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"procuretrack/internal/model"
	"procuretrack/internal/repository"
	"procuretrack/internal/workflow"
)

// Side-effect handler ids referenced by the workflow definition.
const (
	EffectStockCheck     = "stock.check"
	EffectStockIssue     = "stock.issue"
	EffectStockReceive   = "stock.receive"
	EffectPPMPValidate   = "ppmp.validate"
	EffectPPMPAmend      = "ppmp.amend"
	EffectBudgetCheck    = "budget.check"
	EffectBudgetVerify   = "budget.verify"
	EffectBudgetReserve  = "budget.reserve"
	EffectBudgetRelease  = "budget.release"
	EffectPOIssue        = "po.issue"
	EffectDVFinalize     = "dv.finalize"
	EffectChequeIssue    = "cheque.issue"
	EffectPRSettle       = "pr.settle"
)

// SideEffect is the record a handler returns; it is stored on the audit entry.
type SideEffect map[string]interface{}

// EffectContext is what a handler sees. Document is the row locked by the engine.
type EffectContext struct {
	Document   *model.Document
	Transition workflow.Transition
	Actor      Actor
	Remarks    string
	Now        time.Time
}

// EffectHandler applies the side effect of one transition inside the engine's
// transaction. Handlers must not change the document state; the engine owns it.
type EffectHandler interface {
	Handle(ctx context.Context, ec *EffectContext) (SideEffect, error)
}

// EffectFunc adapts a function to EffectHandler.
type EffectFunc func(ctx context.Context, ec *EffectContext) (SideEffect, error)

func (f EffectFunc) Handle(ctx context.Context, ec *EffectContext) (SideEffect, error) {
	return f(ctx, ec)
}

// EffectRegistry maps handler ids to handlers.
type EffectRegistry struct {
	handlers map[string]EffectHandler
}

// NewEffectRegistry returns a registry holding the built-in handlers.
func NewEffectRegistry(
	def *workflow.Definition,
	docs repository.DocumentRepository,
	audits repository.AuditEntryRepository,
	budgets repository.BudgetRepository,
	inventory repository.InventoryRepository,
) *EffectRegistry {
	e := &effects{
		docs:      docs,
		budgets:   budgets,
		inventory: inventory,
		factory:   &documentFactory{def: def, docs: docs, audits: audits, now: time.Now},
	}

	r := &EffectRegistry{handlers: make(map[string]EffectHandler)}
	r.Register(workflow.HandlerNone, EffectFunc(func(context.Context, *EffectContext) (SideEffect, error) {
		return nil, nil
	}))
	r.Register(EffectStockCheck, EffectFunc(e.stockCheck))
	r.Register(EffectStockIssue, EffectFunc(e.stockIssue))
	r.Register(EffectStockReceive, EffectFunc(e.stockReceive))
	r.Register(EffectBudgetCheck, EffectFunc(e.budgetCheck))
	r.Register(EffectBudgetVerify, EffectFunc(e.budgetVerify))
	r.Register(EffectBudgetReserve, EffectFunc(e.budgetReserve))
	r.Register(EffectBudgetRelease, EffectFunc(e.budgetRelease))
	r.Register(EffectPPMPValidate, EffectFunc(e.ppmpValidate))
	r.Register(EffectPPMPAmend, EffectFunc(e.ppmpAmend))
	r.Register(EffectPOIssue, EffectFunc(e.poIssue))
	r.Register(EffectDVFinalize, EffectFunc(e.dvFinalize))
	r.Register(EffectChequeIssue, EffectFunc(e.chequeIssue))
	r.Register(EffectPRSettle, EffectFunc(e.prSettle))
	return r
}

// Register binds id to h, replacing any previous handler.
func (r *EffectRegistry) Register(id string, h EffectHandler) {
	r.handlers[id] = h
}

// Lookup returns the handler registered for id.
func (r *EffectRegistry) Lookup(id string) (EffectHandler, bool) {
	h, ok := r.handlers[id]
	return h, ok
}

// Verify fails when the definition names a handler id nothing is registered for.
func (r *EffectRegistry) Verify(def *workflow.Definition) error {
	var missing []string
	for _, id := range def.HandlerIDs() {
		if _, ok := r.handlers[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("workflow definition references unregistered handlers: %v", missing)
	}
	return nil
}

// effects holds the dependencies shared by the built-in handlers.
type effects struct {
	docs      repository.DocumentRepository
	budgets   repository.BudgetRepository
	inventory repository.InventoryRepository
	factory   *documentFactory
}
