package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"procuretrack/internal/model"
	"procuretrack/internal/repository"
	"procuretrack/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireCode(t *testing.T, err error, code workflow.Code) *workflow.TransitionError {
	t.Helper()
	require.Error(t, err)
	te, ok := workflow.AsTransitionError(err)
	require.True(t, ok, "expected a transition error, got %v", err)
	require.Equal(t, code, te.Code, te.Message)
	return te
}

func TestSupplyRequestIssueDecrementsStock(t *testing.T) {
	f := newFixture(t)
	item := f.seedItem("BOND-A4", 25)

	sr := f.create(model.RoleTeacher, CreateDocumentRequest{
		DocumentType:    model.DocSupplyRequest,
		Title:           "Bond paper for grade 4",
		InventoryItemID: item.ID.String(),
		Quantity:        5,
	})
	assert.Equal(t, "SUBMITTED", sr.CurrentState)

	checked := f.mustMove(sr.ID, "mark_available", model.RoleSupply)
	assert.Equal(t, "AVAILABLE", checked.NewState)

	res := f.mustMove(sr.ID, "issue_ris", model.RoleSupply)
	assert.Equal(t, "AVAILABLE", res.FromState)
	assert.Equal(t, "ISSUED", res.NewState)
	assert.Equal(t, 3, res.Version)
	assert.Equal(t, 20, res.SideEffect["stock_after"])

	stored, err := f.store.Inventory().FindItemByID(f.ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, stored.StockOnHand)

	movements, total, err := f.store.Inventory().ListMovements(f.ctx, repository.MovementFilter{ItemID: &item.ID})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, model.MovementOut, movements[0].MovementType)
	assert.Equal(t, 25, movements[0].StockBefore)
	assert.Equal(t, 20, movements[0].StockAfter)
	require.NotNil(t, movements[0].DocumentID)
	assert.Equal(t, sr.ID, movements[0].DocumentID.String())

	doc, err := f.docs.Get(f.ctx, uuid.MustParse(sr.ID))
	require.NoError(t, err)
	assert.True(t, doc.Terminal)
	assert.Equal(t, risNumber(doc.TrackingID), doc.Details["ris_number"])
}

func TestSupplyRequestInsufficientStock(t *testing.T) {
	f := newFixture(t)
	item := f.seedItem("BOND-A4", 3)
	sr := f.create(model.RoleTeacher, CreateDocumentRequest{
		DocumentType:    model.DocSupplyRequest,
		Title:           "Bond paper",
		InventoryItemID: item.ID.String(),
		Quantity:        5,
	})

	_, err := f.move(sr.ID, "mark_available", f.actor(model.RoleSupply), "")
	te := requireCode(t, err, workflow.CodeSideEffectFailed)
	assert.Equal(t, "INSUFFICIENT_STOCK", te.Details["reason"])
	assert.Equal(t, 2, te.Details["shortfall"])
	assert.Equal(t, "SUBMITTED", f.state(sr.ID))

	res, err := f.move(sr.ID, "mark_not_available", f.actor(model.RoleSupply), "out of stock until June")
	require.NoError(t, err)
	assert.Equal(t, "NOT_AVAILABLE", res.NewState)
}

func TestReserveBudgetInsufficientLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	planAlloc := f.seedAllocation("MOOE-2026-PLAN", "100000.00", "0")
	alloc := f.seedAllocation("MOOE-2026-01", "100000.00", "65000.00")

	ppmp := f.approvedPPMP(planAlloc, "45000.00")
	pr := f.purchaseRequest(alloc, ppmp, "45000.00")
	f.mustMove(pr.ID, "validate_ppmp", model.RolePPMPManager)

	checked := f.mustMove(pr.ID, "check_budget", model.RoleBudget)
	assert.Equal(t, "BUDGET_CHECKED", checked.NewState)
	assert.Equal(t, false, checked.SideEffect["sufficient"])
	assert.Equal(t, "35000.00", checked.SideEffect["available"])

	before := f.auditCount(pr.ID)
	_, err := f.move(pr.ID, "reserve_budget", f.actor(model.RoleBudget), "")
	te := requireCode(t, err, workflow.CodeSideEffectFailed)
	assert.Equal(t, "INSUFFICIENT_BUDGET", te.Details["reason"])
	assert.Equal(t, "10000.00", te.Details["shortfall"])
	assert.True(t, errors.Is(err, workflow.ErrInsufficientBudget))

	assert.Equal(t, "BUDGET_CHECKED", f.state(pr.ID))
	assert.Equal(t, before, f.auditCount(pr.ID))

	stored, err := f.store.Budgets().FindByID(f.ctx, alloc.ID)
	require.NoError(t, err)
	assert.True(t, stored.ObligatedAmount.Equal(decimal.RequireFromString("65000")))

	res, err := f.move(pr.ID, "tag_pending_budget", f.actor(model.RoleBudget), "waiting for sub-allotment")
	require.NoError(t, err)
	assert.Equal(t, "PENDING_BUDGET", res.NewState)
}

func TestConcurrentApproveAndRejectOneWins(t *testing.T) {
	f := newFixture(t)
	alloc := f.seedAllocation("MOOE-2026-01", "100000.00", "0")
	pr := f.reservedPR(alloc, "20000.00")
	principal := f.actor(model.RolePrincipal)

	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, 2)
	requests := []struct{ name, remarks string }{
		{"approve", ""},
		{"reject", "not in the approved plan"},
	}
	for i, r := range requests {
		wg.Add(1)
		go func(i int, name, remarks string) {
			defer wg.Done()
			<-start
			_, errs[i] = f.move(pr.ID, name, principal, remarks)
		}(i, r.name, r.remarks)
	}
	close(start)
	wg.Wait()

	var succeeded, rejected int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		requireCode(t, err, workflow.CodeInvalidTransition)
		rejected++
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)
	assert.Contains(t, []string{"PRINCIPAL_APPROVED", "REJECTED"}, f.state(pr.ID))
}

func TestRejectRequiresRemarks(t *testing.T) {
	f := newFixture(t)
	alloc := f.seedAllocation("MOOE-2026-01", "100000.00", "0")
	pr := f.reservedPR(alloc, "20000.00")
	before := f.auditCount(pr.ID)

	_, err := f.move(pr.ID, "reject", f.actor(model.RolePrincipal), "   ")
	requireCode(t, err, workflow.CodeMissingRemarks)
	assert.Equal(t, "BUDGET_RESERVED", f.state(pr.ID))
	assert.Equal(t, before, f.auditCount(pr.ID))

	res, err := f.move(pr.ID, "reject", f.actor(model.RolePrincipal), "duplicate of an earlier request")
	require.NoError(t, err)
	assert.Equal(t, "REJECTED", res.NewState)
	assert.Equal(t, "20000.00", res.SideEffect["released"])

	stored, err := f.store.Budgets().FindByID(f.ctx, alloc.ID)
	require.NoError(t, err)
	assert.True(t, stored.ObligatedAmount.IsZero())
}

func TestRepeatedTransitionIsRejected(t *testing.T) {
	f := newFixture(t)
	alloc := f.seedAllocation("MOOE-2026-01", "100000.00", "0")
	pr := f.reservedPR(alloc, "20000.00")

	f.mustMove(pr.ID, "approve", model.RolePrincipal)
	count := f.auditCount(pr.ID)

	_, err := f.move(pr.ID, "approve", f.actor(model.RolePrincipal), "")
	requireCode(t, err, workflow.CodeInvalidTransition)
	assert.Equal(t, count, f.auditCount(pr.ID))
}

func TestUnauthorizedRole(t *testing.T) {
	f := newFixture(t)
	alloc := f.seedAllocation("MOOE-2026-01", "100000.00", "0")
	pr := f.reservedPR(alloc, "20000.00")

	_, err := f.move(pr.ID, "approve", f.actor(model.RoleTeacher), "")
	requireCode(t, err, workflow.CodeUnauthorized)
	assert.Equal(t, "BUDGET_RESERVED", f.state(pr.ID))
}

func TestInvalidTransitionCases(t *testing.T) {
	f := newFixture(t)
	alloc := f.seedAllocation("MOOE-2026-01", "100000.00", "0")
	pr := f.purchaseRequest(alloc, nil, "1000.00")

	tests := []struct {
		name       string
		transition string
	}{
		{"unknown name", "teleport"},
		{"wrong source state", "approve"},
		{"name of another type", "issue_ris"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.move(pr.ID, tt.transition, f.actor(model.RolePrincipal), "")
			requireCode(t, err, workflow.CodeInvalidTransition)
		})
	}

	stale := 7
	_, err := f.engine.RequestTransition(f.ctx, TransitionRequest{
		DocumentID:      uuid.MustParse(pr.ID),
		Transition:      "tag_pending_ppmp",
		Actor:           f.actor(model.RolePPMPManager),
		Remarks:         "no plan yet",
		ExpectedVersion: &stale,
	})
	requireCode(t, err, workflow.CodeInvalidTransition)
	assert.Equal(t, "SUBMITTED", f.state(pr.ID))
}

func TestUnknownDocument(t *testing.T) {
	f := newFixture(t)
	_, err := f.move(uuid.NewString(), "approve", f.actor(model.RolePrincipal), "")
	requireCode(t, err, workflow.CodeNotFound)

	_, err = f.engine.ValidTransitions(f.ctx, uuid.New(), f.actor(model.RolePrincipal))
	requireCode(t, err, workflow.CodeNotFound)
}

func TestValidatePPMPRequiresApprovedPlan(t *testing.T) {
	f := newFixture(t)
	alloc := f.seedAllocation("MOOE-2026-01", "100000.00", "0")
	draft := f.create(model.RolePPMPManager, CreateDocumentRequest{
		DocumentType: model.DocPPMP,
		Title:        "Draft plan",
		Amount:       amount("5000"),
		AllocationID: alloc.ID.String(),
	})
	pr := f.purchaseRequest(alloc, draft, "1000.00")

	_, err := f.move(pr.ID, "validate_ppmp", f.actor(model.RolePPMPManager), "")
	te := requireCode(t, err, workflow.CodeSideEffectFailed)
	assert.Equal(t, "LINKED_DOCUMENT_STATE", te.Details["reason"])
	assert.Equal(t, "DRAFT", te.Details["linked_state"])

	unlinked := f.purchaseRequest(alloc, nil, "1000.00")
	_, err = f.move(unlinked.ID, "validate_ppmp", f.actor(model.RolePPMPManager), "")
	te = requireCode(t, err, workflow.CodeSideEffectFailed)
	assert.Equal(t, "MISSING_LINK", te.Details["reason"])

	res, err := f.move(unlinked.ID, "tag_pending_ppmp", f.actor(model.RolePPMPManager), "item not in any plan")
	require.NoError(t, err)
	assert.Equal(t, "PENDING_PPMP", res.NewState)

	res, err = f.move(unlinked.ID, "resubmit", f.actor(model.RoleTeacher), "")
	require.NoError(t, err)
	assert.Equal(t, "SUBMITTED", res.NewState)
}

func TestDelegatedApproval(t *testing.T) {
	f := newFixture(t)
	alloc := f.seedAllocation("MOOE-2026-01", "100000.00", "0")
	pr := f.reservedPR(alloc, "20000.00")
	oic := f.actor(model.RoleBudget)
	now := time.Now()
	d := f.delegate(model.RolePrincipal, oic, now.Add(-time.Hour), now.Add(time.Hour))

	options, err := f.engine.ValidTransitions(f.ctx, uuid.MustParse(pr.ID), oic)
	require.NoError(t, err)
	names := map[string]bool{}
	for _, o := range options {
		names[o.Name] = o.ViaDelegation
	}
	assert.Equal(t, map[string]bool{"approve": true, "reject": true}, names)

	res, err := f.move(pr.ID, "approve", oic, "")
	require.NoError(t, err)
	assert.Equal(t, model.RolePrincipal, res.OnBehalfOfRole)

	history, err := f.docs.History(f.ctx, uuid.MustParse(pr.ID))
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, model.RoleBudget, last.ActorRole)
	assert.Equal(t, model.RolePrincipal, last.OnBehalfOfRole)

	entries, err := f.store.Audits().ListByDocument(f.ctx, uuid.MustParse(pr.ID))
	require.NoError(t, err)
	require.NotNil(t, entries[len(entries)-1].DelegationID)
	assert.Equal(t, d.ID, *entries[len(entries)-1].DelegationID)
}

func TestRevokedOrExpiredDelegationIsUnauthorized(t *testing.T) {
	f := newFixture(t)
	alloc := f.seedAllocation("MOOE-2026-01", "100000.00", "0")
	oic := f.actor(model.RoleBudget)
	now := time.Now()

	revoked := f.delegate(model.RolePrincipal, oic, now.Add(-time.Hour), now.Add(time.Hour))
	revokedAt := now.Add(-time.Minute)
	revoked.RevokedAt = &revokedAt
	require.NoError(t, f.store.Delegations().Save(f.ctx, revoked))

	f.delegate(model.RolePrincipal, oic, now.Add(-48*time.Hour), now.Add(-24*time.Hour))

	pr := f.reservedPR(alloc, "20000.00")
	_, err := f.move(pr.ID, "approve", oic, "")
	requireCode(t, err, workflow.CodeUnauthorized)
}

func TestPPMPAmendBumpsRevision(t *testing.T) {
	f := newFixture(t)
	alloc := f.seedAllocation("MOOE-2026-01", "100000.00", "0")
	ppmp := f.approvedPPMP(alloc, "30000.00")

	res := f.mustMove(ppmp.ID, "amend", model.RolePPMPManager)
	assert.Equal(t, "DRAFT", res.NewState)
	assert.Equal(t, 2, res.SideEffect["revision"])

	doc, err := f.docs.Get(f.ctx, uuid.MustParse(ppmp.ID))
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Revision)
	assert.Equal(t, 4, doc.Version)

	f.mustMove(ppmp.ID, "submit", model.RolePPMPManager)
	assert.Equal(t, "SUBMITTED_TO_BUDGET", f.state(ppmp.ID))
}

func TestHandlerFailureRollsBackWrites(t *testing.T) {
	f := newFixture(t)
	item := f.seedItem("CHALK", 10)
	sr := f.create(model.RoleTeacher, CreateDocumentRequest{
		DocumentType:    model.DocSupplyRequest,
		Title:           "Chalk",
		InventoryItemID: item.ID.String(),
		Quantity:        2,
	})

	inventory := f.store.Inventory()
	f.registry.Register(EffectStockCheck, EffectFunc(func(ctx context.Context, ec *EffectContext) (SideEffect, error) {
		locked, err := inventory.FindItemForUpdate(ctx, item.ID)
		require.NoError(t, err)
		locked.StockOnHand = 0
		require.NoError(t, inventory.SaveStock(ctx, locked))
		return nil, workflow.NewSideEffectError(workflow.ErrInsufficientStock, map[string]interface{}{"shortfall": 2}, "stock vanished")
	}))

	before := f.auditCount(sr.ID)
	_, err := f.move(sr.ID, "mark_available", f.actor(model.RoleSupply), "")
	te := requireCode(t, err, workflow.CodeSideEffectFailed)
	assert.Equal(t, "INSUFFICIENT_STOCK", te.Details["reason"])

	stored, err := inventory.FindItemByID(f.ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, stored.StockOnHand)
	assert.Equal(t, "SUBMITTED", f.state(sr.ID))
	assert.Equal(t, before, f.auditCount(sr.ID))
}

func TestHandlerInfrastructureErrorIsNotSideEffectFailure(t *testing.T) {
	f := newFixture(t)
	item := f.seedItem("CHALK", 10)
	sr := f.create(model.RoleTeacher, CreateDocumentRequest{
		DocumentType:    model.DocSupplyRequest,
		Title:           "Chalk",
		InventoryItemID: item.ID.String(),
		Quantity:        2,
	})

	inventory := f.store.Inventory()
	dbErr := errors.New("pq: connection reset by peer")
	f.registry.Register(EffectStockCheck, EffectFunc(func(ctx context.Context, ec *EffectContext) (SideEffect, error) {
		locked, err := inventory.FindItemForUpdate(ctx, item.ID)
		require.NoError(t, err)
		locked.StockOnHand = 0
		require.NoError(t, inventory.SaveStock(ctx, locked))
		return nil, fmt.Errorf("failed to update stock: %w", dbErr)
	}))

	before := f.auditCount(sr.ID)
	_, err := f.move(sr.ID, "mark_available", f.actor(model.RoleSupply), "")
	require.Error(t, err)
	_, isTransitionErr := workflow.AsTransitionError(err)
	assert.False(t, isTransitionErr)
	assert.True(t, errors.Is(err, dbErr))

	stored, err := inventory.FindItemByID(f.ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, stored.StockOnHand)
	assert.Equal(t, "SUBMITTED", f.state(sr.ID))
	assert.Equal(t, before, f.auditCount(sr.ID))
}

func TestDocumentWithoutQuantityFailsAsIncomplete(t *testing.T) {
	f := newFixture(t)
	item := f.seedItem("CHALK", 10)
	sr := f.create(model.RoleTeacher, CreateDocumentRequest{
		DocumentType:    model.DocSupplyRequest,
		Title:           "Chalk",
		InventoryItemID: item.ID.String(),
		Quantity:        2,
	})
	id := uuid.MustParse(sr.ID)
	stored := f.store.docs[id]
	stored.Quantity = 0
	f.store.docs[id] = stored

	_, err := f.move(sr.ID, "mark_available", f.actor(model.RoleSupply), "")
	te := requireCode(t, err, workflow.CodeSideEffectFailed)
	assert.Equal(t, "INCOMPLETE_DOCUMENT", te.Details["reason"])
	assert.Equal(t, "quantity", te.Details["field"])
}

func TestLockTimeoutIsContention(t *testing.T) {
	f := newFixture(t)
	item := f.seedItem("CHALK", 10)
	sr := f.create(model.RoleTeacher, CreateDocumentRequest{
		DocumentType:    model.DocSupplyRequest,
		Title:           "Chalk",
		InventoryItemID: item.ID.String(),
		Quantity:        2,
	})

	f.store.lockErr = fmt.Errorf("%w: canceling statement due to lock timeout", repository.ErrLockTimeout)
	_, err := f.move(sr.ID, "mark_available", f.actor(model.RoleSupply), "")
	te := requireCode(t, err, workflow.CodeContention)
	assert.True(t, te.Retryable())

	f.store.lockErr = nil
	res := f.mustMove(sr.ID, "mark_available", model.RoleSupply)
	assert.Equal(t, "AVAILABLE", res.NewState)
}

func TestStaleStateWriteIsInvalidTransition(t *testing.T) {
	f := newFixture(t)
	item := f.seedItem("CHALK", 10)
	sr := f.create(model.RoleTeacher, CreateDocumentRequest{
		DocumentType:    model.DocSupplyRequest,
		Title:           "Chalk",
		InventoryItemID: item.ID.String(),
		Quantity:        2,
	})
	before := f.auditCount(sr.ID)
	events := len(f.notifier.events)

	f.store.staleWrites = true
	_, err := f.move(sr.ID, "mark_available", f.actor(model.RoleSupply), "")
	te := requireCode(t, err, workflow.CodeInvalidTransition)
	assert.False(t, te.Retryable())
	assert.Equal(t, before, f.auditCount(sr.ID))
	assert.Len(t, f.notifier.events, events)

	f.store.staleWrites = false
	assert.Equal(t, "SUBMITTED", f.state(sr.ID))
	f.mustMove(sr.ID, "mark_available", model.RoleSupply)
}

func TestValidTransitionsForRoleAndTerminalState(t *testing.T) {
	f := newFixture(t)
	item := f.seedItem("CHALK", 10)
	sr := f.create(model.RoleTeacher, CreateDocumentRequest{
		DocumentType:    model.DocSupplyRequest,
		Title:           "Chalk",
		InventoryItemID: item.ID.String(),
		Quantity:        2,
	})
	id := uuid.MustParse(sr.ID)

	supply, err := f.engine.ValidTransitions(f.ctx, id, f.actor(model.RoleSupply))
	require.NoError(t, err)
	require.Len(t, supply, 2)
	assert.Equal(t, "mark_available", supply[0].Name)
	assert.False(t, supply[0].RequiresRemarks)
	assert.Equal(t, "mark_not_available", supply[1].Name)
	assert.True(t, supply[1].RequiresRemarks)

	teacher, err := f.engine.ValidTransitions(f.ctx, id, f.actor(model.RoleTeacher))
	require.NoError(t, err)
	require.Len(t, teacher, 1)
	assert.Equal(t, "cancel", teacher[0].Name)

	_, err = f.move(sr.ID, "cancel", f.actor(model.RoleTeacher), "ordered by mistake")
	require.NoError(t, err)

	for _, role := range model.AllRoles {
		options, err := f.engine.ValidTransitions(f.ctx, id, f.actor(role))
		require.NoError(t, err)
		assert.Empty(t, options, role)
	}
}

func TestCommittedTransitionNotifiesAndInvalidatesCache(t *testing.T) {
	f := newFixture(t)
	item := f.seedItem("CHALK", 10)
	sr := f.create(model.RoleTeacher, CreateDocumentRequest{
		DocumentType:    model.DocSupplyRequest,
		Title:           "Chalk",
		InventoryItemID: item.ID.String(),
		Quantity:        2,
	})
	events, invalidations := len(f.notifier.events), f.cache.invalidations

	f.mustMove(sr.ID, "mark_available", model.RoleSupply)
	require.Len(t, f.notifier.events, events+1)
	last := f.notifier.events[len(f.notifier.events)-1]
	assert.Equal(t, EventDocumentTransitioned, last.Type)
	assert.Equal(t, "AVAILABLE", last.Payload.(map[string]interface{})["to_state"])
	assert.Equal(t, invalidations+1, f.cache.invalidations)

	_, err := f.move(sr.ID, "issue_ris", f.actor(model.RoleTeacher), "")
	require.Error(t, err)
	assert.Len(t, f.notifier.events, events+1)
}

func TestPurchaseRequestToPaid(t *testing.T) {
	f := newFixture(t)
	alloc := f.seedAllocation("MOOE-2026-01", "150000.00", "0")
	pr := f.reservedPR(alloc, "20000.00")

	f.mustMove(pr.ID, "approve", model.RolePrincipal)
	f.mustMove(pr.ID, "start_procurement", model.RoleProcurement)
	issued := f.mustMove(pr.ID, "issue_po", model.RoleProcurement)
	assert.Equal(t, "DV_PROCESSING", issued.NewState)

	poID, ok := issued.SideEffect["purchase_order_id"].(string)
	require.True(t, ok)
	po, err := f.docs.Get(f.ctx, uuid.MustParse(poID))
	require.NoError(t, err)
	assert.Equal(t, model.DocPurchaseOrder, po.DocumentType)
	assert.Equal(t, "ISSUED", po.CurrentState)
	require.Len(t, po.Links, 1)
	assert.Equal(t, pr.ID, po.Links[0].LinkedDocumentID)

	_, err = f.move(pr.ID, "mark_paid", f.actor(model.RolePayment), "")
	te := requireCode(t, err, workflow.CodeSideEffectFailed)
	assert.Equal(t, "MISSING_LINK", te.Details["reason"])

	_, err = f.docs.Create(f.ctx, f.actor(model.RoleBookkeeper), CreateDocumentRequest{
		DocumentType: model.DocDisbursementVoucher,
		Title:        "DV for printer ink",
		Amount:       amount("20000.00"),
	})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	dv := f.create(model.RoleBookkeeper, CreateDocumentRequest{
		DocumentType: model.DocDisbursementVoucher,
		Title:        "DV for printer ink",
		Amount:       amount("20000.00"),
		Links:        []LinkRequest{{DocumentID: pr.ID, Relation: model.RelationPurchaseRequest}},
	})
	f.mustMove(dv.ID, "finalize", model.RoleBookkeeper)
	f.mustMove(dv.ID, "sign", model.RolePrincipal)

	_, err = f.move(pr.ID, "mark_paid", f.actor(model.RolePayment), "")
	te = requireCode(t, err, workflow.CodeSideEffectFailed)
	assert.Equal(t, "LINKED_DOCUMENT_STATE", te.Details["reason"])

	f.mustMove(dv.ID, "release_budget", model.RoleBudget)
	cheque := f.mustMove(dv.ID, "issue_cheque", model.RolePayment)
	assert.NotEmpty(t, cheque.SideEffect["cheque_tracking_id"])

	paid := f.mustMove(pr.ID, "mark_paid", model.RolePayment)
	assert.Equal(t, "PAID", paid.NewState)
	assert.Equal(t, dv.ID, paid.SideEffect["disbursement_voucher_id"])

	history, err := f.docs.History(f.ctx, uuid.MustParse(pr.ID))
	require.NoError(t, err)
	var path []string
	for _, h := range history {
		path = append(path, h.ToState)
	}
	assert.Equal(t, []string{
		"SUBMITTED", "PPMP_VALIDATED", "BUDGET_CHECKED", "BUDGET_RESERVED",
		"PRINCIPAL_APPROVED", "UNDER_PROCUREMENT", "DV_PROCESSING", "PAID",
	}, path)
	for i := 1; i < len(history); i++ {
		assert.Equal(t, history[i-1].ToState, history[i].FromState)
	}
}

func TestVoucherCannotExceedPurchaseRequest(t *testing.T) {
	f := newFixture(t)
	alloc := f.seedAllocation("MOOE-2026-01", "150000.00", "0")
	pr := f.reservedPR(alloc, "20000.00")
	f.mustMove(pr.ID, "approve", model.RolePrincipal)
	f.mustMove(pr.ID, "start_procurement", model.RoleProcurement)
	f.mustMove(pr.ID, "issue_po", model.RoleProcurement)

	dv := f.create(model.RoleBookkeeper, CreateDocumentRequest{
		DocumentType: model.DocDisbursementVoucher,
		Title:        "Overstated voucher",
		Amount:       amount("25000.00"),
		Links:        []LinkRequest{{DocumentID: pr.ID, Relation: model.RelationPurchaseRequest}},
	})
	_, err := f.move(dv.ID, "finalize", f.actor(model.RoleBookkeeper), "")
	te := requireCode(t, err, workflow.CodeSideEffectFailed)
	assert.Equal(t, "AMOUNT_EXCEEDED", te.Details["reason"])
	assert.Equal(t, "DRAFT", f.state(dv.ID))
}

func TestVouchersTogetherCannotExceedPurchaseRequest(t *testing.T) {
	f := newFixture(t)
	alloc := f.seedAllocation("MOOE-2026-01", "150000.00", "0")
	pr := f.reservedPR(alloc, "20000.00")
	f.mustMove(pr.ID, "approve", model.RolePrincipal)
	f.mustMove(pr.ID, "start_procurement", model.RoleProcurement)
	f.mustMove(pr.ID, "issue_po", model.RoleProcurement)

	voucher := func(total string) *DocumentResponse {
		return f.create(model.RoleBookkeeper, CreateDocumentRequest{
			DocumentType: model.DocDisbursementVoucher,
			Title:        "DV for printer ink",
			Amount:       amount(total),
			Links:        []LinkRequest{{DocumentID: pr.ID, Relation: model.RelationPurchaseRequest}},
		})
	}

	first := voucher("12000.00")
	second := voucher("10000.00")
	f.mustMove(first.ID, "finalize", model.RoleBookkeeper)

	_, err := f.move(second.ID, "finalize", f.actor(model.RoleBookkeeper), "")
	te := requireCode(t, err, workflow.CodeSideEffectFailed)
	assert.Equal(t, "AMOUNT_EXCEEDED", te.Details["reason"])
	assert.Equal(t, "12000.00", te.Details["committed"])
	assert.Equal(t, "8000.00", te.Details["remaining"])
	assert.Equal(t, "DRAFT", f.state(second.ID))

	// The unfinalized draft does not count against the request.
	rest := voucher("8000.00")
	res := f.mustMove(rest.ID, "finalize", model.RoleBookkeeper)
	assert.Equal(t, "20000.00", res.SideEffect["committed"])

	for _, dv := range []*DocumentResponse{first, rest} {
		f.mustMove(dv.ID, "sign", model.RolePrincipal)
		f.mustMove(dv.ID, "release_budget", model.RoleBudget)
		f.mustMove(dv.ID, "issue_cheque", model.RolePayment)
	}

	paid := decimal.Zero
	cheques := 0
	for _, d := range f.store.docs {
		if d.DocumentType == model.DocCheque {
			cheques++
			paid = paid.Add(*d.Amount)
		}
	}
	assert.Equal(t, 2, cheques)
	assert.Equal(t, "20000.00", paid.StringFixed(2))
}

func TestPurchaseRequestsCannotOverdrawPlan(t *testing.T) {
	f := newFixture(t)
	alloc := f.seedAllocation("MOOE-2026-01", "100000.00", "0")
	ppmp := f.approvedPPMP(alloc, "10000.00")

	first := f.purchaseRequest(alloc, ppmp, "9000.00")
	second := f.purchaseRequest(alloc, ppmp, "9000.00")
	res := f.mustMove(first.ID, "validate_ppmp", model.RolePPMPManager)
	assert.Equal(t, "9000.00", res.SideEffect["ppmp_committed"])

	_, err := f.move(second.ID, "validate_ppmp", f.actor(model.RolePPMPManager), "")
	te := requireCode(t, err, workflow.CodeSideEffectFailed)
	assert.Equal(t, "AMOUNT_EXCEEDED", te.Details["reason"])
	assert.Equal(t, "1000.00", te.Details["remaining"])
	assert.Equal(t, ppmp.TrackingID, te.Details["linked_tracking_id"])
	assert.Equal(t, "SUBMITTED", f.state(second.ID))

	// A request that is still waiting on validation does not reserve plan room.
	fits := f.purchaseRequest(alloc, ppmp, "1000.00")
	f.mustMove(fits.ID, "validate_ppmp", model.RolePPMPManager)
}
