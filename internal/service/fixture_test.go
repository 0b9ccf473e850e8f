package service

import (
	"context"
	"testing"
	"time"

	"procuretrack/internal/model"
	"procuretrack/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedEvent struct {
	Type    string
	Payload interface{}
}

type recordingNotifier struct {
	events []recordedEvent
}

func (n *recordingNotifier) Publish(eventType string, payload interface{}) {
	n.events = append(n.events, recordedEvent{Type: eventType, Payload: payload})
}

type countingCache struct {
	noopCache
	invalidations int
}

func (c *countingCache) Invalidate(context.Context) error {
	c.invalidations++
	return nil
}

// fixture wires the engine and the document service over one memStore with a
// seeded user per office role.
type fixture struct {
	t        *testing.T
	ctx      context.Context
	store    *memStore
	def      *workflow.Definition
	registry *EffectRegistry
	engine   TransitionService
	docs     DocumentService
	notifier *recordingNotifier
	cache    *countingCache
	actors   map[string]Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	def, err := workflow.Default()
	require.NoError(t, err)

	store := newMemStore()
	registry := NewEffectRegistry(def, store.Documents(), store.Audits(), store.Budgets(), store.Inventory())
	require.NoError(t, registry.Verify(def))

	notifier := &recordingNotifier{}
	cache := &countingCache{}
	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		store:    store,
		def:      def,
		registry: registry,
		notifier: notifier,
		cache:    cache,
		actors:   map[string]Actor{},
	}
	f.engine = NewTransitionService(def, store, store.Documents(), store.Audits(), store.Delegations(), registry, notifier, cache, zap.NewNop())
	f.docs = NewDocumentService(def, store, store.Documents(), store.Audits(), store.Budgets(), store.Inventory(), notifier, cache, zap.NewNop())

	for _, role := range model.AllRoles {
		u := &model.User{ID: uuid.New(), Username: "user-" + role, Email: role + "@school.test", Role: role}
		require.NoError(t, store.Users().Create(f.ctx, u))
		f.actors[role] = Actor{UserID: u.ID, Role: role}
	}
	return f
}

func (f *fixture) actor(role string) Actor {
	a, ok := f.actors[role]
	require.True(f.t, ok, "no seeded user for %s", role)
	return a
}

func (f *fixture) seedAllocation(code string, allocated, obligated string) *model.BudgetAllocation {
	a := &model.BudgetAllocation{
		ID:              uuid.New(),
		Code:            code,
		FiscalYear:      2026,
		Office:          model.RoleBudget,
		AllocatedAmount: decimal.RequireFromString(allocated),
		ObligatedAmount: decimal.RequireFromString(obligated),
	}
	require.NoError(f.t, f.store.Budgets().Create(f.ctx, a))
	return a
}

func (f *fixture) seedItem(sku string, stock int) *model.InventoryItem {
	item := &model.InventoryItem{ID: uuid.New(), SKU: sku, Name: sku, Unit: "ream", StockOnHand: stock}
	require.NoError(f.t, f.store.Inventory().CreateItem(f.ctx, item))
	return item
}

func (f *fixture) delegate(role string, to Actor, from, until time.Time) *model.Delegation {
	d := &model.Delegation{
		ID:              uuid.New(),
		DelegatorRole:   role,
		DelegatorUserID: f.actor(role).UserID,
		DelegateUserID:  to.UserID,
		ValidFrom:       from,
		ValidTo:         until,
	}
	require.NoError(f.t, f.store.Delegations().Create(f.ctx, d))
	return d
}

func (f *fixture) create(role string, req CreateDocumentRequest) *DocumentResponse {
	f.t.Helper()
	doc, err := f.docs.Create(f.ctx, f.actor(role), req)
	require.NoError(f.t, err)
	return doc
}

func (f *fixture) move(docID string, name string, actor Actor, remarks string) (*TransitionResult, error) {
	return f.engine.RequestTransition(f.ctx, TransitionRequest{
		DocumentID: uuid.MustParse(docID),
		Transition: name,
		Actor:      actor,
		Remarks:    remarks,
	})
}

// mustMove runs a transition as a user of the transition's own role.
func (f *fixture) mustMove(docID, name, role string) *TransitionResult {
	f.t.Helper()
	res, err := f.move(docID, name, f.actor(role), "")
	require.NoError(f.t, err, "%s as %s", name, role)
	return res
}

func (f *fixture) state(docID string) string {
	f.t.Helper()
	doc, err := f.docs.Get(f.ctx, uuid.MustParse(docID))
	require.NoError(f.t, err)
	return doc.CurrentState
}

func (f *fixture) auditCount(docID string) int {
	entries, err := f.store.Audits().ListByDocument(f.ctx, uuid.MustParse(docID))
	require.NoError(f.t, err)
	return len(entries)
}

func amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// approvedPPMP returns a PPMP in APPROVED charged to alloc.
func (f *fixture) approvedPPMP(alloc *model.BudgetAllocation, total string) *DocumentResponse {
	ppmp := f.create(model.RolePPMPManager, CreateDocumentRequest{
		DocumentType: model.DocPPMP,
		Title:        "Annual supplies plan",
		Amount:       amount(total),
		AllocationID: alloc.ID.String(),
	})
	f.mustMove(ppmp.ID, "submit", model.RolePPMPManager)
	f.mustMove(ppmp.ID, "approve_budget", model.RoleBudget)
	return ppmp
}

// purchaseRequest returns a submitted PR linked to ppmp.
func (f *fixture) purchaseRequest(alloc *model.BudgetAllocation, ppmp *DocumentResponse, total string) *DocumentResponse {
	req := CreateDocumentRequest{
		DocumentType: model.DocPurchaseRequest,
		Title:        "Printer ink",
		Amount:       amount(total),
		AllocationID: alloc.ID.String(),
	}
	if ppmp != nil {
		req.Links = []LinkRequest{{DocumentID: ppmp.ID, Relation: model.RelationPPMP}}
	}
	return f.create(model.RoleTeacher, req)
}

// reservedPR walks a PR up to BUDGET_RESERVED.
func (f *fixture) reservedPR(alloc *model.BudgetAllocation, total string) *DocumentResponse {
	ppmp := f.approvedPPMP(alloc, total)
	pr := f.purchaseRequest(alloc, ppmp, total)
	f.mustMove(pr.ID, "validate_ppmp", model.RolePPMPManager)
	f.mustMove(pr.ID, "check_budget", model.RoleBudget)
	f.mustMove(pr.ID, "reserve_budget", model.RoleBudget)
	return pr
}

func mustUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}
