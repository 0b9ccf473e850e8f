package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"procuretrack/internal/model"
	"procuretrack/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// memStore is an in-memory stand-in for the postgres repositories. Transactions
// are serialized and roll back every table on error.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	docs        map[uuid.UUID]model.Document
	links       []model.DocumentLink
	audits      []model.AuditEntry
	activity    []model.ActivityLog
	allocations map[uuid.UUID]model.BudgetAllocation
	entries     []model.BudgetEntry
	items       map[uuid.UUID]model.InventoryItem
	movements   []model.StockMovement
	delegations map[uuid.UUID]model.Delegation
	users       map[uuid.UUID]model.User

	// lockErr is returned by every FindByIDForUpdate / FindItemForUpdate call when set.
	lockErr error
	// staleWrites makes UpdateState behave as if another writer committed first.
	staleWrites bool
}

func newMemStore() *memStore {
	return &memStore{
		docs:        map[uuid.UUID]model.Document{},
		allocations: map[uuid.UUID]model.BudgetAllocation{},
		items:       map[uuid.UUID]model.InventoryItem{},
		delegations: map[uuid.UUID]model.Delegation{},
		users:       map[uuid.UUID]model.User{},
	}
}

type memTxKey struct{}

type memSnapshot struct {
	docs        map[uuid.UUID]model.Document
	links       []model.DocumentLink
	audits      []model.AuditEntry
	activity    []model.ActivityLog
	allocations map[uuid.UUID]model.BudgetAllocation
	entries     []model.BudgetEntry
	items       map[uuid.UUID]model.InventoryItem
	movements   []model.StockMovement
	delegations map[uuid.UUID]model.Delegation
	users       map[uuid.UUID]model.User
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memSnapshot{
		docs:        copyMap(s.docs),
		links:       append([]model.DocumentLink(nil), s.links...),
		audits:      append([]model.AuditEntry(nil), s.audits...),
		activity:    append([]model.ActivityLog(nil), s.activity...),
		allocations: copyMap(s.allocations),
		entries:     append([]model.BudgetEntry(nil), s.entries...),
		items:       copyMap(s.items),
		movements:   append([]model.StockMovement(nil), s.movements...),
		delegations: copyMap(s.delegations),
		users:       copyMap(s.users),
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = snap.docs
	s.links = snap.links
	s.audits = snap.audits
	s.activity = snap.activity
	s.allocations = snap.allocations
	s.entries = snap.entries
	s.items = snap.items
	s.movements = snap.movements
	s.delegations = snap.delegations
	s.users = snap.users
}

// --- TransactionManager ---

func (s *memStore) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// --- views used by the repository fakes ---

type memDocs struct{ *memStore }
type memAudits struct{ *memStore }
type memActivity struct{ *memStore }
type memBudgets struct{ *memStore }
type memInventory struct{ *memStore }
type memDelegations struct{ *memStore }
type memUsers struct{ *memStore }

func (s *memStore) Documents() repository.DocumentRepository     { return memDocs{s} }
func (s *memStore) Audits() repository.AuditEntryRepository      { return memAudits{s} }
func (s *memStore) Activity() repository.ActivityLogRepository   { return memActivity{s} }
func (s *memStore) Budgets() repository.BudgetRepository         { return memBudgets{s} }
func (s *memStore) Inventory() repository.InventoryRepository    { return memInventory{s} }
func (s *memStore) Delegations() repository.DelegationRepository { return memDelegations{s} }
func (s *memStore) Users() repository.UserRepository             { return memUsers{s} }

func paginate[T any](rows []T, offset, limit int) []T {
	if offset >= len(rows) {
		return []T{}
	}
	end := len(rows)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return rows[offset:end]
}

// --- DocumentRepository ---

func (r memDocs) withLinks(doc model.Document) model.Document {
	doc.Links = nil
	for _, l := range r.links {
		if l.DocumentID == doc.ID {
			doc.Links = append(doc.Links, l)
		}
	}
	sort.Slice(doc.Links, func(i, j int) bool { return doc.Links[i].Position < doc.Links[j].Position })
	return doc
}

func (r memDocs) Create(_ context.Context, doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.docs {
		if d.TrackingID == doc.TrackingID {
			return fmt.Errorf("duplicate tracking id %s", doc.TrackingID)
		}
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	stored := *doc
	stored.Links = nil
	r.docs[doc.ID] = stored
	return nil
}

func (r memDocs) FindByID(_ context.Context, id uuid.UUID) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	d = r.withLinks(d)
	return &d, nil
}

func (r memDocs) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	if r.lockErr != nil {
		return nil, r.lockErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	d.Links = nil
	return &d, nil
}

func (r memDocs) matches(d model.Document, f repository.DocumentFilter) bool {
	if f.DocumentType != "" && d.DocumentType != f.DocumentType {
		return false
	}
	if f.State != "" && d.CurrentState != f.State {
		return false
	}
	if f.OwnerOffice != "" && d.OwnerOffice != f.OwnerOffice {
		return false
	}
	if f.CreatedBy != nil && d.CreatedBy != *f.CreatedBy {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(d.TrackingID), q) && !strings.Contains(strings.ToLower(d.Title), q) {
			return false
		}
	}
	if len(f.Stages) > 0 {
		hit := false
		for _, st := range f.Stages {
			if st.DocumentType == d.DocumentType && st.State == d.CurrentState {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

func (r memDocs) List(_ context.Context, f repository.DocumentFilter) ([]model.Document, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var rows []model.Document
	for _, d := range r.docs {
		if r.matches(d, f) {
			rows = append(rows, r.withLinks(d))
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].TrackingID > rows[j].TrackingID
		}
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	return paginate(rows, f.Offset, limit), int64(len(rows)), nil
}

func (r memDocs) UpdateState(_ context.Context, doc *model.Document, toState string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[doc.ID]
	if !ok || r.staleWrites || d.CurrentState != doc.CurrentState || d.Version != doc.Version {
		return fmt.Errorf("%w: %s", repository.ErrStaleState, doc.TrackingID)
	}
	d.CurrentState = toState
	d.Version++
	d.UpdatedAt = time.Now()
	r.docs[doc.ID] = d

	doc.CurrentState = d.CurrentState
	doc.Version = d.Version
	doc.UpdatedAt = d.UpdatedAt
	return nil
}

func (r memDocs) UpdateContent(_ context.Context, doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[doc.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	d.Revision = doc.Revision
	d.Details = doc.Details
	d.Amount = doc.Amount
	d.UpdatedAt = time.Now()
	r.docs[doc.ID] = d
	return nil
}

func (r memDocs) AddLink(_ context.Context, link *model.DocumentLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}
	r.links = append(r.links, *link)
	return nil
}

func (r memDocs) Links(_ context.Context, documentID uuid.UUID) ([]model.DocumentLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.withLinks(model.Document{ID: documentID})
	return d.Links, nil
}

func (r memDocs) Referencing(_ context.Context, linkedID uuid.UUID, documentType string) ([]model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Document
	for _, l := range r.links {
		if l.LinkedDocumentID != linkedID {
			continue
		}
		if d, ok := r.docs[l.DocumentID]; ok && d.DocumentType == documentType {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrackingID < out[j].TrackingID })
	return out, nil
}

func (r memDocs) NextSequence(_ context.Context, prefix string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, d := range r.docs {
		if strings.HasPrefix(d.TrackingID, prefix) {
			n++
		}
	}
	return n + 1, nil
}

func (r memDocs) countWhere(keep func(model.Document) bool) []model.StateCount {
	counts := map[model.Stage]int64{}
	for _, d := range r.docs {
		if keep(d) {
			counts[model.Stage{DocumentType: d.DocumentType, State: d.CurrentState}]++
		}
	}
	out := make([]model.StateCount, 0, len(counts))
	for st, n := range counts {
		out = append(out, model.StateCount{DocumentType: st.DocumentType, State: st.State, Total: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DocumentType == out[j].DocumentType {
			return out[i].State < out[j].State
		}
		return out[i].DocumentType < out[j].DocumentType
	})
	return out
}

func (r memDocs) CountByStage(_ context.Context) ([]model.StateCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.countWhere(func(model.Document) bool { return true }), nil
}

func (r memDocs) CountStaleInStages(_ context.Context, stages []model.Stage, updatedBefore time.Time) ([]model.StateCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := map[model.Stage]bool{}
	for _, st := range stages {
		want[st] = true
	}
	return r.countWhere(func(d model.Document) bool {
		return want[model.Stage{DocumentType: d.DocumentType, State: d.CurrentState}] && d.UpdatedAt.Before(updatedBefore)
	}), nil
}

func (r memDocs) CreatedTrend(_ context.Context, documentType, groupBy string, start, end time.Time) ([]model.TrendPoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[time.Time]int64{}
	for _, d := range r.docs {
		if documentType != "" && d.DocumentType != documentType {
			continue
		}
		if d.CreatedAt.Before(start) || d.CreatedAt.After(end) {
			continue
		}
		counts[truncatePeriod(d.CreatedAt, groupBy)]++
	}
	out := make([]model.TrendPoint, 0, len(counts))
	for p, n := range counts {
		out = append(out, model.TrendPoint{Period: p, Total: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period.Before(out[j].Period) })
	return out, nil
}

// truncatePeriod mirrors DATE_TRUNC: weeks start on Monday.
func truncatePeriod(t time.Time, groupBy string) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	switch groupBy {
	case "month":
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	case "week":
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	default:
		return day
	}
}

// --- AuditEntryRepository ---

func (r memAudits) Append(_ context.Context, entry *model.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	r.audits = append(r.audits, *entry)
	return nil
}

func (r memAudits) ListByDocument(_ context.Context, documentID uuid.UUID) ([]model.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.AuditEntry
	for _, e := range r.audits {
		if e.DocumentID == documentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r memAudits) List(_ context.Context, f repository.AuditFilter) ([]model.AuditEntry, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.AuditEntry
	for i := len(r.audits) - 1; i >= 0; i-- {
		e := r.audits[i]
		if f.DocumentID != nil && e.DocumentID != *f.DocumentID {
			continue
		}
		if f.ActorUserID != nil && e.ActorUserID != *f.ActorUserID {
			continue
		}
		if f.Transition != "" && e.Transition != f.Transition {
			continue
		}
		out = append(out, e)
	}
	return paginate(out, f.Offset, f.Limit), int64(len(out)), nil
}

// --- ActivityLogRepository ---

func (r memActivity) Log(_ context.Context, entry *model.ActivityLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	r.activity = append(r.activity, *entry)
	return nil
}

func (r memActivity) List(_ context.Context, offset, limit int) ([]model.ActivityLog, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.ActivityLog, 0, len(r.activity))
	for i := len(r.activity) - 1; i >= 0; i-- {
		out = append(out, r.activity[i])
	}
	return paginate(out, offset, limit), int64(len(out)), nil
}

// --- BudgetRepository ---

func (r memBudgets) Create(_ context.Context, a *model.BudgetAllocation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.allocations {
		if existing.Code == a.Code {
			return fmt.Errorf("duplicate allocation code %s", a.Code)
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	r.allocations[a.ID] = *a
	return nil
}

func (r memBudgets) FindByID(_ context.Context, id uuid.UUID) (*model.BudgetAllocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.allocations[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &a, nil
}

func (r memBudgets) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.BudgetAllocation, error) {
	if r.lockErr != nil {
		return nil, r.lockErr
	}
	return r.FindByID(ctx, id)
}

func (r memBudgets) FindByCode(_ context.Context, code string) (*model.BudgetAllocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.allocations {
		if a.Code == code {
			return &a, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memBudgets) List(_ context.Context, fiscalYear int) ([]model.BudgetAllocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.BudgetAllocation
	for _, a := range r.allocations {
		if fiscalYear == 0 || a.FiscalYear == fiscalYear {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r memBudgets) SaveAmounts(_ context.Context, a *model.BudgetAllocation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.allocations[a.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.AllocatedAmount = a.AllocatedAmount
	stored.ObligatedAmount = a.ObligatedAmount
	r.allocations[a.ID] = stored
	return nil
}

func (r memBudgets) AppendEntry(_ context.Context, e *model.BudgetEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	r.entries = append(r.entries, *e)
	return nil
}

func (r memBudgets) ListEntries(_ context.Context, allocationID uuid.UUID) ([]model.BudgetEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.BudgetEntry
	for _, e := range r.entries {
		if e.AllocationID == allocationID {
			out = append(out, e)
		}
	}
	return out, nil
}

// --- InventoryRepository ---

func (r memInventory) CreateItem(_ context.Context, item *model.InventoryItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.items {
		if existing.SKU == item.SKU {
			return fmt.Errorf("duplicate sku %s", item.SKU)
		}
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	r.items[item.ID] = *item
	return nil
}

func (r memInventory) FindItemByID(_ context.Context, id uuid.UUID) (*model.InventoryItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &item, nil
}

func (r memInventory) FindItemForUpdate(ctx context.Context, id uuid.UUID) (*model.InventoryItem, error) {
	if r.lockErr != nil {
		return nil, r.lockErr
	}
	return r.FindItemByID(ctx, id)
}

func (r memInventory) FindItemBySKU(_ context.Context, sku string) (*model.InventoryItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.items {
		if item.SKU == sku {
			return &item, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memInventory) ListItems(_ context.Context, search string, offset, limit int) ([]model.InventoryItem, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := strings.ToLower(search)
	var out []model.InventoryItem
	for _, item := range r.items {
		if q == "" || strings.Contains(strings.ToLower(item.SKU), q) || strings.Contains(strings.ToLower(item.Name), q) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return paginate(out, offset, limit), int64(len(out)), nil
}

func (r memInventory) SaveStock(_ context.Context, item *model.InventoryItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[item.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.StockOnHand = item.StockOnHand
	r.items[item.ID] = stored
	return nil
}

func (r memInventory) AppendMovement(_ context.Context, m *model.StockMovement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	r.movements = append(r.movements, *m)
	return nil
}

func (r memInventory) ListMovements(_ context.Context, f repository.MovementFilter) ([]model.StockMovement, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.StockMovement
	for i := len(r.movements) - 1; i >= 0; i-- {
		m := r.movements[i]
		if f.ItemID != nil && m.ItemID != *f.ItemID {
			continue
		}
		if f.DocumentID != nil && (m.DocumentID == nil || *m.DocumentID != *f.DocumentID) {
			continue
		}
		out = append(out, m)
	}
	return paginate(out, f.Offset, f.Limit), int64(len(out)), nil
}

// --- DelegationRepository ---

func (r memDelegations) Create(_ context.Context, d *model.Delegation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	r.delegations[d.ID] = *d
	return nil
}

func (r memDelegations) FindByIDForUpdate(_ context.Context, id uuid.UUID) (*model.Delegation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.delegations[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &d, nil
}

func (r memDelegations) FindActive(_ context.Context, role string, delegateID uuid.UUID, at time.Time) (*model.Delegation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.delegations {
		if d.DelegatorRole == role && d.DelegateUserID == delegateID && d.ActiveAt(at) {
			return &d, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memDelegations) ListActiveForDelegate(_ context.Context, delegateID uuid.UUID, at time.Time) ([]model.Delegation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Delegation
	for _, d := range r.delegations {
		if d.DelegateUserID == delegateID && d.ActiveAt(at) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r memDelegations) List(_ context.Context, f repository.DelegationFilter) ([]model.Delegation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Delegation
	for _, d := range r.delegations {
		if f.DelegatorRole != "" && d.DelegatorRole != f.DelegatorRole {
			continue
		}
		if f.DelegateUserID != nil && d.DelegateUserID != *f.DelegateUserID {
			continue
		}
		if f.ActiveAt != nil && !d.ActiveAt(*f.ActiveAt) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ValidFrom.After(out[j].ValidFrom) })
	return out, nil
}

func (r memDelegations) Save(_ context.Context, d *model.Delegation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delegations[d.ID] = *d
	return nil
}

// --- UserRepository ---

func (r memUsers) Create(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return fmt.Errorf("duplicate user %s", u.Username)
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	r.users[u.ID] = *u
	return nil
}

func (r memUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memUsers) GetByUsername(_ context.Context, username string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memUsers) List(_ context.Context, role string, offset, limit int) ([]model.User, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.User
	for _, u := range r.users {
		if role == "" || u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return paginate(out, offset, limit), int64(len(out)), nil
}

func (r memUsers) Update(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	r.users[u.ID] = *u
	return nil
}
