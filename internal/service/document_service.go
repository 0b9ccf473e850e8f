package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"procuretrack/internal/model"
	"procuretrack/internal/repository"
	"procuretrack/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// --- DTOs ---

type LinkRequest struct {
	DocumentID string `json:"document_id" binding:"required,uuid"`
	Relation   string `json:"relation" binding:"required"`
}

type CreateDocumentRequest struct {
	DocumentType    string                 `json:"document_type" binding:"required"`
	Title           string                 `json:"title" binding:"required,max=255"`
	Amount          *decimal.Decimal       `json:"amount" swaggertype:"string"`
	AllocationID    string                 `json:"allocation_id" binding:"omitempty,uuid"`
	InventoryItemID string                 `json:"inventory_item_id" binding:"omitempty,uuid"`
	Quantity        int                    `json:"quantity" binding:"omitempty,min=1"`
	Links           []LinkRequest          `json:"links" binding:"omitempty,dive"`
	Details         map[string]interface{} `json:"details"`
	Remarks         string                 `json:"remarks" binding:"max=2000"`
}

type DocumentFilter struct {
	DocumentType string
	State        string
	OwnerOffice  string
	Mine         bool
	Search       string
	Page         int
	Limit        int
}

type LinkResponse struct {
	LinkedDocumentID string `json:"linked_document_id"`
	Relation         string `json:"relation"`
	Position         int    `json:"position"`
}

type DocumentResponse struct {
	ID              string                 `json:"id"`
	DocumentType    string                 `json:"document_type"`
	TrackingID      string                 `json:"tracking_id"`
	Title           string                 `json:"title"`
	CurrentState    string                 `json:"current_state"`
	Terminal        bool                   `json:"terminal"`
	Version         int                    `json:"version"`
	Revision        int                    `json:"revision"`
	CreatedBy       string                 `json:"created_by"`
	OwnerOffice     string                 `json:"owner_office"`
	Amount          *string                `json:"amount,omitempty"`
	AllocationID    *string                `json:"allocation_id,omitempty"`
	InventoryItemID *string                `json:"inventory_item_id,omitempty"`
	Quantity        int                    `json:"quantity,omitempty"`
	Details         map[string]interface{} `json:"details,omitempty"`
	Links           []LinkResponse         `json:"links"`
	CreatedAt       string                 `json:"created_at"`
	UpdatedAt       string                 `json:"updated_at"`
}

type AuditEntryResponse struct {
	ID             string                 `json:"id"`
	DocumentID     string                 `json:"document_id"`
	TrackingID     string                 `json:"tracking_id"`
	Transition     string                 `json:"transition"`
	ActorUserID    string                 `json:"actor_user_id"`
	ActorRole      string                 `json:"actor_role"`
	OnBehalfOfRole string                 `json:"on_behalf_of_role,omitempty"`
	FromState      string                 `json:"from_state"`
	ToState        string                 `json:"to_state"`
	Remarks        string                 `json:"remarks,omitempty"`
	SideEffect     map[string]interface{} `json:"side_effect,omitempty"`
	CreatedAt      string                 `json:"created_at"`
}

type LinkedDocument struct {
	ID           string `json:"id"`
	DocumentType string `json:"document_type"`
	TrackingID   string `json:"tracking_id"`
	Title        string `json:"title"`
	CurrentState string `json:"current_state"`
	Relation     string `json:"relation,omitempty"`
}

// DocumentLinksResponse lists what a document references and what references it.
type DocumentLinksResponse struct {
	References   []LinkedDocument `json:"references"`
	ReferencedBy []LinkedDocument `json:"referenced_by"`
}

// --- Interface ---

type DocumentService interface {
	Create(ctx context.Context, actor Actor, req CreateDocumentRequest) (*DocumentResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*DocumentResponse, error)
	List(ctx context.Context, actor Actor, filter DocumentFilter) ([]DocumentResponse, int64, error)
	History(ctx context.Context, id uuid.UUID) ([]AuditEntryResponse, error)
	Links(ctx context.Context, id uuid.UUID) (*DocumentLinksResponse, error)
}

type documentService struct {
	def       *workflow.Definition
	txm       repository.TransactionManager
	docs      repository.DocumentRepository
	audits    repository.AuditEntryRepository
	budgets   repository.BudgetRepository
	inventory repository.InventoryRepository
	factory   *documentFactory
	notifier  Notifier
	cache     DashboardCache
	logger    *zap.Logger
}

func NewDocumentService(
	def *workflow.Definition,
	txm repository.TransactionManager,
	docs repository.DocumentRepository,
	audits repository.AuditEntryRepository,
	budgets repository.BudgetRepository,
	inventory repository.InventoryRepository,
	notifier Notifier,
	cache DashboardCache,
	logger *zap.Logger,
) DocumentService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if cache == nil {
		cache = noopCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &documentService{
		def:       def,
		txm:       txm,
		docs:      docs,
		audits:    audits,
		budgets:   budgets,
		inventory: inventory,
		factory:   &documentFactory{def: def, docs: docs, audits: audits, now: time.Now},
		notifier:  notifier,
		cache:     cache,
		logger:    logger.Named("documents"),
	}
}

// --- Implementation ---

func (s *documentService) Create(ctx context.Context, actor Actor, req CreateDocumentRequest) (*DocumentResponse, error) {
	dt, ok := s.def.Type(req.DocumentType)
	if !ok {
		return nil, invalidf("unknown document type %s", req.DocumentType)
	}
	if !dt.CanCreate(actor.Role) {
		return nil, forbiddenf("%s cannot originate %s documents", actor.Role, dt.Name)
	}

	in := newDocument{
		DocumentType: dt.Name,
		Title:        strings.TrimSpace(req.Title),
		Actor:        actor,
		Quantity:     req.Quantity,
		Remarks:      req.Remarks,
	}
	if in.Title == "" {
		return nil, invalidf("title is required")
	}

	if req.Amount != nil {
		if !req.Amount.IsPositive() {
			return nil, invalidf("amount must be positive")
		}
		amount := req.Amount.Round(2)
		in.Amount = &amount
	}
	if dt.Needs(workflow.RequireAmount) && in.Amount == nil {
		return nil, invalidf("%s requires an amount", dt.Name)
	}

	if req.AllocationID != "" {
		id, err := parseID(req.AllocationID, "allocation_id")
		if err != nil {
			return nil, err
		}
		in.AllocationID = &id
	}
	if dt.Needs(workflow.RequireAllocation) && in.AllocationID == nil {
		return nil, invalidf("%s requires a budget allocation", dt.Name)
	}

	if req.InventoryItemID != "" {
		id, err := parseID(req.InventoryItemID, "inventory_item_id")
		if err != nil {
			return nil, err
		}
		in.InventoryItemID = &id
	}
	if dt.Needs(workflow.RequireInventoryItem) && (in.InventoryItemID == nil || in.Quantity <= 0) {
		return nil, invalidf("%s requires an inventory item and a positive quantity", dt.Name)
	}

	if len(req.Details) > 0 {
		raw, err := json.Marshal(req.Details)
		if err != nil {
			return nil, invalidf("details must be a JSON object")
		}
		in.Details = datatypes.JSON(raw)
	}

	var doc *model.Document
	err := s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.checkReferences(txCtx, in); err != nil {
			return err
		}
		links, err := s.resolveLinks(txCtx, dt, req.Links)
		if err != nil {
			return err
		}
		in.Links = links

		doc, err = s.factory.create(txCtx, in)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("document created",
		zap.String("tracking_id", doc.TrackingID),
		zap.String("document_type", doc.DocumentType),
		zap.String("owner_office", doc.OwnerOffice),
	)
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("dashboard cache invalidation failed", zap.Error(err))
	}
	s.notifier.Publish(EventDocumentCreated, map[string]interface{}{
		"document_id":   doc.ID.String(),
		"tracking_id":   doc.TrackingID,
		"document_type": doc.DocumentType,
		"state":         doc.CurrentState,
		"owner_office":  doc.OwnerOffice,
	})

	return toDocumentResponse(s.def, doc), nil
}

func (s *documentService) checkReferences(ctx context.Context, in newDocument) error {
	if in.AllocationID != nil {
		if _, err := s.budgets.FindByID(ctx, *in.AllocationID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return invalidf("budget allocation %s does not exist", in.AllocationID)
			}
			return fmt.Errorf("failed to load budget allocation: %w", err)
		}
	}
	if in.InventoryItemID != nil {
		if _, err := s.inventory.FindItemByID(ctx, *in.InventoryItemID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return invalidf("inventory item %s does not exist", in.InventoryItemID)
			}
			return fmt.Errorf("failed to load inventory item: %w", err)
		}
	}
	return nil
}

// resolveLinks validates requested links against the type's link rules.
func (s *documentService) resolveLinks(ctx context.Context, dt *workflow.DocumentType, reqs []LinkRequest) ([]model.DocumentLink, error) {
	var links []model.DocumentLink
	seenRelation := make(map[string]bool)
	seenTarget := make(map[uuid.UUID]bool)

	for _, lr := range reqs {
		rule, ok := dt.LinkRule(lr.Relation)
		if !ok {
			return nil, invalidf("%s cannot link a %s", dt.Name, lr.Relation)
		}
		targetID, err := parseID(lr.DocumentID, "links.document_id")
		if err != nil {
			return nil, err
		}
		if seenTarget[targetID] {
			return nil, invalidf("document %s is linked twice", targetID)
		}
		target, err := s.docs.FindByID(ctx, targetID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, invalidf("linked document %s does not exist", targetID)
			}
			return nil, fmt.Errorf("failed to load linked document: %w", err)
		}
		if target.DocumentType != rule.DocumentType {
			return nil, invalidf("%s link must point to a %s, got %s", rule.Relation, rule.DocumentType, target.DocumentType)
		}

		seenTarget[targetID] = true
		seenRelation[rule.Relation] = true
		links = append(links, model.DocumentLink{LinkedDocumentID: targetID, Relation: rule.Relation})
	}

	for _, rule := range dt.Links {
		if rule.Required && !seenRelation[rule.Relation] {
			return nil, invalidf("%s requires a %s link", dt.Name, rule.Relation)
		}
	}
	return links, nil
}

func (s *documentService) Get(ctx context.Context, id uuid.UUID) (*DocumentResponse, error) {
	doc, err := s.docs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundf("document %s", id)
		}
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return toDocumentResponse(s.def, doc), nil
}

func (s *documentService) List(ctx context.Context, actor Actor, filter DocumentFilter) ([]DocumentResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	repoFilter := repository.DocumentFilter{
		DocumentType: filter.DocumentType,
		State:        filter.State,
		OwnerOffice:  filter.OwnerOffice,
		Search:       strings.TrimSpace(filter.Search),
		Offset:       (filter.Page - 1) * filter.Limit,
		Limit:        filter.Limit,
	}
	if filter.Mine {
		id := actor.UserID
		repoFilter.CreatedBy = &id
	}

	docs, total, err := s.docs.List(ctx, repoFilter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list documents: %w", err)
	}

	result := make([]DocumentResponse, 0, len(docs))
	for i := range docs {
		result = append(result, *toDocumentResponse(s.def, &docs[i]))
	}
	return result, total, nil
}

func (s *documentService) History(ctx context.Context, id uuid.UUID) ([]AuditEntryResponse, error) {
	if _, err := s.docs.FindByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundf("document %s", id)
		}
		return nil, fmt.Errorf("failed to load document: %w", err)
	}

	entries, err := s.audits.ListByDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load document history: %w", err)
	}
	result := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		result = append(result, toAuditEntryResponse(e))
	}
	return result, nil
}

func (s *documentService) Links(ctx context.Context, id uuid.UUID) (*DocumentLinksResponse, error) {
	doc, err := s.docs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundf("document %s", id)
		}
		return nil, fmt.Errorf("failed to load document: %w", err)
	}

	res := &DocumentLinksResponse{References: []LinkedDocument{}, ReferencedBy: []LinkedDocument{}}
	for _, l := range doc.Links {
		linked, err := s.docs.FindByID(ctx, l.LinkedDocumentID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load linked document: %w", err)
		}
		item := toLinkedDocument(linked)
		item.Relation = l.Relation
		res.References = append(res.References, item)
	}

	for _, dt := range s.def.Types() {
		referencing, err := s.docs.Referencing(ctx, id, dt.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to load referencing documents: %w", err)
		}
		for i := range referencing {
			res.ReferencedBy = append(res.ReferencedBy, toLinkedDocument(&referencing[i]))
		}
	}
	return res, nil
}

// --- Helpers ---

func toLinkedDocument(d *model.Document) LinkedDocument {
	return LinkedDocument{
		ID:           d.ID.String(),
		DocumentType: d.DocumentType,
		TrackingID:   d.TrackingID,
		Title:        d.Title,
		CurrentState: d.CurrentState,
	}
}

func toDocumentResponse(def *workflow.Definition, doc *model.Document) *DocumentResponse {
	res := &DocumentResponse{
		ID:           doc.ID.String(),
		DocumentType: doc.DocumentType,
		TrackingID:   doc.TrackingID,
		Title:        doc.Title,
		CurrentState: doc.CurrentState,
		Terminal:     def.IsTerminal(doc.DocumentType, doc.CurrentState),
		Version:      doc.Version,
		Revision:     doc.Revision,
		CreatedBy:    doc.CreatedBy.String(),
		OwnerOffice:  doc.OwnerOffice,
		Quantity:     doc.Quantity,
		Links:        []LinkResponse{},
		CreatedAt:    formatTime(doc.CreatedAt),
		UpdatedAt:    formatTime(doc.UpdatedAt),
	}
	if doc.Amount != nil {
		amount := doc.Amount.StringFixed(2)
		res.Amount = &amount
	}
	if doc.AllocationID != nil {
		id := doc.AllocationID.String()
		res.AllocationID = &id
	}
	if doc.InventoryItemID != nil {
		id := doc.InventoryItemID.String()
		res.InventoryItemID = &id
	}
	if len(doc.Details) > 0 {
		_ = json.Unmarshal(doc.Details, &res.Details)
	}
	for _, l := range doc.Links {
		res.Links = append(res.Links, LinkResponse{
			LinkedDocumentID: l.LinkedDocumentID.String(),
			Relation:         l.Relation,
			Position:         l.Position,
		})
	}
	return res
}

func toAuditEntryResponse(e model.AuditEntry) AuditEntryResponse {
	res := AuditEntryResponse{
		ID:             e.ID.String(),
		DocumentID:     e.DocumentID.String(),
		TrackingID:     e.TrackingID,
		Transition:     e.Transition,
		ActorUserID:    e.ActorUserID.String(),
		ActorRole:      e.ActorRole,
		OnBehalfOfRole: e.OnBehalfOfRole,
		FromState:      e.FromState,
		ToState:        e.ToState,
		Remarks:        e.Remarks,
		CreatedAt:      formatTime(e.CreatedAt),
	}
	if len(e.SideEffect) > 0 {
		_ = json.Unmarshal(e.SideEffect, &res.SideEffect)
	}
	return res
}
