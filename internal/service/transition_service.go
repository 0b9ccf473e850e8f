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
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// --- DTOs ---

type TransitionRequestDTO struct {
	DocumentID      string `json:"document_id" binding:"required,uuid"`
	TransitionName  string `json:"transition_name" binding:"required"`
	Remarks         string `json:"remarks" binding:"max=2000"`
	ExpectedVersion *int   `json:"expected_version" binding:"omitempty,min=1"`
}

// TransitionRequest asks the engine to move one document along a named transition.
type TransitionRequest struct {
	DocumentID      uuid.UUID
	Transition      string
	Actor           Actor
	Remarks         string
	ExpectedVersion *int
}

type TransitionResult struct {
	DocumentID     string     `json:"document_id"`
	TrackingID     string     `json:"tracking_id"`
	Transition     string     `json:"transition"`
	FromState      string     `json:"from_state"`
	NewState       string     `json:"new_state"`
	Version        int        `json:"version"`
	AuditEntryID   string     `json:"audit_entry_id"`
	OnBehalfOfRole string     `json:"on_behalf_of_role,omitempty"`
	SideEffect     SideEffect `json:"side_effect,omitempty"`
}

type TransitionOption struct {
	Name            string `json:"name"`
	ToState         string `json:"to_state"`
	RequiredRole    string `json:"required_role"`
	RequiresRemarks bool   `json:"requires_remarks"`
	Rework          bool   `json:"rework"`
	ViaDelegation   bool   `json:"via_delegation"`
}

// --- Interface ---

// TransitionService is the single authority for moving a document between states.
type TransitionService interface {
	RequestTransition(ctx context.Context, req TransitionRequest) (*TransitionResult, error)
	ValidTransitions(ctx context.Context, documentID uuid.UUID, actor Actor) ([]TransitionOption, error)
}

type transitionService struct {
	def         *workflow.Definition
	txm         repository.TransactionManager
	docs        repository.DocumentRepository
	audits      repository.AuditEntryRepository
	delegations repository.DelegationRepository
	effects     *EffectRegistry
	notifier    Notifier
	cache       DashboardCache
	logger      *zap.Logger
	now         func() time.Time
}

// NewTransitionService wires the engine. notifier and cache may be nil.
func NewTransitionService(
	def *workflow.Definition,
	txm repository.TransactionManager,
	docs repository.DocumentRepository,
	audits repository.AuditEntryRepository,
	delegations repository.DelegationRepository,
	effects *EffectRegistry,
	notifier Notifier,
	cache DashboardCache,
	logger *zap.Logger,
) TransitionService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if cache == nil {
		cache = noopCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &transitionService{
		def:         def,
		txm:         txm,
		docs:        docs,
		audits:      audits,
		delegations: delegations,
		effects:     effects,
		notifier:    notifier,
		cache:       cache,
		logger:      logger.Named("transitions"),
		now:         time.Now,
	}
}

// --- Implementation ---

func (s *transitionService) RequestTransition(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	var result *TransitionResult
	var doc *model.Document

	err := s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		doc, err = s.docs.FindByIDForUpdate(txCtx, req.DocumentID)
		if err != nil {
			return s.lookupError(err, req.DocumentID)
		}

		tr, err := s.resolve(doc, req)
		if err != nil {
			return err
		}

		now := s.now()
		grant, err := s.authorize(txCtx, tr, req.Actor, now)
		if err != nil {
			return err
		}

		remarks := strings.TrimSpace(req.Remarks)
		if s.def.RequiresRemarks(tr.To) && remarks == "" {
			return workflow.MissingRemarks(tr.To)
		}

		handler, ok := s.effects.Lookup(tr.Handler)
		if !ok {
			return fmt.Errorf("no side-effect handler registered for %s", tr.Handler)
		}
		effect, err := handler.Handle(txCtx, &EffectContext{
			Document:   doc,
			Transition: tr,
			Actor:      req.Actor,
			Remarks:    remarks,
			Now:        now,
		})
		if err != nil {
			if te, ok := workflow.AsTransitionError(err); ok {
				return te
			}
			if errors.Is(err, repository.ErrLockTimeout) {
				return workflow.Contention(err)
			}
			var se *workflow.SideEffectError
			if errors.As(err, &se) {
				return workflow.SideEffectFailed(fmt.Errorf("%s: %w", tr.Handler, err))
			}
			return fmt.Errorf("%s handler: %w", tr.Handler, err)
		}

		fromState := doc.CurrentState
		if err := s.docs.UpdateState(txCtx, doc, tr.To); err != nil {
			if errors.Is(err, repository.ErrStaleState) {
				return workflow.InvalidTransition("%s changed concurrently, reload and retry", doc.TrackingID)
			}
			return fmt.Errorf("failed to update document state: %w", err)
		}

		entry := &model.AuditEntry{
			ID:             uuid.New(),
			DocumentID:     doc.ID,
			DocumentType:   doc.DocumentType,
			TrackingID:     doc.TrackingID,
			Transition:     tr.Name,
			ActorUserID:    req.Actor.UserID,
			ActorRole:      req.Actor.Role,
			OnBehalfOfRole: grant.onBehalfOf,
			DelegationID:   grant.delegationID,
			FromState:      fromState,
			ToState:        tr.To,
			Remarks:        remarks,
			CreatedAt:      now,
		}
		if len(effect) > 0 {
			raw, err := json.Marshal(effect)
			if err != nil {
				return fmt.Errorf("failed to encode side effect: %w", err)
			}
			entry.SideEffect = datatypes.JSON(raw)
		}
		if err := s.audits.Append(txCtx, entry); err != nil {
			return fmt.Errorf("failed to write audit entry: %w", err)
		}

		result = &TransitionResult{
			DocumentID:     doc.ID.String(),
			TrackingID:     doc.TrackingID,
			Transition:     tr.Name,
			FromState:      fromState,
			NewState:       doc.CurrentState,
			Version:        doc.Version,
			AuditEntryID:   entry.ID.String(),
			OnBehalfOfRole: grant.onBehalfOf,
			SideEffect:     effect,
		}
		return nil
	})

	if err != nil {
		err = s.classify(err)
		s.logFailure(req, err)
		return nil, err
	}

	s.afterCommit(ctx, doc, result, req.Actor)
	return result, nil
}

// resolve finds the transition named in req that leaves the document's current state.
func (s *transitionService) resolve(doc *model.Document, req TransitionRequest) (workflow.Transition, error) {
	if req.ExpectedVersion != nil && *req.ExpectedVersion != doc.Version {
		return workflow.Transition{}, workflow.InvalidTransition(
			"%s is at version %d, request was made against version %d", doc.TrackingID, doc.Version, *req.ExpectedVersion)
	}
	if s.def.IsTerminal(doc.DocumentType, doc.CurrentState) {
		return workflow.Transition{}, workflow.InvalidTransition("%s is %s and can no longer change", doc.TrackingID, doc.CurrentState)
	}
	if !s.def.HasTransition(doc.DocumentType, req.Transition) {
		return workflow.Transition{}, workflow.InvalidTransition("%s has no transition %q", doc.DocumentType, req.Transition)
	}
	tr, ok := s.def.Find(doc.DocumentType, req.Transition, doc.CurrentState)
	if !ok {
		return workflow.Transition{}, workflow.InvalidTransition("%s cannot %s from %s", doc.TrackingID, req.Transition, doc.CurrentState)
	}
	return tr, nil
}

type grant struct {
	onBehalfOf   string
	delegationID *uuid.UUID
}

// authorize accepts the actor's own role or an active delegation of the required role.
func (s *transitionService) authorize(ctx context.Context, tr workflow.Transition, actor Actor, now time.Time) (grant, error) {
	if actor.Role == tr.Role {
		return grant{}, nil
	}

	d, err := s.delegations.FindActive(ctx, tr.Role, actor.UserID, now)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return grant{}, workflow.Unauthorized("%s requires role %s", tr.Name, tr.Role)
	}
	if err != nil {
		return grant{}, fmt.Errorf("failed to check delegations: %w", err)
	}
	id := d.ID
	return grant{onBehalfOf: tr.Role, delegationID: &id}, nil
}

func (s *transitionService) lookupError(err error, id uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return workflow.NotFound("document %s not found", id)
	}
	if errors.Is(err, repository.ErrLockTimeout) {
		return workflow.Contention(err)
	}
	return fmt.Errorf("failed to load document: %w", err)
}

// classify makes sure lock waits that surfaced outside a handler still read as contention.
func (s *transitionService) classify(err error) error {
	if _, ok := workflow.AsTransitionError(err); ok {
		return err
	}
	if errors.Is(err, repository.ErrLockTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return workflow.Contention(err)
	}
	return err
}

func (s *transitionService) logFailure(req TransitionRequest, err error) {
	fields := []zap.Field{
		zap.String("document_id", req.DocumentID.String()),
		zap.String("transition", req.Transition),
		zap.String("actor_user_id", req.Actor.UserID.String()),
		zap.String("actor_role", req.Actor.Role),
	}
	if te, ok := workflow.AsTransitionError(err); ok {
		fields = append(fields, zap.String("code", string(te.Code)), zap.String("reason", te.Message))
		s.logger.Warn("transition rejected", fields...)
		return
	}
	s.logger.Error("transition failed", append(fields, zap.Error(err))...)
}

func (s *transitionService) afterCommit(ctx context.Context, doc *model.Document, result *TransitionResult, actor Actor) {
	s.logger.Info("transition committed",
		zap.String("tracking_id", result.TrackingID),
		zap.String("transition", result.Transition),
		zap.String("from", result.FromState),
		zap.String("to", result.NewState),
		zap.Int("version", result.Version),
		zap.String("actor_role", actor.Role),
	)

	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("dashboard cache invalidation failed", zap.Error(err))
	}

	s.notifier.Publish(EventDocumentTransitioned, map[string]interface{}{
		"document_id":   result.DocumentID,
		"tracking_id":   result.TrackingID,
		"document_type": doc.DocumentType,
		"transition":    result.Transition,
		"from_state":    result.FromState,
		"to_state":      result.NewState,
		"version":       result.Version,
		"actor_role":    actor.Role,
		"owner_office":  doc.OwnerOffice,
	})
}

func (s *transitionService) ValidTransitions(ctx context.Context, documentID uuid.UUID, actor Actor) ([]TransitionOption, error) {
	doc, err := s.docs.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, workflow.NotFound("document %s not found", documentID)
		}
		return nil, fmt.Errorf("failed to load document: %w", err)
	}

	options := []TransitionOption{}
	if s.def.IsTerminal(doc.DocumentType, doc.CurrentState) {
		return options, nil
	}

	delegated, err := s.delegatedRoles(ctx, actor)
	if err != nil {
		return nil, err
	}

	for _, tr := range s.def.Outgoing(doc.DocumentType, doc.CurrentState) {
		own := tr.Role == actor.Role
		if !own && !delegated[tr.Role] {
			continue
		}
		options = append(options, TransitionOption{
			Name:            tr.Name,
			ToState:         tr.To,
			RequiredRole:    tr.Role,
			RequiresRemarks: s.def.RequiresRemarks(tr.To),
			Rework:          tr.Rework,
			ViaDelegation:   !own,
		})
	}
	return options, nil
}

func (s *transitionService) delegatedRoles(ctx context.Context, actor Actor) (map[string]bool, error) {
	active, err := s.delegations.ListActiveForDelegate(ctx, actor.UserID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to load delegations: %w", err)
	}
	roles := make(map[string]bool, len(active))
	for _, d := range active {
		roles[d.DelegatorRole] = true
	}
	return roles, nil
}
