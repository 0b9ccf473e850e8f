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
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateDelegationRequest struct {
	DelegateUserID string    `json:"delegate_user_id" binding:"required,uuid"`
	ValidFrom      time.Time `json:"valid_from" binding:"required"`
	ValidTo        time.Time `json:"valid_to" binding:"required"`
	Reason         string    `json:"reason" binding:"max=500"`
}

type DelegationResponse struct {
	ID              string  `json:"id"`
	DelegatorRole   string  `json:"delegator_role"`
	DelegatorUserID string  `json:"delegator_user_id"`
	DelegateUserID  string  `json:"delegate_user_id"`
	ValidFrom       string  `json:"valid_from"`
	ValidTo         string  `json:"valid_to"`
	RevokedAt       *string `json:"revoked_at,omitempty"`
	Reason          string  `json:"reason,omitempty"`
	Active          bool    `json:"active"`
}

type DelegationQuery struct {
	DelegatorRole  string
	DelegateUserID string
	ActiveOnly     bool
}

// --- Interface ---

// DelegationService manages officer-in-charge grants: a role holder lets another
// user act with their role for a bounded window.
type DelegationService interface {
	Create(ctx context.Context, actor Actor, req CreateDelegationRequest) (*DelegationResponse, error)
	Revoke(ctx context.Context, actor Actor, id uuid.UUID) (*DelegationResponse, error)
	List(ctx context.Context, q DelegationQuery) ([]DelegationResponse, error)
}

type delegationService struct {
	repo      repository.DelegationRepository
	users     repository.UserRepository
	activity  repository.ActivityLogRepository
	txManager repository.TransactionManager
	logger    *zap.Logger
	now       func() time.Time
}

func NewDelegationService(
	repo repository.DelegationRepository,
	users repository.UserRepository,
	activity repository.ActivityLogRepository,
	txManager repository.TransactionManager,
	logger *zap.Logger,
) DelegationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &delegationService{
		repo:      repo,
		users:     users,
		activity:  activity,
		txManager: txManager,
		logger:    logger.Named("delegations"),
		now:       time.Now,
	}
}

// --- Implementation ---

func (s *delegationService) toResponse(d *model.Delegation) DelegationResponse {
	return DelegationResponse{
		ID:              d.ID.String(),
		DelegatorRole:   d.DelegatorRole,
		DelegatorUserID: d.DelegatorUserID.String(),
		DelegateUserID:  d.DelegateUserID.String(),
		ValidFrom:       formatTime(d.ValidFrom),
		ValidTo:         formatTime(d.ValidTo),
		RevokedAt:       formatTimePtr(d.RevokedAt),
		Reason:          d.Reason,
		Active:          d.ActiveAt(s.now()),
	}
}

// Create delegates the actor's own role. ADMIN and AUDITOR are not delegable.
func (s *delegationService) Create(ctx context.Context, actor Actor, req CreateDelegationRequest) (*DelegationResponse, error) {
	if actor.Role == model.RoleAdmin || actor.Role == model.RoleAuditor {
		return nil, forbiddenf("role %s cannot be delegated", actor.Role)
	}
	delegateID, err := parseID(req.DelegateUserID, "delegate_user_id")
	if err != nil {
		return nil, err
	}
	if delegateID == actor.UserID {
		return nil, invalidf("a role cannot be delegated to oneself")
	}
	if !req.ValidTo.After(req.ValidFrom) {
		return nil, invalidf("valid_to must be after valid_from")
	}
	if !req.ValidTo.After(s.now()) {
		return nil, invalidf("valid_to must be in the future")
	}

	delegate, err := s.users.GetByID(ctx, delegateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invalidf("delegate user %s does not exist", delegateID)
		}
		return nil, fmt.Errorf("failed to load delegate: %w", err)
	}
	if delegate.Role == actor.Role {
		return nil, invalidf("%s already holds role %s", delegate.Username, actor.Role)
	}

	now := s.now()
	d := &model.Delegation{
		ID:              uuid.New(),
		DelegatorRole:   actor.Role,
		DelegatorUserID: actor.UserID,
		DelegateUserID:  delegateID,
		ValidFrom:       req.ValidFrom,
		ValidTo:         req.ValidTo,
		Reason:          strings.TrimSpace(req.Reason),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.Create(txCtx, d); err != nil {
			return fmt.Errorf("failed to create delegation: %w", err)
		}
		return logActivity(txCtx, s.activity, actor, model.ActionCreateDelegation, d.ID.String(), delegate.Username, map[string]interface{}{
			"delegator_role": d.DelegatorRole,
			"valid_from":     formatTime(d.ValidFrom),
			"valid_to":       formatTime(d.ValidTo),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("delegation created",
		zap.String("delegator_role", d.DelegatorRole),
		zap.String("delegate_user_id", d.DelegateUserID.String()),
		zap.Time("valid_to", d.ValidTo),
	)
	res := s.toResponse(d)
	return &res, nil
}

// Revoke ends a delegation immediately. Only the delegator or an ADMIN may revoke.
func (s *delegationService) Revoke(ctx context.Context, actor Actor, id uuid.UUID) (*DelegationResponse, error) {
	var d *model.Delegation
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		d, err = s.repo.FindByIDForUpdate(txCtx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundf("delegation %s", id)
			}
			return fmt.Errorf("failed to load delegation: %w", err)
		}
		if actor.Role != model.RoleAdmin && actor.UserID != d.DelegatorUserID {
			return forbiddenf("only the delegator may revoke this delegation")
		}
		if d.RevokedAt != nil {
			return fmt.Errorf("%w: delegation already revoked", ErrConflict)
		}

		now := s.now()
		d.RevokedAt = &now
		if d.ValidTo.After(now) {
			d.ValidTo = now
		}
		d.UpdatedAt = now
		if err := s.repo.Save(txCtx, d); err != nil {
			return fmt.Errorf("failed to revoke delegation: %w", err)
		}
		return logActivity(txCtx, s.activity, actor, model.ActionRevokeDelegation, d.ID.String(), d.DelegatorRole, map[string]interface{}{
			"delegate_user_id": d.DelegateUserID.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	res := s.toResponse(d)
	return &res, nil
}

func (s *delegationService) List(ctx context.Context, q DelegationQuery) ([]DelegationResponse, error) {
	filter := repository.DelegationFilter{DelegatorRole: q.DelegatorRole}
	if q.DelegateUserID != "" {
		id, err := parseID(q.DelegateUserID, "delegate_user_id")
		if err != nil {
			return nil, err
		}
		filter.DelegateUserID = &id
	}
	if q.ActiveOnly {
		now := s.now()
		filter.ActiveAt = &now
	}

	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list delegations: %w", err)
	}
	res := make([]DelegationResponse, 0, len(rows))
	for i := range rows {
		res = append(res, s.toResponse(&rows[i]))
	}
	return res, nil
}
