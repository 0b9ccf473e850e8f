package repository

import (
	"context"
	"time"

	"procuretrack/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DelegationFilter narrows delegation listings.
type DelegationFilter struct {
	DelegatorRole  string
	DelegateUserID *uuid.UUID
	ActiveAt       *time.Time
}

// DelegationRepository persists delegations of approval authority.
type DelegationRepository interface {
	Create(ctx context.Context, d *model.Delegation) error
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Delegation, error)
	// FindActive returns the delegation letting delegateID act as role at t, or gorm.ErrRecordNotFound.
	FindActive(ctx context.Context, role string, delegateID uuid.UUID, at time.Time) (*model.Delegation, error)
	ListActiveForDelegate(ctx context.Context, delegateID uuid.UUID, at time.Time) ([]model.Delegation, error)
	List(ctx context.Context, filter DelegationFilter) ([]model.Delegation, error)
	Save(ctx context.Context, d *model.Delegation) error
}

type delegationRepository struct {
	db *gorm.DB
}

func NewDelegationRepository(db *gorm.DB) DelegationRepository {
	return &delegationRepository{db: db}
}

func activeAt(q *gorm.DB, at time.Time) *gorm.DB {
	return q.Where("revoked_at IS NULL AND valid_from <= ? AND valid_to > ?", at, at)
}

func (r *delegationRepository) Create(ctx context.Context, d *model.Delegation) error {
	return GetDB(ctx, r.db).Create(d).Error
}

func (r *delegationRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Delegation, error) {
	var d model.Delegation
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).First(&d, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *delegationRepository) FindActive(ctx context.Context, role string, delegateID uuid.UUID, at time.Time) (*model.Delegation, error) {
	var d model.Delegation
	err := activeAt(GetDB(ctx, r.db), at).
		Where("delegator_role = ? AND delegate_user_id = ?", role, delegateID).
		Order("valid_from DESC").
		First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *delegationRepository) ListActiveForDelegate(ctx context.Context, delegateID uuid.UUID, at time.Time) ([]model.Delegation, error) {
	var rows []model.Delegation
	if err := activeAt(GetDB(ctx, r.db), at).Where("delegate_user_id = ?", delegateID).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *delegationRepository) List(ctx context.Context, filter DelegationFilter) ([]model.Delegation, error) {
	var rows []model.Delegation
	q := GetDB(ctx, r.db)
	if filter.DelegatorRole != "" {
		q = q.Where("delegator_role = ?", filter.DelegatorRole)
	}
	if filter.DelegateUserID != nil {
		q = q.Where("delegate_user_id = ?", *filter.DelegateUserID)
	}
	if filter.ActiveAt != nil {
		q = activeAt(q, *filter.ActiveAt)
	}
	if err := q.Order("valid_from DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *delegationRepository) Save(ctx context.Context, d *model.Delegation) error {
	return GetDB(ctx, r.db).Save(d).Error
}
