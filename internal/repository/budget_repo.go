package repository

import (
	"context"
	"time"

	"procuretrack/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BudgetRepository persists allocations and their ledger entries.
type BudgetRepository interface {
	Create(ctx context.Context, allocation *model.BudgetAllocation) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.BudgetAllocation, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.BudgetAllocation, error)
	FindByCode(ctx context.Context, code string) (*model.BudgetAllocation, error)
	List(ctx context.Context, fiscalYear int) ([]model.BudgetAllocation, error)
	SaveAmounts(ctx context.Context, allocation *model.BudgetAllocation) error
	AppendEntry(ctx context.Context, entry *model.BudgetEntry) error
	ListEntries(ctx context.Context, allocationID uuid.UUID) ([]model.BudgetEntry, error)
}

type budgetRepository struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

func NewBudgetRepository(db *gorm.DB, lockTimeout time.Duration) BudgetRepository {
	return &budgetRepository{db: db, lockTimeout: lockTimeout}
}

func (r *budgetRepository) Create(ctx context.Context, allocation *model.BudgetAllocation) error {
	return GetDB(ctx, r.db).Create(allocation).Error
}

func (r *budgetRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.BudgetAllocation, error) {
	var a model.BudgetAllocation
	if err := GetDB(ctx, r.db).First(&a, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *budgetRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.BudgetAllocation, error) {
	db := GetDB(ctx, r.db)
	if err := setLockTimeout(db, r.lockTimeout); err != nil {
		return nil, translateLockError(err)
	}
	var a model.BudgetAllocation
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&a, "id = ?", id).Error; err != nil {
		return nil, translateLockError(err)
	}
	return &a, nil
}

func (r *budgetRepository) FindByCode(ctx context.Context, code string) (*model.BudgetAllocation, error) {
	var a model.BudgetAllocation
	if err := GetDB(ctx, r.db).First(&a, "code = ?", code).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *budgetRepository) List(ctx context.Context, fiscalYear int) ([]model.BudgetAllocation, error) {
	var rows []model.BudgetAllocation
	q := GetDB(ctx, r.db)
	if fiscalYear > 0 {
		q = q.Where("fiscal_year = ?", fiscalYear)
	}
	if err := q.Order("code ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *budgetRepository) SaveAmounts(ctx context.Context, allocation *model.BudgetAllocation) error {
	return GetDB(ctx, r.db).Model(&model.BudgetAllocation{}).
		Where("id = ?", allocation.ID).
		Updates(map[string]interface{}{
			"allocated_amount": allocation.AllocatedAmount,
			"obligated_amount": allocation.ObligatedAmount,
			"updated_at":       time.Now(),
		}).Error
}

func (r *budgetRepository) AppendEntry(ctx context.Context, entry *model.BudgetEntry) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

func (r *budgetRepository) ListEntries(ctx context.Context, allocationID uuid.UUID) ([]model.BudgetEntry, error) {
	var rows []model.BudgetEntry
	if err := GetDB(ctx, r.db).Where("allocation_id = ?", allocationID).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
