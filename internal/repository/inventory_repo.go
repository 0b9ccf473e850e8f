package repository

import (
	"context"
	"time"

	"procuretrack/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MovementFilter narrows stock card listings.
type MovementFilter struct {
	ItemID     *uuid.UUID
	DocumentID *uuid.UUID
	Offset     int
	Limit      int
}

// InventoryRepository persists stocked items and their movements.
type InventoryRepository interface {
	CreateItem(ctx context.Context, item *model.InventoryItem) error
	FindItemByID(ctx context.Context, id uuid.UUID) (*model.InventoryItem, error)
	FindItemForUpdate(ctx context.Context, id uuid.UUID) (*model.InventoryItem, error)
	FindItemBySKU(ctx context.Context, sku string) (*model.InventoryItem, error)
	ListItems(ctx context.Context, search string, offset, limit int) ([]model.InventoryItem, int64, error)
	SaveStock(ctx context.Context, item *model.InventoryItem) error
	AppendMovement(ctx context.Context, movement *model.StockMovement) error
	ListMovements(ctx context.Context, filter MovementFilter) ([]model.StockMovement, int64, error)
}

type inventoryRepository struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

func NewInventoryRepository(db *gorm.DB, lockTimeout time.Duration) InventoryRepository {
	return &inventoryRepository{db: db, lockTimeout: lockTimeout}
}

func (r *inventoryRepository) CreateItem(ctx context.Context, item *model.InventoryItem) error {
	return GetDB(ctx, r.db).Create(item).Error
}

func (r *inventoryRepository) FindItemByID(ctx context.Context, id uuid.UUID) (*model.InventoryItem, error) {
	var item model.InventoryItem
	if err := GetDB(ctx, r.db).First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *inventoryRepository) FindItemForUpdate(ctx context.Context, id uuid.UUID) (*model.InventoryItem, error) {
	db := GetDB(ctx, r.db)
	if err := setLockTimeout(db, r.lockTimeout); err != nil {
		return nil, translateLockError(err)
	}
	var item model.InventoryItem
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&item, "id = ?", id).Error; err != nil {
		return nil, translateLockError(err)
	}
	return &item, nil
}

func (r *inventoryRepository) FindItemBySKU(ctx context.Context, sku string) (*model.InventoryItem, error) {
	var item model.InventoryItem
	if err := GetDB(ctx, r.db).First(&item, "sku = ?", sku).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *inventoryRepository) ListItems(ctx context.Context, search string, offset, limit int) ([]model.InventoryItem, int64, error) {
	var items []model.InventoryItem
	var total int64

	query := GetDB(ctx, r.db).Model(&model.InventoryItem{})
	if search != "" {
		like := "%" + search + "%"
		query = query.Where("name ILIKE ? OR sku ILIKE ?", like, like)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("name ASC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *inventoryRepository) SaveStock(ctx context.Context, item *model.InventoryItem) error {
	return GetDB(ctx, r.db).Model(&model.InventoryItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]interface{}{"stock_on_hand": item.StockOnHand, "updated_at": time.Now()}).Error
}

func (r *inventoryRepository) AppendMovement(ctx context.Context, movement *model.StockMovement) error {
	return GetDB(ctx, r.db).Create(movement).Error
}

func (r *inventoryRepository) ListMovements(ctx context.Context, filter MovementFilter) ([]model.StockMovement, int64, error) {
	var rows []model.StockMovement
	var total int64

	query := GetDB(ctx, r.db).Model(&model.StockMovement{})
	if filter.ItemID != nil {
		query = query.Where("item_id = ?", *filter.ItemID)
	}
	if filter.DocumentID != nil {
		query = query.Where("document_id = ?", *filter.DocumentID)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if err := query.Order("created_at DESC").Offset(filter.Offset).Limit(limit).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
