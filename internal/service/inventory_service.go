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

// DTOs
type CreateItemRequest struct {
	SKU          string `json:"sku" binding:"required,max=100"`
	Name         string `json:"name" binding:"required,max=255"`
	Unit         string `json:"unit" binding:"omitempty,max=30"`
	InitialStock int    `json:"initial_stock" binding:"min=0"`
}

type ReceiveStockRequest struct {
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
	Reference string `json:"reference" binding:"max=60"`
	Note      string `json:"note"`
}

// AdjustStockRequest corrects stock outside the document flow. ADJUSTMENT takes a
// signed quantity; RETURN puts goods back and must be positive.
type AdjustStockRequest struct {
	MovementType string `json:"movement_type" binding:"required,oneof=ADJUSTMENT RETURN"`
	Quantity     int    `json:"quantity" binding:"required"`
	Note         string `json:"note" binding:"required"`
}

type ItemResponse struct {
	ID          string `json:"id"`
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Unit        string `json:"unit"`
	StockOnHand int    `json:"stock_on_hand"`
	UpdatedAt   string `json:"updated_at"`
}

type MovementResponse struct {
	ID           string  `json:"id"`
	ItemID       string  `json:"item_id"`
	DocumentID   *string `json:"document_id,omitempty"`
	MovementType string  `json:"movement_type"`
	Quantity     int     `json:"quantity"`
	StockBefore  int     `json:"stock_before"`
	StockAfter   int     `json:"stock_after"`
	Reference    string  `json:"reference,omitempty"`
	Note         string  `json:"note,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

type InventoryService interface {
	ListItems(ctx context.Context, search string, page, limit int) ([]ItemResponse, int64, error)
	GetItem(ctx context.Context, id uuid.UUID) (*ItemResponse, error)
	CreateItem(ctx context.Context, actor Actor, req CreateItemRequest) (*ItemResponse, error)
	Receive(ctx context.Context, actor Actor, id uuid.UUID, req ReceiveStockRequest) (*MovementResponse, error)
	Adjust(ctx context.Context, actor Actor, id uuid.UUID, req AdjustStockRequest) (*MovementResponse, error)
	ListMovements(ctx context.Context, itemID, documentID *uuid.UUID, page, limit int) ([]MovementResponse, int64, error)
}

type inventoryService struct {
	repo      repository.InventoryRepository
	activity  repository.ActivityLogRepository
	txManager repository.TransactionManager
	cache     DashboardCache
	logger    *zap.Logger
}

func NewInventoryService(
	repo repository.InventoryRepository,
	activity repository.ActivityLogRepository,
	txManager repository.TransactionManager,
	cache DashboardCache,
	logger *zap.Logger,
) InventoryService {
	if cache == nil {
		cache = noopCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &inventoryService{
		repo:      repo,
		activity:  activity,
		txManager: txManager,
		cache:     cache,
		logger:    logger.Named("inventory"),
	}
}

func toItemResponse(item *model.InventoryItem) ItemResponse {
	return ItemResponse{
		ID:          item.ID.String(),
		SKU:         item.SKU,
		Name:        item.Name,
		Unit:        item.Unit,
		StockOnHand: item.StockOnHand,
		UpdatedAt:   formatTime(item.UpdatedAt),
	}
}

func toMovementResponse(m *model.StockMovement) MovementResponse {
	res := MovementResponse{
		ID:           m.ID.String(),
		ItemID:       m.ItemID.String(),
		MovementType: m.MovementType,
		Quantity:     m.Quantity,
		StockBefore:  m.StockBefore,
		StockAfter:   m.StockAfter,
		Reference:    m.Reference,
		Note:         m.Note,
		CreatedAt:    formatTime(m.CreatedAt),
	}
	if m.DocumentID != nil {
		id := m.DocumentID.String()
		res.DocumentID = &id
	}
	return res
}

func (s *inventoryService) ListItems(ctx context.Context, search string, page, limit int) ([]ItemResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	items, total, err := s.repo.ListItems(ctx, strings.TrimSpace(search), (page-1)*limit, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list inventory items: %w", err)
	}

	res := make([]ItemResponse, 0, len(items))
	for i := range items {
		res = append(res, toItemResponse(&items[i]))
	}
	return res, total, nil
}

func (s *inventoryService) GetItem(ctx context.Context, id uuid.UUID) (*ItemResponse, error) {
	item, err := s.repo.FindItemByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundf("inventory item %s", id)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	res := toItemResponse(item)
	return &res, nil
}

func (s *inventoryService) CreateItem(ctx context.Context, actor Actor, req CreateItemRequest) (*ItemResponse, error) {
	sku := strings.ToUpper(strings.TrimSpace(req.SKU))
	if sku == "" {
		return nil, invalidf("sku is required")
	}
	if _, err := s.repo.FindItemBySKU(ctx, sku); err == nil {
		return nil, fmt.Errorf("%w: sku %s already exists", ErrConflict, sku)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	unit := strings.TrimSpace(req.Unit)
	if unit == "" {
		unit = "pc"
	}
	now := time.Now()
	item := &model.InventoryItem{
		ID:        uuid.New(),
		SKU:       sku,
		Name:      strings.TrimSpace(req.Name),
		Unit:      unit,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.CreateItem(txCtx, item); err != nil {
			return fmt.Errorf("failed to create inventory item: %w", err)
		}
		if req.InitialStock > 0 {
			if _, err := s.move(txCtx, actor, item, model.MovementIn, req.InitialStock, "OPENING", "opening balance"); err != nil {
				return err
			}
		}
		return logActivity(txCtx, s.activity, actor, model.ActionCreateItem, item.ID.String(), item.Name, req)
	})
	if err != nil {
		return nil, err
	}

	s.afterChange(ctx)
	res := toItemResponse(item)
	return &res, nil
}

func (s *inventoryService) Receive(ctx context.Context, actor Actor, id uuid.UUID, req ReceiveStockRequest) (*MovementResponse, error) {
	if req.Quantity <= 0 {
		return nil, invalidf("quantity must be positive")
	}

	var movement *model.StockMovement
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		item, err := s.lockItem(txCtx, id)
		if err != nil {
			return err
		}
		movement, err = s.move(txCtx, actor, item, model.MovementIn, req.Quantity, req.Reference, req.Note)
		if err != nil {
			return err
		}
		return logActivity(txCtx, s.activity, actor, model.ActionReceiveStock, item.ID.String(), item.Name, req)
	})
	if err != nil {
		return nil, err
	}

	s.afterChange(ctx)
	res := toMovementResponse(movement)
	return &res, nil
}

func (s *inventoryService) Adjust(ctx context.Context, actor Actor, id uuid.UUID, req AdjustStockRequest) (*MovementResponse, error) {
	switch {
	case req.Quantity == 0:
		return nil, invalidf("quantity must not be zero")
	case req.MovementType == model.MovementReturn && req.Quantity < 0:
		return nil, invalidf("a return must have a positive quantity")
	case req.MovementType != model.MovementAdjustment && req.MovementType != model.MovementReturn:
		return nil, invalidf("movement_type must be ADJUSTMENT or RETURN")
	case strings.TrimSpace(req.Note) == "":
		return nil, invalidf("note is required for manual adjustments")
	}

	var movement *model.StockMovement
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		item, err := s.lockItem(txCtx, id)
		if err != nil {
			return err
		}
		movement, err = s.move(txCtx, actor, item, req.MovementType, req.Quantity, "", req.Note)
		if err != nil {
			return err
		}
		return logActivity(txCtx, s.activity, actor, model.ActionAdjustStock, item.ID.String(), item.Name, req)
	})
	if err != nil {
		return nil, err
	}

	s.afterChange(ctx)
	res := toMovementResponse(movement)
	return &res, nil
}

func (s *inventoryService) ListMovements(ctx context.Context, itemID, documentID *uuid.UUID, page, limit int) ([]MovementResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}

	rows, total, err := s.repo.ListMovements(ctx, repository.MovementFilter{
		ItemID:     itemID,
		DocumentID: documentID,
		Offset:     (page - 1) * limit,
		Limit:      limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list stock movements: %w", err)
	}

	res := make([]MovementResponse, 0, len(rows))
	for i := range rows {
		res = append(res, toMovementResponse(&rows[i]))
	}
	return res, total, nil
}

func (s *inventoryService) lockItem(ctx context.Context, id uuid.UUID) (*model.InventoryItem, error) {
	item, err := s.repo.FindItemForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundf("inventory item %s", id)
		}
		return nil, fmt.Errorf("failed to lock inventory item: %w", err)
	}
	return item, nil
}

// move applies one manual movement. Stock may never drop below zero.
func (s *inventoryService) move(ctx context.Context, actor Actor, item *model.InventoryItem, movementType string, quantity int, reference, note string) (*model.StockMovement, error) {
	actorID := actor.UserID
	m := &model.StockMovement{
		ID:           uuid.New(),
		ItemID:       item.ID,
		MovementType: movementType,
		Quantity:     quantity,
		StockBefore:  item.StockOnHand,
		Reference:    reference,
		Note:         note,
		CreatedBy:    &actorID,
		CreatedAt:    time.Now(),
	}
	m.StockAfter = m.StockBefore + m.Delta()
	if m.StockAfter < 0 {
		return nil, fmt.Errorf("%w: %s has %d on hand, adjustment of %d would go negative",
			ErrConflict, item.SKU, item.StockOnHand, quantity)
	}

	item.StockOnHand = m.StockAfter
	if err := s.repo.SaveStock(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to update stock: %w", err)
	}
	if err := s.repo.AppendMovement(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to write stock movement: %w", err)
	}
	return m, nil
}

func (s *inventoryService) afterChange(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("dashboard cache invalidation failed", zap.Error(err))
	}
}
