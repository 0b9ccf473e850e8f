package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"procuretrack/internal/model"
	"procuretrack/internal/workflow"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (e *effects) lockRequestedItem(ctx context.Context, doc *model.Document) (*model.InventoryItem, error) {
	if doc.InventoryItemID == nil {
		return nil, workflow.NewSideEffectError(workflow.ErrMissingInventoryItem, nil,
			"%s does not reference an inventory item", doc.TrackingID)
	}
	if doc.Quantity <= 0 {
		return nil, workflow.NewSideEffectError(workflow.ErrIncompleteDocument,
			map[string]interface{}{"field": "quantity"},
			"%s has no positive quantity", doc.TrackingID)
	}

	item, err := e.inventory.FindItemForUpdate(ctx, *doc.InventoryItemID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, workflow.NewSideEffectError(workflow.ErrMissingInventoryItem,
			map[string]interface{}{"item_id": doc.InventoryItemID.String()},
			"inventory item %s does not exist", doc.InventoryItemID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load inventory item: %w", err)
	}
	return item, nil
}

func insufficientStock(item *model.InventoryItem, requested int) error {
	return workflow.NewSideEffectError(workflow.ErrInsufficientStock,
		map[string]interface{}{
			"item_id":       item.ID.String(),
			"sku":           item.SKU,
			"stock_on_hand": item.StockOnHand,
			"requested":     requested,
			"shortfall":     requested - item.StockOnHand,
		},
		"insufficient stock of %s: on hand %d, requested %d", item.SKU, item.StockOnHand, requested)
}

func (e *effects) stockCheck(ctx context.Context, ec *EffectContext) (SideEffect, error) {
	item, err := e.lockRequestedItem(ctx, ec.Document)
	if err != nil {
		return nil, err
	}
	if item.StockOnHand < ec.Document.Quantity {
		return nil, insufficientStock(item, ec.Document.Quantity)
	}
	return SideEffect{
		"item_id":       item.ID.String(),
		"stock_on_hand": item.StockOnHand,
		"requested":     ec.Document.Quantity,
	}, nil
}

// risNumber derives the slip number from the supply request's tracking id.
func risNumber(trackingID string) string {
	if i := strings.Index(trackingID, "-"); i >= 0 {
		return "RIS" + trackingID[i:]
	}
	return "RIS-" + trackingID
}

// stockIssue decrements stock and appends the OUT movement for the issued slip.
func (e *effects) stockIssue(ctx context.Context, ec *EffectContext) (SideEffect, error) {
	doc := ec.Document
	item, err := e.lockRequestedItem(ctx, doc)
	if err != nil {
		return nil, err
	}
	if item.StockOnHand < doc.Quantity {
		return nil, insufficientStock(item, doc.Quantity)
	}

	ris := risNumber(doc.TrackingID)
	movement, err := e.applyMovement(ctx, ec, item, model.MovementOut, doc.Quantity, ris)
	if err != nil {
		return nil, err
	}

	details, err := mergeDetails(doc.Details, map[string]interface{}{
		"ris_number": ris,
		"issued_at":  formatTime(ec.Now),
	})
	if err != nil {
		return nil, err
	}
	doc.Details = details
	if err := e.docs.UpdateContent(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to record slip number: %w", err)
	}

	return SideEffect{
		"ris_number":   ris,
		"item_id":      item.ID.String(),
		"quantity":     movement.Quantity,
		"stock_before": movement.StockBefore,
		"stock_after":  movement.StockAfter,
		"movement_id":  movement.ID.String(),
	}, nil
}

// stockReceive books delivered goods into stock when the PO names an item.
func (e *effects) stockReceive(ctx context.Context, ec *EffectContext) (SideEffect, error) {
	doc := ec.Document
	if doc.InventoryItemID == nil || doc.Quantity <= 0 {
		return SideEffect{"received": false}, nil
	}
	item, err := e.lockRequestedItem(ctx, doc)
	if err != nil {
		return nil, err
	}

	movement, err := e.applyMovement(ctx, ec, item, model.MovementIn, doc.Quantity, doc.TrackingID)
	if err != nil {
		return nil, err
	}
	return SideEffect{
		"received":     true,
		"item_id":      item.ID.String(),
		"quantity":     movement.Quantity,
		"stock_before": movement.StockBefore,
		"stock_after":  movement.StockAfter,
		"movement_id":  movement.ID.String(),
	}, nil
}

func (e *effects) applyMovement(ctx context.Context, ec *EffectContext, item *model.InventoryItem, movementType string, quantity int, reference string) (*model.StockMovement, error) {
	docID := ec.Document.ID
	actorID := ec.Actor.UserID
	movement := &model.StockMovement{
		ID:           uuid.New(),
		ItemID:       item.ID,
		DocumentID:   &docID,
		MovementType: movementType,
		Quantity:     quantity,
		StockBefore:  item.StockOnHand,
		Reference:    reference,
		CreatedBy:    &actorID,
		CreatedAt:    ec.Now,
	}
	movement.StockAfter = movement.StockBefore + movement.Delta()
	if movement.StockAfter < 0 {
		return nil, insufficientStock(item, quantity)
	}

	item.StockOnHand = movement.StockAfter
	if err := e.inventory.SaveStock(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to update stock: %w", err)
	}
	if err := e.inventory.AppendMovement(ctx, movement); err != nil {
		return nil, fmt.Errorf("failed to write stock movement: %w", err)
	}
	return movement, nil
}
