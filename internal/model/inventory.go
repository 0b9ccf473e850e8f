package model

import (
	"time"

	"github.com/google/uuid"
)

// InventoryItem is a stocked supply. StockOnHand never goes negative.
type InventoryItem struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SKU         string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"sku"`
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	Unit        string    `gorm:"type:varchar(30);not null;default:'pc'" json:"unit"`
	StockOnHand int       `gorm:"type:int;default:0;not null" json:"stock_on_hand"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Movement types
const (
	MovementIn         = "IN"
	MovementOut        = "OUT"
	MovementAdjustment = "ADJUSTMENT"
	MovementReturn     = "RETURN"
)

// StockMovement is the stock card line: StockAfter = StockBefore +/- Quantity.
// ADJUSTMENT carries a signed quantity, the other types a positive one.
type StockMovement struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ItemID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"item_id"`
	DocumentID   *uuid.UUID `gorm:"type:uuid;index" json:"document_id,omitempty"` // nil for manual receipts/adjustments
	MovementType string     `gorm:"type:varchar(20);not null" json:"movement_type"`
	Quantity     int        `gorm:"type:int;not null" json:"quantity"`
	StockBefore  int        `gorm:"type:int;not null" json:"stock_before"`
	StockAfter   int        `gorm:"type:int;not null" json:"stock_after"`
	Reference    string     `gorm:"type:varchar(60)" json:"reference,omitempty"`
	Note         string     `gorm:"type:text" json:"note,omitempty"`
	CreatedBy    *uuid.UUID `gorm:"type:uuid" json:"created_by,omitempty"`
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`
}

// Delta returns the signed stock change the movement applies.
func (m StockMovement) Delta() int {
	if m.MovementType == MovementOut {
		return -m.Quantity
	}
	return m.Quantity
}
