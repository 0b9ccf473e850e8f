package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Budget entry types
const (
	BudgetEntryReserve    = "RESERVE"
	BudgetEntryRelease    = "RELEASE"
	BudgetEntryAdjustment = "ADJUSTMENT"
)

// BudgetAllocation is one budget ledger line. Available = Allocated - Obligated and never goes negative.
type BudgetAllocation struct {
	ID              uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Code            string          `gorm:"type:varchar(60);uniqueIndex;not null" json:"code"`
	FiscalYear      int             `gorm:"not null;index" json:"fiscal_year"`
	Office          string          `gorm:"type:varchar(50)" json:"office"`
	Description     string          `gorm:"type:varchar(255)" json:"description"`
	AllocatedAmount decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"allocated_amount"`
	ObligatedAmount decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"obligated_amount"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Available returns allocated minus obligated.
func (a BudgetAllocation) Available() decimal.Decimal {
	return a.AllocatedAmount.Sub(a.ObligatedAmount)
}

// BudgetEntry records one change to an allocation's obligated (or allocated) amount.
type BudgetEntry struct {
	ID              uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	AllocationID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"allocation_id"`
	DocumentID      *uuid.UUID      `gorm:"type:uuid;index" json:"document_id,omitempty"`
	EntryType       string          `gorm:"type:varchar(20);not null" json:"entry_type"`
	Amount          decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	ObligatedBefore decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"obligated_before"`
	ObligatedAfter  decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"obligated_after"`
	Note            string          `gorm:"type:text" json:"note,omitempty"`
	CreatedBy       *uuid.UUID      `gorm:"type:uuid" json:"created_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}
