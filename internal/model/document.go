package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Document types
const (
	DocSupplyRequest       = "SUPPLY_REQUEST"
	DocPurchaseRequest     = "PURCHASE_REQUEST"
	DocPPMP                = "PPMP"
	DocORS                 = "ORS"
	DocPurchaseOrder       = "PURCHASE_ORDER"
	DocDisbursementVoucher = "DISBURSEMENT_VOUCHER"
	DocCheque              = "CHEQUE"
)

// States referenced by side-effect handlers. The full state sets live in the
// workflow definition.
const (
	StatePPMPApproved     = "APPROVED"
	StatePPMPConsolidated = "CONSOLIDATED_INTO_APP"
	StatePPMPHoPEApproved = "HOPE_APPROVED"
	StatePRSubmitted      = "SUBMITTED"
	StatePRPendingPPMP    = "PENDING_PPMP"
	StatePRDVProcessing   = "DV_PROCESSING"
	StateDVDraft          = "DRAFT"
	StateDVChequeIssued   = "CHEQUE_ISSUED"
	StateDVReconciled     = "RECONCILED"
	StateRejected         = "REJECTED"
	StateCancelled        = "CANCELLED"
)

// Link relations: the relation names the type of the referenced document.
const (
	RelationPPMP                = "ppmp"
	RelationPurchaseRequest     = "purchase_request"
	RelationDisbursementVoucher = "disbursement_voucher"
)

// TransitionCreate is recorded as the transition name of a document's first audit entry.
const TransitionCreate = "create"

// Document is one tracked procurement document of any type
type Document struct {
	ID              uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	DocumentType    string           `gorm:"type:varchar(40);not null;index:idx_documents_type_state" json:"document_type"`
	TrackingID      string           `gorm:"type:varchar(40);uniqueIndex;not null" json:"tracking_id"`
	Title           string           `gorm:"type:varchar(255);not null" json:"title"`
	CurrentState    string           `gorm:"type:varchar(40);not null;index:idx_documents_type_state" json:"current_state"`
	Version         int              `gorm:"not null;default:1" json:"version"`  // optimistic concurrency counter
	Revision        int              `gorm:"not null;default:1" json:"revision"` // content revision, bumped by amendments
	CreatedBy       uuid.UUID        `gorm:"type:uuid;not null;index" json:"created_by"`
	OwnerOffice     string           `gorm:"type:varchar(50);not null;index" json:"owner_office"`
	Amount          *decimal.Decimal `gorm:"type:decimal(18,2)" json:"amount,omitempty"`
	AllocationID    *uuid.UUID       `gorm:"type:uuid;index" json:"allocation_id,omitempty"`
	InventoryItemID *uuid.UUID       `gorm:"type:uuid;index" json:"inventory_item_id,omitempty"`
	Quantity        int              `gorm:"not null;default:0" json:"quantity"`
	Details         datatypes.JSON   `gorm:"type:jsonb" json:"details,omitempty"`
	Links           []DocumentLink   `gorm:"foreignKey:DocumentID" json:"links,omitempty"`
	CreatedAt       time.Time        `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// DocumentLink is an ordered reference from one document to another (PR -> PPMP, DV -> PR)
type DocumentLink struct {
	ID               uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	DocumentID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_document_links_pair" json:"document_id"`
	LinkedDocumentID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_document_links_pair;index" json:"linked_document_id"`
	Relation         string    `gorm:"type:varchar(40);not null" json:"relation"`
	Position         int       `gorm:"not null;default:0" json:"position"`
	CreatedAt        time.Time `json:"created_at"`
}

// Stage is a (document type, state) pair.
type Stage struct {
	DocumentType string `json:"document_type"`
	State        string `json:"state"`
}

// StateCount is a projection row: number of documents sitting in one stage.
type StateCount struct {
	DocumentType string `json:"document_type"`
	State        string `json:"state"`
	Total        int64  `json:"total"`
}

// TrendPoint is a projection row: documents created within one period.
type TrendPoint struct {
	Period time.Time `json:"period"`
	Total  int64     `json:"total"`
}
