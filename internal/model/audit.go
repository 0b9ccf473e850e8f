package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AuditEntry is the immutable record of one committed document transition.
// Rows are only ever inserted.
type AuditEntry struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	DocumentID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"document_id"`
	DocumentType   string         `gorm:"type:varchar(40);not null" json:"document_type"`
	TrackingID     string         `gorm:"type:varchar(40);not null" json:"tracking_id"`
	Transition     string         `gorm:"type:varchar(60);not null" json:"transition"`
	ActorUserID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"actor_user_id"`
	ActorRole      string         `gorm:"type:varchar(50);not null" json:"actor_role"`
	OnBehalfOfRole string         `gorm:"type:varchar(50)" json:"on_behalf_of_role,omitempty"`
	DelegationID   *uuid.UUID     `gorm:"type:uuid" json:"delegation_id,omitempty"`
	FromState      string         `gorm:"type:varchar(40)" json:"from_state"`
	ToState        string         `gorm:"type:varchar(40);not null" json:"to_state"`
	Remarks        string         `gorm:"type:text" json:"remarks,omitempty"`
	SideEffect     datatypes.JSON `gorm:"type:jsonb" json:"side_effect,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;index" json:"created_at"`
}

const (
	ActionCreateUser       = "CREATE_USER"
	ActionUpdateUser       = "UPDATE_USER"
	ActionCreateAllocation = "CREATE_ALLOCATION"
	ActionAdjustAllocation = "ADJUST_ALLOCATION"
	ActionCreateItem       = "CREATE_INVENTORY_ITEM"
	ActionReceiveStock     = "RECEIVE_STOCK"
	ActionAdjustStock      = "ADJUST_STOCK"
	ActionCreateDelegation = "CREATE_DELEGATION"
	ActionRevokeDelegation = "REVOKE_DELEGATION"
)

// ActivityLog tracks Who, What, and When for administrative changes outside the document workflow
type ActivityLog struct {
	ID         uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     *uuid.UUID     `gorm:"type:uuid;index" json:"user_id"` // nil for system jobs
	User       *User          `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Action     string         `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string         `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string         `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    datatypes.JSON `gorm:"type:jsonb" json:"details"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}
