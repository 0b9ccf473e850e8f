package model

import (
	"time"

	"github.com/google/uuid"
)

// Delegation lets a delegate user act with the delegator's office role inside [ValidFrom, ValidTo).
type Delegation struct {
	ID              uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	DelegatorRole   string     `gorm:"type:varchar(50);not null;index:idx_delegations_lookup" json:"delegator_role"`
	DelegatorUserID uuid.UUID  `gorm:"type:uuid;not null" json:"delegator_user_id"`
	DelegateUserID  uuid.UUID  `gorm:"type:uuid;not null;index:idx_delegations_lookup" json:"delegate_user_id"`
	ValidFrom       time.Time  `gorm:"not null" json:"valid_from"`
	ValidTo         time.Time  `gorm:"not null" json:"valid_to"`
	RevokedAt       *time.Time `json:"revoked_at,omitempty"`
	Reason          string     `gorm:"type:text" json:"reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ActiveAt reports whether the delegation authorizes its delegate at t.
func (d Delegation) ActiveAt(t time.Time) bool {
	return d.RevokedAt == nil && !t.Before(d.ValidFrom) && t.Before(d.ValidTo)
}
