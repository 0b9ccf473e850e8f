package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Office roles. Every user belongs to exactly one office.
const (
	RoleTeacher     = "TEACHER"
	RoleSupply      = "SUPPLY"
	RolePPMPManager = "PPMP_MANAGER"
	RolePrincipal   = "PRINCIPAL"
	RoleBudget      = "BUDGET"
	RoleProcurement = "PROCUREMENT"
	RoleBookkeeper  = "BOOKKEEPER"
	RolePayment     = "PAYMENT"
	RoleAdmin       = "ADMIN"
	RoleAuditor     = "AUDITOR"
)

// AllRoles lists every office role in display order.
var AllRoles = []string{
	RoleTeacher, RoleSupply, RolePPMPManager, RolePrincipal, RoleBudget,
	RoleProcurement, RoleBookkeeper, RolePayment, RoleAdmin, RoleAuditor,
}

// IsValidRole reports whether role is one of the office roles.
func IsValidRole(role string) bool {
	for _, r := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

// User is an account belonging to one school office
type User struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Username  string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"username"`
	Email     string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	FullName  string         `gorm:"type:varchar(255)" json:"full_name"`
	Password  string         `gorm:"type:varchar(255);not null" json:"-"`
	Role      string         `gorm:"type:varchar(50);not null;index" json:"role"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
