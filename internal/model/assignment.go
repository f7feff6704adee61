package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRole assigns a role to a user, optionally narrowed to one department
// or branch, inside an effective-date window. The same role may be held
// several times with different scopes; the unique index keeps exact
// duplicates out.
type UserRole struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_user_role_scope;index" json:"user_id"`
	RoleID         uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_user_role_scope;index" json:"role_id"`
	Role           *Role      `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE" json:"role,omitempty"`
	DepartmentID   *uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_user_role_scope" json:"department_id,omitempty"`
	BranchID       *uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_user_role_scope" json:"branch_id,omitempty"`
	IsActive       bool       `gorm:"default:true" json:"is_active"`
	EffectiveFrom  time.Time  `gorm:"not null" json:"effective_from"`
	EffectiveUntil *time.Time `json:"effective_until,omitempty"`
	AssignedBy     *uuid.UUID `gorm:"type:uuid" json:"assigned_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (ur *UserRole) BeforeCreate(tx *gorm.DB) error {
	if ur.ID == uuid.Nil {
		ur.ID = uuid.New()
	}
	if ur.EffectiveFrom.IsZero() {
		ur.EffectiveFrom = time.Now()
	}
	return nil
}

// EffectiveAt reports whether the assignment is live at the given instant.
func (ur *UserRole) EffectiveAt(at time.Time) bool {
	if !ur.IsActive || ur.EffectiveFrom.After(at) {
		return false
	}
	return ur.EffectiveUntil == nil || ur.EffectiveUntil.After(at)
}

// UserPermission grants or denies a single permission directly to a user,
// bypassing roles. IsGranted false is an explicit denial that outranks any
// role-derived grant. ResourceID narrows the entry to one resource instance;
// nil covers every instance.
type UserPermission struct {
	ID             uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_user_permission_scope;index" json:"user_id"`
	PermissionID   uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_user_permission_scope;index" json:"permission_id"`
	Permission     *Permission `gorm:"foreignKey:PermissionID;constraint:OnDelete:CASCADE" json:"permission,omitempty"`
	IsGranted      bool        `gorm:"not null" json:"is_granted"`
	ResourceID     *uuid.UUID  `gorm:"type:uuid;uniqueIndex:idx_user_permission_scope" json:"resource_id,omitempty"`
	DepartmentID   *uuid.UUID  `gorm:"type:uuid;uniqueIndex:idx_user_permission_scope" json:"department_id,omitempty"`
	BranchID       *uuid.UUID  `gorm:"type:uuid;uniqueIndex:idx_user_permission_scope" json:"branch_id,omitempty"`
	Conditions     string      `gorm:"type:jsonb" json:"conditions,omitempty"`
	IsActive       bool        `gorm:"default:true" json:"is_active"`
	EffectiveFrom  time.Time   `gorm:"not null" json:"effective_from"`
	EffectiveUntil *time.Time  `json:"effective_until,omitempty"`
	OverrideReason string      `gorm:"type:text" json:"override_reason,omitempty"`
	GrantedBy      *uuid.UUID  `gorm:"type:uuid" json:"granted_by,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

func (up *UserPermission) BeforeCreate(tx *gorm.DB) error {
	if up.ID == uuid.Nil {
		up.ID = uuid.New()
	}
	if up.EffectiveFrom.IsZero() {
		up.EffectiveFrom = time.Now()
	}
	if up.Conditions == "" {
		up.Conditions = "{}"
	}
	return nil
}

// EffectiveAt reports whether the entry is live at the given instant.
func (up *UserPermission) EffectiveAt(at time.Time) bool {
	if !up.IsActive || up.EffectiveFrom.After(at) {
		return false
	}
	return up.EffectiveUntil == nil || up.EffectiveUntil.After(at)
}
