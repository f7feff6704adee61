package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role aggregates permissions through explicit RolePermission grants.
// Level orders seniority for display and reporting; ParentRoleID records
// lineage but is never walked during permission evaluation, so a role holds
// exactly the permissions granted to it directly.
type Role struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string     `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
	DisplayName  string     `gorm:"type:varchar(150);not null" json:"display_name"`
	Description  string     `gorm:"type:text" json:"description"`
	Level        int        `gorm:"not null;default:0" json:"level"`
	ParentRoleID *uuid.UUID `gorm:"type:uuid" json:"parent_role_id,omitempty"`
	ParentRole   *Role      `gorm:"foreignKey:ParentRoleID" json:"-"`
	IsSystemRole bool       `gorm:"default:false" json:"is_system_role"` // Prevent mutation of seeded roles
	IsDefault    bool       `gorm:"default:false" json:"is_default"`     // Assigned to new users absent an explicit role
	IsActive     bool       `gorm:"default:true" json:"is_active"`
	// Optional restrictions on where the role may be assigned, stored as
	// JSON arrays of department/branch ids. Empty means unrestricted.
	AllowedDepartments string           `gorm:"type:jsonb" json:"allowed_departments,omitempty"`
	AllowedBranches    string           `gorm:"type:jsonb" json:"allowed_branches,omitempty"`
	Permissions        []RolePermission `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE" json:"permissions,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

func (r *Role) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	// jsonb columns reject the empty string
	if r.AllowedDepartments == "" {
		r.AllowedDepartments = "[]"
	}
	if r.AllowedBranches == "" {
		r.AllowedBranches = "[]"
	}
	return nil
}

// RolePermission grants (or, with IsGranted false, explicitly withholds) a
// catalog permission to every holder of a role. One row per (role, permission).
type RolePermission struct {
	ID           uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	RoleID       uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_role_permission;index" json:"role_id"`
	PermissionID uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_role_permission;index" json:"permission_id"`
	Permission   *Permission `gorm:"foreignKey:PermissionID;constraint:OnDelete:CASCADE" json:"permission,omitempty"`
	IsGranted    bool        `gorm:"not null" json:"is_granted"`
	Conditions   string      `gorm:"type:jsonb" json:"conditions,omitempty"`
	GrantedBy    *uuid.UUID  `gorm:"type:uuid" json:"granted_by,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

func (rp *RolePermission) BeforeCreate(tx *gorm.DB) error {
	if rp.ID == uuid.Nil {
		rp.ID = uuid.New()
	}
	if rp.Conditions == "" {
		rp.Conditions = "{}"
	}
	return nil
}
