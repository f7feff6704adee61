package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	AuditActionPermissionCreated = "PERMISSION_CREATED"
	AuditActionPermissionUpdated = "PERMISSION_UPDATED"
	AuditActionPermissionDeleted = "PERMISSION_DELETED"

	AuditActionRoleCreated = "ROLE_CREATED"
	AuditActionRoleUpdated = "ROLE_UPDATED"
	AuditActionRoleDeleted = "ROLE_DELETED"

	AuditActionRolePermissionGranted = "ROLE_PERMISSION_GRANTED"
	AuditActionRolePermissionRevoked = "ROLE_PERMISSION_REVOKED"

	// User-level assignment actions
	AuditActionRoleAssigned      = "ROLE_ASSIGNED"
	AuditActionRoleRevoked       = "ROLE_REVOKED"
	AuditActionPermissionGranted = "PERMISSION_GRANTED"
	AuditActionPermissionRevoked = "PERMISSION_REVOKED"

	AuditActionTemplateCreated  = "TEMPLATE_CREATED"
	AuditActionTemplateApplied  = "TEMPLATE_APPLIED"
	AuditActionTemplateImported = "TEMPLATE_IMPORTED"
	AuditActionTemplateDeleted  = "TEMPLATE_DELETED"
)

// Audited entity kinds, stored in PermissionAuditEntry.EntityType.
const (
	AuditEntityPermission     = "permission"
	AuditEntityRole           = "role"
	AuditEntityUserRole       = "user_role"
	AuditEntityUserPermission = "user_permission"
	AuditEntityTemplate       = "template"
)

// PermissionAuditEntry records Who changed What and When for every mutation
// of the permission system. Entries are append-only; nothing updates or
// deletes them.
type PermissionAuditEntry struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Action       string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityType   string     `gorm:"type:varchar(50);not null;index" json:"entity_type"`
	EntityID     string     `gorm:"type:varchar(64);index" json:"entity_id"`
	UserID       *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"` // Acting user; nil for system jobs
	User         *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	TargetUserID *uuid.UUID `gorm:"type:uuid;index" json:"target_user_id,omitempty"`
	TargetRoleID *uuid.UUID `gorm:"type:uuid" json:"target_role_id,omitempty"`
	PermissionID *uuid.UUID `gorm:"type:uuid" json:"permission_id,omitempty"`
	Details      string     `gorm:"type:jsonb" json:"details"` // Serialized JSON payload of the change
	Reason       string     `gorm:"type:text" json:"reason,omitempty"`
	IPAddress    string     `gorm:"type:varchar(45)" json:"ip_address,omitempty"`
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`
}

func (e *PermissionAuditEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
