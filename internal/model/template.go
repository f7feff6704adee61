package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TemplateType categorizes how a permission template came to exist.
type TemplateType string

const (
	TemplateTypeRole               TemplateType = "role"
	TemplateTypeDepartment         TemplateType = "department"
	TemplateTypePosition           TemplateType = "position"
	TemplateTypeGeneratedFromRoles TemplateType = "generated_from_roles"
	TemplateTypeBulkGenerated      TemplateType = "bulk_generated"
)

// Valid reports whether t is one of the known template types.
func (t TemplateType) Valid() bool {
	switch t {
	case TemplateTypeRole, TemplateTypeDepartment, TemplateTypePosition,
		TemplateTypeGeneratedFromRoles, TemplateTypeBulkGenerated:
		return true
	}
	return false
}

// ParseTemplateType converts a wire string into a TemplateType.
func ParseTemplateType(s string) (TemplateType, bool) {
	t := TemplateType(s)
	return t, t.Valid()
}

// PermissionTemplate is a named, reusable set of permissions that can be
// applied to roles or users in one operation. Permissions holds an ordered
// JSON array of permission ids.
type PermissionTemplate struct {
	ID                uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Name              string       `gorm:"type:varchar(150);uniqueIndex;not null" json:"name"`
	Description       string       `gorm:"type:text" json:"description"`
	Permissions       string       `gorm:"type:jsonb;not null" json:"permissions"`
	TemplateType      TemplateType `gorm:"type:varchar(30);not null;default:'role'" json:"template_type"`
	DefaultConditions string       `gorm:"type:jsonb" json:"default_conditions,omitempty"`
	UsageCount        int          `gorm:"not null;default:0" json:"usage_count"`
	IsSystemTemplate  bool         `gorm:"default:false" json:"is_system_template"`
	IsActive          bool         `gorm:"default:true" json:"is_active"`
	CreatedBy         *uuid.UUID   `gorm:"type:uuid" json:"created_by,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

func (t *PermissionTemplate) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Permissions == "" {
		t.Permissions = "[]"
	}
	if t.DefaultConditions == "" {
		t.DefaultConditions = "{}"
	}
	return nil
}

// PermissionIDs decodes the stored permission id list.
func (t *PermissionTemplate) PermissionIDs() ([]uuid.UUID, error) {
	if t.Permissions == "" {
		return nil, nil
	}
	var ids []uuid.UUID
	if err := json.Unmarshal([]byte(t.Permissions), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// SetPermissionIDs encodes ids into the stored JSON list, preserving order.
func (t *PermissionTemplate) SetPermissionIDs(ids []uuid.UUID) error {
	if ids == nil {
		ids = []uuid.UUID{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	t.Permissions = string(raw)
	return nil
}
