package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ResourceType identifies the category of entity a permission applies to.
type ResourceType string

const (
	ResourceUser         ResourceType = "USER"
	ResourceApplication  ResourceType = "APPLICATION"
	ResourceDepartment   ResourceType = "DEPARTMENT"
	ResourceBranch       ResourceType = "BRANCH"
	ResourceFile         ResourceType = "FILE"
	ResourceFolder       ResourceType = "FOLDER"
	ResourceAnalytics    ResourceType = "ANALYTICS"
	ResourceNotification ResourceType = "NOTIFICATION"
	ResourceAudit        ResourceType = "AUDIT"
	ResourceSystem       ResourceType = "SYSTEM"
)

// PermissionAction is the operation being performed on a resource.
type PermissionAction string

const (
	ActionCreate         PermissionAction = "CREATE"
	ActionRead           PermissionAction = "READ"
	ActionUpdate         PermissionAction = "UPDATE"
	ActionDelete         PermissionAction = "DELETE"
	ActionApprove        PermissionAction = "APPROVE"
	ActionReject         PermissionAction = "REJECT"
	ActionAssign         PermissionAction = "ASSIGN"
	ActionExport         PermissionAction = "EXPORT"
	ActionImport         PermissionAction = "IMPORT"
	ActionManage         PermissionAction = "MANAGE"
	ActionViewAll        PermissionAction = "VIEW_ALL"
	ActionViewOwn        PermissionAction = "VIEW_OWN"
	ActionViewTeam       PermissionAction = "VIEW_TEAM"
	ActionViewDepartment PermissionAction = "VIEW_DEPARTMENT"
	ActionViewBranch     PermissionAction = "VIEW_BRANCH"
)

// PermissionScope is the organizational breadth a permission covers.
type PermissionScope string

const (
	ScopeGlobal     PermissionScope = "GLOBAL"
	ScopeDepartment PermissionScope = "DEPARTMENT"
	ScopeBranch     PermissionScope = "BRANCH"
	ScopeTeam       PermissionScope = "TEAM"
	ScopeOwn        PermissionScope = "OWN"
)

// Valid reports whether r is one of the known resource types.
func (r ResourceType) Valid() bool {
	switch r {
	case ResourceUser, ResourceApplication, ResourceDepartment, ResourceBranch,
		ResourceFile, ResourceFolder, ResourceAnalytics, ResourceNotification,
		ResourceAudit, ResourceSystem:
		return true
	}
	return false
}

// Valid reports whether a is one of the known actions.
func (a PermissionAction) Valid() bool {
	switch a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionApprove,
		ActionReject, ActionAssign, ActionExport, ActionImport, ActionManage,
		ActionViewAll, ActionViewOwn, ActionViewTeam, ActionViewDepartment,
		ActionViewBranch:
		return true
	}
	return false
}

// Valid reports whether s is one of the known scopes.
func (s PermissionScope) Valid() bool {
	switch s {
	case ScopeGlobal, ScopeDepartment, ScopeBranch, ScopeTeam, ScopeOwn:
		return true
	}
	return false
}

// ParseResourceType converts a wire string into a ResourceType.
func ParseResourceType(s string) (ResourceType, bool) {
	r := ResourceType(s)
	return r, r.Valid()
}

// ParsePermissionAction converts a wire string into a PermissionAction.
func ParsePermissionAction(s string) (PermissionAction, bool) {
	a := PermissionAction(s)
	return a, a.Valid()
}

// ParsePermissionScope converts a wire string into a PermissionScope.
func ParsePermissionScope(s string) (PermissionScope, bool) {
	sc := PermissionScope(s)
	return sc, sc.Valid()
}

// Permission is one catalog entry: an action on a resource type at a scope.
// The (resource_type, action, scope) triple is the natural key; Name is a
// human-readable alias that must also be unique.
type Permission struct {
	ID                 uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	Name               string           `gorm:"type:varchar(150);uniqueIndex;not null" json:"name"`
	Description        string           `gorm:"type:text" json:"description"`
	ResourceType       ResourceType     `gorm:"type:varchar(30);not null;uniqueIndex:idx_permission_triple;index" json:"resource_type"`
	Action             PermissionAction `gorm:"type:varchar(30);not null;uniqueIndex:idx_permission_triple" json:"action"`
	Scope              PermissionScope  `gorm:"type:varchar(20);not null;uniqueIndex:idx_permission_triple" json:"scope"`
	IsSystemPermission bool             `gorm:"default:false" json:"is_system_permission"` // Seeded entries cannot be modified or deleted
	IsActive           bool             `gorm:"default:true" json:"is_active"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

func (p *Permission) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
