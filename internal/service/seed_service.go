package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/parkkyonghun0510/lc-le-sub001/internal/model"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SeedResult reports what a seed run actually created. A rerun against an
// already seeded database reports zeros everywhere.
type SeedResult struct {
	PermissionsCreated int `json:"permissions_created"`
	RolesCreated       int `json:"roles_created"`
	GrantsCreated      int `json:"grants_created"`
	TemplatesCreated   int `json:"templates_created"`
}

// SeedService installs the standard permission catalog, roles and templates.
// Every row is found-or-created by its natural key (permission triple, role
// name, template name), so the run is idempotent and never overwrites rows
// an administrator has since edited. The whole run is one transaction.
type SeedService interface {
	Run(ctx context.Context) (*SeedResult, error)
}

type seedService struct {
	permissions repository.PermissionRepository
	roles       repository.RoleRepository
	templates   repository.TemplateRepository
	tx          repository.TransactionManager
}

// NewSeedService returns a new instance of SeedService
func NewSeedService(
	permissions repository.PermissionRepository,
	roles repository.RoleRepository,
	templates repository.TemplateRepository,
	tx repository.TransactionManager,
) SeedService {
	return &seedService{permissions: permissions, roles: roles, templates: templates, tx: tx}
}

type seedTriple struct {
	resource model.ResourceType
	action   model.PermissionAction
	scope    model.PermissionScope
}

// seedMatrix is the standard catalog: per resource, the actions that make
// sense on it and the scopes each action can be held at.
var seedMatrix = []struct {
	resource model.ResourceType
	actions  []model.PermissionAction
	scopes   []model.PermissionScope
}{
	{
		resource: model.ResourceUser,
		actions: []model.PermissionAction{
			model.ActionCreate, model.ActionRead, model.ActionUpdate, model.ActionDelete, model.ActionAssign,
		},
		scopes: []model.PermissionScope{model.ScopeGlobal, model.ScopeDepartment, model.ScopeBranch},
	},
	{
		resource: model.ResourceApplication,
		actions: []model.PermissionAction{
			model.ActionCreate, model.ActionRead, model.ActionUpdate, model.ActionDelete,
			model.ActionApprove, model.ActionReject, model.ActionAssign, model.ActionExport,
		},
		scopes: []model.PermissionScope{
			model.ScopeGlobal, model.ScopeDepartment, model.ScopeBranch, model.ScopeTeam, model.ScopeOwn,
		},
	},
	{
		resource: model.ResourceDepartment,
		actions: []model.PermissionAction{
			model.ActionCreate, model.ActionRead, model.ActionUpdate, model.ActionDelete, model.ActionManage,
		},
		scopes: []model.PermissionScope{model.ScopeGlobal, model.ScopeDepartment},
	},
	{
		resource: model.ResourceBranch,
		actions: []model.PermissionAction{
			model.ActionCreate, model.ActionRead, model.ActionUpdate, model.ActionDelete, model.ActionManage,
		},
		scopes: []model.PermissionScope{model.ScopeGlobal},
	},
	{
		resource: model.ResourceFile,
		actions: []model.PermissionAction{
			model.ActionCreate, model.ActionRead, model.ActionUpdate, model.ActionDelete, model.ActionExport,
		},
		scopes: []model.PermissionScope{model.ScopeGlobal, model.ScopeDepartment, model.ScopeBranch, model.ScopeOwn},
	},
	{
		resource: model.ResourceFolder,
		actions: []model.PermissionAction{
			model.ActionCreate, model.ActionRead, model.ActionUpdate, model.ActionDelete, model.ActionManage,
		},
		scopes: []model.PermissionScope{model.ScopeGlobal, model.ScopeDepartment, model.ScopeBranch, model.ScopeOwn},
	},
	{
		resource: model.ResourceAnalytics,
		actions: []model.PermissionAction{
			model.ActionRead, model.ActionExport, model.ActionViewAll, model.ActionViewOwn,
			model.ActionViewTeam, model.ActionViewDepartment, model.ActionViewBranch,
		},
		scopes: []model.PermissionScope{model.ScopeGlobal},
	},
	{
		resource: model.ResourceNotification,
		actions:  []model.PermissionAction{model.ActionRead, model.ActionManage},
		scopes:   []model.PermissionScope{model.ScopeGlobal, model.ScopeOwn},
	},
	{
		resource: model.ResourceAudit,
		actions:  []model.PermissionAction{model.ActionRead, model.ActionExport, model.ActionManage},
		scopes:   []model.PermissionScope{model.ScopeGlobal, model.ScopeDepartment},
	},
	{
		resource: model.ResourceSystem,
		actions:  []model.PermissionAction{model.ActionRead, model.ActionUpdate, model.ActionManage},
		scopes:   []model.PermissionScope{model.ScopeGlobal},
	},
}

type seedRole struct {
	name        string
	displayName string
	description string
	level       int
	isDefault   bool
	// allPermissions grants the full catalog; otherwise grants lists the
	// specific triples.
	allPermissions bool
	grants         []seedTriple
}

var seedRoles = []seedRole{
	{
		name:           "admin",
		displayName:    "Administrator",
		description:    "Full access to every resource and the system itself",
		level:          100,
		allPermissions: true,
	},
	{
		name:        "branch_manager",
		displayName: "Branch Manager",
		description: "Runs a branch: staff, applications and approvals within it",
		level:       80,
		grants: []seedTriple{
			{model.ResourceUser, model.ActionRead, model.ScopeBranch},
			{model.ResourceUser, model.ActionUpdate, model.ScopeBranch},
			{model.ResourceUser, model.ActionAssign, model.ScopeBranch},
			{model.ResourceApplication, model.ActionRead, model.ScopeBranch},
			{model.ResourceApplication, model.ActionUpdate, model.ScopeBranch},
			{model.ResourceApplication, model.ActionApprove, model.ScopeBranch},
			{model.ResourceApplication, model.ActionReject, model.ScopeBranch},
			{model.ResourceApplication, model.ActionAssign, model.ScopeBranch},
			{model.ResourceApplication, model.ActionExport, model.ScopeBranch},
			{model.ResourceDepartment, model.ActionRead, model.ScopeDepartment},
			{model.ResourceBranch, model.ActionRead, model.ScopeGlobal},
			{model.ResourceFile, model.ActionCreate, model.ScopeBranch},
			{model.ResourceFile, model.ActionRead, model.ScopeBranch},
			{model.ResourceFile, model.ActionUpdate, model.ScopeBranch},
			{model.ResourceFile, model.ActionExport, model.ScopeBranch},
			{model.ResourceFolder, model.ActionCreate, model.ScopeBranch},
			{model.ResourceFolder, model.ActionRead, model.ScopeBranch},
			{model.ResourceFolder, model.ActionUpdate, model.ScopeBranch},
			{model.ResourceFolder, model.ActionManage, model.ScopeBranch},
			{model.ResourceAnalytics, model.ActionViewBranch, model.ScopeGlobal},
			{model.ResourceNotification, model.ActionRead, model.ScopeOwn},
			{model.ResourceNotification, model.ActionManage, model.ScopeOwn},
			{model.ResourceAudit, model.ActionRead, model.ScopeDepartment},
		},
	},
	{
		name:        "reviewer",
		displayName: "Application Reviewer",
		description: "Reviews and decides loan applications within a department",
		level:       60,
		grants: []seedTriple{
			{model.ResourceApplication, model.ActionRead, model.ScopeDepartment},
			{model.ResourceApplication, model.ActionUpdate, model.ScopeDepartment},
			{model.ResourceApplication, model.ActionApprove, model.ScopeDepartment},
			{model.ResourceApplication, model.ActionReject, model.ScopeDepartment},
			{model.ResourceFile, model.ActionRead, model.ScopeDepartment},
			{model.ResourceFolder, model.ActionRead, model.ScopeDepartment},
			{model.ResourceAnalytics, model.ActionViewDepartment, model.ScopeGlobal},
			{model.ResourceNotification, model.ActionRead, model.ScopeOwn},
		},
	},
	{
		name:        "credit_officer",
		displayName: "Credit Officer",
		description: "Originates applications and manages the team pipeline",
		level:       50,
		grants: []seedTriple{
			{model.ResourceUser, model.ActionRead, model.ScopeBranch},
			{model.ResourceApplication, model.ActionCreate, model.ScopeBranch},
			{model.ResourceApplication, model.ActionRead, model.ScopeTeam},
			{model.ResourceApplication, model.ActionUpdate, model.ScopeTeam},
			{model.ResourceApplication, model.ActionAssign, model.ScopeTeam},
			{model.ResourceFile, model.ActionCreate, model.ScopeOwn},
			{model.ResourceFile, model.ActionRead, model.ScopeOwn},
			{model.ResourceFile, model.ActionUpdate, model.ScopeOwn},
			{model.ResourceFolder, model.ActionCreate, model.ScopeOwn},
			{model.ResourceFolder, model.ActionRead, model.ScopeOwn},
			{model.ResourceAnalytics, model.ActionViewTeam, model.ScopeGlobal},
			{model.ResourceNotification, model.ActionRead, model.ScopeOwn},
		},
	},
	{
		name:        "portfolio_officer",
		displayName: "Portfolio Officer",
		description: "Manages an own book of applications and documents",
		level:       40,
		grants: []seedTriple{
			{model.ResourceApplication, model.ActionCreate, model.ScopeOwn},
			{model.ResourceApplication, model.ActionRead, model.ScopeOwn},
			{model.ResourceApplication, model.ActionUpdate, model.ScopeOwn},
			{model.ResourceApplication, model.ActionExport, model.ScopeOwn},
			{model.ResourceFile, model.ActionCreate, model.ScopeOwn},
			{model.ResourceFile, model.ActionRead, model.ScopeOwn},
			{model.ResourceFile, model.ActionUpdate, model.ScopeOwn},
			{model.ResourceFolder, model.ActionCreate, model.ScopeOwn},
			{model.ResourceFolder, model.ActionRead, model.ScopeOwn},
			{model.ResourceAnalytics, model.ActionViewOwn, model.ScopeGlobal},
			{model.ResourceNotification, model.ActionRead, model.ScopeOwn},
		},
	},
	{
		name:        "teller",
		displayName: "Teller",
		description: "Front desk: looks up branch applications and files",
		level:       30,
		grants: []seedTriple{
			{model.ResourceApplication, model.ActionRead, model.ScopeBranch},
			{model.ResourceFile, model.ActionRead, model.ScopeBranch},
			{model.ResourceNotification, model.ActionRead, model.ScopeOwn},
		},
	},
	{
		name:        "data_entry_clerk",
		displayName: "Data Entry Clerk",
		description: "Captures application data; the default role for new users",
		level:       20,
		isDefault:   true,
		grants: []seedTriple{
			{model.ResourceApplication, model.ActionCreate, model.ScopeOwn},
			{model.ResourceApplication, model.ActionRead, model.ScopeOwn},
			{model.ResourceApplication, model.ActionUpdate, model.ScopeOwn},
			{model.ResourceFile, model.ActionCreate, model.ScopeOwn},
			{model.ResourceFile, model.ActionRead, model.ScopeOwn},
			{model.ResourceFolder, model.ActionRead, model.ScopeOwn},
			{model.ResourceNotification, model.ActionRead, model.ScopeOwn},
		},
	},
}

func allSeedTriples() []seedTriple {
	var triples []seedTriple
	for _, row := range seedMatrix {
		for _, action := range row.actions {
			for _, scope := range row.scopes {
				triples = append(triples, seedTriple{row.resource, action, scope})
			}
		}
	}
	return triples
}

func seedPermissionName(t seedTriple) string {
	return strings.ToLower(fmt.Sprintf("%s:%s:%s", t.resource, t.action, t.scope))
}

func seedTemplateName(roleName string) string {
	return "role:" + roleName
}

func (s *seedService) Run(ctx context.Context) (*SeedResult, error) {
	var res SeedResult
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		permIDs, err := s.seedPermissions(txCtx, &res)
		if err != nil {
			return err
		}
		roleIDs, grantsByRole, err := s.seedRoles(txCtx, permIDs, &res)
		if err != nil {
			return err
		}
		return s.seedTemplates(txCtx, roleIDs, grantsByRole, &res)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("seed: %d permissions, %d roles, %d grants, %d templates created",
		res.PermissionsCreated, res.RolesCreated, res.GrantsCreated, res.TemplatesCreated)
	return &res, nil
}

func (s *seedService) seedPermissions(ctx context.Context, res *SeedResult) (map[seedTriple]uuid.UUID, error) {
	triples := allSeedTriples()
	ids := make(map[seedTriple]uuid.UUID, len(triples))

	for _, t := range triples {
		existing, err := s.permissions.FindByTriple(ctx, t.resource, t.action, t.scope)
		if err == nil {
			ids[t] = existing.ID
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to look up permission %s: %w", seedPermissionName(t), err)
		}

		perm := &model.Permission{
			Name:               seedPermissionName(t),
			Description:        fmt.Sprintf("%s %s within %s scope", t.action, t.resource, t.scope),
			ResourceType:       t.resource,
			Action:             t.action,
			Scope:              t.scope,
			IsSystemPermission: true,
			IsActive:           true,
		}
		if err := s.permissions.Create(ctx, perm); err != nil {
			return nil, fmt.Errorf("failed to create permission %s: %w", perm.Name, err)
		}
		ids[t] = perm.ID
		res.PermissionsCreated++
	}
	return ids, nil
}

// seedRoles creates the standard roles and their grants. Existing roles and
// existing grant rows are left exactly as found, so deliberate admin edits
// survive reruns.
func (s *seedService) seedRoles(ctx context.Context, permIDs map[seedTriple]uuid.UUID, res *SeedResult) (map[string]uuid.UUID, map[string][]uuid.UUID, error) {
	roleIDs := make(map[string]uuid.UUID, len(seedRoles))
	grantsByRole := make(map[string][]uuid.UUID, len(seedRoles))

	for _, def := range seedRoles {
		role, err := s.roles.FindByName(ctx, def.name)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			role = &model.Role{
				Name:         def.name,
				DisplayName:  def.displayName,
				Description:  def.description,
				Level:        def.level,
				IsSystemRole: true,
				IsDefault:    def.isDefault,
				IsActive:     true,
			}
			if err := s.roles.Create(ctx, role); err != nil {
				return nil, nil, fmt.Errorf("failed to create role %s: %w", def.name, err)
			}
			res.RolesCreated++
		} else if err != nil {
			return nil, nil, fmt.Errorf("failed to look up role %s: %w", def.name, err)
		}
		roleIDs[def.name] = role.ID

		triples := def.grants
		if def.allPermissions {
			triples = allSeedTriples()
		}
		for _, t := range triples {
			permID, ok := permIDs[t]
			if !ok {
				return nil, nil, fmt.Errorf("role %s references unseeded permission %s", def.name, seedPermissionName(t))
			}
			grantsByRole[def.name] = append(grantsByRole[def.name], permID)

			if _, err := s.roles.FindGrant(ctx, role.ID, permID); err == nil {
				continue
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil, fmt.Errorf("failed to look up grant for role %s: %w", def.name, err)
			}
			grant := &model.RolePermission{
				RoleID:       role.ID,
				PermissionID: permID,
				IsGranted:    true,
			}
			if err := s.roles.CreateGrant(ctx, grant); err != nil {
				return nil, nil, fmt.Errorf("failed to grant %s to role %s: %w", seedPermissionName(t), def.name, err)
			}
			res.GrantsCreated++
		}
	}
	return roleIDs, grantsByRole, nil
}

func (s *seedService) seedTemplates(ctx context.Context, roleIDs map[string]uuid.UUID, grantsByRole map[string][]uuid.UUID, res *SeedResult) error {
	for _, def := range seedRoles {
		name := seedTemplateName(def.name)
		if _, err := s.templates.FindByName(ctx, name); err == nil {
			continue
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to look up template %s: %w", name, err)
		}

		tpl := &model.PermissionTemplate{
			Name:             name,
			Description:      "Standard grants for " + def.displayName,
			TemplateType:     model.TemplateTypeRole,
			IsSystemTemplate: true,
			IsActive:         true,
		}
		if err := tpl.SetPermissionIDs(grantsByRole[def.name]); err != nil {
			return fmt.Errorf("failed to encode permission list for template %s: %w", name, err)
		}
		if err := s.templates.Create(ctx, tpl); err != nil {
			return fmt.Errorf("failed to create template %s: %w", name, err)
		}
		res.TemplatesCreated++
	}
	return nil
}
