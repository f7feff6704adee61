package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/parkkyonghun0510/lc-le-sub001/internal/model"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/repository"
	"github.com/parkkyonghun0510/lc-le-sub001/pkg/apperror"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CreateRoleRequest struct {
	Name         string  `json:"name" binding:"required"`
	DisplayName  string  `json:"display_name" binding:"required"`
	Description  string  `json:"description"`
	Level        int     `json:"level"`
	ParentRoleID *string `json:"parent_role_id"`
	IsDefault    bool    `json:"is_default"`
}

type CreateRoleFromTemplateRequest struct {
	TemplateID  string `json:"template_id" binding:"required"`
	Name        string `json:"name" binding:"required"`
	DisplayName string `json:"display_name" binding:"required"`
	Description string `json:"description"`
	Level       int    `json:"level"`
}

type UpdateRoleRequest struct {
	Name        *string `json:"name"`
	DisplayName *string `json:"display_name"`
	Description *string `json:"description"`
	Level       *int    `json:"level"`
	IsActive    *bool   `json:"is_active"`
	IsDefault   *bool   `json:"is_default"`
}

type RoleResponse struct {
	ID              string               `json:"id"`
	Name            string               `json:"name"`
	DisplayName     string               `json:"display_name"`
	Description     string               `json:"description"`
	Level           int                  `json:"level"`
	ParentRoleID    *string              `json:"parent_role_id,omitempty"`
	IsSystemRole    bool                 `json:"is_system_role"`
	IsDefault       bool                 `json:"is_default"`
	IsActive        bool                 `json:"is_active"`
	PermissionCount int                  `json:"permission_count"`
	Permissions     []PermissionResponse `json:"permissions,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// PermissionMatrixResponse is the roles-by-permissions grid the admin UI
// renders. Assignments maps role id to the granted permission ids.
type PermissionMatrixResponse struct {
	Roles       []RoleResponse       `json:"roles"`
	Permissions []PermissionResponse `json:"permissions"`
	Assignments map[string][]string  `json:"assignments"`
}

type ToggleMatrixRequest struct {
	RoleID       string `json:"role_id" binding:"required"`
	PermissionID string `json:"permission_id" binding:"required"`
	IsGranted    bool   `json:"is_granted"`
}

// RoleService manages roles and their permission grants. Roles hold exactly
// the permissions granted to them; parent links are informational and never
// traversed when evaluating access.
type RoleService interface {
	Create(ctx context.Context, actor Actor, req CreateRoleRequest) (*RoleResponse, error)
	CreateFromTemplate(ctx context.Context, actor Actor, req CreateRoleFromTemplateRequest) (*RoleResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*RoleResponse, error)
	List(ctx context.Context, activeOnly bool) ([]RoleResponse, error)
	Update(ctx context.Context, actor Actor, id uuid.UUID, req UpdateRoleRequest) (*RoleResponse, error)
	Delete(ctx context.Context, actor Actor, id uuid.UUID) error

	GrantPermission(ctx context.Context, actor Actor, roleID, permissionID uuid.UUID) error
	RevokePermission(ctx context.Context, actor Actor, roleID, permissionID uuid.UUID) error
	GetPermissionMatrix(ctx context.Context) (*PermissionMatrixResponse, error)
	ToggleMatrixCell(ctx context.Context, actor Actor, req ToggleMatrixRequest) error
}

type roleService struct {
	roles       repository.RoleRepository
	permissions repository.PermissionRepository
	templates   repository.TemplateRepository
	tx          repository.TransactionManager
	audit       AuditService
}

// NewRoleService returns a new instance of RoleService
func NewRoleService(
	roles repository.RoleRepository,
	permissions repository.PermissionRepository,
	templates repository.TemplateRepository,
	tx repository.TransactionManager,
	audit AuditService,
) RoleService {
	return &roleService{roles: roles, permissions: permissions, templates: templates, tx: tx, audit: audit}
}

func toRoleResponse(r *model.Role) *RoleResponse {
	res := &RoleResponse{
		ID:           r.ID.String(),
		Name:         r.Name,
		DisplayName:  r.DisplayName,
		Description:  r.Description,
		Level:        r.Level,
		IsSystemRole: r.IsSystemRole,
		IsDefault:    r.IsDefault,
		IsActive:     r.IsActive,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.ParentRoleID != nil {
		parent := r.ParentRoleID.String()
		res.ParentRoleID = &parent
	}
	for i := range r.Permissions {
		g := &r.Permissions[i]
		if g.IsGranted && g.Permission != nil {
			res.Permissions = append(res.Permissions, *toPermissionResponse(g.Permission))
		}
	}
	res.PermissionCount = len(res.Permissions)
	return res
}

func (s *roleService) Create(ctx context.Context, actor Actor, req CreateRoleRequest) (*RoleResponse, error) {
	if _, err := s.roles.FindByName(ctx, req.Name); err == nil {
		return nil, apperror.Conflict("role %q already exists", req.Name)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check role name: %w", err)
	}

	role := &model.Role{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Description: req.Description,
		Level:       req.Level,
		IsDefault:   req.IsDefault,
		IsActive:    true,
	}
	if req.ParentRoleID != nil && *req.ParentRoleID != "" {
		parentID, err := uuid.Parse(*req.ParentRoleID)
		if err != nil {
			return nil, apperror.Validation("invalid parent_role_id")
		}
		if _, err := s.roles.FindByID(ctx, parentID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperror.Validation("parent role %s does not exist", parentID)
			}
			return nil, fmt.Errorf("failed to load parent role: %w", err)
		}
		role.ParentRoleID = &parentID
	}

	if err := s.roles.Create(ctx, role); err != nil {
		return nil, fmt.Errorf("failed to create role: %w", err)
	}

	details, _ := json.Marshal(map[string]any{"name": role.Name, "level": role.Level})
	s.audit.Record(ctx, model.PermissionAuditEntry{
		Action:       model.AuditActionRoleCreated,
		EntityType:   model.AuditEntityRole,
		EntityID:     role.ID.String(),
		UserID:       actor.Ref(),
		TargetRoleID: &role.ID,
		Details:      string(details),
		IPAddress:    actor.IP,
	})

	return toRoleResponse(role), nil
}

func (s *roleService) CreateFromTemplate(ctx context.Context, actor Actor, req CreateRoleFromTemplateRequest) (*RoleResponse, error) {
	templateID, err := uuid.Parse(req.TemplateID)
	if err != nil {
		return nil, apperror.Validation("invalid template_id")
	}

	var role *model.Role
	var applied int
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		tpl, err := s.templates.FindByID(txCtx, templateID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.Validation("template %s does not exist", templateID)
			}
			return fmt.Errorf("failed to load template: %w", err)
		}
		if !tpl.IsActive {
			return apperror.Validation("template %q is inactive", tpl.Name)
		}

		if _, err := s.roles.FindByName(txCtx, req.Name); err == nil {
			return apperror.Conflict("role %q already exists", req.Name)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check role name: %w", err)
		}

		role = &model.Role{
			Name:        req.Name,
			DisplayName: req.DisplayName,
			Description: req.Description,
			Level:       req.Level,
			IsActive:    true,
		}
		if err := s.roles.Create(txCtx, role); err != nil {
			return fmt.Errorf("failed to create role: %w", err)
		}

		ids, err := tpl.PermissionIDs()
		if err != nil {
			return fmt.Errorf("template %q has a corrupt permission list: %w", tpl.Name, err)
		}
		perms, err := s.permissions.FindByIDs(txCtx, ids)
		if err != nil {
			return fmt.Errorf("failed to resolve template permissions: %w", err)
		}
		for i := range perms {
			// Stale ids (permissions deleted after the template was saved)
			// and inactive permissions are skipped, not fatal.
			if !perms[i].IsActive {
				continue
			}
			grant := &model.RolePermission{
				RoleID:       role.ID,
				PermissionID: perms[i].ID,
				IsGranted:    true,
				GrantedBy:    actor.Ref(),
			}
			if err := s.roles.CreateGrant(txCtx, grant); err != nil {
				return fmt.Errorf("failed to grant template permission: %w", err)
			}
			applied++
		}

		return s.templates.IncrementUsage(txCtx, tpl.ID)
	})
	if err != nil {
		return nil, err
	}

	details, _ := json.Marshal(map[string]any{
		"name":        role.Name,
		"template_id": templateID,
		"granted":     applied,
	})
	s.audit.Record(ctx, model.PermissionAuditEntry{
		Action:       model.AuditActionRoleCreated,
		EntityType:   model.AuditEntityRole,
		EntityID:     role.ID.String(),
		UserID:       actor.Ref(),
		TargetRoleID: &role.ID,
		Details:      string(details),
		IPAddress:    actor.IP,
	})

	return s.Get(ctx, role.ID)
}

func (s *roleService) Get(ctx context.Context, id uuid.UUID) (*RoleResponse, error) {
	role, err := s.roles.FindByIDWithPermissions(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("role %s", id)
		}
		return nil, fmt.Errorf("failed to load role: %w", err)
	}
	return toRoleResponse(role), nil
}

func (s *roleService) List(ctx context.Context, activeOnly bool) ([]RoleResponse, error) {
	roles, err := s.roles.List(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	res := make([]RoleResponse, 0, len(roles))
	for i := range roles {
		res = append(res, *toRoleResponse(&roles[i]))
	}
	return res, nil
}

func (s *roleService) Update(ctx context.Context, actor Actor, id uuid.UUID, req UpdateRoleRequest) (*RoleResponse, error) {
	role, err := s.roles.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("role %s", id)
		}
		return nil, fmt.Errorf("failed to load role: %w", err)
	}

	if role.IsSystemRole {
		return nil, apperror.PermissionDenied("system role %q cannot be modified", role.Name)
	}

	if req.Name != nil && *req.Name != role.Name {
		if _, err := s.roles.FindByName(ctx, *req.Name); err == nil {
			return nil, apperror.Conflict("role %q already exists", *req.Name)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to check role name: %w", err)
		}
		role.Name = *req.Name
	}
	if req.DisplayName != nil {
		role.DisplayName = *req.DisplayName
	}
	if req.Description != nil {
		role.Description = *req.Description
	}
	if req.Level != nil {
		role.Level = *req.Level
	}
	if req.IsActive != nil {
		role.IsActive = *req.IsActive
	}
	if req.IsDefault != nil {
		role.IsDefault = *req.IsDefault
	}

	if err := s.roles.Update(ctx, role); err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}

	details, _ := json.Marshal(map[string]any{"name": role.Name, "is_active": role.IsActive})
	s.audit.Record(ctx, model.PermissionAuditEntry{
		Action:       model.AuditActionRoleUpdated,
		EntityType:   model.AuditEntityRole,
		EntityID:     role.ID.String(),
		UserID:       actor.Ref(),
		TargetRoleID: &role.ID,
		Details:      string(details),
		IPAddress:    actor.IP,
	})

	return toRoleResponse(role), nil
}

func (s *roleService) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	role, err := s.roles.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NotFound("role %s", id)
		}
		return fmt.Errorf("failed to load role: %w", err)
	}

	if role.IsSystemRole {
		return apperror.PermissionDenied("system role %q cannot be deleted", role.Name)
	}

	active, err := s.roles.CountActiveAssignments(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to count role assignments: %w", err)
	}
	if active > 0 {
		return apperror.Conflict("role %q still has %d active assignment(s)", role.Name, active)
	}

	if err := s.roles.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}

	details, _ := json.Marshal(map[string]any{"name": role.Name})
	s.audit.Record(ctx, model.PermissionAuditEntry{
		Action:     model.AuditActionRoleDeleted,
		EntityType: model.AuditEntityRole,
		EntityID:   role.ID.String(),
		UserID:     actor.Ref(),
		Details:    string(details),
		IPAddress:  actor.IP,
	})

	return nil
}

func (s *roleService) GrantPermission(ctx context.Context, actor Actor, roleID, permissionID uuid.UUID) error {
	role, err := s.roles.FindByID(ctx, roleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NotFound("role %s", roleID)
		}
		return fmt.Errorf("failed to load role: %w", err)
	}
	perm, err := s.permissions.FindByID(ctx, permissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NotFound("permission %s", permissionID)
		}
		return fmt.Errorf("failed to load permission: %w", err)
	}

	if existing, err := s.roles.FindGrant(ctx, roleID, permissionID); err == nil {
		if existing.IsGranted {
			return apperror.Conflict("role %q already has permission %q", role.Name, perm.Name)
		}
		existing.IsGranted = true
		existing.GrantedBy = actor.Ref()
		if err := s.roles.UpdateGrant(ctx, existing); err != nil {
			return fmt.Errorf("failed to regrant permission: %w", err)
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check existing grant: %w", err)
	} else {
		grant := &model.RolePermission{
			RoleID:       roleID,
			PermissionID: permissionID,
			IsGranted:    true,
			GrantedBy:    actor.Ref(),
		}
		if err := s.roles.CreateGrant(ctx, grant); err != nil {
			return fmt.Errorf("failed to grant permission: %w", err)
		}
	}

	details, _ := json.Marshal(map[string]any{"role": role.Name, "permission": perm.Name})
	s.audit.Record(ctx, model.PermissionAuditEntry{
		Action:       model.AuditActionRolePermissionGranted,
		EntityType:   model.AuditEntityRole,
		EntityID:     role.ID.String(),
		UserID:       actor.Ref(),
		TargetRoleID: &role.ID,
		PermissionID: &perm.ID,
		Details:      string(details),
		IPAddress:    actor.IP,
	})

	return nil
}

func (s *roleService) RevokePermission(ctx context.Context, actor Actor, roleID, permissionID uuid.UUID) error {
	role, err := s.roles.FindByID(ctx, roleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NotFound("role %s", roleID)
		}
		return fmt.Errorf("failed to load role: %w", err)
	}

	removed, err := s.roles.DeleteGrant(ctx, roleID, permissionID)
	if err != nil {
		return fmt.Errorf("failed to revoke permission: %w", err)
	}
	if removed == 0 {
		return apperror.NotFound("role %q does not have permission %s", role.Name, permissionID)
	}

	details, _ := json.Marshal(map[string]any{"role": role.Name, "permission_id": permissionID})
	s.audit.Record(ctx, model.PermissionAuditEntry{
		Action:       model.AuditActionRolePermissionRevoked,
		EntityType:   model.AuditEntityRole,
		EntityID:     role.ID.String(),
		UserID:       actor.Ref(),
		TargetRoleID: &role.ID,
		PermissionID: &permissionID,
		Details:      string(details),
		IPAddress:    actor.IP,
	})

	return nil
}

func (s *roleService) GetPermissionMatrix(ctx context.Context) (*PermissionMatrixResponse, error) {
	roles, err := s.roles.List(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}

	active := true
	perms, err := s.permissions.List(ctx, repository.PermissionFilter{IsActive: &active})
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}

	grants, err := s.roles.ListAllGrants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}

	matrix := &PermissionMatrixResponse{
		Assignments: make(map[string][]string, len(roles)),
	}
	for i := range roles {
		matrix.Roles = append(matrix.Roles, *toRoleResponse(&roles[i]))
		matrix.Assignments[roles[i].ID.String()] = []string{}
	}
	for i := range perms {
		matrix.Permissions = append(matrix.Permissions, *toPermissionResponse(&perms[i]))
	}
	for _, g := range grants {
		if !g.IsGranted {
			continue
		}
		key := g.RoleID.String()
		if _, ok := matrix.Assignments[key]; ok {
			matrix.Assignments[key] = append(matrix.Assignments[key], g.PermissionID.String())
		}
	}

	return matrix, nil
}

func (s *roleService) ToggleMatrixCell(ctx context.Context, actor Actor, req ToggleMatrixRequest) error {
	roleID, err := uuid.Parse(req.RoleID)
	if err != nil {
		return apperror.Validation("invalid role_id")
	}
	permissionID, err := uuid.Parse(req.PermissionID)
	if err != nil {
		return apperror.Validation("invalid permission_id")
	}

	role, err := s.roles.FindByID(ctx, roleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NotFound("role %s", roleID)
		}
		return fmt.Errorf("failed to load role: %w", err)
	}
	if role.IsSystemRole {
		return apperror.PermissionDenied("system role %q cannot be modified", role.Name)
	}

	if req.IsGranted {
		err := s.GrantPermission(ctx, actor, roleID, permissionID)
		// Granting an already granted cell is a no-op rather than a conflict;
		// clearing an empty cell still fails NotFound.
		if errors.Is(err, apperror.ErrConflict) {
			return nil
		}
		return err
	}

	return s.RevokePermission(ctx, actor, roleID, permissionID)
}
