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

type AssignRoleRequest struct {
	RoleID         string     `json:"role_id" binding:"required"`
	DepartmentID   *string    `json:"department_id"`
	BranchID       *string    `json:"branch_id"`
	EffectiveUntil *time.Time `json:"effective_until"`
}

type GrantUserPermissionRequest struct {
	PermissionID   string     `json:"permission_id" binding:"required"`
	ResourceID     *string    `json:"resource_id"`
	DepartmentID   *string    `json:"department_id"`
	BranchID       *string    `json:"branch_id"`
	EffectiveUntil *time.Time `json:"effective_until"`
	Conditions     string     `json:"conditions"`
	Reason         string     `json:"reason"`
}

type RevokeUserPermissionRequest struct {
	PermissionID string  `json:"permission_id" binding:"required"`
	ResourceID   *string `json:"resource_id"`
	DepartmentID *string `json:"department_id"`
	BranchID     *string `json:"branch_id"`
	Reason       string  `json:"reason"`
}

type UserRoleResponse struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	RoleID         string     `json:"role_id"`
	RoleName       string     `json:"role_name,omitempty"`
	DepartmentID   *string    `json:"department_id,omitempty"`
	BranchID       *string    `json:"branch_id,omitempty"`
	IsActive       bool       `json:"is_active"`
	EffectiveFrom  time.Time  `json:"effective_from"`
	EffectiveUntil *time.Time `json:"effective_until,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

type UserPermissionResponse struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	PermissionID   string     `json:"permission_id"`
	PermissionName string     `json:"permission_name,omitempty"`
	IsGranted      bool       `json:"is_granted"`
	ResourceID     *string    `json:"resource_id,omitempty"`
	DepartmentID   *string    `json:"department_id,omitempty"`
	BranchID       *string    `json:"branch_id,omitempty"`
	IsActive       bool       `json:"is_active"`
	EffectiveFrom  time.Time  `json:"effective_from"`
	EffectiveUntil *time.Time `json:"effective_until,omitempty"`
	OverrideReason string     `json:"override_reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// AssignmentService manages who holds which roles and which direct
// permission overrides, including their scopes and effective-date windows.
type AssignmentService interface {
	AssignRole(ctx context.Context, actor Actor, userID uuid.UUID, req AssignRoleRequest) (*UserRoleResponse, error)
	// RevokeRole deactivates all active assignments of the role and reports
	// whether anything was revoked. A missing assignment is not an error.
	RevokeRole(ctx context.Context, actor Actor, userID, roleID uuid.UUID) (bool, error)
	GetUserRoles(ctx context.Context, userID uuid.UUID) ([]UserRoleResponse, error)

	GrantPermission(ctx context.Context, actor Actor, userID uuid.UUID, req GrantUserPermissionRequest) (*UserPermissionResponse, error)
	RevokePermission(ctx context.Context, actor Actor, userID uuid.UUID, req RevokeUserPermissionRequest) (*UserPermissionResponse, error)
}

type assignmentService struct {
	assignments repository.AssignmentRepository
	users       repository.UserRepository
	roles       repository.RoleRepository
	permissions repository.PermissionRepository
	audit       AuditService
}

// NewAssignmentService returns a new instance of AssignmentService
func NewAssignmentService(
	assignments repository.AssignmentRepository,
	users repository.UserRepository,
	roles repository.RoleRepository,
	permissions repository.PermissionRepository,
	audit AuditService,
) AssignmentService {
	return &assignmentService{
		assignments: assignments,
		users:       users,
		roles:       roles,
		permissions: permissions,
		audit:       audit,
	}
}

func parseOptionalUUID(s *string, field string) (*uuid.UUID, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, apperror.Validation("invalid %s", field)
	}
	return &id, nil
}

func uuidString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func toUserRoleResponse(ur *model.UserRole) *UserRoleResponse {
	res := &UserRoleResponse{
		ID:             ur.ID.String(),
		UserID:         ur.UserID.String(),
		RoleID:         ur.RoleID.String(),
		DepartmentID:   uuidString(ur.DepartmentID),
		BranchID:       uuidString(ur.BranchID),
		IsActive:       ur.IsActive,
		EffectiveFrom:  ur.EffectiveFrom,
		EffectiveUntil: ur.EffectiveUntil,
		CreatedAt:      ur.CreatedAt,
	}
	if ur.Role != nil {
		res.RoleName = ur.Role.Name
	}
	return res
}

func toUserPermissionResponse(up *model.UserPermission) *UserPermissionResponse {
	res := &UserPermissionResponse{
		ID:             up.ID.String(),
		UserID:         up.UserID.String(),
		PermissionID:   up.PermissionID.String(),
		IsGranted:      up.IsGranted,
		ResourceID:     uuidString(up.ResourceID),
		DepartmentID:   uuidString(up.DepartmentID),
		BranchID:       uuidString(up.BranchID),
		IsActive:       up.IsActive,
		EffectiveFrom:  up.EffectiveFrom,
		EffectiveUntil: up.EffectiveUntil,
		OverrideReason: up.OverrideReason,
		CreatedAt:      up.CreatedAt,
	}
	if up.Permission != nil {
		res.PermissionName = up.Permission.Name
	}
	return res
}

func (s *assignmentService) loadActiveUser(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("user %s", userID)
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive {
		return nil, apperror.Validation("user %q is inactive", user.Username)
	}
	return user, nil
}

func (s *assignmentService) AssignRole(ctx context.Context, actor Actor, userID uuid.UUID, req AssignRoleRequest) (*UserRoleResponse, error) {
	user, err := s.loadActiveUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	roleID, err := uuid.Parse(req.RoleID)
	if err != nil {
		return nil, apperror.Validation("invalid role_id")
	}
	role, err := s.roles.FindByID(ctx, roleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("role %s", roleID)
		}
		return nil, fmt.Errorf("failed to load role: %w", err)
	}
	if !role.IsActive {
		return nil, apperror.Validation("role %q is inactive", role.Name)
	}

	departmentID, err := parseOptionalUUID(req.DepartmentID, "department_id")
	if err != nil {
		return nil, err
	}
	branchID, err := parseOptionalUUID(req.BranchID, "branch_id")
	if err != nil {
		return nil, err
	}

	var assignment *model.UserRole
	existing, err := s.assignments.FindUserRoleTuple(ctx, userID, roleID, departmentID, branchID)
	switch {
	case err == nil && existing.IsActive:
		return nil, apperror.Conflict("user %q already holds role %q with this scope", user.Username, role.Name)
	case err == nil:
		// Re-activating a previously revoked assignment opens a fresh window.
		existing.IsActive = true
		existing.EffectiveFrom = time.Now()
		existing.EffectiveUntil = req.EffectiveUntil
		existing.AssignedBy = actor.Ref()
		if err := s.assignments.UpdateUserRole(ctx, existing); err != nil {
			return nil, fmt.Errorf("failed to reactivate role assignment: %w", err)
		}
		assignment = existing
	case errors.Is(err, gorm.ErrRecordNotFound):
		assignment = &model.UserRole{
			UserID:         userID,
			RoleID:         roleID,
			DepartmentID:   departmentID,
			BranchID:       branchID,
			IsActive:       true,
			EffectiveFrom:  time.Now(),
			EffectiveUntil: req.EffectiveUntil,
			AssignedBy:     actor.Ref(),
		}
		if err := s.assignments.CreateUserRole(ctx, assignment); err != nil {
			return nil, fmt.Errorf("failed to assign role: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to check existing assignment: %w", err)
	}
	assignment.Role = role

	details, _ := json.Marshal(map[string]any{
		"role":          role.Name,
		"department_id": departmentID,
		"branch_id":     branchID,
	})
	s.audit.Record(ctx, model.PermissionAuditEntry{
		Action:       model.AuditActionRoleAssigned,
		EntityType:   model.AuditEntityUserRole,
		EntityID:     assignment.ID.String(),
		UserID:       actor.Ref(),
		TargetUserID: &userID,
		TargetRoleID: &roleID,
		Details:      string(details),
		IPAddress:    actor.IP,
	})

	return toUserRoleResponse(assignment), nil
}

func (s *assignmentService) RevokeRole(ctx context.Context, actor Actor, userID, roleID uuid.UUID) (bool, error) {
	revoked, err := s.assignments.DeactivateUserRoles(ctx, userID, roleID)
	if err != nil {
		return false, fmt.Errorf("failed to revoke role: %w", err)
	}
	if revoked == 0 {
		return false, nil
	}

	details, _ := json.Marshal(map[string]any{"revoked_assignments": revoked})
	s.audit.Record(ctx, model.PermissionAuditEntry{
		Action:       model.AuditActionRoleRevoked,
		EntityType:   model.AuditEntityUserRole,
		EntityID:     roleID.String(),
		UserID:       actor.Ref(),
		TargetUserID: &userID,
		TargetRoleID: &roleID,
		Details:      string(details),
		IPAddress:    actor.IP,
	})

	return true, nil
}

func (s *assignmentService) GetUserRoles(ctx context.Context, userID uuid.UUID) ([]UserRoleResponse, error) {
	assignments, err := s.assignments.ListActiveUserRoles(ctx, userID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to list user roles: %w", err)
	}
	res := make([]UserRoleResponse, 0, len(assignments))
	for i := range assignments {
		res = append(res, *toUserRoleResponse(&assignments[i]))
	}
	return res, nil
}

// upsertPermission writes the direct entry for the exact scope tuple: an
// existing row is flipped in place so grant and deny history for one tuple
// stays a single row, while differently scoped entries coexist.
func (s *assignmentService) upsertPermission(
	ctx context.Context,
	actor Actor,
	userID uuid.UUID,
	permissionID uuid.UUID,
	resourceID, departmentID, branchID *uuid.UUID,
	granted bool,
	until *time.Time,
	conditions, reason string,
) (*model.UserPermission, error) {
	var entry *model.UserPermission
	existing, err := s.assignments.FindUserPermissionTuple(ctx, userID, permissionID, resourceID, departmentID, branchID)
	switch {
	case err == nil:
		existing.IsGranted = granted
		existing.IsActive = true
		existing.EffectiveFrom = time.Now()
		existing.EffectiveUntil = until
		if conditions != "" {
			existing.Conditions = conditions
		}
		existing.OverrideReason = reason
		existing.GrantedBy = actor.Ref()
		if err := s.assignments.UpdateUserPermission(ctx, existing); err != nil {
			return nil, fmt.Errorf("failed to update direct permission: %w", err)
		}
		entry = existing
	case errors.Is(err, gorm.ErrRecordNotFound):
		entry = &model.UserPermission{
			UserID:         userID,
			PermissionID:   permissionID,
			IsGranted:      granted,
			ResourceID:     resourceID,
			DepartmentID:   departmentID,
			BranchID:       branchID,
			Conditions:     conditions,
			IsActive:       true,
			EffectiveFrom:  time.Now(),
			EffectiveUntil: until,
			OverrideReason: reason,
			GrantedBy:      actor.Ref(),
		}
		if err := s.assignments.CreateUserPermission(ctx, entry); err != nil {
			return nil, fmt.Errorf("failed to create direct permission: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to check existing direct permission: %w", err)
	}
	return entry, nil
}

func (s *assignmentService) GrantPermission(ctx context.Context, actor Actor, userID uuid.UUID, req GrantUserPermissionRequest) (*UserPermissionResponse, error) {
	user, err := s.loadActiveUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	permissionID, err := uuid.Parse(req.PermissionID)
	if err != nil {
		return nil, apperror.Validation("invalid permission_id")
	}
	perm, err := s.permissions.FindByID(ctx, permissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("permission %s", permissionID)
		}
		return nil, fmt.Errorf("failed to load permission: %w", err)
	}
	if !perm.IsActive {
		return nil, apperror.Validation("permission %q is inactive", perm.Name)
	}

	resourceID, err := parseOptionalUUID(req.ResourceID, "resource_id")
	if err != nil {
		return nil, err
	}
	departmentID, err := parseOptionalUUID(req.DepartmentID, "department_id")
	if err != nil {
		return nil, err
	}
	branchID, err := parseOptionalUUID(req.BranchID, "branch_id")
	if err != nil {
		return nil, err
	}
	if req.Conditions != "" && !json.Valid([]byte(req.Conditions)) {
		return nil, apperror.Validation("conditions must be valid JSON")
	}

	entry, err := s.upsertPermission(ctx, actor, userID, permissionID, resourceID, departmentID, branchID,
		true, req.EffectiveUntil, req.Conditions, req.Reason)
	if err != nil {
		return nil, err
	}
	entry.Permission = perm

	details, _ := json.Marshal(map[string]any{
		"permission":  perm.Name,
		"user":        user.Username,
		"resource_id": resourceID,
	})
	s.audit.Record(ctx, model.PermissionAuditEntry{
		Action:       model.AuditActionPermissionGranted,
		EntityType:   model.AuditEntityUserPermission,
		EntityID:     entry.ID.String(),
		UserID:       actor.Ref(),
		TargetUserID: &userID,
		PermissionID: &permissionID,
		Details:      string(details),
		Reason:       req.Reason,
		IPAddress:    actor.IP,
	})

	return toUserPermissionResponse(entry), nil
}

func (s *assignmentService) RevokePermission(ctx context.Context, actor Actor, userID uuid.UUID, req RevokeUserPermissionRequest) (*UserPermissionResponse, error) {
	user, err := s.loadActiveUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	permissionID, err := uuid.Parse(req.PermissionID)
	if err != nil {
		return nil, apperror.Validation("invalid permission_id")
	}
	perm, err := s.permissions.FindByID(ctx, permissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("permission %s", permissionID)
		}
		return nil, fmt.Errorf("failed to load permission: %w", err)
	}

	resourceID, err := parseOptionalUUID(req.ResourceID, "resource_id")
	if err != nil {
		return nil, err
	}
	departmentID, err := parseOptionalUUID(req.DepartmentID, "department_id")
	if err != nil {
		return nil, err
	}
	branchID, err := parseOptionalUUID(req.BranchID, "branch_id")
	if err != nil {
		return nil, err
	}

	// An explicit denial is written even when no grant exists for the tuple,
	// so the user stays denied regardless of what their roles say.
	entry, err := s.upsertPermission(ctx, actor, userID, permissionID, resourceID, departmentID, branchID,
		false, nil, "", req.Reason)
	if err != nil {
		return nil, err
	}
	entry.Permission = perm

	details, _ := json.Marshal(map[string]any{
		"permission":  perm.Name,
		"user":        user.Username,
		"resource_id": resourceID,
	})
	s.audit.Record(ctx, model.PermissionAuditEntry{
		Action:       model.AuditActionPermissionRevoked,
		EntityType:   model.AuditEntityUserPermission,
		EntityID:     entry.ID.String(),
		UserID:       actor.Ref(),
		TargetUserID: &userID,
		PermissionID: &permissionID,
		Details:      string(details),
		Reason:       req.Reason,
		IPAddress:    actor.IP,
	})

	return toUserPermissionResponse(entry), nil
}
