package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/parkkyonghun0510/lc-le-sub001/internal/model"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/repository"
	"github.com/parkkyonghun0510/lc-le-sub001/pkg/apperror"

	"github.com/google/uuid"
)

// Where an effective permission came from.
const (
	PermissionSourceRole   = "role"
	PermissionSourceDirect = "direct"
)

// PermissionCheck is one requested capability. Scope narrows the match to
// permissions carrying exactly that scope; nil accepts any scope. ResourceID
// asks about one resource instance; nil asks about the resource type at large.
type PermissionCheck struct {
	Resource   model.ResourceType
	Action     model.PermissionAction
	Scope      *model.PermissionScope
	ResourceID *uuid.UUID
}

// EffectivePermission describes one permission a user holds and where it
// came from.
type EffectivePermission struct {
	Permission   PermissionResponse `json:"permission"`
	Source       string             `json:"source"`
	RoleID       *string            `json:"role_id,omitempty"`
	RoleName     string             `json:"role_name,omitempty"`
	DepartmentID *string            `json:"department_id,omitempty"`
	BranchID     *string            `json:"branch_id,omitempty"`
	ResourceID   *string            `json:"resource_id,omitempty"`
}

// DecisionService answers every "may user X do Y" question in the system.
// Evaluation is read-only and stateless: each call reads the current
// assignment rows, so revocations take effect on the next check.
//
// Precedence: an applicable direct user permission is authoritative (its
// granted flag is the verdict, so a direct deny beats any role grant); with
// no direct entry the user's active roles are consulted and any matching
// grant allows; otherwise the check fails closed. Among several applicable
// direct entries, one bound to the requested resource id outranks a blanket
// entry, and newer entries outrank older ones.
type DecisionService interface {
	HasPermission(ctx context.Context, userID uuid.UUID, check PermissionCheck) (bool, error)
	HasAnyPermission(ctx context.Context, userID uuid.UUID, checks []PermissionCheck) (bool, error)
	HasAllPermissions(ctx context.Context, userID uuid.UUID, checks []PermissionCheck) (bool, error)
	CanAccessResource(ctx context.Context, userID uuid.UUID, resource model.ResourceType, resourceID uuid.UUID, action model.PermissionAction) (bool, error)
	FilterAccessibleResources(ctx context.Context, userID uuid.UUID, resource model.ResourceType, resourceIDs []uuid.UUID, action model.PermissionAction) ([]uuid.UUID, error)
	GetUserPermissions(ctx context.Context, userID uuid.UUID) ([]EffectivePermission, error)
}

type decisionService struct {
	assignments repository.AssignmentRepository
	roles       repository.RoleRepository
}

// NewDecisionService returns a new instance of DecisionService
func NewDecisionService(assignments repository.AssignmentRepository, roles repository.RoleRepository) DecisionService {
	return &decisionService{assignments: assignments, roles: roles}
}

func validateCheck(check PermissionCheck) error {
	if !check.Resource.Valid() {
		return apperror.Validation("unknown resource type %q", check.Resource)
	}
	if !check.Action.Valid() {
		return apperror.Validation("unknown action %q", check.Action)
	}
	if check.Scope != nil && !check.Scope.Valid() {
		return apperror.Validation("unknown scope %q", *check.Scope)
	}
	return nil
}

// permissionMatches reports whether a catalog permission satisfies the
// requested resource, action and optional scope filter.
func permissionMatches(p *model.Permission, check PermissionCheck) bool {
	if p == nil || !p.IsActive {
		return false
	}
	if p.ResourceType != check.Resource || p.Action != check.Action {
		return false
	}
	return check.Scope == nil || p.Scope == *check.Scope
}

// resourceApplies reports whether a direct entry bound to entryResource
// covers a request about requested. A blanket entry (nil) covers anything;
// a bound entry covers only that exact instance.
func resourceApplies(entryResource, requested *uuid.UUID) bool {
	if entryResource == nil {
		return true
	}
	return requested != nil && *entryResource == *requested
}

// moreAuthoritative reports whether a outranks b for the given check:
// resource-bound entries beat blanket ones, then recency decides.
func moreAuthoritative(a, b *model.UserPermission) bool {
	aBound, bBound := a.ResourceID != nil, b.ResourceID != nil
	if aBound != bBound {
		return aBound
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// findDirectVerdict picks the authoritative direct entry for the check, if
// any entry applies.
func findDirectVerdict(entries []model.UserPermission, check PermissionCheck) (*model.UserPermission, bool) {
	var best *model.UserPermission
	for i := range entries {
		entry := &entries[i]
		if !permissionMatches(entry.Permission, check) {
			continue
		}
		if !resourceApplies(entry.ResourceID, check.ResourceID) {
			continue
		}
		if best == nil || moreAuthoritative(entry, best) {
			best = entry
		}
	}
	return best, best != nil
}

// activeRoleIDs extracts the role ids of live assignments whose role is
// itself still active.
func activeRoleIDs(assignments []model.UserRole) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(assignments))
	seen := make(map[uuid.UUID]bool, len(assignments))
	for i := range assignments {
		a := &assignments[i]
		if a.Role == nil || !a.Role.IsActive || seen[a.RoleID] {
			continue
		}
		seen[a.RoleID] = true
		ids = append(ids, a.RoleID)
	}
	return ids
}

func (s *decisionService) HasPermission(ctx context.Context, userID uuid.UUID, check PermissionCheck) (bool, error) {
	if err := validateCheck(check); err != nil {
		return false, err
	}
	now := time.Now()

	direct, err := s.assignments.ListActiveUserPermissions(ctx, userID, now)
	if err != nil {
		return false, fmt.Errorf("failed to load direct permissions: %w", err)
	}
	if verdict, ok := findDirectVerdict(direct, check); ok {
		return verdict.IsGranted, nil
	}

	assignments, err := s.assignments.ListActiveUserRoles(ctx, userID, now)
	if err != nil {
		return false, fmt.Errorf("failed to load role assignments: %w", err)
	}
	roleIDs := activeRoleIDs(assignments)
	if len(roleIDs) == 0 {
		return false, nil
	}

	grants, err := s.roles.ListGrantsByRoleIDs(ctx, roleIDs)
	if err != nil {
		return false, fmt.Errorf("failed to load role grants: %w", err)
	}
	for i := range grants {
		if grants[i].IsGranted && permissionMatches(grants[i].Permission, check) {
			return true, nil
		}
	}

	return false, nil
}

func (s *decisionService) HasAnyPermission(ctx context.Context, userID uuid.UUID, checks []PermissionCheck) (bool, error) {
	for _, check := range checks {
		ok, err := s.HasPermission(ctx, userID, check)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (s *decisionService) HasAllPermissions(ctx context.Context, userID uuid.UUID, checks []PermissionCheck) (bool, error) {
	if len(checks) == 0 {
		return false, nil
	}
	for _, check := range checks {
		ok, err := s.HasPermission(ctx, userID, check)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (s *decisionService) CanAccessResource(ctx context.Context, userID uuid.UUID, resource model.ResourceType, resourceID uuid.UUID, action model.PermissionAction) (bool, error) {
	allowed, err := s.HasPermission(ctx, userID, PermissionCheck{
		Resource:   resource,
		Action:     action,
		ResourceID: &resourceID,
	})
	if err != nil || allowed {
		return allowed, err
	}
	if s.checkOwnershipAccess(ctx, userID, resource, resourceID) {
		return true, nil
	}
	if s.checkHierarchicalAccess(ctx, userID, resource, resourceID) {
		return true, nil
	}
	return false, nil
}

// checkOwnershipAccess is an extension point for "the user owns this
// resource" rules. No ownership registry is wired yet, so it always denies.
func (s *decisionService) checkOwnershipAccess(ctx context.Context, userID uuid.UUID, resource model.ResourceType, resourceID uuid.UUID) bool {
	return false
}

// checkHierarchicalAccess is an extension point for manager-subordinate
// access rules. No reporting hierarchy is wired yet, so it always denies.
func (s *decisionService) checkHierarchicalAccess(ctx context.Context, userID uuid.UUID, resource model.ResourceType, resourceID uuid.UUID) bool {
	return false
}

func (s *decisionService) FilterAccessibleResources(ctx context.Context, userID uuid.UUID, resource model.ResourceType, resourceIDs []uuid.UUID, action model.PermissionAction) ([]uuid.UUID, error) {
	accessible := make([]uuid.UUID, 0, len(resourceIDs))
	for _, id := range resourceIDs {
		ok, err := s.CanAccessResource(ctx, userID, resource, id, action)
		if err != nil {
			return nil, err
		}
		if ok {
			accessible = append(accessible, id)
		}
	}
	return accessible, nil
}

// GetUserPermissions returns the union of role-derived and direct
// permissions with direct overrides applied. A blanket direct entry (no
// resource id) speaks for the permission as a whole: a blanket deny removes
// the permission from the result entirely. Resource-bound entries only add
// their own instance-scoped grants.
func (s *decisionService) GetUserPermissions(ctx context.Context, userID uuid.UUID) ([]EffectivePermission, error) {
	now := time.Now()

	direct, err := s.assignments.ListActiveUserPermissions(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load direct permissions: %w", err)
	}
	assignments, err := s.assignments.ListActiveUserRoles(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load role assignments: %w", err)
	}
	roleIDs := activeRoleIDs(assignments)
	grants, err := s.roles.ListGrantsByRoleIDs(ctx, roleIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load role grants: %w", err)
	}
	grantsByRole := make(map[uuid.UUID][]model.RolePermission, len(roleIDs))
	for i := range grants {
		grantsByRole[grants[i].RoleID] = append(grantsByRole[grants[i].RoleID], grants[i])
	}

	// Newest blanket direct entry per permission is the override verdict.
	blanket := make(map[uuid.UUID]*model.UserPermission)
	for i := range direct {
		entry := &direct[i]
		if entry.ResourceID != nil || entry.Permission == nil || !entry.Permission.IsActive {
			continue
		}
		if cur, ok := blanket[entry.PermissionID]; !ok || entry.CreatedAt.After(cur.CreatedAt) {
			blanket[entry.PermissionID] = entry
		}
	}

	var result []EffectivePermission

	for i := range assignments {
		a := &assignments[i]
		if a.Role == nil || !a.Role.IsActive {
			continue
		}
		for _, g := range grantsByRole[a.RoleID] {
			if !g.IsGranted || g.Permission == nil || !g.Permission.IsActive {
				continue
			}
			if verdict, ok := blanket[g.PermissionID]; ok && !verdict.IsGranted {
				continue
			}
			roleID := a.RoleID.String()
			result = append(result, EffectivePermission{
				Permission:   *toPermissionResponse(g.Permission),
				Source:       PermissionSourceRole,
				RoleID:       &roleID,
				RoleName:     a.Role.Name,
				DepartmentID: uuidString(a.DepartmentID),
				BranchID:     uuidString(a.BranchID),
			})
		}
	}

	for i := range direct {
		entry := &direct[i]
		if !entry.IsGranted || entry.Permission == nil || !entry.Permission.IsActive {
			continue
		}
		// A blanket deny newer than this grant suppresses it.
		if verdict, ok := blanket[entry.PermissionID]; ok && !verdict.IsGranted && verdict.CreatedAt.After(entry.CreatedAt) {
			continue
		}
		result = append(result, EffectivePermission{
			Permission:   *toPermissionResponse(entry.Permission),
			Source:       PermissionSourceDirect,
			DepartmentID: uuidString(entry.DepartmentID),
			BranchID:     uuidString(entry.BranchID),
			ResourceID:   uuidString(entry.ResourceID),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := &result[i], &result[j]
		if a.Permission.ResourceType != b.Permission.ResourceType {
			return a.Permission.ResourceType < b.Permission.ResourceType
		}
		if a.Permission.Action != b.Permission.Action {
			return a.Permission.Action < b.Permission.Action
		}
		if a.Permission.Scope != b.Permission.Scope {
			return a.Permission.Scope < b.Permission.Scope
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.RoleName < b.RoleName
	})

	return result, nil
}
