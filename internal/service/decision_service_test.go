package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/parkkyonghun0510/lc-le-sub001/internal/model"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/repository"
	"github.com/parkkyonghun0510/lc-le-sub001/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newDecisionEnv(t *testing.T) (*gorm.DB, DecisionService) {
	t.Helper()
	db := newTestDB(t)
	return db, NewDecisionService(repository.NewAssignmentRepository(db), repository.NewRoleRepository(db))
}

func TestHasPermissionFailsClosed(t *testing.T) {
	db, engine := newDecisionEnv(t)
	user := createTestUser(t, db, "nobody")

	allowed, err := engine.HasPermission(context.Background(), user.ID, PermissionCheck{
		Resource: model.ResourceApplication,
		Action:   model.ActionRead,
	})
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestHasPermissionRejectsUnknownEnums(t *testing.T) {
	_, engine := newDecisionEnv(t)

	_, err := engine.HasPermission(context.Background(), uuid.New(), PermissionCheck{
		Resource: model.ResourceType("WAREHOUSE"),
		Action:   model.ActionRead,
	})
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, err = engine.HasPermission(context.Background(), uuid.New(), PermissionCheck{
		Resource: model.ResourceUser,
		Action:   model.PermissionAction("FROB"),
	})
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	badScope := model.PermissionScope("UNIVERSE")
	_, err = engine.HasPermission(context.Background(), uuid.New(), PermissionCheck{
		Resource: model.ResourceUser,
		Action:   model.ActionRead,
		Scope:    &badScope,
	})
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestHasPermissionThroughRole(t *testing.T) {
	db, engine := newDecisionEnv(t)
	ctx := context.Background()

	user := createTestUser(t, db, "officer")
	perm := createTestPermission(t, db, model.ResourceApplication, model.ActionRead, model.ScopeBranch)
	role := createTestRole(t, db, "credit_officer", 50)
	grantPermissionToRole(t, db, role, perm)
	assignRoleToUser(t, db, user, role)

	allowed, err := engine.HasPermission(ctx, user.ID, PermissionCheck{
		Resource: model.ResourceApplication,
		Action:   model.ActionRead,
	})
	require.NoError(t, err)
	assert.True(t, allowed)

	// A different action on the same resource is not implied.
	allowed, err = engine.HasPermission(ctx, user.ID, PermissionCheck{
		Resource: model.ResourceApplication,
		Action:   model.ActionApprove,
	})
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestScopeFilterMatchesExactly(t *testing.T) {
	db, engine := newDecisionEnv(t)
	ctx := context.Background()

	user := createTestUser(t, db, "teller")
	perm := createTestPermission(t, db, model.ResourceApplication, model.ActionRead, model.ScopeBranch)
	role := createTestRole(t, db, "teller", 30)
	grantPermissionToRole(t, db, role, perm)
	assignRoleToUser(t, db, user, role)

	branch := model.ScopeBranch
	global := model.ScopeGlobal

	allowed, err := engine.HasPermission(ctx, user.ID, PermissionCheck{
		Resource: model.ResourceApplication, Action: model.ActionRead, Scope: &branch,
	})
	require.NoError(t, err)
	assert.True(t, allowed, "exact scope must match")

	allowed, err = engine.HasPermission(ctx, user.ID, PermissionCheck{
		Resource: model.ResourceApplication, Action: model.ActionRead, Scope: &global,
	})
	require.NoError(t, err)
	assert.False(t, allowed, "a broader scope is never implied by a narrower one")

	allowed, err = engine.HasPermission(ctx, user.ID, PermissionCheck{
		Resource: model.ResourceApplication, Action: model.ActionRead,
	})
	require.NoError(t, err)
	assert.True(t, allowed, "nil scope accepts any held scope")
}

func TestDirectDenyBeatsRoleGrant(t *testing.T) {
	db, engine := newDecisionEnv(t)
	ctx := context.Background()

	user := createTestUser(t, db, "suspended")
	perm := createTestPermission(t, db, model.ResourceApplication, model.ActionApprove, model.ScopeGlobal)
	role := createTestRole(t, db, "reviewer", 60)
	grantPermissionToRole(t, db, role, perm)
	assignRoleToUser(t, db, user, role)

	addDirectPermission(t, db, user, perm, false, nil, time.Now())

	allowed, err := engine.HasPermission(ctx, user.ID, PermissionCheck{
		Resource: model.ResourceApplication, Action: model.ActionApprove,
	})
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestDirectDenyOnNarrowerScopeWinsForUnscopedCheck(t *testing.T) {
	db, engine := newDecisionEnv(t)
	ctx := context.Background()

	user := createTestUser(t, db, "partial")
	globalPerm := createTestPermission(t, db, model.ResourceApplication, model.ActionRead, model.ScopeGlobal)
	branchPerm := createTestPermission(t, db, model.ResourceApplication, model.ActionRead, model.ScopeBranch)
	role := createTestRole(t, db, "portfolio_officer", 40)
	grantPermissionToRole(t, db, role, globalPerm)
	assignRoleToUser(t, db, user, role)

	addDirectPermission(t, db, user, branchPerm, false, nil, time.Now())

	// An unscoped check matches the denied branch entry, and a direct
	// verdict is authoritative.
	allowed, err := engine.HasPermission(ctx, user.ID, PermissionCheck{
		Resource: model.ResourceApplication, Action: model.ActionRead,
	})
	require.NoError(t, err)
	assert.False(t, allowed)

	// Asking explicitly for the global permission sidesteps the branch deny.
	global := model.ScopeGlobal
	allowed, err = engine.HasPermission(ctx, user.ID, PermissionCheck{
		Resource: model.ResourceApplication, Action: model.ActionRead, Scope: &global,
	})
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestDirectGrantWithoutAnyRole(t *testing.T) {
	db, engine := newDecisionEnv(t)
	ctx := context.Background()

	user := createTestUser(t, db, "contractor")
	perm := createTestPermission(t, db, model.ResourceFile, model.ActionRead, model.ScopeOwn)

	addDirectPermission(t, db, user, perm, true, nil, time.Now())

	allowed, err := engine.HasPermission(ctx, user.ID, PermissionCheck{
		Resource: model.ResourceFile, Action: model.ActionRead,
	})
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestResourceBoundEntryOutranksBlanket(t *testing.T) {
	db, engine := newDecisionEnv(t)
	ctx := context.Background()

	user := createTestUser(t, db, "analyst")
	perm := createTestPermission(t, db, model.ResourceApplication, model.ActionUpdate, model.ScopeGlobal)

	frozen := uuid.New()
	other := uuid.New()

	base := time.Now().Add(-time.Hour)
	addDirectPermission(t, db, user, perm, true, nil, base)
	// The bound deny is older than the blanket grant, yet it still wins on
	// its own resource because bound entries outrank blanket ones.
	addDirectPermission(t, db, user, perm, false, &frozen, base.Add(-time.Hour))

	allowed, err := engine.HasPermission(ctx, user.ID, PermissionCheck{
		Resource: model.ResourceApplication, Action: model.ActionUpdate, ResourceID: &frozen,
	})
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = engine.HasPermission(ctx, user.ID, PermissionCheck{
		Resource: model.ResourceApplication, Action: model.ActionUpdate, ResourceID: &other,
	})
	require.NoError(t, err)
	assert.True(t, allowed)

	// A type-level question ignores resource-bound entries.
	allowed, err = engine.HasPermission(ctx, user.ID, PermissionCheck{
		Resource: model.ResourceApplication, Action: model.ActionUpdate,
	})
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestNewerEntryOutranksOlder(t *testing.T) {
	db, engine := newDecisionEnv(t)
	ctx := context.Background()

	user := createTestUser(t, db, "flipflop")
	perm := createTestPermission(t, db, model.ResourceUser, model.ActionDelete, model.ScopeGlobal)

	base := time.Now().Add(-time.Hour)
	addDirectPermission(t, db, user, perm, true, nil, base)
	addDirectPermission(t, db, user, perm, false, nil, base.Add(time.Minute))

	allowed, err := engine.HasPermission(ctx, user.ID, PermissionCheck{
		Resource: model.ResourceUser, Action: model.ActionDelete,
	})
	require.NoError(t, err)
	assert.False(t, allowed)

	// Flip the verdict again, newer still.
	addDirectPermission(t, db, user, perm, true, nil, base.Add(2*time.Minute))

	allowed, err = engine.HasPermission(ctx, user.ID, PermissionCheck{
		Resource: model.ResourceUser, Action: model.ActionDelete,
	})
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestEffectiveWindowsAreHonored(t *testing.T) {
	db, engine := newDecisionEnv(t)
	ctx := context.Background()
	now := time.Now()

	user := createTestUser(t, db, "temp")
	perm := createTestPermission(t, db, model.ResourceAnalytics, model.ActionRead, model.ScopeGlobal)
	role := createTestRole(t, db, "auditor", 60)
	grantPermissionToRole(t, db, role, perm)

	expired := now.Add(-time.Hour)
	assignment := &model.UserRole{
		UserID:         user.ID,
		RoleID:         role.ID,
		IsActive:       true,
		EffectiveFrom:  now.Add(-2 * time.Hour),
		EffectiveUntil: &expired,
	}
	require.NoError(t, db.Create(assignment).Error)

	allowed, err := engine.HasPermission(ctx, user.ID, PermissionCheck{
		Resource: model.ResourceAnalytics, Action: model.ActionRead,
	})
	require.NoError(t, err)
	assert.False(t, allowed, "expired assignment grants nothing")

	branchID := uuid.New()
	future := &model.UserRole{
		UserID:        user.ID,
		RoleID:        role.ID,
		BranchID:      &branchID,
		IsActive:      true,
		EffectiveFrom: now.Add(time.Hour),
	}
	require.NoError(t, db.Create(future).Error)

	allowed, err = engine.HasPermission(ctx, user.ID, PermissionCheck{
		Resource: model.ResourceAnalytics, Action: model.ActionRead,
	})
	require.NoError(t, err)
	assert.False(t, allowed, "future assignment grants nothing yet")
}

func TestInactiveRoleAndPermissionAreIgnored(t *testing.T) {
	db, engine := newDecisionEnv(t)
	ctx := context.Background()

	user := createTestUser(t, db, "ghost")
	perm := createTestPermission(t, db, model.ResourceNotification, model.ActionManage, model.ScopeGlobal)
	role := createTestRole(t, db, "ops", 70)
	grantPermissionToRole(t, db, role, perm)
	assignRoleToUser(t, db, user, role)

	require.NoError(t, db.Model(role).Update("is_active", false).Error)
	allowed, err := engine.HasPermission(ctx, user.ID, PermissionCheck{
		Resource: model.ResourceNotification, Action: model.ActionManage,
	})
	require.NoError(t, err)
	assert.False(t, allowed, "deactivated role grants nothing")

	require.NoError(t, db.Model(role).Update("is_active", true).Error)
	require.NoError(t, db.Model(perm).Update("is_active", false).Error)
	allowed, err = engine.HasPermission(ctx, user.ID, PermissionCheck{
		Resource: model.ResourceNotification, Action: model.ActionManage,
	})
	require.NoError(t, err)
	assert.False(t, allowed, "deactivated permission grants nothing")
}

func TestHasAnyAndAllPermissions(t *testing.T) {
	db, engine := newDecisionEnv(t)
	ctx := context.Background()

	user := createTestUser(t, db, "mixed")
	readPerm := createTestPermission(t, db, model.ResourceApplication, model.ActionRead, model.ScopeGlobal)
	role := createTestRole(t, db, "reader", 10)
	grantPermissionToRole(t, db, role, readPerm)
	assignRoleToUser(t, db, user, role)

	read := PermissionCheck{Resource: model.ResourceApplication, Action: model.ActionRead}
	approve := PermissionCheck{Resource: model.ResourceApplication, Action: model.ActionApprove}

	anyOK, err := engine.HasAnyPermission(ctx, user.ID, []PermissionCheck{approve, read})
	require.NoError(t, err)
	assert.True(t, anyOK)

	allOK, err := engine.HasAllPermissions(ctx, user.ID, []PermissionCheck{read, approve})
	require.NoError(t, err)
	assert.False(t, allOK)

	allOK, err = engine.HasAllPermissions(ctx, user.ID, []PermissionCheck{read})
	require.NoError(t, err)
	assert.True(t, allOK)

	// An empty conjunction asserts nothing and fails closed.
	allOK, err = engine.HasAllPermissions(ctx, user.ID, nil)
	require.NoError(t, err)
	assert.False(t, allOK)
}

func TestCanAccessAndFilterResources(t *testing.T) {
	db, engine := newDecisionEnv(t)
	ctx := context.Background()

	user := createTestUser(t, db, "scoped")
	perm := createTestPermission(t, db, model.ResourceFolder, model.ActionRead, model.ScopeOwn)

	mine := uuid.New()
	foreign := uuid.New()
	addDirectPermission(t, db, user, perm, true, &mine, time.Now())

	ok, err := engine.CanAccessResource(ctx, user.ID, model.ResourceFolder, mine, model.ActionRead)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = engine.CanAccessResource(ctx, user.ID, model.ResourceFolder, foreign, model.ActionRead)
	require.NoError(t, err)
	assert.False(t, ok)

	accessible, err := engine.FilterAccessibleResources(ctx, user.ID, model.ResourceFolder, []uuid.UUID{mine, foreign}, model.ActionRead)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{mine}, accessible)
}

func TestGetUserPermissionsListsSourcesAndOverrides(t *testing.T) {
	db, engine := newDecisionEnv(t)
	ctx := context.Background()

	user := createTestUser(t, db, "listed")
	roleRead := createTestPermission(t, db, model.ResourceApplication, model.ActionRead, model.ScopeBranch)
	roleApprove := createTestPermission(t, db, model.ResourceApplication, model.ActionApprove, model.ScopeBranch)
	directExport := createTestPermission(t, db, model.ResourceAnalytics, model.ActionExport, model.ScopeGlobal)

	role := createTestRole(t, db, "branch_manager", 80)
	grantPermissionToRole(t, db, role, roleRead)
	grantPermissionToRole(t, db, role, roleApprove)
	assignRoleToUser(t, db, user, role)

	addDirectPermission(t, db, user, directExport, true, nil, time.Now())
	// Blanket deny wipes the approve permission the role would have given.
	addDirectPermission(t, db, user, roleApprove, false, nil, time.Now())

	perms, err := engine.GetUserPermissions(ctx, user.ID)
	require.NoError(t, err)

	type key struct{ name, source string }
	got := make(map[key]EffectivePermission, len(perms))
	for _, p := range perms {
		got[key{p.Permission.Name, p.Source}] = p
	}

	fromRole, ok := got[key{roleRead.Name, PermissionSourceRole}]
	require.True(t, ok, "role-derived read permission must be listed")
	assert.Equal(t, "branch_manager", fromRole.RoleName)
	require.NotNil(t, fromRole.RoleID)
	assert.Equal(t, role.ID.String(), *fromRole.RoleID)

	_, ok = got[key{directExport.Name, PermissionSourceDirect}]
	assert.True(t, ok, "direct grant must be listed")

	_, ok = got[key{roleApprove.Name, PermissionSourceRole}]
	assert.False(t, ok, "blanket deny removes the role-derived entry")
}

func TestGetUserPermissionsBlanketDenySuppressesOlderDirectGrant(t *testing.T) {
	db, engine := newDecisionEnv(t)
	ctx := context.Background()

	user := createTestUser(t, db, "revoked")
	perm := createTestPermission(t, db, model.ResourceFile, model.ActionDelete, model.ScopeGlobal)

	base := time.Now().Add(-time.Hour)
	addDirectPermission(t, db, user, perm, true, nil, base)
	addDirectPermission(t, db, user, perm, false, nil, base.Add(time.Minute))

	perms, err := engine.GetUserPermissions(ctx, user.ID)
	require.NoError(t, err)
	for _, p := range perms {
		assert.NotEqual(t, perm.Name, p.Permission.Name, "denied permission must not be listed")
	}
}

func TestGetUserPermissionsKeepsResourceBoundGrants(t *testing.T) {
	db, engine := newDecisionEnv(t)
	ctx := context.Background()

	user := createTestUser(t, db, "pinpoint")
	perm := createTestPermission(t, db, model.ResourceFolder, model.ActionUpdate, model.ScopeOwn)

	target := uuid.New()
	addDirectPermission(t, db, user, perm, true, &target, time.Now())

	perms, err := engine.GetUserPermissions(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Equal(t, PermissionSourceDirect, perms[0].Source)
	require.NotNil(t, perms[0].ResourceID)
	assert.Equal(t, target.String(), *perms[0].ResourceID)
}

func TestGetUserPermissionsSortedDeterministically(t *testing.T) {
	db, engine := newDecisionEnv(t)
	ctx := context.Background()

	user := createTestUser(t, db, "sorted")
	role := createTestRole(t, db, "wide", 50)
	for _, action := range []model.PermissionAction{model.ActionUpdate, model.ActionCreate, model.ActionRead} {
		grantPermissionToRole(t, db, role, createTestPermission(t, db, model.ResourceUser, action, model.ScopeGlobal))
	}
	assignRoleToUser(t, db, user, role)

	perms, err := engine.GetUserPermissions(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, perms, 3)
	assert.Equal(t, string(model.ActionCreate), perms[0].Permission.Action)
	assert.Equal(t, string(model.ActionRead), perms[1].Permission.Action)
	assert.Equal(t, string(model.ActionUpdate), perms[2].Permission.Action)
}

// Walks the full grant lifecycle through the real services: catalog entry,
// role, scoped assignment, engine verdict, revocation, engine verdict again.
func TestBranchManagerApprovalLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	audit := NewAuditService(repository.NewAuditRepository(db), nil)
	tx := repository.NewTransactionManager(db)
	permSvc := NewPermissionService(repository.NewPermissionRepository(db), audit)
	roleSvc := NewRoleService(
		repository.NewRoleRepository(db),
		repository.NewPermissionRepository(db),
		repository.NewTemplateRepository(db),
		tx,
		audit,
	)
	userSvc := NewUserService(
		repository.NewUserRepository(db),
		repository.NewRoleRepository(db),
		repository.NewAssignmentRepository(db),
		repository.NewDepartmentRepository(db),
		repository.NewBranchRepository(db),
		tx,
		audit,
	)
	assignSvc := NewAssignmentService(
		repository.NewAssignmentRepository(db),
		repository.NewUserRepository(db),
		repository.NewRoleRepository(db),
		repository.NewPermissionRepository(db),
		audit,
	)
	engine := NewDecisionService(repository.NewAssignmentRepository(db), repository.NewRoleRepository(db))

	dept := &model.Department{Code: "CR", Name: "Credit", IsActive: true}
	require.NoError(t, db.Create(dept).Error)
	branch := &model.Branch{Code: "PP01", Name: "Phnom Penh Central", IsActive: true}
	require.NoError(t, db.Create(branch).Error)

	perm, err := permSvc.Create(ctx, testActor(), CreatePermissionRequest{
		Name:         "APPLICATION:APPROVE:BRANCH",
		ResourceType: string(model.ResourceApplication),
		Action:       string(model.ActionApprove),
		Scope:        string(model.ScopeBranch),
	})
	require.NoError(t, err)

	role, err := roleSvc.Create(ctx, testActor(), CreateRoleRequest{
		Name:        "branch_manager",
		DisplayName: "Branch Manager",
		Level:       80,
	})
	require.NoError(t, err)
	roleID := uuid.MustParse(role.ID)

	require.NoError(t, roleSvc.GrantPermission(ctx, testActor(), roleID, uuid.MustParse(perm.ID)))

	deptID := dept.ID.String()
	branchID := branch.ID.String()
	manager, err := userSvc.Create(ctx, testActor(), CreateUserRequest{
		Username:     "sovann",
		Email:        "sovann@example.com",
		Password:     "depends-on-length",
		DepartmentID: &deptID,
		BranchID:     &branchID,
	})
	require.NoError(t, err)
	managerID := uuid.MustParse(manager.ID)

	_, err = assignSvc.AssignRole(ctx, testActor(), managerID, AssignRoleRequest{
		RoleID:   role.ID,
		BranchID: &branchID,
	})
	require.NoError(t, err)

	scope := model.ScopeBranch
	check := PermissionCheck{
		Resource: model.ResourceApplication,
		Action:   model.ActionApprove,
		Scope:    &scope,
	}

	allowed, err := engine.HasPermission(ctx, managerID, check)
	require.NoError(t, err)
	assert.True(t, allowed)

	revoked, err := assignSvc.RevokeRole(ctx, testActor(), managerID, roleID)
	require.NoError(t, err)
	require.True(t, revoked)

	allowed, err = engine.HasPermission(ctx, managerID, check)
	require.NoError(t, err)
	assert.False(t, allowed)
}
