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

func newAssignmentEnv(t *testing.T) (*gorm.DB, AssignmentService) {
	t.Helper()
	db := newTestDB(t)
	audit := NewAuditService(repository.NewAuditRepository(db), nil)
	svc := NewAssignmentService(
		repository.NewAssignmentRepository(db),
		repository.NewUserRepository(db),
		repository.NewRoleRepository(db),
		repository.NewPermissionRepository(db),
		audit,
	)
	return db, svc
}

func TestAssignRole(t *testing.T) {
	db, svc := newAssignmentEnv(t)
	ctx := context.Background()

	user := createTestUser(t, db, "newhire")
	role := createTestRole(t, db, "teller", 20)

	res, err := svc.AssignRole(ctx, testActor(), user.ID, AssignRoleRequest{RoleID: role.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, role.ID.String(), res.RoleID)
	assert.Equal(t, "teller", res.RoleName)
	assert.True(t, res.IsActive)

	_, err = svc.AssignRole(ctx, testActor(), user.ID, AssignRoleRequest{RoleID: role.ID.String()})
	assert.True(t, errors.Is(err, apperror.ErrConflict), "same tuple twice is a conflict")

	// The same role scoped to a branch is a different tuple and coexists.
	branchID := uuid.NewString()
	res, err = svc.AssignRole(ctx, testActor(), user.ID, AssignRoleRequest{
		RoleID:   role.ID.String(),
		BranchID: &branchID,
	})
	require.NoError(t, err)
	require.NotNil(t, res.BranchID)
	assert.Equal(t, branchID, *res.BranchID)

	var count int64
	require.NoError(t, db.Model(&model.UserRole{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestAssignRoleValidation(t *testing.T) {
	db, svc := newAssignmentEnv(t)
	ctx := context.Background()

	user := createTestUser(t, db, "candidate")
	role := createTestRole(t, db, "officer", 30)

	_, err := svc.AssignRole(ctx, testActor(), uuid.New(), AssignRoleRequest{RoleID: role.ID.String()})
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	_, err = svc.AssignRole(ctx, testActor(), user.ID, AssignRoleRequest{RoleID: "garbage"})
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, err = svc.AssignRole(ctx, testActor(), user.ID, AssignRoleRequest{RoleID: uuid.NewString()})
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	require.NoError(t, db.Model(role).Update("is_active", false).Error)
	_, err = svc.AssignRole(ctx, testActor(), user.ID, AssignRoleRequest{RoleID: role.ID.String()})
	assert.True(t, errors.Is(err, apperror.ErrValidation), "inactive role cannot be assigned")

	require.NoError(t, db.Model(user).Update("is_active", false).Error)
	require.NoError(t, db.Model(role).Update("is_active", true).Error)
	_, err = svc.AssignRole(ctx, testActor(), user.ID, AssignRoleRequest{RoleID: role.ID.String()})
	assert.True(t, errors.Is(err, apperror.ErrValidation), "inactive user cannot receive roles")
}

func TestRevokeRoleAndReassign(t *testing.T) {
	db, svc := newAssignmentEnv(t)
	ctx := context.Background()

	user := createTestUser(t, db, "mover")
	role := createTestRole(t, db, "reviewer", 50)

	_, err := svc.AssignRole(ctx, testActor(), user.ID, AssignRoleRequest{RoleID: role.ID.String()})
	require.NoError(t, err)

	revoked, err := svc.RevokeRole(ctx, testActor(), user.ID, role.ID)
	require.NoError(t, err)
	assert.True(t, revoked)

	// Revoking again finds nothing; that is a quiet no-op, not an error.
	revoked, err = svc.RevokeRole(ctx, testActor(), user.ID, role.ID)
	require.NoError(t, err)
	assert.False(t, revoked)

	roles, err := svc.GetUserRoles(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, roles)

	// Reassignment reuses the tuple row instead of stacking a duplicate.
	_, err = svc.AssignRole(ctx, testActor(), user.ID, AssignRoleRequest{RoleID: role.ID.String()})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&model.UserRole{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	roles, err = svc.GetUserRoles(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "reviewer", roles[0].RoleName)
}

func TestRevokeRoleClearsEveryScope(t *testing.T) {
	db, svc := newAssignmentEnv(t)
	ctx := context.Background()

	user := createTestUser(t, db, "multirole")
	role := createTestRole(t, db, "teller", 20)

	_, err := svc.AssignRole(ctx, testActor(), user.ID, AssignRoleRequest{RoleID: role.ID.String()})
	require.NoError(t, err)

	branchID := uuid.NewString()
	_, err = svc.AssignRole(ctx, testActor(), user.ID, AssignRoleRequest{RoleID: role.ID.String(), BranchID: &branchID})
	require.NoError(t, err)

	revoked, err := svc.RevokeRole(ctx, testActor(), user.ID, role.ID)
	require.NoError(t, err)
	assert.True(t, revoked)

	roles, err := svc.GetUserRoles(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, roles, "both scoped assignments are deactivated")
}

func TestGetUserRolesSkipsExpired(t *testing.T) {
	db, svc := newAssignmentEnv(t)
	ctx := context.Background()

	user := createTestUser(t, db, "expiring")
	role := createTestRole(t, db, "seasonal", 10)

	until := time.Now().Add(-time.Hour)
	expired := &model.UserRole{
		UserID:         user.ID,
		RoleID:         role.ID,
		IsActive:       true,
		EffectiveFrom:  time.Now().Add(-2 * time.Hour),
		EffectiveUntil: &until,
	}
	require.NoError(t, db.Create(expired).Error)

	roles, err := svc.GetUserRoles(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestGrantDirectPermission(t *testing.T) {
	db, svc := newAssignmentEnv(t)
	ctx := context.Background()

	user := createTestUser(t, db, "exception")
	perm := createTestPermission(t, db, model.ResourceAnalytics, model.ActionExport, model.ScopeGlobal)

	res, err := svc.GrantPermission(ctx, testActor(), user.ID, GrantUserPermissionRequest{
		PermissionID: perm.ID.String(),
		Reason:       "quarter-end reporting",
	})
	require.NoError(t, err)
	assert.True(t, res.IsGranted)
	assert.Equal(t, perm.Name, res.PermissionName)
	assert.Equal(t, "quarter-end reporting", res.OverrideReason)

	// Granting the same tuple again rewrites the row in place.
	_, err = svc.GrantPermission(ctx, testActor(), user.ID, GrantUserPermissionRequest{
		PermissionID: perm.ID.String(),
		Reason:       "extended",
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&model.UserPermission{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	// A resource-bound grant is a different tuple.
	resourceID := uuid.NewString()
	_, err = svc.GrantPermission(ctx, testActor(), user.ID, GrantUserPermissionRequest{
		PermissionID: perm.ID.String(),
		ResourceID:   &resourceID,
	})
	require.NoError(t, err)
	require.NoError(t, db.Model(&model.UserPermission{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestGrantDirectPermissionValidation(t *testing.T) {
	db, svc := newAssignmentEnv(t)
	ctx := context.Background()

	user := createTestUser(t, db, "strict")
	perm := createTestPermission(t, db, model.ResourceFile, model.ActionRead, model.ScopeOwn)

	_, err := svc.GrantPermission(ctx, testActor(), user.ID, GrantUserPermissionRequest{PermissionID: "nope"})
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, err = svc.GrantPermission(ctx, testActor(), user.ID, GrantUserPermissionRequest{PermissionID: uuid.NewString()})
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	_, err = svc.GrantPermission(ctx, testActor(), user.ID, GrantUserPermissionRequest{
		PermissionID: perm.ID.String(),
		Conditions:   "{not json",
	})
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	require.NoError(t, db.Model(perm).Update("is_active", false).Error)
	_, err = svc.GrantPermission(ctx, testActor(), user.ID, GrantUserPermissionRequest{PermissionID: perm.ID.String()})
	assert.True(t, errors.Is(err, apperror.ErrValidation), "inactive permission cannot be granted")
}

func TestRevokeDirectPermissionWritesDenial(t *testing.T) {
	db, svc := newAssignmentEnv(t)
	ctx := context.Background()

	user := createTestUser(t, db, "blocked")
	perm := createTestPermission(t, db, model.ResourceApplication, model.ActionApprove, model.ScopeBranch)

	// No grant exists, yet the revoke still lands as an explicit denial.
	res, err := svc.RevokePermission(ctx, testActor(), user.ID, RevokeUserPermissionRequest{
		PermissionID: perm.ID.String(),
		Reason:       "pending investigation",
	})
	require.NoError(t, err)
	assert.False(t, res.IsGranted)
	assert.Equal(t, "pending investigation", res.OverrideReason)

	var entry model.UserPermission
	require.NoError(t, db.First(&entry, "user_id = ? AND permission_id = ?", user.ID, perm.ID).Error)
	assert.False(t, entry.IsGranted)
	assert.True(t, entry.IsActive)
}

func TestRevokeDirectPermissionFlipsExistingGrant(t *testing.T) {
	db, svc := newAssignmentEnv(t)
	ctx := context.Background()

	user := createTestUser(t, db, "demoted")
	perm := createTestPermission(t, db, model.ResourceUser, model.ActionUpdate, model.ScopeDepartment)

	_, err := svc.GrantPermission(ctx, testActor(), user.ID, GrantUserPermissionRequest{PermissionID: perm.ID.String()})
	require.NoError(t, err)

	_, err = svc.RevokePermission(ctx, testActor(), user.ID, RevokeUserPermissionRequest{PermissionID: perm.ID.String()})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&model.UserPermission{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count, "grant and deny for one tuple share a row")

	var entry model.UserPermission
	require.NoError(t, db.First(&entry, "user_id = ? AND permission_id = ?", user.ID, perm.ID).Error)
	assert.False(t, entry.IsGranted)
}
