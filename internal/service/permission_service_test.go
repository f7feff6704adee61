package service

import (
	"context"
	"errors"
	"testing"

	"github.com/parkkyonghun0510/lc-le-sub001/internal/model"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/repository"
	"github.com/parkkyonghun0510/lc-le-sub001/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newPermissionEnv(t *testing.T) (*gorm.DB, PermissionService) {
	t.Helper()
	db := newTestDB(t)
	audit := NewAuditService(repository.NewAuditRepository(db), nil)
	return db, NewPermissionService(repository.NewPermissionRepository(db), audit)
}

func testActor() Actor {
	return Actor{ID: uuid.New(), IP: "127.0.0.1"}
}

func TestCreatePermission(t *testing.T) {
	db, svc := newPermissionEnv(t)
	ctx := context.Background()

	res, err := svc.Create(ctx, testActor(), CreatePermissionRequest{
		Name:         "application_read_branch",
		Description:  "Read applications in own branch",
		ResourceType: "APPLICATION",
		Action:       "READ",
		Scope:        "BRANCH",
	})
	require.NoError(t, err)
	assert.Equal(t, "application_read_branch", res.Name)
	assert.Equal(t, "APPLICATION", res.ResourceType)
	assert.True(t, res.IsActive)
	assert.False(t, res.IsSystemPermission)

	var auditCount int64
	require.NoError(t, db.Model(&model.PermissionAuditEntry{}).Count(&auditCount).Error)
	assert.EqualValues(t, 1, auditCount)
}

func TestCreatePermissionRejectsDuplicates(t *testing.T) {
	db, svc := newPermissionEnv(t)
	ctx := context.Background()

	existing := createTestPermission(t, db, model.ResourceUser, model.ActionRead, model.ScopeGlobal)

	_, err := svc.Create(ctx, testActor(), CreatePermissionRequest{
		Name:         "another_name",
		ResourceType: "USER",
		Action:       "READ",
		Scope:        "GLOBAL",
	})
	assert.True(t, errors.Is(err, apperror.ErrConflict), "duplicate triple must be rejected")

	_, err = svc.Create(ctx, testActor(), CreatePermissionRequest{
		Name:         existing.Name,
		ResourceType: "USER",
		Action:       "UPDATE",
		Scope:        "GLOBAL",
	})
	assert.True(t, errors.Is(err, apperror.ErrConflict), "duplicate name must be rejected")
}

func TestCreatePermissionRejectsUnknownTriple(t *testing.T) {
	_, svc := newPermissionEnv(t)

	_, err := svc.Create(context.Background(), testActor(), CreatePermissionRequest{
		Name:         "bogus",
		ResourceType: "SPACESHIP",
		Action:       "READ",
		Scope:        "GLOBAL",
	})
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestGetPermissionNotFound(t *testing.T) {
	_, svc := newPermissionEnv(t)

	_, err := svc.Get(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestListPermissionsFilters(t *testing.T) {
	db, svc := newPermissionEnv(t)
	ctx := context.Background()

	createTestPermission(t, db, model.ResourceUser, model.ActionRead, model.ScopeGlobal)
	createTestPermission(t, db, model.ResourceUser, model.ActionUpdate, model.ScopeGlobal)
	inactive := createTestPermission(t, db, model.ResourceApplication, model.ActionRead, model.ScopeBranch)
	require.NoError(t, db.Model(inactive).Update("is_active", false).Error)

	all, err := svc.List(ctx, ListPermissionsRequest{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	users, err := svc.List(ctx, ListPermissionsRequest{ResourceType: "USER"})
	require.NoError(t, err)
	assert.Len(t, users, 2)

	active, err := svc.List(ctx, ListPermissionsRequest{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, 2)

	_, err = svc.List(ctx, ListPermissionsRequest{Action: "TELEPORT"})
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestUpdatePermission(t *testing.T) {
	db, svc := newPermissionEnv(t)
	ctx := context.Background()

	perm := createTestPermission(t, db, model.ResourceFile, model.ActionCreate, model.ScopeOwn)

	res, err := svc.Update(ctx, testActor(), perm.ID, UpdatePermissionRequest{
		Description: strPtr("Upload documents to own applications"),
		IsActive:    boolPtr(false),
	})
	require.NoError(t, err)
	assert.Equal(t, "Upload documents to own applications", res.Description)
	assert.False(t, res.IsActive)
	assert.Equal(t, string(model.ResourceFile), res.ResourceType, "identity triple stays put")
}

func TestUpdatePermissionGuardsSystemEntries(t *testing.T) {
	db, svc := newPermissionEnv(t)
	ctx := context.Background()

	perm := createTestPermission(t, db, model.ResourceSystem, model.ActionManage, model.ScopeGlobal)
	require.NoError(t, db.Model(perm).Update("is_system_permission", true).Error)

	_, err := svc.Update(ctx, testActor(), perm.ID, UpdatePermissionRequest{IsActive: boolPtr(false)})
	assert.True(t, errors.Is(err, apperror.ErrPermissionDenied))

	err = svc.Delete(ctx, testActor(), perm.ID)
	assert.True(t, errors.Is(err, apperror.ErrPermissionDenied))
}

func TestDeletePermission(t *testing.T) {
	db, svc := newPermissionEnv(t)
	ctx := context.Background()

	perm := createTestPermission(t, db, model.ResourceNotification, model.ActionRead, model.ScopeOwn)

	require.NoError(t, svc.Delete(ctx, testActor(), perm.ID))

	_, err := svc.Get(ctx, perm.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	err = svc.Delete(ctx, testActor(), uuid.New())
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}
