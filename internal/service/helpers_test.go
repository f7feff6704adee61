package service

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/parkkyonghun0510/lc-le-sub001/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a throwaway sqlite database carrying the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.Department{},
		&model.Branch{},
		&model.User{},
		&model.RefreshToken{},
		&model.Permission{},
		&model.Role{},
		&model.RolePermission{},
		&model.UserRole{},
		&model.UserPermission{},
		&model.PermissionTemplate{},
		&model.PermissionAuditEntry{},
		&model.CustomerApplication{},
	))
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, username string) *model.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)

	user := &model.User{
		Username: username,
		Email:    username + "@example.com",
		Password: string(hash),
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTestPermission(t *testing.T, db *gorm.DB, resource model.ResourceType, action model.PermissionAction, scope model.PermissionScope) *model.Permission {
	t.Helper()

	perm := &model.Permission{
		Name:         string(resource) + ":" + string(action) + ":" + string(scope),
		ResourceType: resource,
		Action:       action,
		Scope:        scope,
		IsActive:     true,
	}
	require.NoError(t, db.Create(perm).Error)
	return perm
}

func createTestRole(t *testing.T, db *gorm.DB, name string, level int) *model.Role {
	t.Helper()

	role := &model.Role{
		Name:        name,
		DisplayName: name,
		Level:       level,
		IsActive:    true,
	}
	require.NoError(t, db.Create(role).Error)
	return role
}

func grantPermissionToRole(t *testing.T, db *gorm.DB, role *model.Role, perm *model.Permission) *model.RolePermission {
	t.Helper()

	grant := &model.RolePermission{
		RoleID:       role.ID,
		PermissionID: perm.ID,
		IsGranted:    true,
	}
	require.NoError(t, db.Create(grant).Error)
	return grant
}

func assignRoleToUser(t *testing.T, db *gorm.DB, user *model.User, role *model.Role) *model.UserRole {
	t.Helper()

	assignment := &model.UserRole{
		UserID:        user.ID,
		RoleID:        role.ID,
		IsActive:      true,
		EffectiveFrom: time.Now().Add(-time.Minute),
	}
	require.NoError(t, db.Create(assignment).Error)
	return assignment
}

// addDirectPermission writes a direct user permission entry. createdAt feeds
// the recency tie-break, so callers spread entries across distinct instants.
func addDirectPermission(t *testing.T, db *gorm.DB, user *model.User, perm *model.Permission, granted bool, resourceID *uuid.UUID, createdAt time.Time) *model.UserPermission {
	t.Helper()

	entry := &model.UserPermission{
		UserID:        user.ID,
		PermissionID:  perm.ID,
		IsGranted:     granted,
		ResourceID:    resourceID,
		IsActive:      true,
		EffectiveFrom: time.Now().Add(-time.Minute),
		CreatedAt:     createdAt,
	}
	require.NoError(t, db.Create(entry).Error)
	return entry
}

func createTestTemplate(t *testing.T, db *gorm.DB, name string, permissionIDs []uuid.UUID) *model.PermissionTemplate {
	t.Helper()

	tpl := &model.PermissionTemplate{
		Name:         name,
		TemplateType: model.TemplateTypeRole,
		IsActive:     true,
	}
	require.NoError(t, tpl.SetPermissionIDs(permissionIDs))
	require.NoError(t, db.Create(tpl).Error)
	return tpl
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func intPtr(i int) *int { return &i }
