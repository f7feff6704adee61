package repository

import (
	"context"
	"time"

	"github.com/parkkyonghun0510/lc-le-sub001/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AssignmentRepository persists user-role assignments and direct user
// permission entries. "Active at" queries apply the is_active flag and the
// effective-date window in SQL so callers see only live rows.
type AssignmentRepository interface {
	CreateUserRole(ctx context.Context, ur *model.UserRole) error
	UpdateUserRole(ctx context.Context, ur *model.UserRole) error
	FindUserRoleTuple(ctx context.Context, userID, roleID uuid.UUID, departmentID, branchID *uuid.UUID) (*model.UserRole, error)
	DeactivateUserRoles(ctx context.Context, userID, roleID uuid.UUID) (int64, error)
	DeactivateAllForUser(ctx context.Context, userID uuid.UUID) error
	ListActiveUserRoles(ctx context.Context, userID uuid.UUID, at time.Time) ([]model.UserRole, error)

	CreateUserPermission(ctx context.Context, up *model.UserPermission) error
	UpdateUserPermission(ctx context.Context, up *model.UserPermission) error
	FindUserPermissionTuple(ctx context.Context, userID, permissionID uuid.UUID, resourceID, departmentID, branchID *uuid.UUID) (*model.UserPermission, error)
	ListActiveUserPermissions(ctx context.Context, userID uuid.UUID, at time.Time) ([]model.UserPermission, error)
}

type assignmentRepository struct {
	db *gorm.DB
}

func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) CreateUserRole(ctx context.Context, ur *model.UserRole) error {
	return GetDB(ctx, r.db).Create(ur).Error
}

func (r *assignmentRepository) UpdateUserRole(ctx context.Context, ur *model.UserRole) error {
	return GetDB(ctx, r.db).Save(ur).Error
}

// FindUserRoleTuple looks up the row matching the exact scope tuple,
// regardless of its active flag. Nil scope ids match NULL columns.
func (r *assignmentRepository) FindUserRoleTuple(ctx context.Context, userID, roleID uuid.UUID, departmentID, branchID *uuid.UUID) (*model.UserRole, error) {
	q := GetDB(ctx, r.db).Where("user_id = ? AND role_id = ?", userID, roleID)
	q = whereNullable(q, "department_id", departmentID)
	q = whereNullable(q, "branch_id", branchID)

	var ur model.UserRole
	if err := q.First(&ur).Error; err != nil {
		return nil, err
	}
	return &ur, nil
}

func (r *assignmentRepository) DeactivateUserRoles(ctx context.Context, userID, roleID uuid.UUID) (int64, error) {
	res := GetDB(ctx, r.db).
		Model(&model.UserRole{}).
		Where("user_id = ? AND role_id = ? AND is_active = ?", userID, roleID, true).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}

// DeactivateAllForUser retires every role assignment and direct permission
// entry the user holds. Called when the user record itself is deleted, so no
// grant outlives its principal.
func (r *assignmentRepository) DeactivateAllForUser(ctx context.Context, userID uuid.UUID) error {
	db := GetDB(ctx, r.db)
	if err := db.
		Model(&model.UserRole{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Update("is_active", false).Error; err != nil {
		return err
	}
	return db.
		Model(&model.UserPermission{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Update("is_active", false).Error
}

func (r *assignmentRepository) ListActiveUserRoles(ctx context.Context, userID uuid.UUID, at time.Time) ([]model.UserRole, error) {
	var assignments []model.UserRole
	err := GetDB(ctx, r.db).
		Preload("Role").
		Where("user_id = ? AND is_active = ?", userID, true).
		Where("effective_from <= ?", at).
		Where("effective_until IS NULL OR effective_until > ?", at).
		Order("created_at asc").
		Find(&assignments).Error
	if err != nil {
		return nil, err
	}
	return assignments, nil
}

func (r *assignmentRepository) CreateUserPermission(ctx context.Context, up *model.UserPermission) error {
	return GetDB(ctx, r.db).Create(up).Error
}

func (r *assignmentRepository) UpdateUserPermission(ctx context.Context, up *model.UserPermission) error {
	return GetDB(ctx, r.db).Save(up).Error
}

// FindUserPermissionTuple looks up the row matching the exact scope tuple,
// regardless of its active or granted flags. Nil ids match NULL columns.
func (r *assignmentRepository) FindUserPermissionTuple(ctx context.Context, userID, permissionID uuid.UUID, resourceID, departmentID, branchID *uuid.UUID) (*model.UserPermission, error) {
	q := GetDB(ctx, r.db).Where("user_id = ? AND permission_id = ?", userID, permissionID)
	q = whereNullable(q, "resource_id", resourceID)
	q = whereNullable(q, "department_id", departmentID)
	q = whereNullable(q, "branch_id", branchID)

	var up model.UserPermission
	if err := q.First(&up).Error; err != nil {
		return nil, err
	}
	return &up, nil
}

func (r *assignmentRepository) ListActiveUserPermissions(ctx context.Context, userID uuid.UUID, at time.Time) ([]model.UserPermission, error) {
	var entries []model.UserPermission
	err := GetDB(ctx, r.db).
		Preload("Permission").
		Where("user_id = ? AND is_active = ?", userID, true).
		Where("effective_from <= ?", at).
		Where("effective_until IS NULL OR effective_until > ?", at).
		Order("created_at asc").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func whereNullable(q *gorm.DB, column string, id *uuid.UUID) *gorm.DB {
	if id == nil {
		return q.Where(column + " IS NULL")
	}
	return q.Where(column+" = ?", *id)
}
