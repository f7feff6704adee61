package repository

import (
	"context"

	"github.com/parkkyonghun0510/lc-le-sub001/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RoleRepository interface {
	Create(ctx context.Context, role *model.Role) error
	Update(ctx context.Context, role *model.Role) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Role, error)
	FindByIDWithPermissions(ctx context.Context, id uuid.UUID) (*model.Role, error)
	FindByName(ctx context.Context, name string) (*model.Role, error)
	FindDefault(ctx context.Context) (*model.Role, error)
	List(ctx context.Context, activeOnly bool) ([]model.Role, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Role, error)

	// RolePermission grants
	CreateGrant(ctx context.Context, grant *model.RolePermission) error
	UpdateGrant(ctx context.Context, grant *model.RolePermission) error
	FindGrant(ctx context.Context, roleID, permissionID uuid.UUID) (*model.RolePermission, error)
	DeleteGrant(ctx context.Context, roleID, permissionID uuid.UUID) (int64, error)
	ListGrantsByRoleIDs(ctx context.Context, roleIDs []uuid.UUID) ([]model.RolePermission, error)
	ListAllGrants(ctx context.Context) ([]model.RolePermission, error)

	CountActiveAssignments(ctx context.Context, roleID uuid.UUID) (int64, error)
}

type roleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &roleRepository{db: db}
}

func (r *roleRepository) Create(ctx context.Context, role *model.Role) error {
	return GetDB(ctx, r.db).Create(role).Error
}

func (r *roleRepository) Update(ctx context.Context, role *model.Role) error {
	return GetDB(ctx, r.db).Save(role).Error
}

func (r *roleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := GetDB(ctx, r.db)
	// Grants cascade at the database level; delete explicitly so SQLite-backed
	// tests behave the same as Postgres.
	if err := db.Where("role_id = ?", id).Delete(&model.RolePermission{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&model.Role{}).Error
}

func (r *roleRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Role, error) {
	var role model.Role
	if err := GetDB(ctx, r.db).First(&role, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepository) FindByIDWithPermissions(ctx context.Context, id uuid.UUID) (*model.Role, error) {
	var role model.Role
	err := GetDB(ctx, r.db).
		Preload("Permissions").
		Preload("Permissions.Permission").
		First(&role, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepository) FindByName(ctx context.Context, name string) (*model.Role, error) {
	var role model.Role
	if err := GetDB(ctx, r.db).Where("name = ?", name).First(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepository) FindDefault(ctx context.Context) (*model.Role, error) {
	var role model.Role
	err := GetDB(ctx, r.db).
		Where("is_default = ? AND is_active = ?", true, true).
		Order("level asc").
		First(&role).Error
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepository) List(ctx context.Context, activeOnly bool) ([]model.Role, error) {
	q := GetDB(ctx, r.db).Model(&model.Role{})
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var roles []model.Role
	if err := q.Order("level desc, display_name asc").Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *roleRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var roles []model.Role
	if err := GetDB(ctx, r.db).Where("id IN ?", ids).Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *roleRepository) CreateGrant(ctx context.Context, grant *model.RolePermission) error {
	return GetDB(ctx, r.db).Create(grant).Error
}

func (r *roleRepository) UpdateGrant(ctx context.Context, grant *model.RolePermission) error {
	return GetDB(ctx, r.db).Save(grant).Error
}

func (r *roleRepository) FindGrant(ctx context.Context, roleID, permissionID uuid.UUID) (*model.RolePermission, error) {
	var grant model.RolePermission
	err := GetDB(ctx, r.db).
		Where("role_id = ? AND permission_id = ?", roleID, permissionID).
		First(&grant).Error
	if err != nil {
		return nil, err
	}
	return &grant, nil
}

func (r *roleRepository) DeleteGrant(ctx context.Context, roleID, permissionID uuid.UUID) (int64, error) {
	res := GetDB(ctx, r.db).
		Where("role_id = ? AND permission_id = ?", roleID, permissionID).
		Delete(&model.RolePermission{})
	return res.RowsAffected, res.Error
}

func (r *roleRepository) ListGrantsByRoleIDs(ctx context.Context, roleIDs []uuid.UUID) ([]model.RolePermission, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	var grants []model.RolePermission
	err := GetDB(ctx, r.db).
		Preload("Permission").
		Where("role_id IN ?", roleIDs).
		Find(&grants).Error
	if err != nil {
		return nil, err
	}
	return grants, nil
}

func (r *roleRepository) ListAllGrants(ctx context.Context) ([]model.RolePermission, error) {
	var grants []model.RolePermission
	if err := GetDB(ctx, r.db).Find(&grants).Error; err != nil {
		return nil, err
	}
	return grants, nil
}

func (r *roleRepository) CountActiveAssignments(ctx context.Context, roleID uuid.UUID) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).
		Model(&model.UserRole{}).
		Where("role_id = ? AND is_active = ?", roleID, true).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
