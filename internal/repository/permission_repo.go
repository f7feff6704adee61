package repository

import (
	"context"

	"github.com/parkkyonghun0510/lc-le-sub001/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PermissionFilter narrows catalog listings. Nil fields match everything.
type PermissionFilter struct {
	ResourceType *model.ResourceType
	Action       *model.PermissionAction
	Scope        *model.PermissionScope
	IsActive     *bool
}

type PermissionRepository interface {
	Create(ctx context.Context, perm *model.Permission) error
	Update(ctx context.Context, perm *model.Permission) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Permission, error)
	FindByName(ctx context.Context, name string) (*model.Permission, error)
	FindByTriple(ctx context.Context, resource model.ResourceType, action model.PermissionAction, scope model.PermissionScope) (*model.Permission, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Permission, error)
	List(ctx context.Context, filter PermissionFilter) ([]model.Permission, error)
}

type permissionRepository struct {
	db *gorm.DB
}

func NewPermissionRepository(db *gorm.DB) PermissionRepository {
	return &permissionRepository{db: db}
}

func (r *permissionRepository) Create(ctx context.Context, perm *model.Permission) error {
	return GetDB(ctx, r.db).Create(perm).Error
}

func (r *permissionRepository) Update(ctx context.Context, perm *model.Permission) error {
	return GetDB(ctx, r.db).Save(perm).Error
}

func (r *permissionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Permission{}).Error
}

func (r *permissionRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Permission, error) {
	var perm model.Permission
	if err := GetDB(ctx, r.db).First(&perm, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &perm, nil
}

func (r *permissionRepository) FindByName(ctx context.Context, name string) (*model.Permission, error) {
	var perm model.Permission
	if err := GetDB(ctx, r.db).Where("name = ?", name).First(&perm).Error; err != nil {
		return nil, err
	}
	return &perm, nil
}

func (r *permissionRepository) FindByTriple(ctx context.Context, resource model.ResourceType, action model.PermissionAction, scope model.PermissionScope) (*model.Permission, error) {
	var perm model.Permission
	err := GetDB(ctx, r.db).
		Where("resource_type = ? AND action = ? AND scope = ?", resource, action, scope).
		First(&perm).Error
	if err != nil {
		return nil, err
	}
	return &perm, nil
}

func (r *permissionRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Permission, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var perms []model.Permission
	if err := GetDB(ctx, r.db).Where("id IN ?", ids).Find(&perms).Error; err != nil {
		return nil, err
	}
	return perms, nil
}

func (r *permissionRepository) List(ctx context.Context, filter PermissionFilter) ([]model.Permission, error) {
	q := GetDB(ctx, r.db).Model(&model.Permission{})
	if filter.ResourceType != nil {
		q = q.Where("resource_type = ?", *filter.ResourceType)
	}
	if filter.Action != nil {
		q = q.Where("action = ?", *filter.Action)
	}
	if filter.Scope != nil {
		q = q.Where("scope = ?", *filter.Scope)
	}
	if filter.IsActive != nil {
		q = q.Where("is_active = ?", *filter.IsActive)
	}

	var perms []model.Permission
	if err := q.Order("resource_type asc, action asc, scope asc").Find(&perms).Error; err != nil {
		return nil, err
	}
	return perms, nil
}
