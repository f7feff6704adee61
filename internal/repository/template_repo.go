package repository

import (
	"context"

	"github.com/parkkyonghun0510/lc-le-sub001/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TemplateRepository interface {
	Create(ctx context.Context, tpl *model.PermissionTemplate) error
	Update(ctx context.Context, tpl *model.PermissionTemplate) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.PermissionTemplate, error)
	FindByName(ctx context.Context, name string) (*model.PermissionTemplate, error)
	List(ctx context.Context, activeOnly bool) ([]model.PermissionTemplate, error)
	IncrementUsage(ctx context.Context, id uuid.UUID) error
}

type templateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &templateRepository{db: db}
}

func (r *templateRepository) Create(ctx context.Context, tpl *model.PermissionTemplate) error {
	return GetDB(ctx, r.db).Create(tpl).Error
}

func (r *templateRepository) Update(ctx context.Context, tpl *model.PermissionTemplate) error {
	return GetDB(ctx, r.db).Save(tpl).Error
}

func (r *templateRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.PermissionTemplate{}).Error
}

func (r *templateRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.PermissionTemplate, error) {
	var tpl model.PermissionTemplate
	if err := GetDB(ctx, r.db).First(&tpl, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &tpl, nil
}

func (r *templateRepository) FindByName(ctx context.Context, name string) (*model.PermissionTemplate, error) {
	var tpl model.PermissionTemplate
	if err := GetDB(ctx, r.db).Where("name = ?", name).First(&tpl).Error; err != nil {
		return nil, err
	}
	return &tpl, nil
}

func (r *templateRepository) List(ctx context.Context, activeOnly bool) ([]model.PermissionTemplate, error) {
	q := GetDB(ctx, r.db).Model(&model.PermissionTemplate{})
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var tpls []model.PermissionTemplate
	if err := q.Order("name asc").Find(&tpls).Error; err != nil {
		return nil, err
	}
	return tpls, nil
}

func (r *templateRepository) IncrementUsage(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).
		Model(&model.PermissionTemplate{}).
		Where("id = ?", id).
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1")).Error
}
