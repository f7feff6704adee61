package repository

import (
	"context"

	"github.com/parkkyonghun0510/lc-le-sub001/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ApplicationFilter narrows loan application listings.
type ApplicationFilter struct {
	Status       string
	DepartmentID *uuid.UUID
	BranchID     *uuid.UUID
	CreatedBy    *uuid.UUID
	Search       string // matches application_no or customer_name
}

type ApplicationRepository interface {
	Create(ctx context.Context, app *model.CustomerApplication) error
	Update(ctx context.Context, app *model.CustomerApplication) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.CustomerApplication, error)
	List(ctx context.Context, filter ApplicationFilter, page, limit int) ([]model.CustomerApplication, int64, error)
	NextSequence(ctx context.Context, prefix string) (int64, error)
}

type applicationRepository struct {
	db *gorm.DB
}

func NewApplicationRepository(db *gorm.DB) ApplicationRepository {
	return &applicationRepository{db: db}
}

func (r *applicationRepository) Create(ctx context.Context, app *model.CustomerApplication) error {
	return GetDB(ctx, r.db).Create(app).Error
}

func (r *applicationRepository) Update(ctx context.Context, app *model.CustomerApplication) error {
	return GetDB(ctx, r.db).Save(app).Error
}

func (r *applicationRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.CustomerApplication, error) {
	var app model.CustomerApplication
	err := GetDB(ctx, r.db).
		Preload("Creator").
		Preload("Reviewer").
		First(&app, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *applicationRepository) List(ctx context.Context, filter ApplicationFilter, page, limit int) ([]model.CustomerApplication, int64, error) {
	var apps []model.CustomerApplication
	var total int64

	db := GetDB(ctx, r.db).Model(&model.CustomerApplication{})
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.DepartmentID != nil {
		db = db.Where("department_id = ?", *filter.DepartmentID)
	}
	if filter.BranchID != nil {
		db = db.Where("branch_id = ?", *filter.BranchID)
	}
	if filter.CreatedBy != nil {
		db = db.Where("created_by = ?", *filter.CreatedBy)
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		db = db.Where("application_no LIKE ? OR customer_name LIKE ?", pattern, pattern)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Preload("Creator").Order("created_at desc").Offset(offset).Limit(limit).Find(&apps).Error; err != nil {
		return nil, 0, err
	}

	return apps, total, nil
}

func (r *applicationRepository) NextSequence(ctx context.Context, prefix string) (int64, error) {
	db := GetDB(ctx, r.db)

	// Advisory lock serializes concurrent number generation per prefix.
	// Only Postgres has it; the sqlite test driver skips the lock.
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", prefix).Error; err != nil {
			return 0, err
		}
	}

	var count int64
	err := db.
		Model(&model.CustomerApplication{}).
		Where("application_no LIKE ?", prefix+"%").
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count + 1, nil
}
