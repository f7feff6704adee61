package repository

import (
	"context"
	"time"

	"github.com/parkkyonghun0510/lc-le-sub001/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditQuery narrows audit-trail listings. Nil/empty fields match everything.
type AuditQuery struct {
	Action       string
	EntityType   string
	UserID       *uuid.UUID
	TargetUserID *uuid.UUID
	From         *time.Time
	To           *time.Time
	Search       string
}

type AuditRepository interface {
	Log(ctx context.Context, entry *model.PermissionAuditEntry) error
	List(ctx context.Context, query AuditQuery, page, limit int) ([]model.PermissionAuditEntry, int64, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Log(ctx context.Context, entry *model.PermissionAuditEntry) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

func (r *auditRepository) List(ctx context.Context, query AuditQuery, page, limit int) ([]model.PermissionAuditEntry, int64, error) {
	var entries []model.PermissionAuditEntry
	var total int64

	db := GetDB(ctx, r.db).Model(&model.PermissionAuditEntry{})
	if query.Action != "" {
		db = db.Where("action = ?", query.Action)
	}
	if query.EntityType != "" {
		db = db.Where("entity_type = ?", query.EntityType)
	}
	if query.UserID != nil {
		db = db.Where("user_id = ?", *query.UserID)
	}
	if query.TargetUserID != nil {
		db = db.Where("target_user_id = ?", *query.TargetUserID)
	}
	if query.From != nil {
		db = db.Where("created_at >= ?", *query.From)
	}
	if query.To != nil {
		db = db.Where("created_at <= ?", *query.To)
	}
	if query.Search != "" {
		pattern := "%" + query.Search + "%"
		db = db.Where("reason LIKE ? OR details LIKE ?", pattern, pattern)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Preload("User").Order("created_at desc").Offset(offset).Limit(limit).Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}
