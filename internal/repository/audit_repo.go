package repository

import (
	"context"
	"time"

	"procuretrack/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditFilter narrows audit entry listings. Zero values are ignored.
type AuditFilter struct {
	DocumentID  *uuid.UUID
	ActorUserID *uuid.UUID
	Transition  string
	From        *time.Time
	To          *time.Time
	Offset      int
	Limit       int
}

// AuditEntryRepository is append-only: entries are never updated or deleted.
type AuditEntryRepository interface {
	Append(ctx context.Context, entry *model.AuditEntry) error
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]model.AuditEntry, error)
	List(ctx context.Context, filter AuditFilter) ([]model.AuditEntry, int64, error)
}

type auditEntryRepository struct {
	db *gorm.DB
}

func NewAuditEntryRepository(db *gorm.DB) AuditEntryRepository {
	return &auditEntryRepository{db: db}
}

func (r *auditEntryRepository) Append(ctx context.Context, entry *model.AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	return GetDB(ctx, r.db).Create(entry).Error
}

func (r *auditEntryRepository) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]model.AuditEntry, error) {
	var entries []model.AuditEntry
	if err := GetDB(ctx, r.db).
		Where("document_id = ?", documentID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *auditEntryRepository) List(ctx context.Context, filter AuditFilter) ([]model.AuditEntry, int64, error) {
	var entries []model.AuditEntry
	var total int64

	scope := func(q *gorm.DB) *gorm.DB {
		if filter.DocumentID != nil {
			q = q.Where("document_id = ?", *filter.DocumentID)
		}
		if filter.ActorUserID != nil {
			q = q.Where("actor_user_id = ?", *filter.ActorUserID)
		}
		if filter.Transition != "" {
			q = q.Where("transition = ?", filter.Transition)
		}
		if filter.From != nil {
			q = q.Where("created_at >= ?", *filter.From)
		}
		if filter.To != nil {
			q = q.Where("created_at <= ?", *filter.To)
		}
		return q
	}

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.AuditEntry{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Scopes(scope).Order("created_at DESC").Offset(filter.Offset).Limit(filter.Limit).Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ActivityLogRepository stores the administrative activity trail.
type ActivityLogRepository interface {
	Log(ctx context.Context, entry *model.ActivityLog) error
	List(ctx context.Context, offset, limit int) ([]model.ActivityLog, int64, error)
}

type activityLogRepository struct {
	db *gorm.DB
}

func NewActivityLogRepository(db *gorm.DB) ActivityLogRepository {
	return &activityLogRepository{db: db}
}

func (r *activityLogRepository) Log(ctx context.Context, entry *model.ActivityLog) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

func (r *activityLogRepository) List(ctx context.Context, offset, limit int) ([]model.ActivityLog, int64, error) {
	var logs []model.ActivityLog
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.ActivityLog{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Preload("User").Order("created_at desc").Offset(offset).Limit(limit).Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}
