package repository

import (
	"context"
	"fmt"
	"time"

	"procuretrack/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentFilter narrows document listings. Zero values are ignored.
type DocumentFilter struct {
	DocumentType string
	State        string
	OwnerOffice  string
	CreatedBy    *uuid.UUID
	Stages       []model.Stage // any-of (type, state) pairs
	Search       string        // tracking id or title
	Offset       int
	Limit        int
}

// DocumentRepository persists documents and their links.
type DocumentRepository interface {
	Create(ctx context.Context, doc *model.Document) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Document, error)
	// FindByIDForUpdate row-locks the document for the rest of the transaction.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Document, error)
	List(ctx context.Context, filter DocumentFilter) ([]model.Document, int64, error)
	// UpdateState moves doc to toState only if its stored state and version still
	// match doc; returns ErrStaleState otherwise. On success doc is updated in place.
	UpdateState(ctx context.Context, doc *model.Document, toState string) error
	// UpdateContent saves revision, details and amount without touching state or version.
	UpdateContent(ctx context.Context, doc *model.Document) error
	AddLink(ctx context.Context, link *model.DocumentLink) error
	Links(ctx context.Context, documentID uuid.UUID) ([]model.DocumentLink, error)
	// Referencing returns documents of documentType that link to linkedID.
	Referencing(ctx context.Context, linkedID uuid.UUID, documentType string) ([]model.Document, error)
	// NextSequence returns the next number for tracking ids starting with prefix.
	NextSequence(ctx context.Context, prefix string) (int, error)
	CountByStage(ctx context.Context) ([]model.StateCount, error)
	CountStaleInStages(ctx context.Context, stages []model.Stage, updatedBefore time.Time) ([]model.StateCount, error)
	CreatedTrend(ctx context.Context, documentType, groupBy string, start, end time.Time) ([]model.TrendPoint, error)
}

type documentRepository struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

// NewDocumentRepository returns a gorm backed DocumentRepository. lockTimeout bounds
// FindByIDForUpdate waits.
func NewDocumentRepository(db *gorm.DB, lockTimeout time.Duration) DocumentRepository {
	return &documentRepository{db: db, lockTimeout: lockTimeout}
}

func (r *documentRepository) Create(ctx context.Context, doc *model.Document) error {
	return GetDB(ctx, r.db).Omit("Links").Create(doc).Error
}

func (r *documentRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	var doc model.Document
	if err := GetDB(ctx, r.db).Preload("Links", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).First(&doc, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	db := GetDB(ctx, r.db)
	if err := setLockTimeout(db, r.lockTimeout); err != nil {
		return nil, translateLockError(err)
	}

	var doc model.Document
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&doc, "id = ?", id).Error; err != nil {
		return nil, translateLockError(err)
	}
	return &doc, nil
}

func (r *documentRepository) List(ctx context.Context, filter DocumentFilter) ([]model.Document, int64, error) {
	var docs []model.Document
	var total int64

	query := r.applyFilter(GetDB(ctx, r.db).Model(&model.Document{}), filter)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if err := r.applyFilter(GetDB(ctx, r.db), filter).
		Order("created_at DESC").
		Offset(filter.Offset).
		Limit(limit).
		Find(&docs).Error; err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

func (r *documentRepository) applyFilter(q *gorm.DB, f DocumentFilter) *gorm.DB {
	if f.DocumentType != "" {
		q = q.Where("document_type = ?", f.DocumentType)
	}
	if f.State != "" {
		q = q.Where("current_state = ?", f.State)
	}
	if f.OwnerOffice != "" {
		q = q.Where("owner_office = ?", f.OwnerOffice)
	}
	if f.CreatedBy != nil {
		q = q.Where("created_by = ?", *f.CreatedBy)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Where("tracking_id ILIKE ? OR title ILIKE ?", like, like)
	}
	if len(f.Stages) > 0 {
		pairs := make([][]interface{}, 0, len(f.Stages))
		for _, s := range f.Stages {
			pairs = append(pairs, []interface{}{s.DocumentType, s.State})
		}
		q = q.Where("(document_type, current_state) IN ?", pairs)
	}
	return q
}

func (r *documentRepository) UpdateState(ctx context.Context, doc *model.Document, toState string) error {
	now := time.Now()
	res := GetDB(ctx, r.db).Model(&model.Document{}).
		Where("id = ? AND current_state = ? AND version = ?", doc.ID, doc.CurrentState, doc.Version).
		Updates(map[string]interface{}{
			"current_state": toState,
			"version":       gorm.Expr("version + 1"),
			"updated_at":    now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s is no longer %s at version %d", ErrStaleState, doc.TrackingID, doc.CurrentState, doc.Version)
	}

	doc.CurrentState = toState
	doc.Version++
	doc.UpdatedAt = now
	return nil
}

func (r *documentRepository) UpdateContent(ctx context.Context, doc *model.Document) error {
	return GetDB(ctx, r.db).Model(&model.Document{}).
		Where("id = ?", doc.ID).
		Updates(map[string]interface{}{
			"revision":   doc.Revision,
			"details":    doc.Details,
			"amount":     doc.Amount,
			"updated_at": time.Now(),
		}).Error
}

func (r *documentRepository) AddLink(ctx context.Context, link *model.DocumentLink) error {
	return GetDB(ctx, r.db).Create(link).Error
}

func (r *documentRepository) Links(ctx context.Context, documentID uuid.UUID) ([]model.DocumentLink, error) {
	var links []model.DocumentLink
	if err := GetDB(ctx, r.db).Where("document_id = ?", documentID).Order("position ASC").Find(&links).Error; err != nil {
		return nil, err
	}
	return links, nil
}

func (r *documentRepository) Referencing(ctx context.Context, linkedID uuid.UUID, documentType string) ([]model.Document, error) {
	var docs []model.Document
	if err := GetDB(ctx, r.db).
		Joins("JOIN document_links ON document_links.document_id = documents.id").
		Where("document_links.linked_document_id = ? AND documents.document_type = ?", linkedID, documentType).
		Order("documents.created_at ASC").
		Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// NextSequence serializes numbering per prefix with a transaction scoped advisory lock.
func (r *documentRepository) NextSequence(ctx context.Context, prefix string) (int, error) {
	db := GetDB(ctx, r.db)
	if err := db.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", prefix).Error; err != nil {
		return 0, fmt.Errorf("failed to acquire sequence lock: %w", err)
	}

	var count int64
	if err := db.Model(&model.Document{}).Where("tracking_id LIKE ?", prefix+"%").Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count tracking ids: %w", err)
	}
	return int(count) + 1, nil
}

func (r *documentRepository) CountByStage(ctx context.Context) ([]model.StateCount, error) {
	var rows []model.StateCount
	err := GetDB(ctx, r.db).Model(&model.Document{}).
		Select("document_type, current_state AS state, COUNT(*) AS total").
		Group("document_type, current_state").
		Order("document_type, current_state").
		Scan(&rows).Error
	return rows, err
}

func (r *documentRepository) CountStaleInStages(ctx context.Context, stages []model.Stage, updatedBefore time.Time) ([]model.StateCount, error) {
	if len(stages) == 0 {
		return nil, nil
	}
	var rows []model.StateCount
	err := r.applyFilter(GetDB(ctx, r.db).Model(&model.Document{}), DocumentFilter{Stages: stages}).
		Where("updated_at < ?", updatedBefore).
		Select("document_type, current_state AS state, COUNT(*) AS total").
		Group("document_type, current_state").
		Scan(&rows).Error
	return rows, err
}

func (r *documentRepository) CreatedTrend(ctx context.Context, documentType, groupBy string, start, end time.Time) ([]model.TrendPoint, error) {
	var rows []model.TrendPoint
	q := GetDB(ctx, r.db).Model(&model.Document{}).
		Select("DATE_TRUNC(?, created_at) AS period, COUNT(*) AS total", groupBy).
		Where("created_at >= ? AND created_at <= ?", start, end)
	if documentType != "" {
		q = q.Where("document_type = ?", documentType)
	}
	err := q.Group("period").Order("period ASC").Scan(&rows).Error
	return rows, err
}
