package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"procuretrack/internal/model"
	"procuretrack/internal/repository"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Actor is the authenticated caller: a user acting with their office role.
type Actor struct {
	UserID uuid.UUID
	Role   string
}

// Service level error classes, mapped to HTTP status codes by the handlers.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
)

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func notFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func forbiddenf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

func parseID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, invalidf("%s must be a UUID", field)
	}
	return id, nil
}

// Event types pushed to connected dashboards.
const (
	EventDocumentCreated      = "document.created"
	EventDocumentTransitioned = "document.transitioned"
	EventPendingDigest        = "documents.pending_digest"
)

// Notifier pushes state-change events to the presentation layer.
type Notifier interface {
	Publish(eventType string, payload interface{})
}

// DashboardCache caches dashboard projections between committed transitions.
type DashboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
	Invalidate(ctx context.Context) error
}

type noopNotifier struct{}

func (noopNotifier) Publish(string, interface{}) {}

type noopCache struct{}

func (noopCache) Get(context.Context, string, interface{}) (bool, error) { return false, nil }
func (noopCache) Set(context.Context, string, interface{}) error         { return nil }
func (noopCache) Invalidate(context.Context) error                       { return nil }

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

// logActivity writes an administrative activity row inside the caller's transaction.
func logActivity(ctx context.Context, repo repository.ActivityLogRepository, actor Actor, action, entityID, entityName string, details interface{}) error {
	var uid *uuid.UUID
	if actor.UserID != uuid.Nil {
		id := actor.UserID
		uid = &id
	}

	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to encode activity details: %w", err)
	}
	entry := &model.ActivityLog{
		ID:         uuid.New(),
		UserID:     uid,
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    datatypes.JSON(raw),
		CreatedAt:  time.Now(),
	}
	if err := repo.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write activity log: %w", err)
	}
	return nil
}
