package service

import (
	"context"
	"encoding/json"
	"fmt"

	"procuretrack/internal/repository"

	"github.com/google/uuid"
)

type ActivityLogResponse struct {
	ID         string                 `json:"id"`
	UserID     string                 `json:"user_id"`
	Username   string                 `json:"username"`
	Action     string                 `json:"action"`
	EntityID   string                 `json:"entity_id"`
	EntityName string                 `json:"entity_name"`
	Details    map[string]interface{} `json:"details"`
	CreatedAt  string                 `json:"created_at"`
}

type AuditQuery struct {
	DocumentID  string
	ActorUserID string
	Transition  string
	Page        int
	Limit       int
}

// AuditService reads the two trails: document transitions and administrative activity.
type AuditService interface {
	GetActivityLogs(ctx context.Context, page, limit int) ([]ActivityLogResponse, int64, error)
	GetTransitionLog(ctx context.Context, q AuditQuery) ([]AuditEntryResponse, int64, error)
}

type auditService struct {
	activity repository.ActivityLogRepository
	entries  repository.AuditEntryRepository
}

// NewAuditService creates a new AuditService instance
func NewAuditService(activity repository.ActivityLogRepository, entries repository.AuditEntryRepository) AuditService {
	return &auditService{activity: activity, entries: entries}
}

// GetActivityLogs returns the administrative trail with users pre-loaded, newest first.
func (s *auditService) GetActivityLogs(ctx context.Context, page, limit int) ([]ActivityLogResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	logs, total, err := s.activity.List(ctx, (page-1)*limit, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list activity logs: %w", err)
	}

	res := make([]ActivityLogResponse, 0, len(logs))
	for _, l := range logs {
		username := "System"
		userID := ""
		if l.User != nil {
			username = l.User.Username
		}
		if l.UserID != nil {
			userID = l.UserID.String()
		}

		item := ActivityLogResponse{
			ID:         l.ID.String(),
			UserID:     userID,
			Username:   username,
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			CreatedAt:  formatTime(l.CreatedAt),
		}
		if len(l.Details) > 0 {
			_ = json.Unmarshal(l.Details, &item.Details)
		}
		res = append(res, item)
	}

	return res, total, nil
}

func (s *auditService) GetTransitionLog(ctx context.Context, q AuditQuery) ([]AuditEntryResponse, int64, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = 50
	}

	filter := repository.AuditFilter{
		Transition: q.Transition,
		Offset:     (q.Page - 1) * q.Limit,
		Limit:      q.Limit,
	}
	if q.DocumentID != "" {
		id, err := uuid.Parse(q.DocumentID)
		if err != nil {
			return nil, 0, invalidf("document_id must be a UUID")
		}
		filter.DocumentID = &id
	}
	if q.ActorUserID != "" {
		id, err := uuid.Parse(q.ActorUserID)
		if err != nil {
			return nil, 0, invalidf("actor_user_id must be a UUID")
		}
		filter.ActorUserID = &id
	}

	entries, total, err := s.entries.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit entries: %w", err)
	}
	res := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		res = append(res, toAuditEntryResponse(e))
	}
	return res, total, nil
}
