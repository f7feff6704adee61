package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/parkkyonghun0510/lc-le-sub001/internal/model"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/repository"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/websocket"
	"github.com/parkkyonghun0510/lc-le-sub001/pkg/apperror"

	"github.com/google/uuid"
)

// Actor identifies the authenticated principal performing a mutation.
// Handlers build it from the JWT subject and the client address.
type Actor struct {
	ID uuid.UUID
	IP string
}

// Ref returns a pointer to the actor id, or nil for the zero actor
// (system jobs such as seeding).
func (a Actor) Ref() *uuid.UUID {
	if a.ID == uuid.Nil {
		return nil
	}
	id := a.ID
	return &id
}

type AuditQueryRequest struct {
	Action       string `form:"action"`
	EntityType   string `form:"entity_type"`
	UserID       string `form:"user_id"`
	TargetUserID string `form:"target_user_id"`
	From         string `form:"from" example:"2025-01-01T00:00:00Z"`
	To           string `form:"to"`
	Search       string `form:"search"`
}

type AuditEntryResponse struct {
	ID           string     `json:"id"`
	Action       string     `json:"action"`
	EntityType   string     `json:"entity_type"`
	EntityID     string     `json:"entity_id"`
	UserID       string     `json:"user_id,omitempty"`
	Username     string     `json:"username"`
	TargetUserID string     `json:"target_user_id,omitempty"`
	TargetRoleID string     `json:"target_role_id,omitempty"`
	PermissionID string     `json:"permission_id,omitempty"`
	Details      string     `json:"details"`
	Reason       string     `json:"reason,omitempty"`
	IPAddress    string     `json:"ip_address,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// AuditService records and queries the permission audit trail. Recording is
// best-effort: a failed audit write is logged and never fails the mutation
// that produced it.
type AuditService interface {
	// Record persists an audit entry and pushes it to the live feed. Call it
	// after the mutation has committed; the write itself always runs outside
	// any ambient transaction.
	Record(ctx context.Context, entry model.PermissionAuditEntry)
	List(ctx context.Context, req AuditQueryRequest, page, limit int) ([]AuditEntryResponse, int64, error)
}

type auditService struct {
	repo repository.AuditRepository
	hub  *websocket.Hub
}

// NewAuditService creates a new AuditService instance. hub may be nil when
// no live feed is wired (tests, batch jobs).
func NewAuditService(repo repository.AuditRepository, hub *websocket.Hub) AuditService {
	return &auditService{repo: repo, hub: hub}
}

func (s *auditService) Record(ctx context.Context, entry model.PermissionAuditEntry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.Details == "" {
		entry.Details = "{}"
	}

	if err := s.repo.Log(repository.DetachTx(ctx), &entry); err != nil {
		log.Printf("WARN: audit write failed (action=%s entity=%s/%s): %v",
			entry.Action, entry.EntityType, entry.EntityID, err)
		return
	}

	if s.hub != nil {
		if msg, err := json.Marshal(toAuditEntryResponse(entry)); err == nil {
			s.hub.Broadcast(msg)
		}
	}
}

func (s *auditService) List(ctx context.Context, req AuditQueryRequest, page, limit int) ([]AuditEntryResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	query := repository.AuditQuery{
		Action:     req.Action,
		EntityType: req.EntityType,
		Search:     req.Search,
	}
	if req.UserID != "" {
		id, err := uuid.Parse(req.UserID)
		if err != nil {
			return nil, 0, apperror.Validation("invalid user_id filter")
		}
		query.UserID = &id
	}
	if req.TargetUserID != "" {
		id, err := uuid.Parse(req.TargetUserID)
		if err != nil {
			return nil, 0, apperror.Validation("invalid target_user_id filter")
		}
		query.TargetUserID = &id
	}
	if req.From != "" {
		t, err := time.Parse(time.RFC3339, req.From)
		if err != nil {
			return nil, 0, apperror.Validation("invalid from timestamp, want RFC3339")
		}
		query.From = &t
	}
	if req.To != "" {
		t, err := time.Parse(time.RFC3339, req.To)
		if err != nil {
			return nil, 0, apperror.Validation("invalid to timestamp, want RFC3339")
		}
		query.To = &t
	}

	entries, total, err := s.repo.List(ctx, query, page, limit)
	if err != nil {
		return nil, 0, err
	}

	res := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		r := toAuditEntryResponse(e)
		if e.User != nil {
			r.Username = e.User.Username
		}
		res = append(res, r)
	}
	return res, total, nil
}

func toAuditEntryResponse(e model.PermissionAuditEntry) AuditEntryResponse {
	r := AuditEntryResponse{
		ID:         e.ID.String(),
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Username:   "System",
		Details:    e.Details,
		Reason:     e.Reason,
		IPAddress:  e.IPAddress,
		CreatedAt:  e.CreatedAt,
	}
	if e.UserID != nil {
		r.UserID = e.UserID.String()
	}
	if e.TargetUserID != nil {
		r.TargetUserID = e.TargetUserID.String()
	}
	if e.TargetRoleID != nil {
		r.TargetRoleID = e.TargetRoleID.String()
	}
	if e.PermissionID != nil {
		r.PermissionID = e.PermissionID.String()
	}
	return r
}
