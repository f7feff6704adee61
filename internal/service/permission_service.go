package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/parkkyonghun0510/lc-le-sub001/internal/model"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/repository"
	"github.com/parkkyonghun0510/lc-le-sub001/pkg/apperror"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CreatePermissionRequest struct {
	Name         string `json:"name" binding:"required"`
	Description  string `json:"description"`
	ResourceType string `json:"resource_type" binding:"required"`
	Action       string `json:"action" binding:"required"`
	Scope        string `json:"scope" binding:"required"`
}

// UpdatePermissionRequest carries the mutable catalog fields. The
// (resource_type, action, scope) triple is the permission's identity and
// cannot change after creation.
type UpdatePermissionRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"is_active"`
}

type ListPermissionsRequest struct {
	ResourceType string `form:"resource_type"`
	Action       string `form:"action"`
	Scope        string `form:"scope"`
	ActiveOnly   bool   `form:"active_only"`
}

type PermissionResponse struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	ResourceType       string    `json:"resource_type"`
	Action             string    `json:"action"`
	Scope              string    `json:"scope"`
	IsSystemPermission bool      `json:"is_system_permission"`
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// PermissionService manages the permission catalog: the closed set of
// (resource, action, scope) triples everything else references.
type PermissionService interface {
	Create(ctx context.Context, actor Actor, req CreatePermissionRequest) (*PermissionResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*PermissionResponse, error)
	List(ctx context.Context, req ListPermissionsRequest) ([]PermissionResponse, error)
	Update(ctx context.Context, actor Actor, id uuid.UUID, req UpdatePermissionRequest) (*PermissionResponse, error)
	Delete(ctx context.Context, actor Actor, id uuid.UUID) error
}

type permissionService struct {
	repo  repository.PermissionRepository
	audit AuditService
}

// NewPermissionService returns a new instance of PermissionService
func NewPermissionService(repo repository.PermissionRepository, audit AuditService) PermissionService {
	return &permissionService{repo: repo, audit: audit}
}

func toPermissionResponse(p *model.Permission) *PermissionResponse {
	return &PermissionResponse{
		ID:                 p.ID.String(),
		Name:               p.Name,
		Description:        p.Description,
		ResourceType:       string(p.ResourceType),
		Action:             string(p.Action),
		Scope:              string(p.Scope),
		IsSystemPermission: p.IsSystemPermission,
		IsActive:           p.IsActive,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

func parseTriple(resource, action, scope string) (model.ResourceType, model.PermissionAction, model.PermissionScope, error) {
	rt, ok := model.ParseResourceType(resource)
	if !ok {
		return "", "", "", apperror.Validation("unknown resource type %q", resource)
	}
	act, ok := model.ParsePermissionAction(action)
	if !ok {
		return "", "", "", apperror.Validation("unknown action %q", action)
	}
	sc, ok := model.ParsePermissionScope(scope)
	if !ok {
		return "", "", "", apperror.Validation("unknown scope %q", scope)
	}
	return rt, act, sc, nil
}

func (s *permissionService) Create(ctx context.Context, actor Actor, req CreatePermissionRequest) (*PermissionResponse, error) {
	rt, act, sc, err := parseTriple(req.ResourceType, req.Action, req.Scope)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.FindByTriple(ctx, rt, act, sc); err == nil {
		return nil, apperror.Conflict("permission %s:%s:%s already exists", rt, act, sc)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check permission triple: %w", err)
	}

	if _, err := s.repo.FindByName(ctx, req.Name); err == nil {
		return nil, apperror.Conflict("permission name %q already exists", req.Name)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check permission name: %w", err)
	}

	perm := &model.Permission{
		Name:         req.Name,
		Description:  req.Description,
		ResourceType: rt,
		Action:       act,
		Scope:        sc,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, perm); err != nil {
		return nil, fmt.Errorf("failed to create permission: %w", err)
	}

	details, _ := json.Marshal(map[string]any{
		"name":          perm.Name,
		"resource_type": perm.ResourceType,
		"action":        perm.Action,
		"scope":         perm.Scope,
	})
	s.audit.Record(ctx, model.PermissionAuditEntry{
		Action:       model.AuditActionPermissionCreated,
		EntityType:   model.AuditEntityPermission,
		EntityID:     perm.ID.String(),
		UserID:       actor.Ref(),
		PermissionID: &perm.ID,
		Details:      string(details),
		IPAddress:    actor.IP,
	})

	return toPermissionResponse(perm), nil
}

func (s *permissionService) Get(ctx context.Context, id uuid.UUID) (*PermissionResponse, error) {
	perm, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("permission %s", id)
		}
		return nil, fmt.Errorf("failed to load permission: %w", err)
	}
	return toPermissionResponse(perm), nil
}

func (s *permissionService) List(ctx context.Context, req ListPermissionsRequest) ([]PermissionResponse, error) {
	var filter repository.PermissionFilter
	if req.ResourceType != "" {
		rt, ok := model.ParseResourceType(req.ResourceType)
		if !ok {
			return nil, apperror.Validation("unknown resource type %q", req.ResourceType)
		}
		filter.ResourceType = &rt
	}
	if req.Action != "" {
		act, ok := model.ParsePermissionAction(req.Action)
		if !ok {
			return nil, apperror.Validation("unknown action %q", req.Action)
		}
		filter.Action = &act
	}
	if req.Scope != "" {
		sc, ok := model.ParsePermissionScope(req.Scope)
		if !ok {
			return nil, apperror.Validation("unknown scope %q", req.Scope)
		}
		filter.Scope = &sc
	}
	if req.ActiveOnly {
		active := true
		filter.IsActive = &active
	}

	perms, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}

	res := make([]PermissionResponse, 0, len(perms))
	for i := range perms {
		res = append(res, *toPermissionResponse(&perms[i]))
	}
	return res, nil
}

func (s *permissionService) Update(ctx context.Context, actor Actor, id uuid.UUID, req UpdatePermissionRequest) (*PermissionResponse, error) {
	perm, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("permission %s", id)
		}
		return nil, fmt.Errorf("failed to load permission: %w", err)
	}

	if perm.IsSystemPermission {
		return nil, apperror.PermissionDenied("system permission %q cannot be modified", perm.Name)
	}

	if req.Name != nil && *req.Name != perm.Name {
		if _, err := s.repo.FindByName(ctx, *req.Name); err == nil {
			return nil, apperror.Conflict("permission name %q already exists", *req.Name)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to check permission name: %w", err)
		}
		perm.Name = *req.Name
	}
	if req.Description != nil {
		perm.Description = *req.Description
	}
	if req.IsActive != nil {
		perm.IsActive = *req.IsActive
	}

	if err := s.repo.Update(ctx, perm); err != nil {
		return nil, fmt.Errorf("failed to update permission: %w", err)
	}

	details, _ := json.Marshal(map[string]any{"name": perm.Name, "is_active": perm.IsActive})
	s.audit.Record(ctx, model.PermissionAuditEntry{
		Action:       model.AuditActionPermissionUpdated,
		EntityType:   model.AuditEntityPermission,
		EntityID:     perm.ID.String(),
		UserID:       actor.Ref(),
		PermissionID: &perm.ID,
		Details:      string(details),
		IPAddress:    actor.IP,
	})

	return toPermissionResponse(perm), nil
}

func (s *permissionService) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	perm, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NotFound("permission %s", id)
		}
		return fmt.Errorf("failed to load permission: %w", err)
	}

	if perm.IsSystemPermission {
		return apperror.PermissionDenied("system permission %q cannot be deleted", perm.Name)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete permission: %w", err)
	}

	details, _ := json.Marshal(map[string]any{
		"name":          perm.Name,
		"resource_type": perm.ResourceType,
		"action":        perm.Action,
		"scope":         perm.Scope,
	})
	s.audit.Record(ctx, model.PermissionAuditEntry{
		Action:       model.AuditActionPermissionDeleted,
		EntityType:   model.AuditEntityPermission,
		EntityID:     perm.ID.String(),
		UserID:       actor.Ref(),
		Details:      string(details),
		IPAddress:    actor.IP,
	})

	return nil
}
