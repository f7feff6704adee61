package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/parkkyonghun0510/lc-le-sub001/internal/model"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/repository"
	"github.com/parkkyonghun0510/lc-le-sub001/pkg/apperror"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Suggestion analysis modes.
const (
	SuggestionModePattern    = "pattern"
	SuggestionModeUsage      = "usage"
	SuggestionModeSimilarity = "similarity"
)

type CreateTemplateRequest struct {
	Name          string   `json:"name" binding:"required"`
	Description   string   `json:"description"`
	PermissionIDs []string `json:"permission_ids" binding:"required"`
	TemplateType  string   `json:"template_type"`
}

// ApplyTemplateRequest targets exactly one of a role or a user.
type ApplyTemplateRequest struct {
	RoleID *string `json:"role_id"`
	UserID *string `json:"user_id"`
	Reason string  `json:"reason"`
}

type ApplyTemplateResponse struct {
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
}

// PermissionKey is the portable natural key of a catalog permission. Exports
// carry keys instead of ids so templates survive the move between
// environments whose catalogs were seeded independently.
type PermissionKey struct {
	ResourceType string `json:"resource_type"`
	Action       string `json:"action"`
	Scope        string `json:"scope"`
}

func (k PermissionKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.ResourceType, k.Action, k.Scope)
}

type ExportedTemplate struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	TemplateType string          `json:"template_type"`
	Permissions  []PermissionKey `json:"permissions"`
}

type ImportTemplatesRequest struct {
	Templates      []ExportedTemplate `json:"templates" binding:"required"`
	UpdateIfExists bool               `json:"update_if_exists"`
}

type ImportTemplatesResponse struct {
	Created  int      `json:"created"`
	Updated  int      `json:"updated"`
	Unmapped []string `json:"unmapped,omitempty"`
}

type GenerateTemplateRequest struct {
	RoleIDs     []string `json:"role_ids" binding:"required"`
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
}

type TemplateResponse struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	TemplateType     string    `json:"template_type"`
	PermissionIDs    []string  `json:"permission_ids"`
	PermissionCount  int       `json:"permission_count"`
	UsageCount       int       `json:"usage_count"`
	IsSystemTemplate bool      `json:"is_system_template"`
	IsActive         bool      `json:"is_active"`
	CreatedBy        *string   `json:"created_by,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// PatternSuggestion groups roles that hold an identical permission set.
type PatternSuggestion struct {
	Roles         []string `json:"roles"`
	PermissionIDs []string `json:"permission_ids"`
	RoleCount     int      `json:"role_count"`
}

// UsageSuggestion ranks a role by how many permissions it carries; the
// heaviest roles are the ones most worth capturing as templates.
type UsageSuggestion struct {
	Role            string   `json:"role"`
	PermissionIDs   []string `json:"permission_ids"`
	PermissionCount int      `json:"permission_count"`
}

// SimilaritySuggestion pairs two roles whose permission sets overlap enough
// that a shared template would cover both.
type SimilaritySuggestion struct {
	RoleA               string   `json:"role_a"`
	RoleB               string   `json:"role_b"`
	Similarity          float64  `json:"similarity"`
	SharedPermissionIDs []string `json:"shared_permission_ids"`
}

type TemplateSuggestions struct {
	Mode       string                 `json:"mode"`
	Patterns   []PatternSuggestion    `json:"patterns,omitempty"`
	Usage      []UsageSuggestion      `json:"usage,omitempty"`
	Similarity []SimilaritySuggestion `json:"similarity,omitempty"`
}

// TemplateService manages reusable permission bundles: named lists of
// catalog permission ids that can be stamped onto roles and users, moved
// between environments as natural-key exports, and mined from the existing
// role grants.
type TemplateService interface {
	Create(ctx context.Context, actor Actor, req CreateTemplateRequest) (*TemplateResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*TemplateResponse, error)
	List(ctx context.Context, activeOnly bool) ([]TemplateResponse, error)
	Delete(ctx context.Context, actor Actor, id uuid.UUID) error

	Apply(ctx context.Context, actor Actor, id uuid.UUID, req ApplyTemplateRequest) (*ApplyTemplateResponse, error)
	Export(ctx context.Context, ids []uuid.UUID) ([]ExportedTemplate, error)
	Import(ctx context.Context, actor Actor, req ImportTemplatesRequest) (*ImportTemplatesResponse, error)
	GenerateFromRoles(ctx context.Context, actor Actor, req GenerateTemplateRequest) (*TemplateResponse, error)
	Suggest(ctx context.Context, mode string) (*TemplateSuggestions, error)
}

type templateService struct {
	templates   repository.TemplateRepository
	permissions repository.PermissionRepository
	roles       repository.RoleRepository
	assignments repository.AssignmentRepository
	users       repository.UserRepository
	tx          repository.TransactionManager
	audit       AuditService
}

// NewTemplateService returns a new instance of TemplateService
func NewTemplateService(
	templates repository.TemplateRepository,
	permissions repository.PermissionRepository,
	roles repository.RoleRepository,
	assignments repository.AssignmentRepository,
	users repository.UserRepository,
	tx repository.TransactionManager,
	audit AuditService,
) TemplateService {
	return &templateService{
		templates:   templates,
		permissions: permissions,
		roles:       roles,
		assignments: assignments,
		users:       users,
		tx:          tx,
		audit:       audit,
	}
}

func toTemplateResponse(t *model.PermissionTemplate) (*TemplateResponse, error) {
	ids, err := t.PermissionIDs()
	if err != nil {
		return nil, fmt.Errorf("template %q has a corrupt permission list: %w", t.Name, err)
	}
	strIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		strIDs = append(strIDs, id.String())
	}
	return &TemplateResponse{
		ID:               t.ID.String(),
		Name:             t.Name,
		Description:      t.Description,
		TemplateType:     string(t.TemplateType),
		PermissionIDs:    strIDs,
		PermissionCount:  len(strIDs),
		UsageCount:       t.UsageCount,
		IsSystemTemplate: t.IsSystemTemplate,
		IsActive:         t.IsActive,
		CreatedBy:        uuidString(t.CreatedBy),
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}, nil
}

// resolvePermissionIDs parses and verifies every id against the catalog,
// preserving request order and dropping duplicates.
func (s *templateService) resolvePermissionIDs(ctx context.Context, raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	seen := make(map[uuid.UUID]bool, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			return nil, apperror.Validation("invalid permission id %q", r)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	found, err := s.permissions.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve permissions: %w", err)
	}
	exists := make(map[uuid.UUID]bool, len(found))
	for i := range found {
		exists[found[i].ID] = true
	}
	for _, id := range ids {
		if !exists[id] {
			return nil, apperror.Validation("permission %s does not exist", id)
		}
	}
	return ids, nil
}

func (s *templateService) Create(ctx context.Context, actor Actor, req CreateTemplateRequest) (*TemplateResponse, error) {
	tplType := model.TemplateTypeRole
	if req.TemplateType != "" {
		parsed, ok := model.ParseTemplateType(req.TemplateType)
		if !ok {
			return nil, apperror.Validation("unknown template type %q", req.TemplateType)
		}
		tplType = parsed
	}

	if _, err := s.templates.FindByName(ctx, req.Name); err == nil {
		return nil, apperror.Conflict("template %q already exists", req.Name)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check template name: %w", err)
	}

	ids, err := s.resolvePermissionIDs(ctx, req.PermissionIDs)
	if err != nil {
		return nil, err
	}

	tpl := &model.PermissionTemplate{
		Name:         req.Name,
		Description:  req.Description,
		TemplateType: tplType,
		IsActive:     true,
		CreatedBy:    actor.Ref(),
	}
	if err := tpl.SetPermissionIDs(ids); err != nil {
		return nil, fmt.Errorf("failed to encode permission list: %w", err)
	}
	if err := s.templates.Create(ctx, tpl); err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	details, _ := json.Marshal(map[string]any{
		"name":        tpl.Name,
		"type":        tpl.TemplateType,
		"permissions": len(ids),
	})
	s.audit.Record(ctx, model.PermissionAuditEntry{
		Action:     model.AuditActionTemplateCreated,
		EntityType: model.AuditEntityTemplate,
		EntityID:   tpl.ID.String(),
		UserID:     actor.Ref(),
		Details:    string(details),
		IPAddress:  actor.IP,
	})

	return toTemplateResponse(tpl)
}

func (s *templateService) Get(ctx context.Context, id uuid.UUID) (*TemplateResponse, error) {
	tpl, err := s.templates.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("template %s", id)
		}
		return nil, fmt.Errorf("failed to load template: %w", err)
	}
	return toTemplateResponse(tpl)
}

func (s *templateService) List(ctx context.Context, activeOnly bool) ([]TemplateResponse, error) {
	tpls, err := s.templates.List(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	res := make([]TemplateResponse, 0, len(tpls))
	for i := range tpls {
		tr, err := toTemplateResponse(&tpls[i])
		if err != nil {
			return nil, err
		}
		res = append(res, *tr)
	}
	return res, nil
}

func (s *templateService) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	tpl, err := s.templates.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NotFound("template %s", id)
		}
		return fmt.Errorf("failed to load template: %w", err)
	}

	if tpl.IsSystemTemplate {
		return apperror.PermissionDenied("system template %q cannot be deleted", tpl.Name)
	}

	if err := s.templates.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	details, _ := json.Marshal(map[string]any{"name": tpl.Name})
	s.audit.Record(ctx, model.PermissionAuditEntry{
		Action:     model.AuditActionTemplateDeleted,
		EntityType: model.AuditEntityTemplate,
		EntityID:   tpl.ID.String(),
		UserID:     actor.Ref(),
		Details:    string(details),
		IPAddress:  actor.IP,
	})

	return nil
}

// Apply stamps the template's permissions onto a role or a user. Already
// present grants are skipped, so re-applying a template is idempotent. The
// whole application runs in one transaction.
func (s *templateService) Apply(ctx context.Context, actor Actor, id uuid.UUID, req ApplyTemplateRequest) (*ApplyTemplateResponse, error) {
	if (req.RoleID == nil) == (req.UserID == nil) {
		return nil, apperror.Validation("exactly one of role_id or user_id is required")
	}

	var (
		tplName  string
		targetID uuid.UUID
		res      ApplyTemplateResponse
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		tpl, err := s.templates.FindByID(txCtx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound("template %s", id)
			}
			return fmt.Errorf("failed to load template: %w", err)
		}
		if !tpl.IsActive {
			return apperror.Validation("template %q is inactive", tpl.Name)
		}
		tplName = tpl.Name

		ids, err := tpl.PermissionIDs()
		if err != nil {
			return fmt.Errorf("template %q has a corrupt permission list: %w", tpl.Name, err)
		}
		perms, err := s.permissions.FindByIDs(txCtx, ids)
		if err != nil {
			return fmt.Errorf("failed to resolve template permissions: %w", err)
		}

		if req.RoleID != nil {
			roleID, err := uuid.Parse(*req.RoleID)
			if err != nil {
				return apperror.Validation("invalid role_id")
			}
			targetID = roleID
			res, err = s.applyToRole(txCtx, actor, roleID, perms)
			if err != nil {
				return err
			}
		} else {
			userID, err := uuid.Parse(*req.UserID)
			if err != nil {
				return apperror.Validation("invalid user_id")
			}
			targetID = userID
			res, err = s.applyToUser(txCtx, actor, userID, perms, req.Reason)
			if err != nil {
				return err
			}
		}

		return s.templates.IncrementUsage(txCtx, tpl.ID)
	})
	if err != nil {
		return nil, err
	}

	details, _ := json.Marshal(map[string]any{
		"template": tplName,
		"applied":  res.Applied,
		"skipped":  res.Skipped,
	})
	entry := model.PermissionAuditEntry{
		Action:     model.AuditActionTemplateApplied,
		EntityType: model.AuditEntityTemplate,
		EntityID:   id.String(),
		UserID:     actor.Ref(),
		Details:    string(details),
		Reason:     req.Reason,
		IPAddress:  actor.IP,
	}
	if req.RoleID != nil {
		entry.TargetRoleID = &targetID
	} else {
		entry.TargetUserID = &targetID
	}
	s.audit.Record(ctx, entry)

	return &res, nil
}

func (s *templateService) applyToRole(ctx context.Context, actor Actor, roleID uuid.UUID, perms []model.Permission) (ApplyTemplateResponse, error) {
	var res ApplyTemplateResponse
	if _, err := s.roles.FindByID(ctx, roleID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return res, apperror.NotFound("role %s", roleID)
		}
		return res, fmt.Errorf("failed to load role: %w", err)
	}

	for i := range perms {
		if !perms[i].IsActive {
			res.Skipped++
			continue
		}
		existing, err := s.roles.FindGrant(ctx, roleID, perms[i].ID)
		switch {
		case err == nil && existing.IsGranted:
			res.Skipped++
		case err == nil:
			existing.IsGranted = true
			existing.GrantedBy = actor.Ref()
			if err := s.roles.UpdateGrant(ctx, existing); err != nil {
				return res, fmt.Errorf("failed to regrant permission: %w", err)
			}
			res.Applied++
		case errors.Is(err, gorm.ErrRecordNotFound):
			grant := &model.RolePermission{
				RoleID:       roleID,
				PermissionID: perms[i].ID,
				IsGranted:    true,
				GrantedBy:    actor.Ref(),
			}
			if err := s.roles.CreateGrant(ctx, grant); err != nil {
				return res, fmt.Errorf("failed to grant permission: %w", err)
			}
			res.Applied++
		default:
			return res, fmt.Errorf("failed to check existing grant: %w", err)
		}
	}
	return res, nil
}

func (s *templateService) applyToUser(ctx context.Context, actor Actor, userID uuid.UUID, perms []model.Permission, reason string) (ApplyTemplateResponse, error) {
	var res ApplyTemplateResponse
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return res, apperror.NotFound("user %s", userID)
		}
		return res, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive {
		return res, apperror.Validation("user %q is inactive", user.Username)
	}

	for i := range perms {
		if !perms[i].IsActive {
			res.Skipped++
			continue
		}
		existing, err := s.assignments.FindUserPermissionTuple(ctx, userID, perms[i].ID, nil, nil, nil)
		switch {
		case err == nil && existing.IsGranted && existing.IsActive:
			res.Skipped++
		case err == nil:
			existing.IsGranted = true
			existing.IsActive = true
			existing.OverrideReason = reason
			existing.GrantedBy = actor.Ref()
			if err := s.assignments.UpdateUserPermission(ctx, existing); err != nil {
				return res, fmt.Errorf("failed to regrant permission: %w", err)
			}
			res.Applied++
		case errors.Is(err, gorm.ErrRecordNotFound):
			entry := &model.UserPermission{
				UserID:         userID,
				PermissionID:   perms[i].ID,
				IsGranted:      true,
				IsActive:       true,
				OverrideReason: reason,
				GrantedBy:      actor.Ref(),
			}
			if err := s.assignments.CreateUserPermission(ctx, entry); err != nil {
				return res, fmt.Errorf("failed to grant permission: %w", err)
			}
			res.Applied++
		default:
			return res, fmt.Errorf("failed to check existing entry: %w", err)
		}
	}
	return res, nil
}

// Export serializes templates with natural permission keys. An empty id list
// exports every active template.
func (s *templateService) Export(ctx context.Context, ids []uuid.UUID) ([]ExportedTemplate, error) {
	var tpls []model.PermissionTemplate
	if len(ids) == 0 {
		var err error
		tpls, err = s.templates.List(ctx, true)
		if err != nil {
			return nil, fmt.Errorf("failed to list templates: %w", err)
		}
	} else {
		for _, id := range ids {
			tpl, err := s.templates.FindByID(ctx, id)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil, apperror.NotFound("template %s", id)
				}
				return nil, fmt.Errorf("failed to load template: %w", err)
			}
			tpls = append(tpls, *tpl)
		}
	}

	exports := make([]ExportedTemplate, 0, len(tpls))
	for i := range tpls {
		tpl := &tpls[i]
		permIDs, err := tpl.PermissionIDs()
		if err != nil {
			return nil, fmt.Errorf("template %q has a corrupt permission list: %w", tpl.Name, err)
		}
		perms, err := s.permissions.FindByIDs(ctx, permIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve template permissions: %w", err)
		}

		keys := make([]PermissionKey, 0, len(perms))
		for j := range perms {
			keys = append(keys, PermissionKey{
				ResourceType: string(perms[j].ResourceType),
				Action:       string(perms[j].Action),
				Scope:        string(perms[j].Scope),
			})
		}
		sort.Slice(keys, func(a, b int) bool { return keys[a].String() < keys[b].String() })

		exports = append(exports, ExportedTemplate{
			Name:         tpl.Name,
			Description:  tpl.Description,
			TemplateType: string(tpl.TemplateType),
			Permissions:  keys,
		})
	}
	return exports, nil
}

// Import recreates exported templates in this environment, resolving each
// natural key against the local catalog. Keys with no local permission are
// reported back as unmapped rather than failing the import; a name collision
// without update_if_exists aborts the whole batch.
func (s *templateService) Import(ctx context.Context, actor Actor, req ImportTemplatesRequest) (*ImportTemplatesResponse, error) {
	if len(req.Templates) == 0 {
		return nil, apperror.Validation("no templates to import")
	}

	var res ImportTemplatesResponse
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		for _, inc := range req.Templates {
			if inc.Name == "" {
				return apperror.Validation("imported template is missing a name")
			}
			tplType := model.TemplateTypeRole
			if inc.TemplateType != "" {
				parsed, ok := model.ParseTemplateType(inc.TemplateType)
				if !ok {
					return apperror.Validation("template %q has unknown type %q", inc.Name, inc.TemplateType)
				}
				tplType = parsed
			}

			ids := make([]uuid.UUID, 0, len(inc.Permissions))
			for _, key := range inc.Permissions {
				rt, act, sc, err := parseTriple(key.ResourceType, key.Action, key.Scope)
				if err != nil {
					res.Unmapped = append(res.Unmapped, key.String())
					continue
				}
				perm, err := s.permissions.FindByTriple(txCtx, rt, act, sc)
				if err != nil {
					if errors.Is(err, gorm.ErrRecordNotFound) {
						res.Unmapped = append(res.Unmapped, key.String())
						continue
					}
					return fmt.Errorf("failed to resolve permission key: %w", err)
				}
				ids = append(ids, perm.ID)
			}

			existing, err := s.templates.FindByName(txCtx, inc.Name)
			switch {
			case err == nil:
				if !req.UpdateIfExists {
					return apperror.Conflict("template %q already exists", inc.Name)
				}
				if existing.IsSystemTemplate {
					return apperror.PermissionDenied("system template %q cannot be overwritten", inc.Name)
				}
				existing.Description = inc.Description
				existing.TemplateType = tplType
				if err := existing.SetPermissionIDs(ids); err != nil {
					return fmt.Errorf("failed to encode permission list: %w", err)
				}
				if err := s.templates.Update(txCtx, existing); err != nil {
					return fmt.Errorf("failed to update template %q: %w", inc.Name, err)
				}
				res.Updated++
			case errors.Is(err, gorm.ErrRecordNotFound):
				tpl := &model.PermissionTemplate{
					Name:         inc.Name,
					Description:  inc.Description,
					TemplateType: tplType,
					IsActive:     true,
					CreatedBy:    actor.Ref(),
				}
				if err := tpl.SetPermissionIDs(ids); err != nil {
					return fmt.Errorf("failed to encode permission list: %w", err)
				}
				if err := s.templates.Create(txCtx, tpl); err != nil {
					return fmt.Errorf("failed to create template %q: %w", inc.Name, err)
				}
				res.Created++
			default:
				return fmt.Errorf("failed to check template name: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	details, _ := json.Marshal(map[string]any{
		"created":  res.Created,
		"updated":  res.Updated,
		"unmapped": len(res.Unmapped),
	})
	s.audit.Record(ctx, model.PermissionAuditEntry{
		Action:     model.AuditActionTemplateImported,
		EntityType: model.AuditEntityTemplate,
		UserID:     actor.Ref(),
		Details:    string(details),
		IPAddress:  actor.IP,
	})

	return &res, nil
}

// GenerateFromRoles creates a template from the union of the selected
// roles' granted permissions.
func (s *templateService) GenerateFromRoles(ctx context.Context, actor Actor, req GenerateTemplateRequest) (*TemplateResponse, error) {
	if len(req.RoleIDs) == 0 {
		return nil, apperror.Validation("at least one role is required")
	}
	roleIDs := make([]uuid.UUID, 0, len(req.RoleIDs))
	for _, r := range req.RoleIDs {
		id, err := uuid.Parse(r)
		if err != nil {
			return nil, apperror.Validation("invalid role id %q", r)
		}
		roleIDs = append(roleIDs, id)
	}

	roles, err := s.roles.FindByIDs(ctx, roleIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load roles: %w", err)
	}
	if len(roles) != len(roleIDs) {
		return nil, apperror.Validation("one or more roles do not exist")
	}

	if _, err := s.templates.FindByName(ctx, req.Name); err == nil {
		return nil, apperror.Conflict("template %q already exists", req.Name)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check template name: %w", err)
	}

	grants, err := s.roles.ListGrantsByRoleIDs(ctx, roleIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load role grants: %w", err)
	}
	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for i := range grants {
		g := &grants[i]
		if !g.IsGranted || g.Permission == nil || !g.Permission.IsActive || seen[g.PermissionID] {
			continue
		}
		seen[g.PermissionID] = true
		ids = append(ids, g.PermissionID)
	}
	if len(ids) == 0 {
		return nil, apperror.Validation("selected roles have no granted permissions")
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a].String() < ids[b].String() })

	roleNames := make([]string, 0, len(roles))
	for i := range roles {
		roleNames = append(roleNames, roles[i].Name)
	}
	sort.Strings(roleNames)

	tpl := &model.PermissionTemplate{
		Name:         req.Name,
		Description:  req.Description,
		TemplateType: model.TemplateTypeGeneratedFromRoles,
		IsActive:     true,
		CreatedBy:    actor.Ref(),
	}
	if tpl.Description == "" {
		tpl.Description = "Generated from roles: " + strings.Join(roleNames, ", ")
	}
	if err := tpl.SetPermissionIDs(ids); err != nil {
		return nil, fmt.Errorf("failed to encode permission list: %w", err)
	}
	if err := s.templates.Create(ctx, tpl); err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	details, _ := json.Marshal(map[string]any{
		"name":        tpl.Name,
		"roles":       roleNames,
		"permissions": len(ids),
	})
	s.audit.Record(ctx, model.PermissionAuditEntry{
		Action:     model.AuditActionTemplateCreated,
		EntityType: model.AuditEntityTemplate,
		EntityID:   tpl.ID.String(),
		UserID:     actor.Ref(),
		Details:    string(details),
		IPAddress:  actor.IP,
	})

	return toTemplateResponse(tpl)
}

// Suggest mines the current role grants for template candidates.
func (s *templateService) Suggest(ctx context.Context, mode string) (*TemplateSuggestions, error) {
	switch mode {
	case SuggestionModePattern, SuggestionModeUsage, SuggestionModeSimilarity:
	default:
		return nil, apperror.Validation("unknown suggestion mode %q", mode)
	}

	roles, err := s.roles.List(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	roleIDs := make([]uuid.UUID, 0, len(roles))
	nameByID := make(map[uuid.UUID]string, len(roles))
	for i := range roles {
		roleIDs = append(roleIDs, roles[i].ID)
		nameByID[roles[i].ID] = roles[i].Name
	}
	grants, err := s.roles.ListGrantsByRoleIDs(ctx, roleIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load role grants: %w", err)
	}

	permSets := make(map[uuid.UUID]map[uuid.UUID]bool)
	for i := range grants {
		g := &grants[i]
		if !g.IsGranted || g.Permission == nil || !g.Permission.IsActive {
			continue
		}
		set, ok := permSets[g.RoleID]
		if !ok {
			set = make(map[uuid.UUID]bool)
			permSets[g.RoleID] = set
		}
		set[g.PermissionID] = true
	}

	res := &TemplateSuggestions{Mode: mode}
	switch mode {
	case SuggestionModePattern:
		res.Patterns = suggestPatterns(permSets, nameByID)
	case SuggestionModeUsage:
		res.Usage = suggestByUsage(permSets, nameByID)
	case SuggestionModeSimilarity:
		res.Similarity = suggestBySimilarity(permSets, nameByID)
	}
	return res, nil
}

func sortedIDStrings(set map[uuid.UUID]bool) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id.String())
	}
	sort.Strings(ids)
	return ids
}

// suggestPatterns groups roles by identical permission sets; any set shared
// by more than one role is a template candidate.
func suggestPatterns(permSets map[uuid.UUID]map[uuid.UUID]bool, nameByID map[uuid.UUID]string) []PatternSuggestion {
	groups := make(map[string][]string)
	idsByKey := make(map[string][]string)
	for roleID, set := range permSets {
		if len(set) == 0 {
			continue
		}
		ids := sortedIDStrings(set)
		key := strings.Join(ids, ",")
		groups[key] = append(groups[key], nameByID[roleID])
		idsByKey[key] = ids
	}

	var suggestions []PatternSuggestion
	for key, roleNames := range groups {
		if len(roleNames) < 2 {
			continue
		}
		sort.Strings(roleNames)
		suggestions = append(suggestions, PatternSuggestion{
			Roles:         roleNames,
			PermissionIDs: idsByKey[key],
			RoleCount:     len(roleNames),
		})
	}
	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].RoleCount != suggestions[j].RoleCount {
			return suggestions[i].RoleCount > suggestions[j].RoleCount
		}
		return suggestions[i].Roles[0] < suggestions[j].Roles[0]
	})
	return suggestions
}

// suggestByUsage ranks roles by the size of their permission sets.
func suggestByUsage(permSets map[uuid.UUID]map[uuid.UUID]bool, nameByID map[uuid.UUID]string) []UsageSuggestion {
	suggestions := make([]UsageSuggestion, 0, len(permSets))
	for roleID, set := range permSets {
		if len(set) == 0 {
			continue
		}
		suggestions = append(suggestions, UsageSuggestion{
			Role:            nameByID[roleID],
			PermissionIDs:   sortedIDStrings(set),
			PermissionCount: len(set),
		})
	}
	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].PermissionCount != suggestions[j].PermissionCount {
			return suggestions[i].PermissionCount > suggestions[j].PermissionCount
		}
		return suggestions[i].Role < suggestions[j].Role
	})
	if len(suggestions) > 20 {
		suggestions = suggestions[:20]
	}
	return suggestions
}

// suggestBySimilarity pairs roles whose Jaccard overlap exceeds 0.5.
func suggestBySimilarity(permSets map[uuid.UUID]map[uuid.UUID]bool, nameByID map[uuid.UUID]string) []SimilaritySuggestion {
	roleIDs := make([]uuid.UUID, 0, len(permSets))
	for roleID, set := range permSets {
		if len(set) > 0 {
			roleIDs = append(roleIDs, roleID)
		}
	}
	sort.Slice(roleIDs, func(i, j int) bool { return nameByID[roleIDs[i]] < nameByID[roleIDs[j]] })

	var suggestions []SimilaritySuggestion
	for i := 0; i < len(roleIDs); i++ {
		for j := i + 1; j < len(roleIDs); j++ {
			setA, setB := permSets[roleIDs[i]], permSets[roleIDs[j]]
			shared := make(map[uuid.UUID]bool)
			for id := range setA {
				if setB[id] {
					shared[id] = true
				}
			}
			union := len(setA) + len(setB) - len(shared)
			if union == 0 {
				continue
			}
			similarity := float64(len(shared)) / float64(union)
			if similarity <= 0.5 {
				continue
			}
			suggestions = append(suggestions, SimilaritySuggestion{
				RoleA:               nameByID[roleIDs[i]],
				RoleB:               nameByID[roleIDs[j]],
				Similarity:          similarity,
				SharedPermissionIDs: sortedIDStrings(shared),
			})
		}
	}
	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Similarity != suggestions[j].Similarity {
			return suggestions[i].Similarity > suggestions[j].Similarity
		}
		return suggestions[i].RoleA < suggestions[j].RoleA
	})
	return suggestions
}
