package service

import (
	"context"
	"errors"
	"testing"

	"github.com/parkkyonghun0510/lc-le-sub001/internal/model"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/repository"
	"github.com/parkkyonghun0510/lc-le-sub001/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTemplateEnv(t *testing.T) (*gorm.DB, TemplateService) {
	t.Helper()
	db := newTestDB(t)
	audit := NewAuditService(repository.NewAuditRepository(db), nil)
	svc := NewTemplateService(
		repository.NewTemplateRepository(db),
		repository.NewPermissionRepository(db),
		repository.NewRoleRepository(db),
		repository.NewAssignmentRepository(db),
		repository.NewUserRepository(db),
		repository.NewTransactionManager(db),
		audit,
	)
	return db, svc
}

func TestCreateTemplate(t *testing.T) {
	db, svc := newTemplateEnv(t)
	ctx := context.Background()

	p1 := createTestPermission(t, db, model.ResourceApplication, model.ActionRead, model.ScopeBranch)
	p2 := createTestPermission(t, db, model.ResourceApplication, model.ActionCreate, model.ScopeOwn)

	res, err := svc.Create(ctx, testActor(), CreateTemplateRequest{
		Name:          "officer_basics",
		Description:   "Everything a new officer needs",
		PermissionIDs: []string{p1.ID.String(), p2.ID.String(), p1.ID.String()},
	})
	require.NoError(t, err)
	assert.Equal(t, "officer_basics", res.Name)
	assert.Equal(t, string(model.TemplateTypeRole), res.TemplateType)
	assert.Equal(t, 2, res.PermissionCount, "duplicate ids collapse")
	assert.Equal(t, []string{p1.ID.String(), p2.ID.String()}, res.PermissionIDs, "request order is preserved")

	_, err = svc.Create(ctx, testActor(), CreateTemplateRequest{
		Name:          "officer_basics",
		PermissionIDs: []string{p1.ID.String()},
	})
	assert.True(t, errors.Is(err, apperror.ErrConflict))

	_, err = svc.Create(ctx, testActor(), CreateTemplateRequest{
		Name:          "broken",
		PermissionIDs: []string{"not-a-uuid"},
	})
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, err = svc.Create(ctx, testActor(), CreateTemplateRequest{
		Name:          "phantom",
		PermissionIDs: []string{uuid.NewString()},
	})
	assert.True(t, errors.Is(err, apperror.ErrValidation), "ids must exist in the catalog")

	_, err = svc.Create(ctx, testActor(), CreateTemplateRequest{
		Name:          "odd",
		PermissionIDs: []string{p1.ID.String()},
		TemplateType:  "astrology",
	})
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestDeleteTemplateGuardsSystemEntries(t *testing.T) {
	db, svc := newTemplateEnv(t)
	ctx := context.Background()

	tpl := createTestTemplate(t, db, "disposable", nil)
	require.NoError(t, svc.Delete(ctx, testActor(), tpl.ID))

	err := svc.Delete(ctx, testActor(), tpl.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	system := createTestTemplate(t, db, "baseline", nil)
	require.NoError(t, db.Model(system).Update("is_system_template", true).Error)
	err = svc.Delete(ctx, testActor(), system.ID)
	assert.True(t, errors.Is(err, apperror.ErrPermissionDenied))
}

func TestApplyTemplateToRoleIsIdempotent(t *testing.T) {
	db, svc := newTemplateEnv(t)
	ctx := context.Background()

	p1 := createTestPermission(t, db, model.ResourceApplication, model.ActionRead, model.ScopeBranch)
	p2 := createTestPermission(t, db, model.ResourceApplication, model.ActionUpdate, model.ScopeOwn)
	tpl := createTestTemplate(t, db, "officer_kit", []uuid.UUID{p1.ID, p2.ID})
	role := createTestRole(t, db, "officer", 30)
	roleID := role.ID.String()

	res, err := svc.Apply(ctx, testActor(), tpl.ID, ApplyTemplateRequest{RoleID: &roleID})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 0, res.Skipped)

	res, err = svc.Apply(ctx, testActor(), tpl.ID, ApplyTemplateRequest{RoleID: &roleID})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Applied)
	assert.Equal(t, 2, res.Skipped, "second application changes nothing")

	var reloaded model.PermissionTemplate
	require.NoError(t, db.First(&reloaded, "id = ?", tpl.ID).Error)
	assert.Equal(t, 2, reloaded.UsageCount)
}

func TestApplyTemplateToUser(t *testing.T) {
	db, svc := newTemplateEnv(t)
	ctx := context.Background()

	perm := createTestPermission(t, db, model.ResourceAnalytics, model.ActionRead, model.ScopeBranch)
	tpl := createTestTemplate(t, db, "analyst_kit", []uuid.UUID{perm.ID})
	user := createTestUser(t, db, "analyst")
	userID := user.ID.String()

	res, err := svc.Apply(ctx, testActor(), tpl.ID, ApplyTemplateRequest{UserID: &userID, Reason: "onboarding"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)

	var entry model.UserPermission
	require.NoError(t, db.First(&entry, "user_id = ? AND permission_id = ?", user.ID, perm.ID).Error)
	assert.True(t, entry.IsGranted)
	assert.Equal(t, "onboarding", entry.OverrideReason)

	res, err = svc.Apply(ctx, testActor(), tpl.ID, ApplyTemplateRequest{UserID: &userID})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
}

func TestApplyTemplateTargetValidation(t *testing.T) {
	db, svc := newTemplateEnv(t)
	ctx := context.Background()

	tpl := createTestTemplate(t, db, "kit", nil)
	role := createTestRole(t, db, "any", 10)
	user := createTestUser(t, db, "any")
	roleID := role.ID.String()
	userID := user.ID.String()

	_, err := svc.Apply(ctx, testActor(), tpl.ID, ApplyTemplateRequest{})
	assert.True(t, errors.Is(err, apperror.ErrValidation), "a target is required")

	_, err = svc.Apply(ctx, testActor(), tpl.ID, ApplyTemplateRequest{RoleID: &roleID, UserID: &userID})
	assert.True(t, errors.Is(err, apperror.ErrValidation), "role and user together are ambiguous")

	require.NoError(t, db.Model(tpl).Update("is_active", false).Error)
	_, err = svc.Apply(ctx, testActor(), tpl.ID, ApplyTemplateRequest{RoleID: &roleID})
	assert.True(t, errors.Is(err, apperror.ErrValidation), "inactive template cannot be applied")

	_, err = svc.Apply(ctx, testActor(), uuid.New(), ApplyTemplateRequest{RoleID: &roleID})
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()

	// Source environment.
	srcDB, srcSvc := newTemplateEnv(t)
	srcRead := createTestPermission(t, srcDB, model.ResourceApplication, model.ActionRead, model.ScopeBranch)
	srcApprove := createTestPermission(t, srcDB, model.ResourceApplication, model.ActionApprove, model.ScopeBranch)
	tpl := createTestTemplate(t, srcDB, "branch_reviewer", []uuid.UUID{srcRead.ID, srcApprove.ID})

	exports, err := srcSvc.Export(ctx, []uuid.UUID{tpl.ID})
	require.NoError(t, err)
	require.Len(t, exports, 1)
	assert.Equal(t, "branch_reviewer", exports[0].Name)
	require.Len(t, exports[0].Permissions, 2)
	for _, key := range exports[0].Permissions {
		assert.Equal(t, "APPLICATION", key.ResourceType)
	}

	// Target environment: same catalog triples, different row ids.
	dstDB, dstSvc := newTemplateEnv(t)
	dstRead := createTestPermission(t, dstDB, model.ResourceApplication, model.ActionRead, model.ScopeBranch)
	createTestPermission(t, dstDB, model.ResourceApplication, model.ActionApprove, model.ScopeBranch)

	res, err := dstSvc.Import(ctx, testActor(), ImportTemplatesRequest{Templates: exports})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Empty(t, res.Unmapped)

	imported, err := dstSvc.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, imported, 1)
	assert.Equal(t, 2, imported[0].PermissionCount)
	assert.Contains(t, imported[0].PermissionIDs, dstRead.ID.String(), "keys resolve to local catalog ids")

	// Re-importing collides on the name unless updates are allowed.
	_, err = dstSvc.Import(ctx, testActor(), ImportTemplatesRequest{Templates: exports})
	assert.True(t, errors.Is(err, apperror.ErrConflict))

	res, err = dstSvc.Import(ctx, testActor(), ImportTemplatesRequest{Templates: exports, UpdateIfExists: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
}

func TestImportReportsUnmappedKeys(t *testing.T) {
	_, svc := newTemplateEnv(t)
	ctx := context.Background()

	res, err := svc.Import(ctx, testActor(), ImportTemplatesRequest{
		Templates: []ExportedTemplate{{
			Name: "foreign",
			Permissions: []PermissionKey{
				{ResourceType: "APPLICATION", Action: "READ", Scope: "BRANCH"},
				{ResourceType: "NONSENSE", Action: "READ", Scope: "BRANCH"},
			},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, []string{"APPLICATION:READ:BRANCH", "NONSENSE:READ:BRANCH"}, res.Unmapped,
		"keys missing from the local catalog are reported, not fatal")

	_, err = svc.Import(ctx, testActor(), ImportTemplatesRequest{})
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestGenerateFromRoles(t *testing.T) {
	db, svc := newTemplateEnv(t)
	ctx := context.Background()

	read := createTestPermission(t, db, model.ResourceApplication, model.ActionRead, model.ScopeBranch)
	update := createTestPermission(t, db, model.ResourceApplication, model.ActionUpdate, model.ScopeOwn)
	approve := createTestPermission(t, db, model.ResourceApplication, model.ActionApprove, model.ScopeBranch)

	officer := createTestRole(t, db, "officer", 30)
	manager := createTestRole(t, db, "manager", 60)
	grantPermissionToRole(t, db, officer, read)
	grantPermissionToRole(t, db, officer, update)
	grantPermissionToRole(t, db, manager, read)
	grantPermissionToRole(t, db, manager, approve)

	res, err := svc.GenerateFromRoles(ctx, testActor(), GenerateTemplateRequest{
		RoleIDs: []string{officer.ID.String(), manager.ID.String()},
		Name:    "lending_union",
	})
	require.NoError(t, err)
	assert.Equal(t, string(model.TemplateTypeGeneratedFromRoles), res.TemplateType)
	assert.Equal(t, 3, res.PermissionCount, "union without duplicates")
	assert.Contains(t, res.Description, "officer")
	assert.Contains(t, res.Description, "manager")

	_, err = svc.GenerateFromRoles(ctx, testActor(), GenerateTemplateRequest{
		RoleIDs: []string{uuid.NewString()},
		Name:    "missing",
	})
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	empty := createTestRole(t, db, "empty", 5)
	_, err = svc.GenerateFromRoles(ctx, testActor(), GenerateTemplateRequest{
		RoleIDs: []string{empty.ID.String()},
		Name:    "nothing",
	})
	assert.True(t, errors.Is(err, apperror.ErrValidation), "roles without grants produce no template")
}

func TestSuggestModes(t *testing.T) {
	db, svc := newTemplateEnv(t)
	ctx := context.Background()

	read := createTestPermission(t, db, model.ResourceApplication, model.ActionRead, model.ScopeBranch)
	update := createTestPermission(t, db, model.ResourceApplication, model.ActionUpdate, model.ScopeOwn)

	// Two roles with identical sets, one outlier sharing a single permission.
	tellerA := createTestRole(t, db, "teller_a", 20)
	tellerB := createTestRole(t, db, "teller_b", 20)
	outlier := createTestRole(t, db, "outlier", 10)
	for _, role := range []*model.Role{tellerA, tellerB} {
		grantPermissionToRole(t, db, role, read)
		grantPermissionToRole(t, db, role, update)
	}
	grantPermissionToRole(t, db, outlier, read)

	patterns, err := svc.Suggest(ctx, SuggestionModePattern)
	require.NoError(t, err)
	require.Len(t, patterns.Patterns, 1)
	assert.Equal(t, []string{"teller_a", "teller_b"}, patterns.Patterns[0].Roles)
	assert.Equal(t, 2, patterns.Patterns[0].RoleCount)

	usage, err := svc.Suggest(ctx, SuggestionModeUsage)
	require.NoError(t, err)
	require.Len(t, usage.Usage, 3)
	assert.Equal(t, "teller_a", usage.Usage[0].Role, "largest set first, name breaks the tie")
	assert.Equal(t, 2, usage.Usage[0].PermissionCount)
	assert.Equal(t, "teller_b", usage.Usage[1].Role)
	assert.Equal(t, "outlier", usage.Usage[2].Role)
	assert.Equal(t, 1, usage.Usage[2].PermissionCount)

	similarity, err := svc.Suggest(ctx, SuggestionModeSimilarity)
	require.NoError(t, err)
	require.Len(t, similarity.Similarity, 1, "only the identical pair clears the overlap bar")
	assert.Equal(t, "teller_a", similarity.Similarity[0].RoleA)
	assert.Equal(t, "teller_b", similarity.Similarity[0].RoleB)
	assert.InDelta(t, 1.0, similarity.Similarity[0].Similarity, 1e-9)

	_, err = svc.Suggest(ctx, "vibes")
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}
