package middleware

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/parkkyonghun0510/lc-le-sub001/internal/model"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/repository"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func signTestToken(t *testing.T, userID uuid.UUID, username string, expiresAt time.Time) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub":      userID.String(),
		"username": username,
		"exp":      expiresAt.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(GetJWTSecret())
	require.NoError(t, err)
	return token
}

// newIdentityRouter exposes a route that echoes whatever identity the
// authentication middleware stored on the context.
func newIdentityRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", Authenticate(), func(c *gin.Context) {
		id, _ := UserID(c)
		c.JSON(http.StatusOK, gin.H{"id": id.String(), "username": c.GetString(ContextUsername)})
	})
	return r
}

func doRequest(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestGetJWTSecretFallsBackInDevelopment(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("GIN_MODE", "")
	assert.Equal(t, []byte("default_super_secret_key"), GetJWTSecret())

	t.Setenv("JWT_SECRET", "configured-secret")
	assert.Equal(t, []byte("configured-secret"), GetJWTSecret())
}

func TestGetJWTSecretPanicsInReleaseModeWithoutSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("GIN_MODE", "release")
	require.Panics(t, func() { GetJWTSecret() })
}

func TestAuthenticateAcceptsBearerToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "middleware-test-secret")
	userID := uuid.New()
	token := signTestToken(t, userID, "vanna", time.Now().Add(time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := doRequest(newIdentityRouter(), req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), userID.String())
	assert.Contains(t, rec.Body.String(), "vanna")
}

func TestAuthenticateAcceptsCookieToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "middleware-test-secret")
	userID := uuid.New()
	token := signTestToken(t, userID, "vanna", time.Now().Add(time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: token})
	rec := doRequest(newIdentityRouter(), req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), userID.String())
}

func TestAuthenticateRejectsMissingCredentials(t *testing.T) {
	t.Setenv("JWT_SECRET", "middleware-test-secret")

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	rec := doRequest(newIdentityRouter(), req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Authorization is missing")
}

func TestAuthenticateRejectsMalformedHeader(t *testing.T) {
	t.Setenv("JWT_SECRET", "middleware-test-secret")

	for _, header := range []string{"Token abc", "Bearer", "Basic dXNlcjpwYXNz"} {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", header)
		rec := doRequest(newIdentityRouter(), req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
		assert.Contains(t, rec.Body.String(), "Invalid authorization format", "header %q", header)
	}
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	t.Setenv("JWT_SECRET", "middleware-test-secret")
	userID := uuid.New()

	wrongKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("some-other-secret"))
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": userID.String(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	expired := signTestToken(t, userID, "vanna", time.Now().Add(-time.Hour))

	for name, token := range map[string]string{
		"garbage":      "not.a.jwt",
		"wrong secret": wrongKey,
		"none alg":     noneAlg,
		"expired":      expired,
	} {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := doRequest(newIdentityRouter(), req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code, "case %s", name)
		assert.Contains(t, rec.Body.String(), "Invalid token", "case %s", name)
	}
}

func TestAuthenticateRejectsBadSubjects(t *testing.T) {
	t.Setenv("JWT_SECRET", "middleware-test-secret")

	withoutSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": "vanna",
		"exp":      time.Now().Add(time.Hour).Unix(),
	}).SignedString(GetJWTSecret())
	require.NoError(t, err)

	nonUUIDSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "vanna",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(GetJWTSecret())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+withoutSub)
	rec := doRequest(newIdentityRouter(), req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Subject not found in token")

	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+nonUUIDSub)
	rec = doRequest(newIdentityRouter(), req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid subject in token")
}

func TestActorFromUsesTokenIdentityAndClientIP(t *testing.T) {
	t.Setenv("JWT_SECRET", "middleware-test-secret")
	userID := uuid.New()
	token := signTestToken(t, userID, "vanna", time.Now().Add(time.Hour))

	var actor service.Actor
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/probe", Authenticate(), func(c *gin.Context) {
		actor = ActorFrom(c)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.RemoteAddr = "203.0.113.9:51423"
	rec := doRequest(r, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, userID, actor.ID)
	assert.Equal(t, "203.0.113.9", actor.IP)
}

func TestUserIDOnBareContext(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	id, ok := UserID(c)
	assert.False(t, ok)
	assert.Equal(t, uuid.Nil, id)
}

func TestSetAndClearTokenCookies(t *testing.T) {
	t.Setenv("GIN_MODE", "")
	t.Setenv("RENDER", "")

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	SetTokenCookies(c, "access-value", "refresh-value")

	cookies := map[string]*http.Cookie{}
	for _, ck := range rec.Result().Cookies() {
		cookies[ck.Name] = ck
	}
	require.Contains(t, cookies, "access_token")
	require.Contains(t, cookies, "refresh_token")
	assert.Equal(t, "access-value", cookies["access_token"].Value)
	assert.Equal(t, 3600*24, cookies["access_token"].MaxAge)
	assert.True(t, cookies["access_token"].HttpOnly)
	assert.Equal(t, "refresh-value", cookies["refresh_token"].Value)
	assert.Equal(t, 3600*24*7, cookies["refresh_token"].MaxAge)
	assert.True(t, cookies["refresh_token"].HttpOnly)

	rec = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(rec)
	ClearTokenCookies(c)

	for _, ck := range rec.Result().Cookies() {
		assert.Less(t, ck.MaxAge, 0, "cookie %s should expire immediately", ck.Name)
		assert.Empty(t, ck.Value)
	}
}

// newGuardEnv wires a Guard to a throwaway sqlite database carrying only the
// tables the decision engine reads.
func newGuardEnv(t *testing.T) (*gorm.DB, *Guard) {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Permission{},
		&model.Role{},
		&model.RolePermission{},
		&model.UserRole{},
		&model.UserPermission{},
	))

	decisions := service.NewDecisionService(repository.NewAssignmentRepository(db), repository.NewRoleRepository(db))
	return db, NewGuard(decisions)
}

// seedGrant gives the user the permission through a freshly created role.
func seedGrant(t *testing.T, db *gorm.DB, userID uuid.UUID, resource model.ResourceType, action model.PermissionAction, scope model.PermissionScope) {
	t.Helper()

	perm := &model.Permission{
		Name:         string(resource) + ":" + string(action) + ":" + string(scope),
		ResourceType: resource,
		Action:       action,
		Scope:        scope,
		IsActive:     true,
	}
	require.NoError(t, db.Create(perm).Error)

	role := &model.Role{Name: "holder_of_" + perm.Name, DisplayName: perm.Name, Level: 40, IsActive: true}
	require.NoError(t, db.Create(role).Error)
	require.NoError(t, db.Create(&model.RolePermission{RoleID: role.ID, PermissionID: perm.ID, IsGranted: true}).Error)
	require.NoError(t, db.Create(&model.UserRole{
		UserID:        userID,
		RoleID:        role.ID,
		IsActive:      true,
		EffectiveFrom: time.Now().Add(-time.Minute),
	}).Error)
}

func TestGuardRequiresAuthentication(t *testing.T) {
	t.Setenv("JWT_SECRET", "middleware-test-secret")
	_, guard := newGuardEnv(t)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/applications", guard.RequirePermission(model.ResourceApplication, model.ActionRead), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	rec := doRequest(r, httptest.NewRequest(http.MethodGet, "/applications", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuardDeniesUngrantedCaller(t *testing.T) {
	t.Setenv("JWT_SECRET", "middleware-test-secret")
	_, guard := newGuardEnv(t)
	userID := uuid.New()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/applications", guard.RequirePermission(model.ResourceApplication, model.ActionRead), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/applications", nil)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, userID, "vanna", time.Now().Add(time.Hour)))
	rec := doRequest(r, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Access denied: missing permission 'APPLICATION:READ'")
}

func TestGuardAllowsGrantedCaller(t *testing.T) {
	t.Setenv("JWT_SECRET", "middleware-test-secret")
	db, guard := newGuardEnv(t)
	userID := uuid.New()
	seedGrant(t, db, userID, model.ResourceApplication, model.ActionRead, model.ScopeBranch)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/applications", guard.RequirePermission(model.ResourceApplication, model.ActionRead), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/applications", nil)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, userID, "vanna", time.Now().Add(time.Hour)))
	rec := doRequest(r, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGuardScopedPermission(t *testing.T) {
	t.Setenv("JWT_SECRET", "middleware-test-secret")
	db, guard := newGuardEnv(t)
	userID := uuid.New()
	seedGrant(t, db, userID, model.ResourceAnalytics, model.ActionViewBranch, model.ScopeBranch)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/branch", guard.RequireScopedPermission(model.ResourceAnalytics, model.ActionViewBranch, model.ScopeBranch), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/global", guard.RequireScopedPermission(model.ResourceAnalytics, model.ActionViewBranch, model.ScopeGlobal), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	token := signTestToken(t, userID, "vanna", time.Now().Add(time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/branch", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, doRequest(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/global", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := doRequest(r, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "ANALYTICS:VIEW_BRANCH")
}

func TestGuardRevocationTakesImmediateEffect(t *testing.T) {
	t.Setenv("JWT_SECRET", "middleware-test-secret")
	db, guard := newGuardEnv(t)
	userID := uuid.New()
	seedGrant(t, db, userID, model.ResourceUser, model.ActionRead, model.ScopeGlobal)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/users", guard.RequirePermission(model.ResourceUser, model.ActionRead), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	token := signTestToken(t, userID, "vanna", time.Now().Add(time.Hour))
	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, doRequest(r, req).Code)

	require.NoError(t, db.Model(&model.UserRole{}).
		Where("user_id = ?", userID).
		Update("is_active", false).Error)

	req = httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusForbidden, doRequest(r, req).Code)
}
