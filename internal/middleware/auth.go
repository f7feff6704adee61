package middleware

import (
	"net/http"
	"os"
	"strings"

	"github.com/parkkyonghun0510/lc-le-sub001/internal/model"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/service"
	"github.com/parkkyonghun0510/lc-le-sub001/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Context keys set by the authentication middleware.
const (
	ContextUserID   = "userID"
	ContextUsername = "username"
)

func GetJWTSecret() []byte {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		if os.Getenv("GIN_MODE") == "release" {
			panic("FATAL: JWT_SECRET environment variable is required in production mode")
		}
		secret = "default_super_secret_key" // Development fallback only — DO NOT use in production
	}
	return []byte(secret)
}

// SetTokenCookies sets access_token and refresh_token as HttpOnly cookies
func SetTokenCookies(c *gin.Context, accessToken, refreshToken string) {
	// Production (cross-origin): SameSiteNoneMode + Secure=true
	// Development (same-site):   SameSiteLaxMode  + Secure=false
	sameSite := http.SameSiteLaxMode
	secure := false
	if os.Getenv("GIN_MODE") == "release" || os.Getenv("RENDER") != "" {
		sameSite = http.SameSiteNoneMode
		secure = true
	}

	c.SetSameSite(sameSite)
	// access_token: 24h, path=/, domain="", secure, HttpOnly
	c.SetCookie("access_token", accessToken, 3600*24, "/", "", secure, true)
	// refresh_token: 7 days, path=/, domain="", secure, HttpOnly
	c.SetCookie("refresh_token", refreshToken, 3600*24*7, "/", "", secure, true)
}

// ClearTokenCookies removes access_token and refresh_token cookies
func ClearTokenCookies(c *gin.Context) {
	sameSite := http.SameSiteLaxMode
	secure := false
	if os.Getenv("GIN_MODE") == "release" || os.Getenv("RENDER") != "" {
		sameSite = http.SameSiteNoneMode
		secure = true
	}

	c.SetSameSite(sameSite)
	c.SetCookie("access_token", "", -1, "/", "", secure, true)
	c.SetCookie("refresh_token", "", -1, "/", "", secure, true)
}

// extractToken pulls the JWT from the access_token cookie, falling back to
// the Authorization header.
func extractToken(c *gin.Context) (string, string) {
	tokenString, cookieErr := c.Cookie("access_token")
	if cookieErr == nil && tokenString != "" {
		return tokenString, ""
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", "Authorization is missing"
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", "Invalid authorization format. Expected 'Bearer <token>'"
	}
	return parts[1], ""
}

// authenticate validates the JWT and stores the caller's identity on the gin
// context. It aborts with 401 on any failure and reports success to the
// caller.
func authenticate(c *gin.Context) bool {
	tokenString, errMsg := extractToken(c)
	if errMsg != "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, errMsg))
		return false
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return GetJWTSecret(), nil
	})
	if err != nil || !token.Valid {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token"))
		return false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token claims"))
		return false
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Subject not found in token"))
		return false
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid subject in token"))
		return false
	}

	c.Set(ContextUserID, userID)
	if username, ok := claims["username"].(string); ok {
		c.Set(ContextUsername, username)
	}
	return true
}

// Authenticate validates the JWT and exposes the caller's identity. It
// performs no permission check; use a Guard for that.
func Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authenticate(c) {
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated caller's id from the gin context.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// ActorFrom builds the audit actor for the current request.
func ActorFrom(c *gin.Context) service.Actor {
	id, _ := UserID(c)
	return service.Actor{ID: id, IP: c.ClientIP()}
}

// Guard gates routes on the decision engine. Every request triggers a fresh
// evaluation against the database; nothing is cached, so a revocation takes
// effect on the caller's very next request.
type Guard struct {
	decisions service.DecisionService
}

// NewGuard returns a new instance of Guard
func NewGuard(decisions service.DecisionService) *Guard {
	return &Guard{decisions: decisions}
}

func (g *Guard) require(c *gin.Context, check service.PermissionCheck) {
	if !authenticate(c) {
		return
	}
	userID, _ := UserID(c)

	allowed, err := g.decisions.HasPermission(c.Request.Context(), userID, check)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to verify permissions"))
		return
	}
	if !allowed {
		msg := "Access denied: missing permission '" + string(check.Resource) + ":" + string(check.Action) + "'"
		c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, msg))
		return
	}

	c.Next()
}

// RequirePermission authenticates the caller and demands the given
// capability at any scope.
func (g *Guard) RequirePermission(resource model.ResourceType, action model.PermissionAction) gin.HandlerFunc {
	return func(c *gin.Context) {
		g.require(c, service.PermissionCheck{Resource: resource, Action: action})
	}
}

// RequireScopedPermission demands the capability at one exact scope.
func (g *Guard) RequireScopedPermission(resource model.ResourceType, action model.PermissionAction, scope model.PermissionScope) gin.HandlerFunc {
	return func(c *gin.Context) {
		g.require(c, service.PermissionCheck{Resource: resource, Action: action, Scope: &scope})
	}
}
