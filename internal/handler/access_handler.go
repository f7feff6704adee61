package handler

import (
	"net/http"

	"github.com/parkkyonghun0510/lc-le-sub001/internal/middleware"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/model"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/service"
	"github.com/parkkyonghun0510/lc-le-sub001/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AccessHandler is the self-service surface of the decision engine. Every
// endpoint answers for the calling user only, so a valid token is the only
// requirement; the engine itself is fail-closed.
type AccessHandler struct {
	decisionService service.DecisionService
}

func NewAccessHandler(decisionService service.DecisionService) *AccessHandler {
	return &AccessHandler{decisionService: decisionService}
}

func (h *AccessHandler) RegisterRoutes(router *gin.RouterGroup) {
	access := router.Group("/api/access")
	access.Use(middleware.Authenticate())
	{
		access.POST("/check", h.Check)
		access.POST("/check-any", h.CheckAny)
		access.POST("/check-all", h.CheckAll)
		access.POST("/filter", h.FilterResources)
		access.GET("/permissions", h.GetMyPermissions)
	}
}

// checkRequest is the wire form of one permission check.
type checkRequest struct {
	ResourceType string  `json:"resource_type" binding:"required"`
	Action       string  `json:"action" binding:"required"`
	Scope        *string `json:"scope"`
	ResourceID   *string `json:"resource_id"`
}

type batchCheckRequest struct {
	Checks []checkRequest `json:"checks" binding:"required,min=1"`
}

type filterRequest struct {
	ResourceType string   `json:"resource_type" binding:"required"`
	Action       string   `json:"action" binding:"required"`
	ResourceIDs  []string `json:"resource_ids" binding:"required"`
}

// toCheck converts the wire form into an engine check. Enum validation is
// left to the engine; only uuids are parsed here.
func (r checkRequest) toCheck() (service.PermissionCheck, error) {
	check := service.PermissionCheck{
		Resource: model.ResourceType(r.ResourceType),
		Action:   model.PermissionAction(r.Action),
	}
	if r.Scope != nil {
		scope := model.PermissionScope(*r.Scope)
		check.Scope = &scope
	}
	if r.ResourceID != nil {
		id, err := uuid.Parse(*r.ResourceID)
		if err != nil {
			return check, err
		}
		check.ResourceID = &id
	}
	return check, nil
}

func bindChecks(c *gin.Context) ([]service.PermissionCheck, bool) {
	var req batchCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return nil, false
	}

	checks := make([]service.PermissionCheck, 0, len(req.Checks))
	for _, raw := range req.Checks {
		check, err := raw.toCheck()
		if err != nil {
			badRequest(c, "Invalid resource_id: "+err.Error())
			return nil, false
		}
		checks = append(checks, check)
	}
	return checks, true
}

// Check answers a single permission question for the caller
// @Summary      Check permission
// @Description  Answers whether the calling user holds the permission; unknown enums and missing grants both answer false
// @Tags         access
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      checkRequest  true  "Permission Check"
// @Success      200      {object}  response.Response{data=object}
// @Failure      400      {object}  response.Response
// @Router       /api/access/check [post]
func (h *AccessHandler) Check(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User ID not found in context"))
		return
	}

	var raw checkRequest
	if err := c.ShouldBindJSON(&raw); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	check, err := raw.toCheck()
	if err != nil {
		badRequest(c, "Invalid resource_id: "+err.Error())
		return
	}

	allowed, err := h.decisionService.HasPermission(c.Request.Context(), userID, check)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"allowed": allowed}))
}

// CheckAny answers whether the caller holds at least one of the permissions
// @Summary      Check any permission
// @Tags         access
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      batchCheckRequest  true  "Permission Checks"
// @Success      200      {object}  response.Response{data=object}
// @Failure      400      {object}  response.Response
// @Router       /api/access/check-any [post]
func (h *AccessHandler) CheckAny(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User ID not found in context"))
		return
	}

	checks, ok := bindChecks(c)
	if !ok {
		return
	}

	allowed, err := h.decisionService.HasAnyPermission(c.Request.Context(), userID, checks)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"allowed": allowed}))
}

// CheckAll answers whether the caller holds every one of the permissions
// @Summary      Check all permissions
// @Tags         access
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      batchCheckRequest  true  "Permission Checks"
// @Success      200      {object}  response.Response{data=object}
// @Failure      400      {object}  response.Response
// @Router       /api/access/check-all [post]
func (h *AccessHandler) CheckAll(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User ID not found in context"))
		return
	}

	checks, ok := bindChecks(c)
	if !ok {
		return
	}

	allowed, err := h.decisionService.HasAllPermissions(c.Request.Context(), userID, checks)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"allowed": allowed}))
}

// FilterResources narrows a list of resource ids to the accessible ones
// @Summary      Filter accessible resources
// @Description  Returns the subset of the given resource ids the caller may act on; unknown ids simply drop out
// @Tags         access
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      filterRequest  true  "Filter Payload"
// @Success      200      {object}  response.Response{data=object}
// @Failure      400      {object}  response.Response
// @Router       /api/access/filter [post]
func (h *AccessHandler) FilterResources(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User ID not found in context"))
		return
	}

	var req filterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	ids := make([]uuid.UUID, 0, len(req.ResourceIDs))
	for _, raw := range req.ResourceIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			badRequest(c, "Invalid resource id: "+raw)
			return
		}
		ids = append(ids, id)
	}

	accessible, err := h.decisionService.FilterAccessibleResources(
		c.Request.Context(), userID, model.ResourceType(req.ResourceType), ids, model.PermissionAction(req.Action))
	if err != nil {
		fail(c, err)
		return
	}

	out := make([]string, 0, len(accessible))
	for _, id := range accessible {
		out = append(out, id.String())
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"accessible_ids": out}))
}

// GetMyPermissions lists the caller's effective permissions
// @Summary      Get my permissions
// @Description  Lists every permission the calling user currently holds, with its source
// @Tags         access
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]service.EffectivePermission}
// @Failure      401  {object}  response.Response
// @Router       /api/access/permissions [get]
func (h *AccessHandler) GetMyPermissions(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User ID not found in context"))
		return
	}

	perms, err := h.decisionService.GetUserPermissions(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	if perms == nil {
		perms = []service.EffectivePermission{}
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, perms))
}
