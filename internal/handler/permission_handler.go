package handler

import (
	"net/http"

	"github.com/parkkyonghun0510/lc-le-sub001/internal/middleware"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/model"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/service"
	"github.com/parkkyonghun0510/lc-le-sub001/pkg/response"

	"github.com/gin-gonic/gin"
)

type PermissionHandler struct {
	permissionService service.PermissionService
}

func NewPermissionHandler(permissionService service.PermissionService) *PermissionHandler {
	return &PermissionHandler{permissionService: permissionService}
}

func (h *PermissionHandler) RegisterRoutes(router *gin.RouterGroup, guard *middleware.Guard) {
	perms := router.Group("/api/permissions")
	{
		read := guard.RequirePermission(model.ResourceSystem, model.ActionRead)
		manage := guard.RequireScopedPermission(model.ResourceSystem, model.ActionManage, model.ScopeGlobal)

		perms.GET("", read, h.ListPermissions)
		perms.GET("/:id", read, h.GetPermission)
		perms.POST("", manage, h.CreatePermission)
		perms.PUT("/:id", manage, h.UpdatePermission)
		perms.DELETE("/:id", manage, h.DeletePermission)
	}
}

// ListPermissions returns the permission catalog, optionally filtered
// @Summary      List permissions
// @Description  Retrieves the permission catalog, optionally filtered by resource type, action, scope or active flag
// @Tags         permissions
// @Security     BearerAuth
// @Produce      json
// @Param        resource_type  query     string  false  "Filter by resource type (USER, APPLICATION, ...)"
// @Param        action         query     string  false  "Filter by action (CREATE, READ, ...)"
// @Param        scope          query     string  false  "Filter by scope (GLOBAL, DEPARTMENT, BRANCH, TEAM, OWN)"
// @Param        active_only    query     bool    false  "Only return active permissions"
// @Success      200            {object}  response.Response{data=[]service.PermissionResponse}
// @Failure      400            {object}  response.Response
// @Router       /api/permissions [get]
func (h *PermissionHandler) ListPermissions(c *gin.Context) {
	var req service.ListPermissionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "Invalid query parameters: "+err.Error())
		return
	}

	perms, err := h.permissionService.List(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, perms))
}

// GetPermission returns a single permission by ID
// @Summary      Get permission
// @Description  Fetch a single permission by its UUID
// @Tags         permissions
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Permission ID"
// @Success      200  {object}  response.Response{data=service.PermissionResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/permissions/{id} [get]
func (h *PermissionHandler) GetPermission(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	perm, err := h.permissionService.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, perm))
}

// CreatePermission adds a custom permission to the catalog
// @Summary      Create permission
// @Description  Creates a new permission; the (resource_type, action, scope) triple must be unique
// @Tags         permissions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreatePermissionRequest  true  "Create Permission Payload"
// @Success      201      {object}  response.Response{data=service.PermissionResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/permissions [post]
func (h *PermissionHandler) CreatePermission(c *gin.Context) {
	var req service.CreatePermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	perm, err := h.permissionService.Create(c.Request.Context(), middleware.ActorFrom(c), req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, perm))
}

// UpdatePermission updates a permission's description or active flag
// @Summary      Update permission
// @Description  Updates mutable fields of a permission; the identity triple never changes
// @Tags         permissions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                           true  "Permission ID"
// @Param        payload  body      service.UpdatePermissionRequest  true  "Update Permission Payload"
// @Success      200      {object}  response.Response{data=service.PermissionResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/permissions/{id} [put]
func (h *PermissionHandler) UpdatePermission(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req service.UpdatePermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	perm, err := h.permissionService.Update(c.Request.Context(), middleware.ActorFrom(c), id, req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, perm))
}

// DeletePermission removes a non-system permission from the catalog
// @Summary      Delete permission
// @Description  Deletes a custom permission; system permissions cannot be deleted
// @Tags         permissions
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Permission ID"
// @Success      200  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/permissions/{id} [delete]
func (h *PermissionHandler) DeletePermission(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.permissionService.Delete(c.Request.Context(), middleware.ActorFrom(c), id); err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Permission deleted successfully"}))
}
