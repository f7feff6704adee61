package handler

import (
	"net/http"

	"github.com/parkkyonghun0510/lc-le-sub001/internal/middleware"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/model"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/service"
	"github.com/parkkyonghun0510/lc-le-sub001/pkg/response"

	"github.com/gin-gonic/gin"
)

type RoleHandler struct {
	roleService service.RoleService
}

func NewRoleHandler(roleService service.RoleService) *RoleHandler {
	return &RoleHandler{roleService: roleService}
}

func (h *RoleHandler) RegisterRoutes(router *gin.RouterGroup, guard *middleware.Guard) {
	roles := router.Group("/api/roles")
	{
		roles.GET("", guard.RequirePermission(model.ResourceSystem, model.ActionRead), h.ListRoles)
		roles.GET("/matrix", guard.RequirePermission(model.ResourceSystem, model.ActionRead), h.GetPermissionMatrix)
		roles.GET("/:id", guard.RequirePermission(model.ResourceSystem, model.ActionRead), h.GetRole)

		// Mutating the role graph is a global capability; a scoped
		// SYSTEM:MANAGE grant is not enough.
		manage := guard.RequireScopedPermission(model.ResourceSystem, model.ActionManage, model.ScopeGlobal)
		roles.POST("", manage, h.CreateRole)
		roles.POST("/from-template", manage, h.CreateRoleFromTemplate)
		roles.PUT("/:id", manage, h.UpdateRole)
		roles.DELETE("/:id", manage, h.DeleteRole)
		roles.POST("/:id/permissions/:permissionId", manage, h.GrantPermission)
		roles.DELETE("/:id/permissions/:permissionId", manage, h.RevokePermission)
		roles.POST("/matrix/toggle", manage, h.ToggleMatrixCell)
	}
}

// ListRoles returns all roles with their permission counts
// @Summary      List roles
// @Description  Retrieves all roles; pass active_only=true to hide deactivated ones
// @Tags         roles
// @Security     BearerAuth
// @Produce      json
// @Param        active_only  query     bool  false  "Only return active roles"
// @Success      200          {object}  response.Response{data=[]service.RoleResponse}
// @Failure      500          {object}  response.Response
// @Router       /api/roles [get]
func (h *RoleHandler) ListRoles(c *gin.Context) {
	activeOnly := c.Query("active_only") == "true"

	roles, err := h.roleService.List(c.Request.Context(), activeOnly)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, roles))
}

// GetRole returns a single role with its granted permissions
// @Summary      Get role
// @Description  Fetch a single role by ID including its granted permissions
// @Tags         roles
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Role ID"
// @Success      200  {object}  response.Response{data=service.RoleResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/roles/{id} [get]
func (h *RoleHandler) GetRole(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	role, err := h.roleService.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, role))
}

// CreateRole creates a new custom role
// @Summary      Create role
// @Description  Creates a new role; the parent link is informational and grants nothing
// @Tags         roles
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateRoleRequest  true  "Create Role Payload"
// @Success      201      {object}  response.Response{data=service.RoleResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/roles [post]
func (h *RoleHandler) CreateRole(c *gin.Context) {
	var req service.CreateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	role, err := h.roleService.Create(c.Request.Context(), middleware.ActorFrom(c), req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, role))
}

// CreateRoleFromTemplate creates a role pre-loaded with a template's permissions
// @Summary      Create role from template
// @Description  Creates a new role and grants it every permission the template carries
// @Tags         roles
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateRoleFromTemplateRequest  true  "Create From Template Payload"
// @Success      201      {object}  response.Response{data=service.RoleResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/roles/from-template [post]
func (h *RoleHandler) CreateRoleFromTemplate(c *gin.Context) {
	var req service.CreateRoleFromTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	role, err := h.roleService.CreateFromTemplate(c.Request.Context(), middleware.ActorFrom(c), req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, role))
}

// UpdateRole updates a role's metadata
// @Summary      Update role
// @Description  Updates a role's name, display name, description, level or flags
// @Tags         roles
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                     true  "Role ID"
// @Param        payload  body      service.UpdateRoleRequest  true  "Update Role Payload"
// @Success      200      {object}  response.Response{data=service.RoleResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/roles/{id} [put]
func (h *RoleHandler) UpdateRole(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req service.UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	role, err := h.roleService.Update(c.Request.Context(), middleware.ActorFrom(c), id, req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, role))
}

// DeleteRole deletes a non-system role
// @Summary      Delete role
// @Description  Deletes a custom role; system roles and roles still assigned to users are protected
// @Tags         roles
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Role ID"
// @Success      200  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/roles/{id} [delete]
func (h *RoleHandler) DeleteRole(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.roleService.Delete(c.Request.Context(), middleware.ActorFrom(c), id); err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Role deleted successfully"}))
}

// GrantPermission grants a permission to a role
// @Summary      Grant permission to role
// @Description  Grants a catalog permission to a role; granting an already held permission is a conflict
// @Tags         roles
// @Security     BearerAuth
// @Produce      json
// @Param        id            path      string  true  "Role ID"
// @Param        permissionId  path      string  true  "Permission ID"
// @Success      200           {object}  response.Response
// @Failure      404           {object}  response.Response
// @Failure      409           {object}  response.Response
// @Router       /api/roles/{id}/permissions/{permissionId} [post]
func (h *RoleHandler) GrantPermission(c *gin.Context) {
	roleID, ok := pathID(c, "id")
	if !ok {
		return
	}
	permissionID, ok := pathID(c, "permissionId")
	if !ok {
		return
	}

	if err := h.roleService.GrantPermission(c.Request.Context(), middleware.ActorFrom(c), roleID, permissionID); err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Permission granted"}))
}

// RevokePermission revokes a permission from a role
// @Summary      Revoke permission from role
// @Description  Revokes a previously granted permission from a role
// @Tags         roles
// @Security     BearerAuth
// @Produce      json
// @Param        id            path      string  true  "Role ID"
// @Param        permissionId  path      string  true  "Permission ID"
// @Success      200           {object}  response.Response
// @Failure      404           {object}  response.Response
// @Router       /api/roles/{id}/permissions/{permissionId} [delete]
func (h *RoleHandler) RevokePermission(c *gin.Context) {
	roleID, ok := pathID(c, "id")
	if !ok {
		return
	}
	permissionID, ok := pathID(c, "permissionId")
	if !ok {
		return
	}

	if err := h.roleService.RevokePermission(c.Request.Context(), middleware.ActorFrom(c), roleID, permissionID); err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Permission revoked"}))
}

// GetPermissionMatrix returns the full roles-by-permissions grid
// @Summary      Get permission matrix
// @Description  Returns every role, every permission and which role holds which permission
// @Tags         roles
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=service.PermissionMatrixResponse}
// @Failure      500  {object}  response.Response
// @Router       /api/roles/matrix [get]
func (h *RoleHandler) GetPermissionMatrix(c *gin.Context) {
	matrix, err := h.roleService.GetPermissionMatrix(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, matrix))
}

// ToggleMatrixCell grants or revokes a single matrix cell
// @Summary      Toggle matrix cell
// @Description  Sets one role/permission cell of the matrix to granted or revoked
// @Tags         roles
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.ToggleMatrixRequest  true  "Toggle Payload"
// @Success      200      {object}  response.Response
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/roles/matrix/toggle [post]
func (h *RoleHandler) ToggleMatrixCell(c *gin.Context) {
	var req service.ToggleMatrixRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	if err := h.roleService.ToggleMatrixCell(c.Request.Context(), middleware.ActorFrom(c), req); err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Matrix updated"}))
}
