package handler

import (
	"net/http"

	"github.com/parkkyonghun0510/lc-le-sub001/internal/middleware"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/model"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/service"
	"github.com/parkkyonghun0510/lc-le-sub001/pkg/response"

	"github.com/gin-gonic/gin"
)

// AssignmentHandler exposes role and direct-permission assignments for a
// user. Effective permissions come from the decision engine so the endpoint
// reflects exactly what access checks will answer.
type AssignmentHandler struct {
	assignmentService service.AssignmentService
	decisionService   service.DecisionService
}

func NewAssignmentHandler(assignmentService service.AssignmentService, decisionService service.DecisionService) *AssignmentHandler {
	return &AssignmentHandler{
		assignmentService: assignmentService,
		decisionService:   decisionService,
	}
}

func (h *AssignmentHandler) RegisterRoutes(router *gin.RouterGroup, guard *middleware.Guard) {
	users := router.Group("/api/users/:id")
	{
		read := guard.RequirePermission(model.ResourceUser, model.ActionRead)
		assign := guard.RequirePermission(model.ResourceUser, model.ActionAssign)

		users.GET("/roles", read, h.GetUserRoles)
		users.POST("/roles", assign, h.AssignRole)
		users.DELETE("/roles/:roleId", assign, h.RevokeRole)

		users.GET("/permissions", read, h.GetUserPermissions)
		users.POST("/permissions", assign, h.GrantPermission)
		users.POST("/permissions/revoke", assign, h.RevokePermission)
	}
}

// GetUserRoles returns a user's role assignments
// @Summary      Get user roles
// @Description  Retrieves all role assignments of a user including inactive and expired ones
// @Tags         assignments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  response.Response{data=[]service.UserRoleResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/users/{id}/roles [get]
func (h *AssignmentHandler) GetUserRoles(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}

	roles, err := h.assignmentService.GetUserRoles(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, roles))
}

// AssignRole assigns a role to a user
// @Summary      Assign role
// @Description  Assigns a role to a user, optionally scoped to a department/branch and time-boxed
// @Tags         assignments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                     true  "User ID"
// @Param        payload  body      service.AssignRoleRequest  true  "Assign Role Payload"
// @Success      201      {object}  response.Response{data=service.UserRoleResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/users/{id}/roles [post]
func (h *AssignmentHandler) AssignRole(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req service.AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	assignment, err := h.assignmentService.AssignRole(c.Request.Context(), middleware.ActorFrom(c), userID, req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, assignment))
}

// RevokeRole revokes a role from a user
// @Summary      Revoke role
// @Description  Deactivates all active assignments of the role for the user; revoking an unassigned role is not an error
// @Tags         assignments
// @Security     BearerAuth
// @Produce      json
// @Param        id      path      string  true  "User ID"
// @Param        roleId  path      string  true  "Role ID"
// @Success      200     {object}  response.Response
// @Failure      404     {object}  response.Response
// @Router       /api/users/{id}/roles/{roleId} [delete]
func (h *AssignmentHandler) RevokeRole(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}
	roleID, ok := pathID(c, "roleId")
	if !ok {
		return
	}

	revoked, err := h.assignmentService.RevokeRole(c.Request.Context(), middleware.ActorFrom(c), userID, roleID)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"revoked": revoked}))
}

// GetUserPermissions returns a user's effective permissions
// @Summary      Get effective permissions
// @Description  Lists every permission the user currently holds, with the role or direct override it came from
// @Tags         assignments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  response.Response{data=[]service.EffectivePermission}
// @Failure      404  {object}  response.Response
// @Router       /api/users/{id}/permissions [get]
func (h *AssignmentHandler) GetUserPermissions(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}

	perms, err := h.decisionService.GetUserPermissions(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, perms))
}

// GrantPermission grants a direct permission override to a user
// @Summary      Grant direct permission
// @Description  Grants a permission directly to a user; direct entries beat role grants when access is evaluated
// @Tags         assignments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                              true  "User ID"
// @Param        payload  body      service.GrantUserPermissionRequest  true  "Grant Payload"
// @Success      201      {object}  response.Response{data=service.UserPermissionResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/users/{id}/permissions [post]
func (h *AssignmentHandler) GrantPermission(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req service.GrantUserPermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	grant, err := h.assignmentService.GrantPermission(c.Request.Context(), middleware.ActorFrom(c), userID, req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, grant))
}

// RevokePermission records a direct deny override for a user
// @Summary      Revoke direct permission
// @Description  Writes a deny entry for the permission; a deny suppresses any role grant of the same permission
// @Tags         assignments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                               true  "User ID"
// @Param        payload  body      service.RevokeUserPermissionRequest  true  "Revoke Payload"
// @Success      200      {object}  response.Response{data=service.UserPermissionResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/users/{id}/permissions/revoke [post]
func (h *AssignmentHandler) RevokePermission(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req service.RevokeUserPermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	deny, err := h.assignmentService.RevokePermission(c.Request.Context(), middleware.ActorFrom(c), userID, req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, deny))
}
