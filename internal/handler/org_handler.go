package handler

import (
	"net/http"

	"github.com/parkkyonghun0510/lc-le-sub001/internal/middleware"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/model"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/service"
	"github.com/parkkyonghun0510/lc-le-sub001/pkg/response"

	"github.com/gin-gonic/gin"
)

// OrgHandler exposes the department and branch reference data that scoped
// permissions point at.
type OrgHandler struct {
	orgService service.OrgService
}

func NewOrgHandler(orgService service.OrgService) *OrgHandler {
	return &OrgHandler{orgService: orgService}
}

func (h *OrgHandler) RegisterRoutes(router *gin.RouterGroup, guard *middleware.Guard) {
	departments := router.Group("/api/departments")
	{
		departments.GET("", guard.RequirePermission(model.ResourceDepartment, model.ActionRead), h.ListDepartments)
		departments.GET("/:id", guard.RequirePermission(model.ResourceDepartment, model.ActionRead), h.GetDepartment)
		departments.POST("", guard.RequirePermission(model.ResourceDepartment, model.ActionCreate), h.CreateDepartment)
		departments.PUT("/:id", guard.RequirePermission(model.ResourceDepartment, model.ActionUpdate), h.UpdateDepartment)
	}

	branches := router.Group("/api/branches")
	{
		branches.GET("", guard.RequirePermission(model.ResourceBranch, model.ActionRead), h.ListBranches)
		branches.GET("/:id", guard.RequirePermission(model.ResourceBranch, model.ActionRead), h.GetBranch)
		branches.POST("", guard.RequirePermission(model.ResourceBranch, model.ActionCreate), h.CreateBranch)
		branches.PUT("/:id", guard.RequirePermission(model.ResourceBranch, model.ActionUpdate), h.UpdateBranch)
	}
}

// ListDepartments returns all departments
// @Summary      List departments
// @Tags         organization
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]service.DepartmentResponse}
// @Router       /api/departments [get]
func (h *OrgHandler) ListDepartments(c *gin.Context) {
	departments, err := h.orgService.ListDepartments(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, departments))
}

// GetDepartment returns a single department by ID
// @Summary      Get department
// @Tags         organization
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Department ID"
// @Success      200  {object}  response.Response{data=service.DepartmentResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/departments/{id} [get]
func (h *OrgHandler) GetDepartment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	department, err := h.orgService.GetDepartment(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, department))
}

// CreateDepartment creates a new department
// @Summary      Create department
// @Tags         organization
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateDepartmentRequest  true  "Create Department Payload"
// @Success      201      {object}  response.Response{data=service.DepartmentResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/departments [post]
func (h *OrgHandler) CreateDepartment(c *gin.Context) {
	var req service.CreateDepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	department, err := h.orgService.CreateDepartment(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, department))
}

// UpdateDepartment updates a department
// @Summary      Update department
// @Tags         organization
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                           true  "Department ID"
// @Param        payload  body      service.UpdateDepartmentRequest  true  "Update Department Payload"
// @Success      200      {object}  response.Response{data=service.DepartmentResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/departments/{id} [put]
func (h *OrgHandler) UpdateDepartment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req service.UpdateDepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	department, err := h.orgService.UpdateDepartment(c.Request.Context(), id, req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, department))
}

// ListBranches returns all branches
// @Summary      List branches
// @Tags         organization
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]service.BranchResponse}
// @Router       /api/branches [get]
func (h *OrgHandler) ListBranches(c *gin.Context) {
	branches, err := h.orgService.ListBranches(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, branches))
}

// GetBranch returns a single branch by ID
// @Summary      Get branch
// @Tags         organization
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Branch ID"
// @Success      200  {object}  response.Response{data=service.BranchResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/branches/{id} [get]
func (h *OrgHandler) GetBranch(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	branch, err := h.orgService.GetBranch(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, branch))
}

// CreateBranch creates a new branch
// @Summary      Create branch
// @Tags         organization
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateBranchRequest  true  "Create Branch Payload"
// @Success      201      {object}  response.Response{data=service.BranchResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/branches [post]
func (h *OrgHandler) CreateBranch(c *gin.Context) {
	var req service.CreateBranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	branch, err := h.orgService.CreateBranch(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, branch))
}

// UpdateBranch updates a branch
// @Summary      Update branch
// @Tags         organization
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                       true  "Branch ID"
// @Param        payload  body      service.UpdateBranchRequest  true  "Update Branch Payload"
// @Success      200      {object}  response.Response{data=service.BranchResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/branches/{id} [put]
func (h *OrgHandler) UpdateBranch(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req service.UpdateBranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	branch, err := h.orgService.UpdateBranch(c.Request.Context(), id, req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, branch))
}
