package handler

import (
	"net/http"

	"github.com/parkkyonghun0510/lc-le-sub001/internal/middleware"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/model"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/service"
	"github.com/parkkyonghun0510/lc-le-sub001/pkg/pagination"
	"github.com/parkkyonghun0510/lc-le-sub001/pkg/response"

	"github.com/gin-gonic/gin"
)

type ApplicationHandler struct {
	applicationService service.ApplicationService
}

func NewApplicationHandler(applicationService service.ApplicationService) *ApplicationHandler {
	return &ApplicationHandler{applicationService: applicationService}
}

func (h *ApplicationHandler) RegisterRoutes(router *gin.RouterGroup, guard *middleware.Guard) {
	applications := router.Group("/api/applications")
	{
		applications.POST("", guard.RequirePermission(model.ResourceApplication, model.ActionCreate), h.CreateApplication)
		applications.GET("", guard.RequirePermission(model.ResourceApplication, model.ActionRead), h.ListApplications)
		applications.GET("/:id", guard.RequirePermission(model.ResourceApplication, model.ActionRead), h.GetApplication)
		applications.PUT("/:id", guard.RequirePermission(model.ResourceApplication, model.ActionUpdate), h.UpdateApplication)
		applications.POST("/:id/submit", guard.RequirePermission(model.ResourceApplication, model.ActionUpdate), h.SubmitApplication)
		applications.POST("/:id/review", guard.RequirePermission(model.ResourceApplication, model.ActionApprove), h.StartReview)
		applications.POST("/:id/approve", guard.RequirePermission(model.ResourceApplication, model.ActionApprove), h.ApproveApplication)
		applications.POST("/:id/reject", guard.RequirePermission(model.ResourceApplication, model.ActionReject), h.RejectApplication)
	}
}

// CreateApplication creates a new loan application in DRAFT
// @Summary      Create application
// @Description  Creates a new loan application in DRAFT status and assigns it an application number
// @Tags         applications
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateApplicationRequest  true  "Create Application Payload"
// @Success      201      {object}  response.Response{data=service.ApplicationResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/applications [post]
func (h *ApplicationHandler) CreateApplication(c *gin.Context) {
	var req service.CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	app, err := h.applicationService.Create(c.Request.Context(), middleware.ActorFrom(c), req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, app))
}

// ListApplications returns a paginated, filtered list of applications
// @Summary      List applications
// @Description  Retrieves a paginated list of loan applications with optional filters
// @Tags         applications
// @Security     BearerAuth
// @Produce      json
// @Param        status         query     string  false  "Filter by status (DRAFT, SUBMITTED, UNDER_REVIEW, APPROVED, REJECTED)"
// @Param        department_id  query     string  false  "Filter by department"
// @Param        branch_id      query     string  false  "Filter by branch"
// @Param        created_by     query     string  false  "Filter by creator"
// @Param        search         query     string  false  "Search in customer name and application number"
// @Param        page           query     int     false  "Page number (default 1)"
// @Param        limit          query     int     false  "Number of items per page (default 20)"
// @Success      200            {object}  response.Response{data=object}
// @Failure      400            {object}  response.Response
// @Router       /api/applications [get]
func (h *ApplicationHandler) ListApplications(c *gin.Context) {
	var req service.ListApplicationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "Invalid query parameters: "+err.Error())
		return
	}
	req.Page, req.Limit = pagination.Normalize(req.Page, req.Limit)

	apps, total, err := h.applicationService.List(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Paged(http.StatusOK, "applications", apps, total, req.Page, req.Limit))
}

// GetApplication returns a single application by ID
// @Summary      Get application
// @Tags         applications
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Application ID"
// @Success      200  {object}  response.Response{data=service.ApplicationResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/applications/{id} [get]
func (h *ApplicationHandler) GetApplication(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	app, err := h.applicationService.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, app))
}

// UpdateApplication updates a DRAFT application
// @Summary      Update application
// @Description  Updates customer and loan details; only DRAFT applications can be edited
// @Tags         applications
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                            true  "Application ID"
// @Param        payload  body      service.UpdateApplicationRequest  true  "Update Application Payload"
// @Success      200      {object}  response.Response{data=service.ApplicationResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/applications/{id} [put]
func (h *ApplicationHandler) UpdateApplication(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req service.UpdateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	app, err := h.applicationService.Update(c.Request.Context(), middleware.ActorFrom(c), id, req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, app))
}

// SubmitApplication moves a DRAFT application to SUBMITTED
// @Summary      Submit application
// @Tags         applications
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Application ID"
// @Success      200  {object}  response.Response{data=service.ApplicationResponse}
// @Failure      409  {object}  response.Response
// @Router       /api/applications/{id}/submit [post]
func (h *ApplicationHandler) SubmitApplication(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	app, err := h.applicationService.Submit(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, app))
}

// StartReview moves a SUBMITTED application to UNDER_REVIEW
// @Summary      Start review
// @Description  Claims a submitted application for review by the calling user
// @Tags         applications
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Application ID"
// @Success      200  {object}  response.Response{data=service.ApplicationResponse}
// @Failure      409  {object}  response.Response
// @Router       /api/applications/{id}/review [post]
func (h *ApplicationHandler) StartReview(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	app, err := h.applicationService.StartReview(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, app))
}

// ApproveApplication approves an application
// @Summary      Approve application
// @Description  Approves a submitted or in-review application; the approved amount defaults to the requested one
// @Tags         applications
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                             true   "Application ID"
// @Param        payload  body      service.ApproveApplicationRequest  false  "Approve Payload"
// @Success      200      {object}  response.Response{data=service.ApplicationResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/applications/{id}/approve [post]
func (h *ApplicationHandler) ApproveApplication(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req service.ApproveApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	app, err := h.applicationService.Approve(c.Request.Context(), middleware.ActorFrom(c), id, req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, app))
}

// RejectApplication rejects an application with a reason
// @Summary      Reject application
// @Tags         applications
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                            true  "Application ID"
// @Param        payload  body      service.RejectApplicationRequest  true  "Reject Payload"
// @Success      200      {object}  response.Response{data=service.ApplicationResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/applications/{id}/reject [post]
func (h *ApplicationHandler) RejectApplication(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req service.RejectApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	app, err := h.applicationService.Reject(c.Request.Context(), middleware.ActorFrom(c), id, req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, app))
}
