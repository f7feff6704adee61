package handler

import (
	"net/http"
	"strings"

	"github.com/parkkyonghun0510/lc-le-sub001/internal/middleware"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/model"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/service"
	"github.com/parkkyonghun0510/lc-le-sub001/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type TemplateHandler struct {
	templateService service.TemplateService
}

func NewTemplateHandler(templateService service.TemplateService) *TemplateHandler {
	return &TemplateHandler{templateService: templateService}
}

func (h *TemplateHandler) RegisterRoutes(router *gin.RouterGroup, guard *middleware.Guard) {
	templates := router.Group("/api/templates")
	{
		read := guard.RequirePermission(model.ResourceSystem, model.ActionRead)
		manage := guard.RequireScopedPermission(model.ResourceSystem, model.ActionManage, model.ScopeGlobal)

		templates.GET("", read, h.ListTemplates)
		templates.GET("/export", read, h.ExportTemplates)
		templates.GET("/suggestions", read, h.GetSuggestions)
		templates.GET("/:id", read, h.GetTemplate)

		templates.POST("", manage, h.CreateTemplate)
		templates.POST("/import", manage, h.ImportTemplates)
		templates.POST("/generate", manage, h.GenerateTemplate)
		templates.POST("/:id/apply", manage, h.ApplyTemplate)
		templates.DELETE("/:id", manage, h.DeleteTemplate)
	}
}

// ListTemplates returns all permission templates
// @Summary      List templates
// @Description  Retrieves all permission templates; pass active_only=true to hide deactivated ones
// @Tags         templates
// @Security     BearerAuth
// @Produce      json
// @Param        active_only  query     bool  false  "Only return active templates"
// @Success      200          {object}  response.Response{data=[]service.TemplateResponse}
// @Failure      500          {object}  response.Response
// @Router       /api/templates [get]
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	activeOnly := c.Query("active_only") == "true"

	templates, err := h.templateService.List(c.Request.Context(), activeOnly)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, templates))
}

// GetTemplate returns a single template by ID
// @Summary      Get template
// @Description  Fetch a single permission template by its UUID
// @Tags         templates
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Template ID"
// @Success      200  {object}  response.Response{data=service.TemplateResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/templates/{id} [get]
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	template, err := h.templateService.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, template))
}

// CreateTemplate creates a new permission template
// @Summary      Create template
// @Description  Creates a named bundle of catalog permissions that can later be applied to roles and users
// @Tags         templates
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateTemplateRequest  true  "Create Template Payload"
// @Success      201      {object}  response.Response{data=service.TemplateResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/templates [post]
func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	var req service.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	template, err := h.templateService.Create(c.Request.Context(), middleware.ActorFrom(c), req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, template))
}

// DeleteTemplate deletes a non-system template
// @Summary      Delete template
// @Description  Deletes a custom template; system templates cannot be deleted
// @Tags         templates
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Template ID"
// @Success      200  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/templates/{id} [delete]
func (h *TemplateHandler) DeleteTemplate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.templateService.Delete(c.Request.Context(), middleware.ActorFrom(c), id); err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Template deleted successfully"}))
}

// ApplyTemplate applies a template to a role or a user
// @Summary      Apply template
// @Description  Grants every permission in the template to the target role or user; already granted entries are skipped
// @Tags         templates
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                        true  "Template ID"
// @Param        payload  body      service.ApplyTemplateRequest  true  "Apply Payload (exactly one of role_id or user_id)"
// @Success      200      {object}  response.Response{data=service.ApplyTemplateResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/templates/{id}/apply [post]
func (h *TemplateHandler) ApplyTemplate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req service.ApplyTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	result, err := h.templateService.Apply(c.Request.Context(), middleware.ActorFrom(c), id, req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// ExportTemplates exports templates as portable documents
// @Summary      Export templates
// @Description  Exports templates with natural permission keys instead of ids so they can be imported elsewhere
// @Tags         templates
// @Security     BearerAuth
// @Produce      json
// @Param        ids  query     string  false  "Comma-separated template IDs; all active templates when omitted"
// @Success      200  {object}  response.Response{data=[]service.ExportedTemplate}
// @Failure      400  {object}  response.Response
// @Router       /api/templates/export [get]
func (h *TemplateHandler) ExportTemplates(c *gin.Context) {
	var ids []uuid.UUID
	if raw := c.Query("ids"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := uuid.Parse(strings.TrimSpace(part))
			if err != nil {
				badRequest(c, "Invalid template id: "+part)
				return
			}
			ids = append(ids, id)
		}
	}

	exported, err := h.templateService.Export(c.Request.Context(), ids)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, exported))
}

// ImportTemplates imports previously exported templates
// @Summary      Import templates
// @Description  Imports a batch of exported templates, mapping permission keys back to this environment's catalog
// @Tags         templates
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.ImportTemplatesRequest  true  "Import Payload"
// @Success      200      {object}  response.Response{data=service.ImportTemplatesResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/templates/import [post]
func (h *TemplateHandler) ImportTemplates(c *gin.Context) {
	var req service.ImportTemplatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	result, err := h.templateService.Import(c.Request.Context(), middleware.ActorFrom(c), req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// GenerateTemplate builds a template from existing roles
// @Summary      Generate template from roles
// @Description  Creates a template holding the union of the selected roles' granted permissions
// @Tags         templates
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.GenerateTemplateRequest  true  "Generate Payload"
// @Success      201      {object}  response.Response{data=service.TemplateResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/templates/generate [post]
func (h *TemplateHandler) GenerateTemplate(c *gin.Context) {
	var req service.GenerateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	template, err := h.templateService.GenerateFromRoles(c.Request.Context(), middleware.ActorFrom(c), req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, template))
}

// GetSuggestions analyzes role grants and suggests templates
// @Summary      Suggest templates
// @Description  Mines existing role grants for template candidates; mode is pattern, usage or similarity
// @Tags         templates
// @Security     BearerAuth
// @Produce      json
// @Param        mode  query     string  false  "Analysis mode (pattern, usage, similarity); defaults to pattern"
// @Success      200   {object}  response.Response{data=service.TemplateSuggestions}
// @Failure      400   {object}  response.Response
// @Router       /api/templates/suggestions [get]
func (h *TemplateHandler) GetSuggestions(c *gin.Context) {
	mode := c.DefaultQuery("mode", service.SuggestionModePattern)

	suggestions, err := h.templateService.Suggest(c.Request.Context(), mode)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, suggestions))
}
