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

type AuditHandler struct {
	auditService service.AuditService
}

func NewAuditHandler(auditService service.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup, guard *middleware.Guard) {
	group := router.Group("/api/audit-logs")
	group.Use(guard.RequirePermission(model.ResourceAudit, model.ActionRead))
	{
		group.GET("", h.GetAuditLogs)
	}
}

// GetAuditLogs retrieves paginated permission audit entries with filters
// @Summary      Get audit logs
// @Description  Retrieves the permission audit trail, newest first, with optional filters
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        action          query     string  false  "Filter by action (PERMISSION_GRANTED, ROLE_ASSIGNED, ...)"
// @Param        entity_type     query     string  false  "Filter by entity type (permission, role, user_role, ...)"
// @Param        user_id         query     string  false  "Filter by acting user ID"
// @Param        target_user_id  query     string  false  "Filter by target user ID"
// @Param        from            query     string  false  "Only entries at or after this RFC3339 timestamp"
// @Param        to              query     string  false  "Only entries at or before this RFC3339 timestamp"
// @Param        search          query     string  false  "Free-text match against reason and details"
// @Param        page            query     int     false  "Page number (default 1)"
// @Param        limit           query     int     false  "Number of items per page (default 20)"
// @Success      200             {object}  response.Response{data=object}
// @Failure      400             {object}  response.Response
// @Router       /api/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	var req service.AuditQueryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "Invalid query parameters: "+err.Error())
		return
	}

	p := pagination.Parse(c)

	logs, total, err := h.auditService.List(c.Request.Context(), req, p.Page, p.Limit)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Paged(http.StatusOK, "logs", logs, total, p.Page, p.Limit))
}
