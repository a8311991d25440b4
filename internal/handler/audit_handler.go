package handler

import (
	"net/http"

	"pluto/internal/service"
	"pluto/pkg/pagination"
	"pluto/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
}

func NewAuditHandler(auditService service.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

// RegisterRoutes expects a group scoped to /api/companies/:company_id
func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/audit-logs", h.GetAuditLogs)
}

// GetAuditLogs returns the company's tax configuration history, newest first
// @Summary      Get audit logs
// @Tags         audit
// @Produce      json
// @Param        company_id   path      string  true   "Company ID"
// @Param        x-user-uuid  header    string  true   "User UUID"
// @Param        page         query     int     false  "Page number (default 1)"
// @Param        limit        query     int     false  "Number of items per page (default 20)"
// @Success      200          {object}  response.Response{data=response.PaginatedData{items=[]service.AuditLogResponse}}
// @Router       /api/companies/{company_id}/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	params := pagination.Parse(c)

	logs, total, err := h.auditService.GetAuditLogs(c.Request.Context(), c.Param("company_id"), params.Page, params.Limit)
	if err != nil {
		_ = c.Error(err)
		return
	}

	ok(c, http.StatusOK, response.SuccessWithPagination(http.StatusOK, logs, params.Page, params.Limit, total))
}
