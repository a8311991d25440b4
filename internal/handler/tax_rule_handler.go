package handler

import (
	"net/http"

	"pluto/internal/middleware"
	"pluto/internal/service"
	"pluto/pkg/response"

	"github.com/gin-gonic/gin"
)

type TaxRuleHandler struct {
	ruleService service.TaxRuleService
}

func NewTaxRuleHandler(ruleService service.TaxRuleService) *TaxRuleHandler {
	return &TaxRuleHandler{ruleService: ruleService}
}

// RegisterRoutes expects a group scoped to /api/companies/:company_id
func (h *TaxRuleHandler) RegisterRoutes(router *gin.RouterGroup) {
	rules := router.Group("/taxes/:tax_id/rules")
	{
		rules.GET("", h.ListRules)
		rules.POST("", h.CreateRule)
		rules.PUT("/:rule_id", h.UpdateRule)
		rules.DELETE("/:rule_id", h.DeleteRule)
	}
}

// ListRules returns every rule of a tax with its countries
// @Summary      List tax rules
// @Tags         tax-rules
// @Produce      json
// @Param        company_id   path    string  true  "Company ID"
// @Param        tax_id       path    string  true  "Tax ID"
// @Param        x-user-uuid  header  string  true  "User UUID"
// @Success      200  {object}  response.Response{data=[]service.TaxRuleResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/companies/{company_id}/taxes/{tax_id}/rules [get]
func (h *TaxRuleHandler) ListRules(c *gin.Context) {
	rules, err := h.ruleService.ListRules(c.Request.Context(), c.Param("company_id"), c.Param("tax_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	ok(c, http.StatusOK, response.Success(http.StatusOK, rules))
}

// CreateRule adds a rule to a tax. An empty country list creates the
// catch-all of the (tax, b2c) partition.
// @Summary      Create tax rule
// @Tags         tax-rules
// @Accept       json
// @Produce      json
// @Param        company_id   path    string                  true  "Company ID"
// @Param        tax_id       path    string                  true  "Tax ID"
// @Param        x-user-uuid  header  string                  true  "User UUID"
// @Param        payload      body    service.TaxRuleRequest  true  "Rule payload"
// @Success      201  {object}  response.Response{data=service.TaxRuleResponse}
// @Failure      400  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/companies/{company_id}/taxes/{tax_id}/rules [post]
func (h *TaxRuleHandler) CreateRule(c *gin.Context) {
	var req service.TaxRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(invalidPayload(err))
		return
	}

	rule, err := h.ruleService.CreateRule(c.Request.Context(), c.Param("company_id"), c.Param("tax_id"), req, middleware.GetUserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	ok(c, http.StatusCreated, response.Success(http.StatusCreated, rule))
}

// UpdateRule replaces a rule's name, value, b2c flag and country set
// @Summary      Update tax rule
// @Tags         tax-rules
// @Accept       json
// @Produce      json
// @Param        company_id   path    string                  true  "Company ID"
// @Param        tax_id       path    string                  true  "Tax ID"
// @Param        rule_id      path    string                  true  "Rule ID"
// @Param        x-user-uuid  header  string                  true  "User UUID"
// @Param        payload      body    service.TaxRuleRequest  true  "Rule payload"
// @Success      200  {object}  response.Response{data=service.TaxRuleResponse}
// @Failure      400  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/companies/{company_id}/taxes/{tax_id}/rules/{rule_id} [put]
func (h *TaxRuleHandler) UpdateRule(c *gin.Context) {
	var req service.TaxRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(invalidPayload(err))
		return
	}

	rule, err := h.ruleService.UpdateRule(c.Request.Context(), c.Param("company_id"), c.Param("tax_id"), c.Param("rule_id"), req, middleware.GetUserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	ok(c, http.StatusOK, response.Success(http.StatusOK, rule))
}

// DeleteRule removes a rule and its countries
// @Summary      Delete tax rule
// @Tags         tax-rules
// @Produce      json
// @Param        company_id   path    string  true  "Company ID"
// @Param        tax_id       path    string  true  "Tax ID"
// @Param        rule_id      path    string  true  "Rule ID"
// @Param        x-user-uuid  header  string  true  "User UUID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/companies/{company_id}/taxes/{tax_id}/rules/{rule_id} [delete]
func (h *TaxRuleHandler) DeleteRule(c *gin.Context) {
	err := h.ruleService.DeleteRule(c.Request.Context(), c.Param("company_id"), c.Param("tax_id"), c.Param("rule_id"), middleware.GetUserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	ok(c, http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "successfully deleted the tax rule"}))
}
