package handler

import (
	"net/http"
	"strconv"

	ierr "pluto/internal/errors"
	"pluto/internal/middleware"
	"pluto/internal/service"
	"pluto/pkg/pagination"
	"pluto/pkg/response"

	"github.com/gin-gonic/gin"
)

type TaxHandler struct {
	taxService service.TaxService
}

func NewTaxHandler(taxService service.TaxService) *TaxHandler {
	return &TaxHandler{taxService: taxService}
}

// RegisterRoutes expects a group scoped to /api/companies/:company_id
func (h *TaxHandler) RegisterRoutes(router *gin.RouterGroup) {
	taxes := router.Group("/taxes")
	{
		taxes.GET("", h.ListTaxes)
		taxes.POST("", h.CreateTax)
		taxes.GET("/:tax_id", h.GetTax)
		taxes.PUT("/:tax_id", h.UpdateTax)
		taxes.DELETE("/:tax_id", h.DeleteTax)
		taxes.GET("/:tax_id/resolve", h.ResolveRate)
	}
}

// ListTaxes returns the company's taxes with their rule counts
// @Summary      List taxes
// @Tags         taxes
// @Produce      json
// @Param        company_id     path      string  true   "Company ID"
// @Param        x-user-uuid    header    string  true   "User UUID"
// @Param        page           query     int     false  "Page number (default: 1)"
// @Param        limit          query     int     false  "Items per page (default: 20)"
// @Success      200  {object}  response.Response{data=response.PaginatedData{items=[]service.TaxResponse}}
// @Failure      401  {object}  response.Response
// @Router       /api/companies/{company_id}/taxes [get]
func (h *TaxHandler) ListTaxes(c *gin.Context) {
	params := pagination.Parse(c)

	taxes, total, err := h.taxService.ListTaxes(c.Request.Context(), c.Param("company_id"), params.Page, params.Limit)
	if err != nil {
		_ = c.Error(err)
		return
	}

	ok(c, http.StatusOK, response.SuccessWithPagination(http.StatusOK, taxes, params.Page, params.Limit, total))
}

// CreateTax creates a tax with a default rate
// @Summary      Create tax
// @Tags         taxes
// @Accept       json
// @Produce      json
// @Param        company_id   path    string                    true  "Company ID"
// @Param        x-user-uuid  header  string                    true  "User UUID"
// @Param        payload      body    service.CreateTaxRequest  true  "Tax payload"
// @Success      201  {object}  response.Response{data=service.TaxResponse}
// @Failure      400  {object}  response.Response
// @Router       /api/companies/{company_id}/taxes [post]
func (h *TaxHandler) CreateTax(c *gin.Context) {
	var req service.CreateTaxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(invalidPayload(err))
		return
	}

	tax, err := h.taxService.CreateTax(c.Request.Context(), c.Param("company_id"), req, middleware.GetUserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	ok(c, http.StatusCreated, response.Success(http.StatusCreated, tax))
}

// GetTax returns a single tax
// @Summary      Get tax
// @Tags         taxes
// @Produce      json
// @Param        company_id   path    string  true  "Company ID"
// @Param        tax_id       path    string  true  "Tax ID"
// @Param        x-user-uuid  header  string  true  "User UUID"
// @Success      200  {object}  response.Response{data=service.TaxResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/companies/{company_id}/taxes/{tax_id} [get]
func (h *TaxHandler) GetTax(c *gin.Context) {
	tax, err := h.taxService.GetTax(c.Request.Context(), c.Param("company_id"), c.Param("tax_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	ok(c, http.StatusOK, response.Success(http.StatusOK, tax))
}

// UpdateTax changes the name and default rate of a tax
// @Summary      Update tax
// @Tags         taxes
// @Accept       json
// @Produce      json
// @Param        company_id   path    string                    true  "Company ID"
// @Param        tax_id       path    string                    true  "Tax ID"
// @Param        x-user-uuid  header  string                    true  "User UUID"
// @Param        payload      body    service.UpdateTaxRequest  true  "Update payload"
// @Success      200  {object}  response.Response{data=service.TaxResponse}
// @Failure      400  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/companies/{company_id}/taxes/{tax_id} [put]
func (h *TaxHandler) UpdateTax(c *gin.Context) {
	var req service.UpdateTaxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(invalidPayload(err))
		return
	}

	tax, err := h.taxService.UpdateTax(c.Request.Context(), c.Param("company_id"), c.Param("tax_id"), req, middleware.GetUserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	ok(c, http.StatusOK, response.Success(http.StatusOK, tax))
}

// DeleteTax removes a tax together with its rules
// @Summary      Delete tax
// @Tags         taxes
// @Produce      json
// @Param        company_id   path    string  true  "Company ID"
// @Param        tax_id       path    string  true  "Tax ID"
// @Param        x-user-uuid  header  string  true  "User UUID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/companies/{company_id}/taxes/{tax_id} [delete]
func (h *TaxHandler) DeleteTax(c *gin.Context) {
	if err := h.taxService.DeleteTax(c.Request.Context(), c.Param("company_id"), c.Param("tax_id"), middleware.GetUserID(c)); err != nil {
		_ = c.Error(err)
		return
	}

	ok(c, http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "successfully deleted the tax and its rules"}))
}

// ResolveRate returns the rate that applies to a b2c flag and country
// @Summary      Resolve tax rate
// @Tags         taxes
// @Produce      json
// @Param        company_id   path    string  true   "Company ID"
// @Param        tax_id       path    string  true   "Tax ID"
// @Param        x-user-uuid  header  string  true   "User UUID"
// @Param        b2c          query   bool    false  "B2C sale (default: false)"
// @Param        country      query   string  false  "Country code, e.g. DEU"
// @Success      200  {object}  response.Response{data=service.ResolutionResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/companies/{company_id}/taxes/{tax_id}/resolve [get]
func (h *TaxHandler) ResolveRate(c *gin.Context) {
	isB2C := false
	if raw := c.Query("b2c"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			_ = c.Error(ierr.WithError(err).
				WithHint("b2c must be a boolean").
				Mark(ierr.ErrValidation))
			return
		}
		isB2C = parsed
	}

	res, err := h.taxService.ResolveRate(c.Request.Context(), c.Param("company_id"), c.Param("tax_id"), isB2C, c.Query("country"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	ok(c, http.StatusOK, response.Success(http.StatusOK, res))
}
