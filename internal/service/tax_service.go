package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	ierr "pluto/internal/errors"
	"pluto/internal/logger"
	"pluto/internal/model"
	"pluto/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- DTOs ---

type CreateTaxRequest struct {
	Name        string           `json:"tax_name" binding:"required"`
	DefaultRate *decimal.Decimal `json:"default_tax" binding:"required"` // percent, e.g. 19 = 19%
}

type UpdateTaxRequest struct {
	Name        string           `json:"tax_name" binding:"required"`
	DefaultRate *decimal.Decimal `json:"default_tax" binding:"required"`
}

type TaxResponse struct {
	ID              string `json:"tax_id"`
	CompanyID       string `json:"company_id"`
	Name            string `json:"name"`
	DefaultRate     string `json:"default_rate"`
	DefaultRateRead string `json:"default_rate_read"`
	Rules           int64  `json:"rules"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

type ResolutionResponse struct {
	TaxID    string `json:"tax_id"`
	B2C      bool   `json:"b2c"`
	Country  string `json:"country"`
	Rate     string `json:"rate"`
	RuleID   string `json:"rule_id,omitempty"`
	RuleName string `json:"rule_name"`
	Source   string `json:"source"`
}

// --- Interface ---

type TaxService interface {
	ListTaxes(ctx context.Context, companyID string, page, limit int) ([]TaxResponse, int64, error)
	GetTax(ctx context.Context, companyID, taxID string) (TaxResponse, error)
	CreateTax(ctx context.Context, companyID string, req CreateTaxRequest, userID string) (TaxResponse, error)
	UpdateTax(ctx context.Context, companyID, taxID string, req UpdateTaxRequest, userID string) (TaxResponse, error)
	DeleteTax(ctx context.Context, companyID, taxID, userID string) error
	ResolveRate(ctx context.Context, companyID, taxID string, isB2C bool, country string) (ResolutionResponse, error)
}

type taxService struct {
	taxRepo   repository.TaxRepository
	ruleRepo  repository.TaxRuleRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
	events    EventPublisher
	logger    *logger.Logger
}

func NewTaxService(
	taxRepo repository.TaxRepository,
	ruleRepo repository.TaxRuleRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	events EventPublisher,
	log *logger.Logger,
) TaxService {
	return &taxService{
		taxRepo:   taxRepo,
		ruleRepo:  ruleRepo,
		auditRepo: auditRepo,
		txManager: txManager,
		events:    events,
		logger:    log,
	}
}

// --- Implementation ---

func (s *taxService) ListTaxes(ctx context.Context, companyID string, page, limit int) ([]TaxResponse, int64, error) {
	taxes, total, err := s.taxRepo.List(ctx, companyID, page, limit)
	if err != nil {
		return nil, 0, err
	}

	ids := make([]uuid.UUID, 0, len(taxes))
	for _, t := range taxes {
		ids = append(ids, t.ID)
	}
	counts, err := s.ruleRepo.CountByTaxIDs(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	res := make([]TaxResponse, 0, len(taxes))
	for _, t := range taxes {
		res = append(res, toTaxResponse(t, counts[t.ID]))
	}

	return res, total, nil
}

func (s *taxService) GetTax(ctx context.Context, companyID, taxID string) (TaxResponse, error) {
	id, err := parseID(taxID, "tax")
	if err != nil {
		return TaxResponse{}, err
	}

	tax, err := s.taxRepo.FindByID(ctx, companyID, id)
	if err != nil {
		return TaxResponse{}, err
	}

	counts, err := s.ruleRepo.CountByTaxIDs(ctx, []uuid.UUID{tax.ID})
	if err != nil {
		return TaxResponse{}, err
	}

	return toTaxResponse(*tax, counts[tax.ID]), nil
}

func (s *taxService) CreateTax(ctx context.Context, companyID string, req CreateTaxRequest, userID string) (TaxResponse, error) {
	name, rate, err := validateTaxFields(req.Name, req.DefaultRate)
	if err != nil {
		return TaxResponse{}, err
	}

	tax := model.Tax{
		ID:          uuid.New(),
		CompanyID:   companyID,
		Name:        name,
		DefaultRate: rate,
	}

	if err := s.taxRepo.Create(ctx, &tax); err != nil {
		return TaxResponse{}, err
	}

	s.logger.Infow("created tax", "company_id", companyID, "tax_id", tax.ID)
	writeAuditLog(ctx, s.auditRepo, s.logger, companyID, userID, model.ActionCreateTax, tax.ID.String(), tax.Name, req)
	s.events.Publish(companyID, EventTaxCreated, map[string]interface{}{"tax_id": tax.ID.String()})

	return toTaxResponse(tax, 0), nil
}

// UpdateTax changes name and default rate only; the owning company never changes.
func (s *taxService) UpdateTax(ctx context.Context, companyID, taxID string, req UpdateTaxRequest, userID string) (TaxResponse, error) {
	id, err := parseID(taxID, "tax")
	if err != nil {
		return TaxResponse{}, err
	}

	name, rate, err := validateTaxFields(req.Name, req.DefaultRate)
	if err != nil {
		return TaxResponse{}, err
	}

	tax, err := s.taxRepo.FindByID(ctx, companyID, id)
	if err != nil {
		return TaxResponse{}, err
	}

	tax.Name = name
	tax.DefaultRate = rate
	if err := s.taxRepo.Update(ctx, tax); err != nil {
		return TaxResponse{}, err
	}

	counts, err := s.ruleRepo.CountByTaxIDs(ctx, []uuid.UUID{tax.ID})
	if err != nil {
		return TaxResponse{}, err
	}

	writeAuditLog(ctx, s.auditRepo, s.logger, companyID, userID, model.ActionUpdateTax, tax.ID.String(), tax.Name, req)
	s.events.Publish(companyID, EventTaxUpdated, map[string]interface{}{"tax_id": tax.ID.String()})

	return toTaxResponse(*tax, counts[tax.ID]), nil
}

// DeleteTax removes the tax, its rules and their country links in one transaction.
func (s *taxService) DeleteTax(ctx context.Context, companyID, taxID, userID string) error {
	id, err := parseID(taxID, "tax")
	if err != nil {
		return err
	}

	var deleted *model.Tax
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		tax, err := s.taxRepo.FindByIDForUpdate(txCtx, companyID, id)
		if err != nil {
			return err
		}
		if err := s.ruleRepo.DeleteCountriesByTaxID(txCtx, tax.ID); err != nil {
			return err
		}
		if err := s.ruleRepo.DeleteByTaxID(txCtx, tax.ID); err != nil {
			return err
		}
		if err := s.taxRepo.Delete(txCtx, tax.ID); err != nil {
			return err
		}
		deleted = tax
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Infow("deleted tax", "company_id", companyID, "tax_id", deleted.ID)
	writeAuditLog(ctx, s.auditRepo, s.logger, companyID, userID, model.ActionDeleteTax, deleted.ID.String(), deleted.Name, map[string]string{"deleted_id": taxID})
	s.events.Publish(companyID, EventTaxDeleted, map[string]interface{}{"tax_id": deleted.ID.String()})

	return nil
}

func (s *taxService) ResolveRate(ctx context.Context, companyID, taxID string, isB2C bool, country string) (ResolutionResponse, error) {
	id, err := parseID(taxID, "tax")
	if err != nil {
		return ResolutionResponse{}, err
	}

	tax, err := s.taxRepo.FindByID(ctx, companyID, id)
	if err != nil {
		return ResolutionResponse{}, err
	}

	rules, err := s.ruleRepo.ListByTax(ctx, tax.ID)
	if err != nil {
		return ResolutionResponse{}, err
	}

	resolution := ResolveRate(*tax, rules, isB2C, country)

	res := ResolutionResponse{
		TaxID:    tax.ID.String(),
		B2C:      isB2C,
		Country:  strings.ToUpper(strings.TrimSpace(country)),
		Rate:     resolution.Rate.String(),
		RuleName: resolution.RuleName(),
		Source:   resolution.Source,
	}
	if resolution.Rule != nil {
		res.RuleID = resolution.Rule.ID.String()
	}
	return res, nil
}

// --- Helpers ---

func validateTaxFields(name string, rate *decimal.Decimal) (string, decimal.Decimal, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", decimal.Zero, ierr.NewError("tax name is required").
			WithHint("tax_name is required").
			Mark(ierr.ErrValidation)
	}
	if rate == nil {
		return "", decimal.Zero, ierr.NewError("default rate is required").
			WithHint("default_tax is required").
			Mark(ierr.ErrValidation)
	}
	if err := validateRate(*rate, "default_tax"); err != nil {
		return "", decimal.Zero, err
	}
	return name, *rate, nil
}

// Rates are stored as decimal(10,4).
const RateScale = 4

var maxRate = decimal.New(1, 10-RateScale)

// validateRate rejects values the rate column would round or overflow.
func validateRate(rate decimal.Decimal, field string) error {
	if rate.IsNegative() {
		return ierr.NewError(field + " is negative").
			WithHintf("%s must not be negative", field).
			Mark(ierr.ErrValidation)
	}
	if rate.GreaterThanOrEqual(maxRate) {
		return ierr.NewError(field + " is too large").
			WithHintf("%s must be less than %s", field, maxRate.String()).
			Mark(ierr.ErrValidation)
	}
	if !rate.Equal(rate.Truncate(RateScale)) {
		return ierr.NewError(field + " has too many decimal places").
			WithHintf("%s allows at most %d decimal places", field, RateScale).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// parseID treats malformed ids like unknown ones: neither can be resolved.
func parseID(raw, entity string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, ierr.WithError(err).
			WithHintf("%s not found", entity).
			Mark(ierr.ErrNotFound)
	}
	return id, nil
}

func toTaxResponse(t model.Tax, ruleCount int64) TaxResponse {
	return TaxResponse{
		ID:              t.ID.String(),
		CompanyID:       t.CompanyID,
		Name:            t.Name,
		DefaultRate:     t.DefaultRate.String(),
		DefaultRateRead: t.DefaultRate.String() + "%",
		Rules:           ruleCount,
		CreatedAt:       t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       t.UpdatedAt.Format(time.RFC3339),
	}
}

// writeAuditLog is best-effort: the change is already committed.
func writeAuditLog(ctx context.Context, repo repository.AuditRepository, log *logger.Logger, companyID, userID, action, entityID, entityName string, details interface{}) {
	detailsJSON, _ := json.Marshal(details)

	entry := model.AuditLog{
		ID:         uuid.New(),
		CompanyID:  companyID,
		UserID:     userID,
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(detailsJSON),
	}

	if err := repo.Log(ctx, &entry); err != nil {
		log.Warnw("failed to write audit log", "action", action, "entity_id", entityID, "error", err)
	}
}
