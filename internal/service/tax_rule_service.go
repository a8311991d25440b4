package service

import (
	"context"
	"strings"
	"time"

	"pluto/internal/client"
	ierr "pluto/internal/errors"
	"pluto/internal/logger"
	"pluto/internal/model"
	"pluto/internal/repository"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// MaxCountryCodeLength bounds a single country code (ISO-3166 alpha-3)
const MaxCountryCodeLength = 3

// --- DTOs ---

// TaxRuleRequest is used for both create and edit. An empty country list
// requests a catch-all rule for the (tax, b2c) partition.
type TaxRuleRequest struct {
	Name      string           `json:"tax_rule_name" binding:"required"`
	Rate      *decimal.Decimal `json:"value" binding:"required"` // percent
	IsB2C     bool             `json:"b2c"`
	Countries []string         `json:"countries"`
}

type TaxRuleResponse struct {
	ID        string   `json:"tax_rule_id"`
	TaxID     string   `json:"tax_id"`
	Name      string   `json:"tax_rule_name"`
	Rate      string   `json:"value"`
	IsB2C     bool     `json:"b2c"`
	CatchAll  bool     `json:"catch_all"`
	Countries []string `json:"countries"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

// --- Interface ---

type TaxRuleService interface {
	ListRules(ctx context.Context, companyID, taxID string) ([]TaxRuleResponse, error)
	CreateRule(ctx context.Context, companyID, taxID string, req TaxRuleRequest, userID string) (TaxRuleResponse, error)
	UpdateRule(ctx context.Context, companyID, taxID, ruleID string, req TaxRuleRequest, userID string) (TaxRuleResponse, error)
	DeleteRule(ctx context.Context, companyID, taxID, ruleID, userID string) error
}

type taxRuleService struct {
	taxRepo   repository.TaxRepository
	ruleRepo  repository.TaxRuleRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
	roster    client.CountryRoster
	events    EventPublisher
	logger    *logger.Logger
}

func NewTaxRuleService(
	taxRepo repository.TaxRepository,
	ruleRepo repository.TaxRuleRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	roster client.CountryRoster,
	events EventPublisher,
	log *logger.Logger,
) TaxRuleService {
	return &taxRuleService{
		taxRepo:   taxRepo,
		ruleRepo:  ruleRepo,
		auditRepo: auditRepo,
		txManager: txManager,
		roster:    roster,
		events:    events,
		logger:    log,
	}
}

// --- Implementation ---

func (s *taxRuleService) ListRules(ctx context.Context, companyID, taxID string) ([]TaxRuleResponse, error) {
	id, err := parseID(taxID, "tax")
	if err != nil {
		return nil, err
	}

	tax, err := s.taxRepo.FindByID(ctx, companyID, id)
	if err != nil {
		return nil, err
	}

	rules, err := s.ruleRepo.ListByTax(ctx, tax.ID)
	if err != nil {
		return nil, err
	}

	return lo.Map(rules, func(r model.TaxRule, _ int) TaxRuleResponse {
		return toTaxRuleResponse(r)
	}), nil
}

func (s *taxRuleService) CreateRule(ctx context.Context, companyID, taxID string, req TaxRuleRequest, userID string) (TaxRuleResponse, error) {
	rule, err := s.upsertRule(ctx, companyID, taxID, nil, req)
	if err != nil {
		return TaxRuleResponse{}, err
	}

	s.logger.Infow("created tax rule", "company_id", companyID, "tax_id", rule.TaxID, "rule_id", rule.ID, "catch_all", rule.CatchAll)
	writeAuditLog(ctx, s.auditRepo, s.logger, companyID, userID, model.ActionCreateTaxRule, rule.ID.String(), rule.Name, req)
	s.events.Publish(companyID, EventTaxRuleCreated, ruleEventData(rule))

	return toTaxRuleResponse(*rule), nil
}

func (s *taxRuleService) UpdateRule(ctx context.Context, companyID, taxID, ruleID string, req TaxRuleRequest, userID string) (TaxRuleResponse, error) {
	id, err := parseID(ruleID, "tax rule")
	if err != nil {
		return TaxRuleResponse{}, err
	}

	rule, err := s.upsertRule(ctx, companyID, taxID, &id, req)
	if err != nil {
		return TaxRuleResponse{}, err
	}

	s.logger.Infow("updated tax rule", "company_id", companyID, "tax_id", rule.TaxID, "rule_id", rule.ID, "catch_all", rule.CatchAll)
	writeAuditLog(ctx, s.auditRepo, s.logger, companyID, userID, model.ActionUpdateTaxRule, rule.ID.String(), rule.Name, req)
	s.events.Publish(companyID, EventTaxRuleUpdated, ruleEventData(rule))

	return toTaxRuleResponse(*rule), nil
}

func (s *taxRuleService) DeleteRule(ctx context.Context, companyID, taxID, ruleID, userID string) error {
	tID, err := parseID(taxID, "tax")
	if err != nil {
		return err
	}
	rID, err := parseID(ruleID, "tax rule")
	if err != nil {
		return err
	}

	var deleted *model.TaxRule
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		tax, err := s.taxRepo.FindByIDForUpdate(txCtx, companyID, tID)
		if err != nil {
			return err
		}
		rule, err := s.ruleRepo.FindByID(txCtx, tax.ID, rID)
		if err != nil {
			return err
		}
		if err := s.ruleRepo.DeleteCountriesByRuleID(txCtx, rule.ID); err != nil {
			return err
		}
		if err := s.ruleRepo.Delete(txCtx, rule.ID); err != nil {
			return err
		}
		deleted = rule
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Infow("deleted tax rule", "company_id", companyID, "tax_id", deleted.TaxID, "rule_id", deleted.ID)
	writeAuditLog(ctx, s.auditRepo, s.logger, companyID, userID, model.ActionDeleteTaxRule, deleted.ID.String(), deleted.Name, map[string]string{"deleted_id": ruleID})
	s.events.Publish(companyID, EventTaxRuleDeleted, ruleEventData(deleted))

	return nil
}

// upsertRule validates and commits a rule change while keeping every partition
// free of overlaps. ruleID nil creates a rule.
//
// The roster is consulted before the transaction so no lock is held across a
// network call; everything it does not cover is re-checked under the tax row
// lock, which serialises all mutations of the tax's partitions.
func (s *taxRuleService) upsertRule(ctx context.Context, companyID, taxID string, ruleID *uuid.UUID, req TaxRuleRequest) (*model.TaxRule, error) {
	tID, err := parseID(taxID, "tax")
	if err != nil {
		return nil, err
	}

	name, rate, codes, err := validateRuleRequest(req)
	if err != nil {
		return nil, err
	}

	// Unknown tax or rule wins over a bad country list.
	if _, err := s.taxRepo.FindByID(ctx, companyID, tID); err != nil {
		return nil, err
	}
	if ruleID != nil {
		if _, err := s.ruleRepo.FindByID(ctx, tID, *ruleID); err != nil {
			return nil, err
		}
	}

	validated := []string{}
	if len(codes) > 0 {
		validated, err = s.validateCountries(ctx, codes)
		if err != nil {
			return nil, err
		}
	}

	var result *model.TaxRule
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		tax, err := s.taxRepo.FindByIDForUpdate(txCtx, companyID, tID)
		if err != nil {
			return err
		}

		rule := &model.TaxRule{ID: uuid.New(), TaxID: tax.ID}
		if ruleID != nil {
			rule, err = s.ruleRepo.FindByID(txCtx, tax.ID, *ruleID)
			if err != nil {
				return err
			}
		}

		partition := model.Partition{TaxID: tax.ID, IsB2C: req.IsB2C}
		if err := s.checkPartition(txCtx, partition, validated, ruleID); err != nil {
			return err
		}

		rule.Name = name
		rule.Rate = rate
		rule.IsB2C = req.IsB2C
		rule.CatchAll = len(validated) == 0
		rule.Countries = nil

		if ruleID == nil {
			if err := s.ruleRepo.Create(txCtx, rule); err != nil {
				return err
			}
		} else {
			// Edges are always replaced as a whole, never patched.
			if err := s.ruleRepo.DeleteCountriesByRuleID(txCtx, rule.ID); err != nil {
				return err
			}
			if err := s.ruleRepo.Update(txCtx, rule); err != nil {
				return err
			}
		}

		edges := lo.Map(validated, func(code string, _ int) model.TaxRuleCountry {
			return model.TaxRuleCountry{
				ID:          uuid.New(),
				TaxRuleID:   rule.ID,
				TaxID:       partition.TaxID,
				IsB2C:       partition.IsB2C,
				CountryCode: code,
			}
		})
		if err := s.ruleRepo.CreateCountries(txCtx, edges); err != nil {
			return err
		}

		rule.Countries = edges
		result = rule
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// checkPartition rejects a country set that overlaps another rule of the
// partition, or a second catch-all. excludeRuleID is the rule being edited.
func (s *taxRuleService) checkPartition(ctx context.Context, p model.Partition, codes []string, excludeRuleID *uuid.UUID) error {
	if len(codes) > 0 {
		claimed, err := s.ruleRepo.FindClaimedCountries(ctx, p, codes, excludeRuleID)
		if err != nil {
			return err
		}
		if len(claimed) > 0 {
			return ierr.NewError("country already claimed").
				WithHintf("countries already claimed by another rule: %s", strings.Join(claimed, ", ")).
				WithReportableDetails(map[string]any{
					"tax_id":    p.TaxID.String(),
					"b2c":       p.IsB2C,
					"countries": claimed,
				}).
				Mark(ierr.ErrOverlapConflict)
		}
		return nil
	}

	exists, err := s.ruleRepo.ExistsCatchAll(ctx, p, excludeRuleID)
	if err != nil {
		return err
	}
	if exists {
		return ierr.NewError("catch-all rule already exists").
			WithHint("rule already exists for this partition").
			WithReportableDetails(map[string]any{
				"tax_id": p.TaxID.String(),
				"b2c":    p.IsB2C,
			}).
			Mark(ierr.ErrOverlapConflict)
	}
	return nil
}

// validateCountries fails closed: a roster error is treated like an empty answer.
func (s *taxRuleService) validateCountries(ctx context.Context, codes []string) ([]string, error) {
	validated, err := s.roster.ValidateCountries(ctx, codes)
	if err != nil {
		s.logger.Warnw("country roster unavailable, rejecting country list", "countries", codes, "error", err)
		validated = nil
	}

	if len(validated) == 0 {
		return nil, ierr.NewError("no valid countries").
			WithHint("no valid countries").
			WithReportableDetails(map[string]any{"countries": codes}).
			Mark(ierr.ErrValidation)
	}

	return lo.Uniq(validated), nil
}

// --- Helpers ---

func validateRuleRequest(req TaxRuleRequest) (string, decimal.Decimal, []string, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return "", decimal.Zero, nil, ierr.NewError("tax rule name is required").
			WithHint("tax_rule_name is required").
			Mark(ierr.ErrValidation)
	}
	if req.Rate == nil {
		return "", decimal.Zero, nil, ierr.NewError("tax rule value is required").
			WithHint("value is required").
			Mark(ierr.ErrValidation)
	}
	if err := validateRate(*req.Rate, "value"); err != nil {
		return "", decimal.Zero, nil, err
	}

	codes, err := normalizeCountryCodes(req.Countries)
	if err != nil {
		return "", decimal.Zero, nil, err
	}

	return name, *req.Rate, codes, nil
}

// normalizeCountryCodes trims, upper-cases and de-duplicates codes, keeping
// their first-seen order.
func normalizeCountryCodes(codes []string) ([]string, error) {
	normalized := make([]string, 0, len(codes))
	for _, raw := range codes {
		code := strings.ToUpper(strings.TrimSpace(raw))
		if code == "" || len(code) > MaxCountryCodeLength {
			return nil, ierr.NewError("malformed country code").
				WithHintf("invalid country code %q", raw).
				Mark(ierr.ErrValidation)
		}
		normalized = append(normalized, code)
	}
	return lo.Uniq(normalized), nil
}

func toTaxRuleResponse(r model.TaxRule) TaxRuleResponse {
	return TaxRuleResponse{
		ID:        r.ID.String(),
		TaxID:     r.TaxID.String(),
		Name:      r.Name,
		Rate:      r.Rate.String(),
		IsB2C:     r.IsB2C,
		CatchAll:  r.CatchAll,
		Countries: r.CountryCodes(),
		CreatedAt: r.CreatedAt.Format(time.RFC3339),
		UpdatedAt: r.UpdatedAt.Format(time.RFC3339),
	}
}

func ruleEventData(r *model.TaxRule) map[string]interface{} {
	return map[string]interface{}{
		"tax_id":    r.TaxID.String(),
		"rule_id":   r.ID.String(),
		"b2c":       r.IsB2C,
		"countries": r.CountryCodes(),
	}
}
