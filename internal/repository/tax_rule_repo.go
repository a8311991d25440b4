package repository

import (
	"context"

	"pluto/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TaxRuleRepository interface {
	// Create inserts the rule row only; country edges go through CreateCountries.
	Create(ctx context.Context, rule *model.TaxRule) error
	Update(ctx context.Context, rule *model.TaxRule) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByTaxID(ctx context.Context, taxID uuid.UUID) error
	FindByID(ctx context.Context, taxID, id uuid.UUID) (*model.TaxRule, error)
	ListByTax(ctx context.Context, taxID uuid.UUID) ([]model.TaxRule, error)
	CountByTaxIDs(ctx context.Context, taxIDs []uuid.UUID) (map[uuid.UUID]int64, error)

	CreateCountries(ctx context.Context, countries []model.TaxRuleCountry) error
	DeleteCountriesByRuleID(ctx context.Context, ruleID uuid.UUID) error
	DeleteCountriesByTaxID(ctx context.Context, taxID uuid.UUID) error

	// FindClaimedCountries returns the subset of codes already claimed by a rule
	// of the partition other than excludeRuleID.
	FindClaimedCountries(ctx context.Context, p model.Partition, codes []string, excludeRuleID *uuid.UUID) ([]string, error)
	// ExistsCatchAll reports whether the partition already has a catch-all rule
	// other than excludeRuleID.
	ExistsCatchAll(ctx context.Context, p model.Partition, excludeRuleID *uuid.UUID) (bool, error)
}

type taxRuleRepository struct {
	db *gorm.DB
}

func NewTaxRuleRepository(db *gorm.DB) TaxRuleRepository {
	return &taxRuleRepository{db: db}
}

func (r *taxRuleRepository) Create(ctx context.Context, rule *model.TaxRule) error {
	return translateError(GetDB(ctx, r.db).Omit(clause.Associations).Create(rule).Error, "tax rule")
}

func (r *taxRuleRepository) Update(ctx context.Context, rule *model.TaxRule) error {
	return translateError(GetDB(ctx, r.db).Omit(clause.Associations).Save(rule).Error, "tax rule")
}

func (r *taxRuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.TaxRule{})
	if result.Error != nil {
		return translateError(result.Error, "tax rule")
	}
	if result.RowsAffected == 0 {
		return notFound("tax rule")
	}
	return nil
}

func (r *taxRuleRepository) DeleteByTaxID(ctx context.Context, taxID uuid.UUID) error {
	return translateError(GetDB(ctx, r.db).Where("tax_id = ?", taxID).Delete(&model.TaxRule{}).Error, "tax rules")
}

func (r *taxRuleRepository) FindByID(ctx context.Context, taxID, id uuid.UUID) (*model.TaxRule, error) {
	var rule model.TaxRule
	if err := GetDB(ctx, r.db).
		Preload("Countries", orderByCountry).
		Where("tax_id = ? AND id = ?", taxID, id).
		First(&rule).Error; err != nil {
		return nil, translateError(err, "tax rule")
	}
	return &rule, nil
}

func (r *taxRuleRepository) ListByTax(ctx context.Context, taxID uuid.UUID) ([]model.TaxRule, error) {
	var rules []model.TaxRule
	if err := GetDB(ctx, r.db).
		Preload("Countries", orderByCountry).
		Where("tax_id = ?", taxID).
		Order("is_b2c asc, created_at asc").
		Find(&rules).Error; err != nil {
		return nil, translateError(err, "tax rules")
	}
	return rules, nil
}

func (r *taxRuleRepository) CountByTaxIDs(ctx context.Context, taxIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	counts := make(map[uuid.UUID]int64, len(taxIDs))
	if len(taxIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		TaxID uuid.UUID
		Count int64
	}
	if err := GetDB(ctx, r.db).Model(&model.TaxRule{}).
		Select("tax_id, count(*) as count").
		Where("tax_id IN ?", taxIDs).
		Group("tax_id").
		Scan(&rows).Error; err != nil {
		return nil, translateError(err, "tax rules")
	}

	for _, row := range rows {
		counts[row.TaxID] = row.Count
	}
	return counts, nil
}

func (r *taxRuleRepository) CreateCountries(ctx context.Context, countries []model.TaxRuleCountry) error {
	if len(countries) == 0 {
		return nil
	}
	return translateError(GetDB(ctx, r.db).Create(&countries).Error, "tax rule countries")
}

func (r *taxRuleRepository) DeleteCountriesByRuleID(ctx context.Context, ruleID uuid.UUID) error {
	return translateError(GetDB(ctx, r.db).Where("tax_rule_id = ?", ruleID).Delete(&model.TaxRuleCountry{}).Error, "tax rule countries")
}

func (r *taxRuleRepository) DeleteCountriesByTaxID(ctx context.Context, taxID uuid.UUID) error {
	return translateError(GetDB(ctx, r.db).Where("tax_id = ?", taxID).Delete(&model.TaxRuleCountry{}).Error, "tax rule countries")
}

func (r *taxRuleRepository) FindClaimedCountries(ctx context.Context, p model.Partition, codes []string, excludeRuleID *uuid.UUID) ([]string, error) {
	claimed := []string{}
	if len(codes) == 0 {
		return claimed, nil
	}

	query := GetDB(ctx, r.db).Model(&model.TaxRuleCountry{}).
		Where("tax_id = ? AND is_b2c = ? AND country_code IN ?", p.TaxID, p.IsB2C, codes)
	if excludeRuleID != nil {
		query = query.Where("tax_rule_id <> ?", *excludeRuleID)
	}

	if err := query.Order("country_code asc").Pluck("country_code", &claimed).Error; err != nil {
		return nil, translateError(err, "tax rule countries")
	}
	return claimed, nil
}

func (r *taxRuleRepository) ExistsCatchAll(ctx context.Context, p model.Partition, excludeRuleID *uuid.UUID) (bool, error) {
	query := GetDB(ctx, r.db).Model(&model.TaxRule{}).
		Where("tax_id = ? AND is_b2c = ? AND catch_all = ?", p.TaxID, p.IsB2C, true)
	if excludeRuleID != nil {
		query = query.Where("id <> ?", *excludeRuleID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, translateError(err, "tax rules")
	}
	return count > 0, nil
}

func orderByCountry(db *gorm.DB) *gorm.DB {
	return db.Order("country_code asc")
}
