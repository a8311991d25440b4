package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Partition scopes the no-overlap invariant: within one (tax, b2c) pair every
// country belongs to at most one rule and at most one rule is a catch-all.
type Partition struct {
	TaxID uuid.UUID
	IsB2C bool
}

// TaxRule overrides the tax default rate for a set of countries, or for every
// unclaimed country when it has none (catch-all).
type TaxRule struct {
	ID        uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	TaxID     uuid.UUID        `gorm:"type:uuid;not null;index:idx_tax_rules_partition" json:"tax_id"`
	IsB2C     bool             `gorm:"not null;default:false;index:idx_tax_rules_partition" json:"b2c"`
	Name      string           `gorm:"type:varchar(250);not null" json:"name"`
	Rate      decimal.Decimal  `gorm:"type:decimal(10,4);not null;default:0" json:"rate"`
	CatchAll  bool             `gorm:"not null;default:false" json:"catch_all"` // kept in sync with len(Countries) == 0
	Countries []TaxRuleCountry `gorm:"foreignKey:TaxRuleID;constraint:OnDelete:CASCADE" json:"countries"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func (r TaxRule) Partition() Partition {
	return Partition{TaxID: r.TaxID, IsB2C: r.IsB2C}
}

// CountryCodes returns the rule's country set in stored order
func (r TaxRule) CountryCodes() []string {
	codes := make([]string, 0, len(r.Countries))
	for _, c := range r.Countries {
		codes = append(codes, c.CountryCode)
	}
	return codes
}

// HasCountry reports whether the rule claims code
func (r TaxRule) HasCountry(code string) bool {
	for _, c := range r.Countries {
		if c.CountryCode == code {
			return true
		}
	}
	return false
}

// TaxRuleCountry links a rule to one country. The partition key is copied from
// the owning rule so the store can enforce uniqueness of a country per partition.
type TaxRuleCountry struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"-"`
	TaxRuleID   uuid.UUID `gorm:"type:uuid;not null;index" json:"-"`
	TaxID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_tax_rule_countries_partition" json:"-"`
	IsB2C       bool      `gorm:"not null;uniqueIndex:idx_tax_rule_countries_partition" json:"-"`
	CountryCode string    `gorm:"type:varchar(3);not null;uniqueIndex:idx_tax_rule_countries_partition" json:"country_code"`
}
