package service

import (
	"strings"

	"pluto/internal/model"

	"github.com/shopspring/decimal"
)

// Rate sources, mutually exclusive for a single resolution
const (
	RateSourceRule     = "rule"
	RateSourceCatchAll = "catch_all"
	RateSourceDefault  = "default"
)

// Resolution is the outcome of resolving a tax for one transaction context
type Resolution struct {
	Rate   decimal.Decimal
	Rule   *model.TaxRule // nil when the default rate applies
	Source string
}

// RuleName is empty when the default rate applies
func (r Resolution) RuleName() string {
	if r.Rule == nil {
		return ""
	}
	return r.Rule.Name
}

// ResolveRate picks the rate for (isB2C, country) from the tax's rules.
// A country-specific rule wins over the partition's catch-all, which wins over
// the tax default. The store guarantees at most one rule per country and one
// catch-all per partition, so the first match is the only match.
func ResolveRate(tax model.Tax, rules []model.TaxRule, isB2C bool, country string) Resolution {
	fallback := Resolution{Rate: tax.DefaultRate, Source: RateSourceDefault}
	if len(rules) == 0 {
		return fallback
	}

	country = strings.ToUpper(strings.TrimSpace(country))

	var catchAll *model.TaxRule
	for i := range rules {
		rule := &rules[i]
		if rule.IsB2C != isB2C {
			continue
		}
		if rule.CatchAll {
			if catchAll == nil {
				catchAll = rule
			}
			continue
		}
		if country != "" && rule.HasCountry(country) {
			return Resolution{Rate: rule.Rate, Rule: rule, Source: RateSourceRule}
		}
	}

	if catchAll != nil {
		return Resolution{Rate: catchAll.Rate, Rule: catchAll, Source: RateSourceCatchAll}
	}

	return fallback
}
