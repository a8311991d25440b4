package testutil

import (
	"context"
	"sort"

	"pluto/internal/model"

	"github.com/google/uuid"
)

type InMemoryTaxRuleStore struct {
	db *InMemoryDB
}

func NewInMemoryTaxRuleStore(db *InMemoryDB) *InMemoryTaxRuleStore {
	return &InMemoryTaxRuleStore{db: db}
}

// checkCatchAll mirrors idx_tax_rules_single_catch_all. Caller holds the lock.
func (s *InMemoryTaxRuleStore) checkCatchAll(rule *model.TaxRule) error {
	if !rule.CatchAll {
		return nil
	}
	for _, r := range s.db.rules {
		if r.ID != rule.ID && r.CatchAll && r.Partition() == rule.Partition() {
			return uniqueViolation("idx_tax_rules_single_catch_all")
		}
	}
	return nil
}

func (s *InMemoryTaxRuleStore) Create(ctx context.Context, rule *model.TaxRule) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.taxes[rule.TaxID]; !ok {
		return notFound("tax")
	}
	if err := s.checkCatchAll(rule); err != nil {
		return err
	}

	now := s.db.now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	s.db.seq++

	r := *rule
	r.Countries = nil
	s.db.rules[rule.ID] = &r
	s.db.ruleSeq[rule.ID] = s.db.seq
	return nil
}

func (s *InMemoryTaxRuleStore) Update(ctx context.Context, rule *model.TaxRule) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.rules[rule.ID]; !ok {
		return notFound("tax rule")
	}
	if err := s.checkCatchAll(rule); err != nil {
		return err
	}

	rule.UpdatedAt = s.db.now()
	r := *rule
	r.Countries = nil
	s.db.rules[rule.ID] = &r
	return nil
}

func (s *InMemoryTaxRuleStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.rules[id]; !ok {
		return notFound("tax rule")
	}
	delete(s.db.rules, id)
	delete(s.db.ruleSeq, id)
	return nil
}

func (s *InMemoryTaxRuleStore) DeleteByTaxID(ctx context.Context, taxID uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for id, r := range s.db.rules {
		if r.TaxID == taxID {
			delete(s.db.rules, id)
			delete(s.db.ruleSeq, id)
		}
	}
	return nil
}

func (s *InMemoryTaxRuleStore) FindByID(ctx context.Context, taxID, id uuid.UUID) (*model.TaxRule, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	r, ok := s.db.rules[id]
	if !ok || r.TaxID != taxID {
		return nil, notFound("tax rule")
	}
	out := s.db.withCountries(*r)
	return &out, nil
}

func (s *InMemoryTaxRuleStore) ListByTax(ctx context.Context, taxID uuid.UUID) ([]model.TaxRule, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	return s.db.rulesOf(taxID), nil
}

func (s *InMemoryTaxRuleStore) CountByTaxIDs(ctx context.Context, taxIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	counts := make(map[uuid.UUID]int64, len(taxIDs))
	wanted := make(map[uuid.UUID]bool, len(taxIDs))
	for _, id := range taxIDs {
		wanted[id] = true
	}
	for _, r := range s.db.rules {
		if wanted[r.TaxID] {
			counts[r.TaxID]++
		}
	}
	return counts, nil
}

// CreateCountries mirrors idx_tax_rule_countries_partition and is all or nothing
func (s *InMemoryTaxRuleStore) CreateCountries(ctx context.Context, countries []model.TaxRuleCountry) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	type key struct {
		p    model.Partition
		code string
	}
	taken := make(map[key]bool, len(s.db.countries)+len(countries))
	for _, c := range s.db.countries {
		taken[key{model.Partition{TaxID: c.TaxID, IsB2C: c.IsB2C}, c.CountryCode}] = true
	}
	for _, c := range countries {
		k := key{model.Partition{TaxID: c.TaxID, IsB2C: c.IsB2C}, c.CountryCode}
		if taken[k] {
			return uniqueViolation("idx_tax_rule_countries_partition")
		}
		if _, ok := s.db.rules[c.TaxRuleID]; !ok {
			return notFound("tax rule")
		}
		taken[k] = true
	}

	for _, c := range countries {
		s.db.countries[c.ID] = c
	}
	return nil
}

func (s *InMemoryTaxRuleStore) DeleteCountriesByRuleID(ctx context.Context, ruleID uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for id, c := range s.db.countries {
		if c.TaxRuleID == ruleID {
			delete(s.db.countries, id)
		}
	}
	return nil
}

func (s *InMemoryTaxRuleStore) DeleteCountriesByTaxID(ctx context.Context, taxID uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for id, c := range s.db.countries {
		if c.TaxID == taxID {
			delete(s.db.countries, id)
		}
	}
	return nil
}

func (s *InMemoryTaxRuleStore) FindClaimedCountries(ctx context.Context, p model.Partition, codes []string, excludeRuleID *uuid.UUID) ([]string, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	wanted := make(map[string]bool, len(codes))
	for _, c := range codes {
		wanted[c] = true
	}

	claimed := []string{}
	for _, c := range s.db.countries {
		if c.TaxID != p.TaxID || c.IsB2C != p.IsB2C || !wanted[c.CountryCode] {
			continue
		}
		if excludeRuleID != nil && c.TaxRuleID == *excludeRuleID {
			continue
		}
		claimed = append(claimed, c.CountryCode)
	}
	sort.Strings(claimed)
	return claimed, nil
}

func (s *InMemoryTaxRuleStore) ExistsCatchAll(ctx context.Context, p model.Partition, excludeRuleID *uuid.UUID) (bool, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	for _, r := range s.db.rules {
		if !r.CatchAll || r.Partition() != p {
			continue
		}
		if excludeRuleID != nil && r.ID == *excludeRuleID {
			continue
		}
		return true, nil
	}
	return false, nil
}
