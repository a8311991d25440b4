package testutil

import (
	"sort"
	"sync"
	"time"

	ierr "pluto/internal/errors"
	"pluto/internal/model"

	"github.com/google/uuid"
)

// InMemoryDB is the shared state behind the in-memory repositories. It
// enforces the same unique constraints as the postgres schema.
type InMemoryDB struct {
	mu        sync.RWMutex
	seq       int64
	taxes     map[uuid.UUID]*model.Tax
	rules     map[uuid.UUID]*model.TaxRule
	ruleSeq   map[uuid.UUID]int64
	countries map[uuid.UUID]model.TaxRuleCountry
	audits    []model.AuditLog
	now       func() time.Time
}

func NewInMemoryDB() *InMemoryDB {
	return &InMemoryDB{
		taxes:     make(map[uuid.UUID]*model.Tax),
		rules:     make(map[uuid.UUID]*model.TaxRule),
		ruleSeq:   make(map[uuid.UUID]int64),
		countries: make(map[uuid.UUID]model.TaxRuleCountry),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Clear drops all rows
func (d *InMemoryDB) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.taxes = make(map[uuid.UUID]*model.Tax)
	d.rules = make(map[uuid.UUID]*model.TaxRule)
	d.ruleSeq = make(map[uuid.UUID]int64)
	d.countries = make(map[uuid.UUID]model.TaxRuleCountry)
	d.audits = nil
}

// snapshot copies the tax tables; audit rows are written outside transactions
// and are not rolled back.
type snapshot struct {
	taxes     map[uuid.UUID]*model.Tax
	rules     map[uuid.UUID]*model.TaxRule
	ruleSeq   map[uuid.UUID]int64
	countries map[uuid.UUID]model.TaxRuleCountry
}

func (d *InMemoryDB) snapshot() snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s := snapshot{
		taxes:     make(map[uuid.UUID]*model.Tax, len(d.taxes)),
		rules:     make(map[uuid.UUID]*model.TaxRule, len(d.rules)),
		ruleSeq:   make(map[uuid.UUID]int64, len(d.ruleSeq)),
		countries: make(map[uuid.UUID]model.TaxRuleCountry, len(d.countries)),
	}
	for k, v := range d.taxes {
		t := *v
		s.taxes[k] = &t
	}
	for k, v := range d.rules {
		r := *v
		s.rules[k] = &r
	}
	for k, v := range d.ruleSeq {
		s.ruleSeq[k] = v
	}
	for k, v := range d.countries {
		s.countries[k] = v
	}
	return s
}

func (d *InMemoryDB) restore(s snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.taxes = s.taxes
	d.rules = s.rules
	d.ruleSeq = s.ruleSeq
	d.countries = s.countries
}

// CountryCount returns the number of stored rule-country edges
func (d *InMemoryDB) CountryCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.countries)
}

// RuleCount returns the number of stored rules across all taxes
func (d *InMemoryDB) RuleCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rules)
}

// AuditLogs returns a copy of the stored audit rows in insertion order
func (d *InMemoryDB) AuditLogs() []model.AuditLog {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]model.AuditLog(nil), d.audits...)
}

// rulesOf returns copies of the tax's rules with countries attached, in
// creation order. Caller holds the read lock.
func (d *InMemoryDB) rulesOf(taxID uuid.UUID) []model.TaxRule {
	rules := make([]model.TaxRule, 0)
	for _, r := range d.rules {
		if r.TaxID == taxID {
			rules = append(rules, d.withCountries(*r))
		}
	}
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].IsB2C != rules[j].IsB2C {
			return !rules[i].IsB2C
		}
		return d.ruleSeq[rules[i].ID] < d.ruleSeq[rules[j].ID]
	})
	return rules
}

func (d *InMemoryDB) withCountries(r model.TaxRule) model.TaxRule {
	r.Countries = make([]model.TaxRuleCountry, 0)
	for _, c := range d.countries {
		if c.TaxRuleID == r.ID {
			r.Countries = append(r.Countries, c)
		}
	}
	sort.Slice(r.Countries, func(i, j int) bool {
		return r.Countries[i].CountryCode < r.Countries[j].CountryCode
	})
	return r
}

func notFound(entity string) error {
	return ierr.NewError(entity + " not found").
		WithHintf("%s not found", entity).
		Mark(ierr.ErrNotFound)
}

func uniqueViolation(constraint string) error {
	return ierr.NewError("duplicate key value violates unique constraint").
		WithHint("tax rule overlaps an existing rule in the same partition").
		WithReportableDetails(map[string]any{"constraint": constraint}).
		Mark(ierr.ErrOverlapConflict)
}
