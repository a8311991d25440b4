package testutil

import (
	"context"
	"sort"
	"sync/atomic"

	"pluto/internal/model"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

type InMemoryTaxStore struct {
	db    *InMemoryDB
	locks atomic.Int64
}

func NewInMemoryTaxStore(db *InMemoryDB) *InMemoryTaxStore {
	return &InMemoryTaxStore{db: db}
}

func (s *InMemoryTaxStore) Create(ctx context.Context, tax *model.Tax) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	now := s.db.now()
	tax.CreatedAt = now
	tax.UpdatedAt = now
	s.db.seq++

	t := *tax
	t.Rules = nil
	s.db.taxes[tax.ID] = &t
	return nil
}

func (s *InMemoryTaxStore) Update(ctx context.Context, tax *model.Tax) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	existing, ok := s.db.taxes[tax.ID]
	if !ok {
		return notFound("tax")
	}
	existing.Name = tax.Name
	existing.DefaultRate = tax.DefaultRate
	existing.UpdatedAt = s.db.now()
	tax.UpdatedAt = existing.UpdatedAt
	return nil
}

func (s *InMemoryTaxStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.taxes[id]; !ok {
		return notFound("tax")
	}
	delete(s.db.taxes, id)
	return nil
}

func (s *InMemoryTaxStore) FindByID(ctx context.Context, companyID string, id uuid.UUID) (*model.Tax, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	t, ok := s.db.taxes[id]
	if !ok || t.CompanyID != companyID {
		return nil, notFound("tax")
	}
	out := *t
	return &out, nil
}

// FindByIDForUpdate relies on InMemoryTxManager for serialisation. Like a
// row lock it is only meaningful inside a transaction, so it fails outside one.
func (s *InMemoryTaxStore) FindByIDForUpdate(ctx context.Context, companyID string, id uuid.UUID) (*model.Tax, error) {
	if ctx.Value(txKey{}) == nil {
		return nil, errors.New("FOR UPDATE outside a transaction")
	}
	s.locks.Add(1)
	return s.FindByID(ctx, companyID, id)
}

// Locks reports how many row locks were taken
func (s *InMemoryTaxStore) Locks() int {
	return int(s.locks.Load())
}

func (s *InMemoryTaxStore) List(ctx context.Context, companyID string, page, limit int) ([]model.Tax, int64, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	taxes := make([]model.Tax, 0)
	for _, t := range s.db.taxes {
		if t.CompanyID == companyID {
			taxes = append(taxes, *t)
		}
	}
	sort.Slice(taxes, func(i, j int) bool {
		return taxes[i].CreatedAt.After(taxes[j].CreatedAt)
	})

	total := int64(len(taxes))
	offset := (page - 1) * limit
	if offset >= len(taxes) {
		return []model.Tax{}, total, nil
	}
	end := offset + limit
	if end > len(taxes) {
		end = len(taxes)
	}
	return taxes[offset:end], total, nil
}
