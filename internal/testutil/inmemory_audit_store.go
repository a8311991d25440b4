package testutil

import (
	"context"
	"errors"

	"pluto/internal/model"
)

type InMemoryAuditStore struct {
	db *InMemoryDB
	// FailWith makes Log fail, to exercise best-effort audit writes
	FailWith error
}

func NewInMemoryAuditStore(db *InMemoryDB) *InMemoryAuditStore {
	return &InMemoryAuditStore{db: db}
}

func (s *InMemoryAuditStore) Log(ctx context.Context, entry *model.AuditLog) error {
	if s.FailWith != nil {
		return s.FailWith
	}
	if entry == nil {
		return errors.New("audit entry cannot be nil")
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	entry.CreatedAt = s.db.now()
	s.db.audits = append(s.db.audits, *entry)
	return nil
}

func (s *InMemoryAuditStore) ListByCompany(ctx context.Context, companyID string, page, limit int) ([]model.AuditLog, int64, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	logs := make([]model.AuditLog, 0)
	for i := len(s.db.audits) - 1; i >= 0; i-- {
		if s.db.audits[i].CompanyID == companyID {
			logs = append(logs, s.db.audits[i])
		}
	}

	total := int64(len(logs))
	offset := (page - 1) * limit
	if offset >= len(logs) {
		return []model.AuditLog{}, total, nil
	}
	end := offset + limit
	if end > len(logs) {
		end = len(logs)
	}
	return logs[offset:end], total, nil
}
