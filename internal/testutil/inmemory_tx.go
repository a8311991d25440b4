package testutil

import (
	"context"
	"sync"
)

type txKey struct{}

// InMemoryTxManager runs one transaction at a time and restores the tax
// tables when fn fails. Nested calls join the outer transaction.
type InMemoryTxManager struct {
	mu sync.Mutex
	db *InMemoryDB
}

func NewInMemoryTxManager(db *InMemoryDB) *InMemoryTxManager {
	return &InMemoryTxManager{db: db}
}

func (m *InMemoryTxManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.db.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		m.db.restore(snap)
		return err
	}
	return nil
}
