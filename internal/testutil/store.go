package testutil

import (
	"pluto/internal/repository"
)

// Stores bundles the in-memory repositories over one shared InMemoryDB
type Stores struct {
	DB        *InMemoryDB
	TaxRepo   *InMemoryTaxStore
	RuleRepo  *InMemoryTaxRuleStore
	AuditRepo *InMemoryAuditStore
	TxManager *InMemoryTxManager
}

func NewStores() Stores {
	db := NewInMemoryDB()
	return Stores{
		DB:        db,
		TaxRepo:   NewInMemoryTaxStore(db),
		RuleRepo:  NewInMemoryTaxRuleStore(db),
		AuditRepo: NewInMemoryAuditStore(db),
		TxManager: NewInMemoryTxManager(db),
	}
}

var (
	_ repository.TaxRepository      = (*InMemoryTaxStore)(nil)
	_ repository.TaxRuleRepository  = (*InMemoryTaxRuleStore)(nil)
	_ repository.AuditRepository    = (*InMemoryAuditStore)(nil)
	_ repository.TransactionManager = (*InMemoryTxManager)(nil)
)
