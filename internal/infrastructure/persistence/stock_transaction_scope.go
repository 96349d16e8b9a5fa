package persistence

import (
	"context"

	appstock "github.com/stockledger/backend/internal/application/stock"
	"github.com/stockledger/backend/internal/domain/stock"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// A batch update, its ledger entries and the SKU aggregate recompute commit
// or roll back as one unit.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appstock.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := &gormTransactionalRepositories{tx: tx}
		return fn(repos)
	})
}

// gormTransactionalRepositories provides access to all repositories within a transaction
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

// SkuRepo returns the SKU repository scoped to the current transaction
func (r *gormTransactionalRepositories) SkuRepo() stock.SkuRepository {
	return NewGormSkuRepository(r.tx)
}

// BatchRepo returns the stock batch repository scoped to the current transaction
func (r *gormTransactionalRepositories) BatchRepo() stock.StockBatchRepository {
	return NewGormStockBatchRepository(r.tx)
}

// HistoryRepo returns the ledger repository scoped to the current transaction
func (r *gormTransactionalRepositories) HistoryRepo() stock.StockHistoryRepository {
	return NewGormStockHistoryRepository(r.tx)
}

// Ensure GormTransactionScope implements TransactionScope
var _ appstock.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ appstock.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
