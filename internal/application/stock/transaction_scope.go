package stock

import (
	"context"

	"github.com/stockledger/backend/internal/domain/stock"
)

// TransactionScope runs a unit of work against a consistent set of
// repositories. Implementations decide the transactional semantics; the
// persistence implementation wraps fn in a database transaction so that a
// batch update, its ledger entries and the SKU aggregate recompute commit
// or roll back together.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories exposes the repositories bound to the scope's
// transaction.
type TransactionalRepositories interface {
	SkuRepo() stock.SkuRepository
	BatchRepo() stock.StockBatchRepository
	HistoryRepo() stock.StockHistoryRepository
}

// NoOpTransactionScope passes the given repositories through without any
// transactional wrapping. For tests.
type NoOpTransactionScope struct {
	skuRepo     stock.SkuRepository
	batchRepo   stock.StockBatchRepository
	historyRepo stock.StockHistoryRepository
}

// NewNoOpTransactionScope creates a scope over the given repositories
func NewNoOpTransactionScope(
	skuRepo stock.SkuRepository,
	batchRepo stock.StockBatchRepository,
	historyRepo stock.StockHistoryRepository,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		skuRepo:     skuRepo,
		batchRepo:   batchRepo,
		historyRepo: historyRepo,
	}
}

// Execute runs fn directly against the underlying repositories
func (s *NoOpTransactionScope) Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(&noOpRepositories{scope: s})
}

type noOpRepositories struct {
	scope *NoOpTransactionScope
}

func (r *noOpRepositories) SkuRepo() stock.SkuRepository              { return r.scope.skuRepo }
func (r *noOpRepositories) BatchRepo() stock.StockBatchRepository     { return r.scope.batchRepo }
func (r *noOpRepositories) HistoryRepo() stock.StockHistoryRepository { return r.scope.historyRepo }
