package stock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stockledger/backend/internal/domain/shared"
)

// SkuRepository defines the interface for SKU persistence
type SkuRepository interface {
	// FindByID finds a SKU by its ID
	FindByID(ctx context.Context, id int64) (*Sku, error)

	// FindBySkuCode finds a SKU by its code
	FindBySkuCode(ctx context.Context, code string) (*Sku, error)

	// FindAll finds SKUs matching the filter
	FindAll(ctx context.Context, filter shared.Filter) ([]Sku, error)

	// FindBelowReorderPoint finds SKUs whose stock has dropped below their
	// reorder threshold
	FindBelowReorderPoint(ctx context.Context, filter shared.Filter) ([]Sku, error)

	// SumBatchQuantity computes SUM(quantity) over the SKU's batches. Used to
	// recompute the denormalized aggregate inside the mutating transaction.
	SumBatchQuantity(ctx context.Context, skuID int64) (int64, error)

	// Save creates or updates a SKU
	Save(ctx context.Context, sku *Sku) error

	// SaveWithLock saves with optimistic locking (checks version)
	SaveWithLock(ctx context.Context, sku *Sku) error

	// Count counts SKUs matching the filter
	Count(ctx context.Context, filter shared.Filter) (int64, error)
}

// StockBatchRepository defines the interface for stock batch persistence.
// The FindBySku ordering is part of the allocation contract: batches come
// back sorted (ExpireDate ascending nulls last, CreatedAt ascending) so that
// FEFO consumption order is deterministic.
type StockBatchRepository interface {
	// FindByID finds a stock batch by its ID
	FindByID(ctx context.Context, id int64) (*StockBatch, error)

	// FindBySku finds batches for a SKU in FEFO order. When forDecrease is
	// true only batches with positive, sellable quantity are returned.
	FindBySku(ctx context.Context, skuID int64, forDecrease bool) ([]StockBatch, error)

	// FindByIDs finds batches by their IDs. The result carries no ordering
	// guarantee; callers that need the request order must reorder themselves.
	FindByIDs(ctx context.Context, ids []int64) ([]StockBatch, error)

	// FindByBatchNumber finds a batch of a SKU by batch number
	FindByBatchNumber(ctx context.Context, skuID int64, batchNumber string) (*StockBatch, error)

	// FindExpiringSoon finds batches with stock expiring within the window
	FindExpiringSoon(ctx context.Context, withinDays int, filter shared.Filter) ([]StockBatch, error)

	// FindExpired finds expired batches that still have stock
	FindExpired(ctx context.Context, filter shared.Filter) ([]StockBatch, error)

	// Save creates or updates a stock batch
	Save(ctx context.Context, batch *StockBatch) error

	// SaveWithLock saves with optimistic locking (checks version)
	SaveWithLock(ctx context.Context, batch *StockBatch) error

	// CountBySku counts batches for a SKU
	CountBySku(ctx context.Context, skuID int64) (int64, error)
}

// StockHistoryRepository defines the interface for ledger persistence.
// The ledger is append-only: there are deliberately no update or delete
// methods on this interface.
type StockHistoryRepository interface {
	// Create appends a single ledger entry
	Create(ctx context.Context, entry *StockHistory) error

	// CreateBatch appends multiple ledger entries
	CreateBatch(ctx context.Context, entries []*StockHistory) error

	// FindByID finds a ledger entry by its ID
	FindByID(ctx context.Context, id int64) (*StockHistory, error)

	// FindByBatch finds entries for a batch, newest first
	FindByBatch(ctx context.Context, batchID int64, filter shared.Filter) ([]StockHistory, error)

	// FindBySku finds entries for a SKU, newest first
	FindBySku(ctx context.Context, skuID int64, filter shared.Filter) ([]StockHistory, error)

	// FindByOperationRef finds all entries written by one logical operation
	FindByOperationRef(ctx context.Context, ref uuid.UUID) ([]StockHistory, error)

	// FindByDateRange finds entries within a time window
	FindByDateRange(ctx context.Context, skuID int64, start, end time.Time, filter shared.Filter) ([]StockHistory, error)

	// LatestForBatch returns the newest entry for a batch, or ErrNotFound
	LatestForBatch(ctx context.Context, batchID int64) (*StockHistory, error)

	// CountBySku counts entries for a SKU
	CountBySku(ctx context.Context, skuID int64) (int64, error)
}
