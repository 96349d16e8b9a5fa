package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stockledger/backend/internal/domain/shared"
	"github.com/stockledger/backend/internal/domain/stock"
	"gorm.io/gorm"
)

// GormStockHistoryRepository implements StockHistoryRepository using GORM.
// The ledger is append-only, so there are only Create and Find methods.
type GormStockHistoryRepository struct {
	db *gorm.DB
}

// NewGormStockHistoryRepository creates a new GormStockHistoryRepository
func NewGormStockHistoryRepository(db *gorm.DB) *GormStockHistoryRepository {
	return &GormStockHistoryRepository{db: db}
}

// Create appends a single ledger entry
func (r *GormStockHistoryRepository) Create(ctx context.Context, entry *stock.StockHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// CreateBatch appends multiple ledger entries
func (r *GormStockHistoryRepository) CreateBatch(ctx context.Context, entries []*stock.StockHistory) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(entries).Error
}

// FindByID finds a ledger entry by its ID
func (r *GormStockHistoryRepository) FindByID(ctx context.Context, id int64) (*stock.StockHistory, error) {
	var entry stock.StockHistory
	if err := r.db.WithContext(ctx).First(&entry, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// FindByBatch finds entries for a batch, newest first
func (r *GormStockHistoryRepository) FindByBatch(ctx context.Context, batchID int64, filter shared.Filter) ([]stock.StockHistory, error) {
	var entries []stock.StockHistory
	query := r.applyFilter(
		r.db.WithContext(ctx).Model(&stock.StockHistory{}).
			Where("stock_batch_id = ?", batchID),
		filter,
	)
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// FindBySku finds entries for a SKU, newest first
func (r *GormStockHistoryRepository) FindBySku(ctx context.Context, skuID int64, filter shared.Filter) ([]stock.StockHistory, error) {
	var entries []stock.StockHistory
	query := r.applyFilter(
		r.db.WithContext(ctx).Model(&stock.StockHistory{}).
			Where("sku_id = ?", skuID),
		filter,
	)
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// FindByOperationRef finds all entries written by one logical operation
func (r *GormStockHistoryRepository) FindByOperationRef(ctx context.Context, ref uuid.UUID) ([]stock.StockHistory, error) {
	var entries []stock.StockHistory
	if err := r.db.WithContext(ctx).
		Where("operation_ref = ?", ref).
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// FindByDateRange finds entries within a time window
func (r *GormStockHistoryRepository) FindByDateRange(ctx context.Context, skuID int64, start, end time.Time, filter shared.Filter) ([]stock.StockHistory, error) {
	var entries []stock.StockHistory
	query := r.applyFilter(
		r.db.WithContext(ctx).Model(&stock.StockHistory{}).
			Where("sku_id = ?", skuID).
			Where("revised_date >= ? AND revised_date <= ?", start, end),
		filter,
	)
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// LatestForBatch returns the newest entry for a batch
func (r *GormStockHistoryRepository) LatestForBatch(ctx context.Context, batchID int64) (*stock.StockHistory, error) {
	var entry stock.StockHistory
	if err := r.db.WithContext(ctx).
		Where("stock_batch_id = ?", batchID).
		Order("revised_date DESC, id DESC").
		First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// CountBySku counts entries for a SKU
func (r *GormStockHistoryRepository) CountBySku(ctx context.Context, skuID int64) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&stock.StockHistory{}).
		Where("sku_id = ?", skuID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// applyFilter applies filter options to the query
func (r *GormStockHistoryRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	if filter.OrderBy != "" {
		orderDir := "ASC"
		if filter.OrderDir == "desc" || filter.OrderDir == "DESC" {
			orderDir = "DESC"
		}
		query = query.Order(filter.OrderBy + " " + orderDir)
	} else {
		query = query.Order("revised_date DESC, id DESC")
	}

	return query
}

// Ensure GormStockHistoryRepository implements StockHistoryRepository
var _ stock.StockHistoryRepository = (*GormStockHistoryRepository)(nil)
