package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/stockledger/backend/internal/domain/shared"
	"github.com/stockledger/backend/internal/domain/stock"
	"gorm.io/gorm"
)

// fefoOrder sorts soonest-to-expire first with never-expiring batches last,
// tie-broken by creation time. This ordering is part of the allocation
// contract.
const fefoOrder = "COALESCE(expire_date, '9999-12-31') ASC, created_at ASC"

// GormStockBatchRepository implements StockBatchRepository using GORM
type GormStockBatchRepository struct {
	db *gorm.DB
}

// NewGormStockBatchRepository creates a new GormStockBatchRepository
func NewGormStockBatchRepository(db *gorm.DB) *GormStockBatchRepository {
	return &GormStockBatchRepository{db: db}
}

// FindByID finds a stock batch by its ID
func (r *GormStockBatchRepository) FindByID(ctx context.Context, id int64) (*stock.StockBatch, error) {
	var batch stock.StockBatch
	if err := r.db.WithContext(ctx).First(&batch, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &batch, nil
}

// FindBySku finds batches for a SKU in FEFO order. When forDecrease is true
// only batches an outbound allocation could draw from are returned.
func (r *GormStockBatchRepository) FindBySku(ctx context.Context, skuID int64, forDecrease bool) ([]stock.StockBatch, error) {
	var batches []stock.StockBatch
	query := r.db.WithContext(ctx).
		Where("sku_id = ?", skuID).
		Order(fefoOrder)

	if forDecrease {
		query = query.Where("is_sellable = TRUE AND quantity > 0")
	}

	if err := query.Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// FindByIDs finds batches by their IDs, no ordering guarantee
func (r *GormStockBatchRepository) FindByIDs(ctx context.Context, ids []int64) ([]stock.StockBatch, error) {
	if len(ids) == 0 {
		return []stock.StockBatch{}, nil
	}
	var batches []stock.StockBatch
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// FindByBatchNumber finds a batch of a SKU by batch number
func (r *GormStockBatchRepository) FindByBatchNumber(ctx context.Context, skuID int64, batchNumber string) (*stock.StockBatch, error) {
	var batch stock.StockBatch
	if err := r.db.WithContext(ctx).
		Where("sku_id = ? AND batch_number = ?", skuID, batchNumber).
		First(&batch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &batch, nil
}

// FindExpiringSoon finds batches with stock expiring within the window
func (r *GormStockBatchRepository) FindExpiringSoon(ctx context.Context, withinDays int, filter shared.Filter) ([]stock.StockBatch, error) {
	var batches []stock.StockBatch
	now := time.Now()
	expiryThreshold := now.AddDate(0, 0, withinDays)

	query := r.applyFilter(
		r.db.WithContext(ctx).Model(&stock.StockBatch{}).
			Where("is_sellable = TRUE AND quantity > 0").
			Where("expire_date IS NOT NULL").
			Where("expire_date > ? AND expire_date <= ?", now, expiryThreshold),
		filter,
	)

	if err := query.Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// FindExpired finds expired batches that still have stock
func (r *GormStockBatchRepository) FindExpired(ctx context.Context, filter shared.Filter) ([]stock.StockBatch, error) {
	var batches []stock.StockBatch
	now := time.Now()

	query := r.applyFilter(
		r.db.WithContext(ctx).Model(&stock.StockBatch{}).
			Where("quantity > 0").
			Where("expire_date IS NOT NULL AND expire_date <= ?", now),
		filter,
	)

	if err := query.Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// Save creates or updates a stock batch
func (r *GormStockBatchRepository) Save(ctx context.Context, batch *stock.StockBatch) error {
	return r.db.WithContext(ctx).Save(batch).Error
}

// SaveWithLock saves a batch with optimistic locking. The version check
// rejects writes based on a stale read.
func (r *GormStockBatchRepository) SaveWithLock(ctx context.Context, batch *stock.StockBatch) error {
	result := r.db.WithContext(ctx).
		Model(batch).
		Where("id = ? AND version = ?", batch.ID, batch.Version-1).
		Updates(map[string]interface{}{
			"quantity":     batch.Quantity,
			"is_sellable":  batch.IsSellable,
			"version":      batch.Version,
			"reviser":      batch.Reviser,
			"revised_date": batch.RevisedDate,
			"updated_at":   batch.UpdatedAt,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// CountBySku counts batches for a SKU
func (r *GormStockBatchRepository) CountBySku(ctx context.Context, skuID int64) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&stock.StockBatch{}).
		Where("sku_id = ?", skuID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// applyFilter applies filter options to the query
func (r *GormStockBatchRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	if filter.OrderBy != "" {
		orderDir := "ASC"
		if strings.ToLower(filter.OrderDir) == "desc" {
			orderDir = "DESC"
		}
		query = query.Order(filter.OrderBy + " " + orderDir)
	} else {
		query = query.Order(fefoOrder)
	}

	return query
}

// Ensure GormStockBatchRepository implements StockBatchRepository
var _ stock.StockBatchRepository = (*GormStockBatchRepository)(nil)
