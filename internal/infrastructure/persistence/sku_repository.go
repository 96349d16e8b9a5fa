package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/stockledger/backend/internal/domain/shared"
	"github.com/stockledger/backend/internal/domain/stock"
	"gorm.io/gorm"
)

// GormSkuRepository implements SkuRepository using GORM
type GormSkuRepository struct {
	db *gorm.DB
}

// NewGormSkuRepository creates a new GormSkuRepository
func NewGormSkuRepository(db *gorm.DB) *GormSkuRepository {
	return &GormSkuRepository{db: db}
}

// FindByID finds a SKU by its ID
func (r *GormSkuRepository) FindByID(ctx context.Context, id int64) (*stock.Sku, error) {
	var sku stock.Sku
	if err := r.db.WithContext(ctx).First(&sku, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &sku, nil
}

// FindBySkuCode finds a SKU by its code
func (r *GormSkuRepository) FindBySkuCode(ctx context.Context, code string) (*stock.Sku, error) {
	var sku stock.Sku
	if err := r.db.WithContext(ctx).First(&sku, "sku_code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &sku, nil
}

// FindAll finds SKUs matching the filter
func (r *GormSkuRepository) FindAll(ctx context.Context, filter shared.Filter) ([]stock.Sku, error) {
	var skus []stock.Sku
	query := r.applyFilter(r.db.WithContext(ctx).Model(&stock.Sku{}), filter)
	if err := query.Find(&skus).Error; err != nil {
		return nil, err
	}
	return skus, nil
}

// FindBelowReorderPoint finds SKUs whose stock has dropped below their
// reorder threshold
func (r *GormSkuRepository) FindBelowReorderPoint(ctx context.Context, filter shared.Filter) ([]stock.Sku, error) {
	var skus []stock.Sku
	query := r.applyFilter(
		r.db.WithContext(ctx).Model(&stock.Sku{}).
			Where("reorder_point > 0 AND stock_qty < reorder_point"),
		filter,
	)
	if err := query.Find(&skus).Error; err != nil {
		return nil, err
	}
	return skus, nil
}

// SumBatchQuantity computes SUM(quantity) over the SKU's batches in the
// current transaction, the source of truth for the denormalized total
func (r *GormSkuRepository) SumBatchQuantity(ctx context.Context, skuID int64) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&stock.StockBatch{}).
		Where("sku_id = ?", skuID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// Save creates or updates a SKU
func (r *GormSkuRepository) Save(ctx context.Context, sku *stock.Sku) error {
	return r.db.WithContext(ctx).Save(sku).Error
}

// SaveWithLock saves a SKU with optimistic locking. The version check
// rejects writes based on a stale read.
func (r *GormSkuRepository) SaveWithLock(ctx context.Context, sku *stock.Sku) error {
	result := r.db.WithContext(ctx).
		Model(sku).
		Where("id = ? AND version = ?", sku.ID, sku.Version-1).
		Updates(map[string]interface{}{
			"stock_qty":        sku.StockQty,
			"unit_cost":        sku.UnitCost,
			"max_stock_qty":    sku.MaxStockQty,
			"reorder_point":    sku.ReorderPoint,
			"safety_stock_qty": sku.SafetyStockQty,
			"allow_backorder":  sku.AllowBackorder,
			"version":          sku.Version,
			"updated_at":       sku.UpdatedAt,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// Count counts SKUs matching the filter
func (r *GormSkuRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&stock.Sku{})
	if filter.Search != "" {
		query = query.Where("sku_code ILIKE ? OR name ILIKE ?", "%"+filter.Search+"%", "%"+filter.Search+"%")
	}
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// applyFilter applies filter options to the query
func (r *GormSkuRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	if filter.Search != "" {
		query = query.Where("sku_code ILIKE ? OR name ILIKE ?", "%"+filter.Search+"%", "%"+filter.Search+"%")
	}

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
		query = query.Order("sku_code ASC")
	}

	return query
}

// Ensure GormSkuRepository implements SkuRepository
var _ stock.SkuRepository = (*GormSkuRepository)(nil)
