package stock

import (
	"time"

	"github.com/google/uuid"
	"github.com/stockledger/backend/internal/domain/shared"
)

// ChangeType classifies a ledger entry. Stored as single-letter codes.
type ChangeType string

const (
	// ChangeTypePurchase is an inbound receiving of new stock
	ChangeTypePurchase ChangeType = "P"
	// ChangeTypeSale is an outbound sale allocation
	ChangeTypeSale ChangeType = "S"
	// ChangeTypeReturn is a sales return placed back into batches
	ChangeTypeReturn ChangeType = "R"
	// ChangeTypeExpire is a write-off of expired stock
	ChangeTypeExpire ChangeType = "E"
	// ChangeTypeAdjust is a manual stock adjustment
	ChangeTypeAdjust ChangeType = "A"
)

// String returns the stored code
func (t ChangeType) String() string {
	return string(t)
}

// IsValid returns true if the change type is a known code
func (t ChangeType) IsValid() bool {
	switch t {
	case ChangeTypePurchase, ChangeTypeSale, ChangeTypeReturn, ChangeTypeExpire, ChangeTypeAdjust:
		return true
	}
	return false
}

// Describe returns a human-readable label for the code
func (t ChangeType) Describe() string {
	switch t {
	case ChangeTypePurchase:
		return "Purchase"
	case ChangeTypeSale:
		return "Sale"
	case ChangeTypeReturn:
		return "Return"
	case ChangeTypeExpire:
		return "Expire"
	case ChangeTypeAdjust:
		return "Adjust"
	}
	return "Unknown"
}

// AllChangeTypes returns every valid change type
func AllChangeTypes() []ChangeType {
	return []ChangeType{
		ChangeTypePurchase,
		ChangeTypeSale,
		ChangeTypeReturn,
		ChangeTypeExpire,
		ChangeTypeAdjust,
	}
}

// StockHistory is an immutable ledger entry recording one quantity change on
// one batch. Entries are append-only: once written they are never updated or
// deleted. One logical operation may produce several entries (one per batch
// touched), all sharing the same OperationRef.
type StockHistory struct {
	shared.BaseEntity
	StockBatchID int64      `gorm:"not null;index"`
	SkuID        int64      `gorm:"not null;index:idx_stock_history_sku_time,priority:1"`
	ChangeType   ChangeType `gorm:"type:varchar(1);not null;index"`
	ChangeQty    int64      `gorm:"not null"` // Signed: positive = increase, negative = decrease
	BeforeQty    int64      `gorm:"not null"` // Batch quantity before the change
	AfterQty     int64      `gorm:"not null"` // Batch quantity after the change
	Reviser      *int64     `gorm:""`         // Actor who performed the operation
	RevisedDate  time.Time  `gorm:"type:timestamptz;not null;index:idx_stock_history_sku_time,priority:2"`
	Remark       string     `gorm:"type:varchar(255)"`
	OperationRef uuid.UUID  `gorm:"type:uuid;not null;index"` // Groups all entries of one logical operation
}

// TableName returns the table name for GORM
func (StockHistory) TableName() string {
	return "stock_histories"
}

// NewStockHistory creates a ledger entry for a single batch change.
// The AfterQty is derived, never passed in, so the AfterQty == BeforeQty +
// ChangeQty invariant holds by construction.
func NewStockHistory(
	batchID, skuID int64,
	changeType ChangeType,
	changeQty, beforeQty int64,
	reviser *int64,
	remark string,
	operationRef uuid.UUID,
) (*StockHistory, error) {
	if batchID <= 0 {
		return nil, shared.NewDomainError("INVALID_BATCH", "Batch ID is required")
	}
	if skuID <= 0 {
		return nil, shared.NewDomainError("INVALID_SKU", "SKU ID is required")
	}
	if !changeType.IsValid() {
		return nil, shared.NewDomainError("INVALID_CHANGE_TYPE", "Invalid change type")
	}
	if changeQty == 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Change quantity cannot be zero")
	}
	if operationRef == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_OPERATION_REF", "Operation reference is required")
	}

	return &StockHistory{
		BaseEntity:   shared.NewBaseEntity(),
		StockBatchID: batchID,
		SkuID:        skuID,
		ChangeType:   changeType,
		ChangeQty:    changeQty,
		BeforeQty:    beforeQty,
		AfterQty:     beforeQty + changeQty,
		Reviser:      reviser,
		RevisedDate:  time.Now(),
		Remark:       remark,
		OperationRef: operationRef,
	}, nil
}

// IsIncrease returns true if the entry recorded a quantity increase
func (h *StockHistory) IsIncrease() bool {
	return h.ChangeQty > 0
}

// IsDecrease returns true if the entry recorded a quantity decrease
func (h *StockHistory) IsDecrease() bool {
	return h.ChangeQty < 0
}
