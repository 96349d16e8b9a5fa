package stock

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockledger/backend/internal/domain/shared"
)

// Sku represents a sellable stock-keeping unit. It is the aggregate root for
// stock operations and carries the denormalized total quantity across all of
// its batches plus the policy fields the allocation engine consumes.
type Sku struct {
	shared.BaseAggregateRoot
	SkuCode        string          `gorm:"type:varchar(50);not null;uniqueIndex"`
	Name           string          `gorm:"type:varchar(200);not null"`
	StockQty       int64           `gorm:"not null;default:0"`                    // Derived: SUM(batch.Quantity), kept in sync by the service
	UnitCost       decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"` // Moving weighted average cost
	MaxStockQty    *int64          `gorm:""`                                      // Capacity ceiling per batch, nil = unbounded
	ReorderPoint   int64           `gorm:"not null;default:0"`
	SafetyStockQty int64           `gorm:"not null;default:0"`
	AllowBackorder bool            `gorm:"not null;default:false"` // When true, decreases may drive quantities negative

	// Association - loaded lazily
	Batches []StockBatch `gorm:"foreignKey:SkuID;references:ID"`
}

// TableName returns the table name for GORM
func (Sku) TableName() string {
	return "skus"
}

// NewSku creates a new SKU
func NewSku(skuCode, name string) (*Sku, error) {
	if skuCode == "" {
		return nil, shared.NewDomainError("INVALID_SKU_CODE", "SKU code cannot be empty")
	}
	if name == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "SKU name cannot be empty")
	}

	return &Sku{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		SkuCode:           skuCode,
		Name:              name,
		StockQty:          0,
		UnitCost:          decimal.Zero,
		Batches:           make([]StockBatch, 0),
	}, nil
}

// SetBatchTotal replaces the denormalized stock quantity with the given batch
// sum. Called after every mutation with SUM(batch.Quantity) computed inside
// the same transaction so the aggregate can never drift.
func (s *Sku) SetBatchTotal(total int64) {
	s.StockQty = total
	s.UpdatedAt = time.Now()
	s.IncrementVersion()
}

// AbsorbCost recalculates the moving weighted average unit cost after an
// inbound of the given quantity at the given unit cost.
func (s *Sku) AbsorbCost(quantity int64, unitCost decimal.Decimal) error {
	if quantity <= 0 {
		return shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}
	if unitCost.IsNegative() {
		return shared.NewDomainError("INVALID_COST", "Unit cost cannot be negative")
	}

	oldQty := decimal.NewFromInt(s.StockQty)
	newQty := decimal.NewFromInt(quantity)
	if s.StockQty <= 0 {
		s.UnitCost = unitCost
		return nil
	}

	totalValue := oldQty.Mul(s.UnitCost).Add(newQty.Mul(unitCost))
	s.UnitCost = totalValue.Div(oldQty.Add(newQty)).Round(4)
	return nil
}

// SetReorderPoint sets the reorder threshold
func (s *Sku) SetReorderPoint(qty int64) error {
	if qty < 0 {
		return shared.NewDomainError("INVALID_QUANTITY", "Reorder point cannot be negative")
	}
	s.ReorderPoint = qty
	s.UpdatedAt = time.Now()
	s.IncrementVersion()
	return nil
}

// SetMaxStockQty sets the per-batch capacity ceiling, nil removes the bound
func (s *Sku) SetMaxStockQty(qty *int64) error {
	if qty != nil && *qty < 0 {
		return shared.NewDomainError("INVALID_QUANTITY", "Max stock quantity cannot be negative")
	}
	s.MaxStockQty = qty
	s.UpdatedAt = time.Now()
	s.IncrementVersion()
	return nil
}

// IsBelowReorderPoint returns true if the total stock has dropped below the
// reorder threshold (a zero threshold disables the check)
func (s *Sku) IsBelowReorderPoint() bool {
	return s.ReorderPoint > 0 && s.StockQty < s.ReorderPoint
}

// IsBelowSafetyStock returns true if the total stock has dropped below the
// safety stock level
func (s *Sku) IsBelowSafetyStock() bool {
	return s.SafetyStockQty > 0 && s.StockQty < s.SafetyStockQty
}

// TotalValue returns the total inventory value (StockQty * UnitCost)
func (s *Sku) TotalValue() decimal.Decimal {
	return decimal.NewFromInt(s.StockQty).Mul(s.UnitCost)
}

// BackorderAllowed reports whether a decrease may take quantities negative,
// combining the SKU policy with a per-request override.
func (s *Sku) BackorderAllowed(requestOverride bool) bool {
	return s.AllowBackorder || requestOverride
}
