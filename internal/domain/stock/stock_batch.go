package stock

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockledger/backend/internal/domain/shared"
)

// StockBatch represents one manufacturing/receiving lot of a SKU, tracked
// separately for expiry and traceability. Batches are never physically
// deleted; every quantity change leaves a StockHistory entry.
type StockBatch struct {
	shared.BaseEntity
	SkuID           int64           `gorm:"not null;index"`
	BatchNumber     string          `gorm:"type:varchar(50);not null"`
	Quantity        int64           `gorm:"not null;default:0"`
	UnitCost        decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	ManufactureDate *time.Time      `gorm:"type:date"`
	ExpireDate      *time.Time      `gorm:"type:date"`
	IsSellable      bool            `gorm:"not null;default:true"`
	MaxStockQty     *int64          `gorm:""` // Capacity ceiling inherited from the SKU, nil = unbounded
	Version         int             `gorm:"not null;default:1"`
	Reviser         *int64          `gorm:""` // Actor who last changed the batch
	RevisedDate     time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StockBatch) TableName() string {
	return "stock_batches"
}

// NewStockBatch creates a new stock batch
func NewStockBatch(
	skuID int64,
	batchNumber string,
	quantity int64,
	unitCost decimal.Decimal,
	manufactureDate, expireDate *time.Time,
	maxStockQty *int64,
) (*StockBatch, error) {
	if skuID <= 0 {
		return nil, shared.NewDomainError("INVALID_SKU", "SKU ID is required")
	}
	if batchNumber == "" {
		return nil, shared.NewDomainError("INVALID_BATCH_NUMBER", "Batch number cannot be empty")
	}
	if quantity < 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Batch quantity cannot be negative")
	}
	if unitCost.IsNegative() {
		return nil, shared.NewDomainError("INVALID_COST", "Unit cost cannot be negative")
	}

	return &StockBatch{
		BaseEntity:      shared.NewBaseEntity(),
		SkuID:           skuID,
		BatchNumber:     batchNumber,
		Quantity:        quantity,
		UnitCost:        unitCost,
		ManufactureDate: dayPtr(manufactureDate),
		ExpireDate:      dayPtr(expireDate),
		IsSellable:      true,
		MaxStockQty:     maxStockQty,
		Version:         1,
		RevisedDate:     time.Now(),
	}, nil
}

// IsExpired returns true if the batch expiry date is on or before the given
// day. Dates compare at day granularity.
func (b *StockBatch) IsExpired(now time.Time) bool {
	if b.ExpireDate == nil {
		return false
	}
	return !dayOf(*b.ExpireDate).After(dayOf(now))
}

// HasStock returns true if the batch has positive quantity
func (b *StockBatch) HasStock() bool {
	return b.Quantity > 0
}

// IsAllocatable returns true if the batch may satisfy an outbound request
func (b *StockBatch) IsAllocatable(now time.Time) bool {
	return b.IsSellable && b.HasStock() && !b.IsExpired(now)
}

// Headroom returns how much more quantity the batch can accept before
// hitting its capacity ceiling. The second return is false when the batch is
// unbounded (no MaxStockQty set).
func (b *StockBatch) Headroom() (int64, bool) {
	if b.MaxStockQty == nil {
		return 0, false
	}
	room := *b.MaxStockQty - b.Quantity
	if room < 0 {
		room = 0
	}
	return room, true
}

// ApplyDelta mutates the batch quantity by the given signed amount and stamps
// the revision audit fields. Callers are expected to have validated the delta
// through the allocation engine first.
func (b *StockBatch) ApplyDelta(delta int64, reviser *int64) {
	b.Quantity += delta
	b.Reviser = reviser
	b.RevisedDate = time.Now()
	b.UpdatedAt = b.RevisedDate
	b.Version++
}

// MarkUnsellable excludes the batch from outbound allocation. It only flips
// the flag: the quantity mutation it accompanies stamps the revision fields,
// so a single save advances the version exactly once.
func (b *StockBatch) MarkUnsellable() {
	b.IsSellable = false
}

// TotalValue returns the value of the remaining batch quantity
func (b *StockBatch) TotalValue() decimal.Decimal {
	return decimal.NewFromInt(b.Quantity).Mul(b.UnitCost)
}

// SortFEFO orders batches in place by (ExpireDate ascending, nulls last;
// then CreatedAt ascending). This ordering is the allocation contract:
// soonest-to-expire stock is consumed first, batches without expiry last,
// ties broken by earliest creation. Dates compare at day granularity so
// timestamp noise cannot reorder batches.
func SortFEFO(batches []StockBatch) {
	sort.SliceStable(batches, func(i, j int) bool {
		ei, ej := batches[i].ExpireDate, batches[j].ExpireDate
		switch {
		case ei != nil && ej != nil:
			di, dj := dayOf(*ei), dayOf(*ej)
			if !di.Equal(dj) {
				return di.Before(dj)
			}
		case ei != nil:
			return true
		case ej != nil:
			return false
		}
		return batches[i].CreatedAt.Before(batches[j].CreatedAt)
	})
}

// dayOf strips the time-of-day component
func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// dayPtr normalizes an optional date to day granularity
func dayPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := dayOf(*t)
	return &d
}
