package stock

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockledger/backend/internal/domain/stock"
)

// AdjustStockRequest adjusts a single, explicitly targeted batch.
// ChangeQty is a positive magnitude; IsAdd selects the direction.
type AdjustStockRequest struct {
	BatchID        int64
	SkuID          int64
	ChangeQty      int64
	IsAdd          bool
	ActorID        *int64
	Remark         string
	AllowBackorder bool // Per-request override; OR-ed with the SKU policy
}

// ReturnStockRequest redistributes a returned quantity across the given
// batches in the caller-supplied order (typically the batches the original
// sale drew from).
type ReturnStockRequest struct {
	SkuID     int64
	ChangeQty int64
	BatchIDs  []int64
	ActorID   int64
	Remark    string
}

// SellStockRequest consumes stock across a SKU's batches in FEFO order.
type SellStockRequest struct {
	SkuID     int64
	ChangeQty int64
	ActorID   *int64
	Remark    string
}

// ReceiveStockRequest records an inbound lot as a new batch of the SKU.
type ReceiveStockRequest struct {
	SkuID           int64
	BatchNumber     string
	Quantity        int64
	UnitCost        decimal.Decimal
	ManufactureDate *time.Time
	ExpireDate      *time.Time
	ActorID         *int64
	Remark          string
}

// BatchMovementView is one per-batch movement of an operation, for display
// and audit.
type BatchMovementView struct {
	BatchID     int64  `json:"batch_id"`
	BatchNumber string `json:"batch_number"`
	ChangeQty   int64  `json:"change_qty"`
	BeforeQty   int64  `json:"before_qty"`
	AfterQty    int64  `json:"after_qty"`
}

// StockAdjustResult is the outcome of any mutating stock operation.
// Business-rule violations are reported through Success=false and Message,
// never through errors; RemainingQty > 0 with Success=true signals partial
// application the caller must surface to the operator.
type StockAdjustResult struct {
	SkuID          int64               `json:"sku_id"`
	TotalStock     int64               `json:"total_stock"`
	Success        bool                `json:"success"`
	AdjustedQty    int64               `json:"adjusted_qty"`
	RemainingQty   int64               `json:"remaining_qty"`
	PredictedQty   int64               `json:"predicted_qty"`
	Message        string              `json:"message,omitempty"`
	OperationRef   string              `json:"operation_ref,omitempty"`
	BatchMovements []BatchMovementView `json:"batch_movements"`
}

// BatchView is the read model for a stock batch
type BatchView struct {
	ID              int64      `json:"id"`
	SkuID           int64      `json:"sku_id"`
	BatchNumber     string     `json:"batch_number"`
	Quantity        int64      `json:"quantity"`
	UnitCost        string     `json:"unit_cost"`
	TotalValue      string     `json:"total_value"`
	ManufactureDate *time.Time `json:"manufacture_date,omitempty"`
	ExpireDate      *time.Time `json:"expire_date,omitempty"`
	IsSellable      bool       `json:"is_sellable"`
	MaxStockQty     *int64     `json:"max_stock_qty,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// HistoryView is the read model for a ledger entry
type HistoryView struct {
	ID           int64     `json:"id"`
	StockBatchID int64     `json:"stock_batch_id"`
	SkuID        int64     `json:"sku_id"`
	ChangeType   string    `json:"change_type"`
	ChangeLabel  string    `json:"change_label"`
	ChangeQty    int64     `json:"change_qty"`
	BeforeQty    int64     `json:"before_qty"`
	AfterQty     int64     `json:"after_qty"`
	Reviser      *int64    `json:"reviser,omitempty"`
	RevisedDate  time.Time `json:"revised_date"`
	Remark       string    `json:"remark,omitempty"`
	OperationRef string    `json:"operation_ref"`
}

// SkuView is the read model for a SKU with its aggregate quantity and the
// replenishment signals derived from it.
type SkuView struct {
	ID                int64  `json:"id"`
	SkuCode           string `json:"sku_code"`
	Name              string `json:"name"`
	StockQty          int64  `json:"stock_qty"`
	AvailableQty      int64  `json:"available_qty"`
	UnitCost          string `json:"unit_cost"`
	TotalValue        string `json:"total_value"`
	MaxStockQty       *int64 `json:"max_stock_qty,omitempty"`
	ReorderPoint      int64  `json:"reorder_point"`
	SafetyStockQty    int64  `json:"safety_stock_qty"`
	BelowReorderPoint bool   `json:"below_reorder_point"`
	BelowSafetyStock  bool   `json:"below_safety_stock"`
	AllowBackorder    bool   `json:"allow_backorder"`
	Version           int    `json:"version"`
}

// ToBatchView converts a domain batch to its read model
func ToBatchView(b *stock.StockBatch) BatchView {
	return BatchView{
		ID:              b.ID,
		SkuID:           b.SkuID,
		BatchNumber:     b.BatchNumber,
		Quantity:        b.Quantity,
		UnitCost:        b.UnitCost.StringFixed(4),
		TotalValue:      b.TotalValue().StringFixed(4),
		ManufactureDate: b.ManufactureDate,
		ExpireDate:      b.ExpireDate,
		IsSellable:      b.IsSellable,
		MaxStockQty:     b.MaxStockQty,
		CreatedAt:       b.CreatedAt,
	}
}

// ToBatchViews converts a slice of domain batches
func ToBatchViews(batches []stock.StockBatch) []BatchView {
	views := make([]BatchView, 0, len(batches))
	for i := range batches {
		views = append(views, ToBatchView(&batches[i]))
	}
	return views
}

// ToHistoryView converts a domain ledger entry to its read model
func ToHistoryView(h *stock.StockHistory) HistoryView {
	return HistoryView{
		ID:           h.ID,
		StockBatchID: h.StockBatchID,
		SkuID:        h.SkuID,
		ChangeType:   h.ChangeType.String(),
		ChangeLabel:  h.ChangeType.Describe(),
		ChangeQty:    h.ChangeQty,
		BeforeQty:    h.BeforeQty,
		AfterQty:     h.AfterQty,
		Reviser:      h.Reviser,
		RevisedDate:  h.RevisedDate,
		Remark:       h.Remark,
		OperationRef: h.OperationRef.String(),
	}
}

// ToHistoryViews converts a slice of domain ledger entries
func ToHistoryViews(entries []stock.StockHistory) []HistoryView {
	views := make([]HistoryView, 0, len(entries))
	for i := range entries {
		views = append(views, ToHistoryView(&entries[i]))
	}
	return views
}

// ToSkuView converts a domain SKU to its read model
func ToSkuView(s *stock.Sku) SkuView {
	return SkuView{
		ID:                s.ID,
		SkuCode:           s.SkuCode,
		Name:              s.Name,
		StockQty:          s.StockQty,
		UnitCost:          s.UnitCost.StringFixed(4),
		TotalValue:        s.TotalValue().StringFixed(4),
		MaxStockQty:       s.MaxStockQty,
		ReorderPoint:      s.ReorderPoint,
		SafetyStockQty:    s.SafetyStockQty,
		BelowReorderPoint: s.IsBelowReorderPoint(),
		BelowSafetyStock:  s.IsBelowSafetyStock(),
		AllowBackorder:    s.AllowBackorder,
		Version:           s.Version,
	}
}

// ToSkuViews converts a slice of domain SKUs
func ToSkuViews(skus []stock.Sku) []SkuView {
	views := make([]SkuView, 0, len(skus))
	for i := range skus {
		views = append(views, ToSkuView(&skus[i]))
	}
	return views
}

// toMovementViews converts engine movements to their read model
func toMovementViews(movements []stock.BatchMovement) []BatchMovementView {
	views := make([]BatchMovementView, 0, len(movements))
	for _, m := range movements {
		views = append(views, BatchMovementView{
			BatchID:     m.BatchID,
			BatchNumber: m.BatchNumber,
			ChangeQty:   m.ChangeQty,
			BeforeQty:   m.BeforeQty,
			AfterQty:    m.AfterQty,
		})
	}
	return views
}
