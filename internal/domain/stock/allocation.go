package stock

import (
	"time"

	"github.com/stockledger/backend/internal/domain/shared"
)

// BatchMovement records the intended quantity change on a single batch.
// Movements are plans, not mutations: the allocation engine computes them
// from a snapshot and the service applies them transactionally.
type BatchMovement struct {
	BatchID     int64
	BatchNumber string
	ChangeQty   int64 // Signed
	BeforeQty   int64
	AfterQty    int64
}

// AllocationPlan is the complete outcome of one allocation decision.
type AllocationPlan struct {
	Movements    []BatchMovement
	AppliedQty   int64 // Signed total actually planned across batches
	RemainingQty int64 // Requested magnitude that could not be placed/taken
	FullyApplied bool
}

// PlanAdjust computes the effect of a single-batch adjustment.
// changeQty is a positive magnitude, isAdd selects the direction. A decrease
// clamps at zero unless allowNegative permits the batch to go into backorder;
// the truncated portion is surfaced as RemainingQty instead of silently
// disappearing.
func PlanAdjust(batch *StockBatch, changeQty int64, isAdd, allowNegative bool) (*AllocationPlan, error) {
	if batch == nil {
		return nil, shared.ErrNotFound
	}
	if changeQty <= 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Change quantity must be positive")
	}

	var delta int64
	var remaining int64
	if isAdd {
		delta = changeQty
	} else {
		delta = -changeQty
		if !allowNegative && batch.Quantity+delta < 0 {
			available := batch.Quantity
			if available < 0 {
				available = 0
			}
			delta = -available
			remaining = changeQty - available
		}
	}

	plan := &AllocationPlan{
		Movements:    make([]BatchMovement, 0, 1),
		RemainingQty: remaining,
		FullyApplied: remaining == 0,
	}
	if delta != 0 {
		plan.Movements = append(plan.Movements, BatchMovement{
			BatchID:     batch.ID,
			BatchNumber: batch.BatchNumber,
			ChangeQty:   delta,
			BeforeQty:   batch.Quantity,
			AfterQty:    batch.Quantity + delta,
		})
		plan.AppliedQty = delta
	}
	return plan, nil
}

// PlanReturn distributes a returned quantity across the given batches in the
// caller-supplied order (typically the batches the original sale drew from).
// Each batch accepts at most its remaining capacity headroom; full batches
// are skipped without error. An unplaced remainder is partial success, not a
// failure - the caller decides what to do with RemainingQty.
func PlanReturn(batches []*StockBatch, changeQty int64) (*AllocationPlan, error) {
	if changeQty <= 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Return quantity must be positive")
	}
	if len(batches) == 0 {
		return nil, shared.NewDomainError("NO_BATCHES", "Return requires at least one target batch")
	}

	plan := &AllocationPlan{Movements: make([]BatchMovement, 0, len(batches))}
	remaining := changeQty

	for _, batch := range batches {
		if remaining == 0 {
			break
		}
		if batch == nil {
			return nil, shared.ErrNotFound
		}

		qtyToAdd := remaining
		if room, bounded := batch.Headroom(); bounded {
			if room < qtyToAdd {
				qtyToAdd = room
			}
		}
		if qtyToAdd <= 0 {
			continue // batch already at capacity
		}

		plan.Movements = append(plan.Movements, BatchMovement{
			BatchID:     batch.ID,
			BatchNumber: batch.BatchNumber,
			ChangeQty:   qtyToAdd,
			BeforeQty:   batch.Quantity,
			AfterQty:    batch.Quantity + qtyToAdd,
		})
		plan.AppliedQty += qtyToAdd
		remaining -= qtyToAdd
	}

	plan.RemainingQty = remaining
	plan.FullyApplied = remaining == 0
	return plan, nil
}

// PlanOutbound consumes a requested quantity across a SKU's batches in FEFO
// order: soonest-to-expire first, batches without expiry last, earliest
// created first among ties. Expired, unsellable and empty batches are never
// allocated. A shortfall is reported via RemainingQty.
func PlanOutbound(batches []StockBatch, changeQty int64, now time.Time) (*AllocationPlan, error) {
	if changeQty <= 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Outbound quantity must be positive")
	}

	eligible := make([]StockBatch, 0, len(batches))
	for _, b := range batches {
		if b.IsAllocatable(now) {
			eligible = append(eligible, b)
		}
	}
	SortFEFO(eligible)

	plan := &AllocationPlan{Movements: make([]BatchMovement, 0, len(eligible))}
	remaining := changeQty

	for _, batch := range eligible {
		if remaining == 0 {
			break
		}
		take := remaining
		if batch.Quantity < take {
			take = batch.Quantity
		}
		plan.Movements = append(plan.Movements, BatchMovement{
			BatchID:     batch.ID,
			BatchNumber: batch.BatchNumber,
			ChangeQty:   -take,
			BeforeQty:   batch.Quantity,
			AfterQty:    batch.Quantity - take,
		})
		plan.AppliedQty -= take
		remaining -= take
	}

	plan.RemainingQty = remaining
	plan.FullyApplied = remaining == 0
	return plan, nil
}

// PlanExpireWriteOff zeroes expired batches that still have stock. A positive
// limit caps how many batches one pass touches; zero means unbounded.
func PlanExpireWriteOff(batches []StockBatch, now time.Time, limit int) *AllocationPlan {
	plan := &AllocationPlan{Movements: make([]BatchMovement, 0)}
	for _, batch := range batches {
		if limit > 0 && len(plan.Movements) >= limit {
			break
		}
		if !batch.IsExpired(now) || batch.Quantity <= 0 {
			continue
		}
		plan.Movements = append(plan.Movements, BatchMovement{
			BatchID:     batch.ID,
			BatchNumber: batch.BatchNumber,
			ChangeQty:   -batch.Quantity,
			BeforeQty:   batch.Quantity,
			AfterQty:    0,
		})
		plan.AppliedQty -= batch.Quantity
	}
	plan.FullyApplied = true
	return plan
}

// ApplyPlan executes the planned movements against the actual batch
// entities. The plan was computed from a snapshot of the same batches, so a
// mismatch between the recorded BeforeQty and the current quantity means the
// snapshot went stale and the caller must reload and replan.
func ApplyPlan(batches []*StockBatch, plan *AllocationPlan, reviser *int64) error {
	if plan == nil {
		return shared.NewDomainError("INVALID_PLAN", "Allocation plan cannot be nil")
	}

	byID := make(map[int64]*StockBatch, len(batches))
	for _, b := range batches {
		byID[b.ID] = b
	}

	for _, m := range plan.Movements {
		batch, ok := byID[m.BatchID]
		if !ok {
			return shared.ErrNotFound
		}
		if batch.Quantity != m.BeforeQty {
			return shared.ErrConcurrencyConflict
		}
		batch.ApplyDelta(m.ChangeQty, reviser)
	}
	return nil
}

// TotalAvailable sums the allocatable quantity across batches.
func TotalAvailable(batches []StockBatch, now time.Time) int64 {
	var total int64
	for _, b := range batches {
		if b.IsAllocatable(now) {
			total += b.Quantity
		}
	}
	return total
}
