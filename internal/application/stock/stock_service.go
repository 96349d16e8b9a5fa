package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stockledger/backend/internal/domain/shared"
	"github.com/stockledger/backend/internal/domain/stock"
)

// defaultMaxRetries bounds replays of a mutation after an optimistic lock
// conflict.
const defaultMaxRetries = 3

// defaultExpiryWarnDays is the expiring-soon window when the caller does not
// name one.
const defaultExpiryWarnDays = 30

// StockService orchestrates stock mutations. Every mutating operation runs
// inside one transaction scope: batch updates, ledger entries and the SKU
// aggregate recompute commit or roll back together. Expected business-rule
// violations come back as Success=false results; only infrastructure
// failures surface as errors.
type StockService struct {
	scope          TransactionScope
	logger         *zap.Logger
	maxRetries     int
	expiryWarnDays int
	writeOffLimit  int // Max batches zeroed per write-off pass, 0 = unbounded
	now            func() time.Time
}

// NewStockService creates a stock service
func NewStockService(scope TransactionScope, logger *zap.Logger) *StockService {
	return &StockService{
		scope:          scope,
		logger:         logger,
		maxRetries:     defaultMaxRetries,
		expiryWarnDays: defaultExpiryWarnDays,
		now:            time.Now,
	}
}

// WithMaxRetries overrides the optimistic-conflict retry budget
func (s *StockService) WithMaxRetries(n int) *StockService {
	if n > 0 {
		s.maxRetries = n
	}
	return s
}

// WithExpiryWarnDays overrides the default expiring-soon window
func (s *StockService) WithExpiryWarnDays(n int) *StockService {
	if n > 0 {
		s.expiryWarnDays = n
	}
	return s
}

// WithWriteOffLimit caps how many batches one write-off pass may zero
func (s *StockService) WithWriteOffLimit(n int) *StockService {
	if n > 0 {
		s.writeOffLimit = n
	}
	return s
}

// AdjustStock applies a manual adjustment to one explicitly targeted batch.
// A decrease clamps at zero unless backorder is permitted; the truncated
// portion is reported via RemainingQty so a partial application is never
// silent.
func (s *StockService) AdjustStock(ctx context.Context, req AdjustStockRequest) (*StockAdjustResult, error) {
	if req.ChangeQty <= 0 {
		return failedResult(req.SkuID, "Change quantity must be positive"), nil
	}

	var result *StockAdjustResult
	err := s.withRetry(ctx, "adjust", func() error {
		return s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			batch, err := repos.BatchRepo().FindByID(ctx, req.BatchID)
			if err != nil {
				return err
			}
			if batch.SkuID != req.SkuID {
				return shared.NewDomainError("BATCH_SKU_MISMATCH",
					fmt.Sprintf("Batch %d does not belong to SKU %d", req.BatchID, req.SkuID))
			}
			sku, err := repos.SkuRepo().FindByID(ctx, req.SkuID)
			if err != nil {
				return err
			}

			plan, err := stock.PlanAdjust(batch, req.ChangeQty, req.IsAdd, sku.BackorderAllowed(req.AllowBackorder))
			if err != nil {
				return err
			}

			opRef := uuid.New()
			if err := s.commitPlan(ctx, repos, []*stock.StockBatch{batch}, plan, stock.ChangeTypeAdjust, req.ActorID, req.Remark, opRef); err != nil {
				return err
			}

			total, err := s.refreshAggregate(ctx, repos, sku)
			if err != nil {
				return err
			}

			requested := req.ChangeQty
			if !req.IsAdd {
				requested = -requested
			}
			result = buildResult(sku, total, plan, opRef, requested)
			if !plan.FullyApplied {
				result.Message = fmt.Sprintf("Adjustment truncated at zero: %d of %d applied", -plan.AppliedQty, req.ChangeQty)
			}
			s.warnIfBelowReorder(sku)
			return nil
		})
	})
	return s.finish(req.SkuID, result, err)
}

// ReturnStock places a returned quantity back into the given batches in the
// caller-supplied order. Each batch accepts at most its capacity headroom;
// an unplaceable remainder is reported via RemainingQty as partial success.
// A non-positive quantity is a no-op success, not an error.
func (s *StockService) ReturnStock(ctx context.Context, req ReturnStockRequest) (*StockAdjustResult, error) {
	if req.ChangeQty <= 0 {
		return s.noOpResult(ctx, req.SkuID)
	}
	if len(req.BatchIDs) == 0 {
		return failedResult(req.SkuID, "Return requires at least one target batch"), nil
	}

	var result *StockAdjustResult
	err := s.withRetry(ctx, "return", func() error {
		return s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			sku, err := repos.SkuRepo().FindByID(ctx, req.SkuID)
			if err != nil {
				return err
			}
			batches, err := s.loadOrdered(ctx, repos, req.SkuID, req.BatchIDs)
			if err != nil {
				return err
			}

			plan, err := stock.PlanReturn(batches, req.ChangeQty)
			if err != nil {
				return err
			}

			opRef := uuid.New()
			if err := s.commitPlan(ctx, repos, batches, plan, stock.ChangeTypeReturn, &req.ActorID, req.Remark, opRef); err != nil {
				return err
			}

			total, err := s.refreshAggregate(ctx, repos, sku)
			if err != nil {
				return err
			}

			result = buildResult(sku, total, plan, opRef, req.ChangeQty)
			if !plan.FullyApplied {
				result.Message = fmt.Sprintf("Batches at capacity: %d of %d placed", plan.AppliedQty, req.ChangeQty)
			}
			return nil
		})
	})
	return s.finish(req.SkuID, result, err)
}

// SellStock consumes stock across a SKU's batches in FEFO order: soonest to
// expire first, batches without expiry last, earliest created among ties.
// A shortfall is partial success with the unfilled amount in RemainingQty.
func (s *StockService) SellStock(ctx context.Context, req SellStockRequest) (*StockAdjustResult, error) {
	if req.ChangeQty <= 0 {
		return failedResult(req.SkuID, "Sale quantity must be positive"), nil
	}

	var result *StockAdjustResult
	err := s.withRetry(ctx, "sell", func() error {
		return s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			sku, err := repos.SkuRepo().FindByID(ctx, req.SkuID)
			if err != nil {
				return err
			}
			batches, err := repos.BatchRepo().FindBySku(ctx, req.SkuID, true)
			if err != nil {
				return err
			}

			plan, err := stock.PlanOutbound(batches, req.ChangeQty, s.now())
			if err != nil {
				return err
			}

			targets := make([]*stock.StockBatch, len(batches))
			for i := range batches {
				targets[i] = &batches[i]
			}

			opRef := uuid.New()
			if err := s.commitPlan(ctx, repos, targets, plan, stock.ChangeTypeSale, req.ActorID, req.Remark, opRef); err != nil {
				return err
			}

			total, err := s.refreshAggregate(ctx, repos, sku)
			if err != nil {
				return err
			}

			result = buildResult(sku, total, plan, opRef, -req.ChangeQty)
			if !plan.FullyApplied {
				result.Message = fmt.Sprintf("Insufficient stock: %d of %d allocated", -plan.AppliedQty, req.ChangeQty)
			}
			s.warnIfBelowReorder(sku)
			return nil
		})
	})
	return s.finish(req.SkuID, result, err)
}

// ReceiveStock records an inbound lot as a new batch of the SKU and folds
// its cost into the SKU's moving average unit cost.
func (s *StockService) ReceiveStock(ctx context.Context, req ReceiveStockRequest) (*StockAdjustResult, error) {
	if req.Quantity <= 0 {
		return failedResult(req.SkuID, "Receive quantity must be positive"), nil
	}

	var result *StockAdjustResult
	err := s.withRetry(ctx, "receive", func() error {
		return s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			sku, err := repos.SkuRepo().FindByID(ctx, req.SkuID)
			if err != nil {
				return err
			}
			if _, err := repos.BatchRepo().FindByBatchNumber(ctx, req.SkuID, req.BatchNumber); err == nil {
				return shared.NewDomainError("BATCH_EXISTS",
					fmt.Sprintf("Batch %s already exists for SKU %d", req.BatchNumber, req.SkuID))
			} else if !errors.Is(err, shared.ErrNotFound) {
				return err
			}

			batch, err := stock.NewStockBatch(req.SkuID, req.BatchNumber, 0, req.UnitCost,
				req.ManufactureDate, req.ExpireDate, sku.MaxStockQty)
			if err != nil {
				return err
			}
			if err := repos.BatchRepo().Save(ctx, batch); err != nil {
				return err
			}

			plan, err := stock.PlanAdjust(batch, req.Quantity, true, false)
			if err != nil {
				return err
			}

			opRef := uuid.New()
			if err := s.commitPlan(ctx, repos, []*stock.StockBatch{batch}, plan, stock.ChangeTypePurchase, req.ActorID, req.Remark, opRef); err != nil {
				return err
			}

			if err := sku.AbsorbCost(req.Quantity, req.UnitCost); err != nil {
				return err
			}
			total, err := s.refreshAggregate(ctx, repos, sku)
			if err != nil {
				return err
			}

			result = buildResult(sku, total, plan, opRef, req.Quantity)
			return nil
		})
	})
	return s.finish(req.SkuID, result, err)
}

// WriteOffExpired zeroes the SKU's expired batches that still have stock and
// marks them unsellable, recording one Expire ledger entry per batch. A
// configured write-off limit caps how many batches one pass touches; callers
// re-run the operation until FullyApplied, i.e. Message reports zero batches.
func (s *StockService) WriteOffExpired(ctx context.Context, skuID int64, actorID *int64, remark string) (*StockAdjustResult, error) {
	var result *StockAdjustResult
	err := s.withRetry(ctx, "write-off", func() error {
		return s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			sku, err := repos.SkuRepo().FindByID(ctx, skuID)
			if err != nil {
				return err
			}
			batches, err := repos.BatchRepo().FindBySku(ctx, skuID, false)
			if err != nil {
				return err
			}

			now := s.now()
			plan := stock.PlanExpireWriteOff(batches, now, s.writeOffLimit)

			targets := make([]*stock.StockBatch, len(batches))
			for i := range batches {
				targets[i] = &batches[i]
			}

			opRef := uuid.New()
			if err := stock.ApplyPlan(targets, plan, actorID); err != nil {
				return err
			}
			written := make(map[int64]bool, len(plan.Movements))
			for _, m := range plan.Movements {
				written[m.BatchID] = true
			}
			for _, b := range targets {
				if !written[b.ID] {
					continue
				}
				b.MarkUnsellable()
				if err := repos.BatchRepo().SaveWithLock(ctx, b); err != nil {
					return err
				}
			}
			if err := s.appendLedger(ctx, repos, skuID, plan, stock.ChangeTypeExpire, actorID, remark, opRef); err != nil {
				return err
			}

			total, err := s.refreshAggregate(ctx, repos, sku)
			if err != nil {
				return err
			}

			result = buildResult(sku, total, plan, opRef, plan.AppliedQty)
			result.Message = fmt.Sprintf("Wrote off %d expired batches", len(plan.Movements))
			return nil
		})
	})
	return s.finish(skuID, result, err)
}

// GetBatchesBySku returns the SKU's batches in FEFO order. When forDecrease
// is true only sellable batches with positive quantity are returned, i.e.
// the candidates an outbound allocation would consider.
func (s *StockService) GetBatchesBySku(ctx context.Context, skuID int64, forDecrease bool) ([]BatchView, error) {
	var views []BatchView
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		batches, err := repos.BatchRepo().FindBySku(ctx, skuID, forDecrease)
		if err != nil {
			return err
		}
		views = ToBatchViews(batches)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

// GetSku returns a SKU read model by ID. AvailableQty counts only sellable,
// unexpired stock, so it can trail StockQty when batches have expired but not
// yet been written off.
func (s *StockService) GetSku(ctx context.Context, skuID int64) (*SkuView, error) {
	var view *SkuView
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		sku, err := repos.SkuRepo().FindByID(ctx, skuID)
		if err != nil {
			return err
		}
		batches, err := repos.BatchRepo().FindBySku(ctx, skuID, false)
		if err != nil {
			return err
		}
		v := ToSkuView(sku)
		v.AvailableQty = stock.TotalAvailable(batches, s.now())
		view = &v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// GetHistoryBySku returns the SKU's ledger entries, newest first
func (s *StockService) GetHistoryBySku(ctx context.Context, skuID int64, filter shared.Filter) ([]HistoryView, error) {
	var views []HistoryView
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		entries, err := repos.HistoryRepo().FindBySku(ctx, skuID, filter)
		if err != nil {
			return err
		}
		views = ToHistoryViews(entries)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

// GetHistoryByBatch returns a batch's ledger entries, newest first
func (s *StockService) GetHistoryByBatch(ctx context.Context, batchID int64, filter shared.Filter) ([]HistoryView, error) {
	var views []HistoryView
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		entries, err := repos.HistoryRepo().FindByBatch(ctx, batchID, filter)
		if err != nil {
			return err
		}
		views = ToHistoryViews(entries)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

// GetHistoryByDateRange returns the SKU's ledger entries within a time window
func (s *StockService) GetHistoryByDateRange(ctx context.Context, skuID int64, start, end time.Time, filter shared.Filter) ([]HistoryView, error) {
	var views []HistoryView
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		entries, err := repos.HistoryRepo().FindByDateRange(ctx, skuID, start, end, filter)
		if err != nil {
			return err
		}
		views = ToHistoryViews(entries)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

// GetExpiringBatches returns batches with stock expiring within the window.
// A non-positive withinDays falls back to the configured warning window.
func (s *StockService) GetExpiringBatches(ctx context.Context, withinDays int, filter shared.Filter) ([]BatchView, error) {
	if withinDays <= 0 {
		withinDays = s.expiryWarnDays
	}
	var views []BatchView
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		batches, err := repos.BatchRepo().FindExpiringSoon(ctx, withinDays, filter)
		if err != nil {
			return err
		}
		views = ToBatchViews(batches)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

// GetExpiredBatches returns batches past their expiry date that still hold
// stock, i.e. the candidates the next write-off pass would touch.
func (s *StockService) GetExpiredBatches(ctx context.Context, filter shared.Filter) ([]BatchView, error) {
	var views []BatchView
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		batches, err := repos.BatchRepo().FindExpired(ctx, filter)
		if err != nil {
			return err
		}
		views = ToBatchViews(batches)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

// GetSkusBelowReorder returns SKUs whose stock has dropped below their
// reorder threshold
func (s *StockService) GetSkusBelowReorder(ctx context.Context, filter shared.Filter) ([]SkuView, error) {
	var views []SkuView
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		skus, err := repos.SkuRepo().FindBelowReorderPoint(ctx, filter)
		if err != nil {
			return err
		}
		views = ToSkuViews(skus)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

// GetHistoryByOperation returns every ledger entry one logical operation
// wrote, reassembling a multi-batch movement from its OperationRef.
func (s *StockService) GetHistoryByOperation(ctx context.Context, ref uuid.UUID) ([]HistoryView, error) {
	var views []HistoryView
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		entries, err := repos.HistoryRepo().FindByOperationRef(ctx, ref)
		if err != nil {
			return err
		}
		views = ToHistoryViews(entries)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

// loadOrdered loads the requested batches and arranges them in the request
// order. Any missing or foreign batch rejects the whole operation.
func (s *StockService) loadOrdered(ctx context.Context, repos TransactionalRepositories, skuID int64, ids []int64) ([]*stock.StockBatch, error) {
	batches, err := repos.BatchRepo().FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*stock.StockBatch, len(batches))
	for i := range batches {
		byID[batches[i].ID] = &batches[i]
	}

	ordered := make([]*stock.StockBatch, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return nil, shared.NewDomainError("DUPLICATE_BATCH", fmt.Sprintf("Batch %d listed twice", id))
		}
		seen[id] = true
		batch, ok := byID[id]
		if !ok {
			return nil, shared.NewDomainError("BATCH_NOT_FOUND", fmt.Sprintf("Batch %d not found", id))
		}
		if batch.SkuID != skuID {
			return nil, shared.NewDomainError("BATCH_SKU_MISMATCH",
				fmt.Sprintf("Batch %d does not belong to SKU %d", id, skuID))
		}
		ordered = append(ordered, batch)
	}
	return ordered, nil
}

// commitPlan mutates the planned batches, persists them with optimistic
// locking and appends the ledger entries, all within the caller's scope.
func (s *StockService) commitPlan(
	ctx context.Context,
	repos TransactionalRepositories,
	batches []*stock.StockBatch,
	plan *stock.AllocationPlan,
	changeType stock.ChangeType,
	actorID *int64,
	remark string,
	opRef uuid.UUID,
) error {
	if len(plan.Movements) == 0 {
		return nil
	}
	if err := stock.ApplyPlan(batches, plan, actorID); err != nil {
		return err
	}
	written := make(map[int64]bool, len(plan.Movements))
	for _, m := range plan.Movements {
		written[m.BatchID] = true
	}
	var skuID int64
	for _, b := range batches {
		if !written[b.ID] {
			continue
		}
		skuID = b.SkuID
		if err := repos.BatchRepo().SaveWithLock(ctx, b); err != nil {
			return err
		}
	}
	return s.appendLedger(ctx, repos, skuID, plan, changeType, actorID, remark, opRef)
}

// appendLedger writes one ledger entry per planned movement, all sharing the
// operation reference.
func (s *StockService) appendLedger(
	ctx context.Context,
	repos TransactionalRepositories,
	skuID int64,
	plan *stock.AllocationPlan,
	changeType stock.ChangeType,
	actorID *int64,
	remark string,
	opRef uuid.UUID,
) error {
	if len(plan.Movements) == 0 {
		return nil
	}
	entries := make([]*stock.StockHistory, 0, len(plan.Movements))
	for _, m := range plan.Movements {
		entry, err := stock.NewStockHistory(m.BatchID, skuID, changeType, m.ChangeQty, m.BeforeQty, actorID, remark, opRef)
		if err != nil {
			return err
		}
		entries = append(entries, entry)
	}
	return repos.HistoryRepo().CreateBatch(ctx, entries)
}

// refreshAggregate recomputes the SKU's denormalized total from the batch
// table inside the current transaction and persists it with optimistic
// locking. Every mutating path goes through here so the aggregate can never
// drift from the batch sum.
func (s *StockService) refreshAggregate(ctx context.Context, repos TransactionalRepositories, sku *stock.Sku) (int64, error) {
	total, err := repos.SkuRepo().SumBatchQuantity(ctx, sku.ID)
	if err != nil {
		return 0, err
	}
	sku.SetBatchTotal(total)
	if err := repos.SkuRepo().SaveWithLock(ctx, sku); err != nil {
		return 0, err
	}
	return total, nil
}

// withRetry replays the unit of work after optimistic lock conflicts, up to
// the retry budget. Anything else returns immediately.
func (s *StockService) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err = fn()
		if !errors.Is(err, shared.ErrConcurrencyConflict) {
			return err
		}
		s.logger.Warn("optimistic lock conflict, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", s.maxRetries))
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}

// finish translates expected business-rule violations into Success=false
// results; infrastructure and concurrency failures propagate as errors.
func (s *StockService) finish(skuID int64, result *StockAdjustResult, err error) (*StockAdjustResult, error) {
	if err == nil {
		return result, nil
	}
	if errors.Is(err, shared.ErrConcurrencyConflict) {
		return nil, err
	}
	// ErrNotFound is itself a DomainError, so check it before the
	// generic unwrap or it would surface with the sentinel's message.
	if errors.Is(err, shared.ErrNotFound) {
		return failedResult(skuID, "Record not found"), nil
	}
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return failedResult(skuID, domainErr.Message), nil
	}
	return nil, err
}

// noOpResult reports a zero-quantity request as success without touching any
// batch or writing to the ledger.
func (s *StockService) noOpResult(ctx context.Context, skuID int64) (*StockAdjustResult, error) {
	result := &StockAdjustResult{
		SkuID:          skuID,
		Success:        true,
		BatchMovements: []BatchMovementView{},
	}
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		sku, err := repos.SkuRepo().FindByID(ctx, skuID)
		if err != nil {
			return err
		}
		result.TotalStock = sku.StockQty
		result.PredictedQty = sku.StockQty
		return nil
	})
	return s.finish(skuID, result, err)
}

// warnIfBelowReorder logs a warning when a mutation leaves the SKU below its
// reorder threshold.
func (s *StockService) warnIfBelowReorder(sku *stock.Sku) {
	if !sku.IsBelowReorderPoint() {
		return
	}
	s.logger.Warn("stock below reorder point",
		zap.Int64("sku_id", sku.ID),
		zap.String("sku_code", sku.SkuCode),
		zap.Int64("stock_qty", sku.StockQty),
		zap.Int64("reorder_point", sku.ReorderPoint))
}

// buildResult assembles the operation result. requestedQty is the signed
// quantity the caller asked for; PredictedQty is the total the SKU would
// have reached had the full request applied, so callers can show the gap a
// partial application left.
func buildResult(sku *stock.Sku, total int64, plan *stock.AllocationPlan, opRef uuid.UUID, requestedQty int64) *StockAdjustResult {
	predicted := total + requestedQty - plan.AppliedQty
	return &StockAdjustResult{
		SkuID:          sku.ID,
		TotalStock:     total,
		Success:        true,
		AdjustedQty:    plan.AppliedQty,
		RemainingQty:   plan.RemainingQty,
		PredictedQty:   predicted,
		OperationRef:   opRef.String(),
		BatchMovements: toMovementViews(plan.Movements),
	}
}

// failedResult builds a business-rule rejection result
func failedResult(skuID int64, message string) *StockAdjustResult {
	return &StockAdjustResult{
		SkuID:          skuID,
		Success:        false,
		Message:        message,
		BatchMovements: []BatchMovementView{},
	}
}
