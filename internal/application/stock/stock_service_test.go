package stock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stockledger/backend/internal/domain/shared"
	"github.com/stockledger/backend/internal/domain/stock"
)

// fakeSkuRepo is an in-memory SkuRepository. It hands out copies so a
// failed attempt leaves the stored state untouched, mimicking a rolled-back
// transaction.
type fakeSkuRepo struct {
	mu           sync.Mutex
	skus         map[int64]*stock.Sku
	batches      *fakeBatchRepo
	lockFailures int // Next N SaveWithLock calls fail with a conflict
}

func newFakeSkuRepo(batches *fakeBatchRepo) *fakeSkuRepo {
	return &fakeSkuRepo{skus: make(map[int64]*stock.Sku), batches: batches}
}

func (r *fakeSkuRepo) FindByID(ctx context.Context, id int64) (*stock.Sku, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sku, ok := r.skus[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *sku
	return &cp, nil
}

func (r *fakeSkuRepo) FindBySkuCode(ctx context.Context, code string) (*stock.Sku, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sku := range r.skus {
		if sku.SkuCode == code {
			cp := *sku
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeSkuRepo) FindAll(ctx context.Context, filter shared.Filter) ([]stock.Sku, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]stock.Sku, 0, len(r.skus))
	for _, sku := range r.skus {
		out = append(out, *sku)
	}
	return out, nil
}

func (r *fakeSkuRepo) FindBelowReorderPoint(ctx context.Context, filter shared.Filter) ([]stock.Sku, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]stock.Sku, 0)
	for _, sku := range r.skus {
		if sku.IsBelowReorderPoint() {
			out = append(out, *sku)
		}
	}
	return out, nil
}

func (r *fakeSkuRepo) SumBatchQuantity(ctx context.Context, skuID int64) (int64, error) {
	return r.batches.sumForSku(skuID), nil
}

func (r *fakeSkuRepo) Save(ctx context.Context, sku *stock.Sku) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *sku
	r.skus[sku.ID] = &cp
	return nil
}

func (r *fakeSkuRepo) SaveWithLock(ctx context.Context, sku *stock.Sku) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lockFailures > 0 {
		r.lockFailures--
		return shared.ErrConcurrencyConflict
	}
	// Same predicate as the SQL update: the incoming aggregate must be
	// exactly one version ahead of the stored row.
	stored, ok := r.skus[sku.ID]
	if !ok || stored.Version != sku.Version-1 {
		return shared.ErrConcurrencyConflict
	}
	cp := *sku
	r.skus[sku.ID] = &cp
	return nil
}

func (r *fakeSkuRepo) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.skus)), nil
}

// fakeBatchRepo is an in-memory StockBatchRepository
type fakeBatchRepo struct {
	mu           sync.Mutex
	batches      map[int64]*stock.StockBatch
	nextID       int64
	lockFailures int
}

func newFakeBatchRepo() *fakeBatchRepo {
	return &fakeBatchRepo{batches: make(map[int64]*stock.StockBatch), nextID: 1}
}

func (r *fakeBatchRepo) sumForSku(skuID int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, b := range r.batches {
		if b.SkuID == skuID {
			total += b.Quantity
		}
	}
	return total
}

func (r *fakeBatchRepo) FindByID(ctx context.Context, id int64) (*stock.StockBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *fakeBatchRepo) FindBySku(ctx context.Context, skuID int64, forDecrease bool) ([]stock.StockBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]stock.StockBatch, 0)
	for _, b := range r.batches {
		if b.SkuID != skuID {
			continue
		}
		if forDecrease && (!b.IsSellable || b.Quantity <= 0) {
			continue
		}
		out = append(out, *b)
	}
	stock.SortFEFO(out)
	return out, nil
}

func (r *fakeBatchRepo) FindByIDs(ctx context.Context, ids []int64) ([]stock.StockBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]stock.StockBatch, 0, len(ids))
	for _, id := range ids {
		if b, ok := r.batches[id]; ok {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *fakeBatchRepo) FindByBatchNumber(ctx context.Context, skuID int64, batchNumber string) (*stock.StockBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.batches {
		if b.SkuID == skuID && b.BatchNumber == batchNumber {
			cp := *b
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeBatchRepo) FindExpiringSoon(ctx context.Context, withinDays int, filter shared.Filter) ([]stock.StockBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().AddDate(0, 0, withinDays)
	out := make([]stock.StockBatch, 0)
	for _, b := range r.batches {
		if b.HasStock() && b.ExpireDate != nil && b.ExpireDate.Before(cutoff) {
			out = append(out, *b)
		}
	}
	stock.SortFEFO(out)
	return out, nil
}

func (r *fakeBatchRepo) FindExpired(ctx context.Context, filter shared.Filter) ([]stock.StockBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	out := make([]stock.StockBatch, 0)
	for _, b := range r.batches {
		if b.HasStock() && b.IsExpired(now) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *fakeBatchRepo) Save(ctx context.Context, batch *stock.StockBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if batch.ID == 0 {
		batch.ID = r.nextID
		r.nextID++
	}
	cp := *batch
	r.batches[batch.ID] = &cp
	return nil
}

func (r *fakeBatchRepo) SaveWithLock(ctx context.Context, batch *stock.StockBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lockFailures > 0 {
		r.lockFailures--
		return shared.ErrConcurrencyConflict
	}
	stored, ok := r.batches[batch.ID]
	if !ok || stored.Version != batch.Version-1 {
		return shared.ErrConcurrencyConflict
	}
	cp := *batch
	r.batches[batch.ID] = &cp
	return nil
}

func (r *fakeBatchRepo) CountBySku(ctx context.Context, skuID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, b := range r.batches {
		if b.SkuID == skuID {
			n++
		}
	}
	return n, nil
}

// fakeHistoryRepo is an in-memory, append-only StockHistoryRepository
type fakeHistoryRepo struct {
	mu      sync.Mutex
	entries []stock.StockHistory
	nextID  int64
}

func newFakeHistoryRepo() *fakeHistoryRepo {
	return &fakeHistoryRepo{nextID: 1}
}

func (r *fakeHistoryRepo) Create(ctx context.Context, entry *stock.StockHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = r.nextID
	r.nextID++
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeHistoryRepo) CreateBatch(ctx context.Context, entries []*stock.StockHistory) error {
	for _, e := range entries {
		if err := r.Create(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeHistoryRepo) FindByID(ctx context.Context, id int64) (*stock.StockHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].ID == id {
			cp := r.entries[i]
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeHistoryRepo) FindByBatch(ctx context.Context, batchID int64, filter shared.Filter) ([]stock.StockHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]stock.StockHistory, 0)
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].StockBatchID == batchID {
			out = append(out, r.entries[i])
		}
	}
	return out, nil
}

func (r *fakeHistoryRepo) FindBySku(ctx context.Context, skuID int64, filter shared.Filter) ([]stock.StockHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]stock.StockHistory, 0)
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].SkuID == skuID {
			out = append(out, r.entries[i])
		}
	}
	return out, nil
}

func (r *fakeHistoryRepo) FindByOperationRef(ctx context.Context, ref uuid.UUID) ([]stock.StockHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]stock.StockHistory, 0)
	for i := range r.entries {
		if r.entries[i].OperationRef == ref {
			out = append(out, r.entries[i])
		}
	}
	return out, nil
}

func (r *fakeHistoryRepo) FindByDateRange(ctx context.Context, skuID int64, start, end time.Time, filter shared.Filter) ([]stock.StockHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]stock.StockHistory, 0)
	for i := range r.entries {
		e := r.entries[i]
		if e.SkuID == skuID && !e.RevisedDate.Before(start) && !e.RevisedDate.After(end) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeHistoryRepo) LatestForBatch(ctx context.Context, batchID int64) (*stock.StockHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].StockBatchID == batchID {
			cp := r.entries[i]
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeHistoryRepo) CountBySku(ctx context.Context, skuID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for i := range r.entries {
		if r.entries[i].SkuID == skuID {
			n++
		}
	}
	return n, nil
}

func (r *fakeHistoryRepo) all() []stock.StockHistory {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]stock.StockHistory, len(r.entries))
	copy(out, r.entries)
	return out
}

// fixture wires a service over the in-memory repositories
type fixture struct {
	skuRepo     *fakeSkuRepo
	batchRepo   *fakeBatchRepo
	historyRepo *fakeHistoryRepo
	service     *StockService
}

func newFixture() *fixture {
	batchRepo := newFakeBatchRepo()
	skuRepo := newFakeSkuRepo(batchRepo)
	historyRepo := newFakeHistoryRepo()
	scope := NewNoOpTransactionScope(skuRepo, batchRepo, historyRepo)
	return &fixture{
		skuRepo:     skuRepo,
		batchRepo:   batchRepo,
		historyRepo: historyRepo,
		service:     NewStockService(scope, zap.NewNop()),
	}
}

func (f *fixture) seedSku(t *testing.T, id int64, code string) *stock.Sku {
	t.Helper()
	sku, err := stock.NewSku(code, "Test "+code)
	require.NoError(t, err)
	sku.ID = id
	require.NoError(t, f.skuRepo.Save(context.Background(), sku))
	return sku
}

func (f *fixture) seedBatch(t *testing.T, id, skuID, quantity int64, batchNumber string, maxQty *int64, expireDate *time.Time) *stock.StockBatch {
	t.Helper()
	batch, err := stock.NewStockBatch(skuID, batchNumber, quantity, decimal.NewFromInt(10), nil, expireDate, maxQty)
	require.NoError(t, err)
	batch.ID = id
	require.NoError(t, f.batchRepo.Save(context.Background(), batch))
	f.syncAggregate(t, skuID)
	return batch
}

// syncAggregate brings the stored SKU total in line with the seeded batches
func (f *fixture) syncAggregate(t *testing.T, skuID int64) {
	t.Helper()
	sku, err := f.skuRepo.FindByID(context.Background(), skuID)
	require.NoError(t, err)
	sku.SetBatchTotal(f.batchRepo.sumForSku(skuID))
	require.NoError(t, f.skuRepo.Save(context.Background(), sku))
}

func int64Ref(v int64) *int64 { return &v }

func daysFromNow(d int) *time.Time {
	t := time.Now().AddDate(0, 0, d)
	return &t
}

func TestAdjustStock_Increase(t *testing.T) {
	f := newFixture()
	f.seedSku(t, 1, "SKU-001")
	f.seedBatch(t, 10, 1, 10, "B-001", nil, nil)

	result, err := f.service.AdjustStock(context.Background(), AdjustStockRequest{
		BatchID:   10,
		SkuID:     1,
		ChangeQty: 5,
		IsAdd:     true,
		ActorID:   int64Ref(7),
		Remark:    "cycle count",
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(5), result.AdjustedQty)
	assert.Equal(t, int64(0), result.RemainingQty)
	assert.Equal(t, int64(15), result.TotalStock)
	assert.Equal(t, int64(15), result.PredictedQty)
	require.Len(t, result.BatchMovements, 1)
	assert.Equal(t, int64(10), result.BatchMovements[0].BeforeQty)
	assert.Equal(t, int64(15), result.BatchMovements[0].AfterQty)

	entries := f.historyRepo.all()
	require.Len(t, entries, 1)
	assert.Equal(t, stock.ChangeTypeAdjust, entries[0].ChangeType)
	assert.Equal(t, int64(5), entries[0].ChangeQty)
	assert.Equal(t, int64(10), entries[0].BeforeQty)
	assert.Equal(t, int64(15), entries[0].AfterQty)
	assert.Equal(t, int64Ref(7), entries[0].Reviser)
	assert.Equal(t, "cycle count", entries[0].Remark)

	sku, err := f.skuRepo.FindByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(15), sku.StockQty)
}

func TestAdjustStock_DecreaseClampsAtZero(t *testing.T) {
	f := newFixture()
	f.seedSku(t, 1, "SKU-001")
	f.seedBatch(t, 10, 1, 5, "B-001", nil, nil)

	result, err := f.service.AdjustStock(context.Background(), AdjustStockRequest{
		BatchID:   10,
		SkuID:     1,
		ChangeQty: 8,
		IsAdd:     false,
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(-5), result.AdjustedQty)
	assert.Equal(t, int64(3), result.RemainingQty)
	assert.Equal(t, int64(0), result.TotalStock)
	assert.Equal(t, int64(-3), result.PredictedQty)
	assert.NotEmpty(t, result.Message)

	batch, err := f.batchRepo.FindByID(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), batch.Quantity)

	entries := f.historyRepo.all()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(-5), entries[0].ChangeQty)
}

func TestAdjustStock_BackorderGoesNegative(t *testing.T) {
	f := newFixture()
	f.seedSku(t, 1, "SKU-001")
	f.seedBatch(t, 10, 1, 5, "B-001", nil, nil)

	result, err := f.service.AdjustStock(context.Background(), AdjustStockRequest{
		BatchID:        10,
		SkuID:          1,
		ChangeQty:      8,
		IsAdd:          false,
		AllowBackorder: true,
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(-8), result.AdjustedQty)
	assert.Equal(t, int64(0), result.RemainingQty)
	assert.Equal(t, int64(-3), result.TotalStock)

	batch, err := f.batchRepo.FindByID(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(-3), batch.Quantity)
}

func TestAdjustStock_EmptyBatchDecreaseIsTruncatedEntirely(t *testing.T) {
	f := newFixture()
	f.seedSku(t, 1, "SKU-001")
	f.seedBatch(t, 10, 1, 0, "B-001", nil, nil)

	result, err := f.service.AdjustStock(context.Background(), AdjustStockRequest{
		BatchID:   10,
		SkuID:     1,
		ChangeQty: 4,
		IsAdd:     false,
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(0), result.AdjustedQty)
	assert.Equal(t, int64(4), result.RemainingQty)
	assert.Equal(t, int64(-4), result.PredictedQty)
	assert.Empty(t, f.historyRepo.all())
}

func TestAdjustStock_NonPositiveQuantityRejected(t *testing.T) {
	f := newFixture()
	f.seedSku(t, 1, "SKU-001")
	f.seedBatch(t, 10, 1, 5, "B-001", nil, nil)

	result, err := f.service.AdjustStock(context.Background(), AdjustStockRequest{
		BatchID:   10,
		SkuID:     1,
		ChangeQty: 0,
		IsAdd:     true,
	})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Message)
	assert.Empty(t, f.historyRepo.all())
}

func TestAdjustStock_BatchNotFound(t *testing.T) {
	f := newFixture()
	f.seedSku(t, 1, "SKU-001")

	result, err := f.service.AdjustStock(context.Background(), AdjustStockRequest{
		BatchID:   99,
		SkuID:     1,
		ChangeQty: 5,
		IsAdd:     true,
	})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "Record not found", result.Message)
}

func TestAdjustStock_BatchOfOtherSkuRejected(t *testing.T) {
	f := newFixture()
	f.seedSku(t, 1, "SKU-001")
	f.seedSku(t, 2, "SKU-002")
	f.seedBatch(t, 10, 2, 5, "B-001", nil, nil)

	result, err := f.service.AdjustStock(context.Background(), AdjustStockRequest{
		BatchID:   10,
		SkuID:     1,
		ChangeQty: 5,
		IsAdd:     true,
	})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Empty(t, f.historyRepo.all())
}

func TestAdjustStock_RetriesOnLockConflict(t *testing.T) {
	f := newFixture()
	f.seedSku(t, 1, "SKU-001")
	f.seedBatch(t, 10, 1, 10, "B-001", nil, nil)
	f.batchRepo.lockFailures = 2

	result, err := f.service.AdjustStock(context.Background(), AdjustStockRequest{
		BatchID:   10,
		SkuID:     1,
		ChangeQty: 5,
		IsAdd:     true,
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(15), result.TotalStock)
	// Failed attempts must not leave partial ledger entries behind
	require.Len(t, f.historyRepo.all(), 1)
}

func TestAdjustStock_GivesUpAfterRetryBudget(t *testing.T) {
	f := newFixture()
	f.seedSku(t, 1, "SKU-001")
	f.seedBatch(t, 10, 1, 10, "B-001", nil, nil)
	f.batchRepo.lockFailures = 10

	_, err := f.service.AdjustStock(context.Background(), AdjustStockRequest{
		BatchID:   10,
		SkuID:     1,
		ChangeQty: 5,
		IsAdd:     true,
	})

	require.ErrorIs(t, err, shared.ErrConcurrencyConflict)
}

func TestReturnStock_ZeroQuantityIsNoOp(t *testing.T) {
	f := newFixture()
	f.seedSku(t, 1, "SKU-001")
	f.seedBatch(t, 10, 1, 8, "B-001", nil, nil)

	result, err := f.service.ReturnStock(context.Background(), ReturnStockRequest{
		SkuID:     1,
		ChangeQty: 0,
		BatchIDs:  []int64{10},
		ActorID:   7,
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(0), result.AdjustedQty)
	assert.Equal(t, int64(0), result.RemainingQty)
	assert.Equal(t, int64(8), result.TotalStock)
	assert.Empty(t, f.historyRepo.all())

	batch, err := f.batchRepo.FindByID(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(8), batch.Quantity)
}

func TestReturnStock_SplitsAcrossBatchesInRequestOrder(t *testing.T) {
	f := newFixture()
	f.seedSku(t, 1, "SKU-001")
	f.seedBatch(t, 10, 1, 8, "B-001", int64Ref(10), nil)
	f.seedBatch(t, 11, 1, 2, "B-002", int64Ref(10), nil)

	result, err := f.service.ReturnStock(context.Background(), ReturnStockRequest{
		SkuID:     1,
		ChangeQty: 5,
		BatchIDs:  []int64{10, 11},
		ActorID:   7,
		Remark:    "order 4711 returned",
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(5), result.AdjustedQty)
	assert.Equal(t, int64(0), result.RemainingQty)
	assert.Equal(t, int64(15), result.TotalStock)
	require.Len(t, result.BatchMovements, 2)
	assert.Equal(t, int64(2), result.BatchMovements[0].ChangeQty)
	assert.Equal(t, int64(3), result.BatchMovements[1].ChangeQty)

	entries := f.historyRepo.all()
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, stock.ChangeTypeReturn, e.ChangeType)
		assert.Equal(t, entries[0].OperationRef, e.OperationRef)
	}
}

func TestReturnStock_OverflowReportsRemaining(t *testing.T) {
	f := newFixture()
	f.seedSku(t, 1, "SKU-001")
	f.seedBatch(t, 10, 1, 8, "B-001", int64Ref(10), nil)
	f.seedBatch(t, 11, 1, 2, "B-002", int64Ref(10), nil)

	result, err := f.service.ReturnStock(context.Background(), ReturnStockRequest{
		SkuID:     1,
		ChangeQty: 20,
		BatchIDs:  []int64{10, 11},
		ActorID:   7,
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(10), result.AdjustedQty)
	assert.Equal(t, int64(10), result.RemainingQty)
	assert.Equal(t, int64(20), result.TotalStock)
	assert.Equal(t, int64(30), result.PredictedQty)
	assert.NotEmpty(t, result.Message)
}

func TestReturnStock_UnknownBatchRejectsWholeOperation(t *testing.T) {
	f := newFixture()
	f.seedSku(t, 1, "SKU-001")
	f.seedBatch(t, 10, 1, 8, "B-001", int64Ref(10), nil)

	result, err := f.service.ReturnStock(context.Background(), ReturnStockRequest{
		SkuID:     1,
		ChangeQty: 5,
		BatchIDs:  []int64{10, 99},
		ActorID:   7,
	})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Empty(t, f.historyRepo.all())

	batch, err := f.batchRepo.FindByID(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(8), batch.Quantity)
}

func TestReturnStock_EmptyBatchListRejected(t *testing.T) {
	f := newFixture()
	f.seedSku(t, 1, "SKU-001")

	result, err := f.service.ReturnStock(context.Background(), ReturnStockRequest{
		SkuID:     1,
		ChangeQty: 5,
		BatchIDs:  nil,
		ActorID:   7,
	})

	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestSellStock_ConsumesInFEFOOrder(t *testing.T) {
	f := newFixture()
	f.seedSku(t, 1, "SKU-001")
	f.seedBatch(t, 10, 1, 5, "B-LATE", nil, daysFromNow(30))
	f.seedBatch(t, 11, 1, 5, "B-NONE", nil, nil)
	f.seedBatch(t, 12, 1, 5, "B-SOON", nil, daysFromNow(5))

	result, err := f.service.SellStock(context.Background(), SellStockRequest{
		SkuID:     1,
		ChangeQty: 8,
		ActorID:   int64Ref(7),
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(-8), result.AdjustedQty)
	assert.Equal(t, int64(0), result.RemainingQty)
	assert.Equal(t, int64(7), result.TotalStock)
	require.Len(t, result.BatchMovements, 2)
	assert.Equal(t, "B-SOON", result.BatchMovements[0].BatchNumber)
	assert.Equal(t, int64(-5), result.BatchMovements[0].ChangeQty)
	assert.Equal(t, "B-LATE", result.BatchMovements[1].BatchNumber)
	assert.Equal(t, int64(-3), result.BatchMovements[1].ChangeQty)

	// The batch without expiry is drained last and stays untouched here
	untouched, err := f.batchRepo.FindByID(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, int64(5), untouched.Quantity)
}

func TestSellStock_ShortfallIsPartialSuccess(t *testing.T) {
	f := newFixture()
	f.seedSku(t, 1, "SKU-001")
	f.seedBatch(t, 10, 1, 3, "B-001", nil, nil)

	result, err := f.service.SellStock(context.Background(), SellStockRequest{
		SkuID:     1,
		ChangeQty: 10,
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(-3), result.AdjustedQty)
	assert.Equal(t, int64(7), result.RemainingQty)
	assert.Equal(t, int64(0), result.TotalStock)
	assert.Equal(t, int64(-7), result.PredictedQty)
	assert.NotEmpty(t, result.Message)
}

func TestSellStock_SkipsExpiredBatches(t *testing.T) {
	f := newFixture()
	f.seedSku(t, 1, "SKU-001")
	f.seedBatch(t, 10, 1, 5, "B-EXPIRED", nil, daysFromNow(-1))
	f.seedBatch(t, 11, 1, 5, "B-FRESH", nil, daysFromNow(30))

	result, err := f.service.SellStock(context.Background(), SellStockRequest{
		SkuID:     1,
		ChangeQty: 5,
	})

	require.NoError(t, err)
	require.Len(t, result.BatchMovements, 1)
	assert.Equal(t, "B-FRESH", result.BatchMovements[0].BatchNumber)

	expired, err := f.batchRepo.FindByID(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(5), expired.Quantity)
}

func TestReceiveStock_CreatesBatchAndAbsorbsCost(t *testing.T) {
	f := newFixture()
	f.seedSku(t, 1, "SKU-001")
	f.seedBatch(t, 10, 1, 10, "B-001", nil, nil)
	// Existing 10 units are carried at cost 10
	sku, err := f.skuRepo.FindByID(context.Background(), 1)
	require.NoError(t, err)
	sku.UnitCost = decimal.NewFromInt(10)
	require.NoError(t, f.skuRepo.Save(context.Background(), sku))

	result, err := f.service.ReceiveStock(context.Background(), ReceiveStockRequest{
		SkuID:       1,
		BatchNumber: "B-002",
		Quantity:    10,
		UnitCost:    decimal.NewFromInt(20),
		ExpireDate:  daysFromNow(90),
		ActorID:     int64Ref(7),
		Remark:      "PO-2031",
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(10), result.AdjustedQty)
	assert.Equal(t, int64(20), result.TotalStock)

	created, err := f.batchRepo.FindByBatchNumber(context.Background(), 1, "B-002")
	require.NoError(t, err)
	assert.Equal(t, int64(10), created.Quantity)

	entries := f.historyRepo.all()
	require.Len(t, entries, 1)
	assert.Equal(t, stock.ChangeTypePurchase, entries[0].ChangeType)
	assert.Equal(t, int64(0), entries[0].BeforeQty)
	assert.Equal(t, int64(10), entries[0].AfterQty)

	sku, err = f.skuRepo.FindByID(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, sku.UnitCost.Equal(decimal.NewFromInt(15)),
		"expected moving average 15, got %s", sku.UnitCost)
}

func TestReceiveStock_DuplicateBatchNumberRejected(t *testing.T) {
	f := newFixture()
	f.seedSku(t, 1, "SKU-001")
	f.seedBatch(t, 10, 1, 10, "B-001", nil, nil)

	result, err := f.service.ReceiveStock(context.Background(), ReceiveStockRequest{
		SkuID:       1,
		BatchNumber: "B-001",
		Quantity:    5,
		UnitCost:    decimal.NewFromInt(10),
	})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Empty(t, f.historyRepo.all())
}

func TestWriteOffExpired_ZeroesAndMarksUnsellable(t *testing.T) {
	f := newFixture()
	f.seedSku(t, 1, "SKU-001")
	f.seedBatch(t, 10, 1, 5, "B-EXPIRED", nil, daysFromNow(-10))
	f.seedBatch(t, 11, 1, 7, "B-FRESH", nil, daysFromNow(30))

	result, err := f.service.WriteOffExpired(context.Background(), 1, int64Ref(7), "monthly write-off")

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(-5), result.AdjustedQty)
	assert.Equal(t, int64(7), result.TotalStock)
	require.Len(t, result.BatchMovements, 1)
	assert.Equal(t, "B-EXPIRED", result.BatchMovements[0].BatchNumber)

	written, err := f.batchRepo.FindByID(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), written.Quantity)
	assert.False(t, written.IsSellable)

	fresh, err := f.batchRepo.FindByID(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, int64(7), fresh.Quantity)
	assert.True(t, fresh.IsSellable)

	entries := f.historyRepo.all()
	require.Len(t, entries, 1)
	assert.Equal(t, stock.ChangeTypeExpire, entries[0].ChangeType)
}

// Writing off mutates quantity and sellability of a batch in one save, so the
// version must advance exactly one step past the stored row or the optimistic
// lock predicate would never match.
func TestWriteOffExpired_AdvancesBatchVersionOneStep(t *testing.T) {
	f := newFixture()
	f.seedSku(t, 1, "SKU-001")
	seeded := f.seedBatch(t, 10, 1, 5, "B-EXPIRED", nil, daysFromNow(-10))

	result, err := f.service.WriteOffExpired(context.Background(), 1, int64Ref(7), "")

	require.NoError(t, err)
	require.True(t, result.Success)

	written, err := f.batchRepo.FindByID(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, seeded.Version+1, written.Version)
	assert.False(t, written.IsSellable)
	assert.Equal(t, int64(0), written.Quantity)
}

func TestGetBatchesBySku_ForDecreaseFiltersAndOrders(t *testing.T) {
	f := newFixture()
	f.seedSku(t, 1, "SKU-001")
	f.seedBatch(t, 10, 1, 5, "B-LATE", nil, daysFromNow(30))
	f.seedBatch(t, 11, 1, 0, "B-EMPTY", nil, daysFromNow(10))
	f.seedBatch(t, 12, 1, 5, "B-SOON", nil, daysFromNow(5))

	views, err := f.service.GetBatchesBySku(context.Background(), 1, true)

	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "B-SOON", views[0].BatchNumber)
	assert.Equal(t, "B-LATE", views[1].BatchNumber)
}

func TestGetHistoryBySku_NewestFirst(t *testing.T) {
	f := newFixture()
	f.seedSku(t, 1, "SKU-001")
	f.seedBatch(t, 10, 1, 10, "B-001", nil, nil)

	_, err := f.service.AdjustStock(context.Background(), AdjustStockRequest{
		BatchID: 10, SkuID: 1, ChangeQty: 5, IsAdd: true,
	})
	require.NoError(t, err)
	_, err = f.service.AdjustStock(context.Background(), AdjustStockRequest{
		BatchID: 10, SkuID: 1, ChangeQty: 3, IsAdd: false,
	})
	require.NoError(t, err)

	views, err := f.service.GetHistoryBySku(context.Background(), 1, shared.DefaultFilter())
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, int64(-3), views[0].ChangeQty)
	assert.Equal(t, int64(5), views[1].ChangeQty)
}

func TestGetSku_AvailableCountsOnlyAllocatableStock(t *testing.T) {
	f := newFixture()
	f.seedSku(t, 1, "SKU-001")
	f.seedBatch(t, 10, 1, 4, "B-EXPIRED", nil, daysFromNow(-1))
	f.seedBatch(t, 11, 1, 6, "B-FRESH", nil, daysFromNow(30))
	f.skuRepo.skus[1].UnitCost = decimal.NewFromInt(10)

	view, err := f.service.GetSku(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, int64(10), view.StockQty)
	assert.Equal(t, int64(6), view.AvailableQty)
	assert.Equal(t, "100.0000", view.TotalValue)
}

func TestGetExpiredBatches(t *testing.T) {
	f := newFixture()
	f.seedSku(t, 1, "SKU-001")
	f.seedBatch(t, 10, 1, 5, "B-EXPIRED", nil, daysFromNow(-1))
	f.seedBatch(t, 11, 1, 5, "B-FRESH", nil, daysFromNow(30))

	views, err := f.service.GetExpiredBatches(context.Background(), shared.DefaultFilter())

	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "B-EXPIRED", views[0].BatchNumber)
	assert.Equal(t, "50.0000", views[0].TotalValue)
}

func TestGetSkusBelowReorder(t *testing.T) {
	f := newFixture()
	f.seedSku(t, 1, "SKU-LOW")
	f.seedBatch(t, 10, 1, 5, "B-001", nil, nil)
	f.skuRepo.skus[1].ReorderPoint = 10
	f.seedSku(t, 2, "SKU-OK")
	f.seedBatch(t, 20, 2, 20, "B-002", nil, nil)
	f.skuRepo.skus[2].ReorderPoint = 10

	views, err := f.service.GetSkusBelowReorder(context.Background(), shared.DefaultFilter())

	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "SKU-LOW", views[0].SkuCode)
	assert.True(t, views[0].BelowReorderPoint)
}

func TestGetHistoryByOperation(t *testing.T) {
	f := newFixture()
	f.seedSku(t, 1, "SKU-001")
	f.seedBatch(t, 10, 1, 5, "B-001", nil, nil)
	f.seedBatch(t, 11, 1, 5, "B-002", nil, nil)

	result, err := f.service.SellStock(context.Background(), SellStockRequest{
		SkuID:     1,
		ChangeQty: 8,
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	ref, err := uuid.Parse(result.OperationRef)
	require.NoError(t, err)

	views, err := f.service.GetHistoryByOperation(context.Background(), ref)

	require.NoError(t, err)
	require.Len(t, views, 2)
	for _, v := range views {
		assert.Equal(t, result.OperationRef, v.OperationRef)
	}

	// A ref no operation wrote yields an empty slice, not an error
	none, err := f.service.GetHistoryByOperation(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, none)
}
