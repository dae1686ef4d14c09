package stock_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikola1125/ashila-backend/internal/domain"
	"github.com/nikola1125/ashila-backend/internal/metrics"
	"github.com/nikola1125/ashila-backend/internal/service/stock"
	"github.com/nikola1125/ashila-backend/internal/storage/memory"
)

type fixture struct {
	store  *memory.Store
	engine *stock.Engine
}

func quietLogger() *log.Entry {
	l := log.New()
	l.SetLevel(log.PanicLevel)
	return l.WithField("component", "test")
}

func newFixture(t *testing.T, transactional bool) fixture {
	t.Helper()
	var store *memory.Store
	if transactional {
		store = memory.NewStore()
	} else {
		store = memory.NewStore(memory.WithoutTransactions())
	}
	engine := stock.NewEngine(store, store, stock.NewAdaptiveCommit(store, quietLogger()),
		stock.WithLogger(quietLogger()),
		stock.WithMetrics(metrics.NewStockMetricsWithRegisterer(prometheus.NewRegistry())),
	)
	return fixture{store: store, engine: engine}
}

func forEachMode(t *testing.T, fn func(t *testing.T, f fixture)) {
	for _, mode := range []struct {
		name          string
		transactional bool
	}{{"transactional", true}, {"best-effort", false}} {
		t.Run(mode.name, func(t *testing.T) {
			fn(t, newFixture(t, mode.transactional))
		})
	}
}

func (f fixture) seedProduct(t *testing.T, p domain.Product) {
	t.Helper()
	_, err := f.store.CreateProduct(context.Background(), p)
	require.NoError(t, err)
}

func (f fixture) seedOrder(t *testing.T, items ...domain.LineItem) domain.Order {
	t.Helper()
	order, err := f.store.Create(context.Background(), domain.Order{
		OrderNumber:   fmt.Sprintf("ORD-%d", time.Now().UnixNano()),
		BuyerEmail:    "buyer@example.com",
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusUnpaid,
		Items:         items,
		CreatedAt:     time.Now().UTC(),
	})
	require.NoError(t, err)
	return order
}

func (f fixture) stockOf(t *testing.T, productID string) int {
	t.Helper()
	p, err := f.store.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	return p.Stock
}

func (f fixture) variantStock(t *testing.T, productID, size string) int {
	t.Helper()
	p, err := f.store.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	idx := p.VariantIndex(size)
	require.GreaterOrEqual(t, idx, 0)
	return p.Variants[idx].Stock
}

func item(productID string, qty int, size string) domain.LineItem {
	return domain.LineItem{ProductID: productID, ItemName: "item-" + productID, Quantity: qty, Price: decimal.NewFromInt(10), SelectedSize: size}
}

func confirm(current domain.Order) (domain.Order, error) {
	next := current.Clone()
	next.Status = domain.OrderStatusConfirmed
	return next, nil
}

func cancel(current domain.Order) (domain.Order, error) {
	next := current.Clone()
	next.Status = domain.OrderStatusCancelled
	return next, nil
}

func TestCheckAvailability_ReportsAllShortfalls(t *testing.T) {
	f := newFixture(t, true)
	f.seedProduct(t, domain.Product{ID: "a", ItemName: "Aspirin", Stock: 5})
	f.seedProduct(t, domain.Product{ID: "b", ItemName: "Bandage", Stock: 1})
	f.seedProduct(t, domain.Product{ID: "c", ItemName: "Cream", Variants: []domain.Variant{{Size: "S", Stock: 3}, {Size: "M", Stock: 0}}})

	result, err := f.engine.CheckAvailability(context.Background(), []domain.StockRequest{
		{ProductID: "a", ItemName: "Aspirin", Quantity: 5},
		{ProductID: "b", ItemName: "Bandage", Quantity: 2},
		{ProductID: "c", ItemName: "Cream", Quantity: 1, SelectedSize: "M"},
		{ProductID: "missing", ItemName: "Ghost", Quantity: 1},
		{ProductID: "c", ItemName: "Cream", Quantity: 1, SelectedSize: "XL"},
	})
	require.NoError(t, err)
	require.False(t, result.OK())
	require.Len(t, result.Shortfalls, 4)

	assert.Equal(t, domain.Shortfall{ProductID: "b", ItemName: "Bandage", RequestedQuantity: 2, AvailableStock: 1}, result.Shortfalls[0])
	assert.Equal(t, domain.Shortfall{ProductID: "c", ItemName: "Cream", SelectedSize: "M", RequestedQuantity: 1, AvailableStock: 0}, result.Shortfalls[1])
	assert.Equal(t, 0, result.Shortfalls[2].AvailableStock)
	assert.Equal(t, "XL", result.Shortfalls[3].SelectedSize)

	var shortfall *domain.ShortfallError
	require.True(t, errors.As(result.Err(), &shortfall))
	assert.Len(t, shortfall.Shortfalls, 4)

	// проверка ничего не списывает
	assert.Equal(t, 5, f.stockOf(t, "a"))
}

func TestCheckAvailability_ExactStockPasses(t *testing.T) {
	f := newFixture(t, true)
	f.seedProduct(t, domain.Product{ID: "a", Stock: 5})

	result, err := f.engine.CheckAvailability(context.Background(), []domain.StockRequest{{ProductID: "a", Quantity: 5}})
	require.NoError(t, err)
	assert.True(t, result.OK())
	assert.NoError(t, result.Err())
}

type failingCatalog struct {
	domain.CatalogRepository
}

func (failingCatalog) GetProduct(context.Context, string) (domain.Product, error) {
	return domain.Product{}, errors.New("connection reset")
}

func TestCheckAvailability_StoreErrorIsNotShortfall(t *testing.T) {
	store := memory.NewStore()
	engine := stock.NewEngine(failingCatalog{store}, store, stock.NewTransactionalCommit(store), stock.WithLogger(quietLogger()))

	_, err := engine.CheckAvailability(context.Background(), []domain.StockRequest{{ProductID: "a", Quantity: 1}})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrInsufficientStock)
}

func TestResolveStockLocation(t *testing.T) {
	f := newFixture(t, true)
	f.seedProduct(t, domain.Product{ID: "root", ItemName: "Syrup", Size: "100ml", Stock: 4, VariantGroupID: "g",
		Variants: []domain.Variant{{Size: "250ml", Stock: 2}}})
	f.seedProduct(t, domain.Product{ID: "sibling", ItemName: "Syrup", Size: "500ml", Stock: 9, VariantGroupID: "g"})
	ctx := context.Background()

	loc, err := f.engine.ResolveStockLocation(ctx, "root", "")
	require.NoError(t, err)
	assert.Equal(t, domain.StockLocation{Kind: domain.LocationRoot, ProductID: "root", ItemName: "Syrup", Available: 4}, loc)

	loc, err = f.engine.ResolveStockLocation(ctx, "root", "100ml")
	require.NoError(t, err)
	assert.Equal(t, domain.LocationRoot, loc.Kind)
	assert.Equal(t, "100ml", loc.Size)

	loc, err = f.engine.ResolveStockLocation(ctx, "root", "250ml")
	require.NoError(t, err)
	assert.Equal(t, domain.LocationVariant, loc.Kind)
	assert.Equal(t, 2, loc.Available)

	loc, err = f.engine.ResolveStockLocation(ctx, "root", "500ml")
	require.NoError(t, err)
	assert.Equal(t, domain.LocationRoot, loc.Kind)
	assert.Equal(t, "sibling", loc.ProductID)
	assert.Equal(t, 9, loc.Available)

	_, err = f.engine.ResolveStockLocation(ctx, "root", "1l")
	assert.ErrorIs(t, err, domain.ErrVariantNotFound)
	_, err = f.engine.ResolveStockLocation(ctx, "nope", "")
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestCommitReservation_ExactStockAndDuplicateConfirm(t *testing.T) {
	forEachMode(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		f.seedProduct(t, domain.Product{ID: "a", Stock: 5})
		order := f.seedOrder(t, item("a", 5, ""))

		result, err := f.engine.CommitReservation(ctx, order.ID, confirm)
		require.NoError(t, err)
		assert.False(t, result.NoOp)
		assert.Equal(t, domain.OrderStatusConfirmed, result.Order.Status)
		assert.Equal(t, 0, f.stockOf(t, "a"))

		again, err := f.engine.CommitReservation(ctx, order.ID, confirm)
		require.NoError(t, err)
		assert.True(t, again.NoOp)
		assert.Equal(t, 0, f.stockOf(t, "a"))

		stored, err := f.store.Get(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusConfirmed, stored.Status)
		assert.Equal(t, int64(1), stored.Version)
	})
}

func TestCommitReservation_ModeReflectsStore(t *testing.T) {
	tx := newFixture(t, true)
	tx.seedProduct(t, domain.Product{ID: "a", Stock: 1})
	order := tx.seedOrder(t, item("a", 1, ""))
	result, err := tx.engine.CommitReservation(context.Background(), order.ID, confirm)
	require.NoError(t, err)
	assert.Equal(t, stock.ModeTransactional, result.Mode)

	plain := newFixture(t, false)
	plain.seedProduct(t, domain.Product{ID: "a", Stock: 1})
	order = plain.seedOrder(t, item("a", 1, ""))
	result, err = plain.engine.CommitReservation(context.Background(), order.ID, confirm)
	require.NoError(t, err)
	assert.Equal(t, stock.ModeBestEffort, result.Mode)
	assert.Equal(t, stock.ModeBestEffort, plain.engine.Mode())
}

func TestCommitReservation_ConcurrentConfirmDecrementsOnce(t *testing.T) {
	forEachMode(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		f.seedProduct(t, domain.Product{ID: "a", Stock: 10})
		order := f.seedOrder(t, item("a", 4, ""))

		var wg sync.WaitGroup
		errs := make([]error, 8)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = f.engine.CommitReservation(ctx, order.ID, confirm)
			}(i)
		}
		wg.Wait()

		for _, err := range errs {
			assert.NoError(t, err)
		}
		assert.Equal(t, 6, f.stockOf(t, "a"))
	})
}

func TestCommitReservation_RacingOrdersNeverOversell(t *testing.T) {
	forEachMode(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		f.seedProduct(t, domain.Product{ID: "c", Stock: 5})
		first := f.seedOrder(t, item("c", 3, ""))
		second := f.seedOrder(t, item("c", 3, ""))

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, id := range []string{first.ID, second.ID} {
			wg.Add(1)
			go func(i int, id string) {
				defer wg.Done()
				_, errs[i] = f.engine.CommitReservation(ctx, id, confirm)
			}(i, id)
		}
		wg.Wait()

		failures := 0
		for _, err := range errs {
			if err != nil {
				failures++
				var conflict *domain.ConflictError
				require.True(t, errors.As(err, &conflict))
				assert.Equal(t, "c", conflict.ProductID)
				assert.Equal(t, 3, conflict.Requested)
			}
		}
		assert.Equal(t, 1, failures)
		assert.Equal(t, 2, f.stockOf(t, "c"))

		pending := 0
		for _, id := range []string{first.ID, second.ID} {
			o, err := f.store.Get(ctx, id)
			require.NoError(t, err)
			if o.Status == domain.OrderStatusPending {
				pending++
			}
		}
		assert.Equal(t, 1, pending)
	})
}

func TestCommitReservation_AllOrNothing(t *testing.T) {
	forEachMode(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		f.seedProduct(t, domain.Product{ID: "a", Stock: 5})
		f.seedProduct(t, domain.Product{ID: "b", Variants: []domain.Variant{{Size: "S", Stock: 3}, {Size: "M", Stock: 0}}})
		order := f.seedOrder(t, item("a", 2, ""), item("b", 1, "S"), item("b", 1, "M"))

		_, err := f.engine.CommitReservation(ctx, order.ID, confirm)
		require.ErrorIs(t, err, domain.ErrStockConflict)
		var conflict *domain.ConflictError
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, "M", conflict.SelectedSize)
		assert.Equal(t, 0, conflict.Available)

		assert.Equal(t, 5, f.stockOf(t, "a"))
		assert.Equal(t, 3, f.variantStock(t, "b", "S"))

		stored, err := f.store.Get(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusPending, stored.Status)
	})
}

func TestCommitReservation_VanishedProductIsConflict(t *testing.T) {
	f := newFixture(t, true)
	order := f.seedOrder(t, item("gone", 1, ""))

	_, err := f.engine.CommitReservation(context.Background(), order.ID, confirm)
	require.ErrorIs(t, err, domain.ErrStockConflict)
}

func TestCommitReservation_EmbeddedVariantAndSibling(t *testing.T) {
	forEachMode(t, func(t *testing.T, f fixture) {
		f.seedProduct(t, domain.Product{ID: "p", Size: "50ml", Stock: 1, VariantGroupID: "g", Variants: []domain.Variant{{Size: "100ml", Stock: 4}}})
		f.seedProduct(t, domain.Product{ID: "q", Size: "200ml", Stock: 2, VariantGroupID: "g"})
		order := f.seedOrder(t, item("p", 3, "100ml"), item("p", 2, "200ml"), item("p", 1, "50ml"))

		_, err := f.engine.CommitReservation(context.Background(), order.ID, confirm)
		require.NoError(t, err)
		assert.Equal(t, 1, f.variantStock(t, "p", "100ml"))
		assert.Equal(t, 0, f.stockOf(t, "q"))
		assert.Equal(t, 0, f.stockOf(t, "p"))
	})
}

func TestCommitReservation_OrderNotFound(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.engine.CommitReservation(context.Background(), "missing", confirm)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestCommitReservation_RejectsNonConfirmTarget(t *testing.T) {
	f := newFixture(t, true)
	f.seedProduct(t, domain.Product{ID: "a", Stock: 1})
	order := f.seedOrder(t, item("a", 1, ""))

	_, err := f.engine.CommitReservation(context.Background(), order.ID, cancel)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, 1, f.stockOf(t, "a"))
}

func TestReleaseReservation_RestocksConfirmedOrder(t *testing.T) {
	forEachMode(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		f.seedProduct(t, domain.Product{ID: "a", Stock: 5})
		order := f.seedOrder(t, item("a", 2, ""))

		_, err := f.engine.CommitReservation(ctx, order.ID, confirm)
		require.NoError(t, err)
		require.Equal(t, 3, f.stockOf(t, "a"))

		result, err := f.engine.ReleaseReservation(ctx, order.ID, cancel)
		require.NoError(t, err)
		assert.False(t, result.NoOp)
		assert.Equal(t, domain.OrderStatusCancelled, result.Order.Status)
		assert.Equal(t, 5, f.stockOf(t, "a"))
	})
}

func TestReleaseReservation_PendingOrderDoesNotRestock(t *testing.T) {
	f := newFixture(t, true)
	f.seedProduct(t, domain.Product{ID: "a", Stock: 5})
	order := f.seedOrder(t, item("a", 2, ""))

	result, err := f.engine.ReleaseReservation(context.Background(), order.ID, cancel)
	require.NoError(t, err)
	assert.True(t, result.NoOp)
	assert.Equal(t, domain.OrderStatusCancelled, result.Order.Status)
	assert.Equal(t, 5, f.stockOf(t, "a"))
}

type countingTransactor struct {
	mu    sync.Mutex
	calls int
}

func (c *countingTransactor) WithinTransaction(context.Context, func(context.Context) error) error {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return fmt.Errorf("start session: %w", domain.ErrTransactionsUnsupported)
}

func TestAdaptiveCommit_SwitchesOnce(t *testing.T) {
	tx := &countingTransactor{}
	strategy := stock.NewAdaptiveCommit(tx, quietLogger())
	assert.Equal(t, stock.ModeTransactional, strategy.Mode())

	runs := 0
	for i := 0; i < 3; i++ {
		err := strategy.Run(context.Background(), func(context.Context, *stock.Compensator) error {
			runs++
			return nil
		})
		require.NoError(t, err)
	}

	assert.Equal(t, 3, runs)
	assert.Equal(t, 1, tx.calls)
	assert.True(t, strategy.Degraded())
	assert.Equal(t, stock.ModeBestEffort, strategy.Mode())
}

func TestBestEffortCommit_UnwindsCompensationsInReverse(t *testing.T) {
	strategy := stock.NewBestEffortCommit(quietLogger())
	var order []int
	boom := errors.New("boom")

	err := strategy.Run(context.Background(), func(_ context.Context, comp *stock.Compensator) error {
		comp.Add(func(context.Context) error { order = append(order, 1); return nil })
		comp.Add(func(context.Context) error { order = append(order, 2); return errors.New("lost") })
		comp.Add(func(context.Context) error { order = append(order, 3); return nil })
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, []int{3, 2, 1}, order)
}

func TestCompensatorNilSafe(t *testing.T) {
	var comp *stock.Compensator
	comp.Add(func(context.Context) error { return nil })
	assert.Equal(t, 0, comp.Len())
}

func TestRetryOnVersionConflict(t *testing.T) {
	cfg := stock.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2}

	attempts := 0
	err := stock.RetryOnVersionConflict(context.Background(), cfg, quietLogger(), func() error {
		attempts++
		if attempts < 3 {
			return domain.ErrOrderVersionConflict
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	attempts = 0
	err = stock.RetryOnVersionConflict(context.Background(), cfg, quietLogger(), func() error {
		attempts++
		return domain.ErrOrderVersionConflict
	})
	assert.ErrorIs(t, err, domain.ErrOrderVersionConflict)
	assert.Equal(t, 3, attempts)

	attempts = 0
	err = stock.RetryOnVersionConflict(context.Background(), cfg, quietLogger(), func() error {
		attempts++
		return domain.ErrStockConflict
	})
	assert.ErrorIs(t, err, domain.ErrStockConflict)
	assert.Equal(t, 1, attempts)
}

// editingCatalog правит заказ в момент первого списания товара productID.
type editingCatalog struct {
	domain.CatalogRepository
	productID string
	edit      func()
	once      sync.Once
}

func (c *editingCatalog) DecrementStock(ctx context.Context, loc domain.StockLocation, qty int) (bool, error) {
	if loc.ProductID == c.productID {
		c.once.Do(c.edit)
	}
	return c.CatalogRepository.DecrementStock(ctx, loc, qty)
}

func TestCommitReservation_BestEffortVersionConflictRevertsAndRetries(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(memory.WithoutTransactions())
	for _, id := range []string{"a", "b"} {
		_, err := store.CreateProduct(ctx, domain.Product{ID: id, Stock: 5})
		require.NoError(t, err)
	}
	f := fixture{store: store}
	order := f.seedOrder(t, item("a", 2, ""), item("b", 2, ""))

	catalog := &editingCatalog{CatalogRepository: store, productID: "b", edit: func() {
		current, err := store.Get(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusPending, current.Status)
		current.Notes = "call before delivery"
		require.NoError(t, store.Save(ctx, current))
	}}
	stockMetrics := metrics.NewStockMetricsWithRegisterer(prometheus.NewRegistry())
	engine := stock.NewEngine(catalog, store, stock.NewBestEffortCommit(quietLogger()),
		stock.WithLogger(quietLogger()),
		stock.WithMetrics(stockMetrics),
	)

	result, err := engine.CommitReservation(ctx, order.ID, confirm)
	require.NoError(t, err)
	assert.False(t, result.NoOp)
	assert.Equal(t, "call before delivery", result.Order.Notes)

	assert.Equal(t, 3, f.stockOf(t, "a"))
	assert.Equal(t, 3, f.stockOf(t, "b"))

	stored, err := store.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, stored.Status)
	assert.Equal(t, int64(2), stored.Version)
}

func TestCommitReservation_ConflictAfterConfirmElsewhereIsNoOp(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(memory.WithoutTransactions())
	_, err := store.CreateProduct(ctx, domain.Product{ID: "a", Stock: 2})
	require.NoError(t, err)
	f := fixture{store: store}
	order := f.seedOrder(t, item("a", 2, ""))

	// Другой процесс успевает списать остаток и подтвердить заказ.
	catalog := &editingCatalog{CatalogRepository: store, productID: "a", edit: func() {
		current, err := store.Get(ctx, order.ID)
		require.NoError(t, err)
		loc := domain.StockLocation{ProductID: "a", Available: 2}
		ok, err := store.DecrementStock(ctx, loc, 2)
		require.NoError(t, err)
		require.True(t, ok)
		current.Status = domain.OrderStatusConfirmed
		require.NoError(t, store.Save(ctx, current))
	}}
	engine := stock.NewEngine(catalog, store, stock.NewBestEffortCommit(quietLogger()), stock.WithLogger(quietLogger()))

	result, err := engine.CommitReservation(ctx, order.ID, confirm)
	require.NoError(t, err)
	assert.True(t, result.NoOp)
	assert.Equal(t, domain.OrderStatusConfirmed, result.Order.Status)
	assert.Equal(t, 0, f.stockOf(t, "a"))
}
