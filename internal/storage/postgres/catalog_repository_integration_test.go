package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikola1125/ashila-backend/internal/domain"
	"github.com/nikola1125/ashila-backend/internal/service/stock"
)

func seedIntegrationProducts(t *testing.T, repo domain.CatalogRepository) {
	t.Helper()
	ctx := context.Background()
	for _, p := range []domain.Product{
		{ID: "root", ItemName: "Ibuprofen", Price: decimal.NewFromInt(5), Stock: 5},
		{ID: "embedded", ItemName: "Cream", Size: "50ml", Stock: 1, VariantGroupID: "g1",
			Variants: []domain.Variant{{Size: "S", Stock: 3, Price: decimal.NewFromInt(4)}, {Size: "M", Stock: 0, Price: decimal.NewFromInt(6)}}},
		{ID: "sibling", ItemName: "Cream", Size: "100ml", Stock: 8, VariantGroupID: "g1"},
	} {
		_, err := repo.CreateProduct(ctx, p)
		require.NoError(t, err)
	}
}

func TestCatalogRepository_PostgresGuardedAdjust(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewCatalogRepository(store)
	seedIntegrationProducts(t, repo)
	ctx := context.Background()

	root := domain.StockLocation{Kind: domain.LocationRoot, ProductID: "root"}
	ok, err := repo.DecrementStock(ctx, root, 5)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.DecrementStock(ctx, root, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	variant := domain.StockLocation{Kind: domain.LocationVariant, ProductID: "embedded", Size: "S"}
	ok, err = repo.DecrementStock(ctx, variant, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	sizedRoot := domain.StockLocation{Kind: domain.LocationRoot, ProductID: "embedded", Size: "100ml"}
	ok, err = repo.DecrementStock(ctx, sizedRoot, 1)
	require.NoError(t, err)
	assert.False(t, ok, "root size guard must reject a different size")

	p, err := repo.GetProduct(ctx, "embedded")
	require.NoError(t, err)
	assert.Equal(t, 0, p.Variants[0].Stock)
	assert.Equal(t, 1, p.Stock)

	sibling, err := repo.FindSibling(ctx, "g1", "100ml")
	require.NoError(t, err)
	assert.Equal(t, "sibling", sibling.ID)

	_, err = repo.GetProduct(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestCatalogRepository_PostgresSetStockAndLowStock(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewCatalogRepository(store)
	seedIntegrationProducts(t, repo)
	ctx := context.Background()

	p, err := repo.SetStock(ctx, "embedded", "M", 12)
	require.NoError(t, err)
	assert.Equal(t, 12, p.Variants[1].Stock)

	_, err = repo.SetStock(ctx, "embedded", "XL", 1)
	assert.ErrorIs(t, err, domain.ErrVariantNotFound)
	_, err = repo.SetStock(ctx, "missing", "", 1)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	low, err := repo.ListLowStock(ctx, 5, 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(low))
	for _, p := range low {
		ids = append(ids, p.ID)
	}
	assert.ElementsMatch(t, []string{"root", "embedded"}, ids)
}

func TestStockEngine_PostgresRacingConfirmations(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	catalog := NewCatalogRepository(store)
	orders := NewOrderRepository(store)
	seedIntegrationProducts(t, catalog)
	ctx := context.Background()

	engine := stock.NewEngine(catalog, orders, stock.NewTransactionalCommit(store))

	ids := make([]string, 0, 2)
	for _, number := range []string{"ORD-R1", "ORD-R2"} {
		order := newIntegrationOrder(number)
		order.Items = []domain.LineItem{{ProductID: "root", ItemName: "Ibuprofen", Quantity: 3, Price: decimal.NewFromInt(5)}}
		created, err := orders.Create(ctx, order)
		require.NoError(t, err)
		ids = append(ids, created.ID)
	}

	confirm := func(current domain.Order) (domain.Order, error) {
		next := current.Clone()
		next.Status = domain.OrderStatusConfirmed
		next.UpdatedAt = time.Now().UTC()
		return next, nil
	}

	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = engine.CommitReservation(ctx, id, confirm)
		}()
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, domain.ErrStockConflict)
			failures++
		}
	}
	assert.Equal(t, 1, failures)

	p, err := catalog.GetProduct(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Stock)
}
