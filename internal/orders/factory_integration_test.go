//go:build integration

package orders_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/storefront/internal/apperr"
	"github.com/joao-fontenele/storefront/internal/cart"
	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/orders"
	"github.com/joao-fontenele/storefront/internal/stock"
	"github.com/joao-fontenele/storefront/internal/testutil"
	"github.com/joao-fontenele/storefront/internal/txscope"
)

var shipping = domain.ShippingInfo{
	PaymentMethod:      "card",
	ShippingName:       "Alice",
	ShippingPostalCode: "100-0001",
	ShippingAddress:    "1-1 Chiyoda",
	ShippingPhone:      "0312345678",
}

type fixture struct {
	db      *sql.DB
	store   *cart.Store
	factory *orders.Factory
	history *orders.History
}

func newFixture(db *sql.DB) fixture {
	logger := testutil.DiscardLogger()
	scope := txscope.New(db, logger, txscope.WithMaxAttempts(10))
	ledger := stock.NewLedger()
	return fixture{
		db:      db,
		store:   cart.NewStore(scope, ledger, logger),
		factory: orders.NewFactory(scope, ledger, logger),
		history: orders.NewHistory(scope),
	}
}

func TestFactory_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	f := newFixture(testutil.StartPostgres(ctx, t))
	db := f.db

	t.Run("buying the whole stock of P", func(t *testing.T) {
		userID := testutil.CreateUser(t, db, "buyer")
		productID := testutil.CreateProduct(t, db, "P", 100, 3)

		require.NoError(t, f.store.AddItem(ctx, userID, productID, 3))

		order, err := f.factory.Create(ctx, userID, shipping)
		require.NoError(t, err)
		assert.Regexp(t, `^ORD-\d{8}-[0-9A-F]{8}$`, order.OrderNumber)
		assert.Equal(t, int64(300), order.TotalAmount)
		assert.Equal(t, domain.OrderStatusCompleted, order.Status)

		assert.Equal(t, 0, testutil.Stock(t, db, productID))
		items, err := f.store.ListItems(ctx, userID)
		require.NoError(t, err)
		assert.Empty(t, items)

		got, err := f.history.Get(ctx, order.OrderNumber, userID)
		require.NoError(t, err)
		require.Len(t, got.Details, 1)
		assert.Equal(t, "P", got.Details[0].ProductName)
		assert.Equal(t, int64(100), got.Details[0].Price)
		assert.Equal(t, 3, got.Details[0].Quantity)

		err = f.store.AddItem(ctx, userID, productID, 1)
		assert.True(t, apperr.Is(err, apperr.CodeNotFound), "sold out product")

		_, err = f.factory.Create(ctx, userID, shipping)
		assert.True(t, apperr.Is(err, apperr.CodeValidation), "empty cart")
	})

	t.Run("P with stock 3: a second add of 2 fails and the order takes 2", func(t *testing.T) {
		userID := testutil.CreateUser(t, db, "partial")
		productID := testutil.CreateProduct(t, db, "P-partial", 100, 3)

		require.NoError(t, f.store.AddItem(ctx, userID, productID, 2))
		err := f.store.AddItem(ctx, userID, productID, 2)
		assert.True(t, apperr.Is(err, apperr.CodeConflict))

		order, err := f.factory.Create(ctx, userID, shipping)
		require.NoError(t, err)
		assert.Equal(t, int64(200), order.TotalAmount)
		assert.Equal(t, 1, testutil.Stock(t, db, productID))

		items, err := f.store.ListItems(ctx, userID)
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("order details keep the price paid", func(t *testing.T) {
		userID := testutil.CreateUser(t, db, "frozen")
		productID := testutil.CreateProduct(t, db, "P-frozen", 100, 5)

		require.NoError(t, f.store.AddItem(ctx, userID, productID, 1))
		order, err := f.factory.Create(ctx, userID, shipping)
		require.NoError(t, err)

		_, err = db.Exec(`UPDATE products SET price = 999, name = 'Renamed' WHERE id = $1`, productID)
		require.NoError(t, err)

		got, err := f.history.Get(ctx, order.OrderNumber, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(100), got.Details[0].Price)
		assert.Equal(t, "P-frozen", got.Details[0].ProductName)

		other := testutil.CreateUser(t, db, "snoop")
		_, err = f.history.Get(ctx, order.OrderNumber, other)
		assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	})

	t.Run("a failing line leaves nothing behind", func(t *testing.T) {
		userID := testutil.CreateUser(t, db, "atomic")
		plenty := testutil.CreateProduct(t, db, "Plenty", 100, 10)
		scarce := testutil.CreateProduct(t, db, "Scarce", 100, 5)

		require.NoError(t, f.store.AddItem(ctx, userID, plenty, 2))
		require.NoError(t, f.store.AddItem(ctx, userID, scarce, 4))
		testutil.SetStock(t, db, scarce, 3)

		_, err := f.factory.Create(ctx, userID, shipping)

		typed := apperr.As(err)
		require.NotNil(t, typed)
		assert.Equal(t, apperr.CodeConflict, typed.Code())
		assert.Equal(t, map[string]string{"product": "Scarce"}, typed.Details())

		assert.Equal(t, 10, testutil.Stock(t, db, plenty))
		assert.Equal(t, 3, testutil.Stock(t, db, scarce))
		assert.Zero(t, testutil.Count(t, db, "orders", "user_id = $1", userID))
		items, err := f.store.ListItems(ctx, userID)
		require.NoError(t, err)
		assert.Len(t, items, 2)
	})

	t.Run("two buyers racing for the last unit", func(t *testing.T) {
		productID := testutil.CreateProduct(t, db, "Last", 100, 1)
		buyers := []int64{testutil.CreateUser(t, db, "racer1"), testutil.CreateUser(t, db, "racer2")}
		for _, userID := range buyers {
			require.NoError(t, f.store.AddItem(ctx, userID, productID, 1))
		}

		var wg sync.WaitGroup
		errs := make([]error, len(buyers))
		for i, userID := range buyers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = f.factory.Create(ctx, userID, shipping)
			}()
		}
		wg.Wait()

		var succeeded, conflicted int
		for _, err := range errs {
			switch {
			case err == nil:
				succeeded++
			case apperr.Is(err, apperr.CodeConflict):
				conflicted++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, succeeded)
		assert.Equal(t, 1, conflicted)
		assert.Equal(t, 0, testutil.Stock(t, db, productID))
	})

	t.Run("history lists newest first", func(t *testing.T) {
		userID := testutil.CreateUser(t, db, "history")
		productID := testutil.CreateProduct(t, db, "P-history", 100, 10)

		var numbers []string
		for range 2 {
			require.NoError(t, f.store.AddItem(ctx, userID, productID, 1))
			order, err := f.factory.Create(ctx, userID, shipping)
			require.NoError(t, err)
			numbers = append(numbers, order.OrderNumber)
		}

		list, err := f.history.List(ctx, userID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, numbers[1], list[0].OrderNumber)
		assert.Equal(t, numbers[0], list[1].OrderNumber)
		assert.Len(t, list[0].Details, 1)

		_, err = f.history.List(ctx, 999999)
		assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	})
}
