package orders

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/storefront/internal/apperr"
	"github.com/joao-fontenele/storefront/internal/txscope"
)

var (
	userExistsQuery = regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)")
	listOrdersQuery = regexp.QuoteMeta("FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC")
	getOrderQuery   = regexp.QuoteMeta("FROM orders WHERE order_number = $1 AND user_id = $2")
	detailsAnyQuery = regexp.QuoteMeta("FROM order_details WHERE order_id = ANY($1) ORDER BY id")
	detailsOneQuery = regexp.QuoteMeta("FROM order_details WHERE order_id = $1 ORDER BY id")

	orderRowColumns = []string{"id", "user_id", "order_number", "status", "total_amount", "payment_method",
		"shipping_name", "shipping_postal_code", "shipping_address", "shipping_phone", "created_at"}
	detailColumns = []string{"order_id", "id", "product_id", "quantity", "price", "product_name", "product_image_url"}
)

func newTestHistory(t *testing.T) (*History, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewHistory(txscope.New(db, slog.New(slog.NewTextHandler(io.Discard, nil)))), mock
}

func orderRow(rows *sqlmock.Rows, id int64, number string, total int64, at time.Time) *sqlmock.Rows {
	return rows.AddRow(id, 7, number, "completed", total, "card", "Alice", "100-0001", "1-1 Chiyoda", "0312345678", at)
}

func TestHistory_List(t *testing.T) {
	ctx := context.Background()

	t.Run("nests details under their orders", func(t *testing.T) {
		history, mock := newTestHistory(t)
		newer, older := createdAt.Add(time.Hour), createdAt

		mock.ExpectBegin()
		mock.ExpectQuery(userExistsQuery).WithArgs(int64(7)).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		rows := sqlmock.NewRows(orderRowColumns)
		orderRow(rows, 101, "ORD-20261018-BBBBBBBB", 250, newer)
		orderRow(rows, 100, "ORD-20261018-AAAAAAAA", 200, older)
		mock.ExpectQuery(listOrdersQuery).WithArgs(int64(7)).WillReturnRows(rows)
		mock.ExpectQuery(detailsAnyQuery).WithArgs(sqlmock.AnyArg()).WillReturnRows(
			sqlmock.NewRows(detailColumns).
				AddRow(100, 500, 1, 2, 100, "P", nil).
				AddRow(101, 501, 2, 1, 250, "Q", "/q.jpg"),
		)
		mock.ExpectCommit()

		orders, err := history.List(ctx, 7)

		require.NoError(t, err)
		require.Len(t, orders, 2)
		assert.Equal(t, "ORD-20261018-BBBBBBBB", orders[0].OrderNumber)
		require.Len(t, orders[0].Details, 1)
		assert.Equal(t, "Q", orders[0].Details[0].ProductName)
		require.Len(t, orders[1].Details, 1)
		assert.Equal(t, 2, orders[1].Details[0].Quantity)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("user without orders gets an empty list", func(t *testing.T) {
		history, mock := newTestHistory(t)

		mock.ExpectBegin()
		mock.ExpectQuery(userExistsQuery).WithArgs(int64(7)).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery(listOrdersQuery).WithArgs(int64(7)).WillReturnRows(sqlmock.NewRows(orderRowColumns))
		mock.ExpectCommit()

		orders, err := history.List(ctx, 7)

		require.NoError(t, err)
		assert.NotNil(t, orders)
		assert.Empty(t, orders)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown user is not found", func(t *testing.T) {
		history, mock := newTestHistory(t)

		mock.ExpectBegin()
		mock.ExpectQuery(userExistsQuery).WithArgs(int64(8)).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectRollback()

		_, err := history.List(ctx, 8)

		assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	})
}

func TestHistory_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the order with details", func(t *testing.T) {
		history, mock := newTestHistory(t)

		mock.ExpectBegin()
		mock.ExpectQuery(getOrderQuery).WithArgs("ORD-20261018-AAAAAAAA", int64(7)).
			WillReturnRows(orderRow(sqlmock.NewRows(orderRowColumns), 100, "ORD-20261018-AAAAAAAA", 200, createdAt))
		mock.ExpectQuery(detailsOneQuery).WithArgs(int64(100)).
			WillReturnRows(sqlmock.NewRows(detailColumns).AddRow(100, 500, 1, 2, 100, "P", nil))
		mock.ExpectCommit()

		order, err := history.Get(ctx, "ORD-20261018-AAAAAAAA", 7)

		require.NoError(t, err)
		assert.Equal(t, int64(200), order.TotalAmount)
		assert.Equal(t, "Alice", order.ShippingName)
		require.Len(t, order.Details, 1)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("another user's order is not found", func(t *testing.T) {
		history, mock := newTestHistory(t)

		mock.ExpectBegin()
		mock.ExpectQuery(getOrderQuery).WithArgs("ORD-20261018-AAAAAAAA", int64(8)).
			WillReturnRows(sqlmock.NewRows(orderRowColumns))
		mock.ExpectRollback()

		_, err := history.Get(ctx, "ORD-20261018-AAAAAAAA", 8)

		assert.True(t, apperr.Is(err, apperr.CodeNotFound))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
