package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/joao-fontenele/storefront/internal/accounts"
	"github.com/joao-fontenele/storefront/internal/apperr"
	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/txscope"
)

const orderColumns = `id, user_id, order_number, status, total_amount, payment_method,
	shipping_name, shipping_postal_code, shipping_address, shipping_phone, created_at`

// History reads committed orders. Orders are immutable, so reads take no
// locks.
type History struct {
	scope *txscope.Scope
}

func NewHistory(scope *txscope.Scope) *History {
	return &History{scope: scope}
}

// List returns the user's orders newest first, each with its details.
func (h *History) List(ctx context.Context, userID int64) ([]domain.Order, error) {
	orders := []domain.Order{}

	err := h.scope.ReadOnly(ctx, func(ctx context.Context, tx *sql.Tx) error {
		exists, err := accounts.Exists(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !exists {
			return apperr.NotFound("user not found")
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT `+orderColumns+`
			FROM orders
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
		`, userID)
		if err != nil {
			return fmt.Errorf("list orders: %w", err)
		}
		defer func() { _ = rows.Close() }()

		byID := make(map[int64]int)
		var ids []int64
		for rows.Next() {
			order, err := scanOrder(rows)
			if err != nil {
				return err
			}
			order.Details = []domain.OrderDetail{}
			byID[order.ID] = len(orders)
			ids = append(ids, order.ID)
			orders = append(orders, order)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		if len(ids) == 0 {
			return nil
		}

		return eachDetail(ctx, tx, `
			SELECT order_id, id, product_id, quantity, price, product_name, product_image_url
			FROM order_details
			WHERE order_id = ANY($1)
			ORDER BY id
		`, pq.Array(ids), func(orderID int64, d domain.OrderDetail) {
			i := byID[orderID]
			orders[i].Details = append(orders[i].Details, d)
		})
	})
	if err != nil {
		return nil, err
	}

	return orders, nil
}

// Get returns one order by number. An order belonging to another user is
// reported as not found.
func (h *History) Get(ctx context.Context, orderNumber string, userID int64) (*domain.Order, error) {
	var order domain.Order

	err := h.scope.ReadOnly(ctx, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT `+orderColumns+`
			FROM orders
			WHERE order_number = $1 AND user_id = $2
		`, orderNumber, userID)

		var err error
		order, err = scanOrder(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("order not found")
			}
			return fmt.Errorf("get order %s: %w", orderNumber, err)
		}

		order.Details = []domain.OrderDetail{}
		return eachDetail(ctx, tx, `
			SELECT order_id, id, product_id, quantity, price, product_name, product_image_url
			FROM order_details
			WHERE order_id = $1
			ORDER BY id
		`, order.ID, func(_ int64, d domain.OrderDetail) {
			order.Details = append(order.Details, d)
		})
	})
	if err != nil {
		return nil, err
	}

	return &order, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(s scanner) (domain.Order, error) {
	var o domain.Order
	err := s.Scan(&o.ID, &o.UserID, &o.OrderNumber, &o.Status, &o.TotalAmount, &o.PaymentMethod,
		&o.ShippingName, &o.ShippingPostalCode, &o.ShippingAddress, &o.ShippingPhone, &o.CreatedAt)
	return o, err
}

func eachDetail(ctx context.Context, tx *sql.Tx, query string, arg any, fn func(orderID int64, d domain.OrderDetail)) error {
	rows, err := tx.QueryContext(ctx, query, arg)
	if err != nil {
		return fmt.Errorf("list order details: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			orderID int64
			d       domain.OrderDetail
		)
		if err := rows.Scan(&orderID, &d.ID, &d.ProductID, &d.Quantity, &d.Price, &d.ProductName, &d.ProductImageURL); err != nil {
			return err
		}
		fn(orderID, d)
	}
	return rows.Err()
}
