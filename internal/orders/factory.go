// Package orders turns a cart into an immutable order and serves order
// history.
package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/joao-fontenele/storefront/internal/apperr"
	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/stock"
	"github.com/joao-fontenele/storefront/internal/txscope"
)

const orderNumberConstraint = "orders_order_number_key"

var meter = otel.Meter("storefront/orders")

// EventPublisher is implemented by messaging.Producer.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event domain.OrderCreatedEvent) error
}

type Factory struct {
	scope     *txscope.Scope
	ledger    *stock.Ledger
	numbers   NumberGenerator
	publisher EventPublisher
	logger    *slog.Logger

	created metric.Int64Counter
	amount  metric.Int64Counter
}

type FactoryOption func(*Factory)

// WithPublisher makes the factory announce committed orders. Without it no
// events are sent.
func WithPublisher(p EventPublisher) FactoryOption {
	return func(f *Factory) {
		f.publisher = p
	}
}

func WithNumberGenerator(g NumberGenerator) FactoryOption {
	return func(f *Factory) {
		f.numbers = g
	}
}

func NewFactory(scope *txscope.Scope, ledger *stock.Ledger, logger *slog.Logger, opts ...FactoryOption) *Factory {
	created, err := meter.Int64Counter("orders.created",
		metric.WithDescription("Orders committed"),
	)
	if err != nil {
		created = noop.Int64Counter{}
	}
	amount, err := meter.Int64Counter("orders.amount",
		metric.WithDescription("Sum of committed order totals in minor currency units"),
	)
	if err != nil {
		amount = noop.Int64Counter{}
	}

	f := &Factory{
		scope:   scope,
		ledger:  ledger,
		numbers: NewDatedNumberGenerator(),
		logger:  logger,
		created: created,
		amount:  amount,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type cartLine struct {
	itemID    int64
	productID int64
	quantity  int
}

// Create converts the user's cart into a completed order. Every line is
// re-validated against stock locked for the duration of the transaction; the
// order, its details, the stock decrements and the emptied cart commit
// together or not at all.
func (f *Factory) Create(ctx context.Context, userID int64, shipping domain.ShippingInfo) (*domain.Order, error) {
	var (
		order *domain.Order
		email string
	)

	err := f.scope.Run(ctx, sql.LevelSerializable, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		email, err = lookupEmail(ctx, tx, userID)
		if err != nil {
			return err
		}

		cartID, err := lockCart(ctx, tx, userID)
		if err != nil {
			return err
		}

		lines, err := lockLines(ctx, tx, cartID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return apperr.EmptyCart()
		}

		products, err := f.lockProducts(ctx, tx, lines)
		if err != nil {
			return err
		}

		demand := make(map[int64]int, len(products))
		for _, line := range lines {
			demand[line.productID] += line.quantity
		}

		var total int64
		details := make([]domain.OrderDetail, 0, len(lines))
		for _, line := range lines {
			p := products[line.productID]
			if err := p.Require(demand[line.productID]); err != nil {
				return err
			}
			total += p.Price * int64(line.quantity)
			details = append(details, domain.OrderDetail{
				ProductID:       p.ID,
				Quantity:        line.quantity,
				Price:           p.Price,
				ProductName:     p.Name,
				ProductImageURL: p.ImageURL,
			})
		}

		o := &domain.Order{
			UserID:       userID,
			OrderNumber:  f.numbers.Next(),
			Status:       domain.OrderStatusCompleted,
			TotalAmount:  total,
			ShippingInfo: shipping,
		}
		if err := insertOrder(ctx, tx, o); err != nil {
			return err
		}

		for i := range details {
			if err := insertDetail(ctx, tx, o.ID, &details[i]); err != nil {
				return err
			}
			if err := f.ledger.Decrement(ctx, tx, products[details[i].ProductID], details[i].Quantity); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
			return fmt.Errorf("empty cart %d: %w", cartID, err)
		}

		o.Details = details
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	f.created.Add(ctx, 1)
	f.amount.Add(ctx, order.TotalAmount)
	f.logger.Info("order created",
		"order_number", order.OrderNumber,
		"user_id", userID,
		"total_amount", order.TotalAmount,
		"lines", len(order.Details),
	)

	f.publish(ctx, order, email)
	return order, nil
}

// publish runs after commit. A failure is logged and never undoes the order.
func (f *Factory) publish(ctx context.Context, order *domain.Order, email string) {
	if f.publisher == nil {
		return
	}

	event := domain.OrderCreatedEvent{
		OrderNumber:  order.OrderNumber,
		UserID:       order.UserID,
		Email:        email,
		ShippingName: order.ShippingName,
		TotalAmount:  order.TotalAmount,
		Items:        order.Details,
		Timestamp:    order.CreatedAt,
	}
	if err := f.publisher.PublishOrderCreated(ctx, event); err != nil {
		f.logger.Error("failed to publish order created event", "error", err, "order_number", order.OrderNumber)
	}
}

// lockProducts locks every distinct product of the cart in ascending id
// order.
func (f *Factory) lockProducts(ctx context.Context, tx *sql.Tx, lines []cartLine) (map[int64]*stock.LockedProduct, error) {
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.productID)
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	products := make(map[int64]*stock.LockedProduct, len(ids))
	for _, id := range ids {
		p, err := f.ledger.Lock(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		products[id] = p
	}
	return products, nil
}

func lookupEmail(ctx context.Context, tx *sql.Tx, userID int64) (string, error) {
	var email string
	err := tx.QueryRowContext(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", apperr.NotFound("user not found")
		}
		return "", fmt.Errorf("find user %d: %w", userID, err)
	}
	return email, nil
}

func lockCart(ctx context.Context, tx *sql.Tx, userID int64) (int64, error) {
	var cartID int64
	err := tx.QueryRowContext(ctx, `
		SELECT id
		FROM carts
		WHERE user_id = $1
		FOR UPDATE
	`, userID).Scan(&cartID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, apperr.NotFound("cart not found")
		}
		return 0, fmt.Errorf("lock cart of user %d: %w", userID, err)
	}
	return cartID, nil
}

func lockLines(ctx context.Context, tx *sql.Tx, cartID int64) ([]cartLine, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, product_id, quantity
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY id
		FOR UPDATE
	`, cartID)
	if err != nil {
		return nil, fmt.Errorf("lock cart items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var lines []cartLine
	for rows.Next() {
		var line cartLine
		if err := rows.Scan(&line.itemID, &line.productID, &line.quantity); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func insertOrder(ctx context.Context, tx *sql.Tx, o *domain.Order) error {
	err := tx.QueryRowContext(ctx, `
		INSERT INTO orders (user_id, order_number, status, total_amount, payment_method,
			shipping_name, shipping_postal_code, shipping_address, shipping_phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`, o.UserID, o.OrderNumber, o.Status, o.TotalAmount, o.PaymentMethod,
		o.ShippingName, o.ShippingPostalCode, o.ShippingAddress, o.ShippingPhone,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		if txscope.IsUniqueViolation(err, orderNumberConstraint) {
			return txscope.Retryable(fmt.Errorf("order number %s already taken: %w", o.OrderNumber, err))
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func insertDetail(ctx context.Context, tx *sql.Tx, orderID int64, d *domain.OrderDetail) error {
	err := tx.QueryRowContext(ctx, `
		INSERT INTO order_details (order_id, product_id, quantity, price, product_name, product_image_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, orderID, d.ProductID, d.Quantity, d.Price, d.ProductName, d.ProductImageURL).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("insert order detail for product %d: %w", d.ProductID, err)
	}
	return nil
}
