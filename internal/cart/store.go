// Package cart mutates and reads shopping carts. Quantities are validated
// against stock when they change but stock is never reserved here; the order
// factory re-validates under lock at checkout.
package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/joao-fontenele/storefront/internal/accounts"
	"github.com/joao-fontenele/storefront/internal/apperr"
	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/stock"
	"github.com/joao-fontenele/storefront/internal/txscope"
)

var meter = otel.Meter("storefront/cart")

var errUnknownUser = apperr.Unauthorized("user not found")

const cartLineConstraint = "cart_items_cart_id_product_id_key"

type Store struct {
	scope     *txscope.Scope
	ledger    *stock.Ledger
	logger    *slog.Logger
	additions metric.Int64Counter
}

func NewStore(scope *txscope.Scope, ledger *stock.Ledger, logger *slog.Logger) *Store {
	additions, err := meter.Int64Counter("cart.items.added",
		metric.WithDescription("Units added to carts"),
	)
	if err != nil {
		additions = noop.Int64Counter{}
	}

	return &Store{
		scope:     scope,
		ledger:    ledger,
		logger:    logger,
		additions: additions,
	}
}

// AddItem puts qty units of a product in the user's cart, creating the cart
// on first use. An existing line for the product is merged: its quantity
// becomes the old quantity plus qty, checked against stock as a whole.
func (s *Store) AddItem(ctx context.Context, userID, productID int64, qty int) error {
	if qty <= 0 {
		return apperr.Validation("quantity must be greater than zero")
	}

	err := s.scope.Run(ctx, sql.LevelRepeatableRead, func(ctx context.Context, tx *sql.Tx) error {
		if err := requireUser(ctx, tx, userID); err != nil {
			return err
		}

		cartID, err := lockOrCreateCart(ctx, tx, userID)
		if err != nil {
			return err
		}

		itemID, current, err := lockLine(ctx, tx, cartID, productID)
		if err != nil {
			return err
		}

		if _, err := s.ledger.LockAndCheck(ctx, tx, productID, current, qty); err != nil {
			return err
		}

		if itemID == 0 {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO cart_items (cart_id, product_id, quantity)
				VALUES ($1, $2, $3)
			`, cartID, productID, qty)
			if txscope.IsUniqueViolation(err, cartLineConstraint) {
				// A concurrent add committed the line after our snapshot.
				return txscope.Retryable(err)
			}
			if err != nil {
				return fmt.Errorf("insert cart item: %w", err)
			}
			return nil
		}

		return setQuantity(ctx, tx, itemID, current+qty)
	})
	if err != nil {
		return err
	}

	s.additions.Add(ctx, int64(qty))
	s.logger.Info("cart item added", "user_id", userID, "product_id", productID, "quantity", qty)
	return nil
}

// UpdateItem overwrites the quantity of a cart line.
func (s *Store) UpdateItem(ctx context.Context, itemID int64, qty int) error {
	if qty <= 0 {
		return apperr.Validation("quantity must be greater than zero")
	}

	err := s.scope.Run(ctx, sql.LevelRepeatableRead, func(ctx context.Context, tx *sql.Tx) error {
		var productID int64
		err := tx.QueryRowContext(ctx, `
			SELECT product_id
			FROM cart_items
			WHERE id = $1
			FOR UPDATE
		`, itemID).Scan(&productID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("cart item not found")
			}
			return fmt.Errorf("lock cart item %d: %w", itemID, err)
		}

		p, err := s.ledger.Lock(ctx, tx, productID)
		if err != nil {
			return err
		}
		if err := p.Require(qty); err != nil {
			return err
		}

		return setQuantity(ctx, tx, itemID, qty)
	})
	if err != nil {
		return err
	}

	s.logger.Info("cart item updated", "item_id", itemID, "quantity", qty)
	return nil
}

func (s *Store) RemoveItem(ctx context.Context, itemID int64) error {
	err := s.scope.Run(ctx, sql.LevelDefault, func(ctx context.Context, tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID)
		if err != nil {
			return fmt.Errorf("delete cart item %d: %w", itemID, err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			return apperr.NotFound("cart item not found")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("cart item removed", "item_id", itemID)
	return nil
}

// ListItems returns the user's cart lines joined with their products. A user
// without a cart has an empty list.
func (s *Store) ListItems(ctx context.Context, userID int64) ([]domain.CartItemView, error) {
	items := []domain.CartItemView{}

	err := s.scope.ReadOnly(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := requireUser(ctx, tx, userID); err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT ci.id, ci.product_id, ci.quantity, p.name, p.price, p.image_url, p.stock
			FROM cart_items ci
			JOIN carts c ON c.id = ci.cart_id
			JOIN products p ON p.id = ci.product_id
			WHERE c.user_id = $1
			ORDER BY ci.id
		`, userID)
		if err != nil {
			return fmt.Errorf("list cart items: %w", err)
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var item domain.CartItemView
			if err := rows.Scan(&item.ID, &item.ProductID, &item.Quantity, &item.Name, &item.Price, &item.ImageURL, &item.Stock); err != nil {
				return err
			}
			item.TotalPrice = item.Price * int64(item.Quantity)
			items = append(items, item)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return items, nil
}

// Total aggregates the user's cart. It always agrees with the sum of the
// lines ListItems would return in the same state.
func (s *Store) Total(ctx context.Context, userID int64) (domain.CartTotal, error) {
	var total domain.CartTotal

	err := s.scope.ReadOnly(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := requireUser(ctx, tx, userID); err != nil {
			return err
		}

		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(ci.id), COALESCE(SUM(ci.quantity), 0), COALESCE(SUM(ci.quantity * p.price), 0)
			FROM cart_items ci
			JOIN carts c ON c.id = ci.cart_id
			JOIN products p ON p.id = ci.product_id
			WHERE c.user_id = $1
		`, userID).Scan(&total.TotalItems, &total.TotalQuantity, &total.TotalAmount)
		if err != nil {
			return fmt.Errorf("total cart: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.CartTotal{}, err
	}

	return total, nil
}

// Clear empties the user's cart. Clearing an empty or missing cart succeeds.
func (s *Store) Clear(ctx context.Context, userID int64) error {
	var removed int64

	err := s.scope.Run(ctx, sql.LevelDefault, func(ctx context.Context, tx *sql.Tx) error {
		if err := requireUser(ctx, tx, userID); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `
			DELETE FROM cart_items
			USING carts
			WHERE carts.id = cart_items.cart_id AND carts.user_id = $1
		`, userID)
		if err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}

		removed, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info("cart cleared", "user_id", userID, "removed", removed)
	return nil
}

func requireUser(ctx context.Context, tx *sql.Tx, userID int64) error {
	exists, err := accounts.Exists(ctx, tx, userID)
	if err != nil {
		return err
	}
	if !exists {
		return errUnknownUser
	}
	return nil
}

func lockOrCreateCart(ctx context.Context, tx *sql.Tx, userID int64) (int64, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO carts (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("create cart: %w", err)
	}

	var cartID int64
	err = tx.QueryRowContext(ctx, `
		SELECT id
		FROM carts
		WHERE user_id = $1
		FOR UPDATE
	`, userID).Scan(&cartID)
	if err != nil {
		return 0, fmt.Errorf("lock cart of user %d: %w", userID, err)
	}
	return cartID, nil
}

// lockLine returns the id and quantity of the cart line for productID, or a
// zero id when the cart has no such line.
func lockLine(ctx context.Context, tx *sql.Tx, cartID, productID int64) (int64, int, error) {
	var (
		itemID   int64
		quantity int
	)
	err := tx.QueryRowContext(ctx, `
		SELECT id, quantity
		FROM cart_items
		WHERE cart_id = $1 AND product_id = $2
		FOR UPDATE
	`, cartID, productID).Scan(&itemID, &quantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("lock cart item: %w", err)
	}
	return itemID, quantity, nil
}

func setQuantity(ctx context.Context, tx *sql.Tx, itemID int64, qty int) error {
	_, err := tx.ExecContext(ctx, `UPDATE cart_items SET quantity = $2 WHERE id = $1`, itemID, qty)
	if err != nil {
		return fmt.Errorf("update cart item %d: %w", itemID, err)
	}
	return nil
}
