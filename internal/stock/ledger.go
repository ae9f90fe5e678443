// Package stock is the only place that reads product stock for a decision
// and the only place that changes it.
package stock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/joao-fontenele/storefront/internal/apperr"
)

// LockedProduct is a product row held under an exclusive row lock by the
// transaction that read it.
type LockedProduct struct {
	ID       int64
	Name     string
	Price    int64
	Stock    int
	ImageURL *string
}

// Require fails with an insufficient stock conflict when qty exceeds the
// locked stock.
func (p *LockedProduct) Require(qty int) error {
	if qty > p.Stock {
		return apperr.InsufficientStock(p.Name)
	}
	return nil
}

// RequireMore fails like Require when qty more units on top of the held
// units exceed the locked stock. The sum is never computed, so a huge qty
// cannot wrap around.
func (p *LockedProduct) RequireMore(held, qty int) error {
	if qty > p.Stock-held {
		return apperr.InsufficientStock(p.Name)
	}
	return nil
}

type Ledger struct{}

func NewLedger() *Ledger {
	return &Ledger{}
}

// Lock reads the product row with FOR UPDATE.
func (l *Ledger) Lock(ctx context.Context, tx *sql.Tx, productID int64) (*LockedProduct, error) {
	p := &LockedProduct{}

	err := tx.QueryRowContext(ctx, `
		SELECT id, name, price, stock, image_url
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, productID).Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.ImageURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("product not found")
		}
		return nil, fmt.Errorf("lock product %d: %w", productID, err)
	}

	return p, nil
}

// LockAndCheck locks the product and checks that qty more units fit on top
// of the held units already in a cart line. A product with no stock left is
// reported as not found.
func (l *Ledger) LockAndCheck(ctx context.Context, tx *sql.Tx, productID int64, held, qty int) (*LockedProduct, error) {
	p, err := l.Lock(ctx, tx, productID)
	if err != nil {
		return nil, err
	}
	if p.Stock <= 0 {
		return nil, apperr.NotFound("product not found or out of stock")
	}
	if err := p.RequireMore(held, qty); err != nil {
		return nil, err
	}
	return p, nil
}

// Decrement subtracts qty from a product previously locked in tx. The guard
// in the WHERE clause keeps stock from going negative even if a caller skips
// Require; in that case the whole transaction must be abandoned.
func (l *Ledger) Decrement(ctx context.Context, tx *sql.Tx, p *LockedProduct, qty int) error {
	if qty <= 0 {
		return apperr.Validation("quantity must be greater than zero")
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
	`, p.ID, qty)
	if err != nil {
		return fmt.Errorf("decrement stock of product %d: %w", p.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return apperr.InsufficientStock(p.Name)
	}

	p.Stock -= qty
	return nil
}
