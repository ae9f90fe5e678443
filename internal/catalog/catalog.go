// Package catalog serves read-only product and category listings.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/joao-fontenele/storefront/internal/apperr"
	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/txscope"
)

const productColumns = `id, category_id, name, description, price, stock, image_url`

type Catalog struct {
	scope *txscope.Scope
}

func New(scope *txscope.Scope) *Catalog {
	return &Catalog{scope: scope}
}

func (c *Catalog) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return c.queryProducts(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
}

func (c *Catalog) ListByCategory(ctx context.Context, categoryID int64) ([]domain.Product, error) {
	return c.queryProducts(ctx, `SELECT `+productColumns+` FROM products WHERE category_id = $1 ORDER BY id`, categoryID)
}

func (c *Catalog) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	err := c.scope.ReadOnly(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id).
			Scan(&p.ID, &p.CategoryID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.ImageURL)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("product not found")
		}
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}
	return &p, nil
}

func (c *Catalog) ListCategories(ctx context.Context) ([]domain.Category, error) {
	categories := []domain.Category{}
	err := c.scope.ReadOnly(ctx, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY id`)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var cat domain.Category
			if err := rows.Scan(&cat.ID, &cat.Name); err != nil {
				return err
			}
			categories = append(categories, cat)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

func (c *Catalog) queryProducts(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	products := []domain.Product{}
	err := c.scope.ReadOnly(ctx, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var p domain.Product
			if err := rows.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.ImageURL); err != nil {
				return err
			}
			products = append(products, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}
