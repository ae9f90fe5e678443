package testutil

import (
	"database/sql"
	"fmt"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// CreateUser inserts a user whose password is "password".
func CreateUser(t *testing.T, db *sql.DB, name string) int64 {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	var id int64
	err = db.QueryRow(`
		INSERT INTO users (email, name, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id
	`, name+"@example.com", name, string(hash)).Scan(&id)
	if err != nil {
		t.Fatalf("insert user %s: %v", name, err)
	}
	return id
}

// CreateProduct inserts a product into the first seeded category.
func CreateProduct(t *testing.T, db *sql.DB, name string, price int64, stock int) int64 {
	t.Helper()

	var id int64
	err := db.QueryRow(`
		INSERT INTO products (category_id, name, price, stock)
		VALUES ((SELECT MIN(id) FROM categories), $1, $2, $3)
		RETURNING id
	`, name, price, stock).Scan(&id)
	if err != nil {
		t.Fatalf("insert product %s: %v", name, err)
	}
	return id
}

func SetStock(t *testing.T, db *sql.DB, productID int64, stock int) {
	t.Helper()

	if _, err := db.Exec(`UPDATE products SET stock = $2 WHERE id = $1`, productID, stock); err != nil {
		t.Fatalf("set stock of product %d: %v", productID, err)
	}
}

func Stock(t *testing.T, db *sql.DB, productID int64) int {
	t.Helper()

	var stock int
	if err := db.QueryRow(`SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock); err != nil {
		t.Fatalf("read stock of product %d: %v", productID, err)
	}
	return stock
}

// Count returns the number of rows in table matching where.
func Count(t *testing.T, db *sql.DB, table, where string, args ...any) int {
	t.Helper()

	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", table, where)
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
