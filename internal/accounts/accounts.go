// Package accounts answers the two questions the storefront asks about users:
// does this id exist, and do these credentials match.
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/joao-fontenele/storefront/internal/apperr"
	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/txscope"
)

// Queryer is satisfied by *sql.Tx and *sql.DB.
type Queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Exists reports whether a user with the given id exists. It runs on the
// caller's transaction so the check shares its snapshot.
func Exists(ctx context.Context, q Queryer, userID int64) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user %d: %w", userID, err)
	}
	return exists, nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

type Service struct {
	scope  *txscope.Scope
	logger *slog.Logger
}

func NewService(scope *txscope.Scope, logger *slog.Logger) *Service {
	return &Service{scope: scope, logger: logger}
}

var errInvalidCredentials = apperr.Unauthorized("invalid name or password")

// Login returns the id of the user whose name and password match.
func (s *Service) Login(ctx context.Context, name, password string) (int64, error) {
	var user domain.User
	err := s.scope.ReadOnly(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `
			SELECT id, name, email, password_hash
			FROM users
			WHERE name = $1
		`, name).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, errInvalidCredentials
		}
		return 0, fmt.Errorf("find user %q: %w", name, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("login rejected", "user_id", user.ID)
		return 0, errInvalidCredentials
	}

	s.logger.Info("user logged in", "user_id", user.ID)
	return user.ID, nil
}
