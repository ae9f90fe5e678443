// Package txscope runs units of work inside a database transaction opened on
// a dedicated connection. The transaction commits when the body returns nil
// and rolls back on any error or panic; the connection is released on every
// exit path.
package txscope

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

var (
	tracer = otel.Tracer("storefront/txscope")
	meter  = otel.Meter("storefront/txscope")
)

// Body is the work executed inside a scope.
type Body func(ctx context.Context, tx *sql.Tx) error

type Scope struct {
	db          *sql.DB
	logger      *slog.Logger
	maxAttempts int
	newBackOff  func() backoff.BackOff
	retries     metric.Int64Counter
}

type Option func(*Scope)

// WithMaxAttempts bounds how many times a body is run when the database
// reports a serialization failure or deadlock. Values below 1 mean 1.
func WithMaxAttempts(n int) Option {
	return func(s *Scope) {
		if n < 1 {
			n = 1
		}
		s.maxAttempts = n
	}
}

// WithBackOff replaces the delay policy between attempts.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(s *Scope) {
		s.newBackOff = fn
	}
}

func New(db *sql.DB, logger *slog.Logger, opts ...Option) *Scope {
	retries, err := meter.Int64Counter("db.tx.retries",
		metric.WithDescription("Transactions re-run after a serialization failure or deadlock"),
	)
	if err != nil {
		retries = noop.Int64Counter{}
	}

	s := &Scope{
		db:          db,
		logger:      logger,
		maxAttempts: 3,
		newBackOff:  defaultBackOff,
		retries:     retries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	return b
}

// Run executes body in a transaction at the given isolation level.
// sql.LevelDefault leaves the choice to the database.
//
// Errors returned by body are passed through unchanged after rollback.
func (s *Scope) Run(ctx context.Context, isolation sql.IsolationLevel, body Body) error {
	return s.run(ctx, "txscope.Run", &sql.TxOptions{Isolation: isolation}, body)
}

// ReadOnly executes body in a read-only transaction at the default level.
func (s *Scope) ReadOnly(ctx context.Context, body Body) error {
	return s.run(ctx, "txscope.ReadOnly", &sql.TxOptions{ReadOnly: true}, body)
}

func (s *Scope) run(ctx context.Context, spanName string, opts *sql.TxOptions, body Body) error {
	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()
	span.SetAttributes(
		attribute.String("db.tx.isolation", opts.Isolation.String()),
		attribute.Bool("db.tx.read_only", opts.ReadOnly),
	)

	attempt := 0
	operation := func() error {
		attempt++
		err := s.runOnce(ctx, opts, body)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		if attempt < s.maxAttempts {
			s.retries.Add(ctx, 1)
			s.logger.Warn("retrying transaction", "error", err, "attempt", attempt, "isolation", opts.Isolation.String())
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(s.newBackOff(), uint64(s.maxAttempts-1)),
		ctx,
	)

	err := backoff.Retry(operation, policy)
	span.SetAttributes(attribute.Int("db.tx.attempts", attempt))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (s *Scope) runOnce(ctx context.Context, opts *sql.TxOptions, body Body) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	tx, err := conn.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error("failed to roll back transaction", "error", rbErr)
		}
	}()

	if err := body(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

const (
	codeSerializationFailure pq.ErrorCode = "40001"
	codeDeadlockDetected     pq.ErrorCode = "40P01"
)

type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Retryable marks err so the scope re-runs the whole body in a fresh
// transaction, for conflicts the body detects itself.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether err is a serialization failure, a deadlock or
// was marked with Retryable.
func IsRetryable(err error) bool {
	var marked *retryableError
	if errors.As(err, &marked) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == codeSerializationFailure || pqErr.Code == codeDeadlockDetected
	}
	return false
}

// IsUniqueViolation reports whether err is a unique constraint violation,
// optionally restricted to the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code.Name() != "unique_violation" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
