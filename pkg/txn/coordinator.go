package txn

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/rosswilliamsdev/guitar-strategies-api/pkg/database"
	appErrors "github.com/rosswilliamsdev/guitar-strategies-api/pkg/errors"
)

const (
	backoffBase = 100 * time.Millisecond
	backoffCap  = 2 * time.Second
)

// Options bounds a unit of work: how long it may run, how often transient
// failures are retried, and at which isolation level it executes.
type Options struct {
	Label     string
	Timeout   time.Duration
	Retries   int
	Isolation sql.IsolationLevel
}

// BookingOptions suits the conflict-sensitive booking insert path: the
// in-transaction duplicate re-check depends on serializable isolation.
func BookingOptions() Options {
	return Options{Label: "booking", Timeout: 15 * time.Second, Retries: 2, Isolation: sql.LevelSerializable}
}

// CancellationOptions allows a single retry; cancellations are cheap but
// must not stack duplicate audit notes.
func CancellationOptions() Options {
	return Options{Label: "cancellation", Timeout: 10 * time.Second, Retries: 1, Isolation: sql.LevelReadCommitted}
}

// BulkOptions never retries: re-running a partially applied batch risks
// duplicate side effects. Serializable isolation, like the booking path:
// batch and backfill inserts re-check for conflicting rows inside the
// transaction, and two concurrent writers must not both pass that check.
func BulkOptions() Options {
	return Options{Label: "bulk", Timeout: 30 * time.Second, Retries: 0, Isolation: sql.LevelSerializable}
}

// HealthCheckOptions keeps read-only probes short and single-shot.
func HealthCheckOptions() Options {
	return Options{Label: "health", Timeout: 2 * time.Second, Retries: 0, Isolation: sql.LevelDefault}
}

// Coordinator runs functions inside retryable, timeout-bounded database
// transactions. Only errors the storage adapter marks retryable are retried;
// everything else propagates on the first attempt.
type Coordinator struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewCoordinator builds a coordinator over the shared database handle.
func NewCoordinator(db *sqlx.DB, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{db: db, logger: logger}
}

// Execute runs fn inside a transaction per the supplied options. fn must be
// safe to re-run from scratch when its options allow retries.
func (c *Coordinator) Execute(ctx context.Context, opts Options, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	var lastErr error

	for attempt := 0; attempt <= opts.Retries; attempt++ {
		if attempt > 0 {
			delay := backoff(attempt)
			c.logger.Warn("retrying transaction",
				zap.String("label", opts.Label),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
				zap.Error(lastErr),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = c.attempt(ctx, opts, fn)
		if lastErr == nil {
			return nil
		}
		if !database.IsRetryable(lastErr) {
			return lastErr
		}
	}

	return appErrors.Wrap(lastErr, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status,
		"transaction failed after retries: "+opts.Label)
}

func (c *Coordinator) attempt(ctx context.Context, opts Options, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	tx, err := c.db.BeginTxx(ctx, &sql.TxOptions{Isolation: opts.Isolation})
	if err != nil {
		return database.Classify("begin "+opts.Label, err)
	}

	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		// Serialization failures often surface at commit time.
		return database.Classify("commit "+opts.Label, err)
	}
	return nil
}

func backoff(attempt int) time.Duration {
	delay := backoffBase << (attempt - 1)
	if delay > backoffCap {
		return backoffCap
	}
	return delay
}
