// Package optlock provides version-stamped conditional updates over typed
// repositories. Lost updates are detected, not prevented: a mismatched
// version yields a ConflictError and the caller re-reads and retries.
package optlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	retryBase = 50 * time.Millisecond
	retryCap  = time.Second
)

// Versioned is implemented by entities carrying a version counter.
type Versioned interface {
	CurrentVersion() int
}

// Store is the typed repository surface the guard operates over. FindByID
// must return sql.ErrNoRows for missing rows; ConditionalUpdate applies the
// patch only where both id and expected version match, incrementing the
// version, and reports whether a row was written.
type Store[T Versioned, P any] interface {
	FindByID(ctx context.Context, id string) (T, error)
	ConditionalUpdate(ctx context.Context, id string, expectedVersion int, patch P) (bool, error)
}

// ConflictError signals a concurrent modification: the row exists, but its
// version no longer matches what the caller read.
type ConflictError struct {
	Entity   string
	ID       string
	Expected int
	Current  int
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s modified concurrently: expected version %d, current %d", e.Entity, e.ID, e.Expected, e.Current)
}

// NotFoundError signals the row disappeared between read and write.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Guard performs guarded updates against a versioned store.
type Guard[T Versioned, P any] struct {
	entity string
	store  Store[T, P]
}

// NewGuard constructs a guard for the named entity.
func NewGuard[T Versioned, P any](entity string, store Store[T, P]) *Guard[T, P] {
	return &Guard[T, P]{entity: entity, store: store}
}

// Update applies the patch where id and expectedVersion both match and
// returns the fresh row. When the predicate matches nothing, the row is
// re-read to distinguish a version conflict from a vanished row.
func (g *Guard[T, P]) Update(ctx context.Context, id string, expectedVersion int, patch P) (T, error) {
	var zero T

	ok, err := g.store.ConditionalUpdate(ctx, id, expectedVersion, patch)
	if err != nil {
		return zero, err
	}
	if ok {
		return g.store.FindByID(ctx, id)
	}

	current, err := g.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, &NotFoundError{Entity: g.entity, ID: id}
		}
		return zero, err
	}
	return zero, &ConflictError{
		Entity:   g.entity,
		ID:       id,
		Expected: expectedVersion,
		Current:  current.CurrentVersion(),
	}
}

// Retry re-invokes op with fresh reads whenever it fails on a ConflictError,
// backing off exponentially, for at most attempts invocations. The whole
// operation is re-run, not just the write, so each attempt sees current data.
func Retry(ctx context.Context, attempts int, op func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			delay := retryBase << (i - 1)
			if delay > retryCap {
				delay = retryCap
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err = op(ctx)
		if err == nil {
			return nil
		}
		var conflict *ConflictError
		if !errors.As(err, &conflict) {
			return err
		}
	}
	return err
}
