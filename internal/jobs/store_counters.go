package jobs

import (
	"context"
	"database/sql"
	"fmt"
)

// Counter namespace names. Each scheme draws from its own row so item
// identifiers and certification serials never interleave.
const (
	CounterQLID          = "qlid"
	CounterCertification = "certification"
)

// nextTick atomically advances a named counter and returns its new value.
// The increment and read happen in one statement, so concurrent callers can
// never observe or issue the same tick twice.
func nextTick(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, name string) (uint64, error) {
	var value uint64
	row := q.QueryRowContext(ctx,
		`UPDATE counters SET value = value + 1 WHERE name = ? RETURNING value`, name)
	if err := row.Scan(&value); err != nil {
		return 0, fmt.Errorf("advance counter %s: %w", name, err)
	}
	return value, nil
}

// NextTick advances a named counter outside any caller-held transaction.
func (s *Store) NextTick(ctx context.Context, name string) (uint64, error) {
	ctx = ensureContext(ctx)
	var value uint64
	err := retryOnBusy(ctx, func() error {
		v, err := nextTick(ctx, s.db, name)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	return value, err
}
