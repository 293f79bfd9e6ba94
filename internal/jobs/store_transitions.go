package jobs

import (
	"context"
	"database/sql"
	"fmt"
)

// appendTransitionTx writes one audit-trail row inside the caller's
// transaction. Seq is per job and assigned here, so per-job ordering holds
// even when the global autoincrement interleaves across jobs.
func appendTransitionTx(ctx context.Context, tx *sql.Tx, id string, from, to State, action, actor, reason, timestamp string) error {
	var seq int
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM transitions WHERE qlid = ?`, id)
	if err := row.Scan(&seq); err != nil {
		return fmt.Errorf("next transition seq: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transitions (qlid, seq, from_state, to_state, action, actor, reason, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		seq,
		nullableString(string(from)),
		to,
		action,
		actor,
		nullableString(reason),
		timestamp,
	); err != nil {
		return fmt.Errorf("append transition: %w", err)
	}
	return nil
}

// TransitionsForJob returns the full audit trail for a job in order.
func (s *Store) TransitionsForJob(ctx context.Context, id string) ([]*Transition, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, qlid, seq, from_state, to_state, action, actor, reason, created_at
         FROM transitions WHERE qlid = ? ORDER BY seq`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var result []*Transition
	for rows.Next() {
		var (
			t          Transition
			fromState  sql.NullString
			reason     sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&t.ID, &t.QLID, &t.Seq, &fromState, &t.ToState, &t.Action, &t.Actor, &reason, &createdRaw); err != nil {
			return nil, err
		}
		t.FromState = State(fromState.String)
		t.Reason = reason.String
		if created, err := parseTimeString(createdRaw); err == nil {
			t.CreatedAt = created
		}
		result = append(result, &t)
	}
	return result, rows.Err()
}
