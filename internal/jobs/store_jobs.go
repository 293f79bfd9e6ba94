package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"qline/internal/qlid"
)

// CreateParams describes a new intake job.
type CreateParams struct {
	PalletRef    string
	Category     string
	Manufacturer string
	Model        string
	Priority     int
	MaxAttempts  int
	Actor        string
}

const defaultMaxAttempts = 2

// Create mints a fresh QLID and inserts the job in QUEUED, recording the
// creation transition. Identifier allocation and the insert share one
// transaction so a failed insert never burns a visible identifier gap into
// the jobs table.
func (s *Store) Create(ctx context.Context, params CreateParams) (*Job, error) {
	if params.Actor == "" {
		return nil, errors.New("actor is required")
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	var id string

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		tick, err := nextTick(ctx, tx, CounterQLID)
		if err != nil {
			return err
		}
		id = qlid.Items.FormatTick(tick)

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO jobs (
                qlid, pallet_ref, category, manufacturer, model,
                current_state, current_step_index, attempt_count, max_attempts,
                priority, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id,
			nullableString(params.PalletRef),
			nullableString(params.Category),
			nullableString(params.Manufacturer),
			nullableString(params.Model),
			StateQueued,
			0,
			0,
			maxAttempts,
			params.Priority,
			timestamp,
			timestamp,
		); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}

		return appendTransitionTx(ctx, tx, id, "", StateQueued, "create", params.Actor, "", timestamp)
	})
	if err != nil {
		return nil, err
	}
	return s.GetByQLID(ctx, id)
}

// GetByQLID fetches a job by identifier. Returns ErrNotFound when absent.
func (s *Store) GetByQLID(ctx context.Context, id string) (*Job, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE qlid = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs filtered by state set (or all jobs when no state is
// provided), ordered by identifier.
func (s *Store) List(ctx context.Context, states ...State) ([]*Job, error) {
	ctx = ensureContext(ctx)
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY qlid`

	if len(states) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(states))
		args := make([]any, len(states))
		for i, state := range states {
			args[i] = state
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE current_state IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var result []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	return result, rows.Err()
}

// StaleInStates returns jobs sitting in any of the given states whose last
// update is older than cutoff. Used by the escalation sweep.
func (s *Store) StaleInStates(ctx context.Context, cutoff time.Time, states ...State) ([]*Job, error) {
	if len(states) == 0 {
		return nil, nil
	}
	ctx = ensureContext(ctx)
	placeholders := makePlaceholders(len(states))
	args := make([]any, 0, len(states)+1)
	for _, state := range states {
		args = append(args, state)
	}
	args = append(args, cutoff.UTC().Format(time.RFC3339Nano))

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE current_state IN (`+placeholders+`) AND updated_at < ? ORDER BY qlid`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	defer rows.Close()

	var result []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	return result, rows.Err()
}

// CountsByState returns a count of jobs grouped by state.
func (s *Store) CountsByState(ctx context.Context) (map[State]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT current_state, COUNT(1) FROM jobs GROUP BY current_state`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[State]int)
	for rows.Next() {
		var state State
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[state] = count
	}
	return stats, rows.Err()
}

// Health aggregates job state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.CountsByState(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{ByState: stats}
	for state, count := range stats {
		health.Total += count
		switch {
		case state.IsTerminal():
			health.Terminal += count
		case state.IsEscape():
			health.Escaped += count
		default:
			health.Active += count
		}
	}
	return health, nil
}

// TransitionRequest is the single atomic mutation unit: conditional state
// update plus transition-log append, with optional bookkeeping side writes.
type TransitionRequest struct {
	QLID      string
	FromState State // state the caller observed; the write is conditioned on it
	ToState   State
	Action    string
	Actor     string
	Reason    string

	// AssignTech, when non-empty, updates the assigned technician.
	AssignTech string
	// IncrementAttempt bumps attempt_count (entering FINAL_TEST_FAILED).
	IncrementAttempt bool
	// MarkStarted stamps started_at if unset.
	MarkStarted bool
	// MarkCompleted stamps completed_at.
	MarkCompleted bool
	// Disposition, when non-empty, records the failure disposition.
	Disposition string
}

// ApplyTransition performs the guarded state change. The job row update is
// conditioned on FromState; when the stored state differs the transaction is
// abandoned and ErrStaleState returned, so two racing writers can never both
// win. The transition append shares the transaction, which keeps the audit
// log and the job row mutually consistent for readers.
func (s *Store) ApplyTransition(ctx context.Context, req TransitionRequest) (*Job, error) {
	if req.QLID == "" || req.ToState == "" || req.Action == "" || req.Actor == "" {
		return nil, errors.New("transition request incomplete")
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	stepIndex := req.ToState.StepIndex()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		query := `UPDATE jobs SET current_state = ?, updated_at = ?`
		args := []any{req.ToState, timestamp}

		if stepIndex >= 0 {
			query += `, current_step_index = ?`
			args = append(args, stepIndex)
		}
		if req.AssignTech != "" {
			query += `, assigned_tech = ?`
			args = append(args, req.AssignTech)
		}
		if req.IncrementAttempt {
			query += `, attempt_count = attempt_count + 1`
		}
		if req.MarkStarted {
			query += `, started_at = COALESCE(started_at, ?)`
			args = append(args, timestamp)
		}
		if req.MarkCompleted {
			query += `, completed_at = ?`
			args = append(args, timestamp)
		}
		if req.Disposition != "" {
			query += `, disposition = ?`
			args = append(args, req.Disposition)
		}

		query += ` WHERE qlid = ? AND current_state = ?`
		args = append(args, req.QLID, req.FromState)

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("update job state: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			var current string
			row := tx.QueryRowContext(ctx, `SELECT current_state FROM jobs WHERE qlid = ?`, req.QLID)
			if scanErr := row.Scan(&current); scanErr != nil {
				if errors.Is(scanErr, sql.ErrNoRows) {
					return fmt.Errorf("job %s: %w", req.QLID, ErrNotFound)
				}
				return fmt.Errorf("read current state: %w", scanErr)
			}
			return fmt.Errorf("job %s is %s, caller observed %s: %w", req.QLID, current, req.FromState, ErrStaleState)
		}

		return appendTransitionTx(ctx, tx, req.QLID, req.FromState, req.ToState, req.Action, req.Actor, req.Reason, timestamp)
	})
	if err != nil {
		return nil, err
	}
	return s.GetByQLID(ctx, req.QLID)
}

const jobColumns = "qlid, pallet_ref, category, manufacturer, model, current_state, current_step_index, assigned_tech, attempt_count, max_attempts, final_grade, warranty_eligible, disposition, priority, started_at, completed_at, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id           string
		palletRef    sql.NullString
		category     sql.NullString
		manufacturer sql.NullString
		model        sql.NullString
		stateStr     string
		stepIndex    int
		assignedTech sql.NullString
		attemptCount int
		maxAttempts  int
		finalGrade   sql.NullString
		warranty     sql.NullInt64
		disposition  sql.NullString
		priority     int
		startedRaw   sql.NullString
		completedRaw sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&palletRef,
		&category,
		&manufacturer,
		&model,
		&stateStr,
		&stepIndex,
		&assignedTech,
		&attemptCount,
		&maxAttempts,
		&finalGrade,
		&warranty,
		&disposition,
		&priority,
		&startedRaw,
		&completedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		QLID:             id,
		PalletRef:        palletRef.String,
		Category:         category.String,
		Manufacturer:     manufacturer.String,
		Model:            model.String,
		CurrentState:     State(stateStr),
		CurrentStepIndex: stepIndex,
		AssignedTech:     assignedTech.String,
		AttemptCount:     attemptCount,
		MaxAttempts:      maxAttempts,
		FinalGrade:       finalGrade.String,
		Disposition:      disposition.String,
		Priority:         priority,
		StartedAt:        timePtr(startedRaw),
		CompletedAt:      timePtr(completedRaw),
	}
	if warranty.Valid {
		eligible := warranty.Int64 != 0
		job.WarrantyEligible = &eligible
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}
