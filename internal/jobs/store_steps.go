package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// StepPayload carries the operator-entered documents for one step. All JSON
// fields are stored opaquely.
type StepPayload struct {
	ChecklistJSON    string
	ValuesJSON       string
	MeasurementsJSON string
	Notes            string
	PhotoRefsJSON    string
	DurationSeconds  int
}

// RecordStep upserts the completion for (job, state, step). A second call
// with the same key replaces the payload, actor, and completion time rather
// than creating a duplicate row.
func (s *Store) RecordStep(ctx context.Context, id string, stateCode State, stepCode string, payload StepPayload, actor string) (*StepCompletion, error) {
	if id == "" || stateCode == "" || stepCode == "" {
		return nil, errors.New("step key incomplete")
	}
	if actor == "" {
		return nil, errors.New("actor is required")
	}
	if _, err := s.GetByQLID(ctx, id); err != nil {
		return nil, err
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(ctx,
		`INSERT INTO step_completions (
            qlid, state_code, step_code, checklist_json, values_json,
            measurements_json, notes, photo_refs_json, actor, duration_seconds, completed_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (qlid, state_code, step_code) DO UPDATE SET
            checklist_json = excluded.checklist_json,
            values_json = excluded.values_json,
            measurements_json = excluded.measurements_json,
            notes = excluded.notes,
            photo_refs_json = excluded.photo_refs_json,
            actor = excluded.actor,
            duration_seconds = excluded.duration_seconds,
            completed_at = excluded.completed_at`,
		id,
		stateCode,
		stepCode,
		nullableString(payload.ChecklistJSON),
		nullableString(payload.ValuesJSON),
		nullableString(payload.MeasurementsJSON),
		nullableString(payload.Notes),
		nullableString(payload.PhotoRefsJSON),
		actor,
		payload.DurationSeconds,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("record step: %w", err)
	}
	return s.StepCompletion(ctx, id, stateCode, stepCode)
}

// StepCompletion fetches one completion by its key.
func (s *Store) StepCompletion(ctx context.Context, id string, stateCode State, stepCode string) (*StepCompletion, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		`SELECT `+stepColumns+` FROM step_completions WHERE qlid = ? AND state_code = ? AND step_code = ?`,
		id, stateCode, stepCode,
	)
	completion, err := scanStep(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("step %s/%s/%s: %w", id, stateCode, stepCode, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get step completion: %w", err)
	}
	return completion, nil
}

// StepCompletionsForJob returns all completions for a job grouped by stage
// then step.
func (s *Store) StepCompletionsForJob(ctx context.Context, id string) ([]*StepCompletion, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+stepColumns+` FROM step_completions WHERE qlid = ? ORDER BY state_code, step_code`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("list step completions: %w", err)
	}
	defer rows.Close()

	var result []*StepCompletion
	for rows.Next() {
		completion, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, completion)
	}
	return result, rows.Err()
}

const stepColumns = "qlid, state_code, step_code, checklist_json, values_json, measurements_json, notes, photo_refs_json, actor, duration_seconds, completed_at"

func scanStep(scanner interface{ Scan(dest ...any) error }) (*StepCompletion, error) {
	var (
		completion   StepCompletion
		stateStr     string
		checklist    sql.NullString
		values       sql.NullString
		measurements sql.NullString
		notes        sql.NullString
		photoRefs    sql.NullString
		completedRaw string
	)
	if err := scanner.Scan(
		&completion.QLID,
		&stateStr,
		&completion.StepCode,
		&checklist,
		&values,
		&measurements,
		&notes,
		&photoRefs,
		&completion.Actor,
		&completion.DurationSeconds,
		&completedRaw,
	); err != nil {
		return nil, err
	}
	completion.StateCode = State(stateStr)
	completion.ChecklistJSON = checklist.String
	completion.ValuesJSON = values.String
	completion.MeasurementsJSON = measurements.String
	completion.Notes = notes.String
	completion.PhotoRefsJSON = photoRefs.String
	if completed, err := parseTimeString(completedRaw); err == nil {
		completion.CompletedAt = completed
	}
	return &completion, nil
}
