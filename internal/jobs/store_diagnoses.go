package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DiagnosisDraft describes a defect being recorded against a job.
type DiagnosisDraft struct {
	QLID              string
	DefectCode        string
	Severity          string
	MeasurementsJSON  string
	PhotoRefsJSON     string
	ProposedAction    string
	RequiredPartsJSON string
	Actor             string
}

// InsertDiagnosis records a new defect in PENDING.
func (s *Store) InsertDiagnosis(ctx context.Context, draft DiagnosisDraft) (*Diagnosis, error) {
	if draft.QLID == "" || draft.DefectCode == "" || draft.Actor == "" {
		return nil, errors.New("diagnosis draft incomplete")
	}
	if _, err := s.GetByQLID(ctx, draft.QLID); err != nil {
		return nil, err
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(ctx,
		`INSERT INTO diagnoses (
            qlid, defect_code, severity, measurements_json, photo_refs_json,
            proposed_action, required_parts_json, repair_status, created_by, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		draft.QLID,
		draft.DefectCode,
		draft.Severity,
		nullableString(draft.MeasurementsJSON),
		nullableString(draft.PhotoRefsJSON),
		nullableString(draft.ProposedAction),
		nullableString(draft.RequiredPartsJSON),
		RepairPending,
		draft.Actor,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert diagnosis: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.DiagnosisByID(ctx, id)
}

// DiagnosisByID fetches one diagnosis.
func (s *Store) DiagnosisByID(ctx context.Context, id int64) (*Diagnosis, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+diagnosisColumns+` FROM diagnoses WHERE id = ?`, id)
	diag, err := scanDiagnosis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("diagnosis %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get diagnosis: %w", err)
	}
	return diag, nil
}

// DiagnosesForJob returns all diagnoses recorded against a job.
func (s *Store) DiagnosesForJob(ctx context.Context, id string) ([]*Diagnosis, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT `+diagnosisColumns+` FROM diagnoses WHERE qlid = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("list diagnoses: %w", err)
	}
	defer rows.Close()

	var result []*Diagnosis
	for rows.Next() {
		diag, err := scanDiagnosis(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, diag)
	}
	return result, rows.Err()
}

// UnresolvedDiagnosisCount counts diagnoses still blocking repair exit.
func (s *Store) UnresolvedDiagnosisCount(ctx context.Context, id string) (int, error) {
	ctx = ensureContext(ctx)
	var count int
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM diagnoses WHERE qlid = ? AND repair_status IN (?, ?)`,
		id, RepairPending, RepairInProgress,
	)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count unresolved diagnoses: %w", err)
	}
	return count, nil
}

// ResolveDiagnosis moves a diagnosis from PENDING/IN_PROGRESS to the given
// resolved status. The update is conditioned on the unresolved statuses, so a
// second resolution attempt surfaces ErrAlreadyResolved instead of silently
// rewriting history.
func (s *Store) ResolveDiagnosis(ctx context.Context, id int64, status RepairStatus, actor, partsUsedJSON string) (*Diagnosis, error) {
	if !status.Resolved() {
		return nil, fmt.Errorf("status %s does not resolve a diagnosis", status)
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(ctx,
		`UPDATE diagnoses
         SET repair_status = ?, repaired_by = ?, repaired_at = ?, parts_used_json = ?
         WHERE id = ? AND repair_status IN (?, ?)`,
		status,
		actor,
		timestamp,
		nullableString(partsUsedJSON),
		id,
		RepairPending,
		RepairInProgress,
	)
	if err != nil {
		return nil, fmt.Errorf("resolve diagnosis: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		existing, getErr := s.DiagnosisByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("diagnosis %d is %s: %w", id, existing.RepairStatus, ErrAlreadyResolved)
	}
	return s.DiagnosisByID(ctx, id)
}

// StartRepair marks a pending diagnosis as actively being repaired.
func (s *Store) StartRepair(ctx context.Context, id int64) (*Diagnosis, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE diagnoses SET repair_status = ? WHERE id = ? AND repair_status = ?`,
		RepairInProgress, id, RepairPending,
	)
	if err != nil {
		return nil, fmt.Errorf("start repair: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		existing, getErr := s.DiagnosisByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if existing.RepairStatus.Resolved() {
			return nil, fmt.Errorf("diagnosis %d is %s: %w", id, existing.RepairStatus, ErrAlreadyResolved)
		}
		return existing, nil
	}
	return s.DiagnosisByID(ctx, id)
}

const diagnosisColumns = "id, qlid, defect_code, severity, measurements_json, photo_refs_json, proposed_action, required_parts_json, repair_status, repaired_by, repaired_at, parts_used_json, created_by, created_at"

func scanDiagnosis(scanner interface{ Scan(dest ...any) error }) (*Diagnosis, error) {
	var (
		diag          Diagnosis
		measurements  sql.NullString
		photoRefs     sql.NullString
		proposed      sql.NullString
		requiredParts sql.NullString
		statusStr     string
		repairedBy    sql.NullString
		repairedRaw   sql.NullString
		partsUsed     sql.NullString
		createdRaw    string
	)
	if err := scanner.Scan(
		&diag.ID,
		&diag.QLID,
		&diag.DefectCode,
		&diag.Severity,
		&measurements,
		&photoRefs,
		&proposed,
		&requiredParts,
		&statusStr,
		&repairedBy,
		&repairedRaw,
		&partsUsed,
		&diag.CreatedBy,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	diag.MeasurementsJSON = measurements.String
	diag.PhotoRefsJSON = photoRefs.String
	diag.ProposedAction = proposed.String
	diag.RequiredPartsJSON = requiredParts.String
	diag.RepairStatus = RepairStatus(statusStr)
	diag.RepairedBy = repairedBy.String
	diag.RepairedAt = timePtr(repairedRaw)
	diag.PartsUsedJSON = partsUsed.String
	if created, err := parseTimeString(createdRaw); err == nil {
		diag.CreatedAt = created
	}
	return &diag, nil
}
