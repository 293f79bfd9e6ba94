package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"qline/internal/qlid"
)

// CertificationDraft is the input to IssueCertification. The grade is derived
// from the level by the issuer before it reaches the store.
type CertificationDraft struct {
	QLID             string
	Level            string
	Grade            string
	WarrantyJSON     string
	WarrantyEligible *bool
	Actor            string
	// EligibleStates lists the job states in which issuance is legal.
	EligibleStates []State
}

// IssueCertification mints a certification in one transaction: eligibility
// check, idempotency check, serial allocation, insert, and the job's grade
// update. When an active certification already exists it is returned with
// created=false and nothing is written.
func (s *Store) IssueCertification(ctx context.Context, draft CertificationDraft) (cert *Certification, created bool, err error) {
	if draft.QLID == "" || draft.Level == "" || draft.Grade == "" || draft.Actor == "" {
		return nil, false, errors.New("certification draft incomplete")
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	var serial string

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var state string
		row := tx.QueryRowContext(ctx, `SELECT current_state FROM jobs WHERE qlid = ?`, draft.QLID)
		if scanErr := row.Scan(&state); scanErr != nil {
			if errors.Is(scanErr, sql.ErrNoRows) {
				return fmt.Errorf("job %s: %w", draft.QLID, ErrNotFound)
			}
			return fmt.Errorf("read job state: %w", scanErr)
		}
		eligible := false
		for _, candidate := range draft.EligibleStates {
			if State(state) == candidate {
				eligible = true
				break
			}
		}
		if !eligible {
			return fmt.Errorf("job %s is %s: %w", draft.QLID, state, ErrNotEligible)
		}

		row = tx.QueryRowContext(ctx,
			`SELECT serial FROM certifications WHERE qlid = ? AND is_revoked = 0 LIMIT 1`, draft.QLID)
		switch scanErr := row.Scan(&serial); {
		case scanErr == nil:
			return nil // active certification exists; return it unchanged
		case errors.Is(scanErr, sql.ErrNoRows):
		default:
			return fmt.Errorf("check active certification: %w", scanErr)
		}

		tick, tickErr := nextTick(ctx, tx, CounterCertification)
		if tickErr != nil {
			return tickErr
		}
		serial = qlid.Certifications.FormatTick(tick)
		created = true

		if _, execErr := tx.ExecContext(ctx,
			`INSERT INTO certifications (serial, qlid, level, final_grade, warranty_json, issued_by, issued_at)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			serial,
			draft.QLID,
			draft.Level,
			draft.Grade,
			nullableString(draft.WarrantyJSON),
			draft.Actor,
			timestamp,
		); execErr != nil {
			return fmt.Errorf("insert certification: %w", execErr)
		}

		if _, execErr := tx.ExecContext(ctx,
			`UPDATE jobs SET final_grade = ?, warranty_eligible = ?, updated_at = ? WHERE qlid = ?`,
			draft.Grade,
			nullableBool(draft.WarrantyEligible),
			timestamp,
			draft.QLID,
		); execErr != nil {
			return fmt.Errorf("record final grade: %w", execErr)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	cert, err = s.CertificationBySerial(ctx, serial)
	return cert, created, err
}

// CertificationBySerial fetches one certification.
func (s *Store) CertificationBySerial(ctx context.Context, serial string) (*Certification, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+certColumns+` FROM certifications WHERE serial = ?`, serial)
	cert, err := scanCertification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("certification %s: %w", serial, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get certification: %w", err)
	}
	return cert, nil
}

// ActiveCertificationForJob returns the single non-revoked certification for
// a job, or ErrNotFound when none exists.
func (s *Store) ActiveCertificationForJob(ctx context.Context, id string) (*Certification, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		`SELECT `+certColumns+` FROM certifications WHERE qlid = ? AND is_revoked = 0 LIMIT 1`, id)
	cert, err := scanCertification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active certification for %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get active certification: %w", err)
	}
	return cert, nil
}

// CertificationsForJob returns every certification ever minted for a job,
// revoked ones included.
func (s *Store) CertificationsForJob(ctx context.Context, id string) ([]*Certification, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT `+certColumns+` FROM certifications WHERE qlid = ? ORDER BY serial`, id)
	if err != nil {
		return nil, fmt.Errorf("list certifications: %w", err)
	}
	defer rows.Close()

	var result []*Certification
	for rows.Next() {
		cert, err := scanCertification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, cert)
	}
	return result, rows.Err()
}

// RevokeCertification flags a certification revoked. One way: the conditional
// update keeps a second revocation from rewriting the original reason.
func (s *Store) RevokeCertification(ctx context.Context, serial, reason, actor string) (*Certification, error) {
	if reason == "" {
		return nil, errors.New("revocation reason is required")
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(ctx,
		`UPDATE certifications
         SET is_revoked = 1, revoke_reason = ?, revoked_by = ?, revoked_at = ?
         WHERE serial = ? AND is_revoked = 0`,
		reason,
		actor,
		timestamp,
		serial,
	)
	if err != nil {
		return nil, fmt.Errorf("revoke certification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		existing, getErr := s.CertificationBySerial(ctx, serial)
		if getErr != nil {
			return nil, getErr
		}
		if existing.IsRevoked {
			return nil, fmt.Errorf("certification %s: %w", serial, ErrAlreadyRevoked)
		}
		return nil, fmt.Errorf("certification %s: revoke had no effect", serial)
	}
	return s.CertificationBySerial(ctx, serial)
}

const certColumns = "serial, qlid, level, final_grade, warranty_json, issued_by, issued_at, is_revoked, revoke_reason, revoked_by, revoked_at"

func scanCertification(scanner interface{ Scan(dest ...any) error }) (*Certification, error) {
	var (
		cert         Certification
		warranty     sql.NullString
		issuedRaw    string
		revoked      int
		revokeReason sql.NullString
		revokedBy    sql.NullString
		revokedRaw   sql.NullString
	)
	if err := scanner.Scan(
		&cert.Serial,
		&cert.QLID,
		&cert.Level,
		&cert.FinalGrade,
		&warranty,
		&cert.IssuedBy,
		&issuedRaw,
		&revoked,
		&revokeReason,
		&revokedBy,
		&revokedRaw,
	); err != nil {
		return nil, err
	}
	cert.WarrantyJSON = warranty.String
	cert.IsRevoked = revoked != 0
	cert.RevokeReason = revokeReason.String
	cert.RevokedBy = revokedBy.String
	cert.RevokedAt = timePtr(revokedRaw)
	if issued, err := parseTimeString(issuedRaw); err == nil {
		cert.IssuedAt = issued
	}
	return &cert, nil
}
