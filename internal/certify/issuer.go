package certify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"qline/internal/jobs"
	"qline/internal/notifications"
)

// Level is the certification tier chosen by the certifying technician.
type Level string

const (
	LevelExcellent  Level = "EXCELLENT"
	LevelGood       Level = "GOOD"
	LevelFair       Level = "FAIR"
	LevelAcceptable Level = "ACCEPTABLE"
	LevelSalvage    Level = "SALVAGE"
	LevelPartsOnly  Level = "PARTS_ONLY"
)

// gradeForLevel maps each level to the letter grade stamped on the job.
// SALVAGE and PARTS_ONLY carry no warranty.
var gradeForLevel = map[Level]string{
	LevelExcellent:  "A",
	LevelGood:       "B",
	LevelFair:       "C",
	LevelAcceptable: "D",
	LevelSalvage:    "E",
	LevelPartsOnly:  "F",
}

// warrantyDaysForLevel is the default warranty term per level, in days.
var warrantyDaysForLevel = map[Level]int{
	LevelExcellent:  365,
	LevelGood:       180,
	LevelFair:       90,
	LevelAcceptable: 30,
}

// ParseLevel converts a string into a known Level.
func ParseLevel(value string) (Level, bool) {
	normalized := Level(strings.ToUpper(strings.TrimSpace(value)))
	_, ok := gradeForLevel[normalized]
	return normalized, ok
}

// Grade returns the letter grade for the level, or "" for unknown levels.
func (l Level) Grade() string {
	return gradeForLevel[l]
}

// WarrantyEligible reports whether the level carries a warranty.
func (l Level) WarrantyEligible() bool {
	_, ok := warrantyDaysForLevel[l]
	return ok
}

// eligibleStates are the job states in which a certification may be issued.
// CERTIFIED is the normal case; COMPLETE covers re-issue after revocation.
var eligibleStates = []jobs.State{jobs.StateCertified, jobs.StateComplete}

// Issuer mints and revokes certifications.
type Issuer struct {
	store    *jobs.Store
	notifier notifications.Service
	logger   *slog.Logger
}

// NewIssuer builds an Issuer. The notifier may be nil.
func NewIssuer(store *jobs.Store, notifier notifications.Service, logger *slog.Logger) *Issuer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Issuer{store: store, notifier: notifier, logger: logger.With(slog.String("component", "certify"))}
}

// IssueRequest asks for a certification at a chosen level.
type IssueRequest struct {
	QLID  string
	Level Level
	Actor string

	// WarrantyDays overrides the level's default term when positive.
	WarrantyDays int
}

// warrantyTerms is the document stored alongside warranty-eligible
// certifications.
type warrantyTerms struct {
	Days      int    `json:"days"`
	ExpiresAt string `json:"expires_at"`
}

// Issue mints a certification for the job. Idempotent: when an active
// certification already exists it is returned unchanged with created=false,
// regardless of the requested level.
func (i *Issuer) Issue(ctx context.Context, req IssueRequest) (*jobs.Certification, bool, error) {
	grade, ok := gradeForLevel[req.Level]
	if !ok {
		return nil, false, fmt.Errorf("unknown certification level %q", req.Level)
	}

	warrantyJSON := ""
	eligible := false
	if days, hasWarranty := warrantyDaysForLevel[req.Level]; hasWarranty {
		if req.WarrantyDays > 0 {
			days = req.WarrantyDays
		}
		terms := warrantyTerms{
			Days:      days,
			ExpiresAt: time.Now().UTC().AddDate(0, 0, days).Format(time.RFC3339),
		}
		data, err := json.Marshal(terms)
		if err != nil {
			return nil, false, fmt.Errorf("encode warranty terms: %w", err)
		}
		warrantyJSON = string(data)
		eligible = true
	}

	cert, created, err := i.store.IssueCertification(ctx, jobs.CertificationDraft{
		QLID:             req.QLID,
		Level:            string(req.Level),
		Grade:            grade,
		WarrantyJSON:     warrantyJSON,
		WarrantyEligible: &eligible,
		Actor:            req.Actor,
		EligibleStates:   eligibleStates,
	})
	if err != nil {
		return nil, false, err
	}
	if !created {
		return cert, false, nil
	}

	i.logger.Info("certification issued",
		slog.String("qlid", req.QLID),
		slog.String("serial", cert.Serial),
		slog.String("level", string(req.Level)),
		slog.String("grade", grade))
	if i.notifier != nil {
		if notifyErr := i.notifier.NotifyJobCertified(ctx, req.QLID, cert.Serial, grade); notifyErr != nil {
			i.logger.Warn("certification notification failed",
				slog.String("serial", cert.Serial),
				slog.Any("error", notifyErr))
		}
	}
	return cert, true, nil
}

// Revoke flags a certification revoked with a mandatory reason. Revoking an
// already-revoked serial fails with jobs.ErrAlreadyRevoked.
func (i *Issuer) Revoke(ctx context.Context, serial, reason, actor string) (*jobs.Certification, error) {
	cert, err := i.store.RevokeCertification(ctx, serial, reason, actor)
	if err != nil {
		return nil, err
	}
	i.logger.Info("certification revoked",
		slog.String("serial", serial),
		slog.String("qlid", cert.QLID),
		slog.String("actor", actor))
	return cert, nil
}

// Lookup fetches a certification by serial.
func (i *Issuer) Lookup(ctx context.Context, serial string) (*jobs.Certification, error) {
	return i.store.CertificationBySerial(ctx, serial)
}

// Active returns the job's current non-revoked certification.
func (i *Issuer) Active(ctx context.Context, qlid string) (*jobs.Certification, error) {
	return i.store.ActiveCertificationForJob(ctx, qlid)
}

// History lists every certification ever minted for a job, revoked included.
func (i *Issuer) History(ctx context.Context, qlid string) ([]*jobs.Certification, error) {
	return i.store.CertificationsForJob(ctx, qlid)
}
