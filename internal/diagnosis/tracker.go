package diagnosis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"qline/internal/jobs"
	"qline/internal/notifications"
)

// Tracker manages defect records and their repair lifecycle.
type Tracker struct {
	store    *jobs.Store
	notifier notifications.Service
	logger   *slog.Logger
}

// NewTracker builds a Tracker. The notifier may be nil for callers that do
// not want parts-consumed events.
func NewTracker(store *jobs.Store, notifier notifications.Service, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: store, notifier: notifier, logger: logger.With(slog.String("component", "diagnosis"))}
}

// OpenRequest describes a new defect found during diagnosis.
type OpenRequest struct {
	QLID           string
	DefectCode     string
	Severity       string
	Measurements   map[string]any
	PhotoRefs      []string
	ProposedAction string
	RequiredParts  []string
	Actor          string
}

// Open records a new defect against a job in PENDING.
func (t *Tracker) Open(ctx context.Context, req OpenRequest) (*jobs.Diagnosis, error) {
	measurements, err := marshalOpt(req.Measurements)
	if err != nil {
		return nil, fmt.Errorf("encode measurements: %w", err)
	}
	photos, err := marshalOpt(req.PhotoRefs)
	if err != nil {
		return nil, fmt.Errorf("encode photo refs: %w", err)
	}
	parts, err := marshalOpt(req.RequiredParts)
	if err != nil {
		return nil, fmt.Errorf("encode required parts: %w", err)
	}

	diag, err := t.store.InsertDiagnosis(ctx, jobs.DiagnosisDraft{
		QLID:              req.QLID,
		DefectCode:        req.DefectCode,
		Severity:          req.Severity,
		MeasurementsJSON:  measurements,
		PhotoRefsJSON:     photos,
		ProposedAction:    req.ProposedAction,
		RequiredPartsJSON: parts,
		Actor:             req.Actor,
	})
	if err != nil {
		return nil, err
	}
	t.logger.Info("diagnosis opened",
		slog.String("qlid", req.QLID),
		slog.String("defect", req.DefectCode),
		slog.String("severity", req.Severity))
	return diag, nil
}

// StartRepair marks a pending diagnosis as actively under repair.
func (t *Tracker) StartRepair(ctx context.Context, id int64) (*jobs.Diagnosis, error) {
	return t.store.StartRepair(ctx, id)
}

// MarkRepaired resolves a diagnosis as DONE and hands the consumed parts to
// the inventory collaborator. Fails with ErrAlreadyResolved when the
// diagnosis already left the repairable statuses.
func (t *Tracker) MarkRepaired(ctx context.Context, id int64, actor string, partsUsed []string) (*jobs.Diagnosis, error) {
	parts, err := marshalOpt(partsUsed)
	if err != nil {
		return nil, fmt.Errorf("encode parts used: %w", err)
	}
	diag, err := t.store.ResolveDiagnosis(ctx, id, jobs.RepairDone, actor, parts)
	if err != nil {
		return nil, err
	}
	if t.notifier != nil && len(partsUsed) > 0 {
		if notifyErr := t.notifier.NotifyPartsConsumed(ctx, diag.QLID, partsUsed); notifyErr != nil {
			t.logger.Warn("parts-consumed notification failed",
				slog.String("qlid", diag.QLID),
				slog.Any("error", notifyErr))
		}
	}
	return diag, nil
}

// MarkWontFix resolves a diagnosis as WONT_FIX.
func (t *Tracker) MarkWontFix(ctx context.Context, id int64, actor string) (*jobs.Diagnosis, error) {
	return t.store.ResolveDiagnosis(ctx, id, jobs.RepairWontFix, actor, "")
}

// ForJob lists every diagnosis on a job.
func (t *Tracker) ForJob(ctx context.Context, qlid string) ([]*jobs.Diagnosis, error) {
	return t.store.DiagnosesForJob(ctx, qlid)
}

// CanLeaveRepairStage reports whether every diagnosis on the job is resolved
// (DONE or WONT_FIX). The lifecycle engine calls this before accepting the
// repair-complete transition.
func (t *Tracker) CanLeaveRepairStage(ctx context.Context, qlid string) (bool, error) {
	count, err := t.store.UnresolvedDiagnosisCount(ctx, qlid)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

func marshalOpt(value any) (string, error) {
	switch v := value.(type) {
	case map[string]any:
		if len(v) == 0 {
			return "", nil
		}
	case []string:
		if len(v) == 0 {
			return "", nil
		}
	case nil:
		return "", nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
