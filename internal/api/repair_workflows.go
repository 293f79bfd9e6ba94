package api

import (
	"context"
	"errors"
	"fmt"

	"qline/internal/diagnosis"
	"qline/internal/jobs"
)

// DiagnosisRequest records a new defect found during diagnosis.
type DiagnosisRequest struct {
	DefectCode     string         `json:"defectCode"`
	Severity       string         `json:"severity"`
	Measurements   map[string]any `json:"measurements,omitempty"`
	PhotoRefs      []string       `json:"photoRefs,omitempty"`
	ProposedAction string         `json:"proposedAction,omitempty"`
	RequiredParts  []string       `json:"requiredParts,omitempty"`
	Actor          string         `json:"-"`
}

// OpenDiagnosis records a defect against a job.
func (s *JobService) OpenDiagnosis(ctx context.Context, id string, req DiagnosisRequest) (DiagnosisView, error) {
	if req.DefectCode == "" {
		return DiagnosisView{}, errors.New("defect code is required")
	}
	if req.Severity == "" {
		return DiagnosisView{}, errors.New("severity is required")
	}
	if _, err := s.store.GetByQLID(ctx, id); err != nil {
		return DiagnosisView{}, err
	}

	diag, err := s.tracker.Open(ctx, diagnosis.OpenRequest{
		QLID:           id,
		DefectCode:     req.DefectCode,
		Severity:       req.Severity,
		Measurements:   req.Measurements,
		PhotoRefs:      req.PhotoRefs,
		ProposedAction: req.ProposedAction,
		RequiredParts:  req.RequiredParts,
		Actor:          req.Actor,
	})
	if err != nil {
		return DiagnosisView{}, err
	}
	return FromDiagnosis(diag), nil
}

// RepairUpdateRequest moves one diagnosis through its repair lifecycle.
type RepairUpdateRequest struct {
	Status    string   `json:"status"`
	PartsUsed []string `json:"partsUsed,omitempty"`
	Actor     string   `json:"-"`
}

// UpdateRepair applies a repair status change to a diagnosis.
func (s *JobService) UpdateRepair(ctx context.Context, diagnosisID int64, req RepairUpdateRequest) (DiagnosisView, error) {
	var (
		diag *jobs.Diagnosis
		err  error
	)
	switch jobs.RepairStatus(req.Status) {
	case jobs.RepairInProgress:
		diag, err = s.tracker.StartRepair(ctx, diagnosisID)
	case jobs.RepairDone:
		diag, err = s.tracker.MarkRepaired(ctx, diagnosisID, req.Actor, req.PartsUsed)
	case jobs.RepairWontFix:
		diag, err = s.tracker.MarkWontFix(ctx, diagnosisID, req.Actor)
	default:
		return DiagnosisView{}, fmt.Errorf("unknown repair status %q", req.Status)
	}
	if err != nil {
		return DiagnosisView{}, err
	}
	return FromDiagnosis(diag), nil
}

// Diagnoses lists every defect recorded on a job.
func (s *JobService) Diagnoses(ctx context.Context, id string) ([]DiagnosisView, error) {
	diagnoses, err := s.tracker.ForJob(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromDiagnoses(diagnoses), nil
}
