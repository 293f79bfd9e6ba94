package api

import (
	"context"
	"errors"
	"fmt"

	"qline/internal/certify"
	"qline/internal/diagnosis"
	"qline/internal/jobs"
	"qline/internal/lifecycle"
	"qline/internal/qlid"
)

// JobService is the operation surface shared by the HTTP handlers and the
// CLI. It owns DTO conversion and the optimistic-concurrency retry policy so
// transports stay thin.
type JobService struct {
	store   *jobs.Store
	engine  *lifecycle.Engine
	tracker *diagnosis.Tracker
	issuer  *certify.Issuer
}

// NewJobService constructs a JobService around the collaborators.
func NewJobService(store *jobs.Store, engine *lifecycle.Engine, tracker *diagnosis.Tracker, issuer *certify.Issuer) *JobService {
	return &JobService{store: store, engine: engine, tracker: tracker, issuer: issuer}
}

// staleRetryAttempts bounds automatic retries when a caller advances without
// naming the state it observed. A caller that names a state gets exactly one
// attempt; ErrStaleState is its answer.
const staleRetryAttempts = 3

// IntakeRequest describes a new item entering the pipeline.
type IntakeRequest struct {
	PalletRef    string `json:"palletRef,omitempty"`
	Category     string `json:"category,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
	Priority     int    `json:"priority,omitempty"`
	MaxAttempts  int    `json:"maxAttempts,omitempty"`
	Actor        string `json:"-"`
}

// Intake mints a QLID and creates the job in QUEUED.
func (s *JobService) Intake(ctx context.Context, req IntakeRequest) (JobView, error) {
	job, err := s.store.Create(ctx, jobs.CreateParams{
		PalletRef:    req.PalletRef,
		Category:     req.Category,
		Manufacturer: req.Manufacturer,
		Model:        req.Model,
		Priority:     req.Priority,
		MaxAttempts:  req.MaxAttempts,
		Actor:        req.Actor,
	})
	if err != nil {
		return JobView{}, err
	}
	return FromJob(job), nil
}

// Get fetches one job by identifier.
func (s *JobService) Get(ctx context.Context, id string) (JobView, error) {
	job, err := s.store.GetByQLID(ctx, id)
	if err != nil {
		return JobView{}, err
	}
	return FromJob(job), nil
}

// Resolve looks a job up from either a bare QLID or a compound scan payload
// like TOTE-7-QLID0000000123.
func (s *JobService) Resolve(ctx context.Context, scanned string) (JobView, string, error) {
	if qlid.Items.IsValid(scanned) {
		view, err := s.Get(ctx, scanned)
		return view, "", err
	}
	payload, err := qlid.Items.ParseScan(scanned)
	if err != nil {
		return JobView{}, "", err
	}
	view, err := s.Get(ctx, payload.ID)
	return view, payload.ContainerID, err
}

// List returns jobs filtered by state.
func (s *JobService) List(ctx context.Context, states ...jobs.State) ([]JobView, error) {
	items, err := s.store.List(ctx, states...)
	if err != nil {
		return nil, err
	}
	return FromJobs(items), nil
}

// Health aggregates pipeline counts.
func (s *JobService) Health(ctx context.Context) (HealthView, error) {
	health, err := s.store.Health(ctx)
	if err != nil {
		return HealthView{}, err
	}
	return FromHealth(health), nil
}

// AdvanceRequest is the transport form of a lifecycle action.
type AdvanceRequest struct {
	Action        string `json:"action"`
	ExpectedState string `json:"expectedState,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Technician    string `json:"technician,omitempty"`
	TargetState   string `json:"targetState,omitempty"`
	Disposition   string `json:"disposition,omitempty"`
	Actor         string `json:"-"`
}

// Advance applies one lifecycle action. When the caller names an expected
// state, a concurrent move surfaces as ErrStaleState; when it does not, the
// engine re-reads and the call retries a bounded number of times.
func (s *JobService) Advance(ctx context.Context, id string, req AdvanceRequest) (JobView, error) {
	action, ok := lifecycle.ParseAction(req.Action)
	if !ok {
		return JobView{}, fmt.Errorf("unknown action %q", req.Action)
	}

	var observed jobs.State
	if req.ExpectedState != "" {
		parsed, ok := jobs.ParseState(req.ExpectedState)
		if !ok {
			return JobView{}, fmt.Errorf("unknown state %q", req.ExpectedState)
		}
		observed = parsed
	}
	var target jobs.State
	if req.TargetState != "" {
		target = jobs.State(req.TargetState)
	}

	engineReq := lifecycle.Request{
		QLID:          id,
		Action:        action,
		Actor:         req.Actor,
		ObservedState: observed,
		Reason:        req.Reason,
		Technician:    req.Technician,
		TargetState:   target,
		Disposition:   req.Disposition,
	}

	attempts := 1
	if observed == "" {
		attempts = staleRetryAttempts
	}
	var (
		job *jobs.Job
		err error
	)
	for i := 0; i < attempts; i++ {
		job, err = s.engine.Advance(ctx, engineReq)
		if err == nil || !errors.Is(err, jobs.ErrStaleState) {
			break
		}
	}
	if err != nil {
		return JobView{}, err
	}
	return FromJob(job), nil
}

// StepRequest records operator data for one step of the current stage.
type StepRequest struct {
	StateCode       string          `json:"stateCode"`
	StepCode        string          `json:"stepCode"`
	Checklist       map[string]bool `json:"checklist,omitempty"`
	Values          map[string]any  `json:"values,omitempty"`
	Measurements    map[string]any  `json:"measurements,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	PhotoRefs       []string        `json:"photoRefs,omitempty"`
	DurationSeconds int             `json:"durationSeconds,omitempty"`
	Actor           string          `json:"-"`
}

// RecordStep upserts step data. Re-submission replaces the earlier record.
func (s *JobService) RecordStep(ctx context.Context, id string, req StepRequest) (StepView, error) {
	state, ok := jobs.ParseState(req.StateCode)
	if !ok {
		return StepView{}, fmt.Errorf("unknown state %q", req.StateCode)
	}
	if req.StepCode == "" {
		return StepView{}, errors.New("step code is required")
	}

	payload := jobs.StepPayload{
		Notes:           req.Notes,
		DurationSeconds: req.DurationSeconds,
	}
	var err error
	if payload.ChecklistJSON, err = encodeOpt(req.Checklist); err != nil {
		return StepView{}, fmt.Errorf("encode checklist: %w", err)
	}
	if payload.ValuesJSON, err = encodeOpt(req.Values); err != nil {
		return StepView{}, fmt.Errorf("encode values: %w", err)
	}
	if payload.MeasurementsJSON, err = encodeOpt(req.Measurements); err != nil {
		return StepView{}, fmt.Errorf("encode measurements: %w", err)
	}
	if payload.PhotoRefsJSON, err = encodeOpt(req.PhotoRefs); err != nil {
		return StepView{}, fmt.Errorf("encode photo refs: %w", err)
	}

	step, err := s.store.RecordStep(ctx, id, state, req.StepCode, payload, req.Actor)
	if err != nil {
		return StepView{}, err
	}
	return FromStep(step), nil
}

// History returns the full audit trail for a job.
func (s *JobService) History(ctx context.Context, id string) ([]TransitionView, error) {
	transitions, err := s.store.TransitionsForJob(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromTransitions(transitions), nil
}

// Report assembles the complete picture of one job.
func (s *JobService) Report(ctx context.Context, id string) (ReportBundle, error) {
	job, err := s.store.GetByQLID(ctx, id)
	if err != nil {
		return ReportBundle{}, err
	}
	transitions, err := s.store.TransitionsForJob(ctx, id)
	if err != nil {
		return ReportBundle{}, err
	}
	steps, err := s.store.StepCompletionsForJob(ctx, id)
	if err != nil {
		return ReportBundle{}, err
	}
	diagnoses, err := s.store.DiagnosesForJob(ctx, id)
	if err != nil {
		return ReportBundle{}, err
	}
	certs, err := s.store.CertificationsForJob(ctx, id)
	if err != nil {
		return ReportBundle{}, err
	}
	return ReportBundle{
		Job:            FromJob(job),
		Transitions:    FromTransitions(transitions),
		Steps:          FromSteps(steps),
		Diagnoses:      FromDiagnoses(diagnoses),
		Certifications: FromCertifications(certs),
	}, nil
}
