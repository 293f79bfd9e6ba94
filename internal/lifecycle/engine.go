package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"qline/internal/jobs"
	"qline/internal/notifications"
)

// RepairGate answers whether a job may leave the repair stage. Implemented by
// the diagnosis tracker.
type RepairGate interface {
	CanLeaveRepairStage(ctx context.Context, qlid string) (bool, error)
}

// Engine drives jobs through the refurbishment state machine. It is the only
// component that mutates current_state and attempt_count.
type Engine struct {
	store    *jobs.Store
	gate     RepairGate
	notifier notifications.Service
	logger   *slog.Logger
}

// NewEngine builds an Engine. gate and notifier may be nil; a nil gate
// disables the repair-exit precondition (used only in focused tests).
func NewEngine(store *jobs.Store, gate RepairGate, notifier notifications.Service, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    store,
		gate:     gate,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "lifecycle")),
	}
}

// Request describes one attempted transition.
type Request struct {
	QLID   string
	Action Action
	Actor  string

	// ObservedState is the state the caller read before deciding on this
	// action. The store rejects the write with ErrStaleState when the job
	// moved in between. Empty means "whatever the job is now", which keeps
	// the guard but skips the caller-side check.
	ObservedState jobs.State

	// Reason is free-form audit context. Mandatory for override.
	Reason string

	// Technician is required for assign.
	Technician string

	// TargetState is required for resolve and override.
	TargetState jobs.State

	// Disposition is recorded when the job routes to FAILED_DISPOSITION.
	Disposition string
}

// Advance validates the action against the observed state and applies it.
// The state update, transition-log append, and bookkeeping writes happen in
// one transaction; notification hooks fire after commit.
func (e *Engine) Advance(ctx context.Context, req Request) (*jobs.Job, error) {
	if strings.TrimSpace(req.Actor) == "" {
		return nil, errors.New("actor is required")
	}

	job, err := e.store.GetByQLID(ctx, req.QLID)
	if err != nil {
		return nil, err
	}
	observed := req.ObservedState
	if observed == "" {
		observed = job.CurrentState
	}

	target, storeReq, err := e.plan(ctx, job, observed, req)
	if err != nil {
		return nil, err
	}

	updated, err := e.store.ApplyTransition(ctx, storeReq)
	if err != nil {
		return nil, err
	}

	e.logger.Info("transition applied",
		slog.String("qlid", req.QLID),
		slog.String("action", string(req.Action)),
		slog.String("from", string(observed)),
		slog.String("to", string(target)),
		slog.String("actor", req.Actor))
	e.notifyTerminal(ctx, updated, req)
	return updated, nil
}

// plan resolves the target state and guards for one request. It reads but
// never writes.
func (e *Engine) plan(ctx context.Context, job *jobs.Job, observed jobs.State, req Request) (jobs.State, jobs.TransitionRequest, error) {
	var target jobs.State

	switch req.Action {
	case ActionBlock, ActionEscalate:
		if observed.IsTerminal() {
			return "", jobs.TransitionRequest{}, illegal(observed, req.Action, "job is terminal")
		}
		target = jobs.StateBlocked
		if req.Action == ActionEscalate {
			target = jobs.StateEscalated
		}

	case ActionResolve:
		if !observed.IsEscape() {
			return "", jobs.TransitionRequest{}, illegal(observed, req.Action, "job is not in an escape state")
		}
		resolved, err := resolveTarget(req.TargetState)
		if err != nil {
			return "", jobs.TransitionRequest{}, err
		}
		target = resolved

	case ActionOverride:
		if observed.IsTerminal() {
			return "", jobs.TransitionRequest{}, illegal(observed, req.Action, "job is terminal")
		}
		if strings.TrimSpace(req.Reason) == "" {
			return "", jobs.TransitionRequest{}, errors.New("override requires a reason")
		}
		resolved, err := resolveTarget(req.TargetState)
		if err != nil {
			return "", jobs.TransitionRequest{}, err
		}
		target = resolved

	case ActionRetryRepair:
		mapped, ok := tableTarget(observed, req.Action)
		if !ok {
			return "", jobs.TransitionRequest{}, illegal(observed, req.Action, "")
		}
		if job.AttemptCount >= job.MaxAttempts {
			return "", jobs.TransitionRequest{}, fmt.Errorf(
				"job %s used %d of %d final-test attempts: %w",
				job.QLID, job.AttemptCount, job.MaxAttempts, ErrAttemptLimit)
		}
		target = mapped

	case ActionDispose:
		mapped, ok := tableTarget(observed, req.Action)
		if !ok {
			return "", jobs.TransitionRequest{}, illegal(observed, req.Action, "")
		}
		if job.AttemptCount < job.MaxAttempts {
			return "", jobs.TransitionRequest{}, illegal(observed, req.Action,
				fmt.Sprintf("retest attempts remain (%d of %d used)", job.AttemptCount, job.MaxAttempts))
		}
		target = mapped

	default:
		mapped, ok := tableTarget(observed, req.Action)
		if !ok {
			return "", jobs.TransitionRequest{}, illegal(observed, req.Action, "")
		}
		target = mapped

		if req.Action == ActionAssign && strings.TrimSpace(req.Technician) == "" {
			return "", jobs.TransitionRequest{}, errors.New("assign requires a technician")
		}
		if req.Action == ActionCompleteRepair && e.gate != nil {
			clear, err := e.gate.CanLeaveRepairStage(ctx, job.QLID)
			if err != nil {
				return "", jobs.TransitionRequest{}, fmt.Errorf("check repair gate: %w", err)
			}
			if !clear {
				return "", jobs.TransitionRequest{}, fmt.Errorf("job %s: %w", job.QLID, ErrRepairsUnresolved)
			}
		}
	}

	storeReq := jobs.TransitionRequest{
		QLID:             req.QLID,
		FromState:        observed,
		ToState:          target,
		Action:           string(req.Action),
		Actor:            req.Actor,
		Reason:           req.Reason,
		AssignTech:       req.Technician,
		// Only a real test failure consumes an attempt; resolve or override
		// landing on FINAL_TEST_FAILED must not.
		IncrementAttempt: req.Action == ActionFailFinalTest,
		MarkStarted:      req.Action == ActionStart,
		MarkCompleted:    target.IsTerminal(),
	}
	if target == jobs.StateFailedDisposition {
		storeReq.Disposition = req.Disposition
	}
	return target, storeReq, nil
}

// Assign moves a queued job to a technician.
func (e *Engine) Assign(ctx context.Context, qlid, technician, actor string, observed jobs.State) (*jobs.Job, error) {
	return e.Advance(ctx, Request{
		QLID:          qlid,
		Action:        ActionAssign,
		Actor:         actor,
		ObservedState: observed,
		Technician:    technician,
	})
}

// Escalate pulls a job out of the main path for supervisor attention. Legal
// from every non-terminal state and never consumes a final-test attempt.
func (e *Engine) Escalate(ctx context.Context, qlid, reason, actor string, observed jobs.State) (*jobs.Job, error) {
	return e.Advance(ctx, Request{
		QLID:          qlid,
		Action:        ActionEscalate,
		Actor:         actor,
		ObservedState: observed,
		Reason:        reason,
	})
}

// Block marks a job waiting on something external.
func (e *Engine) Block(ctx context.Context, qlid, reason, actor string, observed jobs.State) (*jobs.Job, error) {
	return e.Advance(ctx, Request{
		QLID:          qlid,
		Action:        ActionBlock,
		Actor:         actor,
		ObservedState: observed,
		Reason:        reason,
	})
}

// Resolve returns an escalated or blocked job to a chosen main-path state.
func (e *Engine) Resolve(ctx context.Context, qlid string, target jobs.State, reason, actor string, observed jobs.State) (*jobs.Job, error) {
	return e.Advance(ctx, Request{
		QLID:          qlid,
		Action:        ActionResolve,
		Actor:         actor,
		ObservedState: observed,
		TargetState:   target,
		Reason:        reason,
	})
}

// Override is the privileged variant of Resolve: it forces a job to a chosen
// state from any non-terminal state, outside the transition table, and
// requires a reason so the audit trail explains itself.
func (e *Engine) Override(ctx context.Context, qlid string, target jobs.State, reason, actor string, observed jobs.State) (*jobs.Job, error) {
	return e.Advance(ctx, Request{
		QLID:          qlid,
		Action:        ActionOverride,
		Actor:         actor,
		ObservedState: observed,
		TargetState:   target,
		Reason:        reason,
	})
}

func (e *Engine) notifyTerminal(ctx context.Context, job *jobs.Job, req Request) {
	if e.notifier == nil {
		return
	}
	var err error
	switch job.CurrentState {
	case jobs.StateComplete:
		err = e.notifier.NotifyJobCompleted(ctx, job.QLID, job.FinalGrade)
	case jobs.StateFailedDisposition:
		err = e.notifier.NotifyJobFailedDisposition(ctx, job.QLID, job.Disposition)
	case jobs.StateEscalated:
		err = e.notifier.NotifyJobEscalated(ctx, job.QLID, req.Reason)
	default:
		return
	}
	if err != nil {
		e.logger.Warn("notification failed",
			slog.String("qlid", job.QLID),
			slog.String("state", string(job.CurrentState)),
			slog.Any("error", err))
	}
}

func resolveTarget(target jobs.State) (jobs.State, error) {
	if target == "" {
		return "", errors.New("target state is required")
	}
	parsed, ok := jobs.ParseState(string(target))
	if !ok {
		return "", fmt.Errorf("unknown target state %q", target)
	}
	if parsed.IsEscape() {
		return "", fmt.Errorf("target %s is an escape state: %w", parsed, ErrIllegalTransition)
	}
	if parsed.IsTerminal() {
		return "", fmt.Errorf("target %s is terminal: %w", parsed, ErrIllegalTransition)
	}
	return parsed, nil
}

func illegal(state jobs.State, action Action, detail string) error {
	if detail != "" {
		return fmt.Errorf("action %s from %s (%s): %w", action, state, detail, ErrIllegalTransition)
	}
	return fmt.Errorf("action %s from %s: %w", action, state, ErrIllegalTransition)
}
