package lifecycle

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"qline/internal/jobs"
)

type stubGate struct {
	clear bool
}

func (g *stubGate) CanLeaveRepairStage(context.Context, string) (bool, error) {
	return g.clear, nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	completed []string
	failed    []string
	escalated []string
}

func (n *recordingNotifier) NotifyJobEscalated(_ context.Context, qlid, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.escalated = append(n.escalated, qlid)
	return nil
}

func (n *recordingNotifier) NotifyJobCertified(context.Context, string, string, string) error {
	return nil
}

func (n *recordingNotifier) NotifyJobCompleted(_ context.Context, qlid, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, qlid)
	return nil
}

func (n *recordingNotifier) NotifyJobFailedDisposition(_ context.Context, qlid, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, qlid)
	return nil
}

func (n *recordingNotifier) NotifyPartsConsumed(context.Context, string, []string) error { return nil }
func (n *recordingNotifier) TestNotification(context.Context) error                      { return nil }

type testRig struct {
	store    *jobs.Store
	engine   *Engine
	gate     *stubGate
	notifier *recordingNotifier
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	store, err := jobs.OpenPath(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	gate := &stubGate{clear: true}
	notifier := &recordingNotifier{}
	return &testRig{
		store:    store,
		engine:   NewEngine(store, gate, notifier, nil),
		gate:     gate,
		notifier: notifier,
	}
}

func (r *testRig) newJob(t *testing.T, maxAttempts int) *jobs.Job {
	t.Helper()
	job, err := r.store.Create(context.Background(), jobs.CreateParams{
		Category:    "laptop",
		MaxAttempts: maxAttempts,
		Actor:       "intake",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return job
}

func (r *testRig) mustAdvance(t *testing.T, req Request) *jobs.Job {
	t.Helper()
	job, err := r.engine.Advance(context.Background(), req)
	if err != nil {
		t.Fatalf("advance %s: %v", req.Action, err)
	}
	return job
}

// driveTo walks the happy path up to (but not past) the wanted state.
func (r *testRig) driveTo(t *testing.T, qlid string, want jobs.State) *jobs.Job {
	t.Helper()
	steps := []struct {
		action Action
		state  jobs.State
	}{
		{ActionAssign, jobs.StateAssigned},
		{ActionStart, jobs.StateInProgress},
		{ActionCompleteSecurityPrep, jobs.StateSecurityPrepDone},
		{ActionRecordDiagnosis, jobs.StateDiagnosed},
		{ActionStartRepair, jobs.StateRepairInProgress},
		{ActionCompleteRepair, jobs.StateRepairComplete},
		{ActionStartFinalTest, jobs.StateFinalTestInProgress},
		{ActionPassFinalTest, jobs.StateFinalTestPassed},
		{ActionCertify, jobs.StateCertified},
		{ActionComplete, jobs.StateComplete},
	}
	var job *jobs.Job
	for _, step := range steps {
		job = r.mustAdvance(t, Request{
			QLID:       qlid,
			Action:     step.action,
			Actor:      "tech",
			Technician: "alice",
		})
		if job.CurrentState != step.state {
			t.Fatalf("expected %s after %s, got %s", step.state, step.action, job.CurrentState)
		}
		if step.state == want {
			return job
		}
	}
	return job
}

func TestAdvanceFullHappyPath(t *testing.T) {
	rig := newTestRig(t)
	job := rig.newJob(t, 0)

	final := rig.driveTo(t, job.QLID, jobs.StateComplete)
	if final.CurrentState != jobs.StateComplete {
		t.Fatalf("expected COMPLETE, got %s", final.CurrentState)
	}
	if final.CompletedAt == nil || final.StartedAt == nil {
		t.Fatal("expected started_at and completed_at stamped")
	}
	if final.AttemptCount != 0 {
		t.Fatalf("clean run must not consume attempts, got %d", final.AttemptCount)
	}
	if len(rig.notifier.completed) != 1 || rig.notifier.completed[0] != job.QLID {
		t.Fatalf("expected completion notification for %s, got %v", job.QLID, rig.notifier.completed)
	}

	transitions, err := rig.store.TransitionsForJob(context.Background(), job.QLID)
	if err != nil {
		t.Fatalf("TransitionsForJob: %v", err)
	}
	if len(transitions) != 11 {
		t.Fatalf("expected 11 transitions (create + 10 actions), got %d", len(transitions))
	}
}

func TestAdvanceRejectsIllegalAction(t *testing.T) {
	rig := newTestRig(t)
	job := rig.newJob(t, 0)

	_, err := rig.engine.Advance(context.Background(), Request{
		QLID:   job.QLID,
		Action: ActionCertify,
		Actor:  "tech",
	})
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
}

func TestAdvanceRejectsStaleObserver(t *testing.T) {
	rig := newTestRig(t)
	job := rig.newJob(t, 0)
	rig.driveTo(t, job.QLID, jobs.StateAssigned)

	_, err := rig.engine.Advance(context.Background(), Request{
		QLID:          job.QLID,
		Action:        ActionAssign,
		Actor:         "super",
		Technician:    "bob",
		ObservedState: jobs.StateQueued,
	})
	if !errors.Is(err, jobs.ErrStaleState) {
		t.Fatalf("expected ErrStaleState, got %v", err)
	}
}

func TestAssignRequiresTechnician(t *testing.T) {
	rig := newTestRig(t)
	job := rig.newJob(t, 0)

	if _, err := rig.engine.Advance(context.Background(), Request{
		QLID:   job.QLID,
		Action: ActionAssign,
		Actor:  "super",
	}); err == nil {
		t.Fatal("expected error for assign without technician")
	}
}

func TestReassignBeforeStart(t *testing.T) {
	rig := newTestRig(t)
	job := rig.newJob(t, 0)
	rig.driveTo(t, job.QLID, jobs.StateAssigned)

	updated := rig.mustAdvance(t, Request{
		QLID:       job.QLID,
		Action:     ActionAssign,
		Actor:      "super",
		Technician: "bob",
	})
	if updated.CurrentState != jobs.StateAssigned || updated.AssignedTech != "bob" {
		t.Fatalf("expected reassignment to bob, got %s/%s", updated.CurrentState, updated.AssignedTech)
	}
}

func TestFailFinalTestIncrementsAttempt(t *testing.T) {
	rig := newTestRig(t)
	job := rig.newJob(t, 2)
	rig.driveTo(t, job.QLID, jobs.StateFinalTestInProgress)

	failed := rig.mustAdvance(t, Request{QLID: job.QLID, Action: ActionFailFinalTest, Actor: "tech"})
	if failed.CurrentState != jobs.StateFinalTestFailed {
		t.Fatalf("expected FINAL_TEST_FAILED, got %s", failed.CurrentState)
	}
	if failed.AttemptCount != 1 {
		t.Fatalf("expected attempt count 1, got %d", failed.AttemptCount)
	}

	// Attempts remain, so disposal is premature.
	_, err := rig.engine.Advance(context.Background(), Request{
		QLID: job.QLID, Action: ActionDispose, Actor: "tech", Disposition: "SCRAP",
	})
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition for early dispose, got %v", err)
	}

	retried := rig.mustAdvance(t, Request{QLID: job.QLID, Action: ActionRetryRepair, Actor: "tech"})
	if retried.CurrentState != jobs.StateRepairInProgress {
		t.Fatalf("expected return to REPAIR_IN_PROGRESS, got %s", retried.CurrentState)
	}
}

func TestEscalateResolveRoundTripKeepsAttemptCount(t *testing.T) {
	rig := newTestRig(t)
	job := rig.newJob(t, 2)
	rig.driveTo(t, job.QLID, jobs.StateFinalTestInProgress)

	failed := rig.mustAdvance(t, Request{QLID: job.QLID, Action: ActionFailFinalTest, Actor: "tech"})
	if failed.AttemptCount != 1 {
		t.Fatalf("expected attempt count 1 after real failure, got %d", failed.AttemptCount)
	}

	if _, err := rig.engine.Escalate(context.Background(),
		job.QLID, "needs supervisor sign-off", "tech", ""); err != nil {
		t.Fatalf("Escalate: %v", err)
	}
	resolved, err := rig.engine.Resolve(context.Background(),
		job.QLID, jobs.StateFinalTestFailed, "sign-off granted", "super", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.AttemptCount != 1 {
		t.Fatalf("resolve back into FINAL_TEST_FAILED must not consume an attempt, got %d", resolved.AttemptCount)
	}

	// The single real failure leaves one retest, so retry stays legal.
	retried := rig.mustAdvance(t, Request{QLID: job.QLID, Action: ActionRetryRepair, Actor: "tech"})
	if retried.CurrentState != jobs.StateRepairInProgress {
		t.Fatalf("expected REPAIR_IN_PROGRESS, got %s", retried.CurrentState)
	}
	if retried.AttemptCount != 1 {
		t.Fatalf("retry must not change the attempt count, got %d", retried.AttemptCount)
	}

	// Forcing the state by override is an audit action, not a test outcome.
	forced, err := rig.engine.Override(context.Background(),
		job.QLID, jobs.StateFinalTestFailed, "retest voided by QA", "super", "")
	if err != nil {
		t.Fatalf("Override: %v", err)
	}
	if forced.AttemptCount != 1 {
		t.Fatalf("override into FINAL_TEST_FAILED must not consume an attempt, got %d", forced.AttemptCount)
	}
}

func TestAttemptLimitForcesDisposition(t *testing.T) {
	rig := newTestRig(t)
	job := rig.newJob(t, 1)
	rig.driveTo(t, job.QLID, jobs.StateFinalTestInProgress)
	rig.mustAdvance(t, Request{QLID: job.QLID, Action: ActionFailFinalTest, Actor: "tech"})

	_, err := rig.engine.Advance(context.Background(), Request{
		QLID: job.QLID, Action: ActionRetryRepair, Actor: "tech",
	})
	if !errors.Is(err, ErrAttemptLimit) {
		t.Fatalf("expected ErrAttemptLimit, got %v", err)
	}

	disposed := rig.mustAdvance(t, Request{
		QLID: job.QLID, Action: ActionDispose, Actor: "tech", Disposition: "PARTS_HARVEST",
	})
	if disposed.CurrentState != jobs.StateFailedDisposition {
		t.Fatalf("expected FAILED_DISPOSITION, got %s", disposed.CurrentState)
	}
	if disposed.Disposition != "PARTS_HARVEST" {
		t.Fatalf("expected disposition recorded, got %q", disposed.Disposition)
	}
	if disposed.CompletedAt == nil {
		t.Fatal("terminal failure must stamp completed_at")
	}
	if len(rig.notifier.failed) != 1 {
		t.Fatalf("expected failure notification, got %v", rig.notifier.failed)
	}
}

func TestCompleteRepairBlockedByUnresolvedDiagnoses(t *testing.T) {
	rig := newTestRig(t)
	job := rig.newJob(t, 0)
	rig.driveTo(t, job.QLID, jobs.StateRepairInProgress)

	rig.gate.clear = false
	_, err := rig.engine.Advance(context.Background(), Request{
		QLID: job.QLID, Action: ActionCompleteRepair, Actor: "tech",
	})
	if !errors.Is(err, ErrRepairsUnresolved) {
		t.Fatalf("expected ErrRepairsUnresolved, got %v", err)
	}

	// Override skips the gate; it exists exactly for supervisor forcing.
	forced, err := rig.engine.Override(context.Background(),
		job.QLID, jobs.StateRepairComplete, "customer pickup deadline", "super", "")
	if err != nil {
		t.Fatalf("Override: %v", err)
	}
	if forced.CurrentState != jobs.StateRepairComplete {
		t.Fatalf("expected REPAIR_COMPLETE, got %s", forced.CurrentState)
	}
}

func TestEscalateAndResolve(t *testing.T) {
	rig := newTestRig(t)
	job := rig.newJob(t, 0)
	rig.driveTo(t, job.QLID, jobs.StateDiagnosed)

	escalated, err := rig.engine.Escalate(context.Background(), job.QLID, "missing parts quote", "tech", "")
	if err != nil {
		t.Fatalf("Escalate: %v", err)
	}
	if escalated.CurrentState != jobs.StateEscalated {
		t.Fatalf("expected ESCALATED, got %s", escalated.CurrentState)
	}
	if escalated.AttemptCount != 0 {
		t.Fatal("escalation must not consume attempts")
	}
	if len(rig.notifier.escalated) != 1 {
		t.Fatalf("expected escalation notification, got %v", rig.notifier.escalated)
	}

	resolved, err := rig.engine.Resolve(context.Background(),
		job.QLID, jobs.StateDiagnosed, "quote received", "super", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.CurrentState != jobs.StateDiagnosed {
		t.Fatalf("expected return to DIAGNOSED, got %s", resolved.CurrentState)
	}
}

func TestResolveGuards(t *testing.T) {
	rig := newTestRig(t)
	job := rig.newJob(t, 0)

	// Not in an escape state.
	if _, err := rig.engine.Resolve(context.Background(),
		job.QLID, jobs.StateAssigned, "", "super", ""); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition resolving a queued job, got %v", err)
	}

	if _, err := rig.engine.Block(context.Background(), job.QLID, "awaiting charger", "tech", ""); err != nil {
		t.Fatalf("Block: %v", err)
	}

	// Escape and terminal targets are not resolvable destinations.
	if _, err := rig.engine.Resolve(context.Background(),
		job.QLID, jobs.StateEscalated, "", "super", ""); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition for escape target, got %v", err)
	}
	if _, err := rig.engine.Resolve(context.Background(),
		job.QLID, jobs.StateComplete, "", "super", ""); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition for terminal target, got %v", err)
	}
}

func TestOverrideRequiresReason(t *testing.T) {
	rig := newTestRig(t)
	job := rig.newJob(t, 0)

	if _, err := rig.engine.Override(context.Background(),
		job.QLID, jobs.StateDiagnosed, "", "super", ""); err == nil {
		t.Fatal("expected error for override without reason")
	}
}

func TestTerminalStatesAreFinal(t *testing.T) {
	rig := newTestRig(t)
	job := rig.newJob(t, 0)
	rig.driveTo(t, job.QLID, jobs.StateComplete)

	for _, action := range []Action{ActionEscalate, ActionBlock, ActionAssign} {
		if _, err := rig.engine.Advance(context.Background(), Request{
			QLID: job.QLID, Action: action, Actor: "super", Technician: "bob",
		}); !errors.Is(err, ErrIllegalTransition) {
			t.Fatalf("expected ErrIllegalTransition for %s on COMPLETE, got %v", action, err)
		}
	}
	if _, err := rig.engine.Override(context.Background(),
		job.QLID, jobs.StateQueued, "bring it back", "super", ""); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition overriding a terminal job, got %v", err)
	}
}

func TestActionsFrom(t *testing.T) {
	got := ActionsFrom(jobs.StateFinalTestFailed)
	want := map[Action]bool{
		ActionRetryRepair: true,
		ActionDispose:     true,
		ActionBlock:       true,
		ActionEscalate:    true,
		ActionOverride:    true,
	}
	if len(got) != len(want) {
		t.Fatalf("unexpected action set %v", got)
	}
	for _, action := range got {
		if !want[action] {
			t.Fatalf("unexpected action %s", action)
		}
	}

	if actions := ActionsFrom(jobs.StateComplete); len(actions) != 0 {
		t.Fatalf("terminal state must offer no actions, got %v", actions)
	}
}
