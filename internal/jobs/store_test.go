package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"qline/internal/qlid"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenPath(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func mustCreate(t *testing.T, store *Store) *Job {
	t.Helper()
	job, err := store.Create(context.Background(), CreateParams{
		Category: "laptop",
		Model:    "T480",
		Actor:    "intake",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return job
}

func TestCreateMintsSequentialIdentifiers(t *testing.T) {
	store := openTestStore(t)

	first := mustCreate(t, store)
	second := mustCreate(t, store)

	if first.QLID != "QLID0000000001" {
		t.Fatalf("unexpected first identifier %q", first.QLID)
	}
	if second.QLID != "QLID0000000002" {
		t.Fatalf("unexpected second identifier %q", second.QLID)
	}
	if first.CurrentState != StateQueued {
		t.Fatalf("expected QUEUED, got %s", first.CurrentState)
	}
	if first.MaxAttempts != 2 {
		t.Fatalf("expected default max attempts 2, got %d", first.MaxAttempts)
	}

	transitions, err := store.TransitionsForJob(context.Background(), first.QLID)
	if err != nil {
		t.Fatalf("TransitionsForJob: %v", err)
	}
	if len(transitions) != 1 {
		t.Fatalf("expected 1 creation transition, got %d", len(transitions))
	}
	if transitions[0].FromState != "" || transitions[0].ToState != StateQueued {
		t.Fatalf("unexpected creation transition %+v", transitions[0])
	}
}

func TestNextTickConcurrentAllocationsAreUnique(t *testing.T) {
	store := openTestStore(t)

	const workers = 20
	const perWorker = 10

	var mu sync.Mutex
	seen := make(map[uint64]struct{}, workers*perWorker)
	var wg sync.WaitGroup
	errCh := make(chan error, workers)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				tick, err := store.NextTick(context.Background(), CounterQLID)
				if err != nil {
					errCh <- err
					return
				}
				mu.Lock()
				if _, dup := seen[tick]; dup {
					mu.Unlock()
					errCh <- errors.New("duplicate tick allocated")
					return
				}
				seen[tick] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(errCh)
	if err := <-errCh; err != nil {
		t.Fatalf("concurrent allocation: %v", err)
	}
	if len(seen) != workers*perWorker {
		t.Fatalf("expected %d unique ticks, got %d", workers*perWorker, len(seen))
	}
	// The counter starts at zero, so the allocations must be exactly 1..N
	// with no gaps: a gap would mean a tick was burned or lost.
	for tick := uint64(1); tick <= workers*perWorker; tick++ {
		if _, ok := seen[tick]; !ok {
			t.Fatalf("tick %d missing from allocation range", tick)
		}
	}
}

func TestApplyTransitionRejectsStaleObserver(t *testing.T) {
	store := openTestStore(t)
	job := mustCreate(t, store)

	if _, err := store.ApplyTransition(context.Background(), TransitionRequest{
		QLID:       job.QLID,
		FromState:  StateQueued,
		ToState:    StateAssigned,
		Action:     "assign",
		Actor:      "super",
		AssignTech: "alice",
	}); err != nil {
		t.Fatalf("first transition: %v", err)
	}

	_, err := store.ApplyTransition(context.Background(), TransitionRequest{
		QLID:      job.QLID,
		FromState: StateQueued,
		ToState:   StateAssigned,
		Action:    "assign",
		Actor:     "super",
	})
	if !errors.Is(err, ErrStaleState) {
		t.Fatalf("expected ErrStaleState, got %v", err)
	}

	transitions, err := store.TransitionsForJob(context.Background(), job.QLID)
	if err != nil {
		t.Fatalf("TransitionsForJob: %v", err)
	}
	if len(transitions) != 2 {
		t.Fatalf("stale write must not append a transition; got %d entries", len(transitions))
	}
}

func TestApplyTransitionUnknownJob(t *testing.T) {
	store := openTestStore(t)

	_, err := store.ApplyTransition(context.Background(), TransitionRequest{
		QLID:      "QLID9999999999",
		FromState: StateQueued,
		ToState:   StateAssigned,
		Action:    "assign",
		Actor:     "super",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApplyTransitionBookkeeping(t *testing.T) {
	store := openTestStore(t)
	job := mustCreate(t, store)
	ctx := context.Background()

	updated, err := store.ApplyTransition(ctx, TransitionRequest{
		QLID:       job.QLID,
		FromState:  StateQueued,
		ToState:    StateAssigned,
		Action:     "assign",
		Actor:      "super",
		AssignTech: "alice",
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if updated.AssignedTech != "alice" {
		t.Fatalf("expected technician alice, got %q", updated.AssignedTech)
	}
	if updated.CurrentStepIndex != 1 {
		t.Fatalf("expected step index 1, got %d", updated.CurrentStepIndex)
	}

	updated, err = store.ApplyTransition(ctx, TransitionRequest{
		QLID:        updated.QLID,
		FromState:   StateAssigned,
		ToState:     StateInProgress,
		Action:      "start",
		Actor:       "alice",
		MarkStarted: true,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if updated.StartedAt == nil {
		t.Fatal("expected started_at to be stamped")
	}

	updated, err = store.ApplyTransition(ctx, TransitionRequest{
		QLID:             updated.QLID,
		FromState:        StateInProgress,
		ToState:          StateFinalTestFailed,
		Action:           "override",
		Actor:            "super",
		Reason:           "bench shortcut",
		IncrementAttempt: true,
	})
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if updated.AttemptCount != 1 {
		t.Fatalf("expected attempt count 1, got %d", updated.AttemptCount)
	}
	if updated.CurrentStepIndex != 2 {
		t.Fatalf("off-path state must keep the last step index, got %d", updated.CurrentStepIndex)
	}

	updated, err = store.ApplyTransition(ctx, TransitionRequest{
		QLID:          updated.QLID,
		FromState:     StateFinalTestFailed,
		ToState:       StateFailedDisposition,
		Action:        "dispose",
		Actor:         "super",
		MarkCompleted: true,
		Disposition:   "SCRAP",
	})
	if err != nil {
		t.Fatalf("dispose: %v", err)
	}
	if updated.CompletedAt == nil {
		t.Fatal("expected completed_at to be stamped")
	}
	if updated.Disposition != "SCRAP" {
		t.Fatalf("expected disposition SCRAP, got %q", updated.Disposition)
	}
}

func TestTransitionSequencePerJob(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	first := mustCreate(t, store)
	second := mustCreate(t, store)

	if _, err := store.ApplyTransition(ctx, TransitionRequest{
		QLID: first.QLID, FromState: StateQueued, ToState: StateAssigned,
		Action: "assign", Actor: "super", AssignTech: "alice",
	}); err != nil {
		t.Fatalf("assign first: %v", err)
	}

	firstLog, err := store.TransitionsForJob(ctx, first.QLID)
	if err != nil {
		t.Fatalf("TransitionsForJob: %v", err)
	}
	secondLog, err := store.TransitionsForJob(ctx, second.QLID)
	if err != nil {
		t.Fatalf("TransitionsForJob: %v", err)
	}
	if firstLog[0].Seq != 1 || firstLog[1].Seq != 2 {
		t.Fatalf("expected seq 1,2 for first job, got %d,%d", firstLog[0].Seq, firstLog[1].Seq)
	}
	if secondLog[0].Seq != 1 {
		t.Fatalf("sequence must be per-job; second job starts at %d", secondLog[0].Seq)
	}
}

func TestRecordStepUpserts(t *testing.T) {
	store := openTestStore(t)
	job := mustCreate(t, store)
	ctx := context.Background()

	first, err := store.RecordStep(ctx, job.QLID, StateInProgress, "data_wipe", StepPayload{
		Notes: "first pass",
	}, "alice")
	if err != nil {
		t.Fatalf("RecordStep: %v", err)
	}
	if first.Notes != "first pass" {
		t.Fatalf("unexpected notes %q", first.Notes)
	}

	second, err := store.RecordStep(ctx, job.QLID, StateInProgress, "data_wipe", StepPayload{
		Notes:           "redone",
		DurationSeconds: 90,
	}, "bob")
	if err != nil {
		t.Fatalf("RecordStep upsert: %v", err)
	}
	if second.Notes != "redone" || second.Actor != "bob" || second.DurationSeconds != 90 {
		t.Fatalf("upsert did not replace payload: %+v", second)
	}

	steps, err := store.StepCompletionsForJob(ctx, job.QLID)
	if err != nil {
		t.Fatalf("StepCompletionsForJob: %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("expected a single step row after re-submission, got %d", len(steps))
	}
}

func TestResolveDiagnosisTwiceFails(t *testing.T) {
	store := openTestStore(t)
	job := mustCreate(t, store)
	ctx := context.Background()

	diag, err := store.InsertDiagnosis(ctx, DiagnosisDraft{
		QLID:       job.QLID,
		DefectCode: "BATT_SWELL",
		Severity:   "MAJOR",
		Actor:      "alice",
	})
	if err != nil {
		t.Fatalf("InsertDiagnosis: %v", err)
	}

	count, err := store.UnresolvedDiagnosisCount(ctx, job.QLID)
	if err != nil {
		t.Fatalf("UnresolvedDiagnosisCount: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 unresolved diagnosis, got %d", count)
	}

	if _, err := store.ResolveDiagnosis(ctx, diag.ID, RepairDone, "bob", `["battery"]`); err != nil {
		t.Fatalf("ResolveDiagnosis: %v", err)
	}
	if _, err := store.ResolveDiagnosis(ctx, diag.ID, RepairWontFix, "bob", ""); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}

	count, err = store.UnresolvedDiagnosisCount(ctx, job.QLID)
	if err != nil {
		t.Fatalf("UnresolvedDiagnosisCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 unresolved diagnoses, got %d", count)
	}
}

func TestIssueCertificationLifecycle(t *testing.T) {
	store := openTestStore(t)
	job := mustCreate(t, store)
	ctx := context.Background()

	eligible := true
	draft := CertificationDraft{
		QLID:             job.QLID,
		Level:            "GOOD",
		Grade:            "B",
		WarrantyEligible: &eligible,
		Actor:            "carol",
		EligibleStates:   []State{StateCertified, StateComplete},
	}

	if _, _, err := store.IssueCertification(ctx, draft); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible from QUEUED, got %v", err)
	}

	if _, err := store.ApplyTransition(ctx, TransitionRequest{
		QLID: job.QLID, FromState: StateQueued, ToState: StateCertified,
		Action: "override", Actor: "super", Reason: "test shortcut",
	}); err != nil {
		t.Fatalf("move to CERTIFIED: %v", err)
	}

	cert, created, err := store.IssueCertification(ctx, draft)
	if err != nil {
		t.Fatalf("IssueCertification: %v", err)
	}
	if !created {
		t.Fatal("expected first issue to mint a certification")
	}
	if !qlid.Certifications.IsValid(cert.Serial) {
		t.Fatalf("serial %q is not a valid certification identifier", cert.Serial)
	}

	again, created, err := store.IssueCertification(ctx, draft)
	if err != nil {
		t.Fatalf("repeat IssueCertification: %v", err)
	}
	if created || again.Serial != cert.Serial {
		t.Fatalf("expected idempotent re-issue of %s, got %s (created=%v)", cert.Serial, again.Serial, created)
	}

	updated, err := store.GetByQLID(ctx, job.QLID)
	if err != nil {
		t.Fatalf("GetByQLID: %v", err)
	}
	if updated.FinalGrade != "B" {
		t.Fatalf("expected final grade B on the job, got %q", updated.FinalGrade)
	}

	revoked, err := store.RevokeCertification(ctx, cert.Serial, "failed spot audit", "super")
	if err != nil {
		t.Fatalf("RevokeCertification: %v", err)
	}
	if !revoked.IsRevoked || revoked.RevokedAt == nil {
		t.Fatalf("expected revoked certification, got %+v", revoked)
	}
	if _, err := store.RevokeCertification(ctx, cert.Serial, "again", "super"); !errors.Is(err, ErrAlreadyRevoked) {
		t.Fatalf("expected ErrAlreadyRevoked, got %v", err)
	}

	replacement, created, err := store.IssueCertification(ctx, draft)
	if err != nil {
		t.Fatalf("re-issue after revoke: %v", err)
	}
	if !created || replacement.Serial == cert.Serial {
		t.Fatalf("replacement must get a fresh serial; got %s (created=%v)", replacement.Serial, created)
	}
}

func TestStaleInStates(t *testing.T) {
	store := openTestStore(t)
	job := mustCreate(t, store)
	ctx := context.Background()

	if _, err := store.ApplyTransition(ctx, TransitionRequest{
		QLID: job.QLID, FromState: StateQueued, ToState: StateInProgress,
		Action: "override", Actor: "super", Reason: "test shortcut",
	}); err != nil {
		t.Fatalf("move to IN_PROGRESS: %v", err)
	}

	fresh, err := store.StaleInStates(ctx, time.Now().UTC().Add(-time.Hour), StateInProgress)
	if err != nil {
		t.Fatalf("StaleInStates: %v", err)
	}
	if len(fresh) != 0 {
		t.Fatalf("job updated now must not be stale against an old cutoff; got %d", len(fresh))
	}

	stale, err := store.StaleInStates(ctx, time.Now().UTC().Add(time.Hour), StateInProgress)
	if err != nil {
		t.Fatalf("StaleInStates: %v", err)
	}
	if len(stale) != 1 {
		t.Fatalf("expected 1 stale job against a future cutoff, got %d", len(stale))
	}

	none, err := store.StaleInStates(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("StaleInStates with no states: %v", err)
	}
	if none != nil {
		t.Fatalf("no states must return nil, got %v", none)
	}
}

func TestHealthAggregates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	mustCreate(t, store)
	second := mustCreate(t, store)
	if _, err := store.ApplyTransition(ctx, TransitionRequest{
		QLID: second.QLID, FromState: StateQueued, ToState: StateEscalated,
		Action: "escalate", Actor: "super",
	}); err != nil {
		t.Fatalf("escalate: %v", err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 2 || health.Active != 1 || health.Escaped != 1 || health.Terminal != 0 {
		t.Fatalf("unexpected health summary %+v", health)
	}
}
