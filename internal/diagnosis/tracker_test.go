package diagnosis

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"qline/internal/jobs"
)

type partsRecorder struct {
	mu    sync.Mutex
	parts map[string][]string
}

func (p *partsRecorder) NotifyJobEscalated(context.Context, string, string) error { return nil }
func (p *partsRecorder) NotifyJobCertified(context.Context, string, string, string) error {
	return nil
}
func (p *partsRecorder) NotifyJobCompleted(context.Context, string, string) error         { return nil }
func (p *partsRecorder) NotifyJobFailedDisposition(context.Context, string, string) error { return nil }
func (p *partsRecorder) TestNotification(context.Context) error                           { return nil }

func (p *partsRecorder) NotifyPartsConsumed(_ context.Context, qlid string, parts []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.parts == nil {
		p.parts = make(map[string][]string)
	}
	p.parts[qlid] = append(p.parts[qlid], parts...)
	return nil
}

func newTrackerRig(t *testing.T) (*Tracker, *partsRecorder, string) {
	t.Helper()
	store, err := jobs.OpenPath(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	job, err := store.Create(context.Background(), jobs.CreateParams{Category: "laptop", Actor: "intake"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	recorder := &partsRecorder{}
	return NewTracker(store, recorder, nil), recorder, job.QLID
}

func TestOpenRecordsDiagnosis(t *testing.T) {
	tracker, _, qlid := newTrackerRig(t)

	diag, err := tracker.Open(context.Background(), OpenRequest{
		QLID:           qlid,
		DefectCode:     "SCREEN_CRACK",
		Severity:       "MAJOR",
		Measurements:   map[string]any{"crack_mm": 42.0},
		ProposedAction: "replace panel",
		RequiredParts:  []string{"panel-14in"},
		Actor:          "alice",
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if diag.RepairStatus != jobs.RepairPending {
		t.Fatalf("expected PENDING, got %s", diag.RepairStatus)
	}
	if diag.MeasurementsJSON == "" || diag.RequiredPartsJSON == "" {
		t.Fatalf("expected encoded documents, got %+v", diag)
	}

	clear, err := tracker.CanLeaveRepairStage(context.Background(), qlid)
	if err != nil {
		t.Fatalf("CanLeaveRepairStage: %v", err)
	}
	if clear {
		t.Fatal("pending diagnosis must block repair exit")
	}
}

func TestRepairLifecycle(t *testing.T) {
	tracker, recorder, qlid := newTrackerRig(t)
	ctx := context.Background()

	diag, err := tracker.Open(ctx, OpenRequest{
		QLID: qlid, DefectCode: "BATT_SWELL", Severity: "MAJOR", Actor: "alice",
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	started, err := tracker.StartRepair(ctx, diag.ID)
	if err != nil {
		t.Fatalf("StartRepair: %v", err)
	}
	if started.RepairStatus != jobs.RepairInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", started.RepairStatus)
	}

	done, err := tracker.MarkRepaired(ctx, diag.ID, "bob", []string{"battery-52wh"})
	if err != nil {
		t.Fatalf("MarkRepaired: %v", err)
	}
	if done.RepairStatus != jobs.RepairDone || done.RepairedBy != "bob" || done.RepairedAt == nil {
		t.Fatalf("unexpected resolved diagnosis %+v", done)
	}
	if got := recorder.parts[qlid]; len(got) != 1 || got[0] != "battery-52wh" {
		t.Fatalf("expected consumed parts notification, got %v", got)
	}

	if _, err := tracker.MarkWontFix(ctx, diag.ID, "bob"); !errors.Is(err, jobs.ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}

	clear, err := tracker.CanLeaveRepairStage(ctx, qlid)
	if err != nil {
		t.Fatalf("CanLeaveRepairStage: %v", err)
	}
	if !clear {
		t.Fatal("resolved diagnoses must unblock repair exit")
	}
}

func TestWontFixCountsAsResolved(t *testing.T) {
	tracker, _, qlid := newTrackerRig(t)
	ctx := context.Background()

	diag, err := tracker.Open(ctx, OpenRequest{
		QLID: qlid, DefectCode: "COSMETIC_SCUFF", Severity: "MINOR", Actor: "alice",
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := tracker.MarkWontFix(ctx, diag.ID, "bob"); err != nil {
		t.Fatalf("MarkWontFix: %v", err)
	}

	clear, err := tracker.CanLeaveRepairStage(ctx, qlid)
	if err != nil {
		t.Fatalf("CanLeaveRepairStage: %v", err)
	}
	if !clear {
		t.Fatal("WONT_FIX must count as resolved")
	}
}
