package daemon

import (
	"context"
	"log/slog"
	"time"

	"qline/internal/jobs"
)

// sweepStates are the in-progress stages the stale sweep watches. Escape and
// terminal states are never swept; neither are QUEUED and ASSIGNED, where a
// job legitimately waits.
var sweepStates = []jobs.State{
	jobs.StateInProgress,
	jobs.StateSecurityPrepDone,
	jobs.StateDiagnosed,
	jobs.StateRepairInProgress,
	jobs.StateRepairComplete,
	jobs.StateFinalTestInProgress,
	jobs.StateFinalTestPassed,
}

const sweepActor = "qlined/sweep"

// runSweep periodically escalates jobs that sat untouched in an in-progress
// stage past the configured threshold. Disabled when the threshold is zero.
func (d *Daemon) runSweep(ctx context.Context) error {
	threshold := time.Duration(d.cfg.Workflow.StaleEscalationMinutes) * time.Minute
	if threshold <= 0 {
		d.logger.Info("stale sweep disabled")
		<-ctx.Done()
		return ctx.Err()
	}
	interval := time.Duration(d.cfg.Workflow.SweepIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.sweepOnce(ctx, threshold)
		}
	}
}

func (d *Daemon) sweepOnce(ctx context.Context, threshold time.Duration) {
	cutoff := time.Now().UTC().Add(-threshold)
	stale, err := d.store.StaleInStates(ctx, cutoff, sweepStates...)
	if err != nil {
		d.logger.Error("stale sweep query failed", slog.Any("error", err))
		return
	}
	for _, job := range stale {
		reason := "no activity since " + job.UpdatedAt.UTC().Format(time.RFC3339)
		if _, err := d.engine.Escalate(ctx, job.QLID, reason, sweepActor, job.CurrentState); err != nil {
			// A concurrent operator action is fine; the job is no longer stale.
			d.logger.Warn("stale escalation skipped",
				slog.String("qlid", job.QLID),
				slog.Any("error", err))
			continue
		}
		d.collector.StaleEscalated()
		d.logger.Info("stale job escalated",
			slog.String("qlid", job.QLID),
			slog.String("state", string(job.CurrentState)))
	}
}
