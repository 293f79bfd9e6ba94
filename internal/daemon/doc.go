// Package daemon runs the qlined process: it owns the HTTP API server, the
// stale-job escalation sweep, single-instance locking, and the pid file.
//
// The daemon is the composition root for the pipeline: it opens the store,
// builds the lifecycle engine, diagnosis tracker, and certification issuer,
// and exposes them through the shared api.JobService. Everything runs under
// one errgroup so a fatal error in any part tears the process down cleanly.
package daemon
