// Package jobs persists the refurbishment pipeline: job rows, the append-only
// transition log, operator step completions, diagnosis records, and
// certifications, all in one SQLite database.
//
// The store is the only component that writes job state, and it only does so
// through ApplyTransition, which performs the conditional state update and the
// transition-log append in a single transaction. Concurrent writers racing on
// the same job observe ErrStaleState and must re-read. Higher-level legality
// rules (which actions are allowed from which state) live in the lifecycle
// package; this package enforces storage invariants only.
package jobs
