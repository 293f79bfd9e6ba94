package lifecycle

import "errors"

var (
	// ErrIllegalTransition indicates an action that is not legal from the
	// job's current state. Surfaced to the caller, never retried.
	ErrIllegalTransition = errors.New("illegal transition")

	// ErrAttemptLimit indicates a retest was requested after the job consumed
	// its final-test attempts; the only legal route is FAILED_DISPOSITION.
	ErrAttemptLimit = errors.New("attempt limit exceeded")

	// ErrRepairsUnresolved indicates the job still has PENDING or IN_PROGRESS
	// diagnoses and cannot leave the repair stage without an override.
	ErrRepairsUnresolved = errors.New("unresolved diagnoses block repair exit")
)
