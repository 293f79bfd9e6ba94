package jobs

import "errors"

var (
	// ErrNotFound indicates the referenced job, diagnosis, or certification
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStaleState is the optimistic-concurrency conflict: the stored state
	// no longer matches the state the caller observed. The caller should
	// re-read and retry a bounded number of times.
	ErrStaleState = errors.New("stale state")

	// ErrAlreadyResolved indicates a diagnosis whose repair lifecycle already
	// reached DONE or WONT_FIX.
	ErrAlreadyResolved = errors.New("diagnosis already resolved")

	// ErrAlreadyRevoked indicates a certification that was revoked before.
	ErrAlreadyRevoked = errors.New("certification already revoked")

	// ErrNotEligible indicates a certification request for a job that has not
	// reached a terminal success state.
	ErrNotEligible = errors.New("job not eligible for certification")
)
