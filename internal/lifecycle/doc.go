// Package lifecycle is the job state machine. It validates actions against an
// explicit transition table, enforces the final-test attempt limit, gates
// repair exit on unresolved diagnoses, and applies every accepted change
// through the store's single-transaction transition primitive.
//
// Legality is a table lookup, not scattered conditionals: an action missing
// from the table for the observed state is ErrIllegalTransition. The three
// dynamic rules that cannot live in a static table (escape-state entry from
// any non-terminal state, resolve/override targeting, and the attempt limit)
// are implemented as explicit guards in Advance.
package lifecycle
