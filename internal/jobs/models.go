package jobs

import (
	"strings"
	"time"
)

// State is the persisted lifecycle stage of a job. Values are stable across
// storage backends; do not rename.
type State string

const (
	StateQueued              State = "QUEUED"
	StateAssigned            State = "ASSIGNED"
	StateInProgress          State = "IN_PROGRESS"
	StateSecurityPrepDone    State = "SECURITY_PREP_COMPLETE"
	StateDiagnosed           State = "DIAGNOSED"
	StateRepairInProgress    State = "REPAIR_IN_PROGRESS"
	StateRepairComplete      State = "REPAIR_COMPLETE"
	StateFinalTestInProgress State = "FINAL_TEST_IN_PROGRESS"
	StateFinalTestPassed     State = "FINAL_TEST_PASSED"
	StateCertified           State = "CERTIFIED"
	StateComplete            State = "COMPLETE"
	StateBlocked             State = "BLOCKED"
	StateEscalated           State = "ESCALATED"
	StateFinalTestFailed     State = "FINAL_TEST_FAILED"
	StateFailedDisposition   State = "FAILED_DISPOSITION"
)

// MainPath is the terminal-success route in stage order. A job's
// current_step_index is its position on this path.
var MainPath = []State{
	StateQueued,
	StateAssigned,
	StateInProgress,
	StateSecurityPrepDone,
	StateDiagnosed,
	StateRepairInProgress,
	StateRepairComplete,
	StateFinalTestInProgress,
	StateFinalTestPassed,
	StateCertified,
	StateComplete,
}

var allStates = []State{
	StateQueued,
	StateAssigned,
	StateInProgress,
	StateSecurityPrepDone,
	StateDiagnosed,
	StateRepairInProgress,
	StateRepairComplete,
	StateFinalTestInProgress,
	StateFinalTestPassed,
	StateCertified,
	StateComplete,
	StateBlocked,
	StateEscalated,
	StateFinalTestFailed,
	StateFailedDisposition,
}

var stateSet = func() map[State]struct{} {
	set := make(map[State]struct{}, len(allStates))
	for _, state := range allStates {
		set[state] = struct{}{}
	}
	return set
}()

var mainPathIndex = func() map[State]int {
	idx := make(map[State]int, len(MainPath))
	for i, state := range MainPath {
		idx[state] = i
	}
	return idx
}()

// AllStates returns the ordered list of known states.
func AllStates() []State {
	cp := make([]State, len(allStates))
	copy(cp, allStates)
	return cp
}

// ParseState converts a string into a known State.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToUpper(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stateSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether the state has no outgoing actions.
func (s State) IsTerminal() bool {
	return s == StateComplete || s == StateFailedDisposition
}

// IsTerminalSuccess reports whether the state ends the job successfully.
func (s State) IsTerminalSuccess() bool {
	return s == StateComplete
}

// IsEscape reports whether the state is one of the recoverable escape states
// reachable from any non-terminal state.
func (s State) IsEscape() bool {
	return s == StateBlocked || s == StateEscalated
}

// StepIndex returns the state's position on the main path, or -1 for escape
// and failure states.
func (s State) StepIndex() int {
	if idx, ok := mainPathIndex[s]; ok {
		return idx
	}
	return -1
}

// Job is one physical item moving through refurbishment. The lifecycle engine
// exclusively owns CurrentState and AttemptCount mutation.
type Job struct {
	QLID             string
	PalletRef        string
	Category         string
	Manufacturer     string
	Model            string
	CurrentState     State
	CurrentStepIndex int
	AssignedTech     string
	AttemptCount     int
	MaxAttempts      int
	FinalGrade       string
	WarrantyEligible *bool
	Disposition      string
	Priority         int
	StartedAt        *time.Time
	CompletedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Transition is one immutable audit-trail entry. FromState is empty for the
// creation transition.
type Transition struct {
	ID        int64
	QLID      string
	Seq       int
	FromState State
	ToState   State
	Action    string
	Actor     string
	Reason    string
	CreatedAt time.Time
}

// StepCompletion records operator-entered data for one step of one stage.
// At most one row exists per (job, state, step); re-submission replaces it.
// Payload columns carry opaque JSON documents validated by the per-category
// schema collaborator, not here.
type StepCompletion struct {
	QLID             string
	StateCode        State
	StepCode         string
	ChecklistJSON    string
	ValuesJSON       string
	MeasurementsJSON string
	Notes            string
	PhotoRefsJSON    string
	Actor            string
	DurationSeconds  int
	CompletedAt      time.Time
}

// RepairStatus is the lifecycle of a single diagnosis, independent of the
// job's own stage.
type RepairStatus string

const (
	RepairPending    RepairStatus = "PENDING"
	RepairInProgress RepairStatus = "IN_PROGRESS"
	RepairDone       RepairStatus = "DONE"
	RepairWontFix    RepairStatus = "WONT_FIX"
)

// Resolved reports whether the repair no longer blocks the job from leaving
// the repair stage.
func (r RepairStatus) Resolved() bool {
	return r == RepairDone || r == RepairWontFix
}

// Diagnosis is one defect found on a job.
type Diagnosis struct {
	ID                int64
	QLID              string
	DefectCode        string
	Severity          string
	MeasurementsJSON  string
	PhotoRefsJSON     string
	ProposedAction    string
	RequiredPartsJSON string
	RepairStatus      RepairStatus
	RepairedBy        string
	RepairedAt        *time.Time
	PartsUsedJSON     string
	CreatedBy         string
	CreatedAt         time.Time
}

// Certification is the record minted when a refurbished item is certified.
// It points at its job; the job never stores a certification serial.
type Certification struct {
	Serial       string
	QLID         string
	Level        string
	FinalGrade   string
	WarrantyJSON string
	IssuedBy     string
	IssuedAt     time.Time
	IsRevoked    bool
	RevokeReason string
	RevokedBy    string
	RevokedAt    *time.Time
}

// HealthSummary aggregates job counts for status output.
type HealthSummary struct {
	Total    int
	ByState  map[State]int
	Active   int
	Terminal int
	Escaped  int
}
