package lifecycle

import (
	"strings"

	"qline/internal/jobs"
)

// Action is an operator- or system-initiated request to move a job.
type Action string

const (
	ActionAssign               Action = "assign"
	ActionStart                Action = "start"
	ActionCompleteSecurityPrep Action = "complete_security_prep"
	ActionRecordDiagnosis      Action = "record_diagnosis"
	ActionStartRepair          Action = "start_repair"
	ActionCompleteRepair       Action = "complete_repair"
	ActionStartFinalTest       Action = "start_final_test"
	ActionPassFinalTest        Action = "pass_final_test"
	ActionFailFinalTest        Action = "fail_final_test"
	ActionCertify              Action = "certify"
	ActionComplete             Action = "complete"
	ActionRetryRepair          Action = "retry_repair"
	ActionDispose              Action = "dispose"
	ActionBlock                Action = "block"
	ActionEscalate             Action = "escalate"
	ActionResolve              Action = "resolve"
	ActionOverride             Action = "override"
)

var allActions = []Action{
	ActionAssign,
	ActionStart,
	ActionCompleteSecurityPrep,
	ActionRecordDiagnosis,
	ActionStartRepair,
	ActionCompleteRepair,
	ActionStartFinalTest,
	ActionPassFinalTest,
	ActionFailFinalTest,
	ActionCertify,
	ActionComplete,
	ActionRetryRepair,
	ActionDispose,
	ActionBlock,
	ActionEscalate,
	ActionResolve,
	ActionOverride,
}

// ParseAction converts a string into a known Action.
func ParseAction(value string) (Action, bool) {
	normalized := Action(strings.ToLower(strings.TrimSpace(value)))
	for _, action := range allActions {
		if action == normalized {
			return action, true
		}
	}
	return "", false
}

// transitionTable is the fixed state machine for main-path actions. Escape
// entry (block/escalate), resolve/override targeting, and the attempt-limit
// fork out of FINAL_TEST_FAILED are dynamic guards in Advance; everything
// else is a lookup here, and a lookup miss is an illegal transition.
var transitionTable = map[jobs.State]map[Action]jobs.State{
	jobs.StateQueued: {
		ActionAssign: jobs.StateAssigned,
	},
	jobs.StateAssigned: {
		ActionAssign: jobs.StateAssigned, // reassignment before work starts
		ActionStart:  jobs.StateInProgress,
	},
	jobs.StateInProgress: {
		ActionCompleteSecurityPrep: jobs.StateSecurityPrepDone,
	},
	jobs.StateSecurityPrepDone: {
		ActionRecordDiagnosis: jobs.StateDiagnosed,
	},
	jobs.StateDiagnosed: {
		ActionStartRepair: jobs.StateRepairInProgress,
	},
	jobs.StateRepairInProgress: {
		ActionCompleteRepair: jobs.StateRepairComplete,
	},
	jobs.StateRepairComplete: {
		ActionStartFinalTest: jobs.StateFinalTestInProgress,
	},
	jobs.StateFinalTestInProgress: {
		ActionPassFinalTest: jobs.StateFinalTestPassed,
		ActionFailFinalTest: jobs.StateFinalTestFailed,
	},
	jobs.StateFinalTestPassed: {
		ActionCertify: jobs.StateCertified,
	},
	jobs.StateCertified: {
		ActionComplete: jobs.StateComplete,
	},
	jobs.StateFinalTestFailed: {
		ActionRetryRepair: jobs.StateRepairInProgress,
		ActionDispose:     jobs.StateFailedDisposition,
	},
}

// tableTarget returns the table entry for (state, action).
func tableTarget(state jobs.State, action Action) (jobs.State, bool) {
	actions, ok := transitionTable[state]
	if !ok {
		return "", false
	}
	target, ok := actions[action]
	return target, ok
}

// ActionsFrom enumerates the actions legal from a state, attempt policy
// aside. Used by status output so stations can show what comes next.
func ActionsFrom(state jobs.State) []Action {
	var result []Action
	for _, action := range allActions {
		switch action {
		case ActionBlock, ActionEscalate:
			if !state.IsTerminal() {
				result = append(result, action)
			}
		case ActionResolve:
			if state.IsEscape() {
				result = append(result, action)
			}
		case ActionOverride:
			if !state.IsTerminal() {
				result = append(result, action)
			}
		default:
			if _, ok := tableTarget(state, action); ok {
				result = append(result, action)
			}
		}
	}
	return result
}
