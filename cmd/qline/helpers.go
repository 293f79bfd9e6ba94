package main

import (
	"fmt"

	"qline/internal/jobs"
)

func parseStates(raw []string) ([]jobs.State, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	states := make([]jobs.State, 0, len(raw))
	for _, value := range raw {
		state, ok := jobs.ParseState(value)
		if !ok {
			return nil, fmt.Errorf("unknown state %q", value)
		}
		states = append(states, state)
	}
	return states, nil
}
