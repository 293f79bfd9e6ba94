package qlid

import (
	"fmt"
	"strings"
)

// ScanPayload is the decoded form of a scanner read: an optional container
// (pallet or tote) identifier plus the item identifier.
type ScanPayload struct {
	ContainerID string
	ID          string
	Tick        uint64
}

// ParseScan accepts either a bare identifier or a compound
// "<containerID>-<identifier>" payload and splits on the known prefix.
func (s Scheme) ParseScan(input string) (ScanPayload, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ScanPayload{}, fmt.Errorf("%w: empty input", ErrInvalidFormat)
	}

	container := ""
	id := trimmed
	if !strings.HasPrefix(trimmed, s.Prefix) {
		idx := strings.Index(trimmed, "-"+s.Prefix)
		if idx <= 0 {
			return ScanPayload{}, fmt.Errorf("%w: %q", ErrInvalidFormat, input)
		}
		container = trimmed[:idx]
		id = trimmed[idx+1:]
	}

	tick, err := s.ParseTick(id)
	if err != nil {
		return ScanPayload{}, err
	}
	return ScanPayload{ContainerID: container, ID: id, Tick: tick}, nil
}
