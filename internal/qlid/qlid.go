package qlid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidFormat indicates input that matches neither a bare identifier nor
// a compound scan payload. Callers must correct the input; retrying cannot
// succeed.
var ErrInvalidFormat = errors.New("invalid identifier format")

const (
	counterDigits = 10
	// counterModulus is 10^counterDigits; ticks at or above it spill into the
	// series letters.
	counterModulus = uint64(10_000_000_000)
	seriesBase     = uint64(26)
)

// Scheme describes one identifier namespace. The item scheme and the
// certification scheme share the codec but draw from independent counters.
type Scheme struct {
	Prefix string
}

// Items is the scheme for item-level identifiers.
var Items = Scheme{Prefix: "QLID"}

// Certifications is the scheme for certification serials.
var Certifications = Scheme{Prefix: "QCRT"}

// FormatTick renders a tick as an identifier.
func (s Scheme) FormatTick(tick uint64) string {
	series := tick / counterModulus
	counter := tick % counterModulus
	return s.Prefix + encodeSeries(series) + fmt.Sprintf("%0*d", counterDigits, counter)
}

// ParseTick decodes an identifier back to its tick.
func (s Scheme) ParseTick(id string) (uint64, error) {
	series, counter, ok := s.split(id)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, id)
	}
	seriesIndex, ok := decodeSeries(series)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, id)
	}
	value, err := strconv.ParseUint(counter, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, id)
	}
	return seriesIndex*counterModulus + value, nil
}

// IsValid reports whether id has the prefix + optional letters + ten digit
// shape. It is a pure format check and does not consult the store.
func (s Scheme) IsValid(id string) bool {
	_, _, ok := s.split(id)
	return ok
}

// split breaks an identifier into series letters and counter digits.
func (s Scheme) split(id string) (series, counter string, ok bool) {
	rest, found := strings.CutPrefix(id, s.Prefix)
	if !found || len(rest) < counterDigits {
		return "", "", false
	}
	series = rest[:len(rest)-counterDigits]
	counter = rest[len(rest)-counterDigits:]
	for _, r := range series {
		if r < 'A' || r > 'Z' {
			return "", "", false
		}
	}
	for _, r := range counter {
		if r < '0' || r > '9' {
			return "", "", false
		}
	}
	return series, counter, true
}

// encodeSeries converts a series index to bijective base-26 letters.
// Index 0 is the empty series; 1 is "A", 26 is "Z", 27 is "AA".
func encodeSeries(index uint64) string {
	if index == 0 {
		return ""
	}
	var letters []byte
	for index > 0 {
		index--
		letters = append(letters, byte('A'+index%seriesBase))
		index /= seriesBase
	}
	for i, j := 0, len(letters)-1; i < j; i, j = i+1, j-1 {
		letters[i], letters[j] = letters[j], letters[i]
	}
	return string(letters)
}

func decodeSeries(series string) (uint64, bool) {
	var index uint64
	for i := 0; i < len(series); i++ {
		c := series[i]
		if c < 'A' || c > 'Z' {
			return 0, false
		}
		index = index*seriesBase + uint64(c-'A'+1)
	}
	return index, true
}
