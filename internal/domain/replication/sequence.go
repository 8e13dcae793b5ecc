// Package replication holds the domain model for the diff replication
// stream: sequence pointer parsing, publish path derivation, and the error
// taxonomy that maps failures to process exit codes. The package is pure and
// has no I/O dependencies.
package replication

import (
	"fmt"
	"regexp"
	"strconv"
)

// PointerKey is the object-store key of the global sequence pointer. It
// always reflects the last successfully committed sequence.
const PointerKey = "state.txt"

var sequenceRE = regexp.MustCompile(`sequenceNumber=(\d+)`)

// ParseSequence extracts the sequence number from state file content. Any
// other content in the file is opaque to the domain. It returns a
// KindInvalidState error when no sequenceNumber=<digits> substring exists.
func ParseSequence(text string) (uint64, error) {
	m := sequenceRE.FindStringSubmatch(text)
	if m == nil {
		return 0, NewError(KindInvalidState, fmt.Errorf("state content lacks a sequenceNumber field"))
	}

	n, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, NewError(KindInvalidState, fmt.Errorf("parsing sequence number %q: %w", m[1], err))
	}

	return n, nil
}

// PublishPath splits a sequence number into the hierarchical path components
// used for published artifacts. Each component is a zero-padded 3-digit
// decimal: top = N/1e6, mid = (N%1e6)/1e3, leaf = N%1e3.
func PublishPath(n uint64) (top, mid, leaf string) {
	top = fmt.Sprintf("%03d", n/1_000_000)
	mid = fmt.Sprintf("%03d", (n%1_000_000)/1_000)
	leaf = fmt.Sprintf("%03d", n%1_000)
	return top, mid, leaf
}

// DiffKey returns the object-store key of the immutable diff payload for a
// sequence number.
func DiffKey(n uint64) string {
	top, mid, leaf := PublishPath(n)
	return fmt.Sprintf("%s/%s/%s.osc.gz", top, mid, leaf)
}

// StateKey returns the object-store key of the immutable per-sequence state
// snapshot for a sequence number.
func StateKey(n uint64) string {
	top, mid, leaf := PublishPath(n)
	return fmt.Sprintf("%s/%s/%s.state.txt", top, mid, leaf)
}
