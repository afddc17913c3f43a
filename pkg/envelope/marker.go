// Package envelope implements the decision-envelope wire contract for a model
// turn: free assistant text optionally followed by a sentinel marker and a
// single structured JSON block. It also provides the streaming scanner that
// separates safe-to-display text from the withheld structured tail while
// chunks arrive in arbitrary sizes.
package envelope

import "strings"

// ProtocolName identifies the envelope contract in turn metadata.
const ProtocolName = "policy-draft-envelope"

// ProtocolVersion is the version of the envelope contract itself.
const ProtocolVersion = "1.0"

// SchemaVersion is the decision block schema version this build emits and
// accepts.
const SchemaVersion = "1"

const (
	// newlineMarker opens a decision block after assistant text.
	newlineMarker = "\n{\"schemaVersion\""

	// bareMarker opens a decision block when the response carries no
	// assistant text at all; it only counts at offset zero.
	bareMarker = "{\"schemaVersion\""
)

// maxMarkerLen bounds the scanner's holdback and re-scan lookback.
const maxMarkerLen = len(newlineMarker)

// findMarker returns the byte offset of the earliest marker occurrence at or
// after from, or -1. The bare marker is only recognized at offset zero.
func findMarker(s string, from int) int {
	if from <= 0 && strings.HasPrefix(s, bareMarker) {
		return 0
	}
	if from < 0 {
		from = 0
	}
	if from >= len(s) {
		return -1
	}
	if idx := strings.Index(s[from:], newlineMarker); idx >= 0 {
		return from + idx
	}
	return -1
}
