package envelope

import "strings"

// Scanner converts arbitrarily-chunked response text into an incremental
// stream of safe-to-display tokens plus a final buffer for envelope parsing.
//
// Invariant: emitted text never contains any prefix of an as-yet-unconfirmed
// marker occurrence, and emitted tokens plus the withheld remainder always
// concatenate back to the exact input.
type Scanner struct {
	buf         []byte
	yielded     int
	scanned     int
	detected    bool
	markerStart int
	finished    bool
}

// NewScanner returns a scanner ready to consume the first chunk.
func NewScanner() *Scanner {
	return &Scanner{}
}

// Feed appends one chunk and returns any newly safe-to-display text, or the
// empty string when everything new must be held back.
func (s *Scanner) Feed(chunk string) string {
	if s.finished {
		return ""
	}
	s.buf = append(s.buf, chunk...)
	if s.detected {
		return ""
	}

	// Re-scan with bounded lookback so a marker split across chunks is
	// caught at the chunk in which it completes.
	from := s.scanned - (maxMarkerLen - 1)
	if from < 0 {
		from = 0
	}
	if idx := findMarker(string(s.buf), from); idx >= 0 {
		s.detected = true
		s.markerStart = idx
		if idx > s.yielded {
			token := string(s.buf[s.yielded:idx])
			s.yielded = idx
			return token
		}
		return ""
	}
	s.scanned = len(s.buf)

	hold := s.holdback()
	emitEnd := len(s.buf) - hold
	if emitEnd > s.yielded {
		token := string(s.buf[s.yielded:emitEnd])
		s.yielded = emitEnd
		return token
	}
	return ""
}

// holdback returns how many trailing bytes form a strict prefix of a marker
// and must therefore be withheld from display.
func (s *Scanner) holdback() int {
	n := len(s.buf)
	limit := maxMarkerLen - 1
	if limit > n {
		limit = n
	}
	for l := limit; l >= 1; l-- {
		suffix := string(s.buf[n-l:])
		if strings.HasPrefix(newlineMarker, suffix) {
			return l
		}
		// The bare marker only counts at offset zero, i.e. when the
		// held suffix would be the entire buffer.
		if l == n && strings.HasPrefix(bareMarker, suffix) {
			return l
		}
	}
	return 0
}

// Finish flushes any withheld text on stream end. When a marker was detected
// nothing more is displayed; the remainder is reserved for parsing.
func (s *Scanner) Finish() string {
	if s.finished {
		return ""
	}
	s.finished = true
	if s.detected || s.yielded >= len(s.buf) {
		return ""
	}
	token := string(s.buf[s.yielded:])
	s.yielded = len(s.buf)
	return token
}

// SentinelDetected reports whether a full marker has been confirmed.
func (s *Scanner) SentinelDetected() bool {
	return s.detected
}

// Raw returns the complete accumulated response text.
func (s *Scanner) Raw() string {
	return string(s.buf)
}

// Remainder returns the withheld text from the marker onward, or "" when no
// marker was detected.
func (s *Scanner) Remainder() string {
	if !s.detected {
		return ""
	}
	return string(s.buf[s.markerStart:])
}
