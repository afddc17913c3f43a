// Package textutil provides text normalization and token budget estimation
// shared across the turn pipeline.
package textutil

import (
	"regexp"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeText trims surrounding whitespace and clamps the text to maxRunes.
// A maxRunes of zero or less disables clamping.
func NormalizeText(s string, maxRunes int) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
	if maxRunes <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return strings.TrimSpace(string(runes[:maxRunes]))
}

// CollapseWhitespace replaces every run of whitespace with a single space.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// SummarizeError renders an error as a single whitespace-collapsed line capped
// at maxRunes. Used wherever a collaborator failure is folded into a result
// record instead of being propagated.
func SummarizeError(err error, maxRunes int) string {
	if err == nil {
		return ""
	}
	if maxRunes <= 0 {
		maxRunes = 240
	}
	return NormalizeText(CollapseWhitespace(err.Error()), maxRunes)
}

var (
	encoderOnce sync.Once
	encoder     *tiktoken.Tiktoken
)

// EstimateTokens approximates the token cost of the given text using the
// cl100k_base encoding. Falls back to a bytes/4 heuristic when the encoding
// data is unavailable (offline environments).
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	encoderOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err == nil {
			encoder = enc
		}
	})
	if encoder != nil {
		return len(encoder.Encode(s, nil, nil))
	}
	return len(s)/4 + 1
}
