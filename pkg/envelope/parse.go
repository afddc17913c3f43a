package envelope

import (
	"encoding/json"
	"io"
	"strings"
)

// Source formats reported in turn protocol metadata.
const (
	SourceFormatText        = "text"
	SourceFormatEnvelope    = "envelope"
	SourceFormatInvalidJSON = "invalid_json"
)

// ModeProposal forces candidate-seeking even when the decision block carries
// zero candidates. Other mode values are treated as absent.
const ModeProposal = "PROPOSAL"

// ParseResult is the outcome of splitting a raw model response into its
// assistant-visible text and optional decision block.
type ParseResult struct {
	AssistantMessage string
	SourceFormat     string
	SchemaVersion    string
	Decision         map[string]any
	ForceProposal    bool
	RawCandidates    []map[string]any
	ParseError       bool
}

// Parse splits raw response text at the earliest marker occurrence. Text
// before the marker is the assistant-visible prefix; everything from the
// marker onward must parse as exactly one JSON object, otherwise the whole
// response is treated as invalid_json and the prefix (or the full raw text
// when there is no prefix) becomes the assistant message.
func Parse(raw string) ParseResult {
	idx := findMarker(raw, 0)
	if idx < 0 {
		return ParseResult{
			AssistantMessage: strings.TrimSpace(raw),
			SourceFormat:     SourceFormatText,
		}
	}

	prefix := strings.TrimSpace(raw[:idx])
	decision, err := decodeSingleObject(raw[idx:])
	if err != nil {
		msg := prefix
		if msg == "" {
			msg = strings.TrimSpace(raw)
		}
		return ParseResult{
			AssistantMessage: msg,
			SourceFormat:     SourceFormatInvalidJSON,
			ParseError:       true,
		}
	}

	res := ParseResult{
		AssistantMessage: prefix,
		SourceFormat:     SourceFormatEnvelope,
		Decision:         decision,
	}
	if v, ok := decision["schemaVersion"].(string); ok {
		res.SchemaVersion = v
	}
	if mode, ok := decision["mode"].(string); ok && mode == ModeProposal {
		res.ForceProposal = true
	}
	if msg, ok := decision["assistantMessage"].(string); ok && strings.TrimSpace(msg) != "" {
		res.AssistantMessage = strings.TrimSpace(msg)
	}
	res.RawCandidates = extractCandidates(decision)
	return res
}

func decodeSingleObject(s string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(strings.TrimLeft(s, "\n")))
	var decision map[string]any
	if err := dec.Decode(&decision); err != nil {
		return nil, err
	}
	// Anything but whitespace after the object invalidates the envelope.
	if _, err := dec.Token(); err != io.EOF {
		return nil, io.ErrUnexpectedEOF
	}
	return decision, nil
}

func extractCandidates(decision map[string]any) []map[string]any {
	if arr, ok := decision["proposals"].([]any); ok {
		out := make([]map[string]any, 0, len(arr))
		for _, item := range arr {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	if single, ok := decision["proposal"].(map[string]any); ok {
		return []map[string]any{single}
	}
	return nil
}
