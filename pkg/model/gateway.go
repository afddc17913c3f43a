package model

import "context"

// StreamEventType classifies live turn events.
type StreamEventType string

const (
	EventStart StreamEventType = "start"
	EventToken StreamEventType = "token"
	EventEnd   StreamEventType = "end"
)

// StreamEvent is one element of the live token event stream.
type StreamEvent struct {
	Type StreamEventType `json:"type"`
	Seq  int             `json:"seq"`
	Text string          `json:"text,omitempty"`
}

// StructuredOutput requests schema-constrained output for a single-shot call.
type StructuredOutput struct {
	Name   string
	Strict bool
	Schema map[string]any
}

// InvokeOptions configures a single-shot chat invocation.
type InvokeOptions struct {
	StructuredOutput *StructuredOutput
	Temperature      float64
	MaxTokens        int
}

// RawResult is the outcome of a single-shot structured call: the decoded JSON
// object (when the response parsed) alongside the verbatim text.
type RawResult struct {
	Parsed  map[string]any
	RawText string
}

// Gateway is the subset of model capabilities the turn pipeline needs. This
// indirection lets tests substitute scripted fakes for live API calls.
type Gateway interface {
	// InvokeChatWithRaw performs a single-shot completion, decoding the
	// response body as one JSON object when possible.
	InvokeChatWithRaw(ctx context.Context, messages []Message, opts InvokeOptions) (*RawResult, error)

	// StreamChatEvents starts the live turn stream. The returned channel
	// is closed after the end event; a non-nil error means the stream
	// never started.
	StreamChatEvents(ctx context.Context, messages []Message) (<-chan StreamEvent, error)
}
