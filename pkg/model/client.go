package model

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const defaultTimeout = 120 * time.Second

// ClientConfig configures the OpenAI-compatible gateway client.
type ClientConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	Temperature       float64
	MaxTokens         int
	Timeout           time.Duration
	RequestsPerMinute int
}

// Client implements Gateway against any OpenAI-compatible chat completion
// endpoint.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient builds a gateway client. A RequestsPerMinute of zero or less
// disables rate limiting.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.RequestsPerMinute)
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
	}
}

// InvokeChatWithRaw performs a single-shot completion. When the response body
// decodes as one JSON object it is returned in Parsed; the verbatim text is
// always returned.
func (c *Client) InvokeChatWithRaw(ctx context.Context, messages []Message, opts InvokeOptions) (*RawResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req := ChatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.temperature(opts.Temperature),
		MaxTokens:   opts.MaxTokens,
	}
	if opts.StructuredOutput != nil {
		req.ResponseFormat = &ResponseFormat{
			Type: "json_schema",
			JSONSchema: &JSONSchema{
				Name:   opts.StructuredOutput.Name,
				Strict: opts.StructuredOutput.Strict,
				Schema: opts.StructuredOutput.Schema,
			},
		}
	}

	resp, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat request failed: %s", resp.Status)
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("chat response has no choices")
	}

	raw := chatResp.Choices[0].Message.Content
	result := &RawResult{RawText: raw}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &parsed); err == nil {
		result.Parsed = parsed
	}
	return result, nil
}

// StreamChatEvents starts the live turn stream. The start event is emitted
// before the first token; the channel closes after the end event. A truncated
// upstream stream still produces an end event with whatever arrived.
func (c *Client) StreamChatEvents(ctx context.Context, messages []Message) (<-chan StreamEvent, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req := ChatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		Stream:      true,
	}
	resp, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("chat stream request failed: %s", resp.Status)
	}

	events := make(chan StreamEvent, 64)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		seq := 0
		events <- StreamEvent{Type: EventStart, Seq: seq}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			data := scanner.Text()
			if data == "" {
				continue
			}
			if strings.HasPrefix(data, "data: ") {
				data = data[6:]
			}
			if data == "[DONE]" {
				break
			}

			var chunk StreamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				// Malformed chunk: flush what we have.
				break
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			if text := chunk.Choices[0].Delta.Content; text != "" {
				seq++
				select {
				case events <- StreamEvent{Type: EventToken, Seq: seq, Text: text}:
				case <-ctx.Done():
					return
				}
			}
		}

		seq++
		events <- StreamEvent{Type: EventEnd, Seq: seq}
	}()
	return events, nil
}

func (c *Client) post(ctx context.Context, req ChatRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	return c.httpClient.Do(httpReq)
}

func (c *Client) temperature(override float64) float64 {
	if override > 0 {
		return override
	}
	return c.cfg.Temperature
}
