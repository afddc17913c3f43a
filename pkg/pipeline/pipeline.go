// Package pipeline composes the turn-processing stages: live model stream
// through the sentinel scanner, envelope parsing, candidate normalization,
// turn building, the critic-revise loop, ranking, approval/publish, and
// post-publish monitoring with memory extraction. Stages run in fixed order;
// each takes the previous stage's turn and returns an enriched turn, and no
// stage failure escapes to the caller.
package pipeline

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/policyforge/advisor/pkg/approval"
	"github.com/policyforge/advisor/pkg/candidate"
	"github.com/policyforge/advisor/pkg/catalog"
	"github.com/policyforge/advisor/pkg/config"
	"github.com/policyforge/advisor/pkg/critic"
	"github.com/policyforge/advisor/pkg/envelope"
	"github.com/policyforge/advisor/pkg/logging"
	"github.com/policyforge/advisor/pkg/model"
	"github.com/policyforge/advisor/pkg/monitor"
	"github.com/policyforge/advisor/pkg/ranking"
	"github.com/policyforge/advisor/pkg/textutil"
	"github.com/policyforge/advisor/pkg/turn"
)

const msgUnavailable = "The drafting assistant is unavailable right now. Please try again in a moment."

// Tools are the optional external collaborators. Each is individually
// fault-tolerant; a nil tool is a valid configuration.
type Tools struct {
	Evaluator ranking.Evaluator
	Approval  approval.Validator
	Publisher approval.Publisher
	Monitor   monitor.Tool
	Memory    monitor.MemoryUpdater
}

// Input is one user message plus the caller's context for the turn.
type Input struct {
	MerchantID    string
	SessionID     string
	UserMessage   string
	History       []model.Message
	IntentFrame   map[string]any
	Overrides     candidate.Overrides
	PublishIntent bool
	ApprovalToken string
}

// Pipeline processes one turn at a time. It holds no per-turn state; the
// caller owns persistence and serializes turns within one conversation.
type Pipeline struct {
	gateway model.Gateway
	catalog catalog.Catalog
	cfg     config.Config
	tools   Tools
	logger  *logging.Logger
	tracer  trace.Tracer
}

// New builds a pipeline from its collaborators.
func New(gateway model.Gateway, cat catalog.Catalog, cfg config.Config, tools Tools, logger *logging.Logger) *Pipeline {
	return &Pipeline{
		gateway: gateway,
		catalog: cat,
		cfg:     cfg,
		tools:   tools,
		logger:  logger,
		tracer:  otel.Tracer("advisor/pipeline"),
	}
}

// ProcessTurn starts one turn. It returns a live token-event channel for
// incremental rendering and a single-resolution result channel. The consumer
// should drain the event channel; the result channel receives exactly one
// well-formed turn and is then closed.
func (p *Pipeline) ProcessTurn(ctx context.Context, in Input) (<-chan model.StreamEvent, <-chan *turn.Turn) {
	events := make(chan model.StreamEvent, 64)
	result := make(chan *turn.Turn, 1)
	go p.run(ctx, in, events, result)
	return events, result
}

func (p *Pipeline) run(ctx context.Context, in Input, events chan<- model.StreamEvent, result chan<- *turn.Turn) {
	started := time.Now()
	ctx, span := p.tracer.Start(ctx, "turn.process")
	defer span.End()

	turnID := ulid.Make().String()
	userMessage := textutil.NormalizeText(in.UserMessage, p.cfg.History.UserMessageRunes)
	in.Overrides = p.defaultOverrides(in.Overrides)

	seq := 0
	emit := func(eventType model.StreamEventType, text string) {
		events <- model.StreamEvent{Type: eventType, Seq: seq, Text: text}
		seq++
	}

	finish := func(t *turn.Turn) {
		t.ID = turnID
		metricTurnsProcessed.WithLabelValues(string(t.Status)).Inc()
		metricTurnDuration.Observe(time.Since(started).Seconds())
		p.logger.Info(logging.CategoryConversation, "turn_completed", "", map[string]any{
			"turn_id":   turnID,
			"status":    t.Status,
			"proposals": len(t.Proposals),
			"issues":    len(t.ValidationIssues),
		})
		result <- t
		close(result)
	}

	scanner := envelope.NewScanner()
	sentinelDetected, err := p.streamTurn(ctx, in.History, userMessage, scanner, emit)
	close(events)
	if err != nil {
		metricToolFailures.WithLabelValues("model_stream").Inc()
		p.logger.Error(logging.CategoryModel, "stream_failed", textutil.SummarizeError(err, 240), map[string]any{"turn_id": turnID})
		finish(p.unavailableTurn())
		return
	}
	p.logger.Debug(logging.CategoryEnvelope, "stream_drained", "", map[string]any{
		"turn_id":  turnID,
		"sentinel": sentinelDetected,
	})

	parsed := p.parseEnvelope(ctx, scanner)
	proposals, invalid := candidate.Build(p.catalog, parsed.RawCandidates, in.Overrides)
	t := turn.Build(parsed, proposals, invalid)

	t = p.runCritic(ctx, t, userMessage, in)
	t = p.runRanking(ctx, t, userMessage, in)
	t = p.runApproval(ctx, t, in)
	t = p.runMonitor(ctx, t, in)
	t = p.runMemory(ctx, t, userMessage, in)

	finish(t)
}

// streamTurn drives the live model stream through the scanner, emitting only
// safe-to-display tokens. A stream that ends abnormally mid-way still flushes
// whatever was buffered; only a stream that never starts returns an error.
func (p *Pipeline) streamTurn(ctx context.Context, history []model.Message, userMessage string, scanner *envelope.Scanner, emit func(model.StreamEventType, string)) (bool, error) {
	ctx, span := p.tracer.Start(ctx, "turn.stream")
	defer span.End()

	messages := p.composeMessages(history, userMessage)
	stream, err := p.gateway.StreamChatEvents(ctx, messages)
	if err != nil {
		return false, err
	}

	emit(model.EventStart, "")
	g, _ := errgroup.WithContext(ctx)
	tokens := make(chan string, 64)
	g.Go(func() error {
		defer close(tokens)
		for event := range stream {
			if event.Type != model.EventToken || event.Text == "" {
				continue
			}
			if token := scanner.Feed(event.Text); token != "" {
				tokens <- token
			}
		}
		return nil
	})
	for token := range tokens {
		metricStreamTokens.Inc()
		emit(model.EventToken, token)
	}
	_ = g.Wait()

	if tail := scanner.Finish(); tail != "" {
		metricStreamTokens.Inc()
		emit(model.EventToken, tail)
	}
	emit(model.EventEnd, "")
	return scanner.SentinelDetected(), nil
}

func (p *Pipeline) parseEnvelope(ctx context.Context, scanner *envelope.Scanner) envelope.ParseResult {
	_, span := p.tracer.Start(ctx, "turn.parse_envelope")
	defer span.End()

	parsed := envelope.Parse(scanner.Raw())
	if parsed.ParseError {
		p.logger.Warn(logging.CategoryEnvelope, "parse_error", "decision block did not parse", nil)
	}
	return parsed
}

func (p *Pipeline) runCritic(ctx context.Context, t *turn.Turn, userMessage string, in Input) *turn.Turn {
	ctx, span := p.tracer.Start(ctx, "turn.critic")
	defer span.End()

	loop := critic.NewLoop(p.gateway, p.catalog, critic.Options{
		Enabled:         p.cfg.Critic.Enabled,
		MaxRounds:       p.cfg.Critic.MaxRounds,
		MinProposals:    p.cfg.Critic.MinProposals,
		ConfidenceFloor: p.cfg.Critic.ConfidenceFloor,
	}, in.Overrides)
	t = loop.Run(ctx, t, userMessage)

	if report := t.Protocol.Critic; report != nil && report.Ran {
		metricCriticRounds.Add(float64(report.Rounds))
		p.logger.Info(logging.CategoryCritic, "critic_finished", report.StopReason, map[string]any{
			"rounds": report.Rounds,
		})
	}
	return t
}

func (p *Pipeline) runRanking(ctx context.Context, t *turn.Turn, userMessage string, in Input) *turn.Turn {
	ctx, span := p.tracer.Start(ctx, "turn.ranking")
	defer span.End()

	t = ranking.Rank(ctx, p.tools.Evaluator, t, ranking.Request{
		MerchantID:  in.MerchantID,
		SessionID:   in.SessionID,
		UserMessage: userMessage,
		IntentFrame: in.IntentFrame,
	})
	if report := t.Protocol.Evaluation; report != nil && report.Error != "" {
		metricToolFailures.WithLabelValues("evaluator").Inc()
		p.logger.Warn(logging.CategoryRanking, "evaluator_degraded", report.Error, nil)
	}
	return t
}

func (p *Pipeline) runApproval(ctx context.Context, t *turn.Turn, in Input) *turn.Turn {
	ctx, span := p.tracer.Start(ctx, "turn.approval")
	defer span.End()

	t = approval.Run(ctx, p.tools.Approval, p.tools.Publisher, t, approval.Input{
		PublishIntent: in.PublishIntent,
		ApprovalToken: in.ApprovalToken,
		MerchantID:    in.MerchantID,
		SessionID:     in.SessionID,
	})
	if report := t.Protocol.Publish; report != nil && report.Source == approval.PublishSourceToolError {
		metricToolFailures.WithLabelValues("publisher").Inc()
	}
	return t
}

func (p *Pipeline) runMonitor(ctx context.Context, t *turn.Turn, in Input) *turn.Turn {
	ctx, span := p.tracer.Start(ctx, "turn.monitor")
	defer span.End()

	t = monitor.Observe(ctx, p.tools.Monitor, t, in.MerchantID, in.SessionID)
	if report := t.Protocol.PostPublishMonitor; report != nil && report.Source == monitor.SourceToolError {
		metricToolFailures.WithLabelValues("monitor").Inc()
	}
	return t
}

func (p *Pipeline) runMemory(ctx context.Context, t *turn.Turn, userMessage string, in Input) *turn.Turn {
	ctx, span := p.tracer.Start(ctx, "turn.memory")
	defer span.End()

	t = monitor.UpdateMemory(ctx, p.tools.Memory, t, userMessage, in.MerchantID, in.SessionID, p.cfg.Memory.FactsPerBucket)
	if report := t.Protocol.MemoryUpdate; report != nil && report.Source == monitor.MemorySourceToolError {
		metricToolFailures.WithLabelValues("memory").Inc()
	}
	return t
}

// composeMessages builds the model conversation: system prompt, the newest
// slice of history that fits the token budget, then the user message.
func (p *Pipeline) composeMessages(history []model.Message, userMessage string) []model.Message {
	budget := p.cfg.History.TokenBudget
	kept := history
	if budget > 0 {
		kept = nil
		used := 0
		for i := len(history) - 1; i >= 0; i-- {
			cost := textutil.EstimateTokens(history[i].Content) + 4
			if used+cost > budget {
				break
			}
			used += cost
			kept = append([]model.Message{history[i]}, kept...)
		}
	}

	messages := make([]model.Message, 0, len(kept)+2)
	messages = append(messages, model.Message{Role: "system", Content: systemPrompt})
	messages = append(messages, kept...)
	messages = append(messages, model.Message{Role: "user", Content: userMessage})
	return messages
}

func (p *Pipeline) defaultOverrides(ov candidate.Overrides) candidate.Overrides {
	if ov.Provider == "" {
		ov.Provider = p.cfg.Provider.Name
	}
	if ov.Model == "" {
		ov.Model = p.cfg.Provider.Model
	}
	return ov
}

func (p *Pipeline) unavailableTurn() *turn.Turn {
	return &turn.Turn{
		Status:           turn.StatusAIUnavailable,
		AssistantMessage: msgUnavailable,
		Proposals:        []turn.Proposal{},
		Protocol: turn.Protocol{
			Name:    envelope.ProtocolName,
			Version: envelope.ProtocolVersion,
		},
	}
}
