// Package approval drives the approval-and-publish workflow: it resolves an
// approval verdict for a publish intent, invokes the publish tool when
// approved, and attaches per-proposal publish outcomes. Missing tools and
// tool failures produce explicit degraded results, never aborts.
package approval

import (
	"context"

	"github.com/policyforge/advisor/pkg/textutil"
	"github.com/policyforge/advisor/pkg/turn"
)

// Approval rejection reasons and result source tags.
const (
	ReasonMissingToken     = "MISSING_TOKEN"
	ReasonValidatorMissing = "VALIDATOR_MISSING"
	ReasonValidatorError   = "VALIDATOR_ERROR"

	SourceLocal     = "LOCAL"
	SourceValidator = "VALIDATOR"

	PublishSourceSkipped     = "SKIPPED"
	PublishSourceUnavailable = "UNAVAILABLE"
	PublishSourceToolError   = "PUBLISH_TOOL_ERROR"
)

const msgApprovalRequired = " Publishing requires approval; none of the proposals were published."

// Input carries the caller's publish signal and approval token.
type Input struct {
	PublishIntent bool
	ApprovalToken string
	MerchantID    string
	SessionID     string
}

// ValidationRequest is sent to the approval validator.
type ValidationRequest struct {
	MerchantID    string
	SessionID     string
	ApprovalToken string
	Proposals     []turn.Proposal
}

// Validator is the optional approval-token validator.
type Validator interface {
	ValidateApproval(ctx context.Context, req ValidationRequest) (*turn.ApprovalDecision, error)
}

// PublishRequest is sent to the publish tool once approval is granted.
type PublishRequest struct {
	MerchantID string
	SessionID  string
	ApprovalID string
	Proposals  []turn.Proposal
}

// Publisher is the optional publish tool.
type Publisher interface {
	PublishPolicies(ctx context.Context, req PublishRequest) (*turn.PublishResult, error)
}

// Run resolves approval and publishes when approved. No-op unless the caller
// signaled publish intent and the turn carries proposals.
func Run(ctx context.Context, v Validator, p Publisher, in *turn.Turn, input Input) *turn.Turn {
	if !input.PublishIntent {
		return in
	}
	if in.Status != turn.StatusProposalReady || len(in.Proposals) == 0 {
		return in
	}
	out := *in
	t := &out

	decision := resolveApproval(ctx, v, t, input)
	t.Protocol.Approval = decision

	if !decision.Approved {
		t.Protocol.Publish = skippedResult(PublishSourceSkipped, "approval not granted", len(t.Proposals))
		t.AssistantMessage += msgApprovalRequired
		return t
	}

	t.Protocol.Publish = publish(ctx, p, t, input, decision.ApprovalID)
	attachPublishItems(t)
	return t
}

// resolveApproval applies the precedence chain: missing token, missing
// validator, validator error, then the validator's verdict verbatim.
func resolveApproval(ctx context.Context, v Validator, t *turn.Turn, input Input) *turn.ApprovalDecision {
	if input.ApprovalToken == "" {
		return &turn.ApprovalDecision{Required: true, Reason: ReasonMissingToken, Source: SourceLocal}
	}
	if v == nil {
		return &turn.ApprovalDecision{Required: true, Reason: ReasonValidatorMissing, Source: SourceLocal}
	}
	verdict, err := v.ValidateApproval(ctx, ValidationRequest{
		MerchantID:    input.MerchantID,
		SessionID:     input.SessionID,
		ApprovalToken: input.ApprovalToken,
		Proposals:     t.Proposals,
	})
	if err != nil {
		return &turn.ApprovalDecision{
			Required: true,
			Reason:   ReasonValidatorError + ": " + textutil.SummarizeError(err, 240),
			Source:   SourceLocal,
		}
	}
	if verdict == nil {
		return &turn.ApprovalDecision{Required: true, Source: SourceValidator}
	}
	decision := *verdict
	decision.Required = true
	if decision.Source == "" {
		decision.Source = SourceValidator
	}
	return &decision
}

func publish(ctx context.Context, p Publisher, t *turn.Turn, input Input, approvalID string) *turn.PublishResult {
	if p == nil {
		return skippedResult(PublishSourceUnavailable, "publish tool not configured", len(t.Proposals))
	}
	result, err := p.PublishPolicies(ctx, PublishRequest{
		MerchantID: input.MerchantID,
		SessionID:  input.SessionID,
		ApprovalID: approvalID,
		Proposals:  t.Proposals,
	})
	if err != nil {
		summary := textutil.SummarizeError(err, 240)
		failed := &turn.PublishResult{Source: PublishSourceToolError, FailedCount: len(t.Proposals)}
		for i := range t.Proposals {
			failed.Items = append(failed.Items, turn.PublishItem{ProposalIndex: i, Error: summary})
		}
		return failed
	}
	if result == nil {
		return skippedResult(PublishSourceUnavailable, "publish tool returned no result", len(t.Proposals))
	}
	normalized := *result
	normalized.PublishedCount = 0
	normalized.FailedCount = 0
	for _, item := range normalized.Items {
		if item.OK {
			normalized.PublishedCount++
		} else {
			normalized.FailedCount++
		}
	}
	return &normalized
}

// attachPublishItems matches publish items back to proposals by index. The
// first ok=true item wins when duplicates exist for the same index.
func attachPublishItems(t *turn.Turn) {
	result := t.Protocol.Publish
	if result == nil {
		return
	}
	byIndex := make(map[int]turn.PublishItem)
	for _, item := range result.Items {
		existing, seen := byIndex[item.ProposalIndex]
		if !seen || (!existing.OK && item.OK) {
			byIndex[item.ProposalIndex] = item
		}
	}
	proposals := make([]turn.Proposal, len(t.Proposals))
	for i, p := range t.Proposals {
		if item, ok := byIndex[i]; ok {
			attached := item
			p.Publish = &attached
		}
		proposals[i] = p
	}
	t.Proposals = proposals
	if len(proposals) > 0 {
		first := proposals[0]
		t.Proposal = &first
	}
}

func skippedResult(source, reason string, count int) *turn.PublishResult {
	result := &turn.PublishResult{Source: source}
	for i := 0; i < count; i++ {
		result.Items = append(result.Items, turn.PublishItem{ProposalIndex: i, Error: reason})
	}
	result.FailedCount = 0
	return result
}
