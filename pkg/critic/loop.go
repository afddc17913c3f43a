// Package critic runs the bounded critic-revise loop: it decides whether a
// proposal-ready turn needs another model pass and re-invokes the model with
// structured-output contracts until convergence or round exhaustion. The loop
// degrades, never fails: a gateway error keeps the last good turn.
package critic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/policyforge/advisor/pkg/candidate"
	"github.com/policyforge/advisor/pkg/catalog"
	"github.com/policyforge/advisor/pkg/model"
	"github.com/policyforge/advisor/pkg/turn"
)

const msgClarification = "I wasn't able to draft a proposal that passes validation. Could you clarify what you'd like to change - for example the discount size, audience, or schedule?"

// Stop reasons recorded in the critic report.
const (
	StopDisabled   = "disabled"
	StopNotReady   = "not_ready"
	StopNotNeeded  = "not_needed"
	StopConverged  = "converged"
	StopModelError = "model_error"
	StopQualityMet = "quality_met"
	StopExhausted  = "rounds_exhausted"
)

// Options bound the loop and define its quality entry conditions.
type Options struct {
	Enabled         bool
	MaxRounds       int
	MinProposals    int
	ConfidenceFloor float64
}

// Verdict is the critic's structured judgment of the current proposal set.
type Verdict struct {
	NeedRevision bool
	Summary      string
	Issues       []string
	Focus        []string
}

// Loop drives critique and revision rounds against the model gateway.
type Loop struct {
	gateway   model.Gateway
	catalog   catalog.Catalog
	opts      Options
	overrides candidate.Overrides
}

// NewLoop builds a critic loop. The overrides are reapplied to every revised
// candidate batch so caller defaults survive revision.
func NewLoop(gateway model.Gateway, cat catalog.Catalog, opts Options, overrides candidate.Overrides) *Loop {
	return &Loop{gateway: gateway, catalog: cat, opts: opts, overrides: overrides}
}

// Run executes the loop against a built turn and returns the enriched turn.
// A turn that is still proposal-ready with zero proposals after exhaustion is
// downgraded to a chat reply asking for clarification.
func (l *Loop) Run(ctx context.Context, in *turn.Turn, userMessage string) *turn.Turn {
	out := *in
	t := &out

	report := &turn.CriticReport{}
	t.Protocol.Critic = report

	if !l.opts.Enabled || l.opts.MaxRounds <= 0 {
		report.StopReason = StopDisabled
		return finish(t)
	}
	if t.Status != turn.StatusProposalReady {
		report.StopReason = StopNotReady
		return finish(t)
	}

	pending := summarizeIssues(t.ValidationIssues)
	if len(pending) == 0 && !l.shouldRun(t) {
		report.StopReason = StopNotNeeded
		return finish(t)
	}

	report.Ran = true
	report.StopReason = StopExhausted

	for round := 1; round <= l.opts.MaxRounds; round++ {
		report.Rounds = round

		var verdict Verdict
		if len(pending) > 0 {
			// Deterministic failure: no model call needed for the
			// verdict itself.
			verdict = Verdict{
				NeedRevision: true,
				Summary:      "previous candidates failed patch validation",
				Issues:       pending,
			}
		} else {
			v, err := l.critique(ctx, t, userMessage)
			if err != nil {
				report.StopReason = StopModelError
				break
			}
			verdict = v
		}
		report.LastSummary = verdict.Summary
		report.Issues = verdict.Issues

		if !verdict.NeedRevision {
			report.StopReason = StopConverged
			break
		}

		revised, err := l.revise(ctx, t, userMessage, verdict)
		if err != nil {
			report.StopReason = StopModelError
			break
		}

		proposals, invalid := candidate.Build(l.catalog, revised.rawCandidates, l.overrides)
		t.ValidationIssues = append(t.ValidationIssues, invalid...)

		if len(proposals) == 0 {
			// Give the remaining rounds a chance with the fresh
			// violation set.
			pending = summarizeIssues(invalid)
			continue
		}

		t.Proposals = proposals
		first := proposals[0]
		t.Proposal = &first
		if revised.assistantMessage != "" {
			t.AssistantMessage = revised.assistantMessage
		}
		pending = summarizeIssues(invalid)
		if len(pending) == 0 && !l.shouldRun(t) {
			report.StopReason = StopQualityMet
			break
		}
	}

	return finish(t)
}

// finish guards every exit: a turn never leaves the loop in a "ready" state
// with zero proposals, including when the loop itself did not run.
func finish(t *turn.Turn) *turn.Turn {
	if t.Status == turn.StatusProposalReady && len(t.Proposals) == 0 {
		t.Status = turn.StatusChatReply
		t.AssistantMessage = msgClarification
	}
	return t
}

// shouldRun reports whether the proposal set warrants a critic pass: enough
// proposals to critique, or any proposal below the confidence floor.
func (l *Loop) shouldRun(t *turn.Turn) bool {
	if len(t.Proposals) >= l.opts.MinProposals && l.opts.MinProposals > 0 {
		return true
	}
	for _, p := range t.Proposals {
		if p.Confidence != nil && *p.Confidence < l.opts.ConfidenceFloor {
			return true
		}
	}
	return false
}

type reviseResult struct {
	assistantMessage string
	rawCandidates    []map[string]any
}

func (l *Loop) critique(ctx context.Context, t *turn.Turn, userMessage string) (Verdict, error) {
	proposalsJSON, _ := json.MarshalIndent(t.Proposals, "", "  ")
	messages := []model.Message{
		{Role: "system", Content: "You are a strict reviewer of merchant policy-change proposals. Judge whether the drafted proposals genuinely satisfy the merchant's request. Respond only with the requested JSON."},
		{Role: "user", Content: fmt.Sprintf("Merchant request:\n%s\n\nDrafted proposals:\n%s", userMessage, proposalsJSON)},
	}
	res, err := l.gateway.InvokeChatWithRaw(ctx, messages, model.InvokeOptions{
		StructuredOutput: &model.StructuredOutput{Name: criticSchemaName, Strict: true, Schema: criticOutputSchema},
	})
	if err != nil {
		return Verdict{}, err
	}
	if res == nil || res.Parsed == nil {
		return Verdict{}, fmt.Errorf("critic output did not parse")
	}
	return parseVerdict(res.Parsed), nil
}

func (l *Loop) revise(ctx context.Context, t *turn.Turn, userMessage string, verdict Verdict) (reviseResult, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Merchant request:\n%s\n\n", userMessage)
	if len(verdict.Issues) > 0 {
		b.WriteString("Problems with the previous attempt:\n")
		for _, issue := range verdict.Issues {
			b.WriteString("- " + issue + "\n")
		}
		b.WriteString("\n")
	}
	if len(verdict.Focus) > 0 {
		b.WriteString("Focus on:\n")
		for _, f := range verdict.Focus {
			b.WriteString("- " + f + "\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("Produce a corrected proposal set. Respond only with the requested JSON.")

	messages := []model.Message{
		{Role: "system", Content: "You revise merchant policy-change proposals so they pass template validation and address the reviewer's issues."},
		{Role: "user", Content: b.String()},
	}
	res, err := l.gateway.InvokeChatWithRaw(ctx, messages, model.InvokeOptions{
		StructuredOutput: &model.StructuredOutput{Name: reviseSchemaName, Strict: true, Schema: reviseOutputSchema},
	})
	if err != nil {
		return reviseResult{}, err
	}
	if res == nil || res.Parsed == nil {
		return reviseResult{}, fmt.Errorf("revise output did not parse")
	}

	out := reviseResult{}
	if msg, ok := res.Parsed["assistantMessage"].(string); ok {
		out.assistantMessage = strings.TrimSpace(msg)
	}
	if arr, ok := res.Parsed["proposals"].([]any); ok {
		for _, item := range arr {
			if m, ok := item.(map[string]any); ok {
				out.rawCandidates = append(out.rawCandidates, m)
			}
		}
	}
	return out, nil
}

func parseVerdict(parsed map[string]any) Verdict {
	v := Verdict{}
	if need, ok := parsed["needRevision"].(bool); ok {
		v.NeedRevision = need
	}
	if summary, ok := parsed["summary"].(string); ok {
		v.Summary = strings.TrimSpace(summary)
	}
	v.Issues = stringList(parsed["issues"], maxIssues)
	v.Focus = stringList(parsed["focus"], maxFocus)
	return v
}

func stringList(v any, limit int) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range arr {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
		if len(out) == limit {
			break
		}
	}
	return out
}

// summarizeIssues renders invalid candidates as critic-consumable one-liners,
// capped at the critic issue budget.
func summarizeIssues(invalid []turn.InvalidCandidate) []string {
	var out []string
	for _, inv := range invalid {
		var parts []string
		for _, v := range inv.Violations {
			parts = append(parts, v.Path+": "+v.Reason)
		}
		line := inv.Reason
		if inv.Title != "" {
			line = inv.Title + ": " + line
		}
		if len(parts) > 0 {
			line += " (" + strings.Join(parts, "; ") + ")"
		}
		out = append(out, line)
		if len(out) == maxIssues {
			break
		}
	}
	return out
}
