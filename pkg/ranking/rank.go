// Package ranking calls the external policy evaluator, computes rank scores,
// orders proposals blocked-last, and emits the display-ready explain pack.
// Evaluator failure never fails the turn: a synthetic blocked evaluation is
// substituted per proposal.
package ranking

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/policyforge/advisor/pkg/textutil"
	"github.com/policyforge/advisor/pkg/turn"
)

// Evaluation report source tags.
const (
	SourceEvaluator   = "EVALUATOR"
	SourceUnavailable = "UNAVAILABLE"
	SourceToolError   = "TOOL_ERROR"
)

// RiskFlagEvaluationError marks synthetic evaluations substituted on
// evaluator failure.
const RiskFlagEvaluationError = "EVALUATION_ERROR"

// Request is the single evaluator call covering the full proposal batch.
type Request struct {
	Proposals   []turn.Proposal
	MerchantID  string
	SessionID   string
	UserMessage string
	IntentFrame map[string]any
}

// Result is the evaluator's verdict for one proposal, matched by index.
type Result struct {
	Index         int         `json:"index"`
	Blocked       bool        `json:"blocked"`
	Score         *float64    `json:"score"`
	ReasonCodes   []string    `json:"reason_codes,omitempty"`
	RiskFlags     []string    `json:"risk_flags,omitempty"`
	ExpectedRange *turn.Range `json:"expected_range"`
	SelectedCount int         `json:"selected_count"`
	RejectedCount int         `json:"rejected_count"`
	EstimatedCost float64     `json:"estimated_cost"`
	DecisionID    string      `json:"decision_id,omitempty"`
	Error         string      `json:"error,omitempty"`
}

// Response is the evaluator's batch answer.
type Response struct {
	Source  string   `json:"source"`
	UserID  string   `json:"user_id,omitempty"`
	Results []Result `json:"results"`
}

// Evaluator is the optional external policy evaluator. A failing call is
// converted into blocked evaluations; it never aborts the turn.
type Evaluator interface {
	EvaluatePolicyCandidates(ctx context.Context, req Request) (*Response, error)
}

// Rank evaluates and orders the turn's proposals. Skipped unless the turn is
// proposal-ready with at least one proposal.
func Rank(ctx context.Context, ev Evaluator, in *turn.Turn, req Request) *turn.Turn {
	if in.Status != turn.StatusProposalReady || len(in.Proposals) == 0 {
		return in
	}
	out := *in
	t := &out

	evaluations, report := evaluate(ctx, ev, t, req)
	t.Protocol.Evaluation = report

	type ranked struct {
		proposal turn.Proposal
		score    float64
	}
	items := make([]ranked, len(t.Proposals))
	for i, p := range t.Proposals {
		e := evaluations[i]
		p.Evaluation = &e
		items[i] = ranked{proposal: p, score: rankScore(p, e)}
	}

	// Blocked candidates sort strictly last regardless of score magnitude;
	// within a partition the order is score descending, then confidence
	// descending, stable otherwise.
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.proposal.Evaluation.Blocked != b.proposal.Evaluation.Blocked {
			return !a.proposal.Evaluation.Blocked
		}
		if a.score != b.score {
			return a.score > b.score
		}
		ac, bc := confidenceOrZero(a.proposal), confidenceOrZero(b.proposal)
		return ac > bc
	})

	proposals := make([]turn.Proposal, len(items))
	explain := make([]turn.ExplainItem, len(items))
	for i, item := range items {
		proposals[i] = item.proposal
		e := item.proposal.Evaluation
		explain[i] = turn.ExplainItem{
			Rank:        i + 1,
			Title:       item.proposal.Title,
			TemplateID:  item.proposal.TemplateID,
			BranchID:    item.proposal.BranchID,
			RankScore:   item.score,
			Blocked:     e.Blocked,
			Score:       e.Score,
			Confidence:  item.proposal.Confidence,
			ReasonCodes: e.ReasonCodes,
			RiskFlags:   e.RiskFlags,
		}
	}

	t.Proposals = proposals
	first := proposals[0]
	t.Proposal = &first
	t.Protocol.Ranking = &turn.RankingReport{ExplainPack: explain}
	return t
}

func evaluate(ctx context.Context, ev Evaluator, t *turn.Turn, req Request) ([]turn.Evaluation, *turn.EvaluationReport) {
	n := len(t.Proposals)
	evaluations := make([]turn.Evaluation, n)

	if ev == nil {
		return evaluations, &turn.EvaluationReport{Source: SourceUnavailable}
	}

	req.Proposals = t.Proposals
	resp, err := ev.EvaluatePolicyCandidates(ctx, req)
	if err != nil {
		summary := textutil.SummarizeError(err, 240)
		for i := range evaluations {
			evaluations[i] = turn.Evaluation{
				Blocked:    true,
				RiskFlags:  []string{RiskFlagEvaluationError},
				DecisionID: uuid.NewString(),
				Error:      summary,
			}
		}
		return evaluations, &turn.EvaluationReport{Source: SourceToolError, Error: summary}
	}

	for _, r := range resp.Results {
		if r.Index < 0 || r.Index >= n {
			continue
		}
		evaluations[r.Index] = turn.Evaluation{
			Blocked:       r.Blocked,
			Score:         r.Score,
			ReasonCodes:   r.ReasonCodes,
			RiskFlags:     r.RiskFlags,
			ExpectedRange: r.ExpectedRange,
			SelectedCount: r.SelectedCount,
			RejectedCount: r.RejectedCount,
			EstimatedCost: r.EstimatedCost,
			DecisionID:    r.DecisionID,
			Error:         r.Error,
		}
	}
	source := resp.Source
	if source == "" {
		source = SourceEvaluator
	}
	return evaluations, &turn.EvaluationReport{Source: source, UserID: resp.UserID}
}

// rankScore derives the ordering scalar. The evaluator's own numeric score is
// used verbatim when present; otherwise the score is composed from the
// expected-range midpoint, confidence, risk flags, selection counts, and
// estimated cost.
func rankScore(p turn.Proposal, ev turn.Evaluation) float64 {
	if ev.Score != nil {
		return *ev.Score
	}
	mid := 0.0
	if ev.ExpectedRange != nil {
		mid = (ev.ExpectedRange.Min + ev.ExpectedRange.Max) / 2
	}
	return mid +
		confidenceOrZero(p)*10 -
		2*float64(len(ev.RiskFlags)) -
		float64(ev.RejectedCount) +
		float64(ev.SelectedCount) -
		ev.EstimatedCost
}

func confidenceOrZero(p turn.Proposal) float64 {
	if p.Confidence == nil {
		return 0
	}
	return *p.Confidence
}
