// Package turn defines the result object threaded through every pipeline
// stage and the state machine that produces it from a parsed envelope.
// Later stages only ever enrich a turn; sub-records are additive and earlier
// ones are never overwritten.
package turn

import "github.com/policyforge/advisor/pkg/catalog"

// Status is the terminal classification of one processed turn.
type Status string

const (
	StatusAIUnavailable Status = "AI_UNAVAILABLE"
	StatusChatReply     Status = "CHAT_REPLY"
	StatusProposalReady Status = "PROPOSAL_READY"
)

// Turn is the complete result of processing one user message.
type Turn struct {
	ID               string             `json:"id,omitempty"`
	Status           Status             `json:"status"`
	AssistantMessage string             `json:"assistant_message"`
	Proposal         *Proposal          `json:"proposal,omitempty"`
	Proposals        []Proposal         `json:"proposals"`
	ValidationIssues []InvalidCandidate `json:"validation_issues,omitempty"`
	Protocol         Protocol           `json:"protocol"`
}

// Protocol carries envelope metadata plus the additive sub-records attached
// by later stages.
type Protocol struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	SourceFormat  string `json:"source_format,omitempty"`
	SchemaVersion string `json:"schema_version,omitempty"`
	ParseError    bool   `json:"parse_error,omitempty"`

	Critic             *CriticReport     `json:"critic,omitempty"`
	Evaluation         *EvaluationReport `json:"evaluation,omitempty"`
	Ranking            *RankingReport    `json:"ranking,omitempty"`
	Approval           *ApprovalDecision `json:"approval,omitempty"`
	Publish            *PublishResult    `json:"publish,omitempty"`
	PostPublishMonitor *MonitorReport    `json:"post_publish_monitor,omitempty"`
	MemoryUpdate       *MemoryUpdate     `json:"memory_update,omitempty"`
}

// StrategyMeta records the provenance of a model-drafted proposal.
type StrategyMeta struct {
	Source   string `json:"source"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// Proposal is one validated, fully materialized candidate policy change.
// Values are never mutated in place; stages attach enrichment by producing
// new Proposal values.
type Proposal struct {
	Title        string         `json:"title"`
	Rationale    string         `json:"rationale,omitempty"`
	Confidence   *float64       `json:"confidence"`
	Spec         map[string]any `json:"spec"`
	TemplateID   string         `json:"template_id"`
	BranchID     string         `json:"branch_id"`
	StrategyMeta StrategyMeta   `json:"strategy_meta"`
	Evaluation   *Evaluation    `json:"evaluation,omitempty"`
	Publish      *PublishItem   `json:"publish,omitempty"`
}

// InvalidCandidate records a raw candidate that failed normalization, with
// the violations that rejected it. Every processed raw candidate lands in
// exactly one of Proposals or ValidationIssues.
type InvalidCandidate struct {
	TemplateID string              `json:"template_id,omitempty"`
	BranchID   string              `json:"branch_id,omitempty"`
	Title      string              `json:"title,omitempty"`
	Reason     string              `json:"reason"`
	Violations []catalog.Violation `json:"violations,omitempty"`
}

// Range is an inclusive expected-outcome interval supplied by the evaluator.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Evaluation is the per-proposal verdict from the external evaluator. When
// the evaluator call fails, a synthetic blocked evaluation is substituted so
// the turn never aborts.
type Evaluation struct {
	Blocked       bool     `json:"blocked"`
	Score         *float64 `json:"score"`
	ReasonCodes   []string `json:"reason_codes,omitempty"`
	RiskFlags     []string `json:"risk_flags,omitempty"`
	ExpectedRange *Range   `json:"expected_range"`
	SelectedCount int      `json:"selected_count"`
	RejectedCount int      `json:"rejected_count"`
	EstimatedCost float64  `json:"estimated_cost"`
	DecisionID    string   `json:"decision_id,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// EvaluationReport summarizes the evaluator call itself.
type EvaluationReport struct {
	Source string `json:"source"`
	UserID string `json:"user_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ExplainItem is one rank-ordered, display-ready evaluation summary.
type ExplainItem struct {
	Rank        int      `json:"rank"`
	Title       string   `json:"title"`
	TemplateID  string   `json:"template_id"`
	BranchID    string   `json:"branch_id"`
	RankScore   float64  `json:"rank_score"`
	Blocked     bool     `json:"blocked"`
	Score       *float64 `json:"score"`
	Confidence  *float64 `json:"confidence"`
	ReasonCodes []string `json:"reason_codes,omitempty"`
	RiskFlags   []string `json:"risk_flags,omitempty"`
}

// RankingReport carries the explain pack for the ranked proposal set.
type RankingReport struct {
	ExplainPack []ExplainItem `json:"explain_pack"`
}

// CriticReport summarizes the critic-revise loop outcome.
type CriticReport struct {
	Ran         bool     `json:"ran"`
	Rounds      int      `json:"rounds"`
	StopReason  string   `json:"stop_reason,omitempty"`
	LastSummary string   `json:"last_summary,omitempty"`
	Issues      []string `json:"issues,omitempty"`
}

// ApprovalDecision is the resolved approval verdict for a publish intent.
type ApprovalDecision struct {
	Required   bool   `json:"required"`
	Approved   bool   `json:"approved"`
	ApprovalID string `json:"approval_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Source     string `json:"source,omitempty"`
}

// PublishItem is the publish outcome for one proposal, matched by index.
type PublishItem struct {
	ProposalIndex int    `json:"proposal_index"`
	OK            bool   `json:"ok"`
	PolicyID      string `json:"policy_id,omitempty"`
	DraftID       string `json:"draft_id,omitempty"`
	PublishID     string `json:"publish_id,omitempty"`
	Error         string `json:"error,omitempty"`
}

// PublishResult is the idempotent publish summary. Missing publishes appear
// as explicit skipped items, never as absence.
type PublishResult struct {
	Source         string        `json:"source"`
	Items          []PublishItem `json:"items"`
	PublishedCount int           `json:"published_count"`
	FailedCount    int           `json:"failed_count"`
}

// MonitorReport summarizes outcomes for published proposals.
type MonitorReport struct {
	Status          string   `json:"status"`
	Source          string   `json:"source,omitempty"`
	Alerts          []string `json:"alerts,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// MemoryFacts holds the five fixed buckets of long-lived conversational
// facts. Buckets are deduplicated, length-capped ordered lists.
type MemoryFacts struct {
	Goals       []string `json:"goals"`
	Constraints []string `json:"constraints"`
	Audience    []string `json:"audience"`
	Timing      []string `json:"timing"`
	Decisions   []string `json:"decisions"`
}

// MemoryUpdate is the per-turn memory extraction result. The session layer
// owns the merged long-term store; this core only computes facts per turn.
type MemoryUpdate struct {
	Facts   MemoryFacts `json:"facts"`
	Summary string      `json:"summary,omitempty"`
	Source  string      `json:"source"`
	Error   string      `json:"error,omitempty"`
}
