package monitor

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"github.com/policyforge/advisor/pkg/textutil"
	"github.com/policyforge/advisor/pkg/turn"
)

// Memory update source tags.
const (
	MemorySourceLocal     = "LOCAL"
	MemorySourceTool      = "MEMORY_TOOL"
	MemorySourceToolError = "MEMORY_ERROR"
)

// DefaultFactsPerBucket caps each memory bucket when the caller does not
// supply a limit.
const DefaultFactsPerBucket = 8

// MemoryRequest carries the computed facts to the external memory updater.
type MemoryRequest struct {
	MerchantID string
	SessionID  string
	Facts      turn.MemoryFacts
	Summary    string
}

// MemoryUpdater is the optional long-term memory collaborator. The session
// layer owns the merged store; this core only computes per-turn facts.
type MemoryUpdater interface {
	UpdateStrategyMemory(ctx context.Context, req MemoryRequest) (*turn.MemoryUpdate, error)
}

// Intent heuristics over the user's free text, in both script directions:
// Latin keywords plus Arabic and Hebrew equivalents.
var (
	goalPattern = regexp.MustCompile(`(?i)\b(increase|grow|boost|improve|maximi[sz]e|revenue|sales|conversion|retention|aov)\b|زيادة|نمو|المبيعات|להגדיל|צמיחה|מכירות`)

	constraintPattern = regexp.MustCompile(`(?i)\b(must not|avoid|never|cap|limit|budget|compliance|no more than|at most)\b|تجنب|حد أقصى|ميزانية|להימנע|תקציב|מקסימום`)

	audiencePattern = regexp.MustCompile(`(?i)\b(customers?|vip|members?|subscribers?|new users?|segment|audience|loyal|returning)\b|العملاء|الجمهور|לקוחות|קהל`)

	timingPattern = regexp.MustCompile(`(?i)\b(today|tonight|tomorrow|this week(end)?|next week|by (mon|tues|wednes|thurs|fri|satur|sun)day|q[1-4]|\d+\s*(hours?|days?|weeks?)|asap|urgent|immediately)\b|عاجل|فوراً|اليوم|غداً|דחוף|מיד|היום|מחר`)

	riskAversePattern = regexp.MustCompile(`(?i)\b(careful|cautious|safe|low.risk|conservative)\b|حذر|آمن|זהיר|בטוח`)
	riskSeekingPattern = regexp.MustCompile(`(?i)\b(aggressive|bold|high.risk|experiment)\b|جريء|مغامرة|נועז|ניסוי`)
)

// ExtractFacts derives the five-bucket memory facts for one turn from the
// user's message, the turn outcome, and any monitor recommendations. Buckets
// are deduplicated case-insensitively and capped at maxPerBucket.
func ExtractFacts(t *turn.Turn, userMessage string, maxPerBucket int) turn.MemoryFacts {
	if maxPerBucket <= 0 {
		maxPerBucket = DefaultFactsPerBucket
	}
	facts := turn.MemoryFacts{}
	message := textutil.CollapseWhitespace(userMessage)

	if m := goalPattern.FindString(message); m != "" {
		facts.Goals = append(facts.Goals, "merchant goal mentions: "+strings.ToLower(m))
	}
	if m := constraintPattern.FindString(message); m != "" {
		facts.Constraints = append(facts.Constraints, "stated constraint: "+strings.ToLower(m))
	}
	if riskAversePattern.MatchString(message) {
		facts.Constraints = append(facts.Constraints, "risk preference: cautious")
	}
	if riskSeekingPattern.MatchString(message) {
		facts.Constraints = append(facts.Constraints, "risk preference: aggressive")
	}
	if m := audiencePattern.FindString(message); m != "" {
		facts.Audience = append(facts.Audience, "audience mentioned: "+strings.ToLower(m))
	}
	if m := timingPattern.FindString(message); m != "" {
		facts.Timing = append(facts.Timing, "time window: "+strings.ToLower(m))
	}

	facts.Decisions = append(facts.Decisions, "turn outcome: "+string(t.Status))
	if t.Proposal != nil {
		facts.Decisions = append(facts.Decisions,
			fmt.Sprintf("top proposal used template %s branch %s", t.Proposal.TemplateID, t.Proposal.BranchID))
	}
	if report := t.Protocol.PostPublishMonitor; report != nil {
		for _, rec := range report.Recommendations {
			facts.Decisions = append(facts.Decisions, "monitor recommendation: "+rec)
		}
	}

	return capFacts(facts, maxPerBucket)
}

// MergeFacts appends add onto base preserving base order, deduplicating
// case-insensitively, capping each bucket. Memory is append-only: base
// entries are never dropped in favor of new ones.
func MergeFacts(base, add turn.MemoryFacts, maxPerBucket int) turn.MemoryFacts {
	if maxPerBucket <= 0 {
		maxPerBucket = DefaultFactsPerBucket
	}
	return turn.MemoryFacts{
		Goals:       dedupeFold(append(append([]string{}, base.Goals...), add.Goals...), maxPerBucket),
		Constraints: dedupeFold(append(append([]string{}, base.Constraints...), add.Constraints...), maxPerBucket),
		Audience:    dedupeFold(append(append([]string{}, base.Audience...), add.Audience...), maxPerBucket),
		Timing:      dedupeFold(append(append([]string{}, base.Timing...), add.Timing...), maxPerBucket),
		Decisions:   dedupeFold(append(append([]string{}, base.Decisions...), add.Decisions...), maxPerBucket),
	}
}

// UpdateMemory computes facts and a short summary, then hands them to the
// optional memory updater. Updater failure degrades to a local result.
func UpdateMemory(ctx context.Context, updater MemoryUpdater, in *turn.Turn, userMessage, merchantID, sessionID string, maxPerBucket int) *turn.Turn {
	out := *in
	t := &out

	facts := ExtractFacts(t, userMessage, maxPerBucket)
	summary := turnSummary(t)

	if updater == nil {
		t.Protocol.MemoryUpdate = &turn.MemoryUpdate{Facts: facts, Summary: summary, Source: MemorySourceLocal}
		return t
	}

	result, err := updater.UpdateStrategyMemory(ctx, MemoryRequest{
		MerchantID: merchantID,
		SessionID:  sessionID,
		Facts:      facts,
		Summary:    summary,
	})
	if err != nil {
		t.Protocol.MemoryUpdate = &turn.MemoryUpdate{
			Facts:   facts,
			Summary: summary,
			Source:  MemorySourceToolError,
			Error:   textutil.SummarizeError(err, 240),
		}
		return t
	}
	if result == nil {
		// An updater that answers with nothing is treated as absent.
		t.Protocol.MemoryUpdate = &turn.MemoryUpdate{Facts: facts, Summary: summary, Source: MemorySourceLocal}
		return t
	}
	attached := *result
	if attached.Source == "" {
		attached.Source = MemorySourceTool
	}
	if factsEmpty(attached.Facts) {
		attached.Facts = facts
	}
	t.Protocol.MemoryUpdate = &attached
	return t
}

func turnSummary(t *turn.Turn) string {
	published := 0
	if t.Protocol.Publish != nil {
		published = t.Protocol.Publish.PublishedCount
	}
	return fmt.Sprintf("status=%s proposals=%d published=%d", t.Status, len(t.Proposals), published)
}

func capFacts(f turn.MemoryFacts, maxPerBucket int) turn.MemoryFacts {
	return turn.MemoryFacts{
		Goals:       dedupeFold(f.Goals, maxPerBucket),
		Constraints: dedupeFold(f.Constraints, maxPerBucket),
		Audience:    dedupeFold(f.Audience, maxPerBucket),
		Timing:      dedupeFold(f.Timing, maxPerBucket),
		Decisions:   dedupeFold(f.Decisions, maxPerBucket),
	}
}

func factsEmpty(f turn.MemoryFacts) bool {
	return len(f.Goals)+len(f.Constraints)+len(f.Audience)+len(f.Timing)+len(f.Decisions) == 0
}

// dedupeFold removes case-insensitive duplicates (Unicode case folding, so
// non-Latin scripts dedupe correctly) preserving first occurrence, capped at
// limit. A fresh caser per call: cases.Caser is stateful and not safe for
// concurrent use.
func dedupeFold(items []string, limit int) []string {
	foldCaser := cases.Fold()
	seen := make(map[string]struct{}, len(items))
	var out []string
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key := foldCaser.String(item)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
		if len(out) == limit {
			break
		}
	}
	return out
}
