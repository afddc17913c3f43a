// Package candidate normalizes raw model-proposed objects into validated,
// policy-patch-applied proposals against the template catalog. Each raw
// candidate independently becomes either a Proposal or an InvalidCandidate;
// a bad candidate never aborts the batch.
package candidate

import (
	"fmt"
	"strings"

	"github.com/policyforge/advisor/pkg/catalog"
	"github.com/policyforge/advisor/pkg/turn"
)

// MaxBatch caps how many raw candidates are processed per turn to bound
// worst-case work.
const MaxBatch = 12

// Overrides are caller-supplied defaults and patches applied on top of each
// model candidate. The override patch always wins on scalar conflict.
type Overrides struct {
	MerchantID string
	TemplateID string
	BranchID   string
	Patch      map[string]any
	Provider   string
	Model      string
}

// Build processes raw candidates in emission order, capped at MaxBatch.
// Output positions preserve the model's emission order, and every processed
// raw candidate appears in exactly one of the two returned slices.
func Build(cat catalog.Catalog, raws []map[string]any, ov Overrides) ([]turn.Proposal, []turn.InvalidCandidate) {
	if len(raws) > MaxBatch {
		raws = raws[:MaxBatch]
	}
	var proposals []turn.Proposal
	var invalid []turn.InvalidCandidate
	for _, raw := range raws {
		p, inv := buildOne(cat, raw, ov)
		if inv != nil {
			invalid = append(invalid, *inv)
			continue
		}
		proposals = append(proposals, *p)
	}
	return proposals, invalid
}

func buildOne(cat catalog.Catalog, raw map[string]any, ov Overrides) (*turn.Proposal, *turn.InvalidCandidate) {
	templateID := stringField(raw, "templateId")
	branchID := stringField(raw, "branchId")
	title := stringField(raw, "title")

	reject := func(reason string, violations []catalog.Violation) *turn.InvalidCandidate {
		return &turn.InvalidCandidate{
			TemplateID: templateID,
			BranchID:   branchID,
			Title:      title,
			Reason:     reason,
			Violations: violations,
		}
	}

	tmpl, err := catalog.ResolveTemplate(cat, templateID, ov.TemplateID)
	if err != nil {
		return nil, reject(err.Error(), nil)
	}
	branch, err := catalog.ResolveBranch(tmpl, branchID, ov.BranchID)
	if err != nil {
		return nil, reject(err.Error(), nil)
	}

	patch := mapField(raw, "patch")
	merged := catalog.MergePatch(patch, ov.Patch)

	if violations := catalog.ValidatePatch(tmpl, merged); len(violations) > 0 {
		return nil, reject("patch failed template validation", violations)
	}

	spec, err := catalog.MaterializeSpec(tmpl, branch, merged)
	if err != nil {
		return nil, reject(err.Error(), nil)
	}

	if title == "" {
		title = fmt.Sprintf("%s - %s - AI", tmpl.Name, branch.Name)
	}

	return &turn.Proposal{
		Title:      title,
		Rationale:  stringField(raw, "rationale"),
		Confidence: clampConfidence(raw["confidence"]),
		Spec:       spec,
		TemplateID: tmpl.ID,
		BranchID:   branch.ID,
		StrategyMeta: turn.StrategyMeta{
			Source:   "AI_MODEL",
			Provider: strings.ToUpper(ov.Provider),
			Model:    ov.Model,
		},
	}, nil
}

// clampConfidence coerces a raw confidence value into [0,1], or nil when the
// value is absent or non-numeric.
func clampConfidence(v any) *float64 {
	var c float64
	switch tv := v.(type) {
	case float64:
		c = tv
	case int:
		c = float64(tv)
	default:
		return nil
	}
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return &c
}

func stringField(raw map[string]any, key string) string {
	if s, ok := raw[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func mapField(raw map[string]any, key string) map[string]any {
	if m, ok := raw[key].(map[string]any); ok {
		return m
	}
	return map[string]any{}
}
