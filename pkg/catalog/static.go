package catalog

// Static is an in-memory Catalog. It backs tests and the CLI so the pipeline
// runs without an external catalog service.
type Static struct {
	templates []Template
	index     map[string]Template
}

// NewStatic builds a Static catalog preserving template order.
func NewStatic(templates ...Template) *Static {
	index := make(map[string]Template, len(templates))
	for _, t := range templates {
		index[t.ID] = t
	}
	return &Static{templates: templates, index: index}
}

func (s *Static) Templates() []Template {
	out := make([]Template, len(s.templates))
	copy(out, s.templates)
	return out
}

func (s *Static) Template(id string) (Template, bool) {
	t, ok := s.index[id]
	return t, ok
}

// DefaultTemplates seeds a catalog with the built-in merchant policy
// templates used when no external catalog is wired in.
func DefaultTemplates() []Template {
	return []Template{
		{
			ID:            "discount-campaign",
			Name:          "Discount Campaign",
			DefaultBranch: "percentage",
			Branches: []Branch{
				{ID: "percentage", Name: "Percentage Off", Defaults: map[string]any{
					"discount": map[string]any{"kind": "percentage", "value": 10.0},
				}},
				{ID: "fixed", Name: "Fixed Amount Off", Defaults: map[string]any{
					"discount": map[string]any{"kind": "fixed", "value": 5.0},
				}},
			},
			AllowedPaths: []string{"discount.value", "discount.max_uses", "audience", "schedule"},
			Base: map[string]any{
				"kind":     "discount",
				"discount": map[string]any{"kind": "percentage", "value": 0.0},
				"audience": map[string]any{"segment": "all"},
				"schedule": map[string]any{"start": "", "end": ""},
			},
		},
		{
			ID:            "loyalty-boost",
			Name:          "Loyalty Boost",
			DefaultBranch: "points-multiplier",
			Branches: []Branch{
				{ID: "points-multiplier", Name: "Points Multiplier", Defaults: map[string]any{
					"multiplier": 2.0,
				}},
			},
			AllowedPaths: []string{"multiplier", "audience", "schedule", "budget.cap"},
			Base: map[string]any{
				"kind":       "loyalty",
				"multiplier": 1.0,
				"audience":   map[string]any{"segment": "members"},
				"schedule":   map[string]any{"start": "", "end": ""},
				"budget":     map[string]any{"cap": 0.0},
			},
		},
	}
}
