package critic

// Bounded structured-output schemas for the two critic-loop model calls.

const (
	maxIssues        = 8
	maxFocus         = 6
	maxReviseBatch   = 12
	criticSchemaName = "critic_output"
	reviseSchemaName = "revise_output"
)

var criticOutputSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"needRevision": map[string]any{"type": "boolean"},
		"summary":      map[string]any{"type": "string"},
		"issues": map[string]any{
			"type":     "array",
			"items":    map[string]any{"type": "string"},
			"maxItems": maxIssues,
		},
		"focus": map[string]any{
			"type":     "array",
			"items":    map[string]any{"type": "string"},
			"maxItems": maxFocus,
		},
	},
	"required":             []string{"needRevision", "summary"},
	"additionalProperties": false,
}

var reviseOutputSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"assistantMessage": map[string]any{"type": "string"},
		"proposals": map[string]any{
			"type":     "array",
			"minItems": 1,
			"maxItems": maxReviseBatch,
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"templateId": map[string]any{"type": "string"},
					"branchId":   map[string]any{"type": "string"},
					"title":      map[string]any{"type": "string"},
					"rationale":  map[string]any{"type": "string"},
					"confidence": map[string]any{"type": "number"},
					"patch":      map[string]any{"type": "object"},
				},
				"required": []string{"patch"},
			},
		},
	},
	"required":             []string{"proposals"},
	"additionalProperties": false,
}
