package catalog

// MergePatch deep-merges override into base and returns a new document.
// Maps merge recursively; scalars and lists in override replace the base
// value. Neither input is mutated.
func MergePatch(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = deepCopyValue(v)
	}
	for k, v := range override {
		existing, ok := out[k]
		if !ok {
			out[k] = deepCopyValue(v)
			continue
		}
		existingMap, existingIsMap := existing.(map[string]any)
		overrideMap, overrideIsMap := v.(map[string]any)
		if existingIsMap && overrideIsMap {
			out[k] = MergePatch(existingMap, overrideMap)
			continue
		}
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, item := range tv {
			out[k] = deepCopyValue(item)
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, item := range tv {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}
