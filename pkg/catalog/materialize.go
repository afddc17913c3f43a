package catalog

import "fmt"

// MaterializeSpec builds the final policy specification for a candidate:
// template baseline, overlaid with branch defaults, overlaid with the merged
// patch. The template must carry a baseline document.
func MaterializeSpec(t Template, b Branch, patch map[string]any) (map[string]any, error) {
	if len(t.Base) == 0 {
		return nil, fmt.Errorf("template %q has no baseline specification", t.ID)
	}
	spec := MergePatch(t.Base, b.Defaults)
	spec = MergePatch(spec, patch)
	spec["template_id"] = t.ID
	spec["branch_id"] = b.ID
	return spec, nil
}
