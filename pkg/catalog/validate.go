package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// ValidatePatch checks every leaf path in the patch against the template's
// field allow-list. A path is allowed when it equals an allow-list entry or
// descends from one. Violations are returned in sorted path order so batch
// output is deterministic.
func ValidatePatch(t Template, patch map[string]any) []Violation {
	if len(patch) == 0 {
		return nil
	}
	var violations []Violation
	walkPatch("", patch, func(path string) {
		if !pathAllowed(t.AllowedPaths, path) {
			violations = append(violations, Violation{
				Path:   path,
				Reason: fmt.Sprintf("field not allowed for template %q", t.ID),
			})
		}
	})
	sort.Slice(violations, func(i, j int) bool { return violations[i].Path < violations[j].Path })
	return violations
}

func walkPatch(prefix string, node map[string]any, visit func(path string)) {
	for key, value := range node {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if child, ok := value.(map[string]any); ok && len(child) > 0 {
			walkPatch(path, child, visit)
			continue
		}
		visit(path)
	}
}

func pathAllowed(allowed []string, path string) bool {
	for _, a := range allowed {
		if path == a || strings.HasPrefix(path, a+".") {
			return true
		}
	}
	return false
}
