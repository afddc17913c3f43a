package catalog

import "fmt"

// ResolveTemplate picks the template for a candidate: the candidate's own id
// first, then the caller default, then the catalog's first entry.
func ResolveTemplate(c Catalog, candidateID, defaultID string) (Template, error) {
	if candidateID != "" {
		if t, ok := c.Template(candidateID); ok {
			return t, nil
		}
		return Template{}, fmt.Errorf("%w: %q", ErrTemplateNotFound, candidateID)
	}
	if defaultID != "" {
		if t, ok := c.Template(defaultID); ok {
			return t, nil
		}
		return Template{}, fmt.Errorf("%w: %q", ErrTemplateNotFound, defaultID)
	}
	all := c.Templates()
	if len(all) == 0 {
		return Template{}, ErrNoTemplates
	}
	return all[0], nil
}

// ResolveBranch picks the branch for a candidate: the candidate's own id, the
// caller default, the template's declared default, then the first branch.
func ResolveBranch(t Template, candidateID, defaultID string) (Branch, error) {
	lookup := func(id string) (Branch, bool) {
		for _, b := range t.Branches {
			if b.ID == id {
				return b, true
			}
		}
		return Branch{}, false
	}
	for _, id := range []string{candidateID, defaultID, t.DefaultBranch} {
		if id == "" {
			continue
		}
		if b, ok := lookup(id); ok {
			return b, nil
		}
		if id == candidateID {
			return Branch{}, fmt.Errorf("%w: %q in template %q", ErrBranchNotFound, id, t.ID)
		}
	}
	if len(t.Branches) == 0 {
		return Branch{}, fmt.Errorf("%w: template %q has no branches", ErrBranchNotFound, t.ID)
	}
	return t.Branches[0], nil
}
