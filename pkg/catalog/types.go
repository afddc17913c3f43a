// Package catalog models the policy template catalog the drafting pipeline
// validates candidates against: template/branch lookup, patch deep-merge,
// allow-list validation, and final specification materialization.
package catalog

import "errors"

var (
	// ErrNoTemplates is returned when resolution runs against an empty catalog.
	ErrNoTemplates = errors.New("catalog has no templates")

	// ErrTemplateNotFound is returned when a requested template id is unknown.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrBranchNotFound is returned when a requested branch id is unknown and
	// the template declares no usable fallback.
	ErrBranchNotFound = errors.New("branch not found")
)

// Violation records a single patch field that failed allow-list validation.
type Violation struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Branch is one variant of a template with its own default values.
type Branch struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Defaults map[string]any `json:"defaults,omitempty"`
}

// Template is a baseline policy specification plus the set of fields a
// model-proposed patch is allowed to touch.
type Template struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	DefaultBranch string         `json:"default_branch,omitempty"`
	Branches      []Branch       `json:"branches"`
	AllowedPaths  []string       `json:"allowed_paths"`
	Base          map[string]any `json:"base"`
}

// Catalog is the template lookup boundary. Implementations must be safe for
// concurrent readers; the pipeline never writes through this interface.
type Catalog interface {
	Templates() []Template
	Template(id string) (Template, bool)
}
