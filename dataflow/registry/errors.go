package registry

import "fmt"

// ConflictError reports that a datatype was re-registered under the same id
// with a different definition (spec.md §4.1 — this is the one registry
// conflict that is fatal rather than silently ignored).
type ConflictError struct {
	Kind string // "datatype"
	ID   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("registry: %s %q already registered with a different definition", e.Kind, e.ID)
}

// NotFoundError reports a lookup miss against one of the registries.
type NotFoundError struct {
	Kind string // "module", "datatype", "instrument"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("registry: %s %q not found", e.Kind, e.ID)
}
