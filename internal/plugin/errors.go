package plugin

import (
	"fmt"
)

// ErrBundleNotFound is returned when a lookup matches no registered bundle.
type ErrBundleNotFound struct {
	Reference string
}

func (e ErrBundleNotFound) Error() string {
	return fmt.Sprintf("bundle '%s' not found in registry\nHint: ensure the bundle is registered before lookup", e.Reference)
}

// ErrNamespaceCollision is returned under CollisionStrict when two bundles
// from different locations derive the same namespace.
type ErrNamespaceCollision struct {
	Namespace string
	Existing  string
	Incoming  string
}

func (e ErrNamespaceCollision) Error() string {
	return fmt.Sprintf(
		"namespace '%s' of bundle %s is already claimed by %s\nHint: rename one bundle directory or relax the registry collision policy",
		e.Namespace,
		e.Incoming,
		e.Existing,
	)
}

// ErrNotNamespaced is returned when a bundle reaches the registry without
// having been rewritten.
type ErrNotNamespaced struct {
	Location string
}

func (e ErrNotNamespaced) Error() string {
	return fmt.Sprintf("bundle %s has no namespace\nHint: merge and rewrite the bundle before registering it", e.Location)
}
