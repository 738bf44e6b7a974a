package plugin

import (
	"fmt"
	"sync"

	"github.com/alexisbeaulieu97/bulkhead/internal/bundle"
	"github.com/alexisbeaulieu97/bulkhead/internal/logger"
	"github.com/alexisbeaulieu97/bulkhead/internal/namespace"
)

// Entry is a registered bundle together with the side table of its original
// identifiers.
type Entry struct {
	Bundle  *bundle.Bundle
	Shadows *namespace.Shadows
}

// Registry maps bundle locations to merged, namespaced bundles. It also owns
// the activation flag: any registration clears it.
type Registry struct {
	mu        sync.RWMutex
	entries   map[string]Entry
	order     []string
	activated bool
	logger    *logger.Logger
	config    *RegistryConfig
}

// NewRegistry returns a new registry instance.
func NewRegistry(config *RegistryConfig, log *logger.Logger) *Registry {
	if config == nil {
		config = DefaultConfig()
	}

	return &Registry{
		entries: make(map[string]Entry),
		logger:  log.Component("registry"),
		config:  config,
	}
}

// Register stores b under its location. Registering the same location again
// replaces the previous bundle and keeps its position. Either way the
// activation flag is cleared.
func (r *Registry) Register(b *bundle.Bundle, shadows *namespace.Shadows) (*bundle.Bundle, error) {
	if b == nil {
		return nil, fmt.Errorf("bundle is nil")
	}
	if b.Namespace == "" {
		return nil, ErrNotNamespaced{Location: b.Location}
	}
	if shadows == nil {
		shadows = namespace.NewShadows()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkCollision(b, r.registeredLocked()); err != nil {
		return nil, err
	}
	r.storeLocked(Entry{Bundle: b, Shadows: shadows})
	return b, nil
}

// RegisterBatch registers every entry in order, or none of them. Collisions
// are checked against the registry and against earlier entries of the batch
// before anything is stored.
func (r *Registry) RegisterBatch(entries []Entry) ([]*bundle.Bundle, error) {
	for i := range entries {
		if entries[i].Bundle == nil {
			return nil, fmt.Errorf("bundle is nil")
		}
		if entries[i].Bundle.Namespace == "" {
			return nil, ErrNotNamespaced{Location: entries[i].Bundle.Location}
		}
		if entries[i].Shadows == nil {
			entries[i].Shadows = namespace.NewShadows()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	claimed := r.registeredLocked()
	for _, e := range entries {
		if err := r.checkCollision(e.Bundle, claimed); err != nil {
			return nil, err
		}
		claimed = append(claimed, e.Bundle)
	}

	out := make([]*bundle.Bundle, 0, len(entries))
	for _, e := range entries {
		r.storeLocked(e)
		out = append(out, e.Bundle)
	}
	return out, nil
}

func (r *Registry) registeredLocked() []*bundle.Bundle {
	out := make([]*bundle.Bundle, 0, len(r.order))
	for _, location := range r.order {
		out = append(out, r.entries[location].Bundle)
	}
	return out
}

func (r *Registry) storeLocked(e Entry) {
	if _, exists := r.entries[e.Bundle.Location]; !exists {
		r.order = append(r.order, e.Bundle.Location)
	} else {
		r.logDebug(fmt.Sprintf("bundle %s re-registered, replacing previous entry", e.Bundle.Location))
	}
	r.entries[e.Bundle.Location] = e
	r.activated = false
}

// All returns the registered bundles in registration order.
func (r *Registry) All() []*bundle.Bundle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.registeredLocked()
}

// Entries returns the registered entries in registration order.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.order))
	for _, location := range r.order {
		out = append(out, r.entries[location])
	}
	return out
}

// Get retrieves a bundle by location.
func (r *Registry) Get(location string) (*bundle.Bundle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[location]
	if !ok {
		return nil, ErrBundleNotFound{Reference: location}
	}
	return entry.Bundle, nil
}

// Lookup resolves a manual name@version reference. The reference is
// validated before the registry is consulted. When several registered
// versions satisfy a constraint the highest wins.
func (r *Registry) Lookup(ref string) (*bundle.Bundle, error) {
	parsed, err := ParseReference(ref)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *bundle.Bundle
	for _, location := range r.order {
		b := r.entries[location].Bundle
		if b.Manifest.Name != parsed.Name || !parsed.Matches(b.Manifest.Version) {
			continue
		}
		if best == nil || newer(b.Manifest.Version, best.Manifest.Version) {
			best = b
		}
	}
	if best == nil {
		return nil, ErrBundleNotFound{Reference: parsed.String()}
	}
	return best, nil
}

// Len returns the number of registered bundles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Activated reports whether activation has completed since the last
// registration or teardown.
func (r *Registry) Activated() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activated
}

// MarkActivated records a completed activation.
func (r *Registry) MarkActivated() {
	r.mu.Lock()
	r.activated = true
	r.mu.Unlock()
}

// Teardown clears every entry and the activation flag.
func (r *Registry) Teardown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[string]Entry)
	r.order = nil
	r.activated = false
}

func (r *Registry) checkCollision(b *bundle.Bundle, claimed []*bundle.Bundle) error {
	if r.config.CollisionPolicy == CollisionOff {
		return nil
	}

	for _, existing := range claimed {
		if existing.Location == b.Location || existing.Namespace != b.Namespace {
			continue
		}

		err := ErrNamespaceCollision{Namespace: b.Namespace, Existing: existing.Location, Incoming: b.Location}
		if r.config.CollisionPolicy == CollisionStrict {
			return err
		}
		r.logWarn(err.Error())
		return nil
	}
	return nil
}

func (r *Registry) logWarn(msg string) {
	if r.logger == nil {
		return
	}
	r.logger.Warn(msg)
}

func (r *Registry) logDebug(msg string) {
	if r.logger == nil {
		return
	}
	r.logger.Debug(msg)
}
