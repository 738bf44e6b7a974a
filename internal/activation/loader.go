package activation

import (
	"context"
	"sync"

	"github.com/alexisbeaulieu97/bulkhead/internal/bundle"
)

// Loader returns the model definitions the subsystem should materialize,
// keyed by identity.
type Loader func(ctx context.Context) (map[string]bundle.Definition, error)

// LoaderHandle holds the loader strategy a subsystem uses on reload. The
// subsystem owns the handle; the coordinator swaps strategies through it
// instead of replacing a shared function.
type LoaderHandle struct {
	mu      sync.Mutex
	current Loader
}

// NewLoaderHandle returns a handle whose strategy is base.
func NewLoaderHandle(base Loader) *LoaderHandle {
	return &LoaderHandle{current: base}
}

// Load runs the current strategy.
func (h *LoaderHandle) Load(ctx context.Context) (map[string]bundle.Definition, error) {
	h.mu.Lock()
	current := h.current
	h.mu.Unlock()

	if current == nil {
		return map[string]bundle.Definition{}, nil
	}
	return current(ctx)
}

// Install replaces the current strategy with wrap(current) and returns a
// function restoring the previous strategy. The restore function is
// idempotent.
func (h *LoaderHandle) Install(wrap func(Loader) Loader) (restore func()) {
	h.mu.Lock()
	previous := h.current
	h.current = wrap(previous)
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			h.current = previous
			h.mu.Unlock()
		})
	}
}
