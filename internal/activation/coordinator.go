// Package activation coordinates registered bundles with a reload-driven
// materialization subsystem: it feeds every bundle's namespaced models into
// the subsystem's next reload, then splits the materialized pool back into
// per-bundle handles keyed by the original identifiers.
package activation

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alexisbeaulieu97/bulkhead/internal/bundle"
	"github.com/alexisbeaulieu97/bulkhead/internal/logger"
	"github.com/alexisbeaulieu97/bulkhead/internal/metrics"
	"github.com/alexisbeaulieu97/bulkhead/internal/plugin"
	bulkheaderrors "github.com/alexisbeaulieu97/bulkhead/pkg/errors"
)

// Subsystem is the external reload-driven materialization layer.
type Subsystem interface {
	// Loaders returns the handle holding the subsystem's loader strategy.
	Loaders() *LoaderHandle
	// AwaitReloadCompleted arms a single-fire signal. The subsystem sends the
	// outcome of the next completed reload and closes the channel.
	AwaitReloadCompleted() <-chan error
	// Reload asks the subsystem to rematerialize whatever its loader returns.
	Reload(ctx context.Context) error
	// Materialized returns the instance materialized under identity.
	Materialized(identity string) (bundle.Materialized, bool)
}

// Registry is the view of the plugin registry the coordinator needs.
type Registry interface {
	Entries() []plugin.Entry
	Len() int
	Activated() bool
	MarkActivated()
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(log *logger.Logger) Option {
	return func(c *Coordinator) { c.logger = log.Component("activation") }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// Coordinator runs the activation handshake. Calls to Activate are serialized.
type Coordinator struct {
	mu        sync.Mutex
	registry  Registry
	subsystem Subsystem
	state     State
	restore   func()
	logger    *logger.Logger
	metrics   *metrics.Collector
}

// NewCoordinator returns a coordinator in the Idle state.
func NewCoordinator(registry Registry, subsystem Subsystem, opts ...Option) *Coordinator {
	c := &Coordinator{registry: registry, subsystem: subsystem, state: Idle}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current handshake state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Intercepting reports whether the subsystem's loader is currently wrapped.
func (c *Coordinator) Intercepting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restore != nil
}

// Initialize runs Activate and invokes done exactly once with its outcome.
func (c *Coordinator) Initialize(ctx context.Context, done func(error)) {
	err := c.Activate(ctx)
	if done != nil {
		done(err)
	}
}

// Activate exposes every registered bundle's materialized models and
// services under their original identifiers.
//
// When the registry is empty or already activated Activate returns at once
// without touching the subsystem. A subsystem failure leaves the
// coordinator in AwaitingReload with the loader still intercepted; a later
// call reuses that interception.
func (c *Coordinator) Activate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.registry.Activated() || c.registry.Len() == 0 {
		c.state = Done
		c.metrics.ActivationFinished(metrics.ResultSkipped, 0)
		return nil
	}

	start := time.Now()
	log := c.logger.With("activation", uuid.NewString())

	if c.restore == nil {
		c.restore = c.subsystem.Loaders().Install(c.wrap)
		log.Debug("loader intercepted")
	}
	c.state = AwaitingReload

	signal := c.subsystem.AwaitReloadCompleted()
	if err := c.subsystem.Reload(ctx); err != nil {
		return c.fail(log, start, "reload", err)
	}

	select {
	case err := <-signal:
		if err != nil {
			return c.fail(log, start, "load", err)
		}
	case <-ctx.Done():
		return c.fail(log, start, "await", ctx.Err())
	}

	c.state = Reconciling
	entries := c.registry.Entries()
	for _, entry := range entries {
		c.reconcile(log, entry)
	}

	c.restore()
	c.restore = nil
	c.registry.MarkActivated()
	c.state = Done

	c.metrics.ActivationFinished(metrics.ResultActivated, time.Since(start))
	log.WithFields(map[string]any{"bundles": len(entries)}).Info("bundles activated")
	return nil
}

// Reset restores an interception left behind by a failed activation and
// returns the coordinator to Idle.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.restore != nil {
		c.restore()
		c.restore = nil
	}
	c.state = Idle
}

func (c *Coordinator) fail(log *logger.Logger, start time.Time, phase string, err error) error {
	c.metrics.ActivationFinished(metrics.ResultFailed, time.Since(start))
	log.With("phase", phase).Error(err, "activation failed")
	return bulkheaderrors.NewSubsystemError(phase, err)
}

// wrap computes the intercepting strategy: the host's own models plus every
// registered bundle's namespaced models.
func (c *Coordinator) wrap(original Loader) Loader {
	return func(ctx context.Context) (map[string]bundle.Definition, error) {
		combined := make(map[string]bundle.Definition)
		if original != nil {
			host, err := original(ctx)
			if err != nil {
				return nil, err
			}
			maps.Copy(combined, host)
		}

		for _, entry := range c.registry.Entries() {
			for identity, model := range entry.Bundle.ModelDefs {
				combined[identity] = model.Source()
			}
		}
		return combined, nil
	}
}

func (c *Coordinator) reconcile(log *logger.Logger, entry plugin.Entry) {
	b := entry.Bundle

	for _, rewritten := range entry.Shadows.ModelIdentities() {
		instance, ok := c.subsystem.Materialized(rewritten)
		if !ok {
			log.With("model", rewritten).Warn("model was not materialized")
			continue
		}
		original, _ := entry.Shadows.ConsumeModel(rewritten)
		b.Models[original.Identity] = instance
		b.ModelsByGlobalID[original.GlobalID] = instance
	}

	for _, rewritten := range entry.Shadows.ServiceIdentities() {
		svc, ok := b.ServiceDefs[rewritten]
		if !ok {
			continue
		}
		original, _ := entry.Shadows.ConsumeService(rewritten)
		svc.Bundle = b
		b.Services[original.Identity] = svc
	}

	b.MarkActivated()
}
