// Package host wires bundle sources, merging, namespacing, the registry and
// activation against a model store into one entry point.
package host

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/alexisbeaulieu97/bulkhead/internal/activation"
	"github.com/alexisbeaulieu97/bulkhead/internal/bundle"
	"github.com/alexisbeaulieu97/bulkhead/internal/config"
	"github.com/alexisbeaulieu97/bulkhead/internal/logger"
	"github.com/alexisbeaulieu97/bulkhead/internal/merger"
	"github.com/alexisbeaulieu97/bulkhead/internal/metrics"
	"github.com/alexisbeaulieu97/bulkhead/internal/namespace"
	"github.com/alexisbeaulieu97/bulkhead/internal/orm"
	"github.com/alexisbeaulieu97/bulkhead/internal/plugin"
	"github.com/alexisbeaulieu97/bulkhead/internal/scanner"
	"github.com/alexisbeaulieu97/bulkhead/internal/source"
)

// Options configures a Host. Zero values select defaults.
type Options struct {
	Config *config.Config
	Logger *logger.Logger
	// Subsystem replaces the SQLite store opened from Config.Store.DSN.
	Subsystem activation.Subsystem
	// Registerer receives the host metrics. Nil keeps them private.
	Registerer prometheus.Registerer
	Scanner    scanner.Scanner
}

// Host owns one registry and its activation lifecycle.
type Host struct {
	cfg         *config.Config
	logger      *logger.Logger
	metrics     *metrics.Collector
	registry    *plugin.Registry
	merger      *merger.Merger
	rewriter    *namespace.Rewriter
	resolver    *source.Resolver
	subsystem   activation.Subsystem
	coordinator *activation.Coordinator
	store       *orm.Store

	mu      sync.Mutex
	dirs    map[string]string
	watcher *orm.Watcher
}

// New builds a host. Without a Subsystem the host opens and owns an orm.Store.
func New(ctx context.Context, opts Options) (*Host, error) {
	cfg := opts.Config
	if cfg == nil {
		defaults := config.Default()
		cfg = &defaults
	}

	log := opts.Logger
	if log == nil {
		built, err := logger.New(logger.Options{Level: cfg.Log.Level, HumanReadable: cfg.Log.Human})
		if err != nil {
			return nil, fmt.Errorf("create logger: %w", err)
		}
		log = built
	}

	registryCfg := plugin.DefaultConfig()
	if cfg.Registry.CollisionPolicy != "" {
		policy, err := plugin.ParseCollisionPolicy(cfg.Registry.CollisionPolicy)
		if err != nil {
			return nil, err
		}
		registryCfg.CollisionPolicy = policy
	}

	h := &Host{
		cfg:      cfg,
		logger:   log,
		metrics:  metrics.New(opts.Registerer),
		merger:   merger.New(opts.Scanner, log),
		rewriter: namespace.NewRewriter(log),
		resolver: source.NewResolver(cfg.AppPath, cfg.CacheDir, log),
		dirs:     make(map[string]string),
	}
	h.registry = plugin.NewRegistry(registryCfg, log)

	h.subsystem = opts.Subsystem
	if h.subsystem == nil {
		store, err := orm.Open(ctx, cfg.Store.DSN, log, orm.WithMetrics(h.metrics))
		if err != nil {
			return nil, err
		}
		h.store = store
		h.subsystem = store
	}

	h.coordinator = activation.NewCoordinator(h.registry, h.subsystem,
		activation.WithLogger(log),
		activation.WithMetrics(h.metrics),
	)
	return h, nil
}

// Registry returns the host registry.
func (h *Host) Registry() *plugin.Registry { return h.registry }

// Store returns the store the host opened, or nil when a Subsystem was supplied.
func (h *Host) Store() *orm.Store { return h.store }

// Metrics returns the host metrics.
func (h *Host) Metrics() *metrics.Collector { return h.metrics }

// Coordinator returns the activation coordinator.
func (h *Host) Coordinator() *activation.Coordinator { return h.coordinator }

// Register resolves, merges, namespaces and registers the bundle at
// location. The returned bundle is not activated yet.
func (h *Host) Register(ctx context.Context, location string) (*bundle.Bundle, error) {
	p, err := h.prepare(ctx, location)
	if err != nil {
		return nil, err
	}
	if _, err := h.registry.Register(p.entry.Bundle, p.entry.Shadows); err != nil {
		return nil, err
	}
	h.registered(p)
	return p.entry.Bundle, nil
}

// RegisterAll prepares every location concurrently and registers them in order.
// Nothing is registered when any location fails.
func (h *Host) RegisterAll(ctx context.Context, locations []string) ([]*bundle.Bundle, error) {
	results := make([]prepared, len(locations))

	g, gctx := errgroup.WithContext(ctx)
	for i, location := range locations {
		g.Go(func() error {
			p, err := h.prepare(gctx, location)
			if err != nil {
				return err
			}
			results[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := make([]plugin.Entry, len(results))
	for i, p := range results {
		entries[i] = p.entry
	}
	out, err := h.registry.RegisterBatch(entries)
	if err != nil {
		return nil, err
	}
	for _, p := range results {
		h.registered(p)
	}
	return out, nil
}

// Activate runs the activation handshake.
func (h *Host) Activate(ctx context.Context) error {
	return h.coordinator.Activate(ctx)
}

// Initialize activates every registered bundle and reports the outcome to done.
func (h *Host) Initialize(ctx context.Context, done func(error)) {
	h.coordinator.Initialize(ctx, done)
}

// Lookup returns a registered bundle by location or by name@version reference.
func (h *Host) Lookup(key string) (*bundle.Bundle, error) {
	if strings.Contains(key, plugin.VersionSeparator) && !source.IsRemote(key) {
		return h.registry.Lookup(key)
	}
	return h.registry.Get(key)
}

// Refresh re-merges every registered bundle from its source and activates again.
func (h *Host) Refresh(ctx context.Context) error {
	locations := make([]string, 0, h.registry.Len())
	for _, b := range h.registry.All() {
		locations = append(locations, b.Location)
	}
	if len(locations) == 0 {
		return nil
	}

	if _, err := h.RegisterAll(ctx, locations); err != nil {
		return err
	}
	return h.Activate(ctx)
}

// Watch refreshes the host whenever model definitions of a registered bundle change.
func (h *Host) Watch(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.watcher != nil {
		return errors.New("host is already watching")
	}

	var dirs []string
	for _, dir := range h.dirs {
		models := filepath.Join(dir, merger.APIDir, string(bundle.CategoryModels))
		found, err := modelDirs(models)
		if err != nil {
			return err
		}
		dirs = append(dirs, found...)
	}

	debounce, _ := time.ParseDuration(h.cfg.Watch.Debounce)
	w, err := orm.NewWatcher(dirs, debounce, h.Refresh, h.logger)
	if err != nil {
		return err
	}
	w.Start(ctx)
	h.watcher = w

	h.logger.WithFields(map[string]any{"dirs": len(dirs)}).Info("watching bundle models")
	return nil
}

// Teardown clears the registry and the activation state.
func (h *Host) Teardown() {
	h.stopWatching()
	h.coordinator.Reset()
	h.registry.Teardown()

	h.mu.Lock()
	h.dirs = make(map[string]string)
	h.mu.Unlock()
}

// Close tears the host down and closes the store it owns.
func (h *Host) Close() error {
	h.Teardown()
	if h.store != nil {
		return h.store.Close()
	}
	return nil
}

func (h *Host) stopWatching() {
	h.mu.Lock()
	w := h.watcher
	h.watcher = nil
	h.mu.Unlock()

	if w != nil {
		w.Stop()
	}
}

// modelDirs returns root and every directory below it. The models rule
// flattens subdirectories, so all of them feed the bundle.
func modelDirs(root string) ([]string, error) {
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, nil
	}

	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk model directory %s: %w", root, err)
	}
	return dirs, nil
}

type prepared struct {
	entry plugin.Entry
	dir   string
}

func (h *Host) prepare(ctx context.Context, location string) (prepared, error) {
	ns := namespace.Derive(location)
	if ns == "" {
		return prepared{}, plugin.ErrNotNamespaced{Location: location}
	}

	dir, err := h.resolver.Resolve(ctx, location)
	if err != nil {
		return prepared{}, err
	}

	b := bundle.New(location)
	if err := h.merger.Merge(ctx, dir, b); err != nil {
		h.metrics.MergeFailed()
		return prepared{}, err
	}

	manifest, err := bundle.LoadManifest(dir, ns)
	if err != nil {
		return prepared{}, err
	}
	b.Manifest = manifest

	shadows := h.rewriter.Rewrite(b, ns)
	return prepared{entry: plugin.Entry{Bundle: b, Shadows: shadows}, dir: dir}, nil
}

func (h *Host) registered(p prepared) {
	b := p.entry.Bundle

	h.mu.Lock()
	h.dirs[b.Location] = p.dir
	h.mu.Unlock()

	h.metrics.BundleRegistered(b.Namespace)
	h.logger.WithFields(map[string]any{
		"bundle":    b.Location,
		"namespace": b.Namespace,
		"version":   b.Manifest.Version,
	}).Info("bundle registered")
}
