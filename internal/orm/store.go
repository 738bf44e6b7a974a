// Package orm is a small reload-driven model store on SQLite. Every reload
// materializes whatever its loader strategy returns as a set of collections.
package orm

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/alexisbeaulieu97/bulkhead/internal/activation"
	"github.com/alexisbeaulieu97/bulkhead/internal/bundle"
	"github.com/alexisbeaulieu97/bulkhead/internal/logger"
	"github.com/alexisbeaulieu97/bulkhead/internal/metrics"
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

// Option configures a Store.
type Option func(*Store)

// WithMetrics records reloads on m.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Store) { s.metrics = m }
}

// Store materializes model definitions as SQLite tables.
type Store struct {
	db      *sql.DB
	loaders *activation.LoaderHandle
	logger  *logger.Logger
	metrics *metrics.Collector

	reloadMu sync.Mutex

	mu          sync.RWMutex
	defs        map[string]bundle.Definition
	collections map[string]*Collection
	waiters     []chan error
}

// Open opens the database at dsn. The store starts with no collections
// until the first Reload.
func Open(ctx context.Context, dsn string, log *logger.Logger, opts ...Option) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("store dsn is required")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &Store{
		db:          db,
		logger:      log.Component("store"),
		defs:        make(map[string]bundle.Definition),
		collections: make(map[string]*Collection),
	}
	s.loaders = activation.NewLoaderHandle(s.defaultLoader)
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Define registers a host model definition served by the default loader.
func (s *Store) Define(identity string, def bundle.Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[identity] = maps.Clone(def)
}

// Loaders returns the handle holding the store's loader strategy.
func (s *Store) Loaders() *activation.LoaderHandle {
	return s.loaders
}

// AwaitReloadCompleted returns a channel that receives the outcome of the
// next reload and is then closed.
func (s *Store) AwaitReloadCompleted() <-chan error {
	ch := make(chan error, 1)
	s.mu.Lock()
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()
	return ch
}

// Reload runs the active loader and materializes its result. The previous
// collection set stays in place when anything fails.
func (s *Store) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	collections, err := s.materialize(ctx)

	s.mu.Lock()
	if err == nil {
		s.collections = collections
	}
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	for _, ch := range waiters {
		ch <- err
		close(ch)
	}

	s.metrics.ReloadFinished(err, len(collections))
	if err != nil {
		s.logger.Error(err, "store reload failed")
		return err
	}
	s.logger.WithFields(map[string]any{"models": len(collections)}).Debug("store reloaded")
	return nil
}

// Materialized returns the collection for identity.
func (s *Store) Materialized(identity string) (bundle.Materialized, bool) {
	c, ok := s.Collection(identity)
	if !ok {
		return nil, false
	}
	return c, true
}

// Collection returns the typed collection for identity.
func (s *Store) Collection(identity string) (*Collection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[identity]
	return c, ok
}

// Identities returns the materialized identities, sorted.
func (s *Store) Identities() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.collections))
	for identity := range s.collections {
		out = append(out, identity)
	}
	sort.Strings(out)
	return out
}

func (s *Store) defaultLoader(context.Context) (map[string]bundle.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.defs), nil
}

func (s *Store) materialize(ctx context.Context) (map[string]*Collection, error) {
	defs, err := s.loaders.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load models: %w", err)
	}

	identities := make([]string, 0, len(defs))
	for identity := range defs {
		identities = append(identities, identity)
	}
	sort.Strings(identities)

	out := make(map[string]*Collection, len(defs))
	for _, identity := range identities {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		def := defs[identity]
		sch, err := schemaFor(identity, def)
		if err != nil {
			return nil, err
		}
		if err := migrate(ctx, s.db, sch); err != nil {
			return nil, err
		}

		globalID, _ := def["globalId"].(string)
		if globalID == "" {
			globalID = identity
		}
		out[identity] = &Collection{identity: identity, globalID: globalID, schema: sch, db: s.db}
	}
	return out, nil
}
