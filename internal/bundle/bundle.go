// Package bundle defines the unit of composition: a set of component
// definitions contributed by one source location, plus the typed model and
// service definitions the namespace rewriter and activation work on.
package bundle

import (
	"sort"
	"sync"
)

// Category is one of the fixed kinds of component definitions a bundle may contribute.
type Category string

const (
	CategoryConfig      Category = "config"
	CategoryControllers Category = "controllers"
	CategoryPolicies    Category = "policies"
	CategoryServices    Category = "services"
	CategoryAdapters    Category = "adapters"
	CategoryModels      Category = "models"
	CategoryHooks       Category = "hooks"
	CategoryBlueprints  Category = "blueprints"
	CategoryResponses   Category = "responses"
)

// Categories lists every category in merge order.
var Categories = []Category{
	CategoryConfig,
	CategoryControllers,
	CategoryPolicies,
	CategoryServices,
	CategoryAdapters,
	CategoryModels,
	CategoryHooks,
	CategoryBlueprints,
	CategoryResponses,
}

// Definition is a decoded definition file.
type Definition map[string]any

// Materialized is a model instance produced by the materialization subsystem.
type Materialized interface {
	Identity() string
}

// Bundle holds everything one source location contributes to the host.
//
// The category maps and definitions are populated by the merger and rewritten
// in place by the namespace rewriter before registration. Models, ModelsByGlobalID
// and Services are only populated by activation and are keyed by the
// pre-rewrite identifiers.
type Bundle struct {
	Location  string
	Namespace string
	Manifest  Manifest

	Config     map[string]any
	categories map[Category]map[string]Definition

	ModelDefs   map[string]*ModelDefinition
	ServiceDefs map[string]*ServiceDefinition

	Models           map[string]Materialized
	ModelsByGlobalID map[string]Materialized
	Services         map[string]*ServiceDefinition

	mu        sync.RWMutex
	activated bool
}

// New returns an empty bundle for the given source location.
func New(location string) *Bundle {
	return &Bundle{
		Location:         location,
		Config:           make(map[string]any),
		categories:       make(map[Category]map[string]Definition),
		ModelDefs:        make(map[string]*ModelDefinition),
		ServiceDefs:      make(map[string]*ServiceDefinition),
		Models:           make(map[string]Materialized),
		ModelsByGlobalID: make(map[string]Materialized),
		Services:         make(map[string]*ServiceDefinition),
	}
}

// Merge shallow-merges entries into the named category. Later entries win.
func (b *Bundle) Merge(category Category, entries map[string]Definition) {
	if len(entries) == 0 {
		return
	}
	target := b.categories[category]
	if target == nil {
		target = make(map[string]Definition, len(entries))
		b.categories[category] = target
	}
	for key, def := range entries {
		target[key] = def
	}
}

// Category returns the raw definitions merged for a category. The returned map
// is owned by the bundle.
func (b *Bundle) Category(category Category) map[string]Definition {
	return b.categories[category]
}

// Keys returns the sorted keys of a category.
func (b *Bundle) Keys(category Category) []string {
	entries := b.categories[category]
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Activated reports whether activation has exposed this bundle's handles.
func (b *Bundle) Activated() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.activated
}

// MarkActivated flags the bundle as reconciled.
func (b *Bundle) MarkActivated() {
	b.mu.Lock()
	b.activated = true
	b.mu.Unlock()
}
