// Package inject builds component instances from declared parameter names,
// named dependencies and per-call arguments.
package inject

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ContainerParam is appended to every constructor's parameters and resolves
// to the container building the instance.
const ContainerParam = "container"

// Resolver looks up registered values by name.
type Resolver interface {
	Resolve(name string) (any, error)
}

// Provider is a lazily evaluated registration. A container calls it at most once.
type Provider func(r Resolver) (any, error)

// ErrUnresolved reports a parameter with no registration.
type ErrUnresolved struct {
	Name string
}

func (e ErrUnresolved) Error() string {
	return fmt.Sprintf("unresolved dependency %q", e.Name)
}

// ErrCycle reports providers that depend on each other.
type ErrCycle struct {
	Path []string
}

func (e ErrCycle) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Path, " -> "))
}

// Container holds the registrations for one construction.
type Container struct {
	mu        sync.Mutex
	values    map[string]any
	resolved  map[string]any
	resolving []string
	disposers []func()
}

// NewContainer returns an empty container.
func NewContainer() *Container {
	return &Container{
		values:   make(map[string]any),
		resolved: make(map[string]any),
	}
}

// Register stores value under name, replacing any earlier registration.
func (c *Container) Register(name string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.values[name] = value
	delete(c.resolved, name)
}

// Resolve returns the value registered under name, evaluating providers on
// first use.
func (c *Container) Resolve(name string) (any, error) {
	if name == ContainerParam {
		return c, nil
	}

	c.mu.Lock()
	if v, ok := c.resolved[name]; ok {
		c.mu.Unlock()
		return v, nil
	}
	value, ok := c.values[name]
	if !ok {
		c.mu.Unlock()
		return nil, ErrUnresolved{Name: name}
	}
	provider, lazy := value.(Provider)
	if !lazy {
		c.mu.Unlock()
		return value, nil
	}
	for _, pending := range c.resolving {
		if pending == name {
			path := append(append([]string{}, c.resolving...), name)
			c.mu.Unlock()
			return nil, ErrCycle{Path: path}
		}
	}
	c.resolving = append(c.resolving, name)
	c.mu.Unlock()

	v, err := provider(c)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolving = c.resolving[:len(c.resolving)-1]
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", name, err)
	}
	c.resolved[name] = v
	return v, nil
}

// Names returns the registered names, sorted.
func (c *Container) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.values))
	for name := range c.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OnDispose schedules fn to run when the container is disposed.
func (c *Container) OnDispose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disposers = append(c.disposers, fn)
}

// Dispose runs the scheduled disposal functions in reverse order. Calling it
// again does nothing.
func (c *Container) Dispose() {
	c.mu.Lock()
	disposers := c.disposers
	c.disposers = nil
	c.mu.Unlock()

	for i := len(disposers) - 1; i >= 0; i-- {
		disposers[i]()
	}
}

// Get resolves name and asserts its type.
func Get[T any](r Resolver, name string) (T, error) {
	var zero T
	v, err := r.Resolve(name)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("dependency %q is %T, not %T", name, v, zero)
	}
	return typed, nil
}
