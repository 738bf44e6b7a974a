package inject

import "maps"

// Constructor declares the parameter names a component is built from.
type Constructor[T any] struct {
	Params []string
	New    func(r Resolver) (T, error)
}

// Overrides is a trailing argument whose entries are registered after every
// other value, whatever the argument count.
type Overrides map[string]any

// BindOption configures a Factory.
type BindOption[T any] func(*Factory[T])

// WithDispose attaches a disposal function to every instance the factory builds.
func WithDispose[T any](dispose func(T)) BindOption[T] {
	return func(f *Factory[T]) { f.dispose = dispose }
}

// Factory builds instances of T.
type Factory[T any] struct {
	ctor    Constructor[T]
	params  []string
	deps    map[string]any
	dispose func(T)
}

// Bind returns a factory for ctor. deps are registered before any call argument.
func Bind[T any](ctor Constructor[T], deps map[string]any, opts ...BindOption[T]) *Factory[T] {
	params := make([]string, 0, len(ctor.Params)+1)
	params = append(params, ctor.Params...)
	params = append(params, ContainerParam)

	f := &Factory[T]{
		ctor:   ctor,
		params: params,
		deps:   maps.Clone(deps),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Params returns the declared parameters followed by ContainerParam.
func (f *Factory[T]) Params() []string {
	return append([]string(nil), f.params...)
}

// New builds an instance in a fresh container.
//
// Positional args replace the registration of the parameter at the same
// position. A trailing Overrides argument, or a trailing map[string]any when
// exactly one more argument than declared parameters is passed, is registered
// last.
func (f *Factory[T]) New(args ...any) (T, error) {
	instance, _, err := f.Build(args...)
	return instance, err
}

// Build is New that also returns the container, whose Dispose releases the instance.
func (f *Factory[T]) Build(args ...any) (T, *Container, error) {
	var zero T
	c := NewContainer()

	for name, value := range f.deps {
		c.Register(name, value)
	}

	positional, overrides := splitOverrides(args, len(f.ctor.Params))
	for i, arg := range positional {
		if i >= len(f.ctor.Params) {
			break
		}
		c.Register(f.ctor.Params[i], arg)
	}
	for name, value := range overrides {
		c.Register(name, value)
	}

	for _, name := range f.ctor.Params {
		if _, err := c.Resolve(name); err != nil {
			return zero, c, err
		}
	}

	instance, err := f.ctor.New(c)
	if err != nil {
		return zero, c, err
	}
	if f.dispose != nil {
		dispose := f.dispose
		c.OnDispose(func() { dispose(instance) })
	}
	return instance, c, nil
}

func splitOverrides(args []any, declared int) ([]any, map[string]any) {
	if len(args) == 0 {
		return args, nil
	}
	last := args[len(args)-1]
	if o, ok := last.(Overrides); ok {
		return args[:len(args)-1], o
	}
	if len(args) == declared+1 {
		if o, ok := last.(map[string]any); ok {
			return args[:len(args)-1], o
		}
	}
	return args, nil
}
