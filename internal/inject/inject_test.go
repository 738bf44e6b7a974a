package inject

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type pair struct {
	a, b      int
	container Resolver
}

func pairConstructor() Constructor[*pair] {
	return Constructor[*pair]{
		Params: []string{"a", "b"},
		New: func(r Resolver) (*pair, error) {
			a, err := Get[int](r, "a")
			if err != nil {
				return nil, err
			}
			b, err := Get[int](r, "b")
			if err != nil {
				return nil, err
			}
			c, err := Get[*Container](r, ContainerParam)
			if err != nil {
				return nil, err
			}
			return &pair{a: a, b: b, container: c}, nil
		},
	}
}

func TestFactoryPositionalArguments(t *testing.T) {
	t.Parallel()

	p, err := Bind(pairConstructor(), nil).New(7, 8)
	require.NoError(t, err)
	require.Equal(t, 7, p.a)
	require.Equal(t, 8, p.b)
}

func TestFactoryTrailingOverrides(t *testing.T) {
	t.Parallel()

	factory := Bind(pairConstructor(), map[string]any{"b": 1})

	p, err := factory.New(7, Overrides{"b": 9})
	require.NoError(t, err)
	require.Equal(t, 7, p.a)
	require.Equal(t, 9, p.b)

	// A plain map counts as overrides only one past the declared parameters.
	p, err = factory.New(7, 8, map[string]any{"b": 10})
	require.NoError(t, err)
	require.Equal(t, 10, p.b)
}

func TestFactoryPrecedence(t *testing.T) {
	t.Parallel()

	factory := Bind(pairConstructor(), map[string]any{"a": 1, "b": 2})

	p, err := factory.New()
	require.NoError(t, err)
	require.Equal(t, 1, p.a)
	require.Equal(t, 2, p.b)

	p, err = factory.New(5)
	require.NoError(t, err)
	require.Equal(t, 5, p.a)
	require.Equal(t, 2, p.b)

	p, err = factory.New(5, 6, Overrides{"a": 11})
	require.NoError(t, err)
	require.Equal(t, 11, p.a)
	require.Equal(t, 6, p.b)
}

func TestFactoryUsesFreshContainerPerCall(t *testing.T) {
	t.Parallel()

	calls := 0
	factory := Bind(pairConstructor(), map[string]any{
		"a": Provider(func(Resolver) (any, error) {
			calls++
			return calls, nil
		}),
		"b": 0,
	})

	first, err := factory.New()
	require.NoError(t, err)
	second, err := factory.New()
	require.NoError(t, err)

	require.Equal(t, 1, first.a)
	require.Equal(t, 2, second.a)
	require.NotSame(t, first.container, second.container)
}

func TestFactoryUnresolvedParameter(t *testing.T) {
	t.Parallel()

	_, err := Bind(pairConstructor(), nil).New(7)

	var unresolved ErrUnresolved
	require.ErrorAs(t, err, &unresolved)
	require.Equal(t, "b", unresolved.Name)
}

func TestFactoryConstructorError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	factory := Bind(Constructor[int]{
		New: func(Resolver) (int, error) { return 0, boom },
	}, nil)

	_, err := factory.New()
	require.ErrorIs(t, err, boom)
}

func TestFactoryDispose(t *testing.T) {
	t.Parallel()

	var disposed []int
	factory := Bind(pairConstructor(), nil, WithDispose(func(p *pair) {
		disposed = append(disposed, p.a)
	}))

	p, c, err := factory.Build(3, 4)
	require.NoError(t, err)
	require.Empty(t, disposed)

	c.OnDispose(func() { disposed = append(disposed, -1) })
	c.Dispose()
	c.Dispose()

	require.Equal(t, []int{-1, p.a}, disposed)
}

func TestFactoryParamsIncludeContainer(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"a", "b", ContainerParam}, Bind(pairConstructor(), nil).Params())
}

func TestContainerResolvesProvidersOnce(t *testing.T) {
	t.Parallel()

	c := NewContainer()
	calls := 0
	c.Register("clock", Provider(func(Resolver) (any, error) {
		calls++
		return "tick", nil
	}))

	for range 3 {
		v, err := c.Resolve("clock")
		require.NoError(t, err)
		require.Equal(t, "tick", v)
	}
	require.Equal(t, 1, calls)
	require.Equal(t, []string{"clock"}, c.Names())
}

func TestContainerDetectsCycles(t *testing.T) {
	t.Parallel()

	c := NewContainer()
	c.Register("a", Provider(func(r Resolver) (any, error) { return r.Resolve("b") }))
	c.Register("b", Provider(func(r Resolver) (any, error) { return r.Resolve("a") }))

	_, err := c.Resolve("a")

	var cycle ErrCycle
	require.ErrorAs(t, err, &cycle)
	require.Equal(t, []string{"a", "b", "a"}, cycle.Path)
}

func TestGetRejectsWrongType(t *testing.T) {
	t.Parallel()

	c := NewContainer()
	c.Register("port", "8080")

	_, err := Get[int](c, "port")
	require.ErrorContains(t, err, `dependency "port" is string, not int`)
}
