package activation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/bulkhead/internal/bundle"
	"github.com/alexisbeaulieu97/bulkhead/internal/namespace"
	"github.com/alexisbeaulieu97/bulkhead/internal/plugin"
	bulkheaderrors "github.com/alexisbeaulieu97/bulkhead/pkg/errors"
)

type fakeModel struct{ id string }

func (m fakeModel) Identity() string { return m.id }

type fakeSubsystem struct {
	mu           sync.Mutex
	handle       *LoaderHandle
	signals      []chan error
	materialized map[string]bundle.Materialized
	reloads      int
	reloadErr    error
	silent       bool
}

func newFakeSubsystem(host map[string]bundle.Definition) *fakeSubsystem {
	return &fakeSubsystem{
		handle: NewLoaderHandle(func(context.Context) (map[string]bundle.Definition, error) {
			return host, nil
		}),
		materialized: make(map[string]bundle.Materialized),
	}
}

func (f *fakeSubsystem) Loaders() *LoaderHandle { return f.handle }

func (f *fakeSubsystem) AwaitReloadCompleted() <-chan error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan error, 1)
	f.signals = append(f.signals, ch)
	return ch
}

func (f *fakeSubsystem) Reload(ctx context.Context) error {
	f.mu.Lock()
	f.reloads++
	reloadErr := f.reloadErr
	silent := f.silent
	f.mu.Unlock()

	if reloadErr != nil {
		return reloadErr
	}
	if silent {
		return nil
	}

	defs, err := f.handle.Load(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		f.materialized = make(map[string]bundle.Materialized, len(defs))
		for identity := range defs {
			f.materialized[identity] = fakeModel{id: identity}
		}
	}
	for _, ch := range f.signals {
		ch <- err
		close(ch)
	}
	f.signals = nil
	return nil
}

func (f *fakeSubsystem) Materialized(identity string) (bundle.Materialized, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.materialized[identity]
	return m, ok
}

func (f *fakeSubsystem) reloadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reloads
}

func namespacedBundle(t *testing.T, location string) (*bundle.Bundle, *namespace.Shadows) {
	t.Helper()

	b := bundle.New(location)
	account, err := bundle.DecodeModel("Account", bundle.Definition{
		"attributes": map[string]any{
			"name":  "string",
			"owner": map[string]any{"model": "profile"},
		},
	})
	require.NoError(t, err)
	profile, err := bundle.DecodeModel("Profile", bundle.Definition{})
	require.NoError(t, err)
	mailer, err := bundle.DecodeService("Mailer", bundle.Definition{"from": "noreply"})
	require.NoError(t, err)

	b.ModelDefs[account.Identity] = account
	b.ModelDefs[profile.Identity] = profile
	b.ServiceDefs[mailer.Identity] = mailer

	shadows := namespace.NewRewriter(nil).Rewrite(b, namespace.Derive(location))
	return b, shadows
}

func registryWith(t *testing.T, locations ...string) *plugin.Registry {
	t.Helper()

	reg := plugin.NewRegistry(&plugin.RegistryConfig{CollisionPolicy: plugin.CollisionOff}, nil)
	for _, location := range locations {
		b, shadows := namespacedBundle(t, location)
		_, err := reg.Register(b, shadows)
		require.NoError(t, err)
	}
	return reg
}

func TestActivateEmptyRegistryNeverTouchesSubsystem(t *testing.T) {
	t.Parallel()

	sub := newFakeSubsystem(nil)
	c := NewCoordinator(registryWith(t), sub)

	require.NoError(t, c.Activate(context.Background()))
	require.Equal(t, Done, c.State())
	require.Zero(t, sub.reloadCount())
	require.False(t, c.Intercepting())
}

func TestActivateExposesModelsUnderOriginalIdentities(t *testing.T) {
	t.Parallel()

	host := map[string]bundle.Definition{"user": {"identity": "user"}}
	sub := newFakeSubsystem(host)
	reg := registryWith(t, "/srv/bundles/pkgA")
	c := NewCoordinator(reg, sub)

	require.NoError(t, c.Activate(context.Background()))
	require.Equal(t, Done, c.State())
	require.True(t, reg.Activated())

	b, err := reg.Get("/srv/bundles/pkgA")
	require.NoError(t, err)
	require.True(t, b.Activated())

	account, ok := b.Models["account"]
	require.True(t, ok)
	require.Equal(t, "pkgA_account", account.Identity())
	require.Equal(t, account, b.ModelsByGlobalID["Account"])

	svc, ok := b.Services["mailer"]
	require.True(t, ok)
	require.Equal(t, "pkgA_mailer", svc.Identity)
	require.Same(t, b, svc.Bundle)

	// The host's own models were materialized alongside.
	_, ok = sub.Materialized("user")
	require.True(t, ok)

	entries := reg.Entries()
	require.Len(t, entries, 1)
	require.Zero(t, entries[0].Shadows.Pending())
}

func TestActivateRestoresLoaderAfterSuccess(t *testing.T) {
	t.Parallel()

	host := map[string]bundle.Definition{"user": {"identity": "user"}}
	sub := newFakeSubsystem(host)
	c := NewCoordinator(registryWith(t, "/srv/bundles/pkgA"), sub)

	require.NoError(t, c.Activate(context.Background()))
	require.False(t, c.Intercepting())

	defs, err := sub.Loaders().Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, host, defs)
}

func TestActivateSecondCallDoesNotReload(t *testing.T) {
	t.Parallel()

	sub := newFakeSubsystem(nil)
	c := NewCoordinator(registryWith(t, "/srv/bundles/pkgA"), sub)

	require.NoError(t, c.Activate(context.Background()))
	require.NoError(t, c.Activate(context.Background()))
	require.Equal(t, 1, sub.reloadCount())
}

func TestActivateAfterRegistrationRunsAgain(t *testing.T) {
	t.Parallel()

	sub := newFakeSubsystem(nil)
	reg := registryWith(t, "/srv/bundles/pkgA")
	c := NewCoordinator(reg, sub)
	require.NoError(t, c.Activate(context.Background()))

	b, shadows := namespacedBundle(t, "/srv/bundles/pkgB")
	_, err := reg.Register(b, shadows)
	require.NoError(t, err)

	require.NoError(t, c.Activate(context.Background()))
	require.Equal(t, 2, sub.reloadCount())

	_, ok := b.Models["profile"]
	require.True(t, ok)
}

func TestActivateReloadFailureKeepsInterception(t *testing.T) {
	t.Parallel()

	sub := newFakeSubsystem(nil)
	sub.reloadErr = errors.New("store locked")
	c := NewCoordinator(registryWith(t, "/srv/bundles/pkgA"), sub)

	err := c.Activate(context.Background())
	require.Error(t, err)

	var subsystemErr *bulkheaderrors.SubsystemError
	require.ErrorAs(t, err, &subsystemErr)
	require.Equal(t, "reload", subsystemErr.Phase)
	require.Equal(t, AwaitingReload, c.State())
	require.True(t, c.Intercepting())

	// Retrying must not wrap the loader a second time.
	sub.reloadErr = nil
	require.NoError(t, c.Activate(context.Background()))
	require.False(t, c.Intercepting())

	defs, err := sub.Loaders().Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, defs)
}

func TestActivateLoaderErrorArrivesThroughSignal(t *testing.T) {
	t.Parallel()

	sub := newFakeSubsystem(nil)
	sub.handle = NewLoaderHandle(func(context.Context) (map[string]bundle.Definition, error) {
		return nil, errors.New("host models unreadable")
	})
	c := NewCoordinator(registryWith(t, "/srv/bundles/pkgA"), sub)

	err := c.Activate(context.Background())
	require.ErrorContains(t, err, "host models unreadable")

	var subsystemErr *bulkheaderrors.SubsystemError
	require.ErrorAs(t, err, &subsystemErr)
	require.Equal(t, "load", subsystemErr.Phase)
	require.Equal(t, AwaitingReload, c.State())
}

func TestActivateHonoursContextWhileAwaiting(t *testing.T) {
	t.Parallel()

	sub := newFakeSubsystem(nil)
	sub.silent = true
	c := NewCoordinator(registryWith(t, "/srv/bundles/pkgA"), sub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Activate(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, AwaitingReload, c.State())

	c.Reset()
	require.Equal(t, Idle, c.State())
	require.False(t, c.Intercepting())
}

func TestInitializeInvokesCallbackOnce(t *testing.T) {
	t.Parallel()

	sub := newFakeSubsystem(nil)
	c := NewCoordinator(registryWith(t, "/srv/bundles/pkgA"), sub)

	calls := 0
	var got error
	c.Initialize(context.Background(), func(err error) {
		calls++
		got = err
	})

	require.Equal(t, 1, calls)
	require.NoError(t, got)
}

func TestStateString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "idle", Idle.String())
	require.Equal(t, "awaiting-reload", AwaitingReload.String())
	require.Equal(t, "reconciling", Reconciling.String())
	require.Equal(t, "done", Done.String())
	require.Equal(t, "unknown", State(42).String())
}
