package host

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/bulkhead/internal/bundle"
	"github.com/alexisbeaulieu97/bulkhead/internal/config"
	"github.com/alexisbeaulieu97/bulkhead/internal/inject"
	"github.com/alexisbeaulieu97/bulkhead/internal/logger"
	"github.com/alexisbeaulieu97/bulkhead/internal/metrics"
	"github.com/alexisbeaulieu97/bulkhead/internal/orm"
	"github.com/alexisbeaulieu97/bulkhead/internal/plugin"
	bulkheaderrors "github.com/alexisbeaulieu97/bulkhead/pkg/errors"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()

	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// writePkgA lays out a bundle contributing two related models, a service and config.
func writePkgA(t *testing.T, root string) {
	t.Helper()

	writeFile(t, root, "bundle.yaml", "name: pkgA\nversion: 1.2.0\n")
	writeFile(t, root, "api/models/Account.yaml", `attributes:
  name: string
  balance:
    type: number
  owner:
    model: profile
`)
	writeFile(t, root, "api/models/Profile.yaml", "attributes:\n  email: string\n")
	writeFile(t, root, "api/services/Mailer.yaml", "from: noreply@example.com\n")
	writeFile(t, root, "api/config/settings.yaml", "currency: EUR\n")
}

func newHost(t *testing.T, opts Options) (*Host, string) {
	t.Helper()

	app := t.TempDir()
	cfg := config.Default()
	cfg.AppPath = app
	cfg.CacheDir = filepath.Join(app, ".cache")
	cfg.Store.DSN = orm.MemoryDSN
	cfg.Registry.CollisionPolicy = string(plugin.CollisionStrict)
	cfg.Watch.Debounce = "20ms"

	opts.Config = &cfg
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	h, err := New(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, h.Close())
	})
	return h, app
}

func initialize(t *testing.T, h *Host) {
	t.Helper()

	var got error
	calls := 0
	h.Initialize(context.Background(), func(err error) {
		calls++
		got = err
	})
	require.Equal(t, 1, calls)
	require.NoError(t, got)
}

func TestRegisterAndInitializeEndToEnd(t *testing.T) {
	t.Parallel()

	h, app := newHost(t, Options{})
	writePkgA(t, filepath.Join(app, "pkgA"))

	b, err := h.Register(context.Background(), "pkgA")
	require.NoError(t, err)
	require.False(t, b.Activated())
	require.Equal(t, "pkgA", b.Namespace)
	require.Equal(t, "1.2.0", b.Manifest.Version)
	require.Equal(t, "EUR", b.Config["currency"])

	account := b.ModelDefs["pkgA_account"]
	require.NotNil(t, account)
	require.Equal(t, "pkgA_profile", account.Attributes["owner"].(map[string]any)["model"])

	initialize(t, h)
	require.True(t, b.Activated())

	model, ok := b.Models["account"]
	require.True(t, ok)
	require.Equal(t, "pkgA_account", model.Identity())

	accounts, ok := model.(*orm.Collection)
	require.True(t, ok)
	require.Equal(t, []string{"balance", "name", "owner_id"}, accounts.Columns())

	ctx := context.Background()
	_, err = accounts.Insert(ctx, map[string]any{"name": "main", "balance": 10.5})
	require.NoError(t, err)
	n, err := accounts.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, ok = b.ModelsByGlobalID["Profile"]
	require.True(t, ok)

	svc, ok := b.Services["mailer"]
	require.True(t, ok)
	require.Same(t, b, svc.Bundle)

	entries := h.Registry().Entries()
	require.Len(t, entries, 1)
	require.Zero(t, entries[0].Shadows.Pending())
	require.False(t, h.Coordinator().Intercepting())
}

func TestInitializeEmptyRegistrySkipsStore(t *testing.T) {
	t.Parallel()

	h, _ := newHost(t, Options{})
	h.Store().Define("user", bundle.Definition{"attributes": map[string]any{"name": "string"}})

	initialize(t, h)

	require.Empty(t, h.Store().Identities())
	require.Equal(t, 1.0, testutil.ToFloat64(h.Metrics().Activations.WithLabelValues(metrics.ResultSkipped)))
}

func TestInitializeKeepsHostModels(t *testing.T) {
	t.Parallel()

	h, app := newHost(t, Options{})
	writePkgA(t, filepath.Join(app, "pkgA"))
	h.Store().Define("user", bundle.Definition{"attributes": map[string]any{"name": "string"}})

	_, err := h.Register(context.Background(), "pkgA")
	require.NoError(t, err)
	initialize(t, h)

	require.Equal(t, []string{"pkgA_account", "pkgA_profile", "user"}, h.Store().Identities())
}

func TestRegisterMalformedBundleIsNotRegistered(t *testing.T) {
	t.Parallel()

	h, app := newHost(t, Options{})
	writeFile(t, filepath.Join(app, "broken"), "api/models/Thing.yaml", "attributes: [unclosed\n")

	_, err := h.Register(context.Background(), "broken")

	var scanErr *bulkheaderrors.ScanError
	require.ErrorAs(t, err, &scanErr)
	require.Equal(t, "models", scanErr.Category)
	require.Zero(t, h.Registry().Len())
	require.Equal(t, 1.0, testutil.ToFloat64(h.Metrics().MergeFailures))
}

func TestRegisterRejectsNamespaceCollision(t *testing.T) {
	t.Parallel()

	h, app := newHost(t, Options{})
	writePkgA(t, filepath.Join(app, "team1", "pkgA"))
	writePkgA(t, filepath.Join(app, "team2", "pkgA"))

	_, err := h.Register(context.Background(), "team1/pkgA")
	require.NoError(t, err)

	_, err = h.Register(context.Background(), "team2/pkgA")
	var collision plugin.ErrNamespaceCollision
	require.ErrorAs(t, err, &collision)
	require.Equal(t, "pkgA", collision.Namespace)
	require.Equal(t, 1, h.Registry().Len())
}

func TestRegisterAllKeepsOrder(t *testing.T) {
	t.Parallel()

	h, app := newHost(t, Options{})
	writePkgA(t, filepath.Join(app, "pkgA"))
	writeFile(t, filepath.Join(app, "pkgB"), "api/models/Invoice.yaml", "attributes:\n  total: number\n")

	bundles, err := h.RegisterAll(context.Background(), []string{"pkgB", "pkgA"})
	require.NoError(t, err)
	require.Len(t, bundles, 2)
	require.Equal(t, "pkgB", bundles[0].Namespace)
	require.Equal(t, "pkgA", bundles[1].Namespace)

	initialize(t, h)
	_, ok := bundles[0].Models["invoice"]
	require.True(t, ok)
}

func TestRegisterAllRegistersNothingOnCollision(t *testing.T) {
	t.Parallel()

	h, app := newHost(t, Options{})
	writePkgA(t, filepath.Join(app, "team1", "pkgA"))
	writePkgA(t, filepath.Join(app, "team2", "pkgA"))

	bundles, err := h.RegisterAll(context.Background(), []string{"team1/pkgA", "team2/pkgA"})
	var collision plugin.ErrNamespaceCollision
	require.ErrorAs(t, err, &collision)
	require.Equal(t, "team2/pkgA", collision.Incoming)
	require.Nil(t, bundles)
	require.Zero(t, h.Registry().Len())
	require.Zero(t, testutil.ToFloat64(h.Metrics().BundlesRegistered.WithLabelValues("pkgA")))
}

func TestActivateHyphenatedNamespace(t *testing.T) {
	t.Parallel()

	h, app := newHost(t, Options{})
	writePkgA(t, filepath.Join(app, "pkg-a"))

	b, err := h.Register(context.Background(), "pkg-a")
	require.NoError(t, err)
	require.Equal(t, "pkg-a", b.Namespace)
	require.NoError(t, h.Activate(context.Background()))
	require.True(t, b.Activated())

	model, ok := b.Models["account"]
	require.True(t, ok)
	require.Equal(t, "pkg-a_account", model.Identity())

	accounts := model.(*orm.Collection)
	_, err = accounts.Insert(context.Background(), map[string]any{"name": "main"})
	require.NoError(t, err)
}

func TestReRegistrationRequiresNewActivation(t *testing.T) {
	t.Parallel()

	h, app := newHost(t, Options{})
	writePkgA(t, filepath.Join(app, "pkgA"))

	_, err := h.Register(context.Background(), "pkgA")
	require.NoError(t, err)
	initialize(t, h)
	require.True(t, h.Registry().Activated())

	_, err = h.Register(context.Background(), "pkgA")
	require.NoError(t, err)
	require.Equal(t, 1, h.Registry().Len())
	require.False(t, h.Registry().Activated())
}

func TestLookupByReference(t *testing.T) {
	t.Parallel()

	h, app := newHost(t, Options{})
	writePkgA(t, filepath.Join(app, "pkgA"))
	_, err := h.Register(context.Background(), "pkgA")
	require.NoError(t, err)

	b, err := h.Lookup("pkgA@1.x")
	require.NoError(t, err)
	require.Equal(t, "pkgA", b.Location)

	b, err = h.Lookup("pkgA")
	require.NoError(t, err)
	require.Equal(t, "pkgA", b.Namespace)

	_, err = h.Lookup("pkgA@2.0.0")
	var notFound plugin.ErrBundleNotFound
	require.ErrorAs(t, err, &notFound)
}

type ledger struct {
	accounts bundle.Materialized
	currency any
	label    string
}

func ledgerConstructor() inject.Constructor[*ledger] {
	return inject.Constructor[*ledger]{
		Params: []string{DepModels, DepConfig, "label"},
		New: func(r inject.Resolver) (*ledger, error) {
			models, err := inject.Get[map[string]bundle.Materialized](r, DepModels)
			if err != nil {
				return nil, err
			}
			cfg, err := inject.Get[map[string]any](r, DepConfig)
			if err != nil {
				return nil, err
			}
			label, err := inject.Get[string](r, "label")
			if err != nil {
				return nil, err
			}
			return &ledger{accounts: models["account"], currency: cfg["currency"], label: label}, nil
		},
	}
}

func TestInstantiateInjectsBundleDependencies(t *testing.T) {
	t.Parallel()

	h, app := newHost(t, Options{})
	writePkgA(t, filepath.Join(app, "pkgA"))
	_, err := h.Register(context.Background(), "pkgA")
	require.NoError(t, err)
	initialize(t, h)

	l, err := Instantiate(h, "pkgA", ledgerConstructor(), inject.Overrides{"label": "main"})
	require.NoError(t, err)
	require.Equal(t, "EUR", l.currency)
	require.Equal(t, "main", l.label)
	require.NotNil(t, l.accounts)
	require.Equal(t, "pkgA_account", l.accounts.Identity())

	_, err = Instantiate(h, "pkgA", ledgerConstructor())
	var unresolved inject.ErrUnresolved
	require.ErrorAs(t, err, &unresolved)
	require.Equal(t, "label", unresolved.Name)
}

func TestTeardownClearsRegistry(t *testing.T) {
	t.Parallel()

	h, app := newHost(t, Options{})
	writePkgA(t, filepath.Join(app, "pkgA"))
	_, err := h.Register(context.Background(), "pkgA")
	require.NoError(t, err)
	initialize(t, h)

	h.Teardown()
	require.Zero(t, h.Registry().Len())
	require.False(t, h.Registry().Activated())

	_, err = h.Lookup("pkgA")
	require.Error(t, err)
}

func TestRefreshPicksUpNewModels(t *testing.T) {
	t.Parallel()

	h, app := newHost(t, Options{})
	root := filepath.Join(app, "pkgA")
	writePkgA(t, root)
	_, err := h.Register(context.Background(), "pkgA")
	require.NoError(t, err)
	initialize(t, h)

	writeFile(t, root, "api/models/Note.yaml", "attributes:\n  body: string\n")
	require.NoError(t, h.Refresh(context.Background()))

	b, err := h.Lookup("pkgA")
	require.NoError(t, err)
	_, ok := b.Models["note"]
	require.True(t, ok)
}

func TestWatchRefreshesOnModelChange(t *testing.T) {
	t.Parallel()

	h, app := newHost(t, Options{})
	root := filepath.Join(app, "pkgA")
	writePkgA(t, root)
	_, err := h.Register(context.Background(), "pkgA")
	require.NoError(t, err)
	initialize(t, h)

	require.NoError(t, h.Watch(context.Background()))
	require.Error(t, h.Watch(context.Background()))

	writeFile(t, root, "api/models/Note.yaml", "attributes:\n  body: string\n")

	require.Eventually(t, func() bool {
		b, err := h.Lookup("pkgA")
		if err != nil || !b.Activated() {
			return false
		}
		_, ok := b.Models["note"]
		return ok
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatchCoversNestedModelDirectories(t *testing.T) {
	t.Parallel()

	h, app := newHost(t, Options{})
	root := filepath.Join(app, "pkgA")
	writePkgA(t, root)
	writeFile(t, root, "api/models/ledger/Entry.yaml", "attributes:\n  amount: number\n")
	_, err := h.Register(context.Background(), "pkgA")
	require.NoError(t, err)
	initialize(t, h)

	require.NoError(t, h.Watch(context.Background()))

	writeFile(t, root, "api/models/ledger/Note.yaml", "attributes:\n  body: string\n")

	require.Eventually(t, func() bool {
		b, err := h.Lookup("pkgA")
		if err != nil || !b.Activated() {
			return false
		}
		_, ok := b.Models["note"]
		return ok
	}, 5*time.Second, 20*time.Millisecond)
}
