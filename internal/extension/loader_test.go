package extension

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfassist/tailor/internal/domain"
)

func newTestLoader(t *testing.T) (*Loader, *Factories) {
	t.Helper()
	factories := NewFactories()
	return NewLoader(factories, NewCapabilityRegistry(), NewUIRegistry(DefaultPoints())), factories
}

func testPack(id string, features ...string) *domain.InstalledPack {
	return &domain.InstalledPack{
		Manifest: domain.PackManifest{
			PackID:           id,
			Name:             id,
			Version:          "1.0.0",
			BusinessCategory: "finance",
			Features:         features,
		},
		Enabled: true,
	}
}

func TestFactories(t *testing.T) {
	f := NewFactories()
	require.NoError(t, f.Register("b", ManifestFactory))
	require.NoError(t, f.Register("a", ManifestFactory))
	assert.Error(t, f.Register("a", ManifestFactory))
	assert.Error(t, f.Register("", ManifestFactory))
	assert.Equal(t, []string{"a", "b"}, f.Names())
}

func TestLoader_ManifestFallback(t *testing.T) {
	l, _ := newTestLoader(t)

	require.NoError(t, l.Load(t.Context(), testPack("billing", "invoice-gen", "tax")))
	status := l.Status("billing")
	assert.True(t, status.Loaded)
	assert.Equal(t, 2, status.CapabilitiesCount)
	assert.Zero(t, status.ComponentsCount)
	assert.Equal(t, "1.0.0", status.Version)

	// Loading twice is harmless
	require.NoError(t, l.Load(t.Context(), testPack("billing", "invoice-gen", "tax")))
	assert.Equal(t, 2, l.Capabilities().Count("billing"))
}

func TestLoader_NamedFactory(t *testing.T) {
	l, factories := newTestLoader(t)

	var initialized, cleaned bool
	require.NoError(t, factories.Register("billing-ext", func(m domain.PackManifest) (Extension, error) {
		return &Static{
			Caps: []domain.PackCapability{{CapabilityID: "invoice-gen", Name: "Invoices", Category: "finance"}},
			Components: []domain.UIComponent{{
				ComponentID: "invoice_widget", ExtensionPoint: DashboardWidgets, Title: "Invoices", Enabled: true,
			}},
			OnInit: func(ctx context.Context, ec *Context) error {
				initialized = ec.PackID == "billing" && ec.UI != nil && ec.Capabilities != nil
				return nil
			},
			OnCleanup: func(ctx context.Context) error {
				cleaned = true
				return nil
			},
		}, nil
	}))

	pack := testPack("billing", "invoice-gen")
	pack.Manifest.Extension = "billing-ext"
	require.NoError(t, l.Load(t.Context(), pack))
	assert.True(t, initialized)

	widgets := l.UI().EnabledComponents(DashboardWidgets)
	require.Len(t, widgets, 1)
	assert.Equal(t, "billing", widgets[0].PackID)
	c, ok := l.Capabilities().Get("billing", "invoice-gen")
	require.True(t, ok)
	assert.Equal(t, "Invoices", c.Name)

	require.NoError(t, l.Unload(t.Context(), "billing"))
	assert.True(t, cleaned)
	assert.Equal(t, domain.PackStatus{PackID: "billing"}, l.Status("billing"))
	require.NoError(t, l.Unload(t.Context(), "billing"))
}

func TestLoader_FactoryByPackID(t *testing.T) {
	l, factories := newTestLoader(t)
	require.NoError(t, factories.Register("crm", func(m domain.PackManifest) (Extension, error) {
		return &Static{Caps: []domain.PackCapability{{CapabilityID: "crm-core", Category: "sales"}}}, nil
	}))

	require.NoError(t, l.Load(t.Context(), testPack("crm", "contacts", "deals")))
	caps := l.Capabilities().ForPack("crm")
	require.Len(t, caps, 1)
	assert.Equal(t, "crm-core", caps[0].CapabilityID)
}

func TestLoader_FailuresRollBack(t *testing.T) {
	tests := []struct {
		name    string
		factory Factory
	}{
		{"constructor error", func(domain.PackManifest) (Extension, error) {
			return nil, errors.New("boom")
		}},
		{"initialize error after registering directly", func(domain.PackManifest) (Extension, error) {
			return &Static{OnInit: func(ctx context.Context, ec *Context) error {
				ec.Capabilities.Register(domain.PackCapability{PackID: ec.PackID, CapabilityID: "early", Category: "x"})
				return errors.New("not ready")
			}}, nil
		}},
		{"rejected component", func(domain.PackManifest) (Extension, error) {
			return &Static{
				Caps:       []domain.PackCapability{{CapabilityID: "ok", Category: "x"}},
				Components: []domain.UIComponent{{ComponentID: "w", ExtensionPoint: "no_such_point"}},
			}, nil
		}},
		{"rejected capability", func(domain.PackManifest) (Extension, error) {
			return &Static{
				Components: []domain.UIComponent{{ComponentID: "w", ExtensionPoint: DashboardWidgets}},
				Caps: []domain.PackCapability{
					{CapabilityID: "dup", Category: "x"},
					{CapabilityID: "dup", Category: "x"},
				},
			}, nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, factories := newTestLoader(t)
			require.NoError(t, factories.Register("broken", tt.factory))

			pack := testPack("broken", "f")
			err := l.Load(t.Context(), pack)
			require.True(t, domain.HasCode(err, domain.ErrExtensionLoadFailed), "%v", err)

			status := l.Status("broken")
			assert.False(t, status.Loaded)
			assert.Zero(t, status.CapabilitiesCount)
			assert.Zero(t, status.ComponentsCount)
			assert.Zero(t, l.Capabilities().Len())
		})
	}

	t.Run("named factory missing", func(t *testing.T) {
		l, _ := newTestLoader(t)
		pack := testPack("billing", "f")
		pack.Manifest.Extension = "missing"
		assert.True(t, domain.HasCode(l.Load(t.Context(), pack), domain.ErrExtensionLoadFailed))
	})
}

func TestLoader_UnloadAll(t *testing.T) {
	l, _ := newTestLoader(t)
	require.NoError(t, l.Load(t.Context(), testPack("a", "fa")))
	require.NoError(t, l.Load(t.Context(), testPack("b", "fb")))
	assert.Equal(t, []string{"a", "b"}, l.LoadedPacks())

	l.UnloadAll(t.Context())
	assert.Empty(t, l.LoadedPacks())
	assert.Zero(t, l.Capabilities().Len())
}
