package extension

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wfassist/tailor/internal/domain"
)

// Extension is the contract pack extension code implements.
// Pack code runs in-process and fully trusted.
type Extension interface {
	// UIComponents lists the components to place once Initialize succeeds
	UIComponents() []domain.UIComponent
	// Capabilities lists the capabilities to register once Initialize succeeds
	Capabilities() []domain.PackCapability
	// Initialize prepares the extension. An error aborts the load.
	Initialize(ctx context.Context, ec *Context) error
	// Cleanup releases whatever Initialize acquired
	Cleanup(ctx context.Context) error
}

// Context is handed to Extension.Initialize
type Context struct {
	PackID       string
	Manifest     domain.PackManifest
	Directory    string
	Capabilities *CapabilityRegistry
	UI           *UIRegistry
}

// Factory builds the extension for a pack
type Factory func(manifest domain.PackManifest) (Extension, error)

// Factories maps extension names to constructors
type Factories struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewFactories creates an empty factory set
func NewFactories() *Factories {
	return &Factories{factories: make(map[string]Factory)}
}

// Register adds a named factory
func (f *Factories) Register(name string, factory Factory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("extension factory needs a name and a constructor")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.factories[name]; exists {
		return fmt.Errorf("extension factory %q is already registered", name)
	}
	f.factories[name] = factory
	return nil
}

// Lookup returns a named factory
func (f *Factories) Lookup(name string) (Factory, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	factory, ok := f.factories[name]
	return factory, ok
}

// Names returns the registered factory names in order
func (f *Factories) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.factories))
	for name := range f.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type loadedExtension struct {
	ext      Extension
	version  string
	loadedAt time.Time
}

// Loader instantiates pack extensions and registers what they declare
type Loader struct {
	factories    *Factories
	capabilities *CapabilityRegistry
	ui           *UIRegistry

	mu     sync.Mutex
	loaded map[string]*loadedExtension
}

// NewLoader creates a loader over the given registries
func NewLoader(factories *Factories, capabilities *CapabilityRegistry, ui *UIRegistry) *Loader {
	if factories == nil {
		factories = NewFactories()
	}
	return &Loader{
		factories:    factories,
		capabilities: capabilities,
		ui:           ui,
		loaded:       make(map[string]*loadedExtension),
	}
}

// Capabilities returns the capability registry
func (l *Loader) Capabilities() *CapabilityRegistry {
	return l.capabilities
}

// UI returns the UI registry
func (l *Loader) UI() *UIRegistry {
	return l.ui
}

// resolve picks the factory named by the manifest, then one registered under the
// pack id, then the manifest-backed default.
func (l *Loader) resolve(manifest domain.PackManifest) (Factory, error) {
	if manifest.Extension != "" {
		factory, ok := l.factories.Lookup(manifest.Extension)
		if !ok {
			return nil, fmt.Errorf("extension %q is not available", manifest.Extension)
		}
		return factory, nil
	}
	if factory, ok := l.factories.Lookup(manifest.PackID); ok {
		return factory, nil
	}
	return ManifestFactory, nil
}

// Load instantiates and initializes a pack's extension, then registers its capabilities
// and UI components. Any failure undoes every registration for the pack.
func (l *Loader) Load(ctx context.Context, pack *domain.InstalledPack) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	packID := pack.Manifest.PackID
	if _, ok := l.loaded[packID]; ok {
		log.Debug().Str("pack_id", packID).Msg("Extension already loaded")
		return nil
	}

	fail := func(stage string, err error) error {
		log.Error().Err(err).Str("pack_id", packID).Str("stage", stage).Msg("Extension load failed")
		return domain.NewAppErrorWithCause(domain.ErrExtensionLoadFailed,
			fmt.Sprintf("extension for pack '%s' failed to %s", packID, stage), 500, err,
			map[string]any{"pack_id": packID, "stage": stage})
	}

	factory, err := l.resolve(pack.Manifest)
	if err != nil {
		return fail("resolve", err)
	}

	ext, err := factory(pack.Manifest)
	if err != nil {
		return fail("instantiate", err)
	}
	if ext == nil {
		return fail("instantiate", fmt.Errorf("factory returned no extension"))
	}

	rollback := func() {
		if err := ext.Cleanup(ctx); err != nil {
			log.Warn().Err(err).Str("pack_id", packID).Msg("Extension cleanup failed during rollback")
		}
		l.capabilities.UnregisterPack(packID)
		l.ui.UnregisterPack(packID)
	}

	ec := &Context{
		PackID:       packID,
		Manifest:     pack.Manifest,
		Directory:    pack.Directory,
		Capabilities: l.capabilities,
		UI:           l.ui,
	}
	if err := ext.Initialize(ctx, ec); err != nil {
		rollback()
		return fail("initialize", err)
	}

	for _, c := range ext.Capabilities() {
		c.PackID = packID
		if !l.capabilities.Register(c) {
			rollback()
			return fail("register capabilities", fmt.Errorf("capability %q was rejected", c.CapabilityID))
		}
	}

	for _, c := range ext.UIComponents() {
		c.PackID = packID
		if err := l.ui.RegisterComponent(c); err != nil {
			rollback()
			return fail("register UI components", err)
		}
	}

	l.loaded[packID] = &loadedExtension{
		ext:      ext,
		version:  pack.Manifest.Version,
		loadedAt: time.Now(),
	}

	log.Info().
		Str("pack_id", packID).
		Int("capabilities", l.capabilities.Count(packID)).
		Int("components", l.ui.Count(packID)).
		Msg("Extension loaded")
	return nil
}

// Unload cleans up a pack's extension and removes its registrations.
// Unloading a pack that is not loaded is a no-op.
func (l *Loader) Unload(ctx context.Context, packID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	le, ok := l.loaded[packID]
	if !ok {
		return nil
	}

	if err := le.ext.Cleanup(ctx); err != nil {
		log.Warn().Err(err).Str("pack_id", packID).Msg("Extension cleanup failed")
	}
	l.capabilities.UnregisterPack(packID)
	l.ui.UnregisterPack(packID)
	delete(l.loaded, packID)

	log.Info().Str("pack_id", packID).Msg("Extension unloaded")
	return nil
}

// UnloadAll unloads every loaded extension
func (l *Loader) UnloadAll(ctx context.Context) {
	for _, packID := range l.LoadedPacks() {
		_ = l.Unload(ctx, packID)
	}
}

// IsLoaded reports whether a pack's extension is loaded
func (l *Loader) IsLoaded(packID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.loaded[packID]
	return ok
}

// LoadedPacks returns the ids of loaded packs in order
func (l *Loader) LoadedPacks() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]string, 0, len(l.loaded))
	for id := range l.loaded {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Status reports what the extension layer holds for a pack
func (l *Loader) Status(packID string) domain.PackStatus {
	l.mu.Lock()
	le, loaded := l.loaded[packID]
	l.mu.Unlock()

	status := domain.PackStatus{
		PackID:            packID,
		Loaded:            loaded,
		CapabilitiesCount: l.capabilities.Count(packID),
		ComponentsCount:   l.ui.Count(packID),
	}
	if loaded {
		status.Version = le.version
	}
	return status
}

// Static is an Extension with fixed declarations and optional hooks
type Static struct {
	Caps       []domain.PackCapability
	Components []domain.UIComponent
	OnInit     func(ctx context.Context, ec *Context) error
	OnCleanup  func(ctx context.Context) error
}

// UIComponents implements Extension
func (s *Static) UIComponents() []domain.UIComponent { return s.Components }

// Capabilities implements Extension
func (s *Static) Capabilities() []domain.PackCapability { return s.Caps }

// Initialize implements Extension
func (s *Static) Initialize(ctx context.Context, ec *Context) error {
	if s.OnInit == nil {
		return nil
	}
	return s.OnInit(ctx, ec)
}

// Cleanup implements Extension
func (s *Static) Cleanup(ctx context.Context) error {
	if s.OnCleanup == nil {
		return nil
	}
	return s.OnCleanup(ctx)
}

// ManifestFactory builds an extension that declares one capability per manifest feature
func ManifestFactory(manifest domain.PackManifest) (Extension, error) {
	caps := make([]domain.PackCapability, 0, len(manifest.Features))
	for _, feature := range manifest.Features {
		caps = append(caps, domain.PackCapability{
			PackID:       manifest.PackID,
			CapabilityID: feature,
			Name:         feature,
			Description:  manifest.Description,
			Category:     manifest.BusinessCategory,
		})
	}
	return &Static{Caps: caps}, nil
}
