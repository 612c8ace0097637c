// Package app wires the pack registry, license service, extension layer,
// catalog and history into one explicitly constructed application context.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wfassist/tailor/internal/catalog"
	"github.com/wfassist/tailor/internal/config"
	"github.com/wfassist/tailor/internal/domain"
	"github.com/wfassist/tailor/internal/extension"
	"github.com/wfassist/tailor/internal/health"
	"github.com/wfassist/tailor/internal/history"
	"github.com/wfassist/tailor/internal/license"
	"github.com/wfassist/tailor/internal/pack"
	"github.com/wfassist/tailor/internal/platform"
)

// Options overrides collaborators that are normally built from config
type Options struct {
	// Factories holds the extension constructors compiled into the host
	Factories *extension.Factories
	// Verifier replaces the HTTP license client
	Verifier license.Verifier
	// Platform replaces the detected host platform
	Platform *platform.Info
}

// App owns every store. Nothing in it is process-global.
type App struct {
	cfg *config.Config

	Packs      *pack.Manager
	Licenses   *license.Service
	Extensions *extension.Loader
	Catalog    *catalog.Client
	History    *history.Recorder
	Health     *health.SystemHealthChecker
}

// New builds the application context from configuration
func New(cfg *config.Config, opts Options) (*App, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	info := platform.Current(cfg.App.Version)
	if opts.Platform != nil {
		info = *opts.Platform
	}

	store, err := license.NewStore(cfg.LicensePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open license store: %w", err)
	}

	verifier := opts.Verifier
	if verifier == nil && cfg.License.ServerURL != "" {
		verifier = license.NewHTTPClient(license.ClientConfig{
			BaseURL:   cfg.License.ServerURL,
			Timeout:   cfg.License.Timeout,
			UserAgent: "tailor/" + cfg.App.Version,
		})
	}
	licenses := license.NewService(store, verifier, license.ServiceConfig{
		AppVersion:        cfg.App.Version,
		TrialDays:         cfg.License.TrialDays,
		TrialFeatureLimit: cfg.License.TrialFeatureLimit,
		RejectionTTL:      cfg.License.RejectionTTL,
	})

	packs, err := pack.NewManager(pack.ManagerConfig{
		PacksDir:           cfg.PacksPath(),
		Platform:           info,
		MaxDependencyDepth: cfg.App.MaxDependencyDepth,
	}, licenses)
	if err != nil {
		return nil, fmt.Errorf("failed to open pack registry: %w", err)
	}
	licenses.SetFeatureSource(packs)

	recorder, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return nil, err
	}

	loader := extension.NewLoader(opts.Factories,
		extension.NewCapabilityRegistry(),
		extension.NewUIRegistry(extension.DefaultPoints()))

	cat := catalog.NewClient(catalog.Config{
		BaseURL:   cfg.Catalog.URL,
		Timeout:   cfg.Catalog.Timeout,
		CacheTTL:  cfg.Catalog.CacheTTL,
		CacheDir:  cfg.CatalogCachePath(),
		UserAgent: "tailor/" + cfg.App.Version,
	})

	a := &App{
		cfg:        cfg,
		Packs:      packs,
		Licenses:   licenses,
		Extensions: loader,
		Catalog:    cat,
		History:    recorder,
	}
	a.Health = health.NewSystemHealthChecker(
		health.Component{Name: "packs", Reporter: packs},
		health.Component{Name: "licenses", Reporter: licenses},
		health.Component{Name: "history", Reporter: recorder},
		health.Component{Name: "catalog", Reporter: cat},
	)

	log.Info().
		Str("packs_dir", cfg.PacksPath()).
		Str("app_version", info.AppVersion).
		Str("os", info.OS).
		Str("arch", info.Arch).
		Bool("license_server", verifier != nil).
		Msg("Application context ready")
	return a, nil
}

// Config returns the configuration the app was built from
func (a *App) Config() *config.Config {
	return a.cfg
}

// Close unloads every extension and closes the history database
func (a *App) Close(ctx context.Context) error {
	a.Extensions.UnloadAll(ctx)
	return a.History.Close()
}

// record writes a lifecycle event. History is best effort.
func (a *App) record(ctx context.Context, packID, action, version string, err error) {
	event := domain.PackEvent{
		PackID:  packID,
		Action:  action,
		Version: version,
		Success: err == nil,
	}
	if err != nil {
		event.Detail = err.Error()
	}
	if recErr := a.History.Record(ctx, event); recErr != nil {
		log.Warn().Err(recErr).Str("pack_id", packID).Str("action", action).Msg("Failed to record pack event")
	}
}

// LoadEnabled loads the extension of every enabled pack. A pack whose extension
// fails to load is disabled so the registry matches what is running.
func (a *App) LoadEnabled(ctx context.Context) (loaded int, failures map[string]error) {
	failures = make(map[string]error)
	for _, info := range a.Packs.List() {
		if !info.Enabled {
			continue
		}
		if err := a.loadOrDisable(ctx, info.PackID); err != nil {
			failures[info.PackID] = err
			continue
		}
		loaded++
	}
	log.Info().Int("loaded", loaded).Int("failed", len(failures)).Msg("Enabled pack extensions loaded")
	return loaded, failures
}

// loadOrDisable loads an enabled pack's extension and disables the pack on failure
func (a *App) loadOrDisable(ctx context.Context, packID string) error {
	p, ok := a.Packs.Get(packID)
	if !ok {
		return domain.NewAppError(domain.ErrNotInstalled, fmt.Sprintf("pack '%s' is not installed", packID), 404,
			map[string]any{"pack_id": packID})
	}

	err := a.Extensions.Load(ctx, p)
	if err == nil {
		return nil
	}

	if disableErr := a.Packs.Disable(ctx, packID); disableErr != nil {
		log.Error().Err(disableErr).Str("pack_id", packID).Msg("Failed to roll back enable")
	}
	a.record(ctx, packID, domain.EventLoadFailed, p.Manifest.Version, err)
	return err
}

// ImportPack installs a pack archive from disk
func (a *App) ImportPack(ctx context.Context, archivePath string, opts pack.ImportOptions) (*domain.InstalledPack, error) {
	return a.importWith(ctx, opts, func(m *pack.Manager) (*domain.InstalledPack, error) {
		return m.Import(ctx, archivePath, opts)
	})
}

// ImportPackReader installs a pack archive from a stream
func (a *App) ImportPackReader(ctx context.Context, r io.Reader, opts pack.ImportOptions) (*domain.InstalledPack, error) {
	return a.importWith(ctx, opts, func(m *pack.Manager) (*domain.InstalledPack, error) {
		return m.ImportReader(ctx, r, opts)
	})
}

func (a *App) importWith(ctx context.Context, opts pack.ImportOptions, run func(*pack.Manager) (*domain.InstalledPack, error)) (*domain.InstalledPack, error) {
	// A replaced pack's running extension belongs to the old files
	before := a.Extensions.LoadedPacks()

	installed, err := run(a.Packs)
	if err != nil {
		a.record(ctx, packIDFromError(err), domain.EventInstalled, "", err)
		return nil, err
	}

	packID := installed.Manifest.PackID
	a.record(ctx, packID, domain.EventInstalled, installed.Manifest.Version, nil)

	if opts.Replace && slices.Contains(before, packID) {
		_ = a.Extensions.Unload(ctx, packID)
		if installed.Enabled {
			if err := a.loadOrDisable(ctx, packID); err != nil {
				return installed, err
			}
		}
	}
	return installed, nil
}

// EnablePack enables a pack and loads its extension. If the extension fails to
// load the enable is rolled back.
func (a *App) EnablePack(ctx context.Context, packID string) error {
	err := a.Packs.Enable(ctx, packID)
	if err == nil {
		err = a.loadOrDisable(ctx, packID)
	}

	version := ""
	if p, ok := a.Packs.Get(packID); ok {
		version = p.Manifest.Version
	}
	a.record(ctx, packID, domain.EventEnabled, version, err)
	return err
}

// DisablePack unloads a pack's extension and disables it. Disabling a disabled pack succeeds.
func (a *App) DisablePack(ctx context.Context, packID string) error {
	if !a.Packs.IsInstalled(packID) {
		return a.Packs.Disable(ctx, packID)
	}
	wasLoaded := a.Extensions.IsLoaded(packID)
	if err := a.Extensions.Unload(ctx, packID); err != nil {
		return err
	}
	err := a.Packs.Disable(ctx, packID)
	a.record(ctx, packID, domain.EventDisabled, "", err)
	if err != nil && wasLoaded {
		a.reloadIfEnabled(ctx, packID)
	}
	return err
}

// UninstallPack unloads a pack's extension and removes the pack
func (a *App) UninstallPack(ctx context.Context, packID string) error {
	if !a.Packs.IsInstalled(packID) {
		return a.Packs.Uninstall(ctx, packID)
	}
	wasLoaded := a.Extensions.IsLoaded(packID)
	if err := a.Extensions.Unload(ctx, packID); err != nil {
		return err
	}
	err := a.Packs.Uninstall(ctx, packID)
	a.record(ctx, packID, domain.EventUninstalled, "", err)
	if err != nil && wasLoaded {
		a.reloadIfEnabled(ctx, packID)
	}
	return err
}

// reloadIfEnabled loads an extension again after an operation that unloaded it failed
func (a *App) reloadIfEnabled(ctx context.Context, packID string) {
	if !a.Packs.IsEnabled(packID) {
		return
	}
	if err := a.loadOrDisable(ctx, packID); err != nil {
		log.Warn().Err(err).Str("pack_id", packID).Msg("Failed to reload extension")
	}
}

// GetPackStatus combines registry, extension and license state for a pack
func (a *App) GetPackStatus(packID string) domain.PackStatus {
	status := a.Extensions.Status(packID)
	if p, ok := a.Packs.Get(packID); ok {
		status.Installed = true
		status.Enabled = p.Enabled
		if status.Version == "" {
			status.Version = p.Manifest.Version
		}
		status.HasValidLicense = !p.Manifest.LicenseRequired || a.Licenses.HasValidLicense(packID)
	}
	return status
}

// StartTrial issues a trial license for an installed pack
func (a *App) StartTrial(ctx context.Context, packID, email string) (*domain.PackLicense, error) {
	trial, err := a.Licenses.StartTrial(ctx, packID, email)
	a.record(ctx, packID, domain.EventTrialStarted, "", err)
	return trial, err
}

// ValidateOrder validates an order number for a pack. A valid license is stored
// by the license service and recorded in history.
func (a *App) ValidateOrder(ctx context.Context, orderNumber, packID string) domain.LicenseValidation {
	result := a.Licenses.ValidateOrderNumber(ctx, orderNumber, packID)
	if result.IsValid && result.License != nil {
		a.record(ctx, result.License.PackID, domain.EventLicensed, "", nil)
	}
	return result
}

// Export writes an installed pack to a ZIP archive
func (a *App) Export(ctx context.Context, packID, dest string) (*domain.ExportInfo, error) {
	info, err := a.Packs.Export(ctx, packID, dest)
	version := ""
	if info != nil {
		version = info.Version
	}
	a.record(ctx, packID, domain.EventExported, version, err)
	return info, err
}

// Backup writes every installed pack to a single ZIP archive
func (a *App) Backup(ctx context.Context, dest string) (*domain.BackupManifest, error) {
	return a.Packs.Backup(ctx, dest)
}

// Restore installs every pack from a backup archive. Loaded packs the backup
// replaces are reloaded from their restored files. An archive that cannot be
// opened leaves every pack as it was.
func (a *App) Restore(ctx context.Context, archivePath string) (*domain.RestoreResult, error) {
	backup, err := pack.OpenBackup(archivePath)
	if err != nil {
		return nil, err
	}
	defer backup.Close()

	// Only the packs the backup replaces are unloaded
	var unloaded []string
	for _, id := range backup.PackIDs() {
		if !a.Extensions.IsLoaded(id) {
			continue
		}
		if err := a.Extensions.Unload(ctx, id); err != nil {
			log.Warn().Err(err).Str("pack_id", id).Msg("Failed to unload extension before restore")
			continue
		}
		unloaded = append(unloaded, id)
	}

	result, err := a.Packs.RestoreFrom(ctx, backup)
	if result != nil {
		for _, id := range result.RestoredPacks {
			a.record(ctx, id, domain.EventRestored, "", nil)
		}
		for _, f := range result.FailedPacks {
			a.record(ctx, f.PackID, domain.EventRestored, "", errors.New(f.Error))
		}
	}

	// Whatever was loaded before comes back if it is still enabled
	for _, id := range unloaded {
		a.reloadIfEnabled(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	if a.cfg.App.AutoLoadExtensions {
		a.LoadEnabled(ctx)
	}
	return result, nil
}

// InstallFromCatalog downloads a pack from the catalog and installs it.
// An empty version installs the catalog's current version.
func (a *App) InstallFromCatalog(ctx context.Context, packID, version string, opts pack.ImportOptions) (*domain.InstalledPack, error) {
	if version == "" {
		latest, err := a.Catalog.LatestVersion(ctx, packID)
		if err != nil {
			return nil, err
		}
		version = latest
	}

	body, err := a.Catalog.DownloadPack(ctx, packID, version)
	if err != nil {
		a.record(ctx, packID, domain.EventInstalled, version, err)
		return nil, err
	}
	defer body.Close()

	return a.ImportPackReader(ctx, body, opts)
}

// CheckUpdates lists installed packs with a newer catalog version
func (a *App) CheckUpdates(ctx context.Context) ([]domain.PackUpdate, error) {
	return a.Catalog.CheckUpdates(ctx, a.Packs.List())
}

// PruneHistory drops history older than the given age
func (a *App) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	return a.History.Prune(ctx, time.Now().Add(-olderThan))
}

func packIDFromError(err error) string {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		if details, ok := appErr.Details.(map[string]any); ok {
			if id, ok := details["pack_id"].(string); ok {
				return id
			}
		}
	}
	return "unknown"
}
