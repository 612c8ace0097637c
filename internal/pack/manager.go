package pack

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wfassist/tailor/internal/conflict"
	"github.com/wfassist/tailor/internal/domain"
	"github.com/wfassist/tailor/internal/platform"
)

// stagingPrefix marks in-progress extractions inside the packs directory
const stagingPrefix = ".staging-"

// ManagerConfig holds configuration for the Manager
type ManagerConfig struct {
	PacksDir           string
	Platform           platform.Info
	MaxDependencyDepth int
}

// ImportOptions adjusts how Import treats an archive whose pack is already installed
type ImportOptions struct {
	// Replace upgrades an installed pack with the same id in place
	Replace bool
	// AvoidCollision installs under the next free "<id>-N" instead of failing
	AvoidCollision bool
}

// Manager is the registry of installed packs and the single writer of the packs directory
type Manager struct {
	packsDir  string
	appVer    string
	validator *ManifestValidator
	detector  *conflict.Detector
	deps      *DependencyChecker
	state     *StateStore
	licenses  domain.LicenseChecker

	mu    sync.RWMutex
	packs map[string]*domain.InstalledPack
	now   func() time.Time
}

// NewManager creates a Manager and loads the installed packs from disk
func NewManager(cfg ManagerConfig, licenses domain.LicenseChecker) (*Manager, error) {
	if cfg.PacksDir == "" {
		return nil, fmt.Errorf("packs directory is required")
	}
	if err := os.MkdirAll(cfg.PacksDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create packs directory: %w", err)
	}

	m := &Manager{
		packsDir:  cfg.PacksDir,
		appVer:    cfg.Platform.AppVersion,
		validator: NewManifestValidator(cfg.Platform),
		detector:  conflict.NewDetector(),
		deps:      NewDependencyChecker(cfg.MaxDependencyDepth),
		state:     NewStateStore(cfg.PacksDir),
		licenses:  licenses,
		packs:     make(map[string]*domain.InstalledPack),
		now:       time.Now,
	}

	m.removeStaleStaging()
	if err := m.Reload(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validator returns the manifest validator bound to the host platform
func (m *Manager) Validator() *ManifestValidator {
	return m.validator
}

// Reload rebuilds the in-memory registry from the packs directory and pack_state.json
func (m *Manager) Reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reloadLocked()
}

func (m *Manager) reloadLocked() error {
	if err := m.state.Load(); err != nil {
		log.Warn().Err(err).Msg("Failed to read pack state, treating every pack as disabled")
	}

	entries, err := os.ReadDir(m.packsDir)
	if err != nil {
		return fmt.Errorf("failed to read packs directory: %w", err)
	}

	packs := make(map[string]*domain.InstalledPack, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		packDir := filepath.Join(m.packsDir, entry.Name())
		pack, err := m.readPack(packDir)
		if err != nil {
			log.Warn().Err(err).Str("directory", packDir).Msg("Skipping invalid pack directory")
			continue
		}
		if pack.Manifest.PackID != entry.Name() {
			log.Warn().
				Str("directory", packDir).
				Str("pack_id", pack.Manifest.PackID).
				Msg("Skipping pack whose directory does not match its pack_id")
			continue
		}
		packs[pack.Manifest.PackID] = pack
	}

	m.packs = packs
	log.Debug().Int("packs", len(packs)).Msg("Pack registry loaded")
	return nil
}

// readPack builds an InstalledPack from a pack directory
func (m *Manager) readPack(packDir string) (*domain.InstalledPack, error) {
	manifest, err := ParseManifestFile(filepath.Join(packDir, ManifestFileName))
	if err != nil {
		return nil, err
	}

	checksum, size, err := Checksum(packDir)
	if err != nil {
		return nil, err
	}

	pack := &domain.InstalledPack{
		Manifest:  *manifest,
		Checksum:  checksum,
		SizeBytes: size,
		Directory: packDir,
	}

	if entry, ok := m.state.Get(manifest.PackID); ok {
		pack.Enabled = entry.Enabled
		pack.InstallDate = entry.InstalledAt
	}
	if pack.InstallDate.IsZero() {
		if info, err := os.Stat(packDir); err == nil {
			pack.InstallDate = info.ModTime()
		}
	}
	return pack, nil
}

// removeStaleStaging deletes extraction directories left behind by an interrupted import
func (m *Manager) removeStaleStaging() {
	matches, _ := filepath.Glob(filepath.Join(m.packsDir, stagingPrefix+"*"))
	for _, dir := range matches {
		if err := os.RemoveAll(dir); err == nil {
			log.Info().Str("directory", dir).Msg("Removed stale staging directory")
		}
	}
}

// Import installs a pack from a ZIP archive. The install is all-or-nothing: the pack
// is extracted to a staging directory and renamed over any previous install.
func (m *Manager) Import(ctx context.Context, archivePath string, opts ImportOptions) (*domain.InstalledPack, error) {
	zr, err := openArchive(archivePath)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	manifestFile := findEntry(zr.File, ManifestFileName)
	if manifestFile == nil {
		return nil, domain.NewAppError(domain.ErrMissingManifest,
			"archive has no manifest.json at its root", 400, map[string]any{"archive": archivePath})
	}
	data, err := readEntry(manifestFile)
	if err != nil {
		return nil, domain.NewAppErrorWithCause(domain.ErrInvalidArchive, "failed to read manifest.json", 400, err, nil)
	}

	manifest, err := m.validator.ValidateJSON(data)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	renamed := false
	if opts.AvoidCollision && !opts.Replace {
		if _, exists := m.packs[manifest.PackID]; exists {
			id, n := UniquePackID(manifest.PackID, func(candidate string) bool {
				_, taken := m.packs[candidate]
				return taken
			})
			log.Info().
				Str("pack_id", manifest.PackID).
				Str("new_pack_id", id).
				Msg("Pack id already installed, importing under a new id")
			manifest.PackID = id
			manifest.Name = CollisionName(manifest.Name, n)
			renamed = true
		}
	}

	if err := m.checkInstallableLocked(manifest, opts.Replace); err != nil {
		return nil, err
	}

	staging, err := os.MkdirTemp(m.packsDir, stagingPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	if err := extractEntries(zr.File, "", staging, ExportInfoFileName); err != nil {
		return nil, domain.NewAppErrorWithCause(domain.ErrInvalidArchive, "failed to extract pack archive", 400, err,
			map[string]any{"pack_id": manifest.PackID})
	}
	if renamed {
		if err := writeManifest(staging, manifest); err != nil {
			return nil, fmt.Errorf("failed to rewrite manifest: %w", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := m.installLocked(staging, manifest.PackID, false); err != nil {
		return nil, err
	}

	pack := m.packs[manifest.PackID]
	if pack == nil {
		return nil, domain.NewAppError(domain.ErrInternal, "pack was installed but could not be read back", 500,
			map[string]any{"pack_id": manifest.PackID})
	}

	log.Info().
		Str("pack_id", pack.Manifest.PackID).
		Str("version", pack.Manifest.Version).
		Str("checksum", pack.Checksum).
		Msg("Pack installed")
	return copyPack(pack), nil
}

// ImportReader installs a pack from a stream, such as a catalog download
func (m *Manager) ImportReader(ctx context.Context, r io.Reader, opts ImportOptions) (*domain.InstalledPack, error) {
	tmp, err := os.CreateTemp(m.packsDir, stagingPrefix+"*.zip")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}

	return m.Import(ctx, tmp.Name(), opts)
}

// checkInstallableLocked runs conflict detection and the dependency check.
// Every issue found is reported in the returned error's details.
func (m *Manager) checkInstallableLocked(manifest *domain.PackManifest, replace bool) error {
	conflicts := m.detector.Check(manifest, m.packs)
	if replace {
		filtered := conflicts[:0]
		for _, c := range conflicts {
			if c.Type != conflict.TypePackID {
				filtered = append(filtered, c)
			}
		}
		conflicts = filtered
	}
	if len(conflicts) > 0 {
		return domain.NewAppError(domain.ErrConflictsDetected,
			fmt.Sprintf("pack '%s' conflicts with installed packs", manifest.PackID), 409,
			map[string]any{"pack_id": manifest.PackID, "conflicts": conflict.Messages(conflicts)})
	}

	if missing := m.deps.CheckDependencies(manifest.Dependencies, m.packs); len(missing) > 0 {
		return missingDependenciesError(manifest.PackID, missing)
	}
	return nil
}

// installLocked moves an extracted pack into place and refreshes the registry
func (m *Manager) installLocked(staging, packID string, enabled bool) error {
	target := filepath.Join(m.packsDir, packID)
	if !isSubPath(m.packsDir, target) {
		return domain.NewAppError(domain.ErrInvalidFormat, "pack id resolves outside the packs directory", 422,
			map[string]any{"pack_id": packID})
	}

	prev, existed := m.state.Get(packID)
	if err := m.state.MarkInstalled(packID, enabled); err != nil {
		return stateError(packID, err)
	}

	if err := replaceDir(staging, target); err != nil {
		m.revertState(packID, prev, existed)
		return domain.NewAppErrorWithCause(domain.ErrInternal, "failed to install pack files", 500, err,
			map[string]any{"pack_id": packID})
	}

	return m.reloadLocked()
}

// revertState puts back a state entry after the file operation it described failed
func (m *Manager) revertState(packID string, prev domain.PackStateEntry, existed bool) {
	if err := m.state.Put(packID, prev, existed); err != nil {
		log.Error().Err(err).Str("pack_id", packID).Msg("Failed to revert pack state")
	}
}

func stateError(packID string, err error) *domain.AppError {
	return domain.NewAppErrorWithCause(domain.ErrInternal, "failed to persist pack state", 500, err,
		map[string]any{"pack_id": packID})
}

func missingDependenciesError(packID string, missing []string) *domain.AppError {
	return domain.NewAppError(domain.ErrMissingDependencies,
		fmt.Sprintf("pack '%s' has unsatisfied dependencies: %s", packID, strings.Join(missing, ", ")), 424,
		map[string]any{"pack_id": packID, "missing": missing})
}

func notInstalledError(packID string) *domain.AppError {
	return domain.NewAppError(domain.ErrNotInstalled,
		fmt.Sprintf("pack '%s' is not installed", packID), 404, map[string]any{"pack_id": packID})
}

// writeManifest replaces manifest.json in dir
func writeManifest(dir string, manifest *domain.PackManifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, ManifestFileName), data, 0644)
}

// Enable marks an installed pack enabled after checking its license and dependencies
func (m *Manager) Enable(ctx context.Context, packID string) error {
	m.mu.RLock()
	pack, ok := m.packs[packID]
	var licenseRequired bool
	if ok {
		licenseRequired = pack.Manifest.LicenseRequired
	}
	m.mu.RUnlock()

	if !ok {
		return notInstalledError(packID)
	}

	// The license check runs without the registry lock held
	if licenseRequired && (m.licenses == nil || !m.licenses.HasValidLicense(packID)) {
		return domain.NewAppError(domain.ErrLicenseRequired,
			fmt.Sprintf("pack '%s' requires a valid license", packID), 402, map[string]any{"pack_id": packID})
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pack, ok = m.packs[packID]
	if !ok {
		return notInstalledError(packID)
	}
	if missing := m.deps.CheckDependencies(pack.Manifest.Dependencies, m.packs); len(missing) > 0 {
		return missingDependenciesError(packID, missing)
	}

	if err := m.state.SetEnabled(packID, true); err != nil {
		return stateError(packID, err)
	}
	pack.Enabled = true

	log.Info().Str("pack_id", packID).Msg("Pack enabled")
	return nil
}

// Disable marks an installed pack disabled. Disabling a disabled pack is a no-op.
func (m *Manager) Disable(ctx context.Context, packID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pack, ok := m.packs[packID]
	if !ok {
		return notInstalledError(packID)
	}
	if !pack.Enabled {
		return nil
	}

	if err := m.state.SetEnabled(packID, false); err != nil {
		return stateError(packID, err)
	}
	pack.Enabled = false

	log.Info().Str("pack_id", packID).Msg("Pack disabled")
	return nil
}

// Uninstall removes a pack's files and state entry
func (m *Manager) Uninstall(ctx context.Context, packID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pack, ok := m.packs[packID]
	if !ok {
		return notInstalledError(packID)
	}

	prev, existed := m.state.Get(packID)
	if err := m.state.Remove(packID); err != nil {
		return stateError(packID, err)
	}
	if err := os.RemoveAll(pack.Directory); err != nil {
		m.revertState(packID, prev, existed)
		return domain.NewAppErrorWithCause(domain.ErrInternal, "failed to remove pack files", 500, err,
			map[string]any{"pack_id": packID})
	}
	delete(m.packs, packID)

	log.Info().Str("pack_id", packID).Msg("Pack uninstalled")
	return nil
}

// Export writes a pack's file tree plus export_info.json to a ZIP archive at dest
func (m *Manager) Export(ctx context.Context, packID, dest string) (*domain.ExportInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pack, ok := m.packs[packID]
	if !ok {
		return nil, notInstalledError(packID)
	}

	info := &domain.ExportInfo{
		PackID:     pack.Manifest.PackID,
		Name:       pack.Manifest.Name,
		Version:    pack.Manifest.Version,
		Checksum:   pack.Checksum,
		ExportedAt: m.now().UTC(),
	}
	infoData, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return nil, err
	}

	err = writeArchive(dest, func(zw *zip.Writer) error {
		if err := addDirToZip(zw, pack.Directory, ""); err != nil {
			return err
		}
		return addBytesToZip(zw, ExportInfoFileName, infoData)
	})
	if err != nil {
		return nil, domain.NewAppErrorWithCause(domain.ErrInternal, "failed to write export archive", 500, err,
			map[string]any{"pack_id": packID, "destination": dest})
	}

	log.Info().Str("pack_id", packID).Str("destination", dest).Msg("Pack exported")
	return info, nil
}

// List returns a summary of every installed pack, ordered by pack id
func (m *Manager) List() []domain.PackInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]domain.PackInfo, 0, len(m.packs))
	for _, pack := range m.packs {
		infos = append(infos, pack.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].PackID < infos[j].PackID })
	return infos
}

// Get returns a copy of an installed pack
func (m *Manager) Get(packID string) (*domain.InstalledPack, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pack, ok := m.packs[packID]
	if !ok {
		return nil, false
	}
	return copyPack(pack), true
}

// Installed returns a snapshot of the registry keyed by pack id
func (m *Manager) Installed() map[string]*domain.InstalledPack {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]*domain.InstalledPack, len(m.packs))
	for id, pack := range m.packs {
		out[id] = copyPack(pack)
	}
	return out
}

// IsInstalled checks if a pack is installed
func (m *Manager) IsInstalled(packID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.packs[packID]
	return ok
}

// IsEnabled checks if a pack is installed and enabled
func (m *Manager) IsEnabled(packID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pack, ok := m.packs[packID]
	return ok && pack.Enabled
}

// TrialFeatures returns the features a trial license of the pack unlocks
func (m *Manager) TrialFeatures(packID string) ([]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pack, ok := m.packs[packID]
	if !ok {
		return nil, false
	}
	features := pack.Manifest.TrialFeatures
	if len(features) == 0 {
		features = pack.Manifest.Features
	}
	return append([]string(nil), features...), true
}

// CheckDependencies reports the unsatisfied dependencies of a manifest against the registry
func (m *Manager) CheckDependencies(manifest *domain.PackManifest) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deps.CheckDependencies(manifest.Dependencies, m.packs)
}

// ResolveDependencies returns the actions needed before an installed pack can be enabled
func (m *Manager) ResolveDependencies(packID string) ([]domain.DependencyAction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deps.ResolveDependencies(packID, m.packs)
}

// HealthCheck reports whether the packs directory is usable
func (m *Manager) HealthCheck(ctx context.Context) domain.HealthStatus {
	status := domain.HealthStatus{
		Status:    domain.HealthStatusHealthy,
		Timestamp: time.Now(),
	}

	info, err := os.Stat(m.packsDir)
	if err != nil || !info.IsDir() {
		status.Status = domain.HealthStatusUnhealthy
		status.Message = "packs directory is not accessible"
		return status
	}

	status.Message = "pack registry is operational"
	status.Details = m.GetStats(ctx)
	return status
}

// GetStats returns registry statistics
func (m *Manager) GetStats(ctx context.Context) map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	enabled := 0
	var size int64
	for _, pack := range m.packs {
		if pack.Enabled {
			enabled++
		}
		size += pack.SizeBytes
	}
	return map[string]any{
		"installed_packs": len(m.packs),
		"enabled_packs":   enabled,
		"total_size":      size,
		"packs_dir":       m.packsDir,
	}
}

func copyPack(p *domain.InstalledPack) *domain.InstalledPack {
	c := *p
	return &c
}
