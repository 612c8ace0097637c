package pack

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/wfassist/tailor/internal/domain"
)

// BackupFormatVersion is written to backup_manifest.json
const BackupFormatVersion = "1.0"

// Backup writes every installed pack to a ZIP archive at dest, one directory per pack
// plus backup_manifest.json.
func (m *Manager) Backup(ctx context.Context, dest string) (*domain.BackupManifest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.packs))
	for id := range m.packs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	manifest := &domain.BackupManifest{
		Version:    BackupFormatVersion,
		CreatedAt:  m.now().UTC(),
		AppVersion: m.appVer,
		Packs:      make([]domain.BackupEntry, 0, len(ids)),
	}

	err := writeArchive(dest, func(zw *zip.Writer) error {
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			pack := m.packs[id]
			if err := addDirToZip(zw, pack.Directory, id); err != nil {
				return fmt.Errorf("failed to add pack %s: %w", id, err)
			}
			manifest.Packs = append(manifest.Packs, domain.BackupEntry{
				PackID:    id,
				Name:      pack.Manifest.Name,
				Version:   pack.Manifest.Version,
				Enabled:   pack.Enabled,
				SizeBytes: pack.SizeBytes,
			})
		}

		data, err := json.MarshalIndent(manifest, "", "  ")
		if err != nil {
			return err
		}
		return addBytesToZip(zw, BackupManifestFileName, data)
	})
	if err != nil {
		return nil, domain.NewAppErrorWithCause(domain.ErrInternal, "failed to write backup archive", 500, err,
			map[string]any{"destination": dest})
	}

	log.Info().Int("packs", len(manifest.Packs)).Str("destination", dest).Msg("Backup created")
	return manifest, nil
}

// OpenedBackup is a backup archive whose manifest has been read and decoded
type OpenedBackup struct {
	Manifest domain.BackupManifest
	zr       *zip.ReadCloser
}

// PackIDs lists the packs the backup contains
func (b *OpenedBackup) PackIDs() []string {
	ids := make([]string, 0, len(b.Manifest.Packs))
	for _, item := range b.Manifest.Packs {
		ids = append(ids, item.PackID)
	}
	return ids
}

// Close releases the archive
func (b *OpenedBackup) Close() error {
	return b.zr.Close()
}

// OpenBackup opens a backup archive and decodes backup_manifest.json without
// touching any installed pack.
func OpenBackup(archivePath string) (*OpenedBackup, error) {
	zr, err := openArchive(archivePath)
	if err != nil {
		return nil, err
	}

	entry := findEntry(zr.File, BackupManifestFileName)
	if entry == nil {
		zr.Close()
		return nil, domain.NewAppError(domain.ErrMissingManifest,
			"archive has no backup_manifest.json at its root", 400, map[string]any{"archive": archivePath})
	}
	data, err := readEntry(entry)
	if err != nil {
		zr.Close()
		return nil, domain.NewAppErrorWithCause(domain.ErrInvalidArchive, "failed to read backup manifest", 400, err, nil)
	}
	var backup domain.BackupManifest
	if err := json.Unmarshal(data, &backup); err != nil {
		zr.Close()
		return nil, domain.NewAppErrorWithCause(domain.ErrInvalidFormat, "backup manifest is not valid JSON", 422, err, nil)
	}

	return &OpenedBackup{Manifest: backup, zr: zr}, nil
}

// Restore installs every pack listed in a backup archive. It continues past individual
// failures and reports them in the result. Restored packs replace installed ones with the
// same id and keep their recorded enabled flag unless a required license is missing.
func (m *Manager) Restore(ctx context.Context, archivePath string) (*domain.RestoreResult, error) {
	backup, err := OpenBackup(archivePath)
	if err != nil {
		return nil, err
	}
	defer backup.Close()

	return m.RestoreFrom(ctx, backup)
}

// RestoreFrom restores the packs of an already opened backup
func (m *Manager) RestoreFrom(ctx context.Context, backup *OpenedBackup) (*domain.RestoreResult, error) {
	result := &domain.RestoreResult{
		RestoredPacks: []string{},
		FailedPacks:   []domain.RestoreFailure{},
	}

	for _, item := range backup.Manifest.Packs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if err := m.restorePack(backup.zr.File, item); err != nil {
			log.Warn().Err(err).Str("pack_id", item.PackID).Msg("Failed to restore pack")
			result.FailedPacks = append(result.FailedPacks, domain.RestoreFailure{
				PackID: item.PackID,
				Error:  err.Error(),
			})
			continue
		}
		result.RestoredPacks = append(result.RestoredPacks, item.PackID)
	}

	log.Info().
		Int("restored", len(result.RestoredPacks)).
		Int("failed", len(result.FailedPacks)).
		Msg("Backup restore finished")
	return result, nil
}

// restorePack extracts and installs a single pack from a backup archive
func (m *Manager) restorePack(files []*zip.File, item domain.BackupEntry) error {
	if !IsValidPackID(item.PackID) {
		return fmt.Errorf("invalid pack id %q", item.PackID)
	}

	staging, err := os.MkdirTemp(m.packsDir, stagingPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	if err := extractEntries(files, item.PackID+"/", staging); err != nil {
		return fmt.Errorf("failed to extract pack: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(staging, ManifestFileName))
	if err != nil {
		return domain.NewAppErrorWithCause(domain.ErrMissingManifest, "pack has no manifest.json", 400, err, nil)
	}
	manifest, err := m.validator.ValidateJSON(data)
	if err != nil {
		return err
	}
	if manifest.PackID != item.PackID {
		return fmt.Errorf("manifest pack_id %q does not match backup entry", manifest.PackID)
	}

	enabled := item.Enabled
	if enabled && manifest.LicenseRequired && (m.licenses == nil || !m.licenses.HasValidLicense(manifest.PackID)) {
		log.Warn().Str("pack_id", manifest.PackID).Msg("Restoring licensed pack as disabled: no valid license")
		enabled = false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.installLocked(staging, manifest.PackID, enabled); err != nil {
		return err
	}
	if err := m.state.SetEnabled(manifest.PackID, enabled); err != nil {
		return fmt.Errorf("failed to persist pack state: %w", err)
	}
	if pack, ok := m.packs[manifest.PackID]; ok {
		pack.Enabled = enabled
	}
	return nil
}
