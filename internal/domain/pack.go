package domain

import (
	"encoding/json"
	"time"
)

// Audience values accepted in a manifest's target_audience field
var TargetAudiences = []string{"entrepreneur", "small_business", "freelancer", "enterprise", "any"}

// Category values accepted in a manifest's business_category field
var BusinessCategories = []string{
	"marketing", "sales", "finance", "operations", "legal",
	"hr", "analytics", "productivity", "integration", "other",
}

// PackManifest represents the manifest.json file at the root of a Tailor Pack archive.
// It is immutable once the pack is installed.
type PackManifest struct {
	PackID           string   `json:"pack_id" validate:"required,pack_id"`
	Name             string   `json:"name" validate:"required"`
	Version          string   `json:"version" validate:"required,semver"`
	Description      string   `json:"description" validate:"required"`
	Author           string   `json:"author" validate:"required"`
	TargetAudience   string   `json:"target_audience" validate:"oneof=entrepreneur small_business freelancer enterprise any"`
	BusinessCategory string   `json:"business_category" validate:"oneof=marketing sales finance operations legal hr analytics productivity integration other"`
	Features         []string `json:"features" validate:"min=1,dive,required"`
	UIComponents     []string `json:"ui_components,omitempty"`
	APIEndpoints     []string `json:"api_endpoints,omitempty"`
	Dependencies     []string `json:"dependencies,omitempty"`
	Permissions      []string `json:"permissions,omitempty"`
	MinAppVersion    string   `json:"min_app_version,omitempty"`

	PlatformCompatibility *PlatformCompatibility `json:"platform_compatibility,omitempty"`

	LicenseRequired bool   `json:"license_required,omitempty"`
	LicenseType     string `json:"license_type,omitempty"`

	// TrialFeatures lists the features a trial license unlocks, in order.
	// When empty the pack's features are used.
	TrialFeatures []string `json:"trial_features,omitempty"`

	// Extension names the registered extension factory for the pack.
	Extension string `json:"extension,omitempty"`
}

// PlatformCompatibility restricts where a pack can be installed
type PlatformCompatibility struct {
	SupportedPlatforms   []string   `json:"supported_platforms,omitempty"`
	RequiredArchitecture StringList `json:"required_architecture,omitempty"`
}

// StringList accepts either a single JSON string or a list of strings
type StringList []string

// UnmarshalJSON implements json.Unmarshaler
func (l *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*l = nil
		} else {
			*l = StringList{single}
		}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

// InstalledPack is a validated manifest plus the registry's bookkeeping for it
type InstalledPack struct {
	Manifest    PackManifest `json:"manifest"`
	InstallDate time.Time    `json:"install_date"`
	Enabled     bool         `json:"enabled"`
	Checksum    string       `json:"checksum"`
	SizeBytes   int64        `json:"size_bytes"`
	Directory   string       `json:"directory"`
}

// ID returns the pack identifier
func (p *InstalledPack) ID() string {
	return p.Manifest.PackID
}

// PackInfo is the summary of an installed pack shown to the host UI
type PackInfo struct {
	PackID           string    `json:"pack_id"`
	Name             string    `json:"name"`
	Version          string    `json:"version"`
	Description      string    `json:"description"`
	Author           string    `json:"author"`
	BusinessCategory string    `json:"business_category"`
	Features         []string  `json:"features"`
	Enabled          bool      `json:"enabled"`
	LicenseRequired  bool      `json:"license_required"`
	InstallDate      time.Time `json:"install_date,omitempty"`
	Checksum         string    `json:"checksum,omitempty"`
	SizeBytes        int64     `json:"size_bytes"`
}

// Info converts an installed pack to its summary
func (p *InstalledPack) Info() PackInfo {
	return PackInfo{
		PackID:           p.Manifest.PackID,
		Name:             p.Manifest.Name,
		Version:          p.Manifest.Version,
		Description:      p.Manifest.Description,
		Author:           p.Manifest.Author,
		BusinessCategory: p.Manifest.BusinessCategory,
		Features:         p.Manifest.Features,
		Enabled:          p.Enabled,
		LicenseRequired:  p.Manifest.LicenseRequired,
		InstallDate:      p.InstallDate,
		Checksum:         p.Checksum,
		SizeBytes:        p.SizeBytes,
	}
}

// PackStateEntry is one record of pack_state.json
type PackStateEntry struct {
	Enabled     bool      `json:"enabled"`
	LastUpdated time.Time `json:"last_updated"`
	InstalledAt time.Time `json:"installed_at,omitempty"`
}

// DependencyAction is one step of a dependency resolution plan
type DependencyAction struct {
	Action     string `json:"action"` // install | enable
	PackID     string `json:"pack_id"`
	RequiredBy string `json:"required_by"`
}

// Dependency resolution actions
const (
	ActionInstall = "install"
	ActionEnable  = "enable"
)

// BackupEntry describes one pack inside backup_manifest.json
type BackupEntry struct {
	PackID    string `json:"pack_id"`
	Name      string `json:"name"`
	Version   string `json:"version"`
	Enabled   bool   `json:"enabled"`
	SizeBytes int64  `json:"size"`
}

// BackupManifest is the content of backup_manifest.json
type BackupManifest struct {
	Version    string        `json:"version"`
	CreatedAt  time.Time     `json:"created_at"`
	AppVersion string        `json:"app_version,omitempty"`
	Packs      []BackupEntry `json:"packs"`
}

// ExportInfo is the content of export_info.json inside an exported pack
type ExportInfo struct {
	PackID     string    `json:"pack_id"`
	Name       string    `json:"name"`
	Version    string    `json:"version"`
	Checksum   string    `json:"checksum"`
	ExportedAt time.Time `json:"exported_at"`
}

// RestoreFailure names a pack that could not be restored and why
type RestoreFailure struct {
	PackID string `json:"pack_id"`
	Error  string `json:"error"`
}

// RestoreResult reports the outcome of restoring a backup
type RestoreResult struct {
	RestoredPacks []string         `json:"restored_packs"`
	FailedPacks   []RestoreFailure `json:"failed_packs"`
}

// CatalogEntry is a pack offered by the remote catalog
type CatalogEntry struct {
	PackID           string `json:"pack_id"`
	Name             string `json:"name"`
	Version          string `json:"version"`
	Description      string `json:"description"`
	Author           string `json:"author"`
	BusinessCategory string `json:"business_category,omitempty"`
	LicenseRequired  bool   `json:"license_required,omitempty"`
	Price            string `json:"price,omitempty"`
}

// CatalogIndex represents the remote catalog index
type CatalogIndex struct {
	Version   string         `json:"version"`
	UpdatedAt time.Time      `json:"updated_at"`
	Packs     []CatalogEntry `json:"packs"`
}

// PackUpdate represents an available update for an installed pack
type PackUpdate struct {
	PackID         string `json:"pack_id"`
	CurrentVersion string `json:"current_version"`
	LatestVersion  string `json:"latest_version"`
}
