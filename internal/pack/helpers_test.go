package pack

import (
	"archive/zip"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wfassist/tailor/internal/domain"
	"github.com/wfassist/tailor/internal/platform"
)

var testPlatform = platform.Info{OS: platform.Linux, Arch: platform.ArchX64, AppVersion: "2.1.0"}

// testManifest returns a valid manifest as decoded JSON
func testManifest(id string) map[string]any {
	return map[string]any{
		"pack_id":           id,
		"name":              "Pack " + id,
		"version":           "1.0.0",
		"description":       "Test pack " + id,
		"author":            "Tailor",
		"target_audience":   "small_business",
		"business_category": "finance",
		"features":          []any{id + "-feature"},
	}
}

// writePackArchive writes a pack ZIP with manifest.json at its root plus extra files
func writePackArchive(t *testing.T, dir string, manifest map[string]any, files map[string]string) string {
	t.Helper()

	path := filepath.Join(dir, manifest["pack_id"].(string)+".zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	data, err := json.Marshal(manifest)
	require.NoError(t, err)
	w, err := zw.Create(ManifestFileName)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(files[name]))
		require.NoError(t, err)
	}

	require.NoError(t, zw.Close())
	return path
}

type stubLicenses map[string]bool

func (s stubLicenses) HasValidLicense(packID string) bool {
	return s[packID]
}

func newTestManager(t *testing.T, licenses domain.LicenseChecker) *Manager {
	t.Helper()
	m, err := NewManager(ManagerConfig{
		PacksDir: filepath.Join(t.TempDir(), "packs"),
		Platform: testPlatform,
	}, licenses)
	require.NoError(t, err)
	return m
}

// installPack imports a manifest with no extra files and returns the installed pack
func installPack(t *testing.T, m *Manager, manifest map[string]any) *domain.InstalledPack {
	t.Helper()
	archive := writePackArchive(t, t.TempDir(), manifest, map[string]string{"assets/readme.txt": "hello"})
	pack, err := m.Import(t.Context(), archive, ImportOptions{})
	require.NoError(t, err)
	return pack
}
