package conflict

import (
	"slices"
	"sort"
	"strings"

	"github.com/wfassist/tailor/internal/domain"
)

// Detector identifies overlaps between a candidate manifest and installed packs
type Detector struct{}

// NewDetector creates a new conflict detector
func NewDetector() *Detector {
	return &Detector{}
}

// Check returns every conflict between the manifest and the installed packs.
// Feature, UI component and API endpoint overlaps only count against enabled packs.
func (d *Detector) Check(manifest *domain.PackManifest, installed map[string]*domain.InstalledPack) []Conflict {
	var conflicts []Conflict

	if _, exists := installed[manifest.PackID]; exists {
		conflicts = append(conflicts, newConflict(TypePackID, manifest.PackID, manifest.PackID))
	}

	// Iterate in a fixed order so results are stable for callers and tests
	for _, id := range sortedIDs(installed) {
		pack := installed[id]
		if id == manifest.PackID {
			continue
		}

		if strings.EqualFold(pack.Manifest.Name, manifest.Name) {
			conflicts = append(conflicts, newConflict(TypeName, manifest.Name, id))
		}

		if !pack.Enabled {
			continue
		}

		conflicts = append(conflicts, overlaps(TypeFeature, manifest.Features, pack.Manifest.Features, id)...)
		conflicts = append(conflicts, overlaps(TypeUIComponent, manifest.UIComponents, pack.Manifest.UIComponents, id)...)
		conflicts = append(conflicts, overlaps(TypeAPIEndpoint, manifest.APIEndpoints, pack.Manifest.APIEndpoints, id)...)
	}

	return conflicts
}

// HasConflict reports whether Check would return anything
func (d *Detector) HasConflict(manifest *domain.PackManifest, installed map[string]*domain.InstalledPack) bool {
	return len(d.Check(manifest, installed)) > 0
}

func overlaps(t Type, candidate, claimed []string, owner string) []Conflict {
	var out []Conflict
	for _, value := range candidate {
		if slices.Contains(claimed, value) {
			out = append(out, newConflict(t, value, owner))
		}
	}
	return out
}

func sortedIDs(installed map[string]*domain.InstalledPack) []string {
	ids := make([]string, 0, len(installed))
	for id := range installed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
