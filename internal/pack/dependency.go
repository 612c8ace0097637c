package pack

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/wfassist/tailor/internal/domain"
)

// DefaultMaxDependencyDepth bounds the resolver's recursion
const DefaultMaxDependencyDepth = 10

// DependencyChecker evaluates manifest dependencies against the installed packs
type DependencyChecker struct {
	maxDepth int
}

// NewDependencyChecker creates a new DependencyChecker. A non-positive depth uses the default.
func NewDependencyChecker(maxDepth int) *DependencyChecker {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDependencyDepth
	}
	return &DependencyChecker{maxDepth: maxDepth}
}

// CheckDependencies returns one message per unsatisfied dependency:
// "<id>" when not installed, "<id> (disabled)" when installed but disabled and
// "<id> (version <range> required, have <version>)" when the installed version is out of range.
func (c *DependencyChecker) CheckDependencies(deps []string, installed map[string]*domain.InstalledPack) []string {
	var missing []string

	for _, dep := range deps {
		packID, constraint, err := ParseDependency(dep)
		if err != nil {
			missing = append(missing, dep)
			continue
		}

		pack, ok := installed[packID]
		if !ok {
			missing = append(missing, packID)
			continue
		}

		if !pack.Enabled {
			missing = append(missing, fmt.Sprintf("%s (disabled)", packID))
			continue
		}

		if constraint == "" {
			continue
		}

		satisfied, err := SatisfiesConstraint(pack.Manifest.Version, constraint)
		if err != nil || !satisfied {
			missing = append(missing, fmt.Sprintf("%s (version %s required, have %s)",
				packID, constraint, pack.Manifest.Version))
		}
	}

	return missing
}

// ResolveDependencies walks the dependency graph of an installed pack depth-first and
// returns the actions needed before it can be enabled, prerequisites first.
func (c *DependencyChecker) ResolveDependencies(packID string, installed map[string]*domain.InstalledPack) ([]domain.DependencyAction, error) {
	pack, ok := installed[packID]
	if !ok {
		return nil, domain.NewAppError(domain.ErrNotInstalled,
			fmt.Sprintf("pack '%s' is not installed", packID), 404, map[string]any{"pack_id": packID})
	}
	return c.ResolveManifest(&pack.Manifest, installed)
}

// ResolveManifest is ResolveDependencies for a manifest that may not be installed yet
func (c *DependencyChecker) ResolveManifest(manifest *domain.PackManifest, installed map[string]*domain.InstalledPack) ([]domain.DependencyAction, error) {
	r := &resolution{
		checker:   c,
		installed: installed,
		visited:   make(map[string]bool),
	}
	if err := r.walk(manifest.PackID, manifest.Dependencies, 0); err != nil {
		return nil, err
	}
	return r.actions, nil
}

type resolution struct {
	checker   *DependencyChecker
	installed map[string]*domain.InstalledPack
	visited   map[string]bool
	actions   []domain.DependencyAction
}

// walk only marks a pack visited once its subtree is done, so a cycle keeps
// recursing until it hits the depth bound.
func (r *resolution) walk(requiredBy string, deps []string, depth int) error {
	if depth > r.checker.maxDepth {
		log.Warn().
			Str("pack_id", requiredBy).
			Int("max_depth", r.checker.maxDepth).
			Msg("Dependency resolution exceeded maximum depth")
		return domain.NewAppError(domain.ErrCircularDependency,
			fmt.Sprintf("dependency chain of '%s' exceeds depth %d", requiredBy, r.checker.maxDepth), 422,
			map[string]any{"pack_id": requiredBy, "max_depth": r.checker.maxDepth})
	}

	for _, dep := range deps {
		packID, _, err := ParseDependency(dep)
		if err != nil {
			return domain.NewAppErrorWithCause(domain.ErrInvalidFormat,
				fmt.Sprintf("invalid dependency '%s' in pack '%s'", dep, requiredBy), 422, err, nil)
		}
		if r.visited[packID] {
			continue
		}

		pack, ok := r.installed[packID]
		if !ok {
			r.visited[packID] = true
			r.actions = append(r.actions, domain.DependencyAction{
				Action:     domain.ActionInstall,
				PackID:     packID,
				RequiredBy: requiredBy,
			})
			continue
		}

		if err := r.walk(packID, pack.Manifest.Dependencies, depth+1); err != nil {
			return err
		}
		if r.visited[packID] {
			continue
		}
		r.visited[packID] = true

		if !pack.Enabled {
			r.actions = append(r.actions, domain.DependencyAction{
				Action:     domain.ActionEnable,
				PackID:     packID,
				RequiredBy: requiredBy,
			})
		}
	}

	return nil
}
