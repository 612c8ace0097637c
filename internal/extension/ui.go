package extension

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/wfassist/tailor/internal/domain"
)

// UIRegistry holds the components packs place at each extension point
type UIRegistry struct {
	mu         sync.RWMutex
	points     map[string]domain.UIExtensionPoint
	components map[string][]*domain.UIComponent // extension point -> components
}

// NewUIRegistry creates a registry with the given extension points
func NewUIRegistry(points []domain.UIExtensionPoint) *UIRegistry {
	r := &UIRegistry{
		points:     make(map[string]domain.UIExtensionPoint, len(points)),
		components: make(map[string][]*domain.UIComponent),
	}
	for _, p := range points {
		r.points[p.Name] = p
	}
	return r
}

// RegisterPoint adds an extension point
func (r *UIRegistry) RegisterPoint(p domain.UIExtensionPoint) error {
	if p.Name == "" || p.MaxComponents <= 0 {
		return domain.NewAppError(domain.ErrInvalidInput,
			"extension point needs a name and a positive max_components", 400, map[string]any{"extension_point": p.Name})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.points[p.Name]; exists {
		return domain.NewAppError(domain.ErrComponentRejected,
			fmt.Sprintf("extension point '%s' already exists", p.Name), 409, map[string]any{"extension_point": p.Name})
	}
	r.points[p.Name] = p
	return nil
}

// Point returns an extension point by name
func (r *UIRegistry) Point(name string) (domain.UIExtensionPoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.points[name]
	return p, ok
}

// Points returns every extension point ordered by name
func (r *UIRegistry) Points() []domain.UIExtensionPoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.UIExtensionPoint, 0, len(r.points))
	for _, p := range r.points {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RegisterComponent places a component at its extension point. Disabled components
// count against the point's max_components.
func (r *UIRegistry) RegisterComponent(c domain.UIComponent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	details := map[string]any{
		"pack_id":         c.PackID,
		"component_id":    c.ComponentID,
		"extension_point": c.ExtensionPoint,
	}

	point, ok := r.points[c.ExtensionPoint]
	if !ok {
		return domain.NewAppError(domain.ErrNotFound,
			fmt.Sprintf("extension point '%s' does not exist", c.ExtensionPoint), 404, details)
	}

	list := r.components[c.ExtensionPoint]
	if len(list) >= point.MaxComponents {
		return domain.NewAppError(domain.ErrComponentRejected,
			fmt.Sprintf("extension point '%s' is full (%d components)", c.ExtensionPoint, point.MaxComponents), 409, details)
	}
	for _, existing := range list {
		if existing.PackID == c.PackID && existing.ComponentID == c.ComponentID {
			return domain.NewAppError(domain.ErrComponentRejected,
				fmt.Sprintf("component '%s' of pack '%s' is already registered at '%s'", c.ComponentID, c.PackID, c.ExtensionPoint),
				409, details)
		}
	}

	stored := c
	stored.Config = copyConfig(c.Config)
	list = append(list, &stored)
	if point.Ordered {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Priority < list[j].Priority })
	}
	r.components[c.ExtensionPoint] = list

	log.Debug().
		Str("pack_id", c.PackID).
		Str("component_id", c.ComponentID).
		Str("extension_point", c.ExtensionPoint).
		Int("priority", c.Priority).
		Msg("UI component registered")
	return nil
}

// UnregisterPack removes every component of a pack from every extension point
func (r *UIRegistry) UnregisterPack(packID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for point, list := range r.components {
		kept := list[:0]
		for _, c := range list {
			if c.PackID == packID {
				removed++
				continue
			}
			kept = append(kept, c)
		}
		if len(kept) == 0 {
			delete(r.components, point)
			continue
		}
		r.components[point] = kept
	}

	if removed > 0 {
		log.Debug().Str("pack_id", packID).Int("removed", removed).Msg("UI components unregistered")
	}
	return removed
}

// EnableComponent makes a registered component visible
func (r *UIRegistry) EnableComponent(point, packID, componentID string) error {
	return r.setEnabled(point, packID, componentID, true)
}

// DisableComponent hides a component without unregistering it
func (r *UIRegistry) DisableComponent(point, packID, componentID string) error {
	return r.setEnabled(point, packID, componentID, false)
}

func (r *UIRegistry) setEnabled(point, packID, componentID string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.components[point] {
		if c.PackID == packID && c.ComponentID == componentID {
			c.Enabled = enabled
			return nil
		}
	}
	return domain.NewAppError(domain.ErrNotFound,
		fmt.Sprintf("component '%s' of pack '%s' is not registered at '%s'", componentID, packID, point), 404,
		map[string]any{"pack_id": packID, "component_id": componentID, "extension_point": point})
}

// Components returns every component at a point in display order
func (r *UIRegistry) Components(point string) []domain.UIComponent {
	return r.filter(point, func(*domain.UIComponent) bool { return true })
}

// EnabledComponents returns the visible components at a point in display order
func (r *UIRegistry) EnabledComponents(point string) []domain.UIComponent {
	return r.filter(point, func(c *domain.UIComponent) bool { return c.Enabled })
}

func (r *UIRegistry) filter(point string, keep func(*domain.UIComponent) bool) []domain.UIComponent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.UIComponent, 0, len(r.components[point]))
	for _, c := range r.components[point] {
		if keep(c) {
			cp := *c
			cp.Config = copyConfig(c.Config)
			out = append(out, cp)
		}
	}
	return out
}

// ForPack returns every component a pack has registered, grouped by extension point name
func (r *UIRegistry) ForPack(packID string) []domain.UIComponent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.components))
	for name := range r.components {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []domain.UIComponent
	for _, name := range names {
		for _, c := range r.components[name] {
			if c.PackID == packID {
				out = append(out, *c)
			}
		}
	}
	return out
}

// Count returns the number of components a pack has registered
func (r *UIRegistry) Count(packID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, list := range r.components {
		for _, c := range list {
			if c.PackID == packID {
				n++
			}
		}
	}
	return n
}

func copyConfig(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
