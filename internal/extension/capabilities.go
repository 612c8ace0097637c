// Package extension holds the registries packs contribute capabilities and UI
// components to, and the loader that instantiates pack extensions.
package extension

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/wfassist/tailor/internal/domain"
)

// CapabilityRegistry indexes pack capabilities by key, capability id, category, pack and API endpoint
type CapabilityRegistry struct {
	mu         sync.RWMutex
	byKey      map[string]domain.PackCapability
	byID       map[string]string              // capability_id -> owning pack
	byCategory map[string]map[string]struct{} // category -> keys
	byPack     map[string][]string            // pack -> keys in registration order
	byEndpoint map[string]string              // endpoint -> key
}

// NewCapabilityRegistry creates an empty registry
func NewCapabilityRegistry() *CapabilityRegistry {
	return &CapabilityRegistry{
		byKey:      make(map[string]domain.PackCapability),
		byID:       make(map[string]string),
		byCategory: make(map[string]map[string]struct{}),
		byPack:     make(map[string][]string),
		byEndpoint: make(map[string]string),
	}
}

// Register adds a capability. It returns false and logs a warning when the capability id
// is already registered or one of its API endpoints is claimed by another capability.
func (r *CapabilityRegistry) Register(c domain.PackCapability) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := c.Key()
	logger := log.With().
		Str("pack_id", c.PackID).
		Str("capability_id", c.CapabilityID).
		Logger()

	if owner, ok := r.byID[c.CapabilityID]; ok {
		logger.Warn().Str("owner", owner).Msg("Capability already registered, ignoring")
		return false
	}

	for _, endpoint := range c.APIEndpoints {
		if existing, ok := r.byEndpoint[endpoint]; ok {
			logger.Warn().Str("endpoint", endpoint).Str("owner", existing).Msg("API endpoint already claimed, ignoring capability")
			return false
		}
	}

	c.APIEndpoints = append([]string(nil), c.APIEndpoints...)
	r.byKey[key] = c
	r.byID[c.CapabilityID] = c.PackID
	if r.byCategory[c.Category] == nil {
		r.byCategory[c.Category] = make(map[string]struct{})
	}
	r.byCategory[c.Category][key] = struct{}{}
	r.byPack[c.PackID] = append(r.byPack[c.PackID], key)
	for _, endpoint := range c.APIEndpoints {
		r.byEndpoint[endpoint] = key
	}

	logger.Debug().Str("category", c.Category).Msg("Capability registered")
	return true
}

// UnregisterPack removes every capability of a pack from all indexes and returns how many were removed
func (r *CapabilityRegistry) UnregisterPack(packID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := r.byPack[packID]
	for _, key := range keys {
		c, ok := r.byKey[key]
		if !ok {
			continue
		}
		delete(r.byKey, key)
		delete(r.byID, c.CapabilityID)
		if set := r.byCategory[c.Category]; set != nil {
			delete(set, key)
			if len(set) == 0 {
				delete(r.byCategory, c.Category)
			}
		}
		for _, endpoint := range c.APIEndpoints {
			if r.byEndpoint[endpoint] == key {
				delete(r.byEndpoint, endpoint)
			}
		}
	}
	delete(r.byPack, packID)

	if len(keys) > 0 {
		log.Debug().Str("pack_id", packID).Int("removed", len(keys)).Msg("Capabilities unregistered")
	}
	return len(keys)
}

// Get returns a capability by pack and capability id
func (r *CapabilityRegistry) Get(packID, capabilityID string) (domain.PackCapability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byKey[domain.CapabilityKey(packID, capabilityID)]
	return c, ok
}

// ByCategory returns the capabilities in a category ordered by key
func (r *CapabilityRegistry) ByCategory(category string) []domain.PackCapability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.byCategory[category]))
	for key := range r.byCategory[category] {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return r.collect(keys)
}

// ForPack returns a pack's capabilities in registration order
func (r *CapabilityRegistry) ForPack(packID string) []domain.PackCapability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(r.byPack[packID])
}

// ForEndpoint returns the capability serving an API endpoint
func (r *CapabilityRegistry) ForEndpoint(endpoint string) (domain.PackCapability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.byEndpoint[endpoint]
	if !ok {
		return domain.PackCapability{}, false
	}
	return r.byKey[key], true
}

// All returns every capability ordered by key
func (r *CapabilityRegistry) All() []domain.PackCapability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.byKey))
	for key := range r.byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return r.collect(keys)
}

// Categories returns the categories that currently hold capabilities
func (r *CapabilityRegistry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byCategory))
	for category := range r.byCategory {
		out = append(out, category)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of capabilities a pack has registered
func (r *CapabilityRegistry) Count(packID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byPack[packID])
}

// Len returns the total number of registered capabilities
func (r *CapabilityRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}

func (r *CapabilityRegistry) collect(keys []string) []domain.PackCapability {
	out := make([]domain.PackCapability, 0, len(keys))
	for _, key := range keys {
		if c, ok := r.byKey[key]; ok {
			out = append(out, c)
		}
	}
	return out
}
