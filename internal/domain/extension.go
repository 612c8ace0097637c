package domain

// CapabilityKeySeparator separates the pack namespace from a capability ID
const CapabilityKeySeparator = ":"

// PackCapability is a named feature unit contributed by a pack
type PackCapability struct {
	PackID       string   `json:"pack_id"`
	CapabilityID string   `json:"capability_id"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Category     string   `json:"category"`
	APIEndpoints []string `json:"api_endpoints,omitempty"`
}

// Key returns the registry key "pack_id:capability_id"
func (c PackCapability) Key() string {
	return CapabilityKey(c.PackID, c.CapabilityID)
}

// CapabilityKey builds the registry key for a capability
func CapabilityKey(packID, capabilityID string) string {
	return packID + CapabilityKeySeparator + capabilityID
}

// UIExtensionPoint is a named slot in the host UI that packs can contribute to
type UIExtensionPoint struct {
	Name          string `json:"name" yaml:"name"`
	Description   string `json:"description" yaml:"description"`
	ComponentType string `json:"component_type" yaml:"component_type"`
	MaxComponents int    `json:"max_components" yaml:"max_components"`
	Ordered       bool   `json:"ordered" yaml:"ordered"`
}

// UIComponent is a component a pack places at an extension point
type UIComponent struct {
	PackID         string         `json:"pack_id"`
	ComponentID    string         `json:"component_id"`
	ExtensionPoint string         `json:"extension_point"`
	Title          string         `json:"title,omitempty"`
	Priority       int            `json:"priority"`
	Enabled        bool           `json:"enabled"`
	Config         map[string]any `json:"config,omitempty"`
}

// PackStatus reports what the extension layer currently holds for a pack
type PackStatus struct {
	PackID            string `json:"pack_id"`
	Installed         bool   `json:"installed"`
	Enabled           bool   `json:"enabled"`
	Loaded            bool   `json:"loaded"`
	CapabilitiesCount int    `json:"capabilities_count"`
	ComponentsCount   int    `json:"components_count"`
	Version           string `json:"version,omitempty"`
	HasValidLicense   bool   `json:"has_valid_license"`
}
