package extension

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/wfassist/tailor/internal/domain"
)

// DashboardWidgets is the extension point for business dashboard widgets
const DashboardWidgets = "business_dashboard_widgets"

//go:embed points.yaml
var defaultPointsYAML []byte

type pointsFile struct {
	Points []domain.UIExtensionPoint `yaml:"points"`
}

// ParsePoints decodes an extension point catalog
func ParsePoints(data []byte) ([]domain.UIExtensionPoint, error) {
	var file pointsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse extension points: %w", err)
	}

	seen := make(map[string]bool, len(file.Points))
	for i, p := range file.Points {
		if p.Name == "" {
			return nil, fmt.Errorf("extension point %d has no name", i)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("extension point %q is defined twice", p.Name)
		}
		if p.MaxComponents <= 0 {
			return nil, fmt.Errorf("extension point %q must allow at least one component", p.Name)
		}
		seen[p.Name] = true
	}
	return file.Points, nil
}

// DefaultPoints returns the extension points built into the host UI
func DefaultPoints() []domain.UIExtensionPoint {
	points, err := ParsePoints(defaultPointsYAML)
	if err != nil {
		panic(err)
	}
	return points
}
