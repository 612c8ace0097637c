package license

import "strings"

// Order number prefixes
const (
	OrderPrefixStore = "WF-"
	OrderPrefixTrial = "TRIAL-"
)

// ValidOrderFormat is the local syntax gate applied before any lookup.
// Store orders start with "WF-", trials with "TRIAL-"; other vendors use plain alphanumerics.
func ValidOrderFormat(order string) bool {
	if len(order) < 6 {
		return false
	}

	switch {
	case strings.HasPrefix(order, OrderPrefixStore):
		return len(order) >= 10
	case strings.HasPrefix(order, OrderPrefixTrial):
		return len(order) >= 15
	default:
		return len(order) >= 8 && isAlphanumeric(order)
	}
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
