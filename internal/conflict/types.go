// Package conflict detects overlaps between a candidate pack manifest and the packs already installed.
package conflict

import "fmt"

// Type names the kind of overlap a conflict describes
type Type string

// Conflict categories. Every category is reported, not just the first hit.
const (
	TypePackID      Type = "pack_id"
	TypeName        Type = "name"
	TypeFeature     Type = "feature"
	TypeUIComponent Type = "ui_component"
	TypeAPIEndpoint Type = "api_endpoint"
)

// Conflict describes one overlap between a candidate manifest and an installed pack
type Conflict struct {
	Type            Type   `json:"type"`
	Value           string `json:"value"`
	ConflictingPack string `json:"conflicting_pack"`
	Message         string `json:"message"`
}

// String returns the human-readable description shown to the user
func (c Conflict) String() string {
	return c.Message
}

func newConflict(t Type, value, pack string) Conflict {
	var msg string
	switch t {
	case TypePackID:
		msg = fmt.Sprintf("Pack ID '%s' is already installed", value)
	case TypeName:
		msg = fmt.Sprintf("Pack name '%s' is already used by pack '%s'", value, pack)
	case TypeFeature:
		msg = fmt.Sprintf("Feature '%s' is already provided by pack '%s'", value, pack)
	case TypeUIComponent:
		msg = fmt.Sprintf("UI component '%s' is already provided by pack '%s'", value, pack)
	case TypeAPIEndpoint:
		msg = fmt.Sprintf("API endpoint '%s' is already provided by pack '%s'", value, pack)
	default:
		msg = fmt.Sprintf("%s '%s' conflicts with pack '%s'", t, value, pack)
	}
	return Conflict{Type: t, Value: value, ConflictingPack: pack, Message: msg}
}

// Messages flattens conflicts into the list of strings reported in an error
func Messages(conflicts []Conflict) []string {
	out := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, c.Message)
	}
	return out
}
