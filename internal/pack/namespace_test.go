package pack

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUniquePackID(t *testing.T) {
	taken := map[string]bool{"crm": true, "crm-2": true, "tax-2": true}
	isTaken := func(id string) bool { return taken[id] }

	tests := []struct {
		id       string
		expected string
		counter  int
	}{
		{"ledger", "ledger", 1},
		{"crm", "crm-3", 3},
		{"crm-2", "crm-3", 3},
		{"tax-2", "tax-3", 3},
		{"my-pack", "my-pack", 1},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			id, n := UniquePackID(tt.id, isTaken)
			assert.Equal(t, tt.expected, id)
			assert.Equal(t, tt.counter, n)
		})
	}
}

func TestBaseID(t *testing.T) {
	assert.Equal(t, "crm", BaseID("crm-2"))
	assert.Equal(t, "crm-1", BaseID("crm-1"))
	assert.Equal(t, "my-pack", BaseID("my-pack"))
	assert.Equal(t, "crm-", BaseID("crm-"))
	assert.Equal(t, "-2", BaseID("-2"))
}

func TestCollisionName(t *testing.T) {
	assert.Equal(t, "CRM", CollisionName("CRM", 1))
	assert.Equal(t, "CRM (2)", CollisionName("CRM", 2))
}
