package pack

import (
	"fmt"
	"strconv"
	"strings"
)

// CollisionSeparator joins a pack id to the counter that makes it unique
const CollisionSeparator = "-"

// UniquePackID returns id unchanged when it is free, otherwise the first free
// "<id>-N" for N starting at 2. A trailing counter already on id is replaced.
func UniquePackID(id string, taken func(string) bool) (string, int) {
	if !taken(id) {
		return id, 1
	}

	base := BaseID(id)
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s%s%d", base, CollisionSeparator, n)
		if !taken(candidate) {
			return candidate, n
		}
	}
}

// BaseID strips a numeric collision counter from a pack id
func BaseID(id string) string {
	idx := strings.LastIndex(id, CollisionSeparator)
	if idx <= 0 || idx == len(id)-1 {
		return id
	}
	n, err := strconv.Atoi(id[idx+1:])
	if err != nil || n < 2 {
		return id
	}
	return id[:idx]
}

// CollisionName is the display name given to a pack renamed by UniquePackID
func CollisionName(name string, n int) string {
	if n <= 1 {
		return name
	}
	return fmt.Sprintf("%s (%d)", name, n)
}
