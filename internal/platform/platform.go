// Package platform describes the machine and application a pack is being installed on.
package platform

import (
	"runtime"
	"strings"
)

// OS name constants for runtime.GOOS comparisons.
const (
	Windows = "windows"
	Darwin  = "darwin"
	Linux   = "linux"
)

// Architecture names as they appear in pack manifests
const (
	ArchX64   = "x64"
	ArchX86   = "x86"
	ArchARM64 = "arm64"
	ArchARM   = "arm"
)

// Info is the read-only view of the running host used by manifest validation
type Info struct {
	OS         string
	Arch       string
	AppVersion string
}

// Current returns the platform info for this process
func Current(appVersion string) Info {
	return Info{
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		AppVersion: appVersion,
	}
}

var osAliases = map[string]string{
	"windows": Windows,
	"win32":   Windows,
	"win64":   Windows,
	"win":     Windows,
	"darwin":  Darwin,
	"macos":   Darwin,
	"mac":     Darwin,
	"osx":     Darwin,
	"linux":   Linux,
}

var archAliases = map[string]string{
	"x64":     ArchX64,
	"amd64":   ArchX64,
	"x86_64":  ArchX64,
	"x86-64":  ArchX64,
	"x86":     ArchX86,
	"386":     ArchX86,
	"i386":    ArchX86,
	"i686":    ArchX86,
	"arm64":   ArchARM64,
	"aarch64": ArchARM64,
	"arm":     ArchARM,
	"armv7":   ArchARM,
	"armv7l":  ArchARM,
}

// NormalizeOS maps the many spellings of an OS name to the GOOS value
func NormalizeOS(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if v, ok := osAliases[key]; ok {
		return v
	}
	return key
}

// NormalizeArch maps the many spellings of a CPU architecture to the manifest name
func NormalizeArch(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if v, ok := archAliases[key]; ok {
		return v
	}
	return key
}

// SupportsOS reports whether the host OS is in the given list
func (i Info) SupportsOS(platforms []string) bool {
	current := NormalizeOS(i.OS)
	for _, p := range platforms {
		if NormalizeOS(p) == current {
			return true
		}
	}
	return false
}

// SupportsArch reports whether the host architecture is in the given list
func (i Info) SupportsArch(archs []string) bool {
	current := NormalizeArch(i.Arch)
	for _, a := range archs {
		if NormalizeArch(a) == current {
			return true
		}
	}
	return false
}
