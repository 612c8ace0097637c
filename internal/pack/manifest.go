// Package pack provides functionality for managing Tailor Packs.
// It handles manifest validation, dependency checks, archive installation and the
// on-disk registry of installed packs.
package pack

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/wfassist/tailor/internal/domain"
	"github.com/wfassist/tailor/internal/platform"
)

// ManifestFileName is the standard name for pack manifest files
const ManifestFileName = "manifest.json"

// RequiredManifestFields are checked for presence before anything else, in this order
var RequiredManifestFields = []string{
	"pack_id", "name", "version", "description", "author",
	"target_audience", "business_category", "features",
}

var (
	packIDRegex          = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	manifestVersionRegex = regexp.MustCompile(`^\d+\.\d+\.\d+(-\w+)?$`)
)

// IsValidPackID checks a pack identifier against the allowed character set
func IsValidPackID(id string) bool {
	return packIDRegex.MatchString(id)
}

// ParseManifestFile reads and decodes a manifest without validating it
func ParseManifestFile(path string) (*domain.PackManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	var manifest domain.PackManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest JSON: %w", err)
	}
	return &manifest, nil
}

// ManifestValidator validates pack manifests against the manifest schema and the host platform
type ManifestValidator struct {
	platform platform.Info
	validate *validator.Validate
}

// NewManifestValidator creates a validator bound to the given platform
func NewManifestValidator(info platform.Info) *ManifestValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("pack_id", func(fl validator.FieldLevel) bool {
		return IsValidPackID(fl.Field().String())
	})
	_ = v.RegisterValidation("semver", func(fl validator.FieldLevel) bool {
		return manifestVersionRegex.MatchString(fl.Field().String())
	})

	return &ManifestValidator{platform: info, validate: v}
}

// ValidateJSON decodes raw manifest bytes and validates them
func (v *ManifestValidator) ValidateJSON(data []byte) (*domain.PackManifest, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, domain.NewAppErrorWithCause(domain.ErrInvalidFormat, "manifest is not a JSON object", 422, err, nil)
	}
	return v.Validate(raw)
}

// Validate validates a decoded manifest. It has no side effects.
func (v *ManifestValidator) Validate(raw map[string]any) (*domain.PackManifest, error) {
	for _, field := range RequiredManifestFields {
		if value, ok := raw[field]; !ok || value == nil {
			return nil, domain.NewAppError(domain.ErrMissingField,
				fmt.Sprintf("required field %q is missing", field), 422, map[string]any{"field": field})
		}
	}

	if _, ok := raw["features"].([]any); !ok {
		return nil, domain.NewAppError(domain.ErrInvalidFormat, "features must be a non-empty list", 422,
			map[string]any{"field": "features"})
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, domain.NewAppErrorWithCause(domain.ErrInvalidFormat, "manifest could not be encoded", 422, err, nil)
	}
	var manifest domain.PackManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, domain.NewAppErrorWithCause(domain.ErrInvalidFormat, "manifest has fields of the wrong type", 422, err, nil)
	}

	if err := v.validate.Struct(&manifest); err != nil {
		return nil, formatValidationError(err)
	}

	for i, dep := range manifest.Dependencies {
		if _, _, err := ParseDependency(dep); err != nil {
			return nil, domain.NewAppErrorWithCause(domain.ErrInvalidFormat,
				fmt.Sprintf("dependencies[%d] is invalid", i), 422, err, map[string]any{"dependency": dep})
		}
	}

	if manifest.MinAppVersion != "" && !IsAppVersionCompatible(v.platform.AppVersion, manifest.MinAppVersion) {
		return nil, domain.NewAppError(domain.ErrIncompatibleVersion,
			fmt.Sprintf("pack requires application version %s, running %s", manifest.MinAppVersion, v.platform.AppVersion),
			422, map[string]any{"min_app_version": manifest.MinAppVersion, "app_version": v.platform.AppVersion})
	}

	if compat := manifest.PlatformCompatibility; compat != nil {
		if len(compat.SupportedPlatforms) > 0 && !v.platform.SupportsOS(compat.SupportedPlatforms) {
			return nil, domain.NewAppError(domain.ErrIncompatiblePlatform,
				fmt.Sprintf("pack does not support platform %s", v.platform.OS), 422,
				map[string]any{"supported_platforms": compat.SupportedPlatforms, "platform": v.platform.OS})
		}
		if len(compat.RequiredArchitecture) > 0 && !v.platform.SupportsArch(compat.RequiredArchitecture) {
			return nil, domain.NewAppError(domain.ErrIncompatiblePlatform,
				fmt.Sprintf("pack does not support architecture %s", v.platform.Arch), 422,
				map[string]any{"required_architecture": []string(compat.RequiredArchitecture), "architecture": v.platform.Arch})
		}
	}

	if manifest.LicenseRequired && manifest.LicenseType == "" {
		return nil, domain.NewAppError(domain.ErrLicenseInfoMissing,
			"license_required is set but license_type is missing", 422, map[string]any{"field": "license_type"})
	}

	return &manifest, nil
}

// formatValidationError converts the first struct validation failure into an INVALID_FORMAT error
func formatValidationError(err error) error {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(validationErrors) == 0 {
		return domain.NewAppErrorWithCause(domain.ErrInvalidFormat, "manifest validation failed", 422, err, nil)
	}

	e := validationErrors[0]
	field := e.Field()
	var message string
	switch e.Tag() {
	case "required":
		message = fmt.Sprintf("%s must not be empty", field)
	case "pack_id":
		message = fmt.Sprintf("%s must contain only letters, digits, '_' and '-'", field)
	case "semver":
		message = fmt.Sprintf("%s must be a semantic version (e.g. 1.0.0)", field)
	case "oneof":
		message = fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "min":
		message = fmt.Sprintf("%s must be a non-empty list", field)
	default:
		message = fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}

	return domain.NewAppError(domain.ErrInvalidFormat, message, 422, map[string]any{
		"field": field,
		"value": e.Value(),
	})
}

// IsAppVersionCompatible reports whether current satisfies the minimum version.
// Versions are compared component-wise (major.minor.patch) with missing components treated as 0.
func IsAppVersionCompatible(current, minimum string) bool {
	cur := versionComponents(current)
	req := versionComponents(minimum)

	for i := range 3 {
		if cur[i] > req[i] {
			return true
		}
		if cur[i] < req[i] {
			return false
		}
	}
	return true
}

// versionComponents extracts major, minor, patch from a loose version string
func versionComponents(v string) [3]int {
	var out [3]int
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	parts := strings.Split(v, ".")
	for i := 0; i < len(parts) && i < 3; i++ {
		out[i] = leadingInt(parts[i])
	}
	return out
}

func leadingInt(s string) int {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, _ := strconv.Atoi(s[:end])
	return n
}

// SemVer represents a parsed semantic version
type SemVer struct {
	Major      int
	Minor      int
	Patch      int
	Prerelease string
	Build      string
}

// String returns the string representation of the semantic version
func (v SemVer) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		s += "-" + v.Prerelease
	}
	if v.Build != "" {
		s += "+" + v.Build
	}
	return s
}

var semVerRegex = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)(?:-([0-9A-Za-z_-]+(?:\.[0-9A-Za-z_-]+)*))?(?:\+([0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*))?$`)

// IsValidSemVer checks if a string is a valid semantic version
func IsValidSemVer(version string) bool {
	return semVerRegex.MatchString(version)
}

// ParseSemVer parses a semantic version string into a SemVer struct
func ParseSemVer(version string) (*SemVer, error) {
	matches := semVerRegex.FindStringSubmatch(strings.TrimSpace(version))
	if matches == nil {
		return nil, fmt.Errorf("invalid semantic version: %s", version)
	}

	major, _ := strconv.Atoi(matches[1])
	minor, _ := strconv.Atoi(matches[2])
	patch, _ := strconv.Atoi(matches[3])

	return &SemVer{
		Major:      major,
		Minor:      minor,
		Patch:      patch,
		Prerelease: matches[4],
		Build:      matches[5],
	}, nil
}

// CompareSemVer compares two semantic versions
// Returns -1 if v1 < v2, 0 if v1 == v2, 1 if v1 > v2
func CompareSemVer(v1, v2 string) (int, error) {
	sv1, err := ParseSemVer(v1)
	if err != nil {
		return 0, fmt.Errorf("invalid version v1: %w", err)
	}

	sv2, err := ParseSemVer(v2)
	if err != nil {
		return 0, fmt.Errorf("invalid version v2: %w", err)
	}

	return sv1.Compare(sv2), nil
}

// Compare compares this version with another
// Returns -1 if this < other, 0 if this == other, 1 if this > other
func (v *SemVer) Compare(other *SemVer) int {
	if v.Major != other.Major {
		return cmpInt(v.Major, other.Major)
	}
	if v.Minor != other.Minor {
		return cmpInt(v.Minor, other.Minor)
	}
	if v.Patch != other.Patch {
		return cmpInt(v.Patch, other.Patch)
	}

	// A release sorts after any of its prereleases
	if v.Prerelease == "" && other.Prerelease != "" {
		return 1
	}
	if v.Prerelease != "" && other.Prerelease == "" {
		return -1
	}
	return strings.Compare(v.Prerelease, other.Prerelease)
}

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// constraintOperators is ordered so two-character operators match first
var constraintOperators = []string{">=", "<=", ">", "<", "^", "~", "="}

// splitConstraint separates the operator from the target version. No operator means exact match.
func splitConstraint(constraint string) (operator, target string) {
	constraint = strings.TrimSpace(constraint)
	for _, op := range constraintOperators {
		if strings.HasPrefix(constraint, op) {
			return op, strings.TrimSpace(strings.TrimPrefix(constraint, op))
		}
	}
	return "=", constraint
}

// IsValidConstraint checks if a version constraint is valid
func IsValidConstraint(constraint string) bool {
	_, target := splitConstraint(constraint)
	return IsValidSemVer(target)
}

// SatisfiesConstraint checks if a version satisfies a version constraint
func SatisfiesConstraint(version, constraint string) (bool, error) {
	operator, targetVersion := splitConstraint(constraint)

	v, err := ParseSemVer(version)
	if err != nil {
		return false, err
	}
	t, err := ParseSemVer(targetVersion)
	if err != nil {
		return false, err
	}
	cmp := v.Compare(t)

	switch operator {
	case "=":
		return cmp == 0, nil
	case ">":
		return cmp > 0, nil
	case "<":
		return cmp < 0, nil
	case ">=":
		return cmp >= 0, nil
	case "<=":
		return cmp <= 0, nil
	case "^":
		return v.Major == t.Major && cmp >= 0, nil
	case "~":
		return v.Major == t.Major && v.Minor == t.Minor && cmp >= 0, nil
	default:
		return false, fmt.Errorf("unknown operator: %s", operator)
	}
}

// ParseDependency splits a dependency entry of the form "pack_id" or "pack_id@range"
func ParseDependency(dep string) (packID, constraint string, err error) {
	dep = strings.TrimSpace(dep)
	packID, constraint, _ = strings.Cut(dep, "@")
	if !IsValidPackID(packID) {
		return "", "", fmt.Errorf("invalid pack id in dependency %q", dep)
	}
	if constraint != "" && !IsValidConstraint(constraint) {
		return "", "", fmt.Errorf("invalid version range in dependency %q", dep)
	}
	return packID, constraint, nil
}
