package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/wfassist/tailor/internal/pack"
)

// Config holds all configuration for the Tailor pack service
type Config struct {
	Server struct {
		Port         int           `env:"PORT" envDefault:"8480" validate:"min=1,max=65535"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
		BodyLimit    int           `env:"BODY_LIMIT" envDefault:"67108864" validate:"min=1024"` // 64MB archive uploads
	}

	Storage struct {
		DataDir    string `env:"DATA_DIR" envDefault:"./data"`
		PacksDir   string `env:"PACKS_DIR"`
		LicenseDir string `env:"LICENSE_DIR"`
		HistoryDB  string `env:"HISTORY_DB"`
	}

	App struct {
		Version            string `env:"APP_VERSION" envDefault:"1.0.0" validate:"semver"`
		MaxDependencyDepth int    `env:"MAX_DEPENDENCY_DEPTH" envDefault:"10" validate:"min=1,max=100"`
		AutoLoadExtensions bool   `env:"AUTO_LOAD_EXTENSIONS" envDefault:"true"`
	}

	License struct {
		ServerURL         string        `env:"LICENSE_SERVER_URL" validate:"omitempty,url"`
		Timeout           time.Duration `env:"LICENSE_TIMEOUT" envDefault:"10s"`
		TrialDays         int           `env:"TRIAL_DAYS" envDefault:"30" validate:"min=1,max=365"`
		TrialFeatureLimit int           `env:"TRIAL_FEATURE_LIMIT" envDefault:"3" validate:"min=1"`
		RateLimitRPS      int           `env:"LICENSE_RATE_LIMIT_RPS" envDefault:"1" validate:"min=1"`
		RateLimitBurst    int           `env:"LICENSE_RATE_LIMIT_BURST" envDefault:"5" validate:"min=1"`
		RejectionTTL      time.Duration `env:"LICENSE_REJECTION_TTL" envDefault:"10m"`
	}

	Catalog struct {
		URL      string        `env:"CATALOG_URL" validate:"omitempty,url"`
		Timeout  time.Duration `env:"CATALOG_TIMEOUT" envDefault:"30s"`
		CacheTTL time.Duration `env:"CATALOG_CACHE_TTL" envDefault:"1h"`
	}

	Security struct {
		CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," validate:"cors_origins"`
	}

	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
		Format string `env:"LOG_FORMAT" envDefault:"json" validate:"oneof=json text"`
	}
}

// Load loads configuration from environment variables and .env files
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration using struct tags
func Validate(cfg *Config) error {
	validate := validator.New()

	if err := validate.RegisterValidation("cors_origins", validateCORSOrigins); err != nil {
		return fmt.Errorf("failed to register cors_origins validation: %w", err)
	}
	if err := validate.RegisterValidation("semver", func(fl validator.FieldLevel) bool {
		return pack.IsValidSemVer(fl.Field().String())
	}); err != nil {
		return fmt.Errorf("failed to register semver validation: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	return validateCustomRules(cfg)
}

// validateCORSOrigins validates CORS origins format
func validateCORSOrigins(fl validator.FieldLevel) bool {
	origins := fl.Field().Interface().([]string)
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return false
		}
	}
	return true
}

// validateCustomRules performs additional validation beyond struct tags
func validateCustomRules(cfg *Config) error {
	if cfg.Storage.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}

	if cfg.Server.ReadTimeout < time.Millisecond {
		return fmt.Errorf("read timeout must be at least 1ms")
	}
	if cfg.Server.WriteTimeout < time.Millisecond {
		return fmt.Errorf("write timeout must be at least 1ms")
	}
	if cfg.License.Timeout < 100*time.Millisecond {
		return fmt.Errorf("license timeout must be at least 100ms")
	}
	if cfg.Catalog.Timeout < time.Second {
		return fmt.Errorf("catalog timeout must be at least 1 second")
	}
	if cfg.Catalog.CacheTTL < time.Second {
		return fmt.Errorf("catalog cache TTL must be at least 1 second")
	}

	return nil
}

// PacksPath is where installed packs live, DATA_DIR/packs unless PACKS_DIR is set
func (cfg *Config) PacksPath() string {
	if cfg.Storage.PacksDir != "" {
		return cfg.Storage.PacksDir
	}
	return filepath.Join(cfg.Storage.DataDir, "packs")
}

// LicensePath is where the encrypted license store lives
func (cfg *Config) LicensePath() string {
	if cfg.Storage.LicenseDir != "" {
		return cfg.Storage.LicenseDir
	}
	return filepath.Join(cfg.Storage.DataDir, "licenses")
}

// HistoryPath is the SQLite file holding the pack event log
func (cfg *Config) HistoryPath() string {
	if cfg.Storage.HistoryDB != "" {
		return cfg.Storage.HistoryDB
	}
	return filepath.Join(cfg.Storage.DataDir, "history.db")
}

// CatalogCachePath is where the catalog index is cached
func (cfg *Config) CatalogCachePath() string {
	return filepath.Join(cfg.Storage.DataDir, "cache")
}

// EnsureDirectories creates all required directories
func (cfg *Config) EnsureDirectories() error {
	dirs := []string{
		cfg.Storage.DataDir,
		cfg.PacksPath(),
		filepath.Dir(cfg.HistoryPath()),
		cfg.CatalogCachePath(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("cannot create directory %s: %w", dir, err)
		}
	}
	// License material stays private to the user
	if err := os.MkdirAll(cfg.LicensePath(), 0700); err != nil {
		return fmt.Errorf("cannot create directory %s: %w", cfg.LicensePath(), err)
	}
	return nil
}

// formatValidationError formats validation errors into readable messages
func formatValidationError(err error) error {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		var messages []string
		for _, e := range validationErrors {
			switch e.Tag() {
			case "required":
				messages = append(messages, fmt.Sprintf("%s is required", e.Field()))
			case "min":
				messages = append(messages, fmt.Sprintf("%s must be at least %s", e.Field(), e.Param()))
			case "max":
				messages = append(messages, fmt.Sprintf("%s must be at most %s", e.Field(), e.Param()))
			case "oneof":
				messages = append(messages, fmt.Sprintf("%s must be one of: %s", e.Field(), e.Param()))
			case "url":
				messages = append(messages, fmt.Sprintf("%s must be a valid URL", e.Field()))
			case "semver":
				messages = append(messages, fmt.Sprintf("%s must be a semantic version", e.Field()))
			case "cors_origins":
				messages = append(messages, fmt.Sprintf("%s contains invalid origin format", e.Field()))
			default:
				messages = append(messages, fmt.Sprintf("%s failed validation: %s", e.Field(), e.Tag()))
			}
		}
		return fmt.Errorf("validation errors: %s", strings.Join(messages, "; "))
	}
	return err
}
