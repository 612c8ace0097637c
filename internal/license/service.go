package license

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/wfassist/tailor/internal/cache"
	"github.com/wfassist/tailor/internal/domain"
)

// Trial defaults
const (
	DefaultTrialDays         = 30
	DefaultTrialFeatureLimit = 3
)

// Server rejections are answered from memory until they expire
const (
	DefaultRejectionTTL = 10 * time.Minute
	rejectionCacheSize  = 256
)

// ServiceConfig holds configuration for the license service
type ServiceConfig struct {
	AppVersion        string
	TrialDays         int
	TrialFeatureLimit int
	// RejectionTTL is how long a server rejection is reused, DefaultRejectionTTL when zero
	RejectionTTL time.Duration
}

// Service validates order numbers, issues trials and answers license queries
type Service struct {
	store    *Store
	verifier Verifier
	features domain.FeatureSource
	config   ServiceConfig
	validate *validator.Validate
	group    singleflight.Group
	rejected *cache.LRU[string, domain.LicenseValidation]
	now      func() time.Time
}

// NewService creates a license service. verifier may be nil for offline use.
func NewService(store *Store, verifier Verifier, config ServiceConfig) *Service {
	if config.TrialDays <= 0 {
		config.TrialDays = DefaultTrialDays
	}
	if config.TrialFeatureLimit <= 0 {
		config.TrialFeatureLimit = DefaultTrialFeatureLimit
	}
	if config.RejectionTTL <= 0 {
		config.RejectionTTL = DefaultRejectionTTL
	}
	return &Service{
		store:    store,
		verifier: verifier,
		config:   config,
		validate: validator.New(),
		rejected: cache.NewLRU[string, domain.LicenseValidation](rejectionCacheSize, config.RejectionTTL),
		now:      time.Now,
	}
}

// SetFeatureSource sets where trial features are read from
func (s *Service) SetFeatureSource(fs domain.FeatureSource) {
	s.features = fs
}

// ValidateOrderNumber checks the order number format, then the local store, then the
// license server. Failures are reported in the result rather than as errors.
func (s *Service) ValidateOrderNumber(ctx context.Context, orderNumber, packID string) domain.LicenseValidation {
	orderNumber = strings.TrimSpace(orderNumber)

	if !ValidOrderFormat(orderNumber) {
		return domain.LicenseValidation{
			Error:     "order number format is invalid",
			ErrorCode: domain.ErrInvalidFormat,
		}
	}

	if l, ok := s.store.Get(orderNumber); ok && l.IsActive(s.now()) && (packID == "" || l.PackID == packID) {
		return domain.LicenseValidation{IsValid: true, License: l}
	}

	if s.verifier == nil {
		return domain.LicenseValidation{
			Error:          "license server is not configured",
			ErrorCode:      domain.ErrNetworkUnavailable,
			TrialAvailable: true,
		}
	}

	key := orderNumber + "|" + packID
	if rejection, ok := s.rejected.Get(key); ok {
		return rejection
	}

	// Concurrent checks of the same order share one request
	v, _, _ := s.group.Do(key, func() (any, error) {
		result := s.verifyRemote(ctx, orderNumber, packID)
		if result.ErrorCode == domain.ErrLicenseRequired {
			s.rejected.Set(key, result)
		}
		return result, nil
	})
	return v.(domain.LicenseValidation)
}

func (s *Service) verifyRemote(ctx context.Context, orderNumber, packID string) domain.LicenseValidation {
	resp, err := s.verifier.Verify(ctx, domain.VerifyRequest{
		OrderNumber: orderNumber,
		Product:     packID,
		Version:     s.config.AppVersion,
	})
	if err != nil {
		code := domain.CodeOf(err)
		log.Warn().Err(err).Str("order_number", orderNumber).Str("pack_id", packID).Msg("License verification failed")
		if code == domain.ErrNetworkUnavailable {
			return domain.LicenseValidation{
				Error:          "license server is unavailable; a trial can be started offline",
				ErrorCode:      code,
				TrialAvailable: true,
			}
		}
		return domain.LicenseValidation{Error: err.Error(), ErrorCode: code}
	}

	if !resp.Valid {
		message := resp.Error
		if message == "" {
			message = "order number was not recognised"
		}
		return domain.LicenseValidation{
			Error:          message,
			ErrorCode:      domain.ErrLicenseRequired,
			TrialAvailable: resp.TrialAvailable,
		}
	}

	l := s.normalize(resp.License, orderNumber, packID)
	if err := s.store.Put(l); err != nil {
		log.Error().Err(err).Str("order_number", orderNumber).Msg("Failed to persist verified license")
	}

	log.Info().
		Str("order_number", orderNumber).
		Str("pack_id", l.PackID).
		Str("license_type", l.LicenseType).
		Msg("License verified")
	return domain.LicenseValidation{IsValid: true, License: l}
}

// normalize fills the fields the server may leave out
func (s *Service) normalize(remote *domain.PackLicense, orderNumber, packID string) *domain.PackLicense {
	var l domain.PackLicense
	if remote != nil {
		l = *copyLicense(remote)
	} else {
		l.LicenseType = domain.LicenseLifetime
	}

	l.OrderNumber = orderNumber
	if l.PackID == "" {
		l.PackID = packID
	}
	if l.LicenseKey == "" {
		l.LicenseKey = uuid.NewString()
	}
	if l.PurchaseDate.IsZero() {
		l.PurchaseDate = s.now().UTC()
	}
	if l.LicenseType == "" {
		l.LicenseType = domain.LicenseLifetime
	}
	if l.MaxInstallations == 0 {
		l.MaxInstallations = 1
	}
	if l.CurrentInstallations == 0 {
		l.CurrentInstallations = 1
	}
	l.IsValid = true
	return &l
}

// StartTrial issues a trial license for a pack. Each (pack, email) pair gets one trial.
func (s *Service) StartTrial(ctx context.Context, packID, email string) (*domain.PackLicense, error) {
	email = strings.TrimSpace(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, domain.NewAppErrorWithCause(domain.ErrInvalidInput, "a valid email address is required", 400, err,
			map[string]any{"field": "email"})
	}

	if s.features == nil {
		return nil, domain.NewAppError(domain.ErrInternal, "trial features are unavailable", 500, nil)
	}
	features, ok := s.features.TrialFeatures(packID)
	if !ok {
		return nil, domain.NewAppError(domain.ErrNotInstalled,
			fmt.Sprintf("pack '%s' is not installed", packID), 404, map[string]any{"pack_id": packID})
	}

	if len(features) > s.config.TrialFeatureLimit {
		features = features[:s.config.TrialFeatureLimit]
	}

	now := s.now().UTC()
	expiry := now.AddDate(0, 0, s.config.TrialDays)
	trial := &domain.PackLicense{
		OrderNumber:          OrderPrefixTrial + uuid.NewString(),
		PackID:               packID,
		LicenseKey:           uuid.NewString(),
		CustomerEmail:        email,
		PurchaseDate:         now,
		ExpiryDate:           &expiry,
		LicenseType:          domain.LicenseTrial,
		MaxInstallations:     1,
		CurrentInstallations: 1,
		IsValid:              true,
		FeaturesEnabled:      features,
	}

	// One trial per pack and email, checked and stored atomically
	used, err := s.store.InsertIf(trial, func(existing domain.PackLicense) bool {
		return existing.LicenseType == domain.LicenseTrial && strings.EqualFold(existing.CustomerEmail, email)
	})
	if err != nil {
		return nil, domain.NewAppErrorWithCause(domain.ErrInternal, "failed to save trial license", 500, err, nil)
	}
	if used != nil {
		return nil, domain.NewAppError(domain.ErrTrialAlreadyUsed,
			fmt.Sprintf("a trial of '%s' was already started for %s", packID, email), 409,
			map[string]any{"pack_id": packID, "order_number": used.OrderNumber})
	}

	log.Info().
		Str("pack_id", packID).
		Str("order_number", trial.OrderNumber).
		Time("expires", expiry).
		Msg("Trial started")
	return trial, nil
}

// HasValidLicense reports whether any stored license for the pack is valid and unexpired
func (s *Service) HasValidLicense(packID string) bool {
	return s.ActiveLicense(packID) != nil
}

// ActiveLicense returns the active license for a pack, preferring one without expiry
func (s *Service) ActiveLicense(packID string) *domain.PackLicense {
	now := s.now()
	var best *domain.PackLicense
	for _, l := range s.store.ForPack(packID) {
		if !l.IsActive(now) {
			continue
		}
		if best == nil || l.ExpiryDate == nil || (best.ExpiryDate != nil && l.ExpiryDate.After(*best.ExpiryDate)) {
			best = &l
		}
	}
	return best
}

// IsExpired reports whether the license has expired now
func (s *Service) IsExpired(l *domain.PackLicense) bool {
	return l.IsExpired(s.now())
}

// IsFeatureEnabled reports whether an active license unlocks the feature.
// A license with no feature list unlocks every feature.
func (s *Service) IsFeatureEnabled(packID, feature string) bool {
	now := s.now()
	for _, l := range s.store.ForPack(packID) {
		if !l.IsActive(now) {
			continue
		}
		if len(l.FeaturesEnabled) == 0 || slices.Contains(l.FeaturesEnabled, feature) {
			return true
		}
	}
	return false
}

// Revoke marks a license invalid
func (s *Service) Revoke(orderNumber string) error {
	found, err := s.store.Update(orderNumber, func(l *domain.PackLicense) {
		l.IsValid = false
	})
	if err != nil {
		return domain.NewAppErrorWithCause(domain.ErrInternal, "failed to save license store", 500, err, nil)
	}
	if !found {
		return domain.NewAppError(domain.ErrNotFound,
			fmt.Sprintf("no license with order number '%s'", orderNumber), 404, nil)
	}
	log.Info().Str("order_number", orderNumber).Msg("License revoked")
	return nil
}

// List returns every stored license
func (s *Service) List() []domain.PackLicense {
	return s.store.All()
}

// HealthCheck reports the license store status
func (s *Service) HealthCheck(ctx context.Context) domain.HealthStatus {
	status := domain.HealthStatus{
		Status:    domain.HealthStatusHealthy,
		Message:   "license store is operational",
		Timestamp: time.Now(),
		Details:   s.GetStats(ctx),
	}
	if s.verifier == nil {
		status.Status = domain.HealthStatusDegraded
		status.Message = "license server is not configured; only trials and stored licenses are available"
	}
	return status
}

// GetStats returns license statistics
func (s *Service) GetStats(ctx context.Context) map[string]any {
	now := s.now()
	active, trials := 0, 0
	for _, l := range s.store.All() {
		if l.IsActive(now) {
			active++
		}
		if l.LicenseType == domain.LicenseTrial {
			trials++
		}
	}
	return map[string]any{
		"licenses":          s.store.Len(),
		"active":            active,
		"trials":            trials,
		"cached_rejections": s.rejected.Stats().Size,
	}
}
