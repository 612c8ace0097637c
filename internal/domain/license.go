package domain

import "time"

// License types
const (
	LicenseTrial    = "trial"
	LicenseMonthly  = "monthly"
	LicenseYearly   = "yearly"
	LicenseLifetime = "lifetime"
)

// PackLicense is an issued license or trial for a pack, keyed by order number
type PackLicense struct {
	OrderNumber          string     `json:"order_number"`
	PackID               string     `json:"pack_id"`
	LicenseKey           string     `json:"license_key"`
	CustomerEmail        string     `json:"customer_email"`
	PurchaseDate         time.Time  `json:"purchase_date"`
	ExpiryDate           *time.Time `json:"expiry_date,omitempty"`
	LicenseType          string     `json:"license_type"`
	MaxInstallations     int        `json:"max_installations"`
	CurrentInstallations int        `json:"current_installations"`
	IsValid              bool       `json:"is_valid"`
	FeaturesEnabled      []string   `json:"features_enabled"`
}

// IsExpired reports whether the license has expired at now.
// A license without an expiry date never expires.
func (l *PackLicense) IsExpired(now time.Time) bool {
	if l.ExpiryDate == nil {
		return false
	}
	return now.After(*l.ExpiryDate)
}

// IsActive reports whether the license is valid and not expired at now
func (l *PackLicense) IsActive(now time.Time) bool {
	return l.IsValid && !l.IsExpired(now)
}

// LicenseValidation is the outcome of validating an order number
type LicenseValidation struct {
	IsValid        bool         `json:"is_valid"`
	License        *PackLicense `json:"license,omitempty"`
	Error          string       `json:"error,omitempty"`
	ErrorCode      string       `json:"error_code,omitempty"`
	TrialAvailable bool         `json:"trial_available"`
}

// VerifyRequest is the body of POST /verify on the license server
type VerifyRequest struct {
	OrderNumber string `json:"order_number"`
	Product     string `json:"product"`
	Version     string `json:"version"`
}

// VerifyResponse is the license server's answer
type VerifyResponse struct {
	Valid          bool           `json:"valid"`
	License        *PackLicense   `json:"license,omitempty"`
	PackInfo       map[string]any `json:"pack_info,omitempty"`
	TrialAvailable bool           `json:"trial_available,omitempty"`
	Error          string         `json:"error,omitempty"`
}
