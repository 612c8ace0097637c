package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackLicense_Expiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expiry := now.Add(time.Hour)

	tests := []struct {
		name    string
		license PackLicense
		at      time.Time
		expired bool
		active  bool
	}{
		{"lifetime never expires", PackLicense{IsValid: true}, now.AddDate(50, 0, 0), false, true},
		{"before expiry", PackLicense{IsValid: true, ExpiryDate: &expiry}, now, false, true},
		{"exactly at expiry", PackLicense{IsValid: true, ExpiryDate: &expiry}, expiry, false, true},
		{"after expiry", PackLicense{IsValid: true, ExpiryDate: &expiry}, expiry.Add(time.Second), true, false},
		{"revoked", PackLicense{IsValid: false, ExpiryDate: &expiry}, now, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expired, tt.license.IsExpired(tt.at))
			assert.Equal(t, tt.active, tt.license.IsActive(tt.at))
		})
	}
}

func TestStringList_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		input string
		want  StringList
	}{
		{`"x64"`, StringList{"x64"}},
		{`["x64","arm64"]`, StringList{"x64", "arm64"}},
		{`""`, nil},
		{`[]`, StringList{}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var got StringList
			require.NoError(t, json.Unmarshal([]byte(tt.input), &got))
			assert.Equal(t, tt.want, got)
		})
	}

	var bad StringList
	assert.Error(t, json.Unmarshal([]byte(`42`), &bad))
}

func TestAppError_Codes(t *testing.T) {
	cause := errors.New("disk full")
	err := NewAppErrorWithCause(ErrInternal, "cannot write state", 500, cause, nil)

	assert.Equal(t, "INTERNAL_ERROR: cannot write state (caused by: disk full)", err.Error())
	assert.ErrorIs(t, err, cause)

	wrapped := fmt.Errorf("enable crm: %w", NewAppError(ErrNotInstalled, "pack crm is not installed", 404, nil))
	assert.True(t, IsNotInstalled(wrapped))
	assert.True(t, HasCode(wrapped, ErrNotInstalled))
	assert.Equal(t, ErrNotInstalled, CodeOf(wrapped))

	plain := errors.New("boom")
	assert.False(t, HasCode(plain, ErrNotInstalled))
	assert.Equal(t, ErrInternal, CodeOf(plain))

	assert.True(t, IsValidationError(NewAppError(ErrIncompatiblePlatform, "windows only", 422, nil)))
	assert.False(t, IsValidationError(NewAppError(ErrConflictsDetected, "taken", 409, nil)))
}

func TestAppError_WithContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), RequestIDKey, "req-42")
	err := NewAppError(ErrNotFound, "no such point", 404, nil).WithContext(ctx, "/api/v1/extension-points/:point")

	assert.Equal(t, "req-42", err.RequestID)
	assert.Equal(t, "/api/v1/extension-points/:point", err.Operation)

	data, jerr := json.Marshal(err)
	require.NoError(t, jerr)
	assert.Contains(t, string(data), `"request_id":"req-42"`)
	assert.NotContains(t, string(data), "status_code")
}
