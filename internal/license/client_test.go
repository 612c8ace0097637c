package license

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfassist/tailor/internal/domain"
)

func TestHTTPClient_Verify(t *testing.T) {
	var received domain.VerifyRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/verify", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(domain.VerifyResponse{
			Valid: true,
			License: &domain.PackLicense{
				PackID:      "billing",
				LicenseType: domain.LicenseLifetime,
			},
		})
	}))
	defer server.Close()

	client := NewHTTPClient(ClientConfig{BaseURL: server.URL + "/"})
	resp, err := client.Verify(t.Context(), domain.VerifyRequest{OrderNumber: "WF-1234567", Product: "billing", Version: "2.1.0"})
	require.NoError(t, err)
	assert.True(t, resp.Valid)
	assert.Equal(t, "billing", resp.License.PackID)
	assert.Equal(t, "WF-1234567", received.OrderNumber)
	assert.Equal(t, "2.1.0", received.Version)
}

func TestHTTPClient_Errors(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		_, err := NewHTTPClient(ClientConfig{}).Verify(t.Context(), domain.VerifyRequest{})
		assert.True(t, domain.HasCode(err, domain.ErrNetworkUnavailable))
	})

	t.Run("unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		_, err := NewHTTPClient(ClientConfig{BaseURL: url}).Verify(t.Context(), domain.VerifyRequest{})
		assert.True(t, domain.HasCode(err, domain.ErrNetworkUnavailable))
	})

	t.Run("server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		_, err := NewHTTPClient(ClientConfig{BaseURL: server.URL}).Verify(t.Context(), domain.VerifyRequest{})
		assert.True(t, domain.HasCode(err, domain.ErrNetworkUnavailable))
	})

	t.Run("rejection with body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"valid": true, "error": "unknown order", "trial_available": true}`))
		}))
		defer server.Close()

		resp, err := NewHTTPClient(ClientConfig{BaseURL: server.URL}).Verify(t.Context(), domain.VerifyRequest{})
		require.NoError(t, err)
		assert.False(t, resp.Valid)
		assert.Equal(t, "unknown order", resp.Error)
		assert.True(t, resp.TrialAvailable)
	})
}
