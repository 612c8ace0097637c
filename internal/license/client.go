package license

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wfassist/tailor/internal/domain"
)

// DefaultTimeout is the default HTTP timeout for verification requests
const DefaultTimeout = 10 * time.Second

// maxResponseSize bounds the verify response body
const maxResponseSize = 1 << 20

// Verifier checks an order number with the license server
type Verifier interface {
	Verify(ctx context.Context, req domain.VerifyRequest) (*domain.VerifyResponse, error)
}

// ClientConfig holds configuration for the license server client
type ClientConfig struct {
	// BaseURL is the license server root; POST {BaseURL}/verify
	BaseURL string
	// Timeout is the HTTP request timeout
	Timeout time.Duration
	// UserAgent identifies the application to the server
	UserAgent string
}

// HTTPClient verifies order numbers over HTTP
type HTTPClient struct {
	config     ClientConfig
	httpClient *http.Client
}

// NewHTTPClient creates a license server client
func NewHTTPClient(config ClientConfig) *HTTPClient {
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = "tailor"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &HTTPClient{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Verify posts the request to /verify. Transport failures and server errors are
// reported as NETWORK_UNAVAILABLE.
func (c *HTTPClient) Verify(ctx context.Context, vr domain.VerifyRequest) (*domain.VerifyResponse, error) {
	if c.config.BaseURL == "" {
		return nil, networkError("license server is not configured", nil)
	}

	body, err := json.Marshal(vr)
	if err != nil {
		return nil, fmt.Errorf("failed to encode verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, networkError("license server is unreachable", err)
	}
	defer resp.Body.Close()

	log.Debug().
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Str("product", vr.Product).
		Msg("License verification response")

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, networkError(fmt.Sprintf("license server returned HTTP %d", resp.StatusCode), nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, networkError("failed to read license server response", err)
	}

	var out domain.VerifyResponse
	if err := json.Unmarshal(data, &out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, domain.NewAppError(domain.ErrInvalidInput,
				fmt.Sprintf("license server rejected the request: HTTP %d", resp.StatusCode), resp.StatusCode, nil)
		}
		return nil, fmt.Errorf("failed to parse verify response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		out.Valid = false
		if out.Error == "" {
			out.Error = fmt.Sprintf("license server rejected the request: HTTP %d", resp.StatusCode)
		}
	}
	return &out, nil
}

func networkError(message string, cause error) *domain.AppError {
	return domain.NewAppErrorWithCause(domain.ErrNetworkUnavailable, message, 503, cause, nil)
}
