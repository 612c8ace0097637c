package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfassist/tailor/internal/app"
	"github.com/wfassist/tailor/internal/config"
	"github.com/wfassist/tailor/internal/domain"
	"github.com/wfassist/tailor/internal/extension"
	"github.com/wfassist/tailor/internal/pack"
	"github.com/wfassist/tailor/internal/platform"
)

const testTimeout = 5000

func newTestServer(t *testing.T, factories *extension.Factories, rc RouterConfig) (*fiber.App, *app.App) {
	t.Helper()
	return newTestServerWithConfig(t, factories, rc, nil)
}

func newTestServerWithConfig(t *testing.T, factories *extension.Factories, rc RouterConfig, mutate func(*config.Config)) (*fiber.App, *app.App) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Storage.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.App.Version = "2.0.0"
	cfg.App.MaxDependencyDepth = 10
	cfg.App.AutoLoadExtensions = true
	cfg.License.Timeout = time.Second
	cfg.License.TrialDays = 30
	cfg.License.TrialFeatureLimit = 3
	cfg.Catalog.Timeout = time.Second
	cfg.Catalog.CacheTTL = time.Minute
	if mutate != nil {
		mutate(cfg)
	}

	info := platform.Info{OS: platform.Linux, Arch: platform.ArchX64, AppVersion: "2.0.0"}
	a, err := app.New(cfg, app.Options{Factories: factories, Platform: &info})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	if rc.BodyLimit == 0 {
		rc.BodyLimit = 4 * 1024 * 1024
	}
	router := SetupRouter(a, rc)
	t.Cleanup(router.Cleanup)
	return router.App, a
}

func testManifest(id string, features ...string) map[string]any {
	list := make([]any, 0, len(features))
	for _, f := range features {
		list = append(list, f)
	}
	return map[string]any{
		"pack_id":           id,
		"name":              "Pack " + id,
		"version":           "1.0.0",
		"description":       "Pack " + id,
		"author":            "Tailor",
		"target_audience":   "freelancer",
		"business_category": "sales",
		"features":          list,
	}
}

func archiveBytes(t *testing.T, manifest map[string]any) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	data, err := json.Marshal(manifest)
	require.NoError(t, err)
	w, err := zw.Create(pack.ManifestFileName)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func importRequest(t *testing.T, archive []byte, query string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("archive", "pack.zip")
	require.NoError(t, err)
	_, err = part.Write(archive)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/v1/packs/import"+query, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, method, target string, payload any) *http.Request {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func do(t *testing.T, server *fiber.App, req *http.Request) *http.Response {
	t.Helper()
	resp, err := server.Test(req, testTimeout)
	require.NoError(t, err)
	return resp
}

func decodeSuccess(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	var envelope struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.Equal(t, "success", envelope.Status)
	if out != nil {
		require.NoError(t, json.Unmarshal(envelope.Data, out))
	}
}

func decodeError(t *testing.T, resp *http.Response) ErrorResponse {
	t.Helper()
	defer resp.Body.Close()
	var out ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "error", out.Status)
	return out
}

func TestImportPackHandler(t *testing.T) {
	server, _ := newTestServer(t, nil, RouterConfig{})

	resp := do(t, server, importRequest(t, archiveBytes(t, testManifest("crm", "contacts")), ""))
	assert.Equal(t, 201, resp.StatusCode)
	var info domain.PackInfo
	decodeSuccess(t, resp, &info)
	assert.Equal(t, "crm", info.PackID)
	assert.False(t, info.Enabled)
	assert.NotEmpty(t, info.Checksum)

	t.Run("duplicate conflicts", func(t *testing.T) {
		resp := do(t, server, importRequest(t, archiveBytes(t, testManifest("crm", "contacts")), ""))
		assert.Equal(t, 409, resp.StatusCode)
		assert.Equal(t, domain.ErrConflictsDetected, decodeError(t, resp).Code)
	})

	t.Run("avoid collision installs a copy", func(t *testing.T) {
		resp := do(t, server, importRequest(t, archiveBytes(t, testManifest("crm", "contacts")), "?avoid_collision=true"))
		assert.Equal(t, 201, resp.StatusCode)
		var info domain.PackInfo
		decodeSuccess(t, resp, &info)
		assert.Equal(t, "crm-1", info.PackID)
	})

	t.Run("missing dependency", func(t *testing.T) {
		m := testManifest("reports", "charts")
		m["dependencies"] = []any{"analytics"}
		resp := do(t, server, importRequest(t, archiveBytes(t, m), ""))
		assert.Equal(t, 424, resp.StatusCode)
		assert.Equal(t, domain.ErrMissingDependencies, decodeError(t, resp).Code)
	})

	t.Run("not a zip", func(t *testing.T) {
		resp := do(t, server, importRequest(t, []byte("plain text"), ""))
		assert.Equal(t, 400, resp.StatusCode)
		assert.Equal(t, domain.ErrInvalidArchive, decodeError(t, resp).Code)
	})

	t.Run("no archive field", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/packs/import", nil)
		resp := do(t, server, req)
		assert.Equal(t, 400, resp.StatusCode)
		assert.Equal(t, domain.ErrInvalidInput, decodeError(t, resp).Code)
	})
}

func TestGetPackHandler_NotInstalled(t *testing.T) {
	server, _ := newTestServer(t, nil, RouterConfig{})

	req := httptest.NewRequest("GET", "/v1/packs/ghost", nil)
	req.Header.Set("X-Request-ID", "req-123")
	resp := do(t, server, req)

	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, "req-123", resp.Header.Get("X-Request-ID"))
	out := decodeError(t, resp)
	assert.Equal(t, domain.ErrNotInstalled, out.Code)
}

func TestPackStatusHandler_UnknownPack(t *testing.T) {
	server, _ := newTestServer(t, nil, RouterConfig{})

	resp := do(t, server, httptest.NewRequest("GET", "/v1/packs/ghost/status", nil))
	assert.Equal(t, 200, resp.StatusCode)
	var status domain.PackStatus
	decodeSuccess(t, resp, &status)
	assert.Equal(t, "ghost", status.PackID)
	assert.False(t, status.Installed)
}

func TestEnableDisableHandlers(t *testing.T) {
	factories := extension.NewFactories()
	require.NoError(t, factories.Register("crm", func(m domain.PackManifest) (extension.Extension, error) {
		return &extension.Static{
			Caps: []domain.PackCapability{{CapabilityID: "contacts", Name: "Contacts", Category: "sales"}},
			Components: []domain.UIComponent{{
				ComponentID:    "pipeline",
				ExtensionPoint: extension.DashboardWidgets,
				Title:          "Pipeline",
				Enabled:        true,
			}},
		}, nil
	}))
	server, a := newTestServer(t, factories, RouterConfig{})

	_, err := a.ImportPackReader(t.Context(), bytes.NewReader(archiveBytes(t, testManifest("crm", "contacts"))), pack.ImportOptions{})
	require.NoError(t, err)

	resp := do(t, server, httptest.NewRequest("POST", "/v1/packs/crm/enable", nil))
	assert.Equal(t, 200, resp.StatusCode)
	var status domain.PackStatus
	decodeSuccess(t, resp, &status)
	assert.True(t, status.Enabled)
	assert.True(t, status.Loaded)
	assert.Equal(t, 1, status.CapabilitiesCount)

	resp = do(t, server, httptest.NewRequest("GET", "/v1/capabilities?pack_id=crm", nil))
	var caps []domain.PackCapability
	decodeSuccess(t, resp, &caps)
	require.Len(t, caps, 1)
	assert.Equal(t, "contacts", caps[0].CapabilityID)

	resp = do(t, server, httptest.NewRequest("GET", "/v1/extension-points/"+extension.DashboardWidgets+"/components?enabled=true", nil))
	var components []domain.UIComponent
	decodeSuccess(t, resp, &components)
	require.Len(t, components, 1)
	assert.Equal(t, "pipeline", components[0].ComponentID)

	resp = do(t, server, httptest.NewRequest("POST", "/v1/packs/crm/disable", nil))
	assert.Equal(t, 200, resp.StatusCode)
	decodeSuccess(t, resp, &status)
	assert.False(t, status.Enabled)
	assert.False(t, status.Loaded)

	resp = do(t, server, httptest.NewRequest("GET", "/v1/capabilities", nil))
	decodeSuccess(t, resp, &caps)
	assert.Empty(t, caps)
}

func TestEnablePackHandler_LicenseRequired(t *testing.T) {
	server, a := newTestServer(t, nil, RouterConfig{})

	m := testManifest("premium", "reports")
	m["license_required"] = true
	m["license_type"] = "yearly"
	_, err := a.ImportPackReader(t.Context(), bytes.NewReader(archiveBytes(t, m)), pack.ImportOptions{})
	require.NoError(t, err)

	resp := do(t, server, httptest.NewRequest("POST", "/v1/packs/premium/enable", nil))
	assert.Equal(t, 402, resp.StatusCode)
	assert.Equal(t, domain.ErrLicenseRequired, decodeError(t, resp).Code)

	resp = do(t, server, jsonRequest(t, "POST", "/v1/licenses/trial", StartTrialRequest{PackID: "premium", Email: "owner@example.com"}))
	assert.Equal(t, 201, resp.StatusCode)
	var trial domain.PackLicense
	decodeSuccess(t, resp, &trial)
	assert.Equal(t, domain.LicenseTrial, trial.LicenseType)

	resp = do(t, server, httptest.NewRequest("POST", "/v1/packs/premium/enable", nil))
	assert.Equal(t, 200, resp.StatusCode)

	resp = do(t, server, httptest.NewRequest("DELETE", "/v1/licenses/"+trial.OrderNumber, nil))
	assert.Equal(t, 204, resp.StatusCode)

	resp = do(t, server, httptest.NewRequest("DELETE", "/v1/licenses/"+trial.OrderNumber+"-missing", nil))
	assert.Equal(t, 404, resp.StatusCode)
}

func TestStartTrialHandler_Validation(t *testing.T) {
	server, _ := newTestServer(t, nil, RouterConfig{})

	resp := do(t, server, jsonRequest(t, "POST", "/v1/licenses/trial", map[string]string{"pack_id": "crm", "email": "not-an-email"}))
	assert.Equal(t, 400, resp.StatusCode)
	out := decodeError(t, resp)
	assert.Equal(t, domain.ErrInvalidInput, out.Code)

	resp = do(t, server, jsonRequest(t, "POST", "/v1/licenses/trial", StartTrialRequest{PackID: "ghost", Email: "owner@example.com"}))
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, domain.ErrNotInstalled, decodeError(t, resp).Code)
}

func TestValidateOrderHandler(t *testing.T) {
	server, _ := newTestServer(t, nil, RouterConfig{})

	resp := do(t, server, jsonRequest(t, "POST", "/v1/licenses/validate", ValidateOrderRequest{OrderNumber: "12"}))
	assert.Equal(t, 200, resp.StatusCode)
	var result domain.LicenseValidation
	decodeSuccess(t, resp, &result)
	assert.False(t, result.IsValid)
	assert.Equal(t, domain.ErrInvalidFormat, result.ErrorCode)

	resp = do(t, server, jsonRequest(t, "POST", "/v1/licenses/validate", ValidateOrderRequest{OrderNumber: "WF-12345678", PackID: "crm"}))
	decodeSuccess(t, resp, &result)
	assert.Equal(t, domain.ErrNetworkUnavailable, result.ErrorCode)
	assert.True(t, result.TrialAvailable)

	resp = do(t, server, jsonRequest(t, "POST", "/v1/licenses/validate", map[string]string{}))
	assert.Equal(t, 400, resp.StatusCode)
}

func TestValidateOrderHandler_RateLimited(t *testing.T) {
	server, _ := newTestServer(t, nil, RouterConfig{RateLimitRPS: 1, RateLimitBurst: 1})

	resp := do(t, server, jsonRequest(t, "POST", "/v1/licenses/validate", ValidateOrderRequest{OrderNumber: "WF-12345678"}))
	assert.Equal(t, 200, resp.StatusCode)

	resp = do(t, server, jsonRequest(t, "POST", "/v1/licenses/validate", ValidateOrderRequest{OrderNumber: "WF-12345678"}))
	assert.Equal(t, 429, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}

func TestListComponentsHandler_UnknownPoint(t *testing.T) {
	server, _ := newTestServer(t, nil, RouterConfig{})

	resp := do(t, server, httptest.NewRequest("GET", "/v1/extension-points/nowhere/components", nil))
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, domain.ErrNotFound, decodeError(t, resp).Code)

	resp = do(t, server, httptest.NewRequest("GET", "/v1/extension-points", nil))
	var points []domain.UIExtensionPoint
	decodeSuccess(t, resp, &points)
	assert.NotEmpty(t, points)
}

func TestCatalogHandler_NotConfigured(t *testing.T) {
	server, _ := newTestServer(t, nil, RouterConfig{})

	resp := do(t, server, httptest.NewRequest("GET", "/v1/catalog", nil))
	assert.Equal(t, 503, resp.StatusCode)
	assert.Equal(t, domain.ErrNetworkUnavailable, decodeError(t, resp).Code)
}

func TestHealthAndMetrics(t *testing.T) {
	server, _ := newTestServer(t, nil, RouterConfig{})

	resp := do(t, server, httptest.NewRequest("GET", "/health", nil))
	// No license server or catalog configured
	assert.Equal(t, 200, resp.StatusCode)
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, domain.HealthStatusDegraded, health["status"])
	assert.Contains(t, health["components"], "packs")
	assert.Contains(t, health["components"], "history")

	resp = do(t, server, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, resp.StatusCode)
	var metrics map[string]any
	decodeSuccess(t, resp, &metrics)
	assert.Contains(t, metrics, "licenses")
}

func TestSecurityHeaders(t *testing.T) {
	server, _ := newTestServer(t, nil, RouterConfig{})

	resp := do(t, server, httptest.NewRequest("GET", "/v1/packs", nil))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	_, _ = io.Copy(io.Discard, resp.Body)
}
