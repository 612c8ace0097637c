package license

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfassist/tailor/internal/domain"
)

type fakeVerifier struct {
	calls atomic.Int32
	delay time.Duration
	resp  *domain.VerifyResponse
	err   error
}

func (f *fakeVerifier) Verify(ctx context.Context, req domain.VerifyRequest) (*domain.VerifyResponse, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.resp, f.err
}

type fakeFeatures map[string][]string

func (f fakeFeatures) TrialFeatures(packID string) ([]string, bool) {
	features, ok := f[packID]
	return features, ok
}

var testNow = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, verifier Verifier) *Service {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	s := NewService(store, verifier, ServiceConfig{AppVersion: "2.1.0"})
	s.now = func() time.Time { return testNow }
	s.SetFeatureSource(fakeFeatures{
		"crm":     {"contacts", "deals", "pipeline", "reports"},
		"billing": {"invoice-gen"},
	})
	return s
}

func TestService_ValidateOrderNumber(t *testing.T) {
	t.Run("bad format never reaches the server", func(t *testing.T) {
		v := &fakeVerifier{}
		s := newTestService(t, v)

		result := s.ValidateOrderNumber(t.Context(), "WF-1", "crm")
		assert.False(t, result.IsValid)
		assert.Equal(t, domain.ErrInvalidFormat, result.ErrorCode)
		assert.Zero(t, v.calls.Load())
	})

	t.Run("stored license is returned as is", func(t *testing.T) {
		v := &fakeVerifier{}
		s := newTestService(t, v)
		require.NoError(t, s.store.Put(sampleLicense("WF-1234567", "crm")))

		result := s.ValidateOrderNumber(t.Context(), " WF-1234567 ", "crm")
		assert.True(t, result.IsValid)
		assert.Equal(t, "key-WF-1234567", result.License.LicenseKey)
		assert.Zero(t, v.calls.Load())
	})

	t.Run("remote license is stored", func(t *testing.T) {
		v := &fakeVerifier{resp: &domain.VerifyResponse{
			Valid:   true,
			License: &domain.PackLicense{LicenseType: domain.LicenseYearly, CustomerEmail: "a@b.co"},
		}}
		s := newTestService(t, v)

		result := s.ValidateOrderNumber(t.Context(), "ABCD1234", "crm")
		require.True(t, result.IsValid)
		assert.Equal(t, "crm", result.License.PackID)
		assert.Equal(t, "ABCD1234", result.License.OrderNumber)
		assert.NotEmpty(t, result.License.LicenseKey)
		assert.True(t, s.HasValidLicense("crm"))

		// Second lookup is served locally
		s.ValidateOrderNumber(t.Context(), "ABCD1234", "crm")
		assert.Equal(t, int32(1), v.calls.Load())
	})

	t.Run("remote rejection", func(t *testing.T) {
		s := newTestService(t, &fakeVerifier{resp: &domain.VerifyResponse{Valid: false, TrialAvailable: true}})

		result := s.ValidateOrderNumber(t.Context(), "ABCD1234", "crm")
		assert.False(t, result.IsValid)
		assert.Equal(t, domain.ErrLicenseRequired, result.ErrorCode)
		assert.True(t, result.TrialAvailable)
		assert.False(t, s.HasValidLicense("crm"))
	})

	t.Run("remote rejection is reused", func(t *testing.T) {
		v := &fakeVerifier{resp: &domain.VerifyResponse{Valid: false, Error: "refunded"}}
		s := newTestService(t, v)

		first := s.ValidateOrderNumber(t.Context(), "ABCD1234", "crm")
		second := s.ValidateOrderNumber(t.Context(), "ABCD1234", "crm")
		assert.Equal(t, first, second)
		assert.Equal(t, "refunded", second.Error)
		assert.Equal(t, int32(1), v.calls.Load())
		assert.Equal(t, 1, s.GetStats(t.Context())["cached_rejections"])

		// A different pack is a different question
		s.ValidateOrderNumber(t.Context(), "ABCD1234", "billing")
		assert.Equal(t, int32(2), v.calls.Load())
	})

	t.Run("network failures are not reused", func(t *testing.T) {
		v := &fakeVerifier{err: networkError("offline", nil)}
		s := newTestService(t, v)

		s.ValidateOrderNumber(t.Context(), "WF-1234567", "crm")
		s.ValidateOrderNumber(t.Context(), "WF-1234567", "crm")
		assert.Equal(t, int32(2), v.calls.Load())
	})

	t.Run("network failure offers a trial", func(t *testing.T) {
		s := newTestService(t, &fakeVerifier{err: networkError("offline", nil)})

		result := s.ValidateOrderNumber(t.Context(), "WF-1234567", "crm")
		assert.False(t, result.IsValid)
		assert.Equal(t, domain.ErrNetworkUnavailable, result.ErrorCode)
		assert.True(t, result.TrialAvailable)
	})

	t.Run("no server configured", func(t *testing.T) {
		s := newTestService(t, nil)

		result := s.ValidateOrderNumber(t.Context(), "WF-1234567", "crm")
		assert.Equal(t, domain.ErrNetworkUnavailable, result.ErrorCode)
		assert.True(t, result.TrialAvailable)
	})

	t.Run("concurrent checks share one request", func(t *testing.T) {
		v := &fakeVerifier{
			delay: 50 * time.Millisecond,
			resp:  &domain.VerifyResponse{Valid: false},
		}
		s := newTestService(t, v)

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.ValidateOrderNumber(t.Context(), "WF-7654321", "crm")
			}()
		}
		wg.Wait()
		assert.Less(t, v.calls.Load(), int32(8))
	})
}

func TestService_StartTrial(t *testing.T) {
	s := newTestService(t, nil)

	trial, err := s.StartTrial(t.Context(), "crm", "owner@example.com")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(trial.OrderNumber, OrderPrefixTrial))
	assert.True(t, ValidOrderFormat(trial.OrderNumber))
	assert.Equal(t, domain.LicenseTrial, trial.LicenseType)
	require.NotNil(t, trial.ExpiryDate)
	assert.Equal(t, testNow.AddDate(0, 0, DefaultTrialDays), *trial.ExpiryDate)
	assert.Equal(t, []string{"contacts", "deals", "pipeline"}, trial.FeaturesEnabled)
	assert.True(t, s.HasValidLicense("crm"))
	assert.True(t, s.IsFeatureEnabled("crm", "deals"))
	assert.False(t, s.IsFeatureEnabled("crm", "reports"))

	_, err = s.StartTrial(t.Context(), "crm", "OWNER@example.com")
	assert.True(t, domain.HasCode(err, domain.ErrTrialAlreadyUsed))

	_, err = s.StartTrial(t.Context(), "crm", "someone@example.com")
	assert.NoError(t, err)

	_, err = s.StartTrial(t.Context(), "billing", "not-an-email")
	assert.True(t, domain.HasCode(err, domain.ErrInvalidInput))

	_, err = s.StartTrial(t.Context(), "ghost", "owner@example.com")
	assert.True(t, domain.IsNotInstalled(err))
}

func TestService_StartTrial_Concurrent(t *testing.T) {
	s := newTestService(t, nil)

	const workers = 16
	var (
		wg      sync.WaitGroup
		started atomic.Int32
		refused atomic.Int32
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.StartTrial(context.Background(), "billing", "owner@example.com")
			switch {
			case err == nil:
				started.Add(1)
			case domain.HasCode(err, domain.ErrTrialAlreadyUsed):
				refused.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), started.Load())
	assert.Equal(t, int32(workers-1), refused.Load())
	assert.Len(t, s.store.ForPack("billing"), 1)
}

func TestService_Expiry(t *testing.T) {
	s := newTestService(t, nil)
	trial, err := s.StartTrial(t.Context(), "billing", "owner@example.com")
	require.NoError(t, err)

	expiry := *trial.ExpiryDate
	s.now = func() time.Time { return expiry }
	assert.False(t, s.IsExpired(trial), "a license is still valid at its expiry instant")
	assert.True(t, s.HasValidLicense("billing"))

	s.now = func() time.Time { return expiry.Add(time.Nanosecond) }
	assert.True(t, s.IsExpired(trial))
	assert.False(t, s.HasValidLicense("billing"))

	lifetime := &domain.PackLicense{IsValid: true, LicenseType: domain.LicenseLifetime}
	assert.False(t, s.IsExpired(lifetime))
}

func TestService_Revoke(t *testing.T) {
	s := newTestService(t, nil)
	require.NoError(t, s.store.Put(sampleLicense("WF-1234567", "crm")))
	require.True(t, s.HasValidLicense("crm"))

	require.NoError(t, s.Revoke("WF-1234567"))
	assert.False(t, s.HasValidLicense("crm"))
	assert.True(t, domain.HasCode(s.Revoke("WF-0000000"), domain.ErrNotFound))

	require.Len(t, s.List(), 1)
	assert.Equal(t, 1, s.GetStats(t.Context())["licenses"])
	assert.Equal(t, domain.HealthStatusDegraded, s.HealthCheck(t.Context()).Status)
}
