package fetch

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomvane/edgebot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := NewBreaker("sharpline", 5, 30*time.Second, testLogger())

	for i := 0; i < 4; i++ {
		require.NoError(t, b.Allow())
		b.OnFailure()
		assert.Equal(t, BreakerClosed, b.State(), "failure %d", i+1)
	}

	require.NoError(t, b.Allow())
	b.OnFailure()
	assert.Equal(t, BreakerOpen, b.State())

	// Open fails fast without I/O, as ProviderUnavailable.
	err := b.Allow()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCircuitOpen))
	assert.Equal(t, domain.ProviderUnavailable, domain.ProviderErrKind(err))
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker("sharpline", 3, time.Second, testLogger())

	b.OnFailure()
	b.OnFailure()
	b.OnSuccess()
	b.OnFailure()
	b.OnFailure()
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerSetLimitsApplies(t *testing.T) {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	now := base
	b := NewBreaker("sharpline", 5, time.Hour, testLogger())
	b.now = func() time.Time { return now }

	b.SetLimits(1, 10*time.Second)
	b.OnFailure()
	require.Equal(t, BreakerOpen, b.State())

	// The reloaded timeout governs the half-open probe.
	now = base.Add(11 * time.Second)
	assert.NoError(t, b.Allow())
	assert.Equal(t, BreakerHalfOpen, b.State())
}

func TestBreakerHalfOpenAdmitsSingleTrial(t *testing.T) {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	now := base
	b := NewBreaker("sharpline", 1, 30*time.Second, testLogger())
	b.now = func() time.Time { return now }

	b.OnFailure()
	require.Equal(t, BreakerOpen, b.State())

	// Before the timeout everything short-circuits.
	now = base.Add(29 * time.Second)
	assert.Error(t, b.Allow())

	// After the timeout exactly one caller gets through.
	now = base.Add(31 * time.Second)
	require.NoError(t, b.Allow())
	assert.Equal(t, BreakerHalfOpen, b.State())
	assert.Error(t, b.Allow(), "second caller must not ride along with the trial")

	// Successful trial closes the breaker.
	b.OnSuccess()
	assert.Equal(t, BreakerClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreakerFailedTrialReopens(t *testing.T) {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	now := base
	b := NewBreaker("sharpline", 1, 10*time.Second, testLogger())
	b.now = func() time.Time { return now }

	b.OnFailure()
	now = base.Add(11 * time.Second)
	require.NoError(t, b.Allow())
	b.OnFailure()

	assert.Equal(t, BreakerOpen, b.State())
	// The reopen restarts the timeout from the trial failure.
	now = base.Add(20 * time.Second)
	assert.Error(t, b.Allow())
	now = base.Add(22 * time.Second)
	assert.NoError(t, b.Allow())
}
