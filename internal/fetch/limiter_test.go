package fetch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterAllowsBurstWithinWindow(t *testing.T) {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	l := NewSlidingWindowLimiter(3, time.Second)
	l.now = func() time.Time { return base }

	for i := 0; i < 3; i++ {
		assert.Equal(t, time.Duration(0), l.reserve(), "request %d", i)
	}
	assert.Equal(t, 3, l.InWindow())
}

func TestLimiterComputesWaitForOldestSlot(t *testing.T) {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	now := base
	l := NewSlidingWindowLimiter(2, time.Second)
	l.now = func() time.Time { return now }

	require.Equal(t, time.Duration(0), l.reserve())
	now = now.Add(300 * time.Millisecond)
	require.Equal(t, time.Duration(0), l.reserve())

	// Window full. The wait is exactly until the first request leaves it.
	now = now.Add(200 * time.Millisecond)
	assert.Equal(t, 500*time.Millisecond, l.reserve())

	// Once the oldest request expires a slot opens.
	now = base.Add(1001 * time.Millisecond)
	assert.Equal(t, time.Duration(0), l.reserve())
	assert.Equal(t, 2, l.InWindow())
}

func TestLimiterSetLimitTakesEffect(t *testing.T) {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	l := NewSlidingWindowLimiter(1, time.Second)
	l.now = func() time.Time { return base }

	require.Equal(t, time.Duration(0), l.reserve())
	require.Equal(t, time.Second, l.reserve())

	// Raising the limit frees the blocked slot without dropping history.
	l.SetLimit(2, time.Second)
	assert.Equal(t, time.Duration(0), l.reserve())
	assert.Equal(t, 2, l.InWindow())
}

func TestLimiterWaitHonorsCancellation(t *testing.T) {
	l := NewSlidingWindowLimiter(1, time.Hour)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLimiterNeverRejects(t *testing.T) {
	// A full window delays the caller rather than erroring.
	l := NewSlidingWindowLimiter(1, 20*time.Millisecond)
	require.NoError(t, l.Wait(context.Background()))

	start := time.Now()
	require.NoError(t, l.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}
