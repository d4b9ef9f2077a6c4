package fetch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tomvane/edgebot/internal/domain"
	"github.com/tomvane/edgebot/internal/normalize"
	"github.com/tomvane/edgebot/internal/provider"
)

// Config holds one provider's resilience tunables.
type Config struct {
	MaxRequests      int           // rate limit: max requests per window
	Window           time.Duration // rate limit window
	MaxAttempts      int           // retry: total attempts for transient errors
	BaseDelay        time.Duration // retry: backoff base (base * 2^attempt)
	FailureThreshold int           // breaker: consecutive failures before Open
	BreakerTimeout   time.Duration // breaker: Open -> Half-Open delay
}

// Fetcher wraps one provider with the full resilience stack and normalizes
// its payloads. One Fetcher per configured provider; safe for concurrent use,
// with the limiter and breaker shared across all callers.
type Fetcher struct {
	src     provider.Provider
	norm    normalize.Normalizer
	limiter *SlidingWindowLimiter
	breaker *Breaker
	logger  *slog.Logger

	mu  sync.RWMutex
	cfg Config

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func (c Config) withDefaults() Config {
	if c.MaxRequests <= 0 {
		c.MaxRequests = 10
	}
	if c.Window <= 0 {
		c.Window = time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 200 * time.Millisecond
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 30 * time.Second
	}
	return c
}

// NewFetcher builds the resilience stack around a provider.
func NewFetcher(src provider.Provider, norm normalize.Normalizer, cfg Config, logger *slog.Logger) *Fetcher {
	cfg = cfg.withDefaults()
	return &Fetcher{
		src:     src,
		norm:    norm,
		limiter: NewSlidingWindowLimiter(cfg.MaxRequests, cfg.Window),
		breaker: NewBreaker(src.Name(), cfg.FailureThreshold, cfg.BreakerTimeout, logger),
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "fetcher"), slog.String("provider", src.Name())),
		sleep:   sleepCtx,
	}
}

// SetConfig reapplies resilience tunables to the live limiter and breaker.
// Called at cycle boundaries when configuration is reloaded; in-flight
// fetches finish under the config they started with.
func (f *Fetcher) SetConfig(cfg Config) {
	cfg = cfg.withDefaults()
	f.mu.Lock()
	f.cfg = cfg
	f.mu.Unlock()
	f.limiter.SetLimit(cfg.MaxRequests, cfg.Window)
	f.breaker.SetLimits(cfg.FailureThreshold, cfg.BreakerTimeout)
}

func (f *Fetcher) config() Config {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cfg
}

// Provider returns the wrapped provider's tag.
func (f *Fetcher) Provider() string { return f.src.Name() }

// Breaker exposes the shared breaker, mainly for health reporting.
func (f *Fetcher) Breaker() *Breaker { return f.breaker }

// Fetch runs one resilient fetch-and-normalize pass: breaker admission, rate
// limit wait, provider call with retry on transient errors, then
// normalization. Non-transient provider errors propagate immediately; an
// exhausted retry budget propagates the last transient error. Either way the
// breaker observes the outcome.
func (f *Fetcher) Fetch(ctx context.Context, sport string) (normalize.Batch, error) {
	if err := f.breaker.Allow(); err != nil {
		f.logger.Debug("fetch short-circuited, breaker open")
		return normalize.Batch{}, err
	}

	payloads, err := f.fetchWithRetry(ctx, sport)
	if err != nil {
		// A cancelled cycle is not provider downtime.
		if ctx.Err() == nil {
			f.breaker.OnFailure()
		}
		return normalize.Batch{}, err
	}
	f.breaker.OnSuccess()

	var out normalize.Batch
	for _, p := range payloads {
		batch, err := f.norm.Normalize(p)
		if err != nil {
			// Malformed payload is not provider downtime; it does not count
			// against the breaker, but the cycle gets nothing from us.
			f.logger.Error("payload normalization failed", slog.String("error", err.Error()))
			return normalize.Batch{}, err
		}
		out.Events = append(out.Events, batch.Events...)
		out.Quotes = append(out.Quotes, batch.Quotes...)
	}

	f.logger.Debug("fetch completed",
		slog.String("sport", sport),
		slog.Int("events", len(out.Events)),
		slog.Int("quotes", len(out.Quotes)),
	)
	return out, nil
}

// fetchWithRetry applies the rate limiter and retries transient failures with
// exponential backoff (base * 2^attempt).
func (f *Fetcher) fetchWithRetry(ctx context.Context, sport string) ([]provider.Payload, error) {
	cfg := f.config()
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := cfg.BaseDelay * (1 << (attempt - 1))
			f.logger.Warn("retrying fetch",
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", delay),
				slog.String("error", lastErr.Error()),
			)
			if err := f.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		payloads, err := f.src.Fetch(ctx, sport)
		if err == nil {
			return payloads, nil
		}
		lastErr = err

		var pe *domain.ProviderError
		if !errors.As(err, &pe) || !pe.Retryable() {
			return nil, err
		}
	}
	return nil, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
