package fetch

import (
	"log/slog"
	"sync"
	"time"

	"github.com/tomvane/edgebot/internal/domain"
)

// BreakerState is the circuit breaker's state.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker is a three-state circuit breaker shared by all concurrent callers
// for one provider. Closed counts consecutive failures; Open short-circuits
// every call without I/O; Half-Open admits exactly one trial call whose
// outcome decides Closed vs re-Open.
type Breaker struct {
	provider  string
	threshold int
	timeout   time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool // a half-open trial call is in flight

	now func() time.Time
}

// NewBreaker creates a breaker that opens after threshold consecutive
// failures and re-tests after timeout.
func NewBreaker(provider string, threshold int, timeout time.Duration, logger *slog.Logger) *Breaker {
	return &Breaker{
		provider:  provider,
		threshold: threshold,
		timeout:   timeout,
		logger:    logger.With(slog.String("component", "breaker"), slog.String("provider", provider)),
		now:       time.Now,
	}
}

// SetLimits swaps the threshold and timeout. An open breaker keeps its
// openedAt; the new timeout governs the next Allow.
func (b *Breaker) SetLimits(threshold int, timeout time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.threshold = threshold
	b.timeout = timeout
}

// Allow reports whether a call may proceed. When the breaker is Open and the
// timeout has not elapsed, it returns a ProviderError of kind Unavailable
// without any I/O. When the timeout has elapsed, exactly one caller is
// admitted as the Half-Open trial; everyone else keeps failing fast until the
// trial resolves.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.timeout {
			return domain.NewProviderError(b.provider, domain.ProviderUnavailable, domain.ErrCircuitOpen)
		}
		b.state = BreakerHalfOpen
		b.probing = true
		b.logger.Info("breaker half-open, admitting trial call")
		return nil
	case BreakerHalfOpen:
		if b.probing {
			return domain.NewProviderError(b.provider, domain.ProviderUnavailable, domain.ErrCircuitOpen)
		}
		b.probing = true
		return nil
	}
	return nil
}

// OnSuccess records a successful call, closing the breaker from Half-Open and
// resetting the failure count.
func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.logger.Info("breaker closed after successful trial")
	}
	b.state = BreakerClosed
	b.failures = 0
	b.probing = false
}

// OnFailure records a failed call. In Closed it counts toward the threshold;
// in Half-Open the failed trial reopens the breaker immediately.
func (b *Breaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerHalfOpen:
		b.trip("trial call failed")
	case BreakerClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.trip("failure threshold reached")
		}
	}
}

// trip moves to Open. Caller holds b.mu.
func (b *Breaker) trip(cause string) {
	b.state = BreakerOpen
	b.openedAt = b.now()
	b.failures = 0
	b.probing = false
	b.logger.Warn("breaker opened",
		slog.String("cause", cause),
		slog.Duration("retry_after", b.timeout),
	)
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
