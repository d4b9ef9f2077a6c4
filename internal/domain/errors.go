package domain

import (
	"errors"
	"fmt"
)

// ProviderErrorKind classifies failures at the provider boundary. Only
// transient failures are eligible for retry.
type ProviderErrorKind string

const (
	ProviderTransient   ProviderErrorKind = "transient"
	ProviderAuth        ProviderErrorKind = "auth"
	ProviderNotFound    ProviderErrorKind = "not_found"
	ProviderUnavailable ProviderErrorKind = "unavailable"
)

// ProviderError wraps a failure from one provider with its classification.
type ProviderError struct {
	Provider string
	Kind     ProviderErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("provider %s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the failure may be retried locally.
func (e *ProviderError) Retryable() bool { return e.Kind == ProviderTransient }

// NewProviderError builds a classified provider error.
func NewProviderError(provider string, kind ProviderErrorKind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// ProviderErrKind extracts the classification from err, or "" if err is not a
// ProviderError.
func ProviderErrKind(err error) ProviderErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// NormalizationError marks a structurally malformed provider payload
// (missing required field, unparsable odds). Business-rule mismatches such as
// unknown market names are not normalization errors.
type NormalizationError struct {
	Provider string
	Field    string
	Err      error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s: field %q: %v", e.Provider, e.Field, e.Err)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// ValidationError marks an opportunity that failed its own strategy's sanity
// check, distinct from a risk rejection.
type ValidationError struct {
	Strategy string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("strategy %s: validation failed: %s", e.Strategy, e.Reason)
}

// RejectReason names the first risk check an opportunity failed.
type RejectReason string

const (
	RejectPerBetLimit    RejectReason = "per_bet_limit"
	RejectDailyLossLimit RejectReason = "daily_loss_limit"
	RejectEventExposure  RejectReason = "event_exposure"
	RejectSportExposure  RejectReason = "sport_exposure"
	RejectCorrelation    RejectReason = "correlation"
)

// PlacementError wraps a failure from the execution boundary.
type PlacementError struct {
	Venue string
	Err   error
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("placement %s: %v", e.Venue, e.Err)
}

func (e *PlacementError) Unwrap() error { return e.Err }

var (
	ErrCircuitOpen = errors.New("circuit open")
	ErrNotFound    = errors.New("not found")
	ErrNoProviders = errors.New("no providers configured")
)
