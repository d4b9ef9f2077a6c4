// Package provider defines the odds-provider boundary and the built-in
// adapters: an HTTP polling client and a websocket push client. Providers
// return raw payload batches; interpretation belongs to the normalizer.
package provider

import (
	"context"
	"time"
)

// Payload is one raw batch from a provider, opaque to everything except the
// provider's normalizer.
type Payload struct {
	Provider   string
	Body       []byte
	ReceivedAt time.Time
}

// Provider fetches raw odds payloads for a sport. Failures are classified
// domain.ProviderError values.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, sport string) ([]Payload, error)
}
