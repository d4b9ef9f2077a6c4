package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tomvane/edgebot/internal/domain"
)

// HTTPConfig holds connection parameters for a polling provider.
type HTTPConfig struct {
	Name    string
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPProvider polls a provider's REST odds endpoint. One instance per
// configured provider; safe for concurrent use.
type HTTPProvider struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProvider creates an HTTPProvider from config.
func NewHTTPProvider(cfg HTTPConfig) *HTTPProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		name:    cfg.Name,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the provider tag.
func (p *HTTPProvider) Name() string { return p.name }

// Fetch issues one GET for the sport's odds board and returns the body as a
// single payload batch. HTTP status codes map onto the provider error
// taxonomy; network-level failures are transient.
func (p *HTTPProvider) Fetch(ctx context.Context, sport string) ([]Payload, error) {
	u := fmt.Sprintf("%s/v1/odds?sport=%s", p.baseURL, url.QueryEscape(sport))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, domain.NewProviderError(p.name, domain.ProviderTransient, err)
	}
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, domain.NewProviderError(p.name, domain.ProviderTransient, err)
	}
	defer resp.Body.Close()

	if kind, bad := classifyStatus(resp.StatusCode); bad {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, domain.NewProviderError(p.name, kind, fmt.Errorf("http status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewProviderError(p.name, domain.ProviderTransient, err)
	}

	return []Payload{{Provider: p.name, Body: body, ReceivedAt: time.Now().UTC()}}, nil
}

// classifyStatus maps an HTTP status to a provider error kind. The second
// return is false for success statuses.
func classifyStatus(code int) (domain.ProviderErrorKind, bool) {
	switch {
	case code >= 200 && code < 300:
		return "", false
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return domain.ProviderAuth, true
	case code == http.StatusNotFound:
		return domain.ProviderNotFound, true
	case code == http.StatusTooManyRequests || code >= 500:
		return domain.ProviderTransient, true
	default:
		// 4xx we don't recognize: caller error, do not retry.
		return domain.ProviderNotFound, true
	}
}
