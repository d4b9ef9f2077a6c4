package provider

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomvane/edgebot/internal/domain"
)

// WSConfig holds connection parameters for a push provider.
type WSConfig struct {
	Name   string
	URL    string
	APIKey string
	// ReconnectDelay is the pause between reconnect attempts.
	ReconnectDelay time.Duration
}

// WSProvider keeps a websocket subscription to a provider's odds stream and
// buffers the latest pushed payload per sport. Fetch serves from that buffer,
// so the aggregator's pull cycle and the provider's push cadence stay
// decoupled. Run must be started before Fetch returns anything useful.
type WSProvider struct {
	cfg    WSConfig
	logger *slog.Logger

	mu        sync.RWMutex
	latest    map[string]Payload // sport -> latest payload
	connected bool

	closeOnce sync.Once
	done      chan struct{}
}

// wsFrame is the provider's push envelope: a sport tag plus the odds body.
type wsFrame struct {
	Sport string `json:"sport"`
}

// NewWSProvider creates a WSProvider. The connection is established by Run.
func NewWSProvider(cfg WSConfig, logger *slog.Logger) *WSProvider {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	return &WSProvider{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "ws_provider"), slog.String("provider", cfg.Name)),
		latest: make(map[string]Payload),
		done:   make(chan struct{}),
	}
}

// Name returns the provider tag.
func (p *WSProvider) Name() string { return p.cfg.Name }

// Fetch returns the most recent pushed payload for the sport. If the stream
// has never delivered for this sport the provider is unavailable for the
// cycle; the aggregator marks it stale.
func (p *WSProvider) Fetch(_ context.Context, sport string) ([]Payload, error) {
	p.mu.RLock()
	payload, ok := p.latest[sport]
	connected := p.connected
	p.mu.RUnlock()

	if !ok {
		kind := domain.ProviderUnavailable
		if connected {
			// Connected but nothing pushed yet for this sport.
			kind = domain.ProviderTransient
		}
		return nil, domain.NewProviderError(p.cfg.Name, kind, domain.ErrNotFound)
	}
	return []Payload{payload}, nil
}

// Run maintains the websocket connection until ctx is cancelled, reconnecting
// with a fixed delay on disconnect.
func (p *WSProvider) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.done:
			return nil
		default:
		}

		err := p.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Warn("ws disconnected, reconnecting", slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.done:
			return nil
		case <-time.After(p.cfg.ReconnectDelay):
		}
	}
}

func (p *WSProvider) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := map[string][]string{}
	if p.cfg.APIKey != "" {
		header["Authorization"] = []string{"Bearer " + p.cfg.APIKey}
	}

	conn, _, err := dialer.DialContext(ctx, p.cfg.URL, header)
	if err != nil {
		return err
	}
	defer conn.Close()

	p.setConnected(true)
	defer p.setConnected(false)
	p.logger.Info("ws connected", slog.String("url", p.cfg.URL))

	// Close the connection when ctx ends so ReadMessage unblocks.
	go func() {
		select {
		case <-ctx.Done():
		case <-p.done:
		}
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		p.store(msg)
	}
}

// store indexes an incoming frame under its sport tag. Frames without a sport
// tag are dropped; they cannot be routed to a cycle.
func (p *WSProvider) store(msg []byte) {
	var frame wsFrame
	if err := json.Unmarshal(msg, &frame); err != nil || frame.Sport == "" {
		p.logger.Debug("dropping unroutable ws frame")
		return
	}

	body := make([]byte, len(msg))
	copy(body, msg)

	p.mu.Lock()
	p.latest[frame.Sport] = Payload{Provider: p.cfg.Name, Body: body, ReceivedAt: time.Now().UTC()}
	p.mu.Unlock()
}

func (p *WSProvider) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

// Close stops Run permanently.
func (p *WSProvider) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}
