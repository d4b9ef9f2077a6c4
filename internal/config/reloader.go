package config

import (
	"log/slog"
	"os"
	"sync"
	"time"
)

// Reloader serves the active configuration and picks up file edits between
// cycles. Strategy and risk parameters change while the process runs; a new
// config takes effect only at a cycle boundary, never mid-evaluation, so the
// app calls Current once per cycle and threads the returned snapshot through.
//
// A config that fails validation is logged and discarded; the previous good
// config stays active.
type Reloader struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	current *Config
	modTime time.Time
	version int
}

// NewReloader creates a Reloader serving cfg, loaded from path.
func NewReloader(path string, cfg *Config, logger *slog.Logger) *Reloader {
	r := &Reloader{
		path:    path,
		current: cfg,
		version: 1,
		logger:  logger.With(slog.String("component", "config_reloader")),
	}
	if info, err := os.Stat(path); err == nil {
		r.modTime = info.ModTime()
	}
	return r
}

// Current returns the active config and its version, reloading first when the
// file changed on disk. The version increments once per successful reload, so
// opportunities can record which configuration produced them.
func (r *Reloader) Current() (*Config, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, err := os.Stat(r.path)
	if err != nil || !info.ModTime().After(r.modTime) {
		return r.current, r.version
	}

	cfg, err := Load(r.path)
	if err != nil {
		r.logger.Error("config reload failed, keeping previous",
			slog.String("path", r.path),
			slog.String("error", err.Error()),
		)
		r.modTime = info.ModTime()
		return r.current, r.version
	}
	if err := cfg.Validate(); err != nil {
		r.logger.Error("reloaded config invalid, keeping previous",
			slog.String("path", r.path),
			slog.String("error", err.Error()),
		)
		r.modTime = info.ModTime()
		return r.current, r.version
	}

	r.current = cfg
	r.modTime = info.ModTime()
	r.version++
	r.logger.Info("config reloaded", slog.Int("version", r.version))
	return r.current, r.version
}

// Version returns the active config version without triggering a reload.
func (r *Reloader) Version() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}
