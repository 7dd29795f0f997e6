// Package timeouts centralizes the per-request deadlines of the HTTP
// views. Handlers derive their context from one of these tiers before
// talking to the datastore or a sibling service.
//
// Tiers:
//   - Ping: health checks probing datastore reachability
//   - Medium: presenter batches, read-only fan-out over the datastore
//   - Long: action batches, which may replan and retry the whole write
//     after a lock conflict
package timeouts

import (
	"sync"
	"time"
)

// Default tier values, used unless Configure overrides them.
const (
	DefaultPing   = 2 * time.Second
	DefaultMedium = 10 * time.Second
	DefaultLong   = 30 * time.Second
)

var (
	mu     sync.RWMutex
	ping   = DefaultPing
	medium = DefaultMedium
	long   = DefaultLong
)

// Ping returns the health-check deadline.
func Ping() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return ping
}

// Medium returns the deadline for presenter batches.
func Medium() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return medium
}

// Long returns the deadline for action batches, sized so the bounded
// lock-conflict retries fit inside one request.
func Long() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return long
}

// Config carries tier overrides. Zero values keep the current setting.
type Config struct {
	Ping   time.Duration
	Medium time.Duration
	Long   time.Duration
}

// Configure overrides tiers at startup, before handlers are mounted.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if cfg.Ping > 0 {
		ping = cfg.Ping
	}
	if cfg.Medium > 0 {
		medium = cfg.Medium
	}
	if cfg.Long > 0 {
		long = cfg.Long
	}
}
