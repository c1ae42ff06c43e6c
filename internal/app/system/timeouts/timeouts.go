// Package timeouts provides centralized timeout values for engine
// operations.
//
// These are used with context.WithTimeout around durable-store writes,
// backend calls, and geocode lookups. Centralizing them keeps the values
// consistent and lets tests shrink them in one place.
//
// Guidelines for choosing a timeout:
//   - Short: store reads/writes and single status checks
//   - Medium: backend identity calls, geocode lookups
//   - Long: registration and media uploads
package timeouts

import (
	"sync"
	"time"
)

// Default timeout values (used if Configure is not called).
const (
	DefaultShort  = 5 * time.Second
	DefaultMedium = 10 * time.Second
	DefaultLong   = 30 * time.Second
)

var mu sync.RWMutex

var (
	short  = DefaultShort
	medium = DefaultMedium
	long   = DefaultLong
)

// Short returns the timeout for store access and status checks.
func Short() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return short
}

// Medium returns the timeout for backend identity and geocode calls.
func Medium() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return medium
}

// Long returns the timeout for registration and uploads.
func Long() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return long
}

// Config holds timeout configuration values.
// Zero values are ignored (defaults are kept).
type Config struct {
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

// Configure sets custom timeout values during startup, before any
// component is built. Zero values keep the current settings.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if cfg.Short > 0 {
		short = cfg.Short
	}
	if cfg.Medium > 0 {
		medium = cfg.Medium
	}
	if cfg.Long > 0 {
		long = cfg.Long
	}
}

// Reset restores all timeouts to their default values.
// Useful for testing.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	short = DefaultShort
	medium = DefaultMedium
	long = DefaultLong
}
