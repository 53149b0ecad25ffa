package server

import (
	"net"
	"sync"
	"time"
)

// =============================================================================
// Rate Limiter for Stream Connects
// =============================================================================

// RateLimiter limits websocket connects per IP address per time window.
//
// Every connect attempt is counted, accepted or not, so a client that
// reconnects in a tight loop stays blocked until its window expires.
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]*rateLimitEntry
	limit   int           // max connects per window
	window  time.Duration // time window for counting connects

	done chan struct{}
	once sync.Once
}

type rateLimitEntry struct {
	count     int       // connects in the current window
	resetTime time.Time // when this entry expires
}

// NewRateLimiter creates a rate limiter. A limit of zero or less allows
// everything.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		entries: make(map[string]*rateLimitEntry),
		limit:   limit,
		window:  window,
		done:    make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow records a connect from ip and reports whether it is within the
// limit.
func (rl *RateLimiter) Allow(ip string) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	entry, ok := rl.entries[ip]
	if !ok || now.After(entry.resetTime) {
		rl.entries[ip] = &rateLimitEntry{count: 1, resetTime: now.Add(rl.window)}
		return true
	}

	entry.count++
	return entry.count <= rl.limit
}

// Count returns the connects recorded for ip in the current window.
func (rl *RateLimiter) Count(ip string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.entries[ip]
	if !ok || time.Now().After(entry.resetTime) {
		return 0
	}
	return entry.count
}

// Stop ends the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.done) })
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for ip, entry := range rl.entries {
		if now.After(entry.resetTime) {
			delete(rl.entries, ip)
		}
	}
}

// extractIP returns the host part of a remote address.
func extractIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
