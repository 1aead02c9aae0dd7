// Package ratelimit provides per-key token bucket rate limiting for the
// simulation control tools.
package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// ErrRateLimited matches every *LimitError via errors.Is.
var ErrRateLimited = errors.New("rate limited")

// LimitError reports a rejected call and how long until a token is free.
type LimitError struct {
	Tool       string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry in %s", e.Tool, e.RetryAfter.Round(time.Millisecond))
}

// Is reports whether target is ErrRateLimited.
func (e *LimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// Limiter implements a per-key token bucket rate limiter.
// Each key gets its own bucket with the configured rate and burst.
// It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64          // tokens per second
	burst   int              // max burst size (also initial token count)
	nowFunc func() time.Time // injectable clock for testing
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// NewLimiter creates a rate limiter with the given rate (tokens/sec) and burst size.
// The burst size also serves as the initial number of tokens available.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		nowFunc: time.Now,
	}
}

// Allow reports whether a call for key may proceed, consuming a token if so.
func (l *Limiter) Allow(key string) bool {
	ok, _ := l.Reserve(key)
	return ok
}

// Reserve consumes a token for key if one is available. Otherwise it
// returns false and the wait until the next token. A zero-rate limiter
// that is out of tokens never refills and reports math.MaxInt64.
func (l *Limiter) Reserve(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.refill(key, l.nowFunc())
	if b.tokens >= 1.0 {
		b.tokens--
		return true, 0
	}
	if l.rate <= 0 {
		return false, time.Duration(math.MaxInt64)
	}
	wait := (1.0 - b.tokens) / l.rate
	return false, time.Duration(wait * float64(time.Second))
}

// Tokens returns the tokens currently available for key.
func (l *Limiter) Tokens(key string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refill(key, l.nowFunc()).tokens
}

// refill must be called with mu held.
func (l *Limiter) refill(key string, now time.Time) *bucket {
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.burst), lastCheck: now}
		l.buckets[key] = b
		return b
	}
	if elapsed := now.Sub(b.lastCheck).Seconds(); elapsed > 0 {
		b.tokens = math.Min(b.tokens+l.rate*elapsed, float64(l.burst))
		b.lastCheck = now
	}
	return b
}

// ToolLimiters maps tool names to their rate limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters creates the default set of per-tool rate limiters. Reads
// and manual ticks are cheap and get generous limits; state changes are
// tighter so an agent cannot thrash the run.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		"nexus_status":     NewLimiter(10.0, 20), // 600/minute, burst 20
		"nexus_snapshot":   NewLimiter(5.0, 10),  // 300/minute, burst 10
		"nexus_graph":      NewLimiter(1.0, 5),   // 60/minute, burst 5
		"nexus_tick":       NewLimiter(20.0, 50), // 1200/minute, burst 50
		"nexus_start":      NewLimiter(1.0, 5),   // 60/minute, burst 5
		"nexus_pause":      NewLimiter(1.0, 5),   // 60/minute, burst 5
		"nexus_reset":      NewLimiter(0.5, 3),   // 30/minute, burst 3
		"nexus_set_params": NewLimiter(2.0, 5),   // 120/minute, burst 5
	}
}

// CheckLimit checks the rate limit for a given tool name.
// Returns nil if allowed, or a *LimitError if rate limited.
// Tools without a configured limiter are always allowed.
func CheckLimit(limiters ToolLimiters, toolName string) error {
	limiter, ok := limiters[toolName]
	if !ok {
		return nil
	}
	if ok, wait := limiter.Reserve(toolName); !ok {
		return &LimitError{Tool: toolName, RetryAfter: wait}
	}
	return nil
}
