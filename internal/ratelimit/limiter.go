package ratelimit

import (
	"errors"
	"sync"
	"time"
)

const (
	WindowDuration    = time.Minute
	MaxRequestsPerMin = 6
	MaxTokensPerMin   = 1000
)

// Reason identifies which budget a denied check ran out of.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonRequestRate Reason = "request-rate"
	ReasonTokenRate   Reason = "token-rate"
)

var (
	ErrRequestRate = errors.New("ratelimit: request rate exceeded")
	ErrTokenRate   = errors.New("ratelimit: token rate exceeded")
)

// Decision is the outcome of Check.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Message returns the user-facing text for a denied decision.
func (d Decision) Message() string {
	switch d.Reason {
	case ReasonRequestRate:
		return "Rate limit exceeded: too many requests in the last minute. Please wait a moment and try again."
	case ReasonTokenRate:
		return "Rate limit exceeded: token budget for this minute is used up. Please wait a moment and try again."
	default:
		return ""
	}
}

// Err returns the sentinel matching the denial reason, or nil when allowed.
func (d Decision) Err() error {
	switch d.Reason {
	case ReasonRequestRate:
		return ErrRequestRate
	case ReasonTokenRate:
		return ErrTokenRate
	default:
		return nil
	}
}

// Window is a point-in-time copy of the limiter counters.
type Window struct {
	Start    time.Time
	Requests int
	Tokens   int
}

// Limiter tracks request and token consumption in a rolling one-minute
// window. The window is reset lazily on the first call after it expires.
type Limiter struct {
	mu  sync.Mutex
	now func() time.Time

	windowStart time.Time
	requests    int
	tokens      int
}

type Option func(*Limiter)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

func New(opts ...Option) *Limiter {
	l := &Limiter{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	l.windowStart = l.now()
	return l
}

// Check reports whether an outbound completion call may proceed. Apart from
// the lazy window reset it does not touch the counters.
func (l *Limiter) Check() Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.resetIfExpired()
	if l.requests >= MaxRequestsPerMin {
		return Decision{Reason: ReasonRequestRate}
	}
	if l.tokens >= MaxTokensPerMin {
		return Decision{Reason: ReasonTokenRate}
	}
	return Decision{Allowed: true}
}

// Record accounts for one completed outbound call that used tokensUsed tokens.
func (l *Limiter) Record(tokensUsed int) {
	if tokensUsed < 0 {
		tokensUsed = 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.resetIfExpired()
	l.requests++
	l.tokens += tokensUsed
}

func (l *Limiter) Snapshot() Window {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Window{Start: l.windowStart, Requests: l.requests, Tokens: l.tokens}
}

// resetIfExpired must be called with mu held.
func (l *Limiter) resetIfExpired() {
	now := l.now()
	if now.Sub(l.windowStart) < WindowDuration {
		return
	}
	l.windowStart = now
	l.requests = 0
	l.tokens = 0
}
