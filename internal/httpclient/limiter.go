package httpclient

import (
	"sync"
	"time"
)

// Limiter is a token bucket guarding how often a single origin's HEAD/ranged
// probe endpoint is hit. Segment planning for many concurrently-starting
// jobs against the same host would otherwise issue a probe burst.
type Limiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
}

func newLimiter(maxTokens, refillRate float64) *Limiter {
	return &Limiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow reports whether a probe may proceed now, consuming a token if so.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	if l.tokens >= 1 {
		l.tokens--
		return true
	}
	return false
}

// Wait blocks until a probe token is available.
func (l *Limiter) Wait() {
	for !l.Allow() {
		time.Sleep(50 * time.Millisecond)
	}
}

func (l *Limiter) refill() {
	now := time.Now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	l.tokens += elapsed * l.refillRate
	if l.tokens > l.maxTokens {
		l.tokens = l.maxTokens
	}
	l.lastRefill = now
}

// originLimiters keys a Limiter per origin, created lazily.
type originLimiters struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
}

func newOriginLimiters() *originLimiters {
	return &originLimiters{limiters: make(map[string]*Limiter)}
}

// get returns the limiter for origin, allowing 3 probes with a 1/sec refill,
// a deliberately strict rate since probes are infrequent by nature.
func (o *originLimiters) get(origin string) *Limiter {
	o.mu.RLock()
	l, ok := o.limiters[origin]
	o.mu.RUnlock()
	if ok {
		return l
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if l, ok = o.limiters[origin]; ok {
		return l
	}
	l = newLimiter(3, 1)
	o.limiters[origin] = l
	return l
}
