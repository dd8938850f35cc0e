package api

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per user. It is safe for concurrent
// use and can be reconfigured at runtime. Buckets idle long enough to have
// refilled are dropped, so memory follows the set of active users.
type RateLimiter struct {
	mu        sync.Mutex
	enabled   bool
	limit     rate.Limit
	burst     int
	idle      time.Duration
	buckets   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// minIdle bounds how often idle buckets are swept.
const minIdle = time.Minute

// NewRateLimiter returns a limiter allowing perMinute submissions per user
// with the given burst. burst <= 0 means ceil(perMinute). A limiter with
// enabled false lets everything through.
func NewRateLimiter(enabled bool, perMinute float64, burst int) *RateLimiter {
	l := &RateLimiter{now: time.Now}
	l.Configure(enabled, perMinute, burst)
	return l
}

// Configure replaces the limits. Existing buckets are dropped so new limits
// apply immediately.
func (l *RateLimiter) Configure(enabled bool, perMinute float64, burst int) {
	if burst <= 0 {
		burst = max(1, int(math.Ceil(perMinute)))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled && perMinute > 0
	l.limit = rate.Limit(perMinute / 60)
	l.burst = burst
	l.idle = minIdle
	if perMinute > 0 {
		// A bucket unused for this long is full and equal to a new one.
		l.idle = max(minIdle, time.Duration(float64(burst)*60/perMinute*float64(time.Second)))
	}
	l.buckets = make(map[string]*bucket)
}

// Allow reports whether userID may submit now. When it may not, the second
// result is how long until the next token.
func (l *RateLimiter) Allow(userID string) (bool, time.Duration) {
	l.mu.Lock()
	if !l.enabled {
		l.mu.Unlock()
		return true, 0
	}
	now := l.now()
	if now.Sub(l.lastSweep) >= l.idle {
		l.evictIdle(now)
	}
	b, ok := l.buckets[userID]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[userID] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	r := b.lim.ReserveN(now, 1)
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

// evictIdle drops buckets unused for at least l.idle. l.mu must be held.
func (l *RateLimiter) evictIdle(now time.Time) {
	for id, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.idle {
			delete(l.buckets, id)
		}
	}
	l.lastSweep = now
}

// limit wraps h with the per-user limiter. It must run after authentication.
func (s *Server) limit(h http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		u, _ := UserFrom(r.Context())
		if ok, wait := s.limiter.Allow(u.ID); !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		h(w, r)
	}
}
