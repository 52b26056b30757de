package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RouteClass groups routes that share a per-IP request budget.
type RouteClass string

const (
	RouteJSON  RouteClass = "json"  // health, stats, pairs, config
	RouteFrame RouteClass = "frame" // each request renders a PNG
	RouteAdmin RouteClass = "admin" // detector reconfiguration
)

var routeClasses = []RouteClass{RouteJSON, RouteFrame, RouteAdmin}

// Budget is a per-IP token bucket. A zero PerSecond disables limiting.
type Budget struct {
	PerSecond float64
	Burst     int
}

func (b Budget) limit() rate.Limit {
	if b.PerSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(b.PerSecond)
}

// RateLimitConfig sets the budget of each route class
type RateLimitConfig struct {
	JSON            Budget
	Frame           Budget
	Admin           Budget
	CleanupInterval time.Duration // How often idle limiters are dropped
}

// DefaultRateLimitConfig lets a dashboard poll the JSON routes at 10 Hz while
// frame rendering stays a few per second.
var DefaultRateLimitConfig = RateLimitConfig{
	JSON:            Budget{PerSecond: 50, Burst: 100},
	Frame:           Budget{PerSecond: 4, Burst: 8},
	Admin:           Budget{PerSecond: 1, Burst: 5},
	CleanupInterval: 5 * time.Minute,
}

func (c RateLimitConfig) budget(class RouteClass) Budget {
	switch class {
	case RouteFrame:
		return c.Frame
	case RouteAdmin:
		return c.Admin
	default:
		return c.JSON
	}
}

// LimiterStats counts decisions for one route class
type LimiterStats struct {
	Allowed  uint64 `json:"allowed"`
	Rejected uint64 `json:"rejected"`
}

type limiterKey struct {
	class RouteClass
	ip    string
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

type classCounters struct {
	allowed  atomic.Uint64
	rejected atomic.Uint64
}

// IPRateLimiter keeps one token bucket per client IP and route class, so a
// client hammering /api/frame.png does not starve its own JSON polling.
type IPRateLimiter struct {
	limiters sync.Map // limiterKey -> *limiterEntry
	config   RateLimitConfig
	counters map[RouteClass]*classCounters
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewIPRateLimiter creates the limiter and starts its cleanup goroutine
func NewIPRateLimiter(cfg RateLimitConfig) *IPRateLimiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultRateLimitConfig.CleanupInterval
	}
	rl := &IPRateLimiter{
		config:   cfg,
		counters: make(map[RouteClass]*classCounters, len(routeClasses)),
		stopChan: make(chan struct{}),
	}
	for _, c := range routeClasses {
		rl.counters[c] = &classCounters{}
	}

	go rl.cleanupLoop()
	return rl
}

// Stop stops the cleanup goroutine
func (rl *IPRateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopChan)
	})
}

func (rl *IPRateLimiter) limiterFor(key limiterKey) *rate.Limiter {
	now := time.Now().UnixNano()

	if v, ok := rl.limiters.Load(key); ok {
		e := v.(*limiterEntry)
		e.lastSeen.Store(now)
		return e.limiter
	}

	b := rl.config.budget(key.class)
	entry := &limiterEntry{limiter: rate.NewLimiter(b.limit(), b.Burst)}
	entry.lastSeen.Store(now)

	actual, _ := rl.limiters.LoadOrStore(key, entry)
	return actual.(*limiterEntry).limiter
}

func (rl *IPRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopChan:
			return
		case <-ticker.C:
			rl.cleanup(time.Now())
		}
	}
}

// cleanup drops limiters idle for two intervals
func (rl *IPRateLimiter) cleanup(now time.Time) int {
	cutoff := now.Add(-rl.config.CleanupInterval * 2).UnixNano()
	removed := 0
	rl.limiters.Range(func(key, value any) bool {
		if value.(*limiterEntry).lastSeen.Load() < cutoff {
			rl.limiters.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

// Allow spends one token of ip's budget for class
func (rl *IPRateLimiter) Allow(class RouteClass, ip string) bool {
	counters := rl.counters[class]
	if counters == nil {
		class, counters = RouteJSON, rl.counters[RouteJSON]
	}
	if rl.limiterFor(limiterKey{class: class, ip: ip}).Allow() {
		counters.allowed.Add(1)
		return true
	}
	counters.rejected.Add(1)
	return false
}

// Limit returns middleware charging requests to class
func (rl *IPRateLimiter) Limit(class RouteClass) func(http.Handler) http.Handler {
	reason := "rate_limit_" + string(class)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(class, GetClientIP(r)) {
				RecordConnectionRejected(reason)
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Stats returns allowed and rejected counts per route class
func (rl *IPRateLimiter) Stats() map[RouteClass]LimiterStats {
	out := make(map[RouteClass]LimiterStats, len(rl.counters))
	for class, c := range rl.counters {
		out[class] = LimiterStats{Allowed: c.allowed.Load(), Rejected: c.rejected.Load()}
	}
	return out
}

// GetClientIP extracts the client IP from an HTTP request
// Handles X-Forwarded-For header for proxied requests
func GetClientIP(r *http.Request) string {
	// CAUTION: X-Forwarded-For can be spoofed if not behind a trusted proxy
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// connLimiter caps concurrent WebSocket connections per IP
type connLimiter struct {
	connections sync.Map // ip -> *atomic.Int32
	maxPerIP    int32
}

func newConnLimiter(maxPerIP int) *connLimiter {
	return &connLimiter{maxPerIP: int32(maxPerIP)}
}

// acquire reserves a connection slot for ip
func (l *connLimiter) acquire(ip string) bool {
	actual, _ := l.connections.LoadOrStore(ip, new(atomic.Int32))
	counter := actual.(*atomic.Int32)

	for {
		current := counter.Load()
		if current >= l.maxPerIP {
			return false
		}
		if counter.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

// release frees a slot reserved by acquire
func (l *connLimiter) release(ip string) {
	if v, ok := l.connections.Load(ip); ok {
		v.(*atomic.Int32).Add(-1)
	}
}

// OriginPolicy decides which browser origins may open a WebSocket.
// Entries match exactly, except a trailing ":*" which matches any port.
type OriginPolicy struct {
	exact    map[string]bool
	prefixes []string
}

// NewOriginPolicy builds a policy from CORS-style origin patterns
func NewOriginPolicy(origins []string) *OriginPolicy {
	p := &OriginPolicy{exact: make(map[string]bool)}
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if base, ok := strings.CutSuffix(o, ":*"); ok {
			p.prefixes = append(p.prefixes, base+":")
			p.exact[base] = true
			continue
		}
		if o != "" {
			p.exact[o] = true
		}
	}
	return p
}

// Allowed checks origin against the policy. Localhost is always allowed.
func (p *OriginPolicy) Allowed(origin string) bool {
	if origin == "" {
		return false
	}
	if origin == "http://localhost" || strings.HasPrefix(origin, "http://localhost:") {
		return true
	}
	if p.exact[origin] {
		return true
	}
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}
