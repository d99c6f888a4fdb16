package middlewares

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/geocoder89/seodash/internal/observability"
	"github.com/gin-gonic/gin"
)

// Policy limits requests whose path starts with Prefix.
type Policy struct {
	Prefix string
	Limit  int
	Window time.Duration
}

var DefaultPolicy = Policy{Prefix: "", Limit: 100, Window: time.Minute}

var DefaultPolicies = []Policy{
	{Prefix: "/api/report", Limit: 10, Window: time.Minute},
	{Prefix: "/api/reports", Limit: 30, Window: time.Minute},
	{Prefix: "/api/admin", Limit: 20, Window: time.Minute},
	{Prefix: "/api/admin/users", Limit: 20, Window: time.Minute},
	{Prefix: "/api/auth/login", Limit: 5, Window: 15 * time.Minute},
	{Prefix: "/api/auth/register", Limit: 3, Window: time.Hour},
	{Prefix: "/api/auth/forgot-password", Limit: 3, Window: time.Hour},
	{Prefix: "/api/auth/verify-email", Limit: 10, Window: 15 * time.Minute},
}

// PolicyFor picks the policy with the longest matching prefix.
func PolicyFor(path string, policies []Policy) Policy {
	best := DefaultPolicy
	for _, p := range policies {
		if strings.HasPrefix(path, p.Prefix) && len(p.Prefix) > len(best.Prefix) {
			best = p
		}
	}
	return best
}

// Decision is the outcome of counting one request.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type Store interface {
	Hit(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

// RateLimiter is the in-process Store: fixed windows in a map, swept
// periodically.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	now     func() time.Time
}

type clientBucket struct {
	count     int
	windowEnd time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*clientBucket),
		now:     time.Now,
	}
}

func (rl *RateLimiter) Hit(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.clients[key]
	if !ok || !now.Before(b.windowEnd) {
		b = &clientBucket{count: 1, windowEnd: now.Add(window)}
		rl.clients[key] = b
		return Decision{Allowed: true, Limit: limit, Remaining: limit - 1, ResetAt: b.windowEnd}, nil
	}

	if b.count >= limit {
		return Decision{Allowed: false, Limit: limit, Remaining: 0, ResetAt: b.windowEnd}, nil
	}

	b.count++
	return Decision{Allowed: true, Limit: limit, Remaining: limit - b.count, ResetAt: b.windowEnd}, nil
}

// Sweep drops expired windows and returns how many were removed.
func (rl *RateLimiter) Sweep() int {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	n := 0
	for k, b := range rl.clients {
		if !now.Before(b.windowEnd) {
			delete(rl.clients, k)
			n++
		}
	}
	return n
}

// RunSweeper sweeps every interval until ctx is done.
func (rl *RateLimiter) RunSweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rl.Sweep()
		}
	}
}

type RateLimitConfig struct {
	Store    Store
	Policies []Policy
	// Identify names the caller; defaults to ClientIdentifier.
	Identify func(*gin.Context) string
	Prom     *observability.Prom
	Log      *slog.Logger
}

// RateLimit enforces per caller and path limits. When the store fails the
// request is let through.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Identify == nil {
		cfg.Identify = ClientIdentifier
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		policy := PolicyFor(path, cfg.Policies)
		key := cfg.Identify(c) + ":" + path

		d, err := cfg.Store.Hit(c.Request.Context(), key, policy.Limit, policy.Window)
		if err != nil {
			cfg.Log.WarnContext(c.Request.Context(), "rate limit store failed", "err", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(d.Remaining, 0)))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

		if !d.Allowed {
			retryAfter := int(math.Ceil(time.Until(d.ResetAt).Seconds()))
			c.Header("Retry-After", strconv.Itoa(max(retryAfter, 0)))

			if cfg.Prom != nil {
				label := policy.Prefix
				if label == "" {
					label = "default"
				}
				cfg.Prom.RateLimited.WithLabelValues(label).Inc()
			}

			abortError(c, http.StatusTooManyRequests, "rate_limited", "Too many requests. Please try again later.")
			return
		}

		c.Next()
	}
}

// ClientIdentifier prefers the authenticated user, then the forwarded
// client address.
func ClientIdentifier(c *gin.Context) string {
	if id, ok := UserIDFromContext(c); ok {
		return "user:" + id
	}
	return "ip:" + clientIP(c)
}

// IdentifyWithToken also recognises callers by a valid bearer token, for
// limiters that run before RequireAuth.
func IdentifyWithToken(v TokenVerifier) func(*gin.Context) string {
	return func(c *gin.Context) string {
		if raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
			if claims, err := v.VerifyAccessToken(strings.TrimSpace(raw)); err == nil && claims.UserID != "" {
				return "user:" + claims.UserID
			}
		}
		return ClientIdentifier(c)
	}
}

func clientIP(c *gin.Context) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(c.GetHeader("X-Real-IP")); ip != "" {
		return ip
	}
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return "unknown"
}
