package middlewares_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/geocoder89/seodash/internal/auth"
	"github.com/geocoder89/seodash/internal/http/middlewares"
	"github.com/geocoder89/seodash/internal/rbac"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeVerifier struct {
	claims *auth.Claims
}

func (f fakeVerifier) VerifyAccessToken(token string) (*auth.Claims, error) {
	if f.claims == nil || token != "good" {
		return nil, errors.New("bad token")
	}
	return f.claims, nil
}

func ok(c *gin.Context) { c.Status(http.StatusOK) }

func do(r http.Handler, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuthAndPermission(t *testing.T) {
	m := middlewares.NewAuthMiddleware(fakeVerifier{claims: &auth.Claims{UserID: "u1", Role: "viewer"}})

	r := gin.New()
	r.GET("/pagespeed", m.RequireAuth(), m.RequirePermission(rbac.AccessPageSpeed), ok)
	r.GET("/report", m.RequireAuth(), m.RequirePermission(rbac.CreateReports), ok)

	tests := []struct {
		name       string
		path       string
		header     string
		wantStatus int
	}{
		{"missing header", "/pagespeed", "", http.StatusUnauthorized},
		{"bad token", "/pagespeed", "Bearer nope", http.StatusUnauthorized},
		{"allowed", "/pagespeed", "Bearer good", http.StatusOK},
		{"viewer cannot create reports", "/report", "Bearer good", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodGet, tt.path, map[string]string{"Authorization": tt.header})
			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestPolicyFor_LongestPrefix(t *testing.T) {
	tests := []struct {
		path  string
		limit int
		win   time.Duration
	}{
		{"/api/report", 10, time.Minute},
		{"/api/reports/abc", 30, time.Minute},
		{"/api/auth/login", 5, 15 * time.Minute},
		{"/api/auth/register", 3, time.Hour},
		{"/api/admin/users/1", 20, time.Minute},
		{"/api/dashboard", 100, time.Minute},
	}

	for _, tt := range tests {
		p := middlewares.PolicyFor(tt.path, middlewares.DefaultPolicies)
		if p.Limit != tt.limit || p.Window != tt.win {
			t.Fatalf("%s: got %d/%s, want %d/%s", tt.path, p.Limit, p.Window, tt.limit, tt.win)
		}
	}
}

func TestRateLimit_AllowsExactlyLimitThen429(t *testing.T) {
	r := gin.New()
	r.Use(middlewares.RateLimit(middlewares.RateLimitConfig{
		Store:    middlewares.NewRateLimiter(),
		Policies: []middlewares.Policy{{Prefix: "/api/auth/login", Limit: 5, Window: 15 * time.Minute}},
	}))
	r.POST("/api/auth/login", ok)

	hdr := map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}
	for i := 1; i <= 5; i++ {
		w := do(r, http.MethodPost, "/api/auth/login", hdr)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: got status %d, want 200", i, w.Code)
		}
		if got := w.Header().Get("X-RateLimit-Remaining"); got != strconv.Itoa(5-i) {
			t.Fatalf("request %d: remaining=%s", i, got)
		}
	}

	w := do(r, http.MethodPost, "/api/auth/login", hdr)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("got status %d, want 429", w.Code)
	}
	if ra, err := strconv.Atoi(w.Header().Get("Retry-After")); err != nil || ra <= 0 {
		t.Fatalf("Retry-After=%q", w.Header().Get("Retry-After"))
	}
	if !strings.Contains(w.Body.String(), "rate_limited") {
		t.Fatalf("body=%s", w.Body.String())
	}

	// another client has its own window
	w = do(r, http.MethodPost, "/api/auth/login", map[string]string{"X-Real-IP": "198.51.100.2"})
	if w.Code != http.StatusOK {
		t.Fatalf("other client: got status %d", w.Code)
	}
}

func TestRateLimit_KeysByUserWhenTokenPresent(t *testing.T) {
	v := fakeVerifier{claims: &auth.Claims{UserID: "u1"}}
	r := gin.New()
	r.Use(middlewares.RateLimit(middlewares.RateLimitConfig{
		Store:    middlewares.NewRateLimiter(),
		Policies: []middlewares.Policy{{Prefix: "/x", Limit: 1, Window: time.Minute}},
		Identify: middlewares.IdentifyWithToken(v),
	}))
	r.GET("/x", ok)

	if w := do(r, http.MethodGet, "/x", map[string]string{"Authorization": "Bearer good", "X-Real-IP": "1.1.1.1"}); w.Code != 200 {
		t.Fatalf("first: %d", w.Code)
	}
	// same user from another address shares the window
	if w := do(r, http.MethodGet, "/x", map[string]string{"Authorization": "Bearer good", "X-Real-IP": "2.2.2.2"}); w.Code != 429 {
		t.Fatalf("second: %d", w.Code)
	}
}

type failingStore struct{}

func (failingStore) Hit(context.Context, string, int, time.Duration) (middlewares.Decision, error) {
	return middlewares.Decision{}, errors.New("redis down")
}

func TestRateLimit_FailsOpen(t *testing.T) {
	r := gin.New()
	r.Use(middlewares.RateLimit(middlewares.RateLimitConfig{Store: failingStore{}}))
	r.GET("/x", ok)

	if w := do(r, http.MethodGet, "/x", nil); w.Code != http.StatusOK {
		t.Fatalf("got status %d", w.Code)
	}
}

type fakeCounter struct{ counts map[string]int64 }

func (f *fakeCounter) IncrWindow(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	f.counts[key]++
	return f.counts[key], window, nil
}

func TestRedisStore(t *testing.T) {
	s := middlewares.NewRedisStore(&fakeCounter{counts: map[string]int64{}})

	for i := 1; i <= 3; i++ {
		d, err := s.Hit(context.Background(), "k", 2, time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		if want := i <= 2; d.Allowed != want {
			t.Fatalf("hit %d: allowed=%v", i, d.Allowed)
		}
		if d.Remaining < 0 {
			t.Fatalf("hit %d: negative remaining", i)
		}
	}
}

func TestRateLimiterSweep(t *testing.T) {
	rl := middlewares.NewRateLimiter()
	_, _ = rl.Hit(context.Background(), "a", 1, time.Nanosecond)
	time.Sleep(time.Millisecond)

	if n := rl.Sweep(); n != 1 {
		t.Fatalf("swept %d, want 1", n)
	}
}

func TestRequireJSON(t *testing.T) {
	r := gin.New()
	r.Use(middlewares.RequireJSON())
	r.POST("/x", ok)

	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("a=b"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("got status %d", w.Code)
	}

	// bodiless POST passes
	if w := do(r, http.MethodPost, "/x", nil); w.Code != http.StatusOK {
		t.Fatalf("bodiless: got status %d", w.Code)
	}
}

func TestCORSAndRequestID(t *testing.T) {
	r := gin.New()
	r.Use(middlewares.RequestID(), middlewares.CORSMiddleware([]string{"http://app.local"}))
	r.GET("/x", ok)

	w := do(r, http.MethodOptions, "/x", map[string]string{"Origin": "http://app.local"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight: got status %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "http://app.local" {
		t.Fatalf("missing allow origin")
	}

	w = do(r, http.MethodGet, "/x", map[string]string{"Origin": "http://evil.local", "X-Request-Id": "rid-1"})
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unexpected allow origin")
	}
	if w.Header().Get("X-Request-Id") != "rid-1" {
		t.Fatalf("request id not echoed")
	}
}
