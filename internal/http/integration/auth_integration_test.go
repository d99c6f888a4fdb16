package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/geocoder89/seodash/internal/accounts"
	"github.com/geocoder89/seodash/internal/auth"
	"github.com/geocoder89/seodash/internal/config"
	"github.com/geocoder89/seodash/internal/db"
	"github.com/geocoder89/seodash/internal/domain/user"
	apphttp "github.com/geocoder89/seodash/internal/http"
	"github.com/geocoder89/seodash/internal/http/handlers"
	"github.com/geocoder89/seodash/internal/http/middlewares"
	"github.com/geocoder89/seodash/internal/jobs"
	"github.com/geocoder89/seodash/internal/notifications"
	"github.com/geocoder89/seodash/internal/observability"
	"github.com/geocoder89/seodash/internal/repo/postgres"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

var tokenRe = regexp.MustCompile(`token=([0-9a-f]+)`)

// outbox records every message instead of delivering it.
type outbox struct {
	mu   sync.Mutex
	msgs []notifications.Message
}

func (o *outbox) Send(_ context.Context, msg notifications.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) lastToken(t *testing.T, kind string) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()

	for i := len(o.msgs) - 1; i >= 0; i-- {
		if o.msgs[i].Kind != kind {
			continue
		}
		if m := tokenRe.FindStringSubmatch(o.msgs[i].HTML); m != nil {
			return m[1]
		}
	}
	t.Fatalf("no %s email with a token was sent", kind)
	return ""
}

func testConfig() config.Config {
	return config.Config{
		Env:                 "test",
		AppBaseURL:          "http://localhost:3000",
		CORSOrigins:         []string{"http://localhost:3000"},
		JWTSecret:           "test-secret-key-that-is-long-enough",
		JWTAccessTTLMinutes: 15,
		JWTRefreshTTLDays:   7,
	}
}

func setupRouter(t *testing.T) (*gin.Engine, *pgxpool.Pool, *outbox) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to create pgx pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig()
	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)
	mail := &outbox{}

	usersRepo := postgres.NewUsersRepo(pool, nil)
	refreshRepo := postgres.NewRefreshTokensRepo(pool, nil)
	jobsRepo := postgres.NewJobsRepo(pool, nil)
	enqueuer := jobs.NewEnqueuer(jobsRepo)

	svc := accounts.NewService(accounts.Deps{
		Users:         usersRepo,
		Verifications: postgres.NewVerificationTokensRepo(pool, nil),
		Resets:        postgres.NewResetTokensRepo(pool, nil),
		Audit:         postgres.NewVerificationLogsRepo(pool, nil),
		Sessions:      refreshRepo,
		Mailer:        mail,
		Queue:         enqueuer,
		Log:           log,
		BaseURL:       cfg.AppBaseURL,
	})
	jwtManager := auth.NewManager(cfg.JWTSecret, cfg.AccessTTL(), cfg.RefreshTTL())

	router := apphttp.NewRouter(apphttp.Deps{
		Config:    cfg,
		Log:       log,
		Prom:      prom,
		Gatherer:  reg,
		JWT:       jwtManager,
		RateStore: middlewares.NewRateLimiter(),

		Health:        handlers.NewHealthHandler(pool),
		Auth:          handlers.NewAuthHandler(svc, usersRepo, jwtManager, refreshRepo, cfg, log),
		AdminUsers:    handlers.NewAdminUsersHandler(usersRepo, svc, nil, refreshRepo, enqueuer, log),
		AdminJobs:     handlers.NewAdminJobsHandler(jobsRepo),
		Reports:       handlers.NewReportsHandler(nil, cfg, log),
		PageSpeed:     handlers.NewPageSpeedHandler(usersRepo, nil, cfg, log),
		SearchConsole: handlers.NewSearchConsoleHandler(usersRepo, nil, cfg, log),
	})

	resetDB(t, pool)
	t.Cleanup(func() { resetDB(t, pool) })

	return router, pool, mail
}

func resetDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	_, err := pool.Exec(context.Background(), `
		TRUNCATE refresh_tokens, email_verification_tokens, password_reset_tokens,
			verification_logs, jobs, users
		RESTART IDENTITY CASCADE
	`)
	if err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
}

func refreshCookie(t *testing.T, response *http.Response) *http.Cookie {
	t.Helper()

	for _, c := range response.Cookies() {
		if c.Name == "refresh_token" {
			return c
		}
	}

	t.Fatalf("refresh_token cookie not found in response")
	return nil
}

func doRequest(router http.Handler, method, path, body string, cookies ...*http.Cookie) (*httptest.ResponseRecorder, *http.Response) {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.RemoteAddr = "203.0.113.10:4242"

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	for _, c := range cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w, w.Result()
}

func mustReadJSON[T any](t *testing.T, w *httptest.ResponseRecorder, out *T) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("failed to unmarshal json: %v, body=%s", err, w.Body.String())
	}
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
}

func TestAuthIntegration_Register_Verify_Login_Refresh_Logout(t *testing.T) {
	router, _, mail := setupRouter(t)

	// register
	w, _ := doRequest(router, http.MethodPost, "/api/auth/register",
		`{"email":"Sam@Example.com","password":"secret1","name":"Sam Doe"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("register got status %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
	}

	// unverified accounts cannot sign in
	login := `{"email":"sam@example.com","password":"secret1"}`
	w, _ = doRequest(router, http.MethodPost, "/api/auth/login", login)
	if w.Code != http.StatusForbidden || !strings.Contains(w.Body.String(), "EMAIL_NOT_VERIFIED") {
		t.Fatalf("login(unverified) got status %d, body=%s", w.Code, w.Body.String())
	}

	// verify with the emailed token
	raw := mail.lastToken(t, notifications.KindVerification)
	w, _ = doRequest(router, http.MethodGet, "/api/auth/verify-email?token="+raw, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"verified":true`) {
		t.Fatalf("verify got status %d, body=%s", w.Code, w.Body.String())
	}

	// a used token reports already verified
	w, _ = doRequest(router, http.MethodGet, "/api/auth/verify-email?token="+raw, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "alreadyVerified") {
		t.Fatalf("verify(again) got status %d, body=%s", w.Code, w.Body.String())
	}

	// login
	w, response := doRequest(router, http.MethodPost, "/api/auth/login", login)
	if w.Code != http.StatusOK {
		t.Fatalf("login got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	var loginTok tokenResponse
	mustReadJSON(t, w, &loginTok)
	if strings.TrimSpace(loginTok.AccessToken) == "" {
		t.Fatalf("login expected accessToken, got empty")
	}
	first := refreshCookie(t, response)

	// refresh rotates the cookie
	w, response = doRequest(router, http.MethodPost, "/api/auth/refresh", "", first)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	rotated := refreshCookie(t, response)

	w, _ = doRequest(router, http.MethodPost, "/api/auth/refresh", "", first)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("refresh(old cookie) got status %d, want %d, body=%s", w.Code, http.StatusUnauthorized, w.Body.String())
	}

	// logout revokes and clears
	w, response = doRequest(router, http.MethodPost, "/api/auth/logout", "", rotated)
	if w.Code != http.StatusNoContent {
		t.Fatalf("logout got status %d, want %d, body=%s", w.Code, http.StatusNoContent, w.Body.String())
	}
	cleared := false
	for _, c := range response.Cookies() {
		if c.Name == "refresh_token" && (c.MaxAge < 0 || c.Value == "") {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("expected logout to clear refresh_token cookie")
	}

	w, _ = doRequest(router, http.MethodPost, "/api/auth/refresh", "", rotated)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("refresh(after logout) got status %d, want %d, body=%s", w.Code, http.StatusUnauthorized, w.Body.String())
	}
}

func TestAuthIntegration_PasswordReset(t *testing.T) {
	router, pool, mail := setupRouter(t)

	w, _ := doRequest(router, http.MethodPost, "/api/auth/register",
		`{"email":"kim@example.com","password":"secret1","name":"Kim"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("register got status %d, body=%s", w.Code, w.Body.String())
	}
	if _, err := pool.Exec(context.Background(),
		`UPDATE users SET email_verified = TRUE, status = 'active' WHERE email = 'kim@example.com'`); err != nil {
		t.Fatalf("mark verified: %v", err)
	}

	// unknown and known emails get the same answer
	wUnknown, _ := doRequest(router, http.MethodPost, "/api/auth/forgot-password", `{"email":"nobody@example.com"}`)
	wKnown, _ := doRequest(router, http.MethodPost, "/api/auth/forgot-password", `{"email":"kim@example.com"}`)
	if wUnknown.Code != http.StatusOK || wKnown.Code != http.StatusOK {
		t.Fatalf("forgot-password got %d and %d, want 200", wUnknown.Code, wKnown.Code)
	}
	if wUnknown.Body.String() != wKnown.Body.String() {
		t.Fatalf("forgot-password answers differ: %s vs %s", wUnknown.Body.String(), wKnown.Body.String())
	}

	raw := mail.lastToken(t, notifications.KindPasswordReset)

	w, _ = doRequest(router, http.MethodPost, "/api/auth/reset-password",
		`{"token":"`+raw+`","password":"newsecret"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("reset got status %d, body=%s", w.Code, w.Body.String())
	}

	// single use
	w, _ = doRequest(router, http.MethodPost, "/api/auth/reset-password",
		`{"token":"`+raw+`","password":"another1"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("reset(reused) got status %d, want %d", w.Code, http.StatusBadRequest)
	}

	w, _ = doRequest(router, http.MethodPost, "/api/auth/login", `{"email":"kim@example.com","password":"secret1"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("login(old password) got status %d, want %d", w.Code, http.StatusUnauthorized)
	}
	w, _ = doRequest(router, http.MethodPost, "/api/auth/login", `{"email":"kim@example.com","password":"newsecret"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login(new password) got status %d, body=%s", w.Code, w.Body.String())
	}
}

func TestAuthIntegration_DeactivatedUserCannotRefresh(t *testing.T) {
	router, pool, _ := setupRouter(t)
	ctx := context.Background()

	w, _ := doRequest(router, http.MethodPost, "/api/auth/register",
		`{"email":"lee@example.com","password":"secret1","name":"Lee"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("register got status %d, body=%s", w.Code, w.Body.String())
	}
	if _, err := pool.Exec(ctx,
		`UPDATE users SET email_verified = TRUE, status = 'active' WHERE email = 'lee@example.com'`); err != nil {
		t.Fatalf("mark verified: %v", err)
	}

	w, response := doRequest(router, http.MethodPost, "/api/auth/login", `{"email":"lee@example.com","password":"secret1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login got status %d, body=%s", w.Code, w.Body.String())
	}
	cookie := refreshCookie(t, response)

	if _, err := pool.Exec(ctx, `UPDATE users SET is_active = FALSE WHERE email = 'lee@example.com'`); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	w, _ = doRequest(router, http.MethodPost, "/api/auth/refresh", "", cookie)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("refresh(deactivated) got status %d, want %d, body=%s", w.Code, http.StatusUnauthorized, w.Body.String())
	}
}

func TestAuthIntegration_DeleteUserRemovesVerificationTokens(t *testing.T) {
	router, pool, _ := setupRouter(t)
	ctx := context.Background()

	w, _ := doRequest(router, http.MethodPost, "/api/auth/register",
		`{"email":"ria@example.com","password":"secret1","name":"Ria"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("register got status %d, body=%s", w.Code, w.Body.String())
	}

	usersRepo := postgres.NewUsersRepo(pool, nil)
	u, err := usersRepo.GetByEmail(ctx, "ria@example.com")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}

	if err := usersRepo.Delete(ctx, u.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	var left int
	if err := pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM email_verification_tokens WHERE email = $1`, u.Email).Scan(&left); err != nil {
		t.Fatalf("count tokens: %v", err)
	}
	if left != 0 {
		t.Fatalf("got %d verification tokens after delete, want 0", left)
	}

	if err := usersRepo.Delete(ctx, u.ID); !errors.Is(err, user.ErrUserNotFound) {
		t.Fatalf("delete(again) got %v, want ErrUserNotFound", err)
	}
}
