package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/geocoder89/seodash/internal/auth"
	"github.com/geocoder89/seodash/internal/config"
	"github.com/geocoder89/seodash/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testJWT = auth.NewManager("handlers-test-secret", 15*time.Minute, 24*time.Hour)

func testCfg() config.Config {
	return config.Config{Env: "test"}
}

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// bearer returns an Authorization header value for id acting as role.
func bearer(t *testing.T, id, role string) string {
	t.Helper()
	tok, err := testJWT.GenerateAccessToken(id, id+"@example.com", role)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + tok
}

func setupRouter(method, path string, h gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Handle(method, path, h)
	return r
}

// setupAuthedRouter puts the real bearer token check in front of h.
func setupAuthedRouter(method, path string, h gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Handle(method, path, middlewares.NewAuthMiddleware(testJWT).RequireAuth(), h)
	return r
}

func doRequest(r http.Handler, method, path, body, authz string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doCookieRequest(r http.Handler, method, path, name, value string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.AddCookie(&http.Cookie{Name: name, Value: value})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type errorEnvelope struct {
	Error struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, want, w.Body.String())
	}
}

func wantErrorCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) errorEnvelope {
	t.Helper()
	wantStatus(t, w, status)

	var env errorEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error body: %v body=%s", err, w.Body.String())
	}
	if env.Error.Code != code {
		t.Fatalf("got error code %q, want %q, body=%s", env.Error.Code, code, w.Body.String())
	}
	return env
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode body: %v body=%s", err, w.Body.String())
	}
}

func strPtr(s string) *string { return &s }
