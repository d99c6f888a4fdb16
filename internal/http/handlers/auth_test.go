package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/geocoder89/seodash/internal/accounts"
	"github.com/geocoder89/seodash/internal/domain/token"
	"github.com/geocoder89/seodash/internal/domain/user"
	"github.com/geocoder89/seodash/internal/http/handlers"
	"github.com/geocoder89/seodash/internal/repo/postgres"
)

type fakeAccountService struct {
	registerFn     func(ctx context.Context, in accounts.RegisterInput) (accounts.SignupResult, error)
	verifyFn       func(ctx context.Context, raw string, meta accounts.RequestMeta) (accounts.VerifyResult, error)
	requestResetFn func(ctx context.Context, email string) (string, error)
	resetFn        func(ctx context.Context, raw, password string) error
	authenticateFn func(ctx context.Context, email, password string) (user.User, error)
}

func (f *fakeAccountService) Register(ctx context.Context, in accounts.RegisterInput) (accounts.SignupResult, error) {
	return f.registerFn(ctx, in)
}

func (f *fakeAccountService) VerifyEmail(ctx context.Context, raw string, meta accounts.RequestMeta) (accounts.VerifyResult, error) {
	return f.verifyFn(ctx, raw, meta)
}

func (f *fakeAccountService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	return f.requestResetFn(ctx, email)
}

func (f *fakeAccountService) ResetPassword(ctx context.Context, raw, password string) error {
	return f.resetFn(ctx, raw, password)
}

func (f *fakeAccountService) Authenticate(ctx context.Context, email, password string) (user.User, error) {
	return f.authenticateFn(ctx, email, password)
}

type fakeUserGetter struct {
	getByIDFn func(ctx context.Context, id string) (user.User, error)
}

func (f *fakeUserGetter) GetByID(ctx context.Context, id string) (user.User, error) {
	return f.getByIDFn(ctx, id)
}

type fakeRefreshStore struct {
	saved   []postgres.RefreshTokenRow
	revoked []string
	rows    map[string]postgres.RefreshTokenRow
}

func (f *fakeRefreshStore) Save(_ context.Context, row postgres.RefreshTokenRow) error {
	f.saved = append(f.saved, row)
	if f.rows == nil {
		f.rows = map[string]postgres.RefreshTokenRow{}
	}
	f.rows[row.ID] = row
	return nil
}

func (f *fakeRefreshStore) Rotate(_ context.Context, oldID string, check func(postgres.RefreshTokenRow) error, next postgres.RefreshTokenRow) error {
	row, ok := f.rows[oldID]
	if !ok {
		return postgres.ErrRefreshTokenNotFound
	}
	if err := check(row); err != nil {
		return err
	}
	delete(f.rows, oldID)
	f.rows[next.ID] = next
	return nil
}

func (f *fakeRefreshStore) RevokeByID(_ context.Context, id string) error {
	f.revoked = append(f.revoked, id)
	delete(f.rows, id)
	return nil
}

func newAuthHandler(svc *fakeAccountService, store *fakeRefreshStore) *handlers.AuthHandler {
	users := &fakeUserGetter{getByIDFn: func(ctx context.Context, id string) (user.User, error) {
		return user.User{ID: id, Email: "sam@example.com", Role: user.RoleUser, IsActive: true}, nil
	}}
	return handlers.NewAuthHandler(svc, users, testJWT, store, testCfg(), discardLog())
}

func TestRegister_Created(t *testing.T) {
	var got accounts.RegisterInput
	svc := &fakeAccountService{
		registerFn: func(ctx context.Context, in accounts.RegisterInput) (accounts.SignupResult, error) {
			got = in
			return accounts.SignupResult{User: user.User{ID: "u-1"}, EmailSent: true}, nil
		},
	}
	h := newAuthHandler(svc, &fakeRefreshStore{})
	r := setupRouter(http.MethodPost, "/register", h.Register)

	w := doRequest(r, http.MethodPost, "/register", `{"email":"sam@example.com","password":"secret1","name":"Sam"}`, "")
	wantStatus(t, w, http.StatusCreated)

	var body struct {
		UserID    string `json:"userId"`
		EmailSent bool   `json:"emailSent"`
	}
	decodeBody(t, w, &body)
	if body.UserID != "u-1" || !body.EmailSent {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	if got.Email != "sam@example.com" || got.Name != "Sam" {
		t.Fatalf("unexpected service input: %+v", got)
	}
}

func TestRegister_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{"bad email", accounts.ErrInvalidEmail, "Valid email is required"},
		{"weak password", &accounts.PasswordError{Problems: []string{"too short"}}, "Invalid password"},
		{"taken", user.ErrEmailTaken, "Email already registered"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeAccountService{
				registerFn: func(ctx context.Context, in accounts.RegisterInput) (accounts.SignupResult, error) {
					return accounts.SignupResult{}, tc.err
				},
			}
			r := setupRouter(http.MethodPost, "/register", newAuthHandler(svc, &fakeRefreshStore{}).Register)

			w := doRequest(r, http.MethodPost, "/register", `{"email":"x","password":"y"}`, "")
			env := wantErrorCode(t, w, http.StatusBadRequest, "invalid_request")
			if env.Error.Message != tc.message {
				t.Fatalf("got message %q, want %q", env.Error.Message, tc.message)
			}
		})
	}
}

func TestLogin_UnverifiedIsForbidden(t *testing.T) {
	svc := &fakeAccountService{
		authenticateFn: func(ctx context.Context, email, password string) (user.User, error) {
			return user.User{}, accounts.ErrEmailNotVerified
		},
	}
	r := setupRouter(http.MethodPost, "/login", newAuthHandler(svc, &fakeRefreshStore{}).Login)

	w := doRequest(r, http.MethodPost, "/login", `{"email":"sam@example.com","password":"secret1"}`, "")
	wantErrorCode(t, w, http.StatusForbidden, "EMAIL_NOT_VERIFIED")
}

func TestLogin_BadCredentials(t *testing.T) {
	svc := &fakeAccountService{
		authenticateFn: func(ctx context.Context, email, password string) (user.User, error) {
			return user.User{}, accounts.ErrInvalidCredentials
		},
	}
	r := setupRouter(http.MethodPost, "/login", newAuthHandler(svc, &fakeRefreshStore{}).Login)

	w := doRequest(r, http.MethodPost, "/login", `{"email":"sam@example.com","password":"nope"}`, "")
	wantErrorCode(t, w, http.StatusUnauthorized, "invalid_credentials")
}

func TestLogin_IssuesTokensAndSession(t *testing.T) {
	site := "https://example.com"
	svc := &fakeAccountService{
		authenticateFn: func(ctx context.Context, email, password string) (user.User, error) {
			return user.User{ID: "u-1", Email: email, Role: user.RoleUser, SiteLink: &site, IsActive: true}, nil
		},
	}
	store := &fakeRefreshStore{}
	r := setupRouter(http.MethodPost, "/login", newAuthHandler(svc, store).Login)

	w := doRequest(r, http.MethodPost, "/login", `{"email":"sam@example.com","password":"secret1"}`, "")
	wantStatus(t, w, http.StatusOK)

	var body struct {
		AccessToken string       `json:"accessToken"`
		User        user.Session `json:"user"`
	}
	decodeBody(t, w, &body)
	if body.AccessToken == "" {
		t.Fatalf("expected access token")
	}
	if len(body.User.AccessibleSites) != 1 || body.User.AccessibleSites[0] != site {
		t.Fatalf("unexpected accessible sites: %+v", body.User.AccessibleSites)
	}
	if len(store.saved) != 1 || store.saved[0].UserID != "u-1" {
		t.Fatalf("expected one stored refresh token, got %+v", store.saved)
	}

	found := false
	for _, c := range w.Result().Cookies() {
		if c.Name == "refresh_token" && c.Value != "" && c.HttpOnly {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an httpOnly refresh_token cookie")
	}
}

func TestRefresh_MissingCookie(t *testing.T) {
	r := setupRouter(http.MethodPost, "/refresh", newAuthHandler(&fakeAccountService{}, &fakeRefreshStore{}).Refresh)

	w := doRequest(r, http.MethodPost, "/refresh", "", "")
	wantErrorCode(t, w, http.StatusUnauthorized, "no_refresh")
}

func TestRefresh_RejectsSubstitutedToken(t *testing.T) {
	store := &fakeRefreshStore{}
	h := newAuthHandler(&fakeAccountService{}, store)
	r := setupRouter(http.MethodPost, "/refresh", h.Refresh)

	raw, jti, exp, err := testJWT.GenerateRefreshToken("u-1", "sam@example.com", user.RoleUser)
	if err != nil {
		t.Fatalf("sign refresh: %v", err)
	}
	// the stored hash belongs to a different token
	_ = store.Save(context.Background(), postgres.RefreshTokenRow{ID: jti, UserID: "u-1", TokenHash: "other", ExpiresAt: exp})

	req := doRefresh(r, raw)
	wantErrorCode(t, req, http.StatusUnauthorized, "invalid_refresh")
}

func TestRefresh_RotatesOnce(t *testing.T) {
	store := &fakeRefreshStore{}
	h := newAuthHandler(&fakeAccountService{}, store)
	r := setupRouter(http.MethodPost, "/refresh", h.Refresh)

	raw, jti, exp, err := testJWT.GenerateRefreshToken("u-1", "sam@example.com", user.RoleUser)
	if err != nil {
		t.Fatalf("sign refresh: %v", err)
	}
	_ = store.Save(context.Background(), postgres.RefreshTokenRow{ID: jti, UserID: "u-1", TokenHash: testJWT.HashRefreshToken(raw), ExpiresAt: exp})

	wantStatus(t, doRefresh(r, raw), http.StatusOK)
	wantErrorCode(t, doRefresh(r, raw), http.StatusUnauthorized, "invalid_refresh")
}

func TestRefresh_UsesCurrentUserRecord(t *testing.T) {
	tests := []struct {
		name     string
		current  user.User
		getErr   error
		status   int
		wantRole string
	}{
		{"role change applies", user.User{ID: "u-1", Email: "sam@example.com", Role: user.RoleViewer, IsActive: true}, nil, http.StatusOK, user.RoleViewer},
		{"deactivated", user.User{ID: "u-1", Email: "sam@example.com", Role: user.RoleViewer, IsActive: false}, nil, http.StatusUnauthorized, ""},
		{"deleted", user.User{}, user.ErrUserNotFound, http.StatusUnauthorized, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			lookups := 0
			users := &fakeUserGetter{getByIDFn: func(ctx context.Context, id string) (user.User, error) {
				lookups++
				return tc.current, tc.getErr
			}}
			store := &fakeRefreshStore{}
			h := handlers.NewAuthHandler(&fakeAccountService{}, users, testJWT, store, testCfg(), discardLog())
			r := setupRouter(http.MethodPost, "/refresh", h.Refresh)

			raw, jti, exp, err := testJWT.GenerateRefreshToken("u-1", "sam@example.com", user.RoleUser)
			if err != nil {
				t.Fatalf("sign refresh: %v", err)
			}
			_ = store.Save(context.Background(), postgres.RefreshTokenRow{ID: jti, UserID: "u-1", TokenHash: testJWT.HashRefreshToken(raw), ExpiresAt: exp})

			w := doRefresh(r, raw)
			wantStatus(t, w, tc.status)
			if lookups != 1 {
				t.Fatalf("got %d user lookups, want 1", lookups)
			}

			if tc.status != http.StatusOK {
				wantErrorCode(t, w, tc.status, "invalid_refresh")
				if _, ok := store.rows[jti]; !ok {
					t.Fatalf("refresh token must not rotate for an unusable account")
				}
				return
			}

			var body struct {
				AccessToken string `json:"accessToken"`
			}
			decodeBody(t, w, &body)
			claims, err := testJWT.VerifyAccessToken(body.AccessToken)
			if err != nil {
				t.Fatalf("verify access token: %v", err)
			}
			if claims.Role != tc.wantRole {
				t.Fatalf("got role %q, want %q", claims.Role, tc.wantRole)
			}
		})
	}
}

func doRefresh(r http.Handler, raw string) *httptest.ResponseRecorder {
	return doCookieRequest(r, http.MethodPost, "/refresh", "refresh_token", raw)
}

func TestLogout_ClearsCookieAndRevokes(t *testing.T) {
	store := &fakeRefreshStore{}
	r := setupRouter(http.MethodPost, "/logout", newAuthHandler(&fakeAccountService{}, store).Logout)

	raw, jti, _, err := testJWT.GenerateRefreshToken("u-1", "sam@example.com", user.RoleUser)
	if err != nil {
		t.Fatalf("sign refresh: %v", err)
	}

	w := doCookieRequest(r, http.MethodPost, "/logout", "refresh_token", raw)
	wantStatus(t, w, http.StatusNoContent)

	if len(store.revoked) != 1 || store.revoked[0] != jti {
		t.Fatalf("expected %s revoked, got %v", jti, store.revoked)
	}
	cleared := false
	for _, c := range w.Result().Cookies() {
		if c.Name == "refresh_token" && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("expected refresh_token cookie to be cleared")
	}
}

func TestVerifyEmail(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		r := setupRouter(http.MethodGet, "/verify", newAuthHandler(&fakeAccountService{}, &fakeRefreshStore{}).VerifyEmail)
		wantErrorCode(t, doRequest(r, http.MethodGet, "/verify", "", ""), http.StatusBadRequest, "invalid_request")
	})

	t.Run("expired link reports reason", func(t *testing.T) {
		svc := &fakeAccountService{
			verifyFn: func(ctx context.Context, raw string, meta accounts.RequestMeta) (accounts.VerifyResult, error) {
				return accounts.VerifyResult{}, &accounts.VerificationError{Reason: token.ReasonExpired}
			},
		}
		r := setupRouter(http.MethodGet, "/verify", newAuthHandler(svc, &fakeRefreshStore{}).VerifyEmail)

		w := doRequest(r, http.MethodGet, "/verify?token=abc", "", "")
		wantStatus(t, w, http.StatusBadRequest)

		var body struct {
			Error  string `json:"error"`
			Reason string `json:"reason"`
		}
		decodeBody(t, w, &body)
		if body.Reason != token.ReasonExpired || !strings.Contains(body.Error, "expired") {
			t.Fatalf("unexpected body: %s", w.Body.String())
		}
	})

	t.Run("already verified", func(t *testing.T) {
		svc := &fakeAccountService{
			verifyFn: func(ctx context.Context, raw string, meta accounts.RequestMeta) (accounts.VerifyResult, error) {
				return accounts.VerifyResult{AlreadyVerified: true}, nil
			},
		}
		r := setupRouter(http.MethodGet, "/verify", newAuthHandler(svc, &fakeRefreshStore{}).VerifyEmail)

		w := doRequest(r, http.MethodGet, "/verify?token=abc", "", "")
		wantStatus(t, w, http.StatusOK)
		if !strings.Contains(w.Body.String(), `"alreadyVerified":true`) {
			t.Fatalf("unexpected body: %s", w.Body.String())
		}
	})
}

func TestForgotPassword_SameAnswerWhateverHappens(t *testing.T) {
	answers := []func(ctx context.Context, email string) (string, error){
		func(ctx context.Context, email string) (string, error) { return "http://x/reset-password?token=1", nil },
		func(ctx context.Context, email string) (string, error) { return "", nil },
		func(ctx context.Context, email string) (string, error) { return "", errors.New("db down") },
	}

	var first string
	for i, fn := range answers {
		svc := &fakeAccountService{requestResetFn: fn}
		r := setupRouter(http.MethodPost, "/forgot", newAuthHandler(svc, &fakeRefreshStore{}).ForgotPassword)

		w := doRequest(r, http.MethodPost, "/forgot", `{"email":"sam@example.com"}`, "")
		wantStatus(t, w, http.StatusOK)
		if i == 0 {
			first = w.Body.String()
			continue
		}
		if w.Body.String() != first {
			t.Fatalf("answer %d differs: %s vs %s", i, w.Body.String(), first)
		}
	}
}

func TestResetPassword_InvalidToken(t *testing.T) {
	svc := &fakeAccountService{
		resetFn: func(ctx context.Context, raw, password string) error { return accounts.ErrInvalidResetToken },
	}
	r := setupRouter(http.MethodPost, "/reset", newAuthHandler(svc, &fakeRefreshStore{}).ResetPassword)

	w := doRequest(r, http.MethodPost, "/reset", `{"token":"abc","password":"secret1"}`, "")
	env := wantErrorCode(t, w, http.StatusBadRequest, "invalid_request")
	if env.Error.Message != "Invalid or expired reset token" {
		t.Fatalf("unexpected message: %q", env.Error.Message)
	}
}

func TestSession_InactiveUserIsUnauthorized(t *testing.T) {
	users := &fakeUserGetter{getByIDFn: func(ctx context.Context, id string) (user.User, error) {
		return user.User{ID: id, Role: user.RoleUser, IsActive: false}, nil
	}}
	h := handlers.NewAuthHandler(&fakeAccountService{}, users, testJWT, &fakeRefreshStore{}, testCfg(), discardLog())
	r := setupAuthedRouter(http.MethodGet, "/session", h.Session)

	w := doRequest(r, http.MethodGet, "/session", "", bearer(t, "u-1", user.RoleUser))
	wantErrorCode(t, w, http.StatusUnauthorized, "unauthorized")
}
