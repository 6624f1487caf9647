package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/netsentry/authsvc/internal/config"
	"github.com/netsentry/authsvc/internal/http/handlers"
	"github.com/netsentry/authsvc/internal/http/middlewares"
	"github.com/netsentry/authsvc/internal/repo/memory"
	"github.com/netsentry/authsvc/internal/security"
	"github.com/netsentry/authsvc/internal/session"
	"github.com/netsentry/authsvc/internal/token"
)

// Make sure Gin does not spam the console during the test
func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() config.Config {
	return config.Config{
		Env:             "test",
		AccessSecret:    "test-access-secret",
		RefreshSecret:   "test-refresh-secret",
		AccessTTL:       15 * time.Minute,
		RefreshTTL:      7 * 24 * time.Hour,
		HashConcurrency: 2,
	}
}

type fixture struct {
	router *gin.Engine
	users  *memory.UsersRepo
	tokens *token.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := testConfig()
	users := memory.NewUsersRepo()
	tokens := token.NewManager(cfg.AccessSecret, cfg.RefreshSecret, cfg.AccessTTL, cfg.RefreshTTL)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	sessions := session.New(users, tokens, log, nil, cfg.HashConcurrency)
	h := handlers.NewAuthHandler(sessions, tokens, cfg)
	authMW := middlewares.NewAuthMiddleware(tokens)

	r := gin.New()
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/refresh", h.Refresh)
	r.POST("/auth/logout", h.Logout)
	r.GET("/auth/me", authMW.RequireAuth(), h.Me)
	r.POST("/auth/introspect", authMW.RequireAuth(), authMW.RequireRole("admin"), h.Introspect)

	return &fixture{router: r, users: users, tokens: tokens}
}

func (f *fixture) do(method, path, body string, cookies ...*http.Cookie) (*httptest.ResponseRecorder, *http.Response) {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	for _, c := range cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	return w, w.Result()
}

func (f *fixture) seedUser(t *testing.T, email, password, role string) string {
	t.Helper()

	hash, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	u, err := f.users.Create(context.Background(), email, hash, "Seeded", role)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	return u.ID
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
}

func refreshCookieFrom(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()

	for _, c := range resp.Cookies() {
		if c.Name == "refresh_token" {
			return c
		}
	}

	t.Fatalf("refresh_token cookie not found in response")

	return nil
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty body", body: `{}`},
		{name: "missing name", body: `{"email":"a@x.com","password":"secret1"}`},
		{name: "bad email", body: `{"name":"Alice","email":"not-an-email","password":"secret1"}`},
		{name: "short password", body: `{"name":"Alice","email":"a@x.com","password":"abc"}`},
		{name: "broken json", body: `{"name":`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)

			w, _ := f.do(http.MethodPost, "/auth/register", tc.body)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("got status %d, want 400, body=%s", w.Code, w.Body.String())
			}
		})
	}
}

func TestRegisterSuccess(t *testing.T) {
	f := newFixture(t)

	w, resp := f.do(http.MethodPost, "/auth/register", `{"name":"Alice","email":"a@x.com","password":"secret1"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200, body=%s", w.Code, w.Body.String())
	}

	var tr tokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &tr); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if tr.AccessToken == "" {
		t.Fatalf("expected accessToken in body")
	}

	cookie := refreshCookieFrom(t, resp)

	if !cookie.HttpOnly {
		t.Errorf("refresh cookie must be HttpOnly")
	}

	if cookie.Secure {
		t.Errorf("refresh cookie must not be Secure outside prod")
	}

	if cookie.Path != "/auth" {
		t.Errorf("refresh cookie path = %q, want /auth", cookie.Path)
	}

	if cookie.MaxAge <= 0 {
		t.Errorf("refresh cookie MaxAge = %d, want positive", cookie.MaxAge)
	}

	// The refresh token must never appear in the response body.
	if bytes.Contains(w.Body.Bytes(), []byte(cookie.Value)) {
		t.Errorf("refresh token leaked into the response body")
	}

	if _, err := f.tokens.VerifyRefreshToken(cookie.Value); err != nil {
		t.Errorf("cookie does not hold a valid refresh token: %v", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "a@x.com", "secret1", "user")

	w, _ := f.do(http.MethodPost, "/auth/register", `{"name":"Alice","email":"a@x.com","password":"secret1"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400, body=%s", w.Code, w.Body.String())
	}
}

func TestLoginFailureIsUniform(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "a@x.com", "secret1", "user")

	wUnknown, _ := f.do(http.MethodPost, "/auth/login", `{"email":"nobody@x.com","password":"secret1"}`)
	wWrongPw, _ := f.do(http.MethodPost, "/auth/login", `{"email":"a@x.com","password":"wrong"}`)

	if wUnknown.Code != http.StatusBadRequest || wWrongPw.Code != http.StatusBadRequest {
		t.Fatalf("got statuses %d/%d, want 400/400", wUnknown.Code, wWrongPw.Code)
	}

	// Identical bodies: no account enumeration via error detail.
	if wUnknown.Body.String() != wWrongPw.Body.String() {
		t.Fatalf("unknown-email and wrong-password bodies differ:\n%s\n%s",
			wUnknown.Body.String(), wWrongPw.Body.String())
	}
}

func TestLoginSuccess(t *testing.T) {
	f := newFixture(t)
	id := f.seedUser(t, "a@x.com", "secret1", "admin")

	w, resp := f.do(http.MethodPost, "/auth/login", `{"email":"a@x.com","password":"secret1"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200, body=%s", w.Code, w.Body.String())
	}

	var tr tokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &tr); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	claims, err := f.tokens.VerifyAccessToken(tr.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}

	if claims.UserID != id || claims.Role != "admin" {
		t.Errorf("claims = (%q,%q), want (%q,admin)", claims.UserID, claims.Role, id)
	}

	refreshCookieFrom(t, resp)
}

func TestRefreshWithoutCookie(t *testing.T) {
	f := newFixture(t)

	w, _ := f.do(http.MethodPost, "/auth/refresh", "")

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want 401, body=%s", w.Code, w.Body.String())
	}
}

func TestRefreshWithGarbageCookie(t *testing.T) {
	f := newFixture(t)

	w, _ := f.do(http.MethodPost, "/auth/refresh", "", &http.Cookie{Name: "refresh_token", Value: "garbage"})

	if w.Code != http.StatusForbidden {
		t.Fatalf("got status %d, want 403, body=%s", w.Code, w.Body.String())
	}
}

func TestRefreshOrphanedUser(t *testing.T) {
	f := newFixture(t)
	id := f.seedUser(t, "a@x.com", "secret1", "user")

	raw, err := f.tokens.IssueRefreshToken(id)
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}

	f.users.Delete(id)

	w, _ := f.do(http.MethodPost, "/auth/refresh", "", &http.Cookie{Name: "refresh_token", Value: raw})

	if w.Code != http.StatusForbidden {
		t.Fatalf("got status %d, want 403, body=%s", w.Code, w.Body.String())
	}
}

func TestLogoutAlwaysSucceeds(t *testing.T) {
	f := newFixture(t)

	// No prior cookie at all.
	w, resp := f.do(http.MethodPost, "/auth/logout", "")

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200, body=%s", w.Code, w.Body.String())
	}

	cookie := refreshCookieFrom(t, resp)

	if cookie.Value != "" {
		t.Errorf("logout cookie value = %q, want empty", cookie.Value)
	}

	if cookie.MaxAge >= 0 && !cookie.Expires.Before(time.Now()) {
		t.Errorf("logout cookie must expire in the past: MaxAge=%d Expires=%v", cookie.MaxAge, cookie.Expires)
	}

	if !cookie.HttpOnly {
		t.Errorf("cleared cookie must stay HttpOnly")
	}
}

func TestMe(t *testing.T) {
	f := newFixture(t)
	id := f.seedUser(t, "a@x.com", "secret1", "user")

	w, _ := f.do(http.MethodGet, "/auth/me", "")

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated /me got %d, want 401", w.Code)
	}

	access, err := f.tokens.IssueAccessToken(id, "user")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+access)

	w2 := httptest.NewRecorder()
	f.router.ServeHTTP(w2, req)

	if w2.Code != http.StatusOK {
		t.Fatalf("authenticated /me got %d, want 200, body=%s", w2.Code, w2.Body.String())
	}

	var body struct {
		UserID string `json:"userId"`
		Role   string `json:"role"`
	}
	if err := json.Unmarshal(w2.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if body.UserID != id || body.Role != "user" {
		t.Errorf("/me = %+v, want (%q,user)", body, id)
	}
}

func TestIntrospect(t *testing.T) {
	f := newFixture(t)
	adminID := f.seedUser(t, "admin@x.com", "secret1", "admin")
	userID := f.seedUser(t, "a@x.com", "secret1", "user")

	adminToken, err := f.tokens.IssueAccessToken(adminID, "admin")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	userToken, err := f.tokens.IssueAccessToken(userID, "user")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	introspect := func(bearer, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/introspect", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+bearer)

		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		return w
	}

	// Non-admin callers are rejected.
	if w := introspect(userToken, `{"token":"x"}`); w.Code != http.StatusForbidden {
		t.Fatalf("non-admin introspect got %d, want 403", w.Code)
	}

	// A valid access token introspects as active with its claims.
	w := introspect(adminToken, `{"token":"`+userToken+`"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("introspect got %d, want 200, body=%s", w.Code, w.Body.String())
	}

	var body struct {
		Active bool   `json:"active"`
		UserID string `json:"userId"`
		Role   string `json:"role"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !body.Active || body.UserID != userID || body.Role != "user" {
		t.Errorf("introspect = %+v, want active user claims", body)
	}

	// Garbage tokens report inactive, nothing more.
	w2 := introspect(adminToken, `{"token":"garbage"}`)

	var inactive struct {
		Active bool `json:"active"`
	}
	if err := json.Unmarshal(w2.Body.Bytes(), &inactive); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if w2.Code != http.StatusOK || inactive.Active {
		t.Errorf("garbage introspect = %d %s, want 200 inactive", w2.Code, w2.Body.String())
	}
}
