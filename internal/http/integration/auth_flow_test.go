package integration_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/netsentry/authsvc/internal/config"
	httpx "github.com/netsentry/authsvc/internal/http"
	"github.com/netsentry/authsvc/internal/ratelimit"
	"github.com/netsentry/authsvc/internal/repo/memory"
	"github.com/netsentry/authsvc/internal/token"
)

func testConfig() config.Config {
	return config.Config{
		Env:             "test",
		AccessSecret:    "test-access-secret",
		RefreshSecret:   "test-refresh-secret",
		AccessTTL:       15 * time.Minute,
		RefreshTTL:      7 * 24 * time.Hour,
		HashConcurrency: 2,
		LoginRateLimit:  1000,
		LoginRateWindow: time.Minute,
	}
}

func setupRouter(t *testing.T, cfg config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
	tokens := token.NewManager(cfg.AccessSecret, cfg.RefreshSecret, cfg.AccessTTL, cfg.RefreshTTL)

	return httpx.NewRouter(httpx.Deps{
		Log:     log,
		Cfg:     cfg,
		Users:   memory.NewUsersRepo(),
		Tokens:  tokens,
		Limiter: ratelimit.NewMemory(cfg.LoginRateLimit, cfg.LoginRateWindow),
	})
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
}

func doRequest(router http.Handler, method, path, body string, cookies ...*http.Cookie) (*httptest.ResponseRecorder, *http.Response) {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))

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

func refreshCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()

	for _, c := range resp.Cookies() {
		if c.Name == "refresh_token" {
			return c
		}
	}

	t.Fatalf("refresh_token cookie not found in response")

	return nil
}

// The full credential lifecycle, including the documented policy that a
// refresh token captured before logout keeps working until it expires:
// there is no server-side revocation in this design.
func TestAuthLifecycle(t *testing.T) {
	router := setupRouter(t, testConfig())

	// REGISTER
	w, resp := doRequest(router, http.MethodPost, "/auth/register",
		`{"name":"Alice","email":"a@x.com","password":"secret1"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("register got status %d, want 200, body=%s", w.Code, w.Body.String())
	}

	var registered tokenResponse
	mustReadJSON(t, w, &registered)

	if strings.TrimSpace(registered.AccessToken) == "" {
		t.Fatalf("register expected accessToken, got empty")
	}

	r1 := refreshCookie(t, resp)

	// REFRESH with R1: new access token, different from the first.
	w2, resp2 := doRequest(router, http.MethodPost, "/auth/refresh", "", r1)

	if w2.Code != http.StatusOK {
		t.Fatalf("refresh got status %d, want 200, body=%s", w2.Code, w2.Body.String())
	}

	var refreshed tokenResponse
	mustReadJSON(t, w2, &refreshed)

	if refreshed.AccessToken == "" || refreshed.AccessToken == registered.AccessToken {
		t.Fatalf("refresh should mint a new access token, got %q", refreshed.AccessToken)
	}

	// No rotation: refresh must not touch the cookie.
	for _, c := range resp2.Cookies() {
		if c.Name == "refresh_token" {
			t.Fatalf("refresh must not set a refresh cookie, got %q", c.Value)
		}
	}

	// LOGOUT clears the cookie.
	w3, resp3 := doRequest(router, http.MethodPost, "/auth/logout", "", r1)

	if w3.Code != http.StatusOK {
		t.Fatalf("logout got status %d, want 200, body=%s", w3.Code, w3.Body.String())
	}

	cleared := refreshCookie(t, resp3)

	if cleared.Value != "" || (cleared.MaxAge >= 0 && !cleared.Expires.Before(time.Now())) {
		t.Fatalf("logout must clear the cookie with a past expiry, got %+v", cleared)
	}

	// REFRESH with the original R1 value manually resupplied: still 200.
	// Logout only overwrote the browser cookie; the token itself stays
	// valid until its natural expiry. Current policy, asserted on purpose.
	w4, _ := doRequest(router, http.MethodPost, "/auth/refresh", "", r1)

	if w4.Code != http.StatusOK {
		t.Fatalf("refresh after logout got status %d, want 200 (stateless design), body=%s",
			w4.Code, w4.Body.String())
	}
}

func TestLoginThenRefreshFlow(t *testing.T) {
	router := setupRouter(t, testConfig())

	w, _ := doRequest(router, http.MethodPost, "/auth/register",
		`{"name":"Bob","email":"b@x.com","password":"secret2"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("register got status %d, body=%s", w.Code, w.Body.String())
	}

	w2, resp2 := doRequest(router, http.MethodPost, "/auth/login",
		`{"email":"b@x.com","password":"secret2"}`)
	if w2.Code != http.StatusOK {
		t.Fatalf("login got status %d, body=%s", w2.Code, w2.Body.String())
	}

	cookie := refreshCookie(t, resp2)

	w3, _ := doRequest(router, http.MethodPost, "/auth/refresh", "", cookie)
	if w3.Code != http.StatusOK {
		t.Fatalf("refresh got status %d, body=%s", w3.Code, w3.Body.String())
	}
}

func TestLoginRateLimiting(t *testing.T) {
	cfg := testConfig()
	cfg.LoginRateLimit = 3
	router := setupRouter(t, cfg)

	body := `{"email":"nobody@x.com","password":"whatever"}`

	for i := 0; i < 3; i++ {
		w, _ := doRequest(router, http.MethodPost, "/auth/login", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("attempt %d got status %d, want 400", i+1, w.Code)
		}
	}

	w, _ := doRequest(router, http.MethodPost, "/auth/login", body)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("4th attempt got status %d, want 429", w.Code)
	}

	if w.Header().Get("Retry-After") == "" {
		t.Errorf("429 response should carry Retry-After")
	}
}

func TestMutatingRoutesRequireJSON(t *testing.T) {
	router := setupRouter(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/auth/register",
		bytes.NewBufferString(`{"name":"Alice","email":"a@x.com","password":"secret1"}`))
	// no Content-Type

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("got status %d, want 415", w.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	router := setupRouter(t, testConfig())

	w, _ := doRequest(router, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("healthz got %d", w.Code)
	}

	// No DB wired in tests: readiness still passes with a nil ping.
	w2, _ := doRequest(router, http.MethodGet, "/readyz", "")
	if w2.Code != http.StatusOK {
		t.Fatalf("readyz got %d", w2.Code)
	}
}
