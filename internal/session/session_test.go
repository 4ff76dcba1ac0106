package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"zm-cli/internal/errs"
	"zm-cli/internal/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func newManager(t *testing.T, baseURL string, clk *fakeClock) (*Manager, store.Store) {
	t.Helper()
	st := store.NewMemStore()
	cfg := Config{}
	if clk != nil {
		cfg.Now = clk.now
	}
	m := New(st, cfg)
	if baseURL != "" {
		if err := m.SetBaseURL(baseURL); err != nil {
			t.Fatalf("SetBaseURL failed: %v", err)
		}
	}
	return m, st
}

func TestLoginAdoptsTokens(t *testing.T) {
	requests := atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Path != "/api/host/login.json" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if u, p := r.PostFormValue("user"), r.PostFormValue("pass"); u != "admin" || p != "secret" {
			t.Errorf("credentials = (%q, %q)", u, p)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"version":                  "1.36.33",
			"access_token":             "atok",
			"refresh_token":            "rtok",
			"access_token_expires_in":  3600,
			"refresh_token_expires_in": 2592000,
		})
	}))
	defer srv.Close()

	clk := newClock()
	m, st := newManager(t, srv.URL, clk)

	if err := m.Login(context.Background(), "admin", "secret", true); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	tok, ok := m.ValidToken(context.Background())
	if !ok || tok != "atok" {
		t.Fatalf("ValidToken = (%q, %v), want (atok, true)", tok, ok)
	}
	if n := requests.Load(); n != 1 {
		t.Errorf("expected 1 request, got %d", n)
	}

	// Tokens and the remembered password must be persisted in the
	// secure tier.
	for _, key := range []string{"access_token", "refresh_token", "password"} {
		if _, ok, _ := st.Secure.Read(key); !ok {
			t.Errorf("secure store missing %q", key)
		}
	}
	if v, _, _ := st.Plain.Read("username"); v != "admin" {
		t.Errorf("plain store username = %q", v)
	}
}

func TestLoginEmptyCredentials(t *testing.T) {
	requests := atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer srv.Close()

	m, _ := newManager(t, srv.URL, nil)

	err := m.Login(context.Background(), "", "secret", false)
	var verr *errs.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if requests.Load() != 0 {
		t.Error("validation failure must not reach the network")
	}
}

func TestLoginServerRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]string{"message": "bad creds"})
	}))
	defer srv.Close()

	m, _ := newManager(t, srv.URL, nil)

	err := m.Login(context.Background(), "x", "x", false)
	var aerr *errs.AuthenticationError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected AuthenticationError, got %v", err)
	}
	if aerr.Message != "bad creds" {
		t.Errorf("Message = %q, want %q", aerr.Message, "bad creds")
	}
}

func TestLoginWithoutTokensYieldsSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A server with auth disabled confirms the login but issues no
		// tokens.
		writeJSON(w, http.StatusOK, map[string]string{"version": "1.34.0"})
	}))
	defer srv.Close()

	m, _ := newManager(t, srv.URL, nil)

	if err := m.Login(context.Background(), "admin", "secret", false); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	tok, ok := m.ValidToken(context.Background())
	if !ok || tok != NoAuthToken {
		t.Fatalf("ValidToken = (%q, %v), want the no-auth sentinel", tok, ok)
	}
	if !m.IsAuthenticated() {
		t.Error("tokenless session must still count as authenticated")
	}
}

func TestValidTokenShortCircuits(t *testing.T) {
	requests := atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{
			"version":                 "1.36.33",
			"access_token":            "atok",
			"access_token_expires_in": 60,
		})
	}))
	defer srv.Close()

	clk := newClock()
	m, _ := newManager(t, srv.URL, clk)
	if err := m.Login(context.Background(), "admin", "secret", false); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	m.ValidToken(context.Background())
	m.ValidToken(context.Background())
	if n := requests.Load(); n != 1 {
		t.Errorf("ValidToken within lifetime must not hit the network; %d requests", n)
	}

	// Boundary: a token expiring exactly now is still valid for this
	// tick (strict now > expiry comparison).
	clk.advance(60 * time.Second)
	tok, ok := m.ValidToken(context.Background())
	if !ok || tok != "atok" {
		t.Fatalf("token at exact expiry = (%q, %v), want still valid", tok, ok)
	}
	if n := requests.Load(); n != 1 {
		t.Errorf("boundary check must not refresh; %d requests", n)
	}
}

func TestValidTokenRefreshGrant(t *testing.T) {
	loginPosts := atomic.Int32{}
	refreshGets := atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			loginPosts.Add(1)
			writeJSON(w, http.StatusOK, map[string]any{
				"version":                  "1.36.33",
				"access_token":             "atok",
				"refresh_token":            "rtok",
				"access_token_expires_in":  60,
				"refresh_token_expires_in": 3600,
			})
			return
		}
		refreshGets.Add(1)
		if r.URL.Query().Get("token") != "rtok" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid token"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"version":                 "1.36.33",
			"access_token":            "atok2",
			"access_token_expires_in": 60,
		})
	}))
	defer srv.Close()

	clk := newClock()
	m, _ := newManager(t, srv.URL, clk)
	if err := m.Login(context.Background(), "admin", "secret", false); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	clk.advance(61 * time.Second)
	tok, ok := m.ValidToken(context.Background())
	if !ok || tok != "atok2" {
		t.Fatalf("ValidToken after expiry = (%q, %v), want (atok2, true)", tok, ok)
	}
	if loginPosts.Load() != 1 || refreshGets.Load() != 1 {
		t.Errorf("requests = %d logins, %d refreshes; want 1 and 1",
			loginPosts.Load(), refreshGets.Load())
	}
}

func TestValidTokenReloginFallback(t *testing.T) {
	loginPosts := atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			// This server has no refresh grant.
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "no such grant"})
			return
		}
		n := loginPosts.Add(1)
		tok := "a1"
		if n > 1 {
			tok = "a2"
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"version":                  "1.36.33",
			"access_token":             tok,
			"refresh_token":            "rtok",
			"access_token_expires_in":  60,
			"refresh_token_expires_in": 3600,
		})
	}))
	defer srv.Close()

	clk := newClock()
	m, _ := newManager(t, srv.URL, clk)
	if err := m.Login(context.Background(), "admin", "secret", false); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	clk.advance(61 * time.Second)
	tok, ok := m.ValidToken(context.Background())
	if !ok || tok != "a2" {
		t.Fatalf("ValidToken = (%q, %v), want re-login result (a2, true)", tok, ok)
	}
	if loginPosts.Load() != 2 {
		t.Errorf("expected 2 login posts (initial + fallback), got %d", loginPosts.Load())
	}
}

func TestRefreshWithoutCredentialsFailsOffline(t *testing.T) {
	requests := atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer srv.Close()

	clk := newClock()
	m, st := newManager(t, srv.URL, clk)

	// A stale persisted token with nothing to refresh it with.
	st.Secure.Write("access_token", "stale")
	st.Secure.Write("access_token_expires", "1000") // long past

	tok, ok := m.ValidToken(context.Background())
	if ok || tok != "" {
		t.Fatalf("ValidToken = (%q, %v), want absent", tok, ok)
	}
	if requests.Load() != 0 {
		t.Error("refresh without credentials must fail without a network call")
	}
	// The exhausted refresh clears persisted token state too.
	if _, ok, _ := st.Secure.Read("access_token"); ok {
		t.Error("stale token still persisted after failed refresh")
	}
}

func TestSetBaseURLInvalidatesSession(t *testing.T) {
	srvA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"version":                 "1.36.33",
			"access_token":            "atok",
			"access_token_expires_in": 3600,
		})
	}))
	defer srvA.Close()

	requestsB := atomic.Int32{}
	srvB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestsB.Add(1)
	}))
	defer srvB.Close()

	m, st := newManager(t, srvA.URL, nil)
	if err := m.Login(context.Background(), "admin", "secret", false); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := m.SetBaseURL(srvB.URL); err != nil {
		t.Fatalf("SetBaseURL failed: %v", err)
	}

	// The old token had not expired, but a different server means no
	// session continuity.
	if tok, ok := m.ValidToken(context.Background()); ok {
		t.Fatalf("ValidToken after server switch = %q, want absent", tok)
	}
	if requestsB.Load() != 0 {
		t.Error("server switch must not trigger requests against the new server")
	}
	if _, ok, _ := st.Secure.Read("access_token"); ok {
		t.Error("old token still persisted after server switch")
	}

	// Same URL again is a no-op.
	if err := m.SetBaseURL(srvB.URL); err != nil {
		t.Fatalf("idempotent SetBaseURL failed: %v", err)
	}
}

func TestConcurrentRefreshSingleFlight(t *testing.T) {
	loginPosts := atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		loginPosts.Add(1)
		time.Sleep(30 * time.Millisecond) // widen the race window
		writeJSON(w, http.StatusOK, map[string]any{
			"version":                 "1.36.33",
			"access_token":            "fresh",
			"access_token_expires_in": 60,
		})
	}))
	defer srv.Close()

	clk := newClock()
	m, _ := newManager(t, srv.URL, clk)
	if err := m.Login(context.Background(), "admin", "secret", false); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	clk.advance(61 * time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, ok := m.ValidToken(context.Background())
			if !ok || tok != "fresh" {
				t.Errorf("ValidToken = (%q, %v), want (fresh, true)", tok, ok)
			}
		}()
	}
	wg.Wait()

	// Initial login plus exactly one coalesced refresh.
	if n := loginPosts.Load(); n != 2 {
		t.Errorf("expected 2 login posts, got %d", n)
	}
}

func TestUnknownExpiryProbe(t *testing.T) {
	probes := atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/host/getVersion.json" {
			probes.Add(1)
			writeJSON(w, http.StatusOK, map[string]string{"version": "1.36.33"})
			return
		}
		t.Errorf("unexpected request %s", r.URL.Path)
	}))
	defer srv.Close()

	m, st := newManager(t, srv.URL, nil)
	// Persisted token with no expiry metadata: the liveness probe
	// decides.
	st.Secure.Write("access_token", "mystery")

	tok, ok := m.ValidToken(context.Background())
	if !ok || tok != "mystery" {
		t.Fatalf("ValidToken = (%q, %v), want probe-validated token", tok, ok)
	}
	if probes.Load() != 1 {
		t.Errorf("expected 1 probe, got %d", probes.Load())
	}
}

func TestLogoutClearsState(t *testing.T) {
	logouts := atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/host/login.json":
			writeJSON(w, http.StatusOK, map[string]any{
				"version":                 "1.36.33",
				"access_token":            "atok",
				"access_token_expires_in": 3600,
			})
		case "/api/host/logout.json":
			logouts.Add(1)
			// Remote logout failing must not matter.
			writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "boom"})
		}
	}))
	defer srv.Close()

	m, st := newManager(t, srv.URL, nil)
	if err := m.Login(context.Background(), "admin", "secret", true); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := m.Logout(context.Background()); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	if logouts.Load() != 1 {
		t.Errorf("expected 1 remote logout attempt, got %d", logouts.Load())
	}
	if m.IsAuthenticated() {
		t.Error("still authenticated after logout")
	}
	for _, key := range []string{"access_token", "password"} {
		if _, ok, _ := st.Secure.Read(key); ok {
			t.Errorf("secure store still holds %q after logout", key)
		}
	}
	if _, ok, _ := st.Plain.Read("username"); ok {
		t.Error("plain store still holds username after logout")
	}
}

func TestSubscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"version":                 "1.36.33",
			"access_token":            "atok",
			"access_token_expires_in": 3600,
		})
	}))
	defer srv.Close()

	m, _ := newManager(t, srv.URL, nil)

	var mu sync.Mutex
	var states []State
	cancel := m.Subscribe(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	if err := m.Login(context.Background(), "admin", "secret", false); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	mu.Lock()
	got := len(states) > 0 && states[len(states)-1] == StateAuthenticated
	mu.Unlock()
	if !got {
		t.Fatalf("subscriber did not observe StateAuthenticated: %v", states)
	}

	cancel()
	before := len(states)
	if err := m.Logout(context.Background()); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	mu.Lock()
	after := len(states)
	mu.Unlock()
	if after != before {
		t.Error("cancelled subscriber still received notifications")
	}
}
