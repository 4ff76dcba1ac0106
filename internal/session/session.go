// Package session owns the authentication lifecycle against a
// ZoneMinder server: login, token expiry tracking, silent refresh and
// credential persistence. There is exactly one logical session per
// process; all collaborators receive the same *Manager.
package session

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"zm-cli/internal/errs"
	"zm-cli/internal/store"
	"zm-cli/internal/zmurl"
	"zm-cli/pkg/models"
)

// NoAuthToken marks a session where the server confirmed the login but
// issues no tokens (auth disabled server-side). Distinct from "not
// authenticated": requests proceed, just without a bearer header.
const NoAuthToken = "zm-no-auth"

// DefaultBaseURL is the fallback when no server has ever been
// configured.
const DefaultBaseURL = "https://demo.zoneminder.com/zm"

const (
	defaultAccessTTL  = 3600 * time.Second
	defaultRefreshTTL = 2592000 * time.Second
	requestTimeout    = 30 * time.Second
)

// Keys under which session state persists across runs. The base URL
// and username are plain config; everything else is secret.
const (
	keyBaseURL       = "base_url"
	keyUsername      = "username"
	keyPassword      = "password"
	keyAccessToken   = "access_token"
	keyRefreshToken  = "refresh_token"
	keyAccessExpiry  = "access_token_expires"
	keyRefreshExpiry = "refresh_token_expires"
)

// State is the externally visible authentication state, published to
// subscribers whenever it changes.
type State int

const (
	StateUninitialized State = iota
	StateUnauthenticated
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "uninitialized"
	}
}

// RefreshMode selects how a stale access token is renewed. Older
// servers have no refresh grant at all, so the strategy is
// configurable per deployment rather than hard-coded.
type RefreshMode int

const (
	// RefreshAuto uses the refresh-token grant when a live refresh
	// token exists, falling back to re-login with retained credentials.
	RefreshAuto RefreshMode = iota
	// RefreshTokenOnly never re-sends the password.
	RefreshTokenOnly
	// RefreshReloginOnly is for servers without a refresh grant.
	RefreshReloginOnly
)

type Config struct {
	DefaultBaseURL string
	RefreshMode    RefreshMode
	// Now is a test hook; defaults to time.Now.
	Now func() time.Time
}

// Manager is the single owner of session state. All mutation goes
// through Login, Logout, SetBaseURL and the refresh cycle.
type Manager struct {
	mu   sync.Mutex
	st   store.Store
	http *resty.Client
	cfg  Config

	initialized   bool
	baseURL       string
	apiURL        string
	accessToken   string
	refreshToken  string
	accessExpiry  time.Time
	refreshExpiry time.Time

	// Retained to support refresh-by-re-login; never logged.
	username   string
	password   string
	rememberMe bool

	// Serializes refresh attempts: two near-simultaneous 401s must not
	// trigger two parallel re-logins.
	group singleflight.Group

	subMu   sync.Mutex
	subs    map[int]func(State)
	nextSub int
}

func New(st store.Store, cfg Config) *Manager {
	if cfg.DefaultBaseURL == "" {
		cfg.DefaultBaseURL = DefaultBaseURL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	r := resty.New()
	r.SetTimeout(requestTimeout)
	r.SetHeader("Accept", "application/json")
	return &Manager{
		st:   st,
		http: r,
		cfg:  cfg,
		subs: make(map[int]func(State)),
	}
}

// EnsureInitialized loads persisted state on first use. Idempotent. A
// storage failure is fatal for this session attempt; "no entry found"
// is not a failure.
func (m *Manager) EnsureInitialized(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initLocked()
}

func (m *Manager) initLocked() error {
	if m.initialized {
		return nil
	}

	base, ok, err := m.st.Plain.Read(keyBaseURL)
	if err != nil {
		return &errs.InitializationError{Err: err}
	}
	if !ok || base == "" {
		base = m.cfg.DefaultBaseURL
	}
	m.baseURL = zmurl.Sanitize(base, m.cfg.DefaultBaseURL)
	m.apiURL = zmurl.APIRoot(m.baseURL, m.cfg.DefaultBaseURL)

	if m.username == "" {
		u, ok, err := m.st.Plain.Read(keyUsername)
		if err != nil {
			return &errs.InitializationError{Err: err}
		}
		if ok {
			m.username = u
		}
	}
	if m.password == "" {
		p, ok, err := m.st.Secure.Read(keyPassword)
		if err != nil {
			return &errs.InitializationError{Err: err}
		}
		if ok {
			m.password = p
			m.rememberMe = true
		}
	}

	tok, ok, err := m.st.Secure.Read(keyAccessToken)
	if err != nil {
		return &errs.InitializationError{Err: err}
	}
	if ok && tok != "" {
		m.accessToken = tok
		m.accessExpiry = m.readExpiryLocked(keyAccessExpiry)
	}
	rtok, ok, err := m.st.Secure.Read(keyRefreshToken)
	if err != nil {
		return &errs.InitializationError{Err: err}
	}
	if ok && rtok != "" {
		m.refreshToken = rtok
		m.refreshExpiry = m.readExpiryLocked(keyRefreshExpiry)
	}

	m.initialized = true
	return nil
}

// readExpiryLocked returns the zero time when the entry is missing or
// unparseable; an unknown expiry triggers the liveness probe path, not
// an error.
func (m *Manager) readExpiryLocked(key string) time.Time {
	v, ok, err := m.st.Secure.Read(key)
	if err != nil || !ok {
		return time.Time{}
	}
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

// Login authenticates against {apiURL}/host/login.json and adopts the
// returned tokens. Credentials are retained in memory for the refresh
// cycle and persisted only when rememberMe is set.
func (m *Manager) Login(ctx context.Context, username, password string, rememberMe bool) error {
	if username == "" || password == "" {
		return &errs.ValidationError{Msg: "username and password must not be empty"}
	}

	m.mu.Lock()
	if err := m.initLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	apiURL := m.apiURL
	m.mu.Unlock()

	res, err := m.doLogin(ctx, apiURL, username, password)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.username = username
	m.password = password
	m.rememberMe = rememberMe
	err = m.adoptLocked(res)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	if rememberMe {
		if err := m.st.Plain.Write(keyUsername, username); err != nil {
			return err
		}
		if err := m.st.Secure.Write(keyPassword, password); err != nil {
			return err
		}
	} else {
		if err := m.st.Plain.Delete(keyUsername); err != nil {
			return err
		}
		if err := m.st.Secure.Delete(keyPassword); err != nil {
			return err
		}
	}

	m.notify(StateAuthenticated)
	return nil
}

func (m *Manager) doLogin(ctx context.Context, apiURL, username, password string) (*models.LoginResponse, error) {
	var body models.LoginResponse
	resp, err := m.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{"user": username, "pass": password}).
		SetResult(&body).
		Post(apiURL + "/host/login.json")
	if err != nil {
		return nil, errs.FromTransport(err)
	}
	if resp.IsError() {
		return nil, &errs.AuthenticationError{Message: models.ErrorMessage(resp.Body())}
	}
	// The version field is the success marker; a 200 without it means
	// we are not talking to a ZoneMinder API.
	if body.Version == "" {
		return nil, &errs.AuthenticationError{Message: "login response missing version marker"}
	}
	return &body, nil
}

// doTokenRefresh exchanges a refresh token for a fresh access token
// via the login endpoint's token grant.
func (m *Manager) doTokenRefresh(ctx context.Context, apiURL, refreshToken string) (*models.LoginResponse, error) {
	var body models.LoginResponse
	resp, err := m.http.R().
		SetContext(ctx).
		SetQueryParam("token", refreshToken).
		SetResult(&body).
		Get(apiURL + "/host/login.json")
	if err != nil {
		return nil, errs.FromTransport(err)
	}
	if resp.IsError() {
		return nil, &errs.AuthenticationError{Message: models.ErrorMessage(resp.Body())}
	}
	if body.Version == "" || body.AccessToken == "" {
		return nil, &errs.AuthenticationError{Message: "refresh response missing access token"}
	}
	return &body, nil
}

// adoptLocked installs tokens from a login/refresh response and
// persists them. A response without an access token yields the no-auth
// sentinel. A refresh response without a refresh token keeps the old
// one.
func (m *Manager) adoptLocked(res *models.LoginResponse) error {
	now := m.cfg.Now()

	tok := res.AccessToken
	if tok == "" {
		tok = NoAuthToken
	}
	m.accessToken = tok
	m.accessExpiry = expiryFor(tok, res.AccessTokenExpiresIn.Int64(), defaultAccessTTL, now)

	if res.RefreshToken != "" {
		m.refreshToken = res.RefreshToken
		m.refreshExpiry = expiryFor(res.RefreshToken, res.RefreshTokenExpiresIn.Int64(), defaultRefreshTTL, now)
	}

	if err := m.st.Secure.Write(keyAccessToken, m.accessToken); err != nil {
		return err
	}
	if err := m.st.Secure.Write(keyAccessExpiry, strconv.FormatInt(m.accessExpiry.Unix(), 10)); err != nil {
		return err
	}
	if m.refreshToken != "" {
		if err := m.st.Secure.Write(keyRefreshToken, m.refreshToken); err != nil {
			return err
		}
		if err := m.st.Secure.Write(keyRefreshExpiry, strconv.FormatInt(m.refreshExpiry.Unix(), 10)); err != nil {
			return err
		}
	}
	return nil
}

// expiryFor prefers the server-reported lifetime, then the exp claim
// when the token is a JWT, then the documented default.
func expiryFor(tok string, expiresIn int64, fallback time.Duration, now time.Time) time.Time {
	if expiresIn > 0 {
		return now.Add(time.Duration(expiresIn) * time.Second)
	}
	if tok != NoAuthToken {
		if exp, ok := jwtExpiry(tok); ok {
			return exp
		}
	}
	return now.Add(fallback)
}

// jwtExpiry pulls the exp claim without verifying the signature; we
// only need the lifetime, the server remains the authority on
// validity.
func jwtExpiry(tok string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// ValidToken returns a token to attach to requests. Within the
// tracked lifetime it answers from memory with no network round trip.
// A stale token triggers one refresh cycle; on failure the session is
// cleared and the second return is false.
func (m *Manager) ValidToken(ctx context.Context) (string, bool) {
	m.mu.Lock()
	if err := m.initLocked(); err != nil {
		m.mu.Unlock()
		return "", false
	}
	tok := m.accessToken
	exp := m.accessExpiry
	m.mu.Unlock()

	if tok == "" {
		return "", false
	}

	now := m.cfg.Now()
	if !exp.IsZero() && !now.After(exp) {
		// Strict comparison: a token expiring exactly now is still
		// valid for this tick.
		return tok, true
	}
	if exp.IsZero() && m.probe(ctx, tok) {
		return tok, true
	}

	fresh, err := m.refreshShared(ctx, false)
	if err != nil {
		return "", false
	}
	return fresh, true
}

// RefreshNow forces a refresh cycle regardless of local expiry
// tracking. Used by the request executor when the server answers 401
// for a token we still believed valid.
func (m *Manager) RefreshNow(ctx context.Context) (string, error) {
	return m.refreshShared(ctx, true)
}

// refreshShared funnels every refresh through one singleflight key so
// concurrent callers coalesce onto a single re-login.
func (m *Manager) refreshShared(ctx context.Context, force bool) (string, error) {
	v, err, _ := m.group.Do("refresh", func() (any, error) {
		return m.refresh(ctx, force)
	})
	if err != nil {
		m.clearAuth()
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) refresh(ctx context.Context, force bool) (string, error) {
	m.mu.Lock()
	if !force {
		// A flight that completed while we queued may have already
		// renewed the token.
		now := m.cfg.Now()
		if m.accessToken != "" && !m.accessExpiry.IsZero() && !now.After(m.accessExpiry) {
			tok := m.accessToken
			m.mu.Unlock()
			return tok, nil
		}
	}
	apiURL := m.apiURL
	refreshToken := m.refreshToken
	refreshExpiry := m.refreshExpiry
	username := m.username
	password := m.password
	m.mu.Unlock()

	now := m.cfg.Now()
	refreshLive := refreshToken != "" && (refreshExpiry.IsZero() || !now.After(refreshExpiry))

	if m.cfg.RefreshMode != RefreshReloginOnly && refreshLive {
		res, err := m.doTokenRefresh(ctx, apiURL, refreshToken)
		if err == nil {
			return m.adoptAndNotify(res)
		}
		if m.cfg.RefreshMode == RefreshTokenOnly {
			return "", err
		}
		// Grant rejected; fall back to re-login below.
	}

	if username == "" || password == "" {
		// No credentials recoverable: fail without a network call.
		return "", errs.ErrAuthFailed
	}
	res, err := m.doLogin(ctx, apiURL, username, password)
	if err != nil {
		return "", err
	}
	return m.adoptAndNotify(res)
}

func (m *Manager) adoptAndNotify(res *models.LoginResponse) (string, error) {
	m.mu.Lock()
	err := m.adoptLocked(res)
	tok := m.accessToken
	m.mu.Unlock()
	if err != nil {
		return "", err
	}
	m.notify(StateAuthenticated)
	return tok, nil
}

// probe checks token liveness against the version endpoint. Only used
// when expiry metadata is absent.
func (m *Manager) probe(ctx context.Context, tok string) bool {
	m.mu.Lock()
	apiURL := m.apiURL
	m.mu.Unlock()

	req := m.http.R().SetContext(ctx)
	if tok != "" && tok != NoAuthToken {
		req.SetQueryParam("token", tok)
	}
	resp, err := req.Get(apiURL + "/host/getVersion.json")
	return err == nil && !resp.IsError()
}

// InvalidateAuth drops all token state, in memory and persisted.
// Credentials are kept so an explicit re-login still works.
func (m *Manager) InvalidateAuth() {
	m.clearAuth()
}

// clearAuth wipes token state after an exhausted refresh. Credentials
// are kept so an explicit re-login still works.
func (m *Manager) clearAuth() {
	m.mu.Lock()
	had := m.accessToken != "" || m.refreshToken != ""
	m.accessToken = ""
	m.refreshToken = ""
	m.accessExpiry = time.Time{}
	m.refreshExpiry = time.Time{}
	m.mu.Unlock()

	for _, k := range []string{keyAccessToken, keyAccessExpiry, keyRefreshToken, keyRefreshExpiry} {
		if err := m.st.Secure.Delete(k); err != nil {
			log.Printf("session: clearing %s: %v", k, err)
		}
	}
	if had {
		m.notify(StateUnauthenticated)
	}
}

// Logout clears the session locally and best-effort invalidates it on
// the server. Remote failure is logged, never propagated; storage
// failures are.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	if err := m.initLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	apiURL := m.apiURL
	tok := m.accessToken
	m.mu.Unlock()

	if tok != "" {
		req := m.http.R().SetContext(ctx)
		if tok != NoAuthToken {
			req.SetQueryParam("token", tok)
		}
		if resp, err := req.Get(apiURL + "/host/logout.json"); err != nil {
			log.Printf("session: remote logout failed: %v", err)
		} else if resp.IsError() {
			log.Printf("session: remote logout failed with status %d", resp.StatusCode())
		}
	}

	m.mu.Lock()
	m.accessToken = ""
	m.refreshToken = ""
	m.accessExpiry = time.Time{}
	m.refreshExpiry = time.Time{}
	m.username = ""
	m.password = ""
	m.rememberMe = false
	m.mu.Unlock()

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, k := range []string{keyAccessToken, keyAccessExpiry, keyRefreshToken, keyRefreshExpiry, keyPassword} {
		keep(m.st.Secure.Delete(k))
	}
	keep(m.st.Plain.Delete(keyUsername))

	m.notify(StateUnauthenticated)
	return firstErr
}

// SetBaseURL switches servers. Tokens never survive a base-URL change;
// the manager de-initializes so the next operation reloads against the
// new server.
func (m *Manager) SetBaseURL(raw string) error {
	m.mu.Lock()
	if err := m.initLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	clean := zmurl.Sanitize(raw, m.cfg.DefaultBaseURL)
	if clean == m.baseURL {
		m.mu.Unlock()
		return nil
	}

	m.accessToken = ""
	m.refreshToken = ""
	m.accessExpiry = time.Time{}
	m.refreshExpiry = time.Time{}
	m.baseURL = clean
	m.apiURL = zmurl.APIRoot(clean, m.cfg.DefaultBaseURL)

	if err := m.st.Plain.Write(keyBaseURL, clean); err != nil {
		m.mu.Unlock()
		return err
	}
	var firstErr error
	for _, k := range []string{keyAccessToken, keyAccessExpiry, keyRefreshToken, keyRefreshExpiry} {
		if err := m.st.Secure.Delete(k); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.initialized = false
	m.mu.Unlock()

	m.notify(StateUnauthenticated)
	return firstErr
}

// BaseURL returns the canonical server root, initializing on demand.
func (m *Manager) BaseURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.initLocked()
	return m.baseURL
}

// APIURL returns the derived API root.
func (m *Manager) APIURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.initLocked()
	return m.apiURL
}

func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accessToken != ""
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case !m.initialized:
		return StateUninitialized
	case m.accessToken != "":
		return StateAuthenticated
	default:
		return StateUnauthenticated
	}
}

// Subscribe registers a state-change callback and returns its cancel
// function. Callbacks run synchronously on the mutating goroutine and
// must not block.
func (m *Manager) Subscribe(fn func(State)) (cancel func()) {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subMu.Unlock()

	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

func (m *Manager) notify(s State) {
	m.subMu.Lock()
	fns := make([]func(State), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subMu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}
