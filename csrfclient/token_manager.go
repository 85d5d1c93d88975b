package csrfclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// maxTokenBody caps how much of the token endpoint response is read.
const maxTokenBody = 64 << 10

var errNoToken = errors.New("response carried no token")

// fetchCall is an in-flight token fetch shared by every caller that asks while it runs.
// token is written before done is closed. gen is the Manager generation it was started in.
type fetchCall struct {
	done  chan struct{}
	token string
	gen   uint64
}

// Manager owns the CSRF token of one application session.
// It caches the token, coordinates concurrent acquisition so that at most one fetch
// is in flight, injects the token into state-changing requests and drives the
// single retry on CSRF failures. It is safe for concurrent use.
type Manager struct {
	cfg      Config
	tokenURL string
	client   *http.Client
	logger   Logger
	metrics  Metrics

	mu         sync.Mutex
	token      string
	pending    *fetchCall
	retries    int
	generation uint64
}

// New creates a Manager for the given configuration.
//
// Parameters:
//   - cfg: Settings, usually DefaultConfig(origin) or config.Load()
//   - opts: Optional configuration options (WithHTTPClient, WithLogger, WithZapLogger, WithMetrics)
//
// Returns an error if cfg.Origin is not an absolute http(s) URL.
func New(cfg Config, opts ...Option) (*Manager, error) {
	cfg = cfg.withDefaults()

	tokenURL, err := buildTokenURL(cfg.Origin, cfg.TokenPath)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:      cfg,
		tokenURL: tokenURL,
		logger:   defaultLogger(),
		metrics:  nopMetrics{},
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.logger == nil {
		m.logger = defaultLogger()
	}
	if m.metrics == nil {
		m.metrics = nopMetrics{}
	}

	if m.client == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("csrfclient: create cookie jar: %w", err)
		}
		m.client = &http.Client{Timeout: defaultFetchTimeout, Jar: jar}
	}

	return m, nil
}

func buildTokenURL(origin, path string) (string, error) {
	if origin == "" {
		return "", errors.New("csrfclient: origin is required")
	}

	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("csrfclient: parse origin: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("csrfclient: origin must be an absolute http(s) URL, got %q", origin)
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimRight(origin, "/") + path, nil
}

// Acquire returns the current token, fetching one if necessary.
//
// Without forceRefresh a cached token is returned with no network call. If a fetch is
// already running the caller waits for its result instead of starting another one.
// Otherwise exactly one GET is issued to the token endpoint.
//
// The boolean is false when no token could be obtained; failures are logged, never returned.
// The fetch itself ignores ctx cancellation: a caller whose ctx is done stops waiting,
// but the shared fetch still completes and populates the cache.
func (m *Manager) Acquire(ctx context.Context, forceRefresh bool) (string, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		m.mu.Lock()
		if !forceRefresh && m.token != "" {
			token := m.token
			m.mu.Unlock()
			m.debugf("acquire: cache hit")
			return token, true
		}

		call := m.pending
		switch {
		case call == nil:
			call = &fetchCall{done: make(chan struct{}), gen: m.generation}
			m.pending = call
			m.mu.Unlock()

			m.debugf("acquire: fetching token from %s (force=%t)", m.tokenURL, forceRefresh)
			go m.fetch(context.WithoutCancel(ctx), call)
		case call.gen != m.generation:
			// Started before Invalidate: let it settle, then fetch for the new generation.
			m.mu.Unlock()
			m.debugf("acquire: waiting for fetch started before invalidation")
			select {
			case <-call.done:
				continue
			case <-ctx.Done():
				m.debugf("acquire: caller gave up waiting: %v", ctx.Err())
				return "", false
			}
		default:
			m.mu.Unlock()
			m.debugf("acquire: joining pending fetch")
		}

		select {
		case <-call.done:
			return call.token, call.token != ""
		case <-ctx.Done():
			m.debugf("acquire: caller gave up waiting: %v", ctx.Err())
			return "", false
		}
	}
}

// fetch performs the network call for call and settles the shared state.
// A result that lands after Invalidate (generation changed) is handed to waiters but not cached.
func (m *Manager) fetch(ctx context.Context, call *fetchCall) {
	start := time.Now()
	token, err := m.requestToken(ctx)
	m.metrics.RecordFetch(err == nil, time.Since(start))

	if err != nil {
		m.logger.Errorf("csrfclient: token fetch from %s failed: %v", m.tokenURL, err)
	} else {
		m.debugf("acquire: token fetched")
	}

	m.mu.Lock()
	defer func() {
		if m.pending == call {
			m.pending = nil
		}
		m.mu.Unlock()
		close(call.done)
	}()

	if m.generation != call.gen {
		call.token = token
		return
	}

	if err != nil {
		m.token = ""
		return
	}

	call.token = token
	m.token = token
	m.retries = 0
}

// tokenEnvelope covers {token}, {data: {token}} and {data: {csrfToken}}.
type tokenEnvelope struct {
	Token string          `json:"token"`
	Data  json.RawMessage `json:"data"`
}

type tokenData struct {
	Token     string `json:"token"`
	CSRFToken string `json:"csrfToken"`
}

func (m *Manager) requestToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.tokenURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxTokenBody))
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenBody))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	token := extractToken(body, resp.Header.Get(m.cfg.HeaderName))
	if token == "" {
		return "", errNoToken
	}
	return token, nil
}

// extractToken applies the priority order body token, data.token, data.csrfToken, header.
// Undecodable bodies fall through to the header.
func extractToken(body []byte, header string) string {
	var env tokenEnvelope
	if err := json.Unmarshal(body, &env); err == nil {
		if t := strings.TrimSpace(env.Token); t != "" {
			return t
		}
		var data tokenData
		if len(env.Data) > 0 && json.Unmarshal(env.Data, &data) == nil {
			if t := strings.TrimSpace(data.Token); t != "" {
				return t
			}
			if t := strings.TrimSpace(data.CSRFToken); t != "" {
				return t
			}
		}
	}
	return strings.TrimSpace(header)
}

// Invalidate drops the cached token and retry counters, typically on logout.
// It is idempotent; afterwards the Manager behaves as if freshly constructed.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.token = ""
	m.retries = 0
	m.generation++
	m.mu.Unlock()

	m.debugf("invalidate: token cleared")
}

// Token returns the cached token without any network call, or "" if none is cached.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Fetching reports whether a token fetch is in flight.
func (m *Manager) Fetching() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending != nil
}

// Jar returns the cookie jar used for token fetches, or nil if the client has none.
// Business requests should share it so the session cookie matches the token.
func (m *Manager) Jar() http.CookieJar {
	return m.client.Jar
}

// HeaderName returns the header carrying the token.
func (m *Manager) HeaderName() string {
	return m.cfg.HeaderName
}

// TokenURL returns the token endpoint.
func (m *Manager) TokenURL() string {
	return m.tokenURL
}

// Logger returns the logger the Manager writes to, for adapters that report on its behalf.
func (m *Manager) Logger() Logger {
	return m.logger
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

func (m *Manager) debugf(format string, args ...any) {
	if m.cfg.Debug {
		m.logger.Debugf("csrfclient: "+format, args...)
	}
}
