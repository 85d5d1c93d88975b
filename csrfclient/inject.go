package csrfclient

import (
	"context"
	"net/http"
	"strings"
)

// IsStateChanging reports whether verb mutates server state (POST, PUT, PATCH, DELETE).
func IsStateChanging(verb string) bool {
	switch strings.ToUpper(verb) {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// Inject sets the token header on req if its method is state-changing.
// The request is modified in place and returned; clone it first if you do not own it.
// Safe verbs pass through without touching the token state.
//
// If no token can be obtained the request is still returned, without the header,
// and the condition is logged at error level. The server is then expected to reject it.
func (m *Manager) Inject(req *http.Request) *http.Request {
	m.Attach(req.Context(), req.Method, req.Header.Set)
	return req
}

// Attach is the transport-neutral form of Inject: for a state-changing verb it acquires
// a token and passes HeaderName and the token to set. It reports whether a token was set.
func (m *Manager) Attach(ctx context.Context, verb string, set func(name, value string)) bool {
	if !IsStateChanging(verb) {
		return false
	}

	token, ok := m.Acquire(ctx, false)
	if !ok {
		m.metrics.RecordMissingToken()
		m.logger.Errorf("csrfclient: no token available, sending %s request without %s", strings.ToUpper(verb), m.cfg.HeaderName)
		return false
	}

	set(m.cfg.HeaderName, token)
	return true
}

// Observe picks up a rotated token from resp. Every response may carry a fresh token for
// the next request, whether or not the response itself succeeded.
func (m *Manager) Observe(resp *http.Response) {
	if resp == nil {
		return
	}
	m.ObserveToken(resp.Header.Get(m.cfg.HeaderName))
}

// ObserveToken replaces the cached token with value if it is non-empty and different.
// Later calls win over earlier ones.
func (m *Manager) ObserveToken(value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}

	m.mu.Lock()
	if m.token == value {
		m.mu.Unlock()
		return
	}
	m.token = value
	m.mu.Unlock()

	m.metrics.RecordRotation()
	m.debugf("observe: token rotated by server")
}
