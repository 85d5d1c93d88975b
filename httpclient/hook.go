package httpclient

import (
	"context"
	"errors"
	"net/http"

	"github.com/AmmannChristian/go-csrfx/csrfclient"
)

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Hook gives code that manages its own request flow direct access to the token state:
// the current token, whether a fetch is running, an explicit refresh and a protected Do.
type Hook struct {
	tm   *csrfclient.Manager
	doer Doer
}

// NewHook binds tm to doer. A nil doer gets a plain client sharing the Manager's cookie jar.
func NewHook(tm *csrfclient.Manager, doer Doer) *Hook {
	if doer == nil {
		client := &http.Client{}
		if tm != nil {
			client.Jar = tm.Jar()
		}
		doer = client
	}
	return &Hook{tm: tm, doer: doer}
}

// Token returns the cached token without fetching, or "" if none is cached.
func (h *Hook) Token() string {
	return h.tm.Token()
}

// Loading reports whether a token fetch is in flight.
func (h *Hook) Loading() bool {
	return h.tm.Fetching()
}

// Refresh forces a new token fetch.
func (h *Hook) Refresh(ctx context.Context) (string, bool) {
	return h.tm.Acquire(ctx, true)
}

// Clear drops the token, e.g. on logout.
func (h *Hook) Clear() {
	h.tm.Invalidate()
}

// Do sends req through the CSRF protocol. req is modified in place.
func (h *Hook) Do(req *http.Request) (*http.Response, error) {
	if h.tm == nil {
		return nil, errors.New("httpclient: TokenManager is nil")
	}
	return h.tm.Do(req, h.doer.Do)
}
