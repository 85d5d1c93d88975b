package httpclient

import (
	"errors"
	"net/http"

	"github.com/AmmannChristian/go-csrfx/csrfclient"
)

// Transport is an http.RoundTripper that attaches the CSRF token to outgoing
// state-changing requests and retries once on a CSRF failure.
//
// It wraps an existing transport (typically http.DefaultTransport) and delegates the
// protocol to the TokenManager, so every client sharing one Manager sees the same token.
type Transport struct {
	// Base is the underlying HTTP transport. If nil, http.DefaultTransport is used.
	Base http.RoundTripper

	// TokenManager provides and refreshes the CSRF token.
	TokenManager *csrfclient.Manager
}

// RoundTrip implements http.RoundTripper interface.
// It clones the request, injects the token for POST, PUT, PATCH and DELETE, observes
// rotated tokens on the response and resubmits once with a fresh token if the server
// answers with a CSRF failure.
//
// When the Manager has a cookie jar, every attempt carries the jar's cookies as they
// stand after the token fetch, and Set-Cookie headers on each response are stored back.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.TokenManager == nil {
		return nil, errors.New("httpclient: TokenManager is nil")
	}

	// Clone the request to avoid modifying the original
	reqClone := req.Clone(req.Context())

	// Use base transport or default
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	return t.TokenManager.Do(reqClone, withJar(t.TokenManager.Jar(), base))
}

// withJar wraps base so each attempt rebuilds its Cookie header from jar.
// http.Client reads its jar before RoundTrip, which is too early: the token fetch that
// sets the session cookie runs inside Do. Cookies the caller set by hand are kept
// unless the jar holds one with the same name.
func withJar(jar http.CookieJar, base http.RoundTripper) csrfclient.SendFunc {
	if jar == nil {
		return base.RoundTrip
	}

	return func(req *http.Request) (*http.Response, error) {
		if fromJar := jar.Cookies(req.URL); len(fromJar) > 0 {
			names := make(map[string]struct{}, len(fromJar))
			for _, c := range fromJar {
				names[c.Name] = struct{}{}
			}
			existing := req.Cookies()

			req.Header.Del("Cookie")
			for _, c := range fromJar {
				req.AddCookie(c)
			}
			for _, c := range existing {
				if _, ok := names[c.Name]; !ok {
					req.AddCookie(c)
				}
			}
		}

		resp, err := base.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if cookies := resp.Cookies(); len(cookies) > 0 {
			jar.SetCookies(req.URL, cookies)
		}
		return resp, nil
	}
}

// NewTransport creates a new Transport with the given token manager.
// The base transport defaults to http.DefaultTransport if not specified.
func NewTransport(tm *csrfclient.Manager, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}

	return &Transport{
		Base:         base,
		TokenManager: tm,
	}
}
