package csrfclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AmmannChristian/go-csrfx/internal/testutil"
)

func TestIsStateChanging(t *testing.T) {
	tests := []struct {
		verb string
		want bool
	}{
		{http.MethodPost, true},
		{http.MethodPut, true},
		{http.MethodPatch, true},
		{http.MethodDelete, true},
		{"post", true},
		{http.MethodGet, false},
		{http.MethodHead, false},
		{http.MethodOptions, false},
		{http.MethodTrace, false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.verb, func(t *testing.T) {
			if got := IsStateChanging(tt.verb); got != tt.want {
				t.Errorf("IsStateChanging(%q) = %v, want %v", tt.verb, got, tt.want)
			}
		})
	}
}

func TestManager_Inject_SafeVerbsPassThrough(t *testing.T) {
	server := testutil.NewMockCSRFServer(t, nil, nil)
	tm, _ := newTestManager(t, server, nil)

	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		t.Run(method, func(t *testing.T) {
			req := httptest.NewRequest(method, "https://mock-api.example.com/jobs", nil)

			out := tm.Inject(req)

			if out != req {
				t.Error("Inject should return the same request")
			}
			if out.Header.Get(DefaultHeaderName) != "" {
				t.Error("token header must not be attached to safe verbs")
			}
		})
	}

	if server.TokenFetches() != 0 {
		t.Errorf("safe verbs must not acquire a token, got %d fetches", server.TokenFetches())
	}
}

func TestManager_Inject_StateChangingVerbs(t *testing.T) {
	server := testutil.NewMockCSRFServer(t, nil, nil)
	tm, _ := newTestManager(t, server, nil)

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			req := httptest.NewRequest(method, "https://mock-api.example.com/jobs", nil)

			out := tm.Inject(req)

			if got := out.Header.Get(DefaultHeaderName); got != "abc123" {
				t.Errorf("expected token header 'abc123', got %q", got)
			}
		})
	}

	if server.TokenFetches() != 1 {
		t.Errorf("expected one token fetch shared across requests, got %d", server.TokenFetches())
	}
}

func TestManager_Inject_NoTokenProceeds(t *testing.T) {
	server := testutil.NewMockCSRFServer(t, func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("token endpoint down")
	}, nil)
	metrics := &stubMetrics{}
	tm, logger := newTestManager(t, server, nil, WithMetrics(metrics))

	req := httptest.NewRequest(http.MethodPost, "https://mock-api.example.com/jobs", nil)
	out := tm.Inject(req)

	if out == nil {
		t.Fatal("request should still be forwarded")
	}
	if out.Header.Get(DefaultHeaderName) != "" {
		t.Error("header should be absent when no token is available")
	}
	// fetch failure plus the missing-token line
	if logger.errorCount() < 2 {
		t.Errorf("expected missing token to be logged, got %d error lines", logger.errorCount())
	}
	if metrics.missing != 1 {
		t.Errorf("expected one missing token recorded, got %d", metrics.missing)
	}
}

func TestManager_Attach_CustomHeader(t *testing.T) {
	server := testutil.NewMockCSRFServer(t, nil, nil)
	cfg := DefaultConfig("")
	cfg.HeaderName = "X-XSRF-Token"
	tm, _ := newTestManager(t, server, &cfg)

	var name, value string
	ok := tm.Attach(context.Background(), http.MethodPost, func(n, v string) {
		name, value = n, v
	})

	if !ok {
		t.Fatal("Attach should report success")
	}
	if name != "X-XSRF-Token" || value != "abc123" {
		t.Errorf("unexpected header %s=%s", name, value)
	}
}

func TestManager_Observe_Rotation(t *testing.T) {
	server := testutil.NewMockCSRFServer(t, nil, nil)
	metrics := &stubMetrics{}
	tm, _ := newTestManager(t, server, nil, WithMetrics(metrics))

	if _, ok := tm.Acquire(context.Background(), false); !ok {
		t.Fatal("Acquire failed")
	}

	// A successful response carrying a new token
	resp := &http.Response{StatusCode: http.StatusOK, Header: make(http.Header)}
	resp.Header.Set(DefaultHeaderName, "rotated")
	tm.Observe(resp)

	if tm.Token() != "rotated" {
		t.Fatalf("expected rotated token, got %q", tm.Token())
	}

	req := tm.Inject(httptest.NewRequest(http.MethodPost, "https://mock-api.example.com/jobs", nil))
	if got := req.Header.Get(DefaultHeaderName); got != "rotated" {
		t.Errorf("next request should carry the rotated token, got %q", got)
	}
	if server.TokenFetches() != 1 {
		t.Errorf("rotation must not trigger a fetch, got %d fetches", server.TokenFetches())
	}
	if metrics.rotations != 1 {
		t.Errorf("expected one rotation recorded, got %d", metrics.rotations)
	}
}

func TestManager_Observe_Ignored(t *testing.T) {
	server := testutil.NewMockCSRFServer(t, nil, nil)
	metrics := &stubMetrics{}
	tm, _ := newTestManager(t, server, nil, WithMetrics(metrics))
	tm.Acquire(context.Background(), false)

	tests := []struct {
		name string
		resp *http.Response
	}{
		{name: "nil response", resp: nil},
		{name: "no header", resp: &http.Response{Header: make(http.Header)}},
		{name: "same token", resp: responseWithToken("abc123")},
		{name: "blank header", resp: responseWithToken("  ")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tm.Observe(tt.resp)
			if tm.Token() != "abc123" {
				t.Errorf("token should be unchanged, got %q", tm.Token())
			}
		})
	}

	if metrics.rotations != 0 {
		t.Errorf("expected no rotations, got %d", metrics.rotations)
	}
}

func TestManager_ObserveToken_LastWriteWins(t *testing.T) {
	server := testutil.NewMockCSRFServer(t, nil, nil)
	tm, _ := newTestManager(t, server, nil)

	tm.ObserveToken("one")
	tm.ObserveToken("two")

	if tm.Token() != "two" {
		t.Errorf("expected later token to win, got %q", tm.Token())
	}
}

func responseWithToken(token string) *http.Response {
	resp := &http.Response{StatusCode: http.StatusOK, Header: make(http.Header)}
	resp.Header.Set(DefaultHeaderName, token)
	return resp
}
