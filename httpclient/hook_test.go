package httpclient

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/AmmannChristian/go-csrfx/csrfclient"
	"github.com/AmmannChristian/go-csrfx/internal/testutil"
)

func TestHook_Lifecycle(t *testing.T) {
	server := testutil.NewMockCSRFServer(t, testutil.TokenSequence("first", "second"), nil)
	tm := newTestManager(t, server)
	hook := NewHook(tm, server.Client())

	if hook.Token() != "" {
		t.Fatal("token should be empty before any fetch")
	}
	if hook.Loading() {
		t.Fatal("no fetch should be in flight")
	}

	token, ok := hook.Refresh(context.Background())
	if !ok || token != "first" {
		t.Fatalf("expected first token, got %q (ok=%v)", token, ok)
	}
	if hook.Token() != "first" {
		t.Errorf("expected cached token first, got %q", hook.Token())
	}

	token, ok = hook.Refresh(context.Background())
	if !ok || token != "second" {
		t.Fatalf("Refresh should force a new fetch, got %q (ok=%v)", token, ok)
	}

	hook.Clear()
	if hook.Token() != "" {
		t.Error("Clear should drop the token")
	}
}

func TestHook_Do(t *testing.T) {
	server := testutil.NewMockCSRFServer(t, nil, nil)
	tm := newTestManager(t, server)
	hook := NewHook(tm, server.Client())

	req, err := http.NewRequest(http.MethodPatch, server.URL+"/api/v1/settings", strings.NewReader(`{"theme":"dark"}`))
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	resp, err := hook.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	resp.Body.Close()

	api := server.APIRequests()
	if len(api) != 1 || api[0].Header.Get(csrfclient.DefaultHeaderName) != "abc123" {
		t.Errorf("expected a single protected request, got %d", len(api))
	}
}

func TestHook_Do_NilTokenManager(t *testing.T) {
	hook := NewHook(nil, nil)

	req, err := http.NewRequest(http.MethodPost, "https://app.example.com/api", nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	if _, err := hook.Do(req); err == nil {
		t.Fatal("expected error for nil TokenManager")
	}
}
