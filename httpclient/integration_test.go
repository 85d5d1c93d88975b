package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/AmmannChristian/go-csrfx/csrfclient"
	"github.com/AmmannChristian/go-csrfx/internal/testutil"
)

// TestBuilder_Integration_SessionCookie runs the whole flow against a real listener: the
// token is bound to a session cookie, so the API call only passes if the client shares the
// Manager's cookie jar.
func TestBuilder_Integration_SessionCookie(t *testing.T) {
	var issued atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc(testutil.DefaultTokenPath, func(w http.ResponseWriter, r *http.Request) {
		n := issued.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "s1", Path: "/"})
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]string{"csrfToken": fmt.Sprintf("tok-%d", n)},
		})
	})
	mux.HandleFunc("/api/v1/jobs", func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("session")
		if err != nil || cookie.Value != "s1" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `{"error":{"code":"CSRF_TOKEN_MISMATCH"}}`)
			return
		}
		if r.Header.Get(csrfclient.DefaultHeaderName) != "tok-2" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `{"code":"CSRF_TOKEN_EXPIRED"}`)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	server := testutil.NewLocalHTTPServer(t, mux)
	defer server.Close()

	client, err := NewBuilder().
		WithCSRF(csrfclient.DefaultConfig(server.URL), csrfclient.WithPrintfLogger(log.New(io.Discard, "", 0))).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	resp, err := client.Post(server.URL+"/api/v1/jobs", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status 201, got %d: %s", resp.StatusCode, body)
	}
	if got := issued.Load(); got != 2 {
		t.Errorf("expected the expired token to be refreshed once, got %d fetches", got)
	}
}
