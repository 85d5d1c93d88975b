package csrfclient

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AmmannChristian/go-csrfx/internal/testutil"
)

type stubLogger struct {
	mu     sync.Mutex
	debugs []string
	errors []string
}

func (l *stubLogger) Debugf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debugs = append(l.debugs, fmt.Sprintf(format, args...))
}

func (l *stubLogger) Errorf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprintf(format, args...))
}

func (l *stubLogger) debugCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.debugs)
}

func (l *stubLogger) hasDebug(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.debugs {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func (l *stubLogger) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

type stubMetrics struct {
	mu        sync.Mutex
	fetchOK   int
	fetchFail int
	rotations int
	missing   int
	retries   map[string]int
}

func (s *stubMetrics) RecordFetch(ok bool, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok {
		s.fetchOK++
	} else {
		s.fetchFail++
	}
}

func (s *stubMetrics) RecordRotation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotations++
}

func (s *stubMetrics) RecordRetry(outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retries == nil {
		s.retries = make(map[string]int)
	}
	s.retries[outcome]++
}

func (s *stubMetrics) RecordMissingToken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missing++
}

// newTestManager wires a Manager to the mock server with a quiet logger.
func newTestManager(tb testing.TB, server *testutil.MockCSRFServer, cfg *Config, opts ...Option) (*Manager, *stubLogger) {
	tb.Helper()

	c := DefaultConfig(server.URL)
	if cfg != nil {
		c = *cfg
		c.Origin = server.URL
	}

	logger := &stubLogger{}
	allOpts := append([]Option{WithHTTPClient(server.Client()), WithLogger(logger)}, opts...)

	tm, err := New(c, allOpts...)
	if err != nil {
		tb.Fatalf("New failed: %v", err)
	}
	return tm, logger
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(tb testing.TB, cond func() bool) {
	tb.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			tb.Fatal("timeout waiting for condition")
		}
		time.Sleep(time.Millisecond)
	}
}
