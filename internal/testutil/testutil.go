package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

// DefaultTokenPath mirrors the token endpoint path used by csrfclient.DefaultConfig.
const DefaultTokenPath = "/api/v1/auth/csrf-token"

// NewLocalHTTPServer starts an HTTP server bound to IPv4 loopback only.
// The sandbox blocks IPv6 listeners, so force tcp4 to keep tests runnable.
func NewLocalHTTPServer(tb testing.TB, handler http.Handler) *httptest.Server {
	tb.Helper()

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("failed to create IPv4 listener: %v", err)
	}

	server := httptest.NewUnstartedServer(handler)
	server.Listener = listener
	server.Start()

	return server
}

// RoundTripFunc allows inlining http.RoundTripper implementations.
type RoundTripFunc func(*http.Request) (*http.Response, error)

// RoundTrip calls the underlying function.
func (f RoundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// MockCSRFServer simulates a CSRF token endpoint and the API behind it without real sockets.
// Requests to TokenPath go to the token handler, everything else to the API handler.
// It is safe for concurrent use.
type MockCSRFServer struct {
	URL       string
	TokenPath string

	tokenHandler RoundTripFunc
	apiHandler   RoundTripFunc

	mu          sync.Mutex
	requests    []*http.Request
	apiRequests []*http.Request
	fetches     int
}

// NewMockCSRFServer builds a mock CSRF endpoint backed by an in-memory RoundTripper.
// A nil tokenHandler always issues "abc123"; a nil apiHandler answers 200 "ok".
func NewMockCSRFServer(tb testing.TB, tokenHandler, apiHandler RoundTripFunc) *MockCSRFServer {
	tb.Helper()

	if tokenHandler == nil {
		tokenHandler = TokenSequence("abc123")
	}
	if apiHandler == nil {
		apiHandler = TextResponse(http.StatusOK, "ok")
	}

	return &MockCSRFServer{
		URL:          "https://mock-api.example.com",
		TokenPath:    DefaultTokenPath,
		tokenHandler: tokenHandler,
		apiHandler:   apiHandler,
	}
}

// RoundTrip dispatches the request to the token or API handler and records it.
func (m *MockCSRFServer) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	isToken := req.URL.Path == m.TokenPath
	if isToken {
		m.fetches++
	} else {
		m.apiRequests = append(m.apiRequests, req)
	}
	m.mu.Unlock()

	if isToken {
		return m.tokenHandler(req)
	}
	return m.apiHandler(req)
}

// Client returns an http.Client whose transport is the mock server.
func (m *MockCSRFServer) Client() *http.Client {
	return &http.Client{Transport: m}
}

// TokenFetches reports how many requests hit the token endpoint.
func (m *MockCSRFServer) TokenFetches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches
}

// Requests returns a copy of every recorded request.
func (m *MockCSRFServer) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*http.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// APIRequests returns a copy of the recorded non-token requests.
func (m *MockCSRFServer) APIRequests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*http.Request, len(m.apiRequests))
	copy(out, m.apiRequests)
	return out
}

// Close is a no-op to mirror httptest.Server usage in tests.
func (m *MockCSRFServer) Close() {}

// TokenSequence issues the given tokens as {"token": ...} bodies in order.
// The last token repeats once the sequence is exhausted.
func TokenSequence(tokens ...string) RoundTripFunc {
	var (
		mu sync.Mutex
		i  int
	)
	return func(req *http.Request) (*http.Response, error) {
		mu.Lock()
		token := tokens[len(tokens)-1]
		if i < len(tokens) {
			token = tokens[i]
		}
		i++
		mu.Unlock()
		return JSONResponse(http.StatusOK, fmt.Sprintf(`{"token": %q}`, token))(req)
	}
}

// JSONResponse returns a RoundTripper that always responds with the provided status and JSON body.
func JSONResponse(status int, body string) RoundTripFunc {
	return func(req *http.Request) (*http.Response, error) {
		header := make(http.Header)
		header.Set("Content-Type", "application/json")
		return &http.Response{
			StatusCode: status,
			Header:     header,
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    req,
		}, nil
	}
}

// TextResponse returns a RoundTripper that always responds with the provided status and plain body.
func TextResponse(status int, body string) RoundTripFunc {
	return func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: status,
			Header:     make(http.Header),
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    req,
		}, nil
	}
}

// CSRFFailure builds a 403 response carrying the given error code.
func CSRFFailure(req *http.Request, code string) *http.Response {
	resp, _ := JSONResponse(http.StatusForbidden, fmt.Sprintf(`{"code": %q, "message": "forbidden"}`, code))(req)
	return resp
}

// WriteTestCACert writes a self-signed CA certificate to the provided path for TLS tests.
func WriteTestCACert(tb testing.TB, path string) {
	tb.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		tb.Fatalf("failed to generate CA key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		Subject:               pkix.Name{CommonName: "test-ca"},
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &privateKey.PublicKey, privateKey)
	if err != nil {
		tb.Fatalf("failed to create CA certificate: %v", err)
	}

	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
		tb.Fatalf("failed to write CA certificate: %v", err)
	}
}

// WriteTestCertAndKey writes a self-signed certificate and key to the provided paths.
func WriteTestCertAndKey(tb testing.TB, certPath, keyPath string) {
	tb.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		tb.Fatalf("failed to generate key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		Subject:      pkix.Name{CommonName: "test-cert"},
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &privateKey.PublicKey, privateKey)
	if err != nil {
		tb.Fatalf("failed to create certificate: %v", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
		tb.Fatalf("failed to write certificate: %v", err)
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)})
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		tb.Fatalf("failed to write key: %v", err)
	}
}
