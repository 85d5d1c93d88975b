// Package testutil provides test helpers for go-csrfx packages.
//
// It includes an in-memory CSRF token endpoint that counts fetches without opening sockets,
// inline RoundTripper implementations, canned JSON responses, and self-signed certificates for TLS/mTLS tests.
//
// # Utilities
//
//   - MockCSRFServer: stub token endpoint plus business routes, with request recording
//   - RoundTripFunc: inline http.RoundTripper implementations
//   - JSONResponse / CSRFFailure: canned responses for tests
//   - NewLocalHTTPServer: start httptest server bound to 127.0.0.1
//   - WriteTestCACert / WriteTestCertAndKey: generate temporary CA and leaf certificates for tests
//
// These helpers are designed for tests only.
package testutil
