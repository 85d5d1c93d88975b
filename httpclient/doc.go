// Package httpclient offers net/http adapters for csrfclient.Manager.
//
// Three integration styles are provided, all backed by the same Manager so
// that token state is shared across every client of an application session:
//
//   - Transport: an http.RoundTripper that injects, observes and retries
//   - Fetcher: a wrapped-fetch style helper around an *http.Client
//   - Hook: a UI-style handle exposing Token, Loading, Refresh and Clear
//
// A fluent Builder creates an *http.Client with the Transport attached,
// TLS 1.2+ by default, custom CA/mTLS, timeouts, base transports, redirect
// handling and a cookie jar shared with the token fetch.
//
// # Quick Start
//
//	client, err := httpclient.NewBuilder().
//	    WithCSRF(csrfclient.DefaultConfig("https://app.example.com")).
//	    WithTLS("/path/to/ca.crt", "", "").
//	    WithTimeout(60 * time.Second).
//	    Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	resp, err := client.Post("https://app.example.com/api/v1/jobs", "application/json", body)
//
// # Manual Transport Wrapping
//
//	transport := httpclient.NewTransport(tm, nil)
//	client := &http.Client{Transport: transport, Jar: tm.Jar()}
//
// All components are safe for concurrent use.
package httpclient
