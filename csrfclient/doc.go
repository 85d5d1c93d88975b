// Package csrfclient provides a client-side CSRF token manager for HTTP and gRPC clients.
//
// A Manager fetches the anti-forgery token from the server's token endpoint, caches it for the
// application session, attaches it to state-changing requests (POST, PUT, PATCH, DELETE), picks up
// tokens rotated by the server on any response, and retries a request once with a freshly fetched
// token when the server rejects it with a CSRF error code. Concurrent callers share a single
// in-flight fetch.
//
// # Features
//
//   - At most one token fetch in flight; concurrent callers join it
//   - Token extraction from {token}, {data: {token}}, {data: {csrfToken}} or the token header
//   - Server-driven rotation through the token response header
//   - Single retry with forced refresh on 403 CSRF_TOKEN_* / CSRF_ORIGIN_INVALID
//   - Optional logging (WithLogger, WithPrintfLogger, WithZapLogger) and metrics (WithMetrics)
//
// # Quick Start
//
//	tm, err := csrfclient.New(csrfclient.DefaultConfig("https://app.example.com"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client := &http.Client{
//	    Transport: httpclient.NewTransport(tm, nil),
//	    Jar:       tm.Jar(),
//	}
//
//	// On logout
//	tm.Invalidate()
//
// # Notes
//
//   - A missing token never fails a request locally: it is logged and the request is sent without it.
//   - Each logical request is retried at most once; the final CSRF failure is returned verbatim.
//   - Manager is safe for concurrent use. Create one per application session and pass it to adapters.
package csrfclient
