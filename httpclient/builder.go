package httpclient

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/AmmannChristian/go-csrfx/csrfclient"
	"github.com/AmmannChristian/go-csrfx/internal/tlsconfig"
)

// Builder provides a fluent interface for constructing HTTP clients
// with optional CSRF protection and TLS/mTLS support.
type Builder struct {
	// CSRF configuration
	tokenManager *csrfclient.Manager
	csrfErr      error

	// TLS configuration
	tlsEnabled bool
	tls        tlsconfig.Files

	// HTTP client configuration
	timeout         time.Duration
	baseTransport   http.RoundTripper
	followRedirects bool
	jar             http.CookieJar
}

// NewBuilder creates a new HTTP client builder.
func NewBuilder() *Builder {
	return &Builder{
		timeout:         30 * time.Second, // Default 30s timeout
		followRedirects: true,
	}
}

// WithTokenManager sets the CSRF token manager for automatic token injection.
// Share one Manager across every client of the same application session.
func (b *Builder) WithTokenManager(tm *csrfclient.Manager) *Builder {
	b.tokenManager = tm
	return b
}

// WithCSRF enables CSRF protection by creating a new Manager.
// Configuration errors are reported by Build.
//
// Parameters:
//   - cfg: Manager settings, e.g. csrfclient.DefaultConfig("https://app.example.com")
//   - opts: Manager options (WithZapLogger, WithMetrics, ...)
func (b *Builder) WithCSRF(cfg csrfclient.Config, opts ...csrfclient.Option) *Builder {
	b.tokenManager, b.csrfErr = csrfclient.New(cfg, opts...)
	return b
}

// WithCookieJar sets the client's cookie jar.
// By default the client shares the token manager's jar so session cookies match the token.
func (b *Builder) WithCookieJar(jar http.CookieJar) *Builder {
	b.jar = jar
	return b
}

// WithTLS enables TLS for the connection.
//
// Parameters:
//   - caFile: Path to CA certificate for server verification (optional, uses system roots if empty)
//   - certFile: Path to client certificate for mTLS (optional, must be paired with keyFile)
//   - keyFile: Path to client private key for mTLS (optional, must be paired with certFile)
func (b *Builder) WithTLS(caFile, certFile, keyFile string) *Builder {
	b.tlsEnabled = true
	b.tls.CAFile = caFile
	b.tls.CertFile = certFile
	b.tls.KeyFile = keyFile
	return b
}

// WithInsecureSkipVerify disables TLS certificate verification (NOT RECOMMENDED for production).
// This should only be used for testing or development purposes.
func (b *Builder) WithInsecureSkipVerify() *Builder {
	b.tls.InsecureSkipVerify = true
	return b
}

// WithTimeout sets the request timeout for the HTTP client.
// Default is 30 seconds if not specified.
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.timeout = timeout
	return b
}

// WithBaseTransport sets a custom base transport.
// This is useful for adding custom middleware or using a custom connection pool.
func (b *Builder) WithBaseTransport(transport http.RoundTripper) *Builder {
	b.baseTransport = transport
	return b
}

// WithoutRedirects disables automatic redirect following.
// By default, the client follows up to 10 redirects.
func (b *Builder) WithoutRedirects() *Builder {
	b.followRedirects = false
	return b
}

// Build constructs the HTTP client with the configured options.
//
// Returns:
//   - *http.Client: Configured HTTP client
//   - error: Error if configuration is invalid
func (b *Builder) Build() (*http.Client, error) {
	if b.csrfErr != nil {
		return nil, fmt.Errorf("httpclient: CSRF config failed: %w", b.csrfErr)
	}

	transport := b.baseTransport
	if transport == nil {
		var err error
		if transport, err = b.defaultTransport(); err != nil {
			return nil, err
		}
	}

	jar := b.jar

	// Wrap with CSRF transport if token manager is set
	if b.tokenManager != nil {
		transport = NewTransport(b.tokenManager, transport)
		if jar == nil {
			jar = b.tokenManager.Jar()
		}
	}

	// Build HTTP client
	client := &http.Client{
		Transport: transport,
		Timeout:   b.timeout,
		Jar:       jar,
	}

	// Configure redirect policy
	if !b.followRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return client, nil
}

// defaultTransport clones http.DefaultTransport with the builder's TLS settings.
// A DefaultTransport that is not an *http.Transport (e.g. a test stub) is used as is.
func (b *Builder) defaultTransport() (http.RoundTripper, error) {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return http.DefaultTransport, nil
	}

	tlsConfig := tlsconfig.Default()
	if b.tlsEnabled || b.tls.InsecureSkipVerify {
		var err error
		if tlsConfig, err = b.buildTLSConfig(); err != nil {
			return nil, fmt.Errorf("httpclient: TLS config failed: %w", err)
		}
	}

	transport := base.Clone()
	transport.TLSClientConfig = tlsConfig
	return transport, nil
}

// buildTLSConfig constructs the TLS configuration for the HTTP client.
func (b *Builder) buildTLSConfig() (*tls.Config, error) {
	return tlsconfig.Client(b.tls)
}

// NewHTTPClient is a convenience function that creates a simple HTTP client with CSRF protection.
// For more configuration options, use Builder instead.
//
// Example:
//
//	tm, err := csrfclient.New(csrfclient.DefaultConfig("https://app.example.com"))
//	client := httpclient.NewHTTPClient(tm)
//	resp, err := client.Post("https://app.example.com/api/v1/jobs", "application/json", body)
func NewHTTPClient(tm *csrfclient.Manager) *http.Client {
	transport := NewTransport(tm, nil)
	return &http.Client{
		Transport: transport,
		Timeout:   30 * time.Second,
		Jar:       tm.Jar(),
	}
}
