package grpcclient

import (
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/AmmannChristian/go-csrfx/csrfclient"
	"github.com/AmmannChristian/go-csrfx/internal/tlsconfig"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// Builder provides a fluent interface for constructing gRPC client connections
// with optional CSRF token injection and TLS/mTLS support.
type Builder struct {
	address string

	// CSRF configuration
	tokenManager *csrfclient.Manager
	csrfErr      error
	safeMethods  []string

	// TLS configuration
	tlsEnabled bool
	tls        tlsconfig.Files

	// Additional dial options
	dialOpts []grpc.DialOption
}

// NewBuilder creates a new gRPC client builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithAddress sets the server address (e.g., "server.example.com:9090").
func (b *Builder) WithAddress(address string) *Builder {
	b.address = address
	return b
}

// WithTokenManager attaches the interceptors of an existing Manager.
// Share one Manager between the HTTP and gRPC clients of the same session.
func (b *Builder) WithTokenManager(tm *csrfclient.Manager) *Builder {
	b.tokenManager = tm
	return b
}

// WithCSRF creates a new Manager from cfg and attaches its interceptors.
// Configuration errors are reported by Build.
func (b *Builder) WithCSRF(cfg csrfclient.Config, opts ...csrfclient.Option) *Builder {
	b.tokenManager, b.csrfErr = csrfclient.New(cfg, opts...)
	return b
}

// WithSafeMethods lists full method names that are sent without a token.
func (b *Builder) WithSafeMethods(methods ...string) *Builder {
	b.safeMethods = append(b.safeMethods, methods...)
	return b
}

// WithTLS enables TLS for the connection.
//
// Parameters:
//   - caFile: Path to CA certificate for server verification (required)
//   - certFile: Path to client certificate for mTLS (optional, must be paired with keyFile)
//   - keyFile: Path to client private key for mTLS (optional, must be paired with certFile)
//   - serverName: Expected server name for TLS verification (optional, overrides SNI)
func (b *Builder) WithTLS(caFile, certFile, keyFile, serverName string) *Builder {
	b.tlsEnabled = true
	b.tls = tlsconfig.Files{CAFile: caFile, CertFile: certFile, KeyFile: keyFile, ServerName: serverName}
	return b
}

// WithDialOptions adds custom gRPC dial options.
// These options are applied after the CSRF and TLS options.
func (b *Builder) WithDialOptions(opts ...grpc.DialOption) *Builder {
	b.dialOpts = append(b.dialOpts, opts...)
	return b
}

// Build constructs the gRPC client connection with the configured options.
//
// Returns:
//   - *grpc.ClientConn: Established gRPC connection
//   - error: Error if connection fails
func (b *Builder) Build() (*grpc.ClientConn, error) {
	if b.address == "" {
		return nil, errors.New("grpcclient: server address is required")
	}
	if b.csrfErr != nil {
		return nil, fmt.Errorf("grpcclient: CSRF config failed: %w", b.csrfErr)
	}

	var opts []grpc.DialOption

	// Add CSRF interceptors if a token manager is set
	if b.tokenManager != nil {
		interceptor := NewInterceptor(b.tokenManager, WithSafeMethods(b.safeMethods...))
		opts = append(opts,
			grpc.WithUnaryInterceptor(interceptor.Unary()),
			grpc.WithStreamInterceptor(interceptor.Stream()),
		)
	}

	// TLS with system roots unless configured; plaintext needs an explicit dial option.
	tlsConfig := tlsconfig.Default()
	if b.tlsEnabled {
		var err error
		if tlsConfig, err = b.buildTLSConfig(); err != nil {
			return nil, fmt.Errorf("grpcclient: TLS config failed: %w", err)
		}
	}
	opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))

	// Add custom dial options
	opts = append(opts, b.dialOpts...)

	// Create connection
	conn, err := grpc.NewClient(b.address, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpcclient: dial failed: %w", err)
	}

	return conn, nil
}

// buildTLSConfig constructs the TLS configuration for the gRPC connection.
func (b *Builder) buildTLSConfig() (*tls.Config, error) {
	return tlsconfig.Client(b.tls)
}
