// Package tlsconfig builds the client TLS configurations shared by the HTTP and gRPC builders.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// Files names the PEM files and verification settings of a client TLS setup.
// Empty fields are left at their crypto/tls defaults.
type Files struct {
	CAFile     string
	CertFile   string
	KeyFile    string
	ServerName string

	InsecureSkipVerify bool
}

// Default returns the configuration used when TLS is not configured explicitly.
func Default() *tls.Config {
	return &tls.Config{MinVersion: tls.VersionTLS12}
}

// Client loads f into a TLS 1.2+ client configuration.
// CertFile and KeyFile enable mTLS and must be given together.
func Client(f Files) (*tls.Config, error) {
	cfg := Default()
	cfg.InsecureSkipVerify = f.InsecureSkipVerify // #nosec G402
	cfg.ServerName = f.ServerName

	if f.CAFile != "" {
		pem, err := os.ReadFile(f.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("failed to parse CA certificate")
		}
		cfg.RootCAs = pool
	}

	switch {
	case f.CertFile != "" && f.KeyFile != "":
		cert, err := tls.LoadX509KeyPair(f.CertFile, f.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	case f.CertFile != "" || f.KeyFile != "":
		return nil, errors.New("both TLS cert and key files must be provided for mTLS")
	}

	return cfg, nil
}
