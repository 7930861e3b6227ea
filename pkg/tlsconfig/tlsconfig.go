// Package tlsconfig builds HTTP clients for fetching remote form data.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"
)

// DefaultTimeout is the default timeout for HTTP clients.
const DefaultTimeout = 30 * time.Second

// Config holds TLS options for outbound requests.
type Config struct {
	// Insecure disables certificate verification and permits http:// URLs.
	// NOT RECOMMENDED FOR PRODUCTION USE.
	Insecure bool

	// CACertFile is a PEM file of extra trusted CA certificates. They are
	// added to the system pool.
	CACertFile string
}

// TLS returns the *tls.Config described by c.
func (c Config) TLS() (*tls.Config, error) {
	tlsCfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.Insecure,
	}

	if c.CACertFile == "" {
		return tlsCfg, nil
	}

	pem, err := os.ReadFile(c.CACertFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate file %q: %w", c.CACertFile, err)
	}

	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("failed to parse CA certificate file %q: no valid certificates found", c.CACertFile)
	}
	tlsCfg.RootCAs = pool

	return tlsCfg, nil
}

// NewHTTPClient creates an http.Client using cfg and DefaultTimeout.
func NewHTTPClient(cfg Config) (*http.Client, error) {
	return NewHTTPClientWithTimeout(cfg, DefaultTimeout)
}

// NewHTTPClientWithTimeout creates an http.Client using cfg and timeout.
func NewHTTPClientWithTimeout(cfg Config, timeout time.Duration) (*http.Client, error) {
	tlsCfg, err := cfg.TLS()
	if err != nil {
		return nil, err
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: tlsCfg,
		},
	}, nil
}

// ValidateURL rejects URLs that are not http(s), and http:// URLs unless
// Insecure is set.
func (c Config) ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}

	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if c.Insecure {
			return nil
		}
		return fmt.Errorf("URL %q uses insecure http:// protocol; use https:// or pass --insecure flag to allow insecure connections", rawURL)
	default:
		return fmt.Errorf("URL %q must use https://", rawURL)
	}
}
