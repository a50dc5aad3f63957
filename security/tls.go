package security

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSConfig holds TLS file paths and options.
type TLSConfig struct {
	// SkipVerify disables peer certificate verification on the client side.
	SkipVerify bool `yaml:"skip_verify" mapstructure:"skip_verify"`
	// CAFile verifies the server (client side) or client certificates
	// (server side).
	CAFile string `yaml:"ca_file" mapstructure:"ca_file"`
	// CertFile and KeyFile hold this side's certificate.
	CertFile string `yaml:"cert_file" mapstructure:"cert_file"`
	KeyFile  string `yaml:"key_file" mapstructure:"key_file"`
	// ServerName overrides the name checked against the server certificate.
	ServerName string `yaml:"server_name" mapstructure:"server_name"`
	// MinVersion defaults to TLS 1.2.
	MinVersion uint16 `yaml:"min_version" mapstructure:"min_version"`
}

// IsEnabled reports whether any client-side option is set.
func (c *TLSConfig) IsEnabled() bool {
	if c == nil {
		return false
	}
	return c.SkipVerify || c.CAFile != "" || c.CertFile != "" || c.ServerName != ""
}

// HasCertificate reports whether a certificate and key are configured.
func (c *TLSConfig) HasCertificate() bool {
	return c != nil && c.CertFile != "" && c.KeyFile != ""
}

// Validate checks that cert_file and key_file come together and that
// min_version is a known TLS version.
func (c *TLSConfig) Validate() error {
	if c == nil {
		return nil
	}
	if (c.CertFile != "") != (c.KeyFile != "") {
		return fmt.Errorf("tls: cert_file and key_file must be set together")
	}
	switch c.MinVersion {
	case 0, tls.VersionTLS12, tls.VersionTLS13:
	default:
		return fmt.Errorf("tls: min_version must be TLS 1.2 (0x0303) or 1.3 (0x0304), got %#x", c.MinVersion)
	}
	return nil
}

// BuildClient returns the client-side tls.Config, or nil when TLS is not
// configured.
func (c *TLSConfig) BuildClient() (*tls.Config, error) {
	if !c.IsEnabled() {
		return nil, nil
	}
	cfg := c.base()
	cfg.InsecureSkipVerify = c.SkipVerify
	cfg.ServerName = c.ServerName

	if c.CAFile != "" {
		pool, err := loadPool(c.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}
	if err := c.loadCertificate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BuildServer returns the server-side tls.Config, or nil when no
// certificate is configured. With CAFile set, clients must present a
// certificate it signed.
func (c *TLSConfig) BuildServer() (*tls.Config, error) {
	if !c.HasCertificate() {
		return nil, nil
	}
	cfg := c.base()
	cfg.NextProtos = []string{"h2", "http/1.1"}
	if err := c.loadCertificate(cfg); err != nil {
		return nil, err
	}
	if c.CAFile != "" {
		pool, err := loadPool(c.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg, nil
}

func (c *TLSConfig) base() *tls.Config {
	minVersion := c.MinVersion
	if minVersion == 0 {
		minVersion = tls.VersionTLS12
	}
	return &tls.Config{MinVersion: minVersion}
}

func (c *TLSConfig) loadCertificate(cfg *tls.Config) error {
	if !c.HasCertificate() {
		return nil
	}
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return fmt.Errorf("tls: load certificate: %w", err)
	}
	cfg.Certificates = []tls.Certificate{cert}
	return nil
}

func loadPool(caFile string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("tls: read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("tls: no certificates in %s", caFile)
	}
	return pool, nil
}
