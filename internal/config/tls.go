package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLS builds the client *tls.Config used for both tenants. Tenants commonly
// run with self-signed certificates, so verification is off unless
// TLS_INSECURE=false. A CA bundle from TLS_CA_CERT is trusted when given.
func (c *Config) TLS() (*tls.Config, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: c.TLSInsecure,
	}

	if c.TLSCACert != "" {
		caPEM, err := os.ReadFile(c.TLSCACert)
		if err != nil {
			return nil, fmt.Errorf("read CA cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("failed to parse CA cert")
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}
