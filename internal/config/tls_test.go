package config

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTLS_InsecureByDefault(t *testing.T) {
	cfg := &Config{TLSInsecure: true}
	tlsCfg, err := cfg.TLS()
	require.NoError(t, err)
	require.NotNil(t, tlsCfg)
	assert.True(t, tlsCfg.InsecureSkipVerify)
	assert.Nil(t, tlsCfg.RootCAs)
}

func TestTLS_VerifyEnabled(t *testing.T) {
	cfg := &Config{TLSInsecure: false}
	tlsCfg, err := cfg.TLS()
	require.NoError(t, err)
	assert.False(t, tlsCfg.InsecureSkipVerify)
}

func TestTLS_WithCACert(t *testing.T) {
	caPath := generateTestCA(t)

	cfg := &Config{TLSCACert: caPath}
	tlsCfg, err := cfg.TLS()
	require.NoError(t, err)
	assert.NotNil(t, tlsCfg.RootCAs)
}

func TestTLS_MissingCAFile(t *testing.T) {
	cfg := &Config{TLSCACert: "/nonexistent/ca.pem"}
	_, err := cfg.TLS()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read CA cert")
}

func TestTLS_InvalidCACert(t *testing.T) {
	badCA := filepath.Join(t.TempDir(), "bad-ca.pem")
	require.NoError(t, os.WriteFile(badCA, []byte("not a cert"), 0o600))

	cfg := &Config{TLSCACert: badCA}
	_, err := cfg.TLS()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse CA cert")
}

// generateTestCA creates a self-signed CA certificate and returns its path.
func generateTestCA(t *testing.T) string {
	t.Helper()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test CA"},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ca.pem")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, pem.Encode(f, &pem.Block{Type: "CERTIFICATE", Bytes: der}))
	return path
}
