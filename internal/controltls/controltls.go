// Package controltls builds the mutual-TLS trust material the local
// control server and its clients use: a generated CA (CN "Agent MCP CA"),
// a server certificate with localhost/127.0.0.1/0.0.0.0 SANs, a client
// certificate, and mandatory client auth on the server side. Persistent
// mode stores five PEM files under a certs directory with 0600 private
// keys on Unix.
package controltls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

const validityPeriod = 365 * 24 * time.Hour

// Chain holds a freshly generated or loaded CA + server + client
// certificate set.
type Chain struct {
	CACertPEM     []byte
	ServerCertPEM []byte
	ServerKeyPEM  []byte
	ClientCertPEM []byte
	ClientKeyPEM  []byte

	caCert *x509.Certificate
}

// Generate builds a new CA, server, and client certificate in memory —
// the ephemeral strategy used for testing and development.
func Generate() (*Chain, error) {
	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("controltls: generate CA key: %w", err)
	}
	now := time.Now()
	caTemplate := &x509.Certificate{
		SerialNumber:          serial(),
		Subject:               pkix.Name{CommonName: "Agent MCP CA", Organization: []string{"Agent MCP"}},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validityPeriod),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		return nil, fmt.Errorf("controltls: create CA certificate: %w", err)
	}
	caCert, err := x509.ParseCertificate(caDER)
	if err != nil {
		return nil, fmt.Errorf("controltls: parse CA certificate: %w", err)
	}

	serverCertDER, serverKey, err := issueLeaf(caCert, caKey, "Agent MCP Server", []string{"localhost"},
		[]net.IP{net.IPv4(0, 0, 0, 0), net.IPv4(127, 0, 0, 1)}, x509.ExtKeyUsageServerAuth)
	if err != nil {
		return nil, fmt.Errorf("controltls: issue server certificate: %w", err)
	}
	clientCertDER, clientKey, err := issueLeaf(caCert, caKey, "Agent MCP Client", nil, nil, x509.ExtKeyUsageClientAuth)
	if err != nil {
		return nil, fmt.Errorf("controltls: issue client certificate: %w", err)
	}

	serverKeyPEM, err := encodeECKey(serverKey)
	if err != nil {
		return nil, err
	}
	clientKeyPEM, err := encodeECKey(clientKey)
	if err != nil {
		return nil, err
	}

	return &Chain{
		CACertPEM:     encodeCert(caDER),
		ServerCertPEM: encodeCert(serverCertDER),
		ServerKeyPEM:  serverKeyPEM,
		ClientCertPEM: encodeCert(clientCertDER),
		ClientKeyPEM:  clientKeyPEM,
		caCert:        caCert,
	}, nil
}

func issueLeaf(ca *x509.Certificate, caKey *ecdsa.PrivateKey, cn string, dnsNames []string, ips []net.IP, eku x509.ExtKeyUsage) ([]byte, *ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial(),
		Subject:      pkix.Name{CommonName: cn, Organization: []string{"Agent MCP"}},
		NotBefore:    now.Add(-time.Minute),
		NotAfter:     now.Add(validityPeriod),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{eku},
		DNSNames:     dnsNames,
		IPAddresses:  ips,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, ca, &key.PublicKey, caKey)
	if err != nil {
		return nil, nil, err
	}
	return der, key, nil
}

func serial() *big.Int {
	n, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return big.NewInt(time.Now().UnixNano())
	}
	return n
}

func encodeCert(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func encodeECKey(key *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("controltls: marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil
}

// SaveToDirectory writes the five PEM files a persistent setup expects:
// ca.pem, server-cert.pem, server-key.pem, client-cert.pem, client-key.pem.
// Private keys are written 0600 on Unix.
func (c *Chain) SaveToDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("controltls: create cert directory: %w", err)
	}
	files := []struct {
		name string
		data []byte
		mode os.FileMode
	}{
		{"ca.pem", c.CACertPEM, 0o644},
		{"server-cert.pem", c.ServerCertPEM, 0o644},
		{"server-key.pem", c.ServerKeyPEM, keyMode()},
		{"client-cert.pem", c.ClientCertPEM, 0o644},
		{"client-key.pem", c.ClientKeyPEM, keyMode()},
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f.name), f.data, f.mode); err != nil {
			return fmt.Errorf("controltls: write %s: %w", f.name, err)
		}
	}
	return nil
}

func keyMode() os.FileMode {
	if runtime.GOOS == "windows" {
		return 0o644
	}
	return 0o600
}

// ExistsInDirectory reports whether all five expected PEM files are
// present at dir.
func ExistsInDirectory(dir string) bool {
	for _, name := range []string{"ca.pem", "server-cert.pem", "server-key.pem", "client-cert.pem", "client-key.pem"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

// LoadServerConfig reads the persisted PEM files at dir and builds a
// *tls.Config requiring and verifying client certificates against ca.pem.
func LoadServerConfig(dir string) (*tls.Config, error) {
	if !ExistsInDirectory(dir) {
		return nil, fmt.Errorf("controltls: certificates not found at %s", dir)
	}
	cert, err := tls.LoadX509KeyPair(filepath.Join(dir, "server-cert.pem"), filepath.Join(dir, "server-key.pem"))
	if err != nil {
		return nil, fmt.Errorf("controltls: load server keypair: %w", err)
	}
	pool, err := loadCAPool(filepath.Join(dir, "ca.pem"))
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    pool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// LoadClientConfig reads the persisted PEM files at dir and builds a
// *tls.Config presenting the client certificate and trusting only ca.pem.
func LoadClientConfig(dir string) (*tls.Config, error) {
	if !ExistsInDirectory(dir) {
		return nil, fmt.Errorf("controltls: certificates not found at %s", dir)
	}
	cert, err := tls.LoadX509KeyPair(filepath.Join(dir, "client-cert.pem"), filepath.Join(dir, "client-key.pem"))
	if err != nil {
		return nil, fmt.Errorf("controltls: load client keypair: %w", err)
	}
	pool, err := loadCAPool(filepath.Join(dir, "ca.pem"))
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// ServerConfig builds a *tls.Config directly from an in-memory Chain,
// equivalent to the Rust reference's ephemeral create_server_config.
func (c *Chain) ServerConfig() (*tls.Config, error) {
	cert, err := tls.X509KeyPair(c.ServerCertPEM, c.ServerKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("controltls: build server keypair: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(c.CACertPEM)
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    pool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// ClientConfig builds a *tls.Config directly from an in-memory Chain.
func (c *Chain) ClientConfig() (*tls.Config, error) {
	cert, err := tls.X509KeyPair(c.ClientCertPEM, c.ClientKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("controltls: build client keypair: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(c.CACertPEM)
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func loadCAPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("controltls: read CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("controltls: no certificates parsed from %s", path)
	}
	return pool, nil
}
