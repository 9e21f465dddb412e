// Package mailtest runs an in-process IMAP server over TLS for tests.
package mailtest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"log"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/emersion/go-imap/server"
)

// ServerName is the name the test certificate is issued for
const ServerName = "imap.mailtest.local"

// Server is a TLS IMAP server backed by an in-memory Backend
type Server struct {
	*Backend

	// Addr is the host:port the server listens on
	Addr string
	// Certs holds the self-signed certificate of the server
	Certs *x509.CertPool
}

// NewServer starts a server on a random loopback port. It is shut down
// when the test finishes.
func NewServer(t testing.TB) *Server {
	t.Helper()

	cfg, pool := TLSConfig(t)
	ln, err := tls.Listen("tcp", "127.0.0.1:0", cfg)
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	be := NewBackend()
	srv := server.New(be)
	srv.ErrorLog = log.New(io.Discard, "", 0)

	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })

	return &Server{
		Backend: be,
		Addr:    ln.Addr().String(),
		Certs:   pool,
	}
}

// TLSConfig returns a server config with a fresh self-signed certificate
// for ServerName, and a pool that trusts it
func TLSConfig(t testing.TB) (*tls.Config, *x509.CertPool) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: ServerName},
		DNSNames:              []string{ServerName, "localhost"},
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1)},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("failed to parse certificate: %v", err)
	}

	pool := x509.NewCertPool()
	pool.AddCert(leaf)

	cert := tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
		Leaf:        leaf,
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, pool
}
