// Package tlsutil provides the server certificate and a listener that serves
// HTTP and HTTPS on one port.
package tlsutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

const (
	certFileName = "server.crt"
	keyFileName  = "server.key"

	certValidity = 365 * 24 * time.Hour
)

// ErrNoCertificate is returned when nothing is configured or stored and
// generation is off
var ErrNoCertificate = errors.New("no TLS certificate found and auto-generation is disabled")

// CertSource loads the configured key pair, else the one in the store
// directory, else generates and stores a self-signed pair
type CertSource struct {
	certFile string
	keyFile  string
	storeDir string
	now      func() time.Time
}

// NewCertSource creates a certificate source. certFile and keyFile take
// precedence over storeDir when both are set.
func NewCertSource(certFile, keyFile, storeDir string) *CertSource {
	return &CertSource{
		certFile: certFile,
		keyFile:  keyFile,
		storeDir: storeDir,
		now:      time.Now,
	}
}

// Certificate returns the server certificate. A stored certificate that has
// expired is replaced when autoGenerate is set.
func (s *CertSource) Certificate(autoGenerate bool) (*tls.Certificate, error) {
	if s.certFile != "" && s.keyFile != "" {
		cert, err := tls.LoadX509KeyPair(s.certFile, s.keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load certificate from %s and %s: %w", s.certFile, s.keyFile, err)
		}
		return &cert, nil
	}

	certPath, keyPath := s.Paths()
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err == nil && !s.expired(&cert) {
		return &cert, nil
	}
	if !autoGenerate {
		if err == nil {
			return nil, fmt.Errorf("stored certificate %s has expired", certPath)
		}
		return nil, ErrNoCertificate
	}
	return s.generate()
}

// Paths returns where the certificate and key are read from
func (s *CertSource) Paths() (certPath, keyPath string) {
	if s.certFile != "" && s.keyFile != "" {
		return s.certFile, s.keyFile
	}
	return filepath.Join(s.storeDir, certFileName), filepath.Join(s.storeDir, keyFileName)
}

func (s *CertSource) expired(cert *tls.Certificate) bool {
	if len(cert.Certificate) == 0 {
		return true
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return true
	}
	return s.now().After(leaf.NotAfter)
}

// generate writes a self-signed ECDSA P-256 pair valid for localhost, the
// loopback addresses and every local interface address
func (s *CertSource) generate() (*tls.Certificate, error) {
	if err := os.MkdirAll(s.storeDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create certificate store directory: %w", err)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	notBefore := s.now()
	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"oasmock"},
			CommonName:   "oasmock self-signed",
		},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(certValidity),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           append([]net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")}, interfaceIPs()...),
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	certPath, keyPath := s.Paths()
	if err := os.WriteFile(certPath, certPEM, 0644); err != nil {
		return nil, fmt.Errorf("failed to save certificate: %w", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		return nil, fmt.Errorf("failed to save private key: %w", err)
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse generated certificate: %w", err)
	}
	return &cert, nil
}

// interfaceIPs lists non-loopback interface addresses; errors yield none
func interfaceIPs() []net.IP {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	var ips []net.IP
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			ips = append(ips, ipnet.IP)
		}
	}
	return ips
}

// ServerConfig returns the TLS configuration for cert
func ServerConfig(cert *tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{"http/1.1"},
	}
}
