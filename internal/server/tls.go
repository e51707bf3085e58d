package server

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// parseTLSVersion maps "1.2"/"1.3" (optionally prefixed with "tls") to the
// crypto/tls constant. Empty means the default minimum, TLS 1.2.
func parseTLSVersion(ver string) (uint16, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ver)), "tls") {
	case "", "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unsupported TLS version %q", ver)
	}
}

// certLoader reads the key pair on every handshake so rotated files are
// picked up without a restart.
func certLoader(certFile, keyFile string) func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		certPEM, err := os.ReadFile(filepath.Clean(certFile))
		if err != nil {
			return nil, err
		}
		keyPEM, err := os.ReadFile(filepath.Clean(keyFile))
		if err != nil {
			return nil, err
		}
		cert, err := tls.X509KeyPair(certPEM, keyPEM)
		if err != nil {
			return nil, err
		}
		return &cert, nil
	}
}

// TLSConfig builds the server TLS settings for the given key pair. It fails
// early when the files cannot be loaded.
func TLSConfig(certFile, keyFile, minVersion string) (*tls.Config, error) {
	if certFile == "" || keyFile == "" {
		return nil, errors.New("tls: cert_file and key_file are both required")
	}
	minVer, err := parseTLSVersion(minVersion)
	if err != nil {
		return nil, err
	}
	load := certLoader(certFile, keyFile)
	if _, err := load(nil); err != nil {
		return nil, fmt.Errorf("tls: load key pair: %w", err)
	}
	return &tls.Config{
		GetCertificate: load,
		MinVersion:     minVer,
	}, nil
}
