package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeSelfSigned writes a throwaway key pair for commonName into dir.
func writeSelfSigned(t *testing.T, dir, commonName string) (certFile, keyFile string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	certFile = filepath.Join(dir, "tls.crt")
	keyFile = filepath.Join(dir, "tls.key")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func leafCN(t *testing.T, c *tls.Certificate) string {
	t.Helper()
	leaf, err := x509.ParseCertificate(c.Certificate[0])
	if err != nil {
		t.Fatal(err)
	}
	return leaf.Subject.CommonName
}

func TestTLSConfigReloadsRotatedCert(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeSelfSigned(t, dir, "first")
	cfg, err := TLSConfig(certFile, keyFile, "1.3")
	if err != nil {
		t.Fatalf("tls config: %v", err)
	}
	if cfg.MinVersion != tls.VersionTLS13 {
		t.Fatalf("unexpected min version %x", cfg.MinVersion)
	}
	c, err := cfg.GetCertificate(&tls.ClientHelloInfo{})
	if err != nil {
		t.Fatalf("get cert: %v", err)
	}
	if cn := leafCN(t, c); cn != "first" {
		t.Fatalf("unexpected CN %q", cn)
	}

	writeSelfSigned(t, dir, "second")
	c, err = cfg.GetCertificate(&tls.ClientHelloInfo{})
	if err != nil {
		t.Fatalf("get cert after rotation: %v", err)
	}
	if cn := leafCN(t, c); cn != "second" {
		t.Fatalf("rotated cert not picked up, CN %q", cn)
	}
}

func TestTLSConfigErrors(t *testing.T) {
	if _, err := TLSConfig("", "", ""); err == nil {
		t.Fatalf("expected error for missing files")
	}
	dir := t.TempDir()
	if _, err := TLSConfig(filepath.Join(dir, "nope.crt"), filepath.Join(dir, "nope.key"), ""); err == nil {
		t.Fatalf("expected error for unreadable files")
	}
	certFile, keyFile := writeSelfSigned(t, dir, "x")
	if _, err := TLSConfig(certFile, keyFile, "1.1"); err == nil {
		t.Fatalf("expected error for unsupported version")
	}
	cfg, err := TLSConfig(certFile, keyFile, "")
	if err != nil {
		t.Fatalf("default version: %v", err)
	}
	if cfg.MinVersion != tls.VersionTLS12 {
		t.Fatalf("expected TLS 1.2 default, got %x", cfg.MinVersion)
	}
}
