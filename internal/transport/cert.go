package transport

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"golang.org/x/crypto/pkcs12"
)

// LoadClientCertificate decodes a client certificate blob. PKCS#12 blobs are
// decrypted with password; PEM blobs (certificate and key) are used as is.
func LoadClientCertificate(blob []byte, password string) (tls.Certificate, error) {
	if len(blob) == 0 {
		return tls.Certificate{}, fmt.Errorf("client certificate is empty")
	}
	if bytes.Contains(blob, []byte("-----BEGIN")) {
		cert, err := tls.X509KeyPair(blob, blob)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("failed to load PEM client certificate: %w", err)
		}
		return cert, nil
	}

	blocks, err := pkcs12.ToPEM(blob, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to decode PKCS#12 client certificate: %w", err)
	}
	var buf bytes.Buffer
	for _, b := range blocks {
		if err := pem.Encode(&buf, &pem.Block{Type: b.Type, Bytes: b.Bytes}); err != nil {
			return tls.Certificate{}, fmt.Errorf("failed to re-encode client certificate: %w", err)
		}
	}
	cert, err := tls.X509KeyPair(buf.Bytes(), buf.Bytes())
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to load PKCS#12 client certificate: %w", err)
	}
	return cert, nil
}

// verifyChain checks the peer chain against roots (system roots when nil).
// Used to report the verified flag when verification was skipped.
func verifyChain(state tls.ConnectionState, host string, roots *x509.CertPool) bool {
	if len(state.PeerCertificates) == 0 {
		return false
	}
	intermediates := x509.NewCertPool()
	for _, c := range state.PeerCertificates[1:] {
		intermediates.AddCert(c)
	}
	_, err := state.PeerCertificates[0].Verify(x509.VerifyOptions{
		DNSName:       host,
		Roots:         roots,
		Intermediates: intermediates,
	})
	return err == nil
}

// summary renders protocol, cipher, peer subject and the verified flag
func summary(state tls.ConnectionState, verified bool) string {
	subject := "unknown peer"
	if len(state.PeerCertificates) > 0 {
		subject = state.PeerCertificates[0].Subject.String()
	}
	flag := "unverified"
	if verified {
		flag = "verified"
	}
	return fmt.Sprintf("%s, %s, %s, %s",
		tls.VersionName(state.Version), tls.CipherSuiteName(state.CipherSuite), subject, flag)
}
