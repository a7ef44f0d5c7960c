package transport

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCert struct {
	pem  []byte
	cert tls.Certificate
	x509 *x509.Certificate
}

func newTestCert(t *testing.T) testCert {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "irc.test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		DNSNames:              []string{"irc.test"},
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	require.NoError(t, err)
	parsed, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return testCert{pem: append(certPEM, keyPEM...), cert: pair, x509: parsed}
}

// serve accepts one connection, greets it and returns what the client sent
func serve(t *testing.T, ln net.Listener) <-chan string {
	t.Helper()
	got := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			close(got)
			return
		}
		defer conn.Close()
		if tc, ok := conn.(*tls.Conn); ok {
			if err := tc.Handshake(); err != nil {
				close(got)
				return
			}
		}
		fmt.Fprint(conn, ":irc.test NOTICE * :hello\r\n")
		line, _ := bufio.NewReader(conn).ReadString('\n')
		got <- line
	}()
	return got
}

func port(t *testing.T, ln net.Listener) int {
	t.Helper()
	_, p, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	n, err := strconv.Atoi(p)
	require.NoError(t, err)
	return n
}

func TestDial_WhenPlaintextNotAllowed_ShouldRefuse(t *testing.T) {
	_, err := Dial(context.Background(), Options{Host: "127.0.0.1", Port: 1})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPlaintextRefused))
}

func TestDial_Plaintext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	got := serve(t, ln)

	c, err := Dial(context.Background(), Options{Host: "127.0.0.1", Port: port(t, ln), AllowPlaintext: true, ConnectTimeout: time.Second, ReadTimeout: time.Second})
	require.NoError(t, err)
	defer c.Close()

	line, err := bufio.NewReader(c.Reader()).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ":irc.test NOTICE * :hello\r\n", line)
	assert.False(t, c.IsTLS())
	assert.Empty(t, c.TLSInfo())

	_, err = c.Write([]byte("NICK alice\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "NICK alice\r\n", <-got)
}

func TestDial_TLS_WhenTrusted_ShouldReportVerified(t *testing.T) {
	cert := newTestCert(t)
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{cert.cert}})
	require.NoError(t, err)
	defer ln.Close()
	serve(t, ln)

	roots := x509.NewCertPool()
	roots.AddCert(cert.x509)
	c, err := Dial(context.Background(), Options{Host: "127.0.0.1", Port: port(t, ln), TLS: true, RootCAs: roots, HandshakeTimeout: 2 * time.Second})
	require.NoError(t, err)
	defer c.Close()

	assert.True(t, c.IsTLS())
	assert.True(t, c.Verified())
	assert.Contains(t, c.TLSInfo(), "CN=irc.test")
	assert.True(t, strings.HasSuffix(c.TLSInfo(), ", verified"))
}

func TestDial_TLS_WhenUntrusted_ShouldFailWithCertCategory(t *testing.T) {
	cert := newTestCert(t)
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{cert.cert}})
	require.NoError(t, err)
	defer ln.Close()
	serve(t, ln)

	_, err = Dial(context.Background(), Options{Host: "127.0.0.1", Port: port(t, ln), TLS: true, HandshakeTimeout: 2 * time.Second})
	require.Error(t, err)

	var te *Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, CertInvalid, te.Category)
	assert.Equal(t, CertInvalid, Classify(err))
}

func TestDial_TLS_WhenAllowInvalid_ShouldConnectUnverified(t *testing.T) {
	cert := newTestCert(t)
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{cert.cert}})
	require.NoError(t, err)
	defer ln.Close()
	serve(t, ln)

	c, err := Dial(context.Background(), Options{Host: "127.0.0.1", Port: port(t, ln), TLS: true, AllowInvalid: true, ClientCert: cert.pem})
	require.NoError(t, err)
	defer c.ForceClose()

	assert.False(t, c.Verified())
	assert.Contains(t, c.TLSInfo(), "unverified")
}

func TestDial_TLS_WhenServerSilent_ShouldTimeOutHandshake(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			defer conn.Close()
			io.Copy(io.Discard, conn)
		}
	}()

	start := time.Now()
	_, err = Dial(context.Background(), Options{Host: "127.0.0.1", Port: port(t, ln), TLS: true, HandshakeTimeout: 200 * time.Millisecond})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestConn_Close_ShouldRunOnce(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	serve(t, ln)

	c, err := Dial(context.Background(), Options{Host: "127.0.0.1", Port: port(t, ln), AllowPlaintext: true})
	require.NoError(t, err)

	assert.NoError(t, c.ForceClose())
	assert.True(t, c.Closed())
	assert.NoError(t, c.Close())
	assert.NoError(t, c.ForceClose())
}

func TestLoadClientCertificate(t *testing.T) {
	cert := newTestCert(t)

	loaded, err := LoadClientCertificate(cert.pem, "")
	require.NoError(t, err)
	assert.NotEmpty(t, loaded.Certificate)

	_, err = LoadClientCertificate([]byte("definitely not pkcs12"), "pw")
	assert.Error(t, err)
	_, err = LoadClientCertificate(nil, "")
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	tests := map[string]Category{
		"tls: failed to verify certificate: x509: certificate signed by unknown authority": CertInvalid,
		"tls: first record does not look like a TLS handshake":                           ProtocolMismatch,
		"remote error: tls: handshake failure":                                           HandshakeRejected,
		"read tcp 10.0.0.1:1->10.0.0.2:6697: read: connection reset by peer":              ConnectionReset,
		"dial tcp 10.0.0.2:6697: connect: no route to host":                              HostUnreachable,
		"dial tcp 127.0.0.1:1: connect: connection refused":                              HostUnreachable,
		"dial tcp: lookup irc.invalid: no such host":                                     DNSFailure,
		"something odd happened":                                                         GenericIO,
	}
	for text, want := range tests {
		assert.Equal(t, want, Classify(errors.New(text)), text)
	}
	assert.Equal(t, GenericIO, Classify(nil))
	assert.Equal(t, DNSFailure, Classify(&Error{Op: "connect", Category: DNSFailure, Err: errors.New("x")}))
}

func TestFriendly(t *testing.T) {
	assert.Contains(t, Friendly(errors.New("dial tcp: lookup irc.invalid: no such host")), "resolve")
	assert.Equal(t, "plain failure", Friendly(errors.New("plain failure")))
	assert.Empty(t, Friendly(nil))
}
