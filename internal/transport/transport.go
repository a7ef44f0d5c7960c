// Package transport opens the TCP (optionally TLS) connection to an IRC
// server and owns its close semantics.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/net/proxy"

	"github.com/matt0x6f/irc-engine/internal/logger"
)

// Options configure one dial
type Options struct {
	Host           string
	Port           int
	TLS            bool
	AllowInvalid   bool
	AllowPlaintext bool

	ClientCert         []byte
	ClientCertPassword string

	// Proxy is a socks5:// or socks5h:// URL
	Proxy string

	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration

	// RootCAs overrides the system roots
	RootCAs *x509.CertPool
}

// Conn is an established connection. Write may be called from one goroutine
// and reads from another; Close and ForceClose are safe from any goroutine.
type Conn struct {
	raw         net.Conn
	conn        net.Conn
	tlsConn     *tls.Conn
	info        string
	verified    bool
	readTimeout time.Duration
	closed      atomic.Bool
}

// ErrPlaintextRefused is returned when TLS is off and plaintext is not allowed
var ErrPlaintextRefused = errors.New("plaintext connections are not allowed")

// Dial connects, negotiating TLS when requested
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	if !opts.TLS && !opts.AllowPlaintext {
		return nil, &Error{Op: "dial", Category: GenericIO, Err: ErrPlaintextRefused}
	}
	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))

	raw, err := dialTCP(ctx, addr, opts)
	if err != nil {
		return nil, newError("connect", err)
	}

	c := &Conn{raw: raw, conn: raw, readTimeout: opts.ReadTimeout}
	if !opts.TLS {
		logger.Log.Debug().Str("address", addr).Msg("Connected without TLS")
		return c, nil
	}

	tlsConfig := &tls.Config{
		ServerName:         opts.Host,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: opts.AllowInvalid,
		RootCAs:            opts.RootCAs,
	}
	if len(opts.ClientCert) > 0 {
		cert, err := LoadClientCertificate(opts.ClientCert, opts.ClientCertPassword)
		if err != nil {
			raw.Close()
			return nil, &Error{Op: "client certificate", Category: CertInvalid, Err: err}
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	tlsConn := tls.Client(raw, tlsConfig)
	if opts.HandshakeTimeout > 0 {
		raw.SetDeadline(time.Now().Add(opts.HandshakeTimeout))
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, newError("tls handshake", err)
	}
	// steady-state deadlines are armed per read
	raw.SetDeadline(time.Time{})

	state := tlsConn.ConnectionState()
	verified := !opts.AllowInvalid || verifyChain(state, opts.Host, opts.RootCAs)

	c.conn = tlsConn
	c.tlsConn = tlsConn
	c.verified = verified
	c.info = summary(state, verified)
	logger.Log.Debug().Str("address", addr).Str("tls", c.info).Msg("TLS handshake complete")
	return c, nil
}

func dialTCP(ctx context.Context, addr string, opts Options) (net.Conn, error) {
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}
	direct := &net.Dialer{Timeout: opts.ConnectTimeout}
	if opts.Proxy == "" {
		return direct.DialContext(ctx, "tcp", addr)
	}

	u, err := url.Parse(opts.Proxy)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}
	d, err := proxy.FromURL(u, direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy dialer: %w", err)
	}
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, "tcp", addr)
	}
	return d.Dial("tcp", addr)
}

// TLSInfo describes the TLS session, or "" for plaintext
func (c *Conn) TLSInfo() string {
	return c.info
}

// Verified reports whether the server chain verified against trusted roots
func (c *Conn) Verified() bool {
	return c.verified
}

// IsTLS reports whether the connection is encrypted
func (c *Conn) IsTLS() bool {
	return c.tlsConn != nil
}

// RemoteAddr returns the server address
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

// Write sends bytes as is
func (c *Conn) Write(p []byte) (int, error) {
	return c.conn.Write(p)
}

// Reader returns a reader that re-arms the read timeout before every read
func (c *Conn) Reader() io.Reader {
	return deadlineReader{c}
}

type deadlineReader struct {
	c *Conn
}

func (r deadlineReader) Read(p []byte) (int, error) {
	if r.c.readTimeout > 0 {
		r.c.raw.SetReadDeadline(time.Now().Add(r.c.readTimeout))
	}
	return r.c.conn.Read(p)
}

// Closed reports whether Close or ForceClose has run
func (c *Conn) Closed() bool {
	return c.closed.Load()
}

// Close shuts down gracefully, sending TLS close_notify. Only the first
// Close or ForceClose has any effect.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.tlsConn != nil {
		c.raw.SetWriteDeadline(time.Now().Add(2 * time.Second))
		return c.tlsConn.Close()
	}
	return c.raw.Close()
}

// ForceClose drops the socket immediately without close_notify
func (c *Conn) ForceClose() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if tcp, ok := c.raw.(*net.TCPConn); ok {
		tcp.SetLinger(0)
	}
	return c.raw.Close()
}

// IsTimeout reports whether err is a read deadline expiry
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
