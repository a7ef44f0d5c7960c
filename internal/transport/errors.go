package transport

import (
	"errors"
	"fmt"
	"strings"
)

// Category is the user-facing class of a transport failure
type Category int

const (
	GenericIO Category = iota
	CertInvalid
	ProtocolMismatch
	HandshakeRejected
	ConnectionReset
	HostUnreachable
	DNSFailure
)

func (c Category) String() string {
	switch c {
	case CertInvalid:
		return "certificate-invalid"
	case ProtocolMismatch:
		return "protocol-mismatch"
	case HandshakeRejected:
		return "handshake-rejected"
	case ConnectionReset:
		return "connection-reset"
	case HostUnreachable:
		return "host-unreachable"
	case DNSFailure:
		return "dns-failure"
	}
	return "io"
}

// Error is a failure to establish or use the transport
type Error struct {
	Op       string
	Category Category
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op string, err error) *Error {
	return &Error{Op: op, Category: Classify(err), Err: err}
}

var categoryPatterns = []struct {
	category Category
	patterns []string
}{
	{ProtocolMismatch, []string{"protocol version", "does not look like a tls handshake", "unsupported versions", "wrong version number", "record overflow"}},
	{HandshakeRejected, []string{"remote error", "handshake failure", "bad certificate", "alert"}},
	{CertInvalid, []string{"x509", "certificate"}},
	{DNSFailure, []string{"no such host", "server misbehaving", "lookup "}},
	{ConnectionReset, []string{"connection reset", "broken pipe", "forcibly closed", "connection aborted"}},
	{HostUnreachable, []string{"no route to host", "network is unreachable", "connection refused", "host is down", "host unreachable"}},
}

// Classify maps an error to a Category by its text. It is advisory only.
func Classify(err error) Category {
	if err == nil {
		return GenericIO
	}
	var te *Error
	if errors.As(err, &te) && te.Category != GenericIO {
		return te.Category
	}
	text := strings.ToLower(err.Error())
	for _, cp := range categoryPatterns {
		for _, p := range cp.patterns {
			if strings.Contains(text, p) {
				return cp.category
			}
		}
	}
	return GenericIO
}

// Friendly renders an error for display
func Friendly(err error) string {
	if err == nil {
		return ""
	}
	var msg string
	switch Classify(err) {
	case CertInvalid:
		msg = "The server's TLS certificate is not valid"
	case ProtocolMismatch:
		msg = "TLS protocol mismatch (is this a plaintext port?)"
	case HandshakeRejected:
		msg = "The server rejected the TLS handshake"
	case ConnectionReset:
		msg = "Connection reset by peer"
	case HostUnreachable:
		msg = "Host unreachable"
	case DNSFailure:
		msg = "Could not resolve the server name"
	default:
		return err.Error()
	}
	return fmt.Sprintf("%s (%v)", msg, err)
}
