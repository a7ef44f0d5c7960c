package sasl

import (
	"fmt"
	"strings"

	gosasl "github.com/emersion/go-sasl"
)

// Supported mechanism names
const (
	Plain       = gosasl.Plain
	External    = gosasl.External
	ScramSHA256 = "SCRAM-SHA-256"
	ScramSHA512 = "SCRAM-SHA-512"
)

// NewMechanism creates the client side of a SASL mechanism
func NewMechanism(mechanism, authcid, password string) (gosasl.Client, error) {
	switch strings.ToUpper(mechanism) {
	case Plain:
		return gosasl.NewPlainClient("", authcid, password), nil
	case External:
		return gosasl.NewExternalClient(""), nil
	case ScramSHA256, ScramSHA512:
		return newSCRAMClient(strings.ToUpper(mechanism), authcid, password)
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism %q", mechanism)
	}
}

// Supported reports whether a mechanism name can be used
func Supported(mechanism string) bool {
	switch strings.ToUpper(mechanism) {
	case Plain, External, ScramSHA256, ScramSHA512:
		return true
	}
	return false
}
