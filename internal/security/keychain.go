package security

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/matt0x6f/irc-engine/internal/config"
)

const (
	// KeychainService is the service name used for storing secrets in the keychain
	KeychainService = "irc-engine"
)

// Secret identifies which credential of a network is stored
type Secret string

const (
	SASLPassword       Secret = "sasl"
	ServerPassword     Secret = "server"
	ClientCertPassword Secret = "client-cert"
)

// ParseSecret maps a secret name as typed by a user to a Secret
func ParseSecret(name string) (Secret, error) {
	switch s := Secret(name); s {
	case SASLPassword, ServerPassword, ClientCertPassword:
		return s, nil
	}
	return "", fmt.Errorf("unknown secret %q (want %s, %s or %s)", name, SASLPassword, ServerPassword, ClientCertPassword)
}

// Keychain provides secure secret storage using the OS keychain
type Keychain struct {
	service string
}

// NewKeychain creates a new keychain instance
func NewKeychain() *Keychain {
	return &Keychain{service: KeychainService}
}

func account(network string, secret Secret) string {
	return network + "/" + string(secret)
}

// Store saves a secret for a network. An empty value deletes it.
func (k *Keychain) Store(network string, secret Secret, value string) error {
	if value == "" {
		return k.Delete(network, secret)
	}
	if err := keyring.Set(k.service, account(network, secret), value); err != nil {
		return fmt.Errorf("failed to store %s secret in keychain: %w", secret, err)
	}
	return nil
}

// Get returns a stored secret, or "" when there is none
func (k *Keychain) Get(network string, secret Secret) (string, error) {
	value, err := keyring.Get(k.service, account(network, secret))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", nil // Not found is not an error, just return empty
		}
		return "", fmt.Errorf("failed to get %s secret from keychain: %w", secret, err)
	}
	return value, nil
}

// Delete removes a secret; a missing secret is not an error
func (k *Keychain) Delete(network string, secret Secret) error {
	err := keyring.Delete(k.service, account(network, secret))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete %s secret from keychain: %w", secret, err)
	}
	return nil
}

// Resolve fills empty secret fields of cfg from the keychain. Values already
// present in the config win.
func (k *Keychain) Resolve(network string, cfg *config.Config) error {
	fields := []struct {
		secret Secret
		dst    *string
	}{
		{SASLPassword, &cfg.SASL.Password},
		{ServerPassword, &cfg.ServerPassword},
		{ClientCertPassword, &cfg.ClientCert.Password},
	}
	for _, f := range fields {
		if *f.dst != "" {
			continue
		}
		v, err := k.Get(network, f.secret)
		if err != nil {
			return err
		}
		*f.dst = v
	}
	return nil
}
