package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/matt0x6f/irc-engine/internal/security"
)

// saveSecret reads one line from in and stores it in the keychain for
// network. An empty line removes the secret.
func saveSecret(k *security.Keychain, network, name string, in io.Reader) error {
	secret, err := security.ParseSecret(name)
	if err != nil {
		return err
	}
	scanner := bufio.NewScanner(in)
	var value string
	if scanner.Scan() {
		value = strings.TrimRight(scanner.Text(), "\r")
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read secret: %w", err)
	}
	return k.Store(network, secret, value)
}

// forgetSecret removes a secret of network from the keychain
func forgetSecret(k *security.Keychain, network, name string) error {
	secret, err := security.ParseSecret(name)
	if err != nil {
		return err
	}
	return k.Delete(network, secret)
}
