package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/matt0x6f/irc-engine/internal/config"
)

func TestKeychain_StoreGetDelete(t *testing.T) {
	keyring.MockInit()
	k := NewKeychain()

	v, err := k.Get("libera", SASLPassword)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, k.Store("libera", SASLPassword, "hunter2"))
	v, err = k.Get("libera", SASLPassword)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", v)

	require.NoError(t, k.Store("libera", SASLPassword, ""))
	v, err = k.Get("libera", SASLPassword)
	require.NoError(t, err)
	assert.Empty(t, v)

	assert.NoError(t, k.Delete("libera", ServerPassword))
}

func TestKeychain_Resolve_ShouldFillOnlyEmptyFields(t *testing.T) {
	keyring.MockInit()
	k := NewKeychain()
	require.NoError(t, k.Store("oftc", SASLPassword, "from-keychain"))
	require.NoError(t, k.Store("oftc", ServerPassword, "bouncer-pass"))

	cfg := config.Default()
	cfg.ServerPassword = "from-config"

	require.NoError(t, k.Resolve("oftc", &cfg))

	assert.Equal(t, "from-keychain", cfg.SASL.Password)
	assert.Equal(t, "from-config", cfg.ServerPassword)
	assert.Empty(t, cfg.ClientCert.Password)
}

func TestParseSecret(t *testing.T) {
	for _, name := range []string{"sasl", "server", "client-cert"} {
		s, err := ParseSecret(name)
		require.NoError(t, err)
		assert.Equal(t, Secret(name), s)
	}

	_, err := ParseSecret("nickserv")
	assert.Error(t, err)
}
