package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeLine_WhenTextContainsLineBreaks_ShouldRemoveThem(t *testing.T) {
	assert.Equal(t, "hello worldQUIT :bye", SanitizeLine("hello world\r\nQUIT :bye"))
	assert.Equal(t, "ab", SanitizeLine("a\nb"))
	assert.Equal(t, "ab", SanitizeLine("a\rb"))
	assert.Equal(t, "ab", SanitizeLine("a\x00b"))
}

func TestSanitizeLine_WhenTextIsClean_ShouldReturnUnchanged(t *testing.T) {
	assert.Equal(t, "PRIVMSG #go :hi there", SanitizeLine("PRIVMSG #go :hi there"))
}

func TestValidateNickname(t *testing.T) {
	assert.NoError(t, ValidateNickname("alice"))
	assert.NoError(t, ValidateNickname("[bot]`_"))
	assert.Error(t, ValidateNickname(""))
	assert.Error(t, ValidateNickname("al ice"))
	assert.Error(t, ValidateNickname("#alice"))
	assert.Error(t, ValidateNickname("a!b"))
}

func TestValidateChannelName(t *testing.T) {
	assert.NoError(t, ValidateChannelName("#go-nuts"))
	assert.NoError(t, ValidateChannelName("&local"))
	assert.Error(t, ValidateChannelName("go-nuts"))
	assert.Error(t, ValidateChannelName("#a,#b"))
	assert.Error(t, ValidateChannelName(""))
}

func TestValidateServerAddress(t *testing.T) {
	assert.NoError(t, ValidateServerAddress("irc.libera.chat", 6697))
	assert.Error(t, ValidateServerAddress("", 6697))
	assert.Error(t, ValidateServerAddress("irc.libera.chat", 0))
	assert.Error(t, ValidateServerAddress("irc.libera.chat", 70000))
}

func TestValidateIdentity(t *testing.T) {
	assert.NoError(t, ValidateIdentity("alice", "alice", "Alice Liddell"))
	assert.Error(t, ValidateIdentity("alice", "", "Alice"))
	assert.Error(t, ValidateIdentity("alice", "al ice", "Alice"))
	assert.Error(t, ValidateIdentity("alice", "alice", "Alice\r\nQUIT"))
}
