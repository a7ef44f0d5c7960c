package validation

import (
	"fmt"
	"strings"
)

// ValidateIdentity validates the registration identity of a connection
func ValidateIdentity(nickname, username, realname string) error {
	if err := ValidateNickname(nickname); err != nil {
		return err
	}
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("username is required")
	}
	if strings.ContainsAny(username, " @!\x00\r\n") {
		return fmt.Errorf("username contains invalid characters")
	}
	if strings.ContainsAny(realname, "\x00\r\n") {
		return fmt.Errorf("realname contains invalid characters")
	}
	return nil
}

// ValidateNickname validates a nickname before it is sent in NICK
func ValidateNickname(nickname string) error {
	if strings.TrimSpace(nickname) == "" {
		return fmt.Errorf("nickname is required")
	}
	if strings.ContainsAny(nickname, " ,*?!@:\x00\r\n") {
		return fmt.Errorf("nickname contains invalid characters")
	}
	if nickname[0] == '#' || nickname[0] == '&' || nickname[0] == '$' || nickname[0] == ':' {
		return fmt.Errorf("nickname must not start with %q", nickname[0])
	}
	return nil
}

// ValidateChannelName validates an IRC channel name
func ValidateChannelName(channel string) error {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return fmt.Errorf("channel name is required")
	}
	// IRC channels must start with #, &, +, or !
	if len(channel) == 0 || (channel[0] != '#' && channel[0] != '&' && channel[0] != '+' && channel[0] != '!') {
		return fmt.Errorf("channel name must start with #, &, +, or !")
	}
	// Channel names have length limits (typically 50 chars, but varies by server)
	if len(channel) > 200 {
		return fmt.Errorf("channel name too long (max 200 characters)")
	}
	// Check for invalid characters
	if strings.ContainsAny(channel, " \x00\x07\x0A\x0D,") {
		return fmt.Errorf("channel name contains invalid characters")
	}
	return nil
}

// ValidateServerAddress validates a server address and port
func ValidateServerAddress(address string, port int) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return fmt.Errorf("server address is required")
	}
	if strings.ContainsAny(address, " /") {
		return fmt.Errorf("server address contains invalid characters")
	}
	if port <= 0 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

var lineBreaks = strings.NewReplacer("\r\n", "", "\r", "", "\n", "", "\x00", "")

// SanitizeLine strips embedded line breaks and NULs so user text can never
// smuggle a second protocol line onto the wire
func SanitizeLine(s string) string {
	if !strings.ContainsAny(s, "\r\n\x00") {
		return s
	}
	return lineBreaks.Replace(s)
}
