package message

import (
	"fmt"
	"strings"

	"github.com/ergochat/irc-go/ircmsg"
)

// Build composes an outbound line without the CRLF terminator. The final
// param gets a leading colon when it is empty, contains spaces or starts
// with one.
func Build(command string, params ...string) (string, error) {
	return BuildTagged(nil, command, params...)
}

// BuildTagged is Build with client tags
func BuildTagged(tags map[string]string, command string, params ...string) (string, error) {
	msg := ircmsg.MakeMessage(tags, "", command, params...)
	line, err := msg.Line()
	if err != nil {
		return "", fmt.Errorf("failed to build %s line: %w", command, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
