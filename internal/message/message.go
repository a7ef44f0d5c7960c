// Package message parses raw IRC lines (with IRCv3 tags) into structured
// messages and builds outbound lines.
package message

import (
	"strings"
	"time"

	"github.com/ergochat/irc-go/ircmsg"
)

// Prefix is the source of a message: nick!user@host or a server name
type Prefix struct {
	Raw  string
	Nick string
	User string
	Host string
}

// IsServer reports whether the prefix names a server rather than a user
func (p *Prefix) IsServer() bool {
	return p.User == "" && p.Host == "" && strings.Contains(p.Raw, ".")
}

// Message is one parsed protocol line
type Message struct {
	// Tags holds IRCv3 message tags; a nil value means the tag had no value
	Tags     map[string]*string
	Prefix   *Prefix
	Command  string
	Params   []string
	Trailing *string
}

// Parse parses one line. It returns false for an empty line or a line
// without a valid command token.
//
// ircmsg.ParseLine is not used here: it does not record whether the last
// parameter was a trailing one, and it maps valueless tags to "".
func Parse(line string) (*Message, bool) {
	s := strings.TrimRight(line, "\r\n")
	s = strings.TrimLeft(s, " ")
	if s == "" {
		return nil, false
	}

	m := &Message{}
	if s[0] == '@' {
		var raw string
		raw, s = cut(s[1:])
		m.Tags = parseTags(raw)
	}

	if strings.HasPrefix(s, ":") {
		var raw string
		raw, s = cut(s[1:])
		if raw != "" {
			m.Prefix = ParsePrefix(raw)
		}
	}

	var cmd string
	cmd, s = cut(s)
	if !validCommand(cmd) {
		return nil, false
	}
	m.Command = strings.ToUpper(cmd)

	for {
		s = strings.TrimLeft(s, " ")
		if s == "" {
			break
		}
		if s[0] == ':' {
			trailing := s[1:]
			m.Trailing = &trailing
			break
		}
		var p string
		p, s = cut(s)
		m.Params = append(m.Params, p)
	}
	return m, true
}

// cut splits off the first space-delimited token, skipping leading spaces
func cut(s string) (token, rest string) {
	s = strings.TrimLeft(s, " ")
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

func validCommand(cmd string) bool {
	if cmd == "" {
		return false
	}
	if len(cmd) == 3 && isDigit(cmd[0]) && isDigit(cmd[1]) && isDigit(cmd[2]) {
		return true
	}
	for i := 0; i < len(cmd); i++ {
		c := cmd[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func parseTags(raw string) map[string]*string {
	tags := make(map[string]*string)
	for _, item := range strings.Split(raw, ";") {
		if item == "" {
			continue
		}
		key, value, hasValue := strings.Cut(item, "=")
		if key == "" {
			continue
		}
		if !hasValue {
			tags[key] = nil
			continue
		}
		v := ircmsg.UnescapeTagValue(value)
		tags[key] = &v
	}
	return tags
}

// ParsePrefix splits nick!user@host. A bare name is kept as the nick.
func ParsePrefix(raw string) *Prefix {
	p := &Prefix{Raw: raw}
	rest := raw
	if i := strings.IndexByte(rest, '@'); i >= 0 {
		p.Host = rest[i+1:]
		rest = rest[:i]
	}
	if i := strings.IndexByte(rest, '!'); i >= 0 {
		p.User = rest[i+1:]
		rest = rest[:i]
	}
	p.Nick = rest
	return p
}

// Args returns the middle params followed by the trailing param, if any
func (m *Message) Args() []string {
	if m.Trailing == nil {
		return m.Params
	}
	args := make([]string, 0, len(m.Params)+1)
	args = append(args, m.Params...)
	return append(args, *m.Trailing)
}

// Arg returns the i-th argument or "" when absent
func (m *Message) Arg(i int) string {
	args := m.Args()
	if i < 0 || i >= len(args) {
		return ""
	}
	return args[i]
}

// Last returns the final argument, trailing or not
func (m *Message) Last() string {
	if m.Trailing != nil {
		return *m.Trailing
	}
	if len(m.Params) == 0 {
		return ""
	}
	return m.Params[len(m.Params)-1]
}

// Nick returns the sender nick, or "" without a prefix
func (m *Message) Nick() string {
	if m.Prefix == nil {
		return ""
	}
	return m.Prefix.Nick
}

// Source returns the raw prefix, or "" without one
func (m *Message) Source() string {
	if m.Prefix == nil {
		return ""
	}
	return m.Prefix.Raw
}

// Tag returns a tag value. Present reports whether the key exists at all.
func (m *Message) Tag(key string) (value string, present bool) {
	v, ok := m.Tags[key]
	if !ok {
		return "", false
	}
	if v == nil {
		return "", true
	}
	return *v, true
}

// Time returns the server-time tag, if present and well-formed
func (m *Message) Time() (time.Time, bool) {
	v, ok := m.Tag("time")
	if !ok || v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// IsNumeric reports whether the command is a 3-digit numeric reply
func (m *Message) IsNumeric() bool {
	return len(m.Command) == 3 && isDigit(m.Command[0]) && isDigit(m.Command[1]) && isDigit(m.Command[2])
}
