package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_WhenTrailingHasSpaces_ShouldKeepWholeText(t *testing.T) {
	m, ok := Parse(":nick!u@h PRIVMSG #c :hello world")
	require.True(t, ok)

	assert.Equal(t, "PRIVMSG", m.Command)
	assert.Equal(t, []string{"#c"}, m.Params)
	require.NotNil(t, m.Trailing)
	assert.Equal(t, "hello world", *m.Trailing)
	assert.Equal(t, "nick", m.Nick())
	assert.Equal(t, "u", m.Prefix.User)
	assert.Equal(t, "h", m.Prefix.Host)
}

func TestParse_WhenTagsPresent_ShouldUnescapeValues(t *testing.T) {
	m, ok := Parse(`@time=2024-01-02T03:04:05.678Z;msgid=abc;+draft/reply;x=a\sb\:c\\d :n!u@h PRIVMSG #c :hi  there `)
	require.True(t, ok)

	v, ok := m.Tag("x")
	assert.True(t, ok)
	assert.Equal(t, `a b;c\d`, v)

	_, ok = m.Tag("+draft/reply")
	assert.True(t, ok)
	assert.Nil(t, m.Tags["+draft/reply"])

	_, ok = m.Tag("missing")
	assert.False(t, ok)

	ts, ok := m.Time()
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 678000000, time.UTC), ts)
	assert.Equal(t, "hi  there ", m.Last())
}

func TestParse_WhenNoTrailingColon_ShouldUseLastParam(t *testing.T) {
	m, ok := Parse("NICK   newnick")
	require.True(t, ok)

	assert.Equal(t, "NICK", m.Command)
	assert.Nil(t, m.Trailing)
	assert.Equal(t, "newnick", m.Last())
	assert.Equal(t, []string{"newnick"}, m.Args())
}

func TestParse_WhenNumeric_ShouldKeepDigits(t *testing.T) {
	m, ok := Parse(":irc.example.net 001 Alice :Welcome to the network")
	require.True(t, ok)

	assert.True(t, m.IsNumeric())
	assert.Equal(t, "001", m.Command)
	assert.Equal(t, "Alice", m.Arg(0))
	assert.Equal(t, "Welcome to the network", m.Arg(1))
	assert.Equal(t, "", m.Arg(5))
	assert.True(t, m.Prefix.IsServer())
}

func TestParse_WhenCommandLowercase_ShouldUppercase(t *testing.T) {
	m, ok := Parse("ping :token")
	require.True(t, ok)
	assert.Equal(t, "PING", m.Command)
	assert.Nil(t, m.Prefix)
	assert.Equal(t, "", m.Nick())
}

func TestParse_WhenInvalid_ShouldFail(t *testing.T) {
	for _, line := range []string{"", "   ", ":prefix.only", "@a=b", "12 foo", "1234 foo", "PRIV-MSG x"} {
		_, ok := Parse(line)
		assert.False(t, ok, line)
	}
}

func TestParse_WhenEmptyTrailing_ShouldBePresent(t *testing.T) {
	m, ok := Parse("TOPIC #c :")
	require.True(t, ok)
	require.NotNil(t, m.Trailing)
	assert.Equal(t, "", *m.Trailing)
	assert.Equal(t, []string{"#c", ""}, m.Args())
}

func TestParsePrefix(t *testing.T) {
	p := ParsePrefix("nick!~user@host.example")
	assert.Equal(t, "nick", p.Nick)
	assert.Equal(t, "~user", p.User)
	assert.Equal(t, "host.example", p.Host)
	assert.False(t, p.IsServer())

	p = ParsePrefix("nick@host")
	assert.Equal(t, "nick", p.Nick)
	assert.Equal(t, "host", p.Host)
}

func TestBuild_ShouldProduceParseableLines(t *testing.T) {
	line, err := Build("PRIVMSG", "#go", "hello there")
	require.NoError(t, err)
	assert.NotContains(t, line, "\r")

	m, ok := Parse(line)
	require.True(t, ok)
	assert.Equal(t, "PRIVMSG", m.Command)
	assert.Equal(t, "#go", m.Arg(0))
	assert.Equal(t, "hello there", m.Last())

	line, err = Build("CAP", "LS", "302")
	require.NoError(t, err)
	assert.Equal(t, "CAP LS 302", line)

	line, err = Build("TOPIC", "#go", "")
	require.NoError(t, err)
	m, ok = Parse(line)
	require.True(t, ok)
	require.NotNil(t, m.Trailing)
	assert.Equal(t, "", *m.Trailing)
}
