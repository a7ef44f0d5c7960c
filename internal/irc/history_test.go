package irc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matt0x6f/irc-engine/internal/config"
	"github.com/matt0x6f/irc-engine/internal/events"
)

func enableCaps(s *session, caps string) {
	feed(s, ":srv CAP * LS :"+caps, ":srv CAP * ACK :"+caps)
	sent(s)
}

func TestHistory_SelfJoin_ShouldRequestChathistoryOnce(t *testing.T) {
	s, _ := newTestSession(t, func(c *config.Config) {
		c.Caps = config.Caps{Chathistory: true}
		c.HistoryLimit = 50
	})
	enableCaps(s, "draft/chathistory")

	feed(s, ":alice!al@host JOIN #go")
	assert.Equal(t, []string{"CHATHISTORY LATEST #go * 50"}, sent(s))

	feed(s, ":alice!al@host PART #go", ":alice!al@host JOIN #GO")
	assert.Empty(t, sent(s))
}

func TestHistory_Bouncer_ShouldRequestPlaybackSinceLastSeen(t *testing.T) {
	store := NewMemoryStore()
	s, _ := newTestSession(t, func(c *config.Config) { c.Bouncer = true })
	s.e.store = store
	store.MarkSeen("127.0.0.1", "#go", time.Unix(1714560000, 0))
	enableCaps(s, "znc.in/playback znc.in/self-message")

	feed(s, ":alice!al@host JOIN #go,#rust")

	assert.Equal(t, []string{
		"PRIVMSG *playback :PLAY #go 1714560000 " + unixString(testNow),
		"PRIVMSG *playback :PLAY #rust 0 " + unixString(testNow),
	}, sent(s))
}

func TestHistory_PlaybackTimestamp_ShouldBeInterceptedAndStored(t *testing.T) {
	s, rec := newTestSession(t)

	feed(s, ":*playback!znc@znc.in PRIVMSG alice :TIMESTAMP #go 1714560000.5")

	assert.Empty(t, ofType[events.ChatMessage](rec.Events()))
	got, ok := s.e.store.LastSeen("127.0.0.1", "#go")
	require.True(t, ok)
	assert.Equal(t, int64(1714560000500), got.UnixMilli())
}

func TestHistory_Batch_ShouldClassifyMembersAsHistory(t *testing.T) {
	s, rec := newTestSession(t)

	feed(s,
		":srv BATCH +h1 chathistory #go",
		":srv BATCH +n1 netsplit irc.a irc.b",
		"@batch=h1;time=2024-05-01T11:59:59.000Z :bob!b@host PRIVMSG #go :from the past",
		"@batch=n1 :carol!c@host QUIT :irc.a irc.b",
		":srv BATCH -h1",
		"@batch=h1 :bob!b@host PRIVMSG #go :batch already closed",
	)

	msgs := ofType[events.ChatMessage](rec.Events())
	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].History)
	assert.Equal(t, "from the past", msgs[0].Text)
	assert.False(t, msgs[1].History)

	quits := ofType[events.Quit](rec.Events())
	require.Len(t, quits, 1)
	assert.False(t, quits[0].History)
	assert.NotContains(t, s.batches, "h1")
	assert.Contains(t, s.batches, "n1")
}

func TestHistory_Heuristic_ShouldUseServerTimeInsideWindow(t *testing.T) {
	s, rec := newTestSession(t)
	s.expectHistory("#go")

	old := testNow.Add(-time.Minute).Format(time.RFC3339Nano)
	recent := testNow.Add(-5 * time.Second).Format(time.RFC3339Nano)
	feed(s,
		"@time="+old+" :bob!b@host PRIVMSG #go :old",
		"@time="+recent+" :bob!b@host PRIVMSG #go :recent",
		":bob!b@host PRIVMSG #go :untagged",
		"@time="+old+" :bob!b@host PRIVMSG #other :elsewhere",
	)

	msgs := ofType[events.ChatMessage](rec.Events())
	require.Len(t, msgs, 4)
	assert.True(t, msgs[0].History)
	assert.False(t, msgs[1].History)
	assert.False(t, msgs[2].History)
	assert.False(t, msgs[3].History)
}

func TestHistory_Heuristic_ShouldExpireAfterWindow(t *testing.T) {
	s, rec := newTestSession(t)
	s.expect[s.isupport.fold("#go")] = testNow.Add(-time.Second)

	feed(s, "@time=2024-05-01T10:00:00Z :bob!b@host PRIVMSG #go :late")

	msgs := ofType[events.ChatMessage](rec.Events())
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].History)
	assert.Empty(t, s.expect)
}

func TestHistory_BatchTag_ShouldWinOverHeuristic(t *testing.T) {
	s, rec := newTestSession(t)
	s.expectHistory("#go")

	feed(s,
		":srv BATCH +live labeled-response",
		"@batch=live;time=2024-05-01T10:00:00Z :bob!b@host PRIVMSG #go :labeled",
	)

	msgs := ofType[events.ChatMessage](rec.Events())
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].History)
}

func TestHistory_HistoryJoin_ShouldNotChangeMembership(t *testing.T) {
	s, rec := newTestSession(t)

	feed(s,
		":srv BATCH +p1 znc.in/playback",
		"@batch=p1 :alice!al@host JOIN #old",
		":srv BATCH -p1",
	)

	joins := ofType[events.Joined](rec.Events())
	require.Len(t, joins, 1)
	assert.True(t, joins[0].History)
	assert.Empty(t, s.channels)
}

func TestMemoryStore_ShouldOnlyMoveForward(t *testing.T) {
	store := NewMemoryStore()
	t1 := time.Unix(100, 0)
	store.MarkSeen("net", "#c", t1.Add(time.Second))
	store.MarkSeen("net", "#c", t1)

	got, ok := store.LastSeen("net", "#c")
	require.True(t, ok)
	assert.Equal(t, t1.Add(time.Second), got)

	_, ok = store.LastSeen("net", "#d")
	assert.False(t, ok)
}
