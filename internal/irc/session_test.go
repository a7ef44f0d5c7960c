package irc

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matt0x6f/irc-engine/internal/config"
	"github.com/matt0x6f/irc-engine/internal/events"
	"github.com/matt0x6f/irc-engine/internal/logger"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = 6667
	cfg.TLS = config.TLS{AllowPlaintext: true}
	cfg.Identity = config.Identity{Nick: "alice", AltNick: "alice2", Username: "al", Realname: "Alice Liddell"}
	cfg.Caps = config.Caps{}
	return cfg
}

// newTestSession builds a session with no transport. Outbound lines stay in
// the queue for sent to collect.
func newTestSession(t *testing.T, mutate ...func(*config.Config)) (*session, *events.Recorder) {
	t.Helper()
	cfg := testConfig()
	for _, f := range mutate {
		f(&cfg)
	}
	rec := &events.Recorder{}
	e := New(cfg, rec, WithLogger(logger.Nop()), WithClock(func() time.Time { return testNow }))
	s := e.newSession(newAttempt(nil))
	s.neg.Begin()
	return s, rec
}

func sent(s *session) []string {
	var lines []string
	for {
		select {
		case line := <-s.a.out.ch:
			lines = append(lines, line)
		default:
			return lines
		}
	}
}

func feed(s *session, lines ...string) {
	for _, line := range lines {
		s.handleLine(line)
	}
}

func ofType[T events.Event](evs []events.Event) []T {
	var out []T
	for _, ev := range evs {
		if v, ok := ev.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func TestSession_Welcome_ShouldAdoptNickAndRegister(t *testing.T) {
	s, rec := newTestSession(t)

	feed(s, ":irc.example.net 001 Alice :Welcome to the network, Alice")

	assert.Equal(t, "Alice", s.nick)
	assert.True(t, s.registered)
	regs := ofType[events.Registered](rec.Events())
	require.Len(t, regs, 1)
	assert.Equal(t, "Alice", regs[0].Nick)
}

func TestSession_Welcome_ShouldAutoJoin(t *testing.T) {
	s, _ := newTestSession(t, func(c *config.Config) {
		c.AutoJoin = []string{"#go", "#secret key"}
	})

	feed(s, ":srv 001 alice :Welcome")

	assert.Equal(t, []string{"JOIN #go", "JOIN #secret key"}, sent(s))
}

func TestSession_EveryLine_ShouldBeEmittedRaw(t *testing.T) {
	s, rec := newTestSession(t)

	feed(s, ":irc.example.net NOTICE * :*** Looking up your hostname", ":only.a.prefix")

	raws := ofType[events.RawLine](rec.Events())
	require.Len(t, raws, 2)
	assert.False(t, raws[0].Outbound)
	notices := ofType[events.Notice](rec.Events())
	require.Len(t, notices, 1)
	assert.True(t, notices[0].FromServer)
}

func TestSession_UnhandledNumeric_ShouldRenderGenericText(t *testing.T) {
	s, rec := newTestSession(t)

	feed(s, ":srv 421 Alice BOGUS :Unknown command")

	texts := ofType[events.ServerText](rec.Events())
	require.Len(t, texts, 1)
	assert.Equal(t, "421", texts[0].Code)
	assert.Equal(t, "[421] BOGUS: Unknown command", texts[0].Text)
}

func TestSession_SpecializedNumerics_ShouldNotRenderGenericText(t *testing.T) {
	s, rec := newTestSession(t)

	feed(s,
		":srv 332 alice #go :Go programming",
		":srv 366 alice #go :End of /NAMES list.",
		":srv 904 alice :SASL authentication failed",
	)

	assert.Empty(t, ofType[events.ServerText](rec.Events()))
	assert.Len(t, ofType[events.TopicInfo](rec.Events()), 1)
	assert.Len(t, ofType[events.NamesEnd](rec.Events()), 1)
}

func TestSession_Mode_ShouldEmitOneEventPerRankChange(t *testing.T) {
	s, rec := newTestSession(t)

	feed(s,
		":srv 005 alice PREFIX=(ov)@+ CHANTYPES=# :are supported by this server",
		":op!o@host MODE #c +ov Bob Carol",
	)

	modes := ofType[events.ChannelUserMode](rec.Events())
	require.Len(t, modes, 2)
	assert.Equal(t, "Bob", modes[0].Nick)
	assert.Equal(t, '@', modes[0].Symbol)
	assert.True(t, modes[0].Added)
	assert.Equal(t, "Carol", modes[1].Nick)
	assert.Equal(t, '+', modes[1].Symbol)
	assert.True(t, modes[1].Added)

	summaries := ofType[events.ModeChanged](rec.Events())
	require.Len(t, summaries, 1)
	assert.Equal(t, "op sets mode +ov Bob Carol", summaries[0].Text)
}

func TestSession_Mode_ShouldSkipParamsOfOtherModes(t *testing.T) {
	s, rec := newTestSession(t)

	feed(s,
		":srv 005 alice PREFIX=(qaohv)~&@%+ CHANMODES=beI,k,l,imnst :are supported",
		":op!o@host MODE #c +klb-h secret 10 *!*@bad Dave",
	)

	modes := ofType[events.ChannelUserMode](rec.Events())
	require.Len(t, modes, 1)
	assert.Equal(t, "Dave", modes[0].Nick)
	assert.Equal(t, '%', modes[0].Symbol)
	assert.False(t, modes[0].Added)
}

func TestSession_OwnUserMode_ShouldTrackOperStatus(t *testing.T) {
	s, rec := newTestSession(t)

	feed(s, ":alice MODE alice :+o", ":alice MODE alice :+o", ":alice MODE alice :-o")

	opers := ofType[events.OperStatus](rec.Events())
	require.Len(t, opers, 2)
	assert.True(t, opers[0].Oper)
	assert.False(t, opers[1].Oper)
}

func TestSession_JoinList_ShouldEmitOneEventPerChannel(t *testing.T) {
	s, rec := newTestSession(t)

	feed(s, ":alice!al@host JOIN #a,#b")

	joins := ofType[events.Joined](rec.Events())
	require.Len(t, joins, 2)
	assert.Equal(t, "#a", joins[0].Channel)
	assert.Equal(t, "#b", joins[1].Channel)
	for _, j := range joins {
		assert.True(t, j.Self)
		assert.False(t, j.History)
	}
	assert.Len(t, s.channels, 2)
}

func TestSession_ExtendedJoin_ShouldCarryAccount(t *testing.T) {
	s, rec := newTestSession(t)

	feed(s, ":bob!b@host JOIN #go bobacct :Bob Builder", ":carol!c@host JOIN #go * :Carol")

	joins := ofType[events.Joined](rec.Events())
	require.Len(t, joins, 2)
	assert.Equal(t, "bobacct", joins[0].Account)
	assert.Equal(t, "Bob Builder", joins[0].Realname)
	assert.Empty(t, joins[1].Account)
	assert.Empty(t, s.channels)
}

func TestSession_PartKickQuit_ShouldMaintainChannels(t *testing.T) {
	s, rec := newTestSession(t)

	feed(s,
		":alice!al@host JOIN #a,#b,#c",
		":alice!al@host PART #a :bye",
		":op!o@host KICK #b alice :out",
	)
	assert.Equal(t, map[string]string{"#c": "#c"}, s.channels)

	feed(s, ":alice!al@host QUIT :gone")
	assert.Empty(t, s.channels)

	assert.Len(t, ofType[events.Parted](rec.Events()), 1)
	kicks := ofType[events.Kicked](rec.Events())
	require.Len(t, kicks, 1)
	assert.True(t, kicks[0].Self)
	assert.Equal(t, "op", kicks[0].By)
}

func TestSession_MalformedPart_ShouldReportError(t *testing.T) {
	s, rec := newTestSession(t)

	feed(s, ":bob!b@host PART")

	errs := ofType[events.Error](rec.Events())
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Text, "Malformed PART")
}

func TestSession_Nick_ShouldFollowOwnRenameUnderCasemapping(t *testing.T) {
	s, rec := newTestSession(t, func(c *config.Config) { c.Identity.Nick = "al[ice]" })

	feed(s, ":AL{ICE}!u@h NICK :alice_", ":bob!b@h NICK bobby")

	assert.Equal(t, "alice_", s.nick)
	nicks := ofType[events.NickChanged](rec.Events())
	require.Len(t, nicks, 2)
	assert.True(t, nicks[0].Self)
	assert.False(t, nicks[1].Self)
}

func TestSession_Ping_ShouldAnswerImmediately(t *testing.T) {
	s, rec := newTestSession(t)

	feed(s, "PING :irc.example.net")

	assert.Equal(t, []string{"PONG irc.example.net"}, sent(s))
	evs := rec.Events()
	require.Len(t, evs, 2)
	assert.IsType(t, events.RawLine{}, evs[0])
	assert.True(t, evs[1].(events.RawLine).Outbound)
}

func TestSession_Pong_ShouldReportLagForOutstandingProbe(t *testing.T) {
	s, rec := newTestSession(t)
	s.lag = &lagProbe{token: "token-1", sent: time.Now().Add(-50 * time.Millisecond)}

	feed(s, ":srv PONG srv :other", ":srv PONG srv :token-1")

	lags := ofType[events.Lag](rec.Events())
	require.Len(t, lags, 1)
	assert.GreaterOrEqual(t, lags[0].RTT, 50*time.Millisecond)
	assert.Nil(t, s.lag)
	select {
	case <-s.a.answered:
	default:
		t.Fatal("liveness was not notified")
	}
}

func TestSession_NickInUse_ShouldTryAltThenRandomSuffix(t *testing.T) {
	s, rec := newTestSession(t)

	feed(s, ":srv 433 * alice :Nickname is already in use")
	assert.Equal(t, []string{"NICK alice2"}, sent(s))

	feed(s, ":srv 433 * alice2 :Nickname is already in use")
	lines := sent(s)
	require.Len(t, lines, 1)
	assert.Regexp(t, regexp.MustCompile(`^NICK alice_\d{4}$`), lines[0])

	assert.Len(t, ofType[events.Status](rec.Events()), 2)
	assert.Empty(t, ofType[events.ServerText](rec.Events()))
}

func TestSession_NickInUseAfterRegistration_ShouldOnlyReport(t *testing.T) {
	s, rec := newTestSession(t)
	feed(s, ":srv 001 alice :Welcome")
	sent(s)

	feed(s, ":srv 433 alice bob :Nickname is already in use")

	assert.Empty(t, sent(s))
	errs := ofType[events.Error](rec.Events())
	require.Len(t, errs, 1)
	assert.Equal(t, "Nickname bob is already in use", errs[0].Text)
}

func TestSession_CapNegotiation_ShouldFlowThroughNegotiator(t *testing.T) {
	s, _ := newTestSession(t, func(c *config.Config) { c.Caps = config.Caps{ServerTime: true, Batch: true} })

	feed(s, ":srv CAP * LS * :server-time sasl", ":srv CAP * LS :batch")
	assert.Equal(t, []string{"CAP REQ :server-time batch"}, sent(s))

	feed(s, ":srv CAP * ACK :server-time batch")
	assert.Equal(t, []string{"CAP END"}, sent(s))
	assert.True(t, s.neg.Enabled("batch"))
}

func TestSession_ChatMessage_ShouldNormalizeStatusTarget(t *testing.T) {
	s, rec := newTestSession(t)
	feed(s, ":srv 005 alice STATUSMSG=@+ :are supported")

	feed(s, "@msgid=abc;account=bobacct :bob!b@host PRIVMSG @#go :ops only")

	msgs := ofType[events.ChatMessage](rec.Events())
	require.Len(t, msgs, 1)
	assert.Equal(t, "#go", msgs[0].Target)
	assert.Equal(t, "@", msgs[0].StatusPrefix)
	assert.Equal(t, "ops only", msgs[0].Text)
	assert.Equal(t, "abc", msgs[0].MsgID)
	assert.Equal(t, "bobacct", msgs[0].Account)
	assert.Equal(t, testNow, msgs[0].Time)
}

func TestSession_OwnMessageToSelf_ShouldBeSuppressed(t *testing.T) {
	s, rec := newTestSession(t)

	feed(s, ":alice!al@host PRIVMSG alice :note to self", ":alice!al@host PRIVMSG #go :hello")

	msgs := ofType[events.ChatMessage](rec.Events())
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Self)
	assert.Equal(t, "#go", msgs[0].Target)
}

func TestSession_CTCPRequest_ShouldAutoReply(t *testing.T) {
	s, rec := newTestSession(t)

	feed(s, ":bob!b@host PRIVMSG alice :\x01VERSION\x01")

	assert.Equal(t, []string{"NOTICE bob :\x01VERSION irc-engine\x01"}, sent(s))
	reqs := ofType[events.CTCPRequest](rec.Events())
	require.Len(t, reqs, 1)
	assert.Equal(t, "VERSION", reqs[0].Command)
}

func TestSession_CTCPPing_ShouldEchoArgument(t *testing.T) {
	s, _ := newTestSession(t)

	feed(s, ":bob!b@host PRIVMSG alice :\x01PING 12345\x01", ":bob!b@host PRIVMSG alice :\x01UNKNOWN\x01")

	assert.Equal(t, []string{"NOTICE bob :\x01PING 12345\x01"}, sent(s))
}

func TestSession_Action_ShouldBeChatMessage(t *testing.T) {
	s, rec := newTestSession(t)

	feed(s, ":bob!b@host PRIVMSG #go :\x01ACTION waves\x01")

	msgs := ofType[events.ChatMessage](rec.Events())
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Action)
	assert.Equal(t, "waves", msgs[0].Text)
	assert.Empty(t, sent(s))
}

func TestSession_CTCPReply_ShouldComeFromNotice(t *testing.T) {
	s, rec := newTestSession(t)

	feed(s, ":bob!b@host NOTICE alice :\x01VERSION HexChat 2.16\x01")

	replies := ofType[events.CTCPReply](rec.Events())
	require.Len(t, replies, 1)
	assert.Equal(t, "HexChat 2.16", replies[0].Args)
	assert.Empty(t, ofType[events.Notice](rec.Events()))
}

func TestSession_DCCSend_ShouldEmitOffer(t *testing.T) {
	s, rec := newTestSession(t)

	feed(s, ":bob!b@host PRIVMSG alice :\x01DCC SEND \"my file.txt\" 3232235777 5000 1024\x01")

	offers := ofType[events.DCCOffer](rec.Events())
	require.Len(t, offers, 1)
	assert.Equal(t, "my file.txt", offers[0].Filename)
	assert.Equal(t, "192.168.1.1", offers[0].Host)
	assert.Equal(t, 5000, offers[0].Port)
	assert.Equal(t, int64(1024), offers[0].Size)
	assert.Empty(t, sent(s))
}

func TestSession_WhoisRouting_ShouldTagRepliesUntilEnd(t *testing.T) {
	s, rec := newTestSession(t)
	s.whois[s.isupport.fold("Bob")] = "#help"

	feed(s,
		":srv 311 alice bob b host * :Bob Builder",
		":srv 318 alice bob :End of /WHOIS list.",
		":srv 311 alice bob b host * :Bob Builder",
	)

	texts := ofType[events.ServerText](rec.Events())
	require.Len(t, texts, 3)
	assert.Equal(t, "#help", texts[0].Buffer)
	assert.Equal(t, "[311] bob is b@host (Bob Builder)", texts[0].Text)
	assert.Equal(t, "#help", texts[1].Buffer)
	assert.Empty(t, texts[2].Buffer)
	assert.Empty(t, s.whois)
}

func TestSession_Names_ShouldSplitPrefixesAndHosts(t *testing.T) {
	s, rec := newTestSession(t)

	feed(s, ":srv 353 alice = #go :@+bob!b@host carol +dave")

	names := ofType[events.Names](rec.Events())
	require.Len(t, names, 1)
	assert.Equal(t, "#go", names[0].Channel)
	assert.Equal(t, []events.Member{
		{Nick: "bob", Prefixes: "@+", User: "b", Host: "host"},
		{Nick: "carol"},
		{Nick: "dave", Prefixes: "+"},
	}, names[0].Members)
}

func TestSession_ListNumerics_ShouldMapToEntries(t *testing.T) {
	s, rec := newTestSession(t)

	feed(s,
		":srv 367 alice #go *!*@spam op 1700000000",
		":srv 368 alice #go :End of Channel Ban List",
		":srv 728 alice #go q *!*@loud op 1700000001",
		":srv 729 alice #go q :End of Channel Quiet List",
	)

	entries := ofType[events.ListEntry](rec.Events())
	require.Len(t, entries, 2)
	assert.Equal(t, events.BanList, entries[0].List)
	assert.Equal(t, "*!*@spam", entries[0].Mask)
	assert.Equal(t, time.Unix(1700000000, 0), entries[0].SetAt)
	assert.Equal(t, events.QuietList, entries[1].List)
	assert.Equal(t, "*!*@loud", entries[1].Mask)
	assert.Equal(t, "op", entries[1].SetBy)

	ends := ofType[events.ListEntryEnd](rec.Events())
	require.Len(t, ends, 2)
	assert.Equal(t, events.QuietList, ends[1].List)
}

func TestSession_JoinErrors_ShouldCarryCode(t *testing.T) {
	s, rec := newTestSession(t)

	feed(s, ":srv 474 alice #closed :Cannot join channel (+b)")

	errs := ofType[events.JoinError](rec.Events())
	require.Len(t, errs, 1)
	assert.Equal(t, events.JoinError{Channel: "#closed", Code: "474", Reason: "Cannot join channel (+b)"}, errs[0])
}

func TestSession_ISupport_ShouldKeepPriorValuesForBlankTokens(t *testing.T) {
	s, rec := newTestSession(t)

	feed(s,
		":srv 005 alice CHANTYPES=#! CASEMAPPING=ascii NETWORK=Example :are supported",
		":srv 005 alice CHANTYPES= PREFIX :are supported",
	)

	assert.Equal(t, "#!", s.isupport.chanTypes)
	assert.Equal(t, CaseMappingASCII, s.isupport.caseMapping)
	snaps := ofType[events.ISupport](rec.Events())
	require.Len(t, snaps, 1)
	assert.Equal(t, "Example", snaps[0].Network)
}

func TestSession_OperBroadcast_ShouldPassThrough(t *testing.T) {
	s, rec := newTestSession(t)

	feed(s, ":oper!o@host WALLOPS :maintenance at noon")

	casts := ofType[events.OperBroadcast](rec.Events())
	require.Len(t, casts, 1)
	assert.Equal(t, events.OperBroadcast{Type: "WALLOPS", From: "oper!o@host", Text: "maintenance at noon"}, casts[0])
}

func TestSession_UnknownModeChar_ShouldReportWithoutChannel(t *testing.T) {
	s, rec := newTestSession(t)

	feed(s, ":srv 472 alice Z :is unknown mode char to me")

	errs := ofType[events.JoinError](rec.Events())
	require.Len(t, errs, 1)
	assert.Equal(t, events.JoinError{Code: "472", Reason: "Z is unknown mode char to me"}, errs[0])
	assert.Empty(t, ofType[events.ServerText](rec.Events()))
}

func TestSession_TruncatedNumerics_ShouldEmitNothing(t *testing.T) {
	for _, line := range []string{
		":srv 322",
		":srv 322 alice #go",
		":srv 333",
		":srv 333 alice #go bob",
	} {
		t.Run(line, func(t *testing.T) {
			s, rec := newTestSession(t)

			feed(s, line)

			assert.Empty(t, ofType[events.ListItem](rec.Events()))
			assert.Empty(t, ofType[events.TopicWhoTime](rec.Events()))
			assert.Empty(t, ofType[events.ServerText](rec.Events()))
		})
	}
}
