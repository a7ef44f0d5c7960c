package irc

import (
	"time"

	"github.com/matt0x6f/irc-engine/internal/events"
	"github.com/matt0x6f/irc-engine/internal/logger"
	"github.com/matt0x6f/irc-engine/internal/message"
)

// result collects what a handler produced. The loop emits the events and
// then sends the lines, in order.
type result struct {
	events []events.Event
	lines  []string
}

func (r *result) emit(ev events.Event) {
	r.events = append(r.events, ev)
}

func (r *result) command(command string, params ...string) {
	line, err := buildLine(command, params...)
	if err != nil {
		logger.Log.Warn().Err(err).Str("command", command).Msg("Dropping invalid outbound line")
		return
	}
	r.lines = append(r.lines, line)
}

// handlerFunc handles one message against the session state
type handlerFunc func(s *session, m *message.Message, r *result)

var commandHandlers = map[string]handlerFunc{
	"NICK":     handleNick,
	"PRIVMSG":  handlePrivmsg,
	"NOTICE":   handleNotice,
	"JOIN":     handleJoin,
	"PART":     handlePart,
	"KICK":     handleKick,
	"QUIT":     handleQuit,
	"TOPIC":    handleTopic,
	"MODE":     handleMode,
	"INVITE":   handleInvite,
	"ERROR":    handleError,
	"BATCH":    handleBatch,
	"WALLOPS":  handleOperBroadcast,
	"GLOBOPS":  handleOperBroadcast,
	"LOCOPS":   handleOperBroadcast,
	"OPERWALL": handleOperBroadcast,
	"SNOTICE":  handleOperBroadcast,
}

var numericHandlers = map[string]handlerFunc{
	"001": handleWelcome,
	"005": handleISupport,
	"321": handleListStart,
	"322": handleListItem,
	"323": handleListEnd,
	"324": handleChannelModeIs,
	"332": handleTopicInfo,
	"333": handleTopicWhoTime,
	"353": handleNames,
	"366": handleNamesEnd,
	"381": handleYoureOper,
	"433": handleNickInUse,

	"442": handleJoinError,
	"471": handleJoinError,
	"472": handleUnknownMode,
	"473": handleJoinError,
	"474": handleJoinError,
	"475": handleJoinError,
	"476": handleJoinError,
	"477": handleJoinError,

	"367": handleListEntry,
	"368": handleListEntry,
	"728": handleListEntry,
	"729": handleListEntry,
	"348": handleListEntry,
	"349": handleListEntry,
	"346": handleListEntry,
	"347": handleListEntry,

	"276": handleWhoisReply,
	"301": handleWhoisReply,
	"307": handleWhoisReply,
	"311": handleWhoisReply,
	"312": handleWhoisReply,
	"313": handleWhoisReply,
	"317": handleWhoisReply,
	"318": handleWhoisReply,
	"319": handleWhoisReply,
	"320": handleWhoisReply,
	"330": handleWhoisReply,
	"338": handleWhoisReply,
	"378": handleWhoisReply,
	"379": handleWhoisReply,
	"401": handleWhoisReply,
	"671": handleWhoisReply,
}

// negotiatorNumerics are reported by the CAP/SASL negotiator
var negotiatorNumerics = map[string]bool{
	"900": true, "901": true, "902": true, "903": true, "904": true,
	"905": true, "906": true, "907": true, "908": true,
}

// specialized reports whether a numeric already gets structured handling and
// must not also be rendered as generic text
func specialized(code string) bool {
	_, ok := numericHandlers[code]
	return ok || negotiatorNumerics[code]
}

func (s *session) dispatch(m *message.Message) {
	var r result
	if h, ok := commandHandlers[m.Command]; ok {
		h(s, m, &r)
	} else if m.IsNumeric() {
		if h, ok := numericHandlers[m.Command]; ok {
			h(s, m, &r)
		} else if !specialized(m.Command) {
			r.emit(events.ServerText{Code: m.Command, Text: "[" + m.Command + "] " + formatNumeric(m)})
		}
	}
	s.apply(&r)
}

func (s *session) apply(r *result) {
	for _, ev := range r.events {
		s.emit(ev)
	}
	for _, line := range r.lines {
		s.send(line)
	}
}

func (s *session) isSelf(nick string) bool {
	return nick != "" && s.isupport.fold(nick) == s.isupport.fold(s.nick)
}

// messageTime is the server-time of m, or now
func (s *session) messageTime(m *message.Message) time.Time {
	if t, ok := m.Time(); ok {
		return t
	}
	return s.e.now()
}
