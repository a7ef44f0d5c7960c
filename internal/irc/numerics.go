package irc

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/matt0x6f/irc-engine/internal/events"
	"github.com/matt0x6f/irc-engine/internal/message"
)

func handleWelcome(s *session, m *message.Message, r *result) {
	if nick := m.Arg(0); nick != "" {
		s.nick = nick
	}
	s.registered = true
	s.log.Info().Str("nick", s.nick).Strs("caps", s.neg.EnabledCaps()).Msg("Registered")
	r.emit(events.Registered{Nick: s.nick, Text: m.Last()})

	for _, entry := range s.e.cfg.AutoJoin {
		// "#channel key"
		fields := strings.Fields(entry)
		if len(fields) == 0 {
			continue
		}
		r.command("JOIN", fields...)
	}
}

func handleISupport(s *session, m *message.Message, r *result) {
	args := m.Args()
	if len(args) < 2 {
		return
	}
	tokens := args[1:]
	if m.Trailing != nil {
		// The trailing param is "are supported by this server"
		tokens = tokens[:len(tokens)-1]
	}
	if !s.isupport.apply(tokens) {
		return
	}
	snap := s.isupport.snapshot()
	s.log.Debug().
		Str("chantypes", snap.ChanTypes).
		Str("casemapping", snap.CaseMapping).
		Str("statusmsg", snap.StatusMsg).
		Msg("Server dialect updated")
	r.emit(snap)
}

func handleListStart(s *session, m *message.Message, r *result) {
	r.emit(events.ListStart{})
}

// handleListItem parses "322 me #chan 12 :topic"
func handleListItem(s *session, m *message.Message, r *result) {
	args := m.Args()
	if len(args) < 3 {
		return
	}
	users, _ := strconv.Atoi(args[2])
	r.emit(events.ListItem{Channel: args[1], Users: users, Topic: m.Arg(3)})
}

func handleListEnd(s *session, m *message.Message, r *result) {
	r.emit(events.ListEnd{})
}

func handleChannelModeIs(s *session, m *message.Message, r *result) {
	args := m.Args()
	if len(args) < 3 {
		return
	}
	r.emit(events.ChannelModeIs{Channel: args[1], Modes: args[2], Args: append([]string(nil), args[3:]...)})
}

func handleTopicInfo(s *session, m *message.Message, r *result) {
	r.emit(events.TopicInfo{Channel: m.Arg(1), Topic: m.Arg(2)})
}

func handleTopicWhoTime(s *session, m *message.Message, r *result) {
	args := m.Args()
	if len(args) < 4 {
		return
	}
	r.emit(events.TopicWhoTime{Channel: args[1], SetBy: args[2], SetAt: parseUnix(args[3])})
}

// handleNames parses "353 me = #chan :@alice +bob carol"
func handleNames(s *session, m *message.Message, r *result) {
	args := m.Args()
	if len(args) < 3 {
		return
	}
	channel := args[len(args)-2]
	var members []events.Member
	for _, entry := range strings.Fields(args[len(args)-1]) {
		members = append(members, s.parseMember(entry))
	}
	r.emit(events.Names{Channel: channel, Members: members})
}

// parseMember splits rank symbols and, with userhost-in-names, user@host
func (s *session) parseMember(entry string) events.Member {
	var member events.Member
	n := 0
	for n < len(entry) && s.isupport.isPrefixSymbol(rune(entry[n])) {
		n++
	}
	member.Prefixes = entry[:n]
	rest := entry[n:]
	if i := strings.IndexByte(rest, '@'); i >= 0 {
		member.Host = rest[i+1:]
		rest = rest[:i]
	}
	if i := strings.IndexByte(rest, '!'); i >= 0 {
		member.User = rest[i+1:]
		rest = rest[:i]
	}
	member.Nick = rest
	return member
}

func handleNamesEnd(s *session, m *message.Message, r *result) {
	r.emit(events.NamesEnd{Channel: m.Arg(1)})
}

func handleYoureOper(s *session, m *message.Message, r *result) {
	s.oper = true
	r.emit(events.OperStatus{Oper: true, Text: m.Last()})
}

// handleNickInUse reports 433 once registered; before that the loop retries
func handleNickInUse(s *session, m *message.Message, r *result) {
	r.emit(events.Error{Text: fmt.Sprintf("Nickname %s is already in use", m.Arg(1))})
}

func handleJoinError(s *session, m *message.Message, r *result) {
	r.emit(events.JoinError{Channel: m.Arg(1), Code: m.Command, Reason: m.Last()})
}

// handleUnknownMode reports 472, which names a mode character instead of a
// channel
func handleUnknownMode(s *session, m *message.Message, r *result) {
	r.emit(events.JoinError{Code: m.Command, Reason: m.Arg(1) + " " + m.Last()})
}

// listNumerics describes the mask list numerics. Quiet lists (728/729) carry
// the mode letter before the mask.
var listNumerics = map[string]struct {
	list events.ModeList
	end  bool
	mask int
}{
	"367": {events.BanList, false, 2},
	"368": {events.BanList, true, 0},
	"728": {events.QuietList, false, 3},
	"729": {events.QuietList, true, 0},
	"348": {events.ExceptionList, false, 2},
	"349": {events.ExceptionList, true, 0},
	"346": {events.InviteExceptionList, false, 2},
	"347": {events.InviteExceptionList, true, 0},
}

func handleListEntry(s *session, m *message.Message, r *result) {
	kind, ok := listNumerics[m.Command]
	if !ok {
		return
	}
	channel := m.Arg(1)
	if kind.end {
		r.emit(events.ListEntryEnd{List: kind.list, Channel: channel})
		return
	}
	r.emit(events.ListEntry{
		List:    kind.list,
		Channel: channel,
		Mask:    m.Arg(kind.mask),
		SetBy:   m.Arg(kind.mask + 1),
		SetAt:   parseUnix(m.Arg(kind.mask + 2)),
	})
}

// handleWhoisReply renders a WHOIS-family numeric into the buffer that asked
// for it, if any
func handleWhoisReply(s *session, m *message.Message, r *result) {
	key := s.isupport.fold(m.Arg(1))
	buffer := s.whois[key]
	r.emit(events.ServerText{
		Code:   m.Command,
		Text:   "[" + m.Command + "] " + formatNumeric(m),
		Buffer: buffer,
	})
	if m.Command == "318" || m.Command == "401" {
		delete(s.whois, key)
	}
}

func parseUnix(s string) time.Time {
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0)
}

// numericFormats renders numerics that read better than their raw params.
// Every formatter receives the args without our own nick.
var numericFormats = map[string]func(a []string) string{
	// MOTD
	"372": motdLine,
	"375": motdLine,
	"376": motdLine,
	// Admin
	"256": lastArg,
	"257": lastArg,
	"258": lastArg,
	"259": lastArg,
	// WHOIS
	"301": func(a []string) string { return fmt.Sprintf("%s is away: %s", at(a, 0), lastArg(a)) },
	"311": func(a []string) string {
		return fmt.Sprintf("%s is %s@%s (%s)", at(a, 0), at(a, 1), at(a, 2), lastArg(a))
	},
	"312": func(a []string) string { return fmt.Sprintf("%s is connected to %s (%s)", at(a, 0), at(a, 1), lastArg(a)) },
	"317": formatIdle,
	"318": func(a []string) string { return "End of WHOIS for " + at(a, 0) },
	"319": func(a []string) string { return fmt.Sprintf("%s is on %s", at(a, 0), lastArg(a)) },
	"330": func(a []string) string { return fmt.Sprintf("%s is logged in as %s", at(a, 0), at(a, 1)) },
	"338": func(a []string) string { return fmt.Sprintf("%s is actually %s", at(a, 0), at(a, 1)) },
}

// formatNumeric renders a numeric reply as readable text
func formatNumeric(m *message.Message) string {
	args := m.Args()
	if len(args) > 0 {
		// Drop our own nick
		args = args[1:]
	}
	if f, ok := numericFormats[m.Command]; ok {
		return f(args)
	}
	if len(args) > 1 && (m.Command[0] == '4' || m.Command[0] == '5') {
		return strings.Join(args[:len(args)-1], " ") + ": " + args[len(args)-1]
	}
	return strings.Join(args, " ")
}

func at(a []string, i int) string {
	if i < len(a) {
		return a[i]
	}
	return ""
}

func lastArg(a []string) string {
	if len(a) == 0 {
		return ""
	}
	return a[len(a)-1]
}

func motdLine(a []string) string {
	return strings.TrimPrefix(lastArg(a), "- ")
}

func formatIdle(a []string) string {
	text := fmt.Sprintf("%s has been idle", at(a, 0))
	if secs, err := strconv.Atoi(at(a, 1)); err == nil {
		text += " " + (time.Duration(secs) * time.Second).String()
	}
	if signon := parseUnix(at(a, 2)); !signon.IsZero() {
		text += ", signed on " + signon.UTC().Format(time.RFC1123)
	}
	return text
}
