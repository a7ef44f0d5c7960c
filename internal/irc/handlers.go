package irc

import (
	"fmt"
	"strings"
	"time"

	"github.com/matt0x6f/irc-engine/internal/events"
	"github.com/matt0x6f/irc-engine/internal/message"
)

func handleNick(s *session, m *message.Message, r *result) {
	oldNick := m.Nick()
	newNick := m.Arg(0)
	if oldNick == "" || newNick == "" {
		return
	}
	self := s.isSelf(oldNick)
	if self {
		s.nick = newNick
		s.log.Info().Str("nick", newNick).Msg("Nickname changed")
	}
	r.emit(events.NickChanged{Old: oldNick, New: newNick, Self: self, Time: s.messageTime(m)})
}

func handlePrivmsg(s *session, m *message.Message, r *result) {
	handleMessage(s, m, r, false)
}

func handleNotice(s *session, m *message.Message, r *result) {
	handleMessage(s, m, r, true)
}

func handleMessage(s *session, m *message.Message, r *result, notice bool) {
	args := m.Args()
	if len(args) < 2 {
		return
	}
	target, text := args[0], args[1]
	from := m.Nick()

	if s.handlePlaybackControl(from, text) {
		return
	}

	statusPrefix, bare := s.isupport.splitStatus(target)
	self := s.isSelf(from)

	// Our own message to ourselves would otherwise show up twice
	if self && s.isSelf(bare) {
		return
	}

	buffer := bare
	if s.isSelf(bare) {
		buffer = from
	}
	history := s.isHistory(m, buffer)
	ts := s.messageTime(m)

	if command, ctcpArgs, ok := parseCTCP(text); ok {
		switch {
		case notice:
			r.emit(events.CTCPReply{From: from, Command: command, Args: ctcpArgs})
		case command == "ACTION":
			r.emit(events.ChatMessage{
				Target:       bare,
				From:         from,
				Text:         ctcpArgs,
				StatusPrefix: statusPrefix,
				Action:       true,
				Self:         self,
				History:      history,
				Time:         ts,
				MsgID:        tagValue(m, "msgid"),
				Account:      tagValue(m, "account"),
			})
			s.seen(bare, ts)
		default:
			r.emit(events.CTCPRequest{From: from, Target: bare, Command: command, Args: ctcpArgs, Time: ts})
			if command == "DCC" {
				if offer, ok := parseDCC(from, ctcpArgs); ok {
					r.emit(offer)
				}
			}
			if !self && !history {
				s.replyCTCP(from, command, ctcpArgs, r)
			}
		}
		return
	}

	if notice {
		r.emit(events.Notice{
			Target:       bare,
			From:         from,
			Text:         text,
			StatusPrefix: statusPrefix,
			FromServer:   m.Prefix == nil || m.Prefix.IsServer(),
			Self:         self,
			History:      history,
			Time:         ts,
		})
		return
	}

	r.emit(events.ChatMessage{
		Target:       bare,
		From:         from,
		Text:         text,
		StatusPrefix: statusPrefix,
		Self:         self,
		History:      history,
		Time:         ts,
		MsgID:        tagValue(m, "msgid"),
		Account:      tagValue(m, "account"),
	})
	s.seen(bare, ts)
}

// seen advances the playback mark for channel traffic
func (s *session) seen(target string, ts time.Time) {
	if s.isupport.isChannel(target) {
		s.markSeen(target, ts)
	}
}

func tagValue(m *message.Message, key string) string {
	v, _ := m.Tag(key)
	return v
}

func handleJoin(s *session, m *message.Message, r *result) {
	args := m.Args()
	if len(args) == 0 {
		return
	}
	nick := m.Nick()
	self := s.isSelf(nick)

	// extended-join: JOIN #chan account :realname
	var account, realname string
	if len(args) >= 3 {
		if args[1] != "*" {
			account = args[1]
		}
		realname = args[2]
	}

	ts := s.messageTime(m)
	for _, channel := range strings.Split(args[0], ",") {
		if channel == "" {
			continue
		}
		history := s.isHistory(m, channel)
		if self && !history {
			s.channels[s.isupport.fold(channel)] = channel
		}
		r.emit(events.Joined{
			Channel:  channel,
			Nick:     nick,
			Account:  account,
			Realname: realname,
			Self:     self,
			History:  history,
			Time:     ts,
		})
		if self && !history {
			s.requestHistory(channel, r)
		}
	}
}

func handlePart(s *session, m *message.Message, r *result) {
	nick := m.Nick()
	list := m.Arg(0)
	if list == "" {
		r.emit(events.Error{Text: fmt.Sprintf("Malformed PART from %s", nick)})
		return
	}
	var reason string
	if len(m.Args()) > 1 {
		reason = m.Arg(1)
	}

	self := s.isSelf(nick)
	ts := s.messageTime(m)
	for _, channel := range strings.Split(list, ",") {
		if channel == "" {
			r.emit(events.Error{Text: fmt.Sprintf("Malformed PART channel list from %s: %q", nick, list)})
			continue
		}
		history := s.isHistory(m, channel)
		if self && !history {
			delete(s.channels, s.isupport.fold(channel))
		}
		r.emit(events.Parted{Channel: channel, Nick: nick, Reason: reason, Self: self, History: history, Time: ts})
	}
}

func handleKick(s *session, m *message.Message, r *result) {
	args := m.Args()
	if len(args) < 2 {
		return
	}
	channel, kicked := args[0], args[1]
	var reason string
	if len(args) > 2 {
		reason = args[2]
	}

	self := s.isSelf(kicked)
	history := s.isHistory(m, channel)
	if self && !history {
		delete(s.channels, s.isupport.fold(channel))
	}
	r.emit(events.Kicked{
		Channel: channel,
		Nick:    kicked,
		By:      m.Nick(),
		Reason:  reason,
		Self:    self,
		History: history,
		Time:    s.messageTime(m),
	})
}

func handleQuit(s *session, m *message.Message, r *result) {
	nick := m.Nick()
	self := s.isSelf(nick)
	history := s.isHistory(m, nick)
	if self && !history {
		clear(s.channels)
	}
	r.emit(events.Quit{Nick: nick, Reason: m.Arg(0), Self: self, History: history, Time: s.messageTime(m)})
}

func handleTopic(s *session, m *message.Message, r *result) {
	channel := m.Arg(0)
	if channel == "" {
		return
	}
	r.emit(events.Topic{
		Channel: channel,
		Topic:   m.Arg(1),
		By:      m.Nick(),
		History: s.isHistory(m, channel),
		Time:    s.messageTime(m),
	})
}

func handleMode(s *session, m *message.Message, r *result) {
	args := m.Args()
	if len(args) < 2 {
		return
	}
	target, modes, params := args[0], args[1], args[2:]
	by := m.Nick()
	if by == "" {
		by = m.Source()
	}
	summary := events.ModeChanged{Target: target, By: by, Modes: modes, Args: params}

	if !s.isupport.isChannel(target) {
		if s.isSelf(target) {
			s.userModes(modes, r)
		}
		summary.Text = fmt.Sprintf("%s sets mode %s on %s", by, strings.Join(args[1:], " "), target)
		r.emit(summary)
		return
	}

	adding := true
	next := 0
	for _, mode := range modes {
		switch mode {
		case '+':
			adding = true
			continue
		case '-':
			adding = false
			continue
		}
		if !s.isupport.modeTakesParam(mode, adding) || next >= len(params) {
			continue
		}
		param := params[next]
		next++
		if symbol, ok := s.isupport.symbolFor(mode); ok {
			r.emit(events.ChannelUserMode{
				Channel: target,
				Nick:    param,
				Mode:    mode,
				Symbol:  symbol,
				Added:   adding,
				By:      by,
			})
		}
	}

	summary.Text = fmt.Sprintf("%s sets mode %s", by, strings.Join(args[1:], " "))
	r.emit(summary)
}

// userModes tracks our own operator status from +o/-o
func (s *session) userModes(modes string, r *result) {
	adding := true
	for _, mode := range modes {
		switch mode {
		case '+':
			adding = true
		case '-':
			adding = false
		case 'o', 'O':
			if s.oper == adding {
				continue
			}
			s.oper = adding
			text := "You are no longer an IRC operator"
			if adding {
				text = "You are now an IRC operator"
			}
			r.emit(events.OperStatus{Oper: adding, Text: text})
		}
	}
}

func handleInvite(s *session, m *message.Message, r *result) {
	nick, channel := m.Arg(0), m.Arg(1)
	if channel == "" {
		return
	}
	r.emit(events.Invited{Channel: channel, By: m.Nick(), Nick: nick, Self: s.isSelf(nick)})
}

func handleError(s *session, m *message.Message, r *result) {
	r.emit(events.Status{Text: "ERROR: " + m.Last()})
}

func handleOperBroadcast(s *session, m *message.Message, r *result) {
	r.emit(events.OperBroadcast{Type: m.Command, From: m.Source(), Text: m.Last()})
}
