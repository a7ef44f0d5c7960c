package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/matt0x6f/irc-engine/internal/events"
)

func stamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.Local().Format("15:04")
}

// render turns an event into one terminal line. Events without a line
// render as "".
func render(ev events.Event) string {
	switch e := ev.(type) {
	case events.Status:
		return "-!- " + e.Text
	case events.Connected:
		if e.TLSInfo == "" {
			return fmt.Sprintf("-!- Connected to %s", e.Server)
		}
		return fmt.Sprintf("-!- Connected to %s (%s)", e.Server, e.TLSInfo)
	case events.Registered:
		return "-!- Registered as " + e.Nick
	case events.Disconnected:
		return "-!- Disconnected: " + e.Reason
	case events.Error:
		return "!!! " + e.Text
	case events.RawLine:
		if e.Outbound {
			return ">> " + e.Line
		}
		return "<< " + e.Line
	case events.ChatMessage:
		prefix := stamp(e.Time) + " [" + e.StatusPrefix + e.Target + "] "
		if e.History {
			prefix = "(history) " + prefix
		}
		if e.Action {
			return prefix + "* " + e.From + " " + e.Text
		}
		return prefix + "<" + e.From + "> " + e.Text
	case events.Notice:
		if e.FromServer || e.From == "" {
			return "-!- " + e.Text
		}
		return fmt.Sprintf("%s -%s:%s- %s", stamp(e.Time), e.From, e.Target, e.Text)
	case events.Joined:
		return fmt.Sprintf("%s [%s] %s has joined", stamp(e.Time), e.Channel, e.Nick)
	case events.Parted:
		return withReason(fmt.Sprintf("%s [%s] %s has left", stamp(e.Time), e.Channel, e.Nick), e.Reason)
	case events.Quit:
		return withReason(fmt.Sprintf("%s %s has quit", stamp(e.Time), e.Nick), e.Reason)
	case events.Kicked:
		return withReason(fmt.Sprintf("%s [%s] %s was kicked by %s", stamp(e.Time), e.Channel, e.Nick, e.By), e.Reason)
	case events.NickChanged:
		return fmt.Sprintf("%s %s is now known as %s", stamp(e.Time), e.Old, e.New)
	case events.Invited:
		return fmt.Sprintf("-!- %s invited %s to %s", e.By, e.Nick, e.Channel)
	case events.Topic:
		return fmt.Sprintf("%s [%s] %s changed the topic to: %s", stamp(e.Time), e.Channel, e.By, e.Topic)
	case events.TopicInfo:
		return fmt.Sprintf("[%s] Topic: %s", e.Channel, e.Topic)
	case events.TopicWhoTime:
		return fmt.Sprintf("[%s] Topic set by %s on %s", e.Channel, e.SetBy, e.SetAt.Local().Format(time.RFC1123))
	case events.ModeChanged:
		return "-!- " + e.Text
	case events.ChannelModeIs:
		return fmt.Sprintf("[%s] Modes: %s", e.Channel, strings.TrimSpace(e.Modes+" "+strings.Join(e.Args, " ")))
	case events.Names:
		nicks := make([]string, 0, len(e.Members))
		for _, m := range e.Members {
			nicks = append(nicks, m.Prefixes+m.Nick)
		}
		return fmt.Sprintf("[%s] Users: %s", e.Channel, strings.Join(nicks, " "))
	case events.JoinError:
		if e.Channel == "" {
			return fmt.Sprintf("!!! [%s] %s", e.Code, e.Reason)
		}
		return fmt.Sprintf("!!! Cannot join %s: %s", e.Channel, e.Reason)
	case events.ListItem:
		return fmt.Sprintf("%s (%d) %s", e.Channel, e.Users, e.Topic)
	case events.ListEntry:
		return fmt.Sprintf("[%s] %s %s set by %s", e.Channel, e.List, e.Mask, e.SetBy)
	case events.CTCPRequest:
		return fmt.Sprintf("-!- CTCP %s from %s", e.Command, e.From)
	case events.CTCPReply:
		return fmt.Sprintf("-!- CTCP %s reply from %s: %s", e.Command, e.From, e.Args)
	case events.DCCOffer:
		return fmt.Sprintf("-!- DCC %s offer from %s: %s (%s:%d)", e.Type, e.From, e.Filename, e.Host, e.Port)
	case events.ServerText:
		return "-!- " + e.Text
	case events.OperStatus:
		return "-!- " + e.Text
	case events.OperBroadcast:
		return fmt.Sprintf("-%s:%s- %s", e.Type, e.From, e.Text)
	}
	return ""
}

func withReason(text, reason string) string {
	if reason == "" {
		return text
	}
	return text + " (" + reason + ")"
}
