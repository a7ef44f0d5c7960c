package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/matt0x6f/irc-engine/internal/events"
)

func TestRender(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 30, 0, 0, time.Local)

	tests := []struct {
		name string
		ev   events.Event
		want string
	}{
		{"status", events.Status{Text: "Connecting to irc.example.net:6697"}, "-!- Connecting to irc.example.net:6697"},
		{"message", events.ChatMessage{Target: "#go", From: "bob", Text: "hi", Time: ts}, "12:30 [#go] <bob> hi"},
		{"statusmsg action", events.ChatMessage{Target: "#go", From: "bob", Text: "waves", StatusPrefix: "@", Action: true, Time: ts}, "12:30 [@#go] * bob waves"},
		{"history", events.ChatMessage{Target: "#go", From: "bob", Text: "old", History: true, Time: ts}, "(history) 12:30 [#go] <bob> old"},
		{"server notice", events.Notice{Text: "*** Looking up your hostname", FromServer: true}, "-!- *** Looking up your hostname"},
		{"part reason", events.Parted{Channel: "#go", Nick: "bob", Reason: "bye", Time: ts}, "12:30 [#go] bob has left (bye)"},
		{"names", events.Names{Channel: "#go", Members: []events.Member{{Nick: "alice", Prefixes: "@"}, {Nick: "bob"}}}, "[#go] Users: @alice bob"},
		{"join error", events.JoinError{Channel: "#closed", Code: "474", Reason: "Cannot join channel (+b)"}, "!!! Cannot join #closed: Cannot join channel (+b)"},
		{"unknown mode", events.JoinError{Code: "472", Reason: "Z is unknown mode char to me"}, "!!! [472] Z is unknown mode char to me"},
		{"lag is silent", events.Lag{RTT: time.Second}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, render(tt.ev))
		})
	}
}
