package irc

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/matt0x6f/irc-engine/internal/constants"
	"github.com/matt0x6f/irc-engine/internal/message"
)

// PlaybackStore remembers how far each channel has been read so bouncer
// playback can resume from there. storage.Storage implements it.
type PlaybackStore interface {
	LastSeen(network, channel string) (time.Time, bool)
	MarkSeen(network, channel string, t time.Time)
}

// MemoryStore is a PlaybackStore that lives as long as the process
type MemoryStore struct {
	mu    sync.Mutex
	marks map[string]time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{marks: make(map[string]time.Time)}
}

func (m *MemoryStore) LastSeen(network, channel string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.marks[network+"\x00"+channel]
	return t, ok
}

func (m *MemoryStore) MarkSeen(network, channel string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := network + "\x00" + channel
	if t.After(m.marks[key]) {
		m.marks[key] = t
	}
}

func isHistoryBatch(kind string) bool {
	kind = strings.ToLower(kind)
	return strings.Contains(kind, "chathistory") ||
		strings.Contains(kind, "event-playback") ||
		strings.Contains(kind, "playback")
}

func handleBatch(s *session, m *message.Message, r *result) {
	ref := m.Arg(0)
	if len(ref) < 2 {
		return
	}
	id := ref[1:]
	switch ref[0] {
	case '+':
		s.batches[id] = isHistoryBatch(m.Arg(1))
	case '-':
		delete(s.batches, id)
	}
}

// isHistory classifies a message for target as backfill. A batch tag naming
// a batch we know decides; otherwise an old server-time inside a history
// window does.
func (s *session) isHistory(m *message.Message, target string) bool {
	if id, ok := m.Tag("batch"); ok {
		if history, known := s.batches[id]; known {
			return history
		}
	}

	deadline, ok := s.expect[s.isupport.fold(target)]
	if !ok {
		return false
	}
	now := s.e.now()
	if now.After(deadline) {
		delete(s.expect, s.isupport.fold(target))
		return false
	}
	t, ok := m.Time()
	return ok && now.Sub(t) > constants.HistoryAgeThreshold
}

func (s *session) expectHistory(target string) {
	s.expect[s.isupport.fold(target)] = s.e.now().Add(constants.HistoryExpectWindow)
}

// requestHistory asks for backfill of a channel we just joined, at most once
// per channel per connection
func (s *session) requestHistory(channel string, r *result) {
	key := s.isupport.fold(channel)
	if s.requested[key] {
		return
	}

	switch {
	case s.neg.Enabled("draft/chathistory") || s.neg.Enabled("chathistory"):
		limit := s.e.cfg.HistoryLimit
		if limit <= 0 {
			limit = constants.DefaultHistoryLimit
		}
		r.command("CHATHISTORY", "LATEST", channel, "*", strconv.Itoa(limit))
	case s.neg.Enabled("znc.in/playback"):
		since := "0"
		if t, ok := s.e.store.LastSeen(s.network(), channel); ok {
			since = unixString(t)
		}
		r.command("PRIVMSG", "*playback", "PLAY "+channel+" "+since+" "+unixString(s.e.now()))
	default:
		return
	}

	s.requested[key] = true
	s.expectHistory(channel)
	s.log.Debug().Str("channel", channel).Msg("Requested history backfill")
}

// markSeen advances the playback mark of a channel
func (s *session) markSeen(channel string, t time.Time) {
	if !s.neg.Enabled("znc.in/playback") {
		return
	}
	s.e.store.MarkSeen(s.network(), channel, t)
}

// handlePlaybackControl consumes "*playback" control messages such as
// "TIMESTAMP #chan 1700000000" and reports whether it did
func (s *session) handlePlaybackControl(from, text string) bool {
	if !strings.EqualFold(from, "*playback") {
		return false
	}
	fields := strings.Fields(text)
	if len(fields) != 3 || !strings.EqualFold(fields[0], "TIMESTAMP") {
		return false
	}
	if secs, err := strconv.ParseFloat(fields[2], 64); err == nil {
		s.e.store.MarkSeen(s.network(), fields[1], time.UnixMilli(int64(secs*1000)))
	}
	return true
}

func (s *session) network() string {
	return s.e.cfg.Host
}
