package storage

import "time"

// PlaybackMark is the newest message time seen in one channel of one
// network. Bouncer playback resumes from it.
type PlaybackMark struct {
	Network   string `db:"network" json:"network"`
	Channel   string `db:"channel" json:"channel"`
	LastSeen  int64  `db:"last_seen" json:"last_seen"` // unix milliseconds
	UpdatedAt int64  `db:"updated_at" json:"updated_at"`
}

// Time returns LastSeen as a time.Time
func (m PlaybackMark) Time() time.Time {
	return time.UnixMilli(m.LastSeen)
}
