package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/matt0x6f/irc-engine/internal/logger"
)

type markKey struct {
	network string
	channel string
}

// Storage persists bouncer playback marks in SQLite. Marks are buffered in
// memory and flushed periodically; a mark only ever moves forward.
type Storage struct {
	db            *sqlx.DB
	flushInterval time.Duration
	pending       map[markKey]int64
	mu            sync.Mutex
	stopCh        chan struct{}
	wg            sync.WaitGroup
	closed        bool
}

// NewStorage opens (or creates) the database at dbPath
func NewStorage(dbPath string, flushInterval time.Duration) (*Storage, error) {
	// Enable WAL mode for better concurrent writes
	db, err := sqlx.Connect("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single connection in WAL mode
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	s := &Storage{
		db:            db,
		flushInterval: flushInterval,
		pending:       make(map[markKey]int64),
		stopCh:        make(chan struct{}),
	}

	s.wg.Add(1)
	go s.flushLoop()

	return s, nil
}

// Close flushes pending marks and closes the database
func (s *Storage) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	if err := s.flush(); err != nil {
		logger.Log.Error().Err(err).Msg("Error flushing playback marks on close")
	}
	return s.db.Close()
}

// flushLoop periodically flushes pending marks
func (s *Storage) flushLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.flush(); err != nil {
				logger.Log.Error().Err(err).Msg("Error flushing playback marks")
			}
		}
	}
}

const upsertMark = `
INSERT INTO playback_marks (network, channel, last_seen, updated_at)
VALUES (:network, :channel, :last_seen, :updated_at)
ON CONFLICT(network, channel) DO UPDATE SET
    last_seen = MAX(last_seen, excluded.last_seen),
    updated_at = excluded.updated_at`

// Flush writes pending marks now
func (s *Storage) Flush() error {
	return s.flush()
}

func (s *Storage) flush() error {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return nil
	}
	batch := s.pending
	s.pending = make(map[markKey]int64)
	s.mu.Unlock()

	now := time.Now().UnixMilli()
	tx, err := s.db.Beginx()
	if err != nil {
		s.requeue(batch)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	for k, ms := range batch {
		mark := PlaybackMark{Network: k.network, Channel: k.channel, LastSeen: ms, UpdatedAt: now}
		if _, err := tx.NamedExec(upsertMark, mark); err != nil {
			tx.Rollback()
			s.requeue(batch)
			return fmt.Errorf("failed to write playback mark: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		s.requeue(batch)
		return fmt.Errorf("failed to commit playback marks: %w", err)
	}
	logger.Log.Debug().Int("count", len(batch)).Msg("Flushed playback marks")
	return nil
}

func (s *Storage) requeue(batch map[markKey]int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, ms := range batch {
		if ms > s.pending[k] {
			s.pending[k] = ms
		}
	}
}

// MarkSeen records that channel has been read up to t
func (s *Storage) MarkSeen(network, channel string, t time.Time) {
	ms := t.UnixMilli()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	k := markKey{network, channel}
	if ms > s.pending[k] {
		s.pending[k] = ms
	}
}

// LastSeen returns the newest mark for a channel
func (s *Storage) LastSeen(network, channel string) (time.Time, bool) {
	s.mu.Lock()
	pendingMs, hasPending := s.pending[markKey{network, channel}]
	s.mu.Unlock()

	var stored int64
	err := s.db.Get(&stored, "SELECT last_seen FROM playback_marks WHERE network = ? AND channel = ?", network, channel)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		logger.Log.Error().Err(err).Str("channel", channel).Msg("Error reading playback mark")
	}
	if hasPending && pendingMs > stored {
		stored = pendingMs
	}
	if stored == 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(stored), true
}

// Marks lists the stored marks of one network
func (s *Storage) Marks(network string) ([]PlaybackMark, error) {
	if err := s.flush(); err != nil {
		return nil, err
	}
	var marks []PlaybackMark
	err := s.db.Select(&marks, "SELECT network, channel, last_seen, updated_at FROM playback_marks WHERE network = ? ORDER BY channel", network)
	if err != nil {
		return nil, fmt.Errorf("failed to list playback marks: %w", err)
	}
	return marks, nil
}
