package constants

import "time"

// Connection timing constants
const (
	// DefaultConnectTimeout bounds the TCP connect (and proxy negotiation)
	DefaultConnectTimeout = 15 * time.Second

	// DefaultHandshakeTimeout bounds the TLS handshake only; the steady-state
	// read timeout is restored once it completes
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultReadTimeout is the steady-state read deadline. It must be longer
	// than LagProbeInterval + DefaultPingTimeout so the liveness task fires first.
	DefaultReadTimeout = 5 * time.Minute

	// DefaultPingTimeout is how long a lag probe may stay unanswered
	DefaultPingTimeout = 120 * time.Second

	// LagProbeGrace is the delay before the first lag probe after connecting
	LagProbeGrace = 20 * time.Second

	// LagProbeInterval is the period between lag probes
	LagProbeInterval = 60 * time.Second

	// QuitGrace is how long a user-requested disconnect waits after QUIT
	// before severing the socket
	QuitGrace = 1500 * time.Millisecond

	// CycleDelay separates PART and JOIN for /cycle
	CycleDelay = 1 * time.Second

	// DNSTimeout bounds a /dns lookup
	DNSTimeout = 10 * time.Second
)

// Queue sizes
const (
	// SendQueueSize is the capacity of the outbound line queue
	SendQueueSize = 300

	// ControlQueueSize is the capacity of the loop's control channel
	ControlQueueSize = 64

	// InboundQueueSize buffers decoded lines between the reader and the loop
	InboundQueueSize = 64

	// MaxLineBytes caps a single inbound line, tags included
	MaxLineBytes = 8191 + 512
)

// History classification
const (
	// HistoryAgeThreshold is how old a server-time must be for the heuristic
	// to treat a message as backfill
	HistoryAgeThreshold = 15 * time.Second

	// HistoryExpectWindow is how long after a history request the heuristic applies
	HistoryExpectWindow = 30 * time.Second

	// DefaultHistoryLimit is the CHATHISTORY LATEST message count
	DefaultHistoryLimit = 100
)

// SASL
const (
	// AuthenticateChunkSize is the maximum base64 characters per AUTHENTICATE line
	AuthenticateChunkSize = 400
)

// Host
const (
	// ReconnectBaseDelay is the first wait before reconnecting after a failure
	ReconnectBaseDelay = 2 * time.Second

	// ReconnectMaxDelay caps the reconnect backoff
	ReconnectMaxDelay = 60 * time.Second

	// PlaybackFlushInterval is how often playback marks are written to disk
	PlaybackFlushInterval = 5 * time.Second
)
