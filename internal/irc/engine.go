// Package irc is the session engine: it owns one server connection, runs the
// protocol state machine on a single loop goroutine and emits typed events.
package irc

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/matt0x6f/irc-engine/internal/config"
	"github.com/matt0x6f/irc-engine/internal/constants"
	"github.com/matt0x6f/irc-engine/internal/events"
	"github.com/matt0x6f/irc-engine/internal/logger"
	"github.com/matt0x6f/irc-engine/internal/metrics"
	"github.com/matt0x6f/irc-engine/internal/transport"
	"github.com/matt0x6f/irc-engine/internal/validation"
)

var (
	// ErrAlreadyRunning is returned by Run while another attempt is active
	ErrAlreadyRunning = errors.New("engine is already running")
	// ErrPingTimeout is the cause when a lag probe goes unanswered
	ErrPingTimeout = errors.New("ping timeout")
)

// Option configures an Engine
type Option func(*Engine)

// WithLogger replaces the per-network logger
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithMetrics records connection metrics under the host label
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m.For(e.cfg.Host) }
}

// WithPlaybackStore persists bouncer playback marks across connections
func WithPlaybackStore(s PlaybackStore) Option {
	return func(e *Engine) { e.store = s }
}

// WithClock overrides the wall clock used for timestamps and history
// classification
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// control is the only state shared between the loop and other goroutines
type control struct {
	conn        atomic.Pointer[transport.Conn]
	userClosing atomic.Bool
	forced      atomic.Bool
	quitReason  atomic.Pointer[string]
}

// snapshot is what the host may read while the loop runs
type snapshot struct {
	nick      string
	channels  []string
	chanTypes string
}

// Engine runs connection attempts for one configuration. Attempts are
// sequential; the host decides whether to call Run again.
type Engine struct {
	cfg     config.Config
	sink    events.Sink
	log     zerolog.Logger
	metrics *metrics.Network
	store   PlaybackStore
	now     func() time.Time

	probeGrace    time.Duration
	probeInterval time.Duration
	pingTimeout   time.Duration
	quitGrace     time.Duration

	ctl     control
	current atomic.Pointer[attempt]
	snap    atomic.Pointer[snapshot]
	running atomic.Bool
}

// New creates an engine. Events are delivered to sink in order from the
// loop goroutine.
func New(cfg config.Config, sink events.Sink, opts ...Option) *Engine {
	e := &Engine{
		cfg:           cfg,
		sink:          sink,
		log:           logger.ForNetwork(cfg.Host, cfg.Port),
		store:         NewMemoryStore(),
		now:           time.Now,
		probeGrace:    constants.LagProbeGrace,
		probeInterval: constants.LagProbeInterval,
		pingTimeout:   time.Duration(cfg.Timeouts.Ping),
		quitGrace:     constants.QuitGrace,
	}
	if e.pingTimeout <= 0 {
		e.pingTimeout = constants.DefaultPingTimeout
	}
	for _, opt := range opts {
		opt(e)
	}
	e.snap.Store(&snapshot{nick: cfg.Identity.Nick, chanTypes: "#&"})
	return e
}

// Run performs one connection attempt and blocks until it ends. It returns
// nil when the user closed the connection and the cause otherwise.
// Cancelling ctx disconnects with the configured quit message.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer e.running.Store(false)

	e.ctl.userClosing.Store(false)
	e.ctl.forced.Store(false)
	e.ctl.quitReason.Store(nil)

	e.sink.Emit(events.Status{Text: "Connecting to " + e.cfg.Address()})

	conn, err := transport.Dial(ctx, e.dialOptions())
	if err != nil {
		friendly := transport.Friendly(err)
		e.log.Error().Err(err).Msg("Connection failed")
		e.sink.Emit(events.Error{Text: friendly, Category: transport.Classify(err).String()})
		e.sink.Emit(events.Disconnected{Reason: friendly})
		e.metrics.Disconnected(transport.Classify(err).String())
		return err
	}
	e.metrics.Connected()
	e.log.Info().
		Stringer("remote", conn.RemoteAddr()).
		Bool("tls", conn.IsTLS()).
		Bool("verified", conn.Verified()).
		Str("session", conn.TLSInfo()).
		Msg("Connected")

	return e.runSession(ctx, conn)
}

func (e *Engine) dialOptions() transport.Options {
	return transport.Options{
		Host:               e.cfg.Host,
		Port:               e.cfg.Port,
		TLS:                e.cfg.TLS.Enabled,
		AllowInvalid:       e.cfg.TLS.AllowInvalid,
		AllowPlaintext:     e.cfg.TLS.AllowPlaintext,
		ClientCert:         e.cfg.ClientCert.Data,
		ClientCertPassword: e.cfg.ClientCert.Password,
		Proxy:              e.cfg.Proxy,
		ConnectTimeout:     time.Duration(e.cfg.Timeouts.Connect),
		HandshakeTimeout:   time.Duration(e.cfg.Timeouts.Handshake),
		ReadTimeout:        time.Duration(e.cfg.Timeouts.Read),
	}
}

func (e *Engine) newLimiter() *rate.Limiter {
	if e.cfg.Flood.Rate <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := e.cfg.Flood.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(e.cfg.Flood.Rate), burst)
}

// Send queues a raw protocol line. Line breaks are stripped. It never blocks
// while the queue has room and silently drops lines once the connection is
// tearing down.
func (e *Engine) Send(line string) {
	line = validation.SanitizeLine(line)
	if line == "" {
		return
	}
	if a := e.current.Load(); a != nil {
		a.out.send(line)
	}
}

// Post hands an event to the loop so it is emitted in order with protocol
// events. Without a running attempt it is emitted directly.
func (e *Engine) Post(ev events.Event) {
	if !e.post(func(s *session) { s.emit(ev) }) {
		e.sink.Emit(ev)
	}
}

// post runs fn on the loop goroutine. It reports false when no attempt is
// running.
func (e *Engine) post(fn func(*session)) bool {
	a := e.current.Load()
	if a == nil {
		return false
	}
	select {
	case a.ctrl <- fn:
		return true
	case <-a.done:
		return false
	}
}

// Disconnect sends QUIT and closes the connection after a short grace
// period. Only the first call has an effect.
func (e *Engine) Disconnect(reason string) {
	a := e.current.Load()
	if a == nil {
		return
	}
	if !e.ctl.userClosing.CompareAndSwap(false, true) {
		return
	}
	if reason == "" {
		reason = e.cfg.QuitMessage
	}
	e.ctl.quitReason.Store(&reason)
	e.log.Info().Str("reason", reason).Msg("Disconnecting")

	if line, err := buildLine("QUIT", reason); err == nil {
		a.out.send(line)
	}
	go func() {
		select {
		case <-time.After(e.quitGrace):
		case <-a.done:
		}
		if conn := e.ctl.conn.Load(); conn != nil {
			conn.Close()
		}
	}()
}

// ForceClose severs the socket immediately without QUIT or TLS close_notify
func (e *Engine) ForceClose() {
	e.ctl.forced.Store(true)
	if e.ctl.userClosing.CompareAndSwap(false, true) {
		reason := "Disconnected"
		e.ctl.quitReason.Store(&reason)
	}
	if conn := e.ctl.conn.Load(); conn != nil {
		conn.ForceClose()
	}
}

// IsConnected reports whether a transport is currently open
func (e *Engine) IsConnected() bool {
	conn := e.ctl.conn.Load()
	return conn != nil && !conn.Closed()
}

// TLSInfo describes the TLS session, or "" for plaintext or no connection
func (e *Engine) TLSInfo() string {
	if conn := e.ctl.conn.Load(); conn != nil {
		return conn.TLSInfo()
	}
	return ""
}

// Nick returns our current nickname
func (e *Engine) Nick() string {
	return e.snap.Load().nick
}

// JoinedChannels returns the channels we are in, sorted
func (e *Engine) JoinedChannels() []string {
	return append([]string(nil), e.snap.Load().channels...)
}

// IsChannel reports whether name starts with one of the server's channel types
func (e *Engine) IsChannel(name string) bool {
	snap := e.snap.Load()
	i := isupport{chanTypes: snap.chanTypes}
	return i.isChannel(name)
}

// RouteWhois tags the replies of a WHOIS for nick with buffer
func (e *Engine) RouteWhois(nick, buffer string) {
	e.post(func(s *session) {
		s.whois[s.isupport.fold(nick)] = buffer
	})
}

// ExpectHistory marks target as about to receive backfill
func (e *Engine) ExpectHistory(target string) {
	e.post(func(s *session) {
		s.expectHistory(target)
	})
}

// publish makes the loop's view available to other goroutines
func (e *Engine) publish(s *session) {
	channels := make([]string, 0, len(s.channels))
	for _, name := range s.channels {
		channels = append(channels, name)
	}
	sort.Strings(channels)
	e.snap.Store(&snapshot{nick: s.nick, channels: channels, chanTypes: s.isupport.chanTypes})
}

// attempt holds the channels of one connection attempt
type attempt struct {
	conn     *transport.Conn
	out      *outbox
	ctrl     chan func(*session)
	inbound  chan inbound
	probes   chan string
	answered chan struct{}
	fault    chan error
	done     chan struct{}
	// writerDone is closed when the writer task exits
	writerDone chan struct{}
	wg         sync.WaitGroup
}

type inbound struct {
	line string
	err  error
}

func newAttempt(conn *transport.Conn) *attempt {
	done := make(chan struct{})
	writerDone := make(chan struct{})
	return &attempt{
		conn:       conn,
		out:        newOutbox(constants.SendQueueSize, done, writerDone),
		ctrl:       make(chan func(*session), constants.ControlQueueSize),
		inbound:    make(chan inbound, constants.InboundQueueSize),
		probes:     make(chan string, 1),
		answered:   make(chan struct{}, 1),
		fault:      make(chan error, 1),
		done:       done,
		writerDone: writerDone,
	}
}

// fail records why a background task severed the connection. Only the
// first fault is kept.
func (a *attempt) fail(err error) {
	select {
	case a.fault <- err:
	default:
	}
}

func (a *attempt) takeFault() error {
	select {
	case err := <-a.fault:
		return err
	default:
		return nil
	}
}

// outbox is the bounded outbound queue. The channel is never closed; done
// marks it closed so late senders drop their lines instead of panicking.
// Once the writer has exited nothing drains ch, so senders drop then too.
type outbox struct {
	ch         chan string
	done       <-chan struct{}
	writerDone <-chan struct{}
}

func newOutbox(size int, done, writerDone <-chan struct{}) *outbox {
	return &outbox{ch: make(chan string, size), done: done, writerDone: writerDone}
}

// send queues line and reports whether it was accepted
func (o *outbox) send(line string) bool {
	select {
	case <-o.done:
		return false
	case <-o.writerDone:
		return false
	default:
	}
	select {
	case o.ch <- line:
		return true
	default:
	}
	// Full: wait for the writer rather than drop
	select {
	case o.ch <- line:
		return true
	case <-o.done:
	case <-o.writerDone:
	}
	return false
}

func unixString(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}
