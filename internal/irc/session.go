package irc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/matt0x6f/irc-engine/internal/codec"
	"github.com/matt0x6f/irc-engine/internal/events"
	"github.com/matt0x6f/irc-engine/internal/message"
	"github.com/matt0x6f/irc-engine/internal/sasl"
	"github.com/matt0x6f/irc-engine/internal/transport"
)

// lagProbe is the outstanding PING we sent
type lagProbe struct {
	token string
	sent  time.Time
}

// session is the loop-owned state of one attempt. Nothing outside the loop
// goroutine touches it.
type session struct {
	e   *Engine
	a   *attempt
	log zerolog.Logger

	neg      *sasl.Negotiator
	isupport isupport

	nick       string
	registered bool
	triedAlt   bool
	oper       bool

	// channels maps folded name to display name
	channels map[string]string
	lag      *lagProbe
	// whois maps folded nick to the buffer that asked
	whois map[string]string
	// batches maps open batch ids to whether they carry history
	batches map[string]bool
	// expect maps folded targets to the end of their history window
	expect map[string]time.Time
	// requested dedupes history requests per channel
	requested map[string]bool
}

func (e *Engine) newSession(a *attempt) *session {
	return &session{
		e:   e,
		a:   a,
		log: e.log,
		neg: sasl.New(sasl.Config{
			Desired:   e.cfg.Caps.Names(),
			SASL:      e.cfg.SASL.Enabled,
			Mechanism: e.cfg.SASL.Mechanism,
			Authcid:   e.cfg.SASL.Authcid,
			Password:  e.cfg.SASL.Password,
			Bouncer:   e.cfg.Bouncer,
		}),
		isupport:  defaultISupport(),
		nick:      e.cfg.Identity.Nick,
		channels:  make(map[string]string),
		whois:     make(map[string]string),
		batches:   make(map[string]bool),
		expect:    make(map[string]time.Time),
		requested: make(map[string]bool),
	}
}

func (e *Engine) runSession(ctx context.Context, conn *transport.Conn) error {
	lineCodec, err := codec.New(e.cfg.Encoding)
	if err != nil {
		// Config validation rejects unknown charsets; fall back rather than fail
		e.log.Warn().Err(err).Str("encoding", e.cfg.Encoding).Msg("Unknown encoding, using auto")
		lineCodec, _ = codec.New(codec.Auto)
	}

	a := newAttempt(conn)
	s := e.newSession(a)
	e.ctl.conn.Store(conn)
	e.current.Store(a)

	actx, cancel := context.WithCancel(context.Background())

	e.sink.Emit(events.Connected{Server: e.cfg.Address(), TLSInfo: conn.TLSInfo()})
	s.register()

	a.wg.Add(3)
	go e.readLoop(actx, a, codec.NewReader(conn.Reader(), lineCodec))
	go e.writeLoop(actx, a, lineCodec, e.newLimiter())
	go e.liveness(actx, a)

	cause := s.loop(ctx)

	e.teardown(s, cancel)
	return cause
}

// register sends the registration burst
func (s *session) register() {
	cfg := s.e.cfg
	if cfg.ServerPassword != "" {
		s.sendCommand("PASS", cfg.ServerPassword)
	}
	s.sendCommand("CAP", "LS", "302")
	s.neg.Begin()
	s.sendCommand("NICK", cfg.Identity.Nick)
	user := cfg.Identity.Username
	if user == "" {
		user = cfg.Identity.Nick
	}
	realname := cfg.Identity.Realname
	if realname == "" {
		realname = cfg.Identity.Nick
	}
	s.sendCommand("USER", user, "0", "*", realname)
}

func (s *session) loop(ctx context.Context) error {
	ctxDone := ctx.Done()
	for {
		select {
		case in := <-s.a.inbound:
			if in.err != nil {
				return s.finish(in.err)
			}
			s.handleLine(in.line)
		case token := <-s.a.probes:
			s.lag = &lagProbe{token: token, sent: time.Now()}
			s.sendCommand("PING", token)
		case fn := <-s.a.ctrl:
			fn(s)
		case <-ctxDone:
			ctxDone = nil
			s.e.Disconnect(s.e.cfg.QuitMessage)
		}
		s.e.publish(s)
	}
}

// handleLine processes one inbound line
func (s *session) handleLine(line string) {
	s.emit(events.RawLine{Line: line})
	s.e.metrics.LineIn()

	m, ok := message.Parse(line)
	if !ok {
		return
	}

	switch m.Command {
	case "PING":
		s.sendCommand("PONG", m.Args()...)
		return
	case "PONG":
		s.handlePong(m)
		return
	case "433":
		if !s.registered {
			s.retryNick(m.Arg(1))
			return
		}
	}

	s.applyNegotiator(s.neg.Handle(m))
	s.dispatch(m)
}

func (s *session) handlePong(m *message.Message) {
	if s.lag == nil || m.Last() != s.lag.token {
		return
	}
	rtt := time.Since(s.lag.sent)
	s.lag = nil
	s.emit(events.Lag{RTT: rtt})
	s.e.metrics.Lag(rtt)
	select {
	case s.a.answered <- struct{}{}:
	default:
	}
}

// retryNick picks the next nick after 433 during registration: the alt nick
// once, then base_NNNN
func (s *session) retryNick(rejected string) {
	if rejected == "" {
		rejected = s.nick
	}
	cfg := s.e.cfg.Identity
	var next string
	if !s.triedAlt && cfg.AltNick != "" && s.isupport.fold(cfg.AltNick) != s.isupport.fold(rejected) {
		next = cfg.AltNick
		s.triedAlt = true
	} else {
		next = fmt.Sprintf("%s_%04d", cfg.Nick, rand.Intn(10000))
	}
	s.emit(events.Status{Text: fmt.Sprintf("Nickname %s is already in use, trying %s", rejected, next)})
	s.nick = next
	s.sendCommand("NICK", next)
}

func (s *session) applyNegotiator(out sasl.Output) {
	for _, line := range out.Lines {
		s.send(line)
	}
	for _, text := range out.Status {
		s.emit(events.Status{Text: text})
	}
	for _, text := range out.Errors {
		if strings.Contains(text, "SASL") {
			s.e.metrics.SASLFailed()
		}
		s.emit(events.Error{Text: text})
	}
}

// emit hands an event to the sink in loop order
func (s *session) emit(ev events.Event) {
	s.e.sink.Emit(ev)
}

// send queues a raw line and echoes it as an outbound raw event. Lines
// dropped because the writer is gone are not echoed.
func (s *session) send(line string) {
	if s.a.out.send(line) {
		s.emit(events.RawLine{Line: line, Outbound: true})
	}
}

func (s *session) sendCommand(command string, params ...string) {
	line, err := buildLine(command, params...)
	if err != nil {
		s.log.Warn().Err(err).Str("command", command).Msg("Dropping invalid outbound line")
		return
	}
	s.send(line)
}

func buildLine(command string, params ...string) (string, error) {
	return message.Build(command, params...)
}

// finish maps the terminating read error to events and the Run result
func (s *session) finish(err error) error {
	e := s.e
	fault := s.a.takeFault()

	switch {
	case e.ctl.userClosing.Load():
		reason := "Disconnected"
		if r := e.ctl.quitReason.Load(); r != nil {
			reason = *r
		}
		s.log.Info().Str("reason", reason).Msg("Disconnected by user")
		s.emit(events.Disconnected{Reason: reason})
		e.metrics.Disconnected("user")
		return nil
	case fault != nil:
		cause := "write"
		if errors.Is(fault, ErrPingTimeout) {
			cause = "ping-timeout"
		}
		s.log.Warn().Err(fault).Msg("Connection severed")
		s.emit(events.Error{Text: capitalize(fault.Error())})
		s.emit(events.Disconnected{Reason: capitalize(fault.Error())})
		e.metrics.Disconnected(cause)
		return fault
	case errors.Is(err, io.EOF):
		s.log.Info().Msg("Server closed the connection")
		s.emit(events.Disconnected{Reason: "EOF"})
		e.metrics.Disconnected("eof")
		return err
	case transport.IsTimeout(err):
		s.log.Info().Msg("Read timed out")
		s.emit(events.Disconnected{Reason: "Read timed out", Quiet: true})
		e.metrics.Disconnected("timeout")
		return err
	default:
		category := transport.Classify(err)
		friendly := transport.Friendly(err)
		s.log.Error().Err(err).Str("category", category.String()).Msg("Connection error")
		s.emit(events.Error{Text: friendly, Category: category.String()})
		s.emit(events.Disconnected{Reason: friendly})
		e.metrics.Disconnected(category.String())
		return err
	}
}

// teardown stops the background tasks and closes the transport once
func (e *Engine) teardown(s *session, cancel context.CancelFunc) {
	a := s.a
	e.current.Store(nil)
	close(a.done)
	cancel()

	if e.ctl.userClosing.Load() && !e.ctl.forced.Load() {
		a.conn.Close()
	} else {
		a.conn.ForceClose()
	}
	e.ctl.conn.Store(nil)
	a.wg.Wait()

	clear(s.channels)
	s.lag = nil
	e.publish(s)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
