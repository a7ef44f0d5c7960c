// Package sasl drives IRCv3 capability negotiation and SASL authentication
// during registration.
package sasl

import (
	"encoding/base64"
	"errors"
	"sort"
	"strings"

	gosasl "github.com/emersion/go-sasl"

	"github.com/matt0x6f/irc-engine/internal/logger"
	"github.com/matt0x6f/irc-engine/internal/message"
)

// State is the negotiation phase
type State int

const (
	Start State = iota
	CapLsPending
	CapReqSent
	SaslInProgress
	SaslDone
	CapEndSent
)

func (s State) String() string {
	switch s {
	case Start:
		return "start"
	case CapLsPending:
		return "cap-ls-pending"
	case CapReqSent:
		return "cap-req-sent"
	case SaslInProgress:
		return "sasl-in-progress"
	case SaslDone:
		return "sasl-done"
	case CapEndSent:
		return "cap-end-sent"
	}
	return "unknown"
}

// BouncerCaps are requested in bouncer mode whether advertised or not
var BouncerCaps = []string{"znc.in/playback", "znc.in/self-message"}

// Config is what the negotiator needs from the connection config
type Config struct {
	// Desired lists capability names in request order
	Desired   []string
	SASL      bool
	Mechanism string
	Authcid   string
	Password  string
	Bouncer   bool
}

// Output is what handling one message produced
type Output struct {
	Lines  []string
	Status []string
	Errors []string
}

func (o *Output) line(s string)   { o.Lines = append(o.Lines, s) }
func (o *Output) status(s string) { o.Status = append(o.Status, s) }
func (o *Output) fail(s string)   { o.Errors = append(o.Errors, s) }

// Empty reports whether nothing was produced
func (o Output) Empty() bool {
	return len(o.Lines) == 0 && len(o.Status) == 0 && len(o.Errors) == 0
}

// Negotiator is the CAP/SASL state machine. It is owned by the session loop
// and is not safe for concurrent use.
type Negotiator struct {
	cfg   Config
	state State

	advertised map[string]string
	enabled    map[string]bool
	// pending holds requested caps the server has not answered yet
	pending map[string]bool

	saslStarted  bool
	saslFinished bool
	capEndSent   bool

	mech   gosasl.Client
	ir     []byte
	irSent bool
	reasm  Reassembler

	newMechanism func(mechanism, authcid, password string) (gosasl.Client, error)
}

// New creates a negotiator for one connection attempt
func New(cfg Config) *Negotiator {
	return &Negotiator{
		cfg:          cfg,
		advertised:   make(map[string]string),
		enabled:      make(map[string]bool),
		pending:      make(map[string]bool),
		newMechanism: NewMechanism,
	}
}

// Begin records that CAP LS 302 has been sent
func (n *Negotiator) Begin() {
	n.state = CapLsPending
}

// State returns the current phase
func (n *Negotiator) State() State {
	return n.state
}

// Enabled reports whether a capability was acknowledged
func (n *Negotiator) Enabled(capability string) bool {
	return n.enabled[strings.ToLower(capability)]
}

// EnabledCaps returns the acknowledged capabilities, sorted
func (n *Negotiator) EnabledCaps() []string {
	caps := make([]string, 0, len(n.enabled))
	for c := range n.enabled {
		caps = append(caps, c)
	}
	sort.Strings(caps)
	return caps
}

// advertisedValue returns the value a capability was advertised with
func (n *Negotiator) advertisedValue(capability string) (string, bool) {
	v, ok := n.advertised[strings.ToLower(capability)]
	return v, ok
}

// Concluded marks registration as complete; CAP END is never sent afterwards
func (n *Negotiator) Concluded() {
	n.capEndSent = true
	n.state = CapEndSent
}

// Handle feeds one message to the state machine. Every message is offered;
// unrelated commands produce an empty Output.
func (n *Negotiator) Handle(m *message.Message) Output {
	var out Output
	switch m.Command {
	case "CAP":
		n.handleCAP(m, &out)
	case "AUTHENTICATE":
		if n.saslStarted && !n.saslFinished {
			n.handleAuthenticate(m.Arg(0), &out)
		}
	case "001":
		n.Concluded()
	case "900":
		out.status(m.Last())
	case "903":
		if n.saslStarted && !n.saslFinished {
			n.finishSASL()
			out.status("SASL authentication successful")
		}
		n.endCap(&out)
	case "902", "904", "905", "906", "907":
		if n.cfg.SASL && !n.saslFinished {
			n.finishSASL()
			out.fail("SASL authentication failed: " + m.Last())
		}
		n.endCap(&out)
	case "908":
		out.status("Server supports SASL mechanisms: " + m.Arg(1))
	}
	return out
}

func (n *Negotiator) handleCAP(m *message.Message, out *Output) {
	args := m.Args()
	if len(args) < 2 {
		return
	}
	sub := strings.ToUpper(args[1])
	list := strings.Fields(m.Last())
	if len(args) == 2 {
		list = nil
	}

	switch sub {
	case "LS":
		// CAP * LS * :caps marks a continuation; the first "*" is the target
		continued := len(args) >= 4 && args[2] == "*"
		n.addAdvertised(list)
		if continued {
			return
		}
		if n.state != Start && n.state != CapLsPending {
			return
		}
		n.requestCaps(out)
	case "ACK":
		for _, name := range list {
			name = strings.ToLower(name)
			if strings.HasPrefix(name, "-") {
				delete(n.enabled, name[1:])
				delete(n.pending, name[1:])
				continue
			}
			n.enabled[name] = true
			delete(n.pending, name)
		}
		logger.Log.Debug().Strs("caps", list).Msg("Capabilities acknowledged")
		switch {
		case n.cfg.SASL && n.enabled["sasl"] && !n.saslStarted && !n.saslFinished:
			n.startSASL(out)
		case n.cfg.SASL && !n.saslStarted && !n.saslFinished:
			// sasl may still be acknowledged by a later reply
			if len(n.pending) > 0 {
				return
			}
			out.status("SASL was not acknowledged, continuing without authentication")
			n.finishSASL()
			n.endCap(out)
		case !n.cfg.SASL || n.saslFinished:
			n.endCap(out)
		}
	case "NAK":
		clear(n.pending)
		out.fail("Capability request rejected: " + strings.Join(list, " "))
		if n.cfg.SASL && !n.saslStarted {
			n.finishSASL()
		}
		n.endCap(out)
	case "NEW":
		n.addAdvertised(list)
		offered := make([]string, 0, len(list))
		for _, token := range list {
			name, _, _ := strings.Cut(token, "=")
			offered = append(offered, strings.ToLower(name))
		}
		var req []string
		for _, c := range n.cfg.Desired {
			c = strings.ToLower(c)
			if !n.enabled[c] && contains(offered, c) {
				req = append(req, c)
			}
		}
		if len(req) > 0 {
			out.line("CAP REQ :" + strings.Join(req, " "))
		}
	case "DEL":
		for _, name := range list {
			name = strings.ToLower(name)
			delete(n.enabled, name)
			delete(n.advertised, name)
		}
		out.status("Server removed capabilities: " + strings.Join(list, " "))
	}
}

func (n *Negotiator) addAdvertised(list []string) {
	for _, token := range list {
		name, value, _ := strings.Cut(token, "=")
		n.advertised[strings.ToLower(name)] = value
	}
}

func (n *Negotiator) requestCaps(out *Output) {
	var req []string
	seen := make(map[string]bool)
	add := func(c string) {
		if !seen[c] {
			seen[c] = true
			req = append(req, c)
		}
	}

	for _, c := range n.cfg.Desired {
		c = strings.ToLower(c)
		if _, ok := n.advertised[c]; ok {
			add(c)
		}
	}
	if n.cfg.SASL {
		if mechs, ok := n.advertised["sasl"]; ok {
			add("sasl")
			if mechs != "" && !contains(strings.Split(strings.ToUpper(mechs), ","), strings.ToUpper(n.cfg.Mechanism)) {
				out.status("Server advertises SASL mechanisms " + mechs + ", trying " + strings.ToUpper(n.cfg.Mechanism) + " anyway")
			}
		} else {
			out.status("Server does not advertise SASL, continuing without authentication")
			n.finishSASL()
		}
	}
	if n.cfg.Bouncer {
		for _, c := range BouncerCaps {
			add(c)
		}
	}

	if len(req) == 0 {
		n.endCap(out)
		return
	}
	n.state = CapReqSent
	for _, c := range req {
		n.pending[c] = true
	}
	out.line("CAP REQ :" + strings.Join(req, " "))
}

func (n *Negotiator) startSASL(out *Output) {
	mech, err := n.newMechanism(n.cfg.Mechanism, n.cfg.Authcid, n.cfg.Password)
	if err != nil {
		out.fail("SASL: " + err.Error())
		n.finishSASL()
		n.endCap(out)
		return
	}
	name, ir, err := mech.Start()
	if err != nil {
		out.fail("SASL: " + err.Error())
		n.finishSASL()
		n.endCap(out)
		return
	}
	n.mech = mech
	n.ir = ir
	n.irSent = false
	n.reasm.Reset()
	n.saslStarted = true
	n.state = SaslInProgress
	logger.Log.Debug().Str("mechanism", name).Msg("Starting SASL authentication")
	out.line("AUTHENTICATE " + name)
}

func (n *Negotiator) handleAuthenticate(payload string, out *Output) {
	// the first "+" is the go-ahead for the initial response
	if payload == "+" && !n.irSent {
		n.irSent = true
		for _, l := range ChunkAuthenticate(base64.StdEncoding.EncodeToString(n.ir)) {
			out.line(l)
		}
		return
	}

	full, complete := n.reasm.Feed(payload)
	if !complete {
		return
	}
	challenge, err := base64.StdEncoding.DecodeString(full)
	if err != nil {
		out.fail("SASL: server sent an undecodable challenge")
		out.line("AUTHENTICATE *")
		return
	}
	resp, err := n.mech.Next(challenge)
	if errors.Is(err, ErrServerSignature) {
		out.fail("SASL authentication failed: " + err.Error())
		n.finishSASL()
		return
	}
	if err != nil {
		out.fail("SASL: " + err.Error())
		out.line("AUTHENTICATE *")
		return
	}
	for _, l := range ChunkAuthenticate(base64.StdEncoding.EncodeToString(resp)) {
		out.line(l)
	}
}

func (n *Negotiator) finishSASL() {
	n.saslFinished = true
	n.mech = nil
	n.ir = nil
	n.reasm.Reset()
	if n.state == SaslInProgress {
		n.state = SaslDone
	}
}

func (n *Negotiator) endCap(out *Output) {
	if n.capEndSent {
		return
	}
	n.capEndSent = true
	n.state = CapEndSent
	out.line("CAP END")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
