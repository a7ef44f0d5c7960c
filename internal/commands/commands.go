// Package commands turns slash-commands typed into a buffer into protocol
// lines for a session.
package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/matt0x6f/irc-engine/internal/constants"
	"github.com/matt0x6f/irc-engine/internal/events"
	"github.com/matt0x6f/irc-engine/internal/logger"
	"github.com/matt0x6f/irc-engine/internal/message"
	"github.com/matt0x6f/irc-engine/internal/validation"
)

var (
	// ErrEmpty is returned for blank input
	ErrEmpty = errors.New("empty command")
	// ErrUsage prefixes every usage hint
	ErrUsage = errors.New("usage")
)

// Session is the part of the engine the interpreter drives. *irc.Engine
// implements it.
type Session interface {
	Send(line string)
	Nick() string
	JoinedChannels() []string
	IsChannel(name string) bool
	RouteWhois(nick, buffer string)
	ExpectHistory(target string)
	Disconnect(reason string)
	Post(ev events.Event)
}

// Resolver performs the lookups behind /dns. *net.Resolver implements it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// Option configures an Interpreter
type Option func(*Interpreter)

// WithResolver replaces the DNS resolver used by /dns
func WithResolver(r Resolver) Option {
	return func(i *Interpreter) { i.resolver = r }
}

// WithScheduler replaces time.AfterFunc for delayed sends such as /cycle
func WithScheduler(after func(time.Duration, func())) Option {
	return func(i *Interpreter) { i.after = after }
}

// WithClock overrides the timestamps of local echoes and CTCP pings
func WithClock(now func() time.Time) Option {
	return func(i *Interpreter) { i.now = now }
}

// WithLogger replaces the interpreter logger
func WithLogger(l zerolog.Logger) Option {
	return func(i *Interpreter) { i.log = l }
}

// Interpreter executes slash-commands against a Session
type Interpreter struct {
	s        Session
	resolver Resolver
	after    func(time.Duration, func())
	now      func() time.Time
	log      zerolog.Logger
}

// New creates an interpreter for s
func New(s Session, opts ...Option) *Interpreter {
	i := &Interpreter{
		s:        s,
		resolver: net.DefaultResolver,
		after:    func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		now:      time.Now,
		log:      logger.Log,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// call is one parsed input line
type call struct {
	buffer string
	word   string
	rest   string
	args   []string
}

// text returns the free text after the first n arguments, spacing intact
func (c *call) text(n int) string {
	s := strings.TrimLeft(c.rest, " ")
	for ; n > 0; n-- {
		i := strings.IndexByte(s, ' ')
		if i < 0 {
			return ""
		}
		s = strings.TrimLeft(s[i+1:], " ")
	}
	return s
}

type commandFunc func(i *Interpreter, c *call) error

var table = map[string]commandFunc{
	"join":       cmdJoin,
	"j":          cmdJoin,
	"part":       cmdPart,
	"leave":      cmdPart,
	"cycle":      cmdCycle,
	"rejoin":     cmdCycle,
	"msg":        cmdMsg,
	"privmsg":    cmdMsg,
	"m":          cmdMsg,
	"query":      cmdMsg,
	"me":         cmdMe,
	"action":     cmdMe,
	"amsg":       cmdAmsg,
	"ame":        cmdAme,
	"notice":     cmdNotice,
	"list":       passthrough("LIST"),
	"motd":       passthrough("MOTD"),
	"lusers":     passthrough("LUSERS"),
	"admin":      passthrough("ADMIN"),
	"whois":      cmdWhois,
	"whowas":     cmdWhowas,
	"who":        cmdWho,
	"history":    cmdHistory,
	"names":      cmdNames,
	"nick":       cmdNick,
	"topic":      cmdTopic,
	"mode":       cmdMode,
	"kick":       cmdKick,
	"ban":        cmdBan(true),
	"unban":      cmdBan(false),
	"kickban":    cmdKickban,
	"kb":         cmdKickban,
	"sajoin":     cmdSajoin,
	"sapart":     cmdSapart,
	"gline":      operLine("GLINE", true),
	"zline":      operLine("ZLINE", true),
	"kline":      operLine("KLINE", true),
	"dline":      operLine("DLINE", true),
	"eline":      operLine("ELINE", true),
	"qline":      operLine("QLINE", true),
	"shun":       operLine("SHUN", true),
	"kill":       operLine("KILL", false),
	"wallops":    broadcast("WALLOPS"),
	"globops":    broadcast("GLOBOPS"),
	"locops":     broadcast("LOCOPS"),
	"operwall":   broadcast("OPERWALL"),
	"ctcp":       cmdCTCP,
	"finger":     ctcpShortcut("FINGER"),
	"userinfo":   ctcpShortcut("USERINFO"),
	"clientinfo": ctcpShortcut("CLIENTINFO"),
	"version":    ctcpShortcut("VERSION"),
	"time":       ctcpShortcut("TIME"),
	"ping":       cmdPing,
	"away":       cmdAway,
	"back":       cmdBack,
	"quit":       cmdQuit,
	"invite":     cmdInvite,
	"op":         rankMode("+", 'o'),
	"deop":       rankMode("-", 'o'),
	"hop":        rankMode("+", 'h'),
	"dehop":      rankMode("-", 'h'),
	"voice":      rankMode("+", 'v'),
	"devoice":    rankMode("-", 'v'),
	"raw":        cmdRaw,
	"quote":      cmdRaw,
	"dns":        cmdDNS,
}

// Execute runs one line of input typed into buffer. Text without a leading
// slash is a message to buffer.
func (i *Interpreter) Execute(buffer, input string) error {
	input = strings.TrimSpace(validation.SanitizeLine(input))
	if input == "" {
		return ErrEmpty
	}

	if !strings.HasPrefix(input, "/") {
		if buffer == "" {
			return i.raw(input)
		}
		return i.send("PRIVMSG", buffer, input)
	}

	word, rest, _ := strings.Cut(input[1:], " ")
	if word == "" {
		return fmt.Errorf("%w: /command [args]", ErrUsage)
	}
	c := &call{buffer: buffer, word: strings.ToLower(word), rest: rest, args: strings.Fields(rest)}

	i.log.Debug().Str("command", c.word).Str("buffer", buffer).Msg("Executing command")

	if fn, ok := table[c.word]; ok {
		return fn(i, c)
	}
	// Unknown commands go out verbatim with the word uppercased
	line := strings.ToUpper(word)
	if rest = strings.TrimSpace(rest); rest != "" {
		line += " " + rest
	}
	return i.raw(line)
}

func usage(text string) error {
	return fmt.Errorf("%w: %s", ErrUsage, text)
}

// send builds a line from sanitized params and queues it
func (i *Interpreter) send(command string, params ...string) error {
	for n, p := range params {
		params[n] = validation.SanitizeLine(p)
	}
	line, err := message.Build(command, params...)
	if err != nil {
		return err
	}
	i.s.Send(line)
	return nil
}

func (i *Interpreter) raw(line string) error {
	line = validation.SanitizeLine(line)
	if line == "" {
		return ErrEmpty
	}
	i.s.Send(line)
	return nil
}

func (i *Interpreter) status(text string) {
	i.s.Post(events.Status{Text: text})
}

// channel takes an explicit channel from the first argument or falls back
// to the buffer when it is a channel
func (i *Interpreter) channel(c *call) (channel string, args []string, ok bool) {
	if len(c.args) > 0 && i.s.IsChannel(c.args[0]) {
		return c.args[0], c.args[1:], true
	}
	if i.s.IsChannel(c.buffer) {
		return c.buffer, c.args, true
	}
	return "", c.args, false
}

// shift reports how many leading args the channel lookup consumed
func shift(c *call, args []string) int {
	return len(c.args) - len(args)
}

func cmdJoin(i *Interpreter, c *call) error {
	if len(c.args) == 0 {
		return usage("/join #channel[,#channel] [key]")
	}
	names := strings.Split(c.args[0], ",")
	for n, name := range names {
		if name != "" && !i.s.IsChannel(name) {
			names[n] = "#" + name
		}
	}
	params := []string{strings.Join(names, ",")}
	if len(c.args) > 1 {
		params = append(params, c.args[1])
	}
	return i.send("JOIN", params...)
}

func cmdPart(i *Interpreter, c *call) error {
	channel, args, ok := i.channel(c)
	if !ok {
		return usage("/part [#channel] [reason]")
	}
	if reason := c.text(shift(c, args)); reason != "" {
		return i.send("PART", channel, reason)
	}
	return i.send("PART", channel)
}

func cmdCycle(i *Interpreter, c *call) error {
	channel, args, ok := i.channel(c)
	if !ok {
		return usage("/cycle [#channel] [key]")
	}
	if err := i.send("PART", channel); err != nil {
		return err
	}
	params := []string{channel}
	if len(args) > 0 {
		params = append(params, args[0])
	}
	i.after(constants.CycleDelay, func() {
		if err := i.send("JOIN", params...); err != nil {
			i.log.Warn().Err(err).Str("channel", channel).Msg("Failed to rejoin")
		}
	})
	return nil
}

func cmdMsg(i *Interpreter, c *call) error {
	if len(c.args) < 2 {
		return usage("/msg target message")
	}
	return i.send("PRIVMSG", c.args[0], c.text(1))
}

func cmdNotice(i *Interpreter, c *call) error {
	if len(c.args) < 2 {
		return usage("/notice target message")
	}
	return i.send("NOTICE", c.args[0], c.text(1))
}

func cmdMe(i *Interpreter, c *call) error {
	target, text := c.buffer, c.text(0)
	// "/me #chan text" from a window that is not that channel
	if len(c.args) > 1 && i.s.IsChannel(c.args[0]) {
		target, text = c.args[0], c.text(1)
	}
	if target == "" || text == "" {
		return usage("/me action text")
	}
	return i.send("PRIVMSG", target, ctcp("ACTION", text))
}

func cmdAmsg(i *Interpreter, c *call) error {
	return i.everywhere(c, false)
}

func cmdAme(i *Interpreter, c *call) error {
	return i.everywhere(c, true)
}

// everywhere sends to every joined channel and echoes locally since the
// server does not send our own messages back
func (i *Interpreter) everywhere(c *call, action bool) error {
	text := c.text(0)
	if text == "" {
		if action {
			return usage("/ame action text")
		}
		return usage("/amsg message")
	}
	channels := i.s.JoinedChannels()
	if len(channels) == 0 {
		i.status("You are not in any channels")
		return nil
	}
	payload := text
	if action {
		payload = ctcp("ACTION", text)
	}
	nick := i.s.Nick()
	for _, channel := range channels {
		if err := i.send("PRIVMSG", channel, payload); err != nil {
			return err
		}
		i.s.Post(events.ChatMessage{
			Target: channel,
			From:   nick,
			Text:   text,
			Action: action,
			Self:   true,
			Time:   i.now(),
		})
	}
	return nil
}

// passthrough sends command with any arguments as they were typed
func passthrough(command string) commandFunc {
	return func(i *Interpreter, c *call) error {
		return i.send(command, c.args...)
	}
}

func cmdWhois(i *Interpreter, c *call) error {
	if len(c.args) == 0 {
		return usage("/whois [server] nickname")
	}
	nick := c.args[len(c.args)-1]
	if c.buffer != "" {
		i.s.RouteWhois(nick, c.buffer)
	}
	return i.send("WHOIS", c.args...)
}

func cmdWhowas(i *Interpreter, c *call) error {
	if len(c.args) == 0 {
		return usage("/whowas nickname [count]")
	}
	return i.send("WHOWAS", c.args...)
}

func cmdWho(i *Interpreter, c *call) error {
	if len(c.args) == 0 {
		if !i.s.IsChannel(c.buffer) {
			return usage("/who mask [flags]")
		}
		return i.send("WHO", c.buffer)
	}
	return i.send("WHO", c.args...)
}

// cmdHistory asks for the latest messages of a target. Replies arriving
// without a batch are classified as history for a short window.
func cmdHistory(i *Interpreter, c *call) error {
	target, limit := c.buffer, constants.DefaultHistoryLimit
	args := c.args
	if len(args) > 0 {
		if _, err := strconv.Atoi(args[0]); err != nil {
			target, args = args[0], args[1:]
		}
	}
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return usage("/history [target] [count]")
		}
		limit = n
	}
	if target == "" {
		return usage("/history [target] [count]")
	}
	i.s.ExpectHistory(target)
	return i.send("CHATHISTORY", "LATEST", target, "*", strconv.Itoa(limit))
}

func cmdNames(i *Interpreter, c *call) error {
	if channel, _, ok := i.channel(c); ok {
		return i.send("NAMES", channel)
	}
	return i.send("NAMES")
}

func cmdNick(i *Interpreter, c *call) error {
	if len(c.args) != 1 {
		return usage("/nick newnick")
	}
	if err := validation.ValidateNickname(c.args[0]); err != nil {
		return err
	}
	return i.send("NICK", c.args[0])
}

func cmdTopic(i *Interpreter, c *call) error {
	channel, args, ok := i.channel(c)
	if !ok {
		return usage("/topic [#channel] [new topic]")
	}
	if topic := c.text(shift(c, args)); topic != "" {
		return i.send("TOPIC", channel, topic)
	}
	return i.send("TOPIC", channel)
}

func cmdMode(i *Interpreter, c *call) error {
	args := c.args
	switch {
	case len(args) == 0:
		if c.buffer == "" {
			return usage("/mode target [modes] [args]")
		}
		return i.send("MODE", c.buffer)
	case (args[0][0] == '+' || args[0][0] == '-') && c.buffer != "":
		// "/mode +m" applies to the current buffer
		return i.send("MODE", append([]string{c.buffer}, args...)...)
	}
	return i.send("MODE", args...)
}

func cmdKick(i *Interpreter, c *call) error {
	channel, args, ok := i.channel(c)
	if !ok || len(args) == 0 {
		return usage("/kick [#channel] nickname [reason]")
	}
	if reason := c.text(shift(c, args) + 1); reason != "" {
		return i.send("KICK", channel, args[0], reason)
	}
	return i.send("KICK", channel, args[0])
}

// banMask widens a bare nick into nick!*@*
func banMask(target string) string {
	if strings.ContainsAny(target, "!@*$:") {
		return target
	}
	return target + "!*@*"
}

func cmdBan(add bool) commandFunc {
	sign := "-b"
	hint := "/unban [#channel] mask"
	if add {
		sign, hint = "+b", "/ban [#channel] nick|mask"
	}
	return func(i *Interpreter, c *call) error {
		channel, args, ok := i.channel(c)
		if !ok || len(args) == 0 {
			return usage(hint)
		}
		return i.send("MODE", channel, sign, banMask(args[0]))
	}
}

func cmdKickban(i *Interpreter, c *call) error {
	channel, args, ok := i.channel(c)
	if !ok || len(args) == 0 {
		return usage("/kickban [#channel] nickname [reason]")
	}
	nick := args[0]
	if err := i.send("MODE", channel, "+b", banMask(nick)); err != nil {
		return err
	}
	if reason := c.text(shift(c, args) + 1); reason != "" {
		return i.send("KICK", channel, nick, reason)
	}
	return i.send("KICK", channel, nick)
}

func cmdSajoin(i *Interpreter, c *call) error {
	if len(c.args) < 2 {
		return usage("/sajoin nickname #channel")
	}
	return i.send("SAJOIN", c.args[0], c.args[1])
}

func cmdSapart(i *Interpreter, c *call) error {
	if len(c.args) < 2 {
		return usage("/sapart nickname #channel [reason]")
	}
	if reason := c.text(2); reason != "" {
		return i.send("SAPART", c.args[0], c.args[1], reason)
	}
	return i.send("SAPART", c.args[0], c.args[1])
}

// isDuration matches ban durations such as 3600, 1d or 2h30m
func isDuration(s string) bool {
	if s == "" {
		return false
	}
	digits := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits = true
		case strings.ContainsRune("smhdwy", r) && digits:
		default:
			return false
		}
	}
	return s[0] >= '0' && s[0] <= '9'
}

// operLine builds server-ban style commands:
//
//	/gline <mask> [duration] [reason]  ->  GLINE <mask> [duration] :<reason>
//
// Removals ("-mask") take no duration or reason.
func operLine(command string, timed bool) commandFunc {
	return func(i *Interpreter, c *call) error {
		if len(c.args) == 0 {
			return usage("/" + strings.ToLower(command) + " target [duration] [reason]")
		}
		params := []string{c.args[0]}
		if strings.HasPrefix(c.args[0], "-") {
			return i.send(command, params...)
		}
		consumed := 1
		if timed && len(c.args) > 1 && isDuration(c.args[1]) {
			params = append(params, c.args[1])
			consumed++
		}
		if reason := c.text(consumed); reason != "" {
			params = append(params, reason)
		}
		return i.send(command, params...)
	}
}

func broadcast(command string) commandFunc {
	return func(i *Interpreter, c *call) error {
		text := c.text(0)
		if text == "" {
			return usage("/" + strings.ToLower(command) + " message")
		}
		return i.send(command, text)
	}
}

func ctcp(command, args string) string {
	if args == "" {
		return "\x01" + command + "\x01"
	}
	return "\x01" + command + " " + args + "\x01"
}

func cmdCTCP(i *Interpreter, c *call) error {
	if len(c.args) < 2 {
		return usage("/ctcp target command [args]")
	}
	return i.send("PRIVMSG", c.args[0], ctcp(strings.ToUpper(c.args[1]), c.text(2)))
}

func ctcpShortcut(command string) commandFunc {
	return func(i *Interpreter, c *call) error {
		target := c.buffer
		if len(c.args) > 0 {
			target = c.args[0]
		}
		if target == "" {
			return usage("/" + strings.ToLower(command) + " target")
		}
		return i.send("PRIVMSG", target, ctcp(command, ""))
	}
}

// cmdPing sends a CTCP PING carrying the send time in milliseconds
func cmdPing(i *Interpreter, c *call) error {
	target := c.buffer
	if len(c.args) > 0 {
		target = c.args[0]
	}
	if target == "" {
		return usage("/ping nickname")
	}
	return i.send("PRIVMSG", target, ctcp("PING", strconv.FormatInt(i.now().UnixMilli(), 10)))
}

func cmdAway(i *Interpreter, c *call) error {
	if text := c.text(0); text != "" {
		return i.send("AWAY", text)
	}
	return i.send("AWAY")
}

func cmdBack(i *Interpreter, c *call) error {
	return i.send("AWAY")
}

// cmdQuit hands off to the session, which sends QUIT and closes after a
// grace period
func cmdQuit(i *Interpreter, c *call) error {
	i.s.Disconnect(c.text(0))
	return nil
}

func cmdInvite(i *Interpreter, c *call) error {
	if len(c.args) == 0 {
		return usage("/invite nickname [#channel]")
	}
	channel := c.buffer
	if len(c.args) > 1 {
		channel = c.args[1]
	}
	if !i.s.IsChannel(channel) {
		return usage("/invite nickname [#channel]")
	}
	return i.send("INVITE", c.args[0], channel)
}

// rankMode builds /op-style commands: "/op [#chan] a b" -> "MODE #chan +oo a b"
func rankMode(sign string, mode byte) commandFunc {
	return func(i *Interpreter, c *call) error {
		channel, nicks, ok := i.channel(c)
		if !ok || len(nicks) == 0 {
			return usage("/" + c.word + " [#channel] nickname...")
		}
		modes := sign + strings.Repeat(string(mode), len(nicks))
		return i.send("MODE", append([]string{channel, modes}, nicks...)...)
	}
}

func cmdRaw(i *Interpreter, c *call) error {
	line := c.text(0)
	if line == "" {
		return usage("/raw command [args]")
	}
	return i.raw(line)
}

// cmdDNS resolves a host or address in the background and reports through
// status events
func cmdDNS(i *Interpreter, c *call) error {
	if len(c.args) != 1 {
		return usage("/dns hostname|address")
	}
	target := c.args[0]
	go i.lookup(target)
	return nil
}

func (i *Interpreter) lookup(target string) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.DNSTimeout)
	defer cancel()

	if net.ParseIP(target) != nil {
		names, err := i.resolver.LookupAddr(ctx, target)
		if err != nil || len(names) == 0 {
			i.status(fmt.Sprintf("DNS: no reverse record for %s", target))
			return
		}
		for _, name := range names {
			i.status(fmt.Sprintf("DNS: %s resolves to %s", target, strings.TrimSuffix(name, ".")))
		}
		return
	}

	addrs, err := i.resolver.LookupHost(ctx, target)
	if err != nil || len(addrs) == 0 {
		i.status(fmt.Sprintf("DNS: unable to resolve %s", target))
		return
	}
	for _, addr := range addrs {
		text := fmt.Sprintf("DNS: %s resolves to %s", target, addr)
		if names, err := i.resolver.LookupAddr(ctx, addr); err == nil && len(names) > 0 {
			text += " (" + strings.TrimSuffix(names[0], ".") + ")"
		}
		i.status(text)
	}
}
