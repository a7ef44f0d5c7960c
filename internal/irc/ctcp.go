package irc

import (
	"encoding/binary"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/matt0x6f/irc-engine/internal/events"
)

const ctcpDelim = '\x01'

// SourceURL is the CTCP SOURCE reply
const SourceURL = "https://github.com/matt0x6f/irc-engine"

// parseCTCP unwraps a \x01-delimited CTCP payload. The closing delimiter is
// optional in the wild.
func parseCTCP(text string) (command, args string, ok bool) {
	if len(text) < 2 || text[0] != ctcpDelim {
		return "", "", false
	}
	body := strings.TrimSuffix(text[1:], string(ctcpDelim))
	command, args, _ = strings.Cut(body, " ")
	if command == "" {
		return "", "", false
	}
	return strings.ToUpper(command), args, true
}

// ctcp wraps a CTCP command and optional args
func ctcp(command, args string) string {
	if args == "" {
		return string(ctcpDelim) + command + string(ctcpDelim)
	}
	return string(ctcpDelim) + command + " " + args + string(ctcpDelim)
}

// replyCTCP answers the CTCP requests we support
func (s *session) replyCTCP(from, command, args string, r *result) {
	var response string
	switch command {
	case "VERSION":
		response = s.e.cfg.CTCPVersion
	case "TIME":
		response = s.e.now().Format(time.RFC1123Z)
	case "PING":
		// Echo back the ping argument or use current timestamp
		if args != "" {
			response = args
		} else {
			response = strconv.FormatInt(s.e.now().Unix(), 10)
		}
	case "FINGER", "USERINFO":
		response = s.e.cfg.Identity.Realname
		if response == "" {
			response = s.nick
		}
	case "CLIENTINFO":
		response = "ACTION CLIENTINFO DCC FINGER PING SOURCE TIME USERINFO VERSION"
	case "SOURCE":
		response = SourceURL
	default:
		// Unknown CTCP command - don't respond
		return
	}

	r.command("NOTICE", from, ctcp(command, response))

	s.log.Debug().
		Str("from", from).
		Str("command", command).
		Str("response", response).
		Msg("Handled CTCP request")
}

// parseDCC extracts a DCC SEND, TSEND or CHAT offer:
//
//	SEND <filename> <ip> <port> [<size> [<token>]]
//	CHAT chat <ip> <port>
//
// The filename may be quoted and the ip is either a decimal IPv4 integer or
// a literal address.
func parseDCC(from, args string) (events.DCCOffer, bool) {
	kind, rest, _ := strings.Cut(args, " ")
	kind = strings.ToUpper(kind)
	if kind != "SEND" && kind != "TSEND" && kind != "CHAT" {
		return events.DCCOffer{}, false
	}

	rest = strings.TrimSpace(rest)
	var filename string
	if strings.HasPrefix(rest, `"`) {
		end := strings.IndexByte(rest[1:], '"')
		if end < 0 {
			return events.DCCOffer{}, false
		}
		filename = rest[1 : end+1]
		rest = rest[end+2:]
	} else {
		filename, rest, _ = strings.Cut(rest, " ")
	}

	fields := strings.Fields(rest)
	if filename == "" || len(fields) < 2 {
		return events.DCCOffer{}, false
	}
	host, ok := dccHost(fields[0])
	if !ok {
		return events.DCCOffer{}, false
	}
	port, err := strconv.Atoi(fields[1])
	if err != nil || port < 0 || port > 65535 {
		return events.DCCOffer{}, false
	}

	offer := events.DCCOffer{From: from, Type: kind, Filename: filename, Host: host, Port: port}
	if len(fields) > 2 {
		offer.Size, _ = strconv.ParseInt(fields[2], 10, 64)
	}
	if len(fields) > 3 {
		offer.Token = fields[3]
	}
	return offer, true
}

func dccHost(field string) (string, bool) {
	if n, err := strconv.ParseUint(field, 10, 32); err == nil {
		ip := make(net.IP, 4)
		binary.BigEndian.PutUint32(ip, uint32(n))
		return ip.String(), true
	}
	if ip := net.ParseIP(field); ip != nil {
		return ip.String(), true
	}
	return "", false
}
