package irc

import (
	"strings"

	"github.com/matt0x6f/irc-engine/internal/events"
	"github.com/matt0x6f/irc-engine/internal/logger"
)

// Case mappings understood by fold
const (
	CaseMappingASCII         = "ascii"
	CaseMappingRFC1459       = "rfc1459"
	CaseMappingStrictRFC1459 = "strict-rfc1459"
)

// isupport holds the server dialect learned from 005. Blank or missing
// tokens leave the previous values alone.
type isupport struct {
	chanTypes   string
	caseMapping string
	statusMsg   string
	chanModes   [4]string
	prefix      []events.PrefixMode
	network     string
}

func defaultISupport() isupport {
	return isupport{
		chanTypes:   "#&",
		caseMapping: CaseMappingRFC1459,
		chanModes:   [4]string{"beI", "k", "l", "imnpst"},
		prefix: []events.PrefixMode{
			{Mode: 'o', Symbol: '@'},
			{Mode: 'v', Symbol: '+'},
		},
	}
}

// apply updates the dialect from ISUPPORT tokens and reports whether
// anything we track changed
func (i *isupport) apply(tokens []string) bool {
	changed := false
	for _, token := range tokens {
		if token == "" || token[0] == '-' {
			continue
		}
		key, value, _ := strings.Cut(token, "=")
		if value == "" {
			continue
		}
		switch strings.ToUpper(key) {
		case "CHANTYPES":
			i.chanTypes = value
		case "CASEMAPPING":
			i.caseMapping = strings.ToLower(value)
		case "STATUSMSG":
			i.statusMsg = value
		case "CHANMODES":
			parts := strings.SplitN(value, ",", 4)
			var modes [4]string
			copy(modes[:], parts)
			i.chanModes = modes
		case "PREFIX":
			prefix, ok := parsePrefix(value)
			if !ok {
				continue
			}
			i.prefix = prefix
		case "NETWORK":
			i.network = value
		default:
			continue
		}
		changed = true
	}
	return changed
}

// parsePrefix parses the PREFIX parameter from ISUPPORT
// Format: (ov)@+ where (ov) are the mode letters and @+ are the prefix characters
func parsePrefix(value string) ([]events.PrefixMode, bool) {
	openParen := strings.IndexRune(value, '(')
	if openParen == -1 {
		logger.Log.Warn().Str("prefix", value).Msg("Invalid PREFIX format: missing opening parenthesis")
		return nil, false
	}
	closeParen := strings.IndexRune(value[openParen:], ')')
	if closeParen == -1 {
		logger.Log.Warn().Str("prefix", value).Msg("Invalid PREFIX format: missing closing parenthesis")
		return nil, false
	}
	closeParen += openParen

	// First prefix char maps to first mode letter, etc.
	modeRunes := []rune(value[openParen+1 : closeParen])
	symbolRunes := []rune(value[closeParen+1:])

	prefix := make([]events.PrefixMode, 0, len(modeRunes))
	for n := 0; n < len(modeRunes) && n < len(symbolRunes); n++ {
		prefix = append(prefix, events.PrefixMode{Mode: modeRunes[n], Symbol: symbolRunes[n]})
	}
	return prefix, true
}

func (i *isupport) snapshot() events.ISupport {
	return events.ISupport{
		ChanTypes:   i.chanTypes,
		CaseMapping: i.caseMapping,
		StatusMsg:   i.statusMsg,
		ChanModes:   i.chanModes,
		Prefix:      append([]events.PrefixMode(nil), i.prefix...),
		Network:     i.network,
	}
}

// fold case-folds a nick or channel name under the server casemapping
func (i *isupport) fold(s string) string {
	return foldCase(i.caseMapping, s)
}

func foldCase(mapping, s string) string {
	switch mapping {
	case CaseMappingASCII:
		return asciiLower(s)
	case CaseMappingRFC1459, CaseMappingStrictRFC1459:
		strict := mapping == CaseMappingStrictRFC1459
		b := []byte(s)
		for n, c := range b {
			switch {
			case c >= 'A' && c <= 'Z':
				b[n] = c + 32
			case c == '[':
				b[n] = '{'
			case c == ']':
				b[n] = '}'
			case c == '\\':
				b[n] = '|'
			case c == '~' && !strict:
				b[n] = '^'
			}
		}
		return string(b)
	default:
		return strings.ToLower(s)
	}
}

func asciiLower(s string) string {
	b := []byte(s)
	for n, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[n] = c + 32
		}
	}
	return string(b)
}

func (i *isupport) isChannel(name string) bool {
	return name != "" && strings.IndexByte(i.chanTypes, name[0]) >= 0
}

// splitStatus separates a STATUSMSG prefix such as "@" in "@#chan"
func (i *isupport) splitStatus(target string) (prefix, bare string) {
	n := 0
	for n < len(target) && strings.IndexByte(i.statusMsg, target[n]) >= 0 {
		n++
	}
	if n == 0 || !i.isChannel(target[n:]) {
		return "", target
	}
	return target[:n], target[n:]
}

// symbolFor returns the nick-list symbol of a rank mode letter
func (i *isupport) symbolFor(mode rune) (rune, bool) {
	for _, p := range i.prefix {
		if p.Mode == mode {
			return p.Symbol, true
		}
	}
	return 0, false
}

func (i *isupport) isPrefixSymbol(c rune) bool {
	for _, p := range i.prefix {
		if p.Symbol == c {
			return true
		}
	}
	return false
}

// modeTakesParam reports whether a channel mode letter consumes an argument
func (i *isupport) modeTakesParam(mode rune, adding bool) bool {
	if _, ok := i.symbolFor(mode); ok {
		return true
	}
	switch {
	case strings.ContainsRune(i.chanModes[0], mode), strings.ContainsRune(i.chanModes[1], mode):
		return true
	case strings.ContainsRune(i.chanModes[2], mode):
		return adding
	}
	return false
}
