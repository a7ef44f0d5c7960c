// Package codec turns the server byte stream into decoded text lines and
// encodes outbound text, auto-detecting legacy charsets when asked to.
package codec

import (
	"fmt"
	"strings"
	"sync/atomic"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	xunicode "golang.org/x/text/encoding/unicode"

	"github.com/matt0x6f/irc-engine/internal/logger"
)

// Auto is the encoding preference that enables detection
const Auto = "auto"

// UTF8 is the canonical name of the default encoding
const UTF8 = "utf-8"

type charset struct {
	name string
	enc  encoding.Encoding
}

var utf8Charset = &charset{name: UTF8, enc: xunicode.UTF8}

// candidates is ordered; on equal scores the earlier entry wins
var candidates = []*charset{
	{"windows-1252", charmap.Windows1252},
	{"iso-8859-1", charmap.ISO8859_1},
	{"iso-8859-15", charmap.ISO8859_15},
	{"windows-1250", charmap.Windows1250},
	{"iso-8859-2", charmap.ISO8859_2},
	{"windows-1251", charmap.Windows1251},
	{"koi8-r", charmap.KOI8R},
	{"windows-1253", charmap.Windows1253},
	{"windows-1254", charmap.Windows1254},
	{"windows-1255", charmap.Windows1255},
	{"windows-1256", charmap.Windows1256},
	{"windows-1257", charmap.Windows1257},
	{"shift_jis", japanese.ShiftJIS},
	{"euc-jp", japanese.EUCJP},
	{"euc-kr", korean.EUCKR},
	{"gbk", simplifiedchinese.GBK},
	{"big5", traditionalchinese.Big5},
}

// Codec holds the encoding state of one connection. Decode is called by the
// reader goroutine only; Encode may be called from any goroutine.
type Codec struct {
	auto   bool
	active atomic.Pointer[charset]
	locked atomic.Bool
}

// New creates a codec for an encoding preference: "auto" or a charset name
func New(pref string) (*Codec, error) {
	c := &Codec{}
	cs, err := resolve(pref)
	if err != nil {
		return nil, err
	}
	if cs == nil {
		c.auto = true
		cs = utf8Charset
	}
	c.active.Store(cs)
	return c, nil
}

// Validate checks that an encoding preference names a known charset
func Validate(pref string) error {
	_, err := resolve(pref)
	return err
}

// resolve returns nil for "auto" or an empty preference
func resolve(pref string) (*charset, error) {
	pref = strings.TrimSpace(strings.ToLower(pref))
	if pref == "" || pref == Auto {
		return nil, nil
	}
	enc, err := htmlindex.Get(pref)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", pref, err)
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		name = pref
	}
	if name == UTF8 {
		return utf8Charset, nil
	}
	return &charset{name: name, enc: enc}, nil
}

// Active returns the canonical name of the encoding currently in use
func (c *Codec) Active() string {
	return c.active.Load().name
}

// Locked reports whether auto-detection has settled on a legacy encoding
func (c *Codec) Locked() bool {
	return c.locked.Load()
}

// Decode converts one raw line to text. In auto mode a line that is not
// strictly valid UTF-8 triggers detection; the winning charset is locked for
// the rest of the connection and also decodes the triggering line.
func (c *Codec) Decode(raw []byte) string {
	if c.auto && !c.locked.Load() {
		if IsStrictUTF8(raw) {
			return string(raw)
		}
		best := detect(raw)
		c.active.Store(best)
		c.locked.Store(true)
		logger.Log.Debug().Str("encoding", best.name).Msg("Locked inbound encoding")
	}
	return c.active.Load().decode(raw)
}

// Encode converts outbound text using the active encoding. Runes the charset
// cannot represent are replaced.
func (c *Codec) Encode(s string) []byte {
	cs := c.active.Load()
	if cs == utf8Charset {
		return []byte(s)
	}
	out, err := encoding.ReplaceUnsupported(cs.enc.NewEncoder()).Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return out
}

func (cs *charset) decode(raw []byte) string {
	if cs == utf8Charset {
		return strings.ToValidUTF8(string(raw), "\uFFFD")
	}
	out, err := cs.enc.NewDecoder().Bytes(raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), "\uFFFD")
	}
	return string(out)
}

func detect(raw []byte) *charset {
	best := candidates[0]
	bestScore := 0
	for i, cs := range candidates {
		score := Score(cs.decode(raw))
		if i == 0 || score > bestScore {
			best, bestScore = cs, score
		}
	}
	return best
}

// IsStrictUTF8 reports whether b is valid UTF-8 without replacement characters
func IsStrictUTF8(b []byte) bool {
	if !utf8.Valid(b) {
		return false
	}
	return !strings.ContainsRune(string(b), utf8.RuneError)
}

const commonPunct = " .,;:!?'\"-_()[]{}<>/\\@#&*+=%$~^`|"

// Score rates how plausible a decoded line is as human text
func Score(s string) int {
	score, repl, n := 0, 0, 0
	for _, r := range s {
		n++
		switch {
		case r == utf8.RuneError:
			score -= 100
			repl++
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			score += 2
		case strings.ContainsRune(commonPunct, r):
			score++
		case r >= 0x02 && r <= 0x1F:
			// mIRC bold, colour, reverse, italic, underline
			score++
		case unicode.IsControl(r):
			score -= 10
		}
	}
	if repl == 0 && n > 10 {
		score += n / 5
	}
	return score
}
