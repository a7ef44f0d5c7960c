package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ergochat/irc-go/ircreader"

	"github.com/matt0x6f/irc-engine/internal/constants"
)

// Reader frames a byte stream into decoded IRC lines
type Reader struct {
	lines ircreader.Reader
	codec *Codec
}

// NewReader wraps src. Lines end in CRLF or a bare LF; other CR bytes are dropped.
func NewReader(src io.Reader, c *Codec) *Reader {
	r := &Reader{codec: c}
	r.lines.Initialize(src, 512, constants.MaxLineBytes)
	return r
}

// ReadLine blocks until a non-empty line is available. It returns io.EOF when
// the stream ends cleanly.
func (r *Reader) ReadLine() (string, error) {
	for {
		raw, err := r.lines.ReadLine()
		if err != nil {
			if errors.Is(err, ircreader.ErrReadQ) {
				return "", fmt.Errorf("failed to read line (limit %d bytes): %w", constants.MaxLineBytes, err)
			}
			return "", err
		}
		// the returned slice aliases the framing buffer; Replace copies
		raw = bytes.ReplaceAll(raw, []byte{'\r'}, nil)
		if len(raw) == 0 {
			continue
		}
		return r.codec.Decode(raw), nil
	}
}
