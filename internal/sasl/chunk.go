package sasl

import (
	"strings"

	"github.com/matt0x6f/irc-engine/internal/constants"
)

// ChunkAuthenticate splits a base64 payload into AUTHENTICATE lines. When the
// last chunk is a full 400 characters (or the payload is empty) an
// "AUTHENTICATE +" terminator follows.
func ChunkAuthenticate(b64 string) []string {
	size := constants.AuthenticateChunkSize
	lines := make([]string, 0, len(b64)/size+1)
	for len(b64) >= size {
		lines = append(lines, "AUTHENTICATE "+b64[:size])
		b64 = b64[size:]
	}
	if b64 == "" {
		return append(lines, "AUTHENTICATE +")
	}
	return append(lines, "AUTHENTICATE "+b64)
}

// Reassembler joins inbound AUTHENTICATE chunks into one payload
type Reassembler struct {
	buf strings.Builder
}

// Feed adds one chunk. It returns the payload once complete.
func (r *Reassembler) Feed(chunk string) (string, bool) {
	switch {
	case chunk == "*":
		r.buf.Reset()
		return "", false
	case chunk == "+":
		if r.buf.Len() == 0 {
			return "", false
		}
		return r.flush(), true
	case len(chunk) < constants.AuthenticateChunkSize:
		r.buf.WriteString(chunk)
		return r.flush(), true
	default:
		r.buf.WriteString(chunk)
		return "", false
	}
}

// Reset drops any partial payload
func (r *Reassembler) Reset() {
	r.buf.Reset()
}

func (r *Reassembler) flush() string {
	s := r.buf.String()
	r.buf.Reset()
	return s
}
