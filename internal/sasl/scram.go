package sasl

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"hash"
	"strconv"
	"strings"

	gosasl "github.com/emersion/go-sasl"
	"golang.org/x/crypto/pbkdf2"
)

// ErrServerSignature is returned when the server-final message does not
// prove knowledge of the password
var ErrServerSignature = errors.New("server signature mismatch")

// scramClient implements SCRAM-SHA-256 and SCRAM-SHA-512 without channel binding
type scramClient struct {
	mechanism string
	hash      func() hash.Hash
	username  string
	password  string
	nonce     func() (string, error)

	clientNonce     string
	clientFirstBare string
	serverKey       []byte
	authMessage     string
	step            int
}

var _ gosasl.Client = (*scramClient)(nil)

func newSCRAMClient(mechanism, username, password string) (*scramClient, error) {
	var h func() hash.Hash
	switch mechanism {
	case ScramSHA256:
		h = sha256.New
	case ScramSHA512:
		h = sha512.New
	default:
		return nil, fmt.Errorf("unsupported SCRAM mechanism %q", mechanism)
	}
	return &scramClient{
		mechanism: mechanism,
		hash:      h,
		username:  username,
		password:  password,
		nonce:     randomNonce,
	}, nil
}

// Start produces the client-first message
func (s *scramClient) Start() (string, []byte, error) {
	nonce, err := s.nonce()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	s.clientNonce = nonce
	s.clientFirstBare = "n=" + escapeSCRAMName(s.username) + ",r=" + nonce
	s.step = 0
	// gs2 header: no channel binding, no authzid
	return s.mechanism, []byte("n,," + s.clientFirstBare), nil
}

// Next answers server-first with client-final, then verifies server-final
func (s *scramClient) Next(challenge []byte) ([]byte, error) {
	s.step++
	switch s.step {
	case 1:
		return s.clientFinal(string(challenge))
	case 2:
		return s.verifyServerFinal(string(challenge))
	default:
		return nil, gosasl.ErrUnexpectedServerChallenge
	}
}

// scramAttrs holds the single-letter attributes of a SCRAM message
type scramAttrs map[byte]string

func splitAttrs(msg string) scramAttrs {
	attrs := make(scramAttrs)
	for _, field := range strings.Split(msg, ",") {
		if len(field) >= 2 && field[1] == '=' {
			attrs[field[0]] = field[2:]
		}
	}
	return attrs
}

func (s *scramClient) clientFinal(serverFirst string) ([]byte, error) {
	attrs := splitAttrs(serverFirst)
	if _, ok := attrs['m']; ok {
		return nil, fmt.Errorf("unsupported mandatory SCRAM extension")
	}

	serverNonce, ok := attrs['r']
	if !ok || !strings.HasPrefix(serverNonce, s.clientNonce) || len(serverNonce) == len(s.clientNonce) {
		return nil, fmt.Errorf("invalid server nonce")
	}
	salt, err := base64.StdEncoding.DecodeString(attrs['s'])
	if err != nil || len(salt) == 0 {
		return nil, fmt.Errorf("invalid salt")
	}
	iterations, err := strconv.Atoi(attrs['i'])
	if err != nil || iterations <= 0 {
		return nil, fmt.Errorf("invalid iteration count %q", attrs['i'])
	}

	salted := pbkdf2.Key([]byte(s.password), salt, iterations, s.hash().Size(), s.hash)
	clientKey := s.mac(salted, "Client Key")
	storedKey := s.hash()
	storedKey.Write(clientKey)
	s.serverKey = s.mac(salted, "Server Key")

	withoutProof := "c=" + base64.StdEncoding.EncodeToString([]byte("n,,")) + ",r=" + serverNonce
	s.authMessage = s.clientFirstBare + "," + serverFirst + "," + withoutProof

	// ClientProof = ClientKey XOR HMAC(StoredKey, AuthMessage)
	proof := s.mac(storedKey.Sum(nil), s.authMessage)
	for i := range proof {
		proof[i] ^= clientKey[i]
	}
	return []byte(withoutProof + ",p=" + base64.StdEncoding.EncodeToString(proof)), nil
}

func (s *scramClient) verifyServerFinal(serverFinal string) ([]byte, error) {
	attrs := splitAttrs(serverFinal)
	if e, ok := attrs['e']; ok {
		return nil, fmt.Errorf("server rejected authentication: %s", e)
	}
	signature, err := base64.StdEncoding.DecodeString(attrs['v'])
	if err != nil || len(signature) == 0 {
		return nil, ErrServerSignature
	}
	if !hmac.Equal(signature, s.mac(s.serverKey, s.authMessage)) {
		return nil, ErrServerSignature
	}
	return []byte{}, nil
}

// mac is HMAC over the negotiated hash
func (s *scramClient) mac(key []byte, data string) []byte {
	m := hmac.New(s.hash, key)
	m.Write([]byte(data))
	return m.Sum(nil)
}

func randomNonce() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawStdEncoding.EncodeToString(buf), nil
}

func escapeSCRAMName(name string) string {
	name = strings.ReplaceAll(name, "=", "=3D")
	return strings.ReplaceAll(name, ",", "=2C")
}
