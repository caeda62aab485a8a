package signtoken

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

const (
	tag       = "SIGN"
	delimiter = "|"
	nonceLen  = 8
)

// Result carries the outcome of validating a signing token. DocumentID and
// SignerID are populated for expired-but-well-formed tokens so callers can log
// diagnostics; malformed tokens yield a zero Result.
type Result struct {
	Valid      bool
	Expired    bool
	DocumentID string
	SignerID   string
}

// Codec encodes and validates self-contained signing tokens. It is stateless;
// clock and entropy are injected so expiry and round-trip behaviour are
// deterministic under test.
type Codec struct {
	now     func() time.Time
	entropy io.Reader
}

// Option customises a Codec.
type Option func(*Codec)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// WithEntropy overrides the random source used for nonces.
func WithEntropy(r io.Reader) Option {
	return func(c *Codec) {
		if r != nil {
			c.entropy = r
		}
	}
}

// NewCodec constructs a codec backed by the real clock and crypto/rand.
func NewCodec(opts ...Option) *Codec {
	c := &Codec{now: time.Now, entropy: rand.Reader}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Issue produces a URL-safe bearer token binding the document, the signer, and
// an expiry horizon expressed in days from now. Negative day counts produce an
// already-expired token.
func (c *Codec) Issue(documentID, signerID string, expiryDays int) (string, time.Time, error) {
	if documentID == "" || signerID == "" {
		return "", time.Time{}, fmt.Errorf("documentID and signerID required")
	}
	if strings.Contains(documentID, delimiter) || strings.Contains(signerID, delimiter) {
		return "", time.Time{}, fmt.Errorf("identifiers must not contain the token delimiter")
	}

	expiresAt := c.now().Add(time.Duration(expiryDays) * 24 * time.Hour)
	nonce, err := c.nonce()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate token nonce: %w", err)
	}

	payload := strings.Join([]string{
		tag,
		documentID,
		signerID,
		strconv.FormatInt(expiresAt.Unix(), 10),
		nonce,
	}, delimiter)

	return base64.RawURLEncoding.EncodeToString([]byte(payload)), expiresAt, nil
}

// Validate decodes a token and checks its structure and expiry. Every decode or
// parse failure is reported as an invalid token; no structural detail escapes
// to the caller.
func (c *Codec) Validate(token string) Result {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Result{}
	}

	parts := strings.Split(string(raw), delimiter)
	if len(parts) != 5 {
		return Result{}
	}
	if parts[0] != tag {
		return Result{}
	}

	documentID, signerID := parts[1], parts[2]
	if documentID == "" || signerID == "" {
		return Result{}
	}

	expiry, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return Result{}
	}

	if c.now().After(time.Unix(expiry, 0)) {
		return Result{Expired: true, DocumentID: documentID, SignerID: signerID}
	}

	return Result{Valid: true, DocumentID: documentID, SignerID: signerID}
}

func (c *Codec) nonce() (string, error) {
	buf := make([]byte, nonceLen)
	if _, err := io.ReadFull(c.entropy, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
