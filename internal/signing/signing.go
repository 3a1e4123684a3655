// Package signing issues and verifies expiring HMAC tokens for media
// download links, so audio can be fetched without exposing the blob store.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Signer generates and validates download tokens for media object keys.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a Signer from the shared secret.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret, now: time.Now}
}

// WithClock returns a copy using the given clock.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	out := *s
	out.now = now
	return &out
}

// Sign returns the hex token authorizing access to the media key until
// expiresUnix.
func (s *Signer) Sign(mediaKey string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%d", mediaKey, expiresUnix)
	return hex.EncodeToString(mac.Sum(nil))
}

// Issue signs the media key for the given lifetime and returns the token with
// its expiry timestamp.
func (s *Signer) Issue(mediaKey string, ttl time.Duration) (token string, expiresUnix int64) {
	expiresUnix = s.now().Add(ttl).Unix()
	return s.Sign(mediaKey, expiresUnix), expiresUnix
}

// Validate checks the token against the media key and rejects expired links.
func (s *Signer) Validate(mediaKey, expires, token string) bool {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return false
	}
	if s.now().Unix() > exp {
		return false
	}
	expected := s.Sign(mediaKey, exp)
	return hmac.Equal([]byte(expected), []byte(token))
}
