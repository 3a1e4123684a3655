package signing

import (
	"strconv"
	"testing"
	"time"
)

func TestSignerRoundTrip(t *testing.T) {
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	s := NewSigner([]byte("topsecret")).WithClock(func() time.Time { return base })

	token, exp := s.Issue("audio/t1/file.mp3", time.Hour)
	if token == "" {
		t.Fatalf("expected a token")
	}
	if exp != base.Add(time.Hour).Unix() {
		t.Fatalf("expiry %d, want %d", exp, base.Add(time.Hour).Unix())
	}

	expires := strconv.FormatInt(exp, 10)
	if !s.Validate("audio/t1/file.mp3", expires, token) {
		t.Fatalf("fresh token must validate")
	}
	if s.Validate("audio/t2/file.mp3", expires, token) {
		t.Fatalf("token must be bound to the media key")
	}
	if s.Validate("audio/t1/file.mp3", "not-a-number", token) {
		t.Fatalf("malformed expiry must fail")
	}

	// Past the expiry the same token is rejected.
	late := s.WithClock(func() time.Time { return base.Add(2 * time.Hour) })
	if late.Validate("audio/t1/file.mp3", expires, token) {
		t.Fatalf("expired token must fail")
	}
}

func TestSignerSecretMatters(t *testing.T) {
	a := NewSigner([]byte("secret-a"))
	b := NewSigner([]byte("secret-b"))
	if a.Sign("audio/t1/file.mp3", 1700000000) == b.Sign("audio/t1/file.mp3", 1700000000) {
		t.Fatalf("different secrets must produce different tokens")
	}
}
