package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestRandBytes(t *testing.T) {
	t.Parallel()

	a, err := RandBytes(32)
	if err != nil || len(a) != 32 {
		t.Fatalf("RandBytes: len=%d err=%v", len(a), err)
	}
	b, _ := RandBytes(32)
	if bytes.Equal(a, b) || bytes.Equal(a, make([]byte, 32)) {
		t.Fatalf("RandBytes output looks non-random: %x", a)
	}
}

func TestPasswordHashing(t *testing.T) {
	t.Parallel()

	pw := []byte("correct horse battery staple")
	salt := []byte("0123456789abcdef")
	stored := HashPassword(pw, salt)
	if !bytes.Equal(stored, HashPassword(pw, salt)) {
		t.Fatalf("hash is not deterministic for the same input")
	}

	cases := []struct {
		name   string
		pw     []byte
		salt   []byte
		stored []byte
		want   bool
	}{
		{"match", pw, salt, stored, true},
		{"wrong password", []byte("correct horse"), salt, stored, false},
		{"wrong salt", pw, []byte("fedcba9876543210"), stored, false},
		{"empty password", nil, salt, stored, false},
		{"external account", pw, salt, nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := VerifyPassword(tc.pw, tc.salt, tc.stored); got != tc.want {
				t.Fatalf("VerifyPassword=%v, want %v", got, tc.want)
			}
		})
	}
}

func TestNewToken(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for range 16 {
		tok, err := NewToken()
		if err != nil {
			t.Fatalf("NewToken: %v", err)
		}
		if raw, err := hex.DecodeString(tok); err != nil || len(raw) != tokenBytes {
			t.Fatalf("token %q is not %d hex-encoded bytes", tok, tokenBytes)
		}
		if seen[tok] {
			t.Fatalf("token %q repeated", tok)
		}
		seen[tok] = true
	}
}
