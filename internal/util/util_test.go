package util

import (
	"bytes"
	"testing"
)

var testParams = Argon2idParams{Time: 1, MemoryKiB: 8 * 1024, Parallelism: 1}

func TestDeriveKey(t *testing.T) {
	salt := []byte("0123456789abcdef")

	t.Run("Deterministic", func(t *testing.T) {
		k1, err := DeriveKey("correct horse battery staple", salt, testParams)
		if err != nil {
			t.Fatalf("DeriveKey failed: %v", err)
		}
		if len(k1) != KeySize {
			t.Errorf("expected key length %d, got %d", KeySize, len(k1))
		}
		k2, _ := DeriveKey("correct horse battery staple", salt, testParams)
		if !bytes.Equal(k1, k2) {
			t.Error("DeriveKey should be deterministic")
		}
	})

	t.Run("DifferentSalt", func(t *testing.T) {
		k1, _ := DeriveKey("pw-long-enough", salt, testParams)
		k2, _ := DeriveKey("pw-long-enough", []byte("fedcba9876543210"), testParams)
		if bytes.Equal(k1, k2) {
			t.Error("different salts must produce different keys")
		}
	})

	t.Run("UnicodeNormalization", func(t *testing.T) {
		// "é" precomposed vs. "e" + combining acute accent.
		k1, _ := DeriveKey("caf\u00e9", salt, testParams)
		k2, _ := DeriveKey("cafe\u0301", salt, testParams)
		if !bytes.Equal(k1, k2) {
			t.Error("normalized passphrases should derive the same key")
		}
	})

	t.Run("RejectsBadInput", func(t *testing.T) {
		if _, err := DeriveKey("", salt, testParams); err == nil {
			t.Error("expected error for empty passphrase")
		}
		if _, err := DeriveKey("pw", []byte("short"), testParams); err == nil {
			t.Error("expected error for short salt")
		}
		if _, err := DeriveKey("pw", salt, Argon2idParams{}); err == nil {
			t.Error("expected error for zero params")
		}
	})
}

func TestNormalizeUsername(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  alice ", "alice"},
		{"\talice\n", "alice"},
		{"\uff41\uff4c\uff49\uff43\uff45", "alice"}, // full-width letters fold under NFKC
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeUsername(tt.in); got != tt.want {
			t.Errorf("NormalizeUsername(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWipeBytes(t *testing.T) {
	b := []byte("secret")
	c := CopyBytes(b)
	WipeBytes(b)
	if !bytes.Equal(b, make([]byte, 6)) {
		t.Errorf("expected zeroed slice, got %v", b)
	}
	if string(c) != "secret" {
		t.Errorf("copy should be unaffected by wipe, got %q", c)
	}
}

func TestRandomBytes(t *testing.T) {
	a, err := RandomBytes(16)
	if err != nil {
		t.Fatalf("RandomBytes failed: %v", err)
	}
	b, _ := RandomBytes(16)
	if len(a) != 16 || bytes.Equal(a, b) {
		t.Error("RandomBytes should return distinct 16-byte values")
	}
}
