package util

import (
	"fmt"

	"golang.org/x/crypto/argon2"
)

// KeySize is the length of keys produced by DeriveKey.
const KeySize = 32

// Argon2idParams tunes the passphrase KDF used for sealed session storage.
type Argon2idParams struct {
	Time        uint32 `json:"time"`
	MemoryKiB   uint32 `json:"memory"`
	Parallelism uint8  `json:"parallelism"`
}

// DefaultArgon2idParams returns the parameters used when none are configured.
func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		Time:        1,
		MemoryKiB:   64 * 1024,
		Parallelism: 4,
	}
}

// DeriveKey stretches a passphrase into a KeySize-byte key. The passphrase
// is NFKD-normalized first so equivalent Unicode input yields the same key.
func DeriveKey(passphrase string, salt []byte, params Argon2idParams) ([]byte, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase must not be empty")
	}
	if len(salt) < 8 {
		return nil, fmt.Errorf("salt must be at least 8 bytes, got %d", len(salt))
	}
	if params.Time == 0 || params.MemoryKiB == 0 || params.Parallelism == 0 {
		return nil, fmt.Errorf("invalid argon2id parameters: %+v", params)
	}
	return argon2.IDKey([]byte(NormalizePassphrase(passphrase)), salt, params.Time, params.MemoryKiB, params.Parallelism, KeySize), nil
}
