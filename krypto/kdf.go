package krypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// SaltLength is the enforced salt length in bytes (128 bits).
	SaltLength = 16
	// KeyLength is the derived symmetric key length in bytes.
	KeyLength = 32

	// KDFArgon2id is the canonical key-derivation function.
	KDFArgon2id = "argon2id"
	// KDFPBKDF2 is accepted read-only for vaults created before argon2id
	// became the default.
	KDFPBKDF2 = "pbkdf2-sha256"
)

// ErrUnsupportedKDF indicates an unrecognized kdf name in metadata.
var ErrUnsupportedKDF = errors.New("unsupported kdf")

// Params captures tunable cost parameters for the password KDF.
type Params struct {
	MemoryKB    uint32
	Iterations  uint32
	Parallelism uint8
}

// DefaultSlowParams returns fallback cost parameters for the master-key
// derivation when calibration is skipped.
func DefaultSlowParams() Params {
	return Params{
		MemoryKB:    64 * 1024,
		Iterations:  3,
		Parallelism: 1,
	}
}

// DefaultFastParams returns fallback cost parameters for the fast-unlock key.
func DefaultFastParams() Params {
	return Params{
		MemoryKB:    16 * 1024,
		Iterations:  2,
		Parallelism: 1,
	}
}

// DeriveKey derives a 32-byte key from password and salt using the named KDF.
// Derivation is deterministic for fixed inputs.
func DeriveKey(password, salt []byte, kdfName string, p Params) ([]byte, error) {
	if len(password) == 0 {
		return nil, errors.New("password is required")
	}
	if len(salt) != SaltLength {
		return nil, fmt.Errorf("salt must be %d bytes", SaltLength)
	}

	switch kdfName {
	case KDFArgon2id:
		if p.MemoryKB == 0 {
			return nil, errors.New("memory parameter must be positive")
		}
		if p.Iterations == 0 {
			return nil, errors.New("iterations parameter must be positive")
		}
		if p.Parallelism == 0 {
			return nil, errors.New("parallelism parameter must be positive")
		}
		return argon2.IDKey(password, salt, p.Iterations, p.MemoryKB, p.Parallelism, KeyLength), nil
	case KDFPBKDF2:
		if p.Iterations == 0 {
			return nil, errors.New("iterations parameter must be positive")
		}
		return pbkdf2.Key(password, salt, int(p.Iterations), KeyLength, sha256.New), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKDF, kdfName)
	}
}

// NewRandomSalt returns a cryptographically secure random salt.
func NewRandomSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}
