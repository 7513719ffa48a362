package vault

import "errors"

var (
	// ErrInvalidPassword indicates the slow-path verifier rejected the
	// candidate key derived from the supplied password.
	ErrInvalidPassword = errors.New("invalid password")

	// ErrCorruptedKey indicates the stored wrapped key failed to
	// authenticate or unwrap. Recoverable: callers fall back to the slow
	// derivation path.
	ErrCorruptedKey = errors.New("invalid password or corrupted key")

	// ErrTamperedFastParams indicates the fast-unlock parameter block does
	// not match its signature. The fast path must be abandoned; weakened
	// parameters are never trusted.
	ErrTamperedFastParams = errors.New("fast-unlock parameters failed verification")

	// ErrMissingMetadata indicates the directory does not contain a vault.
	ErrMissingMetadata = errors.New("vault metadata not found")

	// ErrMissingPart indicates a payload part file is absent or truncated.
	ErrMissingPart = errors.New("vault part missing or truncated")
)
