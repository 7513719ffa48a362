package krypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"errors"
)

// DeriveNonce derives a 12-byte nonce from a keyed PRF over label and a
// monotonic counter: the truncated HMAC-SHA256 of label||be64(counter).
// For a fixed key and label, distinct counters yield distinct nonces, so the
// caller must never feed the same counter value twice (the orchestrator
// durably increments the counter before calling).
func DeriveNonce(key []byte, label string, counter uint64) ([]byte, error) {
	if len(key) != KeyLength {
		return nil, errors.New("prf requires a 32-byte key")
	}
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], counter)

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(label))
	mac.Write(ctr[:])
	sum := mac.Sum(nil)
	return sum[:NonceSize], nil
}

// KeyedTag returns HMAC-SHA256 of msg keyed by key.
func KeyedTag(key, msg []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	return mac.Sum(nil)
}

// TagsEqual compares two tags in constant time.
func TagsEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
