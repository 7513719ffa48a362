package vault

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/lockbox-sh/lockbox/krypto"
)

// wrapLabel prefixes the wrapped plaintext so unwrap can distinguish a key
// decrypted with the right FastKey from garbage, independent of the AEAD tag.
// It doubles as a format/version marker.
const wrapLabel = "LBXKEYv2"

var wrapAAD = []byte("lockbox.wrapped-key")

var (
	errWrapTag   = errors.New("wrapped key failed authentication")
	errWrapLabel = errors.New("wrapped key label mismatch")
)

// WrapKey encrypts label||masterKey under fastKey with the given nonce and
// returns the blob nonce||ciphertext||tag.
func WrapKey(fastKey, masterKey, nonce []byte, cipherName string) ([]byte, error) {
	if len(masterKey) != krypto.KeyLength {
		return nil, errors.New("invalid master key length")
	}

	plain := make([]byte, 0, len(wrapLabel)+len(masterKey))
	plain = append(plain, wrapLabel...)
	plain = append(plain, masterKey...)
	defer krypto.Zeroize(plain)

	ct, err := krypto.Seal(cipherName, fastKey, nonce, plain, wrapAAD)
	if err != nil {
		return nil, fmt.Errorf("wrap key: %w", err)
	}

	blob := make([]byte, 0, len(nonce)+len(ct))
	blob = append(blob, nonce...)
	blob = append(blob, ct...)
	return blob, nil
}

// UnwrapKey decrypts a blob produced by WrapKey and returns the master key
// bytes. Tag failure and label mismatch are distinct internally but both
// surface as ErrCorruptedKey; no partial plaintext is ever returned.
func UnwrapKey(fastKey, blob []byte, cipherName string) ([]byte, error) {
	if len(blob) < krypto.NonceSize+krypto.TagSize {
		return nil, fmt.Errorf("%w: blob too short", ErrCorruptedKey)
	}
	nonce := blob[:krypto.NonceSize]
	ct := blob[krypto.NonceSize:]

	plain, err := krypto.Open(cipherName, fastKey, nonce, ct, wrapAAD)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptedKey, errWrapTag)
	}

	if len(plain) != len(wrapLabel)+krypto.KeyLength ||
		!bytes.Equal(plain[:len(wrapLabel)], []byte(wrapLabel)) {
		krypto.Zeroize(plain)
		return nil, fmt.Errorf("%w: %w", ErrCorruptedKey, errWrapLabel)
	}

	masterKey := make([]byte, krypto.KeyLength)
	copy(masterKey, plain[len(wrapLabel):])
	krypto.Zeroize(plain)
	return masterKey, nil
}
