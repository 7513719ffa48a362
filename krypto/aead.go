package krypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// NonceSize is the AEAD nonce length used throughout the vault format.
	NonceSize = 12
	// TagSize is the AEAD authentication tag length.
	TagSize = 16

	// CipherAESGCM is the default vault cipher.
	CipherAESGCM = "aes-256-gcm"
	// CipherChaCha20 is the alternate cipher accepted by name.
	CipherChaCha20 = "chacha20poly1305"
)

// ErrUnsupportedCipher indicates an unrecognized cipher name in metadata.
var ErrUnsupportedCipher = errors.New("unsupported cipher")

func newAEAD(cipherName string, key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, errors.New("aead requires a 32-byte key")
	}
	switch cipherName {
	case CipherAESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("create cipher: %w", err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("create gcm: %w", err)
		}
		return gcm, nil
	case CipherChaCha20:
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, fmt.Errorf("create chacha20poly1305: %w", err)
		}
		return aead, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCipher, cipherName)
	}
}

// Seal encrypts plaintext under the named cipher with the given nonce,
// returning ciphertext||tag.
func Seal(cipherName string, key, nonce, plaintext, aad []byte) ([]byte, error) {
	aead, err := newAEAD(cipherName, key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != NonceSize {
		return nil, errors.New("invalid nonce size")
	}
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// Open decrypts ciphertext||tag produced by Seal. Authentication failures are
// returned as-is; no partial plaintext is ever returned.
func Open(cipherName string, key, nonce, ciphertext, aad []byte) ([]byte, error) {
	aead, err := newAEAD(cipherName, key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != NonceSize {
		return nil, errors.New("invalid nonce size")
	}
	if len(ciphertext) < TagSize {
		return nil, errors.New("ciphertext too short")
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

// RandomNonce returns a fresh random 12-byte nonce.
func RandomNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return nonce, nil
}
