package vault_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/lockbox-sh/lockbox/internal/vault"
	"github.com/lockbox-sh/lockbox/krypto"
)

func TestWrapUnwrapRoundTrip(t *testing.T) {
	fastKey := bytes.Repeat([]byte{1}, 32)
	masterKey := bytes.Repeat([]byte{2}, 32)
	nonce := make([]byte, krypto.NonceSize)

	blob, err := vault.WrapKey(fastKey, masterKey, nonce, krypto.CipherAESGCM)
	if err != nil {
		t.Fatalf("WrapKey returned error: %v", err)
	}
	if !bytes.Equal(blob[:krypto.NonceSize], nonce) {
		t.Fatal("blob does not start with the nonce")
	}

	got, err := vault.UnwrapKey(fastKey, blob, krypto.CipherAESGCM)
	if err != nil {
		t.Fatalf("UnwrapKey returned error: %v", err)
	}
	if !bytes.Equal(got, masterKey) {
		t.Fatal("unwrapped key differs from original")
	}
}

func TestUnwrapRejectsWrongKey(t *testing.T) {
	fastKey := bytes.Repeat([]byte{1}, 32)
	wrongKey := bytes.Repeat([]byte{9}, 32)
	masterKey := bytes.Repeat([]byte{2}, 32)
	nonce := make([]byte, krypto.NonceSize)

	blob, err := vault.WrapKey(fastKey, masterKey, nonce, krypto.CipherAESGCM)
	if err != nil {
		t.Fatalf("WrapKey returned error: %v", err)
	}

	got, err := vault.UnwrapKey(wrongKey, blob, krypto.CipherAESGCM)
	if !errors.Is(err, vault.ErrCorruptedKey) {
		t.Fatalf("expected ErrCorruptedKey, got %v", err)
	}
	if got != nil {
		t.Fatal("partial plaintext returned on failure")
	}
}

func TestUnwrapRejectsTamperedBlob(t *testing.T) {
	fastKey := bytes.Repeat([]byte{1}, 32)
	masterKey := bytes.Repeat([]byte{2}, 32)
	nonce := make([]byte, krypto.NonceSize)

	blob, err := vault.WrapKey(fastKey, masterKey, nonce, krypto.CipherAESGCM)
	if err != nil {
		t.Fatalf("WrapKey returned error: %v", err)
	}

	for i := range blob {
		mutated := append([]byte(nil), blob...)
		mutated[i] ^= 1
		if _, err := vault.UnwrapKey(fastKey, mutated, krypto.CipherAESGCM); !errors.Is(err, vault.ErrCorruptedKey) {
			t.Fatalf("tampered byte %d: expected ErrCorruptedKey, got %v", i, err)
		}
	}
}

func TestUnwrapRejectsShortBlob(t *testing.T) {
	fastKey := bytes.Repeat([]byte{1}, 32)
	if _, err := vault.UnwrapKey(fastKey, []byte{1, 2, 3}, krypto.CipherAESGCM); !errors.Is(err, vault.ErrCorruptedKey) {
		t.Fatalf("expected ErrCorruptedKey, got %v", err)
	}
}

func TestWrapRejectsBadMasterKeyLength(t *testing.T) {
	fastKey := bytes.Repeat([]byte{1}, 32)
	nonce := make([]byte, krypto.NonceSize)
	if _, err := vault.WrapKey(fastKey, []byte("short"), nonce, krypto.CipherAESGCM); err == nil {
		t.Fatal("expected error for short master key")
	}
}
