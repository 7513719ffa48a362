package krypto_test

import (
	"bytes"
	"testing"

	"github.com/lockbox-sh/lockbox/krypto"
)

func TestDeriveNonceUniquePerCounter(t *testing.T) {
	key := bytes.Repeat([]byte{9}, 32)

	seen := make(map[string]uint64)
	for counter := uint64(1); counter <= 1000; counter++ {
		nonce, err := krypto.DeriveNonce(key, "wrap", counter)
		if err != nil {
			t.Fatalf("DeriveNonce returned error: %v", err)
		}
		if len(nonce) != krypto.NonceSize {
			t.Fatalf("nonce has length %d, want %d", len(nonce), krypto.NonceSize)
		}
		if prev, dup := seen[string(nonce)]; dup {
			t.Fatalf("counter %d repeats the nonce of counter %d", counter, prev)
		}
		seen[string(nonce)] = counter
	}
}

func TestDeriveNonceDependsOnLabelAndKey(t *testing.T) {
	key := bytes.Repeat([]byte{9}, 32)
	otherKey := bytes.Repeat([]byte{8}, 32)

	a, err := krypto.DeriveNonce(key, "wrap", 1)
	if err != nil {
		t.Fatalf("DeriveNonce returned error: %v", err)
	}
	b, err := krypto.DeriveNonce(key, "entry", 1)
	if err != nil {
		t.Fatalf("DeriveNonce returned error: %v", err)
	}
	c, err := krypto.DeriveNonce(otherKey, "wrap", 1)
	if err != nil {
		t.Fatalf("DeriveNonce returned error: %v", err)
	}

	if bytes.Equal(a, b) {
		t.Fatal("different labels produced the same nonce")
	}
	if bytes.Equal(a, c) {
		t.Fatal("different keys produced the same nonce")
	}

	again, err := krypto.DeriveNonce(key, "wrap", 1)
	if err != nil {
		t.Fatalf("DeriveNonce returned error: %v", err)
	}
	if !bytes.Equal(a, again) {
		t.Fatal("nonce derivation is not deterministic")
	}
}

func TestDeriveNonceRejectsShortKey(t *testing.T) {
	if _, err := krypto.DeriveNonce([]byte("short"), "wrap", 1); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestKeyedTagConstantTimeCompare(t *testing.T) {
	key := bytes.Repeat([]byte{5}, 32)

	tag := krypto.KeyedTag(key, []byte("msg"))
	if !krypto.TagsEqual(tag, krypto.KeyedTag(key, []byte("msg"))) {
		t.Fatal("identical tags compare unequal")
	}
	if krypto.TagsEqual(tag, krypto.KeyedTag(key, []byte("other"))) {
		t.Fatal("different messages compare equal")
	}
	if krypto.TagsEqual(tag, tag[:16]) {
		t.Fatal("tags of different length compare equal")
	}
}

func TestZeroize(t *testing.T) {
	b := []byte("sensitive")
	krypto.Zeroize(b)
	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d not zeroed", i)
		}
	}
	krypto.Zeroize(nil)
}
