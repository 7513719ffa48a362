package vault_test

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/lockbox-sh/lockbox/internal/vault"
	"github.com/lockbox-sh/lockbox/krypto"
)

func validMetadata() vault.Metadata {
	fp := testFastParams()
	return vault.Metadata{
		Version:           vault.MetadataVersion,
		KDF:               krypto.KDFArgon2id,
		MemoryKB:          1024,
		Iterations:        1,
		Parallelism:       1,
		Salt:              "c2FsdHNhbHRzYWx0c2FsdA==",
		Cipher:            krypto.CipherAESGCM,
		NonceLength:       krypto.NonceSize,
		Parts:             3,
		FileBase:          "vault",
		Created:           time.Now().UTC(),
		Modified:          time.Now().UTC(),
		Verifier:          base64.StdEncoding.EncodeToString(make([]byte, 32)),
		Fast:              &fp,
		FastSig:           base64.StdEncoding.EncodeToString(make([]byte, 32)),
		WrapNonceCounter:  1,
		EntryNonceCounter: 0,
	}
}

func TestMetadataValidate(t *testing.T) {
	meta := validMetadata()
	if err := meta.Validate(); err != nil {
		t.Fatalf("valid metadata rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*vault.Metadata)
	}{
		{"future version", func(m *vault.Metadata) { m.Version = vault.MetadataVersion + 1 }},
		{"zero version", func(m *vault.Metadata) { m.Version = 0 }},
		{"unknown kdf", func(m *vault.Metadata) { m.KDF = "scrypt" }},
		{"bad nonce length", func(m *vault.Metadata) { m.NonceLength = 16 }},
		{"zero parts", func(m *vault.Metadata) { m.Parts = 0 }},
		{"empty file base", func(m *vault.Metadata) { m.FileBase = "" }},
		{"missing verifier", func(m *vault.Metadata) { m.Verifier = "" }},
		{"fast block without signature", func(m *vault.Metadata) { m.FastSig = "" }},
		{"signature without fast block", func(m *vault.Metadata) { m.Fast = nil }},
	}
	for _, tc := range cases {
		m := validMetadata()
		tc.mutate(&m)
		if err := m.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestMetadataVersion1IsAccepted(t *testing.T) {
	// Version-1 vaults predate argon2id and carry pbkdf2 parameters.
	meta := validMetadata()
	meta.Version = 1
	meta.KDF = krypto.KDFPBKDF2
	meta.Fast = nil
	meta.FastSig = ""
	if err := meta.Validate(); err != nil {
		t.Fatalf("legacy metadata rejected: %v", err)
	}
}
