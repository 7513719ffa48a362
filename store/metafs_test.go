package store_test

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lockbox-sh/lockbox/internal/vault"
	"github.com/lockbox-sh/lockbox/krypto"
	"github.com/lockbox-sh/lockbox/store"
)

func testMetadata() vault.Metadata {
	return vault.Metadata{
		Version:          vault.MetadataVersion,
		KDF:              krypto.KDFArgon2id,
		MemoryKB:         1024,
		Iterations:       1,
		Parallelism:      1,
		Salt:             base64.StdEncoding.EncodeToString(make([]byte, krypto.SaltLength)),
		Cipher:           krypto.CipherAESGCM,
		NonceLength:      krypto.NonceSize,
		Parts:            3,
		FileBase:         "vault",
		Created:          time.Now().UTC(),
		Modified:         time.Now().UTC(),
		Verifier:         base64.StdEncoding.EncodeToString(make([]byte, 32)),
		WrapNonceCounter: 1,
	}
}

func TestSaveLoadMetadataRoundTrip(t *testing.T) {
	p := store.Paths{Dir: filepath.Join(t.TempDir(), "vault-dir")}
	meta := testMetadata()

	if err := store.SaveMetadata(p, meta); err != nil {
		t.Fatalf("SaveMetadata: %v", err)
	}

	got, err := store.LoadMetadata(p)
	if err != nil {
		t.Fatalf("LoadMetadata: %v", err)
	}
	if got.WrapNonceCounter != meta.WrapNonceCounter || got.Salt != meta.Salt || got.Parts != meta.Parts {
		t.Fatalf("loaded metadata differs: %+v", got)
	}
}

func TestLoadMetadataMissing(t *testing.T) {
	p := store.Paths{Dir: t.TempDir()}
	if _, err := store.LoadMetadata(p); !errors.Is(err, vault.ErrMissingMetadata) {
		t.Fatalf("expected ErrMissingMetadata, got %v", err)
	}
}

func TestSaveMetadataLeavesNoTempFiles(t *testing.T) {
	p := store.Paths{Dir: t.TempDir()}
	if err := store.SaveMetadata(p, testMetadata()); err != nil {
		t.Fatalf("SaveMetadata: %v", err)
	}

	entries, err := os.ReadDir(p.Dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "vault.json" {
		t.Fatalf("unexpected directory contents: %v", entries)
	}
}

func TestSaveMetadataRestrictsPermissions(t *testing.T) {
	p := store.Paths{Dir: t.TempDir()}
	if err := store.SaveMetadata(p, testMetadata()); err != nil {
		t.Fatalf("SaveMetadata: %v", err)
	}

	info, err := os.Stat(p.MetadataPath())
	if err != nil {
		t.Fatalf("stat metadata: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("metadata permissions %o, want 600", perm)
	}
}

func TestSidecarRoundTrip(t *testing.T) {
	p := store.Paths{Dir: t.TempDir()}
	blob := []byte{1, 2, 3, 4}

	if err := store.WriteSidecar(p, blob); err != nil {
		t.Fatalf("WriteSidecar: %v", err)
	}
	got, err := store.ReadSidecar(p)
	if err != nil {
		t.Fatalf("ReadSidecar: %v", err)
	}
	if string(got) != string(blob) {
		t.Fatal("sidecar round trip mismatch")
	}

	if err := store.RemoveSidecar(p); err != nil {
		t.Fatalf("RemoveSidecar: %v", err)
	}
	if _, err := store.ReadSidecar(p); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist after removal, got %v", err)
	}
	// Idempotent.
	if err := store.RemoveSidecar(p); err != nil {
		t.Fatalf("second RemoveSidecar: %v", err)
	}
}
