package service_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/lockbox-sh/lockbox/internal/securestore"
	"github.com/lockbox-sh/lockbox/internal/vault"
)

func TestAllocateEntryNonceMonotonic(t *testing.T) {
	sec := securestore.NewMemory()
	dir, svc := newVault(t, sec)

	_, mk, err := svc.Open(context.Background(), testPassword)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer mk.Destroy()

	var prevCounter uint64
	var prevNonce []byte
	for i := 0; i < 5; i++ {
		counter, nonce, err := svc.AllocateEntryNonce(mk)
		if err != nil {
			t.Fatalf("AllocateEntryNonce %d: %v", i, err)
		}
		if counter != prevCounter+1 {
			t.Fatalf("counter went %d -> %d, want +1", prevCounter, counter)
		}
		if bytes.Equal(nonce, prevNonce) {
			t.Fatalf("allocation %d repeated the previous nonce", i)
		}
		prevCounter, prevNonce = counter, nonce
	}

	if got := loadMeta(t, dir).EntryNonceCounter; got != prevCounter {
		t.Fatalf("persisted entry counter %d, want %d", got, prevCounter)
	}
}

func TestEntryChallengeAcceptAndReplay(t *testing.T) {
	sec := securestore.NewMemory()
	_, svc := newVault(t, sec)

	_, mk, err := svc.Open(context.Background(), testPassword)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer mk.Destroy()

	ch, err := svc.IssueEntryChallenge(mk)
	if err != nil {
		t.Fatalf("IssueEntryChallenge: %v", err)
	}

	accept := vault.EntryAcceptTag(mk.BytesUnsafe(), ch.Counter, ch.Nonce)
	ok, err := svc.VerifyEntryAccept(mk, ch, accept)
	if err != nil {
		t.Fatalf("VerifyEntryAccept: %v", err)
	}
	if !ok {
		t.Fatal("valid accept rejected")
	}

	// Replaying the same challenge must fail even with a valid tag.
	ok, err = svc.VerifyEntryAccept(mk, ch, accept)
	if err != nil {
		t.Fatalf("VerifyEntryAccept replay: %v", err)
	}
	if ok {
		t.Fatal("replayed accept was accepted")
	}

	// A forged tag on a fresh challenge must fail.
	ch2, err := svc.IssueEntryChallenge(mk)
	if err != nil {
		t.Fatalf("IssueEntryChallenge: %v", err)
	}
	forged := vault.EntryAcceptTag(mk.BytesUnsafe(), ch2.Counter+1, ch2.Nonce)
	ok, err = svc.VerifyEntryAccept(mk, ch2, forged)
	if err != nil {
		t.Fatalf("VerifyEntryAccept forged: %v", err)
	}
	if ok {
		t.Fatal("forged accept was accepted")
	}
}
