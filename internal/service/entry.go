package service

import (
	"fmt"
	"time"

	"github.com/lockbox-sh/lockbox/internal/vault"
	"github.com/lockbox-sh/lockbox/krypto"
	"github.com/lockbox-sh/lockbox/store"
)

// Challenge is a single-use, replay-resistant per-entry challenge. The
// holder answers it with vault.EntryAcceptTag over the same counter and
// nonce.
type Challenge struct {
	Counter uint64
	Nonce   []byte
}

// AllocateEntryNonce durably advances the entry-nonce counter and derives
// the nonce for its new value. The metadata write happens before the nonce
// is computed, so a crash can skip a counter value but never repeat one.
func (s *Service) AllocateEntryNonce(mk *MasterKey) (uint64, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocateEntryNonceLocked(mk)
}

func (s *Service) allocateEntryNonceLocked(mk *MasterKey) (uint64, []byte, error) {
	masterKey, err := mk.bytes()
	if err != nil {
		return 0, nil, err
	}

	meta, err := store.LoadMetadata(s.paths)
	if err != nil {
		return 0, nil, err
	}

	meta.EntryNonceCounter++
	meta.Modified = time.Now().UTC()
	if err := store.SaveMetadata(s.paths, meta); err != nil {
		return 0, nil, fmt.Errorf("persist entry counter: %w", err)
	}

	nonce, err := krypto.DeriveNonce(masterKey, entryNonceLabel, meta.EntryNonceCounter)
	if err != nil {
		return 0, nil, err
	}
	return meta.EntryNonceCounter, nonce, nil
}

// IssueEntryChallenge allocates a fresh entry nonce and packages it as a
// challenge.
func (s *Service) IssueEntryChallenge(mk *MasterKey) (Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counter, nonce, err := s.allocateEntryNonceLocked(mk)
	if err != nil {
		return Challenge{}, err
	}
	return Challenge{Counter: counter, Nonce: nonce}, nil
}

// VerifyEntryAccept checks an accept tag against a previously issued
// challenge. Each counter value is accepted at most once per session;
// replays of an already-accepted counter are rejected even with a valid tag.
func (s *Service) VerifyEntryAccept(mk *MasterKey, ch Challenge, accept []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	masterKey, err := mk.bytes()
	if err != nil {
		return false, err
	}

	if ch.Counter <= s.entryHighWater {
		return false, nil
	}
	if !vault.CheckEntryAccept(masterKey, ch.Counter, ch.Nonce, accept) {
		return false, nil
	}
	s.entryHighWater = ch.Counter
	return true, nil
}
