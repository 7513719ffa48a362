// Package service is the storage orchestrator: it sequences key derivation,
// wrapping, verification, and the on-disk artifacts under one lock per open
// vault.
package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/lockbox-sh/lockbox/auth"
	"github.com/lockbox-sh/lockbox/internal/securestore"
	"github.com/lockbox-sh/lockbox/internal/vault"
	"github.com/lockbox-sh/lockbox/krypto"
	"github.com/lockbox-sh/lockbox/store"
)

const (
	// EmptyPayload is the serialized contents of a freshly created vault.
	EmptyPayload = "[]"

	wrapNonceLabel  = "lockbox.wrap-nonce"
	entryNonceLabel = "lockbox.entry-nonce"

	defaultFileBase   = "vault"
	defaultKeepBackup = 2
	maxParts          = 64
)

var payloadAAD = []byte("lockbox.payload")

// Options configures a Service. The zero value calibrates both KDF profiles
// on first use, prefers the platform secure store, and refuses disk fallback.
type Options struct {
	// SlowParams / FastParams skip calibration when set.
	SlowParams *krypto.Params
	FastParams *krypto.Params

	// SlowTarget / FastTarget override the calibration latency targets.
	SlowTarget time.Duration
	FastTarget time.Duration

	// DiskFallback permits persisting the wrapped key as an owner-only
	// sidecar file when the secure store is unavailable. Off by default:
	// without it, a missing secure store just forces slow unlocks.
	DiskFallback bool

	// Store overrides the platform secure store (tests use NewMemory).
	Store securestore.Store

	// KeepBackups bounds retained backup generations per part.
	KeepBackups int

	// Logger receives non-critical failures (opportunistic fast-unlock
	// persistence, pruning). Defaults to the standard logger.
	Logger *log.Logger
}

// Service owns one vault directory. All operations are serialized by a
// single lock; concurrent access to the same directory from two processes
// is out of scope.
type Service struct {
	mu    sync.Mutex
	paths store.Paths
	opts  Options

	secure     securestore.Store
	secureName string
	logger     *log.Logger

	// entryHighWater tracks the highest entry-challenge counter accepted
	// this session, rejecting replays.
	entryHighWater uint64
}

// New returns a service bound to a vault directory.
func New(dir string, opts Options) (*Service, error) {
	if dir == "" {
		return nil, errors.New("vault directory is required")
	}
	name, err := securestore.NameForVault(dir)
	if err != nil {
		return nil, err
	}

	sec := opts.Store
	if sec == nil {
		sec = securestore.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	if opts.KeepBackups <= 0 {
		opts.KeepBackups = defaultKeepBackup
	}
	if opts.SlowTarget <= 0 {
		opts.SlowTarget = krypto.SlowTarget
	}
	if opts.FastTarget <= 0 {
		opts.FastTarget = krypto.FastTarget
	}

	return &Service{
		paths:      store.Paths{Dir: dir},
		opts:       opts,
		secure:     sec,
		secureName: name,
		logger:     logger,
	}, nil
}

// CreateEmpty initializes a new vault in the service directory: calibrates
// (or accepts) both KDF profiles, derives the master and fast keys, encrypts
// the empty payload, and persists parts, then metadata, then the wrapped key.
func (s *Service) CreateEmpty(ctx context.Context, password string, parts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := auth.ValidateMasterPassword(password); err != nil {
		return fmt.Errorf("validate password: %w", err)
	}
	if parts <= 0 || parts > maxParts {
		return fmt.Errorf("part count must be between 1 and %d", maxParts)
	}
	if _, err := store.LoadMetadata(s.paths); err == nil {
		return errors.New("vault already exists")
	} else if !errors.Is(err, vault.ErrMissingMetadata) {
		return err
	}

	slowParams, err := s.slowProfile(ctx)
	if err != nil {
		return err
	}
	fastParams, err := s.fastProfile(ctx)
	if err != nil {
		return err
	}

	salt, err := krypto.NewRandomSalt()
	if err != nil {
		return err
	}
	fastSalt, err := krypto.NewRandomSalt()
	if err != nil {
		return err
	}

	passwordBytes := []byte(password)
	defer krypto.Zeroize(passwordBytes)

	masterKey, err := krypto.DeriveKey(passwordBytes, salt, krypto.KDFArgon2id, slowParams)
	if err != nil {
		return fmt.Errorf("derive master key: %w", err)
	}
	defer krypto.Zeroize(masterKey)

	fastKey, err := krypto.DeriveKey(passwordBytes, fastSalt, krypto.KDFArgon2id, fastParams)
	if err != nil {
		return fmt.Errorf("derive fast key: %w", err)
	}
	defer krypto.Zeroize(fastKey)

	now := time.Now().UTC()
	fast := &vault.FastParams{
		KDF:         krypto.KDFArgon2id,
		Iterations:  fastParams.Iterations,
		MemoryKB:    fastParams.MemoryKB,
		Parallelism: fastParams.Parallelism,
		Salt:        base64.StdEncoding.EncodeToString(fastSalt),
	}
	meta := vault.Metadata{
		Version:           vault.MetadataVersion,
		KDF:               krypto.KDFArgon2id,
		MemoryKB:          slowParams.MemoryKB,
		Iterations:        slowParams.Iterations,
		Parallelism:       slowParams.Parallelism,
		Salt:              base64.StdEncoding.EncodeToString(salt),
		Cipher:            krypto.CipherAESGCM,
		NonceLength:       krypto.NonceSize,
		Parts:             parts,
		FileBase:          defaultFileBase,
		Created:           now,
		Modified:          now,
		Verifier:          base64.StdEncoding.EncodeToString(vault.ComputeVerifier(masterKey)),
		Fast:              fast,
		FastSig:           base64.StdEncoding.EncodeToString(vault.SignFastParams(masterKey, *fast)),
		WrapNonceCounter:  1,
		EntryNonceCounter: 0,
	}

	payload, err := s.sealPayload(&meta, masterKey, []byte(EmptyPayload))
	if err != nil {
		return err
	}

	// Parts first, then the metadata that references them, then the wrapped
	// key. A crash between steps leaves either no vault or a vault that
	// degrades to the slow unlock path.
	if err := store.WriteParts(s.paths, meta.FileBase, payload, meta.Parts); err != nil {
		return fmt.Errorf("write parts: %w", err)
	}
	if err := store.SaveMetadata(s.paths, meta); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}

	wrapNonce, err := krypto.DeriveNonce(masterKey, wrapNonceLabel, meta.WrapNonceCounter)
	if err != nil {
		return err
	}
	blob, err := vault.WrapKey(fastKey, masterKey, wrapNonce, meta.Cipher)
	if err != nil {
		return err
	}
	if err := s.persistWrappedKey(blob); err != nil {
		// The vault is complete and the password was just chosen; a key
		// that could not be parked only costs future fast unlocks.
		s.logger.Printf("lockbox: wrapped key not persisted: %v", err)
	}

	return nil
}

// Open unlocks the vault and returns the decrypted payload with an opaque
// master-key handle. It prefers the fast path (stored wrapped key); any
// cryptographic failure there falls back to the slow derivation, and a
// successful slow unlock re-establishes a fresh fast-unlock artifact.
func (s *Service) Open(ctx context.Context, password string) ([]byte, *MasterKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := store.LoadMetadata(s.paths)
	if err != nil {
		return nil, nil, err
	}

	passwordBytes := []byte(password)
	defer krypto.Zeroize(passwordBytes)

	if masterKey, ok := s.fastUnlock(&meta, passwordBytes); ok {
		defer krypto.Zeroize(masterKey)
		plaintext, err := s.openPayload(&meta, masterKey)
		if err != nil {
			return nil, nil, err
		}
		return plaintext, newMasterKey(masterKey), nil
	}

	masterKey, err := s.unlock(&meta, passwordBytes)
	if err != nil {
		return nil, nil, err
	}
	defer krypto.Zeroize(masterKey)

	plaintext, err := s.openPayload(&meta, masterKey)
	if err != nil {
		return nil, nil, err
	}

	// The password is proven; refreshing the fast-unlock artifact is
	// opportunistic and must not fail the unlock.
	if err := s.establishFastUnlock(ctx, &meta, masterKey, passwordBytes); err != nil {
		s.logger.Printf("lockbox: fast-unlock artifact not refreshed: %v", err)
	}

	return plaintext, newMasterKey(masterKey), nil
}

// fastUnlock attempts to recover the master key from a stored wrapped key.
// It returns ok=false on any failure: missing artifact, unwrap failure,
// verifier mismatch, or a tampered fast-params block. Failures are never
// surfaced to the user from here; the slow path re-proves the password.
func (s *Service) fastUnlock(meta *vault.Metadata, password []byte) ([]byte, bool) {
	if meta.Fast == nil {
		return nil, false
	}

	blob := s.readWrappedKey()
	if blob == nil {
		return nil, false
	}

	fastSalt, err := meta.Fast.DecodeSalt()
	if err != nil {
		s.logger.Printf("lockbox: fast path: %v", err)
		return nil, false
	}
	fastKey, err := krypto.DeriveKey(password, fastSalt, meta.Fast.KDF, meta.Fast.Params())
	if err != nil {
		s.logger.Printf("lockbox: fast path: %v", err)
		return nil, false
	}
	defer krypto.Zeroize(fastKey)

	masterKey, err := vault.UnwrapKey(fastKey, blob, meta.Cipher)
	if err != nil {
		// Wrong password, superseded artifact, or corruption. The slow
		// path decides which.
		return nil, false
	}

	verifier, err := meta.DecodeVerifier()
	if err != nil || !vault.CheckVerifier(masterKey, verifier) {
		krypto.Zeroize(masterKey)
		return nil, false
	}

	sig, err := meta.DecodeFastSig()
	if err != nil || !vault.CheckFastParams(masterKey, *meta.Fast, sig) {
		// The unwrap succeeded but the parameter block does not match its
		// signature: someone rewrote the on-disk fast params. Never trust
		// them; force the slow derivation.
		krypto.Zeroize(masterKey)
		s.logger.Printf("lockbox: %v", vault.ErrTamperedFastParams)
		return nil, false
	}

	return masterKey, true
}

// unlock derives the master key from the password and the slow profile and
// checks it against the verifier. This is the only place a wrong password is
// decided.
func (s *Service) unlock(meta *vault.Metadata, password []byte) ([]byte, error) {
	salt, err := meta.DecodeSalt()
	if err != nil {
		return nil, err
	}
	masterKey, err := krypto.DeriveKey(password, salt, meta.KDF, meta.SlowParams())
	if err != nil {
		return nil, fmt.Errorf("derive master key: %w", err)
	}

	verifier, err := meta.DecodeVerifier()
	if err != nil {
		krypto.Zeroize(masterKey)
		return nil, err
	}
	if !vault.CheckVerifier(masterKey, verifier) {
		krypto.Zeroize(masterKey)
		return nil, vault.ErrInvalidPassword
	}
	return masterKey, nil
}

// establishFastUnlock mints a fresh fast-unlock artifact: new fast salt and
// profile, next wrap-nonce counter value, new wrapped key and signature. The
// counter is persisted before the nonce derived from it is ever used, so a
// crash between the two can waste a counter value but never reuse one.
func (s *Service) establishFastUnlock(ctx context.Context, meta *vault.Metadata, masterKey, password []byte) error {
	fastParams, err := s.fastProfile(ctx)
	if err != nil {
		return err
	}
	fastSalt, err := krypto.NewRandomSalt()
	if err != nil {
		return err
	}
	fastKey, err := krypto.DeriveKey(password, fastSalt, krypto.KDFArgon2id, fastParams)
	if err != nil {
		return fmt.Errorf("derive fast key: %w", err)
	}
	defer krypto.Zeroize(fastKey)

	meta.WrapNonceCounter++
	meta.Modified = time.Now().UTC()
	if err := store.SaveMetadata(s.paths, *meta); err != nil {
		meta.WrapNonceCounter--
		return fmt.Errorf("persist wrap counter: %w", err)
	}

	wrapNonce, err := krypto.DeriveNonce(masterKey, wrapNonceLabel, meta.WrapNonceCounter)
	if err != nil {
		return err
	}
	blob, err := vault.WrapKey(fastKey, masterKey, wrapNonce, meta.Cipher)
	if err != nil {
		return err
	}

	fast := &vault.FastParams{
		KDF:         krypto.KDFArgon2id,
		Iterations:  fastParams.Iterations,
		MemoryKB:    fastParams.MemoryKB,
		Parallelism: fastParams.Parallelism,
		Salt:        base64.StdEncoding.EncodeToString(fastSalt),
	}
	meta.Fast = fast
	meta.FastSig = base64.StdEncoding.EncodeToString(vault.SignFastParams(masterKey, *fast))
	if err := store.SaveMetadata(s.paths, *meta); err != nil {
		return fmt.Errorf("persist fast params: %w", err)
	}

	return s.persistWrappedKey(blob)
}

// ChangePassword re-keys the vault: it proves the old password, derives a
// new master key from the new password and a fresh salt, re-encrypts the
// payload, recomputes the verifier, and establishes a fresh fast-unlock
// artifact. The master key is password-derived, so this rewrites everything
// the old key protected.
func (s *Service) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := auth.ValidateMasterPassword(newPassword); err != nil {
		return fmt.Errorf("validate new password: %w", err)
	}

	meta, err := store.LoadMetadata(s.paths)
	if err != nil {
		return err
	}

	oldBytes := []byte(oldPassword)
	defer krypto.Zeroize(oldBytes)

	oldKey, err := s.unlock(&meta, oldBytes)
	if err != nil {
		return err
	}
	defer krypto.Zeroize(oldKey)

	plaintext, err := s.openPayload(&meta, oldKey)
	if err != nil {
		return err
	}
	defer krypto.Zeroize(plaintext)

	newBytes := []byte(newPassword)
	defer krypto.Zeroize(newBytes)

	slowParams, err := s.slowProfile(ctx)
	if err != nil {
		return err
	}
	salt, err := krypto.NewRandomSalt()
	if err != nil {
		return err
	}
	newKey, err := krypto.DeriveKey(newBytes, salt, krypto.KDFArgon2id, slowParams)
	if err != nil {
		return fmt.Errorf("derive new master key: %w", err)
	}
	defer krypto.Zeroize(newKey)

	if err := store.BackupParts(s.paths, meta.FileBase, meta.Parts); err != nil {
		return fmt.Errorf("backup parts: %w", err)
	}

	payload, err := s.sealPayload(&meta, newKey, plaintext)
	if err != nil {
		return err
	}
	if err := store.WriteParts(s.paths, meta.FileBase, payload, meta.Parts); err != nil {
		return fmt.Errorf("write parts: %w", err)
	}

	meta.Version = vault.MetadataVersion
	meta.KDF = krypto.KDFArgon2id
	meta.MemoryKB = slowParams.MemoryKB
	meta.Iterations = slowParams.Iterations
	meta.Parallelism = slowParams.Parallelism
	meta.Salt = base64.StdEncoding.EncodeToString(salt)
	meta.Verifier = base64.StdEncoding.EncodeToString(vault.ComputeVerifier(newKey))
	// The old fast artifact wraps a key that no longer opens anything;
	// drop the block until establishFastUnlock replaces it.
	meta.Fast = nil
	meta.FastSig = ""
	meta.Modified = time.Now().UTC()
	if err := store.SaveMetadata(s.paths, meta); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}

	if err := store.PruneBackups(s.paths, meta.FileBase, meta.Parts, s.opts.KeepBackups); err != nil {
		s.logger.Printf("lockbox: prune backups: %v", err)
	}

	if err := s.establishFastUnlock(ctx, &meta, newKey, newBytes); err != nil {
		s.logger.Printf("lockbox: fast-unlock artifact not refreshed: %v", err)
	}
	return nil
}

// Save re-encrypts the payload under the master key with a fresh random
// nonce and rewrites the vault: backup, parts, metadata, prune.
func (s *Service) Save(mk *MasterKey, plaintext []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	masterKey, err := mk.bytes()
	if err != nil {
		return err
	}

	meta, err := store.LoadMetadata(s.paths)
	if err != nil {
		return err
	}
	verifier, err := meta.DecodeVerifier()
	if err != nil {
		return err
	}
	if !vault.CheckVerifier(masterKey, verifier) {
		return errors.New("master key does not match this vault")
	}

	if err := store.BackupParts(s.paths, meta.FileBase, meta.Parts); err != nil {
		return fmt.Errorf("backup parts: %w", err)
	}

	payload, err := s.sealPayload(&meta, masterKey, plaintext)
	if err != nil {
		return err
	}
	if err := store.WriteParts(s.paths, meta.FileBase, payload, meta.Parts); err != nil {
		return fmt.Errorf("write parts: %w", err)
	}

	meta.Modified = time.Now().UTC()
	if err := store.SaveMetadata(s.paths, meta); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}

	if err := store.PruneBackups(s.paths, meta.FileBase, meta.Parts, s.opts.KeepBackups); err != nil {
		s.logger.Printf("lockbox: prune backups: %v", err)
	}
	return nil
}

// DeleteDerivedKey removes the wrapped key from the secure store and any
// disk sidecar, forcing all future unlocks onto the slow path. Idempotent.
func (s *Service) DeleteDerivedKey() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	if err := s.secure.Delete(s.secureName); err != nil && !errors.Is(err, securestore.ErrUnavailable) {
		firstErr = err
	}
	if err := store.RemoveSidecar(s.paths); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (s *Service) sealPayload(meta *vault.Metadata, masterKey, plaintext []byte) ([]byte, error) {
	nonce, err := krypto.RandomNonce()
	if err != nil {
		return nil, err
	}
	ct, err := krypto.Seal(meta.Cipher, masterKey, nonce, plaintext, payloadAAD)
	if err != nil {
		return nil, fmt.Errorf("encrypt payload: %w", err)
	}
	payload := make([]byte, 0, len(nonce)+len(ct))
	payload = append(payload, nonce...)
	payload = append(payload, ct...)
	return payload, nil
}

func (s *Service) openPayload(meta *vault.Metadata, masterKey []byte) ([]byte, error) {
	payload, err := store.ReadParts(s.paths, meta.FileBase, meta.Parts)
	if err != nil {
		return nil, err
	}
	if len(payload) < krypto.NonceSize+krypto.TagSize {
		return nil, fmt.Errorf("%w: payload too short", vault.ErrMissingPart)
	}
	plaintext, err := krypto.Open(meta.Cipher, masterKey, payload[:krypto.NonceSize], payload[krypto.NonceSize:], payloadAAD)
	if err != nil {
		return nil, fmt.Errorf("decrypt payload: %w", err)
	}
	return plaintext, nil
}

// readWrappedKey tries the secure store first, then the disk sidecar.
func (s *Service) readWrappedKey() []byte {
	if s.secure.Available() {
		blob, err := s.secure.Read(s.secureName)
		if err == nil {
			return blob
		}
		if !errors.Is(err, securestore.ErrNotFound) {
			s.logger.Printf("lockbox: secure store read: %v", err)
		}
	}

	blob, err := store.ReadSidecar(s.paths)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Printf("lockbox: sidecar read: %v", err)
		}
		return nil
	}
	return blob
}

// persistWrappedKey prefers the secure store; on unavailability or failure
// it writes the disk sidecar only when the caller opted into disk fallback,
// otherwise the artifact is skipped and future unlocks stay on the slow path.
func (s *Service) persistWrappedKey(blob []byte) error {
	if s.secure.Available() {
		if err := s.secure.Write(s.secureName, blob); err == nil {
			return nil
		} else if !s.opts.DiskFallback {
			return fmt.Errorf("secure store write failed, disk fallback disabled: %w", err)
		}
	} else if !s.opts.DiskFallback {
		return securestore.ErrUnavailable
	}
	return store.WriteSidecar(s.paths, blob)
}

func (s *Service) slowProfile(ctx context.Context) (krypto.Params, error) {
	if s.opts.SlowParams != nil {
		return *s.opts.SlowParams, nil
	}
	return krypto.Calibrate(ctx, s.opts.SlowTarget, krypto.DefaultSlowBounds())
}

func (s *Service) fastProfile(ctx context.Context) (krypto.Params, error) {
	if s.opts.FastParams != nil {
		return *s.opts.FastParams, nil
	}
	return krypto.Calibrate(ctx, s.opts.FastTarget, krypto.DefaultFastBounds())
}
