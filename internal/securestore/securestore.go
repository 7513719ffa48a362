// Package securestore adapts the platform credential store for holding the
// vault's wrapped key. It exposes opaque write/read/delete-by-name plus an
// availability probe; the fallback policy on unavailability belongs to the
// orchestrator, not here.
package securestore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrNotFound indicates no blob is stored under the given name.
	ErrNotFound = errors.New("secure store entry not found")
	// ErrUnavailable indicates the platform store cannot be used.
	ErrUnavailable = errors.New("secure store unavailable")
)

// Store is an opaque blob store keyed by name. Implementations are expected
// to be internally serialized by the OS.
type Store interface {
	// Available probes the store with a harmless check. It never panics
	// and never returns an error; false simply routes callers to the
	// fallback policy.
	Available() bool
	Write(name string, data []byte) error
	Read(name string) ([]byte, error)
	Delete(name string) error
}

// NameForVault maps a vault directory to a stable store entry name: the hex
// SHA-256 of the canonical absolute path. Hashing avoids cross-vault
// collisions and keeps filesystem paths out of store metadata.
func NameForVault(dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return "", errors.New("vault directory is required")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve directory: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil && resolved != "" {
		abs = resolved
	}

	sum := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:]), nil
}
