package store

import (
	"errors"
	"fmt"
	"os"
)

// WriteSidecar persists the wrapped-key blob next to the vault with
// owner-only permissions. Disk-fallback only; the secure credential store is
// always preferred when available.
func WriteSidecar(p Paths, blob []byte) error {
	if err := p.ensureDir(); err != nil {
		return err
	}
	return atomicWrite(p.Dir, p.SidecarPath(), "wrapped-*.key", blob)
}

// ReadSidecar loads the wrapped-key blob from disk. os.ErrNotExist is
// returned unchanged when no sidecar exists.
func ReadSidecar(p Paths) ([]byte, error) {
	blob, err := os.ReadFile(p.SidecarPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("read wrapped key: %w", err)
	}
	return blob, nil
}

// RemoveSidecar deletes the wrapped-key sidecar. Idempotent.
func RemoveSidecar(p Paths) error {
	if err := os.Remove(p.SidecarPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove wrapped key: %w", err)
	}
	return nil
}
