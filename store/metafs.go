package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lockbox-sh/lockbox/internal/vault"
)

const (
	metadataFilename = "vault.json"
	sidecarFilename  = "wrapped.key"
)

// Paths locates vault artifacts on disk.
type Paths struct {
	Dir string
}

// MetadataPath resolves the metadata JSON path.
func (p Paths) MetadataPath() string {
	return filepath.Join(p.Dir, metadataFilename)
}

// SidecarPath resolves the disk-fallback wrapped-key path.
func (p Paths) SidecarPath() string {
	return filepath.Join(p.Dir, sidecarFilename)
}

// PartPath resolves the path of the n-th part file (1-indexed).
func (p Paths) PartPath(fileBase string, n int) string {
	return filepath.Join(p.Dir, fmt.Sprintf("%s.part%d", fileBase, n))
}

// BackupGlob matches every backup generation of the n-th part file.
func (p Paths) BackupGlob(fileBase string, n int) string {
	return p.PartPath(fileBase, n) + ".*.bak"
}

func (p Paths) ensureDir() error {
	if p.Dir == "" {
		return errors.New("vault directory not specified")
	}
	if err := os.MkdirAll(p.Dir, 0o700); err != nil {
		return fmt.Errorf("create vault directory: %w", err)
	}
	return nil
}

// LoadMetadata reads and validates the metadata record.
func LoadMetadata(p Paths) (vault.Metadata, error) {
	var meta vault.Metadata

	data, err := os.ReadFile(p.MetadataPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return meta, fmt.Errorf("%w: %s", vault.ErrMissingMetadata, p.Dir)
		}
		return meta, fmt.Errorf("read metadata: %w", err)
	}

	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("decode metadata: %w", err)
	}
	if err := meta.Validate(); err != nil {
		return meta, fmt.Errorf("validate metadata: %w", err)
	}

	return meta, nil
}

// SaveMetadata persists the metadata record atomically with restrictive
// permissions. Every mutation of the record goes through this path, so a
// crash leaves either the old or the new record, never a torn file.
func SaveMetadata(p Paths, meta vault.Metadata) error {
	if err := p.ensureDir(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	return atomicWrite(p.Dir, p.MetadataPath(), "vault-*.json", data)
}

// atomicWrite writes data to a temp file in dir, syncs it, and renames it
// over dst.
func atomicWrite(dir, dst, tmpPattern string, data []byte) error {
	tmp, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace %s: %w", filepath.Base(dst), err)
	}

	return nil
}
