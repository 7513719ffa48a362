package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/lockbox-sh/lockbox/internal/vault"
)

// WriteParts splits data into n contiguous, roughly equal slices and writes
// each to its part file via temp-then-rename. No part is ever observable
// half-written; the set of parts is not swapped as one atomic group, which
// is why callers write parts before the metadata that references them.
func WriteParts(p Paths, fileBase string, data []byte, n int) error {
	if n <= 0 {
		return errors.New("part count must be positive")
	}
	if err := p.ensureDir(); err != nil {
		return err
	}

	for i := 1; i <= n; i++ {
		slice := partSlice(data, n, i)
		pattern := fmt.Sprintf("%s-*.part%d", fileBase, i)
		if err := atomicWrite(p.Dir, p.PartPath(fileBase, i), pattern, slice); err != nil {
			return fmt.Errorf("write part %d: %w", i, err)
		}
	}
	return nil
}

// partSlice returns the i-th (1-indexed) of n contiguous slices of data.
// The first len(data)%n slices carry one extra byte.
func partSlice(data []byte, n, i int) []byte {
	size := len(data) / n
	extra := len(data) % n

	start := (i - 1) * size
	if i-1 < extra {
		start += i - 1
	} else {
		start += extra
	}
	end := start + size
	if i-1 < extra {
		end++
	}
	return data[start:end]
}

// ReadParts reads and concatenates all n part files in order. Any missing
// part is fatal; there is no partial reconstruction.
func ReadParts(p Paths, fileBase string, n int) ([]byte, error) {
	if n <= 0 {
		return nil, errors.New("part count must be positive")
	}

	var out []byte
	for i := 1; i <= n; i++ {
		data, err := os.ReadFile(p.PartPath(fileBase, i))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: part %d", vault.ErrMissingPart, i)
			}
			return nil, fmt.Errorf("read part %d: %w", i, err)
		}
		out = append(out, data...)
	}
	return out, nil
}

// BackupParts copies each existing part file to a timestamped .bak sibling
// (one new generation per call). Parts that do not exist yet are skipped.
func BackupParts(p Paths, fileBase string, n int) error {
	stamp := time.Now().UnixNano()
	for i := 1; i <= n; i++ {
		src := p.PartPath(fileBase, i)
		if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
			continue
		} else if err != nil {
			return fmt.Errorf("stat part %d: %w", i, err)
		}
		dst := fmt.Sprintf("%s.%d.bak", src, stamp)
		for {
			if _, err := os.Stat(dst); errors.Is(err, os.ErrNotExist) {
				break
			}
			stamp++
			dst = fmt.Sprintf("%s.%d.bak", src, stamp)
		}
		if err := copyFile(src, dst); err != nil {
			return fmt.Errorf("backup part %d: %w", i, err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// PruneBackups retains only the keep most-recently-modified backup
// generations per part. Older generations are removed.
func PruneBackups(p Paths, fileBase string, n, keep int) error {
	if keep < 0 {
		keep = 0
	}

	for i := 1; i <= n; i++ {
		paths, err := ListBackups(p, fileBase, i)
		if err != nil {
			return err
		}
		if len(paths) <= keep {
			continue
		}
		for _, stale := range paths[keep:] {
			if err := os.Remove(stale); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("prune backup: %w", err)
			}
		}
	}
	return nil
}

// ListBackups returns the backup generations of the n-th part, most recent
// first.
func ListBackups(p Paths, fileBase string, n int) ([]string, error) {
	matches, err := filepath.Glob(p.BackupGlob(fileBase, n))
	if err != nil {
		return nil, fmt.Errorf("list backups for part %d: %w", n, err)
	}

	type backup struct {
		path string
		mod  int64
	}
	backups := make([]backup, 0, len(matches))
	for _, path := range matches {
		info, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		} else if err != nil {
			return nil, fmt.Errorf("stat backup: %w", err)
		}
		backups = append(backups, backup{path: path, mod: info.ModTime().UnixNano()})
	}

	sort.Slice(backups, func(a, b int) bool {
		if backups[a].mod != backups[b].mod {
			return backups[a].mod > backups[b].mod
		}
		return backups[a].path > backups[b].path
	})

	out := make([]string, len(backups))
	for i, b := range backups {
		out[i] = b.path
	}
	return out, nil
}
