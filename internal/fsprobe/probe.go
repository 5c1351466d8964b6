// Package fsprobe inspects the filesystem side effects of a running job.
// Every helper is stateless and tolerant: a path that cannot be read counts
// as empty rather than failing the caller.
package fsprobe

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileSize returns the size of path in bytes, or 0 when it cannot be stat'ed.
func FileSize(path string) uint64 {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return 0
	}
	if info.Size() < 0 {
		return 0
	}
	return uint64(info.Size())
}

// ListPrefix returns full paths of directory entries whose name starts with
// prefix, sorted by name. A missing directory yields no entries.
func ListPrefix(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// SumPrefix totals the sizes of entries in dir that start with prefix,
// skipping an entry named exactly exclude.
func SumPrefix(dir, prefix, exclude string) (uint64, error) {
	files, err := ListPrefix(dir, prefix)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, f := range files {
		if exclude != "" && filepath.Base(f) == exclude {
			continue
		}
		total += FileSize(f)
	}
	return total, nil
}

// RemovePrefix deletes every entry in dir whose name starts with prefix and
// returns the removed paths. It keeps going past individual failures and
// reports them together.
func RemovePrefix(dir, prefix string) ([]string, error) {
	files, err := ListPrefix(dir, prefix)
	if err != nil {
		return nil, err
	}
	removed := make([]string, 0, len(files))
	var errs []error
	for _, f := range files {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", f, err))
			continue
		}
		removed = append(removed, f)
	}
	return removed, errors.Join(errs...)
}

// AppendExtension renames every entry in dir starting with prefix to
// "<name>.<ext>" and returns the new paths. Entries already carrying the
// extension are left alone.
func AppendExtension(dir, prefix, ext string) ([]string, error) {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		return nil, fmt.Errorf("extension is required")
	}
	files, err := ListPrefix(dir, prefix)
	if err != nil {
		return nil, err
	}
	renamed := make([]string, 0, len(files))
	var errs []error
	for _, f := range files {
		if strings.HasSuffix(f, "."+ext) {
			continue
		}
		target := f + "." + ext
		if err := os.Rename(f, target); err != nil {
			errs = append(errs, fmt.Errorf("rename %s: %w", f, err))
			continue
		}
		renamed = append(renamed, target)
	}
	return renamed, errors.Join(errs...)
}

// Exists reports whether path can be stat'ed.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
