// Package fileset holds the path -> content mapping exchanged between the
// prompt builder, the output parsers, and the publisher.
package fileset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// ErrInvalidPath is returned for absolute, empty, or parent-escaping paths.
var ErrInvalidPath = errors.New("invalid file path")

// FileSet maps a relative, forward-slash separated path to its text content.
type FileSet map[string]string

// Paths returns the keys in lexical order.
func (f FileSet) Paths() []string {
	paths := make([]string, 0, len(f))
	for p := range f {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Clone returns a shallow copy.
func (f FileSet) Clone() FileSet {
	out := make(FileSet, len(f))
	for p, content := range f {
		out[p] = content
	}
	return out
}

// Merge copies every entry of other into f, overwriting existing keys.
func (f FileSet) Merge(other FileSet) {
	for p, content := range other {
		f[p] = content
	}
}

// IsHidden reports whether any segment of p starts with a dot. Version-control
// metadata (.git, .github) and dotfiles are hidden.
func IsHidden(p string) bool {
	for _, segment := range strings.Split(p, "/") {
		if strings.HasPrefix(segment, ".") && segment != "." {
			return true
		}
	}
	return false
}

// CleanPath normalises p to a relative forward-slash path.
func CleanPath(p string) (string, error) {
	p = strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	if p == "" || strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return cleaned, nil
}

// WriteDir writes every entry to <dir>/<path>, creating parent directories.
func WriteDir(dir string, files FileSet) error {
	for _, p := range files.Paths() {
		cleaned, err := CleanPath(p)
		if err != nil {
			return err
		}

		target := filepath.Join(dir, filepath.FromSlash(cleaned))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", cleaned, err)
		}
		if err := os.WriteFile(target, []byte(files[p]), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", cleaned, err)
		}
	}
	return nil
}

// ReadDir loads every regular file under dir, skipping hidden paths.
// A missing directory yields an empty FileSet.
func ReadDir(dir string) (FileSet, error) {
	files := FileSet{}

	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return files, nil
	}

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == dir {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if IsHidden(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", rel, err)
		}
		files[rel] = string(data)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	return files, nil
}
