// Package fileutil provides file system utility functions.
package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when no file matches, in any letter case.
var ErrNotFound = errors.New("file not found")

// FindFileCaseInsensitive searches dir for an entry named filename,
// ignoring letter case.
//
// Example:
//
//	path, err := FindFileCaseInsensitive("/songs", "GROOVE.MID")
//	// finds "groove.mid", "Groove.Mid", ...
func FindFileCaseInsensitive(dir, filename string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	searchName := strings.ToLower(filename)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.ToLower(entry.Name()) == searchName {
			return filepath.Join(dir, entry.Name()), nil
		}
	}

	return "", fmt.Errorf("%w: %s (searched in %s)", ErrNotFound, filename, dir)
}

// Resolve returns the actual path of a file whose name, or any of whose
// directory components, may differ in letter case from path. MIDI files
// copied from old Windows media often do.
func Resolve(path string) (string, error) {
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return path, nil
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)

	if _, err := os.Stat(dir); err != nil {
		actualDir, err := resolveDir(dir)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		dir = actualDir
	}

	return FindFileCaseInsensitive(dir, base)
}

// resolveDir walks dir one component at a time from the first existing
// ancestor, matching each missing component case-insensitively.
func resolveDir(dir string) (string, error) {
	clean := filepath.Clean(dir)
	current := clean
	var missing []string
	for {
		if _, err := os.Stat(current); err == nil {
			break
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", fmt.Errorf("%w: %s", ErrNotFound, dir)
		}
		missing = append([]string{filepath.Base(current)}, missing...)
		current = parent
	}

	for _, component := range missing {
		entries, err := os.ReadDir(current)
		if err != nil {
			return "", err
		}
		lower := strings.ToLower(component)
		found := false
		for _, entry := range entries {
			if entry.IsDir() && strings.ToLower(entry.Name()) == lower {
				current = filepath.Join(current, entry.Name())
				found = true
				break
			}
		}
		if !found {
			return "", fmt.Errorf("%w: directory component %s in %s", ErrNotFound, component, current)
		}
	}
	return current, nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	return filepath.Join(home, path[1:])
}

// HasExtension reports whether path ends in one of exts, ignoring case.
func HasExtension(path string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}
