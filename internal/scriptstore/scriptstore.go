// Package scriptstore is the only writer to the canonical installer script
// on disk. Save applies reserved-prefix overwrite-vs-suffix
// naming and rejects syntactically invalid shell before it ever touches the
// filesystem; Load returns the body unchanged.
package scriptstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"mvdan.cc/sh/v3/syntax"
)

// Store resolves installer script paths relative to RootDir and serializes
// writes with an advisory lock, the way internal/config/write.go guards its
// own file mutations.
type Store struct {
	// RootDir is the host project directory every relative path resolves
	// against.
	RootDir string
	// ReservedPrefixes names basenames that are overwritten in place
	// rather than suffixed on a repeat Save. Defaults to {"envrepair_"}.
	ReservedPrefixes []string
}

// New returns a Store rooted at dir with the default reserved-prefix set.
func New(dir string) *Store {
	return &Store{RootDir: dir, ReservedPrefixes: []string{"envrepair_"}}
}

// ParseError reports a shell syntax failure caught before Save writes
// anything to disk.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("scriptstore: %s is not valid shell: %v", e.Path, e.Err)
}
func (e *ParseError) Unwrap() error { return e.Err }

// Save validates body as shell, then writes it at relativePath — overwriting
// in place if relativePath's basename already carries a reserved prefix,
// otherwise appending a numeric suffix before the extension so a prior
// script is never silently clobbered. Returns the relative path actually
// written.
func (s *Store) Save(relativePath, body string) (string, error) {
	if _, err := syntax.NewParser().Parse(strings.NewReader(body), relativePath); err != nil {
		return "", &ParseError{Path: relativePath, Err: err}
	}

	target := s.resolveTarget(relativePath)
	full := filepath.Join(s.RootDir, target)

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("scriptstore: creating parent dirs for %s: %w", target, err)
	}

	if err := s.withLock(full, func() error {
		return atomicWriteFile(full, []byte(body), 0o755)
	}); err != nil {
		return "", err
	}
	return target, nil
}

// resolveTarget decides the actual relative path Save writes to: unchanged
// if the basename has a reserved prefix or the path doesn't exist yet,
// otherwise the first available "<name>_<n><ext>" suffix.
func (s *Store) resolveTarget(relativePath string) string {
	if s.hasReservedPrefix(filepath.Base(relativePath)) {
		return relativePath
	}
	full := filepath.Join(s.RootDir, relativePath)
	if _, err := os.Stat(full); os.IsNotExist(err) {
		return relativePath
	}

	dir := filepath.Dir(relativePath)
	ext := filepath.Ext(relativePath)
	base := strings.TrimSuffix(filepath.Base(relativePath), ext)

	for n := 2; ; n++ {
		candidate := filepath.Join(dir, base+"_"+strconv.Itoa(n)+ext)
		if _, err := os.Stat(filepath.Join(s.RootDir, candidate)); os.IsNotExist(err) {
			return candidate
		}
	}
}

func (s *Store) hasReservedPrefix(basename string) bool {
	for _, p := range s.ReservedPrefixes {
		if strings.HasPrefix(basename, p) {
			return true
		}
	}
	return false
}

// Load returns the body at path, resolved relative to RootDir.
func (s *Store) Load(path string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.RootDir, path))
	if err != nil {
		return "", fmt.Errorf("scriptstore: reading %s: %w", path, err)
	}
	return string(data), nil
}

// Shebang extracts the first line of body if it starts with "#!", used by
// internal/repair's Rewrite post-condition check.
func Shebang(body string) (string, bool) {
	line, _, _ := strings.Cut(body, "\n")
	line = strings.TrimRight(line, "\r")
	if strings.HasPrefix(line, "#!") {
		return line, true
	}
	return "", false
}

// withLock serializes writes to path via an advisory lock on path+".lock",
// mirroring internal/config/write.go's withLock.
func (s *Store) withLock(path string, fn func() error) error {
	fl := flock.New(path + ".lock")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	locked, err := fl.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("scriptstore: acquiring lock for %s: %w", path, err)
	}
	if !locked {
		return fmt.Errorf("scriptstore: timed out acquiring lock for %s", path)
	}
	defer func() { _ = fl.Unlock() }()

	return fn()
}

// atomicWriteFile writes data to a temp file in path's directory, then
// renames it into place, so a crash mid-write never leaves a partial
// installer script behind.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".envrepair-*.tmp")
	if err != nil {
		return fmt.Errorf("scriptstore: creating temp file for %s: %w", path, err)
	}

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("scriptstore: writing temp file for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("scriptstore: syncing temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("scriptstore: closing temp file for %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return fmt.Errorf("scriptstore: setting permissions on temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("scriptstore: renaming temp file to %s: %w", path, err)
	}

	success = true
	return nil
}
