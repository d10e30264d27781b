package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrAlreadyExists is returned by WriteDefault when path exists and safe
// overwrite was requested.
var ErrAlreadyExists = errors.New("config: file already exists")

// WriteDefault scaffolds DefaultConfigYAML at path, guarded by the same
// flock-then-atomic-rename discipline as internal/scriptstore.Store.Save. If safe is true and path already
// exists, it returns ErrAlreadyExists instead of overwriting.
func WriteDefault(path string, safe bool) error {
	if safe {
		if _, err := os.Stat(path); err == nil {
			return ErrAlreadyExists
		} else if !os.IsNotExist(err) {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: creating parent dirs for %s: %w", path, err)
	}

	return withLock(path, func() error {
		return atomicWriteFile(path, []byte(DefaultConfigYAML), 0o644)
	})
}

func withLock(path string, fn func() error) error {
	fl := flock.New(path + ".lock")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	locked, err := fl.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("config: acquiring lock for %s: %w", path, err)
	}
	if !locked {
		return fmt.Errorf("config: timed out acquiring lock for %s", path)
	}
	defer func() { _ = fl.Unlock() }()

	return fn()
}

func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".envrepair-config-*.tmp")
	if err != nil {
		return fmt.Errorf("config: creating temp file for %s: %w", path, err)
	}

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("config: writing temp file for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("config: syncing temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config: closing temp file for %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return fmt.Errorf("config: setting permissions on temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("config: renaming temp file to %s: %w", path, err)
	}

	success = true
	return nil
}
