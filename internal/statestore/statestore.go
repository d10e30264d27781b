// Package statestore persists State snapshots after every tick:
// "<project>/state_<timestamp>.json", keyed by a monotonic tick
// number so post-mortem inspection can replay a run in order. The tick
// number is zero-padded into the filename's timestamp slot rather than a
// wall-clock time: wall time is not monotonic across a paused/resumed
// run, and the tick number is the actual ordering key. Writes are
// flock-guarded and atomic (write temp, rename).
package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/schmitthub/envrepair/internal/state"
)

// Store writes State snapshots under RootDir, one file per tick.
type Store struct {
	RootDir string
}

// New returns a Store rooted at dir. dir is created on first Save.
func New(dir string) *Store {
	return &Store{RootDir: dir}
}

// filename returns the on-disk name for tick, zero-padded to keep
// directory listings in tick order without parsing JSON.
func filename(tick int) string {
	return fmt.Sprintf("state_%010d.json", tick)
}

// Save writes s as the snapshot for tick, atomically and under an advisory
// lock so a concurrent reader never observes a partial file.
func (st *Store) Save(tick int, s *state.State) (string, error) {
	if err := os.MkdirAll(st.RootDir, 0o755); err != nil {
		return "", fmt.Errorf("statestore: creating %s: %w", st.RootDir, err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("statestore: marshaling tick %d: %w", tick, err)
	}

	path := filepath.Join(st.RootDir, filename(tick))
	if err := st.withLock(path, func() error {
		return atomicWriteFile(path, data, 0o644)
	}); err != nil {
		return "", err
	}
	return path, nil
}

// Load reads back the snapshot for tick.
func (st *Store) Load(tick int) (*state.State, error) {
	path := filepath.Join(st.RootDir, filename(tick))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("statestore: reading tick %d: %w", tick, err)
	}
	var s state.State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("statestore: parsing tick %d: %w", tick, err)
	}
	return &s, nil
}

// Latest returns the highest-numbered snapshot's tick and state, or
// ok=false if RootDir has no snapshots yet (a cold start).
func (st *Store) Latest() (tick int, s *state.State, ok bool, err error) {
	ticks, err := st.Ticks()
	if err != nil {
		return 0, nil, false, err
	}
	if len(ticks) == 0 {
		return 0, nil, false, nil
	}
	last := ticks[len(ticks)-1]
	s, err = st.Load(last)
	if err != nil {
		return 0, nil, false, err
	}
	return last, s, true, nil
}

// Ticks lists every snapshotted tick number present in RootDir, ascending.
func (st *Store) Ticks() ([]int, error) {
	entries, err := os.ReadDir(st.RootDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("statestore: listing %s: %w", st.RootDir, err)
	}

	var ticks []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "state_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		raw := strings.TrimSuffix(strings.TrimPrefix(name, "state_"), ".json")
		n, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		ticks = append(ticks, n)
	}
	sort.Ints(ticks)
	return ticks, nil
}

// withLock serializes writes to path via an advisory lock on path+".lock",
// the same discipline internal/scriptstore.Store uses for the installer
// script.
func (st *Store) withLock(path string, fn func() error) error {
	fl := flock.New(path + ".lock")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	locked, err := fl.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("statestore: acquiring lock for %s: %w", path, err)
	}
	if !locked {
		return fmt.Errorf("statestore: timed out acquiring lock for %s", path)
	}
	defer func() { _ = fl.Unlock() }()

	return fn()
}

// atomicWriteFile writes data to a temp file in path's directory, then
// renames it into place, so a crash mid-write never leaves a partial
// snapshot behind.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".envrepair-snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("statestore: creating temp file for %s: %w", path, err)
	}

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("statestore: writing temp file for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("statestore: syncing temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("statestore: closing temp file for %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return fmt.Errorf("statestore: setting permissions on temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("statestore: renaming temp file to %s: %w", path, err)
	}

	success = true
	return nil
}
