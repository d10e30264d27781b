// Package fake is an in-memory container.Adapter test double, used by
// package tests throughout the module that need the repair machine to run
// against something other than a real Docker daemon. Each Adapter method
// has a corresponding Fn field and recorded calls. Exec and ReadFile panic
// when their Fn field is unset, so a test exercising an unexpected call
// finds out immediately; the other methods return nil when theirs is unset.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/schmitthub/envrepair/internal/container"
	"github.com/schmitthub/envrepair/internal/state"
)

// Adapter is a function-field test double for container.Adapter.
type Adapter struct {
	mu    sync.Mutex
	Calls []string

	BuildImageFn          func(ctx context.Context, dockerfile string) error
	StartFn               func(ctx context.Context, bindHostProject bool) error
	RestartFn             func(ctx context.Context, bindHostProject bool) error
	ExecFn                func(ctx context.Context, cmd string, timeout time.Duration) (state.ExecResult, error)
	PutFilesFn            func(ctx context.Context, files []container.FileWrite) error
	RemoveFilesFn         func(ctx context.Context, paths []string) error
	MkdirAllFn            func(ctx context.Context, paths []string) error
	ReadFileFn            func(ctx context.Context, path string, maxLines int) (string, error)
	CopyHostToContainerFn func(ctx context.Context, relativePaths []string) error
	CopyContainerToHostFn func(ctx context.Context, pattern string) error
	CleanupFn             func(ctx context.Context) error
}

var _ container.Adapter = (*Adapter)(nil)

func (a *Adapter) record(method string) {
	a.mu.Lock()
	a.Calls = append(a.Calls, method)
	a.mu.Unlock()
}

func notImplemented(method string) {
	panic(fmt.Sprintf("fake.Adapter: not implemented: %s — set %sFn", method, method))
}

// Reset clears the call log.
func (a *Adapter) Reset() {
	a.mu.Lock()
	a.Calls = nil
	a.mu.Unlock()
}

func (a *Adapter) BuildImage(ctx context.Context, dockerfile string) error {
	a.record("BuildImage")
	if a.BuildImageFn == nil {
		return nil
	}
	return a.BuildImageFn(ctx, dockerfile)
}

func (a *Adapter) Start(ctx context.Context, bindHostProject bool) error {
	a.record("Start")
	if a.StartFn == nil {
		return nil
	}
	return a.StartFn(ctx, bindHostProject)
}

func (a *Adapter) Restart(ctx context.Context, bindHostProject bool) error {
	a.record("Restart")
	if a.RestartFn == nil {
		return nil
	}
	return a.RestartFn(ctx, bindHostProject)
}

func (a *Adapter) Exec(ctx context.Context, cmd string, timeout time.Duration) (state.ExecResult, error) {
	a.record("Exec")
	if timeout <= 0 {
		return state.ExecResult{}, fmt.Errorf("fake.Adapter: exec rejects timeout_secs == 0")
	}
	if a.ExecFn == nil {
		notImplemented("Exec")
	}
	return a.ExecFn(ctx, cmd, timeout)
}

func (a *Adapter) PutFiles(ctx context.Context, files []container.FileWrite) error {
	a.record("PutFiles")
	if a.PutFilesFn == nil {
		return nil
	}
	return a.PutFilesFn(ctx, files)
}

func (a *Adapter) RemoveFiles(ctx context.Context, paths []string) error {
	a.record("RemoveFiles")
	if a.RemoveFilesFn == nil {
		return nil
	}
	return a.RemoveFilesFn(ctx, paths)
}

func (a *Adapter) MkdirAll(ctx context.Context, paths []string) error {
	a.record("MkdirAll")
	if a.MkdirAllFn == nil {
		return nil
	}
	return a.MkdirAllFn(ctx, paths)
}

func (a *Adapter) ReadFile(ctx context.Context, path string, maxLines int) (string, error) {
	a.record("ReadFile")
	if a.ReadFileFn == nil {
		notImplemented("ReadFile")
	}
	return a.ReadFileFn(ctx, path, maxLines)
}

func (a *Adapter) CopyHostToContainer(ctx context.Context, relativePaths []string) error {
	a.record("CopyHostToContainer")
	if a.CopyHostToContainerFn == nil {
		return nil
	}
	return a.CopyHostToContainerFn(ctx, relativePaths)
}

func (a *Adapter) CopyContainerToHost(ctx context.Context, pattern string) error {
	a.record("CopyContainerToHost")
	if a.CopyContainerToHostFn == nil {
		return nil
	}
	return a.CopyContainerToHostFn(ctx, pattern)
}

func (a *Adapter) Cleanup(ctx context.Context) error {
	a.record("Cleanup")
	if a.CleanupFn == nil {
		return nil
	}
	return a.CleanupFn(ctx)
}
