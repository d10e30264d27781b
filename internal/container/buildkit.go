package container

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"sync"

	bkclient "github.com/moby/buildkit/client"
	"github.com/tonistiigi/fsutil"
)

// dockerDialer abstracts the DialHijack capability on the Docker client,
// which exposes the daemon's embedded buildkitd over the /grpc and /session
// hijack endpoints.
type dockerDialer interface {
	DialHijack(ctx context.Context, url, proto string, meta map[string][]string) (net.Conn, error)
}

// BuildImageKit is the BuildKit-backed alternative to BuildImage, used when
// the installer's base image needs a BuildKit-specific feature (cache
// mounts, multi-stage COPY --from) the legacy ImageBuild path can't
// express. The Dockerfile is staged into buildContextDir first since
// BuildKit's local-mount source reads from disk, not from an in-memory tar.
func (a *DockerAdapter) BuildImageKit(ctx context.Context, dockerfileText string) error {
	dialer, ok := a.eng.APIClient.(dockerDialer)
	if !ok {
		return &InfraError{Op: "buildkit_connect", Message: "docker client does not expose the buildkit hijack endpoints"}
	}

	contextDir := a.buildContextDir()
	if err := stageDockerfile(contextDir, dockerfileText); err != nil {
		return &InfraError{Op: "buildkit_context", Err: err, Message: "failed to stage build context"}
	}

	bkClient, err := bkclient.New(ctx, "",
		bkclient.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return dialer.DialHijack(ctx, "/grpc", "h2c", nil)
		}),
		bkclient.WithSessionDialer(func(ctx context.Context, proto string, meta map[string][]string) (net.Conn, error) {
			return dialer.DialHijack(ctx, "/session", proto, meta)
		}),
	)
	if err != nil {
		return &InfraError{Op: "buildkit_connect", Err: err, Message: "failed to connect to buildkit"}
	}
	defer bkClient.Close()

	solveOpt, err := a.toSolveOpt(contextDir)
	if err != nil {
		return &InfraError{Op: "buildkit_context", Err: err, Message: "failed to prepare solve options"}
	}

	// Solve's return value is the authoritative error source; the status
	// channel only has to be drained so Solve can make progress.
	statusCh := make(chan *bkclient.SolveStatus)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range statusCh {
		}
	}()

	_, err = bkClient.Solve(ctx, nil, solveOpt, statusCh)
	wg.Wait()
	if err != nil {
		return errImageBuildFailed(err)
	}
	return nil
}

// toSolveOpt builds the dockerfile.v0 frontend solve request: the staged
// context directory is mounted for both the build context and the
// Dockerfile, and the result is exported into the local image store under
// the adapter's image tag.
func (a *DockerAdapter) toSolveOpt(contextDir string) (bkclient.SolveOpt, error) {
	absDir, err := filepath.Abs(contextDir)
	if err != nil {
		return bkclient.SolveOpt{}, fmt.Errorf("resolve context dir: %w", err)
	}
	contextFS, err := fsutil.NewFS(absDir)
	if err != nil {
		return bkclient.SolveOpt{}, fmt.Errorf("create context fs: %w", err)
	}

	attrs := map[string]string{
		"filename":                 "Dockerfile",
		"label:" + managedLabelKey: managedLabelValue,
	}

	return bkclient.SolveOpt{
		Frontend:      "dockerfile.v0",
		FrontendAttrs: attrs,
		LocalMounts: map[string]fsutil.FS{
			"context":    contextFS,
			"dockerfile": contextFS,
		},
		Exports: []bkclient.ExportEntry{{
			Type: "image",
			Attrs: map[string]string{
				"name": a.opts.ImageTag,
				"push": "false",
			},
		}},
	}, nil
}

// buildContextDir returns the host directory BuildKit mirrors as the build
// context; the Dockerfile is staged there before Solve runs.
func (a *DockerAdapter) buildContextDir() string {
	if a.opts.HostStagingDir != "" {
		return a.opts.HostStagingDir
	}
	return a.opts.HostProjectDir
}

// stageDockerfile writes dockerfileText into the build context directory so
// BuildKit's local-mount source can pick it up alongside the project tree.
func stageDockerfile(dir, dockerfileText string) error {
	return writeSingleFile(dir, "Dockerfile", []byte(dockerfileText))
}
