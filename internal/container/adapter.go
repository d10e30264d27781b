// Package container implements the ContainerAdapter contract: a
// uniform container lifecycle plus a synchronous
// subprocess interface, backed by the Docker engine. A second,
// in-memory-only implementation lives in internal/container/fake for unit
// tests that don't need a real daemon.
package container

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/hashicorp/go-multierror"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/schmitthub/envrepair/internal/state"
)

// FileWrite is one entry of a PutFiles batch.
type FileWrite struct {
	Path  string
	Bytes []byte
}

// timeoutExitCode is the sentinel exit code reported when exec runs past its
// deadline; 124 mirrors GNU coreutils' `timeout` and is used when the
// caller's context is cancelled, 137 mirrors a SIGKILL (128+9) and is used
// when the deadline itself expires. The adapter sends no signal: the
// process inside the container is not killed.
const (
	timeoutExitCodeTermed  = 124
	timeoutExitCodeKilled  = 137
	timeoutMarker          = "\n[envrepair: command timed out]\n"
)

// Adapter is the container lifecycle + exec contract every
// RepairStateMachine state executes against.
type Adapter interface {
	BuildImage(ctx context.Context, dockerfile string) error
	Start(ctx context.Context, bindHostProject bool) error
	Restart(ctx context.Context, bindHostProject bool) error
	Exec(ctx context.Context, cmd string, timeout time.Duration) (state.ExecResult, error)
	PutFiles(ctx context.Context, files []FileWrite) error
	RemoveFiles(ctx context.Context, paths []string) error
	MkdirAll(ctx context.Context, paths []string) error
	ReadFile(ctx context.Context, path string, maxLines int) (string, error)
	CopyHostToContainer(ctx context.Context, relativePaths []string) error
	CopyContainerToHost(ctx context.Context, pattern string) error
	Cleanup(ctx context.Context) error
}

// Options configures a DockerAdapter.
type Options struct {
	// ImageTag names the built image; defaults to "envrepair/run:latest".
	ImageTag string
	// ContainerName names the launched container; defaults to "envrepair-run".
	ContainerName string
	// Workdir is the fixed in-container working directory, default "/app".
	Workdir string
	// HostProjectDir is bind-mounted into Workdir when Start's bindHostProject is true.
	HostProjectDir string
	// HostStagingDir holds artifacts synced via CopyHostToContainer/CopyContainerToHost
	// when bind mounts are off; removed by Cleanup.
	HostStagingDir string
	// Platform pins the container platform ("os/arch", e.g. "linux/amd64");
	// empty lets the daemon pick.
	Platform string
	// MemoryBytes caps the container's memory; zero means unlimited.
	MemoryBytes int64
	// LoginShell is the shell invoked for Exec, e.g. "/bin/bash -lc". Defaults to bash.
	LoginShell []string
}

func (o *Options) setDefaults() {
	if o.ImageTag == "" {
		o.ImageTag = "envrepair/run:latest"
	}
	if o.ContainerName == "" {
		o.ContainerName = "envrepair-run"
	}
	if o.Workdir == "" {
		o.Workdir = "/app"
	}
	if len(o.LoginShell) == 0 {
		o.LoginShell = []string{"/bin/bash", "-lc"}
	}
}

// DockerAdapter is the production Adapter: image build and
// container lifecycle through the Docker API, login-shell exec with
// stdcopy demux, and tar-based copy restricted to managed containers.
type DockerAdapter struct {
	eng           *engine
	opts          Options
	containerID   string
	builtImage    digest.Digest
	buildProgress func(BuildProgressEvent)
}

// NewDockerAdapter connects to the Docker daemon and returns an adapter
// ready for BuildImage/Start.
func NewDockerAdapter(ctx context.Context, opts Options) (*DockerAdapter, error) {
	opts.setDefaults()
	eng, err := newEngine(ctx)
	if err != nil {
		return nil, err
	}
	return &DockerAdapter{eng: eng, opts: opts}, nil
}

func (a *DockerAdapter) BuildImage(ctx context.Context, dockerfileText string) error {
	buildCtx, err := tarSingleFile("Dockerfile", []byte(dockerfileText))
	if err != nil {
		return &InfraError{Op: "build", Err: err, Message: "failed to stage build context"}
	}
	resp, err := a.eng.buildImage(ctx, buildCtx, types.ImageBuildOptions{
		Tags:       []string{a.opts.ImageTag},
		Dockerfile: "Dockerfile",
		Remove:     true,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	id, err := drainBuildOutput(resp.Body, a.buildProgress)
	if err != nil {
		return err
	}
	a.builtImage = id
	return nil
}

// BuiltImage returns the content digest of the last successful BuildImage,
// or "" if no build has completed (or the daemon didn't report one).
func (a *DockerAdapter) BuiltImage() digest.Digest {
	return a.builtImage
}

// OnBuildProgress registers fn to receive step and log events from
// BuildImage's output stream; nil unregisters. fn is called from whichever
// goroutine drives the build.
func (a *DockerAdapter) OnBuildProgress(fn func(BuildProgressEvent)) {
	a.buildProgress = fn
}

// drainBuildOutput reads the build JSON-message stream to completion,
// surfacing the final error message embedded in the stream (Docker reports
// build failures as a 200 response with an "errorDetail" message, not as an
// HTTP error) rather than a generic EOF. When progress is non-nil, every
// "Step n/m" boundary and output line is forwarded to it.
func drainBuildOutput(r io.Reader, progress func(BuildProgressEvent)) (digest.Digest, error) {
	emit := func(ev BuildProgressEvent) {
		if progress != nil {
			progress(ev)
		}
	}

	dec := newBuildMessageDecoder(r)
	var lastErr string
	var id digest.Digest
	var stepID, stepName string
	for {
		msg, ok, err := dec.next()
		if err != nil {
			return "", errImageBuildFailed(err)
		}
		if !ok {
			break
		}
		if msg.errorDetail != "" {
			lastErr = msg.errorDetail
		}
		if msg.imageID != "" {
			if d, err := digest.Parse(msg.imageID); err == nil {
				id = d
			}
		}

		line := strings.TrimRight(msg.stream, "\n")
		if line == "" {
			continue
		}
		if m := stepLine.FindStringSubmatch(line); m != nil {
			if stepID != "" {
				emit(BuildProgressEvent{StepID: stepID, StepName: stepName, Status: BuildStepComplete})
			}
			stepID, stepName = m[1], m[2]
			emit(BuildProgressEvent{StepID: stepID, StepName: stepName, Status: BuildStepRunning})
			continue
		}
		emit(BuildProgressEvent{LogLine: strings.TrimSpace(line)})
	}

	if lastErr != "" {
		if stepID != "" {
			emit(BuildProgressEvent{StepID: stepID, StepName: stepName, Status: BuildStepError, LogLine: lastErr})
		}
		return "", errImageBuildFailed(fmt.Errorf("%s", lastErr))
	}
	if stepID != "" {
		emit(BuildProgressEvent{StepID: stepID, StepName: stepName, Status: BuildStepComplete})
	}
	return id, nil
}

func (a *DockerAdapter) Start(ctx context.Context, bindHostProject bool) error {
	return a.start(ctx, bindHostProject, false)
}

// Restart stops and removes any previous container first, then starts
// fresh — re-entrant safe.
func (a *DockerAdapter) Restart(ctx context.Context, bindHostProject bool) error {
	return a.start(ctx, bindHostProject, true)
}

func (a *DockerAdapter) start(ctx context.Context, bindHostProject, forceRecreate bool) error {
	existing, err := a.eng.findByName(ctx, a.opts.ContainerName)
	if err == nil && existing != nil {
		if !forceRecreate {
			a.containerID = existing.ID
			return nil
		}
		if err := a.removeContainer(ctx, existing.ID); err != nil {
			return err
		}
	}

	hostConfig := &container.HostConfig{}
	if bindHostProject && a.opts.HostProjectDir != "" {
		hostConfig.Binds = []string{a.opts.HostProjectDir + ":" + a.opts.Workdir}
	}

	if a.opts.MemoryBytes > 0 {
		hostConfig.Resources = container.Resources{Memory: a.opts.MemoryBytes}
	}

	cfg := &container.Config{
		Image:      a.opts.ImageTag,
		Cmd:        []string{"sleep", "infinity"},
		WorkingDir: a.opts.Workdir,
		Labels:     a.eng.containerLabels(nil),
		Tty:        false,
	}

	resp, err := a.eng.ContainerCreate(ctx, cfg, hostConfig, nil, a.platform(), a.opts.ContainerName)
	if err != nil {
		return &InfraError{Op: "create", Err: err, Message: "failed to create container"}
	}
	if err := a.eng.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return errContainerStartFailed(a.opts.ContainerName, err)
	}
	a.containerID = resp.ID
	return nil
}

func (a *DockerAdapter) removeContainer(ctx context.Context, id string) error {
	timeout := 5
	_ = a.eng.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout})
	return a.eng.ContainerRemove(ctx, id, container.RemoveOptions{Force: true, RemoveVolumes: true})
}

// Exec wraps cmd in the adapter's login shell so shell init files take
// effect (virtualenv activation etc.), then demuxes stdout/stderr via
// stdcopy. On timeout it closes the attached stream (the exec's process is
// not signalled and may keep running in the container) and returns a
// sentinel exit code plus a marker appended to stdout instead of
// propagating an error — TimeoutError is not fatal.
func (a *DockerAdapter) Exec(ctx context.Context, cmd string, timeout time.Duration) (state.ExecResult, error) {
	if timeout <= 0 {
		return state.ExecResult{}, fmt.Errorf("container: exec rejects timeout_secs == 0")
	}
	if a.containerID == "" {
		return state.ExecResult{}, errContainerNotFound(a.opts.ContainerName)
	}

	shellCmd := append(append([]string{}, a.opts.LoginShell...), cmd)
	execResp, err := a.eng.ContainerExecCreate(ctx, a.containerID, container.ExecOptions{
		Cmd:          shellCmd,
		AttachStdout: true,
		AttachStderr: true,
		WorkingDir:   a.opts.Workdir,
	})
	if err != nil {
		return state.ExecResult{}, &InfraError{Op: "exec_create", Err: err, Message: "failed to create exec"}
	}

	hijack, err := a.eng.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return state.ExecResult{}, &InfraError{Op: "exec_attach", Err: err, Message: "failed to attach exec"}
	}
	defer hijack.Close()

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	done := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(&stdout, &stderr, hijack.Reader)
		done <- copyErr
	}()

	select {
	case <-execCtx.Done():
		// Tear down the stream and wait for the copier to stop before
		// touching the buffers, so the timeout result never races it.
		hijack.Close()
		<-done
		return a.timeoutResult(stdout, stderr, execCtx.Err()), nil
	case copyErr := <-done:
		if copyErr != nil && copyErr != io.EOF {
			return state.ExecResult{}, &InfraError{Op: "exec_stream", Err: copyErr, Message: "failed reading exec output"}
		}
	}

	inspect, err := a.eng.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return state.ExecResult{}, &InfraError{Op: "exec_inspect", Err: err, Message: "failed to inspect exec"}
	}

	return state.ExecResult{
		ExitCode: inspect.ExitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

func (a *DockerAdapter) timeoutResult(stdout, stderr bytes.Buffer, ctxErr error) state.ExecResult {
	code := timeoutExitCodeTermed
	if ctxErr == context.DeadlineExceeded {
		code = timeoutExitCodeKilled
	}
	return state.ExecResult{
		ExitCode: code,
		Stdout:   stdout.String() + timeoutMarker,
		Stderr:   stderr.String(),
	}
}

func (a *DockerAdapter) PutFiles(ctx context.Context, files []FileWrite) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, f := range files {
		hdr := &tar.Header{Name: strings.TrimPrefix(f.Path, "/"), Mode: 0o644, Size: int64(len(f.Bytes))}
		if err := tw.WriteHeader(hdr); err != nil {
			return &InfraError{Op: "put_files", Err: err, Message: "failed to stage files"}
		}
		if _, err := tw.Write(f.Bytes); err != nil {
			return &InfraError{Op: "put_files", Err: err, Message: "failed to stage files"}
		}
	}
	if err := tw.Close(); err != nil {
		return &InfraError{Op: "put_files", Err: err, Message: "failed to stage files"}
	}
	ok, err := a.eng.isManaged(ctx, a.containerID)
	if err != nil {
		return errCopyFailed("put_files", a.opts.ContainerName, err)
	}
	if !ok {
		return errContainerNotFound(a.opts.ContainerName)
	}
	if err := a.eng.CopyToContainer(ctx, a.containerID, a.opts.Workdir, &buf, container.CopyToContainerOptions{}); err != nil {
		return errCopyFailed("put_files", a.opts.ContainerName, err)
	}
	return nil
}

func (a *DockerAdapter) RemoveFiles(ctx context.Context, paths []string) error {
	var merr error
	for _, p := range paths {
		if _, err := a.Exec(ctx, "rm -rf -- "+shQuote(p), 30*time.Second); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr
}

func (a *DockerAdapter) MkdirAll(ctx context.Context, paths []string) error {
	var merr error
	for _, p := range paths {
		if _, err := a.Exec(ctx, "mkdir -p -- "+shQuote(p), 30*time.Second); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr
}

func (a *DockerAdapter) ReadFile(ctx context.Context, path string, maxLines int) (string, error) {
	if maxLines <= 0 {
		maxLines = 1000
	}
	res, err := a.Exec(ctx, fmt.Sprintf("head -n %d -- %s", maxLines, shQuote(path)), 30*time.Second)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("container: read_file %s failed: %s", path, res.Stderr)
	}
	return res.Stdout, nil
}

func (a *DockerAdapter) CopyHostToContainer(ctx context.Context, relativePaths []string) error {
	var files []FileWrite
	for _, rel := range relativePaths {
		full := a.opts.HostProjectDir + "/" + rel
		data, err := readHostFile(full)
		if err != nil {
			return &InfraError{Op: "copy_host_to_container", Err: err, Message: "failed to read host file " + full}
		}
		files = append(files, FileWrite{Path: rel, Bytes: data})
	}
	return a.PutFiles(ctx, files)
}

func (a *DockerAdapter) CopyContainerToHost(ctx context.Context, pattern string) error {
	ok, err := a.eng.isManaged(ctx, a.containerID)
	if err != nil {
		return errCopyFailed("copy_container_to_host", a.opts.ContainerName, err)
	}
	if !ok {
		return errContainerNotFound(a.opts.ContainerName)
	}
	reader, _, err := a.eng.CopyFromContainer(ctx, a.containerID, a.opts.Workdir+"/"+pattern)
	if err != nil {
		return errCopyFailed("copy_container_to_host", a.opts.ContainerName, err)
	}
	defer reader.Close()
	return writeTarToHostDir(reader, a.opts.HostStagingDir)
}

// Cleanup stops and removes the container and image, and deletes the host
// staging directory, aggregating failures rather than stopping at the
// first one.
func (a *DockerAdapter) Cleanup(ctx context.Context) error {
	var merr error
	if a.containerID != "" {
		if err := a.removeContainer(ctx, a.containerID); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	if err := a.eng.removeImage(ctx, a.opts.ImageTag, true); err != nil {
		merr = multierror.Append(merr, err)
	}
	if a.opts.HostStagingDir != "" {
		if err := removeHostDir(a.opts.HostStagingDir); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr
}

// platform parses Options.Platform into the OCI platform spec the create
// call takes; nil lets the daemon pick its native platform.
func (a *DockerAdapter) platform() *ocispec.Platform {
	if a.opts.Platform == "" {
		return nil
	}
	osName, arch, ok := strings.Cut(a.opts.Platform, "/")
	if !ok {
		return nil
	}
	return &ocispec.Platform{OS: osName, Architecture: arch}
}

func shQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func tarSingleFile(name string, content []byte) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}); err != nil {
		return nil, err
	}
	if _, err := tw.Write(content); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}
