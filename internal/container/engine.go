package container

import (
	"context"
	"io"
	"maps"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
)

// managedLabelKey marks every resource this engine creates, so list/remove
// operations never touch a container or image the run didn't create itself.
const (
	managedLabelKey   = "envrepair.managed"
	managedLabelValue = "true"
)

// engine is a thin, label-isolating wrapper around the Docker API client.
// It is the low-level plumbing DockerAdapter builds on; nothing outside
// this package talks to client.APIClient directly.
type engine struct {
	client.APIClient
}

func newEngine(ctx context.Context) (*engine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errDaemonUnreachable(err)
	}
	e := &engine{APIClient: cli}
	if _, err := e.Ping(ctx); err != nil {
		return nil, errDaemonUnreachable(err)
	}
	return e, nil
}

func newEngineFromClient(cli client.APIClient) *engine {
	return &engine{APIClient: cli}
}

func managedFilter() filters.Args {
	return filters.NewArgs(filters.Arg("label", managedLabelKey+"="+managedLabelValue))
}

func mergeLabels(maps_ ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, m := range maps_ {
		maps.Copy(result, m)
	}
	return result
}

func (e *engine) containerLabels(extra map[string]string) map[string]string {
	return mergeLabels(map[string]string{managedLabelKey: managedLabelValue}, extra)
}

func (e *engine) isManaged(ctx context.Context, containerID string) (bool, error) {
	info, err := e.ContainerInspect(ctx, containerID)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	val, ok := info.Config.Labels[managedLabelKey]
	return ok && val == managedLabelValue, nil
}

func (e *engine) findByName(ctx context.Context, name string) (*types.Container, error) {
	f := managedFilter()
	f.Add("name", name)
	containers, err := e.ContainerList(ctx, container.ListOptions{All: true, Filters: f})
	if err != nil {
		return nil, err
	}
	for _, c := range containers {
		for _, cname := range c.Names {
			if cname == "/"+name || cname == name {
				cc := c
				return &cc, nil
			}
		}
	}
	return nil, errContainerNotFound(name)
}

func (e *engine) buildImage(ctx context.Context, buildContext io.Reader, opts types.ImageBuildOptions) (types.ImageBuildResponse, error) {
	opts.Labels = mergeLabels(map[string]string{managedLabelKey: managedLabelValue}, opts.Labels)
	resp, err := e.ImageBuild(ctx, buildContext, opts)
	if err != nil {
		return types.ImageBuildResponse{}, errImageBuildFailed(err)
	}
	return resp, nil
}

// removeImage tolerates an already-removed image: a not-found on teardown
// is success, not an error worth aggregating into Cleanup's multierror.
func (e *engine) removeImage(ctx context.Context, imageRef string, force bool) error {
	_, err := e.ImageRemove(ctx, imageRef, image.RemoveOptions{Force: force})
	if cerrdefs.IsNotFound(err) {
		return nil
	}
	return err
}
