// Package dockerhost binds bay's reconciliation core to a Docker-compatible
// host: a thin RuntimeClient interface (spec §6) backed by
// github.com/docker/docker/client, plus the per-host ImageRepository and
// FormationIntrospector built on top of it. Grounded on
// bay/docker/hosts.py, bay/docker/images.py, bay/docker/introspect.py, and
// the teacher's direct use of the same docker client library in
// pkg/build/docker.go and pkg/runner/local_docker.go.
package dockerhost

import (
	"context"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	specs "github.com/opencontainers/image-spec/specs-go/v1"
)

// RuntimeClient is the subset of the Docker-compatible HTTP API the
// reconciliation core depends on (spec §6). The out-of-core CLI surfaces
// (put_archive, logs) are retained on the interface as well; Logs is used by
// the interactive-attach path and by the reconciler's Towline poller.
type RuntimeClient interface {
	Containers(ctx context.Context, all bool, filterArgs filters.Args) ([]types.Container, error)
	InspectContainer(ctx context.Context, name string) (types.ContainerJSON, error)
	CreateContainer(ctx context.Context, cfg *container.Config, host *container.HostConfig, netCfg *network.NetworkingConfig, name string) (string, error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, name string) error
	RemoveContainer(ctx context.Context, name string) error
	InspectImage(ctx context.Context, ref string) (types.ImageInspect, error)
	Pull(ctx context.Context, ref string) (io.ReadCloser, error)
	Tag(ctx context.Context, src, target string) error
	InspectNetwork(ctx context.Context, name string) (types.NetworkResource, error)
	CreateNetwork(ctx context.Context, name, driver string) error
	PutArchive(ctx context.Context, containerID, path string, content io.Reader) error
	Logs(ctx context.Context, name string, opts types.ContainerLogsOptions) (io.ReadCloser, error)
}

// dockerClient is the RuntimeClient implementation backed by the real
// Docker Engine API client.
type dockerClient struct {
	cli dockerAPI
}

// dockerAPI is the narrow slice of *client.Client's method set we call,
// declared as an interface so tests can substitute a fake without
// depending on a running daemon.
type dockerAPI interface {
	ContainerList(ctx context.Context, options types.ContainerListOptions) ([]types.Container, error)
	ContainerInspect(ctx context.Context, id string) (types.ContainerJSON, error)
	ContainerCreate(ctx context.Context, cfg *container.Config, host *container.HostConfig, netCfg *network.NetworkingConfig, platform *specs.Platform, name string) (container.ContainerCreateCreatedBody, error)
	ContainerStart(ctx context.Context, id string, options types.ContainerStartOptions) error
	ContainerStop(ctx context.Context, id string, timeout *time.Duration) error
	ContainerRemove(ctx context.Context, id string, options types.ContainerRemoveOptions) error
	ImageInspectWithRaw(ctx context.Context, ref string) (types.ImageInspect, []byte, error)
	ImagePull(ctx context.Context, ref string, options types.ImagePullOptions) (io.ReadCloser, error)
	ImageTag(ctx context.Context, src, target string) error
	NetworkInspect(ctx context.Context, name string, options types.NetworkInspectOptions) (types.NetworkResource, error)
	NetworkCreate(ctx context.Context, name string, options types.NetworkCreate) (types.NetworkCreateResponse, error)
	CopyToContainer(ctx context.Context, id, path string, content io.Reader, options types.CopyToContainerOptions) error
	ContainerLogs(ctx context.Context, id string, options types.ContainerLogsOptions) (io.ReadCloser, error)
}

func (d *dockerClient) Containers(ctx context.Context, all bool, filterArgs filters.Args) ([]types.Container, error) {
	return d.cli.ContainerList(ctx, types.ContainerListOptions{All: all, Filters: filterArgs})
}

func (d *dockerClient) InspectContainer(ctx context.Context, name string) (types.ContainerJSON, error) {
	return d.cli.ContainerInspect(ctx, name)
}

func (d *dockerClient) CreateContainer(ctx context.Context, cfg *container.Config, host *container.HostConfig, netCfg *network.NetworkingConfig, name string) (string, error) {
	resp, err := d.cli.ContainerCreate(ctx, cfg, host, netCfg, nil, name)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (d *dockerClient) Start(ctx context.Context, id string) error {
	return d.cli.ContainerStart(ctx, id, types.ContainerStartOptions{})
}

func (d *dockerClient) Stop(ctx context.Context, name string) error {
	return d.cli.ContainerStop(ctx, name, nil)
}

func (d *dockerClient) RemoveContainer(ctx context.Context, name string) error {
	return d.cli.ContainerRemove(ctx, name, types.ContainerRemoveOptions{})
}

func (d *dockerClient) InspectImage(ctx context.Context, ref string) (types.ImageInspect, error) {
	info, _, err := d.cli.ImageInspectWithRaw(ctx, ref)
	return info, err
}

func (d *dockerClient) Pull(ctx context.Context, ref string) (io.ReadCloser, error) {
	return d.cli.ImagePull(ctx, ref, types.ImagePullOptions{})
}

func (d *dockerClient) Tag(ctx context.Context, src, target string) error {
	return d.cli.ImageTag(ctx, src, target)
}

func (d *dockerClient) InspectNetwork(ctx context.Context, name string) (types.NetworkResource, error) {
	return d.cli.NetworkInspect(ctx, name, types.NetworkInspectOptions{})
}

func (d *dockerClient) CreateNetwork(ctx context.Context, name, driver string) error {
	_, err := d.cli.NetworkCreate(ctx, name, types.NetworkCreate{Driver: driver})
	return err
}

func (d *dockerClient) PutArchive(ctx context.Context, containerID, path string, content io.Reader) error {
	return d.cli.CopyToContainer(ctx, containerID, path, content, types.CopyToContainerOptions{})
}

func (d *dockerClient) Logs(ctx context.Context, name string, opts types.ContainerLogsOptions) (io.ReadCloser, error) {
	return d.cli.ContainerLogs(ctx, name, opts)
}
