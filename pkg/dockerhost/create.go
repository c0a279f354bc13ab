package dockerhost

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/go-connections/nat"

	"github.com/getbay/bay/pkg/bayerr"
	"github.com/getbay/bay/pkg/formation"
)

// networkLock is a single process-wide lock around check-then-create for
// networks, preventing duplicate-create races between parallel starts
// (spec §4.6 step 3, §5 "Shared-resource policy").
var networkLock sync.Mutex

// EnsureNetwork makes sure a bridge network named network exists on the
// host, creating it if necessary, under the process-wide network lock.
func EnsureNetwork(ctx context.Context, client RuntimeClient, name string) error {
	networkLock.Lock()
	defer networkLock.Unlock()

	if _, err := client.InspectNetwork(ctx, name); err == nil {
		return nil
	}
	return client.CreateNetwork(ctx, name, "bridge")
}

// BuildNetworkingConfig builds the networking config joining inst's
// formation network, aliased by the network name, with link aliases drawn
// from inst.Links (spec §4.6 step 4).
func BuildNetworkingConfig(inst *formation.Instance) *network.NetworkingConfig {
	var links []string
	for alias, target := range inst.Links {
		links = append(links, fmt.Sprintf("%s:%s", target.Name, alias))
	}
	return &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			inst.Formation().Network: {
				Aliases: []string{inst.Formation().Network},
				Links:   links,
			},
		},
	}
}

// VolumeSpec is a resolved bind mount ready to be fed into a HostConfig.
type VolumeSpec struct {
	ContainerPath string
	HostSource    string
	Mode          string
}

// BuildVolumes resolves bound_volumes, named_volumes, and enabled devmodes
// into concrete bind mounts (spec §4.6 step 5). A devmode source matching
// the container's git_volume_pattern is rewritten to "../<match>/" (a
// sibling checkout), matching the original's git-aware devmode mounts.
func BuildVolumes(host *Host, inst *formation.Instance) ([]VolumeSpec, error) {
	var specs []VolumeSpec
	mode := "rw"
	if host.SupportsCachedVolumes() {
		mode = "rw,cached"
	}

	for source, containerPath := range inst.Container.BoundVolumes {
		if !isDir(source) {
			return nil, bayerr.NewDockerRuntime("volume mount source directory %s does not exist", source)
		}
		specs = append(specs, VolumeSpec{ContainerPath: containerPath, HostSource: source, Mode: mode})
	}
	for source, containerPath := range inst.Container.NamedVolumes {
		specs = append(specs, VolumeSpec{ContainerPath: containerPath, HostSource: source, Mode: mode})
	}

	for devmode := range inst.Devmodes {
		mounts, ok := inst.Container.Devmodes[devmode]
		if !ok {
			continue
		}
		for containerPath, source := range mounts {
			resolved := source
			if inst.Container.GitVolumePattern != nil {
				if m := inst.Container.GitVolumePattern.FindStringSubmatch(source); len(m) > 1 {
					abs, err := filepath.Abs(filepath.Join("..", m[1]))
					if err != nil {
						return nil, err
					}
					resolved = abs
				}
			}
			if _, err := os.Stat(resolved); err != nil {
				return nil, bayerr.NewNotFound("the source path does not exist: %s", resolved)
			}
			specs = append(specs, VolumeSpec{ContainerPath: containerPath, HostSource: resolved, Mode: mode})
		}
	}
	return specs, nil
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// BuildHostConfig assembles the HostConfig for a container create (spec
// §4.6 step 7): binds, port bindings, publish_all_ports, and the fixed
// seccomp:unconfined security option the original always applied.
func BuildHostConfig(volumes []VolumeSpec, ports map[int]int) *container.HostConfig {
	binds := make([]string, 0, len(volumes))
	for _, v := range volumes {
		binds = append(binds, fmt.Sprintf("%s:%s:%s", v.HostSource, v.ContainerPath, v.Mode))
	}

	portBindings := nat.PortMap{}
	for containerPort, hostPort := range ports {
		key := nat.Port(fmt.Sprintf("%d/tcp", containerPort))
		binding := nat.PortBinding{}
		if hostPort > 0 {
			binding.HostPort = fmt.Sprintf("%d", hostPort)
		}
		portBindings[key] = append(portBindings[key], binding)
	}

	return &container.HostConfig{
		Binds:           binds,
		PortBindings:    portBindings,
		PublishAllPorts: true,
		SecurityOpt:     []string{"seccomp:unconfined"},
	}
}

// ContainerVolumeMountpoints returns just the container-side paths from
// volumes, the "volumes" field in the original's create_container call.
func ContainerVolumeMountpoints(volumes []VolumeSpec) []string {
	out := make([]string, 0, len(volumes))
	for _, v := range volumes {
		out = append(out, v.ContainerPath)
	}
	return out
}

// BuildContainerConfig assembles the container.Config for a container
// create (spec §4.6 step 7).
func BuildContainerConfig(inst *formation.Instance, imageID string) *container.Config {
	exposedPorts := nat.PortSet{}
	for containerPort := range inst.Ports {
		exposedPorts[nat.Port(fmt.Sprintf("%d/tcp", containerPort))] = struct{}{}
	}

	env := make([]string, 0, len(inst.Environment))
	for k, v := range inst.Environment {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	return &container.Config{
		Image:        imageID,
		Cmd:          inst.Command,
		ExposedPorts: exposedPorts,
		Env:          env,
		AttachStdin:  inst.Foreground,
		OpenStdin:    inst.Foreground,
		Tty:          inst.Foreground,
		Labels: map[string]string{
			containerLabel: inst.Container.Name,
		},
	}
}
