package dockerhost

import (
	"context"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"

	"github.com/getbay/bay/pkg/bayerr"
	"github.com/getbay/bay/pkg/catalog"
	"github.com/getbay/bay/pkg/formation"
)

// containerLabel is the sole identity mapping from a live container to its
// catalog entry (spec §6).
const containerLabel = "com.eventbrite.bay.container"

// Introspector materializes a Formation from a host's live containers on a
// given network (spec §4.4), grounded on bay/docker/introspect.py.
type Introspector struct {
	host    *Host
	graph   catalog.Graph
	network string
}

// NewIntrospector builds an Introspector for host/graph/network. If
// network is "", it defaults to graph.Prefix().
func NewIntrospector(host *Host, graph catalog.Graph, network string) *Introspector {
	if network == "" {
		network = graph.Prefix()
	}
	return &Introspector{host: host, graph: graph, network: network}
}

// Introspect lists all running containers on the host and returns a
// Formation containing those on the configured network.
func (in *Introspector) Introspect(ctx context.Context) (*formation.Formation, error) {
	cli, err := in.host.Client()
	if err != nil {
		return nil, err
	}
	f := formation.New(in.graph, in.network)

	containers, err := cli.Containers(ctx, false, filters.NewArgs())
	if err != nil {
		return nil, err
	}
	for _, c := range containers {
		if _, onNetwork := c.NetworkSettings.Networks[in.network]; !onNetwork {
			continue
		}
		inst, err := in.instanceFrom(ctx, c)
		if err != nil {
			return nil, err
		}
		if err := f.AddInstance(inst); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// IntrospectSingleContainer returns a single container introspected
// directly by name.
func (in *Introspector) IntrospectSingleContainer(ctx context.Context, name string) (*formation.Instance, error) {
	cli, err := in.host.Client()
	if err != nil {
		return nil, err
	}
	containers, err := cli.Containers(ctx, true, filters.NewArgs(filters.Arg("name", name)))
	if err != nil {
		return nil, err
	}
	if len(containers) == 0 {
		return nil, bayerr.NewDockerRuntime("cannot introspect single container %s", name)
	}
	return in.instanceFrom(ctx, containers[0])
}

func (in *Introspector) instanceFrom(ctx context.Context, c types.Container) (*formation.Instance, error) {
	name := strings.TrimPrefix(firstName(c.Names), "/")

	containerName, ok := c.Labels[containerLabel]
	if !ok {
		return nil, bayerr.NewDockerRuntime("cannot find local container for running container %s", name)
	}
	def, ok := in.graph.Get(containerName)
	if !ok {
		return nil, bayerr.NewDockerRuntime("cannot find local container for running container %s", name)
	}

	imageID, err := in.resolveImageID(ctx, c.Image)
	if err != nil {
		return nil, err
	}

	inst := formation.NewInstance(name, def)
	inst.ImageID = imageID

	if net, ok := c.NetworkSettings.Networks[in.network]; ok {
		inst.IPAddress = net.IPAddress
	}
	inst.PortMapping = map[int]int{}
	for _, p := range c.Ports {
		inst.PortMapping[int(p.PrivatePort)] = int(p.PublicPort)
	}
	return inst, nil
}

// resolveImageID returns image as-is if it's already a sha256 digest,
// otherwise resolves the name:tag through the host's ImageRepository
// (spec §4.4).
func (in *Introspector) resolveImageID(ctx context.Context, image string) (string, error) {
	if strings.HasPrefix(image, "sha256:") {
		return image, nil
	}
	name, tag, ok := splitImageTag(image)
	if !ok {
		tag = "latest"
	}
	images, err := in.host.Images()
	if err != nil {
		return "", err
	}
	return images.ImageVersion(ctx, name, tag)
}

func splitImageTag(image string) (name, tag string, ok bool) {
	idx := strings.LastIndex(image, ":")
	if idx < 0 {
		return image, "latest", false
	}
	return image[:idx], image[idx+1:], true
}

func firstName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return names[0]
}
