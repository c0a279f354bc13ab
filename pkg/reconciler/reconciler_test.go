package reconciler

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getbay/bay/pkg/catalog"
	"github.com/getbay/bay/pkg/dockerhost"
	"github.com/getbay/bay/pkg/formation"
	"github.com/getbay/bay/pkg/plugin"
	"github.com/getbay/bay/pkg/tasktree"
)

// fakeClient is a minimal in-memory dockerhost.RuntimeClient good enough to
// drive a full reconciliation pass without a live daemon: started
// containers are tracked as running immediately, and Logs always reports a
// "TOWLINE OK" line so the Towline poll completes on its first tick,
// matching instances with no waits declared.
type fakeClient struct {
	mu         sync.Mutex
	images     map[string]types.ImageInspect
	running    map[string]bool
	created    []string
	started    []string
	stopped    []string
	networks   map[string]bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		images:   map[string]types.ImageInspect{},
		running:  map[string]bool{},
		networks: map[string]bool{},
	}
}

func (f *fakeClient) Containers(ctx context.Context, all bool, filterArgs filters.Args) ([]types.Container, error) {
	return nil, nil
}

func (f *fakeClient) InspectContainer(ctx context.Context, name string) (types.ContainerJSON, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	running := f.running[name]
	return types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{
			State: &types.ContainerState{Running: running},
		},
		NetworkSettings: &types.NetworkSettings{
			Networks: map[string]*network.EndpointSettings{
				"proj": {IPAddress: "10.0.0.5"},
			},
		},
	}, nil
}

func (f *fakeClient) CreateContainer(ctx context.Context, cfg *container.Config, host *container.HostConfig, netCfg *network.NetworkingConfig, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, name)
	return "id-" + name, nil
}

func (f *fakeClient) Start(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, id)
	name := strings.TrimPrefix(id, "id-")
	f.running[name] = true
	return nil
}

func (f *fakeClient) Stop(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, name)
	f.running[name] = false
	return nil
}

func (f *fakeClient) RemoveContainer(ctx context.Context, name string) error { return nil }

func (f *fakeClient) InspectImage(ctx context.Context, ref string) (types.ImageInspect, error) {
	info, ok := f.images[ref]
	if !ok {
		return types.ImageInspect{}, io.EOF
	}
	return info, nil
}

func (f *fakeClient) Pull(ctx context.Context, ref string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (f *fakeClient) Tag(ctx context.Context, src, target string) error { return nil }

func (f *fakeClient) InspectNetwork(ctx context.Context, name string) (types.NetworkResource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.networks[name] {
		return types.NetworkResource{}, io.EOF
	}
	return types.NetworkResource{Name: name}, nil
}

func (f *fakeClient) CreateNetwork(ctx context.Context, name, driver string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.networks[name] = true
	return nil
}

func (f *fakeClient) PutArchive(ctx context.Context, containerID, path string, content io.Reader) error {
	return nil
}

func (f *fakeClient) Logs(ctx context.Context, name string, opts types.ContainerLogsOptions) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(stdoutFrame("TOWLINE OK ready\n"))), nil
}

// stdoutFrame wraps payload in a single docker log multiplexing frame
// (stream type 1 = stdout) so stdcopy.StdCopy demuxes it correctly.
func stdoutFrame(payload string) []byte {
	header := make([]byte, 8)
	header[0] = 1
	binary.BigEndian.PutUint32(header[4:], uint32(len(payload)))
	return append(header, []byte(payload)...)
}

func testRoot() *tasktree.Root {
	return tasktree.NewRoot(func(string) {})
}

// TestRunStartsTrivialContainer mirrors scenario S1: a single dependency-free
// container, empty current formation, image already present.
func TestRunStartsTrivialContainer(t *testing.T) {
	fc := newFakeClient()
	fc.images["app/a:latest"] = types.ImageInspect{ID: "sha256:aaa"}

	graph := catalog.NewMapGraph("p", []*catalog.Container{
		{Name: "a", ImageName: "app/a"},
	})
	desired := formation.New(graph, "p")
	_, err := desired.AddContainer(graph.All()[0])
	require.NoError(t, err)

	host := dockerhost.NewHostWithClient("default", fc)
	in := dockerhost.NewIntrospector(host, graph, "p")
	pluginHost := plugin.NewHost()
	root := testRoot()

	runner := NewRunner(host, pluginHost, root)
	rootTask := root.NewTask("reconcile", nil)

	err = runner.Run(context.Background(), in, desired, rootTask)
	require.NoError(t, err)

	assert.Equal(t, []string{"p.a.1"}, fc.created)
	assert.Equal(t, []string{"id-p.a.1"}, fc.started)
}

// TestRunFailsOnMissingImage is a reduced form of scenario S4: the single
// container's image is missing from the host, so Run fails.
func TestRunFailsOnMissingImage(t *testing.T) {
	fc := newFakeClient()
	// no images registered

	graph := catalog.NewMapGraph("p", []*catalog.Container{
		{Name: "a", ImageName: "app/a"},
	})
	desired := formation.New(graph, "p")
	_, err := desired.AddContainer(graph.All()[0])
	require.NoError(t, err)

	host := dockerhost.NewHostWithClient("default", fc)
	in := dockerhost.NewIntrospector(host, graph, "p")
	pluginHost := plugin.NewHost()
	root := testRoot()

	runner := NewRunner(host, pluginHost, root)
	rootTask := root.NewTask("reconcile", nil)

	err = runner.Run(context.Background(), in, desired, rootTask)
	require.Error(t, err)
}

// TestRunFiresPreAndPostStartHooksInOrder checks the hook sequencing
// invariant from spec §5: pre-start before create/start, post-start after.
func TestRunFiresPreAndPostStartHooksInOrder(t *testing.T) {
	fc := newFakeClient()
	fc.images["app/a:latest"] = types.ImageInspect{ID: "sha256:aaa"}

	graph := catalog.NewMapGraph("p", []*catalog.Container{
		{Name: "a", ImageName: "app/a"},
	})
	desired := formation.New(graph, "p")
	_, err := desired.AddContainer(graph.All()[0])
	require.NoError(t, err)

	host := dockerhost.NewHostWithClient("default", fc)
	in := dockerhost.NewIntrospector(host, graph, "p")
	pluginHost := plugin.NewHost()

	var events []string
	var mu sync.Mutex
	require.NoError(t, pluginHost.On(plugin.HookPreStart, func(ctx context.Context, args interface{}) error {
		mu.Lock()
		events = append(events, "pre-start")
		mu.Unlock()
		return nil
	}))
	require.NoError(t, pluginHost.On(plugin.HookPostStart, func(ctx context.Context, args interface{}) error {
		mu.Lock()
		events = append(events, "post-start")
		mu.Unlock()
		return nil
	}))

	root := testRoot()
	runner := NewRunner(host, pluginHost, root)
	rootTask := root.NewTask("reconcile", nil)

	require.NoError(t, runner.Run(context.Background(), in, desired, rootTask))
	assert.Equal(t, []string{"pre-start", "post-start"}, events)
}
