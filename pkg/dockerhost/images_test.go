package dockerhost

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getbay/bay/pkg/bayerr"
)

// fakeRuntimeClient is an in-memory RuntimeClient good enough to drive
// ImageRepository and Introspector without a live daemon.
type fakeRuntimeClient struct {
	images      map[string]types.ImageInspect
	tagged      map[string]string
	pullStream  string
	pullErr     error
	containers  []types.Container
	networks    map[string]types.NetworkResource
	createdNets []string
}

func newFakeRuntimeClient() *fakeRuntimeClient {
	return &fakeRuntimeClient{
		images:   map[string]types.ImageInspect{},
		tagged:   map[string]string{},
		networks: map[string]types.NetworkResource{},
	}
}

func (f *fakeRuntimeClient) Containers(ctx context.Context, all bool, filterArgs filters.Args) ([]types.Container, error) {
	return f.containers, nil
}
func (f *fakeRuntimeClient) InspectContainer(ctx context.Context, name string) (types.ContainerJSON, error) {
	return types.ContainerJSON{}, nil
}
func (f *fakeRuntimeClient) CreateContainer(ctx context.Context, cfg *container.Config, host *container.HostConfig, netCfg *network.NetworkingConfig, name string) (string, error) {
	return "created-id", nil
}
func (f *fakeRuntimeClient) Start(ctx context.Context, id string) error { return nil }
func (f *fakeRuntimeClient) Stop(ctx context.Context, name string) error { return nil }
func (f *fakeRuntimeClient) RemoveContainer(ctx context.Context, name string) error { return nil }
func (f *fakeRuntimeClient) InspectImage(ctx context.Context, ref string) (types.ImageInspect, error) {
	info, ok := f.images[ref]
	if !ok {
		return types.ImageInspect{}, bayerr.NewNotFound("no such image %s", ref)
	}
	return info, nil
}
func (f *fakeRuntimeClient) Pull(ctx context.Context, ref string) (io.ReadCloser, error) {
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	return io.NopCloser(strings.NewReader(f.pullStream)), nil
}
func (f *fakeRuntimeClient) Tag(ctx context.Context, src, target string) error {
	f.tagged[src] = target
	return nil
}
func (f *fakeRuntimeClient) InspectNetwork(ctx context.Context, name string) (types.NetworkResource, error) {
	n, ok := f.networks[name]
	if !ok {
		return types.NetworkResource{}, bayerr.NewNotFound("no such network %s", name)
	}
	return n, nil
}
func (f *fakeRuntimeClient) CreateNetwork(ctx context.Context, name, driver string) error {
	f.createdNets = append(f.createdNets, name)
	f.networks[name] = types.NetworkResource{Name: name, Driver: driver}
	return nil
}
func (f *fakeRuntimeClient) PutArchive(ctx context.Context, containerID, path string, content io.Reader) error {
	return nil
}
func (f *fakeRuntimeClient) Logs(ctx context.Context, name string, opts types.ContainerLogsOptions) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func TestImageVersionNotFoundWrapsError(t *testing.T) {
	fc := newFakeRuntimeClient()
	repo := NewImageRepository("default", fc)

	_, err := repo.ImageVersion(context.Background(), "myapp", "latest")
	require.Error(t, err)
	var notFound *bayerr.ImageNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestImageVersionReturnsID(t *testing.T) {
	fc := newFakeRuntimeClient()
	fc.images["myapp:latest"] = types.ImageInspect{ID: "sha256:deadbeef"}
	repo := NewImageRepository("default", fc)

	id, err := repo.ImageVersion(context.Background(), "myapp", "latest")
	require.NoError(t, err)
	assert.Equal(t, "sha256:deadbeef", id)
}

func TestPullImageVersionSkipsLocalTag(t *testing.T) {
	fc := newFakeRuntimeClient()
	repo := NewImageRepository("default", fc)

	err := repo.PullImageVersion(context.Background(), nil, nil, "myapp", "local", false)
	require.NoError(t, err)
	assert.Empty(t, fc.tagged)
}

func TestPullImageVersionTagsOnSuccess(t *testing.T) {
	fc := newFakeRuntimeClient()
	fc.pullStream = `{"status":"Downloading","id":"layer1","progressDetail":{"current":50,"total":100}}
{"status":"Download complete","id":"layer1"}
`
	repo := NewImageRepository("default", fc)

	root := newTestRoot()
	err := repo.PullImageVersion(context.Background(), root, nil, "myapp", "v1", false)
	require.NoError(t, err)
	assert.Equal(t, "myapp:v1", fc.tagged["localhost:5000/myapp:v1"])
}

func TestPullImageVersionReportsRemoteError(t *testing.T) {
	fc := newFakeRuntimeClient()
	fc.pullStream = `{"error":"manifest unknown"}` + "\n"
	repo := NewImageRepository("default", fc)

	err := repo.PullImageVersion(context.Background(), nil, nil, "myapp", "v1", false)
	require.Error(t, err)
	var pullFail *bayerr.ImagePullFailure
	assert.ErrorAs(t, err, &pullFail)
}

func TestPullImageVersionFailSilentlySwallowsError(t *testing.T) {
	fc := newFakeRuntimeClient()
	fc.pullErr = assertError{"no route to registry"}
	repo := NewImageRepository("default", fc)

	err := repo.PullImageVersion(context.Background(), nil, nil, "myapp", "v1", true)
	assert.NoError(t, err)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
