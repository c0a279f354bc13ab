package dockerhost

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	dockerclient "github.com/docker/docker/client"

	"github.com/getbay/bay/pkg/bayerr"
)

// defaultClientTimeout matches the original host.py's 10-second request
// timeout for calls to the docker daemon (spec §5: "Image pulls inherit
// the runtime client's request timeout (default 10s per call, not per
// stream)").
const defaultClientTimeout = 10 * time.Second

// Host is a Docker-running host, grounded on bay/docker/hosts.py's Host.
type Host struct {
	Alias   string
	URL     string
	TLSCA   string
	TLSCert string
	TLSKey  string

	scheme   string
	location string

	clientOnce sync.Once
	client     RuntimeClient
	clientErr  error

	images *ImageRepository
}

// FromEnv builds a Host from the standard Docker environment variables
// (DOCKER_HOST, DOCKER_CERT_PATH), matching Host.from_env.
func FromEnv(alias string) (*Host, error) {
	if alias == "" {
		alias = "default"
	}
	h := &Host{
		Alias: alias,
		URL:   os.Getenv("DOCKER_HOST"),
	}
	if h.URL == "" {
		h.URL = "unix:///var/run/docker.sock"
	}
	if certPath := os.Getenv("DOCKER_CERT_PATH"); certPath != "" {
		h.TLSCA = filepath.Join(certPath, "ca.pem")
		h.TLSCert = filepath.Join(certPath, "cert.pem")
		h.TLSKey = filepath.Join(certPath, "key.pem")
	}
	if err := h.parseURL(); err != nil {
		return nil, err
	}
	return h, nil
}

// NewHost builds a Host from explicit connection settings (as loaded from
// a profile's "hosts" list), parsing and validating the URL up front the
// same way FromEnv does.
func NewHost(alias, url, tlsCA, tlsCert, tlsKey string) (*Host, error) {
	h := &Host{Alias: alias, URL: url, TLSCA: tlsCA, TLSCert: tlsCert, TLSKey: tlsKey}
	if err := h.parseURL(); err != nil {
		return nil, err
	}
	return h, nil
}

// NewHostWithClient builds a Host wrapping an already-constructed
// RuntimeClient, bypassing FromEnv/Client's daemon dial. Used by tests and
// by callers binding a non-default transport.
func NewHostWithClient(alias string, client RuntimeClient) *Host {
	h := &Host{Alias: alias}
	h.clientOnce.Do(func() {
		h.client = client
	})
	return h
}

func (h *Host) parseURL() error {
	u, err := url.Parse(h.URL)
	if err != nil {
		return bayerr.NewBadConfig("invalid docker host url %s: %v", h.URL, err)
	}
	h.scheme = u.Scheme
	h.location = u.Host
	if h.scheme != "unix" && h.scheme != "tcp" {
		return bayerr.NewBadConfig("unknown scheme in docker url %s", h.URL)
	}
	return nil
}

// PubliclyVisible says if the server can be seen by other servers.
func (h *Host) PubliclyVisible() bool {
	if h.scheme != "tcp" {
		return false
	}
	first := strings.SplitN(h.location, ".", 2)[0]
	switch first {
	case "10", "192", "127":
		return false
	}
	return true
}

// ExternalHostAddress returns the address of the host as seen from outside
// (e.g. where exposed ports would appear), matching external_host_address.
func (h *Host) ExternalHostAddress() string {
	switch h.scheme {
	case "unix":
		return "127.0.0.1"
	case "tcp":
		return strings.SplitN(h.location, ":", 2)[0]
	}
	return ""
}

// AllowSSHAgent says if the host is safe to run a shared ssh-agent on.
func (h *Host) AllowSSHAgent() bool {
	return !h.PubliclyVisible()
}

// IsDockerForMac mirrors is_docker_for_mac: only true for a local unix
// socket on darwin.
func (h *Host) IsDockerForMac() bool {
	return runtime.GOOS == "darwin" && h.scheme == "unix"
}

// SupportsCachedVolumes mirrors supports_cached_volumes, used by the
// reconciler to append a ":cached" bind mode on Docker Desktop for Mac
// (SPEC_FULL.md "Supplemented features").
func (h *Host) SupportsCachedVolumes() bool {
	return h.IsDockerForMac()
}

// Client lazily constructs (and memoizes) the RuntimeClient for this host.
func (h *Host) Client() (RuntimeClient, error) {
	h.clientOnce.Do(func() {
		opts := []dockerclient.Opt{
			dockerclient.WithHost(h.URL),
			dockerclient.WithVersion("1.41"),
			dockerclient.WithTimeout(defaultClientTimeout),
		}
		if h.TLSCert != "" && h.TLSKey != "" {
			opts = append(opts, dockerclient.WithTLSClientConfigFromEnv())
		}
		cli, err := dockerclient.NewClientWithOpts(opts...)
		if err != nil {
			h.clientErr = bayerr.NewDockerNotAvailable("the docker host at %s is not available: %v", h.URL, err)
			return
		}
		h.client = &dockerClient{cli: cli}
	})
	return h.client, h.clientErr
}

// Images returns the per-host ImageRepository, constructing it on first use.
func (h *Host) Images() (*ImageRepository, error) {
	if h.images == nil {
		cli, err := h.Client()
		if err != nil {
			return nil, err
		}
		h.images = NewImageRepository(h.Alias, cli)
	}
	return h.images, nil
}

// ContainerExists reports whether a container with the given runtime name
// exists on the host.
func (h *Host) ContainerExists(ctx context.Context, name string) bool {
	cli, err := h.Client()
	if err != nil {
		return false
	}
	_, err = cli.InspectContainer(ctx, name)
	return err == nil
}

// ContainerRunning reports whether the named container is running. The
// caller must ensure the container exists.
func (h *Host) ContainerRunning(ctx context.Context, name string) (bool, error) {
	cli, err := h.Client()
	if err != nil {
		return false, err
	}
	details, err := cli.InspectContainer(ctx, name)
	if err != nil {
		return false, err
	}
	if details.State == nil {
		return false, nil
	}
	return details.State.Running, nil
}

// HostManager contains all known hosts (spec §4.4/§6's "host" concept
// generalized to the original's multi-host HostManager).
type HostManager struct {
	mu    sync.RWMutex
	hosts map[string]*Host
}

// NewHostManager builds a HostManager from a list of hosts.
func NewHostManager(hosts ...*Host) (*HostManager, error) {
	hm := &HostManager{hosts: map[string]*Host{}}
	for _, h := range hosts {
		if err := hm.Add(h); err != nil {
			return nil, err
		}
	}
	return hm, nil
}

// Add registers a host under its alias.
func (hm *HostManager) Add(h *Host) error {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	if _, exists := hm.hosts[h.Alias]; exists {
		return fmt.Errorf("host alias %s is already assigned", h.Alias)
	}
	hm.hosts[h.Alias] = h
	return nil
}

// Get looks a host up by alias.
func (hm *HostManager) Get(alias string) (*Host, bool) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	h, ok := hm.hosts[alias]
	return h, ok
}

// All returns every registered host.
func (hm *HostManager) All() []*Host {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	out := make([]*Host, 0, len(hm.hosts))
	for _, h := range hm.hosts {
		out = append(out, h)
	}
	return out
}
