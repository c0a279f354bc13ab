package dockerhost

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaultsToUnixSocket(t *testing.T) {
	os.Unsetenv("DOCKER_HOST")
	os.Unsetenv("DOCKER_CERT_PATH")

	h, err := FromEnv("default")
	require.NoError(t, err)
	assert.Equal(t, "unix:///var/run/docker.sock", h.URL)
	assert.False(t, h.IsDockerForMac() && h.URL == "")
}

func TestFromEnvRejectsUnknownScheme(t *testing.T) {
	os.Setenv("DOCKER_HOST", "ssh://example.com")
	defer os.Unsetenv("DOCKER_HOST")

	_, err := FromEnv("default")
	require.Error(t, err)
}

func TestFromEnvDerivesTLSPathsFromCertPath(t *testing.T) {
	os.Setenv("DOCKER_HOST", "tcp://10.0.0.5:2376")
	os.Setenv("DOCKER_CERT_PATH", "/certs")
	defer os.Unsetenv("DOCKER_HOST")
	defer os.Unsetenv("DOCKER_CERT_PATH")

	h, err := FromEnv("remote")
	require.NoError(t, err)
	assert.Equal(t, "/certs/ca.pem", h.TLSCA)
	assert.Equal(t, "/certs/cert.pem", h.TLSCert)
	assert.Equal(t, "/certs/key.pem", h.TLSKey)
}

func TestPubliclyVisibleExcludesPrivateRanges(t *testing.T) {
	os.Setenv("DOCKER_HOST", "tcp://192.168.1.5:2376")
	defer os.Unsetenv("DOCKER_HOST")
	h, err := FromEnv("default")
	require.NoError(t, err)
	assert.False(t, h.PubliclyVisible())
}

func TestPubliclyVisibleForRoutableAddress(t *testing.T) {
	os.Setenv("DOCKER_HOST", "tcp://8.8.8.8:2376")
	defer os.Unsetenv("DOCKER_HOST")
	h, err := FromEnv("default")
	require.NoError(t, err)
	assert.True(t, h.PubliclyVisible())
}

func TestExternalHostAddressForUnixSocket(t *testing.T) {
	h := &Host{URL: "unix:///var/run/docker.sock"}
	require.NoError(t, h.parseURL())
	assert.Equal(t, "127.0.0.1", h.ExternalHostAddress())
}

func TestHostManagerRejectsDuplicateAlias(t *testing.T) {
	h1 := &Host{Alias: "default", URL: "unix:///var/run/docker.sock"}
	h2 := &Host{Alias: "default", URL: "unix:///var/run/docker.sock"}

	_, err := NewHostManager(h1, h2)
	require.Error(t, err)
}

func TestHostManagerGetAndAll(t *testing.T) {
	h1 := &Host{Alias: "default", URL: "unix:///var/run/docker.sock"}
	h2 := &Host{Alias: "remote", URL: "tcp://10.0.0.1:2376"}

	hm, err := NewHostManager(h1, h2)
	require.NoError(t, err)

	got, ok := hm.Get("remote")
	require.True(t, ok)
	assert.Same(t, h2, got)
	assert.Len(t, hm.All(), 2)
}
