package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProfile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "bay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaultsWhenUnset(t *testing.T) {
	path := writeProfile(t, `
hosts:
  - alias: default
    url: unix:///var/run/docker.sock
`)
	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, p.Defaults.StartWorkers)
	assert.Equal(t, 4, p.Defaults.StopWorkers)
	assert.Equal(t, "default", p.Defaults.DefaultHost)
}

func TestLoadOverridesDefaultsWhenSet(t *testing.T) {
	path := writeProfile(t, `
hosts:
  - alias: default
    url: unix:///var/run/docker.sock
bay:
  start_workers: 8
  network: myproj
`)
	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, p.Defaults.StartWorkers)
	assert.Equal(t, 4, p.Defaults.StopWorkers)
	assert.Equal(t, "myproj", p.Defaults.Network)
}

func TestLoadDefaultsHostsWhenMissing(t *testing.T) {
	path := writeProfile(t, `bay:
  start_workers: 2
`)
	p, err := Load(path)
	require.NoError(t, err)
	require.Len(t, p.Hosts, 1)
	assert.Equal(t, "default", p.Hosts[0].Alias)
}

func TestLoadRejectsHostWithoutAlias(t *testing.T) {
	path := writeProfile(t, `
hosts:
  - url: unix:///var/run/docker.sock
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load("/no/such/bay.yaml")
	require.Error(t, err)
}
