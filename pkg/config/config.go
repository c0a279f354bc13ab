// Package config loads bay's on-disk profile: the set of Docker hosts it
// can talk to and the reconciler-wide defaults applied to every run,
// grounded on bay/config.py and on the teacher's
// LocalDockerRunnerConfig/mergo merge pattern in pkg/runner/local_docker.go
// (adapted from toml tags to yaml, per SPEC_FULL.md's format-fidelity
// decision to match the original bay.yaml).
package config

import (
	"fmt"
	"os"

	"github.com/imdario/mergo"
	"gopkg.in/yaml.v3"

	"github.com/getbay/bay/pkg/bayerr"
)

// HostConfig describes one entry under the top-level "hosts" key.
type HostConfig struct {
	Alias   string `yaml:"alias"`
	URL     string `yaml:"url"`
	TLSCA   string `yaml:"tls_ca"`
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`
}

// Defaults holds reconciler-wide settings applied when a formation doesn't
// override them, mirroring the "bay" key in the original's bay.yaml.
type Defaults struct {
	DefaultHost   string `yaml:"default_host"`
	Network       string `yaml:"network"`
	StartWorkers  int    `yaml:"start_workers"`
	StopWorkers   int    `yaml:"stop_workers"`
	FailSilently  bool   `yaml:"fail_silently_on_pull"`
}

// defaultDefaults is merged under anything the profile leaves unset.
var defaultDefaults = Defaults{
	DefaultHost:  "default",
	StartWorkers: 4,
	StopWorkers:  4,
}

// Profile is the full parsed bay.yaml.
type Profile struct {
	Hosts    []HostConfig `yaml:"hosts"`
	Defaults Defaults     `yaml:"bay"`
}

// Load reads and parses a profile from path, filling unset Defaults fields
// from defaultDefaults via a mergo overlay (teacher's
// "cfg := defaultConfig; mergo.Merge(&cfg, input, mergo.WithOverride)"
// pattern, applied here in the opposite direction: parsed values override
// the baked-in defaults only where explicitly set).
func Load(path string) (*Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, bayerr.NewBadConfig("cannot read config file %s: %v", path, err)
	}

	var p Profile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, bayerr.NewBadConfig("cannot parse config file %s: %v", path, err)
	}

	merged := defaultDefaults
	if err := mergo.Merge(&merged, p.Defaults, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("error while merging configuration defaults: %w", err)
	}
	p.Defaults = merged

	if len(p.Hosts) == 0 {
		p.Hosts = []HostConfig{{Alias: "default", URL: "unix:///var/run/docker.sock"}}
	}

	for _, h := range p.Hosts {
		if h.Alias == "" {
			return nil, bayerr.NewBadConfig("a host entry in %s is missing its alias", path)
		}
	}
	return &p, nil
}
