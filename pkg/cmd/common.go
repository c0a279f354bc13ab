// Package cmd wires bay's urfave/cli command surface to the reconciliation
// core, grounded on the teacher's cmd package (main.go + cmd/list.go,
// cmd/run.go) shape: one file per command, a shared common.go for
// process-lifecycle and host/profile setup.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/getbay/bay/pkg/config"
	"github.com/getbay/bay/pkg/dockerhost"
)

// Flags are the global flags attached to the root app.
var Flags = []cli.Flag{
	cli.StringFlag{
		Name:  "config, c",
		Usage: "path to the bay profile (hosts + defaults)",
		Value: "bay.yaml",
	},
	cli.StringFlag{
		Name:  "host",
		Usage: "alias of the docker host to operate on; defaults to the profile's default_host",
	},
	cli.BoolFlag{
		Name:  "v",
		Usage: "verbose (debug-level) logging",
	},
}

// Commands are the root app's subcommands.
var Commands = []cli.Command{
	UpCommand,
	PsCommand,
	ReconcileCommand,
}

// processContext returns a context cancelled on SIGINT/SIGTERM, matching
// the teacher's ProcessContext used to bound client.List/client.Run calls.
func processContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()
	return ctx
}

// loadProfile reads the profile named by --config.
func loadProfile(c *cli.Context) (*config.Profile, error) {
	return config.Load(c.GlobalString("config"))
}

// setupHost resolves the target Host from --host (or the profile's
// default_host) against the profile's declared hosts.
func setupHost(c *cli.Context, profile *config.Profile) (*dockerhost.Host, error) {
	alias := c.GlobalString("host")
	if alias == "" {
		alias = profile.Defaults.DefaultHost
	}

	hosts := make([]*dockerhost.Host, 0, len(profile.Hosts))
	for _, hc := range profile.Hosts {
		h, err := dockerhost.NewHost(hc.Alias, hc.URL, hc.TLSCA, hc.TLSCert, hc.TLSKey)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, h)
	}
	if len(hosts) == 0 {
		return dockerhost.FromEnv(alias)
	}

	hm, err := dockerhost.NewHostManager(hosts...)
	if err != nil {
		return nil, err
	}
	h, ok := hm.Get(alias)
	if !ok {
		return dockerhost.FromEnv(alias)
	}
	return h, nil
}
