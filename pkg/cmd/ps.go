package cmd

import (
	"fmt"

	"github.com/urfave/cli"

	"github.com/getbay/bay/pkg/catalog"
	"github.com/getbay/bay/pkg/dockerhost"
)

// PsCommand lists the currently running instances on a network, grounded
// on the original's ps.py plugin (SPEC_FULL.md "Supplemented features").
var PsCommand = cli.Command{
	Name:      "ps",
	Usage:     "list running instances on a network",
	ArgsUsage: "[name]",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "network, n", Usage: "network/project name", Value: "bay"},
	},
	Action: psCommand,
}

func psCommand(c *cli.Context) error {
	network := c.String("network")

	profile, err := loadProfile(c)
	if err != nil {
		return err
	}
	host, err := setupHost(c, profile)
	if err != nil {
		return err
	}

	graph := catalog.NewMapGraph(network, nil)
	in := dockerhost.NewIntrospector(host, graph, network)
	ctx := processContext()

	if name := c.Args().First(); name != "" {
		inst, err := in.IntrospectSingleContainer(ctx, name)
		if err != nil {
			return err
		}
		fmt.Printf("%-30s %-30s %s\n", inst.Name, inst.Image, inst.IPAddress)
		return nil
	}

	current, err := in.Introspect(ctx)
	if err != nil {
		return err
	}
	for _, inst := range current.Instances() {
		fmt.Printf("%-30s %-30s %s\n", inst.Name, inst.Image, inst.IPAddress)
	}
	return nil
}
