package cmd

import (
	"fmt"

	"github.com/urfave/cli"

	"github.com/getbay/bay/pkg/catalog"
	"github.com/getbay/bay/pkg/dockerhost"
	"github.com/getbay/bay/pkg/formation"
	"github.com/getbay/bay/pkg/plugin"
	"github.com/getbay/bay/pkg/reconciler"
	"github.com/getbay/bay/pkg/tasktree"
	"github.com/getbay/bay/pkg/waits"
)

// UpCommand brings a formation up to match the requested container, the
// way `bay up <container>` did in the original. Catalog loading is out of
// scope (spec.md §1); the positional container name plus --image/--dep
// stand in for the catalog entry a full implementation would resolve by name.
var UpCommand = cli.Command{
	Name:      "up",
	Usage:     "reconcile a host's live containers to include the named container and its dependencies",
	ArgsUsage: "<container>",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "image", Usage: "docker image name (defaults to <network>/<container>)"},
		cli.StringSliceFlag{Name: "dep", Usage: "direct runtime dependency name, repeatable"},
		cli.StringFlag{Name: "network, n", Usage: "network/project name", Value: "bay"},
	},
	Action: upCommand,
}

func upCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		_ = cli.ShowCommandHelp(c, "up")
		return fmt.Errorf("missing container name")
	}
	name := c.Args().First()
	network := c.String("network")

	graph, err := demoGraph(network, name, c.String("image"), c.StringSlice("dep"))
	if err != nil {
		return err
	}

	profile, err := loadProfile(c)
	if err != nil {
		return err
	}
	host, err := setupHost(c, profile)
	if err != nil {
		return err
	}

	container, _ := graph.Get(name)
	desired := formation.New(graph, network)
	if _, err := desired.AddContainer(container); err != nil {
		return err
	}

	root := tasktree.NewRoot(func(line string) { fmt.Print(line) })
	pluginHost := plugin.NewHost()
	if err := waits.RegisterCatalogKinds(pluginHost); err != nil {
		return err
	}

	runner := reconciler.NewRunner(host, pluginHost, root)
	ctx := processContext()
	in := dockerhost.NewIntrospector(host, graph, network)
	rootTask := root.NewTask(fmt.Sprintf("Reconciling %s", network), nil)

	return runner.Run(ctx, in, desired, rootTask)
}

// demoGraph builds a single-container catalog graph with its dependencies
// declared as bare (image-less) entries, standing in for a real catalog
// lookup.
func demoGraph(network, name, image string, deps []string) (*catalog.MapGraph, error) {
	if image == "" {
		image = fmt.Sprintf("%s/%s", network, name)
	}
	containers := make([]*catalog.Container, 0, len(deps)+1)
	for _, dep := range deps {
		containers = append(containers, &catalog.Container{
			Name:      dep,
			ImageName: fmt.Sprintf("%s/%s", network, dep),
		})
	}
	containers = append(containers, &catalog.Container{
		Name:         name,
		ImageName:    image,
		Dependencies: deps,
	})
	return catalog.NewMapGraph(network, containers), nil
}
