package cmd

import (
	"fmt"

	"github.com/urfave/cli"

	"github.com/getbay/bay/pkg/dockerhost"
	"github.com/getbay/bay/pkg/formation"
	"github.com/getbay/bay/pkg/plugin"
	"github.com/getbay/bay/pkg/reconciler"
	"github.com/getbay/bay/pkg/tasktree"
	"github.com/getbay/bay/pkg/waits"
)

// ReconcileCommand is `up` generalized to a whole named group (spec §4.3's
// "FormationGroup"/network scope) rather than a single container plus its
// ancestry: it reconciles toward whatever the named containers resolve to,
// optionally leaving containers not in that set running (--no-stop).
var ReconcileCommand = cli.Command{
	Name:      "reconcile",
	Usage:     "reconcile a network's live containers against a set of named containers",
	ArgsUsage: "<container>...",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "network, n", Usage: "network/project name", Value: "bay"},
		cli.BoolFlag{Name: "no-stop", Usage: "don't stop instances not in the requested set"},
	},
	Action: reconcileCommand,
}

func reconcileCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		_ = cli.ShowCommandHelp(c, "reconcile")
		return fmt.Errorf("at least one container name is required")
	}
	network := c.String("network")

	graph, err := demoGraph(network, c.Args().First(), "", c.Args().Tail())
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

	root := c.Args().First()
	container, _ := graph.Get(root)
	desired := formation.New(graph, network)
	if _, err := desired.AddContainer(container); err != nil {
		return err
	}

	taskRoot := tasktree.NewRoot(func(line string) { fmt.Print(line) })
	pluginHost := plugin.NewHost()
	if err := waits.RegisterCatalogKinds(pluginHost); err != nil {
		return err
	}

	runner := reconciler.NewRunner(host, pluginHost, taskRoot)
	runner.Stop = !c.Bool("no-stop")

	ctx := processContext()
	in := dockerhost.NewIntrospector(host, graph, network)
	rootTask := taskRoot.NewTask(fmt.Sprintf("Reconciling %s", network), nil)

	return runner.Run(ctx, in, desired, rootTask)
}
