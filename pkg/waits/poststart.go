package waits

import (
	"context"
	"fmt"
	"time"

	"github.com/getbay/bay/pkg/bayerr"
	"github.com/getbay/bay/pkg/dockerhost"
	"github.com/getbay/bay/pkg/formation"
	"github.com/getbay/bay/pkg/plugin"
	"github.com/getbay/bay/pkg/tasktree"
)

// pollInterval matches the original post_start's time.sleep(1) cadence.
const pollInterval = time.Second

type activeWait struct {
	wait Wait
	task *tasktree.Node
}

// PostStart builds every wait declared on inst's container, attaches a
// progress task for each, and blocks until they all report ready or the
// container dies (spec §4.6 step 8, the post-start hook registered by
// WaitsPlugin.post_start).
func PostStart(ctx context.Context, host *dockerhost.Host, pluginHost *plugin.Host, root *tasktree.Root, parent *tasktree.Node, inst *formation.Instance) error {
	var active []*activeWait
	for _, decl := range inst.Container.Waits {
		params := make(map[string]interface{}, len(decl.Params)+1)
		for k, v := range decl.Params {
			params[k] = v
		}
		params["ip_address"] = inst.IPAddress

		built, err := pluginHost.BuildCatalogKind(decl.Type, params)
		if err != nil {
			return bayerr.NewDockerRuntime("unknown wait type %s for %s", decl.Type, inst.Container.Name)
		}
		w, ok := built.(Wait)
		if !ok {
			return bayerr.NewDockerRuntime("wait type %s for %s did not produce a usable wait", decl.Type, inst.Container.Name)
		}
		task := root.NewTask(fmt.Sprintf("Waiting for %s", w.Description()), parent)
		active = append(active, &activeWait{wait: w, task: task})
	}

	for len(active) > 0 {
		running, err := host.ContainerRunning(ctx, inst.Name)
		if err != nil {
			return err
		}
		if !running {
			bad := tasktree.FlavorBad
			dead := "Dead"
			_ = parent.Update(tasktree.Update{Status: &dead, StatusFlavor: &bad})
			return bayerr.NewDockerRuntime("container %s died while waiting for boot completion", inst.Container.Name)
		}

		waiting := "Waiting"
		_ = parent.Update(tasktree.Update{Status: &waiting})

		remaining := active[:0]
		for _, aw := range active {
			if aw.wait.Ready(ctx) {
				good := tasktree.FlavorGood
				done := "Done"
				_ = aw.task.Finish(tasktree.Update{Status: &done, StatusFlavor: &good})
			} else {
				remaining = append(remaining, aw)
			}
		}
		active = remaining
		if len(active) == 0 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
	return nil
}
