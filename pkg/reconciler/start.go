package reconciler

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/getbay/bay/pkg/bayerr"
	"github.com/getbay/bay/pkg/dockerhost"
	"github.com/getbay/bay/pkg/formation"
	"github.com/getbay/bay/pkg/logging"
	"github.com/getbay/bay/pkg/plugin"
	"github.com/getbay/bay/pkg/tasktree"
	"github.com/getbay/bay/pkg/waits"
)

// runStartPhase starts every instance in toStart, each only after every
// target of its links has fully started (spec §4.6 "Start phase"). started
// seeds from every current instance that isn't itself being torn down in
// this pass, so a drifted instance (stopped and re-queued under the same
// name) is not mistaken for already-satisfied.
func (r *Runner) runStartPhase(ctx context.Context, current, desired *formation.Formation, toStop, toStart map[string]*formation.Instance, parent *tasktree.Node) error {
	started := map[string]bool{}
	for _, inst := range current.Instances() {
		if _, replaced := toStop[inst.Name]; !replaced {
			started[inst.Name] = true
		}
	}
	starting := map[string]bool{}
	results := make(chan Outcome)
	inFlight := 0
	idleStreak := 0
	remaining := len(toStart)

	spawn := func(inst *formation.Instance) {
		starting[inst.Name] = true
		inFlight++
		go func() {
			results <- r.startContainer(ctx, desired, inst, parent)
		}()
	}

	for remaining > 0 {
		progressed := false
		for name, inst := range toStart {
			if started[name] || starting[name] {
				continue
			}
			if everyLinkStarted(inst, started) {
				spawn(inst)
				progressed = true
			}
		}

		select {
		case out := <-results:
			inFlight--
			delete(starting, out.Instance.Name)
			idleStreak = 0

			switch out.Kind {
			case OutcomeFailed:
				return drainStartWorkers(results, inFlight, out.Err)
			case OutcomeNeedsMainThread:
				drainStartWorkersDiscard(results, inFlight)
				return out.Handler(ctx)
			default:
				started[out.Instance.Name] = true
				if _, wanted := toStart[out.Instance.Name]; wanted {
					remaining--
				}
			}
		case <-time.After(idleTick):
			if !progressed && inFlight == 0 {
				idleStreak++
				if idleStreak > startDeadlockTolerance {
					stuck := unstartedNames(toStart, started)
					logging.S().Errorw("deadlock during start", "stuck", stuck)
					return bayerr.NewDockerRuntime("deadlock during start: %s", stuck)
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func everyLinkStarted(inst *formation.Instance, started map[string]bool) bool {
	for _, target := range inst.Links {
		if !started[target.Name] {
			return false
		}
	}
	return true
}

func unstartedNames(toStart map[string]*formation.Instance, started map[string]bool) string {
	var names []string
	for name := range toStart {
		if !started[name] {
			names = append(names, name)
		}
	}
	return fmt.Sprint(names)
}

func drainStartWorkers(results <-chan Outcome, inFlight int, first error) error {
	merr := multierror.Append(nil, first)
	for ; inFlight > 0; inFlight-- {
		if out := <-results; out.Err != nil {
			merr = multierror.Append(merr, out.Err)
		}
	}
	return merr.ErrorOrNil()
}

func drainStartWorkersDiscard(results <-chan Outcome, inFlight int) {
	for ; inFlight > 0; inFlight-- {
		<-results
	}
}

// startContainer drives one instance through the full start sequence (spec
// §4.6 start_container, steps 1-10).
func (r *Runner) startContainer(ctx context.Context, desired *formation.Formation, inst *formation.Instance, parent *tasktree.Node) Outcome {
	task := r.Root.NewTask(fmt.Sprintf("Starting %s", inst.Name), parent)
	log := logging.With("instance", inst.Name)
	fail := func(err error) Outcome {
		bad := tasktree.FlavorBad
		failed := "Failed"
		log.Errorw("start failed", "error", err)
		_ = task.Finish(tasktree.Update{Status: &failed, StatusFlavor: &bad})
		return Outcome{Kind: OutcomeFailed, Instance: inst, Err: err}
	}

	cli, err := r.Host.Client()
	if err != nil {
		return fail(err)
	}

	// Step 1: remove a stopped leftover; refuse to clobber a running one.
	if r.Host.ContainerExists(ctx, inst.Name) {
		running, err := r.Host.ContainerRunning(ctx, inst.Name)
		if err != nil {
			return fail(err)
		}
		if running {
			return fail(bayerr.NewDockerRuntime("container %s is already running", inst.Name))
		}
		if err := cli.RemoveContainer(ctx, inst.Name); err != nil {
			return fail(bayerr.NewDockerRuntime("failed to remove stale container %s: %v", inst.Name, err))
		}
	}

	// Step 2: pre-start hook.
	if err := r.PluginHost.Fire(ctx, plugin.HookPreStart, inst); err != nil {
		return fail(err)
	}

	// Step 3: ensure the network exists, under the process-wide lock.
	if err := dockerhost.EnsureNetwork(ctx, cli, inst.Formation().Network); err != nil {
		return fail(err)
	}

	// Step 4: networking config with link aliases.
	netCfg := dockerhost.BuildNetworkingConfig(inst)

	// Step 5: volumes.
	volumes, err := dockerhost.BuildVolumes(r.Host, inst)
	if err != nil {
		return fail(err)
	}

	// Step 6: resolve the image.
	images, err := r.Host.Images()
	if err != nil {
		return fail(err)
	}
	imageID, err := images.ImageVersion(ctx, inst.Image, inst.ImageTag)
	if err != nil {
		if notFound, ok := err.(*bayerr.ImageNotFound); ok {
			notFound.Container = inst.Container.Name
			return fail(notFound)
		}
		return fail(err)
	}
	inst.ImageID = imageID

	// Step 7: create the container.
	cfg := dockerhost.BuildContainerConfig(inst, imageID)
	hostCfg := dockerhost.BuildHostConfig(volumes, inst.Ports)
	containerID, err := cli.CreateContainer(ctx, cfg, hostCfg, netCfg, inst.Name)
	if err != nil {
		return fail(bayerr.NewDockerRuntime("failed to create container %s: %v", inst.Name, err))
	}

	// Step 8: foreground hands off to the caller; detached polls Towline.
	if inst.Foreground {
		good := tasktree.FlavorGood
		shell := "Going to shell"
		_ = task.Update(tasktree.Update{Status: &shell, StatusFlavor: &good})
		handler := func(ctx context.Context) error {
			defer func() { _ = cli.RemoveContainer(ctx, inst.Name) }()
			if err := cli.Start(ctx, containerID); err != nil {
				return bayerr.NewDockerRuntime("failed to start %s: %v", inst.Name, err)
			}
			return r.Host.AttachInteractive(ctx, inst.Name, os.Stdout)
		}
		return Outcome{Kind: OutcomeNeedsMainThread, Instance: inst, Handler: handler}
	}

	if err := cli.Start(ctx, containerID); err != nil {
		return fail(bayerr.NewDockerRuntime("failed to start %s: %v", inst.Name, err))
	}
	if err := r.pollTowline(ctx, inst, task); err != nil {
		return fail(err)
	}

	// Step 9: record the observed IP.
	details, err := cli.InspectContainer(ctx, inst.Name)
	if err != nil {
		return fail(bayerr.NewDockerRuntime("failed to inspect %s after start: %v", inst.Name, err))
	}
	if net, ok := details.NetworkSettings.Networks[inst.Formation().Network]; ok {
		inst.IPAddress = net.IPAddress
	}

	// Step 10: post-start hook, then the waits plugin's readiness checks.
	if err := r.PluginHost.Fire(ctx, plugin.HookPostStart, inst); err != nil {
		return fail(err)
	}
	if err := waits.PostStart(ctx, r.Host, r.PluginHost, r.Root, task, inst); err != nil {
		return fail(err)
	}

	log.Infow("started")
	good := tasktree.FlavorGood
	done := "Started"
	_ = task.Finish(tasktree.Update{Status: &done, StatusFlavor: &good})
	return Outcome{Kind: OutcomeCompleted, Instance: inst}
}
