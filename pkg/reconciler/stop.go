package reconciler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/getbay/bay/pkg/bayerr"
	"github.com/getbay/bay/pkg/formation"
	"github.com/getbay/bay/pkg/logging"
	"github.com/getbay/bay/pkg/tasktree"
)

type stopResult struct {
	name string
	err  error
}

// runStopPhase stops every instance in toStop, each only after every
// instance that links to it has already stopped or is stopping (spec §4.6
// "Stop phase").
func (r *Runner) runStopPhase(ctx context.Context, current *formation.Formation, toStop map[string]*formation.Instance, parent *tasktree.Node) error {
	incoming := incomingLinks(current, toStop)

	stopped := map[string]bool{}
	stopping := map[string]bool{}
	results := make(chan stopResult)
	inFlight := 0

	spawn := func(inst *formation.Instance) {
		stopping[inst.Name] = true
		inFlight++
		go func() {
			err := r.stopContainer(ctx, inst, parent)
			results <- stopResult{name: inst.Name, err: err}
		}()
	}

	for len(stopped) < len(toStop) {
		progressed := false
		for name, inst := range toStop {
			if stopped[name] || stopping[name] {
				continue
			}
			if everyStoppedOrStopping(incoming[name], stopped, stopping) {
				spawn(inst)
				progressed = true
			}
		}

		if inFlight == 0 && len(stopped) < len(toStop) {
			if !progressed {
				stuck := stuckNames(toStop, stopped)
				logging.S().Errorw("deadlock during stop", "stuck", stuck)
				return bayerr.NewDockerRuntime("deadlock during stop: %s", stuck)
			}
			continue
		}

		select {
		case res := <-results:
			inFlight--
			delete(stopping, res.name)
			if res.err != nil {
				return drainStopWorkers(results, inFlight, res.err)
			}
			stopped[res.name] = true
		case <-time.After(idleTick):
			if !progressed && inFlight == 0 {
				stuck := stuckNames(toStop, stopped)
				logging.S().Errorw("deadlock during stop", "stuck", stuck)
				return bayerr.NewDockerRuntime("deadlock during stop: %s", stuck)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// drainStopWorkers waits out the remaining in-flight stop workers so none
// leak, aggregating any further failures alongside the first with
// hashicorp/go-multierror.
func drainStopWorkers(results <-chan stopResult, inFlight int, first error) error {
	merr := multierror.Append(nil, first)
	for ; inFlight > 0; inFlight-- {
		if res := <-results; res.err != nil {
			merr = multierror.Append(merr, res.err)
		}
	}
	return merr.ErrorOrNil()
}

// incomingLinks maps each instance in toStop to the set of current
// instances whose links point at it, restricted to names also in toStop
// (an instance linked-to by something outside the stop-set has no ordering
// constraint from it).
func incomingLinks(current *formation.Formation, toStop map[string]*formation.Instance) map[string][]string {
	out := make(map[string][]string, len(toStop))
	for _, j := range current.Instances() {
		for _, target := range j.Links {
			if _, ok := toStop[target.Name]; !ok {
				continue
			}
			if _, ok := toStop[j.Name]; !ok {
				continue
			}
			out[target.Name] = append(out[target.Name], j.Name)
		}
	}
	return out
}

func everyStoppedOrStopping(names []string, stopped, stopping map[string]bool) bool {
	for _, n := range names {
		if !stopped[n] && !stopping[n] {
			return false
		}
	}
	return true
}

func stuckNames(toStop map[string]*formation.Instance, done map[string]bool) string {
	var names []string
	for name := range toStop {
		if !done[name] {
			names = append(names, name)
		}
	}
	return strings.Join(names, ", ")
}

// stopContainer stops one instance's runtime container (spec §4.6
// stop_container).
func (r *Runner) stopContainer(ctx context.Context, inst *formation.Instance, parent *tasktree.Node) error {
	task := r.Root.NewTask(fmt.Sprintf("Stopping %s", inst.Name), parent)

	log := logging.With("instance", inst.Name)

	cli, err := r.Host.Client()
	if err != nil {
		return err
	}
	if err := cli.Stop(ctx, inst.Name); err != nil {
		log.Errorw("stop failed", "error", err)
		return bayerr.NewDockerRuntime("failed to stop %s: %v", inst.Name, err)
	}
	log.Infow("stopped")

	good := tasktree.FlavorGood
	done := "Stopped"
	return task.Finish(tasktree.Update{Status: &done, StatusFlavor: &good})
}
