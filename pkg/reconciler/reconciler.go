// Package reconciler implements bay's diff-and-drive engine (spec §4.6):
// given a desired Formation and the host's observed Formation, it computes
// a stop-set and a start-set, stops in reverse-link order and starts in
// forward-link order, both in parallel waves with deadlock detection.
// Grounded on bay/docker/formation_runner.py, with the worker-orchestration
// model replaced per spec §9's design note: one goroutine per in-flight
// instance reporting completion on a channel, selected against a deadlock
// ticker, instead of the original's sleep(0.1) polling reaper. Aggregated
// worker failures use hashicorp/go-multierror, the same library the
// teacher reaches for in pkg/runner/local_docker.go's build fan-out.
package reconciler

import (
	"context"
	"time"

	"github.com/getbay/bay/pkg/dockerhost"
	"github.com/getbay/bay/pkg/formation"
	"github.com/getbay/bay/pkg/logging"
	"github.com/getbay/bay/pkg/plugin"
	"github.com/getbay/bay/pkg/tasktree"
)

// idleTick is the idle cadence of both the stop and the start reaper; it
// mirrors the original's 100ms sleep between reaper passes.
const idleTick = 100 * time.Millisecond

// startDeadlockTolerance is the number of consecutive idle ticks the start
// loop allows before declaring deadlock; kept far above the stop loop's
// zero-tolerance because image pulls can delay the first instance's
// progress (spec §5, §9 "preserve this asymmetry").
const startDeadlockTolerance = 10

// OutcomeKind tags what happened to a start-phase worker, replacing the
// original's DockerInteractive exception-as-signal with a typed return
// (spec §9).
type OutcomeKind int

const (
	OutcomeCompleted OutcomeKind = iota
	OutcomeNeedsMainThread
	OutcomeFailed
)

// Outcome is what a start_container worker reports back to the driver.
type Outcome struct {
	Kind     OutcomeKind
	Instance *formation.Instance
	// Handler is set when Kind == OutcomeNeedsMainThread: running it
	// attaches the foreground instance's PTY on the calling (main) thread.
	Handler func(ctx context.Context) error
	Err      error
}

// Runner drives one reconciliation pass for a single host.
type Runner struct {
	Host       *dockerhost.Host
	PluginHost *plugin.Host
	Root       *tasktree.Root
	// Stop controls whether the stop phase runs at all; false skips it, so
	// every instance in the stop-set (obsolete ones and drifted ones queued
	// for replacement alike) is left running untouched (spec §4.6 inputs).
	Stop bool
}

// NewRunner builds a Runner for host, bound to a plugin hook registry and
// the progress root under parent.
func NewRunner(host *dockerhost.Host, pluginHost *plugin.Host, root *tasktree.Root) *Runner {
	return &Runner{Host: host, PluginHost: pluginHost, Root: root, Stop: true}
}

// Run reconciles the host's live state (introspected fresh via in) against
// desired, reporting progress under parent (spec §4.6 run()).
func (r *Runner) Run(ctx context.Context, in *dockerhost.Introspector, desired *formation.Formation, parent *tasktree.Node) error {
	current, err := in.Introspect(ctx)
	if err != nil {
		return err
	}

	toStop := map[string]*formation.Instance{}
	toStart := map[string]*formation.Instance{}

	for _, inst := range current.Instances() {
		if _, ok := desired.Get(inst.Name); !ok {
			toStop[inst.Name] = inst
		}
	}
	for _, inst := range desired.Instances() {
		if _, ok := current.Get(inst.Name); !ok {
			toStart[inst.Name] = inst
		}
	}
	for _, inst := range desired.Instances() {
		curInst, ok := current.Get(inst.Name)
		if !ok {
			continue
		}
		if inst.DifferentFrom(curInst) {
			toStop[curInst.Name] = curInst
			toStart[inst.Name] = inst
		}
	}

	log := logging.With("network", desired.Network)
	log.Infow("reconciling", "to_stop", len(toStop), "to_start", len(toStart))

	if len(toStop) > 0 && r.Stop {
		if err := r.runStopPhase(ctx, current, toStop, parent); err != nil {
			log.Errorw("stop phase failed", "error", err)
			return err
		}
	}
	if len(toStart) == 0 {
		return nil
	}
	if err := r.runStartPhase(ctx, current, desired, toStop, toStart, parent); err != nil {
		log.Errorw("start phase failed", "error", err)
		return err
	}
	return nil
}
