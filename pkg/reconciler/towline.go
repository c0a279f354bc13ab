package reconciler

import (
	"bufio"
	"context"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/getbay/bay/pkg/bayerr"
	"github.com/getbay/bay/pkg/dockerhost"
	"github.com/getbay/bay/pkg/formation"
	"github.com/getbay/bay/pkg/logging"
	"github.com/getbay/bay/pkg/tasktree"
)

// towlinePollInterval matches the original's 500ms Towline poll cadence.
const towlinePollInterval = 500 * time.Millisecond

// towlineStatus is the decoded status half of one Towline message (spec
// §4.6 step 8, GLOSSARY "Towline").
type towlineStatus int

const (
	towlinePending towlineStatus = iota
	towlineOK
	towlineFailed
)

// towlinePrefix is the line prefix a container's entrypoint writes to its
// stdout to report boot status over the Towline side-channel, demultiplexed
// from the combined log stream the same way AttachInteractive demuxes a
// foreground container's output.
const towlinePrefix = "TOWLINE "

// pollTowline polls inst's container logs for Towline status lines every
// 500ms until a terminal status (ok/failed) is seen, updating task's status
// text on every new message (spec §4.6 step 8).
func (r *Runner) pollTowline(ctx context.Context, inst *formation.Instance, task *tasktree.Node) error {
	cli, err := r.Host.Client()
	if err != nil {
		return err
	}

	ticker := time.NewTicker(towlinePollInterval)
	defer ticker.Stop()

	var lastMessage string
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			status, message, err := latestTowlineMessage(ctx, cli, inst.Name)
			if err != nil {
				return err
			}
			if message != "" && message != lastMessage {
				lastMessage = message
				_ = task.Update(tasktree.Update{Status: &message})
			}
			switch status {
			case towlineOK:
				logging.With("instance", inst.Name).Infow("boot completed")
				return nil
			case towlineFailed:
				logging.With("instance", inst.Name).Errorw("boot failed", "message", lastMessage)
				return bayerr.NewBootFail(inst.Name)
			}
		}
	}
}

// latestTowlineMessage fetches the most recent Towline-prefixed log line
// for name, if any.
func latestTowlineMessage(ctx context.Context, cli dockerhost.RuntimeClient, name string) (towlineStatus, string, error) {
	stream, err := cli.Logs(ctx, name, types.ContainerLogsOptions{ShowStdout: true, Tail: "20"})
	if err != nil {
		return towlinePending, "", bayerr.NewDockerRuntime("failed to read towline status for %s: %v", name, err)
	}
	defer stream.Close()

	var stdout, stderr strings.Builder
	if _, err := stdcopy.StdCopy(&stdout, &stderr, stream); err != nil {
		return towlinePending, "", nil
	}

	status := towlinePending
	message := ""
	scanner := bufio.NewScanner(strings.NewReader(stdout.String()))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, towlinePrefix) {
			continue
		}
		rest := strings.TrimPrefix(line, towlinePrefix)
		parts := strings.SplitN(rest, " ", 2)
		switch parts[0] {
		case "OK":
			status = towlineOK
		case "FAILED":
			status = towlineFailed
		default:
			status = towlinePending
		}
		if len(parts) > 1 {
			message = parts[1]
		}
	}
	return status, message, nil
}
