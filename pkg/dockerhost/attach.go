package dockerhost

import (
	"context"
	"io"
	"os"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/getbay/bay/pkg/bayerr"
)

// AttachInteractive streams a foreground container's combined stdout/stderr
// to w, demultiplexing Docker's framed log protocol, until the container
// exits or ctx is cancelled (spec §4.6 "foreground instances hand control
// to the terminal"; SPEC_FULL.md supplemented feature AttachInteractive).
func (h *Host) AttachInteractive(ctx context.Context, name string, w io.Writer) error {
	cli, err := h.Client()
	if err != nil {
		return err
	}
	stream, err := cli.Logs(ctx, name, types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return bayerr.NewDockerRuntime("cannot attach to container %s: %v", name, err)
	}
	defer stream.Close()

	if _, err := stdcopy.StdCopy(w, w, stream); err != nil && err != io.EOF {
		return bayerr.NewDockerRuntime("lost connection to container %s: %v", name, err)
	}
	return nil
}

// PutBuildContext tars dir and sends it to path inside containerID, used to
// seed a build-staging container the way the original's put_archive/
// build-context upload did.
func (h *Host) PutBuildContext(ctx context.Context, containerID, dir, path string) error {
	cli, err := h.Client()
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); err != nil {
		return bayerr.NewNotFound("build context directory does not exist: %s", dir)
	}

	tar, err := archive.TarWithOptions(dir, &archive.TarOptions{})
	if err != nil {
		return bayerr.NewDockerRuntime("failed to archive build context %s: %v", dir, err)
	}
	defer tar.Close()

	if err := cli.PutArchive(ctx, containerID, path, tar); err != nil {
		return bayerr.NewDockerRuntime("failed to upload build context to %s: %v", containerID, err)
	}
	return nil
}
