package dockerhost

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/getbay/bay/pkg/bayerr"
	"github.com/getbay/bay/pkg/catalog"
	"github.com/getbay/bay/pkg/logging"
	"github.com/getbay/bay/pkg/tasktree"
)

const registryURL = "localhost:5000"

// ImageRepository is a per-host cache/gateway for image-name->hash
// resolution and registry pulls with progress reporting (spec §4.5),
// grounded on bay/docker/images.py.
type ImageRepository struct {
	hostAlias string
	client    RuntimeClient
}

// NewImageRepository builds an ImageRepository bound to a RuntimeClient.
func NewImageRepository(hostAlias string, client RuntimeClient) *ImageRepository {
	return &ImageRepository{hostAlias: hostAlias, client: client}
}

// ImageVersion returns the Docker image hash of the requested image and
// tag, or ImageNotFound if it's not on the host.
func (r *ImageRepository) ImageVersion(ctx context.Context, imageName, tag string) (string, error) {
	info, err := r.client.InspectImage(ctx, fmt.Sprintf("%s:%s", imageName, tag))
	if err != nil {
		return "", &bayerr.ImageNotFound{Image: imageName, ImageTag: tag}
	}
	return info.ID, nil
}

// ImageVersions returns every known tag->hash mapping for imageName. At
// minimum it returns {"latest": ...} if resolvable, else an empty map.
func (r *ImageRepository) ImageVersions(ctx context.Context, imageName string) map[string]string {
	id, err := r.ImageVersion(ctx, imageName, "latest")
	if err != nil {
		return map[string]string{}
	}
	return map[string]string{"latest": id}
}

// pullEvent is one line of the JSON stream Docker's pull API emits.
type pullEvent struct {
	Error          string `json:"error"`
	ID             string `json:"id"`
	Status         string `json:"status"`
	ProgressDetail struct {
		Current int64 `json:"current"`
		Total   int64 `json:"total"`
	} `json:"progressDetail"`
}

type layerProgress struct {
	current, total int64
}

// PullImageVersion streams a pull of localhost:5000/{imageName}:{tag},
// feeding progress into parentTask, and re-tags the pulled image locally
// as {imageName}:{tag} on success (spec §4.5). A tag of "local" is a
// no-op sentinel.
func (r *ImageRepository) PullImageVersion(ctx context.Context, root *tasktree.Root, parent *tasktree.Node, imageName, tag string, failSilently bool) error {
	if tag == "local" {
		return nil
	}

	remoteName := fmt.Sprintf("%s/%s", registryURL, imageName)
	log := logging.With("image", imageName, "tag", tag)
	log.Infow("pulling image")

	stream, err := r.client.Pull(ctx, fmt.Sprintf("%s:%s", remoteName, tag))
	if err != nil {
		if failSilently {
			log.Warnw("pull failed, continuing (fail_silently)", "error", err)
			return nil
		}
		log.Errorw("pull failed", "error", err)
		return bayerr.NewImagePullFailure(remoteName, tag, "%v", err)
	}
	defer stream.Close()

	var (
		mu       sync.Mutex
		layers   = map[string]*layerProgress{}
		pullTask *tasktree.Node
	)

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var evt pullEvent
		if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
			continue
		}
		if evt.Error != "" {
			if failSilently {
				return nil
			}
			return bayerr.NewImagePullFailure(remoteName, tag, "%s", evt.Error)
		}
		if evt.ID == "" || evt.Status == "" {
			continue
		}

		mu.Lock()
		lp, ok := layers[evt.ID]
		if !ok {
			lp = &layerProgress{}
			layers[evt.ID] = lp
		}
		switch strings.ToLower(evt.Status) {
		case "downloading":
			lp.current, lp.total = evt.ProgressDetail.Current, evt.ProgressDetail.Total
		case "complete", "pull complete", "download complete":
			lp.current = lp.total
		}

		var sumCurrent, sumTotal int64
		for _, l := range layers {
			sumCurrent += l.current
			sumTotal += l.total
		}
		mu.Unlock()

		if pullTask == nil && root != nil {
			pullTask = root.NewTask(fmt.Sprintf("Pulling remote image %s", imageName), parent)
		}
		if pullTask != nil && sumTotal > 0 {
			_ = pullTask.Update(tasktree.Update{
				Progress: &tasktree.Progress{Count: int(sumCurrent), Total: int(sumTotal)},
			})
		}
	}
	if err := scanner.Err(); err != nil && !failSilently {
		return bayerr.NewImagePullFailure(remoteName, tag, "reading pull stream: %v", err)
	}

	if err := r.client.Tag(ctx, fmt.Sprintf("%s:%s", remoteName, tag), fmt.Sprintf("%s:%s", imageName, tag)); err != nil {
		if failSilently {
			return nil
		}
		return bayerr.NewImagePullFailure(remoteName, tag, "failed to tag %s:%s as %s: %v", remoteName, tag, imageName, err)
	}

	if pullTask != nil {
		_ = pullTask.Finish(tasktree.Update{})
	}
	log.Infow("pulled image")
	return nil
}

// PullAncestry pulls every distinct build ancestor's own image, in
// ancestry order, fixing the "apparent bug" spec.md §9 flags in the
// original build command (which pulled container.image_name while
// iterating ancestors instead of ancestor.image_name).
func (r *ImageRepository) PullAncestry(ctx context.Context, root *tasktree.Root, parent *tasktree.Node, graph catalog.Graph, containerName, tag string) error {
	ancestry := graph.BuildAncestry(containerName)
	seen := map[string]bool{}
	for _, name := range ancestry {
		ancestor, ok := graph.Get(name)
		if !ok || seen[ancestor.ImageName] {
			continue
		}
		seen[ancestor.ImageName] = true
		if err := r.PullImageVersion(ctx, root, parent, ancestor.ImageName, tag, false); err != nil {
			return err
		}
	}
	return nil
}
