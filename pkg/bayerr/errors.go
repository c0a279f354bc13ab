// Package bayerr names the closed set of conceptual error kinds bay's
// reconciliation core can raise (spec §7). Each kind is a concrete type
// implementing error so callers can type-switch or errors.As on them; none
// of them are used as control-flow signals (DockerInteractive, the one
// exception in the original Python implementation, is modelled instead as
// a typed outcome value — see pkg/reconciler.Outcome).
package bayerr

import "fmt"

// BadConfig signals a malformed catalog/profile, an illegal link target, an
// unknown devmode, or some other schema mismatch. Never recovered from.
type BadConfig struct {
	Message string
}

func (e *BadConfig) Error() string { return e.Message }

// NewBadConfig builds a BadConfig error with a formatted message.
func NewBadConfig(format string, args ...interface{}) *BadConfig {
	return &BadConfig{Message: fmt.Sprintf(format, args...)}
}

// DockerNotAvailable signals bay could not reach the container runtime at all.
type DockerNotAvailable struct {
	Message string
}

func (e *DockerNotAvailable) Error() string { return e.Message }

func NewDockerNotAvailable(format string, args ...interface{}) *DockerNotAvailable {
	return &DockerNotAvailable{Message: fmt.Sprintf(format, args...)}
}

// DockerRuntime signals an operational failure returned by the runtime
// client, including boot failures (Code == "BOOT_FAIL", Instance set) and
// deadlock detection in the reconciler's stop/start loops.
type DockerRuntime struct {
	Message  string
	Code     string
	Instance string
}

func (e *DockerRuntime) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s [%s]", e.Message, e.Code)
	}
	return e.Message
}

func NewDockerRuntime(format string, args ...interface{}) *DockerRuntime {
	return &DockerRuntime{Message: fmt.Sprintf(format, args...)}
}

// NewBootFail builds the specific DockerRuntime variant the reconciler
// raises when a Towline boot probe reports failure (spec §4.6 step 8).
func NewBootFail(instanceName string) *DockerRuntime {
	return &DockerRuntime{
		Message:  fmt.Sprintf("container %s failed to boot", instanceName),
		Code:     "BOOT_FAIL",
		Instance: instanceName,
	}
}

// ImageNotFound signals a missing image. Container is populated when the
// error is raised while starting a specific instance (spec §4.6 step 6),
// empty when raised from a bare image lookup.
type ImageNotFound struct {
	Image     string
	ImageTag  string
	Container string
}

func (e *ImageNotFound) Error() string {
	if e.Container != "" {
		return fmt.Sprintf("cannot find image %s:%s (needed by %s)", e.Image, e.ImageTag, e.Container)
	}
	return fmt.Sprintf("cannot find image %s:%s", e.Image, e.ImageTag)
}

func NewImageNotFound(image, tag string) *ImageNotFound {
	return &ImageNotFound{Image: image, ImageTag: tag}
}

// ImagePullFailure signals a registry-side failure during an image pull.
type ImagePullFailure struct {
	Message    string
	RemoteName string
	ImageTag   string
}

func (e *ImagePullFailure) Error() string { return e.Message }

func NewImagePullFailure(remoteName, tag, format string, args ...interface{}) *ImagePullFailure {
	return &ImagePullFailure{
		Message:    fmt.Sprintf(format, args...),
		RemoteName: remoteName,
		ImageTag:   tag,
	}
}

// NotFound signals a missing filesystem source for a devmode or bind volume.
type NotFound struct {
	Message string
}

func (e *NotFound) Error() string { return e.Message }

func NewNotFound(format string, args ...interface{}) *NotFound {
	return &NotFound{Message: fmt.Sprintf(format, args...)}
}
