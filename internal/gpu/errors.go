package gpu

import "github.com/cockroachdb/errors"

var (
	// ErrOutOfDate is returned by acquire and present once the surface no
	// longer matches the swapchain, usually after a resize.
	ErrOutOfDate = errors.New("swapchain out of date")
	// ErrSuboptimal means the swapchain still works but should be rebuilt.
	ErrSuboptimal = errors.New("swapchain suboptimal")

	ErrNoSuitableDevice = errors.New("failed to find a suitable GPU")
	ErrNoQueueFamily    = errors.New("no compatible queue family")
	ErrDeviceLost       = errors.New("device lost")
)

// IsStale reports whether err only says the swapchain has to be recreated.
func IsStale(err error) bool {
	return errors.IsAny(err, ErrOutOfDate, ErrSuboptimal)
}
