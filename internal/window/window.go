// Package window owns the OS window the renderer presents to and turns its
// event stream into the few events the frame loop cares about.
package window

import (
	"unsafe"

	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

type EventKind int

const (
	Close EventKind = iota
	Resized
	Minimized
	Restored
)

func (k EventKind) String() string {
	switch k {
	case Close:
		return "close"
	case Resized:
		return "resized"
	case Minimized:
		return "minimized"
	case Restored:
		return "restored"
	}
	return "unknown"
}

// Event is a window notification. Width and Height hold the drawable size for
// Resized and Restored.
type Event struct {
	Kind   EventKind
	Width  int
	Height int
}

// SurfaceProvider is what device creation needs from a window.
type SurfaceProvider interface {
	// ProcAddr returns vkGetInstanceProcAddr as loaded by the windowing layer.
	ProcAddr() unsafe.Pointer
	InstanceExtensions() []string
	CreateSurface(instance core1_0.Instance, surfaceDriver khr_surface.ExtensionDriver) (khr_surface.Surface, error)
	// DrawableSize is the size of the surface in pixels. Zero while minimized.
	DrawableSize() (int, int)
}

type Window interface {
	SurfaceProvider
	// Poll drains the pending events without blocking.
	Poll() []Event
	Destroy()
}
