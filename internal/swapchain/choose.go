package swapchain

import (
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"

	"github.com/vkngwrapper/quad/internal/gpu"
)

// PreferredFormat is 8-bit BGRA with the sRGB transfer function.
var PreferredFormat = khr_surface.SurfaceFormat{
	Format:     core1_0.FormatB8G8R8A8SRGB,
	ColorSpace: khr_surface.ColorSpaceSRGBNonlinear,
}

// undefinedExtent is how the surface says the swapchain decides its own size.
const undefinedExtent = 0xFFFFFFFF

// ChooseSurfaceFormat returns the index of preferred in formats, or 0 when the
// surface does not offer it. formats must not be empty.
func ChooseSurfaceFormat(formats []khr_surface.SurfaceFormat, preferred khr_surface.SurfaceFormat) int {
	for i, format := range formats {
		if format.Format == preferred.Format && format.ColorSpace == preferred.ColorSpace {
			return i
		}
	}
	return 0
}

// ChoosePresentMode picks mailbox when offered. FIFO is the only mode every
// surface has to support.
func ChoosePresentMode(modes []khr_surface.PresentMode) khr_surface.PresentMode {
	for _, mode := range modes {
		if mode == khr_surface.PresentModeMailbox {
			return mode
		}
	}
	return khr_surface.PresentModeFIFO
}

// ChooseExtent uses the surface's current extent when it has one, otherwise
// clamps the drawable size into the supported range.
func ChooseExtent(caps *khr_surface.SurfaceCapabilities, width, height int) core1_0.Extent2D {
	current := caps.CurrentExtent
	if current.Width != -1 && current.Width != undefinedExtent {
		return current
	}

	return core1_0.Extent2D{
		Width:  clamp(width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

// ImageCount asks for one image more than the minimum so the driver never
// makes us wait for an image to render to. A zero maximum means unbounded.
func ImageCount(caps *khr_surface.SurfaceCapabilities) int {
	count := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}

// Sharing returns concurrent sharing across graphics and present when they are
// different families, so no ownership transfer barriers are needed.
func Sharing(families gpu.QueueFamilyIndices) (core1_0.SharingMode, []int) {
	if families.Concurrent() {
		return core1_0.SharingModeConcurrent, []int{*families.Graphics, *families.Present}
	}
	return core1_0.SharingModeExclusive, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return v
}
