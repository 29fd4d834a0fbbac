package window

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"
)

// SDL is a resizable SDL2 window with Vulkan support. Create it and call every
// method on the thread that initialized SDL.
type SDL struct {
	window *sdl.Window
}

var _ Window = (*SDL)(nil)

func OpenSDL(title string, width, height int) (*SDL, error) {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, errors.Wrap(err, "init sdl video")
	}

	window, err := sdl.CreateWindow(title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(width), int32(height), sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.Quit()
		return nil, errors.Wrap(err, "create window")
	}

	return &SDL{window: window}, nil
}

func (w *SDL) ProcAddr() unsafe.Pointer {
	return sdl.VulkanGetVkGetInstanceProcAddr()
}

func (w *SDL) InstanceExtensions() []string {
	return w.window.VulkanGetInstanceExtensions()
}

func (w *SDL) CreateSurface(instance core1_0.Instance, surfaceDriver khr_surface.ExtensionDriver) (khr_surface.Surface, error) {
	surface, err := vkng_sdl2.CreateSurface(instance, surfaceDriver, w.window)
	if err != nil {
		return surface, errors.Wrap(err, "create window surface")
	}
	return surface, nil
}

func (w *SDL) DrawableSize() (int, int) {
	if w.window.GetFlags()&sdl.WINDOW_MINIMIZED != 0 {
		return 0, 0
	}
	width, height := w.window.VulkanGetDrawableSize()
	return int(width), int(height)
}

func (w *SDL) Poll() []Event {
	var events []Event
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		if e, ok := translate(event, w.DrawableSize); ok {
			events = append(events, e)
		}
	}
	return events
}

func (w *SDL) Destroy() {
	if w.window != nil {
		w.window.Destroy()
		w.window = nil
	}
	sdl.Quit()
}

func translate(event sdl.Event, drawable func() (int, int)) (Event, bool) {
	switch e := event.(type) {
	case *sdl.QuitEvent:
		return Event{Kind: Close}, true
	case *sdl.WindowEvent:
		switch e.Event {
		case sdl.WINDOWEVENT_CLOSE:
			return Event{Kind: Close}, true
		case sdl.WINDOWEVENT_MINIMIZED:
			return Event{Kind: Minimized}, true
		case sdl.WINDOWEVENT_RESTORED:
			width, height := drawable()
			return Event{Kind: Restored, Width: width, Height: height}, true
		case sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED:
			width, height := drawable()
			if width == 0 || height == 0 {
				return Event{Kind: Minimized}, true
			}
			return Event{Kind: Resized, Width: width, Height: height}, true
		}
	}
	return Event{}, false
}
