// Package frame drives the acquire, record, submit and present cycle and keeps
// up to N frames in flight without the CPU overwriting anything the GPU still
// reads.
package frame

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/quad/internal/commands"
	"github.com/vkngwrapper/quad/internal/gpu"
	"github.com/vkngwrapper/quad/internal/swapchain"
)

const DefaultFramesInFlight = 2

var (
	ErrClosed = errors.New("frame engine closed")
	// ErrSurfaceFormatChanged means the recreated swapchain no longer matches
	// the format the render pass was built for.
	ErrSurfaceFormatChanged = errors.New("surface format changed")
)

// Recorder writes one frame into a command buffer.
type Recorder interface {
	Record(cb gpu.CommandBuffer, target commands.Target) error
}

type RecordFunc func(cb gpu.CommandBuffer, target commands.Target) error

func (f RecordFunc) Record(cb gpu.CommandBuffer, target commands.Target) error {
	return f(cb, target)
}

type Options struct {
	FramesInFlight int
	Logger         *slog.Logger
}

// Stats counts what Draw did since the engine was created.
type Stats struct {
	Frames      uint64
	Skipped     uint64
	Recreations uint64
}

type Engine struct {
	device   gpu.Device
	manager  *swapchain.Manager
	state    *swapchain.State
	recorder Recorder
	logger   *slog.Logger

	pool  gpu.CommandPool
	slots []*Slot
	arena gpu.Arena

	// imagesInFlight maps a swapchain image to the fence of the last
	// submission that rendered into it.
	imagesInFlight []gpu.Fence

	format  core1_0.Format
	current int
	width   int
	height  int

	minimized bool
	resized   bool
	pending   bool
	closed    bool

	// failed is the first fatal error from Draw. The slot it happened in may
	// hold an unsignaled fence, so no further frame is attempted.
	failed error

	stats Stats
}

// New takes ownership of state and creates the per-slot objects. The
// manager's render pass must be the one state's framebuffers were built for.
// If New fails the caller still owns state.
func New(device gpu.Device, manager *swapchain.Manager, state *swapchain.State, recorder Recorder, opts Options) (*Engine, error) {
	if opts.FramesInFlight <= 0 {
		opts.FramesInFlight = DefaultFramesInFlight
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if state == nil || len(state.Framebuffers) != len(state.Images) {
		return nil, errors.New("frame engine needs a swapchain with framebuffers")
	}

	e := &Engine{
		device:         device,
		manager:        manager,
		state:          state,
		recorder:       recorder,
		logger:         opts.Logger,
		format:         state.Format.Format,
		width:          state.Extent.Width,
		height:         state.Extent.Height,
		imagesInFlight: make([]gpu.Fence, len(state.Images)),
	}

	families := device.QueueFamilies()
	if families.Graphics == nil {
		return nil, errors.Wrap(gpu.ErrNoQueueFamily, "frame engine needs a graphics family")
	}
	pool, err := device.CreateCommandPool(*families.Graphics)
	if err != nil {
		return nil, errors.Wrap(err, "create frame command pool")
	}
	e.pool = pool
	e.arena.Track(pool)

	e.slots, err = newSlots(device, pool, opts.FramesInFlight, &e.arena)
	if err != nil {
		e.arena.Release()
		return nil, err
	}

	e.logger.Debug("frame engine ready", slog.Int("frames_in_flight", len(e.slots)))
	return e, nil
}

func (e *Engine) CurrentFrame() int { return e.current }

func (e *Engine) FramesInFlight() int { return len(e.slots) }

func (e *Engine) Stats() Stats { return e.stats }

func (e *Engine) Minimized() bool { return e.minimized }

// State returns the current swapchain generation. It changes on recreation.
func (e *Engine) State() *swapchain.State { return e.state }

// Resize records a new drawable size. A zero-area size pauses drawing until a
// non-zero size arrives. Otherwise the swapchain is rebuilt after the next
// present even if the driver never reports it stale.
func (e *Engine) Resize(width, height int) {
	e.width, e.height = width, height
	if width == 0 || height == 0 {
		if !e.minimized {
			e.logger.Debug("drawable minimized")
		}
		e.minimized = true
		return
	}
	if e.minimized {
		e.logger.Debug("drawable restored", slog.Int("width", width), slog.Int("height", height))
	}
	e.minimized = false
	e.resized = true
}

// Draw renders one frame into the current slot. Stale swapchains are rebuilt
// and the frame is dropped; all other failures are fatal and every later call
// returns the same error.
func (e *Engine) Draw() error {
	if e.closed {
		return ErrClosed
	}
	if e.failed != nil {
		return e.failed
	}
	if err := e.draw(); err != nil {
		e.failed = err
		return err
	}
	return nil
}

func (e *Engine) draw() error {
	if e.minimized {
		e.stats.Skipped++
		return nil
	}
	if e.pending || e.state == nil {
		if err := e.Recreate(); err != nil {
			return err
		}
		if e.pending {
			e.stats.Skipped++
			return nil
		}
	}

	slot := e.slots[e.current]

	if err := e.device.WaitForFences(gpu.NoTimeout, slot.InFlight); err != nil {
		return errors.Wrapf(err, "wait for frame %d", e.current)
	}

	imageIndex, err := e.state.Swapchain.AcquireNextImage(gpu.NoTimeout, slot.ImageAvailable)
	if gpu.IsStale(err) {
		suboptimal := errors.Is(err, gpu.ErrSuboptimal)
		e.stats.Skipped++
		e.logger.Debug("swapchain stale on acquire", slog.String("result", err.Error()))
		if err := e.Recreate(); err != nil {
			return err
		}
		if suboptimal {
			// The image was acquired and the semaphore signaled, but nothing
			// will ever wait on it.
			return e.replaceImageAvailable(slot)
		}
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "acquire swapchain image")
	}
	if imageIndex < 0 || imageIndex >= len(e.imagesInFlight) {
		return errors.AssertionFailedf("acquired image %d of %d", imageIndex, len(e.imagesInFlight))
	}

	if owner := e.imagesInFlight[imageIndex]; owner != nil && owner != slot.InFlight {
		if err := e.device.WaitForFences(gpu.NoTimeout, owner); err != nil {
			return errors.Wrapf(err, "wait for image %d", imageIndex)
		}
	}
	e.imagesInFlight[imageIndex] = slot.InFlight

	if err := e.device.ResetFences(slot.InFlight); err != nil {
		return errors.Wrapf(err, "reset fence of frame %d", e.current)
	}
	if err := slot.Commands.Reset(); err != nil {
		return errors.Wrapf(err, "reset command buffer of frame %d", e.current)
	}

	target := commands.Target{
		RenderPass:  e.manager.RenderPass,
		Framebuffer: e.state.Framebuffers[imageIndex],
		Extent:      e.state.Extent,
	}
	if err := e.recorder.Record(slot.Commands, target); err != nil {
		return errors.Wrapf(err, "record frame %d", e.current)
	}

	err = e.device.GraphicsQueue().Submit(gpu.SubmitInfo{
		WaitSemaphores:   []gpu.Semaphore{slot.ImageAvailable},
		WaitStages:       []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
		CommandBuffers:   []gpu.CommandBuffer{slot.Commands},
		SignalSemaphores: []gpu.Semaphore{slot.RenderFinished},
		Fence:            slot.InFlight,
	})
	if err != nil {
		return errors.Wrapf(err, "submit frame %d", e.current)
	}

	err = e.device.PresentQueue().Present(gpu.PresentInfo{
		WaitSemaphores: []gpu.Semaphore{slot.RenderFinished},
		Swapchain:      e.state.Swapchain,
		ImageIndex:     imageIndex,
	})
	if err != nil && !gpu.IsStale(err) {
		return errors.Wrap(err, "present")
	}

	e.stats.Frames++
	e.current = (e.current + 1) % len(e.slots)

	if err != nil || e.resized {
		e.resized = false
		reason := "resized"
		if err != nil {
			reason = err.Error()
		}
		e.logger.Debug("swapchain stale on present", slog.String("result", reason))
		return e.Recreate()
	}
	return nil
}

// Recreate waits for the device to go idle and rebuilds the swapchain. While
// the drawable or the surface has zero area the rebuild is deferred and Draw
// retries it. Fences, semaphores and command buffers are reused.
func (e *Engine) Recreate() error {
	if e.closed {
		return ErrClosed
	}
	if e.width == 0 || e.height == 0 {
		e.pending = true
		return nil
	}

	if err := e.device.WaitIdle(); err != nil {
		return errors.Wrap(err, "wait for device idle before swapchain recreation")
	}

	state, err := e.manager.Recreate(e.state, e.width, e.height)
	e.state = state
	if errors.Is(err, swapchain.ErrZeroExtent) {
		// The surface shrank to nothing before the window said so.
		e.logger.Debug("surface has no area, deferring swapchain recreation")
		e.pending = true
		e.imagesInFlight = nil
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "recreate swapchain")
	}
	e.pending = false
	e.stats.Recreations++

	// Old fences may belong to images of the previous generation.
	e.imagesInFlight = make([]gpu.Fence, len(state.Images))

	if state.Format.Format != e.format {
		return errors.Wrapf(ErrSurfaceFormatChanged, "render pass uses %v, swapchain now %v", e.format, state.Format.Format)
	}

	e.logger.Debug("swapchain recreated",
		slog.Int("width", state.Extent.Width),
		slog.Int("height", state.Extent.Height),
		slog.Int("images", len(state.Images)))
	return nil
}

// replaceImageAvailable swaps the slot's semaphore for a fresh one. Only valid
// while the device is idle.
func (e *Engine) replaceImageAvailable(slot *Slot) error {
	fresh, err := e.device.CreateSemaphore()
	if err != nil {
		return errors.Wrap(err, "replace image available semaphore")
	}
	slot.ImageAvailable.Destroy()
	slot.ImageAvailable = fresh
	return nil
}

// Close waits for the GPU to finish, then destroys the slots and the
// swapchain. Calling it again does nothing.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	err := e.device.WaitIdle()
	if err != nil {
		err = errors.Wrap(err, "wait for device idle before shutdown")
	}

	e.arena.Release()
	e.manager.Destroy(e.state)
	e.state = nil
	e.slots = nil
	e.imagesInFlight = nil

	e.logger.Debug("frame engine closed",
		slog.Uint64("frames", e.stats.Frames),
		slog.Uint64("skipped", e.stats.Skipped),
		slog.Uint64("recreations", e.stats.Recreations))
	return err
}
