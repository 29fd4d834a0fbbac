package frame

import (
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"

	"github.com/vkngwrapper/quad/internal/commands"
	"github.com/vkngwrapper/quad/internal/gpu"
	"github.com/vkngwrapper/quad/internal/gpu/gputest"
	"github.com/vkngwrapper/quad/internal/swapchain"
)

type harness struct {
	dev     *gputest.Device
	manager *swapchain.Manager
	engine  *Engine
	targets []commands.Target
	failRec error
}

func newHarness(t *testing.T, configure ...func(*gputest.Device)) *harness {
	t.Helper()
	return newHarnessN(t, 0, configure...)
}

func newHarnessN(t *testing.T, framesInFlight int, configure ...func(*gputest.Device)) *harness {
	t.Helper()
	h := &harness{dev: gputest.New()}
	for _, c := range configure {
		c(h.dev)
	}

	h.manager = swapchain.NewManager(h.dev, nil)
	rp, err := h.dev.CreateRenderPass(core1_0.RenderPassCreateInfo{})
	if err != nil {
		t.Fatal(err)
	}
	h.manager.RenderPass = rp

	state, err := h.manager.Create(800, 600)
	if err != nil {
		t.Fatalf("create swapchain: %+v", err)
	}

	h.engine, err = New(h.dev, h.manager, state, RecordFunc(h.record), Options{FramesInFlight: framesInFlight})
	if err != nil {
		t.Fatalf("New: %+v", err)
	}
	h.dev.ClearCalls()
	return h
}

func (h *harness) record(cb gpu.CommandBuffer, target commands.Target) error {
	if h.failRec != nil {
		return h.failRec
	}
	h.targets = append(h.targets, target)
	if err := cb.Begin(core1_0.CommandBufferUsageSimultaneousUse); err != nil {
		return err
	}
	return cb.End()
}

func (h *harness) draw(t *testing.T) {
	t.Helper()
	if err := h.engine.Draw(); err != nil {
		t.Fatalf("Draw: %+v", err)
	}
}

func (h *harness) closeAndCheckLeaks(t *testing.T) {
	t.Helper()
	if err := h.engine.Close(); err != nil {
		t.Fatalf("Close: %+v", err)
	}
	h.manager.RenderPass.Destroy()
	if live := h.dev.Live(); len(live) != 0 {
		t.Errorf("leaked %v", live)
	}
}

// index returns the position of the first journal entry starting with prefix
// at or after from, or -1.
func index(calls []string, prefix string, from int) int {
	for i := from; i < len(calls); i++ {
		if strings.HasPrefix(calls[i], prefix) {
			return i
		}
	}
	return -1
}

func lastIndex(calls []string, prefix string) int {
	for i := len(calls) - 1; i >= 0; i-- {
		if strings.HasPrefix(calls[i], prefix) {
			return i
		}
	}
	return -1
}

func TestNewDefaults(t *testing.T) {
	h := newHarness(t)
	if n := h.engine.FramesInFlight(); n != DefaultFramesInFlight {
		t.Errorf("frames in flight = %d, want %d", n, DefaultFramesInFlight)
	}
	for i, slot := range h.engine.slots {
		if !slot.InFlight.(*gputest.Fence).Signaled {
			t.Errorf("slot %d fence starts unsignaled", i)
		}
	}
	h.closeAndCheckLeaks(t)
}

func TestNewCleansUpOnFailure(t *testing.T) {
	for _, method := range []string{"CreateCommandPool", "Allocate", "CreateSemaphore", "CreateFence"} {
		t.Run(method, func(t *testing.T) {
			dev := gputest.New()
			manager := swapchain.NewManager(dev, nil)
			rp, _ := dev.CreateRenderPass(core1_0.RenderPassCreateInfo{})
			manager.RenderPass = rp
			state, err := manager.Create(800, 600)
			if err != nil {
				t.Fatal(err)
			}

			dev.Fail[method] = errors.New("boom")
			if _, err := New(dev, manager, state, RecordFunc(nil), Options{FramesInFlight: 3}); err == nil {
				t.Fatal("New succeeded")
			}

			manager.Destroy(state)
			rp.Destroy()
			if live := dev.Live(); len(live) != 0 {
				t.Errorf("leaked %v", live)
			}
		})
	}
}

func TestDrawRoundRobin(t *testing.T) {
	for _, n := range []int{1, 2, 3} {
		t.Run(fmt.Sprintf("%d frames", n), func(t *testing.T) {
			h := newHarnessN(t, n)
			if got := h.engine.FramesInFlight(); got != n {
				t.Fatalf("frames in flight = %d, want %d", got, n)
			}

			for i := 0; i < 3*n+1; i++ {
				if got := h.engine.CurrentFrame(); got != i%n {
					t.Fatalf("before frame %d current = %d, want %d", i, got, i%n)
				}
				h.draw(t)
			}

			frames := uint64(3*n + 1)
			if s := h.engine.Stats(); s.Frames != frames || s.Skipped != 0 || s.Recreations != 0 {
				t.Errorf("stats = %+v", s)
			}
			if h.dev.Graphics.Submits != int(frames) || h.dev.Present.Presents != int(frames) {
				t.Errorf("submits %d presents %d", h.dev.Graphics.Submits, h.dev.Present.Presents)
			}
			h.closeAndCheckLeaks(t)
		})
	}
}

func TestFenceWaitedBeforeReset(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 8; i++ {
		h.draw(t)
	}

	fences := map[string]string{"cmd#0": "fence#0", "cmd#1": "fence#1"}
	waited := map[string]bool{}
	reset := map[string]bool{}
	for _, c := range h.dev.Calls() {
		switch {
		case strings.HasPrefix(c, "WaitForFences "):
			for _, f := range strings.Split(strings.TrimPrefix(c, "WaitForFences "), ",") {
				waited[f] = true
			}
		case strings.HasPrefix(c, "ResetFences "):
			f := strings.TrimPrefix(c, "ResetFences ")
			if !waited[f] {
				t.Fatalf("%s reset without a wait", f)
			}
			waited[f] = false
			reset[f] = true
		case strings.HasSuffix(c, ".Reset"):
			cmd := strings.TrimSuffix(c, ".Reset")
			if !reset[fences[cmd]] {
				t.Fatalf("%s reset before its fence was waited on and reset", cmd)
			}
			reset[fences[cmd]] = false
		}
	}
}

func TestDrawWaitsOnImageOwner(t *testing.T) {
	// Three images and two slots: slot 1 gets image 0 back on the fourth frame
	// while slot 0's fence is its last owner.
	h := newHarness(t, func(d *gputest.Device) { d.SwapchainImages = 3 })
	for i := 0; i < 4; i++ {
		h.draw(t)
	}

	calls := h.dev.Calls()
	fourth := lastIndex(calls, "WaitForFences fence#1")
	if fourth < 0 {
		t.Fatal("fourth frame never waited on its slot")
	}
	if index(calls, "WaitForFences fence#0", fourth) < 0 {
		t.Errorf("fourth frame did not wait for the previous owner of image 0:\n%s", strings.Join(calls, "\n"))
	}
	h.closeAndCheckLeaks(t)
}

func TestDrawSubmitsWithTheRightSync(t *testing.T) {
	h := newHarness(t)
	h.draw(t)

	slot := h.engine.slots[0]
	if slot.ImageAvailable.(*gputest.Semaphore).Signaled || slot.RenderFinished.(*gputest.Semaphore).Signaled {
		t.Error("frame left a semaphore signaled")
	}
	if !slot.InFlight.(*gputest.Fence).Signaled {
		t.Error("submission did not signal the slot fence")
	}
	if len(h.targets) != 1 || h.targets[0].Framebuffer != h.engine.State().Framebuffers[0] {
		t.Errorf("recorded against %+v", h.targets)
	}
	if h.targets[0].Extent != (core1_0.Extent2D{Width: 800, Height: 600}) {
		t.Errorf("target extent = %+v", h.targets[0].Extent)
	}
}

func TestMinimizedSkipsFrames(t *testing.T) {
	h := newHarness(t)
	h.draw(t)
	h.dev.ClearCalls()

	h.engine.Resize(0, 0)
	if !h.engine.Minimized() {
		t.Fatal("zero-area resize did not minimize")
	}
	for i := 0; i < 3; i++ {
		h.draw(t)
	}
	for _, prefix := range []string{"WaitForFences", "AcquireNextImage", "Submit", "Present", "WaitIdle"} {
		if n := h.dev.Count(prefix); n != 0 {
			t.Errorf("minimized engine made %d %s calls", n, prefix)
		}
	}
	if s := h.engine.Stats(); s.Skipped != 3 || s.Frames != 1 {
		t.Errorf("stats = %+v", s)
	}
	if got := h.engine.CurrentFrame(); got != 1 {
		t.Errorf("current frame moved while minimized: %d", got)
	}

	h.engine.Resize(640, 480)
	if h.engine.Minimized() {
		t.Fatal("non-zero resize left the engine minimized")
	}
	h.draw(t)
	if n := h.dev.Count("Present"); n != 1 {
		t.Errorf("presents after restore = %d, want 1", n)
	}
	if got := h.dev.LastSwapchain().Info.Extent; got != (core1_0.Extent2D{Width: 640, Height: 480}) {
		t.Errorf("swapchain after restore = %+v", got)
	}
	h.closeAndCheckLeaks(t)
}

func TestRecreateDeferredWhileMinimized(t *testing.T) {
	h := newHarness(t)
	h.engine.Resize(0, 0)
	if err := h.engine.Recreate(); err != nil {
		t.Fatal(err)
	}
	if n := h.dev.Count("WaitIdle") + h.dev.Count("CreateSwapchain"); n != 0 {
		t.Fatalf("recreation ran while minimized: %v", h.dev.Calls())
	}

	h.engine.Resize(1024, 768)
	h.draw(t)
	calls := h.dev.Calls()
	create := index(calls, "CreateSwapchain 1024x768", 0)
	acquire := index(calls, "AcquireNextImage", 0)
	if create < 0 || acquire < 0 || create > acquire {
		t.Errorf("deferred recreation did not run before the frame:\n%s", strings.Join(calls, "\n"))
	}
	h.closeAndCheckLeaks(t)
}

func TestAcquireOutOfDate(t *testing.T) {
	h := newHarness(t)
	h.dev.AcquireErrors = []error{gpu.ErrOutOfDate}

	h.draw(t)

	calls := h.dev.Calls()
	for _, prefix := range []string{"Submit", "Present", "ResetFences"} {
		if n := h.dev.Count(prefix); n != 0 {
			t.Errorf("aborted frame made %d %s calls", n, prefix)
		}
	}

	idle := index(calls, "WaitIdle", 0)
	firstFB := index(calls, "Destroy framebuffer", 0)
	lastFB := lastIndex(calls, "Destroy framebuffer")
	firstView := index(calls, "Destroy view", 0)
	lastView := lastIndex(calls, "Destroy view")
	oldChain := index(calls, "Destroy swapchain#0", 0)
	newChain := index(calls, "Create swapchain#1", 0)
	order := []int{idle, firstFB, lastFB, firstView, lastView, oldChain, newChain}
	if slices.Contains(order, -1) || !slices.IsSorted(order) {
		t.Errorf("recreation out of order %v:\n%s", order, strings.Join(calls, "\n"))
	}

	if got := h.engine.CurrentFrame(); got != 0 {
		t.Errorf("aborted frame advanced current frame to %d", got)
	}
	if s := h.engine.Stats(); s.Recreations != 1 || s.Skipped != 1 || s.Frames != 0 {
		t.Errorf("stats = %+v", s)
	}

	h.draw(t)
	if h.dev.Present.Presents != 1 {
		t.Errorf("frame after recreation was not presented")
	}
	h.closeAndCheckLeaks(t)
}

func TestRecreateDeferredWhileSurfaceEmpty(t *testing.T) {
	h := newHarness(t)
	caps := h.dev.Support.Capabilities
	undefined := caps.CurrentExtent

	// The surface reports no area before the window has said it was minimized.
	caps.CurrentExtent = core1_0.Extent2D{}
	h.dev.AcquireErrors = []error{gpu.ErrOutOfDate}

	h.draw(t)
	if h.engine.State() != nil {
		t.Errorf("state = %+v, want none while the surface is empty", h.engine.State())
	}
	h.draw(t)
	if n := h.dev.Count("CreateSwapchain"); n != 0 {
		t.Errorf("created %d swapchains for an empty surface", n)
	}
	if h.dev.Count("Submit") != 0 || h.dev.Count("Present") != 0 {
		t.Error("frame submitted without a swapchain")
	}
	if s := h.engine.Stats(); s.Skipped != 2 || s.Frames != 0 || s.Recreations != 0 {
		t.Errorf("stats = %+v", s)
	}

	caps.CurrentExtent = undefined
	h.dev.ClearCalls()
	h.draw(t)

	if n := h.dev.Count("CreateSwapchain 800x600"); n != 1 {
		t.Errorf("swapchain recreated %d times once the surface grew, want 1", n)
	}
	if h.dev.Present.Presents != 1 {
		t.Errorf("presents = %d, want 1", h.dev.Present.Presents)
	}
	if s := h.engine.Stats(); s.Recreations != 1 || s.Frames != 1 {
		t.Errorf("stats = %+v", s)
	}
	h.closeAndCheckLeaks(t)
}

func TestAcquireSuboptimalReplacesSemaphore(t *testing.T) {
	h := newHarness(t)
	old := h.engine.slots[0].ImageAvailable
	h.dev.AcquireErrors = []error{gpu.ErrSuboptimal}

	h.draw(t)

	if h.engine.slots[0].ImageAvailable == old {
		t.Fatal("signaled semaphore was kept")
	}
	if h.dev.Count("Submit") != 0 || h.dev.Count("Present") != 0 {
		t.Error("suboptimal acquire still submitted the frame")
	}
	calls := h.dev.Calls()
	if idle, destroy := index(calls, "WaitIdle", 0), index(calls, "Destroy semaphore#0", 0); destroy < idle {
		t.Errorf("semaphore destroyed before the device was idle:\n%s", strings.Join(calls, "\n"))
	}

	// Would fail in the fake if the slot still held a signaled semaphore.
	h.draw(t)
	h.draw(t)
	h.closeAndCheckLeaks(t)
}

func TestPresentStaleRecreates(t *testing.T) {
	for _, stale := range []error{gpu.ErrOutOfDate, gpu.ErrSuboptimal} {
		t.Run(stale.Error(), func(t *testing.T) {
			h := newHarness(t)
			h.dev.PresentErrors = []error{errors.Wrap(stale, "present")}

			h.draw(t)

			if got := h.engine.CurrentFrame(); got != 1 {
				t.Errorf("current frame = %d, want 1", got)
			}
			if s := h.engine.Stats(); s.Recreations != 1 || s.Frames != 1 {
				t.Errorf("stats = %+v", s)
			}
			if h.dev.Count("Create swapchain#1") != 1 {
				t.Errorf("swapchain not recreated")
			}
			h.draw(t)
			h.closeAndCheckLeaks(t)
		})
	}
}

func TestResizeFlagRecreatesAfterPresent(t *testing.T) {
	h := newHarness(t)
	h.engine.Resize(1280, 720)

	h.draw(t)

	calls := h.dev.Calls()
	present := index(calls, "Present", 0)
	create := index(calls, "CreateSwapchain 1280x720", 0)
	if present < 0 || create < present {
		t.Errorf("resize did not recreate after present:\n%s", strings.Join(calls, "\n"))
	}
	if h.dev.Present.Presents != 1 {
		t.Errorf("frame not presented")
	}

	h.dev.ClearCalls()
	h.draw(t)
	if n := h.dev.Count("CreateSwapchain"); n != 0 {
		t.Errorf("resize flag was not consumed")
	}
	h.closeAndCheckLeaks(t)
}

func TestFatalErrors(t *testing.T) {
	lost := errors.New("lost")
	tests := []struct {
		name  string
		setup func(*harness)
		want  error
	}{
		{"fence wait", func(h *harness) { h.dev.WaitErr = lost }, lost},
		{"acquire", func(h *harness) { h.dev.AcquireErrors = []error{gpu.ErrDeviceLost} }, gpu.ErrDeviceLost},
		{"submit", func(h *harness) { h.dev.SubmitErr = lost }, lost},
		{"present", func(h *harness) { h.dev.PresentErrors = []error{gpu.ErrDeviceLost} }, gpu.ErrDeviceLost},
		{"record", func(h *harness) { h.failRec = lost }, lost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)
			err := h.engine.Draw()
			if !errors.Is(err, tt.want) {
				t.Fatalf("Draw() = %v, want %v", err, tt.want)
			}
			if h.engine.Stats().Recreations != 0 {
				t.Error("fatal error triggered recreation")
			}
		})
	}
}

func TestDrawStopsAfterFatalError(t *testing.T) {
	h := newHarness(t)
	lost := errors.New("lost")
	h.dev.SubmitErr = lost

	if err := h.engine.Draw(); !errors.Is(err, lost) {
		t.Fatalf("Draw() = %v, want %v", err, lost)
	}

	// The slot's fence was reset and never submitted, so waiting on it again
	// would never return.
	h.dev.SubmitErr = nil
	h.dev.ClearCalls()
	for i := 0; i < 2; i++ {
		if err := h.engine.Draw(); !errors.Is(err, lost) {
			t.Fatalf("Draw() after failure = %v, want %v", err, lost)
		}
	}
	if calls := h.dev.Calls(); len(calls) != 0 {
		t.Errorf("failed engine kept drawing:\n%s", strings.Join(calls, "\n"))
	}
	if s := h.engine.Stats(); s.Frames != 0 {
		t.Errorf("stats = %+v", s)
	}
	h.closeAndCheckLeaks(t)
}

func TestRecordFailureSkipsSubmit(t *testing.T) {
	h := newHarness(t)
	h.failRec = errors.New("record")
	if err := h.engine.Draw(); err == nil {
		t.Fatal("Draw succeeded")
	}
	if h.dev.Count("Submit") != 0 || h.dev.Count("Present") != 0 {
		t.Error("failed recording was submitted")
	}
}

func TestRecreateFormatChange(t *testing.T) {
	h := newHarness(t)
	h.dev.Support.Formats = []khr_surface.SurfaceFormat{
		{Format: core1_0.FormatR8G8B8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
	}
	if err := h.engine.Recreate(); !errors.Is(err, ErrSurfaceFormatChanged) {
		t.Fatalf("Recreate() = %v, want ErrSurfaceFormatChanged", err)
	}
	h.closeAndCheckLeaks(t)
}

func TestRecreateTwiceLeaksNothing(t *testing.T) {
	h := newHarness(t)
	h.draw(t)
	for i := 0; i < 2; i++ {
		if err := h.engine.Recreate(); err != nil {
			t.Fatal(err)
		}
	}
	state := h.engine.State()
	if state.Extent != (core1_0.Extent2D{Width: 800, Height: 600}) || state.Format != swapchain.PreferredFormat {
		t.Errorf("state after recreation = %+v", state)
	}
	if creates, destroys := h.dev.Count("Create swapchain"), h.dev.Count("Destroy swapchain"); creates != 2 || destroys != 2 {
		t.Errorf("swapchain creates %d destroys %d", creates, destroys)
	}
	if n := h.dev.Count("Create fence") + h.dev.Count("Create semaphore") + h.dev.Count("Create cmd"); n != 0 {
		t.Errorf("recreation reallocated %d sync objects", n)
	}
	h.closeAndCheckLeaks(t)
}

func TestClose(t *testing.T) {
	h := newHarness(t)
	h.draw(t)
	h.dev.ClearCalls()

	if err := h.engine.Close(); err != nil {
		t.Fatal(err)
	}

	calls := h.dev.Calls()
	idle := index(calls, "WaitIdle", 0)
	lastFence := lastIndex(calls, "Destroy fence")
	pool := index(calls, "Destroy pool", 0)
	fb := index(calls, "Destroy framebuffer", 0)
	chain := index(calls, "Destroy swapchain", 0)
	order := []int{idle, lastFence, pool, fb, chain}
	if slices.Contains(order, -1) || !slices.IsSorted(order) {
		t.Errorf("close out of order %v:\n%s", order, strings.Join(calls, "\n"))
	}

	if err := h.engine.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := h.engine.Draw(); !errors.Is(err, ErrClosed) {
		t.Errorf("Draw after Close = %v", err)
	}

	h.manager.RenderPass.Destroy()
	if live := h.dev.Live(); len(live) != 0 {
		t.Errorf("leaked %v", live)
	}
}
