package vkdevice

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/quad/internal/gpu"
)

type fence struct {
	device *Device
	handle core1_0.Fence
}

func (f *fence) Destroy() {
	f.device.deviceDriver.DestroyFence(f.handle, nil)
}

type semaphore struct {
	device *Device
	handle core1_0.Semaphore
}

func (s *semaphore) Destroy() {
	s.device.deviceDriver.DestroySemaphore(s.handle, nil)
}

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	var flags core1_0.FenceCreateFlags
	if signaled {
		flags = core1_0.FenceCreateSignaled
	}

	handle, _, err := d.deviceDriver.CreateFence(nil, core1_0.FenceCreateInfo{Flags: flags})
	if err != nil {
		return nil, errors.Wrap(err, "create fence")
	}
	return &fence{device: d, handle: handle}, nil
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	handle, _, err := d.deviceDriver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return nil, errors.Wrap(err, "create semaphore")
	}
	return &semaphore{device: d, handle: handle}, nil
}

func (d *Device) WaitForFences(t time.Duration, fences ...gpu.Fence) error {
	handles := fenceHandles(fences)
	if len(handles) == 0 {
		return nil
	}
	res, err := d.deviceDriver.WaitForFences(true, timeout(t), handles...)
	return checkResult(res, err, "wait for fences")
}

func (d *Device) ResetFences(fences ...gpu.Fence) error {
	handles := fenceHandles(fences)
	if len(handles) == 0 {
		return nil
	}
	res, err := d.deviceDriver.ResetFences(handles...)
	return checkResult(res, err, "reset fences")
}

func fenceHandles(fences []gpu.Fence) []core1_0.Fence {
	handles := make([]core1_0.Fence, 0, len(fences))
	for _, f := range fences {
		if f != nil {
			handles = append(handles, f.(*fence).handle)
		}
	}
	return handles
}

func semaphoreHandles(semaphores []gpu.Semaphore) []core1_0.Semaphore {
	handles := make([]core1_0.Semaphore, 0, len(semaphores))
	for _, s := range semaphores {
		handles = append(handles, s.(*semaphore).handle)
	}
	return handles
}

type queue struct {
	device *Device
	name   string
	handle core1_0.Queue
}

func (q *queue) Submit(info gpu.SubmitInfo) error {
	if err := info.Validate(); err != nil {
		return err
	}

	buffers := make([]core1_0.CommandBuffer, 0, len(info.CommandBuffers))
	for _, cb := range info.CommandBuffers {
		buffers = append(buffers, cb.(*commandBuffer).handle)
	}

	var signal *core1_0.Fence
	if info.Fence != nil {
		handle := info.Fence.(*fence).handle
		signal = &handle
	}

	res, err := q.device.deviceDriver.QueueSubmit(q.handle, signal, core1_0.SubmitInfo{
		WaitSemaphores:   semaphoreHandles(info.WaitSemaphores),
		WaitDstStageMask: info.WaitStages,
		CommandBuffers:   buffers,
		SignalSemaphores: semaphoreHandles(info.SignalSemaphores),
	})
	return checkResult(res, err, "submit to "+q.name+" queue")
}

func (q *queue) WaitIdle() error {
	res, err := q.device.deviceDriver.QueueWaitIdle(q.handle)
	return checkResult(res, err, "wait for "+q.name+" queue idle")
}

func (q *queue) Present(info gpu.PresentInfo) error {
	if err := info.Validate(); err != nil {
		return err
	}

	res, err := q.device.swapchainExtension.QueuePresent(q.handle, khr_swapchain.PresentInfo{
		WaitSemaphores: semaphoreHandles(info.WaitSemaphores),
		Swapchains:     []khr_swapchain.Swapchain{info.Swapchain.(*swapchain).handle},
		ImageIndices:   []int{info.ImageIndex},
	})
	return checkResult(res, err, "present")
}
