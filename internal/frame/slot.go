package frame

import (
	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/quad/internal/gpu"
)

// Slot holds the objects one frame in flight uses. InFlight guards all of
// them: nothing in a slot is touched until the GPU signaled it.
type Slot struct {
	Commands       gpu.CommandBuffer
	ImageAvailable gpu.Semaphore
	RenderFinished gpu.Semaphore
	InFlight       gpu.Fence
}

// newSlots allocates count slots from pool. Every handle is registered with
// arena, so a failure part way through is cleaned up by the caller releasing it.
func newSlots(device gpu.Device, pool gpu.CommandPool, count int, arena *gpu.Arena) ([]*Slot, error) {
	buffers, err := pool.Allocate(count)
	if err != nil {
		return nil, errors.Wrap(err, "allocate command buffers")
	}
	arena.Defer(func() { pool.Free(buffers...) })

	slots := make([]*Slot, count)
	for i := range slots {
		slot := &Slot{Commands: buffers[i]}
		slots[i] = slot

		if slot.ImageAvailable, err = device.CreateSemaphore(); err != nil {
			return nil, errors.Wrapf(err, "create image available semaphore %d", i)
		}
		arena.Defer(func() { slot.ImageAvailable.Destroy() })

		if slot.RenderFinished, err = device.CreateSemaphore(); err != nil {
			return nil, errors.Wrapf(err, "create render finished semaphore %d", i)
		}
		arena.Defer(func() { slot.RenderFinished.Destroy() })

		// Signaled so the first wait on a fresh slot returns immediately.
		if slot.InFlight, err = device.CreateFence(true); err != nil {
			return nil, errors.Wrapf(err, "create in flight fence %d", i)
		}
		arena.Defer(func() { slot.InFlight.Destroy() })
	}
	return slots, nil
}
