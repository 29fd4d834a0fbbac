package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

type SubmitInfo struct {
	WaitSemaphores   []Semaphore
	WaitStages       []core1_0.PipelineStageFlags
	CommandBuffers   []CommandBuffer
	SignalSemaphores []Semaphore
	// Fence is signaled once every command buffer in the batch completed. May be nil.
	Fence Fence
}

func (s SubmitInfo) Validate() error {
	if len(s.WaitSemaphores) != len(s.WaitStages) {
		return errors.Newf("submit: %d wait semaphores but %d wait stages", len(s.WaitSemaphores), len(s.WaitStages))
	}
	for i, stage := range s.WaitStages {
		if stage == 0 {
			return errors.Newf("submit: wait stage %d is empty", i)
		}
	}
	return nil
}

type PresentInfo struct {
	WaitSemaphores []Semaphore
	Swapchain      Swapchain
	ImageIndex     int
}

func (p PresentInfo) Validate() error {
	if p.Swapchain == nil {
		return errors.New("present: no swapchain")
	}
	if p.ImageIndex < 0 {
		return errors.Newf("present: invalid image index %d", p.ImageIndex)
	}
	return nil
}
