package vkdevice

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/quad/internal/gpu"
)

type commandPool struct {
	device *Device
	handle core1_0.CommandPool
}

func (d *Device) CreateCommandPool(queueFamily int) (gpu.CommandPool, error) {
	handle, _, err := d.deviceDriver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateResetBuffer,
		QueueFamilyIndex: queueFamily,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create command pool for family %d", queueFamily)
	}
	return &commandPool{device: d, handle: handle}, nil
}

func (p *commandPool) Destroy() {
	p.device.deviceDriver.DestroyCommandPool(p.handle, nil)
}

func (p *commandPool) Allocate(count int) ([]gpu.CommandBuffer, error) {
	handles, _, err := p.device.deviceDriver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        p.handle,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "allocate %d command buffers", count)
	}

	buffers := make([]gpu.CommandBuffer, 0, len(handles))
	for _, handle := range handles {
		buffers = append(buffers, &commandBuffer{device: p.device, handle: handle})
	}
	return buffers, nil
}

func (p *commandPool) Free(buffers ...gpu.CommandBuffer) {
	handles := make([]core1_0.CommandBuffer, 0, len(buffers))
	for _, cb := range buffers {
		handles = append(handles, cb.(*commandBuffer).handle)
	}
	if len(handles) > 0 {
		p.device.deviceDriver.FreeCommandBuffers(handles...)
	}
}

type commandBuffer struct {
	device *Device
	handle core1_0.CommandBuffer
}

func (c *commandBuffer) driver() core1_0.CoreDeviceDriver {
	return c.device.deviceDriver
}

func (c *commandBuffer) Begin(flags core1_0.CommandBufferUsageFlags) error {
	_, err := c.driver().BeginCommandBuffer(c.handle, core1_0.CommandBufferBeginInfo{Flags: flags})
	return errors.Wrap(err, "begin command buffer")
}

func (c *commandBuffer) End() error {
	_, err := c.driver().EndCommandBuffer(c.handle)
	return errors.Wrap(err, "end command buffer")
}

func (c *commandBuffer) Reset() error {
	_, err := c.driver().ResetCommandBuffer(c.handle, 0)
	return errors.Wrap(err, "reset command buffer")
}

func (c *commandBuffer) BeginRenderPass(begin gpu.RenderPassBegin) error {
	err := c.driver().CmdBeginRenderPass(c.handle, core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  begin.RenderPass.(*renderPass).handle,
			Framebuffer: begin.Framebuffer.(*framebuffer).handle,
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: begin.Extent,
			},
			ClearValues: []core1_0.ClearValue{
				core1_0.ClearValueFloat(begin.ClearColor),
			},
		})
	return errors.Wrap(err, "begin render pass")
}

func (c *commandBuffer) EndRenderPass() {
	c.driver().CmdEndRenderPass(c.handle)
}

func (c *commandBuffer) BindPipeline(pipeline gpu.Pipeline) {
	c.driver().CmdBindPipeline(c.handle, core1_0.PipelineBindPointGraphics, pipeline.(*graphicsPipeline).handle)
}

func (c *commandBuffer) SetViewport(viewport core1_0.Viewport) {
	c.driver().CmdSetViewport(c.handle, viewport)
}

func (c *commandBuffer) SetScissor(scissor core1_0.Rect2D) {
	c.driver().CmdSetScissor(c.handle, scissor)
}

func (c *commandBuffer) BindVertexBuffers(buffers ...gpu.Buffer) {
	handles := make([]core1_0.Buffer, 0, len(buffers))
	offsets := make([]int, 0, len(buffers))
	for _, b := range buffers {
		handles = append(handles, b.(*buffer).handle)
		offsets = append(offsets, 0)
	}
	c.driver().CmdBindVertexBuffers(c.handle, 0, handles, offsets)
}

func (c *commandBuffer) BindIndexBuffer(b gpu.Buffer, indexType core1_0.IndexType) {
	c.driver().CmdBindIndexBuffer(c.handle, b.(*buffer).handle, 0, indexType)
}

func (c *commandBuffer) BindDescriptorSets(layout gpu.PipelineLayout, sets ...gpu.DescriptorSet) {
	handles := make([]core1_0.DescriptorSet, 0, len(sets))
	for _, set := range sets {
		handles = append(handles, set.(core1_0.DescriptorSet))
	}
	c.driver().CmdBindDescriptorSets(c.handle, core1_0.PipelineBindPointGraphics, layout.(*pipelineLayout).handle, 0, handles, nil)
}

func (c *commandBuffer) PushConstants(layout gpu.PipelineLayout, stages core1_0.ShaderStageFlags, data []byte) {
	c.driver().CmdPushConstants(c.handle, layout.(*pipelineLayout).handle, stages, 0, data)
}

func (c *commandBuffer) Draw(vertexCount int) {
	c.driver().CmdDraw(c.handle, vertexCount, 1, 0, 0)
}

func (c *commandBuffer) DrawIndexed(indexCount int) {
	c.driver().CmdDrawIndexed(c.handle, indexCount, 1, 0, 0, 0)
}

func (c *commandBuffer) CopyBuffer(src, dst gpu.Buffer, size int) error {
	err := c.driver().CmdCopyBuffer(c.handle, src.(*buffer).handle, dst.(*buffer).handle,
		core1_0.BufferCopy{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      size,
		},
	)
	return errors.Wrap(err, "copy buffer")
}

func (c *commandBuffer) CopyBufferToImage(src gpu.Buffer, dst gpu.Image, width, height int) error {
	err := c.driver().CmdCopyBufferToImage(c.handle, src.(*buffer).handle, dst.(*image).handle, core1_0.ImageLayoutTransferDstOptimal,
		core1_0.BufferImageCopy{
			BufferOffset:      0,
			BufferRowLength:   0,
			BufferImageHeight: 0,

			ImageSubresource: core1_0.ImageSubresourceLayers{
				AspectMask:     core1_0.ImageAspectColor,
				MipLevel:       0,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			ImageOffset: core1_0.Offset3D{X: 0, Y: 0, Z: 0},
			ImageExtent: core1_0.Extent3D{Width: width, Height: height, Depth: 1},
		},
	)
	return errors.Wrap(err, "copy buffer to image")
}

func (c *commandBuffer) PipelineBarrier(barrier gpu.ImageBarrier) error {
	err := c.driver().CmdPipelineBarrier(c.handle, barrier.SrcStage, barrier.DstStage, 0, nil, nil, []core1_0.ImageMemoryBarrier{
		{
			OldLayout:           barrier.OldLayout,
			NewLayout:           barrier.NewLayout,
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               barrier.Image.(*image).handle,
			SubresourceRange:    colorRange,
			SrcAccessMask:       barrier.SrcAccess,
			DstAccessMask:       barrier.DstAccess,
		},
	})
	return errors.Wrap(err, "pipeline barrier")
}
