// Package commands writes the per-frame draw into a command buffer.
package commands

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/quad/internal/gpu"
)

// Target is where a frame is drawn: one swapchain framebuffer and its extent.
type Target struct {
	RenderPass  gpu.RenderPass
	Framebuffer gpu.Framebuffer
	Extent      core1_0.Extent2D
}

// Scene is what gets drawn. IndexBuffer is optional; without it VertexCount
// vertices are drawn directly. DescriptorSet and PushConstants are optional
// as well.
type Scene struct {
	Pipeline gpu.Pipeline
	Layout   gpu.PipelineLayout

	VertexBuffer gpu.Buffer
	VertexCount  int
	IndexBuffer  gpu.Buffer
	IndexCount   int

	DescriptorSet gpu.DescriptorSet
	PushConstants []byte
	PushStages    core1_0.ShaderStageFlags
}

func (s Scene) Validate() error {
	if s.Pipeline == nil {
		return errors.New("scene has no pipeline")
	}
	if s.VertexBuffer == nil {
		return errors.New("scene has no vertex buffer")
	}
	if s.IndexBuffer != nil && s.IndexCount <= 0 {
		return errors.Newf("scene has an index buffer but %d indices", s.IndexCount)
	}
	if s.IndexBuffer == nil && s.VertexCount <= 0 {
		return errors.Newf("scene has %d vertices", s.VertexCount)
	}
	if (s.DescriptorSet != nil || len(s.PushConstants) > 0) && s.Layout == nil {
		return errors.New("scene binds resources without a pipeline layout")
	}
	if len(s.PushConstants)%4 != 0 {
		return errors.Newf("push constant size %d is not a multiple of 4", len(s.PushConstants))
	}
	return nil
}

// Recorder records one render pass that clears to ClearColor and draws a
// Scene. It keeps no state between calls.
type Recorder struct {
	ClearColor [4]float32
}

// Record writes the frame into cb. The first failing step ends the recording
// and its error is returned; the caller throws the attempt away.
func (r Recorder) Record(cb gpu.CommandBuffer, target Target, scene Scene) error {
	if err := scene.Validate(); err != nil {
		return err
	}

	if err := cb.Begin(core1_0.CommandBufferUsageSimultaneousUse); err != nil {
		return errors.Wrap(err, "begin recording command buffer")
	}

	err := cb.BeginRenderPass(gpu.RenderPassBegin{
		RenderPass:  target.RenderPass,
		Framebuffer: target.Framebuffer,
		Extent:      target.Extent,
		ClearColor:  r.ClearColor,
	})
	if err != nil {
		return errors.Wrap(err, "begin render pass")
	}

	cb.BindPipeline(scene.Pipeline)
	cb.SetViewport(core1_0.Viewport{
		Width:    float32(target.Extent.Width),
		Height:   float32(target.Extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	})
	cb.SetScissor(core1_0.Rect2D{
		Offset: core1_0.Offset2D{X: 0, Y: 0},
		Extent: target.Extent,
	})

	cb.BindVertexBuffers(scene.VertexBuffer)
	if scene.IndexBuffer != nil {
		cb.BindIndexBuffer(scene.IndexBuffer, core1_0.IndexTypeUInt16)
	}
	if scene.DescriptorSet != nil {
		cb.BindDescriptorSets(scene.Layout, scene.DescriptorSet)
	}
	if len(scene.PushConstants) > 0 {
		cb.PushConstants(scene.Layout, scene.PushStages, scene.PushConstants)
	}

	if scene.IndexBuffer != nil {
		cb.DrawIndexed(scene.IndexCount)
	} else {
		cb.Draw(scene.VertexCount)
	}

	cb.EndRenderPass()

	if err := cb.End(); err != nil {
		return errors.Wrap(err, "end recording command buffer")
	}
	return nil
}
