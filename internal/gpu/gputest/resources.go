package gputest

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/quad/internal/gpu"
)

type Memory struct {
	handle
	TypeIndex int
	Flags     core1_0.MemoryPropertyFlags
	Data      []byte
}

func (m *Memory) Write(offset int, data []byte) error {
	if m.Flags&core1_0.MemoryPropertyHostVisible == 0 {
		return errors.Newf("gputest: %s is not host visible", m.name)
	}
	if offset < 0 || offset+len(data) > len(m.Data) {
		return errors.Newf("gputest: write of %d bytes at %d overflows %s (%d bytes)", len(data), offset, m.name, len(m.Data))
	}
	copy(m.Data[offset:], data)
	m.dev.record("Write %s %d", m.name, len(data))
	return nil
}

type Buffer struct {
	handle
	Info   gpu.BufferCreateInfo
	Memory *Memory
}

func (b *Buffer) MemoryRequirements() core1_0.MemoryRequirements {
	return core1_0.MemoryRequirements{Size: b.Info.Size, MemoryTypeBits: b.dev.TypeBits}
}

func (b *Buffer) BindMemory(memory gpu.Memory) error {
	b.Memory = memory.(*Memory)
	b.dev.record("Bind %s %s", b.name, b.Memory.name)
	return nil
}

// Contents returns the bytes of the memory bound to the buffer.
func (b *Buffer) Contents() []byte {
	if b.Memory == nil {
		return nil
	}
	return b.Memory.Data[:b.Info.Size]
}

type Image struct {
	dev         *Device
	name        string
	presentable bool
	Info        gpu.ImageCreateInfo
	Memory      *Memory
	Layout      core1_0.ImageLayout
	Pixels      []byte
}

func (i *Image) Name() string { return i.name }

func (i *Image) Destroy() {
	if i.presentable {
		return
	}
	handle{dev: i.dev, name: i.name}.Destroy()
}

func (i *Image) MemoryRequirements() core1_0.MemoryRequirements {
	return core1_0.MemoryRequirements{Size: i.Info.Width * i.Info.Height * 4, MemoryTypeBits: i.dev.TypeBits}
}

func (i *Image) BindMemory(memory gpu.Memory) error {
	if i.presentable {
		return errors.New("gputest: presentable images own their memory")
	}
	i.Memory = memory.(*Memory)
	return nil
}

type RenderPass struct {
	handle
	Info core1_0.RenderPassCreateInfo
}

type Swapchain struct {
	handle
	Info   gpu.SwapchainCreateInfo
	images []*Image
	next   int
}

func (s *Swapchain) Images() ([]gpu.Image, error) {
	out := make([]gpu.Image, 0, len(s.images))
	for _, img := range s.images {
		out = append(out, img)
	}
	return out, nil
}

func (s *Swapchain) AcquireNextImage(timeout time.Duration, signal gpu.Semaphore) (int, error) {
	d := s.dev
	d.record("AcquireNextImage %s", s.name)

	var result error
	if len(d.AcquireErrors) > 0 {
		result = d.AcquireErrors[0]
		d.AcquireErrors = d.AcquireErrors[1:]
	}
	if result != nil && !errors.Is(result, gpu.ErrSuboptimal) {
		return -1, result
	}

	sem := signal.(*Semaphore)
	if sem.Signaled {
		return -1, errors.Newf("gputest: acquire signals %s which is already signaled", sem.name)
	}
	sem.Signaled = true

	idx := s.next % len(s.images)
	s.next++
	return idx, result
}

type CommandPool struct {
	handle
	Family  int
	buffers []*CommandBuffer
}

func (p *CommandPool) Allocate(count int) ([]gpu.CommandBuffer, error) {
	if err := p.dev.fail("Allocate"); err != nil {
		return nil, err
	}
	out := make([]gpu.CommandBuffer, 0, count)
	for i := 0; i < count; i++ {
		cb := &CommandBuffer{handle: p.dev.newHandle("cmd"), pool: p}
		p.buffers = append(p.buffers, cb)
		out = append(out, cb)
	}
	return out, nil
}

func (p *CommandPool) Free(buffers ...gpu.CommandBuffer) {
	for _, b := range buffers {
		cb := b.(*CommandBuffer)
		if cb.pending != nil {
			panic(fmt.Sprintf("gputest: %s freed while its batch is pending", cb.name))
		}
		cb.handle.Destroy()
		cb.freed = true
	}
}

func (p *CommandPool) Destroy() {
	for _, cb := range p.buffers {
		if !cb.freed {
			cb.freed = true
			p.dev.live[cb.name] = false
		}
	}
	p.handle.Destroy()
}

// CommandBuffer keeps the list of recorded commands in Log.
type CommandBuffer struct {
	handle
	pool      *CommandPool
	recording bool
	pending   *Fence
	freed     bool
	ops       []func() error
	Log       []string
	// FailOn makes the named recording call return an error.
	FailOn string
}

func (c *CommandBuffer) cmd(op string, args ...any) {
	entry := op
	if len(args) > 0 {
		parts := make([]string, 0, len(args))
		for _, a := range args {
			parts = append(parts, fmt.Sprint(a))
		}
		entry = op + " " + strings.Join(parts, " ")
	}
	c.Log = append(c.Log, entry)
	c.dev.record("%s.%s", c.name, entry)
}

func (c *CommandBuffer) failing(op string) error {
	if c.FailOn == op {
		return errors.Newf("gputest: %s failed on %s", op, c.name)
	}
	return nil
}

func (c *CommandBuffer) Begin(flags core1_0.CommandBufferUsageFlags) error {
	if c.pending != nil {
		return errors.Newf("gputest: %s begun while the GPU may still read it", c.name)
	}
	if c.recording {
		return errors.Newf("gputest: %s already recording", c.name)
	}
	if err := c.failing("Begin"); err != nil {
		return err
	}
	c.Log = nil
	c.ops = nil
	c.recording = true
	c.cmd("Begin")
	return nil
}

func (c *CommandBuffer) End() error {
	if !c.recording {
		return errors.Newf("gputest: %s ended without begin", c.name)
	}
	if err := c.failing("End"); err != nil {
		return err
	}
	c.recording = false
	c.cmd("End")
	return nil
}

func (c *CommandBuffer) Reset() error {
	if c.pending != nil {
		return errors.Newf("gputest: %s reset while the GPU may still read it", c.name)
	}
	c.recording = false
	c.ops = nil
	c.Log = nil
	c.dev.record("%s.Reset", c.name)
	return nil
}

func (c *CommandBuffer) BeginRenderPass(begin gpu.RenderPassBegin) error {
	if err := c.failing("BeginRenderPass"); err != nil {
		return err
	}
	c.cmd("BeginRenderPass", nameOf(begin.Framebuffer), fmt.Sprintf("%dx%d", begin.Extent.Width, begin.Extent.Height))
	return nil
}

func (c *CommandBuffer) EndRenderPass() { c.cmd("EndRenderPass") }

func (c *CommandBuffer) BindPipeline(pipeline gpu.Pipeline) { c.cmd("BindPipeline", nameOf(pipeline)) }

func (c *CommandBuffer) SetViewport(viewport core1_0.Viewport) {
	c.cmd("SetViewport", fmt.Sprintf("%gx%g", viewport.Width, viewport.Height))
}

func (c *CommandBuffer) SetScissor(scissor core1_0.Rect2D) {
	c.cmd("SetScissor", fmt.Sprintf("%dx%d", scissor.Extent.Width, scissor.Extent.Height))
}

func (c *CommandBuffer) BindVertexBuffers(buffers ...gpu.Buffer) {
	names := make([]string, 0, len(buffers))
	for _, b := range buffers {
		names = append(names, nameOf(b))
	}
	c.cmd("BindVertexBuffers", strings.Join(names, ","))
}

func (c *CommandBuffer) BindIndexBuffer(buffer gpu.Buffer, indexType core1_0.IndexType) {
	c.cmd("BindIndexBuffer", nameOf(buffer))
}

func (c *CommandBuffer) BindDescriptorSets(layout gpu.PipelineLayout, sets ...gpu.DescriptorSet) {
	c.cmd("BindDescriptorSets", len(sets))
}

func (c *CommandBuffer) PushConstants(layout gpu.PipelineLayout, stages core1_0.ShaderStageFlags, data []byte) {
	c.cmd("PushConstants", len(data))
}

func (c *CommandBuffer) Draw(vertexCount int) { c.cmd("Draw", vertexCount) }

func (c *CommandBuffer) DrawIndexed(indexCount int) { c.cmd("DrawIndexed", indexCount) }

func (c *CommandBuffer) CopyBuffer(src, dst gpu.Buffer, size int) error {
	if err := c.failing("CopyBuffer"); err != nil {
		return err
	}
	c.cmd("CopyBuffer", nameOf(src), nameOf(dst), size)
	s, d := src.(*Buffer), dst.(*Buffer)
	c.ops = append(c.ops, func() error {
		if s.Memory == nil || d.Memory == nil {
			return errors.New("gputest: copy between unbound buffers")
		}
		copy(d.Memory.Data[:size], s.Memory.Data[:size])
		return nil
	})
	return nil
}

func (c *CommandBuffer) CopyBufferToImage(src gpu.Buffer, dst gpu.Image, width, height int) error {
	if err := c.failing("CopyBufferToImage"); err != nil {
		return err
	}
	c.cmd("CopyBufferToImage", nameOf(src), nameOf(dst), fmt.Sprintf("%dx%d", width, height))
	s, img := src.(*Buffer), dst.(*Image)
	c.ops = append(c.ops, func() error {
		if img.Layout != core1_0.ImageLayoutTransferDstOptimal {
			return errors.Newf("gputest: copy into %s in layout %d", img.name, img.Layout)
		}
		img.Pixels = append([]byte(nil), s.Memory.Data[:width*height*4]...)
		return nil
	})
	return nil
}

func (c *CommandBuffer) PipelineBarrier(barrier gpu.ImageBarrier) error {
	if err := c.failing("PipelineBarrier"); err != nil {
		return err
	}
	c.cmd("PipelineBarrier", nameOf(barrier.Image), barrier.OldLayout, barrier.NewLayout)
	img := barrier.Image.(*Image)
	c.ops = append(c.ops, func() error {
		if img.Layout != barrier.OldLayout {
			return errors.Newf("gputest: %s is in layout %d, barrier expects %d", img.name, img.Layout, barrier.OldLayout)
		}
		img.Layout = barrier.NewLayout
		return nil
	})
	return nil
}

type Queue struct {
	dev  *Device
	name string
	seen []*CommandBuffer
	// Submits counts successful submissions.
	Submits int
	// Presents counts present calls, including those that reported a stale swapchain.
	Presents int
}

func (q *Queue) Submit(info gpu.SubmitInfo) error {
	d := q.dev
	names := make([]string, 0, len(info.CommandBuffers))
	for _, b := range info.CommandBuffers {
		names = append(names, nameOf(b))
	}
	d.record("Submit %s %s", q.name, strings.Join(names, ","))

	if err := info.Validate(); err != nil {
		return err
	}
	if d.SubmitErr != nil {
		return d.SubmitErr
	}
	for _, w := range info.WaitSemaphores {
		sem := w.(*Semaphore)
		if !sem.Signaled {
			return errors.Newf("gputest: submit waits on %s which nothing signals", sem.name)
		}
		sem.Signaled = false
	}

	var fence *Fence
	if info.Fence != nil {
		fence = info.Fence.(*Fence)
		if fence.Signaled {
			return errors.Newf("gputest: submit with signaled %s", fence.name)
		}
	}

	for _, b := range info.CommandBuffers {
		cb := b.(*CommandBuffer)
		if cb.recording {
			return errors.Newf("gputest: submitted %s is still recording", cb.name)
		}
		for _, op := range cb.ops {
			if err := op(); err != nil {
				return err
			}
		}
		cb.pending = fence
		q.seen = append(q.seen, cb)
	}

	for _, s := range info.SignalSemaphores {
		sem := s.(*Semaphore)
		if sem.Signaled {
			return errors.Newf("gputest: submit signals %s which is already signaled", sem.name)
		}
		sem.Signaled = true
	}
	if fence != nil {
		fence.Signaled = true
	}
	q.Submits++
	return nil
}

func (q *Queue) WaitIdle() error {
	q.dev.record("QueueWaitIdle %s", q.name)
	for _, cb := range q.seen {
		cb.pending = nil
	}
	return nil
}

func (q *Queue) Present(info gpu.PresentInfo) error {
	d := q.dev
	d.record("Present %s %d", q.name, info.ImageIndex)
	q.Presents++
	if err := info.Validate(); err != nil {
		return err
	}
	for _, w := range info.WaitSemaphores {
		sem := w.(*Semaphore)
		if !sem.Signaled {
			return errors.Newf("gputest: present waits on %s which nothing signals", sem.name)
		}
		sem.Signaled = false
	}
	if len(d.PresentErrors) > 0 {
		err := d.PresentErrors[0]
		d.PresentErrors = d.PresentErrors[1:]
		return err
	}
	return nil
}
