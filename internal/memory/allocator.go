package memory

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/quad/internal/gpu"
)

// TextureFormat is the pixel layout UploadTexture expects: tightly packed
// 8-bit RGBA.
const TextureFormat = core1_0.FormatR8G8B8A8SRGB

// Submitter pairs a queue with a command pool from the same family for
// one-off command buffers.
type Submitter struct {
	Queue  gpu.Queue
	Pool   gpu.CommandPool
	Family int
}

// Immediate records a one-time-submit command buffer, submits it and blocks
// until the queue is idle. The command buffer is freed before returning.
func (s Submitter) Immediate(record func(gpu.CommandBuffer) error) error {
	buffers, err := s.Pool.Allocate(1)
	if err != nil {
		return errors.Wrap(err, "allocate command buffer")
	}
	cb := buffers[0]
	defer s.Pool.Free(cb)

	if err := cb.Begin(core1_0.CommandBufferUsageOneTimeSubmit); err != nil {
		return errors.Wrap(err, "begin command buffer")
	}
	if err := record(cb); err != nil {
		return err
	}
	if err := cb.End(); err != nil {
		return errors.Wrap(err, "end command buffer")
	}

	if err := s.Queue.Submit(gpu.SubmitInfo{CommandBuffers: []gpu.CommandBuffer{cb}}); err != nil {
		return errors.Wrap(err, "submit")
	}
	return errors.Wrap(s.Queue.WaitIdle(), "wait for queue idle")
}

// Allocator owns the command pools used for uploads.
type Allocator struct {
	device   gpu.Device
	memProps *core1_0.PhysicalDeviceMemoryProperties
	logger   *slog.Logger

	transfer Submitter
	graphics Submitter
}

// NewAllocator creates a command pool on the transfer family for buffer
// uploads and one on the graphics family for image layout transitions.
func NewAllocator(device gpu.Device, logger *slog.Logger) (*Allocator, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	families := device.QueueFamilies()
	if err := families.Validate(); err != nil {
		return nil, err
	}

	a := &Allocator{
		device:   device,
		memProps: device.MemoryProperties(),
		logger:   logger,
	}

	graphicsPool, err := device.CreateCommandPool(*families.Graphics)
	if err != nil {
		return nil, errors.Wrap(err, "create graphics upload pool")
	}
	a.graphics = Submitter{Queue: device.GraphicsQueue(), Pool: graphicsPool, Family: *families.Graphics}

	transferPool, err := device.CreateCommandPool(*families.Transfer)
	if err != nil {
		graphicsPool.Destroy()
		return nil, errors.Wrap(err, "create transfer upload pool")
	}
	a.transfer = Submitter{Queue: device.TransferQueue(), Pool: transferPool, Family: *families.Transfer}

	return a, nil
}

func (a *Allocator) Destroy() {
	if a.transfer.Pool != nil {
		a.transfer.Pool.Destroy()
		a.transfer.Pool = nil
	}
	if a.graphics.Pool != nil {
		a.graphics.Pool.Destroy()
		a.graphics.Pool = nil
	}
}

// CreateBuffer creates a buffer and binds fresh memory with the requested
// properties to it. families lists the queue families that will touch it.
func (a *Allocator) CreateBuffer(size int, usage core1_0.BufferUsageFlags, properties core1_0.MemoryPropertyFlags, families ...int) (*Buffer, error) {
	handle, err := a.device.CreateBuffer(gpu.BufferCreateInfo{
		Size:          size,
		Usage:         usage,
		QueueFamilies: families,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create buffer")
	}
	buffer := &Buffer{Handle: handle, Size: size, Usage: usage}

	memory, err := a.allocate(handle.MemoryRequirements(), properties)
	if err != nil {
		buffer.Destroy()
		return nil, err
	}
	buffer.Memory = memory

	if err := handle.BindMemory(memory); err != nil {
		buffer.Destroy()
		return nil, errors.Wrap(err, "bind buffer memory")
	}
	return buffer, nil
}

func (a *Allocator) allocate(reqs core1_0.MemoryRequirements, properties core1_0.MemoryPropertyFlags) (gpu.Memory, error) {
	typeIndex, err := FindMemoryType(a.memProps, reqs.MemoryTypeBits, properties)
	if err != nil {
		return nil, err
	}
	memory, err := a.device.AllocateMemory(reqs.Size, typeIndex)
	if err != nil {
		return nil, errors.Wrap(err, "allocate memory")
	}
	return memory, nil
}

// Write copies data into a host-visible buffer.
func (a *Allocator) Write(buffer *Buffer, data []byte) error {
	if len(data) > buffer.Size {
		return errors.Newf("write of %d bytes into a %d byte buffer", len(data), buffer.Size)
	}
	return errors.Wrap(buffer.Memory.Write(0, data), "write buffer memory")
}

func (a *Allocator) staging(data []byte) (*Buffer, error) {
	staging, err := a.CreateBuffer(len(data), core1_0.BufferUsageTransferSrc,
		core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return nil, errors.Wrap(err, "create staging buffer")
	}
	if err := a.Write(staging, data); err != nil {
		staging.Destroy()
		return nil, err
	}
	return staging, nil
}

// Upload creates a device-local buffer with the given usage and fills it with
// data through a host-visible staging buffer. The copy runs on the transfer
// queue and has finished when Upload returns.
func (a *Allocator) Upload(data []byte, usage core1_0.BufferUsageFlags) (*Buffer, error) {
	if len(data) == 0 {
		return nil, errors.New("upload of an empty payload")
	}

	staging, err := a.staging(data)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()

	var families []int
	if a.transfer.Family != a.graphics.Family {
		families = []int{a.graphics.Family, a.transfer.Family}
	}
	buffer, err := a.CreateBuffer(len(data), usage|core1_0.BufferUsageTransferDst, core1_0.MemoryPropertyDeviceLocal, families...)
	if err != nil {
		return nil, err
	}

	err = a.transfer.Immediate(func(cb gpu.CommandBuffer) error {
		return errors.Wrap(cb.CopyBuffer(staging.Handle, buffer.Handle, len(data)), "copy staging buffer")
	})
	if err != nil {
		buffer.Destroy()
		return nil, err
	}

	a.logger.Debug("uploaded buffer", slog.Int("bytes", len(data)), slog.Any("usage", usage))
	return buffer, nil
}

// UploadTexture copies tightly packed RGBA pixels into a sampled image and
// leaves it in shader-read layout.
func (a *Allocator) UploadTexture(pixels []byte, width, height int) (*Texture, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Newf("texture size %dx%d", width, height)
	}
	if len(pixels) != width*height*4 {
		return nil, errors.Newf("texture %dx%d needs %d bytes, got %d", width, height, width*height*4, len(pixels))
	}

	staging, err := a.staging(pixels)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()

	tex := &Texture{Width: width, Height: height}
	ok := false
	defer func() {
		if !ok {
			tex.Destroy()
		}
	}()

	tex.Image, err = a.device.CreateImage(gpu.ImageCreateInfo{
		Width:  width,
		Height: height,
		Format: TextureFormat,
		Usage:  core1_0.ImageUsageTransferDst | core1_0.ImageUsageSampled,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create texture image")
	}
	tex.Memory, err = a.allocate(tex.Image.MemoryRequirements(), core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return nil, err
	}
	if err := tex.Image.BindMemory(tex.Memory); err != nil {
		return nil, errors.Wrap(err, "bind image memory")
	}

	err = a.graphics.Immediate(func(cb gpu.CommandBuffer) error {
		err := cb.PipelineBarrier(gpu.ImageBarrier{
			Image:     tex.Image,
			OldLayout: core1_0.ImageLayoutUndefined,
			NewLayout: core1_0.ImageLayoutTransferDstOptimal,
			DstAccess: core1_0.AccessTransferWrite,
			SrcStage:  core1_0.PipelineStageTopOfPipe,
			DstStage:  core1_0.PipelineStageTransfer,
		})
		if err != nil {
			return errors.Wrap(err, "transition to transfer layout")
		}
		if err := cb.CopyBufferToImage(staging.Handle, tex.Image, width, height); err != nil {
			return errors.Wrap(err, "copy staging buffer to image")
		}
		err = cb.PipelineBarrier(gpu.ImageBarrier{
			Image:     tex.Image,
			OldLayout: core1_0.ImageLayoutTransferDstOptimal,
			NewLayout: core1_0.ImageLayoutShaderReadOnlyOptimal,
			SrcAccess: core1_0.AccessTransferWrite,
			DstAccess: core1_0.AccessShaderRead,
			SrcStage:  core1_0.PipelineStageTransfer,
			DstStage:  core1_0.PipelineStageFragmentShader,
		})
		return errors.Wrap(err, "transition to shader read layout")
	})
	if err != nil {
		return nil, err
	}

	tex.View, err = a.device.CreateImageView(tex.Image, TextureFormat)
	if err != nil {
		return nil, errors.Wrap(err, "create texture view")
	}
	tex.Sampler, err = a.device.CreateSampler(a.device.Info().MaxAnisotropy)
	if err != nil {
		return nil, errors.Wrap(err, "create texture sampler")
	}

	ok = true
	a.logger.Debug("uploaded texture", slog.Int("width", width), slog.Int("height", height))
	return tex, nil
}
