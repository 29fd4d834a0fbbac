// Package gpu describes the slice of the Vulkan API the renderer depends on.
//
// The frame engine, swapchain manager, allocator and recorder only ever talk to
// these interfaces. The vkdevice package implements them on top of vkngwrapper and
// gputest implements them in memory for tests.
package gpu

import (
	"time"

	"github.com/google/uuid"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

// NoTimeout blocks a fence wait until the fence signals.
const NoTimeout = time.Duration(1<<63 - 1)

// Releaser is implemented by every handle that has to be destroyed explicitly.
type Releaser interface {
	Destroy()
}

type Fence interface{ Releaser }

type Semaphore interface{ Releaser }

type ImageView interface{ Releaser }

type Framebuffer interface{ Releaser }

type RenderPass interface{ Releaser }

type PipelineLayout interface{ Releaser }

type Pipeline interface{ Releaser }

type ShaderModule interface{ Releaser }

type Sampler interface{ Releaser }

type DescriptorSetLayout interface{ Releaser }

type DescriptorPool interface{ Releaser }

// DescriptorSet is owned by the pool it was allocated from.
type DescriptorSet interface{}

type PipelineCache interface {
	Releaser
	Data() ([]byte, error)
}

// Memory is a device memory allocation.
type Memory interface {
	Releaser
	// Write maps the allocation, copies data at offset and unmaps it again. Only
	// valid for host-visible memory.
	Write(offset int, data []byte) error
}

type Buffer interface {
	Releaser
	MemoryRequirements() core1_0.MemoryRequirements
	BindMemory(memory Memory) error
}

// Image is either a standalone image or a presentable image. Destroy is a no-op
// for presentable images, they belong to their swapchain.
type Image interface {
	Releaser
	MemoryRequirements() core1_0.MemoryRequirements
	BindMemory(memory Memory) error
}

type Swapchain interface {
	Releaser
	Images() ([]Image, error)
	// AcquireNextImage returns the index of the next presentable image and
	// signals the semaphore once it may be written. Errors matching ErrOutOfDate
	// or ErrSuboptimal mean the swapchain no longer matches the surface.
	AcquireNextImage(timeout time.Duration, signal Semaphore) (int, error)
}

type CommandPool interface {
	Releaser
	Allocate(count int) ([]CommandBuffer, error)
	Free(buffers ...CommandBuffer)
}

type RenderPassBegin struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Extent      core1_0.Extent2D
	ClearColor  [4]float32
}

type ImageBarrier struct {
	Image     Image
	OldLayout core1_0.ImageLayout
	NewLayout core1_0.ImageLayout
	SrcAccess core1_0.AccessFlags
	DstAccess core1_0.AccessFlags
	SrcStage  core1_0.PipelineStageFlags
	DstStage  core1_0.PipelineStageFlags
}

// CommandBuffer records GPU commands. Recording calls that cannot fail in the
// driver have no error return.
type CommandBuffer interface {
	Begin(flags core1_0.CommandBufferUsageFlags) error
	End() error
	Reset() error

	BeginRenderPass(begin RenderPassBegin) error
	EndRenderPass()
	BindPipeline(pipeline Pipeline)
	SetViewport(viewport core1_0.Viewport)
	SetScissor(scissor core1_0.Rect2D)
	BindVertexBuffers(buffers ...Buffer)
	BindIndexBuffer(buffer Buffer, indexType core1_0.IndexType)
	BindDescriptorSets(layout PipelineLayout, sets ...DescriptorSet)
	PushConstants(layout PipelineLayout, stages core1_0.ShaderStageFlags, data []byte)
	Draw(vertexCount int)
	DrawIndexed(indexCount int)

	CopyBuffer(src, dst Buffer, size int) error
	CopyBufferToImage(src Buffer, dst Image, width, height int) error
	PipelineBarrier(barrier ImageBarrier) error
}

type Queue interface {
	Submit(info SubmitInfo) error
	WaitIdle() error
	// Present queues an image for presentation. Errors matching ErrOutOfDate or
	// ErrSuboptimal are recoverable.
	Present(info PresentInfo) error
}

// SurfaceSupport is what the surface reports for the selected physical device.
type SurfaceSupport struct {
	Capabilities *khr_surface.SurfaceCapabilities
	Formats      []khr_surface.SurfaceFormat
	PresentModes []khr_surface.PresentMode
}

type SwapchainCreateInfo struct {
	Capabilities       *khr_surface.SurfaceCapabilities
	MinImageCount      int
	Format             khr_surface.SurfaceFormat
	Extent             core1_0.Extent2D
	PresentMode        khr_surface.PresentMode
	SharingMode        core1_0.SharingMode
	QueueFamilyIndices []int
}

type BufferCreateInfo struct {
	Size  int
	Usage core1_0.BufferUsageFlags
	// QueueFamilies lists the families that access the buffer. More than one
	// distinct family selects concurrent sharing.
	QueueFamilies []int
}

type ImageCreateInfo struct {
	Width  int
	Height int
	Format core1_0.Format
	Usage  core1_0.ImageUsageFlags
}

type PushConstantRange struct {
	Stages core1_0.ShaderStageFlags
	Offset int
	Size   int
}

// GraphicsPipelineDesc is the fully built fixed-function description handed to
// the device. Build it through the pipeline package, which validates it.
type GraphicsPipelineDesc struct {
	VertexShader   ShaderModule
	FragmentShader ShaderModule
	EntryPoint     string

	VertexInput   *core1_0.PipelineVertexInputStateCreateInfo
	InputAssembly *core1_0.PipelineInputAssemblyStateCreateInfo
	Viewport      *core1_0.PipelineViewportStateCreateInfo
	Rasterization *core1_0.PipelineRasterizationStateCreateInfo
	Multisample   *core1_0.PipelineMultisampleStateCreateInfo
	ColorBlend    *core1_0.PipelineColorBlendStateCreateInfo
	DynamicStates []core1_0.DynamicState

	Layout     PipelineLayout
	RenderPass RenderPass
	Subpass    int
}

// DeviceInfo identifies the selected physical device.
type DeviceInfo struct {
	Name              string
	VendorID          uint32
	DeviceID          uint32
	PipelineCacheUUID uuid.UUID
	MaxImageDimension int
	MaxAnisotropy     float32
}

// Device is a logical device together with its queues and the surface it
// presents to.
type Device interface {
	Info() DeviceInfo
	QueueFamilies() QueueFamilyIndices
	GraphicsQueue() Queue
	PresentQueue() Queue
	TransferQueue() Queue
	MemoryProperties() *core1_0.PhysicalDeviceMemoryProperties
	SurfaceSupport() (SurfaceSupport, error)

	WaitIdle() error

	CreateFence(signaled bool) (Fence, error)
	CreateSemaphore() (Semaphore, error)
	WaitForFences(timeout time.Duration, fences ...Fence) error
	ResetFences(fences ...Fence) error

	CreateCommandPool(queueFamily int) (CommandPool, error)

	CreateSwapchain(info SwapchainCreateInfo) (Swapchain, error)
	CreateImageView(image Image, format core1_0.Format) (ImageView, error)
	CreateFramebuffer(renderPass RenderPass, extent core1_0.Extent2D, attachments ...ImageView) (Framebuffer, error)

	CreateBuffer(info BufferCreateInfo) (Buffer, error)
	CreateImage(info ImageCreateInfo) (Image, error)
	AllocateMemory(size int, memoryTypeIndex int) (Memory, error)
	CreateSampler(maxAnisotropy float32) (Sampler, error)

	CreateShaderModule(code []uint32) (ShaderModule, error)
	CreateRenderPass(info core1_0.RenderPassCreateInfo) (RenderPass, error)
	CreateDescriptorSetLayout(bindings []core1_0.DescriptorSetLayoutBinding) (DescriptorSetLayout, error)
	CreateDescriptorPool(info core1_0.DescriptorPoolCreateInfo) (DescriptorPool, error)
	AllocateDescriptorSet(pool DescriptorPool, layout DescriptorSetLayout) (DescriptorSet, error)
	WriteImageDescriptor(set DescriptorSet, binding int, view ImageView, sampler Sampler) error
	CreatePipelineLayout(setLayouts []DescriptorSetLayout, pushConstants []PushConstantRange) (PipelineLayout, error)
	CreatePipelineCache(initialData []byte) (PipelineCache, error)
	CreateGraphicsPipeline(cache PipelineCache, desc GraphicsPipelineDesc) (Pipeline, error)
}
