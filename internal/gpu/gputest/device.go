// Package gputest is an in-memory gpu.Device. The "GPU" finishes every batch
// the moment it is submitted, which keeps tests deterministic while still
// tracking fence, semaphore and command buffer state so misuse shows up as an
// error rather than a hang.
package gputest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"

	"github.com/vkngwrapper/quad/internal/gpu"
)

// Device journals every call and tracks live handles.
type Device struct {
	Support  gpu.SurfaceSupport
	Memory   *core1_0.PhysicalDeviceMemoryProperties
	Families gpu.QueueFamilyIndices
	Details  gpu.DeviceInfo

	// TypeBits is the memory type filter reported by buffers and images.
	TypeBits uint32
	// SwapchainImages overrides the number of images a swapchain reports.
	// Zero means exactly the requested minimum.
	SwapchainImages int

	// AcquireErrors and PresentErrors are consumed one per call; a nil entry or
	// an empty queue means success.
	AcquireErrors []error
	PresentErrors []error
	SubmitErr     error
	WaitErr       error
	// Fail makes the named Device method return the error.
	Fail map[string]error

	Graphics *Queue
	Present  *Queue
	Transfer *Queue

	calls      []string
	live       map[string]bool
	nextID     map[string]int
	swapchains []*Swapchain
}

// New returns a device with one combined graphics/present/transfer family, a
// surface that supports mailbox and fifo and a 1..4096 extent range.
func New() *Device {
	zero := 0
	d := &Device{
		Support: gpu.SurfaceSupport{
			Capabilities: &khr_surface.SurfaceCapabilities{
				MinImageCount:  2,
				MaxImageCount:  4,
				CurrentExtent:  core1_0.Extent2D{Width: -1, Height: -1},
				MinImageExtent: core1_0.Extent2D{Width: 1, Height: 1},
				MaxImageExtent: core1_0.Extent2D{Width: 4096, Height: 4096},
			},
			Formats: []khr_surface.SurfaceFormat{
				{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
			},
			PresentModes: []khr_surface.PresentMode{khr_surface.PresentModeFIFO, khr_surface.PresentModeMailbox},
		},
		Memory: &core1_0.PhysicalDeviceMemoryProperties{
			MemoryTypes: []core1_0.MemoryType{
				{PropertyFlags: core1_0.MemoryPropertyDeviceLocal},
				{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent},
			},
		},
		Families: gpu.QueueFamilyIndices{Graphics: &zero, Present: &zero, Transfer: &zero},
		Details: gpu.DeviceInfo{
			Name:              "fake",
			VendorID:          0x1234,
			DeviceID:          0x5678,
			MaxImageDimension: 4096,
			MaxAnisotropy:     16,
		},
		TypeBits: 0xFFFFFFFF,
		Fail:     map[string]error{},
		live:     map[string]bool{},
		nextID:   map[string]int{},
	}
	d.Graphics = &Queue{dev: d, name: "graphics"}
	d.Present = &Queue{dev: d, name: "present"}
	d.Transfer = &Queue{dev: d, name: "transfer"}
	return d
}

func (d *Device) record(format string, args ...any) {
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
}

// Calls returns the journal.
func (d *Device) Calls() []string {
	return append([]string(nil), d.calls...)
}

// CallsWithPrefix returns the journal entries starting with prefix.
func (d *Device) CallsWithPrefix(prefix string) []string {
	var out []string
	for _, c := range d.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Count returns how many journal entries start with prefix.
func (d *Device) Count(prefix string) int {
	return len(d.CallsWithPrefix(prefix))
}

func (d *Device) ClearCalls() {
	d.calls = nil
}

// Live lists every handle that was created and not destroyed yet.
func (d *Device) Live() []string {
	var out []string
	for name, alive := range d.live {
		if alive {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (d *Device) newHandle(kind string) handle {
	id := d.nextID[kind]
	d.nextID[kind] = id + 1
	h := handle{dev: d, name: fmt.Sprintf("%s#%d", kind, id)}
	d.live[h.name] = true
	d.record("Create %s", h.name)
	return h
}

func (d *Device) fail(method string) error {
	if err, ok := d.Fail[method]; ok && err != nil {
		d.record("%s failed", method)
		return err
	}
	return nil
}

type handle struct {
	dev  *Device
	name string
}

func (h handle) Name() string { return h.name }

func (h handle) String() string { return h.name }

func (h handle) Destroy() {
	if !h.dev.live[h.name] {
		panic(fmt.Sprintf("gputest: %s destroyed twice or never created", h.name))
	}
	h.dev.live[h.name] = false
	h.dev.record("Destroy %s", h.name)
}

type Fence struct {
	handle
	Signaled bool
}

type Semaphore struct {
	handle
	Signaled bool
}

type simple struct{ handle }

func (d *Device) Info() gpu.DeviceInfo { return d.Details }

func (d *Device) QueueFamilies() gpu.QueueFamilyIndices { return d.Families }

func (d *Device) GraphicsQueue() gpu.Queue { return d.Graphics }

func (d *Device) PresentQueue() gpu.Queue { return d.Present }

func (d *Device) TransferQueue() gpu.Queue { return d.Transfer }

func (d *Device) MemoryProperties() *core1_0.PhysicalDeviceMemoryProperties { return d.Memory }

func (d *Device) SurfaceSupport() (gpu.SurfaceSupport, error) {
	d.record("SurfaceSupport")
	if err := d.fail("SurfaceSupport"); err != nil {
		return gpu.SurfaceSupport{}, err
	}
	return d.Support, nil
}

func (d *Device) WaitIdle() error {
	d.record("WaitIdle")
	if err := d.fail("WaitIdle"); err != nil {
		return err
	}
	for _, cb := range d.commandBuffers() {
		cb.pending = nil
	}
	return nil
}

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	if err := d.fail("CreateFence"); err != nil {
		return nil, err
	}
	return &Fence{handle: d.newHandle("fence"), Signaled: signaled}, nil
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	if err := d.fail("CreateSemaphore"); err != nil {
		return nil, err
	}
	return &Semaphore{handle: d.newHandle("semaphore")}, nil
}

func (d *Device) WaitForFences(timeout time.Duration, fences ...gpu.Fence) error {
	names := make([]string, 0, len(fences))
	for _, f := range fences {
		names = append(names, f.(*Fence).name)
	}
	d.record("WaitForFences %s", strings.Join(names, ","))
	if d.WaitErr != nil {
		return d.WaitErr
	}
	for _, f := range fences {
		fence := f.(*Fence)
		if !fence.Signaled {
			return errors.Newf("gputest: waiting on unsignaled %s would block forever", fence.name)
		}
		for _, cb := range d.commandBuffers() {
			if cb.pending == fence {
				cb.pending = nil
			}
		}
	}
	return nil
}

func (d *Device) ResetFences(fences ...gpu.Fence) error {
	for _, f := range fences {
		fence := f.(*Fence)
		d.record("ResetFences %s", fence.name)
		fence.Signaled = false
	}
	return nil
}

func (d *Device) CreateCommandPool(queueFamily int) (gpu.CommandPool, error) {
	if err := d.fail("CreateCommandPool"); err != nil {
		return nil, err
	}
	return &CommandPool{handle: d.newHandle("pool"), Family: queueFamily}, nil
}

func (d *Device) CreateSwapchain(info gpu.SwapchainCreateInfo) (gpu.Swapchain, error) {
	d.record("CreateSwapchain %dx%d images=%d", info.Extent.Width, info.Extent.Height, info.MinImageCount)
	if err := d.fail("CreateSwapchain"); err != nil {
		return nil, err
	}
	count := info.MinImageCount
	if d.SwapchainImages > 0 {
		count = d.SwapchainImages
	}
	sc := &Swapchain{handle: d.newHandle("swapchain"), Info: info}
	for i := 0; i < count; i++ {
		sc.images = append(sc.images, &Image{dev: d, name: fmt.Sprintf("%s.image#%d", sc.name, i), presentable: true})
	}
	d.swapchains = append(d.swapchains, sc)
	return sc, nil
}

// LastSwapchain returns the most recently created swapchain.
func (d *Device) LastSwapchain() *Swapchain {
	if len(d.swapchains) == 0 {
		return nil
	}
	return d.swapchains[len(d.swapchains)-1]
}

func (d *Device) CreateImageView(image gpu.Image, format core1_0.Format) (gpu.ImageView, error) {
	if err := d.fail("CreateImageView"); err != nil {
		return nil, err
	}
	return &simple{d.newHandle("view")}, nil
}

func (d *Device) CreateFramebuffer(renderPass gpu.RenderPass, extent core1_0.Extent2D, attachments ...gpu.ImageView) (gpu.Framebuffer, error) {
	if err := d.fail("CreateFramebuffer"); err != nil {
		return nil, err
	}
	if len(attachments) == 0 {
		return nil, errors.New("gputest: framebuffer without attachments")
	}
	return &simple{d.newHandle("framebuffer")}, nil
}

func (d *Device) CreateBuffer(info gpu.BufferCreateInfo) (gpu.Buffer, error) {
	if err := d.fail("CreateBuffer"); err != nil {
		return nil, err
	}
	if info.Size <= 0 {
		return nil, errors.Newf("gputest: buffer size %d", info.Size)
	}
	return &Buffer{handle: d.newHandle("buffer"), Info: info}, nil
}

func (d *Device) CreateImage(info gpu.ImageCreateInfo) (gpu.Image, error) {
	if err := d.fail("CreateImage"); err != nil {
		return nil, err
	}
	h := d.newHandle("image")
	return &Image{dev: d, name: h.name, Info: info}, nil
}

func (d *Device) AllocateMemory(size int, memoryTypeIndex int) (gpu.Memory, error) {
	d.record("AllocateMemory size=%d type=%d", size, memoryTypeIndex)
	if err := d.fail("AllocateMemory"); err != nil {
		return nil, err
	}
	if memoryTypeIndex < 0 || memoryTypeIndex >= len(d.Memory.MemoryTypes) {
		return nil, errors.Newf("gputest: memory type %d out of range", memoryTypeIndex)
	}
	return &Memory{
		handle:    d.newHandle("memory"),
		TypeIndex: memoryTypeIndex,
		Flags:     d.Memory.MemoryTypes[memoryTypeIndex].PropertyFlags,
		Data:      make([]byte, size),
	}, nil
}

func (d *Device) CreateSampler(maxAnisotropy float32) (gpu.Sampler, error) {
	if err := d.fail("CreateSampler"); err != nil {
		return nil, err
	}
	return &simple{d.newHandle("sampler")}, nil
}

func (d *Device) CreateShaderModule(code []uint32) (gpu.ShaderModule, error) {
	if err := d.fail("CreateShaderModule"); err != nil {
		return nil, err
	}
	if len(code) == 0 {
		return nil, errors.New("gputest: empty shader module")
	}
	return &simple{d.newHandle("shader")}, nil
}

func (d *Device) CreateRenderPass(info core1_0.RenderPassCreateInfo) (gpu.RenderPass, error) {
	if err := d.fail("CreateRenderPass"); err != nil {
		return nil, err
	}
	return &RenderPass{handle: d.newHandle("renderpass"), Info: info}, nil
}

func (d *Device) CreateDescriptorSetLayout(bindings []core1_0.DescriptorSetLayoutBinding) (gpu.DescriptorSetLayout, error) {
	if err := d.fail("CreateDescriptorSetLayout"); err != nil {
		return nil, err
	}
	return &simple{d.newHandle("setlayout")}, nil
}

func (d *Device) CreateDescriptorPool(info core1_0.DescriptorPoolCreateInfo) (gpu.DescriptorPool, error) {
	if err := d.fail("CreateDescriptorPool"); err != nil {
		return nil, err
	}
	return &simple{d.newHandle("descpool")}, nil
}

// DescriptorSet records what was written into it.
type DescriptorSet struct {
	Name   string
	Writes []string
}

func (d *Device) AllocateDescriptorSet(pool gpu.DescriptorPool, layout gpu.DescriptorSetLayout) (gpu.DescriptorSet, error) {
	if err := d.fail("AllocateDescriptorSet"); err != nil {
		return nil, err
	}
	id := d.nextID["descset"]
	d.nextID["descset"] = id + 1
	name := fmt.Sprintf("descset#%d", id)
	d.record("Allocate %s", name)
	return &DescriptorSet{Name: name}, nil
}

func (d *Device) WriteImageDescriptor(set gpu.DescriptorSet, binding int, view gpu.ImageView, sampler gpu.Sampler) error {
	if err := d.fail("WriteImageDescriptor"); err != nil {
		return err
	}
	s := set.(*DescriptorSet)
	s.Writes = append(s.Writes, fmt.Sprintf("binding=%d view=%s sampler=%s", binding, nameOf(view), nameOf(sampler)))
	d.record("WriteImageDescriptor %s binding=%d", s.Name, binding)
	return nil
}

// PipelineLayout remembers its push constant ranges.
type PipelineLayout struct {
	handle
	SetLayouts    int
	PushConstants []gpu.PushConstantRange
}

func (d *Device) CreatePipelineLayout(setLayouts []gpu.DescriptorSetLayout, pushConstants []gpu.PushConstantRange) (gpu.PipelineLayout, error) {
	if err := d.fail("CreatePipelineLayout"); err != nil {
		return nil, err
	}
	return &PipelineLayout{handle: d.newHandle("layout"), SetLayouts: len(setLayouts), PushConstants: pushConstants}, nil
}

// PipelineCache returns Blob from Data.
type PipelineCache struct {
	handle
	Initial []byte
	Blob    []byte
}

func (c *PipelineCache) Data() ([]byte, error) {
	return c.Blob, nil
}

func (d *Device) CreatePipelineCache(initialData []byte) (gpu.PipelineCache, error) {
	if err := d.fail("CreatePipelineCache"); err != nil {
		return nil, err
	}
	return &PipelineCache{handle: d.newHandle("cache"), Initial: initialData, Blob: initialData}, nil
}

// Pipeline keeps the description it was built from.
type Pipeline struct {
	handle
	Desc gpu.GraphicsPipelineDesc
}

func (d *Device) CreateGraphicsPipeline(cache gpu.PipelineCache, desc gpu.GraphicsPipelineDesc) (gpu.Pipeline, error) {
	if err := d.fail("CreateGraphicsPipeline"); err != nil {
		return nil, err
	}
	for _, m := range []gpu.ShaderModule{desc.VertexShader, desc.FragmentShader} {
		if m == nil || !d.live[nameOf(m)] {
			return nil, errors.New("gputest: pipeline references a missing shader module")
		}
	}
	return &Pipeline{handle: d.newHandle("pipeline"), Desc: desc}, nil
}

func (d *Device) commandBuffers() map[string]*CommandBuffer {
	out := map[string]*CommandBuffer{}
	for _, q := range []*Queue{d.Graphics, d.Present, d.Transfer} {
		for _, cb := range q.seen {
			out[cb.name] = cb
		}
	}
	return out
}

func nameOf(v any) string {
	if n, ok := v.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%v", v)
}

var _ gpu.Device = (*Device)(nil)
