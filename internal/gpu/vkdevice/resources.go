package vkdevice

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/quad/internal/gpu"
)

var colorRange = core1_0.ImageSubresourceRange{
	AspectMask:     core1_0.ImageAspectColor,
	BaseMipLevel:   0,
	LevelCount:     1,
	BaseArrayLayer: 0,
	LayerCount:     1,
}

type memory struct {
	device *Device
	handle core1_0.DeviceMemory
}

func (d *Device) AllocateMemory(size int, memoryTypeIndex int) (gpu.Memory, error) {
	handle, _, err := d.deviceDriver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "allocate %d bytes from memory type %d", size, memoryTypeIndex)
	}
	return &memory{device: d, handle: handle}, nil
}

func (m *memory) Destroy() {
	m.device.deviceDriver.FreeMemory(m.handle, nil)
}

func (m *memory) Write(offset int, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	memoryPtr, _, err := m.device.deviceDriver.MapMemory(m.handle, offset, len(data), 0)
	if err != nil {
		return errors.Wrap(err, "map memory")
	}
	defer m.device.deviceDriver.UnmapMemory(m.handle)

	dataBuffer := unsafe.Slice((*byte)(memoryPtr), len(data))
	copy(dataBuffer, data)
	return nil
}

type buffer struct {
	device *Device
	handle core1_0.Buffer
}

func (d *Device) CreateBuffer(info gpu.BufferCreateInfo) (gpu.Buffer, error) {
	sharingMode := core1_0.SharingModeExclusive
	var families []int
	if distinct(info.QueueFamilies) > 1 {
		sharingMode = core1_0.SharingModeConcurrent
		families = info.QueueFamilies
	}

	handle, _, err := d.deviceDriver.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:               info.Size,
		Usage:              info.Usage,
		SharingMode:        sharingMode,
		QueueFamilyIndices: families,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create %d byte buffer", info.Size)
	}
	return &buffer{device: d, handle: handle}, nil
}

func (b *buffer) Destroy() {
	b.device.deviceDriver.DestroyBuffer(b.handle, nil)
}

func (b *buffer) MemoryRequirements() core1_0.MemoryRequirements {
	return *b.device.deviceDriver.GetBufferMemoryRequirements(b.handle)
}

func (b *buffer) BindMemory(mem gpu.Memory) error {
	_, err := b.device.deviceDriver.BindBufferMemory(b.handle, mem.(*memory).handle, 0)
	return errors.Wrap(err, "bind buffer memory")
}

type image struct {
	device      *Device
	handle      core1_0.Image
	presentable bool
}

func (d *Device) CreateImage(info gpu.ImageCreateInfo) (gpu.Image, error) {
	handle, _, err := d.deviceDriver.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  info.Width,
			Height: info.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        info.Format,
		Tiling:        core1_0.ImageTilingOptimal,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         info.Usage,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       core1_0.Samples1,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create %dx%d image", info.Width, info.Height)
	}
	return &image{device: d, handle: handle}, nil
}

func (i *image) Destroy() {
	if i.presentable {
		return
	}
	i.device.deviceDriver.DestroyImage(i.handle, nil)
}

func (i *image) MemoryRequirements() core1_0.MemoryRequirements {
	return *i.device.deviceDriver.GetImageMemoryRequirements(i.handle)
}

func (i *image) BindMemory(mem gpu.Memory) error {
	if i.presentable {
		return errors.New("presentable images are bound by their swapchain")
	}
	_, err := i.device.deviceDriver.BindImageMemory(i.handle, mem.(*memory).handle, 0)
	return errors.Wrap(err, "bind image memory")
}

type imageView struct {
	device *Device
	handle core1_0.ImageView
}

func (d *Device) CreateImageView(img gpu.Image, format core1_0.Format) (gpu.ImageView, error) {
	handle, _, err := d.deviceDriver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:            img.(*image).handle,
		ViewType:         core1_0.ImageViewType2D,
		Format:           format,
		SubresourceRange: colorRange,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create image view")
	}
	return &imageView{device: d, handle: handle}, nil
}

func (v *imageView) Destroy() {
	v.device.deviceDriver.DestroyImageView(v.handle, nil)
}

type framebuffer struct {
	device *Device
	handle core1_0.Framebuffer
}

func (d *Device) CreateFramebuffer(pass gpu.RenderPass, extent core1_0.Extent2D, attachments ...gpu.ImageView) (gpu.Framebuffer, error) {
	views := make([]core1_0.ImageView, 0, len(attachments))
	for _, a := range attachments {
		views = append(views, a.(*imageView).handle)
	}

	handle, _, err := d.deviceDriver.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
		RenderPass:  pass.(*renderPass).handle,
		Layers:      1,
		Attachments: views,
		Width:       extent.Width,
		Height:      extent.Height,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create framebuffer")
	}
	return &framebuffer{device: d, handle: handle}, nil
}

func (f *framebuffer) Destroy() {
	f.device.deviceDriver.DestroyFramebuffer(f.handle, nil)
}

type sampler struct {
	device *Device
	handle core1_0.Sampler
}

func (d *Device) CreateSampler(maxAnisotropy float32) (gpu.Sampler, error) {
	handle, _, err := d.deviceDriver.CreateSampler(nil, core1_0.SamplerCreateInfo{
		MagFilter:    core1_0.FilterLinear,
		MinFilter:    core1_0.FilterLinear,
		AddressModeU: core1_0.SamplerAddressModeRepeat,
		AddressModeV: core1_0.SamplerAddressModeRepeat,
		AddressModeW: core1_0.SamplerAddressModeRepeat,

		AnisotropyEnable: maxAnisotropy > 1,
		MaxAnisotropy:    maxAnisotropy,

		BorderColor: core1_0.BorderColorIntOpaqueBlack,

		MipmapMode: core1_0.SamplerMipmapModeLinear,
		MinLod:     0,
		MaxLod:     0,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create sampler")
	}
	return &sampler{device: d, handle: handle}, nil
}

func (s *sampler) Destroy() {
	s.device.deviceDriver.DestroySampler(s.handle, nil)
}

func distinct(families []int) int {
	seen := make(map[int]struct{}, len(families))
	for _, f := range families {
		seen[f] = struct{}{}
	}
	return len(seen)
}
