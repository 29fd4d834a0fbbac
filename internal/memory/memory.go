// Package memory creates buffers and images, picks memory types for them and
// moves data into device-local memory through staging buffers.
package memory

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/quad/internal/gpu"
)

var ErrNoMemoryType = errors.New("no suitable memory type")

// FindMemoryType returns the first memory type allowed by typeFilter whose
// properties include all of properties.
func FindMemoryType(memProps *core1_0.PhysicalDeviceMemoryProperties, typeFilter uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	for i, memoryType := range memProps.MemoryTypes {
		typeBit := uint32(1) << uint32(i)
		if typeFilter&typeBit != 0 && memoryType.PropertyFlags&properties == properties {
			return i, nil
		}
	}

	return -1, errors.Wrapf(ErrNoMemoryType, "filter %#b properties %v", typeFilter, properties)
}

// Buffer is a buffer together with the allocation bound to it. It is owned by
// whoever created it.
type Buffer struct {
	Handle gpu.Buffer
	Memory gpu.Memory
	Size   int
	Usage  core1_0.BufferUsageFlags
}

// Destroy releases the buffer before its memory.
func (b *Buffer) Destroy() {
	if b == nil {
		return
	}
	if b.Handle != nil {
		b.Handle.Destroy()
		b.Handle = nil
	}
	if b.Memory != nil {
		b.Memory.Destroy()
		b.Memory = nil
	}
}

// Texture is a sampled device-local image with its view and sampler.
type Texture struct {
	Image   gpu.Image
	Memory  gpu.Memory
	View    gpu.ImageView
	Sampler gpu.Sampler
	Width   int
	Height  int
}

func (t *Texture) Destroy() {
	if t == nil {
		return
	}
	var rs []gpu.Releaser
	for _, r := range []gpu.Releaser{t.Sampler, t.View, t.Image, t.Memory} {
		if r != nil {
			rs = append(rs, r)
		}
	}
	gpu.ReleaseInOrder(rs)
	*t = Texture{}
}
