package pipeline

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/quad/internal/gpu"
)

// TextureBinding is the binding a sampled texture occupies in the fragment
// shader.
const TextureBinding = 0

// CreateTextureSetLayout creates a layout with one combined image sampler
// visible to the fragment stage.
func CreateTextureSetLayout(device gpu.Device) (gpu.DescriptorSetLayout, error) {
	layout, err := device.CreateDescriptorSetLayout([]core1_0.DescriptorSetLayoutBinding{
		{
			Binding:         TextureBinding,
			DescriptorType:  core1_0.DescriptorTypeCombinedImageSampler,
			DescriptorCount: 1,

			StageFlags: core1_0.StageFragment,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create texture descriptor set layout")
	}
	return layout, nil
}

// TextureSet is a descriptor set pointing at one texture, with the pool it
// was allocated from. Destroying the pool frees the set.
type TextureSet struct {
	Pool gpu.DescriptorPool
	Set  gpu.DescriptorSet
}

func (t *TextureSet) Destroy() {
	if t != nil && t.Pool != nil {
		t.Pool.Destroy()
		t.Pool = nil
		t.Set = nil
	}
}

// NewTextureSet allocates a set for layout and writes view and sampler into it.
func NewTextureSet(device gpu.Device, layout gpu.DescriptorSetLayout, view gpu.ImageView, sampler gpu.Sampler) (*TextureSet, error) {
	pool, err := device.CreateDescriptorPool(core1_0.DescriptorPoolCreateInfo{
		MaxSets: 1,
		PoolSizes: []core1_0.DescriptorPoolSize{
			{
				Type:            core1_0.DescriptorTypeCombinedImageSampler,
				DescriptorCount: 1,
			},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create descriptor pool")
	}
	ts := &TextureSet{Pool: pool}

	ts.Set, err = device.AllocateDescriptorSet(pool, layout)
	if err != nil {
		ts.Destroy()
		return nil, errors.Wrap(err, "allocate texture descriptor set")
	}
	if err := device.WriteImageDescriptor(ts.Set, TextureBinding, view, sampler); err != nil {
		ts.Destroy()
		return nil, errors.Wrap(err, "write texture descriptor")
	}
	return ts, nil
}
