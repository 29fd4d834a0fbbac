package vkdevice

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/quad/internal/gpu"
)

type shaderModule struct {
	device *Device
	handle core1_0.ShaderModule
}

func (d *Device) CreateShaderModule(code []uint32) (gpu.ShaderModule, error) {
	handle, _, err := d.deviceDriver.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: code,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create shader module")
	}
	return &shaderModule{device: d, handle: handle}, nil
}

func (s *shaderModule) Destroy() {
	s.device.deviceDriver.DestroyShaderModule(s.handle, nil)
}

type renderPass struct {
	device *Device
	handle core1_0.RenderPass
}

func (d *Device) CreateRenderPass(info core1_0.RenderPassCreateInfo) (gpu.RenderPass, error) {
	handle, _, err := d.deviceDriver.CreateRenderPass(nil, info)
	if err != nil {
		return nil, errors.Wrap(err, "create render pass")
	}
	return &renderPass{device: d, handle: handle}, nil
}

func (r *renderPass) Destroy() {
	r.device.deviceDriver.DestroyRenderPass(r.handle, nil)
}

type descriptorSetLayout struct {
	device *Device
	handle core1_0.DescriptorSetLayout
}

func (d *Device) CreateDescriptorSetLayout(bindings []core1_0.DescriptorSetLayoutBinding) (gpu.DescriptorSetLayout, error) {
	handle, _, err := d.deviceDriver.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: bindings,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create descriptor set layout")
	}
	return &descriptorSetLayout{device: d, handle: handle}, nil
}

func (l *descriptorSetLayout) Destroy() {
	l.device.deviceDriver.DestroyDescriptorSetLayout(l.handle, nil)
}

type descriptorPool struct {
	device *Device
	handle core1_0.DescriptorPool
}

func (d *Device) CreateDescriptorPool(info core1_0.DescriptorPoolCreateInfo) (gpu.DescriptorPool, error) {
	handle, _, err := d.deviceDriver.CreateDescriptorPool(nil, info)
	if err != nil {
		return nil, errors.Wrap(err, "create descriptor pool")
	}
	return &descriptorPool{device: d, handle: handle}, nil
}

func (p *descriptorPool) Destroy() {
	p.device.deviceDriver.DestroyDescriptorPool(p.handle, nil)
}

func (d *Device) AllocateDescriptorSet(pool gpu.DescriptorPool, layout gpu.DescriptorSetLayout) (gpu.DescriptorSet, error) {
	sets, _, err := d.deviceDriver.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: pool.(*descriptorPool).handle,
		SetLayouts:     []core1_0.DescriptorSetLayout{layout.(*descriptorSetLayout).handle},
	})
	if err != nil {
		return nil, errors.Wrap(err, "allocate descriptor set")
	}
	return sets[0], nil
}

func (d *Device) WriteImageDescriptor(set gpu.DescriptorSet, binding int, view gpu.ImageView, smp gpu.Sampler) error {
	err := d.deviceDriver.UpdateDescriptorSets([]core1_0.WriteDescriptorSet{
		{
			DstSet:          set.(core1_0.DescriptorSet),
			DstBinding:      binding,
			DstArrayElement: 0,

			DescriptorType: core1_0.DescriptorTypeCombinedImageSampler,

			ImageInfo: []core1_0.DescriptorImageInfo{
				{
					ImageView:   view.(*imageView).handle,
					Sampler:     smp.(*sampler).handle,
					ImageLayout: core1_0.ImageLayoutShaderReadOnlyOptimal,
				},
			},
		},
	}, nil)
	return errors.Wrap(err, "update descriptor set")
}

type pipelineLayout struct {
	device *Device
	handle core1_0.PipelineLayout
}

func (d *Device) CreatePipelineLayout(setLayouts []gpu.DescriptorSetLayout, pushConstants []gpu.PushConstantRange) (gpu.PipelineLayout, error) {
	layouts := make([]core1_0.DescriptorSetLayout, 0, len(setLayouts))
	for _, l := range setLayouts {
		layouts = append(layouts, l.(*descriptorSetLayout).handle)
	}

	ranges := make([]core1_0.PushConstantRange, 0, len(pushConstants))
	for _, r := range pushConstants {
		ranges = append(ranges, core1_0.PushConstantRange{
			StageFlags: r.Stages,
			Offset:     r.Offset,
			Size:       r.Size,
		})
	}

	handle, _, err := d.deviceDriver.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts:         layouts,
		PushConstantRanges: ranges,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create pipeline layout")
	}
	return &pipelineLayout{device: d, handle: handle}, nil
}

func (l *pipelineLayout) Destroy() {
	l.device.deviceDriver.DestroyPipelineLayout(l.handle, nil)
}

type pipelineCache struct {
	device *Device
	handle core1_0.PipelineCache
}

func (d *Device) CreatePipelineCache(initialData []byte) (gpu.PipelineCache, error) {
	handle, _, err := d.deviceDriver.CreatePipelineCache(nil, core1_0.PipelineCacheCreateInfo{
		InitialData: initialData,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create pipeline cache")
	}
	return &pipelineCache{device: d, handle: handle}, nil
}

func (c *pipelineCache) Destroy() {
	c.device.deviceDriver.DestroyPipelineCache(c.handle, nil)
}

func (c *pipelineCache) Data() ([]byte, error) {
	data, _, err := c.device.deviceDriver.GetPipelineCacheData(c.handle)
	if err != nil {
		return nil, errors.Wrap(err, "read pipeline cache")
	}
	return data, nil
}

type graphicsPipeline struct {
	device *Device
	handle core1_0.Pipeline
}

func (d *Device) CreateGraphicsPipeline(cache gpu.PipelineCache, desc gpu.GraphicsPipelineDesc) (gpu.Pipeline, error) {
	var cacheHandle *core1_0.PipelineCache
	if cache != nil {
		cacheHandle = &cache.(*pipelineCache).handle
	}

	entryPoint := desc.EntryPoint
	if entryPoint == "" {
		entryPoint = "main"
	}

	var dynamic *core1_0.PipelineDynamicStateCreateInfo
	if len(desc.DynamicStates) > 0 {
		dynamic = &core1_0.PipelineDynamicStateCreateInfo{DynamicStates: desc.DynamicStates}
	}

	pipelines, _, err := d.deviceDriver.CreateGraphicsPipelines(cacheHandle, nil,
		core1_0.GraphicsPipelineCreateInfo{
			Stages: []core1_0.PipelineShaderStageCreateInfo{
				{
					Stage:  core1_0.StageVertex,
					Module: desc.VertexShader.(*shaderModule).handle,
					Name:   entryPoint,
				},
				{
					Stage:  core1_0.StageFragment,
					Module: desc.FragmentShader.(*shaderModule).handle,
					Name:   entryPoint,
				},
			},
			VertexInputState:   desc.VertexInput,
			InputAssemblyState: desc.InputAssembly,
			ViewportState:      desc.Viewport,
			RasterizationState: desc.Rasterization,
			MultisampleState:   desc.Multisample,
			ColorBlendState:    desc.ColorBlend,
			DynamicState:       dynamic,
			Layout:             desc.Layout.(*pipelineLayout).handle,
			RenderPass:         desc.RenderPass.(*renderPass).handle,
			Subpass:            desc.Subpass,
			BasePipelineIndex:  -1,
		},
	)
	if err != nil {
		return nil, errors.Wrap(err, "create graphics pipeline")
	}
	return &graphicsPipeline{device: d, handle: pipelines[0]}, nil
}

func (p *graphicsPipeline) Destroy() {
	p.device.deviceDriver.DestroyPipeline(p.handle, nil)
}
