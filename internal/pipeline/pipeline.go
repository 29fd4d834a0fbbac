// Package pipeline builds the render pass, the graphics pipeline and the
// descriptor objects the draw uses.
package pipeline

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/quad/internal/gpu"
)

// Desc is everything that varies between pipelines. The fixed-function state
// (fill, back-face culling, clockwise front faces, no depth, no blending,
// dynamic viewport and scissor) is the same for all of them.
type Desc struct {
	VertexCode   []uint32
	FragmentCode []uint32
	// EntryPoint defaults to "main".
	EntryPoint string

	Bindings   []core1_0.VertexInputBindingDescription
	Attributes []core1_0.VertexInputAttributeDescription

	// SetLayouts holds zero or one descriptor set layout.
	SetLayouts    []gpu.DescriptorSetLayout
	PushConstants []gpu.PushConstantRange

	RenderPass gpu.RenderPass
}

func (d Desc) Validate() error {
	if len(d.VertexCode) == 0 {
		return errors.New("pipeline has no vertex shader")
	}
	if len(d.FragmentCode) == 0 {
		return errors.New("pipeline has no fragment shader")
	}
	if d.RenderPass == nil {
		return errors.New("pipeline has no render pass")
	}
	if len(d.SetLayouts) > 1 {
		return errors.Newf("pipeline has %d descriptor set layouts, at most one is supported", len(d.SetLayouts))
	}

	bindings := map[int]bool{}
	for _, b := range d.Bindings {
		if bindings[b.Binding] {
			return errors.Newf("vertex binding %d declared twice", b.Binding)
		}
		if b.Stride <= 0 {
			return errors.Newf("vertex binding %d has stride %d", b.Binding, b.Stride)
		}
		bindings[b.Binding] = true
	}

	locations := map[int]bool{}
	for _, a := range d.Attributes {
		if !bindings[a.Binding] {
			return errors.Newf("vertex attribute %d reads undeclared binding %d", a.Location, a.Binding)
		}
		if locations[a.Location] {
			return errors.Newf("vertex attribute location %d declared twice", a.Location)
		}
		locations[a.Location] = true
	}

	for i, r := range d.PushConstants {
		if r.Size <= 0 || r.Size%4 != 0 || r.Offset%4 != 0 {
			return errors.Newf("push constant range %d (offset %d size %d) is not word aligned", i, r.Offset, r.Size)
		}
		if r.Stages == 0 {
			return errors.Newf("push constant range %d has no stages", i)
		}
	}
	return nil
}

// Pipeline is a graphics pipeline and the layout it was built with.
type Pipeline struct {
	Handle gpu.Pipeline
	Layout gpu.PipelineLayout
}

func (p *Pipeline) Destroy() {
	if p == nil {
		return
	}
	if p.Handle != nil {
		p.Handle.Destroy()
		p.Handle = nil
	}
	if p.Layout != nil {
		p.Layout.Destroy()
		p.Layout = nil
	}
}

// Build creates the pipeline. Shader modules only live until the pipeline is
// linked. cache may be nil.
func Build(device gpu.Device, cache gpu.PipelineCache, desc Desc, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	entryPoint := desc.EntryPoint
	if entryPoint == "" {
		entryPoint = "main"
	}

	start := hrtime.Now()

	vertShader, err := device.CreateShaderModule(desc.VertexCode)
	if err != nil {
		return nil, errors.Wrap(err, "create vertex shader module")
	}
	defer vertShader.Destroy()

	fragShader, err := device.CreateShaderModule(desc.FragmentCode)
	if err != nil {
		return nil, errors.Wrap(err, "create fragment shader module")
	}
	defer fragShader.Destroy()

	layout, err := device.CreatePipelineLayout(desc.SetLayouts, desc.PushConstants)
	if err != nil {
		return nil, errors.Wrap(err, "create pipeline layout")
	}

	handle, err := device.CreateGraphicsPipeline(cache, gpu.GraphicsPipelineDesc{
		VertexShader:   vertShader,
		FragmentShader: fragShader,
		EntryPoint:     entryPoint,

		VertexInput: &core1_0.PipelineVertexInputStateCreateInfo{
			VertexBindingDescriptions:   desc.Bindings,
			VertexAttributeDescriptions: desc.Attributes,
		},
		InputAssembly: &core1_0.PipelineInputAssemblyStateCreateInfo{
			Topology:               core1_0.PrimitiveTopologyTriangleList,
			PrimitiveRestartEnable: false,
		},
		// One viewport and scissor, both set while recording.
		Viewport: &core1_0.PipelineViewportStateCreateInfo{
			Viewports: []core1_0.Viewport{{}},
			Scissors:  []core1_0.Rect2D{{}},
		},
		Rasterization: &core1_0.PipelineRasterizationStateCreateInfo{
			DepthClampEnable:        false,
			RasterizerDiscardEnable: false,

			PolygonMode: core1_0.PolygonModeFill,
			CullMode:    core1_0.CullModeBack,
			FrontFace:   core1_0.FrontFaceClockwise,

			DepthBiasEnable: false,

			LineWidth: 1.0,
		},
		Multisample: &core1_0.PipelineMultisampleStateCreateInfo{
			SampleShadingEnable:  false,
			RasterizationSamples: core1_0.Samples1,
			MinSampleShading:     1.0,
		},
		ColorBlend: &core1_0.PipelineColorBlendStateCreateInfo{
			LogicOpEnabled: false,
			LogicOp:        core1_0.LogicOpCopy,

			BlendConstants: [4]float32{0, 0, 0, 0},
			Attachments: []core1_0.PipelineColorBlendAttachmentState{
				{
					BlendEnabled:   false,
					ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
				},
			},
		},
		DynamicStates: []core1_0.DynamicState{core1_0.DynamicStateViewport, core1_0.DynamicStateScissor},

		Layout:     layout,
		RenderPass: desc.RenderPass,
		Subpass:    0,
	})
	if err != nil {
		layout.Destroy()
		return nil, errors.Wrap(err, "create graphics pipeline")
	}

	logger.Debug("graphics pipeline built",
		slog.Duration("elapsed", hrtime.Since(start)),
		slog.Bool("cached", cache != nil))
	return &Pipeline{Handle: handle, Layout: layout}, nil
}
