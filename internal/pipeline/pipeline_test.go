package pipeline

import (
	"encoding/binary"
	"io/fs"
	"slices"
	"testing"
	"testing/fstest"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/quad/internal/config"
	"github.com/vkngwrapper/quad/internal/gpu"
	"github.com/vkngwrapper/quad/internal/gpu/gputest"
)

func spirv(words ...uint32) []byte {
	b := binary.LittleEndian.AppendUint32(nil, spirvMagic)
	for _, w := range words {
		b = binary.LittleEndian.AppendUint32(b, w)
	}
	return b
}

func TestLoadShader(t *testing.T) {
	fsys := fstest.MapFS{
		"shaders/vert.spv":  {Data: spirv(0x00010000, 7)},
		"shaders/odd.spv":   {Data: append(spirv(), 1, 2)},
		"shaders/empty.spv": {Data: nil},
		"shaders/glsl.spv":  {Data: []byte("#version 450\n\x00\x00\x00")},
	}

	code, err := LoadShader(fsys, "shaders/vert.spv")
	if err != nil {
		t.Fatalf("LoadShader: %+v", err)
	}
	if want := []uint32{spirvMagic, 0x00010000, 7}; !slices.Equal(code, want) {
		t.Errorf("code = %#x, want %#x", code, want)
	}

	tests := []struct {
		path string
		want error
	}{
		{"shaders/odd.spv", ErrMisalignedShader},
		{"shaders/empty.spv", ErrMisalignedShader},
		{"shaders/glsl.spv", ErrInvalidShader},
		{"shaders/missing.spv", fs.ErrNotExist},
	}
	for _, tt := range tests {
		if _, err := LoadShader(fsys, tt.path); !errors.Is(err, tt.want) {
			t.Errorf("LoadShader(%s) = %v, want %v", tt.path, err, tt.want)
		}
	}
}

// The blobs compiled from shaders/*.vert and *.frag are checked in and the
// default configuration must find them.
func TestBundledShaders(t *testing.T) {
	cfg := config.Default()
	cfg.Root = "../.."

	const opEntryPoint = 15
	entryName := binary.LittleEndian.Uint32([]byte("main"))
	for _, path := range []string{cfg.VertexShader, cfg.FragmentShader} {
		code, err := LoadShader(cfg.FS(), path)
		if err != nil {
			t.Fatalf("LoadShader(%s): %+v", path, err)
		}
		if len(code) < 5 {
			t.Fatalf("%s: %d words, want a header", path, len(code))
		}

		found := false
		for i := 5; i < len(code); {
			count, op := int(code[i]>>16), code[i]&0xffff
			if count == 0 || i+count > len(code) {
				t.Fatalf("%s: malformed instruction at word %d", path, i)
			}
			if op == opEntryPoint && count > 3 && code[i+3] == entryName {
				found = true
			}
			i += count
		}
		if !found {
			t.Errorf("%s has no main entry point", path)
		}
	}
}

func TestRenderPassInfo(t *testing.T) {
	info := RenderPassInfo(core1_0.FormatB8G8R8A8SRGB)

	if len(info.Attachments) != 1 {
		t.Fatalf("attachments = %d", len(info.Attachments))
	}
	a := info.Attachments[0]
	if a.Format != core1_0.FormatB8G8R8A8SRGB || a.LoadOp != core1_0.AttachmentLoadOpClear ||
		a.StoreOp != core1_0.AttachmentStoreOpStore || a.FinalLayout != khr_swapchain.ImageLayoutPresentSrc {
		t.Errorf("attachment = %+v", a)
	}
	if len(info.Subpasses) != 1 || len(info.Subpasses[0].ColorAttachments) != 1 {
		t.Fatalf("subpasses = %+v", info.Subpasses)
	}
	if len(info.SubpassDependencies) != 1 {
		t.Fatalf("dependencies = %d", len(info.SubpassDependencies))
	}
	dep := info.SubpassDependencies[0]
	if dep.SrcSubpass != core1_0.SubpassExternal || dep.DstSubpass != 0 ||
		dep.SrcStageMask != core1_0.PipelineStageColorAttachmentOutput ||
		dep.DstStageMask != core1_0.PipelineStageColorAttachmentOutput ||
		dep.DstAccessMask != core1_0.AccessColorAttachmentWrite {
		t.Errorf("dependency = %+v", dep)
	}
}

func validDesc(t *testing.T, dev *gputest.Device) Desc {
	t.Helper()
	rp, err := CreateRenderPass(dev, core1_0.FormatB8G8R8A8SRGB)
	if err != nil {
		t.Fatal(err)
	}
	return Desc{
		VertexCode:   []uint32{spirvMagic},
		FragmentCode: []uint32{spirvMagic},
		Bindings: []core1_0.VertexInputBindingDescription{
			{Binding: 0, Stride: 20, InputRate: core1_0.VertexInputRateVertex},
		},
		Attributes: []core1_0.VertexInputAttributeDescription{
			{Binding: 0, Location: 0, Format: core1_0.FormatR32G32SignedFloat, Offset: 0},
			{Binding: 0, Location: 1, Format: core1_0.FormatR32G32B32SignedFloat, Offset: 8},
		},
		RenderPass: rp,
	}
}

func TestDescValidate(t *testing.T) {
	dev := gputest.New()
	layout, _ := CreateTextureSetLayout(dev)

	tests := []struct {
		name   string
		modify func(*Desc)
	}{
		{"no vertex shader", func(d *Desc) { d.VertexCode = nil }},
		{"no fragment shader", func(d *Desc) { d.FragmentCode = nil }},
		{"no render pass", func(d *Desc) { d.RenderPass = nil }},
		{"two set layouts", func(d *Desc) { d.SetLayouts = []gpu.DescriptorSetLayout{layout, layout} }},
		{"duplicate binding", func(d *Desc) { d.Bindings = append(d.Bindings, d.Bindings[0]) }},
		{"zero stride", func(d *Desc) { d.Bindings[0].Stride = 0 }},
		{"attribute without binding", func(d *Desc) { d.Attributes[1].Binding = 3 }},
		{"duplicate location", func(d *Desc) { d.Attributes[1].Location = 0 }},
		{"unaligned push constants", func(d *Desc) {
			d.PushConstants = []gpu.PushConstantRange{{Stages: core1_0.StageVertex, Size: 6}}
		}},
		{"push constants without stages", func(d *Desc) {
			d.PushConstants = []gpu.PushConstantRange{{Size: 16}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDesc(t, dev)
			tt.modify(&d)
			if err := d.Validate(); err == nil {
				t.Fatal("Validate accepted the description")
			}
		})
	}

	d := validDesc(t, dev)
	d.SetLayouts = []gpu.DescriptorSetLayout{layout}
	d.PushConstants = []gpu.PushConstantRange{{Stages: core1_0.StageVertex, Size: 16}}
	if err := d.Validate(); err != nil {
		t.Errorf("valid description rejected: %v", err)
	}
}

func TestBuild(t *testing.T) {
	dev := gputest.New()
	desc := validDesc(t, dev)
	desc.PushConstants = []gpu.PushConstantRange{{Stages: core1_0.StageVertex, Size: 16}}

	p, err := Build(dev, nil, desc, nil)
	if err != nil {
		t.Fatalf("Build: %+v", err)
	}

	if n := dev.Count("Destroy shader"); n != 2 {
		t.Errorf("destroyed %d shader modules, want 2", n)
	}
	if live := dev.Live(); !slices.Equal(live, []string{"layout#0", "pipeline#0", "renderpass#0"}) {
		t.Errorf("live = %v", live)
	}

	built := p.Handle.(*gputest.Pipeline).Desc
	if built.EntryPoint != "main" {
		t.Errorf("entry point = %q", built.EntryPoint)
	}
	if r := built.Rasterization; r.PolygonMode != core1_0.PolygonModeFill || r.CullMode != core1_0.CullModeBack || r.FrontFace != core1_0.FrontFaceClockwise {
		t.Errorf("rasterization = %+v", r)
	}
	if !slices.Equal(built.DynamicStates, []core1_0.DynamicState{core1_0.DynamicStateViewport, core1_0.DynamicStateScissor}) {
		t.Errorf("dynamic states = %v", built.DynamicStates)
	}
	if len(built.ColorBlend.Attachments) != 1 || built.ColorBlend.Attachments[0].BlendEnabled {
		t.Errorf("color blend = %+v", built.ColorBlend)
	}
	if len(built.Viewport.Viewports) != 1 || len(built.Viewport.Scissors) != 1 {
		t.Errorf("viewport state = %+v", built.Viewport)
	}
	if got := p.Layout.(*gputest.PipelineLayout); got.SetLayouts != 0 || len(got.PushConstants) != 1 {
		t.Errorf("layout = %+v", got)
	}

	p.Destroy()
	desc.RenderPass.Destroy()
	if live := dev.Live(); len(live) != 0 {
		t.Errorf("leaked %v", live)
	}
}

func TestBuildFailuresLeakNothing(t *testing.T) {
	for _, method := range []string{"CreateShaderModule", "CreatePipelineLayout", "CreateGraphicsPipeline"} {
		t.Run(method, func(t *testing.T) {
			dev := gputest.New()
			desc := validDesc(t, dev)
			dev.Fail[method] = errors.New("boom")

			if _, err := Build(dev, nil, desc, nil); err == nil {
				t.Fatal("Build succeeded")
			}
			desc.RenderPass.Destroy()
			if live := dev.Live(); len(live) != 0 {
				t.Errorf("leaked %v", live)
			}
		})
	}
}

func TestTextureSet(t *testing.T) {
	dev := gputest.New()
	layout, err := CreateTextureSetLayout(dev)
	if err != nil {
		t.Fatal(err)
	}
	view, _ := dev.CreateImageView(nil, core1_0.FormatR8G8B8A8SRGB)
	sampler, _ := dev.CreateSampler(16)

	ts, err := NewTextureSet(dev, layout, view, sampler)
	if err != nil {
		t.Fatalf("NewTextureSet: %+v", err)
	}
	set := ts.Set.(*gputest.DescriptorSet)
	if want := []string{"binding=0 view=view#0 sampler=sampler#0"}; !slices.Equal(set.Writes, want) {
		t.Errorf("writes = %q, want %q", set.Writes, want)
	}

	ts.Destroy()
	ts.Destroy()
	if dev.Count("Destroy descpool") != 1 {
		t.Error("pool not destroyed exactly once")
	}

	dev.Fail["WriteImageDescriptor"] = errors.New("boom")
	if _, err := NewTextureSet(dev, layout, view, sampler); err == nil {
		t.Fatal("write failure ignored")
	}
	if dev.Count("Destroy descpool") != 2 {
		t.Error("pool leaked after a failed write")
	}
}
