// Package app wires the window, the device and the frame engine together and
// runs the event loop.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/loov/hrtime"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/quad/internal/assets"
	"github.com/vkngwrapper/quad/internal/commands"
	"github.com/vkngwrapper/quad/internal/config"
	"github.com/vkngwrapper/quad/internal/frame"
	"github.com/vkngwrapper/quad/internal/gpu"
	"github.com/vkngwrapper/quad/internal/gpu/vkdevice"
	"github.com/vkngwrapper/quad/internal/memory"
	"github.com/vkngwrapper/quad/internal/mesh"
	"github.com/vkngwrapper/quad/internal/pipeline"
	"github.com/vkngwrapper/quad/internal/swapchain"
	"github.com/vkngwrapper/quad/internal/texture"
	"github.com/vkngwrapper/quad/internal/window"
)

// Device is a gpu.Device that also owns the instance behind it.
type Device interface {
	gpu.Device
	Close()
}

type WindowOpener func(cfg *config.Config) (window.Window, error)

type DeviceOpener func(cfg *config.Config, surfaces window.SurfaceProvider, logger *slog.Logger) (Device, error)

type Option func(*App)

// WithWindow replaces the SDL window.
func WithWindow(open WindowOpener) Option {
	return func(a *App) { a.openWindow = open }
}

// WithDevice replaces the Vulkan device.
func WithDevice(open DeviceOpener) Option {
	return func(a *App) { a.openDevice = open }
}

// pushConstantSize is one column-major mat4 for the vertex stage.
const pushConstantSize = 16 * 4

type App struct {
	cfg    *config.Config
	logger *slog.Logger

	openWindow WindowOpener
	openDevice DeviceOpener

	arena  gpu.Arena
	window window.Window
	device Device
	engine *frame.Engine

	recorder commands.Recorder
	scene    commands.Scene
	start    time.Duration

	stats frame.Stats
}

func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *App {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		openWindow: func(cfg *config.Config) (window.Window, error) {
			w, err := window.OpenSDL(cfg.Title, cfg.Width, cfg.Height)
			if err != nil {
				return nil, err
			}
			return w, nil
		},
		openDevice: func(cfg *config.Config, surfaces window.SurfaceProvider, logger *slog.Logger) (Device, error) {
			d, err := vkdevice.Open(cfg, surfaces, logger)
			if err != nil {
				return nil, err
			}
			return d, nil
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Stats reports what the frame engine counted. Valid once Run returned.
func (a *App) Stats() frame.Stats {
	return a.stats
}

// Run opens the window and renders until it is closed or ctx is done. All
// resources are released before Run returns.
func (a *App) Run(ctx context.Context) (err error) {
	defer a.arena.Release()

	if err := a.init(ctx); err != nil {
		return err
	}

	err = a.loop(ctx)

	a.stats = a.engine.Stats()
	if closeErr := a.engine.Close(); closeErr != nil {
		err = errors.CombineErrors(err, closeErr)
	}
	return err
}

func (a *App) init(ctx context.Context) error {
	var err error
	a.window, err = a.openWindow(a.cfg)
	if err != nil {
		return errors.Wrap(err, "open window")
	}
	a.arena.Track(a.window)

	a.device, err = a.openDevice(a.cfg, a.window, a.logger)
	if err != nil {
		return errors.Wrap(err, "open device")
	}
	a.arena.Defer(a.device.Close)
	info := a.device.Info()

	loaded, err := assets.Load(ctx, a.cfg.FS(), a.cfg, info.MaxImageDimension, a.logger)
	if err != nil {
		return errors.Wrap(err, "load assets")
	}

	manager := swapchain.NewManager(a.device, a.logger)
	width, height := a.window.DrawableSize()
	if width == 0 || height == 0 {
		width, height = a.cfg.Width, a.cfg.Height
	}
	plan, err := manager.Plan(width, height)
	if err != nil {
		return err
	}

	allocator, err := memory.NewAllocator(a.device, a.logger)
	if err != nil {
		return err
	}
	a.arena.Track(allocator)

	renderPass, err := pipeline.CreateRenderPass(a.device, plan.Format.Format)
	if err != nil {
		return err
	}
	a.arena.Track(renderPass)
	manager.RenderPass = renderPass

	setLayout, err := pipeline.CreateTextureSetLayout(a.device)
	if err != nil {
		return err
	}
	a.arena.Track(setLayout)

	cache, err := a.pipelineCache(info)
	if err != nil {
		return err
	}

	pipe, err := pipeline.Build(a.device, cache, pipeline.Desc{
		VertexCode:   loaded.VertexShader,
		FragmentCode: loaded.FragmentShader,
		Bindings:     mesh.Bindings(),
		Attributes:   mesh.Attributes(),
		SetLayouts:   []gpu.DescriptorSetLayout{setLayout},
		PushConstants: []gpu.PushConstantRange{
			{Stages: core1_0.StageVertex, Offset: 0, Size: pushConstantSize},
		},
		RenderPass: renderPass,
	}, a.logger)
	if err != nil {
		return err
	}
	a.arena.Track(pipe)

	if err := a.uploadScene(allocator, loaded, setLayout, pipe); err != nil {
		return err
	}

	state, err := manager.Create(width, height)
	if err != nil {
		return err
	}

	a.recorder = commands.Recorder{ClearColor: a.cfg.ClearColor}
	a.engine, err = frame.New(a.device, manager, state, frame.RecordFunc(a.record), frame.Options{
		FramesInFlight: a.cfg.FramesInFlight,
		Logger:         a.logger,
	})
	if err != nil {
		manager.Destroy(state)
		return err
	}
	a.arena.Defer(func() {
		// Run closes the engine on the normal path; this covers early exits.
		if err := a.engine.Close(); err != nil {
			a.logger.Error("close frame engine", slog.Any("err", err))
		}
	})

	a.logger.Info("renderer ready",
		slog.Int("width", state.Extent.Width),
		slog.Int("height", state.Extent.Height),
		slog.Int("images", len(state.Images)),
		slog.Any("present_mode", state.PresentMode),
		slog.Int("frames_in_flight", a.engine.FramesInFlight()))
	return nil
}

// pipelineCache creates the pipeline cache, seeded from the configured file.
// The cache is written back to that file at teardown.
func (a *App) pipelineCache(info gpu.DeviceInfo) (gpu.PipelineCache, error) {
	var data []byte
	path := ""
	if a.cfg.PipelineCache != "" {
		path = a.cfg.Path(a.cfg.PipelineCache)
		var err error
		data, err = pipeline.LoadCache(path, info, a.logger)
		if err != nil {
			return nil, err
		}
	}

	cache, err := a.device.CreatePipelineCache(data)
	if err != nil {
		return nil, err
	}
	a.arena.Defer(func() {
		if path != "" {
			if err := pipeline.SaveCache(path, cache); err != nil {
				a.logger.Warn("save pipeline cache", slog.String("path", path), slog.Any("err", err))
			}
		}
		cache.Destroy()
	})
	return cache, nil
}

func (a *App) uploadScene(allocator *memory.Allocator, loaded *assets.Assets, setLayout gpu.DescriptorSetLayout, pipe *pipeline.Pipeline) error {
	vertexData, err := loaded.Mesh.VertexBytes()
	if err != nil {
		return errors.Wrap(err, "encode vertices")
	}
	vertices, err := allocator.Upload(vertexData, core1_0.BufferUsageVertexBuffer)
	if err != nil {
		return errors.Wrap(err, "upload vertices")
	}
	a.arena.Track(vertices)

	a.scene = commands.Scene{
		Pipeline:     pipe.Handle,
		Layout:       pipe.Layout,
		VertexBuffer: vertices.Handle,
		VertexCount:  len(loaded.Mesh.Vertices),
		PushStages:   core1_0.StageVertex,
	}

	if len(loaded.Mesh.Indices) > 0 {
		indexData, err := loaded.Mesh.IndexBytes()
		if err != nil {
			return errors.Wrap(err, "encode indices")
		}
		indices, err := allocator.Upload(indexData, core1_0.BufferUsageIndexBuffer)
		if err != nil {
			return errors.Wrap(err, "upload indices")
		}
		a.arena.Track(indices)
		a.scene.IndexBuffer = indices.Handle
		a.scene.IndexCount = len(loaded.Mesh.Indices)
	}

	bounds := loaded.Texture.Bounds()
	tex, err := allocator.UploadTexture(texture.Pixels(loaded.Texture), bounds.Dx(), bounds.Dy())
	if err != nil {
		return errors.Wrap(err, "upload texture")
	}
	a.arena.Track(tex)

	set, err := pipeline.NewTextureSet(a.device, setLayout, tex.View, tex.Sampler)
	if err != nil {
		return err
	}
	a.arena.Track(set)
	a.scene.DescriptorSet = set.Set

	a.scene.PushConstants, err = encodeMatrix(mgl32.Ident4())
	if err != nil {
		return err
	}
	a.start = hrtime.Now()
	return a.scene.Validate()
}

func (a *App) record(cb gpu.CommandBuffer, target commands.Target) error {
	return a.recorder.Record(cb, target, a.scene)
}
