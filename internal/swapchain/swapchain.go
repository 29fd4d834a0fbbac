// Package swapchain owns the presentable image chain, its views and the
// framebuffers built on them.
package swapchain

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"

	"github.com/vkngwrapper/quad/internal/gpu"
)

var (
	ErrNoSurfaceFormats = errors.New("surface reports no formats")
	ErrNoPresentModes   = errors.New("surface reports no present modes")
	// ErrZeroExtent means the surface has no area right now, usually because
	// the window is minimized. Nothing can be created until it grows again.
	ErrZeroExtent = errors.New("surface extent is empty")
)

// State is one generation of the swapchain. Images, Views and Framebuffers
// always have the same length and are created and destroyed together.
type State struct {
	Swapchain    gpu.Swapchain
	Images       []gpu.Image
	Views        []gpu.ImageView
	Framebuffers []gpu.Framebuffer

	Format      khr_surface.SurfaceFormat
	Extent      core1_0.Extent2D
	PresentMode khr_surface.PresentMode
}

// Plan is the outcome of negotiating with the surface.
type Plan struct {
	Capabilities *khr_surface.SurfaceCapabilities
	Format       khr_surface.SurfaceFormat
	PresentMode  khr_surface.PresentMode
	Extent       core1_0.Extent2D
	ImageCount   int
	SharingMode  core1_0.SharingMode
	Families     []int
}

type Manager struct {
	device gpu.Device
	logger *slog.Logger

	// Preferred is the format chosen when the surface offers it.
	Preferred khr_surface.SurfaceFormat
	// RenderPass is the pass framebuffers are created against. Without one
	// Create leaves Framebuffers empty.
	RenderPass gpu.RenderPass
}

func NewManager(device gpu.Device, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		device:    device,
		logger:    logger,
		Preferred: PreferredFormat,
	}
}

// Plan queries the surface and picks format, present mode, extent, image count
// and sharing mode for a drawable of the given size.
func (m *Manager) Plan(width, height int) (Plan, error) {
	support, err := m.device.SurfaceSupport()
	if err != nil {
		return Plan{}, errors.Wrap(err, "query swapchain support")
	}
	if support.Capabilities == nil {
		return Plan{}, errors.New("query swapchain support: no surface capabilities")
	}
	if len(support.Formats) == 0 {
		return Plan{}, ErrNoSurfaceFormats
	}
	if len(support.PresentModes) == 0 {
		return Plan{}, ErrNoPresentModes
	}

	sharing, families := Sharing(m.device.QueueFamilies())
	return Plan{
		Capabilities: support.Capabilities,
		Format:       support.Formats[ChooseSurfaceFormat(support.Formats, m.Preferred)],
		PresentMode:  ChoosePresentMode(support.PresentModes),
		Extent:       ChooseExtent(support.Capabilities, width, height),
		ImageCount:   ImageCount(support.Capabilities),
		SharingMode:  sharing,
		Families:     families,
	}, nil
}

// Create negotiates and builds a new swapchain generation. On failure nothing
// created so far is left behind.
func (m *Manager) Create(width, height int) (*State, error) {
	plan, err := m.Plan(width, height)
	if err != nil {
		return nil, err
	}
	if plan.Extent.Width == 0 || plan.Extent.Height == 0 {
		return nil, errors.Wrapf(ErrZeroExtent, "swapchain extent %dx%d", plan.Extent.Width, plan.Extent.Height)
	}

	swapchain, err := m.device.CreateSwapchain(gpu.SwapchainCreateInfo{
		Capabilities:       plan.Capabilities,
		MinImageCount:      plan.ImageCount,
		Format:             plan.Format,
		Extent:             plan.Extent,
		PresentMode:        plan.PresentMode,
		SharingMode:        plan.SharingMode,
		QueueFamilyIndices: plan.Families,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create swapchain")
	}

	state := &State{
		Swapchain:   swapchain,
		Format:      plan.Format,
		Extent:      plan.Extent,
		PresentMode: plan.PresentMode,
	}

	if err := m.build(state); err != nil {
		m.Destroy(state)
		return nil, err
	}

	m.logger.Debug("swapchain created",
		slog.Int("width", state.Extent.Width),
		slog.Int("height", state.Extent.Height),
		slog.Any("format", state.Format.Format),
		slog.Any("present_mode", state.PresentMode),
		slog.Int("images", len(state.Images)))
	return state, nil
}

func (m *Manager) build(state *State) error {
	images, err := state.Swapchain.Images()
	if err != nil {
		return errors.Wrap(err, "get swapchain images")
	}
	state.Images = images

	for i, image := range images {
		view, err := m.device.CreateImageView(image, state.Format.Format)
		if err != nil {
			return errors.Wrapf(err, "create view for swapchain image %d", i)
		}
		state.Views = append(state.Views, view)
	}

	if m.RenderPass != nil {
		if err := m.CreateFramebuffers(state); err != nil {
			return err
		}
	}
	return nil
}

// CreateFramebuffers builds one framebuffer per view against RenderPass.
func (m *Manager) CreateFramebuffers(state *State) error {
	if m.RenderPass == nil {
		return errors.New("create framebuffers: no render pass")
	}
	if len(state.Framebuffers) > 0 {
		return errors.New("create framebuffers: state already has framebuffers")
	}

	for i, view := range state.Views {
		fb, err := m.device.CreateFramebuffer(m.RenderPass, state.Extent, view)
		if err != nil {
			return errors.Wrapf(err, "create framebuffer %d", i)
		}
		state.Framebuffers = append(state.Framebuffers, fb)
	}

	if len(state.Framebuffers) != len(state.Images) || len(state.Views) != len(state.Images) {
		return errors.AssertionFailedf("swapchain has %d images, %d views, %d framebuffers",
			len(state.Images), len(state.Views), len(state.Framebuffers))
	}
	return nil
}

// Destroy releases a generation framebuffers first, then views, then the
// swapchain that owns the images. Safe to call on a partially built or
// already destroyed state.
func (m *Manager) Destroy(state *State) {
	if state == nil {
		return
	}

	var swapchain []gpu.Releaser
	if state.Swapchain != nil {
		swapchain = append(swapchain, state.Swapchain)
	}
	gpu.ReleaseInOrder(
		gpu.Releasers(state.Framebuffers),
		gpu.Releasers(state.Views),
		swapchain,
	)

	state.Framebuffers = nil
	state.Views = nil
	state.Images = nil
	state.Swapchain = nil
}

// Recreate destroys the old generation and builds a new one. The caller makes
// sure the device is idle first.
func (m *Manager) Recreate(state *State, width, height int) (*State, error) {
	m.Destroy(state)
	return m.Create(width, height)
}
