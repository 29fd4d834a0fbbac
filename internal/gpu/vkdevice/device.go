// Package vkdevice implements the gpu interfaces on top of vkngwrapper.
//
// Open walks the usual bring-up: instance, debug messenger, window surface,
// physical device, logical device and queues. Everything it creates is torn
// down by Close in reverse order.
package vkdevice

import (
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/quad/internal/config"
	"github.com/vkngwrapper/quad/internal/gpu"
	"github.com/vkngwrapper/quad/internal/window"
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}
var deviceExtensions = []string{khr_swapchain.ExtensionName}

type Device struct {
	logger *slog.Logger

	globalDriver   core1_0.GlobalDriver
	instanceDriver core1_0.CoreInstanceDriver
	deviceDriver   core1_0.CoreDeviceDriver

	debugDriver      ext_debug_utils.ExtensionDriver
	debugMessenger   ext_debug_utils.DebugUtilsMessenger
	surfaceExtension khr_surface.ExtensionDriver
	surface          khr_surface.Surface

	swapchainExtension khr_swapchain.ExtensionDriver

	physicalDevice core1_0.PhysicalDevice
	info           gpu.DeviceInfo
	memProperties  *core1_0.PhysicalDeviceMemoryProperties
	families       gpu.QueueFamilyIndices

	graphicsQueue *queue
	presentQueue  *queue
	transferQueue *queue

	closed bool
}

var _ gpu.Device = (*Device)(nil)

// Open brings up Vulkan for the given window. On failure everything created so
// far is destroyed again; the window stays with the caller.
func Open(cfg *config.Config, surfaces window.SurfaceProvider, logger *slog.Logger) (*Device, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	d := &Device{logger: logger}

	err := d.open(cfg, surfaces)
	if err != nil {
		d.Close()
		return nil, err
	}

	logger.Info("device ready",
		slog.String("gpu", d.info.Name),
		slog.Int("graphicsFamily", *d.families.Graphics),
		slog.Int("presentFamily", *d.families.Present),
		slog.Int("transferFamily", *d.families.Transfer))
	return d, nil
}

func (d *Device) open(cfg *config.Config, surfaces window.SurfaceProvider) error {
	var err error
	d.globalDriver, err = core.CreateDriverFromProcAddr(surfaces.ProcAddr())
	if err != nil {
		return errors.Wrap(err, "load vulkan")
	}

	err = d.createInstance(cfg.Title, surfaces.InstanceExtensions(), cfg.Validation)
	if err != nil {
		return err
	}

	if cfg.Validation {
		err = d.setupDebugMessenger()
		if err != nil {
			return err
		}
	}

	d.surfaceExtension = khr_surface.CreateExtensionDriverFromCoreDriver(d.instanceDriver)
	d.surface, err = surfaces.CreateSurface(d.instanceDriver.Instance(), d.surfaceExtension)
	if err != nil {
		return err
	}

	err = d.pickPhysicalDevice()
	if err != nil {
		return err
	}

	return d.createLogicalDevice()
}

func (d *Device) Info() gpu.DeviceInfo {
	return d.info
}

func (d *Device) QueueFamilies() gpu.QueueFamilyIndices {
	return d.families
}

func (d *Device) GraphicsQueue() gpu.Queue { return d.graphicsQueue }

func (d *Device) PresentQueue() gpu.Queue { return d.presentQueue }

func (d *Device) TransferQueue() gpu.Queue { return d.transferQueue }

func (d *Device) MemoryProperties() *core1_0.PhysicalDeviceMemoryProperties {
	return d.memProperties
}

func (d *Device) SurfaceSupport() (gpu.SurfaceSupport, error) {
	return d.querySurfaceSupport(d.physicalDevice)
}

func (d *Device) querySurfaceSupport(physicalDevice core1_0.PhysicalDevice) (gpu.SurfaceSupport, error) {
	var support gpu.SurfaceSupport
	var err error

	support.Capabilities, _, err = d.surfaceExtension.GetPhysicalDeviceSurfaceCapabilities(d.surface, physicalDevice)
	if err != nil {
		return support, errors.Wrap(err, "query surface capabilities")
	}

	support.Formats, _, err = d.surfaceExtension.GetPhysicalDeviceSurfaceFormats(d.surface, physicalDevice)
	if err != nil {
		return support, errors.Wrap(err, "query surface formats")
	}

	support.PresentModes, _, err = d.surfaceExtension.GetPhysicalDeviceSurfacePresentModes(d.surface, physicalDevice)
	if err != nil {
		return support, errors.Wrap(err, "query present modes")
	}
	return support, nil
}

func (d *Device) WaitIdle() error {
	res, err := d.deviceDriver.DeviceWaitIdle()
	return checkResult(res, err, "wait for device idle")
}

// Close destroys the logical device, the surface, the debug messenger and the
// instance. Every handle created from the device must be gone by then.
func (d *Device) Close() {
	if d.closed {
		return
	}
	d.closed = true

	if d.deviceDriver != nil {
		d.deviceDriver.DestroyDevice(nil)
	}

	if d.surface.Initialized() {
		d.surfaceExtension.DestroySurface(d.surface, nil)
	}

	if d.debugMessenger.Initialized() {
		d.debugDriver.DestroyDebugUtilsMessenger(d.debugMessenger, nil)
	}

	if d.instanceDriver != nil {
		d.instanceDriver.DestroyInstance(nil)
	}
}

// checkResult folds the Vulkan result codes the engine reacts to into the gpu
// sentinels.
func checkResult(res common.VkResult, err error, what string) error {
	switch res {
	case khr_swapchain.VKErrorOutOfDate:
		return errors.Wrap(gpu.ErrOutOfDate, what)
	case khr_swapchain.VKSuboptimal:
		return errors.Wrap(gpu.ErrSuboptimal, what)
	case core1_0.VKErrorDeviceLost:
		return errors.Wrap(gpu.ErrDeviceLost, what)
	case core1_0.VKTimeout:
		return errors.Newf("%s: timed out", what)
	}
	if err != nil {
		return errors.Wrap(err, what)
	}
	return nil
}

func timeout(t time.Duration) time.Duration {
	if t == gpu.NoTimeout {
		return common.NoTimeout
	}
	return t
}
