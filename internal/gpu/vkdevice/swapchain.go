package vkdevice

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/quad/internal/gpu"
)

type swapchain struct {
	device *Device
	handle khr_swapchain.Swapchain
}

func (d *Device) CreateSwapchain(info gpu.SwapchainCreateInfo) (gpu.Swapchain, error) {
	handle, _, err := d.swapchainExtension.CreateSwapchain(nil, khr_swapchain.SwapchainCreateInfo{
		Surface: d.surface,

		MinImageCount:    info.MinImageCount,
		ImageFormat:      info.Format.Format,
		ImageColorSpace:  info.Format.ColorSpace,
		ImageExtent:      info.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   info.SharingMode,
		QueueFamilyIndices: info.QueueFamilyIndices,

		PreTransform:   info.Capabilities.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    info.PresentMode,
		Clipped:        true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create swapchain")
	}
	return &swapchain{device: d, handle: handle}, nil
}

func (s *swapchain) Destroy() {
	s.device.swapchainExtension.DestroySwapchain(s.handle, nil)
}

func (s *swapchain) Images() ([]gpu.Image, error) {
	handles, _, err := s.device.swapchainExtension.GetSwapchainImages(s.handle)
	if err != nil {
		return nil, errors.Wrap(err, "get swapchain images")
	}

	images := make([]gpu.Image, 0, len(handles))
	for _, handle := range handles {
		images = append(images, &image{device: s.device, handle: handle, presentable: true})
	}
	return images, nil
}

func (s *swapchain) AcquireNextImage(t time.Duration, signal gpu.Semaphore) (int, error) {
	handle := signal.(*semaphore).handle
	index, res, err := s.device.swapchainExtension.AcquireNextImage(s.handle, timeout(t), &handle, nil)
	// Suboptimal still hands out a valid image and signals the semaphore.
	return index, checkResult(res, err, "acquire next image")
}
