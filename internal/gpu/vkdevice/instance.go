package vkdevice

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/quad/internal/gpu"
)

func (d *Device) createInstance(appName string, windowExtensions []string, validation bool) error {
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    appName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "quad",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	extensions, _, err := d.globalDriver.AvailableExtensions()
	if err != nil {
		return errors.Wrap(err, "enumerate instance extensions")
	}

	for _, ext := range windowExtensions {
		_, hasExt := extensions[ext]
		if !hasExt {
			return errors.Errorf("create instance: window requires missing extension %s", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	if validation {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
	}

	_, enumerationSupported := extensions[khr_portability_enumeration.ExtensionName]
	if enumerationSupported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if validation {
		layers, _, err := d.globalDriver.AvailableLayers()
		if err != nil {
			return errors.Wrap(err, "enumerate instance layers")
		}

		for _, layer := range validationLayers {
			_, hasValidation := layers[layer]
			if !hasValidation {
				return errors.Errorf("create instance: validation layer %s not available, install the Vulkan SDK", layer)
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}

		// Covers messages emitted while the instance itself is created.
		instanceOptions.Next = d.debugMessengerOptions()
	}

	d.instanceDriver, _, err = d.globalDriver.CreateInstance(nil, instanceOptions)
	if err != nil {
		return errors.Wrap(err, "create instance")
	}
	return nil
}

func (d *Device) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    d.logDebug,
	}
}

func (d *Device) setupDebugMessenger() error {
	var err error
	d.debugDriver = ext_debug_utils.CreateExtensionDriverFromCoreDriver(d.instanceDriver)
	d.debugMessenger, _, err = d.debugDriver.CreateDebugUtilsMessenger(nil, d.debugMessengerOptions())
	if err != nil {
		return errors.Wrap(err, "create debug messenger")
	}
	return nil
}

func (d *Device) logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	d.logger.Log(context.Background(), severityLevel(severity), data.Message,
		slog.String("type", msgType.String()))
	return false
}

func severityLevel(severity ext_debug_utils.DebugUtilsMessageSeverityFlags) slog.Level {
	switch {
	case severity&ext_debug_utils.SeverityError != 0:
		return slog.LevelError
	case severity&ext_debug_utils.SeverityWarning != 0:
		return slog.LevelWarn
	}
	return slog.LevelDebug
}

func (d *Device) pickPhysicalDevice() error {
	physicalDevices, _, err := d.instanceDriver.EnumeratePhysicalDevices()
	if err != nil {
		return errors.Wrap(err, "enumerate physical devices")
	}

	for _, device := range physicalDevices {
		indices, ok := d.isDeviceSuitable(device)
		if !ok {
			continue
		}

		properties, err := d.instanceDriver.GetPhysicalDeviceProperties(device)
		if err != nil {
			return errors.Wrap(err, "query device properties")
		}

		d.physicalDevice = device
		d.families = indices
		d.memProperties = d.instanceDriver.GetPhysicalDeviceMemoryProperties(device)
		d.info = gpu.DeviceInfo{
			Name:              properties.DeviceName,
			VendorID:          properties.VendorID,
			DeviceID:          properties.DeviceID,
			PipelineCacheUUID: properties.PipelineCacheUUID,
			MaxImageDimension: properties.Limits.MaxImageDimension2D,
			MaxAnisotropy:     properties.Limits.MaxSamplerAnisotropy,
		}
		return nil
	}

	return gpu.ErrNoSuitableDevice
}

func (d *Device) isDeviceSuitable(device core1_0.PhysicalDevice) (gpu.QueueFamilyIndices, bool) {
	indices, err := d.findQueueFamilies(device)
	if err != nil || indices.Validate() != nil {
		return indices, false
	}

	if !d.checkDeviceExtensionSupport(device) {
		return indices, false
	}

	support, err := d.querySurfaceSupport(device)
	if err != nil || len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		return indices, false
	}

	features := d.instanceDriver.GetPhysicalDeviceFeatures(device)
	return indices, features.SamplerAnisotropy
}

func (d *Device) checkDeviceExtensionSupport(device core1_0.PhysicalDevice) bool {
	extensions, _, err := d.instanceDriver.EnumerateDeviceExtensionProperties(device)
	if err != nil {
		return false
	}

	for _, extension := range deviceExtensions {
		_, hasExtension := extensions[extension]
		if !hasExtension {
			return false
		}
	}
	return true
}

func (d *Device) findQueueFamilies(device core1_0.PhysicalDevice) (gpu.QueueFamilyIndices, error) {
	properties := d.instanceDriver.GetPhysicalDeviceQueueFamilyProperties(device)
	families := make([]gpu.QueueFamily, 0, len(properties))
	for _, family := range properties {
		families = append(families, gpu.QueueFamily{Flags: family.QueueFlags, QueueCount: family.QueueCount})
	}

	return gpu.FindQueueFamilies(families, func(family int) (bool, error) {
		supported, _, err := d.surfaceExtension.GetPhysicalDeviceSurfaceSupport(d.surface, device, family)
		return supported, err
	})
}

func (d *Device) createLogicalDevice() error {
	var queueFamilyOptions []core1_0.DeviceQueueCreateInfo
	queuePriority := float32(1.0)
	for _, queueFamily := range d.families.Unique() {
		queueFamilyOptions = append(queueFamilyOptions, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: queueFamily,
			QueuePriorities:  []float32{queuePriority},
		})
	}

	var extensionNames []string
	extensionNames = append(extensionNames, deviceExtensions...)

	extensions, _, err := d.instanceDriver.EnumerateDeviceExtensionProperties(d.physicalDevice)
	if err != nil {
		return errors.Wrap(err, "enumerate device extensions")
	}

	// Required wherever the implementation is a portability subset, e.g. MoltenVK.
	_, supported := extensions[khr_portability_subset.ExtensionName]
	if supported {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	d.deviceDriver, _, err = d.instanceDriver.CreateDevice(d.physicalDevice, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: queueFamilyOptions,
		EnabledFeatures: &core1_0.PhysicalDeviceFeatures{
			SamplerAnisotropy: true,
		},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return errors.Wrap(err, "create logical device")
	}

	d.swapchainExtension = khr_swapchain.CreateExtensionDriverFromCoreDriver(d.deviceDriver)

	d.graphicsQueue = &queue{device: d, name: "graphics", handle: d.deviceDriver.GetQueue(*d.families.Graphics, 0)}
	d.presentQueue = &queue{device: d, name: "present", handle: d.deviceDriver.GetQueue(*d.families.Present, 0)}
	d.transferQueue = &queue{device: d, name: "transfer", handle: d.deviceDriver.GetQueue(*d.families.Transfer, 0)}
	return nil
}
