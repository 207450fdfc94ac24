// Package vulkan opens gpucore devices on Vulkan through
// github.com/vulkan-go/vulkan.
//
// Memory types, fences, semaphores and swapchains map one to one onto their
// Vulkan counterparts. The device uses a single queue family that supports
// graphics and, when opened with a window, presentation to its surface.
//
// Building with the nogpu tag leaves the package empty and the backend
// unregistered.
package vulkan
