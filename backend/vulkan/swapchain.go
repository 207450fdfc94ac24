//go:build !nogpu

package vulkan

import (
	"fmt"
	"math"
	"slices"
	"time"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/gfxcore/backend"
	"github.com/gogpu/gfxcore/gpucore"
)

// surface is a VkSurfaceKHR created for a window. It is owned by the device.
type surface struct {
	raw    vk.Surface
	handle uintptr
	win    backend.Window
}

func (s *surface) NativeHandle() uintptr          { return s.handle }
func (s *surface) Extent() (width, height uint32) { return s.win.Extent() }

type swapchain struct {
	id     uintptr
	dev    *Device
	raw    vk.Swapchain
	images []gpucore.Texture
	format gpucore.TextureFormat
	extent gpucore.Extent3D
	mode   gpucore.PresentMode
}

func (s *swapchain) NativeHandle() uintptr            { return s.id }
func (s *swapchain) Images() []gpucore.Texture        { return s.images }
func (s *swapchain) Format() gpucore.TextureFormat    { return s.format }
func (s *swapchain) Extent() gpucore.Extent3D         { return s.extent }
func (s *swapchain) PresentMode() gpucore.PresentMode { return s.mode }

// AcquireNextImage implements gpucore.Swapchain.
func (s *swapchain) AcquireNextImage(signal gpucore.Semaphore, timeout time.Duration) (uint32, error) {
	sem := vk.Semaphore(vk.NullHandle)
	if signal != nil {
		vs, ok := signal.(*semaphore)
		if !ok {
			return 0, fmt.Errorf("%w: foreign semaphore", gpucore.ErrInvalidArgs)
		}
		sem = vs.raw
	}
	var index uint32
	res := vk.AcquireNextImage(s.dev.device, s.raw, timeoutNanos(timeout), sem, vk.Fence(vk.NullHandle), &index)
	return index, s.dev.check("acquire next image", res)
}

func (d *Device) ownSurface(sf gpucore.Surface) (*surface, error) {
	s, ok := sf.(*surface)
	if !ok || d.surface == nil || s != d.surface {
		return nil, fmt.Errorf("%w: surface was not created by this device", gpucore.ErrInvalidArgs)
	}
	return s, nil
}

// PresentModes implements gpucore.Device. FIFO is always listed.
func (d *Device) PresentModes(sf gpucore.Surface) []gpucore.PresentMode {
	s, err := d.ownSurface(sf)
	if err != nil {
		return nil
	}
	var count uint32
	vk.GetPhysicalDeviceSurfacePresentModes(d.gpu, s.raw, &count, nil)
	raw := make([]vk.PresentMode, count)
	vk.GetPhysicalDeviceSurfacePresentModes(d.gpu, s.raw, &count, raw)

	modes := []gpucore.PresentMode{gpucore.PresentModeFifo}
	for _, m := range raw {
		if pm, ok := presentModeFromVulkan(m); ok && pm != gpucore.PresentModeFifo {
			modes = append(modes, pm)
		}
	}
	return modes
}

// CreateSwapchain implements gpucore.Device. The requested format and
// present mode are used when the surface supports them; otherwise the
// surface's first format and FIFO are chosen and reported by the swapchain.
func (d *Device) CreateSwapchain(desc *gpucore.SwapchainDescriptor) (gpucore.Swapchain, error) {
	if desc == nil {
		return nil, gpucore.ErrInvalidArgs
	}
	s, err := d.ownSurface(desc.Surface)
	if err != nil {
		return nil, err
	}

	var caps vk.SurfaceCapabilities
	if err := d.check("surface capabilities", vk.GetPhysicalDeviceSurfaceCapabilities(d.gpu, s.raw, &caps)); err != nil {
		return nil, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	extent := chooseExtent(caps, desc.Width, desc.Height)
	if extent.Width == 0 || extent.Height == 0 {
		return nil, fmt.Errorf("create swapchain: zero extent: %w", gpucore.ErrOutOfDate)
	}
	surfaceFormat, err := d.chooseFormat(s, desc.Format)
	if err != nil {
		return nil, err
	}
	mode := desc.PresentMode
	if !slices.Contains(d.PresentModes(s), mode) {
		mode = gpucore.PresentModeFifo
	}

	imageCount := max(desc.MinImageCount, caps.MinImageCount)
	if caps.MaxImageCount > 0 {
		imageCount = min(imageCount, caps.MaxImageCount)
	}

	old := vk.Swapchain(vk.NullHandle)
	if o, ok := desc.Old.(*swapchain); ok && o != nil {
		old = o.raw
	}
	info := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          s.raw,
		MinImageCount:    imageCount,
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage: vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit |
			vk.ImageUsageTransferDstBit | vk.ImageUsageTransferSrcBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode(mode),
		Clipped:          vk.True,
		OldSwapchain:     old,
	}
	var raw vk.Swapchain
	if err := d.check("create swapchain", vk.CreateSwapchain(d.device, &info, nil, &raw)); err != nil {
		return nil, err
	}

	sc := &swapchain{
		id:     d.newID(),
		dev:    d,
		raw:    raw,
		format: formatFromVulkan(surfaceFormat.Format),
		extent: gpucore.Extent3D{Width: extent.Width, Height: extent.Height, DepthOrArrayLayers: 1},
		mode:   mode,
	}
	var count uint32
	vk.GetSwapchainImages(d.device, raw, &count, nil)
	images := make([]vk.Image, count)
	vk.GetSwapchainImages(d.device, raw, &count, images)
	for _, img := range images {
		sc.images = append(sc.images, &texture{
			id:  d.newID(),
			raw: img,
			desc: gpucore.TextureDescriptor{
				Label:         "swapchain",
				Size:          sc.extent,
				MipLevelCount: 1,
				SampleCount:   1,
				Format:        sc.format,
				Usage:         gpucore.TextureUsageRenderAttachment | gpucore.TextureUsageCopyDst | gpucore.TextureUsageCopySrc,
			},
		})
	}
	d.log.Debug("vulkan: swapchain created",
		"width", extent.Width, "height", extent.Height, "images", count, "format", sc.format, "mode", mode)
	return sc, nil
}

// DestroySwapchain implements gpucore.Device.
func (d *Device) DestroySwapchain(sc gpucore.Swapchain) {
	if s, ok := sc.(*swapchain); ok {
		vk.DestroySwapchain(d.device, s.raw, nil)
		s.images = nil
	}
}

// chooseExtent uses the surface's extent when it reports one and clamps the
// requested size otherwise.
func chooseExtent(caps vk.SurfaceCapabilities, width, height uint32) vk.Extent2D {
	if caps.CurrentExtent.Width != math.MaxUint32 {
		return caps.CurrentExtent
	}
	return vk.Extent2D{
		Width:  clamp(width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

func (d *Device) chooseFormat(s *surface, want gpucore.TextureFormat) (vk.SurfaceFormat, error) {
	var count uint32
	vk.GetPhysicalDeviceSurfaceFormats(d.gpu, s.raw, &count, nil)
	if count == 0 {
		return vk.SurfaceFormat{}, fmt.Errorf("%w: surface reports no formats", gpucore.ErrNotImplemented)
	}
	formats := make([]vk.SurfaceFormat, count)
	vk.GetPhysicalDeviceSurfaceFormats(d.gpu, s.raw, &count, formats)
	for i := range formats {
		formats[i].Deref()
	}
	return pickSurfaceFormat(formats, want), nil
}

// pickSurfaceFormat prefers the wanted format in the sRGB color space, then
// any known format, then the first one listed.
func pickSurfaceFormat(formats []vk.SurfaceFormat, want gpucore.TextureFormat) vk.SurfaceFormat {
	if vf, ok := textureFormat(want); ok {
		for _, f := range formats {
			if f.Format == vf && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
				return f
			}
		}
	}
	for _, f := range formats {
		if formatFromVulkan(f.Format) != gpucore.TextureFormatUndefined {
			return f
		}
	}
	return formats[0]
}
