//go:build !nogpu

package vulkan

import (
	"fmt"
	"time"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/gfxcore/gpucore"
)

type buffer struct {
	id   uintptr
	raw  vk.Buffer
	size uint64
}

func (b *buffer) NativeHandle() uintptr { return b.id }
func (b *buffer) Size() uint64          { return b.size }

// CreateBuffer implements gpucore.Device. Every buffer can be a transfer
// source and destination.
func (d *Device) CreateBuffer(desc *gpucore.BufferDescriptor) (gpucore.Buffer, error) {
	if desc == nil || desc.Size == 0 {
		return nil, fmt.Errorf("%w: buffer size must be positive", gpucore.ErrInvalidArgs)
	}
	usage := bufferUsage(desc.Usage) |
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit|vk.BufferUsageTransferDstBit)
	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	var raw vk.Buffer
	if err := d.check("create buffer", vk.CreateBuffer(d.device, &info, nil, &raw)); err != nil {
		return nil, err
	}
	return &buffer{id: d.newID(), raw: raw, size: desc.Size}, nil
}

// DestroyBuffer implements gpucore.Device.
func (d *Device) DestroyBuffer(buf gpucore.Buffer) {
	if b, ok := buf.(*buffer); ok {
		vk.DestroyBuffer(d.device, b.raw, nil)
	}
}

// BufferMemoryRequirements implements gpucore.Device.
func (d *Device) BufferMemoryRequirements(buf gpucore.Buffer) gpucore.MemoryRequirements {
	b, ok := buf.(*buffer)
	if !ok {
		return gpucore.MemoryRequirements{}
	}
	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, b.raw, &req)
	req.Deref()
	return gpucore.MemoryRequirements{
		Size:      uint64(req.Size),
		Alignment: uint64(req.Alignment),
		TypeBits:  req.MemoryTypeBits,
	}
}

// BindBufferMemory implements gpucore.Device.
func (d *Device) BindBufferMemory(buf gpucore.Buffer, mem gpucore.Memory, offset uint64) error {
	b, bok := buf.(*buffer)
	m, mok := mem.(*memory)
	if !bok || !mok {
		return gpucore.ErrInvalidArgs
	}
	return d.check("bind buffer memory", vk.BindBufferMemory(d.device, b.raw, m.raw, vk.DeviceSize(offset)))
}

// texture is a device image. Swapchain images are owned by their swapchain
// and are never destroyed through DestroyTexture.
type texture struct {
	id    uintptr
	raw   vk.Image
	desc  gpucore.TextureDescriptor
	owned bool
}

func (t *texture) NativeHandle() uintptr         { return t.id }
func (t *texture) Extent() gpucore.Extent3D      { return t.desc.Size }
func (t *texture) Format() gpucore.TextureFormat { return t.desc.Format }

// layers returns the array layer count. 3D textures have one.
func (t *texture) layers() uint32 {
	if t.desc.Dimension == gpucore.TextureDimension3D {
		return 1
	}
	return max(t.desc.Size.DepthOrArrayLayers, 1)
}

// CreateTexture implements gpucore.Device.
func (d *Device) CreateTexture(desc *gpucore.TextureDescriptor) (gpucore.Texture, error) {
	if desc == nil || desc.Size.Width == 0 || desc.Size.Height == 0 {
		return nil, fmt.Errorf("%w: texture extent must be positive", gpucore.ErrInvalidArgs)
	}
	format, ok := textureFormat(desc.Format)
	if !ok {
		return nil, fmt.Errorf("%w: texture format %v", gpucore.ErrNotImplemented, desc.Format)
	}
	td := *desc
	td.MipLevelCount = max(td.MipLevelCount, 1)
	td.SampleCount = max(td.SampleCount, 1)
	td.Size.DepthOrArrayLayers = max(td.Size.DepthOrArrayLayers, 1)
	t := &texture{desc: td, owned: true}

	extent := vk.Extent3D{Width: td.Size.Width, Height: td.Size.Height, Depth: 1}
	if td.Dimension == gpucore.TextureDimension3D {
		extent.Depth = td.Size.DepthOrArrayLayers
	}
	var flags vk.ImageCreateFlags
	if td.Dimension == gpucore.TextureDimensionCube {
		flags = vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}
	info := vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		Flags:         flags,
		ImageType:     imageType(td.Dimension),
		Format:        format,
		Extent:        extent,
		MipLevels:     td.MipLevelCount,
		ArrayLayers:   t.layers(),
		Samples:       sampleCount(td.SampleCount),
		Tiling:        vk.ImageTilingOptimal,
		Usage:         imageUsage(td.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	if err := d.check("create image", vk.CreateImage(d.device, &info, nil, &t.raw)); err != nil {
		return nil, err
	}
	t.id = d.newID()
	return t, nil
}

// DestroyTexture implements gpucore.Device.
func (d *Device) DestroyTexture(tex gpucore.Texture) {
	if t, ok := tex.(*texture); ok && t.owned {
		vk.DestroyImage(d.device, t.raw, nil)
	}
}

// TextureMemoryRequirements implements gpucore.Device.
func (d *Device) TextureMemoryRequirements(tex gpucore.Texture) gpucore.MemoryRequirements {
	t, ok := tex.(*texture)
	if !ok || !t.owned {
		return gpucore.MemoryRequirements{}
	}
	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, t.raw, &req)
	req.Deref()
	return gpucore.MemoryRequirements{
		Size:      uint64(req.Size),
		Alignment: uint64(req.Alignment),
		TypeBits:  req.MemoryTypeBits,
	}
}

// BindTextureMemory implements gpucore.Device.
func (d *Device) BindTextureMemory(tex gpucore.Texture, mem gpucore.Memory, offset uint64) error {
	t, tok := tex.(*texture)
	m, mok := mem.(*memory)
	if !tok || !mok || !t.owned {
		return gpucore.ErrInvalidArgs
	}
	return d.check("bind image memory", vk.BindImageMemory(d.device, t.raw, m.raw, vk.DeviceSize(offset)))
}

type textureView struct {
	id  uintptr
	raw vk.ImageView
}

func (v *textureView) NativeHandle() uintptr { return v.id }

// CreateTextureView implements gpucore.Device.
func (d *Device) CreateTextureView(tex gpucore.Texture, desc *gpucore.TextureViewDescriptor) (gpucore.TextureView, error) {
	t, ok := tex.(*texture)
	if !ok {
		return nil, gpucore.ErrInvalidArgs
	}
	var vd gpucore.TextureViewDescriptor
	if desc != nil {
		vd = *desc
	} else {
		vd.Dimension = t.desc.Dimension
	}
	if vd.BaseMipLevel >= t.desc.MipLevelCount || vd.BaseArrayLayer >= t.layers() {
		return nil, fmt.Errorf("%w: view range outside texture", gpucore.ErrInvalidArgs)
	}
	mips := vd.MipLevelCount
	if mips == 0 {
		mips = t.desc.MipLevelCount - vd.BaseMipLevel
	}
	layers := vd.ArrayLayers
	if layers == 0 {
		layers = t.layers() - vd.BaseArrayLayer
	}
	format, _ := textureFormat(t.desc.Format)
	info := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    t.raw,
		ViewType: viewType(vd.Dimension, layers),
		Format:   format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspectMask(t.desc.Format),
			BaseMipLevel:   vd.BaseMipLevel,
			LevelCount:     mips,
			BaseArrayLayer: vd.BaseArrayLayer,
			LayerCount:     layers,
		},
	}
	var raw vk.ImageView
	if err := d.check("create image view", vk.CreateImageView(d.device, &info, nil, &raw)); err != nil {
		return nil, err
	}
	return &textureView{id: d.newID(), raw: raw}, nil
}

// DestroyTextureView implements gpucore.Device.
func (d *Device) DestroyTextureView(view gpucore.TextureView) {
	if v, ok := view.(*textureView); ok {
		vk.DestroyImageView(d.device, v.raw, nil)
	}
}

type fence struct {
	id  uintptr
	raw vk.Fence
}

func (f *fence) NativeHandle() uintptr { return f.id }

// CreateFence implements gpucore.Device.
func (d *Device) CreateFence(signaled bool) (gpucore.Fence, error) {
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var raw vk.Fence
	if err := d.check("create fence", vk.CreateFence(d.device, &info, nil, &raw)); err != nil {
		return nil, err
	}
	return &fence{id: d.newID(), raw: raw}, nil
}

// DestroyFence implements gpucore.Device.
func (d *Device) DestroyFence(f gpucore.Fence) {
	if vf, ok := f.(*fence); ok {
		vk.DestroyFence(d.device, vf.raw, nil)
	}
}

// WaitFence implements gpucore.Device.
func (d *Device) WaitFence(f gpucore.Fence, timeout time.Duration) error {
	vf, ok := f.(*fence)
	if !ok {
		return gpucore.ErrInvalidArgs
	}
	if d.lost {
		return gpucore.ErrDeviceLost
	}
	res := vk.WaitForFences(d.device, 1, []vk.Fence{vf.raw}, vk.True, timeoutNanos(timeout))
	return d.check("wait fence", res)
}

// ResetFence implements gpucore.Device.
func (d *Device) ResetFence(f gpucore.Fence) error {
	vf, ok := f.(*fence)
	if !ok {
		return gpucore.ErrInvalidArgs
	}
	return d.check("reset fence", vk.ResetFences(d.device, 1, []vk.Fence{vf.raw}))
}

type semaphore struct {
	id  uintptr
	raw vk.Semaphore
}

func (s *semaphore) NativeHandle() uintptr { return s.id }

// CreateSemaphore implements gpucore.Device.
func (d *Device) CreateSemaphore() (gpucore.Semaphore, error) {
	info := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	var raw vk.Semaphore
	if err := d.check("create semaphore", vk.CreateSemaphore(d.device, &info, nil, &raw)); err != nil {
		return nil, err
	}
	return &semaphore{id: d.newID(), raw: raw}, nil
}

// DestroySemaphore implements gpucore.Device.
func (d *Device) DestroySemaphore(s gpucore.Semaphore) {
	if vs, ok := s.(*semaphore); ok {
		vk.DestroySemaphore(d.device, vs.raw, nil)
	}
}

func semaphores(list []gpucore.Semaphore) ([]vk.Semaphore, error) {
	out := make([]vk.Semaphore, 0, len(list))
	for _, s := range list {
		vs, ok := s.(*semaphore)
		if !ok {
			return nil, fmt.Errorf("%w: foreign semaphore", gpucore.ErrInvalidArgs)
		}
		out = append(out, vs.raw)
	}
	return out, nil
}
