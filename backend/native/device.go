//go:build !nogpu

package native

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/gfxcore/backend"
	"github.com/gogpu/gfxcore/gpucore"
)

// Memory type indices.
const (
	memoryTypeDeviceLocal uint32 = 0
	memoryTypeHost        uint32 = 1
)

// Emulated heap sizes.
const (
	deviceHeapSize = 4 << 30
	hostHeapSize   = 1 << 30
)

// bufferAlignment is the offset alignment reported for buffers. It matches
// the copy offset alignment WebGPU requires.
const bufferAlignment = 256

// waitIdleTimeout bounds WaitIdle.
const waitIdleTimeout = 5 * time.Second

// init registers the native backend on package import.
func init() {
	backend.Register(backend.BackendNative, func(opts backend.Options) (gpucore.Device, error) {
		return Open(opts)
	})
}

// instanceCreator is satisfied by HAL backends.
type instanceCreator interface {
	CreateInstance(desc *hal.InstanceDescriptor) (hal.Instance, error)
}

// Device implements gpucore.Device on a HAL device and queue.
type Device struct {
	instance hal.Instance
	device   hal.Device
	limits   gputypes.Limits
	info     gpucore.DeviceInfo
	log      *slog.Logger

	// external devices are owned by their provider and not destroyed here.
	external bool

	nextID uintptr
	heaps  [2]uint64
	lost   bool
	q      *queue
}

var _ gpucore.Device = (*Device)(nil)

// Open opens a device on the HAL's Vulkan backend.
func Open(opts backend.Options) (*Device, error) {
	if opts.Window != nil {
		return nil, fmt.Errorf("%w: native backend cannot present", backend.ErrBackendNotAvailable)
	}
	api, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan HAL backend not available", backend.ErrBackendNotAvailable)
	}
	return openAPI(api, "vulkan", opts)
}

// OpenNoop opens a device on the HAL's no-op backend. Nothing reaches a GPU;
// it exists for tests and headless tooling.
func OpenNoop(opts backend.Options) (*Device, error) {
	return openAPI(&noop.API{}, "noop", opts)
}

func openAPI(api instanceCreator, name string, opts backend.Options) (*Device, error) {
	log := opts.Log()

	instance, err := api.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: no GPU adapters found", backend.ErrBackendNotAvailable)
	}
	selected := selectAdapter(adapters, opts.PreferIntegrated)

	limits := gputypes.DefaultLimits()
	openDev, err := selected.Adapter.Open(gputypes.Features(0), limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("open device: %w", err)
	}

	d := newDevice(openDev.Device, openDev.Queue, limits, log)
	d.instance = instance
	d.info = gpucore.DeviceInfo{Name: selected.Info.Name, Backend: backend.BackendNative, Vendor: name}
	log.Info("native: device opened", "adapter", selected.Info.Name, "api", name)
	return d, nil
}

// selectAdapter prefers a discrete GPU, or an integrated one when asked,
// and falls back to the first adapter.
func selectAdapter(adapters []hal.ExposedAdapter, preferIntegrated bool) *hal.ExposedAdapter {
	want := []gputypes.DeviceType{gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU}
	if preferIntegrated {
		want[0], want[1] = want[1], want[0]
	}
	for _, dt := range want {
		for i := range adapters {
			if adapters[i].Info.DeviceType == dt {
				return &adapters[i]
			}
		}
	}
	return &adapters[0]
}

// FromProvider wraps the HAL device of an external provider such as a
// gogpu application. The provider must implement HalDevice() any and
// HalQueue() any returning hal.Device and hal.Queue. The device is not
// destroyed by Destroy.
func FromProvider(provider gpucontext.DeviceProvider, opts backend.Options) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: provider does not expose HAL types", gpucore.ErrInvalidArgs)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: provider HalDevice is not hal.Device", gpucore.ErrInvalidArgs)
	}
	q, ok := hp.HalQueue().(hal.Queue)
	if !ok || q == nil {
		return nil, fmt.Errorf("%w: provider HalQueue is not hal.Queue", gpucore.ErrInvalidArgs)
	}
	d := newDevice(device, q, gputypes.DefaultLimits(), opts.Log())
	d.external = true
	d.info = gpucore.DeviceInfo{Name: "external", Backend: backend.BackendNative}
	return d, nil
}

func newDevice(device hal.Device, q hal.Queue, limits gputypes.Limits, log *slog.Logger) *Device {
	d := &Device{
		device: device,
		limits: limits,
		log:    log,
	}
	d.q = &queue{dev: d, raw: q}
	return d
}

func (d *Device) newID() uintptr {
	d.nextID++
	return d.nextID
}

// Info implements gpucore.Device.
func (d *Device) Info() gpucore.DeviceInfo { return d.info }

// Queue implements gpucore.Device.
func (d *Device) Queue() gpucore.Queue { return d.q }

// === Memory ===

// MemoryProperties implements gpucore.Device.
func (d *Device) MemoryProperties() gpucore.MemoryProperties {
	return gpucore.MemoryProperties{
		Types: []gpucore.MemoryType{
			{Properties: gpucore.MemoryPropertyDeviceLocal, HeapIndex: 0},
			{Properties: gpucore.MemoryPropertyHostVisible | gpucore.MemoryPropertyHostCached, HeapIndex: 1},
		},
		Heaps: []gpucore.MemoryHeap{
			{Size: deviceHeapSize, DeviceLocal: true},
			{Size: hostHeapSize},
		},
	}
}

// AllocateMemory implements gpucore.Device.
func (d *Device) AllocateMemory(typeIndex uint32, size uint64) (gpucore.Memory, error) {
	if typeIndex > memoryTypeHost || size == 0 {
		return nil, fmt.Errorf("%w: memory type %d, size %d", gpucore.ErrInvalidArgs, typeIndex, size)
	}
	limit := uint64(deviceHeapSize)
	if typeIndex == memoryTypeHost {
		limit = hostHeapSize
	}
	if d.heaps[typeIndex]+size > limit {
		return nil, fmt.Errorf("%w: heap %d exhausted", gpucore.ErrOutOfMemory, typeIndex)
	}
	d.heaps[typeIndex] += size
	m := &memory{id: d.newID(), size: size, typeIndex: typeIndex}
	if typeIndex == memoryTypeHost {
		m.host = make([]byte, size)
	}
	return m, nil
}

// FreeMemory implements gpucore.Device.
func (d *Device) FreeMemory(mem gpucore.Memory) {
	m, ok := mem.(*memory)
	if !ok {
		return
	}
	d.heaps[m.typeIndex] -= m.size
	for _, b := range m.bindings {
		b.mem = nil
	}
	m.bindings = nil
	m.host = nil
}

// MapMemory implements gpucore.Device.
func (d *Device) MapMemory(mem gpucore.Memory) ([]byte, error) {
	m, ok := mem.(*memory)
	if !ok || m.host == nil {
		return nil, fmt.Errorf("%w: memory is not host visible", gpucore.ErrInvalidArgs)
	}
	return m.host, nil
}

// UnmapMemory implements gpucore.Device.
func (d *Device) UnmapMemory(gpucore.Memory) {}

// FlushMemory implements gpucore.Device. Every buffer bound inside the range
// receives the host bytes it overlaps.
func (d *Device) FlushMemory(mem gpucore.Memory, offset, size uint64) error {
	m, err := d.hostMemory(mem, offset, size)
	if err != nil {
		return err
	}
	for _, b := range m.bindings {
		start, end, ok := b.overlap(offset, size)
		if !ok {
			continue
		}
		d.q.raw.WriteBuffer(b.raw, start-b.offset, m.host[start:end])
	}
	return nil
}

// InvalidateMemory implements gpucore.Device. Every buffer bound inside the
// range is read back into the host copy.
func (d *Device) InvalidateMemory(mem gpucore.Memory, offset, size uint64) error {
	m, err := d.hostMemory(mem, offset, size)
	if err != nil {
		return err
	}
	for _, b := range m.bindings {
		start, end, ok := b.overlap(offset, size)
		if !ok {
			continue
		}
		if err := d.q.raw.ReadBuffer(b.raw, start-b.offset, m.host[start:end]); err != nil {
			return fmt.Errorf("read back buffer: %w", err)
		}
	}
	return nil
}

func (d *Device) hostMemory(mem gpucore.Memory, offset, size uint64) (*memory, error) {
	m, ok := mem.(*memory)
	if !ok || m.host == nil {
		return nil, fmt.Errorf("%w: memory is not host visible", gpucore.ErrInvalidArgs)
	}
	if offset+size > m.size {
		return nil, fmt.Errorf("%w: range [%d,%d) exceeds block of %d bytes", gpucore.ErrInvalidArgs, offset, offset+size, m.size)
	}
	return m, nil
}

// === Buffers ===

// CreateBuffer implements gpucore.Device.
func (d *Device) CreateBuffer(desc *gpucore.BufferDescriptor) (gpucore.Buffer, error) {
	if desc == nil || desc.Size == 0 {
		return nil, fmt.Errorf("%w: buffer size must be positive", gpucore.ErrInvalidArgs)
	}
	if d.limits.MaxBufferSize != 0 && desc.Size > d.limits.MaxBufferSize {
		return nil, fmt.Errorf("%w: buffer size %d exceeds limit %d", gpucore.ErrInvalidArgs, desc.Size, d.limits.MaxBufferSize)
	}
	raw, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: convertBufferUsage(desc.Usage | gpucore.BufferUsageCopySrc | gpucore.BufferUsageCopyDst),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create buffer %q: %w", gpucore.ErrOutOfMemory, desc.Label, err)
	}
	return &buffer{raw: raw, size: desc.Size, usage: desc.Usage}, nil
}

// DestroyBuffer implements gpucore.Device.
func (d *Device) DestroyBuffer(buf gpucore.Buffer) {
	b, ok := buf.(*buffer)
	if !ok || b.raw == nil {
		return
	}
	if b.mem != nil {
		b.mem.unbind(b)
		b.mem = nil
	}
	d.device.DestroyBuffer(b.raw)
	b.raw = nil
}

// BufferMemoryRequirements implements gpucore.Device. Buffers may live in
// either memory type.
func (d *Device) BufferMemoryRequirements(buf gpucore.Buffer) gpucore.MemoryRequirements {
	size := buf.Size()
	return gpucore.MemoryRequirements{
		Size:      alignUp(size, bufferAlignment),
		Alignment: bufferAlignment,
		TypeBits:  1<<memoryTypeDeviceLocal | 1<<memoryTypeHost,
	}
}

// BindBufferMemory implements gpucore.Device.
func (d *Device) BindBufferMemory(buf gpucore.Buffer, mem gpucore.Memory, offset uint64) error {
	b, ok := buf.(*buffer)
	m, mok := mem.(*memory)
	if !ok || !mok {
		return fmt.Errorf("%w: foreign buffer or memory", gpucore.ErrInvalidArgs)
	}
	if b.mem != nil {
		return fmt.Errorf("%w: buffer already bound", gpucore.ErrInvalidArgs)
	}
	if offset+b.size > m.size {
		return fmt.Errorf("%w: binding [%d,%d) exceeds block of %d bytes", gpucore.ErrInvalidArgs, offset, offset+b.size, m.size)
	}
	b.mem, b.offset = m, offset
	m.bindings = append(m.bindings, b)
	return nil
}

// === Textures ===

// CreateTexture implements gpucore.Device.
func (d *Device) CreateTexture(desc *gpucore.TextureDescriptor) (gpucore.Texture, error) {
	if desc == nil || desc.Size.Width == 0 || desc.Size.Height == 0 {
		return nil, fmt.Errorf("%w: texture dimensions must be positive", gpucore.ErrInvalidArgs)
	}
	format, ok := convertTextureFormat(desc.Format)
	if !ok {
		return nil, fmt.Errorf("%w: texture format %s", gpucore.ErrNotImplemented, desc.Format)
	}
	td := *desc
	if td.Size.DepthOrArrayLayers == 0 {
		td.Size.DepthOrArrayLayers = 1
	}
	if td.Dimension == gpucore.TextureDimensionCube && td.Size.DepthOrArrayLayers < 6 {
		td.Size.DepthOrArrayLayers = 6
	}
	if td.MipLevelCount == 0 {
		td.MipLevelCount = 1
	}
	if td.SampleCount == 0 {
		td.SampleCount = 1
	}

	raw, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label: td.Label,
		Size: hal.Extent3D{
			Width:              td.Size.Width,
			Height:             td.Size.Height,
			DepthOrArrayLayers: td.Size.DepthOrArrayLayers,
		},
		MipLevelCount: td.MipLevelCount,
		SampleCount:   td.SampleCount,
		Dimension:     convertTextureDimension(td.Dimension),
		Format:        format,
		Usage:         convertTextureUsage(td.Usage),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create texture %q: %w", gpucore.ErrOutOfMemory, td.Label, err)
	}
	return &texture{raw: raw, desc: td, byteSize: textureByteSize(td)}, nil
}

// textureByteSize sums the size of every mip level of every layer.
func textureByteSize(desc gpucore.TextureDescriptor) uint64 {
	bpp := uint64(desc.Format.BytesPerPixel())
	w, h := uint64(desc.Size.Width), uint64(desc.Size.Height)
	var total uint64
	for range desc.MipLevelCount {
		total += max(w, 1) * max(h, 1) * bpp
		w, h = w/2, h/2
	}
	return total * uint64(desc.Size.DepthOrArrayLayers) * uint64(desc.SampleCount)
}

// DestroyTexture implements gpucore.Device.
func (d *Device) DestroyTexture(tex gpucore.Texture) {
	t, ok := tex.(*texture)
	if !ok || t.raw == nil {
		return
	}
	d.device.DestroyTexture(t.raw)
	t.raw = nil
}

// TextureMemoryRequirements implements gpucore.Device. Textures are device
// local only.
func (d *Device) TextureMemoryRequirements(tex gpucore.Texture) gpucore.MemoryRequirements {
	t, ok := tex.(*texture)
	if !ok {
		return gpucore.MemoryRequirements{}
	}
	return gpucore.MemoryRequirements{
		Size:      alignUp(t.byteSize, bufferAlignment),
		Alignment: bufferAlignment,
		TypeBits:  1 << memoryTypeDeviceLocal,
	}
}

// BindTextureMemory implements gpucore.Device.
func (d *Device) BindTextureMemory(tex gpucore.Texture, mem gpucore.Memory, offset uint64) error {
	t, ok := tex.(*texture)
	m, mok := mem.(*memory)
	if !ok || !mok {
		return fmt.Errorf("%w: foreign texture or memory", gpucore.ErrInvalidArgs)
	}
	if t.bound {
		return fmt.Errorf("%w: texture already bound", gpucore.ErrInvalidArgs)
	}
	if m.typeIndex != memoryTypeDeviceLocal || offset+t.byteSize > m.size {
		return fmt.Errorf("%w: texture binding does not fit memory", gpucore.ErrInvalidArgs)
	}
	t.bound = true
	return nil
}

// CreateTextureView implements gpucore.Device.
func (d *Device) CreateTextureView(tex gpucore.Texture, desc *gpucore.TextureViewDescriptor) (gpucore.TextureView, error) {
	t, ok := tex.(*texture)
	if !ok || t.raw == nil {
		return nil, fmt.Errorf("%w: invalid texture", gpucore.ErrInvalidArgs)
	}
	vd := &hal.TextureViewDescriptor{}
	if desc != nil {
		vd.Label = desc.Label
		vd.BaseMipLevel = desc.BaseMipLevel
		vd.MipLevelCount = desc.MipLevelCount
		vd.BaseArrayLayer = desc.BaseArrayLayer
		vd.ArrayLayerCount = desc.ArrayLayers
	}
	raw, err := d.device.CreateTextureView(t.raw, vd)
	if err != nil {
		return nil, fmt.Errorf("create texture view: %w", err)
	}
	return &textureView{raw: raw}, nil
}

// DestroyTextureView implements gpucore.Device.
func (d *Device) DestroyTextureView(view gpucore.TextureView) {
	if v, ok := view.(*textureView); ok && v.raw != nil {
		d.device.DestroyTextureView(v.raw)
		v.raw = nil
	}
}

// === Synchronization ===

// CreateFence implements gpucore.Device.
func (d *Device) CreateFence(signaled bool) (gpucore.Fence, error) {
	raw, err := d.device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("create fence: %w", err)
	}
	return &fence{id: d.newID(), raw: raw, signaled: signaled}, nil
}

// DestroyFence implements gpucore.Device.
func (d *Device) DestroyFence(f gpucore.Fence) {
	if hf, ok := f.(*fence); ok && hf.raw != nil {
		d.device.DestroyFence(hf.raw)
		hf.raw = nil
	}
}

// WaitFence implements gpucore.Device.
func (d *Device) WaitFence(f gpucore.Fence, timeout time.Duration) error {
	hf, ok := f.(*fence)
	if !ok || hf.raw == nil {
		return fmt.Errorf("%w: invalid fence", gpucore.ErrInvalidArgs)
	}
	if d.lost {
		return gpucore.ErrDeviceLost
	}
	return d.waitFence(hf, timeout)
}

// ResetFence implements gpucore.Device. The timeline keeps counting; only
// the binary state is cleared.
func (d *Device) ResetFence(f gpucore.Fence) error {
	hf, ok := f.(*fence)
	if !ok || hf.raw == nil {
		return fmt.Errorf("%w: invalid fence", gpucore.ErrInvalidArgs)
	}
	hf.signaled = false
	hf.pending = 0
	return nil
}

// CreateSemaphore implements gpucore.Device.
func (d *Device) CreateSemaphore() (gpucore.Semaphore, error) {
	return &semaphore{id: d.newID()}, nil
}

// DestroySemaphore implements gpucore.Device.
func (d *Device) DestroySemaphore(gpucore.Semaphore) {}

// === Presentation ===

// PresentModes implements gpucore.Device.
func (d *Device) PresentModes(gpucore.Surface) []gpucore.PresentMode {
	return []gpucore.PresentMode{gpucore.PresentModeFifo}
}

// CreateSwapchain implements gpucore.Device. The native backend renders
// offscreen only.
func (d *Device) CreateSwapchain(*gpucore.SwapchainDescriptor) (gpucore.Swapchain, error) {
	return nil, fmt.Errorf("%w: native backend has no swapchains", gpucore.ErrNotImplemented)
}

// DestroySwapchain implements gpucore.Device.
func (d *Device) DestroySwapchain(gpucore.Swapchain) {}

// === Lifetime ===

// WaitIdle implements gpucore.Device.
func (d *Device) WaitIdle() error {
	if d.lost {
		return gpucore.ErrDeviceLost
	}
	f, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer d.device.DestroyFence(f)

	if err := d.q.raw.Submit(nil, f, 1); err != nil {
		return fmt.Errorf("%w: %w", gpucore.ErrSubmitFailed, err)
	}
	ok, err := d.device.Wait(f, 1, waitIdleTimeout)
	if err != nil {
		d.lost = true
		return fmt.Errorf("%w: %w", gpucore.ErrDeviceLost, err)
	}
	if !ok {
		return gpucore.ErrTimeout
	}
	return nil
}

// Destroy implements gpucore.Device.
func (d *Device) Destroy() {
	if !d.external && d.device != nil {
		d.device.Destroy()
	}
	d.device = nil
	if d.instance != nil {
		d.instance.Destroy()
		d.instance = nil
	}
	d.log.Debug("native: device destroyed")
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
