//go:build !nogpu

package vulkan

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/gfxcore/backend"
	"github.com/gogpu/gfxcore/gpucore"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

var (
	loaderOnce sync.Once
	loaderErr  error
)

// loadVulkan initializes the loader once per process.
func loadVulkan() error {
	loaderOnce.Do(func() {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			loaderErr = fmt.Errorf("load vulkan library: %w", err)
			return
		}
		if err := vk.Init(); err != nil {
			loaderErr = fmt.Errorf("init vulkan: %w", err)
		}
	})
	return loaderErr
}

// init registers the Vulkan backend on package import.
func init() {
	backend.Register(backend.BackendVulkan, func(opts backend.Options) (gpucore.Device, error) {
		return Open(opts)
	})
}

// Device implements gpucore.Device on a Vulkan logical device.
type Device struct {
	instance vk.Instance
	gpu      vk.PhysicalDevice
	device   vk.Device
	family   uint32
	pool     vk.CommandPool

	memProps gpucore.MemoryProperties
	info     gpucore.DeviceInfo
	log      *slog.Logger

	surface *surface
	q       *queue

	nextID uintptr
	lost   bool
}

var (
	_ gpucore.Device    = (*Device)(nil)
	_ backend.Presenter = (*Device)(nil)
)

// Open creates an instance, picks a physical device and opens a logical
// device on it. With opts.Window set, a surface is created for the window
// and the swapchain extension is enabled.
func Open(opts backend.Options) (*Device, error) {
	if err := loadVulkan(); err != nil {
		return nil, fmt.Errorf("%w: %w", backend.ErrBackendNotAvailable, err)
	}
	log := opts.Log()

	d := &Device{log: log}
	if err := d.createInstance(opts); err != nil {
		d.Destroy()
		return nil, err
	}
	if opts.Window != nil {
		handle, err := opts.Window.CreateSurface(d.instance)
		if err != nil {
			d.Destroy()
			return nil, fmt.Errorf("create surface: %w", err)
		}
		d.surface = &surface{raw: vk.SurfaceFromPointer(handle), handle: handle, win: opts.Window}
	}
	if err := d.pickPhysicalDevice(opts.PreferIntegrated); err != nil {
		d.Destroy()
		return nil, err
	}
	if err := d.createDevice(opts.Validation); err != nil {
		d.Destroy()
		return nil, err
	}
	d.memProps = d.queryMemoryProperties()

	log.Info("vulkan: device opened", "gpu", d.info.Name, "family", d.family, "present", d.surface != nil)
	return d, nil
}

func (d *Device) createInstance(opts backend.Options) error {
	name := opts.AppName
	if name == "" {
		name = "gfxcore"
	}
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   name + "\x00",
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        "gfxcore\x00",
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.ApiVersion10,
	}

	var extensions []string
	if opts.Window != nil {
		extensions = safeStrings(opts.Window.RequiredInstanceExtensions())
	}
	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
	}
	if opts.Validation {
		if hasLayer(validationLayer) {
			layers := safeStrings([]string{validationLayer})
			createInfo.EnabledLayerCount = uint32(len(layers))
			createInfo.PpEnabledLayerNames = layers
		} else {
			d.log.Warn("vulkan: validation requested but layer not installed", "layer", validationLayer)
		}
	}

	var instance vk.Instance
	if err := vk.Error(vk.CreateInstance(&createInfo, nil, &instance)); err != nil {
		return fmt.Errorf("%w: create instance: %w", backend.ErrBackendNotAvailable, err)
	}
	d.instance = instance
	if err := vk.InitInstance(instance); err != nil {
		return fmt.Errorf("init instance: %w", err)
	}
	return nil
}

func hasLayer(name string) bool {
	var count uint32
	if vk.EnumerateInstanceLayerProperties(&count, nil) != vk.Success {
		return false
	}
	layers := make([]vk.LayerProperties, count)
	vk.EnumerateInstanceLayerProperties(&count, layers)
	for _, layer := range layers {
		layer.Deref()
		if vk.ToString(layer.LayerName[:]) == name {
			return true
		}
	}
	return false
}

// pickPhysicalDevice scores every physical device and keeps the best one
// that has a usable queue family.
func (d *Device) pickPhysicalDevice(preferIntegrated bool) error {
	var count uint32
	if err := vk.Error(vk.EnumeratePhysicalDevices(d.instance, &count, nil)); err != nil {
		return fmt.Errorf("enumerate physical devices: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("%w: no Vulkan devices found", backend.ErrBackendNotAvailable)
	}
	gpus := make([]vk.PhysicalDevice, count)
	vk.EnumeratePhysicalDevices(d.instance, &count, gpus)

	best := -1
	for _, gpu := range gpus {
		family, ok := d.findQueueFamily(gpu)
		if !ok {
			continue
		}
		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(gpu, &props)
		props.Deref()

		score := deviceScore(props.DeviceType, preferIntegrated)
		name := vk.ToString(props.DeviceName[:])
		d.log.Debug("vulkan: physical device", "name", name, "score", score)
		if score > best {
			best = score
			d.gpu = gpu
			d.family = family
			d.info = gpucore.DeviceInfo{
				Name:    name,
				Backend: backend.BackendVulkan,
				Vendor:  fmt.Sprintf("0x%04x", props.VendorID),
			}
		}
	}
	if best < 0 {
		return fmt.Errorf("%w: no device with a suitable queue family", backend.ErrBackendNotAvailable)
	}
	return nil
}

func deviceScore(t vk.PhysicalDeviceType, preferIntegrated bool) int {
	switch t {
	case vk.PhysicalDeviceTypeDiscreteGpu:
		if preferIntegrated {
			return 500
		}
		return 1000
	case vk.PhysicalDeviceTypeIntegratedGpu:
		if preferIntegrated {
			return 1000
		}
		return 500
	default:
		return 1
	}
}

// findQueueFamily returns a family with graphics support that can also
// present to the surface, if there is one.
func (d *Device) findQueueFamily(gpu vk.PhysicalDevice) (uint32, bool) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, families)

	for i, family := range families {
		family.Deref()
		if family.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
			continue
		}
		if d.surface != nil {
			var supported vk.Bool32
			res := vk.GetPhysicalDeviceSurfaceSupport(gpu, uint32(i), d.surface.raw, &supported)
			if res != vk.Success || !supported.B() {
				continue
			}
		}
		return uint32(i), true
	}
	return 0, false
}

func (d *Device) createDevice(validation bool) error {
	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: d.family,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}
	var extensions []string
	if d.surface != nil {
		extensions = safeStrings([]string{"VK_KHR_swapchain"})
	}
	createInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
	}
	if validation && hasLayer(validationLayer) {
		layers := safeStrings([]string{validationLayer})
		createInfo.EnabledLayerCount = uint32(len(layers))
		createInfo.PpEnabledLayerNames = layers
	}

	var device vk.Device
	if err := vk.Error(vk.CreateDevice(d.gpu, &createInfo, nil, &device)); err != nil {
		return fmt.Errorf("create device: %w", err)
	}
	d.device = device

	var raw vk.Queue
	vk.GetDeviceQueue(device, d.family, 0, &raw)
	d.q = &queue{dev: d, raw: raw}

	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: d.family,
	}
	var pool vk.CommandPool
	if err := vk.Error(vk.CreateCommandPool(device, &poolInfo, nil, &pool)); err != nil {
		return fmt.Errorf("create command pool: %w", err)
	}
	d.pool = pool
	return nil
}

func (d *Device) queryMemoryProperties() gpucore.MemoryProperties {
	var raw vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(d.gpu, &raw)
	raw.Deref()

	props := gpucore.MemoryProperties{
		Types: make([]gpucore.MemoryType, 0, raw.MemoryTypeCount),
		Heaps: make([]gpucore.MemoryHeap, 0, raw.MemoryHeapCount),
	}
	for i := uint32(0); i < raw.MemoryTypeCount; i++ {
		t := raw.MemoryTypes[i]
		t.Deref()
		props.Types = append(props.Types, gpucore.MemoryType{
			Properties: memoryProperty(t.PropertyFlags),
			HeapIndex:  t.HeapIndex,
		})
	}
	for i := uint32(0); i < raw.MemoryHeapCount; i++ {
		h := raw.MemoryHeaps[i]
		h.Deref()
		props.Heaps = append(props.Heaps, gpucore.MemoryHeap{
			Size:        uint64(h.Size),
			DeviceLocal: h.Flags&vk.MemoryHeapFlags(vk.MemoryHeapDeviceLocalBit) != 0,
		})
	}
	return props
}

func (d *Device) newID() uintptr {
	d.nextID++
	return d.nextID
}

// Info implements gpucore.Device.
func (d *Device) Info() gpucore.DeviceInfo { return d.info }

// Queue implements gpucore.Device.
func (d *Device) Queue() gpucore.Queue { return d.q }

// Surface implements backend.Presenter. It is nil for offscreen devices.
func (d *Device) Surface() gpucore.Surface {
	if d.surface == nil {
		return nil
	}
	return d.surface
}

// check latches device loss from a result and converts it to an error.
func (d *Device) check(op string, res vk.Result) error {
	err := resultError(op, res)
	if errors.Is(err, gpucore.ErrDeviceLost) {
		d.lost = true
	}
	return err
}

// === Memory ===

type memory struct {
	id        uintptr
	raw       vk.DeviceMemory
	size      uint64
	typeIndex uint32
	mapped    []byte
}

func (m *memory) NativeHandle() uintptr { return m.id }
func (m *memory) Size() uint64          { return m.size }
func (m *memory) TypeIndex() uint32     { return m.typeIndex }

// MemoryProperties implements gpucore.Device.
func (d *Device) MemoryProperties() gpucore.MemoryProperties { return d.memProps }

// AllocateMemory implements gpucore.Device.
func (d *Device) AllocateMemory(typeIndex uint32, size uint64) (gpucore.Memory, error) {
	if int(typeIndex) >= len(d.memProps.Types) || size == 0 {
		return nil, fmt.Errorf("%w: memory type %d size %d", gpucore.ErrInvalidArgs, typeIndex, size)
	}
	info := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: typeIndex,
	}
	var raw vk.DeviceMemory
	if err := d.check("allocate memory", vk.AllocateMemory(d.device, &info, nil, &raw)); err != nil {
		return nil, err
	}
	return &memory{id: d.newID(), raw: raw, size: size, typeIndex: typeIndex}, nil
}

// FreeMemory implements gpucore.Device.
func (d *Device) FreeMemory(mem gpucore.Memory) {
	m, ok := mem.(*memory)
	if !ok {
		return
	}
	if m.mapped != nil {
		vk.UnmapMemory(d.device, m.raw)
		m.mapped = nil
	}
	vk.FreeMemory(d.device, m.raw, nil)
}

// MapMemory implements gpucore.Device.
func (d *Device) MapMemory(mem gpucore.Memory) ([]byte, error) {
	m, ok := mem.(*memory)
	if !ok {
		return nil, gpucore.ErrInvalidArgs
	}
	if m.mapped != nil {
		return m.mapped, nil
	}
	if !d.memProps.Types[m.typeIndex].Properties.Contains(gpucore.MemoryPropertyHostVisible) {
		return nil, fmt.Errorf("%w: memory type %d is not host visible", gpucore.ErrInvalidArgs, m.typeIndex)
	}
	var ptr unsafe.Pointer
	if err := d.check("map memory", vk.MapMemory(d.device, m.raw, 0, vk.DeviceSize(m.size), 0, &ptr)); err != nil {
		return nil, err
	}
	m.mapped = unsafe.Slice((*byte)(ptr), m.size)
	return m.mapped, nil
}

// UnmapMemory implements gpucore.Device.
func (d *Device) UnmapMemory(mem gpucore.Memory) {
	m, ok := mem.(*memory)
	if !ok || m.mapped == nil {
		return
	}
	vk.UnmapMemory(d.device, m.raw)
	m.mapped = nil
}

// FlushMemory implements gpucore.Device.
func (d *Device) FlushMemory(mem gpucore.Memory, offset, size uint64) error {
	ranges, err := d.mappedRange(mem, offset, size)
	if err != nil {
		return err
	}
	return d.check("flush memory", vk.FlushMappedMemoryRanges(d.device, 1, ranges))
}

// InvalidateMemory implements gpucore.Device.
func (d *Device) InvalidateMemory(mem gpucore.Memory, offset, size uint64) error {
	ranges, err := d.mappedRange(mem, offset, size)
	if err != nil {
		return err
	}
	return d.check("invalidate memory", vk.InvalidateMappedMemoryRanges(d.device, 1, ranges))
}

// mappedRange builds the range for flush and invalidate. A range that
// reaches the end of the block is sent as VK_WHOLE_SIZE.
func (d *Device) mappedRange(mem gpucore.Memory, offset, size uint64) ([]vk.MappedMemoryRange, error) {
	m, ok := mem.(*memory)
	if !ok || m.mapped == nil {
		return nil, fmt.Errorf("%w: memory is not mapped", gpucore.ErrInvalidArgs)
	}
	if offset > m.size || size > m.size-offset {
		return nil, fmt.Errorf("%w: range [%d, %d) outside block of %d bytes", gpucore.ErrInvalidArgs, offset, offset+size, m.size)
	}
	rangeSize := vk.DeviceSize(size)
	if offset+size == m.size {
		rangeSize = vk.DeviceSize(vk.WholeSize)
	}
	return []vk.MappedMemoryRange{{
		SType:  vk.StructureTypeMappedMemoryRange,
		Memory: m.raw,
		Offset: vk.DeviceSize(offset),
		Size:   rangeSize,
	}}, nil
}

// WaitIdle implements gpucore.Device.
func (d *Device) WaitIdle() error {
	if d.lost {
		return gpucore.ErrDeviceLost
	}
	return d.check("wait idle", vk.DeviceWaitIdle(d.device))
}

// Destroy implements gpucore.Device.
func (d *Device) Destroy() {
	if d.device != nil {
		vk.DeviceWaitIdle(d.device)
		var noPool vk.CommandPool
		if d.pool != noPool {
			vk.DestroyCommandPool(d.device, d.pool, nil)
		}
		vk.DestroyDevice(d.device, nil)
		d.device = nil
	}
	if d.surface != nil && d.instance != nil {
		vk.DestroySurface(d.instance, d.surface.raw, nil)
		d.surface = nil
	}
	if d.instance != nil {
		vk.DestroyInstance(d.instance, nil)
		d.instance = nil
	}
}

// timeoutNanos converts a timeout for Vulkan waits. Negative durations wait
// forever.
func timeoutNanos(timeout time.Duration) uint64 {
	if timeout < 0 {
		return math.MaxUint64
	}
	return uint64(timeout.Nanoseconds())
}
