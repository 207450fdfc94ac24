//go:build !nogpu

package native

import (
	"errors"
	"testing"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfxcore/backend"
	"github.com/gogpu/gfxcore/gpucore"
)

// openNoop opens a device on the HAL noop backend for testing.
func openNoop(t *testing.T) *Device {
	t.Helper()
	d, err := OpenNoop(backend.Options{})
	if err != nil {
		t.Fatalf("OpenNoop() error = %v", err)
	}
	t.Cleanup(d.Destroy)
	return d
}

func TestOpenNoop(t *testing.T) {
	d := openNoop(t)
	info := d.Info()
	if info.Backend != backend.BackendNative {
		t.Errorf("Info().Backend = %q, want %q", info.Backend, backend.BackendNative)
	}
	if info.Vendor != "noop" {
		t.Errorf("Info().Vendor = %q, want noop", info.Vendor)
	}
	if d.Queue() == nil {
		t.Error("Queue() = nil")
	}
}

func TestOpenWithWindowUnavailable(t *testing.T) {
	_, err := Open(backend.Options{Window: stubWindow{}})
	if !errors.Is(err, backend.ErrBackendNotAvailable) {
		t.Errorf("Open() error = %v, want ErrBackendNotAvailable", err)
	}
}

type stubWindow struct{}

func (stubWindow) RequiredInstanceExtensions() []string   { return nil }
func (stubWindow) CreateSurface(any) (uintptr, error) { return 0, nil }
func (stubWindow) Extent() (width, height uint32)         { return 1, 1 }

func TestRegistered(t *testing.T) {
	if !backend.IsRegistered(backend.BackendNative) {
		t.Errorf("IsRegistered(%q) = false", backend.BackendNative)
	}
}

func TestMemoryProperties(t *testing.T) {
	d := openNoop(t)
	props := d.MemoryProperties()
	if len(props.Types) != 2 || len(props.Heaps) != 2 {
		t.Fatalf("MemoryProperties() = %+v, want 2 types and 2 heaps", props)
	}
	if !props.Types[memoryTypeDeviceLocal].Properties.Contains(gpucore.MemoryPropertyDeviceLocal) {
		t.Errorf("type 0 properties = %#x, want device local", props.Types[0].Properties)
	}
	host := props.Types[memoryTypeHost].Properties
	if !host.Contains(gpucore.MemoryPropertyHostVisible) || host.Contains(gpucore.MemoryPropertyHostCoherent) {
		t.Errorf("type 1 properties = %#x, want host visible and not coherent", host)
	}
}

func TestAllocateMemory(t *testing.T) {
	tests := []struct {
		name      string
		typeIndex uint32
		size      uint64
		wantErr   error
	}{
		{"device", memoryTypeDeviceLocal, 1 << 20, nil},
		{"host", memoryTypeHost, 1 << 20, nil},
		{"zero", memoryTypeHost, 0, gpucore.ErrInvalidArgs},
		{"bad type", 7, 64, gpucore.ErrInvalidArgs},
		{"host heap exhausted", memoryTypeHost, hostHeapSize + 1, gpucore.ErrOutOfMemory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := openNoop(t)
			mem, err := d.AllocateMemory(tt.typeIndex, tt.size)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("AllocateMemory() error = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer d.FreeMemory(mem)
			if mem.Size() != tt.size || mem.TypeIndex() != tt.typeIndex {
				t.Errorf("memory = (%d, type %d), want (%d, type %d)", mem.Size(), mem.TypeIndex(), tt.size, tt.typeIndex)
			}
			_, err = d.MapMemory(mem)
			if (err == nil) != (tt.typeIndex == memoryTypeHost) {
				t.Errorf("MapMemory() error = %v for type %d", err, tt.typeIndex)
			}
		})
	}
}

func TestFreeMemoryReturnsHeap(t *testing.T) {
	d := openNoop(t)
	mem, err := d.AllocateMemory(memoryTypeHost, hostHeapSize)
	if err != nil {
		t.Fatalf("AllocateMemory() error = %v", err)
	}
	d.FreeMemory(mem)
	mem, err = d.AllocateMemory(memoryTypeHost, hostHeapSize)
	if err != nil {
		t.Fatalf("AllocateMemory() after free error = %v", err)
	}
	d.FreeMemory(mem)
}

func TestBufferBinding(t *testing.T) {
	d := openNoop(t)
	buf, err := d.CreateBuffer(&gpucore.BufferDescriptor{Label: "b", Size: 100, Usage: gpucore.BufferUsageVertex})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	defer d.DestroyBuffer(buf)

	req := d.BufferMemoryRequirements(buf)
	if req.Size != 256 || req.Alignment != bufferAlignment || req.TypeBits != 0b11 {
		t.Errorf("BufferMemoryRequirements() = %+v, want {256 256 0b11}", req)
	}

	mem, err := d.AllocateMemory(memoryTypeHost, 1024)
	if err != nil {
		t.Fatalf("AllocateMemory() error = %v", err)
	}
	defer d.FreeMemory(mem)

	if err := d.BindBufferMemory(buf, mem, 1000); !errors.Is(err, gpucore.ErrInvalidArgs) {
		t.Errorf("BindBufferMemory(out of range) error = %v, want ErrInvalidArgs", err)
	}
	if err := d.BindBufferMemory(buf, mem, 256); err != nil {
		t.Fatalf("BindBufferMemory() error = %v", err)
	}
	if err := d.BindBufferMemory(buf, mem, 512); !errors.Is(err, gpucore.ErrInvalidArgs) {
		t.Errorf("second BindBufferMemory() error = %v, want ErrInvalidArgs", err)
	}

	data, err := d.MapMemory(mem)
	if err != nil {
		t.Fatalf("MapMemory() error = %v", err)
	}
	copy(data[256:], []byte{1, 2, 3})
	if err := d.FlushMemory(mem, 0, 1024); err != nil {
		t.Errorf("FlushMemory() error = %v", err)
	}
	if err := d.FlushMemory(mem, 1000, 100); !errors.Is(err, gpucore.ErrInvalidArgs) {
		t.Errorf("FlushMemory(out of range) error = %v, want ErrInvalidArgs", err)
	}

	b := buf.(*buffer)
	d.DestroyBuffer(buf)
	if len(mem.(*memory).bindings) != 0 || b.mem != nil {
		t.Error("DestroyBuffer() left the buffer bound")
	}
}

func TestBufferOverlap(t *testing.T) {
	b := &buffer{size: 100, offset: 200}
	tests := []struct {
		off, size  uint64
		start, end uint64
		ok         bool
	}{
		{0, 1024, 200, 300, true},
		{250, 10, 250, 260, true},
		{0, 200, 0, 0, false},
		{300, 50, 0, 0, false},
		{150, 100, 200, 250, true},
	}
	for _, tt := range tests {
		start, end, ok := b.overlap(tt.off, tt.size)
		if ok != tt.ok || (ok && (start != tt.start || end != tt.end)) {
			t.Errorf("overlap(%d, %d) = (%d, %d, %v), want (%d, %d, %v)",
				tt.off, tt.size, start, end, ok, tt.start, tt.end, tt.ok)
		}
	}
}

func TestCreateBufferInvalid(t *testing.T) {
	d := openNoop(t)
	if _, err := d.CreateBuffer(&gpucore.BufferDescriptor{Size: 0}); !errors.Is(err, gpucore.ErrInvalidArgs) {
		t.Errorf("CreateBuffer(size 0) error = %v, want ErrInvalidArgs", err)
	}
	if _, err := d.CreateBuffer(nil); !errors.Is(err, gpucore.ErrInvalidArgs) {
		t.Errorf("CreateBuffer(nil) error = %v, want ErrInvalidArgs", err)
	}
}

func TestTextureLifecycle(t *testing.T) {
	d := openNoop(t)
	tex, err := d.CreateTexture(&gpucore.TextureDescriptor{
		Label:  "t",
		Size:   gpucore.Extent3D{Width: 64, Height: 32},
		Format: gpucore.TextureFormatRGBA8Unorm,
		Usage:  gpucore.TextureUsageCopyDst | gpucore.TextureUsageTextureBinding,
	})
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}
	defer d.DestroyTexture(tex)

	if got := tex.Extent(); got.DepthOrArrayLayers != 1 {
		t.Errorf("Extent().DepthOrArrayLayers = %d, want 1", got.DepthOrArrayLayers)
	}
	req := d.TextureMemoryRequirements(tex)
	if req.Size != 64*32*4 || req.TypeBits != 1 {
		t.Errorf("TextureMemoryRequirements() = %+v, want size 8192 type bits 1", req)
	}

	host, _ := d.AllocateMemory(memoryTypeHost, 1<<16)
	defer d.FreeMemory(host)
	if err := d.BindTextureMemory(tex, host, 0); !errors.Is(err, gpucore.ErrInvalidArgs) {
		t.Errorf("BindTextureMemory(host) error = %v, want ErrInvalidArgs", err)
	}
	local, _ := d.AllocateMemory(memoryTypeDeviceLocal, 1<<16)
	defer d.FreeMemory(local)
	if err := d.BindTextureMemory(tex, local, 0); err != nil {
		t.Errorf("BindTextureMemory() error = %v", err)
	}

	view, err := d.CreateTextureView(tex, nil)
	if err != nil {
		t.Fatalf("CreateTextureView() error = %v", err)
	}
	d.DestroyTextureView(view)
}

func TestCreateTextureInvalid(t *testing.T) {
	d := openNoop(t)
	tests := []struct {
		name string
		desc *gpucore.TextureDescriptor
		want error
	}{
		{"nil", nil, gpucore.ErrInvalidArgs},
		{"zero width", &gpucore.TextureDescriptor{Size: gpucore.Extent3D{Height: 4}, Format: gpucore.TextureFormatR8Unorm}, gpucore.ErrInvalidArgs},
		{"undefined format", &gpucore.TextureDescriptor{Size: gpucore.Extent3D{Width: 4, Height: 4}}, gpucore.ErrNotImplemented},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.CreateTexture(tt.desc); !errors.Is(err, tt.want) {
				t.Errorf("CreateTexture() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTextureByteSize(t *testing.T) {
	tests := []struct {
		name string
		desc gpucore.TextureDescriptor
		want uint64
	}{
		{"single", gpucore.TextureDescriptor{Size: gpucore.Extent3D{Width: 4, Height: 4, DepthOrArrayLayers: 1}, MipLevelCount: 1, SampleCount: 1, Format: gpucore.TextureFormatRGBA8Unorm}, 64},
		{"mips", gpucore.TextureDescriptor{Size: gpucore.Extent3D{Width: 4, Height: 4, DepthOrArrayLayers: 1}, MipLevelCount: 3, SampleCount: 1, Format: gpucore.TextureFormatR8Unorm}, 16 + 4 + 1},
		{"layers", gpucore.TextureDescriptor{Size: gpucore.Extent3D{Width: 2, Height: 2, DepthOrArrayLayers: 6}, MipLevelCount: 1, SampleCount: 1, Format: gpucore.TextureFormatRGBA32Float}, 2 * 2 * 16 * 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := textureByteSize(tt.desc); got != tt.want {
				t.Errorf("textureByteSize() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFenceStates(t *testing.T) {
	d := openNoop(t)

	signaled, err := d.CreateFence(true)
	if err != nil {
		t.Fatalf("CreateFence() error = %v", err)
	}
	defer d.DestroyFence(signaled)
	if err := d.WaitFence(signaled, time.Millisecond); err != nil {
		t.Errorf("WaitFence(signaled) error = %v", err)
	}

	if err := d.ResetFence(signaled); err != nil {
		t.Fatalf("ResetFence() error = %v", err)
	}
	if err := d.WaitFence(signaled, time.Millisecond); !errors.Is(err, gpucore.ErrTimeout) {
		t.Errorf("WaitFence(unsubmitted) error = %v, want ErrTimeout", err)
	}

	d.lost = true
	if err := d.WaitFence(signaled, time.Millisecond); !errors.Is(err, gpucore.ErrDeviceLost) {
		t.Errorf("WaitFence(lost) error = %v, want ErrDeviceLost", err)
	}
	if err := d.Queue().Submit(gpucore.SubmitInfo{}, signaled); !errors.Is(err, gpucore.ErrDeviceLost) {
		t.Errorf("Submit(lost) error = %v, want ErrDeviceLost", err)
	}
}

func TestCommandBufferStates(t *testing.T) {
	d := openNoop(t)
	cb, err := d.CreateCommandBuffer("frame")
	if err != nil {
		t.Fatalf("CreateCommandBuffer() error = %v", err)
	}
	defer d.FreeCommandBuffer(cb)

	if err := cb.End(); err == nil {
		t.Error("End() before Begin succeeded")
	}
	if err := cb.Begin(true); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := cb.Begin(true); !errors.Is(err, gpucore.ErrInvalidArgs) {
		t.Errorf("Begin() while recording error = %v, want ErrInvalidArgs", err)
	}
	cb.PushDebugGroup("a")
	cb.PopDebugGroup()
	if err := cb.End(); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if err := cb.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	// An unbalanced pop is reported by End.
	if err := cb.Begin(true); err != nil {
		t.Fatalf("Begin() after Reset error = %v", err)
	}
	cb.PopDebugGroup()
	if err := cb.End(); !errors.Is(err, gpucore.ErrInvalidArgs) {
		t.Errorf("End() after unbalanced pop error = %v, want ErrInvalidArgs", err)
	}
}

func TestSubmitRejectsUnendedBuffer(t *testing.T) {
	d := openNoop(t)
	cb, err := d.CreateCommandBuffer("frame")
	if err != nil {
		t.Fatalf("CreateCommandBuffer() error = %v", err)
	}
	defer d.FreeCommandBuffer(cb)
	err = d.Queue().Submit(gpucore.SubmitInfo{CommandBuffers: []gpucore.CommandBuffer{cb}}, nil)
	if !errors.Is(err, gpucore.ErrInvalidArgs) {
		t.Errorf("Submit() error = %v, want ErrInvalidArgs", err)
	}
}

func TestNoSwapchains(t *testing.T) {
	d := openNoop(t)
	if _, err := d.CreateSwapchain(&gpucore.SwapchainDescriptor{}); !errors.Is(err, gpucore.ErrNotImplemented) {
		t.Errorf("CreateSwapchain() error = %v, want ErrNotImplemented", err)
	}
	if err := d.Queue().Present(nil, 0, nil); !errors.Is(err, gpucore.ErrNotImplemented) {
		t.Errorf("Present() error = %v, want ErrNotImplemented", err)
	}
	if modes := d.PresentModes(nil); len(modes) != 1 || modes[0] != gpucore.PresentModeFifo {
		t.Errorf("PresentModes() = %v, want [Fifo]", modes)
	}
}

func TestFromProviderRejectsNonHAL(t *testing.T) {
	if _, err := FromProvider(nil, backend.Options{}); !errors.Is(err, gpucore.ErrInvalidArgs) {
		t.Errorf("FromProvider(nil) error = %v, want ErrInvalidArgs", err)
	}
}

func TestConvertTextureFormat(t *testing.T) {
	tests := []struct {
		in   gpucore.TextureFormat
		want gputypes.TextureFormat
		ok   bool
	}{
		{gpucore.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8Unorm, true},
		{gpucore.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8Unorm, true},
		{gpucore.TextureFormatR8Unorm, gputypes.TextureFormatR8Unorm, true},
		{gpucore.TextureFormatDepth24PlusStencil8, gputypes.TextureFormatDepth24PlusStencil8, true},
		{gpucore.TextureFormatUndefined, gputypes.TextureFormatUndefined, false},
	}
	for _, tt := range tests {
		got, ok := convertTextureFormat(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("convertTextureFormat(%s) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestConvertUsage(t *testing.T) {
	bu := convertBufferUsage(gpucore.BufferUsageVertex | gpucore.BufferUsageCopyDst)
	if bu != gputypes.BufferUsageVertex|gputypes.BufferUsageCopyDst {
		t.Errorf("convertBufferUsage() = %v", bu)
	}
	tu := convertTextureUsage(gpucore.TextureUsageDepthStencil | gpucore.TextureUsageCopySrc)
	if tu != gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageCopySrc {
		t.Errorf("convertTextureUsage() = %v", tu)
	}
	if got := layoutUsage(gpucore.TextureLayoutPresent); got != gputypes.TextureUsageRenderAttachment {
		t.Errorf("layoutUsage(Present) = %v, want RenderAttachment", got)
	}
	if got := layoutUsage(gpucore.TextureLayoutUndefined); got != 0 {
		t.Errorf("layoutUsage(Undefined) = %v, want 0", got)
	}
}
