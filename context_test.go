package gfxcore

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/gogpu/gfxcore/gpucore"
	"github.com/gogpu/gfxcore/internal/fakegpu"
)

func newTestContext(t *testing.T, surface gpucore.Surface, opts ...Option) (*Context, *fakegpu.Device) {
	t.Helper()
	dev := fakegpu.New(fakegpu.Options{})
	opts = append([]Option{WithMemoryBlockSize(1)}, opts...)
	ctx, err := NewContext(dev, surface, opts...)
	if err != nil {
		t.Fatalf("NewContext() error = %v", err)
	}
	return ctx, dev
}

// closeAndCheck closes ctx and fails the test on leaks or misuse.
func closeAndCheck(t *testing.T, ctx *Context, dev *fakegpu.Device) {
	t.Helper()
	if err := ctx.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	dev.Destroy()
	for _, v := range dev.Violations() {
		t.Errorf("violation: %s", v)
	}
}

func frames(t *testing.T, ctx *Context, n int) {
	t.Helper()
	for range n {
		if err := ctx.BeginFrame(); err != nil {
			t.Fatalf("BeginFrame() error = %v", err)
		}
		if err := ctx.Present(); err != nil {
			t.Fatalf("Present() error = %v", err)
		}
	}
}

func storage(size uint64, usage Usage, data []byte) BufferDescriptor {
	return BufferDescriptor{Size: size, Usage: usage, Bind: gpucore.BufferUsageStorage, InitialData: data}
}

func TestWriteDiscardRoundTrip(t *testing.T) {
	ctx, dev := newTestContext(t, nil)
	h, err := ctx.CreateBuffer(storage(256, UsageDynamic, nil))
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	if err := ctx.Map(h, MapWriteDiscard); err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	if err := ctx.Write(h, bytes.Repeat([]byte{0xAB}, 256)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := ctx.Unmap(h); err != nil {
		t.Fatalf("Unmap() error = %v", err)
	}

	if err := ctx.Map(h, MapRead); err != nil {
		t.Fatalf("Map(MapRead) error = %v", err)
	}
	b, _ := ctx.Buffer(h)
	if !bytes.Equal(b.Bytes()[:256], bytes.Repeat([]byte{0xAB}, 256)) {
		t.Errorf("mapped bytes are not all 0xAB")
	}
	if err := ctx.Unmap(h); err != nil {
		t.Fatal(err)
	}
	closeAndCheck(t, ctx, dev)
}

func TestWriteDiscardKeepsSubmittedFrames(t *testing.T) {
	ctx, dev := newTestContext(t, fakegpu.NewSurface(16, 16), WithFramesInFlight(2))
	src, err := ctx.CreateBuffer(storage(4, UsageDynamic, []byte{1, 1, 1, 1}))
	if err != nil {
		t.Fatal(err)
	}
	dst, err := ctx.CreateBuffer(storage(4, UsageStatic, nil))
	if err != nil {
		t.Fatal(err)
	}
	b, _ := ctx.Buffer(src)
	before := b.NativeHandle()

	if err := ctx.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := ctx.CopyBuffer(src, 0, dst, 0, 4); err != nil {
		t.Fatalf("CopyBuffer() error = %v", err)
	}
	if err := ctx.Present(); err != nil {
		t.Fatal(err)
	}

	if err := ctx.Map(src, MapWriteDiscard); err != nil {
		t.Fatalf("Map(MapWriteDiscard) error = %v", err)
	}
	if err := ctx.Write(src, []byte{2, 2, 2, 2}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := ctx.Unmap(src); err != nil {
		t.Fatal(err)
	}
	if b.NativeHandle() == before {
		t.Errorf("write-discard Map kept the buffer the frame is reading")
	}
	if !dev.BufferAlive(before) {
		t.Errorf("discarded buffer released before the frame reading it completed")
	}
	if err := ctx.WaitIdle(); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		h    Handle
		want []byte
	}{
		{"copied", dst, []byte{1, 1, 1, 1}},
		{"rewritten", src, []byte{2, 2, 2, 2}},
	}
	for _, tt := range tests {
		got := make([]byte, 4)
		if _, err := ctx.Read(tt.h, got); err != nil {
			t.Fatalf("%s: Read() error = %v", tt.name, err)
		}
		if !bytes.Equal(got, tt.want) {
			t.Errorf("%s: Read() = %v, want %v", tt.name, got, tt.want)
		}
	}
	frames(t, ctx, 3)
	if dev.BufferAlive(before) {
		t.Errorf("discarded buffer still alive after its frames completed")
	}
	closeAndCheck(t, ctx, dev)
}

func TestDestroyedBufferOutlivesFramesInFlight(t *testing.T) {
	surf := fakegpu.NewSurface(64, 64)
	ctx, dev := newTestContext(t, surf, WithFramesInFlight(3))
	h, err := ctx.CreateBuffer(storage(64, UsageDynamic, nil))
	if err != nil {
		t.Fatal(err)
	}
	b, _ := ctx.Buffer(h)
	native := b.NativeHandle()

	frames(t, ctx, 3)
	if err := ctx.Destroy(h); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}
	for frame := 4; frame <= 6; frame++ {
		if err := ctx.BeginFrame(); err != nil {
			t.Fatal(err)
		}
		if !dev.BufferAlive(native) {
			t.Fatalf("buffer released at BeginFrame of frame %d", frame)
		}
		if err := ctx.Present(); err != nil {
			t.Fatal(err)
		}
	}
	if err := ctx.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if dev.BufferAlive(native) {
		t.Errorf("buffer still alive at BeginFrame of frame 7")
	}
	if err := ctx.Present(); err != nil {
		t.Fatal(err)
	}
	closeAndCheck(t, ctx, dev)
}

func TestHandleLifecycle(t *testing.T) {
	ctx, dev := newTestContext(t, nil)
	h, err := ctx.CreateBuffer(storage(16, UsageDefault, nil))
	if err != nil {
		t.Fatal(err)
	}
	if ctx.Get(h) == nil {
		t.Errorf("Get() of live handle is nil")
	}
	if ctx.Get(InvalidHandle) != nil {
		t.Errorf("Get(InvalidHandle) is not nil")
	}
	if ctx.Get(Handle(1<<32|99)) != nil {
		t.Errorf("Get() of out-of-range handle is not nil")
	}
	if err := ctx.Destroy(h); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}
	if ctx.Get(h) != nil {
		t.Errorf("Get() of destroyed handle is not nil")
	}
	err = ctx.Destroy(h)
	if !errors.Is(err, ErrInvalidArgs) || !errors.Is(err, ErrStaleHandle) {
		t.Errorf("second Destroy() error = %v, want ErrInvalidArgs and ErrStaleHandle", err)
	}
	if got := dev.Stats().BuffersDestroyed; got != 0 {
		t.Errorf("BuffersDestroyed before any frame = %d, want 0", got)
	}
	closeAndCheck(t, ctx, dev)
	if got := dev.Stats().BuffersDestroyed; got != 1 {
		t.Errorf("BuffersDestroyed = %d, want 1", got)
	}
}

func TestCreateTextureZeroWidth(t *testing.T) {
	ctx, dev := newTestContext(t, nil)
	before := ctx.Stats()
	h, err := ctx.CreateTexture(TextureDescriptor{
		Width: 0, Height: 16, Depth: 1, MipLevels: 1, ArrayLayers: 1,
		Format: gpucore.TextureFormatRGBA8Unorm,
	})
	if !errors.Is(err, ErrInvalidArgs) || KindOf(err) != KindInvalidArgs {
		t.Errorf("CreateTexture() error = %v, want ErrInvalidArgs", err)
	}
	if h != InvalidHandle {
		t.Errorf("CreateTexture() handle = %s, want InvalidHandle", h)
	}
	if after := ctx.Stats(); after.TableSize != before.TableSize || after.Handles != before.Handles {
		t.Errorf("table changed: %d/%d -> %d/%d", before.Handles, before.TableSize, after.Handles, after.TableSize)
	}
	closeAndCheck(t, ctx, dev)
}

func TestResizeAndGetSize(t *testing.T) {
	ctx, dev := newTestContext(t, nil)
	h, err := ctx.CreateBuffer(storage(128, UsageDynamic, nil))
	if err != nil {
		t.Fatal(err)
	}
	if err := ctx.Resize(h, 512); err != nil {
		t.Fatalf("Resize() error = %v", err)
	}
	if got, err := ctx.GetSize(h); err != nil || got != 512 {
		t.Errorf("GetSize() = %d, %v, want 512, nil", got, err)
	}
	if got := ctx.Stats().Frame.Pending[0]; got != 1 {
		t.Errorf("pending destructions = %d, want 1", got)
	}

	th, err := ctx.CreateTexture(TextureDescriptor{
		Width: 4, Height: 4, Depth: 1, MipLevels: 1, ArrayLayers: 1,
		Format: gpucore.TextureFormatRGBA8Unorm,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := ctx.ResizeTexture(th, 8, 8, 1); err != nil {
		t.Fatalf("ResizeTexture() error = %v", err)
	}
	if got, _ := ctx.GetSize(th); got != 8*8*4 {
		t.Errorf("GetSize(texture) = %d, want %d", got, 8*8*4)
	}
	if err := ctx.Resize(th, 4); !errors.Is(err, ErrWrongKind) {
		t.Errorf("Resize(texture) error = %v, want ErrWrongKind", err)
	}
	if _, err := ctx.GetSize(InvalidHandle); !errors.Is(err, ErrInvalidArgs) {
		t.Errorf("GetSize(InvalidHandle) error = %v, want ErrInvalidArgs", err)
	}
	closeAndCheck(t, ctx, dev)
}

func TestCopyBufferInFrame(t *testing.T) {
	ctx, dev := newTestContext(t, nil)
	src, err := ctx.CreateBuffer(storage(16, UsageDynamic, []byte("0123456789abcdef")))
	if err != nil {
		t.Fatal(err)
	}
	dst, err := ctx.CreateBuffer(storage(16, UsageStatic, nil))
	if err != nil {
		t.Fatal(err)
	}

	if err := ctx.CopyBuffer(src, 0, dst, 0, 8); !errors.Is(err, ErrNotRecording) {
		t.Errorf("CopyBuffer() outside a frame error = %v, want ErrNotRecording", err)
	}
	if err := ctx.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := ctx.CopyBuffer(src, 0, dst, 12, 8); !errors.Is(err, ErrInvalidArgs) {
		t.Errorf("out of range CopyBuffer() error = %v, want ErrInvalidArgs", err)
	}
	if err := ctx.CopyBuffer(src, 0, dst, 4, 8); err != nil {
		t.Fatalf("CopyBuffer() error = %v", err)
	}
	if err := ctx.Present(); err != nil {
		t.Fatal(err)
	}
	if err := ctx.WaitIdle(); err != nil {
		t.Fatal(err)
	}

	got := make([]byte, 16)
	if _, err := ctx.Read(dst, got); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if want := append(append(make([]byte, 4), "01234567"...), make([]byte, 4)...); !bytes.Equal(got, want) {
		t.Errorf("dst = %q, want %q", got, want)
	}
	closeAndCheck(t, ctx, dev)
}

func TestTextureCopiesInFrame(t *testing.T) {
	ctx, dev := newTestContext(t, nil)
	desc := TextureDescriptor{
		Width: 2, Height: 2, Depth: 1, MipLevels: 1, ArrayLayers: 1,
		Format: gpucore.TextureFormatRGBA8Unorm,
	}
	texels := []byte("abcdefghijklmnop")

	src, err := ctx.CreateBuffer(storage(16, UsageDynamic, texels))
	if err != nil {
		t.Fatal(err)
	}
	readback, err := ctx.CreateBuffer(storage(32, UsageDynamic, nil))
	if err != nil {
		t.Fatal(err)
	}
	a, err := ctx.CreateTexture(desc)
	if err != nil {
		t.Fatal(err)
	}
	b, err := ctx.CreateTexture(desc)
	if err != nil {
		t.Fatal(err)
	}

	if err := ctx.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	steps := []struct {
		name string
		do   func() error
	}{
		{"CopyBufferToTexture", func() error { return ctx.CopyBufferToTexture(src, 0, a, Region{}) }},
		{"CopyTexture", func() error { return ctx.CopyTexture(a, Region{}, b, 0, 0, gpucore.Origin3D{}) }},
		{"CopyTextureToBuffer", func() error { return ctx.CopyTextureToBuffer(b, Region{}, readback, 16) }},
	}
	for _, s := range steps {
		if err := s.do(); err != nil {
			t.Fatalf("%s() error = %v", s.name, err)
		}
	}
	if err := ctx.CopyTextureToBuffer(b, Region{}, readback, 20); !errors.Is(err, ErrInvalidArgs) {
		t.Errorf("CopyTextureToBuffer() past the end error = %v, want ErrInvalidArgs", err)
	}
	if err := ctx.CopyTexture(a, Region{}, a, 0, 0, gpucore.Origin3D{}); !errors.Is(err, ErrInvalidArgs) {
		t.Errorf("CopyTexture() onto itself error = %v, want ErrInvalidArgs", err)
	}
	if err := ctx.Present(); err != nil {
		t.Fatal(err)
	}
	if err := ctx.WaitIdle(); err != nil {
		t.Fatal(err)
	}

	got := make([]byte, 32)
	if _, err := ctx.Read(readback, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got[16:], texels) {
		t.Errorf("readback = %q, want %q", got[16:], texels)
	}
	tex, _ := ctx.Texture(b)
	if tex.Layout() != gpucore.TextureLayoutShaderRead {
		t.Errorf("Layout() = %s, want ShaderRead", tex.Layout())
	}
	closeAndCheck(t, ctx, dev)
}

func TestCopyOffsetsWrap(t *testing.T) {
	ctx, dev := newTestContext(t, nil)
	desc := TextureDescriptor{
		Width: 2, Height: 2, Depth: 1, MipLevels: 1, ArrayLayers: 1,
		Format: gpucore.TextureFormatRGBA8Unorm,
	}
	a, err := ctx.CreateBuffer(storage(16, UsageDynamic, nil))
	if err != nil {
		t.Fatal(err)
	}
	b, err := ctx.CreateBuffer(storage(16, UsageDynamic, nil))
	if err != nil {
		t.Fatal(err)
	}
	tex, err := ctx.CreateTexture(desc)
	if err != nil {
		t.Fatal(err)
	}
	if err := ctx.BeginFrame(); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		do   func() error
	}{
		{"CopyBuffer src", func() error { return ctx.CopyBuffer(a, math.MaxUint64-1, b, 0, 4) }},
		{"CopyBuffer dst", func() error { return ctx.CopyBuffer(a, 0, b, math.MaxUint64-1, 4) }},
		{"CopyBuffer size", func() error { return ctx.CopyBuffer(a, 4, b, 0, math.MaxUint64) }},
		{"CopyBufferToTexture", func() error { return ctx.CopyBufferToTexture(a, math.MaxUint64, tex, Region{}) }},
		{"CopyTextureToBuffer", func() error { return ctx.CopyTextureToBuffer(tex, Region{}, b, math.MaxUint64) }},
	}
	for _, tt := range tests {
		if err := tt.do(); !errors.Is(err, ErrInvalidArgs) {
			t.Errorf("%s() error = %v, want ErrInvalidArgs", tt.name, err)
		}
	}
	if err := ctx.Present(); err != nil {
		t.Fatal(err)
	}
	closeAndCheck(t, ctx, dev)
}

func TestUpdateTexture(t *testing.T) {
	ctx, dev := newTestContext(t, nil)
	h, err := ctx.CreateTexture(TextureDescriptor{
		Width: 2, Height: 1, Depth: 1, MipLevels: 1, ArrayLayers: 1,
		Format: gpucore.TextureFormatR8Unorm,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := ctx.UpdateTexture(h, Region{}, []byte{1, 2}); err != nil {
		t.Fatalf("UpdateTexture() error = %v", err)
	}
	tex, _ := ctx.Texture(h)
	if got := tex.Native().(*fakegpu.Texture).Subresource(0, 0); !bytes.Equal(got, []byte{1, 2}) {
		t.Errorf("texels = %v, want [1 2]", got)
	}
	closeAndCheck(t, ctx, dev)
}

func TestSectionsAndResize(t *testing.T) {
	surf := fakegpu.NewSurface(32, 32)
	ctx, dev := newTestContext(t, surf, WithFramesInFlight(2), WithVSync(false))

	if err := ctx.BeginSection("outside"); !errors.Is(err, ErrNotRecording) {
		t.Errorf("BeginSection() outside a frame error = %v, want ErrNotRecording", err)
	}
	if err := ctx.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := ctx.BeginSection("pass"); err != nil {
		t.Fatal(err)
	}
	if err := ctx.EndSection(); err != nil {
		t.Fatal(err)
	}
	if err := ctx.Present(); err != nil {
		t.Fatal(err)
	}

	surf.Resize(48, 16)
	ctx.OnResize(48, 16)
	frames(t, ctx, 1)
	if ext := ctx.Swapchain().Extent(); ext.Width != 48 || ext.Height != 16 {
		t.Errorf("swapchain extent = %dx%d, want 48x16", ext.Width, ext.Height)
	}
	closeAndCheck(t, ctx, dev)
}

func TestDeviceLossIsLatched(t *testing.T) {
	ctx, dev := newTestContext(t, nil, WithFramesInFlight(1))
	frames(t, ctx, 1)
	dev.HangFences(true)

	err := ctx.BeginFrame()
	if KindOf(err) != KindDeviceLost || ResultOf(err) != ResultDeviceLost {
		t.Fatalf("BeginFrame() error = %v, want device lost", err)
	}
	if err := ctx.Present(); !errors.Is(err, ErrDeviceLost) {
		t.Errorf("Present() error = %v, want ErrDeviceLost", err)
	}
	if !ctx.Stats().Frame.Lost {
		t.Errorf("Stats().Frame.Lost = false")
	}
}

func TestClose(t *testing.T) {
	ctx, dev := newTestContext(t, fakegpu.NewSurface(16, 16))
	for range 3 {
		if _, err := ctx.CreateBuffer(storage(32, UsageDynamic, nil)); err != nil {
			t.Fatal(err)
		}
	}
	h, err := ctx.CreateBuffer(storage(32, UsageDynamic, nil))
	if err != nil {
		t.Fatal(err)
	}
	frames(t, ctx, 2)
	closeAndCheck(t, ctx, dev)

	if dev.LiveMemoryBlocks() != 0 {
		t.Errorf("LiveMemoryBlocks() = %d, want 0", dev.LiveMemoryBlocks())
	}
	if err := ctx.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := ctx.CreateBuffer(storage(32, UsageDynamic, nil)); !errors.Is(err, ErrClosed) {
		t.Errorf("CreateBuffer() after Close error = %v, want ErrClosed", err)
	}
	if err := ctx.BeginFrame(); !errors.Is(err, ErrClosed) {
		t.Errorf("BeginFrame() after Close error = %v, want ErrClosed", err)
	}
	if ctx.Get(h) != nil {
		t.Errorf("Get() after Close is not nil")
	}
	if sc := ctx.Swapchain(); sc != nil {
		t.Errorf("Swapchain() after Close = %v, want nil", sc)
	}
	if i := ctx.ImageIndex(); i != 0 {
		t.Errorf("ImageIndex() after Close = %d, want 0", i)
	}
	if st := ctx.Stats(); st.Handles != 0 || st.TableSize != 0 || st.Frame.Serial != 0 {
		t.Errorf("Stats() after Close = %+v, want zero", st)
	}
	if s := ctx.MemoryStats(true); s != "" {
		t.Errorf("MemoryStats() after Close = %q, want empty", s)
	}
}

func TestStats(t *testing.T) {
	ctx, dev := newTestContext(t, nil, WithFramesInFlight(2))
	if _, err := ctx.CreateBuffer(storage(1024, UsageDynamic, nil)); err != nil {
		t.Fatal(err)
	}
	frames(t, ctx, 3)
	st := ctx.Stats()
	if st.Frame.Serial != 3 || st.Frame.FramesInFlight != 2 || st.Handles != 1 {
		t.Errorf("Stats() = %+v", st)
	}
	if st.Memory.Allocations != 1 {
		t.Errorf("Memory.Allocations = %d, want 1", st.Memory.Allocations)
	}
	if s := st.String(); !strings.Contains(s, "serial 3") || !strings.Contains(s, "Handles[1/1]") {
		t.Errorf("Stats().String() = %q", s)
	}
	if s := ctx.MemoryStats(true); !strings.Contains(s, "\"Total\"") {
		t.Errorf("MemoryStats() = %q, want a Total object", s)
	}
	closeAndCheck(t, ctx, dev)
}

func TestNewContextErrors(t *testing.T) {
	if _, err := NewContext(nil, nil); !errors.Is(err, ErrInvalidArgs) {
		t.Errorf("NewContext(nil) error = %v, want ErrInvalidArgs", err)
	}
	dev := fakegpu.New(fakegpu.Options{})
	dev.FailNext("CreateCommandBuffer", gpucore.ErrOutOfMemory)
	if _, err := NewContext(dev, nil); ResultOf(err) != ResultOutOfMemory {
		t.Errorf("NewContext() error = %v, want out of memory", err)
	}
}
