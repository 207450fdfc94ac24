package gfxcore

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/gogpu/gfxcore/gpucore"
	"github.com/gogpu/gfxcore/internal/alloc"
	"github.com/gogpu/gfxcore/internal/frame"
	"github.com/gogpu/gfxcore/internal/resource"
)

// Context owns a device's resources and paces its frames.
//
// A Context is not safe for concurrent use. All calls, including resource
// creation, are made from the thread that records frames.
type Context struct {
	dev   gpucore.Device
	cfg   Config
	log   *slog.Logger
	alloc *alloc.Allocator
	pacer *frame.Pacer
	table *resource.Table

	closed bool
}

// Ensure Context implements io.Closer
var _ io.Closer = (*Context)(nil)

// NewContext creates a Context on dev presenting to surface. A nil surface
// creates an offscreen Context whose frames are submitted without
// presenting.
//
//	ctx, err := gfxcore.NewContext(dev, surface, gfxcore.WithFramesInFlight(2))
//	if err != nil {
//	    return err
//	}
//	defer ctx.Close()
func NewContext(dev gpucore.Device, surface gpucore.Surface, opts ...Option) (*Context, error) {
	if dev == nil {
		return nil, fmt.Errorf("%w: gfxcore: nil device", ErrInvalidArgs)
	}
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	a, err := alloc.New(dev, alloc.Config{
		BlockSize: uint64(cfg.BlockSizeMB) << 20,
		Budget:    uint64(cfg.BudgetMB) << 20,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	p, err := frame.NewPacer(dev, surface, frame.Releaser{Device: dev, Allocator: a}, frame.Config{
		FramesInFlight: cfg.FramesInFlight,
		FenceTimeout:   cfg.FenceTimeout,
		VSync:          cfg.VSync,
		Format:         cfg.SwapchainFormat,
		Logger:         cfg.Logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	table, err := resource.NewTable(&resource.Env{
		Device:    dev,
		Allocator: a,
		Deferrer:  p,
		Uploader:  p,
		Logger:    cfg.Logger,
	})
	if err != nil {
		_ = p.Close()
		a.Close()
		return nil, err
	}

	info := dev.Info()
	cfg.Logger.Info("gfxcore: context created",
		slog.String("device", info.Name),
		slog.String("backend", info.Backend),
		slog.Int("framesInFlight", cfg.FramesInFlight))
	return &Context{dev: dev, cfg: cfg, log: cfg.Logger, alloc: a, pacer: p, table: table}, nil
}

// Config returns the effective configuration.
func (c *Context) Config() Config { return c.cfg }

// Device returns the device the Context was created on.
func (c *Context) Device() gpucore.Device { return c.dev }

func (c *Context) check() error {
	if c.closed {
		return ErrClosed
	}
	return nil
}

// --- Resources ---

// CreateBuffer creates a buffer and returns its handle.
func (c *Context) CreateBuffer(desc BufferDescriptor) (Handle, error) {
	if err := c.check(); err != nil {
		return InvalidHandle, err
	}
	return c.table.CreateBuffer(desc)
}

// CreateTexture creates a texture and returns its handle.
func (c *Context) CreateTexture(desc TextureDescriptor) (Handle, error) {
	if err := c.check(); err != nil {
		return InvalidHandle, err
	}
	return c.table.CreateTexture(desc)
}

// Destroy invalidates h at once and releases its resource after every frame
// that may use it has completed. Destroying a handle twice is an error.
func (c *Context) Destroy(h Handle) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.table.Destroy(h)
}

// Get returns the resource for h, or nil if h was never created or has been
// destroyed.
func (c *Context) Get(h Handle) Resource {
	if c.closed {
		return nil
	}
	return c.table.Get(h)
}

// Buffer returns the buffer for h.
func (c *Context) Buffer(h Handle) (*Buffer, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	return c.table.Buffer(h)
}

// Texture returns the texture for h.
func (c *Context) Texture(h Handle) (*Texture, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	return c.table.Texture(h)
}

// Map makes a host-visible buffer accessible to the CPU.
func (c *Context) Map(h Handle, mode MapMode) error {
	b, err := c.Buffer(h)
	if err != nil {
		return err
	}
	return b.Map(mode)
}

// Unmap ends CPU access to a buffer.
func (c *Context) Unmap(h Handle) error {
	b, err := c.Buffer(h)
	if err != nil {
		return err
	}
	return b.Unmap()
}

// Write appends data to a mapped buffer.
func (c *Context) Write(h Handle, data []byte) error {
	b, err := c.Buffer(h)
	if err != nil {
		return err
	}
	return b.Write(data)
}

// Read copies the start of a buffer into dst.
func (c *Context) Read(h Handle, dst []byte) (int, error) {
	b, err := c.Buffer(h)
	if err != nil {
		return 0, err
	}
	return b.Read(dst)
}

// Resize replaces a buffer's storage with newSize bytes. Contents are not
// preserved and the old storage is released through the deferred path.
func (c *Context) Resize(h Handle, newSize uint64) error {
	b, err := c.Buffer(h)
	if err != nil {
		return err
	}
	return b.Resize(newSize)
}

// ResizeTexture re-creates a texture with a new extent.
func (c *Context) ResizeTexture(h Handle, width, height, depth uint32) error {
	t, err := c.Texture(h)
	if err != nil {
		return err
	}
	return t.Resize(width, height, depth)
}

// GetSize returns a buffer's capacity or a texture's packed byte size.
func (c *Context) GetSize(h Handle) (uint64, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	switch r := c.table.Get(h).(type) {
	case *Buffer:
		return r.Size(), nil
	case *Texture:
		return r.ByteSize(), nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrInvalidArgs, h)
	}
}

// UpdateTexture uploads tightly packed texels into a region of a texture and
// blocks until the upload completes.
func (c *Context) UpdateTexture(h Handle, region Region, data []byte) error {
	t, err := c.Texture(h)
	if err != nil {
		return err
	}
	return t.Update(region, data)
}

// --- Frames ---

// BeginFrame starts a frame. It blocks until the frame slot it reuses has
// been completed by the GPU.
//
// ErrOutOfDate means the frame could not start, for example because the
// window is minimized; skip rendering and call BeginFrame again later.
func (c *Context) BeginFrame() error {
	if err := c.check(); err != nil {
		return err
	}
	return c.pacer.BeginFrame()
}

// Present submits the frame and queues its image for display.
func (c *Context) Present() error {
	if err := c.check(); err != nil {
		return err
	}
	return c.pacer.Present()
}

// CommandBuffer returns the command buffer of the frame being recorded.
func (c *Context) CommandBuffer() (gpucore.CommandBuffer, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	return c.pacer.CommandBuffer()
}

// Swapchain returns the current swapchain, or nil when offscreen.
func (c *Context) Swapchain() *frame.Swapchain {
	if c.closed {
		return nil
	}
	return c.pacer.Swapchain()
}

// ImageIndex returns the swapchain image acquired for the current frame.
func (c *Context) ImageIndex() uint32 {
	if c.closed {
		return 0
	}
	return c.pacer.ImageIndex()
}

// OnResize notifies the Context that the surface changed size. The
// swapchain is rebuilt at the next BeginFrame.
func (c *Context) OnResize(width, height uint32) {
	if c.closed {
		return
	}
	c.pacer.NotifyResize(width, height)
}

// BeginSection opens a labelled debug section in the current frame.
// Sections left open are closed by Present.
func (c *Context) BeginSection(label string) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.pacer.PushDebugGroup(label)
}

// EndSection closes the innermost debug section.
func (c *Context) EndSection() error {
	if err := c.check(); err != nil {
		return err
	}
	return c.pacer.PopDebugGroup()
}

// ExecuteCopyImmediate records fn on a dedicated command buffer, submits it
// and waits for it to complete. It may be called outside a frame.
func (c *Context) ExecuteCopyImmediate(fn func(cb gpucore.CommandBuffer) error) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.pacer.ExecuteCopyImmediate(fn)
}

// --- Copies recorded into the current frame ---

// CopyBuffer records a copy of size bytes between two buffers.
func (c *Context) CopyBuffer(src Handle, srcOffset uint64, dst Handle, dstOffset, size uint64) error {
	cb, err := c.CommandBuffer()
	if err != nil {
		return err
	}
	s, err := c.table.Buffer(src)
	if err != nil {
		return err
	}
	d, err := c.table.Buffer(dst)
	if err != nil {
		return err
	}
	if size == 0 || !fits(srcOffset, size, s.Size()) || !fits(dstOffset, size, d.Size()) {
		return fmt.Errorf("%w: copy of %d bytes from %d of %d to %d of %d",
			ErrInvalidArgs, size, srcOffset, s.Size(), dstOffset, d.Size())
	}
	cb.CopyBufferToBuffer(s.Native(), d.Native(), []gpucore.BufferCopy{{
		SrcOffset: srcOffset,
		DstOffset: dstOffset,
		Size:      size,
	}})
	return nil
}

// CopyBufferToTexture records a copy of tightly packed texels at srcOffset
// into region of a texture, leaving the texture ready for sampling.
func (c *Context) CopyBufferToTexture(src Handle, srcOffset uint64, dst Handle, region Region) error {
	cb, err := c.CommandBuffer()
	if err != nil {
		return err
	}
	s, err := c.table.Buffer(src)
	if err != nil {
		return err
	}
	t, err := c.table.Texture(dst)
	if err != nil {
		return err
	}
	r, err := t.CopyRegion(region)
	if err != nil {
		return err
	}
	if !fits(srcOffset, regionBytes(t, r), s.Size()) {
		return fmt.Errorf("%w: buffer of %d bytes is too small for the region", ErrInvalidArgs, s.Size())
	}
	r.BufferOffset = srcOffset
	cb.TransitionTexture(t.Native(), t.Layout(), gpucore.TextureLayoutTransferDst)
	cb.CopyBufferToTexture(s.Native(), t.Native(), []gpucore.BufferTextureCopy{r})
	cb.TransitionTexture(t.Native(), gpucore.TextureLayoutTransferDst, gpucore.TextureLayoutShaderRead)
	t.SetLayout(gpucore.TextureLayoutShaderRead)
	return nil
}

// CopyTextureToBuffer records a copy of region of a texture into a buffer
// at dstOffset, tightly packed.
func (c *Context) CopyTextureToBuffer(src Handle, region Region, dst Handle, dstOffset uint64) error {
	cb, err := c.CommandBuffer()
	if err != nil {
		return err
	}
	t, err := c.table.Texture(src)
	if err != nil {
		return err
	}
	d, err := c.table.Buffer(dst)
	if err != nil {
		return err
	}
	r, err := t.CopyRegion(region)
	if err != nil {
		return err
	}
	if !fits(dstOffset, regionBytes(t, r), d.Size()) {
		return fmt.Errorf("%w: buffer of %d bytes is too small for the region", ErrInvalidArgs, d.Size())
	}
	r.BufferOffset = dstOffset
	cb.TransitionTexture(t.Native(), t.Layout(), gpucore.TextureLayoutTransferSrc)
	cb.CopyTextureToBuffer(t.Native(), d.Native(), []gpucore.BufferTextureCopy{r})
	cb.TransitionTexture(t.Native(), gpucore.TextureLayoutTransferSrc, gpucore.TextureLayoutShaderRead)
	t.SetLayout(gpucore.TextureLayoutShaderRead)
	return nil
}

// CopyTexture records a copy of srcRegion of one texture to dstOrigin of
// another. Both textures must share a format.
func (c *Context) CopyTexture(src Handle, srcRegion Region, dst Handle, dstMip, dstLayer uint32, dstOrigin gpucore.Origin3D) error {
	cb, err := c.CommandBuffer()
	if err != nil {
		return err
	}
	s, err := c.table.Texture(src)
	if err != nil {
		return err
	}
	d, err := c.table.Texture(dst)
	if err != nil {
		return err
	}
	if s == d {
		return fmt.Errorf("%w: copy of a texture onto itself", ErrInvalidArgs)
	}
	if s.Descriptor().Format != d.Descriptor().Format {
		return fmt.Errorf("%w: copy from %s to %s", ErrInvalidArgs, s.Descriptor().Format, d.Descriptor().Format)
	}
	sr, err := s.CopyRegion(srcRegion)
	if err != nil {
		return err
	}
	if _, err := d.CopyRegion(Region{
		MipLevel:   dstMip,
		ArrayLayer: dstLayer,
		X:          dstOrigin.X,
		Y:          dstOrigin.Y,
		Z:          dstOrigin.Z,
		Width:      sr.Size.Width,
		Height:     sr.Size.Height,
		Depth:      sr.Size.DepthOrArrayLayers,
	}); err != nil {
		return err
	}
	cb.TransitionTexture(s.Native(), s.Layout(), gpucore.TextureLayoutTransferSrc)
	cb.TransitionTexture(d.Native(), d.Layout(), gpucore.TextureLayoutTransferDst)
	cb.CopyTextureToTexture(s.Native(), d.Native(), []gpucore.TextureCopy{{
		SrcMipLevel:   sr.MipLevel,
		SrcArrayLayer: sr.ArrayLayer,
		SrcOrigin:     sr.Origin,
		DstMipLevel:   dstMip,
		DstArrayLayer: dstLayer,
		DstOrigin:     dstOrigin,
		Size:          sr.Size,
	}})
	cb.TransitionTexture(s.Native(), gpucore.TextureLayoutTransferSrc, gpucore.TextureLayoutShaderRead)
	cb.TransitionTexture(d.Native(), gpucore.TextureLayoutTransferDst, gpucore.TextureLayoutShaderRead)
	s.SetLayout(gpucore.TextureLayoutShaderRead)
	d.SetLayout(gpucore.TextureLayoutShaderRead)
	return nil
}

// fits reports whether size bytes at offset lie within capacity.
func fits(offset, size, capacity uint64) bool {
	return offset <= capacity && size <= capacity-offset
}

func regionBytes(t *Texture, r gpucore.BufferTextureCopy) uint64 {
	return uint64(r.Size.Width) * uint64(r.Size.Height) * uint64(max(r.Size.DepthOrArrayLayers, 1)) *
		uint64(t.Descriptor().Format.BytesPerPixel())
}

// --- Lifecycle ---

// Stats describes a Context.
type Stats struct {
	Frame  frame.Stats
	Memory alloc.Stats

	// Handles is the number of live resources, TableSize the number of
	// handle slots including free ones.
	Handles   int
	TableSize int
}

// String returns a one-line summary.
func (s Stats) String() string {
	pending := 0
	for _, n := range s.Frame.Pending {
		pending += n
	}
	return fmt.Sprintf("Frame[serial %d, slot %d/%d, %d pending] Handles[%d/%d] %s",
		s.Frame.Serial, s.Frame.Slot, s.Frame.FramesInFlight, pending, s.Handles, s.TableSize, s.Memory)
}

// Stats returns frame, memory and handle counters.
func (c *Context) Stats() Stats {
	if c.closed {
		return Stats{}
	}
	return Stats{
		Frame:     c.pacer.Stats(),
		Memory:    c.alloc.Stats(),
		Handles:   c.table.Live(),
		TableSize: c.table.Len(),
	}
}

// MemoryStats returns a JSON description of device memory use. detailed
// adds one entry per allocation.
func (c *Context) MemoryStats(detailed bool) string {
	if c.closed {
		return ""
	}
	return c.alloc.BuildStatsString(detailed)
}

// WaitIdle blocks until the device has finished all submitted work.
func (c *Context) WaitIdle() error {
	if err := c.check(); err != nil {
		return err
	}
	return c.pacer.WaitIdle()
}

// Close waits for the device to go idle and releases every resource, the
// swapchain and all frame objects. The device itself is not destroyed.
// Close is idempotent.
func (c *Context) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	if !c.pacer.Lost() {
		if err := c.pacer.WaitIdle(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.table.DestroyAll(frame.Releaser{Device: c.dev, Allocator: c.alloc}); err != nil {
		c.log.Error("gfxcore: releasing resources", slog.Any("err", err))
		errs = append(errs, err)
	}
	if err := c.pacer.Close(); err != nil {
		errs = append(errs, err)
	}
	c.alloc.Close()
	c.log.Info("gfxcore: context closed")
	return errors.Join(errs...)
}
