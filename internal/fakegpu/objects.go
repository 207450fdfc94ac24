// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package fakegpu

import (
	"fmt"
	"time"

	"github.com/gogpu/gfxcore/gpucore"
)

// Memory is a fake device memory block backed by a byte slice.
type Memory struct {
	id        uintptr
	typeIndex uint32
	data      []byte
	freed     bool
	mapped    bool
}

// NativeHandle implements gpucore.NativeObject.
func (m *Memory) NativeHandle() uintptr { return m.id }

// Size implements gpucore.Memory.
func (m *Memory) Size() uint64 { return uint64(len(m.data)) }

// TypeIndex implements gpucore.Memory.
func (m *Memory) TypeIndex() uint32 { return m.typeIndex }

// Buffer is a fake buffer.
type Buffer struct {
	id        uintptr
	desc      gpucore.BufferDescriptor
	mem       *Memory
	offset    uint64
	destroyed bool
}

// NativeHandle implements gpucore.NativeObject.
func (b *Buffer) NativeHandle() uintptr { return b.id }

// Size implements gpucore.Buffer.
func (b *Buffer) Size() uint64 { return b.desc.Size }

// Bytes returns the bound memory range of the buffer, or nil if unbound.
func (b *Buffer) Bytes() []byte {
	if b.mem == nil {
		return nil
	}
	return b.mem.data[b.offset : b.offset+b.desc.Size]
}

// Texture is a fake texture. Subresources are stored tightly packed, mip
// levels outermost, then array layers.
type Texture struct {
	id        uintptr
	desc      gpucore.TextureDescriptor
	mem       *Memory
	offset    uint64
	own       []byte
	owner     *Swapchain
	layout    gpucore.TextureLayout
	destroyed bool
}

func newTexture(id uintptr, desc gpucore.TextureDescriptor) *Texture {
	return &Texture{id: id, desc: desc}
}

// NativeHandle implements gpucore.NativeObject.
func (t *Texture) NativeHandle() uintptr { return t.id }

// Extent implements gpucore.Texture.
func (t *Texture) Extent() gpucore.Extent3D { return t.desc.Size }

// Format implements gpucore.Texture.
func (t *Texture) Format() gpucore.TextureFormat { return t.desc.Format }

// Layout returns the last layout recorded by an executed transition.
func (t *Texture) Layout() gpucore.TextureLayout { return t.layout }

func (t *Texture) layers() uint32 {
	if t.desc.Dimension == gpucore.TextureDimension3D {
		return 1
	}
	return t.desc.Size.DepthOrArrayLayers
}

func (t *Texture) mipExtent(mip uint32) (w, h, depth uint32) {
	w = max(t.desc.Size.Width>>mip, 1)
	h = max(t.desc.Size.Height>>mip, 1)
	depth = 1
	if t.desc.Dimension == gpucore.TextureDimension3D {
		depth = max(t.desc.Size.DepthOrArrayLayers>>mip, 1)
	}
	return w, h, depth
}

func (t *Texture) subresourceSize(mip uint32) uint64 {
	w, h, depth := t.mipExtent(mip)
	return uint64(w) * uint64(h) * uint64(depth) * uint64(t.desc.Format.BytesPerPixel())
}

func (t *Texture) byteSize() uint64 {
	var total uint64
	for mip := uint32(0); mip < t.desc.MipLevelCount; mip++ {
		total += t.subresourceSize(mip) * uint64(t.layers())
	}
	return total
}

func (t *Texture) bytes() []byte {
	if t.own != nil {
		return t.own
	}
	if t.mem == nil {
		return nil
	}
	return t.mem.data[t.offset : t.offset+t.byteSize()]
}

// Subresource returns the bytes of one mip level of one array layer.
func (t *Texture) Subresource(mip, layer uint32) []byte {
	data := t.bytes()
	if data == nil || mip >= t.desc.MipLevelCount || layer >= t.layers() {
		return nil
	}
	var off uint64
	for m := uint32(0); m < mip; m++ {
		off += t.subresourceSize(m) * uint64(t.layers())
	}
	size := t.subresourceSize(mip)
	off += size * uint64(layer)
	return data[off : off+size]
}

// TextureView is a fake texture view.
type TextureView struct {
	id        uintptr
	tex       *Texture
	label     string
	destroyed bool
}

// NativeHandle implements gpucore.NativeObject.
func (v *TextureView) NativeHandle() uintptr { return v.id }

// Fence is a fake fence.
type Fence struct {
	id        uintptr
	signaled  bool
	pending   uint64
	resets    int
	destroyed bool
}

// NativeHandle implements gpucore.NativeObject.
func (f *Fence) NativeHandle() uintptr { return f.id }

// Signaled reports whether the fence is signaled.
func (f *Fence) Signaled() bool { return f.signaled }

// Semaphore is a fake semaphore.
type Semaphore struct {
	id        uintptr
	signaled  bool
	destroyed bool
}

// NativeHandle implements gpucore.NativeObject.
func (s *Semaphore) NativeHandle() uintptr { return s.id }

// Swapchain is a fake swapchain whose images own their storage.
type Swapchain struct {
	id        uintptr
	dev       *Device
	surface   gpucore.Surface
	images    []*Texture
	format    gpucore.TextureFormat
	mode      gpucore.PresentMode
	extent    gpucore.Extent3D
	next      uint32
	presented int
	destroyed bool
}

// NativeHandle implements gpucore.NativeObject.
func (s *Swapchain) NativeHandle() uintptr { return s.id }

// Images implements gpucore.Swapchain.
func (s *Swapchain) Images() []gpucore.Texture {
	out := make([]gpucore.Texture, len(s.images))
	for i, img := range s.images {
		out[i] = img
	}
	return out
}

// Format implements gpucore.Swapchain.
func (s *Swapchain) Format() gpucore.TextureFormat { return s.format }

// Extent implements gpucore.Swapchain.
func (s *Swapchain) Extent() gpucore.Extent3D { return s.extent }

// PresentMode implements gpucore.Swapchain.
func (s *Swapchain) PresentMode() gpucore.PresentMode { return s.mode }

// Presented returns how many images were presented from this swapchain.
func (s *Swapchain) Presented() int { return s.presented }

// AcquireNextImage implements gpucore.Swapchain. A surface whose extent no
// longer matches the swapchain reports ErrOutOfDate.
func (s *Swapchain) AcquireNextImage(signal gpucore.Semaphore, _ time.Duration) (uint32, error) {
	d := s.dev
	if s.destroyed {
		d.violate("AcquireNextImage", s.id, "acquire on destroyed swapchain")
		return 0, fmt.Errorf("%w: swapchain destroyed", gpucore.ErrInvalidArgs)
	}
	if err := d.takeFailure("AcquireNextImage"); err != nil {
		return 0, err
	}
	if d.acquireDate > 0 {
		d.acquireDate--
		return 0, gpucore.ErrOutOfDate
	}
	if w, h := s.surface.Extent(); w != s.extent.Width || h != s.extent.Height {
		return 0, gpucore.ErrOutOfDate
	}
	idx := s.next
	s.next = (s.next + 1) % uint32(len(s.images))
	if signal != nil {
		signal.(*Semaphore).signaled = true
	}
	if d.suboptimal > 0 {
		d.suboptimal--
		return idx, gpucore.ErrSuboptimal
	}
	return idx, nil
}

type cmdState int

const (
	cmdInitial cmdState = iota
	cmdRecording
	cmdExecutable
	cmdPending
	cmdFreed
)

// String returns the string representation of cmdState.
func (s cmdState) String() string {
	switch s {
	case cmdInitial:
		return "Initial"
	case cmdRecording:
		return "Recording"
	case cmdExecutable:
		return "Executable"
	case cmdPending:
		return "Pending"
	case cmdFreed:
		return "Freed"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// CommandBuffer is a fake command buffer. Recorded commands run when the
// submission containing the buffer completes.
type CommandBuffer struct {
	id     uintptr
	dev    *Device
	label  string
	state  cmdState
	ops    []func()
	refs   map[uintptr]struct{}
	groups []string

	// Labels records every debug group pushed since the last reset.
	Labels []string
}

// NativeHandle implements gpucore.NativeObject.
func (c *CommandBuffer) NativeHandle() uintptr { return c.id }

// Recording reports whether the buffer is between Begin and End.
func (c *CommandBuffer) Recording() bool { return c.state == cmdRecording }

// Commands returns the number of recorded commands.
func (c *CommandBuffer) Commands() int { return len(c.ops) }

// Begin implements gpucore.CommandBuffer.
func (c *CommandBuffer) Begin(bool) error {
	switch c.state {
	case cmdRecording, cmdPending, cmdFreed:
		c.dev.violate("Begin", c.id, "begin in state %s", c.state)
		return fmt.Errorf("%w: command buffer %q is %s", gpucore.ErrInvalidArgs, c.label, c.state)
	}
	c.clear()
	c.state = cmdRecording
	return nil
}

// End implements gpucore.CommandBuffer.
func (c *CommandBuffer) End() error {
	if c.state != cmdRecording {
		return fmt.Errorf("%w: command buffer %q is %s", gpucore.ErrInvalidArgs, c.label, c.state)
	}
	if len(c.groups) != 0 {
		return fmt.Errorf("%w: %d unclosed debug groups", gpucore.ErrInvalidArgs, len(c.groups))
	}
	c.state = cmdExecutable
	return nil
}

// Reset implements gpucore.CommandBuffer.
func (c *CommandBuffer) Reset() error {
	if c.state == cmdPending {
		c.dev.violate("Reset", c.id, "reset of pending command buffer")
		return fmt.Errorf("%w: command buffer %q is pending", gpucore.ErrInvalidArgs, c.label)
	}
	c.clear()
	c.state = cmdInitial
	return nil
}

func (c *CommandBuffer) clear() {
	c.ops = c.ops[:0]
	c.refs = make(map[uintptr]struct{})
	c.groups = nil
	c.Labels = nil
}

func (c *CommandBuffer) record(op func(), refs ...uintptr) {
	if c.state != cmdRecording {
		c.dev.violate("record", c.id, "command recorded in state %s", c.state)
		return
	}
	for _, r := range refs {
		c.refs[r] = struct{}{}
	}
	c.ops = append(c.ops, op)
}

func (c *CommandBuffer) touchBuffer(b *Buffer) []uintptr {
	if b.destroyed {
		c.dev.violate("record", b.id, "destroyed buffer used in command")
	}
	refs := []uintptr{b.id}
	if b.mem != nil {
		refs = append(refs, b.mem.id)
	}
	return refs
}

func (c *CommandBuffer) touchTexture(t *Texture) []uintptr {
	if t.destroyed {
		c.dev.violate("record", t.id, "destroyed texture used in command")
	}
	refs := []uintptr{t.id}
	if t.mem != nil {
		refs = append(refs, t.mem.id)
	}
	if t.owner != nil {
		refs = append(refs, t.owner.id)
	}
	return refs
}

// CopyBufferToBuffer implements gpucore.CommandBuffer.
func (c *CommandBuffer) CopyBufferToBuffer(src, dst gpucore.Buffer, regions []gpucore.BufferCopy) {
	s, d := src.(*Buffer), dst.(*Buffer)
	regions = append([]gpucore.BufferCopy(nil), regions...)
	refs := append(c.touchBuffer(s), c.touchBuffer(d)...)
	c.record(func() {
		for _, r := range regions {
			copy(d.Bytes()[r.DstOffset:r.DstOffset+r.Size], s.Bytes()[r.SrcOffset:r.SrcOffset+r.Size])
		}
	}, refs...)
}

// CopyBufferToTexture implements gpucore.CommandBuffer.
func (c *CommandBuffer) CopyBufferToTexture(src gpucore.Buffer, dst gpucore.Texture, regions []gpucore.BufferTextureCopy) {
	s, t := src.(*Buffer), dst.(*Texture)
	regions = append([]gpucore.BufferTextureCopy(nil), regions...)
	refs := append(c.touchBuffer(s), c.touchTexture(t)...)
	c.record(func() {
		for _, r := range regions {
			copyRegion(t, r, s.Bytes(), true)
		}
	}, refs...)
}

// CopyTextureToBuffer implements gpucore.CommandBuffer.
func (c *CommandBuffer) CopyTextureToBuffer(src gpucore.Texture, dst gpucore.Buffer, regions []gpucore.BufferTextureCopy) {
	t, b := src.(*Texture), dst.(*Buffer)
	regions = append([]gpucore.BufferTextureCopy(nil), regions...)
	refs := append(c.touchTexture(t), c.touchBuffer(b)...)
	c.record(func() {
		for _, r := range regions {
			copyRegion(t, r, b.Bytes(), false)
		}
	}, refs...)
}

// CopyTextureToTexture implements gpucore.CommandBuffer.
func (c *CommandBuffer) CopyTextureToTexture(src, dst gpucore.Texture, regions []gpucore.TextureCopy) {
	s, d := src.(*Texture), dst.(*Texture)
	regions = append([]gpucore.TextureCopy(nil), regions...)
	refs := append(c.touchTexture(s), c.touchTexture(d)...)
	c.record(func() {
		bpp := uint64(s.desc.Format.BytesPerPixel())
		for _, r := range regions {
			sw, sh, _ := s.mipExtent(r.SrcMipLevel)
			dw, dh, _ := d.mipExtent(r.DstMipLevel)
			sdata := s.Subresource(r.SrcMipLevel, r.SrcArrayLayer)
			ddata := d.Subresource(r.DstMipLevel, r.DstArrayLayer)
			rowBytes := uint64(r.Size.Width) * bpp
			for z := uint32(0); z < max(r.Size.DepthOrArrayLayers, 1); z++ {
				for y := uint32(0); y < r.Size.Height; y++ {
					so := ((uint64(r.SrcOrigin.Z+z)*uint64(sh)+uint64(r.SrcOrigin.Y+y))*uint64(sw) + uint64(r.SrcOrigin.X)) * bpp
					do := ((uint64(r.DstOrigin.Z+z)*uint64(dh)+uint64(r.DstOrigin.Y+y))*uint64(dw) + uint64(r.DstOrigin.X)) * bpp
					copy(ddata[do:do+rowBytes], sdata[so:so+rowBytes])
				}
			}
		}
	}, refs...)
}

// copyRegion moves texels between a buffer and one texture subresource.
func copyRegion(t *Texture, r gpucore.BufferTextureCopy, buf []byte, toTexture bool) {
	bpp := uint64(t.desc.Format.BytesPerPixel())
	w, h, _ := t.mipExtent(r.MipLevel)
	sub := t.Subresource(r.MipLevel, r.ArrayLayer)
	rowBytes := uint64(r.Size.Width) * bpp
	pitch := uint64(r.BytesPerRow)
	if pitch == 0 {
		pitch = rowBytes
	}
	for z := uint32(0); z < max(r.Size.DepthOrArrayLayers, 1); z++ {
		for y := uint32(0); y < r.Size.Height; y++ {
			bo := r.BufferOffset + (uint64(z)*uint64(r.Size.Height)+uint64(y))*pitch
			to := ((uint64(r.Origin.Z+z)*uint64(h)+uint64(r.Origin.Y+y))*uint64(w) + uint64(r.Origin.X)) * bpp
			if toTexture {
				copy(sub[to:to+rowBytes], buf[bo:bo+rowBytes])
			} else {
				copy(buf[bo:bo+rowBytes], sub[to:to+rowBytes])
			}
		}
	}
}

// TransitionTexture implements gpucore.CommandBuffer.
func (c *CommandBuffer) TransitionTexture(tex gpucore.Texture, _, to gpucore.TextureLayout) {
	t := tex.(*Texture)
	c.record(func() { t.layout = to }, c.touchTexture(t)...)
}

// PushDebugGroup implements gpucore.CommandBuffer.
func (c *CommandBuffer) PushDebugGroup(label string) {
	c.groups = append(c.groups, label)
	c.Labels = append(c.Labels, label)
}

// PopDebugGroup implements gpucore.CommandBuffer.
func (c *CommandBuffer) PopDebugGroup() {
	if len(c.groups) == 0 {
		c.dev.violate("PopDebugGroup", c.id, "pop without push")
		return
	}
	c.groups = c.groups[:len(c.groups)-1]
}
