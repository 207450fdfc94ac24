//go:build !nogpu

package native

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gfxcore/gpucore"
)

var errNotRecording = errors.New("native: command buffer is not recording")

// commandBuffer records into a HAL command encoder. Recording errors are
// latched and reported by End.
type commandBuffer struct {
	id    uintptr
	dev   *Device
	label string

	enc       hal.CommandEncoder
	recording bool
	finished  hal.CommandBuffer
	err       error
	depth     int
}

func (c *commandBuffer) NativeHandle() uintptr { return c.id }

// CreateCommandBuffer implements gpucore.Device.
func (d *Device) CreateCommandBuffer(label string) (gpucore.CommandBuffer, error) {
	enc, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	return &commandBuffer{id: d.newID(), dev: d, label: label, enc: enc}, nil
}

// FreeCommandBuffer implements gpucore.Device.
func (d *Device) FreeCommandBuffer(cb gpucore.CommandBuffer) {
	c, ok := cb.(*commandBuffer)
	if !ok {
		return
	}
	c.release()
	c.enc = nil
}

// release drops encoded work. The caller guarantees the GPU is done with it.
func (c *commandBuffer) release() {
	if c.recording && c.enc != nil {
		c.enc.DiscardEncoding()
	}
	c.recording = false
	if c.finished != nil {
		c.dev.device.FreeCommandBuffer(c.finished)
		c.finished = nil
	}
	c.err = nil
	c.depth = 0
}

// Begin implements gpucore.CommandBuffer.
func (c *commandBuffer) Begin(bool) error {
	if c.enc == nil {
		return fmt.Errorf("%w: command buffer freed", gpucore.ErrInvalidArgs)
	}
	if c.recording || c.finished != nil {
		return fmt.Errorf("%w: command buffer must be reset before Begin", gpucore.ErrInvalidArgs)
	}
	if err := c.enc.BeginEncoding(c.label); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	c.recording = true
	return nil
}

// End implements gpucore.CommandBuffer.
func (c *commandBuffer) End() error {
	if !c.recording {
		return errNotRecording
	}
	if c.err != nil {
		c.enc.DiscardEncoding()
		c.recording = false
		return c.err
	}
	cmd, err := c.enc.EndEncoding()
	c.recording = false
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	c.finished = cmd
	return nil
}

// Reset implements gpucore.CommandBuffer.
func (c *commandBuffer) Reset() error {
	c.release()
	return nil
}

func (c *commandBuffer) check(op string) bool {
	if !c.recording {
		if c.err == nil {
			c.err = fmt.Errorf("%s: %w", op, errNotRecording)
		}
		return false
	}
	return c.err == nil
}

func (c *commandBuffer) fail(op string, err error) {
	if c.err == nil {
		c.err = fmt.Errorf("%s: %w", op, err)
	}
}

// CopyBufferToBuffer implements gpucore.CommandBuffer.
func (c *commandBuffer) CopyBufferToBuffer(src, dst gpucore.Buffer, regions []gpucore.BufferCopy) {
	if !c.check("copy buffer to buffer") {
		return
	}
	s, sok := src.(*buffer)
	d, dok := dst.(*buffer)
	if !sok || !dok {
		c.fail("copy buffer to buffer", gpucore.ErrInvalidArgs)
		return
	}
	copies := make([]hal.BufferCopy, len(regions))
	for i, r := range regions {
		copies[i] = hal.BufferCopy{SrcOffset: r.SrcOffset, DstOffset: r.DstOffset, Size: r.Size}
	}
	c.enc.CopyBufferToBuffer(s.raw, d.raw, copies)
}

// CopyBufferToTexture implements gpucore.CommandBuffer.
func (c *commandBuffer) CopyBufferToTexture(src gpucore.Buffer, dst gpucore.Texture, regions []gpucore.BufferTextureCopy) {
	if !c.check("copy buffer to texture") {
		return
	}
	b, bok := src.(*buffer)
	t, tok := dst.(*texture)
	if !bok || !tok {
		c.fail("copy buffer to texture", gpucore.ErrInvalidArgs)
		return
	}
	c.enc.CopyBufferToTexture(b.raw, t.raw, bufferTextureCopies(t, regions))
}

// CopyTextureToBuffer implements gpucore.CommandBuffer.
func (c *commandBuffer) CopyTextureToBuffer(src gpucore.Texture, dst gpucore.Buffer, regions []gpucore.BufferTextureCopy) {
	if !c.check("copy texture to buffer") {
		return
	}
	t, tok := src.(*texture)
	b, bok := dst.(*buffer)
	if !bok || !tok {
		c.fail("copy texture to buffer", gpucore.ErrInvalidArgs)
		return
	}
	c.enc.CopyTextureToBuffer(t.raw, b.raw, bufferTextureCopies(t, regions))
}

// bufferTextureCopies converts regions. Array layers are addressed through
// the origin's Z, as in WebGPU.
func bufferTextureCopies(t *texture, regions []gpucore.BufferTextureCopy) []hal.BufferTextureCopy {
	out := make([]hal.BufferTextureCopy, len(regions))
	for i, r := range regions {
		bpr := r.BytesPerRow
		if bpr == 0 {
			bpr = t.bytesPerRow(r.Size.Width)
		}
		out[i] = hal.BufferTextureCopy{
			BufferLayout: hal.ImageDataLayout{Offset: r.BufferOffset, BytesPerRow: bpr, RowsPerImage: r.Size.Height},
			TextureBase:  imageCopy(t, r.MipLevel, r.ArrayLayer, r.Origin),
			Size:         extent(r.Size),
		}
	}
	return out
}

// CopyTextureToTexture implements gpucore.CommandBuffer.
func (c *commandBuffer) CopyTextureToTexture(src, dst gpucore.Texture, regions []gpucore.TextureCopy) {
	if !c.check("copy texture to texture") {
		return
	}
	s, sok := src.(*texture)
	d, dok := dst.(*texture)
	if !sok || !dok {
		c.fail("copy texture to texture", gpucore.ErrInvalidArgs)
		return
	}
	copies := make([]hal.TextureCopy, len(regions))
	for i, r := range regions {
		copies[i] = hal.TextureCopy{
			SrcBase: imageCopy(s, r.SrcMipLevel, r.SrcArrayLayer, r.SrcOrigin),
			DstBase: imageCopy(d, r.DstMipLevel, r.DstArrayLayer, r.DstOrigin),
			Size:    extent(r.Size),
		}
	}
	c.enc.CopyTextureToTexture(s.raw, d.raw, copies)
}

func imageCopy(t *texture, mip, layer uint32, origin gpucore.Origin3D) hal.ImageCopyTexture {
	return hal.ImageCopyTexture{
		Texture:  t.raw,
		MipLevel: mip,
		Origin:   hal.Origin3D{X: origin.X, Y: origin.Y, Z: origin.Z + layer},
		Aspect:   gputypes.TextureAspectAll,
	}
}

func extent(e gpucore.Extent3D) hal.Extent3D {
	return hal.Extent3D{Width: e.Width, Height: e.Height, DepthOrArrayLayers: max(e.DepthOrArrayLayers, 1)}
}

// TransitionTexture implements gpucore.CommandBuffer. The HAL tracks
// layouts through usages.
func (c *commandBuffer) TransitionTexture(tex gpucore.Texture, from, to gpucore.TextureLayout) {
	if !c.check("transition texture") {
		return
	}
	t, ok := tex.(*texture)
	if !ok {
		c.fail("transition texture", gpucore.ErrInvalidArgs)
		return
	}
	c.enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.raw,
		Usage: hal.TextureUsageTransition{
			OldUsage: layoutUsage(from),
			NewUsage: layoutUsage(to),
		},
	}})
}

// PushDebugGroup implements gpucore.CommandBuffer. The HAL encoder has no
// debug markers, so groups are only balanced.
func (c *commandBuffer) PushDebugGroup(string) {
	if c.check("push debug group") {
		c.depth++
	}
}

// PopDebugGroup implements gpucore.CommandBuffer.
func (c *commandBuffer) PopDebugGroup() {
	if !c.check("pop debug group") {
		return
	}
	if c.depth == 0 {
		c.fail("pop debug group", fmt.Errorf("%w: no open debug group", gpucore.ErrInvalidArgs))
		return
	}
	c.depth--
}

// queue submits to the HAL queue.
type queue struct {
	dev *Device
	raw hal.Queue
}

// Submit implements gpucore.Queue. Semaphores are ignored; the HAL queue
// executes submissions in order.
func (q *queue) Submit(info gpucore.SubmitInfo, f gpucore.Fence) error {
	if q.dev.lost {
		return gpucore.ErrDeviceLost
	}
	cmds := make([]hal.CommandBuffer, 0, len(info.CommandBuffers))
	for _, cb := range info.CommandBuffers {
		c, ok := cb.(*commandBuffer)
		if !ok || c.finished == nil {
			return fmt.Errorf("%w: command buffer %q was not ended", gpucore.ErrInvalidArgs, labelOf(cb))
		}
		cmds = append(cmds, c.finished)
	}

	var raw hal.Fence
	var value uint64
	var hf *fence
	if f != nil {
		var ok bool
		hf, ok = f.(*fence)
		if !ok || hf.raw == nil {
			return fmt.Errorf("%w: invalid fence", gpucore.ErrInvalidArgs)
		}
		hf.next++
		raw, value = hf.raw, hf.next
	}
	if err := q.raw.Submit(cmds, raw, value); err != nil {
		return fmt.Errorf("%w: %w", gpucore.ErrSubmitFailed, err)
	}
	if hf != nil {
		hf.pending = value
		hf.signaled = false
	}
	return nil
}

// Present implements gpucore.Queue.
func (q *queue) Present(gpucore.Swapchain, uint32, []gpucore.Semaphore) error {
	return fmt.Errorf("%w: native backend has no swapchains", gpucore.ErrNotImplemented)
}

func labelOf(cb gpucore.CommandBuffer) string {
	if c, ok := cb.(*commandBuffer); ok {
		return c.label
	}
	return ""
}
