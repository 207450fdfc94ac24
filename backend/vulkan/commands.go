//go:build !nogpu

package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/gfxcore/gpucore"
)

var errNotRecording = errors.New("vulkan: command buffer is not recording")

// commandBuffer is a primary command buffer from the device pool. Misuse
// while recording is latched and reported by End.
type commandBuffer struct {
	id    uintptr
	dev   *Device
	raw   vk.CommandBuffer
	label string

	recording bool
	ended     bool
	err       error
	depth     int
}

func (c *commandBuffer) NativeHandle() uintptr { return c.id }

// CreateCommandBuffer implements gpucore.Device.
func (d *Device) CreateCommandBuffer(label string) (gpucore.CommandBuffer, error) {
	info := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	raw := make([]vk.CommandBuffer, 1)
	if err := d.check("allocate command buffer", vk.AllocateCommandBuffers(d.device, &info, raw)); err != nil {
		return nil, err
	}
	return &commandBuffer{id: d.newID(), dev: d, raw: raw[0], label: label}, nil
}

// FreeCommandBuffer implements gpucore.Device.
func (d *Device) FreeCommandBuffer(cb gpucore.CommandBuffer) {
	c, ok := cb.(*commandBuffer)
	if !ok || c.raw == nil {
		return
	}
	vk.FreeCommandBuffers(d.device, d.pool, 1, []vk.CommandBuffer{c.raw})
	c.raw = nil
}

// Begin implements gpucore.CommandBuffer.
func (c *commandBuffer) Begin(oneTimeSubmit bool) error {
	if c.raw == nil {
		return fmt.Errorf("%w: command buffer freed", gpucore.ErrInvalidArgs)
	}
	if c.recording || c.ended {
		return fmt.Errorf("%w: command buffer must be reset before Begin", gpucore.ErrInvalidArgs)
	}
	info := vk.CommandBufferBeginInfo{SType: vk.StructureTypeCommandBufferBeginInfo}
	if oneTimeSubmit {
		info.Flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if err := c.dev.check("begin command buffer", vk.BeginCommandBuffer(c.raw, &info)); err != nil {
		return err
	}
	c.recording = true
	c.err = nil
	c.depth = 0
	return nil
}

// End implements gpucore.CommandBuffer.
func (c *commandBuffer) End() error {
	if !c.recording {
		return errNotRecording
	}
	c.recording = false
	res := vk.EndCommandBuffer(c.raw)
	if c.err != nil {
		return c.err
	}
	if err := c.dev.check("end command buffer", res); err != nil {
		return err
	}
	c.ended = true
	return nil
}

// Reset implements gpucore.CommandBuffer.
func (c *commandBuffer) Reset() error {
	if c.raw == nil {
		return fmt.Errorf("%w: command buffer freed", gpucore.ErrInvalidArgs)
	}
	c.recording, c.ended, c.err, c.depth = false, false, nil, 0
	return c.dev.check("reset command buffer", vk.ResetCommandBuffer(c.raw, 0))
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
	if !c.check("copy buffer to buffer") || len(regions) == 0 {
		return
	}
	s, sok := src.(*buffer)
	d, dok := dst.(*buffer)
	if !sok || !dok {
		c.fail("copy buffer to buffer", gpucore.ErrInvalidArgs)
		return
	}
	copies := make([]vk.BufferCopy, len(regions))
	for i, r := range regions {
		copies[i] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		}
	}
	vk.CmdCopyBuffer(c.raw, s.raw, d.raw, uint32(len(copies)), copies)
}

// CopyBufferToTexture implements gpucore.CommandBuffer. The texture must be
// in the TransferDst layout.
func (c *commandBuffer) CopyBufferToTexture(src gpucore.Buffer, dst gpucore.Texture, regions []gpucore.BufferTextureCopy) {
	if !c.check("copy buffer to texture") || len(regions) == 0 {
		return
	}
	b, bok := src.(*buffer)
	t, tok := dst.(*texture)
	if !bok || !tok {
		c.fail("copy buffer to texture", gpucore.ErrInvalidArgs)
		return
	}
	copies := bufferImageCopies(t, regions)
	vk.CmdCopyBufferToImage(c.raw, b.raw, t.raw, vk.ImageLayoutTransferDstOptimal, uint32(len(copies)), copies)
}

// CopyTextureToBuffer implements gpucore.CommandBuffer. The texture must be
// in the TransferSrc layout.
func (c *commandBuffer) CopyTextureToBuffer(src gpucore.Texture, dst gpucore.Buffer, regions []gpucore.BufferTextureCopy) {
	if !c.check("copy texture to buffer") || len(regions) == 0 {
		return
	}
	t, tok := src.(*texture)
	b, bok := dst.(*buffer)
	if !bok || !tok {
		c.fail("copy texture to buffer", gpucore.ErrInvalidArgs)
		return
	}
	copies := bufferImageCopies(t, regions)
	vk.CmdCopyImageToBuffer(c.raw, t.raw, vk.ImageLayoutTransferSrcOptimal, b.raw, uint32(len(copies)), copies)
}

// bufferImageCopies converts regions. Vulkan takes the row pitch in texels.
func bufferImageCopies(t *texture, regions []gpucore.BufferTextureCopy) []vk.BufferImageCopy {
	bpp := max(t.desc.Format.BytesPerPixel(), 1)
	out := make([]vk.BufferImageCopy, len(regions))
	for i, r := range regions {
		out[i] = vk.BufferImageCopy{
			BufferOffset:      vk.DeviceSize(r.BufferOffset),
			BufferRowLength:   r.BytesPerRow / bpp,
			BufferImageHeight: 0,
			ImageSubresource:  subresource(t, r.MipLevel, r.ArrayLayer, r.Size),
			ImageOffset:       offset(r.Origin),
			ImageExtent:       imageExtent(t, r.Size),
		}
	}
	return out
}

// CopyTextureToTexture implements gpucore.CommandBuffer.
func (c *commandBuffer) CopyTextureToTexture(src, dst gpucore.Texture, regions []gpucore.TextureCopy) {
	if !c.check("copy texture to texture") || len(regions) == 0 {
		return
	}
	s, sok := src.(*texture)
	d, dok := dst.(*texture)
	if !sok || !dok {
		c.fail("copy texture to texture", gpucore.ErrInvalidArgs)
		return
	}
	copies := make([]vk.ImageCopy, len(regions))
	for i, r := range regions {
		copies[i] = vk.ImageCopy{
			SrcSubresource: subresource(s, r.SrcMipLevel, r.SrcArrayLayer, r.Size),
			SrcOffset:      offset(r.SrcOrigin),
			DstSubresource: subresource(d, r.DstMipLevel, r.DstArrayLayer, r.Size),
			DstOffset:      offset(r.DstOrigin),
			Extent:         imageExtent(s, r.Size),
		}
	}
	vk.CmdCopyImage(c.raw, s.raw, vk.ImageLayoutTransferSrcOptimal, d.raw, vk.ImageLayoutTransferDstOptimal,
		uint32(len(copies)), copies)
}

// subresource addresses layer and the following layers of a 2D array copy.
func subresource(t *texture, mip, layer uint32, size gpucore.Extent3D) vk.ImageSubresourceLayers {
	count := uint32(1)
	if t.desc.Dimension != gpucore.TextureDimension3D {
		count = max(size.DepthOrArrayLayers, 1)
	}
	return vk.ImageSubresourceLayers{
		AspectMask:     copyAspect(t.desc.Format),
		MipLevel:       mip,
		BaseArrayLayer: layer,
		LayerCount:     count,
	}
}

func offset(o gpucore.Origin3D) vk.Offset3D {
	return vk.Offset3D{X: int32(o.X), Y: int32(o.Y), Z: int32(o.Z)}
}

func imageExtent(t *texture, size gpucore.Extent3D) vk.Extent3D {
	depth := uint32(1)
	if t.desc.Dimension == gpucore.TextureDimension3D {
		depth = max(size.DepthOrArrayLayers, 1)
	}
	return vk.Extent3D{Width: size.Width, Height: size.Height, Depth: depth}
}

// TransitionTexture implements gpucore.CommandBuffer.
func (c *commandBuffer) TransitionTexture(tex gpucore.Texture, from, to gpucore.TextureLayout) {
	if !c.check("transition texture") {
		return
	}
	t, ok := tex.(*texture)
	if !ok {
		c.fail("transition texture", gpucore.ErrInvalidArgs)
		return
	}
	src := layoutInfo(from, t.desc.Format)
	dst := layoutInfo(to, t.desc.Format)
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       src.access,
		DstAccessMask:       dst.access,
		OldLayout:           src.layout,
		NewLayout:           dst.layout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               t.raw,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspectMask(t.desc.Format),
			BaseMipLevel:   0,
			LevelCount:     max(t.desc.MipLevelCount, 1),
			BaseArrayLayer: 0,
			LayerCount:     t.layers(),
		},
	}
	vk.CmdPipelineBarrier(c.raw, src.stage, dst.stage, 0,
		0, nil,
		0, nil,
		1, []vk.ImageMemoryBarrier{barrier})
}

// PushDebugGroup implements gpucore.CommandBuffer. Debug labels need
// VK_EXT_debug_utils, which is not enabled, so groups are only balanced.
func (c *commandBuffer) PushDebugGroup(label string) {
	if c.check("push debug group") {
		c.depth++
		c.dev.log.Debug("vulkan: debug group", "buffer", c.label, "group", label, "depth", c.depth)
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

// queue is the device's single graphics queue.
type queue struct {
	dev *Device
	raw vk.Queue
}

// Submit implements gpucore.Queue. Waits on semaphores block every stage.
func (q *queue) Submit(info gpucore.SubmitInfo, f gpucore.Fence) error {
	if q.dev.lost {
		return gpucore.ErrDeviceLost
	}
	cmds := make([]vk.CommandBuffer, 0, len(info.CommandBuffers))
	for _, cb := range info.CommandBuffers {
		c, ok := cb.(*commandBuffer)
		if !ok || !c.ended {
			return fmt.Errorf("%w: command buffer was not ended", gpucore.ErrInvalidArgs)
		}
		cmds = append(cmds, c.raw)
	}
	wait, err := semaphores(info.WaitSemaphores)
	if err != nil {
		return err
	}
	signal, err := semaphores(info.SignalSemaphores)
	if err != nil {
		return err
	}
	stages := make([]vk.PipelineStageFlags, len(wait))
	for i := range stages {
		stages[i] = vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
	}

	rawFence := vk.Fence(vk.NullHandle)
	if f != nil {
		vf, ok := f.(*fence)
		if !ok {
			return fmt.Errorf("%w: foreign fence", gpucore.ErrInvalidArgs)
		}
		rawFence = vf.raw
	}
	submit := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(wait)),
		PWaitSemaphores:      wait,
		PWaitDstStageMask:    stages,
		CommandBufferCount:   uint32(len(cmds)),
		PCommandBuffers:      cmds,
		SignalSemaphoreCount: uint32(len(signal)),
		PSignalSemaphores:    signal,
	}
	res := vk.QueueSubmit(q.raw, 1, []vk.SubmitInfo{submit}, rawFence)
	if err := q.dev.check("queue submit", res); err != nil {
		if errors.Is(err, gpucore.ErrDeviceLost) {
			return err
		}
		return fmt.Errorf("%w: %w", gpucore.ErrSubmitFailed, err)
	}
	return nil
}

// Present implements gpucore.Queue.
func (q *queue) Present(sc gpucore.Swapchain, imageIndex uint32, wait []gpucore.Semaphore) error {
	s, ok := sc.(*swapchain)
	if !ok {
		return fmt.Errorf("%w: foreign swapchain", gpucore.ErrInvalidArgs)
	}
	sems, err := semaphores(wait)
	if err != nil {
		return err
	}
	info := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(sems)),
		PWaitSemaphores:    sems,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.raw},
		PImageIndices:      []uint32{imageIndex},
	}
	return q.dev.check("queue present", vk.QueuePresent(q.raw, &info))
}
