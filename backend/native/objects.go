//go:build !nogpu

package native

import (
	"fmt"
	"time"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gfxcore/gpucore"
)

// memory is a block of emulated device memory. The HAL allocates memory
// per object, so blocks only track bindings. Host-visible blocks also keep a
// host copy; flushing pushes bound ranges to their buffers through the queue
// and invalidating reads them back.
type memory struct {
	id        uintptr
	size      uint64
	typeIndex uint32
	host      []byte
	bindings  []*buffer
}

func (m *memory) NativeHandle() uintptr { return m.id }
func (m *memory) Size() uint64          { return m.size }
func (m *memory) TypeIndex() uint32     { return m.typeIndex }

func (m *memory) unbind(b *buffer) {
	for i, other := range m.bindings {
		if other == b {
			m.bindings = append(m.bindings[:i], m.bindings[i+1:]...)
			return
		}
	}
}

type buffer struct {
	raw   hal.Buffer
	size  uint64
	usage gpucore.BufferUsage

	mem    *memory
	offset uint64
}

func (b *buffer) NativeHandle() uintptr { return b.raw.NativeHandle() }
func (b *buffer) Size() uint64          { return b.size }

// overlap returns the part of [off, off+size) of its memory block that b is
// bound to, relative to the block.
func (b *buffer) overlap(off, size uint64) (start, end uint64, ok bool) {
	start = max(off, b.offset)
	end = min(off+size, b.offset+b.size)
	return start, end, start < end
}

type texture struct {
	raw      hal.Texture
	desc     gpucore.TextureDescriptor
	byteSize uint64
	bound    bool
}

func (t *texture) NativeHandle() uintptr           { return t.raw.NativeHandle() }
func (t *texture) Extent() gpucore.Extent3D        { return t.desc.Size }
func (t *texture) Format() gpucore.TextureFormat   { return t.desc.Format }
func (t *texture) bytesPerRow(width uint32) uint32 { return width * t.desc.Format.BytesPerPixel() }

type textureView struct {
	raw hal.TextureView
}

func (v *textureView) NativeHandle() uintptr { return v.raw.NativeHandle() }

// fence adapts a HAL timeline fence to a binary fence. Each submission
// signals the next timeline value; waiting targets the last one submitted.
type fence struct {
	id       uintptr
	raw      hal.Fence
	next     uint64
	pending  uint64
	signaled bool
}

func (f *fence) NativeHandle() uintptr { return f.id }

// semaphore is a placeholder. The HAL queue executes submissions in order,
// so GPU to GPU waits need no object.
type semaphore struct {
	id uintptr
}

func (s *semaphore) NativeHandle() uintptr { return s.id }

// waitFence blocks on f through the HAL.
func (d *Device) waitFence(f *fence, timeout time.Duration) error {
	if f.signaled {
		return nil
	}
	if f.pending == 0 {
		return gpucore.ErrTimeout
	}
	ok, err := d.device.Wait(f.raw, f.pending, timeout)
	if err != nil {
		d.lost = true
		return fmt.Errorf("%w: %w", gpucore.ErrDeviceLost, err)
	}
	if !ok {
		return gpucore.ErrTimeout
	}
	f.signaled = true
	return nil
}
