// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/gfxcore/gpucore"
	"github.com/gogpu/gfxcore/internal/alloc"
	"github.com/gogpu/gfxcore/internal/frame"
)

// Buffer errors.
var (
	// ErrNotMapped is returned by Write and Unmap on an unmapped buffer.
	ErrNotMapped = errors.New("resource: buffer not mapped")

	// ErrAlreadyMapped is returned by Map on a mapped buffer.
	ErrAlreadyMapped = errors.New("resource: buffer already mapped")
)

// BufferDescriptor describes a buffer to create.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage Usage

	// Bind names how the buffer is bound. At least one of vertex, index,
	// uniform or storage is required.
	Bind gpucore.BufferUsage

	// InitialData, when set, is copied into the start of the buffer.
	InitialData []byte
}

// Buffer is a GPU buffer with its backing allocation.
type Buffer struct {
	env   *Env
	label string
	usage Usage
	bind  gpucore.BufferUsage
	size  uint64
	used  uint64

	buf gpucore.Buffer
	mem *alloc.Allocation

	mapped  bool
	mapMode MapMode
}

// NewBuffer creates a buffer. Initial data for device-local buffers is
// uploaded through a staging buffer before NewBuffer returns.
func NewBuffer(env *Env, desc BufferDescriptor) (*Buffer, error) {
	if err := env.check(); err != nil {
		return nil, err
	}
	if desc.Size == 0 {
		return nil, fmt.Errorf("%w: buffer %q has zero size", gpucore.ErrInvalidArgs, desc.Label)
	}
	if !desc.Bind.Intersects(gpucore.BufferUsageBindable) {
		return nil, fmt.Errorf("%w: buffer %q needs a vertex, index, uniform or storage binding", gpucore.ErrInvalidArgs, desc.Label)
	}
	if desc.Usage > UsageDynamic {
		return nil, fmt.Errorf("%w: unknown usage %s", gpucore.ErrInvalidArgs, desc.Usage)
	}
	if uint64(len(desc.InitialData)) > desc.Size {
		return nil, fmt.Errorf("%w: %d bytes of initial data for buffer %q of %d bytes",
			gpucore.ErrInvalidArgs, len(desc.InitialData), desc.Label, desc.Size)
	}

	b := &Buffer{env: env, label: desc.Label, usage: desc.Usage, bind: desc.Bind, size: desc.Size}
	buf, mem, err := b.createObjects(desc.Size)
	if err != nil {
		return nil, err
	}
	b.buf, b.mem = buf, mem

	if len(desc.InitialData) > 0 {
		if err := b.writeInitial(desc.InitialData); err != nil {
			env.Deferrer.DestroyDeferred(b.pending())
			return nil, err
		}
	}
	env.logger().Debug("resource: buffer created",
		slog.String("label", b.label),
		slog.Uint64("size", b.size),
		slog.String("usage", b.usage.String()))
	return b, nil
}

// newStaging creates a dynamic transfer buffer that is not owned by a table.
func newStaging(env *Env, size uint64, label string) (*Buffer, error) {
	b := &Buffer{env: env, label: label, usage: UsageDynamic, size: size}
	buf, mem, err := b.createObjects(size)
	if err != nil {
		return nil, err
	}
	b.buf, b.mem = buf, mem
	return b, nil
}

// createObjects creates an API buffer and binds fresh memory to it. Objects
// that were never submitted are destroyed immediately on failure.
func (b *Buffer) createObjects(size uint64) (gpucore.Buffer, *alloc.Allocation, error) {
	dev := b.env.Device
	usage := b.bind | gpucore.BufferUsageCopySrc | gpucore.BufferUsageCopyDst
	if b.usage == UsageDynamic {
		usage |= gpucore.BufferUsageMapWrite | gpucore.BufferUsageMapRead
	}
	buf, err := dev.CreateBuffer(&gpucore.BufferDescriptor{Label: b.label, Size: size, Usage: usage})
	if err != nil {
		return nil, nil, fmt.Errorf("create buffer %q: %w", b.label, err)
	}
	mem, err := b.env.Allocator.Allocate(alloc.Request{
		Requirements: dev.BufferMemoryRequirements(buf),
		HostVisible:  b.usage == UsageDynamic,
		Dedicated:    b.usage != UsageDynamic,
		Label:        b.label,
	})
	if err != nil {
		dev.DestroyBuffer(buf)
		return nil, nil, fmt.Errorf("allocate buffer %q: %w", b.label, err)
	}
	if err := dev.BindBufferMemory(buf, mem.Memory(), mem.Offset()); err != nil {
		dev.DestroyBuffer(buf)
		_ = b.env.Allocator.Free(mem)
		return nil, nil, fmt.Errorf("bind buffer %q: %w", b.label, err)
	}
	return buf, mem, nil
}

func (b *Buffer) writeInitial(data []byte) error {
	if b.HostVisible() {
		copy(b.mem.Mapped(), data)
		b.used = uint64(len(data))
		return b.mem.Flush(0, uint64(len(data)))
	}
	up, err := b.env.uploader()
	if err != nil {
		return err
	}
	staging, err := newStaging(b.env, uint64(len(data)), b.label+" staging")
	if err != nil {
		return err
	}
	defer b.env.Deferrer.DestroyDeferred(staging.pending())

	copy(staging.mem.Mapped(), data)
	if err := staging.mem.Flush(0, uint64(len(data))); err != nil {
		return err
	}
	return up.ExecuteCopyImmediate(func(cb gpucore.CommandBuffer) error {
		cb.CopyBufferToBuffer(staging.buf, b.buf, []gpucore.BufferCopy{{Size: uint64(len(data))}})
		return nil
	})
}

// NativeHandle implements gpucore.NativeObject.
func (b *Buffer) NativeHandle() uintptr { return b.buf.NativeHandle() }

// Kind implements Resource.
func (b *Buffer) Kind() Kind { return KindBuffer }

// Label implements Resource.
func (b *Buffer) Label() string { return b.label }

// Size returns the capacity in bytes.
func (b *Buffer) Size() uint64 { return b.size }

// UsedSize returns the bytes written since the last discard.
func (b *Buffer) UsedSize() uint64 { return b.used }

// Usage returns the buffer's update frequency.
func (b *Buffer) Usage() Usage { return b.usage }

// Bind returns the binding flags given at creation.
func (b *Buffer) Bind() gpucore.BufferUsage { return b.bind }

// Native returns the API buffer. It changes on Resize and on every
// write-discard Map.
func (b *Buffer) Native() gpucore.Buffer { return b.buf }

// Allocation returns the backing allocation. It changes on Resize and on
// every write-discard Map.
func (b *Buffer) Allocation() *alloc.Allocation { return b.mem }

// HostVisible reports whether the buffer can be mapped.
func (b *Buffer) HostVisible() bool { return b.mem.HostVisible() }

// IsMapped reports whether the buffer is mapped.
func (b *Buffer) IsMapped() bool { return b.mapped }

// Map makes the buffer's memory accessible to the CPU.
func (b *Buffer) Map(mode MapMode) error {
	if b.mapped {
		return fmt.Errorf("%w: %q", ErrAlreadyMapped, b.label)
	}
	if mode > MapWriteDiscard {
		return fmt.Errorf("%w: unknown map mode %s", gpucore.ErrInvalidArgs, mode)
	}
	if mode == MapWriteDiscard && b.usage != UsageDynamic {
		return fmt.Errorf("%w: write-discard map of %s buffer %q", gpucore.ErrInvalidArgs, b.usage, b.label)
	}
	if !b.HostVisible() {
		return fmt.Errorf("%w: buffer %q is not host visible", gpucore.ErrInvalidArgs, b.label)
	}
	if mode == MapRead {
		if err := b.mem.Invalidate(0, b.size); err != nil {
			return err
		}
	}
	if mode == MapWriteDiscard {
		if err := b.rename(); err != nil {
			return err
		}
	}
	b.mapped, b.mapMode = true, mode
	return nil
}

// Unmap ends CPU access and flushes written bytes to the device.
func (b *Buffer) Unmap() error {
	if !b.mapped {
		return fmt.Errorf("%w: %q", ErrNotMapped, b.label)
	}
	b.mapped = false
	if b.mapMode != MapRead && b.used > 0 {
		return b.mem.Flush(0, b.used)
	}
	return nil
}

// Bytes returns the mapped memory while the buffer is mapped, or nil. The
// slice must not be used after Unmap or Resize.
func (b *Buffer) Bytes() []byte {
	if !b.mapped {
		return nil
	}
	return b.mem.Mapped()
}

// Write appends data after the bytes already written since the last
// discard. It requires an active write mapping.
func (b *Buffer) Write(data []byte) error {
	if !b.mapped || b.mapMode == MapRead {
		return fmt.Errorf("%w: %q has no write mapping", ErrNotMapped, b.label)
	}
	n := uint64(len(data))
	if b.used+n > b.size {
		return fmt.Errorf("%w: write of %d bytes at %d exceeds buffer %q of %d bytes",
			gpucore.ErrInvalidArgs, n, b.used, b.label, b.size)
	}
	copy(b.mem.Mapped()[b.used:], data)
	b.used += n
	return nil
}

// Read copies the start of the buffer into dst and returns the number of
// bytes copied. Device-local buffers are read back through a staging buffer.
func (b *Buffer) Read(dst []byte) (int, error) {
	n := min(uint64(len(dst)), b.size)
	if n == 0 {
		return 0, nil
	}
	if b.HostVisible() {
		if err := b.mem.Invalidate(0, n); err != nil {
			return 0, err
		}
		return copy(dst, b.mem.Mapped()[:n]), nil
	}

	up, err := b.env.uploader()
	if err != nil {
		return 0, err
	}
	staging, err := newStaging(b.env, n, b.label+" readback")
	if err != nil {
		return 0, err
	}
	defer b.env.Deferrer.DestroyDeferred(staging.pending())

	err = up.ExecuteCopyImmediate(func(cb gpucore.CommandBuffer) error {
		cb.CopyBufferToBuffer(b.buf, staging.buf, []gpucore.BufferCopy{{Size: n}})
		return nil
	})
	if err != nil {
		return 0, err
	}
	if err := staging.mem.Invalidate(0, n); err != nil {
		return 0, err
	}
	return copy(dst, staging.mem.Mapped()[:n]), nil
}

// Resize replaces the buffer's object and memory with new ones of newSize
// bytes. The old pair is released through the deferred path, contents are
// not preserved, and a mapping is ended first.
func (b *Buffer) Resize(newSize uint64) error {
	if newSize == 0 {
		return fmt.Errorf("%w: resize of buffer %q to zero", gpucore.ErrInvalidArgs, b.label)
	}
	if b.mapped {
		if err := b.Unmap(); err != nil {
			return err
		}
	}
	buf, mem, err := b.createObjects(newSize)
	if err != nil {
		return err
	}
	b.env.Deferrer.DestroyDeferred(b.pending())
	b.buf, b.mem = buf, mem
	b.size, b.used = newSize, 0
	return nil
}

// rename swaps in a fresh object and allocation of the same size. Frames
// already submitted keep reading the old pair until it is released through
// the deferred path.
func (b *Buffer) rename() error {
	buf, mem, err := b.createObjects(b.size)
	if err != nil {
		return err
	}
	b.env.Deferrer.DestroyDeferred(b.pending())
	b.buf, b.mem = buf, mem
	b.used = 0
	return nil
}

func (b *Buffer) pending() frame.PendingDestruction {
	return frame.PendingDestruction{
		Kind:       frame.KindBuffer,
		Label:      b.label,
		Buffer:     b.buf,
		Allocation: b.mem,
	}
}
