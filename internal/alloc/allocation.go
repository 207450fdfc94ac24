// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package alloc

import (
	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"

	"github.com/gogpu/gfxcore/gpucore"
)

// Allocation is a range of device memory handed out by an [Allocator].
type Allocation struct {
	id        uint64
	label     string
	owner     *Allocator
	block     *block
	offset    uint64
	size      uint64
	spanStart uint64
	spanSize  uint64
	freed     bool
}

// Memory returns the device memory block the allocation lives in.
func (a *Allocation) Memory() gpucore.Memory { return a.block.mem }

// Offset returns the byte offset of the allocation inside Memory.
func (a *Allocation) Offset() uint64 { return a.offset }

// Size returns the requested size in bytes.
func (a *Allocation) Size() uint64 { return a.size }

// Label returns the debug label given at allocation time.
func (a *Allocation) Label() string { return a.label }

// TypeIndex returns the memory type the allocation came from.
func (a *Allocation) TypeIndex() uint32 { return a.block.typeIndex }

// Dedicated reports whether the allocation owns its memory block.
func (a *Allocation) Dedicated() bool { return a.block.dedicated }

// HostVisible reports whether the allocation is persistently mapped.
func (a *Allocation) HostVisible() bool { return a.block.mapped != nil }

// Freed reports whether Free was already called.
func (a *Allocation) Freed() bool { return a.freed }

// Mapped returns the persistently mapped bytes of the allocation, or nil for
// device-local memory.
func (a *Allocation) Mapped() []byte {
	if a.block.mapped == nil || a.freed {
		return nil
	}
	return a.block.mapped[a.offset : a.offset+a.size]
}

// Flush makes host writes in [offset, offset+size) visible to the device.
// It is a no-op for host-coherent memory.
func (a *Allocation) Flush(offset, size uint64) error {
	return a.flushOrInvalidate(offset, size, true)
}

// Invalidate makes device writes in [offset, offset+size) visible to the
// host. It is a no-op for host-coherent memory.
func (a *Allocation) Invalidate(offset, size uint64) error {
	return a.flushOrInvalidate(offset, size, false)
}

func (a *Allocation) flushOrInvalidate(offset, size uint64, flush bool) error {
	if a.freed {
		return errors.Wrapf(gpucore.ErrInvalidArgs, "allocation %q already freed", a.label)
	}
	if size == 0 || a.block.mapped == nil || a.owner.coherent(a.block.typeIndex) {
		return nil
	}
	if offset > a.size || offset+size > a.size {
		return errors.Wrapf(gpucore.ErrInvalidArgs,
			"range [%d,%d) exceeds allocation of %d bytes", offset, offset+size, a.size)
	}
	dev := a.owner.dev
	if flush {
		return dev.FlushMemory(a.block.mem, a.offset+offset, size)
	}
	return dev.InvalidateMemory(a.block.mem, a.offset+offset, size)
}

func (a *Allocation) printParameters(json *jwriter.ObjectState) {
	json.Name("Offset").Int(int(a.offset))
	json.Name("Size").Int(int(a.size))
	if a.label != "" {
		json.Name("Name").String(a.label)
	}
}
