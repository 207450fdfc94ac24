// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package alloc

import (
	"sort"

	"github.com/gogpu/gfxcore/gpucore"
)

// freeRange is a free span inside a block.
type freeRange struct {
	offset uint64
	size   uint64
}

// block is one device memory allocation carved into suballocations.
// Free ranges are kept sorted by offset and never adjacent.
type block struct {
	id        int
	typeIndex uint32
	mem       gpucore.Memory
	size      uint64
	mapped    []byte
	free      []freeRange
	used      uint64
	allocs    int
	dedicated bool
}

func newBlock(id int, typeIndex uint32, mem gpucore.Memory, size uint64) *block {
	return &block{
		id:        id,
		typeIndex: typeIndex,
		mem:       mem,
		size:      size,
		free:      []freeRange{{offset: 0, size: size}},
	}
}

// carve finds the first free range that fits size at alignment and removes
// the span it occupies. It returns the aligned offset and the span that must
// be returned on release, which includes alignment padding.
func (b *block) carve(size, alignment uint64) (offset, spanStart, spanSize uint64, ok bool) {
	for i, r := range b.free {
		aligned := alignUp(r.offset, alignment)
		end := aligned + size
		if end > r.offset+r.size {
			continue
		}
		spanStart, spanSize = r.offset, end-r.offset
		if rest := r.offset + r.size - end; rest > 0 {
			b.free[i] = freeRange{offset: end, size: rest}
		} else {
			b.free = append(b.free[:i], b.free[i+1:]...)
		}
		b.used += spanSize
		b.allocs++
		return aligned, spanStart, spanSize, true
	}
	return 0, 0, 0, false
}

// release returns a span to the free list and merges it with its neighbours.
func (b *block) release(start, size uint64) {
	i := sort.Search(len(b.free), func(i int) bool { return b.free[i].offset > start })
	b.free = append(b.free, freeRange{})
	copy(b.free[i+1:], b.free[i:])
	b.free[i] = freeRange{offset: start, size: size}

	if i+1 < len(b.free) && b.free[i].offset+b.free[i].size == b.free[i+1].offset {
		b.free[i].size += b.free[i+1].size
		b.free = append(b.free[:i+1], b.free[i+2:]...)
	}
	if i > 0 && b.free[i-1].offset+b.free[i-1].size == b.free[i].offset {
		b.free[i-1].size += b.free[i].size
		b.free = append(b.free[:i], b.free[i+1:]...)
	}
	b.used -= size
	b.allocs--
}

func (b *block) empty() bool { return b.allocs == 0 }

// largestFree returns the size of the largest free range.
func (b *block) largestFree() uint64 {
	var m uint64
	for _, r := range b.free {
		m = max(m, r.size)
	}
	return m
}

func alignUp(v, a uint64) uint64 {
	if a <= 1 {
		return v
	}
	return (v + a - 1) &^ (a - 1)
}
