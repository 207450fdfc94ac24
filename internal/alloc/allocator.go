// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package alloc suballocates device memory for buffers and textures.
//
// Memory is reserved from the device in large blocks, one list of blocks per
// memory type, and carved with a first-fit free list that coalesces on
// release. Requests larger than half a block get a dedicated device
// allocation. Host-visible blocks are mapped once at creation and stay mapped
// until the block is released.
//
// The allocator is owned by the render thread and is not safe for
// concurrent use.
package alloc

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"

	"github.com/gogpu/gfxcore/gpucore"
)

// DefaultBlockSize is the block size used when Config.BlockSize is zero.
const DefaultBlockSize = 64 << 20

// Config configures an Allocator.
type Config struct {
	// BlockSize is the size of each shared memory block.
	// Defaults to DefaultBlockSize if zero.
	BlockSize uint64

	// Budget caps the total device memory reserved by the allocator.
	// Zero means unlimited.
	Budget uint64

	// Logger receives block lifecycle events. Nil disables logging.
	Logger *slog.Logger
}

// Request describes memory to allocate.
type Request struct {
	Requirements gpucore.MemoryRequirements

	// HostVisible requests persistently mapped memory that the CPU can write
	// sequentially. Otherwise device-local memory is preferred.
	HostVisible bool

	// Dedicated forces a dedicated device allocation.
	Dedicated bool

	Label string
}

// Stats summarizes allocator usage.
type Stats struct {
	// Blocks is the number of shared blocks.
	Blocks int

	// DedicatedAllocations is the number of live dedicated allocations.
	DedicatedAllocations int

	// Allocations is the number of live allocations, dedicated included.
	Allocations int

	// ReservedBytes is the device memory held by the allocator.
	ReservedBytes uint64

	// UsedBytes is the memory occupied by live allocations, padding included.
	UsedBytes uint64

	// BudgetBytes is the configured budget, or zero.
	BudgetBytes uint64
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("Alloc[%d allocations, %d blocks, %d dedicated, %d/%d KB]",
		s.Allocations, s.Blocks, s.DedicatedAllocations, s.UsedBytes/1024, s.ReservedBytes/1024)
}

// Allocator suballocates device memory.
type Allocator struct {
	dev   gpucore.Device
	props gpucore.MemoryProperties
	cfg   Config
	log   *slog.Logger

	blocks    [][]*block // per memory type
	dedicated map[*block]struct{}
	live      map[uint64]*Allocation

	reserved uint64
	nextID   uint64
	nextBlk  int
}

// New creates an allocator for dev.
func New(dev gpucore.Device, cfg Config) (*Allocator, error) {
	if dev == nil {
		return nil, errors.Wrap(gpucore.ErrInvalidArgs, "alloc: nil device")
	}
	if cfg.BlockSize == 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	props := dev.MemoryProperties()
	if len(props.Types) == 0 {
		return nil, errors.Wrap(gpucore.ErrInvalidArgs, "alloc: device exposes no memory types")
	}
	return &Allocator{
		dev:       dev,
		props:     props,
		cfg:       cfg,
		log:       log,
		blocks:    make([][]*block, len(props.Types)),
		dedicated: make(map[*block]struct{}),
		live:      make(map[uint64]*Allocation),
	}, nil
}

// FindMemoryType returns the best memory type allowed by typeBits that has
// every required property, preferring types that also have preferred.
func (a *Allocator) FindMemoryType(typeBits uint32, required, preferred gpucore.MemoryProperty) (uint32, error) {
	best, found := uint32(0), false
	for i, t := range a.props.Types {
		if typeBits&(1<<uint(i)) == 0 || !t.Properties.Contains(required) {
			continue
		}
		if t.Properties.Contains(preferred) {
			return uint32(i), nil
		}
		if !found {
			best, found = uint32(i), true
		}
	}
	if !found {
		return 0, errors.Wrapf(gpucore.ErrOutOfMemory,
			"alloc: no memory type in bits %#b with properties %#x", typeBits, uint32(required))
	}
	return best, nil
}

func (a *Allocator) coherent(typeIndex uint32) bool {
	return a.props.Types[typeIndex].Properties.Contains(gpucore.MemoryPropertyHostCoherent)
}

func (a *Allocator) hostVisible(typeIndex uint32) bool {
	return a.props.Types[typeIndex].Properties.Contains(gpucore.MemoryPropertyHostVisible)
}

// Allocate reserves memory satisfying req.
func (a *Allocator) Allocate(req Request) (*Allocation, error) {
	r := req.Requirements
	if r.Size == 0 {
		return nil, errors.Wrap(gpucore.ErrInvalidArgs, "alloc: zero-sized request")
	}
	if r.Alignment == 0 {
		r.Alignment = 1
	}
	if r.Alignment&(r.Alignment-1) != 0 {
		return nil, errors.Wrapf(gpucore.ErrInvalidArgs, "alloc: alignment %d is not a power of two", r.Alignment)
	}

	var typeIndex uint32
	var err error
	if req.HostVisible {
		typeIndex, err = a.FindMemoryType(r.TypeBits, gpucore.MemoryPropertyHostVisible, gpucore.MemoryPropertyHostCoherent)
	} else {
		typeIndex, err = a.FindMemoryType(r.TypeBits, 0, gpucore.MemoryPropertyDeviceLocal)
	}
	if err != nil {
		return nil, err
	}

	if req.Dedicated || r.Size > a.cfg.BlockSize/2 {
		return a.allocateDedicated(typeIndex, r, req.Label)
	}

	for _, b := range a.blocks[typeIndex] {
		if b.largestFree() < r.Size {
			continue
		}
		if off, start, span, ok := b.carve(r.Size, r.Alignment); ok {
			return a.track(b, off, start, span, r.Size, req.Label), nil
		}
	}

	b, err := a.createBlock(typeIndex, a.cfg.BlockSize, false)
	if err != nil {
		return nil, err
	}
	off, start, span, ok := b.carve(r.Size, r.Alignment)
	if !ok {
		return nil, errors.AssertionFailedf("alloc: fresh block of %d bytes cannot hold %d", b.size, r.Size)
	}
	return a.track(b, off, start, span, r.Size, req.Label), nil
}

func (a *Allocator) allocateDedicated(typeIndex uint32, r gpucore.MemoryRequirements, label string) (*Allocation, error) {
	b, err := a.createBlock(typeIndex, r.Size, true)
	if err != nil {
		return nil, err
	}
	b.used, b.allocs, b.free = r.Size, 1, nil
	return a.track(b, 0, 0, r.Size, r.Size, label), nil
}

func (a *Allocator) createBlock(typeIndex uint32, size uint64, dedicated bool) (*block, error) {
	if a.cfg.Budget > 0 && a.reserved+size > a.cfg.Budget {
		return nil, errors.Wrapf(gpucore.ErrOutOfMemory,
			"alloc: budget of %d bytes exceeded (reserved %d, requested %d)", a.cfg.Budget, a.reserved, size)
	}
	mem, err := a.dev.AllocateMemory(typeIndex, size)
	if err != nil {
		return nil, errors.Wrapf(err, "alloc: allocate %d bytes from memory type %d", size, typeIndex)
	}
	a.nextBlk++
	b := newBlock(a.nextBlk, typeIndex, mem, size)
	b.dedicated = dedicated
	if a.hostVisible(typeIndex) {
		data, err := a.dev.MapMemory(mem)
		if err != nil {
			a.dev.FreeMemory(mem)
			return nil, errors.Wrapf(err, "alloc: map block of memory type %d", typeIndex)
		}
		b.mapped = data
	}
	a.reserved += size
	if dedicated {
		a.dedicated[b] = struct{}{}
	} else {
		a.blocks[typeIndex] = append(a.blocks[typeIndex], b)
	}
	a.log.Debug("alloc: block created",
		slog.Int("block", b.id),
		slog.Uint64("type", uint64(typeIndex)),
		slog.Uint64("size", size),
		slog.Bool("dedicated", dedicated))
	return b, nil
}

func (a *Allocator) releaseBlock(b *block) {
	if b.mapped != nil {
		a.dev.UnmapMemory(b.mem)
		b.mapped = nil
	}
	a.dev.FreeMemory(b.mem)
	a.reserved -= b.size
	a.log.Debug("alloc: block released", slog.Int("block", b.id), slog.Uint64("size", b.size))
}

func (a *Allocator) track(b *block, off, start, span, size uint64, label string) *Allocation {
	a.nextID++
	al := &Allocation{
		id:        a.nextID,
		label:     label,
		owner:     a,
		block:     b,
		offset:    off,
		size:      size,
		spanStart: start,
		spanSize:  span,
	}
	a.live[al.id] = al
	return al
}

// Free returns an allocation to its block. Freeing an allocation twice is an
// error and has no effect.
func (a *Allocator) Free(al *Allocation) error {
	if al == nil {
		return errors.Wrap(gpucore.ErrInvalidArgs, "alloc: free of nil allocation")
	}
	if al.owner != a {
		return errors.Wrapf(gpucore.ErrInvalidArgs, "alloc: allocation %q belongs to another allocator", al.label)
	}
	if al.freed {
		return errors.Wrapf(gpucore.ErrInvalidArgs, "alloc: double free of allocation %q", al.label)
	}
	al.freed = true
	delete(a.live, al.id)

	b := al.block
	if b.dedicated {
		delete(a.dedicated, b)
		a.releaseBlock(b)
		return nil
	}
	b.release(al.spanStart, al.spanSize)
	if b.empty() {
		a.dropEmptyBlock(b)
	}
	return nil
}

// dropEmptyBlock releases b unless it is the last block of its type, which is
// kept to absorb allocate/free churn.
func (a *Allocator) dropEmptyBlock(b *block) {
	list := a.blocks[b.typeIndex]
	if len(list) <= 1 {
		return
	}
	for i, x := range list {
		if x == b {
			a.blocks[b.typeIndex] = append(list[:i], list[i+1:]...)
			break
		}
	}
	a.releaseBlock(b)
}

// Stats returns current usage.
func (a *Allocator) Stats() Stats {
	s := Stats{
		DedicatedAllocations: len(a.dedicated),
		Allocations:          len(a.live),
		ReservedBytes:        a.reserved,
		BudgetBytes:          a.cfg.Budget,
	}
	for _, list := range a.blocks {
		s.Blocks += len(list)
		for _, b := range list {
			s.UsedBytes += b.used
		}
	}
	for b := range a.dedicated {
		s.UsedBytes += b.used
	}
	return s
}

// BuildStatsString returns a JSON document describing allocator usage. With
// detailed set, every block and its suballocations are listed.
func (a *Allocator) BuildStatsString(detailed bool) string {
	s := a.Stats()
	w := jwriter.NewWriter()
	root := w.Object()

	total := root.Name("Total").Object()
	total.Name("Blocks").Int(s.Blocks)
	total.Name("DedicatedAllocations").Int(s.DedicatedAllocations)
	total.Name("Allocations").Int(s.Allocations)
	total.Name("ReservedBytes").Int(int(s.ReservedBytes))
	total.Name("UsedBytes").Int(int(s.UsedBytes))
	total.Name("BudgetBytes").Int(int(s.BudgetBytes))
	total.End()

	if detailed {
		byBlock := make(map[*block][]*Allocation)
		for _, al := range a.live {
			byBlock[al.block] = append(byBlock[al.block], al)
		}

		types := root.Name("MemoryTypes").Object()
		for i, list := range a.blocks {
			if len(list) == 0 {
				continue
			}
			typeObj := types.Name(strconv.Itoa(i)).Object()
			for _, b := range list {
				a.printBlock(&typeObj, b, byBlock[b])
			}
			typeObj.End()
		}
		types.End()

		ded := root.Name("DedicatedAllocations").Array()
		for b := range a.dedicated {
			for _, al := range byBlock[b] {
				obj := ded.Object()
				obj.Name("MemoryType").Int(int(b.typeIndex))
				al.printParameters(&obj)
				obj.End()
			}
		}
		ded.End()
	}

	root.End()
	return string(w.Bytes())
}

func (a *Allocator) printBlock(json *jwriter.ObjectState, b *block, allocs []*Allocation) {
	blockObj := json.Name(strconv.Itoa(b.id)).Object()
	defer blockObj.End()

	blockObj.Name("Size").Int(int(b.size))
	blockObj.Name("UsedBytes").Int(int(b.used))
	blockObj.Name("FreeRanges").Int(len(b.free))
	blockObj.Name("Mapped").Bool(b.mapped != nil)

	sort.Slice(allocs, func(i, j int) bool { return allocs[i].offset < allocs[j].offset })
	arr := blockObj.Name("Suballocations").Array()
	for _, al := range allocs {
		obj := arr.Object()
		al.printParameters(&obj)
		obj.End()
	}
	arr.End()
}

// Close releases every block. Live allocations become invalid.
func (a *Allocator) Close() {
	for i, list := range a.blocks {
		for _, b := range list {
			a.releaseBlock(b)
		}
		a.blocks[i] = nil
	}
	for b := range a.dedicated {
		a.releaseBlock(b)
	}
	clear(a.dedicated)
	for _, al := range a.live {
		al.freed = true
	}
	clear(a.live)
}
