// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package fakegpu provides a deterministic in-memory gpucore.Device for
// tests.
//
// Submitted work does not run until the test observes it: waiting on a fence
// executes every submission up to the one that signals it, and Step executes
// the oldest pending submission. Copies recorded into command buffers really
// move bytes between memory blocks, so upload and readback paths can be
// checked end to end.
//
// Destroying an object that a pending submission still references, or
// destroying an object twice, is recorded as a [Violation] instead of
// panicking, so a test can assert that none occurred.
package fakegpu

import (
	"fmt"
	"time"

	"github.com/gogpu/gfxcore/gpucore"
)

// Memory type indices exposed by the fake device.
const (
	MemoryTypeDeviceLocal uint32 = 0
	MemoryTypeHostVisible uint32 = 1
)

// Options configures a fake device.
type Options struct {
	// DeviceHeapSize limits total device-local allocations. Zero means 1 GiB.
	DeviceHeapSize uint64

	// HostHeapSize limits total host-visible allocations. Zero means 256 MiB.
	HostHeapSize uint64

	// PresentModes lists the supported present modes. Empty means Fifo only.
	PresentModes []gpucore.PresentMode
}

// Violation describes a misuse detected by the fake device.
type Violation struct {
	Op     string
	Object uintptr
	Detail string
}

// String implements fmt.Stringer.
func (v Violation) String() string {
	return fmt.Sprintf("%s(%#x): %s", v.Op, v.Object, v.Detail)
}

// Stats counts object lifecycle events.
type Stats struct {
	MemoryAllocated    int
	MemoryFreed        int
	BuffersCreated     int
	BuffersDestroyed   int
	TexturesCreated    int
	TexturesDestroyed  int
	ViewsCreated       int
	ViewsDestroyed     int
	SwapchainsCreated  int
	SwapchainsDestroy  int
	Submits            int
	Presents           int
	CompletedSerial    uint64
	PendingSubmissions int
}

// Device is a fake gpucore.Device. It is not safe for concurrent use.
type Device struct {
	opts Options

	nextID uintptr
	serial uint64

	heapUsed [2]uint64

	pending []*submission

	buffers    map[uintptr]*Buffer
	textures   map[uintptr]*Texture
	memories   map[uintptr]*Memory
	swapchains map[uintptr]*Swapchain

	violations []Violation
	stats      Stats

	// Failure injection.
	failNext    map[string]error
	hangFences  bool
	acquireDate int
	presentDate int
	suboptimal  int

	queue *Queue
	lost  bool
}

// New creates a fake device.
func New(opts Options) *Device {
	if opts.DeviceHeapSize == 0 {
		opts.DeviceHeapSize = 1 << 30
	}
	if opts.HostHeapSize == 0 {
		opts.HostHeapSize = 256 << 20
	}
	if len(opts.PresentModes) == 0 {
		opts.PresentModes = []gpucore.PresentMode{gpucore.PresentModeFifo}
	}
	d := &Device{
		opts:       opts,
		buffers:    make(map[uintptr]*Buffer),
		textures:   make(map[uintptr]*Texture),
		memories:   make(map[uintptr]*Memory),
		swapchains: make(map[uintptr]*Swapchain),
		failNext:   make(map[string]error),
	}
	d.queue = &Queue{dev: d}
	return d
}

var _ gpucore.Device = (*Device)(nil)

func (d *Device) newID() uintptr {
	d.nextID++
	return d.nextID
}

func (d *Device) violate(op string, obj uintptr, format string, args ...any) {
	d.violations = append(d.violations, Violation{Op: op, Object: obj, Detail: fmt.Sprintf(format, args...)})
}

func (d *Device) takeFailure(op string) error {
	if err, ok := d.failNext[op]; ok {
		delete(d.failNext, op)
		return err
	}
	return nil
}

// --- Test controls ---

// FailNext makes the next call of the named method return err. Supported
// names are the gpucore.Device and gpucore.Queue method names.
func (d *Device) FailNext(method string, err error) { d.failNext[method] = err }

// HangFences makes every wait on an unsignaled fence time out, as if the GPU
// stopped making progress.
func (d *Device) HangFences(hang bool) { d.hangFences = hang }

// OutOfDateAcquires makes the next n AcquireNextImage calls report
// ErrOutOfDate.
func (d *Device) OutOfDateAcquires(n int) { d.acquireDate = n }

// OutOfDatePresents makes the next n Present calls report ErrOutOfDate.
func (d *Device) OutOfDatePresents(n int) { d.presentDate = n }

// SuboptimalAcquires makes the next n AcquireNextImage calls report
// ErrSuboptimal with a valid image.
func (d *Device) SuboptimalAcquires(n int) { d.suboptimal = n }

// Step executes the oldest pending submission. It reports whether one ran.
func (d *Device) Step() bool {
	if len(d.pending) == 0 {
		return false
	}
	d.completeThrough(d.pending[0].serial)
	return true
}

// CompleteAll executes every pending submission.
func (d *Device) CompleteAll() {
	if n := len(d.pending); n > 0 {
		d.completeThrough(d.pending[n-1].serial)
	}
}

// Violations returns the misuse detected so far.
func (d *Device) Violations() []Violation { return d.violations }

// Stats returns lifecycle counters.
func (d *Device) Stats() Stats {
	s := d.stats
	s.PendingSubmissions = len(d.pending)
	return s
}

// BufferAlive reports whether the buffer with the given native handle exists
// and has not been destroyed.
func (d *Device) BufferAlive(handle uintptr) bool {
	b, ok := d.buffers[handle]
	return ok && !b.destroyed
}

// TextureAlive reports whether the texture with the given native handle
// exists and has not been destroyed.
func (d *Device) TextureAlive(handle uintptr) bool {
	t, ok := d.textures[handle]
	return ok && !t.destroyed
}

// MemoryAlive reports whether the memory block with the given native handle
// exists and has not been freed.
func (d *Device) MemoryAlive(handle uintptr) bool {
	m, ok := d.memories[handle]
	return ok && !m.freed
}

// LiveMemoryBlocks returns the number of allocated, unfreed memory blocks.
func (d *Device) LiveMemoryBlocks() int {
	n := 0
	for _, m := range d.memories {
		if !m.freed {
			n++
		}
	}
	return n
}

// --- gpucore.Device ---

// Info implements gpucore.Device.
func (d *Device) Info() gpucore.DeviceInfo {
	return gpucore.DeviceInfo{Name: "fake", Backend: "fake", Vendor: "gfxcore"}
}

// MemoryProperties implements gpucore.Device.
func (d *Device) MemoryProperties() gpucore.MemoryProperties {
	return gpucore.MemoryProperties{
		Types: []gpucore.MemoryType{
			{Properties: gpucore.MemoryPropertyDeviceLocal, HeapIndex: 0},
			{Properties: gpucore.MemoryPropertyHostVisible | gpucore.MemoryPropertyHostCoherent, HeapIndex: 1},
		},
		Heaps: []gpucore.MemoryHeap{
			{Size: d.opts.DeviceHeapSize, DeviceLocal: true},
			{Size: d.opts.HostHeapSize},
		},
	}
}

// AllocateMemory implements gpucore.Device.
func (d *Device) AllocateMemory(typeIndex uint32, size uint64) (gpucore.Memory, error) {
	if err := d.takeFailure("AllocateMemory"); err != nil {
		return nil, err
	}
	if typeIndex > MemoryTypeHostVisible || size == 0 {
		return nil, fmt.Errorf("%w: memory type %d size %d", gpucore.ErrInvalidArgs, typeIndex, size)
	}
	limit := d.opts.DeviceHeapSize
	if typeIndex == MemoryTypeHostVisible {
		limit = d.opts.HostHeapSize
	}
	if d.heapUsed[typeIndex]+size > limit {
		return nil, fmt.Errorf("%w: heap %d exhausted", gpucore.ErrOutOfMemory, typeIndex)
	}
	d.heapUsed[typeIndex] += size
	m := &Memory{id: d.newID(), typeIndex: typeIndex, data: make([]byte, size)}
	d.memories[m.id] = m
	d.stats.MemoryAllocated++
	return m, nil
}

// FreeMemory implements gpucore.Device.
func (d *Device) FreeMemory(mem gpucore.Memory) {
	m := mem.(*Memory)
	if m.freed {
		d.violate("FreeMemory", m.id, "double free")
		return
	}
	if d.referenced(m.id) {
		d.violate("FreeMemory", m.id, "memory still in use by pending submission")
	}
	m.freed = true
	m.mapped = false
	d.heapUsed[m.typeIndex] -= uint64(len(m.data))
	d.stats.MemoryFreed++
}

// MapMemory implements gpucore.Device.
func (d *Device) MapMemory(mem gpucore.Memory) ([]byte, error) {
	m := mem.(*Memory)
	if m.typeIndex != MemoryTypeHostVisible {
		return nil, fmt.Errorf("%w: memory type %d is not host visible", gpucore.ErrInvalidArgs, m.typeIndex)
	}
	if m.freed {
		d.violate("MapMemory", m.id, "map after free")
		return nil, fmt.Errorf("%w: memory freed", gpucore.ErrInvalidArgs)
	}
	m.mapped = true
	return m.data, nil
}

// UnmapMemory implements gpucore.Device.
func (d *Device) UnmapMemory(mem gpucore.Memory) {
	mem.(*Memory).mapped = false
}

// FlushMemory implements gpucore.Device.
func (d *Device) FlushMemory(mem gpucore.Memory, offset, size uint64) error {
	return d.checkRange("FlushMemory", mem.(*Memory), offset, size)
}

// InvalidateMemory implements gpucore.Device.
func (d *Device) InvalidateMemory(mem gpucore.Memory, offset, size uint64) error {
	return d.checkRange("InvalidateMemory", mem.(*Memory), offset, size)
}

func (d *Device) checkRange(op string, m *Memory, offset, size uint64) error {
	if offset+size > uint64(len(m.data)) {
		d.violate(op, m.id, "range [%d,%d) exceeds block size %d", offset, offset+size, len(m.data))
		return fmt.Errorf("%w: range out of bounds", gpucore.ErrInvalidArgs)
	}
	return nil
}

// CreateBuffer implements gpucore.Device.
func (d *Device) CreateBuffer(desc *gpucore.BufferDescriptor) (gpucore.Buffer, error) {
	if err := d.takeFailure("CreateBuffer"); err != nil {
		return nil, err
	}
	if desc == nil || desc.Size == 0 {
		return nil, fmt.Errorf("%w: buffer size is zero", gpucore.ErrInvalidArgs)
	}
	b := &Buffer{id: d.newID(), desc: *desc}
	d.buffers[b.id] = b
	d.stats.BuffersCreated++
	return b, nil
}

// DestroyBuffer implements gpucore.Device.
func (d *Device) DestroyBuffer(buf gpucore.Buffer) {
	b := buf.(*Buffer)
	if b.destroyed {
		d.violate("DestroyBuffer", b.id, "double destroy")
		return
	}
	if d.referenced(b.id) {
		d.violate("DestroyBuffer", b.id, "buffer still in use by pending submission")
	}
	b.destroyed = true
	d.stats.BuffersDestroyed++
}

// BufferMemoryRequirements implements gpucore.Device.
func (d *Device) BufferMemoryRequirements(buf gpucore.Buffer) gpucore.MemoryRequirements {
	b := buf.(*Buffer)
	return gpucore.MemoryRequirements{
		Size:      alignUp(b.desc.Size, 16),
		Alignment: 16,
		TypeBits:  1<<MemoryTypeDeviceLocal | 1<<MemoryTypeHostVisible,
	}
}

// BindBufferMemory implements gpucore.Device.
func (d *Device) BindBufferMemory(buf gpucore.Buffer, mem gpucore.Memory, offset uint64) error {
	b := buf.(*Buffer)
	m := mem.(*Memory)
	if b.mem != nil {
		return fmt.Errorf("%w: buffer already bound", gpucore.ErrInvalidArgs)
	}
	if offset%16 != 0 || offset+b.desc.Size > uint64(len(m.data)) {
		d.violate("BindBufferMemory", b.id, "bad binding offset %d in block of %d", offset, len(m.data))
		return fmt.Errorf("%w: bad binding", gpucore.ErrInvalidArgs)
	}
	b.mem, b.offset = m, offset
	return nil
}

// CreateTexture implements gpucore.Device.
func (d *Device) CreateTexture(desc *gpucore.TextureDescriptor) (gpucore.Texture, error) {
	if err := d.takeFailure("CreateTexture"); err != nil {
		return nil, err
	}
	if desc == nil || desc.Size.Width == 0 || desc.Size.Height == 0 || desc.Size.DepthOrArrayLayers == 0 ||
		desc.MipLevelCount == 0 || desc.Format.BytesPerPixel() == 0 {
		return nil, fmt.Errorf("%w: bad texture descriptor", gpucore.ErrInvalidArgs)
	}
	t := newTexture(d.newID(), *desc)
	d.textures[t.id] = t
	d.stats.TexturesCreated++
	return t, nil
}

// DestroyTexture implements gpucore.Device.
func (d *Device) DestroyTexture(tex gpucore.Texture) {
	t := tex.(*Texture)
	if t.destroyed {
		d.violate("DestroyTexture", t.id, "double destroy")
		return
	}
	if t.owner != nil {
		d.violate("DestroyTexture", t.id, "swapchain image destroyed directly")
	}
	if d.referenced(t.id) {
		d.violate("DestroyTexture", t.id, "texture still in use by pending submission")
	}
	t.destroyed = true
	d.stats.TexturesDestroyed++
}

// TextureMemoryRequirements implements gpucore.Device.
func (d *Device) TextureMemoryRequirements(tex gpucore.Texture) gpucore.MemoryRequirements {
	t := tex.(*Texture)
	return gpucore.MemoryRequirements{
		Size:      alignUp(t.byteSize(), 256),
		Alignment: 256,
		TypeBits:  1 << MemoryTypeDeviceLocal,
	}
}

// BindTextureMemory implements gpucore.Device.
func (d *Device) BindTextureMemory(tex gpucore.Texture, mem gpucore.Memory, offset uint64) error {
	t := tex.(*Texture)
	m := mem.(*Memory)
	if t.mem != nil || t.owner != nil {
		return fmt.Errorf("%w: texture already bound", gpucore.ErrInvalidArgs)
	}
	if offset%256 != 0 || offset+t.byteSize() > uint64(len(m.data)) {
		d.violate("BindTextureMemory", t.id, "bad binding offset %d in block of %d", offset, len(m.data))
		return fmt.Errorf("%w: bad binding", gpucore.ErrInvalidArgs)
	}
	t.mem, t.offset = m, offset
	return nil
}

// CreateTextureView implements gpucore.Device.
func (d *Device) CreateTextureView(tex gpucore.Texture, desc *gpucore.TextureViewDescriptor) (gpucore.TextureView, error) {
	if err := d.takeFailure("CreateTextureView"); err != nil {
		return nil, err
	}
	t := tex.(*Texture)
	if t.destroyed {
		d.violate("CreateTextureView", t.id, "view of destroyed texture")
		return nil, fmt.Errorf("%w: texture destroyed", gpucore.ErrInvalidArgs)
	}
	v := &TextureView{id: d.newID(), tex: t}
	if desc != nil {
		v.label = desc.Label
	}
	d.stats.ViewsCreated++
	return v, nil
}

// DestroyTextureView implements gpucore.Device.
func (d *Device) DestroyTextureView(view gpucore.TextureView) {
	v := view.(*TextureView)
	if v.destroyed {
		d.violate("DestroyTextureView", v.id, "double destroy")
		return
	}
	if d.referenced(v.id) {
		d.violate("DestroyTextureView", v.id, "view still in use by pending submission")
	}
	v.destroyed = true
	d.stats.ViewsDestroyed++
}

// CreateCommandBuffer implements gpucore.Device.
func (d *Device) CreateCommandBuffer(label string) (gpucore.CommandBuffer, error) {
	if err := d.takeFailure("CreateCommandBuffer"); err != nil {
		return nil, err
	}
	return &CommandBuffer{id: d.newID(), dev: d, label: label}, nil
}

// FreeCommandBuffer implements gpucore.Device.
func (d *Device) FreeCommandBuffer(cb gpucore.CommandBuffer) {
	c := cb.(*CommandBuffer)
	if c.state == cmdPending {
		d.violate("FreeCommandBuffer", c.id, "command buffer still pending")
	}
	c.state = cmdFreed
}

// CreateFence implements gpucore.Device.
func (d *Device) CreateFence(signaled bool) (gpucore.Fence, error) {
	if err := d.takeFailure("CreateFence"); err != nil {
		return nil, err
	}
	return &Fence{id: d.newID(), signaled: signaled}, nil
}

// DestroyFence implements gpucore.Device.
func (d *Device) DestroyFence(f gpucore.Fence) {
	fe := f.(*Fence)
	if fe.pending != 0 {
		d.violate("DestroyFence", fe.id, "fence still pending")
	}
	fe.destroyed = true
}

// WaitFence implements gpucore.Device.
func (d *Device) WaitFence(f gpucore.Fence, timeout time.Duration) error {
	fe := f.(*Fence)
	if d.lost {
		return gpucore.ErrDeviceLost
	}
	if fe.signaled {
		return nil
	}
	if d.hangFences || fe.pending == 0 {
		return fmt.Errorf("%w: fence %#x after %v", gpucore.ErrTimeout, fe.id, timeout)
	}
	d.completeThrough(fe.pending)
	return nil
}

// ResetFence implements gpucore.Device.
func (d *Device) ResetFence(f gpucore.Fence) error {
	fe := f.(*Fence)
	if fe.pending != 0 {
		d.violate("ResetFence", fe.id, "reset of pending fence")
		return fmt.Errorf("%w: fence pending", gpucore.ErrInvalidArgs)
	}
	fe.signaled = false
	fe.resets++
	return nil
}

// CreateSemaphore implements gpucore.Device.
func (d *Device) CreateSemaphore() (gpucore.Semaphore, error) {
	if err := d.takeFailure("CreateSemaphore"); err != nil {
		return nil, err
	}
	return &Semaphore{id: d.newID()}, nil
}

// DestroySemaphore implements gpucore.Device.
func (d *Device) DestroySemaphore(s gpucore.Semaphore) {
	s.(*Semaphore).destroyed = true
}

// PresentModes implements gpucore.Device.
func (d *Device) PresentModes(gpucore.Surface) []gpucore.PresentMode {
	return d.opts.PresentModes
}

// CreateSwapchain implements gpucore.Device.
func (d *Device) CreateSwapchain(desc *gpucore.SwapchainDescriptor) (gpucore.Swapchain, error) {
	if err := d.takeFailure("CreateSwapchain"); err != nil {
		return nil, err
	}
	if desc == nil || desc.Surface == nil || desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("%w: bad swapchain descriptor", gpucore.ErrInvalidArgs)
	}
	count := desc.MinImageCount
	if count < 2 {
		count = 2
	}
	sc := &Swapchain{
		id:      d.newID(),
		dev:     d,
		surface: desc.Surface,
		format:  desc.Format,
		mode:    desc.PresentMode,
		extent:  gpucore.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
	}
	for i := uint32(0); i < count; i++ {
		img := newTexture(d.newID(), gpucore.TextureDescriptor{
			Label:         fmt.Sprintf("swapchain[%d]", i),
			Size:          sc.extent,
			MipLevelCount: 1,
			SampleCount:   1,
			Format:        desc.Format,
			Usage:         gpucore.TextureUsageRenderAttachment | gpucore.TextureUsageCopyDst,
		})
		img.owner = sc
		img.own = make([]byte, img.byteSize())
		d.textures[img.id] = img
		sc.images = append(sc.images, img)
	}
	d.swapchains[sc.id] = sc
	d.stats.SwapchainsCreated++
	return sc, nil
}

// DestroySwapchain implements gpucore.Device.
func (d *Device) DestroySwapchain(swapchain gpucore.Swapchain) {
	sc := swapchain.(*Swapchain)
	if sc.destroyed {
		d.violate("DestroySwapchain", sc.id, "double destroy")
		return
	}
	if d.referenced(sc.id) {
		d.violate("DestroySwapchain", sc.id, "swapchain still in use by pending submission")
	}
	for _, img := range sc.images {
		if d.referenced(img.id) {
			d.violate("DestroySwapchain", img.id, "swapchain image still in use by pending submission")
		}
		img.destroyed = true
	}
	sc.destroyed = true
	d.stats.SwapchainsDestroy++
}

// Queue implements gpucore.Device.
func (d *Device) Queue() gpucore.Queue { return d.queue }

// WaitIdle implements gpucore.Device.
func (d *Device) WaitIdle() error {
	if err := d.takeFailure("WaitIdle"); err != nil {
		return err
	}
	if d.lost {
		return gpucore.ErrDeviceLost
	}
	d.CompleteAll()
	return nil
}

// Destroy implements gpucore.Device.
func (d *Device) Destroy() {
	for _, b := range d.buffers {
		if !b.destroyed {
			d.violate("Destroy", b.id, "buffer %q leaked", b.desc.Label)
		}
	}
	for _, t := range d.textures {
		if !t.destroyed && t.owner == nil {
			d.violate("Destroy", t.id, "texture %q leaked", t.desc.Label)
		}
	}
	for _, m := range d.memories {
		if !m.freed {
			d.violate("Destroy", m.id, "memory block leaked")
		}
	}
	d.lost = true
}

// LoseDevice makes every later wait report ErrDeviceLost.
func (d *Device) LoseDevice() { d.lost = true }

// --- submission tracking ---

type submission struct {
	serial uint64
	cbs    []*CommandBuffer
	fence  *Fence
	refs   map[uintptr]struct{}
}

func (d *Device) referenced(id uintptr) bool {
	for _, s := range d.pending {
		if _, ok := s.refs[id]; ok {
			return true
		}
	}
	return false
}

// completeThrough executes pending submissions in queue order up to and
// including serial.
func (d *Device) completeThrough(serial uint64) {
	for len(d.pending) > 0 && d.pending[0].serial <= serial {
		s := d.pending[0]
		d.pending = d.pending[1:]
		for _, cb := range s.cbs {
			for _, op := range cb.ops {
				op()
			}
			cb.state = cmdExecutable
		}
		if s.fence != nil {
			s.fence.signaled = true
			s.fence.pending = 0
		}
		d.stats.CompletedSerial = s.serial
	}
}

// Queue is the fake device queue.
type Queue struct {
	dev *Device
}

// Submit implements gpucore.Queue.
func (q *Queue) Submit(info gpucore.SubmitInfo, fence gpucore.Fence) error {
	d := q.dev
	if err := d.takeFailure("Submit"); err != nil {
		return err
	}
	if d.lost {
		return gpucore.ErrDeviceLost
	}
	d.serial++
	s := &submission{serial: d.serial, refs: make(map[uintptr]struct{})}
	for _, c := range info.CommandBuffers {
		cb := c.(*CommandBuffer)
		if cb.state != cmdExecutable {
			return fmt.Errorf("%w: command buffer %q is %s", gpucore.ErrSubmitFailed, cb.label, cb.state)
		}
		cb.state = cmdPending
		s.cbs = append(s.cbs, cb)
		for id := range cb.refs {
			s.refs[id] = struct{}{}
		}
	}
	for _, w := range info.WaitSemaphores {
		w.(*Semaphore).signaled = false
	}
	for _, sig := range info.SignalSemaphores {
		sig.(*Semaphore).signaled = true
	}
	if fence != nil {
		fe := fence.(*Fence)
		if fe.signaled || fe.pending != 0 {
			return fmt.Errorf("%w: fence %#x not reset", gpucore.ErrSubmitFailed, fe.id)
		}
		fe.pending = s.serial
		s.fence = fe
	}
	d.pending = append(d.pending, s)
	d.stats.Submits++
	return nil
}

// Present implements gpucore.Queue.
func (q *Queue) Present(swapchain gpucore.Swapchain, imageIndex uint32, wait []gpucore.Semaphore) error {
	d := q.dev
	if err := d.takeFailure("Present"); err != nil {
		return err
	}
	sc := swapchain.(*Swapchain)
	if sc.destroyed {
		d.violate("Present", sc.id, "present on destroyed swapchain")
		return fmt.Errorf("%w: swapchain destroyed", gpucore.ErrInvalidArgs)
	}
	if int(imageIndex) >= len(sc.images) {
		return fmt.Errorf("%w: image index %d", gpucore.ErrInvalidArgs, imageIndex)
	}
	for _, w := range wait {
		w.(*Semaphore).signaled = false
	}
	d.stats.Presents++
	sc.presented++
	if d.presentDate > 0 {
		d.presentDate--
		return gpucore.ErrOutOfDate
	}
	return nil
}

func alignUp(v, a uint64) uint64 {
	return (v + a - 1) &^ (a - 1)
}
