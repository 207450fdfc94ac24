// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucore

import "time"

// NativeObject is implemented by every device object. NativeHandle returns
// the backend's raw handle (VkBuffer, hal pointer, ...) as a uintptr.
type NativeObject interface {
	NativeHandle() uintptr
}

// Memory is a block of device memory returned by [Device.AllocateMemory].
type Memory interface {
	NativeObject

	// Size returns the size of the block in bytes.
	Size() uint64

	// TypeIndex returns the memory type the block was allocated from.
	TypeIndex() uint32
}

// Buffer is a linear device buffer. It has no memory until bound.
type Buffer interface {
	NativeObject
	Size() uint64
}

// Texture is a device image. It has no memory until bound, except for
// swapchain images which are owned by their swapchain.
type Texture interface {
	NativeObject
	Extent() Extent3D
	Format() TextureFormat
}

// TextureView is a view over a texture subresource range.
type TextureView interface {
	NativeObject
}

// Fence is a GPU to CPU synchronization primitive.
type Fence interface {
	NativeObject
}

// Semaphore is a GPU to GPU synchronization primitive.
type Semaphore interface {
	NativeObject
}

// Surface is the presentation target supplied by the windowing layer.
// Only its native handle and current pixel extent are consumed.
type Surface interface {
	NativeObject

	// Extent returns the current size of the drawable area in pixels.
	Extent() (width, height uint32)
}

// Swapchain is a set of presentable images created for a surface.
type Swapchain interface {
	NativeObject

	// Images returns the presentable images. The swapchain owns them.
	Images() []Texture

	Format() TextureFormat
	Extent() Extent3D
	PresentMode() PresentMode

	// AcquireNextImage returns the index of the next image to render into and
	// arranges for signal to be signaled once the image is ready. It returns
	// ErrOutOfDate when the swapchain must be rebuilt, ErrSuboptimal alongside
	// a valid index when it should be, and ErrTimeout when no image became
	// available in time.
	AcquireNextImage(signal Semaphore, timeout time.Duration) (uint32, error)
}

// CommandBuffer records GPU commands for later submission.
//
// Recording methods do not return errors; recording failures surface from
// End, matching how explicit APIs report them.
type CommandBuffer interface {
	NativeObject

	// Begin starts recording. oneTimeSubmit hints that the buffer is
	// submitted once and then reset.
	Begin(oneTimeSubmit bool) error

	// End finishes recording.
	End() error

	// Reset discards recorded commands so the buffer can be recorded again.
	Reset() error

	CopyBufferToBuffer(src, dst Buffer, regions []BufferCopy)
	CopyBufferToTexture(src Buffer, dst Texture, regions []BufferTextureCopy)
	CopyTextureToBuffer(src Texture, dst Buffer, regions []BufferTextureCopy)
	CopyTextureToTexture(src, dst Texture, regions []TextureCopy)

	// TransitionTexture records a layout transition for all subresources.
	TransitionTexture(tex Texture, from, to TextureLayout)

	// PushDebugGroup opens a labelled debug section. Backends without debug
	// markers ignore it.
	PushDebugGroup(label string)

	// PopDebugGroup closes the innermost debug section.
	PopDebugGroup()
}

// SubmitInfo describes one queue submission.
type SubmitInfo struct {
	CommandBuffers   []CommandBuffer
	WaitSemaphores   []Semaphore
	SignalSemaphores []Semaphore
}

// Queue executes submitted command buffers and presents swapchain images.
type Queue interface {
	// Submit queues work. fence, when non-nil, is signaled once the work
	// completes.
	Submit(info SubmitInfo, fence Fence) error

	// Present queues imageIndex for display once every wait semaphore is
	// signaled. It may return ErrOutOfDate or ErrSuboptimal.
	Present(sc Swapchain, imageIndex uint32, wait []Semaphore) error
}

// BufferDescriptor describes a buffer to create.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage BufferUsage
}

// TextureDescriptor describes a texture to create.
type TextureDescriptor struct {
	Label         string
	Size          Extent3D
	MipLevelCount uint32
	SampleCount   uint32
	Dimension     TextureDimension
	Format        TextureFormat
	Usage         TextureUsage
}

// TextureViewDescriptor describes a view. Zero counts select the remaining
// mip levels or array layers.
type TextureViewDescriptor struct {
	Label          string
	Dimension      TextureDimension
	BaseMipLevel   uint32
	MipLevelCount  uint32
	BaseArrayLayer uint32
	ArrayLayers    uint32
}

// SwapchainDescriptor describes a swapchain to create.
type SwapchainDescriptor struct {
	Surface     Surface
	Width       uint32
	Height      uint32
	Format      TextureFormat
	PresentMode PresentMode

	// MinImageCount is a lower bound on the number of images.
	MinImageCount uint32

	// Old is the swapchain being replaced, if any. The caller still owns it
	// and must destroy it.
	Old Swapchain
}

// DeviceInfo identifies an opened device.
type DeviceInfo struct {
	Name    string
	Backend string
	Vendor  string
}

// Device is an opened logical device with a single graphics queue.
//
// Device is not safe for concurrent use; all calls are issued from the
// render thread.
type Device interface {
	Info() DeviceInfo

	// MemoryProperties lists the memory types allocations may come from.
	MemoryProperties() MemoryProperties
	AllocateMemory(typeIndex uint32, size uint64) (Memory, error)
	FreeMemory(mem Memory)

	// MapMemory maps the whole block and returns a slice over it. The mapping
	// stays valid until UnmapMemory or FreeMemory.
	MapMemory(mem Memory) ([]byte, error)
	UnmapMemory(mem Memory)

	// FlushMemory makes host writes in the range visible to the device.
	FlushMemory(mem Memory, offset, size uint64) error

	// InvalidateMemory makes device writes in the range visible to the host.
	InvalidateMemory(mem Memory, offset, size uint64) error

	CreateBuffer(desc *BufferDescriptor) (Buffer, error)
	DestroyBuffer(buf Buffer)
	BufferMemoryRequirements(buf Buffer) MemoryRequirements
	BindBufferMemory(buf Buffer, mem Memory, offset uint64) error

	CreateTexture(desc *TextureDescriptor) (Texture, error)
	DestroyTexture(tex Texture)
	TextureMemoryRequirements(tex Texture) MemoryRequirements
	BindTextureMemory(tex Texture, mem Memory, offset uint64) error
	CreateTextureView(tex Texture, desc *TextureViewDescriptor) (TextureView, error)
	DestroyTextureView(view TextureView)

	CreateCommandBuffer(label string) (CommandBuffer, error)
	FreeCommandBuffer(cb CommandBuffer)

	// CreateFence creates a fence, optionally already signaled.
	CreateFence(signaled bool) (Fence, error)
	DestroyFence(f Fence)

	// WaitFence blocks until f is signaled or timeout expires. It returns
	// ErrTimeout on expiry and ErrDeviceLost if the device is gone.
	WaitFence(f Fence, timeout time.Duration) error

	// ResetFence returns f to the unsignaled state.
	ResetFence(f Fence) error

	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)

	// PresentModes lists the present modes supported for surface.
	PresentModes(surface Surface) []PresentMode
	CreateSwapchain(desc *SwapchainDescriptor) (Swapchain, error)
	DestroySwapchain(sc Swapchain)

	Queue() Queue

	// WaitIdle blocks until all submitted work has completed.
	WaitIdle() error

	// Destroy releases the device. Every object created from it must already
	// be destroyed.
	Destroy()
}
