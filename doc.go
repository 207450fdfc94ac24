// Package gfxcore manages GPU resource lifetimes and paces frame submission.
//
// # Overview
//
// The CPU records and submits frames ahead of the GPU. gfxcore bounds how
// far ahead it may run, and makes sure nothing a submitted frame references
// is freed before the GPU has finished that frame. It is the layer a
// renderer builds on: resource creation through stable handles, buffer
// mapping, texture uploads, per-frame command recording and presentation.
//
// # Quick Start
//
//	dev, err := backend.Default(backend.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ctx, err := gfxcore.NewContext(dev, surface)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ctx.Close()
//
//	vb, _ := ctx.CreateBuffer(gfxcore.BufferDescriptor{
//	    Size:  64 << 10,
//	    Usage: gfxcore.UsageDynamic,
//	    Bind:  gpucore.BufferUsageVertex,
//	})
//
//	for running {
//	    if err := ctx.BeginFrame(); errors.Is(err, gfxcore.ErrOutOfDate) {
//	        continue // minimized
//	    }
//	    ctx.Map(vb, gfxcore.MapWriteDiscard)
//	    ctx.Write(vb, vertices)
//	    ctx.Unmap(vb)
//	    cb, _ := ctx.CommandBuffer()
//	    record(cb)
//	    ctx.Present()
//	}
//
// # Frames in flight
//
// A Context owns N frame slots (WithFramesInFlight, default 3). Each has its
// own command buffer, fence and semaphores. BeginFrame waits on the fence
// of the slot it is about to reuse, so the CPU is never more than N frames
// ahead of the GPU.
//
// # Deferred destruction
//
// Destroy invalidates a handle at once, but the buffer or texture behind it
// is queued on the current frame slot and freed only after every frame begun
// before the call has completed on the GPU. The same path retires old
// storage on Resize, staging buffers after uploads, and the old swapchain
// after a window resize.
//
// # Handles
//
// Handles carry a generation. A destroyed handle stays dead even when its
// slot is reused, so Get returns nil and Destroy reports ErrStaleHandle.
//
// # Errors
//
// Errors wrap the sentinels in this package; KindOf and ResultOf classify
// them. Device loss is fatal: once reported, every frame call returns
// ErrDeviceLost. ErrOutOfDate from BeginFrame is recoverable.
//
// # Backends
//
// The backend package opens a gpucore.Device on Vulkan (vulkan-go), on the
// gogpu/wgpu HAL, or in software. Import backend/vulkan and backend/native
// for their side effects to register them. Tests use internal/fakegpu,
// which executes copies and records any object destroyed while a
// submission still references it.
//
// The loader package decodes images on worker goroutines and uploads them
// through a Context on the render thread.
package gfxcore
