// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gpucore defines the backend-neutral device abstraction that the
// gfxcore frame pacer, memory allocator and resource table are written
// against.
//
// The abstraction is deliberately explicit: memory is allocated and bound by
// the caller, fences and semaphores are first-class objects, and command
// buffers are reset and re-recorded by the caller. Backends translate these
// calls to a concrete API:
//
//	               +-----------------+
//	               |     gfxcore     |
//	               | (Context/Pacer) |
//	               +--------+--------+
//	                        |
//	               +--------v--------+
//	               |     gpucore     |
//	               |    (Device)     |
//	               +--------+--------+
//	                        |
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	| backend/vulkan  |          |   backend/hal   |
//	|   (vulkan-go)   |          |  (gogpu/wgpu)   |
//	+-----------------+          +-----------------+
//
// # Native handles
//
// Every object exposes NativeHandle, returning the backend's raw handle as a
// uintptr. Code that needs to reach a backend object calls NativeHandle
// instead of type-asserting to a backend type.
//
// # Errors
//
// Backends wrap their native error codes into the sentinels declared in this
// package ([ErrDeviceLost], [ErrOutOfMemory], [ErrOutOfDate], ...) so that no
// vendor-specific code escapes the backend.
package gpucore
