// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package surface provides presentation targets for gfxcore contexts.
//
// A surface is consumed only as a native handle and a current pixel extent
// (see gpucore.Surface). When its size changes, listeners registered with
// OnResize are told, which is how a gfxcore.Context learns that its
// swapchain must be rebuilt:
//
//	s := surface.NewHeadless(1280, 720)
//	ctx, _ := gfxcore.NewContext(dev, s)
//	s.OnResize(ctx.OnResize)
//
//	s.Resize(1920, 1080) // ctx rebuilds on the next BeginFrame
//
// # Surface Types
//
//   - Headless: an offscreen surface whose size is set by the program.
//     Useful for tests, tools and the software backend.
//   - window.Window (package surface/window): a GLFW window that implements
//     backend.Window and reports framebuffer resizes.
package surface
