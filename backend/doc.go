// Package backend opens gpucore devices on the available graphics APIs.
//
// Backends register themselves from init() functions and are selected at
// runtime. The software backend lives in this package and is always
// registered; the GPU backends are enabled by importing them:
//
//	import (
//		_ "github.com/gogpu/gfxcore/backend/native" // Pure Go, gogpu/wgpu HAL
//		_ "github.com/gogpu/gfxcore/backend/vulkan" // vulkan-go
//	)
//
// # Backend Selection
//
// Use Default to open the best available backend, or Open to request one by
// name:
//
//	// Best available: vulkan, then native, then software
//	dev, err := backend.Default(backend.Options{})
//
//	// Or a specific backend
//	dev, err := backend.Open(backend.BackendNative, backend.Options{})
//
// # Presentation
//
// Pass a Window in Options to get a device that can present. SurfaceOf then
// returns the surface to hand to gfxcore.NewContext:
//
//	win, _ := window.New(1280, 720, "demo")
//	dev, _ := backend.Default(backend.Options{Window: win})
//	surface, _ := backend.SurfaceOf(dev)
//	ctx, _ := gfxcore.NewContext(dev, surface)
//
// Backends that cannot present to a window fail to open when one is given,
// so Default falls through to one that can.
//
// # Available Backends
//
//   - "vulkan": Vulkan through github.com/vulkan-go/vulkan. Supports windows.
//   - "native": the gogpu/wgpu hardware abstraction layer. Offscreen only.
//   - "software": in-memory device; copies run on the CPU.
package backend
