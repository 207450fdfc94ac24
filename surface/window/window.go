// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package window opens GLFW windows that a Vulkan device can present to.
//
// GLFW must be driven from the main OS thread. Call New from main, keep the
// render loop on that goroutine, and pump events with PollEvents:
//
//	win, err := window.New(1280, 720, "demo")
//	if err != nil { ... }
//	defer win.Close()
//
//	dev, _ := backend.Open(backend.BackendVulkan, backend.Options{Window: win})
//	for win.PollEvents() {
//		// BeginFrame / Present
//	}
package window

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/gogpu/gfxcore/backend"
	"github.com/gogpu/gfxcore/surface"
)

// Window is a GLFW window without a client API. It reports framebuffer
// resizes to listeners registered with OnResize.
type Window struct {
	surface.Notifier

	win *glfw.Window

	mu     sync.RWMutex
	width  uint32
	height uint32
	closed bool
}

var _ backend.Window = (*Window)(nil)

// New initializes GLFW and opens a window. The calling goroutine is locked
// to its OS thread.
func New(width, height int, title string) (*Window, error) {
	runtime.LockOSThread()

	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("initialize GLFW: %w", err)
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return nil, fmt.Errorf("%w: GLFW reports no Vulkan loader", backend.ErrBackendNotAvailable)
	}

	// Vulkan owns presentation, so no OpenGL context is created.
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)

	gw, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("create GLFW window: %w", err)
	}

	w := &Window{win: gw}
	fbWidth, fbHeight := gw.GetFramebufferSize()
	w.width, w.height = clampSize(fbWidth), clampSize(fbHeight)

	// Framebuffer size is in pixels, which differs from window size on
	// high-DPI displays.
	gw.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.mu.Lock()
		w.width, w.height = clampSize(width), clampSize(height)
		w.mu.Unlock()
		w.Notify(clampSize(width), clampSize(height))
	})
	return w, nil
}

func clampSize(v int) uint32 {
	if v < 0 {
		return 0
	}
	return uint32(v)
}

// RequiredInstanceExtensions implements backend.Window.
func (w *Window) RequiredInstanceExtensions() []string {
	return w.win.GetRequiredInstanceExtensions()
}

// CreateSurface implements backend.Window. instance must be a vk.Instance.
func (w *Window) CreateSurface(instance any) (uintptr, error) {
	handle, err := w.win.CreateWindowSurface(instance, nil)
	if err != nil {
		return 0, fmt.Errorf("create window surface: %w", err)
	}
	return handle, nil
}

// Extent implements backend.Window. It returns the framebuffer size in
// pixels; a minimized window reports zero.
func (w *Window) Extent() (width, height uint32) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.width, w.height
}

// PollEvents processes pending events without blocking and reports whether
// the window is still open.
func (w *Window) PollEvents() bool {
	glfw.PollEvents()
	return !w.win.ShouldClose()
}

// WaitEvents blocks until at least one event arrives. Use it while the
// window is minimized.
func (w *Window) WaitEvents() {
	glfw.WaitEvents()
}

// Close destroys the window and terminates GLFW. The device presenting to
// the window must be destroyed first. Close is idempotent.
func (w *Window) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	w.win.Destroy()
	glfw.Terminate()
}
