// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import (
	"sync"
	"sync/atomic"
)

// headlessHandles numbers headless surfaces so each has a distinct handle.
var headlessHandles atomic.Uintptr

// Headless is an offscreen surface. Its extent is whatever the program last
// set with Resize.
type Headless struct {
	Notifier

	handle uintptr

	mu     sync.RWMutex
	width  uint32
	height uint32
}

var _ Resizable = (*Headless)(nil)

// NewHeadless creates a headless surface of the given size.
func NewHeadless(width, height uint32) *Headless {
	return &Headless{
		handle: headlessHandles.Add(1),
		width:  width,
		height: height,
	}
}

// NativeHandle implements gpucore.Surface. Headless surfaces have no native
// object; the handle only identifies the surface.
func (h *Headless) NativeHandle() uintptr { return h.handle }

// Extent implements gpucore.Surface.
func (h *Headless) Extent() (width, height uint32) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.width, h.height
}

// Resize sets the extent and notifies listeners when it changed. A zero
// size models a minimized window.
func (h *Headless) Resize(width, height uint32) {
	h.mu.Lock()
	changed := h.width != width || h.height != height
	h.width, h.height = width, height
	h.mu.Unlock()

	if changed {
		h.Notify(width, height)
	}
}
