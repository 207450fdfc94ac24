// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import (
	"sync"

	"github.com/gogpu/gfxcore/gpucore"
)

// ResizeFunc receives a surface's new pixel size.
type ResizeFunc func(width, height uint32)

// Resizable is implemented by surfaces that report size changes.
//
// Listeners run on the goroutine that caused the change: the caller of
// Resize for Headless, or the event loop for windows.
type Resizable interface {
	gpucore.Surface

	// OnResize registers fn and returns a function that removes it.
	OnResize(fn ResizeFunc) (remove func())
}

// Notifier keeps a list of resize listeners. It is safe for concurrent use
// and is embedded by surface implementations.
type Notifier struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]ResizeFunc
}

// OnResize registers fn and returns a function that removes it. Calling the
// returned function more than once is harmless.
func (n *Notifier) OnResize(fn ResizeFunc) (remove func()) {
	if fn == nil {
		return func() {}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listeners == nil {
		n.listeners = make(map[int]ResizeFunc)
	}
	id := n.nextID
	n.nextID++
	n.listeners[id] = fn
	return func() {
		n.mu.Lock()
		delete(n.listeners, id)
		n.mu.Unlock()
	}
}

// Notify calls every listener in registration order. Listeners are called
// without the lock held, so they may register or remove listeners.
func (n *Notifier) Notify(width, height uint32) {
	n.mu.Lock()
	fns := make([]ResizeFunc, 0, len(n.listeners))
	for id := 0; id < n.nextID; id++ {
		if fn, ok := n.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(width, height)
	}
}
