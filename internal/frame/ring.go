// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package frame

// Ring is a fixed-size ring of values with a current position.
type Ring[T any] struct {
	items []T
	cur   int
}

// NewRing creates a ring over items. It panics if items is empty.
func NewRing[T any](items []T) *Ring[T] {
	if len(items) == 0 {
		panic("frame: empty ring")
	}
	return &Ring[T]{items: items}
}

// Len returns the ring size.
func (r *Ring[T]) Len() int { return len(r.items) }

// Index returns the current position.
func (r *Ring[T]) Index() int { return r.cur }

// Current returns a pointer to the current item.
func (r *Ring[T]) Current() *T { return &r.items[r.cur] }

// At returns a pointer to item i.
func (r *Ring[T]) At(i int) *T { return &r.items[i] }

// Advance moves to the next item, wrapping around.
func (r *Ring[T]) Advance() { r.cur = (r.cur + 1) % len(r.items) }
