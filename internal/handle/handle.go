// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package handle provides a generational slot table that maps stable integer
// handles to values.
//
// A Handle packs a slot index into its low 32 bits and the slot's generation
// into its high 32 bits. Removing a value bumps the slot generation, so every
// handle issued for the old value is rejected from then on, even after the
// slot is reused.
//
// Insert scans for a free slot before appending, which bounds the table to
// the high-water mark of simultaneously live values. Tables are not safe for
// concurrent use.
package handle

import (
	"errors"
	"fmt"
)

// Handle is an opaque reference to a table slot.
type Handle uint64

// Invalid is never returned by Insert.
const Invalid Handle = 0

// Errors returned by Remove.
var (
	// ErrInvalidHandle is returned for Invalid or out-of-range handles.
	ErrInvalidHandle = errors.New("handle: invalid handle")

	// ErrStaleHandle is returned for handles whose value was already removed.
	ErrStaleHandle = errors.New("handle: stale handle")
)

func makeHandle(index, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(index))
}

// Index returns the slot index encoded in h.
func (h Handle) Index() uint32 { return uint32(h) }

// Generation returns the slot generation encoded in h.
func (h Handle) Generation() uint32 { return uint32(h >> 32) }

// String implements fmt.Stringer.
func (h Handle) String() string {
	if h == Invalid {
		return "Handle(invalid)"
	}
	return fmt.Sprintf("Handle(%d@%d)", h.Index(), h.Generation())
}

type slot[T any] struct {
	gen   uint32
	live  bool
	value T
}

// Table is a generational slot table.
type Table[T any] struct {
	slots []slot[T]
	live  int
}

// Insert stores v in the first free slot, or a new one, and returns its handle.
func (t *Table[T]) Insert(v T) Handle {
	for i := range t.slots {
		s := &t.slots[i]
		if !s.live {
			s.live = true
			s.value = v
			t.live++
			return makeHandle(uint32(i), s.gen)
		}
	}
	// Generations start at 1 so that index 0 never encodes Invalid.
	t.slots = append(t.slots, slot[T]{gen: 1, live: true, value: v})
	t.live++
	return makeHandle(uint32(len(t.slots)-1), 1)
}

// Get returns the value for h. ok is false for invalid, out-of-range, stale
// or removed handles.
func (t *Table[T]) Get(h Handle) (v T, ok bool) {
	s := t.lookup(h)
	if s == nil {
		return v, false
	}
	return s.value, true
}

// Set replaces the value stored for a live handle.
func (t *Table[T]) Set(h Handle, v T) bool {
	s := t.lookup(h)
	if s == nil {
		return false
	}
	s.value = v
	return true
}

// Remove clears the slot for h and returns the value it held. The handle and
// every copy of it become permanently dead.
func (t *Table[T]) Remove(h Handle) (T, error) {
	var zero T
	if h == Invalid || int(h.Index()) >= len(t.slots) {
		return zero, fmt.Errorf("%w: %s", ErrInvalidHandle, h)
	}
	s := &t.slots[h.Index()]
	if !s.live || s.gen != h.Generation() {
		return zero, fmt.Errorf("%w: %s", ErrStaleHandle, h)
	}
	v := s.value
	s.value = zero
	s.live = false
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	t.live--
	return v, nil
}

func (t *Table[T]) lookup(h Handle) *slot[T] {
	if h == Invalid || int(h.Index()) >= len(t.slots) {
		return nil
	}
	s := &t.slots[h.Index()]
	if !s.live || s.gen != h.Generation() {
		return nil
	}
	return s
}

// Len returns the number of slots, live or free.
func (t *Table[T]) Len() int { return len(t.slots) }

// Live returns the number of live values.
func (t *Table[T]) Live() int { return t.live }

// Each calls fn for every live value in slot order. fn must not insert or
// remove.
func (t *Table[T]) Each(fn func(Handle, T)) {
	for i := range t.slots {
		s := &t.slots[i]
		if s.live {
			fn(makeHandle(uint32(i), s.gen), s.value)
		}
	}
}

// Clear removes every value and invalidates every outstanding handle.
func (t *Table[T]) Clear() {
	var zero T
	for i := range t.slots {
		s := &t.slots[i]
		if s.live {
			s.live = false
			s.value = zero
			s.gen++
			if s.gen == 0 {
				s.gen = 1
			}
		}
	}
	t.live = 0
}
