// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"errors"
	"fmt"

	"github.com/gogpu/gfxcore/gpucore"
	"github.com/gogpu/gfxcore/internal/frame"
	"github.com/gogpu/gfxcore/internal/handle"
)

// ErrWrongKind is returned when a handle names a resource of another kind.
var ErrWrongKind = errors.New("resource: wrong resource kind")

// Table owns resources and hands out stable handles to them.
//
// Lookups are O(1) and reject stale handles. Destroy detaches the resource
// from its handle at once and schedules the release of its objects through
// the environment's Deferrer.
type Table struct {
	env     *Env
	entries handle.Table[Resource]
}

// NewTable creates a table that creates resources in env.
func NewTable(env *Env) (*Table, error) {
	if err := env.check(); err != nil {
		return nil, err
	}
	return &Table{env: env}, nil
}

// CreateBuffer creates a buffer and returns its handle.
func (t *Table) CreateBuffer(desc BufferDescriptor) (handle.Handle, error) {
	b, err := NewBuffer(t.env, desc)
	if err != nil {
		return handle.Invalid, err
	}
	return t.entries.Insert(b), nil
}

// CreateTexture creates a texture and returns its handle.
func (t *Table) CreateTexture(desc TextureDescriptor) (handle.Handle, error) {
	tex, err := NewTexture(t.env, desc)
	if err != nil {
		return handle.Invalid, err
	}
	return t.entries.Insert(tex), nil
}

// Destroy invalidates h and schedules the release of its resource. A second
// Destroy of the same handle returns an error and releases nothing.
func (t *Table) Destroy(h handle.Handle) error {
	r, err := t.entries.Remove(h)
	if err != nil {
		return fmt.Errorf("%w: %w", gpucore.ErrInvalidArgs, err)
	}
	if b, ok := r.(*Buffer); ok && b.mapped {
		b.mapped = false
	}
	t.env.Deferrer.DestroyDeferred(r.pending())
	return nil
}

// Get returns the resource for h, or nil if h is invalid, stale or
// destroyed.
func (t *Table) Get(h handle.Handle) Resource {
	r, _ := t.entries.Get(h)
	return r
}

// Buffer returns the buffer for h.
func (t *Table) Buffer(h handle.Handle) (*Buffer, error) {
	r, ok := t.entries.Get(h)
	if !ok {
		return nil, fmt.Errorf("%w: %s", gpucore.ErrInvalidArgs, h)
	}
	b, ok := r.(*Buffer)
	if !ok {
		return nil, fmt.Errorf("%w: %s is a %s", ErrWrongKind, h, r.Kind())
	}
	return b, nil
}

// Texture returns the texture for h.
func (t *Table) Texture(h handle.Handle) (*Texture, error) {
	r, ok := t.entries.Get(h)
	if !ok {
		return nil, fmt.Errorf("%w: %s", gpucore.ErrInvalidArgs, h)
	}
	tex, ok := r.(*Texture)
	if !ok {
		return nil, fmt.Errorf("%w: %s is a %s", ErrWrongKind, h, r.Kind())
	}
	return tex, nil
}

// Len returns the number of slots, live or free.
func (t *Table) Len() int { return t.entries.Len() }

// Live returns the number of live resources.
func (t *Table) Live() int { return t.entries.Live() }

// DestroyAll releases every live resource immediately through rel and
// invalidates all handles. The device must be idle.
func (t *Table) DestroyAll(rel frame.Releaser) error {
	var errs []error
	t.entries.Each(func(_ handle.Handle, r Resource) {
		p := r.pending()
		if err := rel.Release(&p); err != nil {
			errs = append(errs, err)
		}
	})
	t.entries.Clear()
	return errors.Join(errs...)
}
