// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package resource implements GPU buffers and textures and the handle table
// that owns them.
//
// Every resource owns exactly one API object and one allocation. Releasing
// either is always routed through a [Deferrer] so that nothing is freed while
// an in-flight frame may still reference it. The only synchronous release
// path is [Table.DestroyAll], used during teardown after the device is idle.
package resource

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/gfxcore/gpucore"
	"github.com/gogpu/gfxcore/internal/alloc"
	"github.com/gogpu/gfxcore/internal/frame"
)

// Usage describes how often the CPU updates a resource.
type Usage uint8

// Resource usages.
const (
	// UsageDefault is device-local memory written through uploads.
	UsageDefault Usage = iota

	// UsageStatic is device-local memory initialized once.
	UsageStatic

	// UsageDynamic is persistently mapped host-visible memory written by the
	// CPU every frame.
	UsageDynamic
)

// String returns the string representation of Usage.
func (u Usage) String() string {
	switch u {
	case UsageDefault:
		return "Default"
	case UsageStatic:
		return "Static"
	case UsageDynamic:
		return "Dynamic"
	default:
		return fmt.Sprintf("Usage(%d)", int(u))
	}
}

// MapMode selects the access requested by Map.
type MapMode uint8

// Map modes.
const (
	// MapRead maps for reading device results.
	MapRead MapMode = iota

	// MapWrite maps for writing; writes append after the bytes already
	// written since the last discard.
	MapWrite

	// MapWriteDiscard maps for writing and declares previous contents
	// irrelevant. Only legal for UsageDynamic.
	MapWriteDiscard
)

// String returns the string representation of MapMode.
func (m MapMode) String() string {
	switch m {
	case MapRead:
		return "Read"
	case MapWrite:
		return "Write"
	case MapWriteDiscard:
		return "WriteDiscard"
	default:
		return fmt.Sprintf("MapMode(%d)", int(m))
	}
}

// Kind identifies the concrete type of a Resource.
type Kind uint8

// Resource kinds.
const (
	KindBuffer Kind = iota
	KindTexture
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindBuffer:
		return "Buffer"
	case KindTexture:
		return "Texture"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Resource is the uniform view of a table entry.
type Resource interface {
	gpucore.NativeObject

	Kind() Kind
	Label() string

	// pending returns the record that releases the resource's objects.
	pending() frame.PendingDestruction
}

// Deferrer schedules a release for when the GPU has finished with it.
type Deferrer interface {
	DestroyDeferred(p frame.PendingDestruction)
}

// Uploader runs a copy to completion outside the frame pipeline.
type Uploader interface {
	ExecuteCopyImmediate(fn func(cb gpucore.CommandBuffer) error) error
}

// Env holds the collaborators resources are created with.
type Env struct {
	Device    gpucore.Device
	Allocator *alloc.Allocator
	Deferrer  Deferrer

	// Uploader is required for initial data on device-local buffers, for
	// texture updates and for device-local readback.
	Uploader Uploader

	// Logger defaults to a silent logger.
	Logger *slog.Logger
}

func (e *Env) check() error {
	if e == nil || e.Device == nil || e.Allocator == nil || e.Deferrer == nil {
		return fmt.Errorf("%w: resource environment is missing a device, allocator or deferrer", gpucore.ErrInvalidArgs)
	}
	return nil
}

func (e *Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.Logger
}

func (e *Env) uploader() (Uploader, error) {
	if e.Uploader == nil {
		return nil, fmt.Errorf("%w: no uploader configured", gpucore.ErrInvalidArgs)
	}
	return e.Uploader, nil
}
