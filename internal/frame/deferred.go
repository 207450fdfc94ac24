// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package frame

import (
	"fmt"

	"github.com/gogpu/gfxcore/gpucore"
	"github.com/gogpu/gfxcore/internal/alloc"
)

// Kind selects how a PendingDestruction is released.
type Kind uint8

// Destruction kinds.
const (
	// KindBuffer releases Buffer and its Allocation.
	KindBuffer Kind = iota

	// KindTexture releases View, Texture and Allocation.
	KindTexture

	// KindTextureView releases View only.
	KindTextureView

	// KindSwapchain releases Swapchain, which owns its images.
	KindSwapchain

	// KindAllocation releases Allocation only.
	KindAllocation

	kindCount
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindBuffer:
		return "Buffer"
	case KindTexture:
		return "Texture"
	case KindTextureView:
		return "TextureView"
	case KindSwapchain:
		return "Swapchain"
	case KindAllocation:
		return "Allocation"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// PendingDestruction identifies one resource whose release must wait until
// the GPU is done with it. Only the fields named by Kind are used.
type PendingDestruction struct {
	Kind  Kind
	Label string

	Allocation *alloc.Allocation
	Buffer     gpucore.Buffer
	Texture    gpucore.Texture
	View       gpucore.TextureView
	Swapchain  gpucore.Swapchain

	// safeAfter is the serial of the last frame that may reference the
	// resource.
	safeAfter uint64
}

// Releaser frees the objects named by PendingDestruction records.
type Releaser struct {
	Device    gpucore.Device
	Allocator *alloc.Allocator
}

var releasers = [kindCount]func(Releaser, *PendingDestruction) error{
	KindBuffer: func(r Releaser, p *PendingDestruction) error {
		r.Device.DestroyBuffer(p.Buffer)
		return r.free(p)
	},
	KindTexture: func(r Releaser, p *PendingDestruction) error {
		if p.View != nil {
			r.Device.DestroyTextureView(p.View)
		}
		r.Device.DestroyTexture(p.Texture)
		return r.free(p)
	},
	KindTextureView: func(r Releaser, p *PendingDestruction) error {
		r.Device.DestroyTextureView(p.View)
		return nil
	},
	KindSwapchain: func(r Releaser, p *PendingDestruction) error {
		r.Device.DestroySwapchain(p.Swapchain)
		return nil
	},
	KindAllocation: func(r Releaser, p *PendingDestruction) error {
		return r.free(p)
	},
}

func (r Releaser) free(p *PendingDestruction) error {
	if p.Allocation == nil {
		return nil
	}
	return r.Allocator.Free(p.Allocation)
}

// Release frees the objects named by p immediately.
func (r Releaser) Release(p *PendingDestruction) error {
	if p.Kind >= kindCount {
		return fmt.Errorf("%w: unknown destruction kind %s", gpucore.ErrInvalidArgs, p.Kind)
	}
	if err := releasers[p.Kind](r, p); err != nil {
		return fmt.Errorf("release %s %q: %w", p.Kind, p.Label, err)
	}
	return nil
}
