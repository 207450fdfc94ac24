// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/gfxcore/gpucore"
	"github.com/gogpu/gfxcore/internal/alloc"
	"github.com/gogpu/gfxcore/internal/frame"
)

// TextureDescriptor describes a texture to create.
type TextureDescriptor struct {
	Label string

	Width, Height, Depth uint32

	MipLevels   uint32
	ArrayLayers uint32

	// SampleCount defaults to 1 if zero.
	SampleCount uint32

	Format    gpucore.TextureFormat
	Dimension gpucore.TextureDimension
	Usage     Usage

	// Bind defaults to sampling plus copies if zero.
	Bind gpucore.TextureUsage
}

func (d *TextureDescriptor) validate() error {
	switch {
	case d.Width < 1 || d.Height < 1 || d.Depth < 1:
		return fmt.Errorf("%w: texture %q extent %dx%dx%d", gpucore.ErrInvalidArgs, d.Label, d.Width, d.Height, d.Depth)
	case d.MipLevels < 1:
		return fmt.Errorf("%w: texture %q has no mip levels", gpucore.ErrInvalidArgs, d.Label)
	case d.ArrayLayers < 1:
		return fmt.Errorf("%w: texture %q has no array layers", gpucore.ErrInvalidArgs, d.Label)
	case d.Format.BytesPerPixel() == 0:
		return fmt.Errorf("%w: texture %q format %s", gpucore.ErrInvalidArgs, d.Label, d.Format)
	case d.Dimension > gpucore.TextureDimensionCube:
		return fmt.Errorf("%w: texture %q dimension %d", gpucore.ErrInvalidArgs, d.Label, d.Dimension)
	}
	switch d.Dimension {
	case gpucore.TextureDimensionCube:
		if d.ArrayLayers != 6 || d.Width != d.Height || d.Depth != 1 {
			return fmt.Errorf("%w: cube texture %q must be square with 6 layers", gpucore.ErrInvalidArgs, d.Label)
		}
	case gpucore.TextureDimension3D:
		if d.ArrayLayers != 1 {
			return fmt.Errorf("%w: 3D texture %q cannot be layered", gpucore.ErrInvalidArgs, d.Label)
		}
	default:
		if d.Depth != 1 {
			return fmt.Errorf("%w: texture %q has depth %d", gpucore.ErrInvalidArgs, d.Label, d.Depth)
		}
	}
	if mips := maxMipLevels(d.Width, d.Height, d.Depth); d.MipLevels > mips {
		return fmt.Errorf("%w: texture %q has %d mip levels, at most %d", gpucore.ErrInvalidArgs, d.Label, d.MipLevels, mips)
	}
	return nil
}

func maxMipLevels(w, h, d uint32) uint32 {
	n, m := uint32(1), max(w, h, d)
	for m > 1 {
		m >>= 1
		n++
	}
	return n
}

// Region selects part of one texture subresource. A zero Width selects the
// whole mip level.
type Region struct {
	MipLevel   uint32
	ArrayLayer uint32

	X, Y, Z              uint32
	Width, Height, Depth uint32
}

// Texture is a GPU image with its default view and backing allocation.
type Texture struct {
	env  *Env
	desc TextureDescriptor

	tex    gpucore.Texture
	view   gpucore.TextureView
	mem    *alloc.Allocation
	layout gpucore.TextureLayout
}

// NewTexture creates a texture and its default view.
func NewTexture(env *Env, desc TextureDescriptor) (*Texture, error) {
	if err := env.check(); err != nil {
		return nil, err
	}
	if desc.SampleCount == 0 {
		desc.SampleCount = 1
	}
	if desc.Bind == 0 {
		desc.Bind = gpucore.TextureUsageTextureBinding
	}
	desc.Bind |= gpucore.TextureUsageCopySrc | gpucore.TextureUsageCopyDst
	if err := desc.validate(); err != nil {
		return nil, err
	}

	t := &Texture{env: env, desc: desc}
	if err := t.createObjects(); err != nil {
		return nil, err
	}
	env.logger().Debug("resource: texture created",
		slog.String("label", desc.Label),
		slog.Uint64("width", uint64(desc.Width)),
		slog.Uint64("height", uint64(desc.Height)),
		slog.String("format", desc.Format.String()))
	return t, nil
}

func (t *Texture) apiDescriptor() *gpucore.TextureDescriptor {
	d := t.desc
	layers := d.ArrayLayers
	if d.Dimension == gpucore.TextureDimension3D {
		layers = d.Depth
	}
	return &gpucore.TextureDescriptor{
		Label:         d.Label,
		Size:          gpucore.Extent3D{Width: d.Width, Height: d.Height, DepthOrArrayLayers: layers},
		MipLevelCount: d.MipLevels,
		SampleCount:   d.SampleCount,
		Dimension:     d.Dimension,
		Format:        d.Format,
		Usage:         d.Bind,
	}
}

// createObjects replaces tex, view and mem with fresh objects for t.desc.
// Nothing is changed on failure.
func (t *Texture) createObjects() error {
	dev := t.env.Device
	label := t.desc.Label
	tex, err := dev.CreateTexture(t.apiDescriptor())
	if err != nil {
		return fmt.Errorf("create texture %q: %w", label, err)
	}
	mem, err := t.env.Allocator.Allocate(alloc.Request{
		Requirements: dev.TextureMemoryRequirements(tex),
		Label:        label,
	})
	if err != nil {
		dev.DestroyTexture(tex)
		return fmt.Errorf("allocate texture %q: %w", label, err)
	}
	if err := dev.BindTextureMemory(tex, mem.Memory(), mem.Offset()); err != nil {
		dev.DestroyTexture(tex)
		_ = t.env.Allocator.Free(mem)
		return fmt.Errorf("bind texture %q: %w", label, err)
	}
	view, err := dev.CreateTextureView(tex, &gpucore.TextureViewDescriptor{
		Label:         label,
		Dimension:     t.desc.Dimension,
		MipLevelCount: t.desc.MipLevels,
		ArrayLayers:   t.desc.ArrayLayers,
	})
	if err != nil {
		dev.DestroyTexture(tex)
		_ = t.env.Allocator.Free(mem)
		return fmt.Errorf("create view of texture %q: %w", label, err)
	}
	t.tex, t.view, t.mem = tex, view, mem
	t.layout = gpucore.TextureLayoutUndefined
	return nil
}

// NativeHandle implements gpucore.NativeObject.
func (t *Texture) NativeHandle() uintptr { return t.tex.NativeHandle() }

// Kind implements Resource.
func (t *Texture) Kind() Kind { return KindTexture }

// Label implements Resource.
func (t *Texture) Label() string { return t.desc.Label }

// Descriptor returns the normalized creation parameters.
func (t *Texture) Descriptor() TextureDescriptor { return t.desc }

// Native returns the API texture. It changes on Resize.
func (t *Texture) Native() gpucore.Texture { return t.tex }

// View returns the default view. It changes on Resize.
func (t *Texture) View() gpucore.TextureView { return t.view }

// Allocation returns the backing allocation. It changes on Resize.
func (t *Texture) Allocation() *alloc.Allocation { return t.mem }

// Layout returns the layout the texture was last transitioned to.
func (t *Texture) Layout() gpucore.TextureLayout { return t.layout }

// SetLayout records a transition recorded outside this package.
func (t *Texture) SetLayout(l gpucore.TextureLayout) { t.layout = l }

// Size returns the texture extent in texels.
func (t *Texture) Size() (width, height, depth uint32) {
	return t.desc.Width, t.desc.Height, t.desc.Depth
}

// ByteSize returns the number of bytes the texture's texels occupy, tightly
// packed.
func (t *Texture) ByteSize() uint64 {
	var total uint64
	for mip := uint32(0); mip < t.desc.MipLevels; mip++ {
		w, h, d := t.mipExtent(mip)
		total += uint64(w) * uint64(h) * uint64(d)
	}
	return total * uint64(t.desc.ArrayLayers) * uint64(t.desc.Format.BytesPerPixel())
}

func (t *Texture) mipExtent(mip uint32) (w, h, d uint32) {
	return max(t.desc.Width>>mip, 1), max(t.desc.Height>>mip, 1), max(t.desc.Depth>>mip, 1)
}

// Resize re-creates the texture with a new extent. The old texture, view
// and allocation are released through one deferred record and contents are
// not preserved.
func (t *Texture) Resize(width, height, depth uint32) error {
	old := *t
	t.desc.Width, t.desc.Height, t.desc.Depth = width, height, depth
	if err := t.desc.validate(); err != nil {
		t.desc = old.desc
		return err
	}
	if err := t.createObjects(); err != nil {
		t.desc = old.desc
		return err
	}
	t.env.Deferrer.DestroyDeferred(old.pending())
	return nil
}

func (t *Texture) normalizeRegion(r Region) (Region, error) {
	if r.MipLevel >= t.desc.MipLevels || r.ArrayLayer >= t.desc.ArrayLayers {
		return r, fmt.Errorf("%w: texture %q has no subresource mip %d layer %d",
			gpucore.ErrInvalidArgs, t.desc.Label, r.MipLevel, r.ArrayLayer)
	}
	w, h, d := t.mipExtent(r.MipLevel)
	if r.Width == 0 {
		r.X, r.Y, r.Z = 0, 0, 0
		r.Width, r.Height, r.Depth = w, h, d
	}
	r.Height, r.Depth = max(r.Height, 1), max(r.Depth, 1)
	if !within(r.X, r.Width, w) || !within(r.Y, r.Height, h) || !within(r.Z, r.Depth, d) {
		return r, fmt.Errorf("%w: region %dx%dx%d at (%d,%d,%d) exceeds mip %d of texture %q",
			gpucore.ErrInvalidArgs, r.Width, r.Height, r.Depth, r.X, r.Y, r.Z, r.MipLevel, t.desc.Label)
	}
	return r, nil
}

// within reports whether [origin, origin+size) lies inside [0, limit).
func within(origin, size, limit uint32) bool {
	return origin <= limit && size <= limit-origin
}

// Update uploads tightly packed texels into region and leaves the texture
// ready for sampling. It blocks until the copy completes.
func (t *Texture) Update(region Region, data []byte) error {
	r, err := t.normalizeRegion(region)
	if err != nil {
		return err
	}
	want := uint64(r.Width) * uint64(r.Height) * uint64(r.Depth) * uint64(t.desc.Format.BytesPerPixel())
	if uint64(len(data)) != want {
		return fmt.Errorf("%w: %d bytes for a region of %d bytes", gpucore.ErrInvalidArgs, len(data), want)
	}
	up, err := t.env.uploader()
	if err != nil {
		return err
	}
	staging, err := newStaging(t.env, want, t.desc.Label+" staging")
	if err != nil {
		return err
	}
	defer t.env.Deferrer.DestroyDeferred(staging.pending())

	copy(staging.mem.Mapped(), data)
	if err := staging.mem.Flush(0, want); err != nil {
		return err
	}
	from := t.layout
	err = up.ExecuteCopyImmediate(func(cb gpucore.CommandBuffer) error {
		cb.TransitionTexture(t.tex, from, gpucore.TextureLayoutTransferDst)
		cb.CopyBufferToTexture(staging.buf, t.tex, []gpucore.BufferTextureCopy{r.copyRegion()})
		cb.TransitionTexture(t.tex, gpucore.TextureLayoutTransferDst, gpucore.TextureLayoutShaderRead)
		return nil
	})
	if err != nil {
		return err
	}
	t.layout = gpucore.TextureLayoutShaderRead
	return nil
}

// CopyRegion converts r to a buffer/texture copy region of a tightly packed
// buffer starting at offset 0.
func (t *Texture) CopyRegion(region Region) (gpucore.BufferTextureCopy, error) {
	r, err := t.normalizeRegion(region)
	if err != nil {
		return gpucore.BufferTextureCopy{}, err
	}
	return r.copyRegion(), nil
}

func (r Region) copyRegion() gpucore.BufferTextureCopy {
	return gpucore.BufferTextureCopy{
		MipLevel:   r.MipLevel,
		ArrayLayer: r.ArrayLayer,
		Origin:     gpucore.Origin3D{X: r.X, Y: r.Y, Z: r.Z},
		Size:       gpucore.Extent3D{Width: r.Width, Height: r.Height, DepthOrArrayLayers: r.Depth},
	}
}

func (t *Texture) pending() frame.PendingDestruction {
	return frame.PendingDestruction{
		Kind:       frame.KindTexture,
		Label:      t.desc.Label,
		Texture:    t.tex,
		View:       t.view,
		Allocation: t.mem,
	}
}
