// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/gogpu/gfxcore/gpucore"
	"github.com/gogpu/gfxcore/internal/fakegpu"
)

func rgba(w, h uint32) TextureDescriptor {
	return TextureDescriptor{
		Label:       "tex",
		Width:       w,
		Height:      h,
		Depth:       1,
		MipLevels:   1,
		ArrayLayers: 1,
		Format:      gpucore.TextureFormatRGBA8Unorm,
	}
}

func TestTextureDescriptorValidate(t *testing.T) {
	tests := []struct {
		name    string
		edit    func(*TextureDescriptor)
		wantErr bool
	}{
		{"valid 2D", func(*TextureDescriptor) {}, false},
		{"zero width", func(d *TextureDescriptor) { d.Width = 0 }, true},
		{"zero depth", func(d *TextureDescriptor) { d.Depth = 0 }, true},
		{"no mips", func(d *TextureDescriptor) { d.MipLevels = 0 }, true},
		{"no layers", func(d *TextureDescriptor) { d.ArrayLayers = 0 }, true},
		{"undefined format", func(d *TextureDescriptor) { d.Format = gpucore.TextureFormatUndefined }, true},
		{"full mip chain", func(d *TextureDescriptor) { d.MipLevels = 5 }, false},
		{"too many mips", func(d *TextureDescriptor) { d.MipLevels = 6 }, true},
		{"2D with depth", func(d *TextureDescriptor) { d.Depth = 2 }, true},
		{"unknown dimension", func(d *TextureDescriptor) { d.Dimension = gpucore.TextureDimension(42) }, true},
		{"cube", func(d *TextureDescriptor) {
			d.Dimension, d.ArrayLayers = gpucore.TextureDimensionCube, 6
		}, false},
		{"cube with 4 layers", func(d *TextureDescriptor) {
			d.Dimension, d.ArrayLayers = gpucore.TextureDimensionCube, 4
		}, true},
		{"non-square cube", func(d *TextureDescriptor) {
			d.Dimension, d.ArrayLayers, d.Height = gpucore.TextureDimensionCube, 6, 8
		}, true},
		{"3D", func(d *TextureDescriptor) {
			d.Dimension, d.Depth = gpucore.TextureDimension3D, 16
		}, false},
		{"layered 3D", func(d *TextureDescriptor) {
			d.Dimension, d.Depth, d.ArrayLayers = gpucore.TextureDimension3D, 16, 2
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := rgba(16, 16)
			tt.edit(&d)
			err := d.validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, gpucore.ErrInvalidArgs) {
				t.Errorf("validate() error = %v, want ErrInvalidArgs", err)
			}
		})
	}
}

func TestTextureUpdateWhole(t *testing.T) {
	f := newFixture(t)
	tex, err := NewTexture(f.env, rgba(4, 4))
	if err != nil {
		t.Fatalf("NewTexture() error = %v", err)
	}
	if tex.Layout() != gpucore.TextureLayoutUndefined {
		t.Errorf("Layout() = %s, want Undefined", tex.Layout())
	}
	data := make([]byte, 4*4*4)
	for i := range data {
		data[i] = byte(i)
	}
	if err := tex.Update(Region{}, data); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	native := tex.Native().(*fakegpu.Texture)
	if got := native.Subresource(0, 0); !bytes.Equal(got, data) {
		t.Errorf("texture contents = %v, want %v", got, data)
	}
	if tex.Layout() != gpucore.TextureLayoutShaderRead || native.Layout() != gpucore.TextureLayoutShaderRead {
		t.Errorf("Layout() = %s, device layout %s, want ShaderRead", tex.Layout(), native.Layout())
	}
	if got := len(f.deferrer.records); got != 1 {
		t.Errorf("deferred records = %d, want 1 staging buffer", got)
	}
	f.deferrer.next.DestroyDeferred(tex.pending())
	f.close()
}

func TestTextureUpdateRegion(t *testing.T) {
	f := newFixture(t)
	tex, err := NewTexture(f.env, rgba(4, 4))
	if err != nil {
		t.Fatalf("NewTexture() error = %v", err)
	}
	patch := bytes.Repeat([]byte{0xFF}, 2*2*4)
	if err := tex.Update(Region{X: 1, Y: 1, Width: 2, Height: 2}, patch); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	sub := tex.Native().(*fakegpu.Texture).Subresource(0, 0)
	const pitch = 4 * 4
	for y := range 4 {
		for x := range 4 {
			inside := x >= 1 && x <= 2 && y >= 1 && y <= 2
			want := byte(0)
			if inside {
				want = 0xFF
			}
			if got := sub[y*pitch+x*4]; got != want {
				t.Errorf("texel (%d,%d) = %#x, want %#x", x, y, got, want)
			}
		}
	}
	f.deferrer.next.DestroyDeferred(tex.pending())
	f.close()
}

func TestTextureUpdateMipLevel(t *testing.T) {
	f := newFixture(t)
	desc := rgba(8, 8)
	desc.MipLevels = 4
	tex, err := NewTexture(f.env, desc)
	if err != nil {
		t.Fatalf("NewTexture() error = %v", err)
	}
	if got, want := tex.ByteSize(), uint64((64+16+4+1)*4); got != want {
		t.Errorf("ByteSize() = %d, want %d", got, want)
	}
	data := bytes.Repeat([]byte{7}, 2*2*4)
	if err := tex.Update(Region{MipLevel: 2}, data); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got := tex.Native().(*fakegpu.Texture).Subresource(2, 0); !bytes.Equal(got, data) {
		t.Errorf("mip 2 = %v, want %v", got, data)
	}
	f.deferrer.next.DestroyDeferred(tex.pending())
	f.close()
}

func TestTextureUpdateInvalid(t *testing.T) {
	f := newFixture(t)
	tex, err := NewTexture(f.env, rgba(4, 4))
	if err != nil {
		t.Fatalf("NewTexture() error = %v", err)
	}
	tests := []struct {
		name   string
		region Region
		size   int
	}{
		{"short data", Region{}, 10},
		{"no such mip", Region{MipLevel: 1}, 4},
		{"no such layer", Region{ArrayLayer: 1}, 64},
		{"out of bounds", Region{X: 3, Width: 2, Height: 1}, 8},
		{"x wraps", Region{X: math.MaxUint32, Width: 2, Height: 1}, 8},
		{"y wraps", Region{Y: math.MaxUint32, Width: 1, Height: 2}, 8},
		{"z wraps", Region{Z: math.MaxUint32, Width: 1, Height: 1, Depth: 2}, 8},
		{"width wraps", Region{X: 1, Width: math.MaxUint32, Height: 1}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tex.Update(tt.region, make([]byte, tt.size)); !errors.Is(err, gpucore.ErrInvalidArgs) {
				t.Errorf("Update() error = %v, want ErrInvalidArgs", err)
			}
		})
	}
	if got := f.dev.Stats().Submits; got != 0 {
		t.Errorf("Submits = %d, want 0", got)
	}
	f.deferrer.next.DestroyDeferred(tex.pending())
	f.close()
}

func TestTextureResize(t *testing.T) {
	f := newFixture(t)
	tex, err := NewTexture(f.env, rgba(4, 4))
	if err != nil {
		t.Fatalf("NewTexture() error = %v", err)
	}
	old := tex.Native()
	if err := tex.Update(Region{}, make([]byte, 64)); err != nil {
		t.Fatal(err)
	}
	f.deferrer.records = nil

	if err := tex.Resize(32, 16, 1); err != nil {
		t.Fatalf("Resize() error = %v", err)
	}
	if w, h, d := tex.Size(); w != 32 || h != 16 || d != 1 {
		t.Errorf("Size() = %d, %d, %d, want 32, 16, 1", w, h, d)
	}
	if tex.Native() == old {
		t.Errorf("Native() unchanged after Resize")
	}
	if tex.Layout() != gpucore.TextureLayoutUndefined {
		t.Errorf("Layout() = %s, want Undefined", tex.Layout())
	}
	if got := len(f.deferrer.records); got != 1 {
		t.Fatalf("deferred records = %d, want 1", got)
	}
	if rec := f.deferrer.records[0]; rec.Texture != old || rec.View == nil || rec.Allocation == nil {
		t.Errorf("deferred record does not hold the old texture, view and allocation")
	}

	if err := tex.Resize(0, 16, 1); !errors.Is(err, gpucore.ErrInvalidArgs) {
		t.Errorf("Resize(0) error = %v, want ErrInvalidArgs", err)
	}
	if w, _, _ := tex.Size(); w != 32 {
		t.Errorf("failed Resize changed width to %d", w)
	}
	if got := len(f.deferrer.records); got != 1 {
		t.Errorf("deferred records after failed Resize = %d, want 1", got)
	}
	f.frames(3)
	if f.dev.TextureAlive(old.NativeHandle()) {
		t.Errorf("old texture alive after frames completed")
	}
	f.deferrer.next.DestroyDeferred(tex.pending())
	f.close()
}

func TestTextureCopyRegion(t *testing.T) {
	f := newFixture(t)
	desc := rgba(16, 8)
	desc.MipLevels = 2
	tex, err := NewTexture(f.env, desc)
	if err != nil {
		t.Fatalf("NewTexture() error = %v", err)
	}
	got, err := tex.CopyRegion(Region{MipLevel: 1})
	if err != nil {
		t.Fatalf("CopyRegion() error = %v", err)
	}
	if got.Size.Width != 8 || got.Size.Height != 4 || got.Size.DepthOrArrayLayers != 1 || got.MipLevel != 1 {
		t.Errorf("CopyRegion() = %+v, want mip 1 of 8x4x1", got)
	}
	f.deferrer.next.DestroyDeferred(tex.pending())
	f.close()
}
