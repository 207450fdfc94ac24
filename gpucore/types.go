// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucore

import "fmt"

// BufferUsage is a bitmask specifying how a buffer will be used.
type BufferUsage uint32

// Buffer usage flags.
const (
	// BufferUsageMapRead indicates the buffer can be mapped for reading.
	BufferUsageMapRead BufferUsage = 1 << 0

	// BufferUsageMapWrite indicates the buffer can be mapped for writing.
	BufferUsageMapWrite BufferUsage = 1 << 1

	// BufferUsageCopySrc indicates the buffer can be used as a copy source.
	BufferUsageCopySrc BufferUsage = 1 << 2

	// BufferUsageCopyDst indicates the buffer can be used as a copy destination.
	BufferUsageCopyDst BufferUsage = 1 << 3

	// BufferUsageIndex indicates the buffer can be used as an index buffer.
	BufferUsageIndex BufferUsage = 1 << 4

	// BufferUsageVertex indicates the buffer can be used as a vertex buffer.
	BufferUsageVertex BufferUsage = 1 << 5

	// BufferUsageUniform indicates the buffer can be used as a uniform buffer.
	BufferUsageUniform BufferUsage = 1 << 6

	// BufferUsageStorage indicates the buffer can be used as a storage buffer.
	BufferUsageStorage BufferUsage = 1 << 7

	// BufferUsageIndirect indicates the buffer can be used for indirect dispatch/draw.
	BufferUsageIndirect BufferUsage = 1 << 8
)

// BufferUsageBindable is the set of usages that bind a buffer to the pipeline.
const BufferUsageBindable = BufferUsageVertex | BufferUsageIndex | BufferUsageUniform | BufferUsageStorage

// Contains reports whether all bits of other are set in u.
func (u BufferUsage) Contains(other BufferUsage) bool { return u&other == other }

// Intersects reports whether any bit of other is set in u.
func (u BufferUsage) Intersects(other BufferUsage) bool { return u&other != 0 }

// TextureUsage is a bitmask specifying how a texture will be used.
type TextureUsage uint32

// Texture usage flags.
const (
	// TextureUsageCopySrc indicates the texture can be used as a copy source.
	TextureUsageCopySrc TextureUsage = 1 << 0

	// TextureUsageCopyDst indicates the texture can be used as a copy destination.
	TextureUsageCopyDst TextureUsage = 1 << 1

	// TextureUsageTextureBinding indicates the texture can be bound as a sampled texture.
	TextureUsageTextureBinding TextureUsage = 1 << 2

	// TextureUsageStorageBinding indicates the texture can be bound as a storage texture.
	TextureUsageStorageBinding TextureUsage = 1 << 3

	// TextureUsageRenderAttachment indicates the texture can be used as a render target.
	TextureUsageRenderAttachment TextureUsage = 1 << 4

	// TextureUsageDepthStencil indicates the texture can be used as a depth/stencil target.
	TextureUsageDepthStencil TextureUsage = 1 << 5
)

// Contains reports whether all bits of other are set in u.
func (u TextureUsage) Contains(other TextureUsage) bool { return u&other == other }

// TextureFormat specifies the format of texture data.
type TextureFormat uint32

// Texture formats.
const (
	// TextureFormatUndefined is the zero value.
	TextureFormatUndefined TextureFormat = iota

	// TextureFormatRGBA8Unorm is 8-bit RGBA, normalized unsigned integer.
	TextureFormatRGBA8Unorm

	// TextureFormatRGBA8UnormSRGB is 8-bit RGBA, normalized unsigned integer in sRGB color space.
	TextureFormatRGBA8UnormSRGB

	// TextureFormatBGRA8Unorm is 8-bit BGRA, normalized unsigned integer.
	TextureFormatBGRA8Unorm

	// TextureFormatBGRA8UnormSRGB is 8-bit BGRA, normalized unsigned integer in sRGB color space.
	TextureFormatBGRA8UnormSRGB

	// TextureFormatR8Unorm is 8-bit red channel only, normalized unsigned integer.
	TextureFormatR8Unorm

	// TextureFormatRG8Unorm is 8-bit RG, normalized unsigned integer.
	TextureFormatRG8Unorm

	// TextureFormatR32Float is 32-bit red channel only, floating point.
	TextureFormatR32Float

	// TextureFormatRGBA16Float is 16-bit RGBA, floating point.
	TextureFormatRGBA16Float

	// TextureFormatRGBA32Float is 32-bit RGBA, floating point.
	TextureFormatRGBA32Float

	// TextureFormatDepth32Float is a 32-bit floating point depth format.
	TextureFormatDepth32Float

	// TextureFormatDepth24PlusStencil8 is a 24-bit depth + 8-bit stencil format.
	TextureFormatDepth24PlusStencil8
)

// BytesPerPixel returns the size of one texel, or 0 for undefined formats.
func (f TextureFormat) BytesPerPixel() uint32 {
	switch f {
	case TextureFormatR8Unorm:
		return 1
	case TextureFormatRG8Unorm:
		return 2
	case TextureFormatRGBA8Unorm, TextureFormatRGBA8UnormSRGB,
		TextureFormatBGRA8Unorm, TextureFormatBGRA8UnormSRGB,
		TextureFormatR32Float, TextureFormatDepth32Float, TextureFormatDepth24PlusStencil8:
		return 4
	case TextureFormatRGBA16Float:
		return 8
	case TextureFormatRGBA32Float:
		return 16
	default:
		return 0
	}
}

// IsDepth reports whether the format has a depth aspect.
func (f TextureFormat) IsDepth() bool {
	return f == TextureFormatDepth32Float || f == TextureFormatDepth24PlusStencil8
}

// String returns the string representation of TextureFormat.
func (f TextureFormat) String() string {
	switch f {
	case TextureFormatUndefined:
		return "Undefined"
	case TextureFormatRGBA8Unorm:
		return "RGBA8Unorm"
	case TextureFormatRGBA8UnormSRGB:
		return "RGBA8UnormSRGB"
	case TextureFormatBGRA8Unorm:
		return "BGRA8Unorm"
	case TextureFormatBGRA8UnormSRGB:
		return "BGRA8UnormSRGB"
	case TextureFormatR8Unorm:
		return "R8Unorm"
	case TextureFormatRG8Unorm:
		return "RG8Unorm"
	case TextureFormatR32Float:
		return "R32Float"
	case TextureFormatRGBA16Float:
		return "RGBA16Float"
	case TextureFormatRGBA32Float:
		return "RGBA32Float"
	case TextureFormatDepth32Float:
		return "Depth32Float"
	case TextureFormatDepth24PlusStencil8:
		return "Depth24PlusStencil8"
	default:
		return fmt.Sprintf("Unknown(%d)", int(f))
	}
}

// TextureDimension is the dimensionality of a texture.
type TextureDimension uint32

// Texture dimensions.
const (
	TextureDimension2D TextureDimension = iota
	TextureDimension1D
	TextureDimension3D
	TextureDimensionCube
)

// TextureLayout is the access layout a texture is in. Backends without
// explicit layouts treat transitions as usage hints.
type TextureLayout uint32

// Texture layouts.
const (
	TextureLayoutUndefined TextureLayout = iota
	TextureLayoutTransferSrc
	TextureLayoutTransferDst
	TextureLayoutShaderRead
	TextureLayoutColorAttachment
	TextureLayoutPresent
)

// String returns the string representation of TextureLayout.
func (l TextureLayout) String() string {
	switch l {
	case TextureLayoutUndefined:
		return "Undefined"
	case TextureLayoutTransferSrc:
		return "TransferSrc"
	case TextureLayoutTransferDst:
		return "TransferDst"
	case TextureLayoutShaderRead:
		return "ShaderRead"
	case TextureLayoutColorAttachment:
		return "ColorAttachment"
	case TextureLayoutPresent:
		return "Present"
	default:
		return fmt.Sprintf("Unknown(%d)", int(l))
	}
}

// PresentMode selects how presented images are queued for display.
type PresentMode uint32

// Present modes.
const (
	// PresentModeFifo waits for vertical blank. Always supported.
	PresentModeFifo PresentMode = iota

	// PresentModeMailbox replaces the queued image without tearing.
	PresentModeMailbox

	// PresentModeImmediate presents without waiting and may tear.
	PresentModeImmediate
)

// String returns the string representation of PresentMode.
func (m PresentMode) String() string {
	switch m {
	case PresentModeFifo:
		return "Fifo"
	case PresentModeMailbox:
		return "Mailbox"
	case PresentModeImmediate:
		return "Immediate"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// MemoryProperty is a bitmask describing a memory type.
type MemoryProperty uint32

// Memory property flags.
const (
	MemoryPropertyDeviceLocal  MemoryProperty = 1 << 0
	MemoryPropertyHostVisible  MemoryProperty = 1 << 1
	MemoryPropertyHostCoherent MemoryProperty = 1 << 2
	MemoryPropertyHostCached   MemoryProperty = 1 << 3
)

// Contains reports whether all bits of other are set in p.
func (p MemoryProperty) Contains(other MemoryProperty) bool { return p&other == other }

// MemoryType is one memory type exposed by the device.
type MemoryType struct {
	Properties MemoryProperty
	HeapIndex  uint32
}

// MemoryHeap is one memory heap exposed by the device.
type MemoryHeap struct {
	Size        uint64
	DeviceLocal bool
}

// MemoryProperties lists the memory types and heaps of a device.
type MemoryProperties struct {
	Types []MemoryType
	Heaps []MemoryHeap
}

// MemoryRequirements describes what an object needs from its backing memory.
type MemoryRequirements struct {
	// Size is the number of bytes required.
	Size uint64

	// Alignment is the required offset alignment. Always a power of two.
	Alignment uint64

	// TypeBits has bit i set when memory type i is acceptable.
	TypeBits uint32
}

// Extent3D is a three-dimensional size.
type Extent3D struct {
	Width              uint32
	Height             uint32
	DepthOrArrayLayers uint32
}

// Origin3D is a three-dimensional texel offset.
type Origin3D struct {
	X, Y, Z uint32
}

// BufferCopy describes one buffer to buffer copy region.
type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

// BufferTextureCopy describes one buffer/texture copy region.
type BufferTextureCopy struct {
	// BufferOffset is the byte offset of the first texel in the buffer.
	BufferOffset uint64

	// BytesPerRow is the buffer row pitch. Zero means tightly packed.
	BytesPerRow uint32

	MipLevel   uint32
	ArrayLayer uint32
	Origin     Origin3D
	Size       Extent3D
}

// TextureCopy describes one texture to texture copy region.
type TextureCopy struct {
	SrcMipLevel   uint32
	SrcArrayLayer uint32
	SrcOrigin     Origin3D
	DstMipLevel   uint32
	DstArrayLayer uint32
	DstOrigin     Origin3D
	Size          Extent3D
}
