//go:build !nogpu

package native

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfxcore/gpucore"
)

// === Type Conversion Helpers ===

// convertBufferUsage converts gpucore.BufferUsage to gputypes.BufferUsage.
func convertBufferUsage(usage gpucore.BufferUsage) gputypes.BufferUsage {
	var result gputypes.BufferUsage

	if usage&gpucore.BufferUsageMapRead != 0 {
		result |= gputypes.BufferUsageMapRead
	}
	if usage&gpucore.BufferUsageMapWrite != 0 {
		result |= gputypes.BufferUsageMapWrite
	}
	if usage&gpucore.BufferUsageCopySrc != 0 {
		result |= gputypes.BufferUsageCopySrc
	}
	if usage&gpucore.BufferUsageCopyDst != 0 {
		result |= gputypes.BufferUsageCopyDst
	}
	if usage&gpucore.BufferUsageIndex != 0 {
		result |= gputypes.BufferUsageIndex
	}
	if usage&gpucore.BufferUsageVertex != 0 {
		result |= gputypes.BufferUsageVertex
	}
	if usage&gpucore.BufferUsageUniform != 0 {
		result |= gputypes.BufferUsageUniform
	}
	if usage&gpucore.BufferUsageStorage != 0 {
		result |= gputypes.BufferUsageStorage
	}
	if usage&gpucore.BufferUsageIndirect != 0 {
		result |= gputypes.BufferUsageIndirect
	}

	return result
}

// convertTextureUsage converts gpucore.TextureUsage to gputypes.TextureUsage.
// Depth/stencil targets are render attachments in WebGPU terms.
func convertTextureUsage(usage gpucore.TextureUsage) gputypes.TextureUsage {
	var result gputypes.TextureUsage

	if usage&gpucore.TextureUsageCopySrc != 0 {
		result |= gputypes.TextureUsageCopySrc
	}
	if usage&gpucore.TextureUsageCopyDst != 0 {
		result |= gputypes.TextureUsageCopyDst
	}
	if usage&gpucore.TextureUsageTextureBinding != 0 {
		result |= gputypes.TextureUsageTextureBinding
	}
	if usage&gpucore.TextureUsageStorageBinding != 0 {
		result |= gputypes.TextureUsageStorageBinding
	}
	if usage&(gpucore.TextureUsageRenderAttachment|gpucore.TextureUsageDepthStencil) != 0 {
		result |= gputypes.TextureUsageRenderAttachment
	}

	return result
}

// convertTextureFormat converts gpucore.TextureFormat to gputypes.TextureFormat.
// It reports false for formats the HAL cannot create.
func convertTextureFormat(format gpucore.TextureFormat) (gputypes.TextureFormat, bool) {
	switch format {
	case gpucore.TextureFormatRGBA8Unorm:
		return gputypes.TextureFormatRGBA8Unorm, true
	case gpucore.TextureFormatRGBA8UnormSRGB:
		return gputypes.TextureFormatRGBA8UnormSrgb, true
	case gpucore.TextureFormatBGRA8Unorm:
		return gputypes.TextureFormatBGRA8Unorm, true
	case gpucore.TextureFormatBGRA8UnormSRGB:
		return gputypes.TextureFormatBGRA8UnormSrgb, true
	case gpucore.TextureFormatR8Unorm:
		return gputypes.TextureFormatR8Unorm, true
	case gpucore.TextureFormatRG8Unorm:
		return gputypes.TextureFormatRG8Unorm, true
	case gpucore.TextureFormatR32Float:
		return gputypes.TextureFormatR32Float, true
	case gpucore.TextureFormatRGBA16Float:
		return gputypes.TextureFormatRGBA16Float, true
	case gpucore.TextureFormatRGBA32Float:
		return gputypes.TextureFormatRGBA32Float, true
	case gpucore.TextureFormatDepth32Float:
		return gputypes.TextureFormatDepth32Float, true
	case gpucore.TextureFormatDepth24PlusStencil8:
		return gputypes.TextureFormatDepth24PlusStencil8, true
	default:
		return gputypes.TextureFormatUndefined, false
	}
}

// convertTextureDimension converts gpucore.TextureDimension to
// gputypes.TextureDimension. Cube maps are 2D arrays of six layers.
func convertTextureDimension(dim gpucore.TextureDimension) gputypes.TextureDimension {
	switch dim {
	case gpucore.TextureDimension1D:
		return gputypes.TextureDimension1D
	case gpucore.TextureDimension3D:
		return gputypes.TextureDimension3D
	default:
		return gputypes.TextureDimension2D
	}
}

// layoutUsage maps a texture layout to the usage the HAL tracks for
// barriers. Undefined maps to no usage.
func layoutUsage(layout gpucore.TextureLayout) gputypes.TextureUsage {
	switch layout {
	case gpucore.TextureLayoutTransferSrc:
		return gputypes.TextureUsageCopySrc
	case gpucore.TextureLayoutTransferDst:
		return gputypes.TextureUsageCopyDst
	case gpucore.TextureLayoutShaderRead:
		return gputypes.TextureUsageTextureBinding
	case gpucore.TextureLayoutColorAttachment, gpucore.TextureLayoutPresent:
		return gputypes.TextureUsageRenderAttachment
	default:
		return 0
	}
}
