//go:build !nogpu

package vulkan

import (
	"fmt"
	"strings"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/gfxcore/gpucore"
)

// resultError maps a Vulkan result to the gpucore error taxonomy.
func resultError(op string, res vk.Result) error {
	switch res {
	case vk.Success:
		return nil
	case vk.ErrorOutOfHostMemory, vk.ErrorOutOfDeviceMemory:
		return fmt.Errorf("%s: %w", op, gpucore.ErrOutOfMemory)
	case vk.ErrorDeviceLost:
		return fmt.Errorf("%s: %w", op, gpucore.ErrDeviceLost)
	case vk.ErrorOutOfDate:
		return fmt.Errorf("%s: %w", op, gpucore.ErrOutOfDate)
	case vk.Suboptimal:
		return fmt.Errorf("%s: %w", op, gpucore.ErrSuboptimal)
	case vk.Timeout, vk.NotReady:
		return fmt.Errorf("%s: %w", op, gpucore.ErrTimeout)
	default:
		return fmt.Errorf("%s: %w", op, vk.Error(res))
	}
}

// safeStrings NUL-terminates names passed to the driver.
func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		if !strings.HasSuffix(s, "\x00") {
			s += "\x00"
		}
		out[i] = s
	}
	return out
}

func bufferUsage(usage gpucore.BufferUsage) vk.BufferUsageFlags {
	flags := vk.BufferUsageFlagBits(0)
	if usage.Intersects(gpucore.BufferUsageCopySrc | gpucore.BufferUsageMapWrite) {
		flags |= vk.BufferUsageTransferSrcBit
	}
	if usage.Intersects(gpucore.BufferUsageCopyDst | gpucore.BufferUsageMapRead) {
		flags |= vk.BufferUsageTransferDstBit
	}
	if usage.Intersects(gpucore.BufferUsageIndex) {
		flags |= vk.BufferUsageIndexBufferBit
	}
	if usage.Intersects(gpucore.BufferUsageVertex) {
		flags |= vk.BufferUsageVertexBufferBit
	}
	if usage.Intersects(gpucore.BufferUsageUniform) {
		flags |= vk.BufferUsageUniformBufferBit
	}
	if usage.Intersects(gpucore.BufferUsageStorage) {
		flags |= vk.BufferUsageStorageBufferBit
	}
	if usage.Intersects(gpucore.BufferUsageIndirect) {
		flags |= vk.BufferUsageIndirectBufferBit
	}
	return vk.BufferUsageFlags(flags)
}

func imageUsage(usage gpucore.TextureUsage) vk.ImageUsageFlags {
	flags := vk.ImageUsageFlagBits(0)
	if usage.Contains(gpucore.TextureUsageCopySrc) {
		flags |= vk.ImageUsageTransferSrcBit
	}
	if usage.Contains(gpucore.TextureUsageCopyDst) {
		flags |= vk.ImageUsageTransferDstBit
	}
	if usage.Contains(gpucore.TextureUsageTextureBinding) {
		flags |= vk.ImageUsageSampledBit
	}
	if usage.Contains(gpucore.TextureUsageStorageBinding) {
		flags |= vk.ImageUsageStorageBit
	}
	if usage.Contains(gpucore.TextureUsageRenderAttachment) {
		flags |= vk.ImageUsageColorAttachmentBit
	}
	if usage.Contains(gpucore.TextureUsageDepthStencil) {
		flags |= vk.ImageUsageDepthStencilAttachmentBit
	}
	return vk.ImageUsageFlags(flags)
}

// textureFormat reports false for formats without a Vulkan equivalent.
func textureFormat(f gpucore.TextureFormat) (vk.Format, bool) {
	switch f {
	case gpucore.TextureFormatRGBA8Unorm:
		return vk.FormatR8g8b8a8Unorm, true
	case gpucore.TextureFormatRGBA8UnormSRGB:
		return vk.FormatR8g8b8a8Srgb, true
	case gpucore.TextureFormatBGRA8Unorm:
		return vk.FormatB8g8r8a8Unorm, true
	case gpucore.TextureFormatBGRA8UnormSRGB:
		return vk.FormatB8g8r8a8Srgb, true
	case gpucore.TextureFormatR8Unorm:
		return vk.FormatR8Unorm, true
	case gpucore.TextureFormatRG8Unorm:
		return vk.FormatR8g8Unorm, true
	case gpucore.TextureFormatR32Float:
		return vk.FormatR32Sfloat, true
	case gpucore.TextureFormatRGBA16Float:
		return vk.FormatR16g16b16a16Sfloat, true
	case gpucore.TextureFormatRGBA32Float:
		return vk.FormatR32g32b32a32Sfloat, true
	case gpucore.TextureFormatDepth32Float:
		return vk.FormatD32Sfloat, true
	case gpucore.TextureFormatDepth24PlusStencil8:
		return vk.FormatD24UnormS8Uint, true
	default:
		return vk.FormatUndefined, false
	}
}

// formatFromVulkan is the inverse of textureFormat for swapchain formats.
func formatFromVulkan(f vk.Format) gpucore.TextureFormat {
	switch f {
	case vk.FormatR8g8b8a8Unorm:
		return gpucore.TextureFormatRGBA8Unorm
	case vk.FormatR8g8b8a8Srgb:
		return gpucore.TextureFormatRGBA8UnormSRGB
	case vk.FormatB8g8r8a8Unorm:
		return gpucore.TextureFormatBGRA8Unorm
	case vk.FormatB8g8r8a8Srgb:
		return gpucore.TextureFormatBGRA8UnormSRGB
	case vk.FormatR16g16b16a16Sfloat:
		return gpucore.TextureFormatRGBA16Float
	default:
		return gpucore.TextureFormatUndefined
	}
}

func aspectMask(f gpucore.TextureFormat) vk.ImageAspectFlags {
	switch f {
	case gpucore.TextureFormatDepth32Float:
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	case gpucore.TextureFormatDepth24PlusStencil8:
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit)
	default:
		return vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
}

// copyAspect selects the single aspect a copy addresses.
func copyAspect(f gpucore.TextureFormat) vk.ImageAspectFlags {
	if f.IsDepth() {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

func imageType(dim gpucore.TextureDimension) vk.ImageType {
	switch dim {
	case gpucore.TextureDimension1D:
		return vk.ImageType1d
	case gpucore.TextureDimension3D:
		return vk.ImageType3d
	default:
		return vk.ImageType2d
	}
}

func viewType(dim gpucore.TextureDimension, layers uint32) vk.ImageViewType {
	switch dim {
	case gpucore.TextureDimension1D:
		return vk.ImageViewType1d
	case gpucore.TextureDimension3D:
		return vk.ImageViewType3d
	case gpucore.TextureDimensionCube:
		return vk.ImageViewTypeCube
	default:
		if layers > 1 {
			return vk.ImageViewType2dArray
		}
		return vk.ImageViewType2d
	}
}

func sampleCount(n uint32) vk.SampleCountFlagBits {
	switch n {
	case 2:
		return vk.SampleCount2Bit
	case 4:
		return vk.SampleCount4Bit
	case 8:
		return vk.SampleCount8Bit
	default:
		return vk.SampleCount1Bit
	}
}

// layoutState is what a barrier needs to know about one side of a
// transition.
type layoutState struct {
	layout vk.ImageLayout
	access vk.AccessFlags
	stage  vk.PipelineStageFlags
}

func layoutInfo(l gpucore.TextureLayout, f gpucore.TextureFormat) layoutState {
	switch l {
	case gpucore.TextureLayoutTransferSrc:
		return layoutState{
			vk.ImageLayoutTransferSrcOptimal,
			vk.AccessFlags(vk.AccessTransferReadBit),
			vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		}
	case gpucore.TextureLayoutTransferDst:
		return layoutState{
			vk.ImageLayoutTransferDstOptimal,
			vk.AccessFlags(vk.AccessTransferWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		}
	case gpucore.TextureLayoutShaderRead:
		return layoutState{
			vk.ImageLayoutShaderReadOnlyOptimal,
			vk.AccessFlags(vk.AccessShaderReadBit),
			vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
		}
	case gpucore.TextureLayoutColorAttachment:
		if f.IsDepth() {
			return layoutState{
				vk.ImageLayoutDepthStencilAttachmentOptimal,
				vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
				vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit),
			}
		}
		return layoutState{
			vk.ImageLayoutColorAttachmentOptimal,
			vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		}
	case gpucore.TextureLayoutPresent:
		return layoutState{
			vk.ImageLayoutPresentSrc,
			0,
			vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
		}
	default:
		return layoutState{
			vk.ImageLayoutUndefined,
			0,
			vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		}
	}
}

func presentMode(m gpucore.PresentMode) vk.PresentMode {
	switch m {
	case gpucore.PresentModeMailbox:
		return vk.PresentModeMailbox
	case gpucore.PresentModeImmediate:
		return vk.PresentModeImmediate
	default:
		return vk.PresentModeFifo
	}
}

// presentModeFromVulkan reports false for modes gpucore does not expose.
func presentModeFromVulkan(m vk.PresentMode) (gpucore.PresentMode, bool) {
	switch m {
	case vk.PresentModeFifo:
		return gpucore.PresentModeFifo, true
	case vk.PresentModeMailbox:
		return gpucore.PresentModeMailbox, true
	case vk.PresentModeImmediate:
		return gpucore.PresentModeImmediate, true
	default:
		return 0, false
	}
}

func memoryProperty(flags vk.MemoryPropertyFlags) gpucore.MemoryProperty {
	var p gpucore.MemoryProperty
	if flags&vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit) != 0 {
		p |= gpucore.MemoryPropertyDeviceLocal
	}
	if flags&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) != 0 {
		p |= gpucore.MemoryPropertyHostVisible
	}
	if flags&vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit) != 0 {
		p |= gpucore.MemoryPropertyHostCoherent
	}
	if flags&vk.MemoryPropertyFlags(vk.MemoryPropertyHostCachedBit) != 0 {
		p |= gpucore.MemoryPropertyHostCached
	}
	return p
}

func clamp(v, lo, hi uint32) uint32 {
	return max(lo, min(v, hi))
}
