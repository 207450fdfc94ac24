package gfxcore

import (
	"github.com/gogpu/gfxcore/internal/handle"
	"github.com/gogpu/gfxcore/internal/resource"
)

// Handle is an opaque, generation-checked reference to a resource owned by
// a Context. The zero value is InvalidHandle.
type Handle = handle.Handle

// InvalidHandle never names a resource.
const InvalidHandle = handle.Invalid

// Resource types.
type (
	Resource          = resource.Resource
	Buffer            = resource.Buffer
	Texture           = resource.Texture
	BufferDescriptor  = resource.BufferDescriptor
	TextureDescriptor = resource.TextureDescriptor
	Region            = resource.Region
	Usage             = resource.Usage
	MapMode           = resource.MapMode
	ResourceKind      = resource.Kind
)

// Usages.
const (
	UsageDefault = resource.UsageDefault
	UsageStatic  = resource.UsageStatic
	UsageDynamic = resource.UsageDynamic
)

// Map modes.
const (
	MapRead         = resource.MapRead
	MapWrite        = resource.MapWrite
	MapWriteDiscard = resource.MapWriteDiscard
)

// Resource kinds.
const (
	ResourceBuffer  = resource.KindBuffer
	ResourceTexture = resource.KindTexture
)
