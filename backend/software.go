package backend

import (
	"github.com/gogpu/gfxcore/gpucore"
	"github.com/gogpu/gfxcore/internal/fakegpu"
)

// SoftwareDevice is an in-memory device that runs submitted copies on the
// CPU when their fence is waited on. It needs no driver, so it is always
// available as the last fallback. Presentation goes nowhere; swapchain
// images are plain host memory.
type SoftwareDevice struct {
	*fakegpu.Device
	surface gpucore.Surface
}

// init registers the software backend on package import.
func init() {
	Register(BackendSoftware, func(opts Options) (gpucore.Device, error) {
		return NewSoftwareDevice(opts), nil
	})
}

// NewSoftwareDevice creates a software device. When opts.Window is set, the
// device exposes a surface that follows the window's drawable size.
func NewSoftwareDevice(opts Options) *SoftwareDevice {
	d := &SoftwareDevice{
		Device: fakegpu.New(fakegpu.Options{
			PresentModes: []gpucore.PresentMode{
				gpucore.PresentModeFifo,
				gpucore.PresentModeMailbox,
				gpucore.PresentModeImmediate,
			},
		}),
	}
	if opts.Window != nil {
		d.surface = windowSurface{opts.Window}
	}
	opts.Log().Debug("backend: software device created", "presentable", opts.Window != nil)
	return d
}

// Info implements gpucore.Device.
func (d *SoftwareDevice) Info() gpucore.DeviceInfo {
	return gpucore.DeviceInfo{Name: "software", Backend: BackendSoftware, Vendor: "gogpu"}
}

// Surface implements Presenter. It is nil for offscreen devices.
func (d *SoftwareDevice) Surface() gpucore.Surface {
	return d.surface
}

type windowSurface struct {
	w Window
}

func (s windowSurface) NativeHandle() uintptr { return 0 }

func (s windowSurface) Extent() (width, height uint32) { return s.w.Extent() }
