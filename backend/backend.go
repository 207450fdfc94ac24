package backend

import (
	"errors"
	"log/slog"

	"github.com/gogpu/gfxcore/gpucore"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not
	// registered or cannot open a device on this machine.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNoSurface is returned when presentation is requested from a device
	// opened without a window.
	ErrNoSurface = errors.New("backend: device has no surface")
)

// Window is implemented by windowing layers that can host a presentation
// surface. The surface/window package provides a GLFW implementation.
type Window interface {
	// RequiredInstanceExtensions lists the instance extensions the window
	// system needs for presentation.
	RequiredInstanceExtensions() []string

	// CreateSurface creates a presentation surface for an API instance
	// (a vk.Instance for Vulkan) and returns the native surface handle.
	CreateSurface(instance any) (uintptr, error)

	// Extent returns the current drawable size in pixels.
	Extent() (width, height uint32)
}

// Options configures how a backend opens its device.
type Options struct {
	// AppName is reported to the driver where the API allows it.
	AppName string

	// Validation enables API validation layers when available.
	Validation bool

	// Window, when non-nil, requests a device able to present to it.
	// Backends without presentation support return ErrBackendNotAvailable.
	Window Window

	// PreferIntegrated selects an integrated GPU over a discrete one.
	PreferIntegrated bool

	// Logger receives backend diagnostics. Nil discards them.
	Logger *slog.Logger
}

// Log returns the configured logger or one that discards.
func (o Options) Log() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// Presenter is implemented by devices opened with a Window. Surface returns
// the surface to pass to gfxcore.NewContext.
type Presenter interface {
	Surface() gpucore.Surface
}

// SurfaceOf returns the presentation surface of dev, or ErrNoSurface when dev
// was opened offscreen.
func SurfaceOf(dev gpucore.Device) (gpucore.Surface, error) {
	p, ok := dev.(Presenter)
	if !ok {
		return nil, ErrNoSurface
	}
	s := p.Surface()
	if s == nil {
		return nil, ErrNoSurface
	}
	return s, nil
}
