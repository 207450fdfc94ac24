// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package fakegpu

// Surface is a fake presentation surface with a settable extent.
type Surface struct {
	Width, Height uint32
}

// NewSurface returns a surface of the given size.
func NewSurface(width, height uint32) *Surface {
	return &Surface{Width: width, Height: height}
}

// NativeHandle implements gpucore.NativeObject.
func (s *Surface) NativeHandle() uintptr { return 0x5f }

// Extent implements gpucore.Surface.
func (s *Surface) Extent() (width, height uint32) { return s.Width, s.Height }

// Resize changes the extent. Swapchains created for the old extent report
// out of date on their next acquire.
func (s *Surface) Resize(width, height uint32) {
	s.Width, s.Height = width, height
}
