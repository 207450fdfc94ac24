// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package frame

import (
	"fmt"
	"slices"

	"github.com/gogpu/gfxcore/gpucore"
)

// Swapchain is the presentable image set owned by a Pacer.
type Swapchain struct {
	sc     gpucore.Swapchain
	images []gpucore.Texture
	views  []gpucore.TextureView
}

// Native returns the API swapchain.
func (s *Swapchain) Native() gpucore.Swapchain { return s.sc }

// Images returns the presentable images.
func (s *Swapchain) Images() []gpucore.Texture { return s.images }

// Views returns one view per image.
func (s *Swapchain) Views() []gpucore.TextureView { return s.views }

// Format returns the image format.
func (s *Swapchain) Format() gpucore.TextureFormat { return s.sc.Format() }

// Extent returns the image size.
func (s *Swapchain) Extent() gpucore.Extent3D { return s.sc.Extent() }

// PresentMode returns the present mode in use.
func (s *Swapchain) PresentMode() gpucore.PresentMode { return s.sc.PresentMode() }

// ChoosePresentMode picks FIFO when vsync is on, otherwise mailbox when
// supported and immediate after that.
func ChoosePresentMode(supported []gpucore.PresentMode, vsync bool) gpucore.PresentMode {
	if vsync {
		return gpucore.PresentModeFifo
	}
	for _, m := range []gpucore.PresentMode{gpucore.PresentModeMailbox, gpucore.PresentModeImmediate} {
		if slices.Contains(supported, m) {
			return m
		}
	}
	return gpucore.PresentModeFifo
}

func createSwapchain(dev gpucore.Device, desc *gpucore.SwapchainDescriptor) (*Swapchain, error) {
	sc, err := dev.CreateSwapchain(desc)
	if err != nil {
		return nil, fmt.Errorf("frame: create swapchain %dx%d: %w", desc.Width, desc.Height, err)
	}
	s := &Swapchain{sc: sc, images: sc.Images()}
	for i, img := range s.images {
		v, err := dev.CreateTextureView(img, &gpucore.TextureViewDescriptor{
			Label:         fmt.Sprintf("swapchain view[%d]", i),
			Dimension:     gpucore.TextureDimension2D,
			MipLevelCount: 1,
			ArrayLayers:   1,
		})
		if err != nil {
			s.destroy(dev)
			return nil, fmt.Errorf("frame: swapchain view %d: %w", i, err)
		}
		s.views = append(s.views, v)
	}
	return s, nil
}

// retire returns the records that release the swapchain's views and then
// the swapchain itself.
func (s *Swapchain) retire() []PendingDestruction {
	out := make([]PendingDestruction, 0, len(s.views)+1)
	for i, v := range s.views {
		out = append(out, PendingDestruction{Kind: KindTextureView, Label: fmt.Sprintf("swapchain view[%d]", i), View: v})
	}
	return append(out, PendingDestruction{Kind: KindSwapchain, Label: "swapchain", Swapchain: s.sc})
}

func (s *Swapchain) destroy(dev gpucore.Device) {
	for _, v := range s.views {
		dev.DestroyTextureView(v)
	}
	dev.DestroySwapchain(s.sc)
	s.views = nil
}
