// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package loader

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"

	// Registered decoders.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var errEmptyImage = errors.New("loader: image has no pixels")

// ErrTooLarge is returned for images whose header declares more pixels than
// Config.MaxPixels allows.
var ErrTooLarge = errors.New("loader: image too large")

// decoded is an image ready for upload.
type decoded struct {
	img    *image.NRGBA
	format string
}

// decode reads any registered image format and converts it to tightly
// packed non-premultiplied RGBA. Images larger than maxDim on either side
// are scaled down preserving aspect; maxDim 0 disables scaling. The header
// is checked against maxPixels before any pixel data is decoded.
func decode(r io.Reader, maxDim uint32, maxPixels int64) (decoded, error) {
	var head bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(r, &head))
	if err != nil {
		return decoded{}, fmt.Errorf("decode: %w", err)
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > maxPixels {
		return decoded{}, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, maxPixels)
	}

	src, format, err := image.Decode(io.MultiReader(&head, r))
	if err != nil {
		return decoded{}, fmt.Errorf("decode: %w", err)
	}
	b := src.Bounds()
	if b.Empty() {
		return decoded{}, errEmptyImage
	}

	w, h := fit(b.Dx(), b.Dy(), maxDim)
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		xdraw.Draw(dst, dst.Bounds(), src, b.Min, xdraw.Src)
	} else {
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	}
	return decoded{img: dst, format: format}, nil
}

// fit returns w and h scaled so neither exceeds maxDim.
func fit(w, h int, maxDim uint32) (int, int) {
	limit := int(maxDim)
	if limit <= 0 || (w <= limit && h <= limit) {
		return w, h
	}
	if w >= h {
		return limit, max(1, h*limit/w)
	}
	return max(1, w*limit/h), limit
}
