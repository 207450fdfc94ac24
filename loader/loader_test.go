// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package loader

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/gogpu/gfxcore"
	"github.com/gogpu/gfxcore/gpucore"
)

// fakeUploader records textures in memory.
type fakeUploader struct {
	mu        sync.Mutex
	next      gfxcore.Handle
	textures  map[gfxcore.Handle]gfxcore.TextureDescriptor
	data      map[gfxcore.Handle][]byte
	destroyed []gfxcore.Handle

	createErr error
	updateErr error
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{
		next:     1,
		textures: make(map[gfxcore.Handle]gfxcore.TextureDescriptor),
		data:     make(map[gfxcore.Handle][]byte),
	}
}

func (f *fakeUploader) CreateTexture(desc gfxcore.TextureDescriptor) (gfxcore.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return gfxcore.InvalidHandle, f.createErr
	}
	h := f.next
	f.next++
	f.textures[h] = desc
	return h, nil
}

func (f *fakeUploader) UpdateTexture(h gfxcore.Handle, _ gfxcore.Region, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.data[h] = append([]byte(nil), data...)
	return nil
}

func (f *fakeUploader) Destroy(h gfxcore.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.textures, h)
	delete(f.data, h)
	f.destroyed = append(f.destroyed, h)
	return nil
}

func testImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 16), G: uint8(y * 16), B: 0x80, A: 0xff})
		}
	}
	return img
}

func encoded(t *testing.T, encode func(io.Writer, image.Image) error, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func newLoader(t *testing.T, up Uploader, cfg Config) *Loader {
	t.Helper()
	l, err := New(up, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(l.Close)
	return l
}

func settle(t *testing.T, l *Loader) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	n, err := l.Flush(ctx)
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	return n
}

func TestLoadFormats(t *testing.T) {
	src := testImage(8, 4)
	tests := []struct {
		name   string
		encode func(io.Writer, image.Image) error
	}{
		{"png", png.Encode},
		{"bmp", bmp.Encode},
		{"tiff", func(w io.Writer, m image.Image) error { return tiff.Encode(w, m, nil) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := newFakeUploader()
			l := newLoader(t, up, Config{Workers: 2})

			req := l.Load(tt.name, bytes.NewReader(encoded(t, tt.encode, src)))
			if n := settle(t, l); n != 1 {
				t.Fatalf("Flush() = %d, want 1", n)
			}
			h, err := req.Result()
			if err != nil {
				t.Fatalf("Result() error = %v", err)
			}
			desc := up.textures[h]
			if desc.Width != 8 || desc.Height != 4 {
				t.Errorf("texture size = %dx%d, want 8x4", desc.Width, desc.Height)
			}
			if desc.Format != gpucore.TextureFormatRGBA8UnormSRGB {
				t.Errorf("texture format = %s, want RGBA8UnormSRGB", desc.Format)
			}
			if desc.Label != tt.name {
				t.Errorf("texture label = %q, want %q", desc.Label, tt.name)
			}
			if !bytes.Equal(up.data[h], src.Pix) {
				t.Errorf("uploaded pixels differ from source")
			}
		})
	}
}

func TestLoadDeduplicates(t *testing.T) {
	up := newFakeUploader()
	l := newLoader(t, up, Config{})

	data := encoded(t, png.Encode, testImage(2, 2))
	a := l.Load("tile", bytes.NewReader(data))
	b := l.Load("tile", strings.NewReader("never read"))
	if a != b {
		t.Fatal("Load() with the same name returned different requests")
	}
	if got, ok := l.Lookup("tile"); !ok || got != a {
		t.Errorf("Lookup(tile) = %v, %v, want the first request", got, ok)
	}
	if n := settle(t, l); n != 1 {
		t.Errorf("Flush() = %d, want 1", n)
	}
	if len(up.textures) != 1 {
		t.Errorf("textures created = %d, want 1", len(up.textures))
	}

	l.Forget("tile")
	if c := l.Load("tile", bytes.NewReader(data)); c == a {
		t.Error("Load() after Forget returned the old request")
	}
}

func TestLoadDecodeError(t *testing.T) {
	up := newFakeUploader()
	l := newLoader(t, up, Config{})

	req := l.Load("garbage", strings.NewReader("not an image"))
	if _, err := req.Result(); !errors.Is(err, ErrPending) {
		t.Errorf("Result() before Flush error = %v, want ErrPending", err)
	}
	if n := settle(t, l); n != 0 {
		t.Errorf("Flush() = %d, want 0", n)
	}
	select {
	case <-req.Done():
	default:
		t.Fatal("Done() not closed after Flush")
	}
	if _, err := req.Result(); !errors.Is(err, image.ErrFormat) {
		t.Errorf("Result() error = %v, want image.ErrFormat", err)
	}
	if len(up.textures) != 0 {
		t.Errorf("textures created = %d, want 0", len(up.textures))
	}
}

func TestLoadUploadError(t *testing.T) {
	errUpload := errors.New("upload refused")
	up := newFakeUploader()
	up.updateErr = errUpload
	l := newLoader(t, up, Config{})

	req := l.Load("img", bytes.NewReader(encoded(t, png.Encode, testImage(2, 2))))
	settle(t, l)

	if _, err := req.Result(); !errors.Is(err, errUpload) {
		t.Errorf("Result() error = %v, want %v", err, errUpload)
	}
	if len(up.destroyed) != 1 {
		t.Errorf("destroyed = %v, want the half-created texture", up.destroyed)
	}
}

func TestLoadMaxDimension(t *testing.T) {
	up := newFakeUploader()
	l := newLoader(t, up, Config{MaxDimension: 16})

	req := l.Load("big", bytes.NewReader(encoded(t, png.Encode, testImage(64, 32))))
	settle(t, l)

	h, err := req.Result()
	if err != nil {
		t.Fatalf("Result() error = %v", err)
	}
	desc := up.textures[h]
	if desc.Width != 16 || desc.Height != 8 {
		t.Errorf("texture size = %dx%d, want 16x8", desc.Width, desc.Height)
	}
	if got := len(up.data[h]); got != 16*8*4 {
		t.Errorf("uploaded %d bytes, want %d", got, 16*8*4)
	}
}

func TestLoadMaxPixels(t *testing.T) {
	tests := []struct {
		name      string
		maxPixels int64
		wantErr   error
	}{
		{"under limit", 64 * 32, nil},
		{"over limit", 64*32 - 1, ErrTooLarge},
		{"default", 0, nil},
	}
	data := encoded(t, png.Encode, testImage(64, 32))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := newFakeUploader()
			l := newLoader(t, up, Config{MaxPixels: tt.maxPixels})

			req := l.Load("img", bytes.NewReader(data))
			settle(t, l)

			if _, err := req.Result(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Result() error = %v, want %v", err, tt.wantErr)
			}
			wantTextures := 1
			if tt.wantErr != nil {
				wantTextures = 0
			}
			if len(up.textures) != wantTextures {
				t.Errorf("textures created = %d, want %d", len(up.textures), wantTextures)
			}
		})
	}
}

func TestLoadManyConcurrently(t *testing.T) {
	up := newFakeUploader()
	l := newLoader(t, up, Config{Workers: 4, QueueSize: 2})

	data := encoded(t, png.Encode, testImage(4, 4))
	names := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	var wg sync.WaitGroup
	reqs := make([]*Request, len(names))
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reqs[i] = l.Load(name, bytes.NewReader(data))
		}()
	}
	wg.Wait()

	if n := settle(t, l); n != len(names) {
		t.Errorf("Flush() = %d, want %d", n, len(names))
	}
	if p := l.Pending(); p != 0 {
		t.Errorf("Pending() = %d, want 0", p)
	}
	for i, req := range reqs {
		if _, err := req.Result(); err != nil {
			t.Errorf("%s: Result() error = %v", names[i], err)
		}
	}
}

func TestFlushCanceled(t *testing.T) {
	up := newFakeUploader()
	l := newLoader(t, up, Config{})

	req := l.Load("img", bytes.NewReader(encoded(t, png.Encode, testImage(2, 2))))
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if n, err := l.Flush(ctx); n != 0 || !errors.Is(err, context.Canceled) {
		t.Errorf("Flush(canceled) = %d, %v, want 0, context.Canceled", n, err)
	}
	if p := l.Pending(); p != 1 {
		t.Errorf("Pending() = %d, want 1", p)
	}
	if n := settle(t, l); n != 1 {
		t.Errorf("Flush() = %d, want 1", n)
	}
	if _, err := req.Result(); err != nil {
		t.Errorf("Result() error = %v", err)
	}
}

func TestClose(t *testing.T) {
	up := newFakeUploader()
	l, err := New(up, Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	unflushed := l.Load("img", bytes.NewReader(encoded(t, png.Encode, testImage(2, 2))))
	l.Close()
	l.Close()

	if _, err := unflushed.Result(); !errors.Is(err, ErrClosed) {
		t.Errorf("unflushed Result() error = %v, want ErrClosed", err)
	}
	late := l.Load("late", strings.NewReader(""))
	if _, err := late.Result(); !errors.Is(err, ErrClosed) {
		t.Errorf("late Result() error = %v, want ErrClosed", err)
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(nil, Config{}); !errors.Is(err, gpucore.ErrInvalidArgs) {
		t.Errorf("New(nil) error = %v, want ErrInvalidArgs", err)
	}
	_, err := New(newFakeUploader(), Config{Format: gpucore.TextureFormatDepth32Float})
	if !errors.Is(err, gpucore.ErrInvalidArgs) {
		t.Errorf("New(depth format) error = %v, want ErrInvalidArgs", err)
	}
}

func TestFit(t *testing.T) {
	tests := []struct {
		w, h  int
		max   uint32
		wantW int
		wantH int
	}{
		{100, 50, 0, 100, 50},
		{100, 50, 200, 100, 50},
		{100, 50, 100, 100, 50},
		{200, 100, 100, 100, 50},
		{100, 200, 50, 25, 50},
		{1000, 1, 10, 10, 1},
	}
	for _, tt := range tests {
		w, h := fit(tt.w, tt.h, tt.max)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("fit(%d, %d, %d) = %d, %d, want %d, %d", tt.w, tt.h, tt.max, w, h, tt.wantW, tt.wantH)
		}
	}
}
