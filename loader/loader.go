// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package loader decodes images on background workers and uploads them as
// textures on the render thread.
//
// Decoding is CPU work and runs on a worker pool. Uploading touches the
// device and must happen on the goroutine that records frames, so decoded
// images wait until the render loop calls Flush:
//
//	l, _ := loader.New(gfx, loader.Config{})
//	defer l.Close()
//
//	req := l.Load("grass", file)
//	for running {
//		gfx.BeginFrame()
//		l.Flush(context.Background())
//		if h, err := req.Result(); err == nil { ... }
//		gfx.Present()
//	}
//
// PNG, JPEG, GIF, BMP, TIFF and WebP are supported.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"

	"github.com/gogpu/gfxcore"
	"github.com/gogpu/gfxcore/gpucore"
)

// ErrClosed is returned for requests made after Close or left unflushed
// when Close was called.
var ErrClosed = errors.New("loader: closed")

// Default configuration values.
const (
	DefaultQueueSize   = 64
	DefaultIdleTimeout = time.Second
	DefaultMaxPixels   = 1 << 26
)

// Uploader creates and fills textures. *gfxcore.Context implements it.
type Uploader interface {
	CreateTexture(desc gfxcore.TextureDescriptor) (gfxcore.Handle, error)
	UpdateTexture(h gfxcore.Handle, region gfxcore.Region, data []byte) error
	Destroy(h gfxcore.Handle) error
}

var _ Uploader = (*gfxcore.Context)(nil)

// Config configures a Loader. Zero fields take defaults.
type Config struct {
	// Workers is the number of decode goroutines. Default: runtime.NumCPU().
	Workers int

	// QueueSize bounds queued decodes. Load blocks while the queue is
	// full. Default: 64.
	QueueSize int

	// MaxDimension scales larger images down to fit. Default: 0 (no limit).
	MaxDimension uint32

	// MaxPixels rejects images whose header declares more pixels, before
	// they are decoded. Default: 1<<26 (8192x8192).
	MaxPixels int64

	// Format is the texture format, RGBA8Unorm or RGBA8UnormSRGB.
	// Default: RGBA8UnormSRGB.
	Format gpucore.TextureFormat

	// Logger receives load diagnostics. Nil discards them.
	Logger *slog.Logger
}

func (c *Config) applyDefaults() error {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.MaxPixels <= 0 {
		c.MaxPixels = DefaultMaxPixels
	}
	switch c.Format {
	case gpucore.TextureFormatUndefined:
		c.Format = gpucore.TextureFormatRGBA8UnormSRGB
	case gpucore.TextureFormatRGBA8Unorm, gpucore.TextureFormatRGBA8UnormSRGB:
	default:
		return fmt.Errorf("%w: loader format %s", gpucore.ErrInvalidArgs, c.Format)
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return nil
}

// Request tracks one named load.
type Request struct {
	name string
	done chan struct{}

	// Set by the decode worker, read by Flush.
	img decoded
	err error

	// Set before done is closed.
	handle gfxcore.Handle
}

// Name returns the name the request was loaded under.
func (r *Request) Name() string { return r.name }

// Done is closed once the texture is uploaded or the load failed.
func (r *Request) Done() <-chan struct{} { return r.done }

// Result returns the texture handle once Done is closed. Before that it
// reports ErrPending.
func (r *Request) Result() (gfxcore.Handle, error) {
	select {
	case <-r.done:
		return r.handle, r.err
	default:
		return gfxcore.InvalidHandle, ErrPending
	}
}

// ErrPending is returned by Result while a request is still in flight.
var ErrPending = errors.New("loader: request pending")

func (r *Request) finish(h gfxcore.Handle, err error) {
	r.handle, r.err = h, err
	close(r.done)
}

// Loader decodes images concurrently and uploads them on Flush.
type Loader struct {
	up   Uploader
	cfg  Config
	log  *slog.Logger
	pool worker.DynamicWorkerPool

	decoding sync.WaitGroup

	mu     sync.Mutex
	byName map[string]*Request
	ready  []*Request
	nextID int
	closed bool
}

// New creates a loader uploading through up.
func New(up Uploader, cfg Config) (*Loader, error) {
	if up == nil {
		return nil, fmt.Errorf("%w: nil uploader", gpucore.ErrInvalidArgs)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &Loader{
		up:     up,
		cfg:    cfg,
		log:    cfg.Logger,
		pool:   worker.NewDynamicWorkerPool(cfg.Workers, cfg.QueueSize, DefaultIdleTimeout),
		byName: make(map[string]*Request),
	}, nil
}

// Load queues src for decoding under name. Loading a name that is already
// known returns the existing request and leaves src unread. Load is safe
// for concurrent use.
func (l *Loader) Load(name string, src io.Reader) *Request {
	l.mu.Lock()
	if req, ok := l.byName[name]; ok {
		l.mu.Unlock()
		return req
	}
	req := &Request{name: name, done: make(chan struct{})}
	if l.closed {
		l.mu.Unlock()
		req.finish(gfxcore.InvalidHandle, ErrClosed)
		return req
	}
	l.byName[name] = req
	id := l.nextID
	l.nextID++
	l.decoding.Add(1)
	l.mu.Unlock()

	l.pool.SubmitTask(worker.Task{
		ID:      id,
		Payload: name,
		Do: func() (any, error) {
			defer l.decoding.Done()
			img, err := decode(src, l.cfg.MaxDimension, l.cfg.MaxPixels)
			l.mu.Lock()
			req.img, req.err = img, err
			l.ready = append(l.ready, req)
			l.mu.Unlock()
			return nil, err
		},
	})
	return req
}

// Lookup returns the request loaded under name.
func (l *Loader) Lookup(name string) (*Request, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	req, ok := l.byName[name]
	return req, ok
}

// Forget drops name from the cache so it can be loaded again. The texture
// of a finished request is not destroyed.
func (l *Loader) Forget(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.byName, name)
}

// Pending returns the number of requests decoded or decoding but not yet
// flushed.
func (l *Loader) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, req := range l.byName {
		select {
		case <-req.done:
		default:
			n++
		}
	}
	return n
}

// Wait blocks until every queued decode has finished or ctx is done. It
// does not upload; call Flush afterwards.
func (l *Loader) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.decoding.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush uploads every decoded image and completes failed decodes. It must
// be called from the render thread. It stops early when ctx is done,
// leaving the rest for the next call, and returns the number of textures
// uploaded.
func (l *Loader) Flush(ctx context.Context) (int, error) {
	l.mu.Lock()
	ready := l.ready
	l.ready = nil
	l.mu.Unlock()

	uploaded := 0
	for i, req := range ready {
		if err := ctx.Err(); err != nil {
			l.mu.Lock()
			l.ready = append(ready[i:], l.ready...)
			l.mu.Unlock()
			return uploaded, err
		}
		if req.err != nil {
			l.log.Warn("loader: decode failed", "name", req.name, "err", req.err)
			req.finish(gfxcore.InvalidHandle, req.err)
			continue
		}
		h, err := l.upload(req)
		format := req.img.format
		req.img = decoded{}
		if err != nil {
			l.log.Error("loader: upload failed", "name", req.name, "err", err)
			req.finish(gfxcore.InvalidHandle, err)
			continue
		}
		l.log.Debug("loader: texture uploaded", "name", req.name, "format", format, "handle", h)
		req.finish(h, nil)
		uploaded++
	}
	return uploaded, nil
}

func (l *Loader) upload(req *Request) (gfxcore.Handle, error) {
	img := req.img.img
	b := img.Bounds()
	h, err := l.up.CreateTexture(gfxcore.TextureDescriptor{
		Label:       req.name,
		Width:       uint32(b.Dx()),
		Height:      uint32(b.Dy()),
		Depth:       1,
		MipLevels:   1,
		ArrayLayers: 1,
		Format:      l.cfg.Format,
		Dimension:   gpucore.TextureDimension2D,
		Usage:       gfxcore.UsageDefault,
	})
	if err != nil {
		return gfxcore.InvalidHandle, fmt.Errorf("create texture %q: %w", req.name, err)
	}
	if err := l.up.UpdateTexture(h, gfxcore.Region{}, img.Pix); err != nil {
		_ = l.up.Destroy(h)
		return gfxcore.InvalidHandle, fmt.Errorf("upload texture %q: %w", req.name, err)
	}
	return h, nil
}

// Close waits for running decodes, stops the workers and fails every
// request not yet flushed with ErrClosed. Uploaded textures stay alive.
func (l *Loader) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	l.decoding.Wait()
	l.pool.Stop()

	l.mu.Lock()
	ready := l.ready
	l.ready = nil
	l.mu.Unlock()
	for _, req := range ready {
		req.finish(gfxcore.InvalidHandle, ErrClosed)
	}
}
