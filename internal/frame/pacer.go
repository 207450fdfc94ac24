// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package frame paces CPU command submission against the GPU.
//
// A Pacer owns a ring of N frame slots. Each slot holds a command buffer, a
// fence and two semaphores, plus a list of destructions deferred until the
// GPU is done with the frames that could reference them. BeginFrame waits on
// the slot's fence before reusing it, which bounds the CPU to N frames ahead
// of the GPU.
//
// Every frame gets a serial. A deferred destruction is tagged with the serial
// of the last frame begun when it was requested, and is released at the
// first BeginFrame of its slot whose fence wait proves that frame complete.
//
// Device loss, submission failure and an expired fence wait are fatal: the
// pacer latches and reports gpucore.ErrDeviceLost from then on. An
// out-of-date swapchain is rebuilt and the acquire retried once.
package frame

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gogpu/gfxcore/gpucore"
	"github.com/gogpu/gfxcore/internal/transfer"
)

// Defaults applied to zero Config fields.
const (
	DefaultFramesInFlight = 3
	DefaultFenceTimeout   = 2 * time.Second
)

// ErrNotRecording is returned by calls that need a frame between BeginFrame
// and Present.
var ErrNotRecording = errors.New("frame: no frame is being recorded")

// Config configures a Pacer.
type Config struct {
	// FramesInFlight is the number of frame slots. Defaults to
	// DefaultFramesInFlight if <= 0.
	FramesInFlight int

	// FenceTimeout bounds every fence wait. Defaults to DefaultFenceTimeout
	// if <= 0.
	FenceTimeout time.Duration

	// VSync selects FIFO presentation.
	VSync bool

	// Format is the swapchain format. Defaults to BGRA8UnormSRGB.
	Format gpucore.TextureFormat

	// Logger defaults to a silent logger.
	Logger *slog.Logger
}

// Stats describes the pacer state.
type Stats struct {
	// Serial is the serial of the last frame begun.
	Serial uint64

	// CompletedSerial is the last serial whose fence was observed signaled.
	CompletedSerial uint64

	// Slot is the index of the current slot.
	Slot int

	FramesInFlight int

	// Pending is the number of deferred destructions per slot.
	Pending []int

	// Released counts deferred destructions executed so far.
	Released uint64

	// Rebuilds counts swapchain rebuilds after the first build.
	Rebuilds int

	// ImageIndex is the swapchain image of the current or last frame.
	ImageIndex uint32

	Recording bool
	Lost      bool
}

// Pacer sequences frames over a ring of slots.
type Pacer struct {
	dev     gpucore.Device
	surface gpucore.Surface
	rel     Releaser
	cfg     Config
	log     *slog.Logger

	ring *Ring[Slot]
	sc   *Swapchain
	xfer *transfer.Context

	serial     uint64
	completed  uint64
	imageIndex uint32
	recording  bool
	rebuild    bool
	lost       bool
	sections   int
	released   uint64
	rebuilds   int
}

// NewPacer creates a pacer. surface may be nil for offscreen use, in which
// case frames are submitted without acquiring or presenting images.
func NewPacer(dev gpucore.Device, surface gpucore.Surface, rel Releaser, cfg Config) (*Pacer, error) {
	if dev == nil || rel.Device == nil || rel.Allocator == nil {
		return nil, fmt.Errorf("%w: frame: pacer needs a device and a releaser", gpucore.ErrInvalidArgs)
	}
	if cfg.FramesInFlight <= 0 {
		cfg.FramesInFlight = DefaultFramesInFlight
	}
	if cfg.FenceTimeout <= 0 {
		cfg.FenceTimeout = DefaultFenceTimeout
	}
	if cfg.Format == gpucore.TextureFormatUndefined {
		cfg.Format = gpucore.TextureFormatBGRA8UnormSRGB
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	p := &Pacer{dev: dev, surface: surface, rel: rel, cfg: cfg, log: log}

	slots := make([]Slot, 0, cfg.FramesInFlight)
	for i := range cfg.FramesInFlight {
		s, err := newSlot(dev, i)
		if err != nil {
			for j := range slots {
				slots[j].destroy(dev)
			}
			return nil, err
		}
		slots = append(slots, s)
	}
	p.ring = NewRing(slots)

	xfer, err := transfer.New(dev, transfer.Config{Timeout: cfg.FenceTimeout, Logger: log})
	if err != nil {
		p.destroySlots()
		return nil, err
	}
	p.xfer = xfer

	if surface != nil {
		if err := p.buildSwapchain(); err != nil && !errors.Is(err, gpucore.ErrOutOfDate) {
			p.xfer.Close()
			p.destroySlots()
			return nil, err
		}
	}
	log.Info("frame: pacer ready",
		slog.Int("framesInFlight", cfg.FramesInFlight),
		slog.Bool("vsync", cfg.VSync),
		slog.Bool("offscreen", surface == nil))
	return p, nil
}

// FramesInFlight returns the number of slots.
func (p *Pacer) FramesInFlight() int { return p.ring.Len() }

// Slot returns slot i for inspection.
func (p *Pacer) Slot(i int) *Slot { return p.ring.At(i) }

// Swapchain returns the current swapchain, or nil when offscreen or not yet
// built.
func (p *Pacer) Swapchain() *Swapchain { return p.sc }

// ImageIndex returns the swapchain image acquired for the current frame.
func (p *Pacer) ImageIndex() uint32 { return p.imageIndex }

// Serial returns the serial of the last frame begun.
func (p *Pacer) Serial() uint64 { return p.serial }

// Lost reports whether a fatal error occurred.
func (p *Pacer) Lost() bool { return p.lost }

// Recording reports whether a frame is between BeginFrame and Present.
func (p *Pacer) Recording() bool { return p.recording }

// CommandBuffer returns the command buffer of the frame being recorded.
func (p *Pacer) CommandBuffer() (gpucore.CommandBuffer, error) {
	if !p.recording {
		return nil, ErrNotRecording
	}
	return p.ring.Current().CommandBuffer, nil
}

// BeginFrame waits for the current slot, releases its eligible deferred
// destructions, acquires a swapchain image and begins recording.
//
// It returns gpucore.ErrOutOfDate when the swapchain could not be brought up
// to date, for example while the surface has a zero extent; the caller may
// skip the frame and try again.
func (p *Pacer) BeginFrame() error {
	if p.lost {
		return gpucore.ErrDeviceLost
	}
	if p.recording {
		return fmt.Errorf("%w: frame: BeginFrame while recording", gpucore.ErrInvalidArgs)
	}
	s := p.ring.Current()

	if err := p.dev.WaitFence(s.Fence, p.cfg.FenceTimeout); err != nil {
		return p.fatal("wait fence", err)
	}
	if s.state == StateSubmitted {
		s.state = StateComplete
		p.completed = max(p.completed, s.serial)
	}
	n, err := s.flush(p.rel, p.completed)
	p.released += uint64(n)
	if err != nil {
		return p.fatal("flush deferred destructions", err)
	}
	if n > 0 {
		p.log.Debug("frame: released deferred destructions", slog.Int("slot", s.Index), slog.Int("count", n))
	}
	s.state = StateIdle

	if p.surface != nil {
		if err := p.acquire(s); err != nil {
			return err
		}
	}

	// The fence stays signaled until an image is acquired so that a skipped
	// frame does not leave the slot waiting forever.
	if err := p.dev.ResetFence(s.Fence); err != nil {
		return p.fatal("reset fence", err)
	}
	if err := s.CommandBuffer.Reset(); err != nil {
		return p.fatal("reset command buffer", err)
	}
	if err := s.CommandBuffer.Begin(false); err != nil {
		return p.fatal("begin command buffer", err)
	}
	p.serial++
	s.serial = p.serial
	s.state = StateRecording
	p.recording = true
	p.log.Debug("frame: begin", slog.Uint64("serial", p.serial), slog.Int("slot", s.Index))
	return nil
}

func (p *Pacer) acquire(s *Slot) error {
	if p.sc == nil || p.rebuild {
		if err := p.buildSwapchain(); err != nil {
			return err
		}
	}
	idx, err := p.sc.sc.AcquireNextImage(s.ImageAvailable, p.cfg.FenceTimeout)
	if errors.Is(err, gpucore.ErrOutOfDate) {
		p.log.Warn("frame: swapchain out of date, rebuilding")
		if err := p.buildSwapchain(); err != nil {
			return err
		}
		idx, err = p.sc.sc.AcquireNextImage(s.ImageAvailable, p.cfg.FenceTimeout)
		if errors.Is(err, gpucore.ErrOutOfDate) {
			p.rebuild = true
			return fmt.Errorf("frame: acquire after rebuild: %w", err)
		}
	}
	switch {
	case err == nil:
	case errors.Is(err, gpucore.ErrSuboptimal):
		p.log.Warn("frame: swapchain suboptimal, rebuilding next frame")
		p.rebuild = true
	default:
		return p.fatal("acquire", err)
	}
	p.imageIndex = idx
	return nil
}

// buildSwapchain creates a swapchain for the surface's current extent and
// retires the previous one through the deferred path.
func (p *Pacer) buildSwapchain() error {
	w, h := p.surface.Extent()
	if w == 0 || h == 0 {
		p.rebuild = true
		return fmt.Errorf("frame: surface extent %dx%d: %w", w, h, gpucore.ErrOutOfDate)
	}
	mode := ChoosePresentMode(p.dev.PresentModes(p.surface), p.cfg.VSync)
	desc := &gpucore.SwapchainDescriptor{
		Surface:       p.surface,
		Width:         w,
		Height:        h,
		Format:        p.cfg.Format,
		PresentMode:   mode,
		MinImageCount: uint32(max(p.cfg.FramesInFlight, 2)),
	}
	if p.sc != nil {
		desc.Old = p.sc.sc
	}
	sc, err := createSwapchain(p.dev, desc)
	if err != nil {
		return err
	}
	if p.sc != nil {
		for _, rec := range p.sc.retire() {
			p.DestroyDeferred(rec)
		}
		p.rebuilds++
	}
	p.sc = sc
	p.rebuild = false
	p.log.Info("frame: swapchain built",
		slog.Uint64("width", uint64(w)),
		slog.Uint64("height", uint64(h)),
		slog.String("presentMode", mode.String()),
		slog.Int("images", len(sc.images)))
	return nil
}

// Present submits the recorded frame, queues the image for display and
// advances to the next slot.
func (p *Pacer) Present() error {
	if p.lost {
		return gpucore.ErrDeviceLost
	}
	if !p.recording {
		return fmt.Errorf("%w: frame: Present without BeginFrame", ErrNotRecording)
	}
	s := p.ring.Current()
	for ; p.sections > 0; p.sections-- {
		s.CommandBuffer.PopDebugGroup()
	}
	if err := s.CommandBuffer.End(); err != nil {
		return p.fatal("end command buffer", err)
	}

	info := gpucore.SubmitInfo{CommandBuffers: []gpucore.CommandBuffer{s.CommandBuffer}}
	if p.surface != nil {
		info.WaitSemaphores = []gpucore.Semaphore{s.ImageAvailable}
		info.SignalSemaphores = []gpucore.Semaphore{s.RenderDone}
	}
	if err := p.dev.Queue().Submit(info, s.Fence); err != nil {
		return p.fatal("submit", err)
	}
	s.state = StateSubmitted
	p.recording = false

	var presentErr error
	if p.surface != nil {
		err := p.dev.Queue().Present(p.sc.sc, p.imageIndex, []gpucore.Semaphore{s.RenderDone})
		switch {
		case err == nil:
		case errors.Is(err, gpucore.ErrOutOfDate), errors.Is(err, gpucore.ErrSuboptimal):
			p.log.Warn("frame: present reported stale swapchain", slog.Any("err", err))
			p.rebuild = true
		default:
			presentErr = p.fatal("present", err)
		}
	}
	p.ring.Advance()
	return presentErr
}

// DestroyDeferred schedules rec for release once every frame begun so far has
// completed. It never fails; release errors surface from a later
// BeginFrame.
func (p *Pacer) DestroyDeferred(rec PendingDestruction) {
	rec.safeAfter = p.serial
	s := p.ring.Current()
	s.deferred = append(s.deferred, rec)
}

// ExecuteCopyImmediate runs fn on the transfer context and waits for it to
// complete.
func (p *Pacer) ExecuteCopyImmediate(fn func(cb gpucore.CommandBuffer) error) error {
	if p.lost {
		return gpucore.ErrDeviceLost
	}
	err := p.xfer.ExecuteCopyImmediate(fn)
	if errors.Is(err, gpucore.ErrDeviceLost) {
		p.lost = true
	}
	return err
}

// NotifyResize schedules a swapchain rebuild at the next BeginFrame.
func (p *Pacer) NotifyResize(width, height uint32) {
	p.log.Debug("frame: resize", slog.Uint64("width", uint64(width)), slog.Uint64("height", uint64(height)))
	p.rebuild = true
}

// PushDebugGroup opens a labelled section in the current frame.
func (p *Pacer) PushDebugGroup(label string) error {
	cb, err := p.CommandBuffer()
	if err != nil {
		return err
	}
	cb.PushDebugGroup(label)
	p.sections++
	return nil
}

// PopDebugGroup closes the innermost section opened by PushDebugGroup.
func (p *Pacer) PopDebugGroup() error {
	cb, err := p.CommandBuffer()
	if err != nil {
		return err
	}
	if p.sections == 0 {
		return fmt.Errorf("%w: frame: no open debug section", gpucore.ErrInvalidArgs)
	}
	cb.PopDebugGroup()
	p.sections--
	return nil
}

// Stats returns the pacer state.
func (p *Pacer) Stats() Stats {
	st := Stats{
		Serial:          p.serial,
		CompletedSerial: p.completed,
		Slot:            p.ring.Index(),
		FramesInFlight:  p.ring.Len(),
		Pending:         make([]int, p.ring.Len()),
		Released:        p.released,
		Rebuilds:        p.rebuilds,
		ImageIndex:      p.imageIndex,
		Recording:       p.recording,
		Lost:            p.lost,
	}
	for i := range st.Pending {
		st.Pending[i] = len(p.ring.At(i).deferred)
	}
	return st
}

func (p *Pacer) fatal(op string, err error) error {
	p.lost = true
	p.recording = false
	p.log.Error("frame: fatal error", slog.String("op", op), slog.Any("err", err))
	if errors.Is(err, gpucore.ErrDeviceLost) {
		return fmt.Errorf("frame: %s: %w", op, err)
	}
	return fmt.Errorf("frame: %s: %w: %w", op, gpucore.ErrDeviceLost, err)
}

// WaitIdle blocks until the device has finished all submitted work.
func (p *Pacer) WaitIdle() error {
	if p.lost {
		return gpucore.ErrDeviceLost
	}
	if err := p.dev.WaitIdle(); err != nil {
		return p.fatal("wait idle", err)
	}
	p.completed = p.serial
	for i := range p.ring.Len() {
		if s := p.ring.At(i); s.state == StateSubmitted {
			s.state = StateComplete
		}
	}
	return nil
}

// Close waits for the device, releases every deferred destruction and
// destroys the swapchain, slots and transfer context. Resources owned
// elsewhere must be released by their owners first.
func (p *Pacer) Close() error {
	var errs []error
	if !p.lost {
		if err := p.WaitIdle(); err != nil {
			errs = append(errs, err)
		}
	}
	for i := range p.ring.Len() {
		s := p.ring.At(i)
		n, err := s.flush(p.rel, ^uint64(0))
		p.released += uint64(n)
		if err != nil {
			errs = append(errs, err)
		}
	}
	if p.sc != nil {
		p.sc.destroy(p.dev)
		p.sc = nil
	}
	p.xfer.Close()
	p.destroySlots()
	return errors.Join(errs...)
}

func (p *Pacer) destroySlots() {
	for i := range p.ring.Len() {
		p.ring.At(i).destroy(p.dev)
	}
}
