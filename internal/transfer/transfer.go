// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package transfer runs copies to completion outside the frame pipeline.
//
// A Context owns one command buffer and one fence. ExecuteCopyImmediate
// records a caller-supplied function, submits it, and blocks until the GPU
// signals the fence, so uploads made at load time are complete when the call
// returns.
package transfer

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gogpu/gfxcore/gpucore"
)

// DefaultTimeout bounds the fence wait when Config.Timeout is zero.
const DefaultTimeout = 2 * time.Second

// ErrBusy is returned when ExecuteCopyImmediate is called from inside its own
// record function.
var ErrBusy = errors.New("transfer: copy already in progress")

// Config configures a Context.
type Config struct {
	// Timeout bounds the wait for the copy to complete. An expired wait is
	// treated as device loss. Defaults to DefaultTimeout if zero.
	Timeout time.Duration

	// Logger defaults to a silent logger.
	Logger *slog.Logger
}

// Context is a dedicated command buffer and fence for immediate copies.
type Context struct {
	dev     gpucore.Device
	cb      gpucore.CommandBuffer
	fence   gpucore.Fence
	timeout time.Duration
	log     *slog.Logger

	busy   bool
	lost   bool
	copies uint64
}

// New creates a transfer context on dev.
func New(dev gpucore.Device, cfg Config) (*Context, error) {
	if dev == nil {
		return nil, fmt.Errorf("%w: transfer: nil device", gpucore.ErrInvalidArgs)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	cb, err := dev.CreateCommandBuffer("transfer")
	if err != nil {
		return nil, fmt.Errorf("transfer: create command buffer: %w", err)
	}
	fence, err := dev.CreateFence(false)
	if err != nil {
		dev.FreeCommandBuffer(cb)
		return nil, fmt.Errorf("transfer: create fence: %w", err)
	}
	return &Context{dev: dev, cb: cb, fence: fence, timeout: cfg.Timeout, log: log}, nil
}

// Copies returns the number of completed immediate copies.
func (c *Context) Copies() uint64 { return c.copies }

// ExecuteCopyImmediate records fn into the transfer command buffer, submits
// it and waits for completion. If fn returns an error nothing is submitted.
//
// Submission failures and expired waits are fatal: the context reports
// ErrDeviceLost from then on.
func (c *Context) ExecuteCopyImmediate(fn func(cb gpucore.CommandBuffer) error) error {
	if fn == nil {
		return fmt.Errorf("%w: transfer: nil record function", gpucore.ErrInvalidArgs)
	}
	if c.lost {
		return gpucore.ErrDeviceLost
	}
	if c.busy {
		return ErrBusy
	}
	c.busy = true
	defer func() { c.busy = false }()

	if err := c.cb.Reset(); err != nil {
		return fmt.Errorf("transfer: reset: %w", err)
	}
	if err := c.cb.Begin(true); err != nil {
		return fmt.Errorf("transfer: begin: %w", err)
	}
	if err := fn(c.cb); err != nil {
		_ = c.cb.End()
		_ = c.cb.Reset()
		return err
	}
	if err := c.cb.End(); err != nil {
		_ = c.cb.Reset()
		return fmt.Errorf("transfer: end: %w", err)
	}

	err := c.dev.Queue().Submit(gpucore.SubmitInfo{CommandBuffers: []gpucore.CommandBuffer{c.cb}}, c.fence)
	if err != nil {
		return c.fatal("submit", err)
	}
	if err := c.dev.WaitFence(c.fence, c.timeout); err != nil {
		return c.fatal("wait", err)
	}
	if err := c.dev.ResetFence(c.fence); err != nil {
		return c.fatal("reset fence", err)
	}
	c.copies++
	return nil
}

func (c *Context) fatal(op string, err error) error {
	c.lost = true
	c.log.Error("transfer: fatal error", slog.String("op", op), slog.Any("err", err))
	if errors.Is(err, gpucore.ErrDeviceLost) {
		return fmt.Errorf("transfer: %s: %w", op, err)
	}
	return fmt.Errorf("transfer: %s: %w: %w", op, gpucore.ErrDeviceLost, err)
}

// Close releases the command buffer and fence. The device must be idle.
func (c *Context) Close() {
	if c.cb == nil {
		return
	}
	c.dev.FreeCommandBuffer(c.cb)
	c.dev.DestroyFence(c.fence)
	c.cb, c.fence = nil, nil
}
