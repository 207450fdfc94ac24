// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"testing"

	"github.com/gogpu/gfxcore/internal/alloc"
	"github.com/gogpu/gfxcore/internal/fakegpu"
	"github.com/gogpu/gfxcore/internal/frame"
)

// countingDeferrer forwards to a pacer and remembers what it was given.
type countingDeferrer struct {
	next    *frame.Pacer
	records []frame.PendingDestruction
}

func (d *countingDeferrer) DestroyDeferred(p frame.PendingDestruction) {
	d.records = append(d.records, p)
	d.next.DestroyDeferred(p)
}

type fixture struct {
	t        *testing.T
	dev      *fakegpu.Device
	alloc    *alloc.Allocator
	pacer    *frame.Pacer
	deferrer *countingDeferrer
	env      *Env
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dev := fakegpu.New(fakegpu.Options{})
	a, err := alloc.New(dev, alloc.Config{BlockSize: 1 << 20})
	if err != nil {
		t.Fatalf("alloc.New() error = %v", err)
	}
	rel := frame.Releaser{Device: dev, Allocator: a}
	p, err := frame.NewPacer(dev, nil, rel, frame.Config{FramesInFlight: 2})
	if err != nil {
		t.Fatalf("NewPacer() error = %v", err)
	}
	d := &countingDeferrer{next: p}
	return &fixture{
		t: t, dev: dev, alloc: a, pacer: p, deferrer: d,
		env: &Env{Device: dev, Allocator: a, Deferrer: d, Uploader: p},
	}
}

func (f *fixture) frames(n int) {
	f.t.Helper()
	for range n {
		if err := f.pacer.BeginFrame(); err != nil {
			f.t.Fatalf("BeginFrame() error = %v", err)
		}
		if err := f.pacer.Present(); err != nil {
			f.t.Fatalf("Present() error = %v", err)
		}
	}
}

// close tears everything down and reports leaks and misuse.
func (f *fixture) close(tables ...*Table) {
	f.t.Helper()
	if err := f.pacer.WaitIdle(); err != nil {
		f.t.Errorf("WaitIdle() error = %v", err)
	}
	rel := frame.Releaser{Device: f.dev, Allocator: f.alloc}
	for _, tb := range tables {
		if err := tb.DestroyAll(rel); err != nil {
			f.t.Errorf("DestroyAll() error = %v", err)
		}
	}
	if err := f.pacer.Close(); err != nil {
		f.t.Errorf("Close() error = %v", err)
	}
	f.alloc.Close()
	f.dev.Destroy()
	for _, v := range f.dev.Violations() {
		f.t.Errorf("violation: %s", v)
	}
}
