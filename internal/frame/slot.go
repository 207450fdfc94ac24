// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package frame

import (
	"errors"
	"fmt"

	"github.com/gogpu/gfxcore/gpucore"
)

// SlotState is the lifecycle state of a frame slot.
type SlotState uint8

// Slot states. A slot cycles Idle, Recording, Submitted, Complete and back to
// Idle once its deferred list is flushed.
const (
	StateIdle SlotState = iota
	StateRecording
	StateSubmitted
	StateComplete
)

// String returns the string representation of SlotState.
func (s SlotState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRecording:
		return "Recording"
	case StateSubmitted:
		return "Submitted"
	case StateComplete:
		return "Complete"
	default:
		return fmt.Sprintf("SlotState(%d)", int(s))
	}
}

// Slot is the per-frame set of command and synchronization objects.
type Slot struct {
	Index          int
	CommandBuffer  gpucore.CommandBuffer
	Fence          gpucore.Fence
	ImageAvailable gpucore.Semaphore
	RenderDone     gpucore.Semaphore

	state    SlotState
	serial   uint64
	deferred []PendingDestruction
}

// State returns the slot state.
func (s *Slot) State() SlotState { return s.state }

// Serial returns the serial of the last frame recorded into the slot.
func (s *Slot) Serial() uint64 { return s.serial }

// Pending returns the number of deferred destructions waiting on the slot.
func (s *Slot) Pending() int { return len(s.deferred) }

func newSlot(dev gpucore.Device, index int) (Slot, error) {
	s := Slot{Index: index}
	var err error
	if s.CommandBuffer, err = dev.CreateCommandBuffer(fmt.Sprintf("frame[%d]", index)); err != nil {
		return s, fmt.Errorf("frame: slot %d command buffer: %w", index, err)
	}
	// Signaled so that the first wait on a fresh slot returns at once.
	if s.Fence, err = dev.CreateFence(true); err != nil {
		s.destroy(dev)
		return s, fmt.Errorf("frame: slot %d fence: %w", index, err)
	}
	if s.ImageAvailable, err = dev.CreateSemaphore(); err != nil {
		s.destroy(dev)
		return s, fmt.Errorf("frame: slot %d semaphore: %w", index, err)
	}
	if s.RenderDone, err = dev.CreateSemaphore(); err != nil {
		s.destroy(dev)
		return s, fmt.Errorf("frame: slot %d semaphore: %w", index, err)
	}
	return s, nil
}

func (s *Slot) destroy(dev gpucore.Device) {
	if s.RenderDone != nil {
		dev.DestroySemaphore(s.RenderDone)
	}
	if s.ImageAvailable != nil {
		dev.DestroySemaphore(s.ImageAvailable)
	}
	if s.Fence != nil {
		dev.DestroyFence(s.Fence)
	}
	if s.CommandBuffer != nil {
		dev.FreeCommandBuffer(s.CommandBuffer)
	}
	*s = Slot{Index: s.Index, deferred: s.deferred}
}

// flush releases every deferred record that no frame after completed can
// reference and keeps the rest. Records that fail to release are dropped.
func (s *Slot) flush(rel Releaser, completed uint64) (int, error) {
	kept := s.deferred[:0]
	released := 0
	var errs []error
	for i := range s.deferred {
		p := s.deferred[i]
		if p.safeAfter > completed {
			kept = append(kept, p)
			continue
		}
		if err := rel.Release(&p); err != nil {
			errs = append(errs, err)
			continue
		}
		released++
	}
	clear(s.deferred[len(kept):])
	s.deferred = kept
	return released, errors.Join(errs...)
}
