// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucore

import "errors"

// Error taxonomy shared by every layer. Backends and internal packages wrap
// these with fmt.Errorf("%w: ...") so callers can classify with errors.Is.
var (
	// ErrInvalidArgs is returned when a descriptor or call argument is invalid.
	ErrInvalidArgs = errors.New("gpucore: invalid arguments")

	// ErrOutOfMemory is returned when host or device memory is exhausted.
	ErrOutOfMemory = errors.New("gpucore: out of memory")

	// ErrDeviceLost is returned when the device stops responding. It is fatal.
	ErrDeviceLost = errors.New("gpucore: device lost")

	// ErrOutOfDate is returned when the swapchain no longer matches the surface
	// and must be rebuilt. It is recoverable.
	ErrOutOfDate = errors.New("gpucore: swapchain out of date")

	// ErrSuboptimal is returned when the swapchain still works but no longer
	// matches the surface exactly.
	ErrSuboptimal = errors.New("gpucore: swapchain suboptimal")

	// ErrTimeout is returned when a bounded wait expires.
	ErrTimeout = errors.New("gpucore: wait timed out")

	// ErrNotImplemented is returned by backends for unsupported operations.
	ErrNotImplemented = errors.New("gpucore: not implemented")

	// ErrSubmitFailed is returned when the queue rejects a submission.
	ErrSubmitFailed = errors.New("gpucore: queue submission failed")
)
