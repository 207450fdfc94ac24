package gfxcore

import (
	"errors"
	"fmt"

	"github.com/gogpu/gfxcore/gpucore"
	"github.com/gogpu/gfxcore/internal/frame"
	"github.com/gogpu/gfxcore/internal/handle"
	"github.com/gogpu/gfxcore/internal/resource"
	"github.com/gogpu/gfxcore/internal/transfer"
)

// Errors returned by Context methods. Match them with errors.Is; most are
// wrapped with context about the failing call.
var (
	ErrInvalidArgs    = gpucore.ErrInvalidArgs
	ErrOutOfMemory    = gpucore.ErrOutOfMemory
	ErrDeviceLost     = gpucore.ErrDeviceLost
	ErrOutOfDate      = gpucore.ErrOutOfDate
	ErrNotImplemented = gpucore.ErrNotImplemented

	ErrNotRecording  = frame.ErrNotRecording
	ErrNotMapped     = resource.ErrNotMapped
	ErrAlreadyMapped = resource.ErrAlreadyMapped
	ErrWrongKind     = resource.ErrWrongKind
	ErrStaleHandle   = handle.ErrStaleHandle
	ErrInvalidHandle = handle.ErrInvalidHandle

	// ErrClosed is returned by every method called after Close.
	ErrClosed = errors.New("gfxcore: context closed")
)

// Kind classifies an error.
type Kind uint8

// Error kinds.
const (
	KindNone Kind = iota
	KindInvalidArgs
	KindOutOfMemory
	KindDeviceLost

	// KindRecoverable errors leave the Context usable; the caller may skip
	// the frame and retry.
	KindRecoverable

	KindNotImplemented
	KindOther
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindInvalidArgs:
		return "InvalidArgs"
	case KindOutOfMemory:
		return "OutOfMemory"
	case KindDeviceLost:
		return "DeviceLost"
	case KindRecoverable:
		return "Recoverable"
	case KindNotImplemented:
		return "NotImplemented"
	case KindOther:
		return "Other"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// KindOf classifies err. Device loss wins over anything else in the chain.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, gpucore.ErrDeviceLost):
		return KindDeviceLost
	case errors.Is(err, gpucore.ErrOutOfMemory):
		return KindOutOfMemory
	case errors.Is(err, gpucore.ErrOutOfDate), errors.Is(err, gpucore.ErrSuboptimal):
		return KindRecoverable
	case errors.Is(err, gpucore.ErrNotImplemented):
		return KindNotImplemented
	case errors.Is(err, gpucore.ErrInvalidArgs),
		errors.Is(err, frame.ErrNotRecording),
		errors.Is(err, resource.ErrNotMapped),
		errors.Is(err, resource.ErrAlreadyMapped),
		errors.Is(err, resource.ErrWrongKind),
		errors.Is(err, handle.ErrInvalidHandle),
		errors.Is(err, handle.ErrStaleHandle),
		errors.Is(err, transfer.ErrBusy),
		errors.Is(err, ErrClosed):
		return KindInvalidArgs
	default:
		return KindOther
	}
}

// Result is the coarse outcome reported across a handle-based API boundary.
type Result uint8

// Results.
const (
	ResultOk Result = iota
	ResultFail
	ResultOutOfMemory
	ResultDeviceLost
)

// String returns the string representation of Result.
func (r Result) String() string {
	switch r {
	case ResultOk:
		return "Ok"
	case ResultFail:
		return "Fail"
	case ResultOutOfMemory:
		return "OutOfMemory"
	case ResultDeviceLost:
		return "DeviceLost"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// ResultOf collapses err to a Result.
func ResultOf(err error) Result {
	switch KindOf(err) {
	case KindNone:
		return ResultOk
	case KindOutOfMemory:
		return ResultOutOfMemory
	case KindDeviceLost:
		return ResultDeviceLost
	default:
		return ResultFail
	}
}
