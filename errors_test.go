package gfxcore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gogpu/gfxcore/gpucore"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"invalid", fmt.Errorf("%w: zero size", ErrInvalidArgs), KindInvalidArgs},
		{"stale handle", fmt.Errorf("%w: %w", ErrInvalidArgs, ErrStaleHandle), KindInvalidArgs},
		{"not mapped", ErrNotMapped, KindInvalidArgs},
		{"not recording", ErrNotRecording, KindInvalidArgs},
		{"closed", ErrClosed, KindInvalidArgs},
		{"oom", fmt.Errorf("allocate: %w", ErrOutOfMemory), KindOutOfMemory},
		{"lost", ErrDeviceLost, KindDeviceLost},
		{"lost wins", fmt.Errorf("%w: %w", gpucore.ErrDeviceLost, gpucore.ErrTimeout), KindDeviceLost},
		{"out of date", fmt.Errorf("acquire: %w", ErrOutOfDate), KindRecoverable},
		{"suboptimal", gpucore.ErrSuboptimal, KindRecoverable},
		{"not implemented", ErrNotImplemented, KindNotImplemented},
		{"other", errors.New("boom"), KindOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestResultOf(t *testing.T) {
	tests := []struct {
		err  error
		want Result
	}{
		{nil, ResultOk},
		{ErrInvalidArgs, ResultFail},
		{ErrOutOfDate, ResultFail},
		{errors.New("boom"), ResultFail},
		{ErrOutOfMemory, ResultOutOfMemory},
		{ErrDeviceLost, ResultDeviceLost},
	}
	for _, tt := range tests {
		if got := ResultOf(tt.err); got != tt.want {
			t.Errorf("ResultOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestKindString(t *testing.T) {
	if got := KindRecoverable.String(); got != "Recoverable" {
		t.Errorf("String() = %q, want %q", got, "Recoverable")
	}
	if got := Kind(200).String(); got != "Kind(200)" {
		t.Errorf("String() = %q, want %q", got, "Kind(200)")
	}
	if got := ResultDeviceLost.String(); got != "DeviceLost" {
		t.Errorf("String() = %q, want %q", got, "DeviceLost")
	}
}
