package gfxcore

import (
	"log/slog"
	"testing"
	"time"

	"github.com/gogpu/gfxcore/gpucore"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	if c.FramesInFlight != 3 {
		t.Errorf("FramesInFlight = %d, want 3", c.FramesInFlight)
	}
	if c.FenceTimeout != 2*time.Second {
		t.Errorf("FenceTimeout = %v, want 2s", c.FenceTimeout)
	}
	if !c.VSync {
		t.Errorf("VSync = false, want true")
	}
	if c.BlockSizeMB != 64 {
		t.Errorf("BlockSizeMB = %d, want 64", c.BlockSizeMB)
	}
	if c.SwapchainFormat != gpucore.TextureFormatBGRA8UnormSRGB {
		t.Errorf("SwapchainFormat = %s, want BGRA8UnormSRGB", c.SwapchainFormat)
	}
}

func TestOptions(t *testing.T) {
	l := slog.New(slog.DiscardHandler)
	c := DefaultConfig()
	for _, opt := range []Option{
		WithFramesInFlight(2),
		WithFenceTimeout(time.Second),
		WithVSync(false),
		WithMemoryBlockSize(16),
		WithMemoryBudget(256),
		WithSwapchainFormat(gpucore.TextureFormatRGBA8Unorm),
		WithLogger(l),
	} {
		opt(&c)
	}
	want := Config{
		FramesInFlight:  2,
		FenceTimeout:    time.Second,
		VSync:           false,
		BlockSizeMB:     16,
		BudgetMB:        256,
		SwapchainFormat: gpucore.TextureFormatRGBA8Unorm,
		Logger:          l,
	}
	if c != want {
		t.Errorf("config = %+v, want %+v", c, want)
	}
}

func TestWithDefaults(t *testing.T) {
	c := Config{FramesInFlight: -1, BudgetMB: -5}.withDefaults()
	if c.FramesInFlight != DefaultFramesInFlight || c.FenceTimeout != DefaultFenceTimeout || c.BlockSizeMB != DefaultBlockSizeMB {
		t.Errorf("withDefaults() = %+v", c)
	}
	if c.BudgetMB != 0 {
		t.Errorf("BudgetMB = %d, want 0", c.BudgetMB)
	}
	if c.Logger == nil {
		t.Errorf("Logger = nil, want the package logger")
	}
}

func TestWithConfig(t *testing.T) {
	c := DefaultConfig()
	WithConfig(Config{FramesInFlight: 5})(&c)
	WithVSync(true)(&c)
	if c.FramesInFlight != 5 || !c.VSync || c.BlockSizeMB != 0 {
		t.Errorf("config = %+v", c)
	}
}
