package gfxcore

import (
	"log/slog"
	"time"

	"github.com/gogpu/gfxcore/gpucore"
	"github.com/gogpu/gfxcore/internal/alloc"
	"github.com/gogpu/gfxcore/internal/frame"
)

// Default configuration values.
const (
	DefaultFramesInFlight = frame.DefaultFramesInFlight
	DefaultFenceTimeout   = frame.DefaultFenceTimeout
	DefaultBlockSizeMB    = alloc.DefaultBlockSize >> 20
)

// Config configures a Context. Numeric fields <= 0 use their defaults.
type Config struct {
	// FramesInFlight is the number of frames the CPU may record ahead of the
	// GPU. Default: 3.
	FramesInFlight int

	// FenceTimeout bounds every fence wait. An expired wait is treated as
	// device loss. Default: 2s.
	FenceTimeout time.Duration

	// VSync selects FIFO presentation. Default: true.
	VSync bool

	// BlockSizeMB is the size of the memory blocks allocations are carved
	// from. Default: 64.
	BlockSizeMB int

	// BudgetMB caps the device memory the Context may allocate.
	// Default: 0 (unlimited).
	BudgetMB int

	// SwapchainFormat is the presentation format. Default: BGRA8UnormSRGB.
	SwapchainFormat gpucore.TextureFormat

	// Logger receives the Context's logs. Default: Logger() at creation.
	Logger *slog.Logger
}

// DefaultConfig returns the configuration used when no options are given.
func DefaultConfig() Config {
	return Config{
		FramesInFlight:  DefaultFramesInFlight,
		FenceTimeout:    DefaultFenceTimeout,
		VSync:           true,
		BlockSizeMB:     DefaultBlockSizeMB,
		SwapchainFormat: gpucore.TextureFormatBGRA8UnormSRGB,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FramesInFlight <= 0 {
		c.FramesInFlight = d.FramesInFlight
	}
	if c.FenceTimeout <= 0 {
		c.FenceTimeout = d.FenceTimeout
	}
	if c.BlockSizeMB <= 0 {
		c.BlockSizeMB = d.BlockSizeMB
	}
	if c.BudgetMB < 0 {
		c.BudgetMB = 0
	}
	if c.SwapchainFormat == gpucore.TextureFormatUndefined {
		c.SwapchainFormat = d.SwapchainFormat
	}
	if c.Logger == nil {
		c.Logger = Logger()
	}
	return c
}

// Option configures a Context during creation.
//
// Example:
//
//	ctx, err := gfxcore.NewContext(dev, surface,
//	    gfxcore.WithFramesInFlight(2),
//	    gfxcore.WithVSync(false))
type Option func(*Config)

// WithConfig replaces the whole configuration. Options after it still apply.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}

// WithFramesInFlight sets the number of frame slots.
func WithFramesInFlight(n int) Option {
	return func(c *Config) {
		c.FramesInFlight = n
	}
}

// WithFenceTimeout bounds fence waits.
func WithFenceTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.FenceTimeout = d
	}
}

// WithVSync enables or disables vertical sync.
func WithVSync(on bool) Option {
	return func(c *Config) {
		c.VSync = on
	}
}

// WithMemoryBlockSize sets the allocator block size in MiB.
func WithMemoryBlockSize(mb int) Option {
	return func(c *Config) {
		c.BlockSizeMB = mb
	}
}

// WithMemoryBudget caps device memory use in MiB. Zero means unlimited.
func WithMemoryBudget(mb int) Option {
	return func(c *Config) {
		c.BudgetMB = mb
	}
}

// WithSwapchainFormat sets the presentation format.
func WithSwapchainFormat(f gpucore.TextureFormat) Option {
	return func(c *Config) {
		c.SwapchainFormat = f
	}
}

// WithLogger sets the logger for one Context.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}
