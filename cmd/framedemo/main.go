// Command framedemo drives the frame loop of a gfxcore Context and prints
// frame and memory statistics.
//
// By default it renders offscreen on the best available backend:
//
//	framedemo -frames 300
//	framedemo -backend software -resize 60
//	framedemo -window -backend vulkan
//	framedemo -images ./textures
package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/gogpu/gfxcore"
	"github.com/gogpu/gfxcore/backend"
	_ "github.com/gogpu/gfxcore/backend/native"
	_ "github.com/gogpu/gfxcore/backend/vulkan"
	"github.com/gogpu/gfxcore/gpucore"
	"github.com/gogpu/gfxcore/loader"
	"github.com/gogpu/gfxcore/surface"
	"github.com/gogpu/gfxcore/surface/window"
)

const uniformSize = 64 << 10

func main() {
	var (
		backendName = flag.String("backend", "auto", "backend: auto, vulkan, native or software")
		windowed    = flag.Bool("window", false, "present to a GLFW window")
		width       = flag.Int("width", 800, "surface width")
		height      = flag.Int("height", 600, "surface height")
		frames      = flag.Int("frames", 120, "frames to render, 0 runs until the window closes")
		inFlight    = flag.Int("frames-in-flight", gfxcore.DefaultFramesInFlight, "frames recorded ahead of the GPU")
		vsync       = flag.Bool("vsync", true, "wait for vertical blank")
		resize      = flag.Int("resize", 0, "resize the headless surface every N frames")
		images      = flag.String("images", "", "directory of images to load as textures")
		validation  = flag.Bool("validation", false, "enable API validation layers")
		verbose     = flag.Bool("v", false, "debug logging")
		memJSON     = flag.Bool("memory-json", false, "print detailed memory statistics as JSON on exit")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	gfxcore.SetLogger(logger)

	opts := backend.Options{AppName: "framedemo", Validation: *validation, Logger: logger}

	var win *window.Window
	if *windowed {
		w, err := window.New(*width, *height, "framedemo")
		if err != nil {
			log.Fatalf("open window: %v", err)
		}
		defer w.Close()
		win = w
		opts.Window = w
	}

	dev, err := openDevice(*backendName, opts)
	if err != nil {
		log.Fatalf("open device: %v", err)
	}
	defer dev.Destroy()

	info := dev.Info()
	log.Printf("device: %s (%s)", info.Name, info.Backend)

	var (
		surf     gpucore.Surface
		headless *surface.Headless
	)
	switch {
	case win != nil:
		if surf, err = backend.SurfaceOf(dev); err != nil {
			log.Fatalf("surface: %v", err)
		}
	case info.Backend == backend.BackendSoftware:
		headless = surface.NewHeadless(uint32(*width), uint32(*height))
		surf = headless
	}

	gfx, err := gfxcore.NewContext(dev, surf,
		gfxcore.WithFramesInFlight(*inFlight),
		gfxcore.WithVSync(*vsync),
		gfxcore.WithLogger(logger),
	)
	if err != nil {
		log.Fatalf("create context: %v", err)
	}
	defer func() {
		if err := gfx.Close(); err != nil {
			log.Printf("close context: %v", err)
		}
	}()

	switch {
	case win != nil:
		defer win.OnResize(gfx.OnResize)()
	case headless != nil:
		defer headless.OnResize(gfx.OnResize)()
	}

	if err := run(gfx, win, headless, *frames, *resize, *images, logger); err != nil {
		log.Printf("run: %v", err)
	}

	log.Printf("stats: %s", gfx.Stats())
	if *memJSON {
		fmt.Println(gfx.MemoryStats(true))
	}
}

func openDevice(name string, opts backend.Options) (gpucore.Device, error) {
	if name == "auto" {
		return backend.Default(opts)
	}
	return backend.Open(name, opts)
}

func run(gfx *gfxcore.Context, win *window.Window, headless *surface.Headless, frames, resizeEvery int, imageDir string, logger *slog.Logger) error {
	uniforms, err := gfx.CreateBuffer(gfxcore.BufferDescriptor{
		Label: "per-frame uniforms",
		Size:  uniformSize,
		Usage: gfxcore.UsageDynamic,
		Bind:  gpucore.BufferUsageUniform,
	})
	if err != nil {
		return fmt.Errorf("create uniform buffer: %w", err)
	}
	defer func() { _ = gfx.Destroy(uniforms) }()

	var textures *loader.Loader
	if imageDir != "" {
		textures, err = loader.New(gfx, loader.Config{MaxDimension: 2048, Logger: logger})
		if err != nil {
			return err
		}
		defer textures.Close()
		if err := queueImages(textures, imageDir); err != nil {
			return err
		}
	}

	start := time.Now()
	rendered, skipped := 0, 0
	for frames == 0 || rendered < frames {
		if win != nil && !win.PollEvents() {
			break
		}
		if headless != nil && resizeEvery > 0 && rendered > 0 && rendered%resizeEvery == 0 {
			w, h := headless.Extent()
			headless.Resize(h, w)
		}

		err := gfx.BeginFrame()
		if errors.Is(err, gfxcore.ErrOutOfDate) {
			// Minimized.
			skipped++
			if win != nil {
				win.WaitEvents()
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("frame %d: %w", rendered, err)
		}

		if err := writeUniforms(gfx, uniforms, rendered); err != nil {
			return fmt.Errorf("frame %d: %w", rendered, err)
		}
		if textures != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Millisecond)
			if n, _ := textures.Flush(ctx); n > 0 {
				logger.Info("textures uploaded", "count", n, "pending", textures.Pending())
			}
			cancel()
		}

		if err := gfx.Present(); err != nil {
			if errors.Is(err, gfxcore.ErrOutOfDate) {
				skipped++
				continue
			}
			return fmt.Errorf("present frame %d: %w", rendered, err)
		}
		rendered++
	}

	elapsed := time.Since(start)
	log.Printf("%d frames in %s (%.1f fps), %d skipped", rendered, elapsed.Round(time.Millisecond),
		float64(rendered)/elapsed.Seconds(), skipped)
	return gfx.WaitIdle()
}

// writeUniforms streams one frame of animated data through a write-discard
// mapping.
func writeUniforms(gfx *gfxcore.Context, h gfxcore.Handle, frame int) error {
	if err := gfx.Map(h, gfxcore.MapWriteDiscard); err != nil {
		return err
	}
	var block [64]byte
	t := float64(frame) / 60
	for i := range 16 {
		v := float32(math.Sin(t + float64(i)))
		binary.LittleEndian.PutUint32(block[i*4:], math.Float32bits(v))
	}
	for range uniformSize / len(block) / 4 {
		if err := gfx.Write(h, block[:]); err != nil {
			_ = gfx.Unmap(h)
			return err
		}
	}
	return gfx.Unmap(h)
}

func queueImages(l *loader.Loader, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		l.Load(e.Name(), bytes.NewReader(data))
	}
	return nil
}
