// Command hwcsim runs scripted frames through the overlay composition
// planner against a simulated pipe pool. It prints the plan of every frame
// and writes what the display would show.
//
// Usage:
//
//	hwcsim [-scenario frames.json] [-config hwc.json] [-out dir] [-format png|webp]
package main

import (
	"flag"
	"image"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gogpu/hwc"
)

func main() {
	var (
		scenarioPath = flag.String("scenario", "", "scenario file (built-in demo when empty)")
		configPath   = flag.String("config", "", "composer config file, overrides the scenario's")
		generation   = flag.String("generation", "", "hardware generation (MDP4.1, MDP4.2, MDP4.3, MDSS5)")
		outDir       = flag.String("out", "hwcsim-out", "output directory")
		format       = flag.String("format", "png", "frame image format: png or webp")
		anim         = flag.Bool("anim", false, "also write all frames as an animated WebP")
		verbose      = flag.Bool("v", false, "log planner decisions")
		width        = flag.Int("width", 0, "display width")
		height       = flag.Int("height", 0, "display height")
		vg           = flag.Int("vg", -1, "VG pipes")
		rgb          = flag.Int("rgb", -1, "RGB pipes")
		dma          = flag.Int("dma", -1, "DMA pipes")
		rotators     = flag.Int("rotators", -1, "rotator sessions")
	)
	flag.Parse()

	sc := defaultScenario()
	if *scenarioPath != "" {
		var err error
		if sc, err = LoadScenario(*scenarioPath); err != nil {
			log.Fatalf("Failed to load scenario: %v", err)
		}
	}
	sc.Resolve(Flags{Width: *width, Height: *height, VG: *vg, RGB: *rgb, DMA: *dma, Rotators: *rotators})

	cfg, err := sc.Config()
	if err != nil {
		log.Fatalf("Invalid scenario config: %v", err)
	}
	if *configPath != "" {
		if cfg, err = hwc.LoadConfig(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *generation != "" {
		var g hwc.Generation
		if err := g.UnmarshalText([]byte(*generation)); err != nil {
			log.Fatalf("Invalid generation: %v", err)
		}
		cfg.Capabilities = hwc.CapabilitiesFor(g)
	}

	logger := slog.New(slog.DiscardHandler)
	if *verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	sim, err := newSimulator(sc, cfg, os.Stdout, logger)
	if err != nil {
		log.Fatalf("Failed to create composer: %v", err)
	}
	defer sim.close()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	var frames []image.Image
	for i := range sc.Frames {
		screen, err := sim.step(i)
		if err != nil {
			log.Fatalf("Frame %d failed: %v", i, err)
		}
		if err := saveImage(framePath(*outDir, *format, i), *format, screen); err != nil {
			log.Fatalf("Failed to save: %v", err)
		}
		frames = append(frames, screen)
	}

	if *anim && len(frames) > 0 {
		path := filepath.Join(*outDir, "frames.webp")
		if err := saveAnimation(path, frames); err != nil {
			log.Fatalf("Failed to save animation: %v", err)
		}
	}

	log.Printf("%d frames written to %s (%dx%d, %s)\n", len(frames), *outDir, sc.Display.Width, sc.Display.Height, cfg.Capabilities.Generation)
}
