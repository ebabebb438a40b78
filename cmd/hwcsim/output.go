package main

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/HugoSmits86/nativewebp"
)

// frameDelayMS is the display time of one frame in the animation.
const frameDelayMS = 500

// saveImage writes img to path as PNG or lossless WebP.
func saveImage(path, format string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	switch format {
	case "png":
		err = png.Encode(f, img)
	case "webp":
		err = nativewebp.Encode(f, img, nil)
	default:
		err = fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

// saveAnimation writes every frame into one looping WebP animation.
func saveAnimation(path string, frames []image.Image) error {
	ani := &nativewebp.Animation{
		Images:    frames,
		Durations: make([]uint, len(frames)),
		Disposals: make([]uint, len(frames)),
	}
	for i := range ani.Durations {
		ani.Durations[i] = frameDelayMS
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := nativewebp.EncodeAll(f, ani, nil); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

func framePath(dir, format string, i int) string {
	return filepath.Join(dir, fmt.Sprintf("frame-%03d.%s", i, format))
}
