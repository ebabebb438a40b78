package hwc

import (
	"image"
	"math"
)

// isEligible reports whether layer i of list can be scanned out by an
// overlay pipe. A rejection is a planning outcome, not an error.
func (p *planner) isEligible(list *LayerList, i int) bool {
	layer := &list.Layers[i]

	if layer.IsSkip() {
		if p.verbose {
			p.log.Debug("layer rejected", "layer", i, "reason", "skip")
		}
		return false
	}
	if layer.PlaneAlpha < 0xFF && !p.caps.PlaneAlpha {
		if p.verbose {
			p.log.Debug("layer rejected", "layer", i, "reason", "plane alpha unsupported")
		}
		return false
	}
	if layer.isAlphaScaled() && !p.caps.AlphaDownscale {
		if p.verbose {
			p.log.Debug("layer rejected", "layer", i, "reason", "alpha downscale")
		}
		return false
	}

	if layer.IsVideo() {
		if p.isSecuring(layer) {
			if p.verbose {
				p.log.Debug("layer rejected", "layer", i, "reason", "securing")
			}
			return false
		}
		if layer.PlaneAlpha < 0xFF {
			if p.verbose {
				p.log.Debug("layer rejected", "layer", i, "reason", "plane alpha on video")
			}
			return false
		}
	} else if layer.Transform.Has90() && !p.caps.RotatedBlits {
		if p.verbose {
			p.log.Debug("layer rejected", "layer", i, "reason", "rotation")
		}
		return false
	}

	if !p.isValidDimension(layer) {
		if p.verbose {
			p.log.Debug("layer rejected", "layer", i, "reason", "dimension")
		}
		return false
	}

	if layer.IsVideo() && !p.overlapsContained(list, i) {
		if p.verbose {
			p.log.Debug("layer rejected", "layer", i, "reason", "partially covered by alpha layer")
		}
		return false
	}
	return true
}

// overlapsContained reports whether every higher layer that blends with
// alpha and overlaps layer i lies entirely inside layer i's destination.
func (p *planner) overlapsContained(list *LayerList, i int) bool {
	dst := list.Layers[i].DisplayFrame
	for j := i + 1; j < len(list.Layers); j++ {
		above := &list.Layers[j]
		if !above.hasAlpha() {
			continue
		}
		if !above.DisplayFrame.Overlaps(dst) {
			continue
		}
		if !above.DisplayFrame.In(dst) {
			return false
		}
	}
	return true
}

// isVideoEligible is the narrower test applied to YUV layers by the
// video-only strategy.
func (p *planner) isVideoEligible(layer *Layer) bool {
	switch {
	case layer.IsSkip():
		return false
	case p.isSecuring(layer):
		return false
	case layer.PlaneAlpha < 0xFF:
		return false
	}
	return p.isValidDimension(layer)
}

// isSecuring reports whether layer carries protected content while the
// display is reconfiguring its secure path.
func (p *planner) isSecuring(layer *Layer) bool {
	return p.securing && layer.Buffer != nil && layer.Buffer.Secure
}

// isValidDimension checks crop size and scale factors against the scaler.
func (p *planner) isValidDimension(layer *Layer) bool {
	if layer.Buffer == nil {
		return false
	}
	w, h := p.attrs.bounds()
	crop, dst := layer.SourceCrop, layer.DisplayFrame
	screen := image.Rect(0, 0, w, h)
	if !dst.In(screen) {
		crop, dst = clipToScissor(crop, dst, screen, layer.Transform)
	}

	cropW, cropH := crop.Dx(), crop.Dy()
	if layer.Transform.Has90() {
		cropW, cropH = cropH, cropW
	}
	dstW, dstH := dst.Dx(), dst.Dy()

	if cropW < p.caps.MinCropSize || cropH < p.caps.MinCropSize {
		return false
	}
	if dstW <= 0 || dstH <= 0 {
		return false
	}

	wDown := math.Ceil(float64(cropW) / float64(dstW))
	hDown := math.Ceil(float64(cropH) / float64(dstH))
	if wDown > float64(p.caps.MaxDownscale) || hDown > float64(p.caps.MaxDownscale) {
		return false
	}
	if p.caps.MaxUpscale > 0 {
		if float64(dstW)/float64(cropW) > float64(p.caps.MaxUpscale) ||
			float64(dstH)/float64(cropH) > float64(p.caps.MaxUpscale) {
			return false
		}
	}
	if !p.caps.RGBDownscale && !layer.IsVideo() && (dstW < cropW || dstH < cropH) {
		return false
	}
	return true
}

// needsBasePipe reports whether an opaque background pipe must sit under
// the bottom layer because it does not cover the display exactly.
func (p *planner) needsBasePipe(layer *Layer) bool {
	if !p.caps.BaseLayerCoverage {
		return false
	}
	w, h := p.attrs.bounds()
	return layer.DisplayFrame != image.Rect(0, 0, w, h)
}
