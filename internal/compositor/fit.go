package compositor

import (
	"image"
	"math"

	"driftcast/internal/core"
)

// fitRect computes where a srcW x srcH frame lands on a dst x dst surface.
// Under cover the rect can exceed the surface and the draw clips it, which
// yields a centered crop; under contain the rect fits inside and the
// remainder is letterboxed. Offsets are always centered.
func fitRect(srcW, srcH, dst int, mode core.FitMode) image.Rectangle {
	if srcW <= 0 || srcH <= 0 || dst <= 0 {
		return image.Rectangle{}
	}
	sx := float64(dst) / float64(srcW)
	sy := float64(dst) / float64(srcH)

	var scale float64
	if mode == core.FitContain {
		scale = math.Min(sx, sy)
	} else {
		scale = math.Max(sx, sy)
	}

	w := int(math.Round(float64(srcW) * scale))
	h := int(math.Round(float64(srcH) * scale))
	x := (dst - w) / 2
	y := (dst - h) / 2
	return image.Rect(x, y, x+w, y+h)
}
