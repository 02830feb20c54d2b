// Package compositor owns the square pixel surface published as the video
// track. Each tick copies the current frame of the configured source onto
// the surface, applying cover/contain fit and optional mirroring.
package compositor

import (
	"image"
	"image/color"
	"image/draw"
	"sync"

	xdraw "golang.org/x/image/draw"

	"driftcast/internal/core"
)

var blankColor = color.RGBA{R: 0x10, G: 0x10, B: 0x12, A: 0xff}

type Compositor struct {
	mu      sync.Mutex
	size    int
	fit     core.FitMode
	surface *image.RGBA
	spec    core.MediaSourceSpec
}

func New(size int, fit core.FitMode) *Compositor {
	c := &Compositor{}
	c.Configure(size, fit)
	return c
}

// Configure resizes the owned surface. The new surface starts blank.
func (c *Compositor) Configure(size int, fit core.FitMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.size = size
	c.fit = fit
	c.surface = image.NewRGBA(image.Rect(0, 0, size, size))
	fill(c.surface, blankColor)
}

// SetSource swaps the active source spec. The spec is never mutated here.
func (c *Compositor) SetSource(spec core.MediaSourceSpec) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spec = spec
}

// Size returns the destination edge length.
func (c *Compositor) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Tick composites the latest source frame onto the surface and returns it.
// The returned image is owned by the compositor and valid until the next
// Tick. An unreadable or zero-dimension source leaves the previous content
// in place rather than clearing, so a slow source never flickers.
func (c *Compositor) Tick() *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.spec.Kind == core.SourceBlank {
		fill(c.surface, blankColor)
		return c.surface
	}

	src := c.spec.Source
	if src == nil {
		return c.surface
	}
	frame, ok := src.Frame()
	if !ok || frame == nil {
		return c.surface
	}
	b := frame.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return c.surface
	}

	if c.fit == core.FitContain {
		// Letterbox bars are repainted every tick so a source aspect
		// change never leaves stale pixels behind.
		fill(c.surface, blankColor)
	}

	dst := fitRect(b.Dx(), b.Dy(), c.size, c.fit)
	xdraw.BiLinear.Scale(c.surface, dst, frame, b, xdraw.Src, nil)

	if c.mirrored() {
		mirrorHorizontal(c.surface)
	}
	return c.surface
}

// mirrored applies only to a front camera with mirroring requested.
func (c *Compositor) mirrored() bool {
	return c.spec.Kind == core.SourceCamera &&
		c.spec.Facing == core.FacingFront &&
		c.spec.Mirror
}

func fill(img *image.RGBA, col color.RGBA) {
	draw.Draw(img, img.Bounds(), image.NewUniform(col), image.Point{}, draw.Src)
}

// mirrorHorizontal flips the surface around its vertical centerline.
func mirrorHorizontal(img *image.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride : (y-b.Min.Y)*img.Stride+b.Dx()*4]
		for l, r := 0, b.Dx()-1; l < r; l, r = l+1, r-1 {
			li, ri := l*4, r*4
			for k := 0; k < 4; k++ {
				row[li+k], row[ri+k] = row[ri+k], row[li+k]
			}
		}
	}
}
