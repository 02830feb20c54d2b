package compositor

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"driftcast/internal/core"
)

// halfSplitSource yields a frame whose left half is red and right half blue,
// which makes mirroring observable.
type halfSplitSource struct {
	w, h  int
	ready bool
}

func (s *halfSplitSource) Frame() (image.Image, bool) {
	if !s.ready {
		return nil, false
	}
	img := image.NewRGBA(image.Rect(0, 0, s.w, s.h))
	red := color.RGBA{R: 0xff, A: 0xff}
	blue := color.RGBA{B: 0xff, A: 0xff}
	draw.Draw(img, image.Rect(0, 0, s.w/2, s.h), image.NewUniform(red), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(s.w/2, 0, s.w, s.h), image.NewUniform(blue), image.Point{}, draw.Src)
	return img, true
}

func leftIsRed(img *image.RGBA) bool {
	c := img.RGBAAt(4, img.Bounds().Dy()/2)
	return c.R > c.B
}

func TestBlankSourceFillsSurface(t *testing.T) {
	c := New(64, core.FitCover)
	c.SetSource(core.BlankSource())

	out := c.Tick()
	if got := out.Bounds(); got.Dx() != 64 || got.Dy() != 64 {
		t.Fatalf("surface must stay destSize x destSize, got %v", got)
	}
	want := blankColor
	for _, p := range []image.Point{{0, 0}, {63, 63}, {32, 32}} {
		if out.RGBAAt(p.X, p.Y) != want {
			t.Fatalf("pixel %v not blank: %v", p, out.RGBAAt(p.X, p.Y))
		}
	}
}

func TestUnreadySourceSkipsWithoutClearing(t *testing.T) {
	c := New(64, core.FitCover)
	src := &halfSplitSource{w: 128, h: 128, ready: true}
	c.SetSource(core.StreamSource(src))
	c.Tick()

	before := c.surface.RGBAAt(4, 32)
	src.ready = false
	out := c.Tick()
	if out.RGBAAt(4, 32) != before {
		t.Fatal("tick with unready source must not touch the surface")
	}
}

func TestMirrorOnlyForFrontCameraWithMirrorSet(t *testing.T) {
	cases := []struct {
		name   string
		spec   func(src core.FrameSource) core.MediaSourceSpec
		mirror bool
	}{
		{"front camera mirrored", func(s core.FrameSource) core.MediaSourceSpec {
			return core.CameraSource(s, core.FacingFront, true)
		}, true},
		{"front camera unmirrored", func(s core.FrameSource) core.MediaSourceSpec {
			return core.CameraSource(s, core.FacingFront, false)
		}, false},
		{"back camera mirror flag set", func(s core.FrameSource) core.MediaSourceSpec {
			return core.CameraSource(s, core.FacingBack, true)
		}, false},
		{"external stream", core.StreamSource, false},
		{"external surface", core.SurfaceSource, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := New(64, core.FitCover)
			c.SetSource(tc.spec(&halfSplitSource{w: 128, h: 128, ready: true}))
			out := c.Tick()
			if tc.mirror && leftIsRed(out) {
				t.Fatal("expected mirrored output, left half still red")
			}
			if !tc.mirror && !leftIsRed(out) {
				t.Fatal("expected unmirrored output, left half not red")
			}
		})
	}
}

func TestOutputAlwaysDestinationSize(t *testing.T) {
	c := New(512, core.FitCover)
	c.SetSource(core.StreamSource(&halfSplitSource{w: 1280, h: 720, ready: true}))
	out := c.Tick()
	if out.Bounds().Dx() != 512 || out.Bounds().Dy() != 512 {
		t.Fatalf("output must be exactly destSize x destSize, got %v", out.Bounds())
	}
}

func TestConfigureResizesAndBlanks(t *testing.T) {
	c := New(64, core.FitCover)
	c.SetSource(core.StreamSource(&halfSplitSource{w: 128, h: 128, ready: true}))
	c.Tick()

	c.Configure(32, core.FitContain)
	out := c.Tick()
	if out.Bounds().Dx() != 32 {
		t.Fatalf("expected resized surface, got %v", out.Bounds())
	}
}
