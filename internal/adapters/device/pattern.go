package device

import (
	"image"
	"image/color"
	"sync"
	"time"
)

var barColors = []color.RGBA{
	{0xc0, 0xc0, 0xc0, 0xff},
	{0xc0, 0xc0, 0x00, 0xff},
	{0x00, 0xc0, 0xc0, 0xff},
	{0x00, 0xc0, 0x00, 0xff},
	{0xc0, 0x00, 0xc0, 0xff},
	{0xc0, 0x00, 0x00, 0xff},
	{0x00, 0x00, 0xc0, 0xff},
}

// TestPattern is a FrameSource producing scrolling color bars. Useful as a
// stand-in stream when no capture hardware is present.
type TestPattern struct {
	w, h  int
	start time.Time

	mu    sync.Mutex
	frame *image.RGBA
}

func NewTestPattern(w, h int) *TestPattern {
	return &TestPattern{w: w, h: h, start: time.Now()}
}

func (t *TestPattern) Frame() (image.Image, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frame == nil {
		t.frame = image.NewRGBA(image.Rect(0, 0, t.w, t.h))
	}
	shift := int(time.Since(t.start).Seconds()*30) % t.w
	barW := t.w / len(barColors)
	if barW == 0 {
		barW = 1
	}
	for x := 0; x < t.w; x++ {
		c := barColors[((x+shift)/barW)%len(barColors)]
		for y := 0; y < t.h; y++ {
			t.frame.SetRGBA(x, y, c)
		}
	}
	return t.frame, true
}
