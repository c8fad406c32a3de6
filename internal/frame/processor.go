package frame

import (
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/disintegration/gift"
)

// Transform is a snapshot of the post-processing settings.
type Transform struct {
	Angle     int  `json:"angle" doc:"Rotation in degrees, counter-clockwise positive"`
	FlipV     bool `json:"flip_vertical"`
	FlipH     bool `json:"flip_horizontal"`
	Crosshair bool `json:"crosshair"`
}

// Identity reports whether the transform leaves images untouched.
func (t Transform) Identity() bool {
	return t.Angle == 0 && !t.FlipV && !t.FlipH && !t.Crosshair
}

// Apply runs rotate, vertical flip, horizontal flip, then crosshair.
// src is never modified.
func (t Transform) Apply(src image.Image) image.Image {
	if t.Identity() {
		return src
	}

	var filters []gift.Filter
	switch t.Angle {
	case 90, -270:
		filters = append(filters, gift.Rotate90())
	case 180, -180:
		filters = append(filters, gift.Rotate180())
	case 270, -90:
		filters = append(filters, gift.Rotate270())
	}
	if t.FlipV {
		filters = append(filters, gift.FlipVertical())
	}
	if t.FlipH {
		filters = append(filters, gift.FlipHorizontal())
	}

	g := gift.New(filters...)
	dst := newLike(src, g.Bounds(src.Bounds()))
	g.Draw(dst, src)

	if t.Crosshair {
		drawCrosshair(dst)
	}
	return dst
}

func newLike(src image.Image, r image.Rectangle) draw.Image {
	if _, ok := src.(*image.Gray); ok {
		return image.NewGray(r)
	}
	return image.NewNRGBA(r)
}

// drawCrosshair paints two lines through the image midpoint.
func drawCrosshair(img draw.Image) {
	b := img.Bounds()
	thickness := max(1, min(b.Dx(), b.Dy())/200)

	var c color.Color = color.NRGBA{R: 0xff, A: 0xff}
	if _, ok := img.(*image.Gray); ok {
		c = color.Gray{Y: 0xff}
	}
	ink := image.NewUniform(c)

	cx := b.Min.X + b.Dx()/2
	cy := b.Min.Y + b.Dy()/2
	half := thickness / 2
	draw.Draw(img, image.Rect(b.Min.X, cy-half, b.Max.X, cy-half+thickness), ink, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(cx-half, b.Min.Y, cx-half+thickness, b.Max.Y), ink, image.Point{}, draw.Src)
}

// Processor holds the mutable transform settings of one camera.
// It is safe for concurrent use by the preview and acquisition loops.
type Processor struct {
	mu sync.RWMutex
	t  Transform
}

// Transform returns the current settings.
func (p *Processor) Transform() Transform {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.t
}

// RotateLeft rotates 90° counter-clockwise and returns the new angle.
func (p *Processor) RotateLeft() int {
	return p.rotate(90)
}

// RotateRight rotates 90° clockwise and returns the new angle.
func (p *Processor) RotateRight() int {
	return p.rotate(-90)
}

func (p *Processor) rotate(delta int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.t.Angle += delta
	if p.t.Angle == 360 || p.t.Angle == -360 {
		p.t.Angle = 0
	}
	return p.t.Angle
}

// ToggleFlipV flips the vertical mirror flag and returns the new value.
func (p *Processor) ToggleFlipV() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.t.FlipV = !p.t.FlipV
	return p.t.FlipV
}

// ToggleFlipH flips the horizontal mirror flag and returns the new value.
func (p *Processor) ToggleFlipH() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.t.FlipH = !p.t.FlipH
	return p.t.FlipH
}

// ToggleCrosshair flips the crosshair flag and returns the new value.
func (p *Processor) ToggleCrosshair() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.t.Crosshair = !p.t.Crosshair
	return p.t.Crosshair
}

// Process applies the current settings to f and returns a new frame.
func (p *Processor) Process(f *Frame) *Frame {
	t := p.Transform()
	if t.Identity() {
		return f
	}
	out := *f
	out.Image = t.Apply(f.Image)
	return &out
}
