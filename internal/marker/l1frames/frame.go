package l1frames

import (
	"image"
	"time"

	xdraw "golang.org/x/image/draw"
)

// Frame is one captured RGBA image. Frames are never mutated after
// construction; the tick that acquired a frame owns it and drops it once
// detection has run.
type Frame struct {
	Seq       uint64    // Per-source sequence number, starting at 1
	Timestamp time.Time // Capture time, strictly increasing per source
	Width     int
	Height    int
	Stride    int     // Bytes per row in Pix
	Pix       []uint8 // RGBA, 4 bytes per pixel
	Ready     bool    // Source reported enough decoded data for this frame
}

// NewFrame copies img into a new Frame. When img is already *image.RGBA
// with a zero origin its pixels are still copied so the caller may reuse
// the image.
func NewFrame(seq uint64, ts time.Time, img image.Image, ready bool) *Frame {
	rgba := ToRGBA(img)
	pix := make([]uint8, len(rgba.Pix))
	copy(pix, rgba.Pix)
	b := rgba.Bounds()
	return &Frame{
		Seq:       seq,
		Timestamp: ts,
		Width:     b.Dx(),
		Height:    b.Dy(),
		Stride:    rgba.Stride,
		Pix:       pix,
		Ready:     ready,
	}
}

// PixelCount returns Width*Height.
func (f *Frame) PixelCount() int {
	if f == nil {
		return 0
	}
	return f.Width * f.Height
}

// Empty reports whether the frame holds no pixels.
func (f *Frame) Empty() bool {
	return f.PixelCount() == 0 || len(f.Pix) < f.Height*f.Stride
}

// RGB returns the colour channels at (x, y). Coordinates must be in range.
func (f *Frame) RGB(x, y int) (r, g, b uint8) {
	i := y*f.Stride + x*4
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

// Image returns an *image.RGBA view over the frame's pixels. Callers must
// treat it as read-only.
func (f *Frame) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Pix,
		Stride: f.Stride,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// ToRGBA converts img to an *image.RGBA anchored at the origin.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
	return dst
}

// Resize scales img to width×height with nearest-neighbour sampling so
// every output pixel keeps an exact source colour. A non-positive dimension
// or a matching size returns img converted to RGBA unchanged.
func Resize(img image.Image, width, height int) *image.RGBA {
	b := img.Bounds()
	if width <= 0 || height <= 0 || (b.Dx() == width && b.Dy() == height) {
		return ToRGBA(img)
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}
