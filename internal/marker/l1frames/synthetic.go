package l1frames

import (
	"context"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/banshee-data/markerlens/internal/timeutil"
)

// SyntheticCamera generates frames with a red square marker orbiting the
// frame centre on a neutral background. It stands in for a physical camera
// in demos and tests.
type SyntheticCamera struct {
	Width        int     // Frame width (default 320)
	Height       int     // Frame height (default 240)
	MarkerSize   int     // Side of the square marker in pixels (default 24)
	OrbitRadius  float64 // Orbit radius in pixels (default Height/4)
	OrbitPeriod  int     // Frames per revolution (default 120)
	WarmupFrames int     // Frames reported as not ready after acquisition
	DropoutEvery int     // When > 0, every Nth frame has no marker
	Clock        timeutil.Clock

	// Background colour; defaults to mid grey.
	Background color.RGBA
}

// NewSyntheticCamera returns a SyntheticCamera with default geometry.
func NewSyntheticCamera() *SyntheticCamera {
	return &SyntheticCamera{
		Width:       320,
		Height:      240,
		MarkerSize:  24,
		OrbitPeriod: 120,
		Background:  color.RGBA{R: 128, G: 128, B: 128, A: 255},
	}
}

// Acquire never fails unless ctx is already done. Constraint dimensions,
// when set, override the generator's own size.
func (c *SyntheticCamera) Acquire(ctx context.Context, cons Constraints) (Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g := *c
	if cons.Width > 0 {
		g.Width = cons.Width
	}
	if cons.Height > 0 {
		g.Height = cons.Height
	}
	if g.Width <= 0 {
		g.Width = 320
	}
	if g.Height <= 0 {
		g.Height = 240
	}
	if g.MarkerSize <= 0 {
		g.MarkerSize = 24
	}
	if g.OrbitRadius <= 0 {
		g.OrbitRadius = float64(g.Height) / 4
	}
	if g.OrbitPeriod <= 0 {
		g.OrbitPeriod = 120
	}
	if g.Background == (color.RGBA{}) {
		g.Background = color.RGBA{R: 128, G: 128, B: 128, A: 255}
	}
	if g.Clock == nil {
		g.Clock = timeutil.RealClock{}
	}
	return &syntheticSource{gen: g}, nil
}

type syntheticSource struct {
	mu       sync.Mutex
	gen      SyntheticCamera
	produced int
	stamper  Stamper
}

func (s *syntheticSource) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.produced >= s.gen.WarmupFrames
}

func (s *syntheticSource) Frame() (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ready := s.produced >= s.gen.WarmupFrames
	n := s.produced
	s.produced++
	seq, ts := s.stamper.Stamp(s.gen.Clock.Now())

	if !ready {
		return &Frame{Seq: seq, Timestamp: ts}, nil
	}

	img := image.NewRGBA(image.Rect(0, 0, s.gen.Width, s.gen.Height))
	bg := s.gen.Background
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = bg.R, bg.G, bg.B, 255
	}

	if s.gen.DropoutEvery <= 0 || (n+1)%s.gen.DropoutEvery != 0 {
		cx, cy := s.gen.MarkerCentre(n)
		FillRect(img, SquareAt(cx, cy, s.gen.MarkerSize), color.RGBA{R: 230, G: 20, B: 20, A: 255})
	}

	return NewFrame(seq, ts, img, true), nil
}

func (s *syntheticSource) Close() error { return nil }

// MarkerCentre returns the integer marker centre for frame index n.
func (c *SyntheticCamera) MarkerCentre(n int) (int, int) {
	theta := 2 * math.Pi * float64(n%c.OrbitPeriod) / float64(c.OrbitPeriod)
	cx := float64(c.Width)/2 + c.OrbitRadius*math.Cos(theta)
	cy := float64(c.Height)/2 + c.OrbitRadius*math.Sin(theta)
	return int(math.Round(cx)), int(math.Round(cy))
}

// SquareAt returns a size×size rectangle centred on (cx, cy).
func SquareAt(cx, cy, size int) image.Rectangle {
	x0 := cx - size/2
	y0 := cy - size/2
	return image.Rect(x0, y0, x0+size, y0+size)
}

// FillRect paints r (clipped to img) with c.
func FillRect(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}
