package scene

import (
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/markerlens/internal/marker/l5playback"
)

// Renderer draws a scene from a camera.
type Renderer interface {
	Render(s *Scene, cam Camera) error
}

// NDC is a point in normalized device coordinates.
type NDC struct {
	X, Y, Z float64
}

// ScreenQuad is one visible node projected to NDC. Corners run
// bottom-left, bottom-right, top-right, top-left in the node's plane.
type ScreenQuad struct {
	NodeID  string
	Corners [4]NDC
	Texture *l5playback.TextureHandle
	// Clipped is set when any corner lies behind the camera; Corners are
	// then not meaningful.
	Clipped bool
}

// Centre returns the mean of the corners.
func (q ScreenQuad) Centre() NDC {
	var c NDC
	for _, p := range q.Corners {
		c.X += p.X / 4
		c.Y += p.Y / 4
		c.Z += p.Z / 4
	}
	return c
}

// HeadlessRenderer projects visible nodes without drawing pixels. It keeps
// the quads from the most recent Render call.
type HeadlessRenderer struct {
	mu     sync.Mutex
	frames uint64
	last   []ScreenQuad
}

// NewHeadlessRenderer returns a renderer with no frames drawn.
func NewHeadlessRenderer() *HeadlessRenderer {
	return &HeadlessRenderer{}
}

// Render projects every visible node.
func (r *HeadlessRenderer) Render(s *Scene, cam Camera) error {
	vp := cam.ViewProjection().Dense()

	var quads []ScreenQuad
	for _, n := range s.Nodes() {
		if !n.Visible {
			continue
		}
		quads = append(quads, project(vp, n))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames++
	r.last = quads
	return nil
}

// project maps the node's corners through VP·M in one matrix product, with
// corners as homogeneous columns.
func project(vp *mat.Dense, n Node) ScreenQuad {
	hw, hh := n.Width/2, n.Height/2
	corners := mat.NewDense(4, 4, []float64{
		-hw, hw, hw, -hw,
		-hh, -hh, hh, hh,
		0, 0, 0, 0,
		1, 1, 1, 1,
	})

	var mvp, clip mat.Dense
	mvp.Mul(vp, n.Transform.Dense())
	clip.Mul(&mvp, corners)

	q := ScreenQuad{NodeID: n.ID, Texture: n.Texture}
	for i := 0; i < 4; i++ {
		w := clip.At(3, i)
		if w <= 0 {
			q.Clipped = true
			continue
		}
		q.Corners[i] = NDC{X: clip.At(0, i) / w, Y: clip.At(1, i) / w, Z: clip.At(2, i) / w}
	}
	return q
}

// Frames returns how many times Render has run.
func (r *HeadlessRenderer) Frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// LastQuads returns the quads from the most recent Render.
func (r *HeadlessRenderer) LastQuads() []ScreenQuad {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ScreenQuad(nil), r.last...)
}
