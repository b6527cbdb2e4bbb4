package scene

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/markerlens/internal/marker/l3pose"
)

// Camera projects view-space points. The camera sits at the origin looking
// down −Z with +Y up.
type Camera struct {
	View       l3pose.Transform
	Projection l3pose.Transform
}

// NewPerspective returns a camera with an OpenGL-style perspective
// projection. fovY is in radians.
func NewPerspective(fovY, aspect, near, far float64) (Camera, error) {
	switch {
	case !(fovY > 0 && fovY < math.Pi):
		return Camera{}, fmt.Errorf("fovY must be in (0, π), got %v", fovY)
	case !(aspect > 0) || math.IsInf(aspect, 1):
		return Camera{}, fmt.Errorf("aspect must be positive and finite, got %v", aspect)
	case near <= 0 || far <= near:
		return Camera{}, fmt.Errorf("need 0 < near < far, got near=%v far=%v", near, far)
	}

	f := 1 / math.Tan(fovY/2)
	proj := mat.NewDense(4, 4, []float64{
		f / aspect, 0, 0, 0,
		0, f, 0, 0,
		0, 0, (far + near) / (near - far), 2 * far * near / (near - far),
		0, 0, -1, 0,
	})
	return Camera{View: l3pose.Identity(), Projection: l3pose.FromDense(proj)}, nil
}

// ViewProjection returns Projection·View.
func (c Camera) ViewProjection() l3pose.Transform {
	return c.Projection.Mul(c.View)
}
