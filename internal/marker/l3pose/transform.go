package l3pose

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Transform is a row-major 4x4 homogeneous transform.
type Transform [16]float64

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Translate returns a pure translation.
func Translate(x, y, z float64) Transform {
	t := Identity()
	t[3], t[7], t[11] = x, y, z
	return t
}

// RotateX returns a rotation of a radians about the X axis.
func RotateX(a float64) Transform {
	s, c := math.Sincos(a)
	return Transform{
		1, 0, 0, 0,
		0, c, -s, 0,
		0, s, c, 0,
		0, 0, 0, 1,
	}
}

// RotateY returns a rotation of a radians about the Y axis.
func RotateY(a float64) Transform {
	s, c := math.Sincos(a)
	return Transform{
		c, 0, s, 0,
		0, 1, 0, 0,
		-s, 0, c, 0,
		0, 0, 0, 1,
	}
}

// RotateZ returns a rotation of a radians about the Z axis.
func RotateZ(a float64) Transform {
	s, c := math.Sincos(a)
	return Transform{
		c, -s, 0, 0,
		s, c, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// FromDense copies a 4x4 matrix into a Transform.
func FromDense(m mat.Matrix) Transform {
	var t Transform
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			t[r*4+c] = m.At(r, c)
		}
	}
	return t
}

// Dense returns t as a gonum matrix. The backing data is a copy.
func (t Transform) Dense() *mat.Dense {
	data := make([]float64, 16)
	copy(data, t[:])
	return mat.NewDense(4, 4, data)
}

// Mul returns t·o.
func (t Transform) Mul(o Transform) Transform {
	var out mat.Dense
	out.Mul(t.Dense(), o.Dense())
	return FromDense(&out)
}

// Apply transforms the point (x, y, z, 1). The result is divided by w when
// w is neither zero nor one.
func (t Transform) Apply(x, y, z float64) (float64, float64, float64) {
	ox := t[0]*x + t[1]*y + t[2]*z + t[3]
	oy := t[4]*x + t[5]*y + t[6]*z + t[7]
	oz := t[8]*x + t[9]*y + t[10]*z + t[11]
	w := t[12]*x + t[13]*y + t[14]*z + t[15]
	if w != 0 && w != 1 {
		return ox / w, oy / w, oz / w
	}
	return ox, oy, oz
}

// Translation returns the translation column.
func (t Transform) Translation() (x, y, z float64) {
	return t[3], t[7], t[11]
}

// IsFinite reports whether every element is finite.
func (t Transform) IsFinite() bool {
	return allFinite(t[:])
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
