package l3pose

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/banshee-data/markerlens/internal/config"
	"github.com/banshee-data/markerlens/internal/marker/l2detection"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestEstimate_PlaceholderPayload(t *testing.T) {
	// Blob placeholder for a centroid at (19.5, 19.5) in a 100x100 frame.
	det := l2detection.Detection{Pose: l2detection.RotationTranslation{
		RVec: []float64{0, 0, 0},
		TVec: []float64{-30.5, -30.5, 100},
	}}

	got, ok := NewEstimator(0.01).Estimate(det)
	if !ok {
		t.Fatal("expected a pose")
	}
	want := Translate(-0.305, 0.305, -1)
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("Estimate() mismatch (-want +got):\n%s", diff)
	}
}

func TestEstimate_MatrixPassThrough(t *testing.T) {
	values := make([]float64, 16)
	for i := range values {
		values[i] = float64(i) + 0.5
	}
	got, ok := NewEstimator(0).Estimate(l2detection.Detection{Pose: l2detection.MatrixPayload{Values: values}})
	if !ok {
		t.Fatal("expected a pose")
	}
	if diff := cmp.Diff(values, got[:]); diff != "" {
		t.Errorf("matrix should pass through unchanged (-want +got):\n%s", diff)
	}
}

func TestEstimate_Rejects(t *testing.T) {
	nan := math.NaN()
	inf := math.Inf(1)

	tests := []struct {
		name    string
		payload l2detection.PosePayload
	}{
		{"nil payload", nil},
		{"short matrix", l2detection.MatrixPayload{Values: make([]float64, 15)}},
		{"long matrix", l2detection.MatrixPayload{Values: make([]float64, 17)}},
		{"nan in matrix", l2detection.MatrixPayload{Values: append(make([]float64, 15), nan)}},
		{"zero matrix", l2detection.MatrixPayload{Values: make([]float64, 16)}},
		{"zero bottom row", l2detection.MatrixPayload{Values: append([]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, -5}, 0, 0, 0, 0)}},
		{"short rvec", l2detection.RotationTranslation{RVec: []float64{0, 0}, TVec: []float64{0, 0, 0}}},
		{"long tvec", l2detection.RotationTranslation{RVec: []float64{0, 0, 0}, TVec: []float64{0, 0, 0, 0}}},
		{"inf rotation", l2detection.RotationTranslation{RVec: []float64{inf, 0, 0}, TVec: []float64{0, 0, 0}}},
		{"nan translation", l2detection.RotationTranslation{RVec: []float64{0, 0, 0}, TVec: []float64{0, nan, 0}}},
	}

	est := NewEstimator(0.01)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := est.Estimate(l2detection.Detection{Pose: tt.payload}); ok {
				t.Errorf("expected no pose for %s", tt.name)
			}
		})
	}
}

func TestFromEuler_CompositionOrder(t *testing.T) {
	rx, ry, rz := 0.3, -0.7, 1.1
	got, ok := FromEuler([]float64{rx, ry, rz}, []float64{10, 20, 30}, 0.5)
	if !ok {
		t.Fatal("expected a pose")
	}
	want := Translate(5, -10, -15).Mul(RotateX(rx)).Mul(RotateY(ry)).Mul(RotateZ(rz))
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("FromEuler() mismatch (-want +got):\n%s", diff)
	}

	// Rotation block must stay orthonormal.
	r := got.Dense().Slice(0, 3, 0, 3)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var dot float64
			for k := 0; k < 3; k++ {
				dot += r.At(i, k) * r.At(j, k)
			}
			expected := 0.0
			if i == j {
				expected = 1
			}
			if math.Abs(dot-expected) > 1e-9 {
				t.Errorf("row %d·row %d = %v, want %v", i, j, dot, expected)
			}
		}
	}
}

func TestTransform_Apply(t *testing.T) {
	x, y, z := RotateZ(math.Pi/2).Apply(1, 0, 0)
	if math.Abs(x) > 1e-12 || math.Abs(y-1) > 1e-12 || z != 0 {
		t.Errorf("RotateZ(90°)·(1,0,0) = (%v,%v,%v), want (0,1,0)", x, y, z)
	}

	x, y, z = Translate(1, 2, 3).Apply(0, 0, 0)
	if x != 1 || y != 2 || z != 3 {
		t.Errorf("Translate(1,2,3)·origin = (%v,%v,%v)", x, y, z)
	}

	tx, ty, tz := Translate(4, 5, 6).Translation()
	if tx != 4 || ty != 5 || tz != 6 {
		t.Errorf("Translation() = (%v,%v,%v)", tx, ty, tz)
	}
}

func TestTransform_IdentityMul(t *testing.T) {
	m := FromDense(RotateY(0.4).Mul(Translate(1, 2, 3)).Dense())
	if diff := cmp.Diff(m, Identity().Mul(m), approx); diff != "" {
		t.Errorf("I·M != M:\n%s", diff)
	}
	if diff := cmp.Diff(m, m.Mul(Identity()), approx); diff != "" {
		t.Errorf("M·I != M:\n%s", diff)
	}
	if !m.IsFinite() {
		t.Error("expected finite transform")
	}
	m[5] = math.NaN()
	if m.IsFinite() {
		t.Error("expected NaN to be detected")
	}
}

func TestEstimatorFromTuning(t *testing.T) {
	scale := 0.5
	cfg := config.EmptyTuningConfig()
	cfg.TranslationScale = &scale
	if got := EstimatorFromTuning(cfg).TranslationScale; got != 0.5 {
		t.Errorf("TranslationScale = %v, want 0.5", got)
	}
	if got := EstimatorFromTuning(config.EmptyTuningConfig()).TranslationScale; got != DefaultTranslationScale {
		t.Errorf("default TranslationScale = %v", got)
	}
}
