package l3pose

import (
	"github.com/banshee-data/markerlens/internal/config"
	"github.com/banshee-data/markerlens/internal/marker/l2detection"
)

// DefaultTranslationScale converts placeholder translation units to scene
// units.
const DefaultTranslationScale = 0.01

// Estimator converts detections to transforms.
type Estimator struct {
	// TranslationScale multiplies Euler/translation payload translations.
	TranslationScale float64
}

// NewEstimator returns an Estimator using the given translation scale.
// Zero selects the default.
func NewEstimator(scale float64) *Estimator {
	if scale == 0 {
		scale = DefaultTranslationScale
	}
	return &Estimator{TranslationScale: scale}
}

// EstimatorFromTuning builds an Estimator from a loaded TuningConfig.
func EstimatorFromTuning(cfg *config.TuningConfig) *Estimator {
	return NewEstimator(cfg.GetTranslationScale())
}

// Estimate returns the transform for det and whether its payload was
// usable. Malformed, non-finite or missing payloads yield false.
func (e *Estimator) Estimate(det l2detection.Detection) (Transform, bool) {
	switch p := det.Pose.(type) {
	case l2detection.MatrixPayload:
		return FromLibrary(p.Values)
	case l2detection.RotationTranslation:
		return FromEuler(p.RVec, p.TVec, e.TranslationScale)
	default:
		return Transform{}, false
	}
}

// FromLibrary wraps a 16-value library matrix. Values are used as-is. A
// matrix whose homogeneous row is all zero was not written by the library
// and yields false.
func FromLibrary(values []float64) (Transform, bool) {
	if len(values) != len(Transform{}) || !allFinite(values) {
		return Transform{}, false
	}
	if values[12] == 0 && values[13] == 0 && values[14] == 0 && values[15] == 0 {
		return Transform{}, false
	}
	var t Transform
	copy(t[:], values)
	return t, true
}

// FromEuler composes T(s·tx, −s·ty, −s·tz)·Rx(rx)·Ry(ry)·Rz(rz). The Y and
// Z axes are flipped to go from image coordinates (Y down, Z into the
// scene) to scene coordinates.
func FromEuler(rvec, tvec []float64, scale float64) (Transform, bool) {
	if len(rvec) != 3 || len(tvec) != 3 || !allFinite(rvec) || !allFinite(tvec) {
		return Transform{}, false
	}

	translate := Translate(scale*tvec[0], -scale*tvec[1], -scale*tvec[2])
	t := translate.Mul(RotateX(rvec[0])).Mul(RotateY(rvec[1])).Mul(RotateZ(rvec[2]))
	if !t.IsFinite() {
		return Transform{}, false
	}
	return t, true
}
