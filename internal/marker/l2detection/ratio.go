package l2detection

import "github.com/banshee-data/markerlens/internal/marker/l1frames"

// DefaultCoverageRatio is the fraction of marker-coloured pixels above
// which RatioDetector reports a marker.
const DefaultCoverageRatio = 0.01

// RatioParams configures RatioDetector.
type RatioParams struct {
	Threshold        ColorThreshold
	CoverageRatio    float64
	PlaceholderDepth float64
}

// DefaultRatioParams returns the production defaults.
func DefaultRatioParams() RatioParams {
	return RatioParams{
		Threshold:        DefaultColorThreshold(),
		CoverageRatio:    DefaultCoverageRatio,
		PlaceholderDepth: DefaultPlaceholderDepth,
	}
}

// RatioDetector is the coarse single-marker fallback. It only measures how
// much of the frame is marker-coloured and does not localize.
type RatioDetector struct {
	params RatioParams
}

// NewRatioDetector creates a RatioDetector.
func NewRatioDetector(params RatioParams) *RatioDetector {
	return &RatioDetector{params: params}
}

// Emits reports KindSingle.
func (d *RatioDetector) Emits() ResultKind { return KindSingle }

// Detect reports a SingleDetection when the marker pixel ratio exceeds
// CoverageRatio.
func (d *RatioDetector) Detect(frame *l1frames.Frame) Result {
	if !frameUsable(frame) {
		return NoDetection{}
	}

	count := d.params.Threshold.Count(frame)
	ratio := float64(count) / float64(frame.PixelCount())
	if ratio <= d.params.CoverageRatio {
		return NoDetection{}
	}

	return SingleDetection{Detection: Detection{
		PixelMass: count,
		Pose: RotationTranslation{
			RVec: []float64{0, 0, 0},
			TVec: []float64{0, 0, d.params.PlaceholderDepth},
		},
	}}
}
