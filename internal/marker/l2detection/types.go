package l2detection

import (
	"image"

	"github.com/banshee-data/markerlens/internal/marker/l1frames"
)

// Point is a sub-pixel position in frame coordinates.
type Point struct {
	X, Y float64
}

// PosePayload is the pose information a detector attaches to a Detection.
// It is either RotationTranslation or MatrixPayload.
type PosePayload interface {
	posePayload()
}

// RotationTranslation carries Euler angles (radians) and a translation in
// detector units. Both slices are expected to hold three values.
type RotationTranslation struct {
	RVec []float64
	TVec []float64
}

// MatrixPayload carries a transform produced by a tracking library.
// Well-formed payloads hold sixteen values.
type MatrixPayload struct {
	Values []float64
}

func (RotationTranslation) posePayload() {}
func (MatrixPayload) posePayload()       {}

// Detection is one candidate marker sighting within a single frame.
type Detection struct {
	Centroid  Point
	PixelMass int             // Contributing pixel count
	Localized bool            // Centroid and Bounds are meaningful
	Bounds    image.Rectangle // Pixel bounding box (exclusive max)
	Pixels    []image.Point   // Only populated when pixel retention is enabled
	Pose      PosePayload
}

// ResultKind names the Result variant a detector emits.
type ResultKind int

const (
	KindNone ResultKind = iota
	KindSingle
	KindMulti
)

func (k ResultKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindSingle:
		return "single"
	case KindMulti:
		return "multi"
	default:
		return "unknown"
	}
}

// Result is the outcome of one Detect call.
type Result interface {
	Kind() ResultKind
	// Detections returns every detection, largest first.
	Detections() []Detection
	// Primary returns the detection used for pose estimation.
	Primary() (Detection, bool)
}

// NoDetection reports that nothing qualified in the frame.
type NoDetection struct{}

// SingleDetection reports one sighting.
type SingleDetection struct {
	Detection Detection
}

// MultiDetection reports one or more localized sightings, largest first.
type MultiDetection struct {
	Items []Detection
}

func (NoDetection) Kind() ResultKind           { return KindNone }
func (NoDetection) Detections() []Detection    { return nil }
func (NoDetection) Primary() (Detection, bool) { return Detection{}, false }

func (SingleDetection) Kind() ResultKind             { return KindSingle }
func (s SingleDetection) Detections() []Detection    { return []Detection{s.Detection} }
func (s SingleDetection) Primary() (Detection, bool) { return s.Detection, true }

func (MultiDetection) Kind() ResultKind          { return KindMulti }
func (m MultiDetection) Detections() []Detection { return m.Items }

func (m MultiDetection) Primary() (Detection, bool) {
	if len(m.Items) == 0 {
		return Detection{}, false
	}
	return m.Items[0], true
}

// Detector scans a frame for markers.
type Detector interface {
	// Detect returns a fresh Result for frame. It never panics on nil,
	// empty or not-ready frames; those yield NoDetection.
	Detect(frame *l1frames.Frame) Result
	// Emits declares the non-empty variant this detector produces.
	Emits() ResultKind
}

// frameUsable reports whether a frame may be scanned.
func frameUsable(frame *l1frames.Frame) bool {
	return frame != nil && frame.Ready && !frame.Empty()
}
