package l2detection

import (
	"image"
	"sort"

	"github.com/banshee-data/markerlens/internal/marker/l1frames"
)

// Constants for blob detection.
const (
	// DefaultMinClusterPixels is the noise floor: clusters with this many
	// pixels or fewer are discarded.
	DefaultMinClusterPixels = 20
	// DefaultMaxDetections caps the number of clusters returned per frame.
	DefaultMaxDetections = 4
	// DefaultPlaceholderDepth is the translation depth written into
	// placeholder pose payloads.
	DefaultPlaceholderDepth = 100.0
)

// BlobParams configures the connected-component detector.
type BlobParams struct {
	Threshold        ColorThreshold
	MinClusterPixels int     // Clusters with count <= this are noise
	MaxDetections    int     // At most this many detections are returned
	PlaceholderDepth float64 // Z of the placeholder translation
	RetainPixels     bool    // Copy each cluster's pixel list into its Detection
}

// DefaultBlobParams returns the production defaults.
func DefaultBlobParams() BlobParams {
	return BlobParams{
		Threshold:        DefaultColorThreshold(),
		MinClusterPixels: DefaultMinClusterPixels,
		MaxDetections:    DefaultMaxDetections,
		PlaceholderDepth: DefaultPlaceholderDepth,
	}
}

// BlobDetector finds red blobs with 4-connected component labelling and
// reports the largest as a MultiDetection.
type BlobDetector struct {
	params BlobParams
}

// NewBlobDetector creates a BlobDetector. Non-positive MaxDetections falls
// back to the default.
func NewBlobDetector(params BlobParams) *BlobDetector {
	if params.MaxDetections <= 0 {
		params.MaxDetections = DefaultMaxDetections
	}
	return &BlobDetector{params: params}
}

// Params returns the detector configuration.
func (d *BlobDetector) Params() BlobParams { return d.params }

// Emits reports KindMulti.
func (d *BlobDetector) Emits() ResultKind { return KindMulti }

// Detect labels the frame's marker mask and returns qualifying clusters.
func (d *BlobDetector) Detect(frame *l1frames.Frame) Result {
	if !frameUsable(frame) {
		return NoDetection{}
	}

	mask, count := d.params.Threshold.Mask(frame)
	if count == 0 {
		return NoDetection{}
	}

	clusters := labelComponents(mask, frame.Width, frame.Height, d.params.RetainPixels)

	kept := clusters[:0]
	for _, c := range clusters {
		if c.count > d.params.MinClusterPixels {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		tracef("frame %d: %d marker pixels, %d clusters, none above %d px",
			frame.Seq, count, len(clusters), d.params.MinClusterPixels)
		return NoDetection{}
	}

	// Stable so equal-sized clusters keep scan order.
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].count > kept[j].count })
	if len(kept) > d.params.MaxDetections {
		kept = kept[:d.params.MaxDetections]
	}

	items := make([]Detection, len(kept))
	for i, c := range kept {
		items[i] = c.detection(frame.Width, frame.Height, d.params.PlaceholderDepth)
	}
	tracef("frame %d: %d marker pixels, %d clusters, %d reported",
		frame.Seq, count, len(clusters), len(items))
	return MultiDetection{Items: items}
}

// cluster accumulates one connected component.
type cluster struct {
	count      int
	sumX, sumY int64
	bounds     image.Rectangle
	pixels     []image.Point
}

func (c *cluster) add(x, y int, retain bool) {
	if c.count == 0 {
		c.bounds = image.Rect(x, y, x+1, y+1)
	} else {
		if x < c.bounds.Min.X {
			c.bounds.Min.X = x
		}
		if x+1 > c.bounds.Max.X {
			c.bounds.Max.X = x + 1
		}
		if y < c.bounds.Min.Y {
			c.bounds.Min.Y = y
		}
		if y+1 > c.bounds.Max.Y {
			c.bounds.Max.Y = y + 1
		}
	}
	c.count++
	c.sumX += int64(x)
	c.sumY += int64(y)
	if retain {
		c.pixels = append(c.pixels, image.Point{X: x, Y: y})
	}
}

// detection converts the cluster, attaching a placeholder pose whose
// translation is the centroid offset from the frame centre.
func (c *cluster) detection(width, height int, depth float64) Detection {
	n := float64(c.count)
	cx := float64(c.sumX) / n
	cy := float64(c.sumY) / n
	return Detection{
		Centroid:  Point{X: cx, Y: cy},
		PixelMass: c.count,
		Localized: true,
		Bounds:    c.bounds,
		Pixels:    c.pixels,
		Pose: RotationTranslation{
			RVec: []float64{0, 0, 0},
			TVec: []float64{cx - float64(width)/2, cy - float64(height)/2, depth},
		},
	}
}

// labelComponents partitions the set entries of mask into 4-connected
// clusters in scan order. The flood fill uses an explicit FIFO so a single
// frame-sized region cannot exhaust the stack.
func labelComponents(mask []bool, width, height int, retain bool) []*cluster {
	visited := make([]bool, len(mask))
	var clusters []*cluster
	queue := make([]int, 0, 256)

	for start, set := range mask {
		if !set || visited[start] {
			continue
		}

		c := &cluster{}
		visited[start] = true
		queue = append(queue[:0], start)

		for head := 0; head < len(queue); head++ {
			idx := queue[head]
			x, y := idx%width, idx/width
			c.add(x, y, retain)

			if x > 0 {
				queue = visit(mask, visited, queue, idx-1)
			}
			if x < width-1 {
				queue = visit(mask, visited, queue, idx+1)
			}
			if y > 0 {
				queue = visit(mask, visited, queue, idx-width)
			}
			if y < height-1 {
				queue = visit(mask, visited, queue, idx+width)
			}
		}
		clusters = append(clusters, c)
	}
	return clusters
}

func visit(mask, visited []bool, queue []int, idx int) []int {
	if mask[idx] && !visited[idx] {
		visited[idx] = true
		queue = append(queue, idx)
	}
	return queue
}
