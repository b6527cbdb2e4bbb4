package l2detection

import "github.com/banshee-data/markerlens/internal/marker/l1frames"

// ColorThreshold classifies a pixel as marker-coloured when its red channel
// is strictly above RedMin and green and blue are strictly below their
// maxima.
type ColorThreshold struct {
	RedMin   uint8
	GreenMax uint8
	BlueMax  uint8
}

// DefaultColorThreshold is the red-marker heuristic: R>200, G<100, B<100.
func DefaultColorThreshold() ColorThreshold {
	return ColorThreshold{RedMin: 200, GreenMax: 100, BlueMax: 100}
}

// Match reports whether (r, g, b) is marker-coloured.
func (c ColorThreshold) Match(r, g, b uint8) bool {
	return r > c.RedMin && g < c.GreenMax && b < c.BlueMax
}

// Mask returns a row-major Width*Height mask of marker-coloured pixels and
// the number of set entries.
func (c ColorThreshold) Mask(frame *l1frames.Frame) ([]bool, int) {
	mask := make([]bool, frame.Width*frame.Height)
	count := 0
	for y := 0; y < frame.Height; y++ {
		row := frame.Pix[y*frame.Stride:]
		for x := 0; x < frame.Width; x++ {
			i := x * 4
			if c.Match(row[i], row[i+1], row[i+2]) {
				mask[y*frame.Width+x] = true
				count++
			}
		}
	}
	return mask, count
}

// Count returns the number of marker-coloured pixels without building a mask.
func (c ColorThreshold) Count(frame *l1frames.Frame) int {
	count := 0
	for y := 0; y < frame.Height; y++ {
		row := frame.Pix[y*frame.Stride:]
		for x := 0; x < frame.Width; x++ {
			i := x * 4
			if c.Match(row[i], row[i+1], row[i+2]) {
				count++
			}
		}
	}
	return count
}
