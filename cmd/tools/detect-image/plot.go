package main

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/markerlens/internal/marker/l2detection"
)

var clusterColors = []color.RGBA{
	{R: 220, G: 40, B: 40, A: 255},
	{R: 40, G: 120, B: 220, A: 255},
	{R: 40, G: 170, B: 70, A: 255},
	{R: 230, G: 150, B: 20, A: 255},
}

// plotClusters draws each cluster's pixels and centroid in image
// coordinates (y flipped so the plot reads like the image).
func plotClusters(path string, r Report, dets []l2detection.Detection, maxPixels int) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s: %d clusters", r.Image, len(dets))
	p.X.Label.Text = "x (px)"
	p.Y.Label.Text = "-y (px)"
	p.X.Min, p.X.Max = 0, float64(r.Width)
	p.Y.Min, p.Y.Max = -float64(r.Height), 0

	centroids := make(plotter.XYs, 0, len(dets))
	for i, d := range dets {
		step := 1
		if maxPixels > 0 && len(d.Pixels) > maxPixels {
			step = (len(d.Pixels) + maxPixels - 1) / maxPixels
		}
		pts := make(plotter.XYs, 0, len(d.Pixels)/step+1)
		for j := 0; j < len(d.Pixels); j += step {
			pts = append(pts, plotter.XY{X: float64(d.Pixels[j].X), Y: -float64(d.Pixels[j].Y)})
		}
		if len(pts) > 0 {
			s, err := plotter.NewScatter(pts)
			if err != nil {
				return fmt.Errorf("cluster %d: %w", i, err)
			}
			s.GlyphStyle.Color = clusterColors[i%len(clusterColors)]
			s.GlyphStyle.Radius = vg.Points(0.5)
			s.GlyphStyle.Shape = draw.BoxGlyph{}
			p.Add(s)
			p.Legend.Add(fmt.Sprintf("#%d mass=%d", i, d.PixelMass), s)
		}
		centroids = append(centroids, plotter.XY{X: d.Centroid.X, Y: -d.Centroid.Y})
	}

	if len(centroids) > 0 {
		c, err := plotter.NewScatter(centroids)
		if err != nil {
			return fmt.Errorf("centroids: %w", err)
		}
		c.GlyphStyle.Shape = draw.CrossGlyph{}
		c.GlyphStyle.Radius = vg.Points(5)
		c.GlyphStyle.Color = color.Black
		p.Add(c)
	}

	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
