package monitor

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/markerlens/internal/httputil"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleMassChart renders pixel mass and detection count per tick as an
// HTML line chart.
func (ws *WebServer) handleMassChart(w http.ResponseWriter, r *http.Request) {
	samples := ws.stats.Snapshot()
	if len(samples) == 0 {
		httputil.NotFound(w, "no tick samples recorded yet")
		return
	}

	ticks := make([]uint64, len(samples))
	mass := make([]opts.LineData, len(samples))
	dets := make([]opts.LineData, len(samples))
	for i, s := range samples {
		ticks[i] = s.Tick
		mass[i] = opts.LineData{Value: s.PixelMass}
		dets[i] = opts.LineData{Value: s.Detections}
	}

	summary := ws.stats.Summary()
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Marker pixel mass", Width: "1000px", Height: "500px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Marker pixel mass", Subtitle: fmt.Sprintf("samples=%d found=%.0f%%", summary.Samples, summary.FoundRatio*100)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Tick", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Pixels"}),
	)
	line.SetXAxis(ticks).
		AddSeries("pixel mass", mass).
		AddSeries("detections", dets)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleTrailPlot renders the centroid trail of localized detections as a
// PNG scatter in frame coordinates.
func (ws *WebServer) handleTrailPlot(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := WriteTrailPNG(&buf, ws.stats.Snapshot(), 6*vg.Inch, 4.5*vg.Inch); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

// WriteTrailPNG plots the centroids of localized, found samples. Y grows
// downwards to match image coordinates.
func WriteTrailPNG(w io.Writer, samples []TickSample, width, height vg.Length) error {
	pts := make(plotter.XYs, 0, len(samples))
	for _, s := range samples {
		if s.Found && s.Localized {
			pts = append(pts, plotter.XY{X: s.CentroidX, Y: -s.CentroidY})
		}
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Centroid trail (%d points)", len(pts))
	p.X.Label.Text = "x (px)"
	p.Y.Label.Text = "-y (px)"

	if len(pts) > 0 {
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("trail line: %w", err)
		}
		line.Width = vg.Points(1)
		line.Color = color.RGBA{R: 200, G: 30, B: 30, A: 255}

		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("trail points: %w", err)
		}
		scatter.GlyphStyle.Radius = vg.Points(2)
		p.Add(line, scatter)
	}

	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("png writer: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}
