package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/markerlens/internal/config"
	"github.com/banshee-data/markerlens/internal/marker/l1frames"
)

func writeMarkerPNG(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 80, 60))
	l1frames.FillRect(img, img.Bounds(), color.RGBA{R: 128, G: 128, B: 128, A: 255})
	l1frames.FillRect(img, image.Rect(10, 10, 30, 30), color.RGBA{R: 255, A: 255})
	l1frames.FillRect(img, image.Rect(50, 40, 55, 45), color.RGBA{R: 255, A: 255})

	path := filepath.Join(t.TempDir(), "marker.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestDetect(t *testing.T) {
	path := writeMarkerPNG(t)

	report, res, err := detect(path, config.EmptyTuningConfig())
	require.NoError(t, err)
	assert.Equal(t, 80, report.Width)
	assert.Equal(t, 60, report.Height)
	assert.Equal(t, "multi", report.Kind)
	require.Len(t, report.Detections, 2)

	big := report.Detections[0]
	assert.Equal(t, 400, big.PixelMass)
	assert.InDelta(t, 19.5, big.CentroidX, 1e-9)
	assert.Equal(t, [4]int{10, 10, 30, 30}, big.Bounds)
	assert.InDelta(t, 19.5-40, big.Translation[0], 1e-9)
	assert.Equal(t, 25, report.Detections[1].PixelMass)

	require.Len(t, res.Detections()[0].Pixels, 400, "pixels retained")
}

func TestDetect_MinClusterFromTuning(t *testing.T) {
	path := writeMarkerPNG(t)
	minPixels := 30
	report, _, err := detect(path, &config.TuningConfig{MinClusterPixels: &minPixels})
	require.NoError(t, err)
	assert.Len(t, report.Detections, 1)
}

func TestDetect_MissingImage(t *testing.T) {
	_, _, err := detect(filepath.Join(t.TempDir(), "none.png"), config.EmptyTuningConfig())
	assert.Error(t, err)
}

func TestWriteReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, Report{Image: "x.png", Kind: "none", Detections: []DetectionReport{}}, false))

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "none", got["kind"])
	assert.Empty(t, got["detections"])
}

func TestPlotClusters(t *testing.T) {
	path := writeMarkerPNG(t)
	report, res, err := detect(path, config.EmptyTuningConfig())
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "clusters.png")
	require.NoError(t, plotClusters(out, report, res.Detections(), 100))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	_, format, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
}
