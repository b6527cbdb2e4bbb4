// Command detect-image runs the blob detector on a single image and prints
// the detections as JSON, optionally plotting the clusters to a PNG.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/banshee-data/markerlens/internal/config"
	"github.com/banshee-data/markerlens/internal/marker/l1frames"
	"github.com/banshee-data/markerlens/internal/marker/l2detection"
	"github.com/banshee-data/markerlens/internal/security"
)

// Config holds the command line options.
type Config struct {
	ImagePath  string
	ConfigPath string
	PlotPath   string
	MaxPixels  int
	Pretty     bool
}

// Report is the JSON document printed to stdout.
type Report struct {
	Image      string            `json:"image"`
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	Kind       string            `json:"kind"`
	Detections []DetectionReport `json:"detections"`
}

// DetectionReport describes one cluster.
type DetectionReport struct {
	CentroidX   float64    `json:"centroid_x"`
	CentroidY   float64    `json:"centroid_y"`
	PixelMass   int        `json:"pixel_mass"`
	Bounds      [4]int     `json:"bounds"` // min x, min y, max x, max y (exclusive)
	Translation [3]float64 `json:"translation"`
}

func parseFlags() Config {
	var cfg Config
	flag.StringVar(&cfg.ImagePath, "image", "", "Image to analyse (PNG, JPEG, GIF, BMP, TIFF or WebP)")
	flag.StringVar(&cfg.ConfigPath, "config", "", "Tuning JSON for colour thresholds and cluster limits")
	flag.StringVar(&cfg.PlotPath, "plot", "", "Write a cluster overlay PNG to this path")
	flag.IntVar(&cfg.MaxPixels, "max-pixels", 20000, "Pixels per cluster drawn in the plot")
	flag.BoolVar(&cfg.Pretty, "pretty", true, "Indent JSON output")
	flag.Parse()
	if cfg.ImagePath == "" && flag.NArg() > 0 {
		cfg.ImagePath = flag.Arg(0)
	}
	return cfg
}

func main() {
	cfg := parseFlags()
	if cfg.ImagePath == "" {
		log.Fatal("an image is required: detect-image -image marker.png")
	}

	tuning := config.EmptyTuningConfig()
	if cfg.ConfigPath != "" {
		var err error
		if tuning, err = config.LoadTuningConfig(cfg.ConfigPath); err != nil {
			log.Fatalf("load config: %v", err)
		}
	}

	report, res, err := detect(cfg.ImagePath, tuning)
	if err != nil {
		log.Fatalf("detect: %v", err)
	}
	if err := writeReport(os.Stdout, report, cfg.Pretty); err != nil {
		log.Fatalf("write report: %v", err)
	}

	if cfg.PlotPath != "" {
		if err := security.ValidateOutputPath(cfg.PlotPath); err != nil {
			log.Fatalf("plot: %v", err)
		}
		if err := plotClusters(cfg.PlotPath, report, res.Detections(), cfg.MaxPixels); err != nil {
			log.Fatalf("plot: %v", err)
		}
		log.Printf("wrote %s", cfg.PlotPath)
	}
}

// detect loads path and runs the blob detector with pixel retention.
func detect(path string, tuning *config.TuningConfig) (Report, l2detection.Result, error) {
	img, err := l1frames.LoadImage(path)
	if err != nil {
		return Report{}, nil, err
	}
	frame := l1frames.NewFrame(0, time.Now(), img, true)

	params := l2detection.BlobParamsFromTuning(tuning)
	params.RetainPixels = true
	res := l2detection.NewBlobDetector(params).Detect(frame)

	report := Report{
		Image:      path,
		Width:      frame.Width,
		Height:     frame.Height,
		Kind:       res.Kind().String(),
		Detections: []DetectionReport{},
	}
	for _, d := range res.Detections() {
		dr := DetectionReport{
			CentroidX: d.Centroid.X,
			CentroidY: d.Centroid.Y,
			PixelMass: d.PixelMass,
			Bounds:    [4]int{d.Bounds.Min.X, d.Bounds.Min.Y, d.Bounds.Max.X, d.Bounds.Max.Y},
		}
		if rt, ok := d.Pose.(l2detection.RotationTranslation); ok && len(rt.TVec) == 3 {
			copy(dr.Translation[:], rt.TVec)
		}
		report.Detections = append(report.Detections, dr)
	}
	return report, res, nil
}

func writeReport(w io.Writer, r Report, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}
