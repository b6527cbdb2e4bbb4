package l2detection

import (
	"fmt"

	"github.com/banshee-data/markerlens/internal/config"
)

// ThresholdFromTuning builds the colour classifier from a loaded TuningConfig.
func ThresholdFromTuning(cfg *config.TuningConfig) ColorThreshold {
	return ColorThreshold{
		RedMin:   cfg.GetRedMin(),
		GreenMax: cfg.GetGreenMax(),
		BlueMax:  cfg.GetBlueMax(),
	}
}

// BlobParamsFromTuning builds BlobParams from a loaded TuningConfig.
// Pixel retention is a debug-tool option and is never enabled here.
func BlobParamsFromTuning(cfg *config.TuningConfig) BlobParams {
	return BlobParams{
		Threshold:        ThresholdFromTuning(cfg),
		MinClusterPixels: cfg.GetMinClusterPixels(),
		MaxDetections:    cfg.GetMaxDetections(),
		PlaceholderDepth: cfg.GetPlaceholderDepth(),
	}
}

// RatioParamsFromTuning builds RatioParams from a loaded TuningConfig.
func RatioParamsFromTuning(cfg *config.TuningConfig) RatioParams {
	return RatioParams{
		Threshold:        ThresholdFromTuning(cfg),
		CoverageRatio:    cfg.GetCoverageRatio(),
		PlaceholderDepth: cfg.GetPlaceholderDepth(),
	}
}

// ReadinessFromTuning builds the library readiness bounds.
func ReadinessFromTuning(cfg *config.TuningConfig) ReadinessConfig {
	return ReadinessConfig{
		PollInterval: cfg.GetLibraryPollInterval(),
		MaxAttempts:  cfg.GetLibraryMaxAttempts(),
	}
}

// NewFromTuning constructs the detector named by cfg's detector key. lib is
// required only for the library variant.
func NewFromTuning(cfg *config.TuningConfig, lib TrackingLibrary) (Detector, error) {
	switch kind := cfg.GetDetector(); kind {
	case config.DetectorBlob:
		return NewBlobDetector(BlobParamsFromTuning(cfg)), nil
	case config.DetectorRatio:
		return NewRatioDetector(RatioParamsFromTuning(cfg)), nil
	case config.DetectorLibrary:
		if lib == nil {
			return nil, fmt.Errorf("detector %q requires a tracking library", kind)
		}
		return NewLibraryDetector(lib, cfg.GetMarkerSize()), nil
	default:
		return nil, fmt.Errorf("unknown detector %q", kind)
	}
}
