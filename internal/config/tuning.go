package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// Detector variants accepted by the "detector" key.
const (
	DetectorBlob    = "blob"
	DetectorRatio   = "ratio"
	DetectorLibrary = "library"
)

// TuningConfig is the flat JSON configuration for the marker pipeline.
// Every field is optional; the Get* accessors supply defaults for anything
// omitted so partial files are safe.
type TuningConfig struct {
	// Detection
	Detector         *string  `json:"detector,omitempty"`
	RedMin           *int     `json:"red_min,omitempty"`
	GreenMax         *int     `json:"green_max,omitempty"`
	BlueMax          *int     `json:"blue_max,omitempty"`
	MinClusterPixels *int     `json:"min_cluster_pixels,omitempty"`
	MaxDetections    *int     `json:"max_detections,omitempty"`
	CoverageRatio    *float64 `json:"coverage_ratio,omitempty"`
	PlaceholderDepth *float64 `json:"placeholder_depth,omitempty"`

	// Pose
	TranslationScale *float64 `json:"translation_scale,omitempty"`
	MarkerSize       *float64 `json:"marker_size,omitempty"`

	// Tracking
	MissTolerance *int `json:"miss_tolerance,omitempty"`

	// Render loop
	TargetFPS *float64 `json:"target_fps,omitempty"`

	// Tracking library readiness
	LibraryPollInterval *string `json:"library_poll_interval,omitempty"` // duration string like "100ms"
	LibraryMaxAttempts  *int    `json:"library_max_attempts,omitempty"`

	// Video assets
	AssetLoadTimeout *string  `json:"asset_load_timeout,omitempty"` // duration string like "10s"
	VideoVolume      *float64 `json:"video_volume,omitempty"`
	VideoLoop        *bool    `json:"video_loop,omitempty"`
	VideoMuted       *bool    `json:"video_muted,omitempty"`

	// Camera constraints
	CameraWidth  *int    `json:"camera_width,omitempty"`
	CameraHeight *int    `json:"camera_height,omitempty"`
	CameraFacing *string `json:"camera_facing,omitempty"`

	// Storage
	EventRetention *string `json:"event_retention,omitempty"` // duration string like "24h"
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated
// from the built-in defaults.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		Detector:            ptrString(DetectorBlob),
		RedMin:              ptrInt(200),
		GreenMax:            ptrInt(100),
		BlueMax:             ptrInt(100),
		MinClusterPixels:    ptrInt(20),
		MaxDetections:       ptrInt(4),
		CoverageRatio:       ptrFloat64(0.01),
		PlaceholderDepth:    ptrFloat64(100),
		TranslationScale:    ptrFloat64(0.01),
		MarkerSize:          ptrFloat64(1.0),
		MissTolerance:       ptrInt(1),
		TargetFPS:           ptrFloat64(30),
		LibraryPollInterval: ptrString("100ms"),
		LibraryMaxAttempts:  ptrInt(50),
		AssetLoadTimeout:    ptrString("10s"),
		VideoVolume:         ptrFloat64(1.0),
		VideoLoop:           ptrBool(true),
		VideoMuted:          ptrBool(true),
		CameraWidth:         ptrInt(640),
		CameraHeight:        ptrInt(480),
		CameraFacing:        ptrString("environment"),
		EventRetention:      ptrString("24h"),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The path must have a .json extension and the file must be under 1MB.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents up to the repository root.
// Panics if the file cannot be loaded; intended for tests and binaries.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run from repository root")
}

// Validate checks that any values present are within range.
func (c *TuningConfig) Validate() error {
	if c.Detector != nil {
		switch *c.Detector {
		case DetectorBlob, DetectorRatio, DetectorLibrary:
		default:
			return fmt.Errorf("detector must be one of %q, %q, %q, got %q",
				DetectorBlob, DetectorRatio, DetectorLibrary, *c.Detector)
		}
	}

	for name, v := range map[string]*int{"red_min": c.RedMin, "green_max": c.GreenMax, "blue_max": c.BlueMax} {
		if v != nil && (*v < 0 || *v > 255) {
			return fmt.Errorf("%s must be between 0 and 255, got %d", name, *v)
		}
	}

	if c.MinClusterPixels != nil && *c.MinClusterPixels < 0 {
		return fmt.Errorf("min_cluster_pixels must be non-negative, got %d", *c.MinClusterPixels)
	}
	if c.MaxDetections != nil && *c.MaxDetections < 1 {
		return fmt.Errorf("max_detections must be at least 1, got %d", *c.MaxDetections)
	}
	if c.CoverageRatio != nil && (*c.CoverageRatio < 0 || *c.CoverageRatio > 1) {
		return fmt.Errorf("coverage_ratio must be between 0 and 1, got %f", *c.CoverageRatio)
	}
	if c.TranslationScale != nil && *c.TranslationScale <= 0 {
		return fmt.Errorf("translation_scale must be positive, got %f", *c.TranslationScale)
	}
	if c.MarkerSize != nil && *c.MarkerSize <= 0 {
		return fmt.Errorf("marker_size must be positive, got %f", *c.MarkerSize)
	}
	if c.MissTolerance != nil && *c.MissTolerance < 1 {
		return fmt.Errorf("miss_tolerance must be at least 1, got %d", *c.MissTolerance)
	}
	if c.TargetFPS != nil && (*c.TargetFPS <= 0 || *c.TargetFPS > 240) {
		return fmt.Errorf("target_fps must be in (0, 240], got %f", *c.TargetFPS)
	}
	if c.LibraryMaxAttempts != nil && *c.LibraryMaxAttempts < 1 {
		return fmt.Errorf("library_max_attempts must be at least 1, got %d", *c.LibraryMaxAttempts)
	}
	if c.VideoVolume != nil && (*c.VideoVolume < 0 || *c.VideoVolume > 1) {
		return fmt.Errorf("video_volume must be between 0 and 1, got %f", *c.VideoVolume)
	}
	if c.CameraWidth != nil && *c.CameraWidth < 0 {
		return fmt.Errorf("camera_width must be non-negative, got %d", *c.CameraWidth)
	}
	if c.CameraHeight != nil && *c.CameraHeight < 0 {
		return fmt.Errorf("camera_height must be non-negative, got %d", *c.CameraHeight)
	}
	if c.CameraFacing != nil {
		switch *c.CameraFacing {
		case "user", "environment":
		default:
			return fmt.Errorf("camera_facing must be \"user\" or \"environment\", got %q", *c.CameraFacing)
		}
	}

	for name, v := range map[string]*string{
		"library_poll_interval": c.LibraryPollInterval,
		"asset_load_timeout":    c.AssetLoadTimeout,
		"event_retention":       c.EventRetention,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *v)
		}
	}

	return nil
}

func durationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetDetector returns the detector variant or the default ("blob").
func (c *TuningConfig) GetDetector() string {
	if c.Detector == nil || *c.Detector == "" {
		return DetectorBlob
	}
	return *c.Detector
}

// GetRedMin returns the red_min value or the default.
func (c *TuningConfig) GetRedMin() uint8 {
	if c.RedMin == nil {
		return 200
	}
	return uint8(*c.RedMin)
}

// GetGreenMax returns the green_max value or the default.
func (c *TuningConfig) GetGreenMax() uint8 {
	if c.GreenMax == nil {
		return 100
	}
	return uint8(*c.GreenMax)
}

// GetBlueMax returns the blue_max value or the default.
func (c *TuningConfig) GetBlueMax() uint8 {
	if c.BlueMax == nil {
		return 100
	}
	return uint8(*c.BlueMax)
}

// GetMinClusterPixels returns the min_cluster_pixels value or the default.
func (c *TuningConfig) GetMinClusterPixels() int {
	if c.MinClusterPixels == nil {
		return 20
	}
	return *c.MinClusterPixels
}

// GetMaxDetections returns the max_detections value or the default.
func (c *TuningConfig) GetMaxDetections() int {
	if c.MaxDetections == nil {
		return 4
	}
	return *c.MaxDetections
}

// GetCoverageRatio returns the coverage_ratio value or the default.
func (c *TuningConfig) GetCoverageRatio() float64 {
	if c.CoverageRatio == nil {
		return 0.01
	}
	return *c.CoverageRatio
}

// GetPlaceholderDepth returns the placeholder_depth value or the default.
func (c *TuningConfig) GetPlaceholderDepth() float64 {
	if c.PlaceholderDepth == nil {
		return 100
	}
	return *c.PlaceholderDepth
}

// GetTranslationScale returns the translation_scale value or the default.
func (c *TuningConfig) GetTranslationScale() float64 {
	if c.TranslationScale == nil {
		return 0.01
	}
	return *c.TranslationScale
}

// GetMarkerSize returns the marker_size value or the default.
func (c *TuningConfig) GetMarkerSize() float64 {
	if c.MarkerSize == nil {
		return 1.0
	}
	return *c.MarkerSize
}

// GetMissTolerance returns the miss_tolerance value or the default.
func (c *TuningConfig) GetMissTolerance() int {
	if c.MissTolerance == nil {
		return 1
	}
	return *c.MissTolerance
}

// GetTargetFPS returns the target_fps value or the default.
func (c *TuningConfig) GetTargetFPS() float64 {
	if c.TargetFPS == nil {
		return 30
	}
	return *c.TargetFPS
}

// GetLibraryPollInterval parses library_poll_interval (default 100ms).
func (c *TuningConfig) GetLibraryPollInterval() time.Duration {
	return durationOr(c.LibraryPollInterval, 100*time.Millisecond)
}

// GetLibraryMaxAttempts returns the library_max_attempts value or the default.
func (c *TuningConfig) GetLibraryMaxAttempts() int {
	if c.LibraryMaxAttempts == nil {
		return 50
	}
	return *c.LibraryMaxAttempts
}

// GetAssetLoadTimeout parses asset_load_timeout (default 10s).
func (c *TuningConfig) GetAssetLoadTimeout() time.Duration {
	return durationOr(c.AssetLoadTimeout, 10*time.Second)
}

// GetVideoVolume returns the video_volume value or the default.
func (c *TuningConfig) GetVideoVolume() float64 {
	if c.VideoVolume == nil {
		return 1.0
	}
	return *c.VideoVolume
}

// GetVideoLoop returns the video_loop value or the default.
func (c *TuningConfig) GetVideoLoop() bool {
	if c.VideoLoop == nil {
		return true
	}
	return *c.VideoLoop
}

// GetVideoMuted returns the video_muted value or the default.
// Muted by default: autoplay of unmuted media is usually refused.
func (c *TuningConfig) GetVideoMuted() bool {
	if c.VideoMuted == nil {
		return true
	}
	return *c.VideoMuted
}

// GetCameraWidth returns the camera_width value or the default.
func (c *TuningConfig) GetCameraWidth() int {
	if c.CameraWidth == nil {
		return 640
	}
	return *c.CameraWidth
}

// GetCameraHeight returns the camera_height value or the default.
func (c *TuningConfig) GetCameraHeight() int {
	if c.CameraHeight == nil {
		return 480
	}
	return *c.CameraHeight
}

// GetCameraFacing returns the camera_facing value or the default.
func (c *TuningConfig) GetCameraFacing() string {
	if c.CameraFacing == nil || *c.CameraFacing == "" {
		return "environment"
	}
	return *c.CameraFacing
}

// GetEventRetention parses event_retention (default 24h).
func (c *TuningConfig) GetEventRetention() time.Duration {
	return durationOr(c.EventRetention, 24*time.Hour)
}
