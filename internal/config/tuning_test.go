package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultTuningConfig(t *testing.T) {
	cfg := DefaultTuningConfig()

	if cfg.Detector == nil || *cfg.Detector != DetectorBlob {
		t.Errorf("Expected Detector %q, got %v", DetectorBlob, cfg.Detector)
	}
	if cfg.MinClusterPixels == nil || *cfg.MinClusterPixels != 20 {
		t.Errorf("Expected MinClusterPixels 20, got %v", cfg.MinClusterPixels)
	}
	if cfg.MissTolerance == nil || *cfg.MissTolerance != 1 {
		t.Errorf("Expected MissTolerance 1, got %v", cfg.MissTolerance)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestEmptyConfigGetters(t *testing.T) {
	cfg := EmptyTuningConfig()

	if got := cfg.GetDetector(); got != DetectorBlob {
		t.Errorf("GetDetector() = %q, want %q", got, DetectorBlob)
	}
	if got := cfg.GetRedMin(); got != 200 {
		t.Errorf("GetRedMin() = %d, want 200", got)
	}
	if got := cfg.GetGreenMax(); got != 100 {
		t.Errorf("GetGreenMax() = %d, want 100", got)
	}
	if got := cfg.GetBlueMax(); got != 100 {
		t.Errorf("GetBlueMax() = %d, want 100", got)
	}
	if got := cfg.GetMaxDetections(); got != 4 {
		t.Errorf("GetMaxDetections() = %d, want 4", got)
	}
	if got := cfg.GetCoverageRatio(); got != 0.01 {
		t.Errorf("GetCoverageRatio() = %f, want 0.01", got)
	}
	if got := cfg.GetTranslationScale(); got != 0.01 {
		t.Errorf("GetTranslationScale() = %f, want 0.01", got)
	}
	if got := cfg.GetLibraryPollInterval(); got != 100*time.Millisecond {
		t.Errorf("GetLibraryPollInterval() = %v, want 100ms", got)
	}
	if got := cfg.GetLibraryMaxAttempts(); got != 50 {
		t.Errorf("GetLibraryMaxAttempts() = %d, want 50", got)
	}
	if got := cfg.GetAssetLoadTimeout(); got != 10*time.Second {
		t.Errorf("GetAssetLoadTimeout() = %v, want 10s", got)
	}
	if !cfg.GetVideoMuted() || !cfg.GetVideoLoop() {
		t.Errorf("video should default to muted and looping")
	}
	if got := cfg.GetCameraFacing(); got != "environment" {
		t.Errorf("GetCameraFacing() = %q, want environment", got)
	}
	if got := cfg.GetEventRetention(); got != 24*time.Hour {
		t.Errorf("GetEventRetention() = %v, want 24h", got)
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "detector": "ratio",
  "min_cluster_pixels": 50,
  "miss_tolerance": 3,
  "library_poll_interval": "250ms",
  "video_muted": false
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("LoadTuningConfig failed: %v", err)
	}

	if got := cfg.GetDetector(); got != DetectorRatio {
		t.Errorf("GetDetector() = %q, want ratio", got)
	}
	if got := cfg.GetMinClusterPixels(); got != 50 {
		t.Errorf("GetMinClusterPixels() = %d, want 50", got)
	}
	if got := cfg.GetMissTolerance(); got != 3 {
		t.Errorf("GetMissTolerance() = %d, want 3", got)
	}
	if got := cfg.GetLibraryPollInterval(); got != 250*time.Millisecond {
		t.Errorf("GetLibraryPollInterval() = %v, want 250ms", got)
	}
	if cfg.GetVideoMuted() {
		t.Errorf("GetVideoMuted() = true, want false")
	}
	// Omitted fields fall back to defaults.
	if got := cfg.GetMaxDetections(); got != 4 {
		t.Errorf("GetMaxDetections() = %d, want default 4", got)
	}
}

func TestLoadTuningConfig_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"wrong extension", "config.yaml", `{}`, ".json extension"},
		{"bad json", "bad.json", `{"detector":`, "failed to parse"},
		{"unknown detector", "det.json", `{"detector":"aruco"}`, "detector must be one of"},
		{"channel out of range", "rgb.json", `{"red_min": 300}`, "red_min must be between"},
		{"zero miss tolerance", "miss.json", `{"miss_tolerance": 0}`, "miss_tolerance must be at least 1"},
		{"bad duration", "dur.json", `{"asset_load_timeout": "soon"}`, "invalid asset_load_timeout"},
		{"negative duration", "neg.json", `{"library_poll_interval": "-1s"}`, "must be positive"},
		{"bad facing", "face.json", `{"camera_facing": "sideways"}`, "camera_facing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("write: %v", err)
			}
			_, err := LoadTuningConfig(path)
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadTuningConfig_MissingFile(t *testing.T) {
	_, err := LoadTuningConfig(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if got := cfg.GetDetector(); got != DetectorBlob {
		t.Errorf("defaults file detector = %q, want blob", got)
	}
	if got := cfg.GetMinClusterPixels(); got != 20 {
		t.Errorf("defaults file min_cluster_pixels = %d, want 20", got)
	}
}

func TestDurationFallbackOnParseError(t *testing.T) {
	bad := "nope"
	cfg := &TuningConfig{AssetLoadTimeout: &bad}
	if got := cfg.GetAssetLoadTimeout(); got != 10*time.Second {
		t.Errorf("GetAssetLoadTimeout() = %v, want fallback 10s", got)
	}
}
