package visibility

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaultCalibration verifies the defaults reproduce the built-in boost.
func TestDefaultCalibration(t *testing.T) {
	cal := DefaultCalibration()
	if cal.FeaturedBoost != DefaultFeaturedBoost {
		t.Errorf("expected featured_boost %v, got %v", DefaultFeaturedBoost, cal.FeaturedBoost)
	}
}

// TestLoadCalibration_DefaultFile tests loading the calibration file shipped with the repo.
func TestLoadCalibration_DefaultFile(t *testing.T) {
	configPath := filepath.Join("..", "..", "configs", "ranking.calibration.json")
	cal, err := LoadCalibration(configPath)

	if _, statErr := os.Stat(configPath); statErr == nil {
		if err != nil {
			t.Fatalf("expected no error loading default calibration file, got: %v", err)
		}
		if cal.FeaturedBoost != DefaultFeaturedBoost {
			t.Errorf("shipped calibration should match defaults, got featured_boost %v", cal.FeaturedBoost)
		}
	} else {
		if err == nil {
			t.Error("expected error when file doesn't exist")
		}
		if cal.FeaturedBoost != DefaultFeaturedBoost {
			t.Error("should return defaults when file doesn't exist")
		}
	}
}

// TestLoadCalibration_EmptyPath tests loading with empty file path.
func TestLoadCalibration_EmptyPath(t *testing.T) {
	cal, err := LoadCalibration("")
	if err != nil {
		t.Errorf("expected no error with empty path, got: %v", err)
	}
	if cal.FeaturedBoost != DefaultFeaturedBoost {
		t.Error("should return defaults when path is empty")
	}
}

// TestLoadCalibration_NonExistentFile tests loading a non-existent file.
func TestLoadCalibration_NonExistentFile(t *testing.T) {
	cal, err := LoadCalibration("/nonexistent/path/to/file.json")
	if err == nil {
		t.Error("expected error when file doesn't exist")
	}
	if cal.FeaturedBoost != DefaultFeaturedBoost {
		t.Error("should return defaults when file doesn't exist")
	}
}

// TestLoadCalibration_CustomBoost tests loading a boost override.
func TestLoadCalibration_CustomBoost(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "custom.json")

	data, err := json.MarshalIndent(CalibrationConfig{
		Version:     "1.0",
		Calibration: Calibration{FeaturedBoost: 25},
	}, "", "  ")
	if err != nil {
		t.Fatalf("failed to marshal config: %v", err)
	}
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	cal, err := LoadCalibration(tmpFile)
	if err != nil {
		t.Fatalf("expected no error loading custom file, got: %v", err)
	}
	if cal.FeaturedBoost != 25 {
		t.Errorf("expected featured_boost 25, got %v", cal.FeaturedBoost)
	}

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r := New(append(cal.Options(), WithClock(func() time.Time { return now }))...)
	in := Input{VisibilityWeight: WeightOf(2), FeaturedUntil: TimeOf(now.Add(time.Hour))}
	if got := r.Score(in); got != 27 {
		t.Errorf("Score() with calibrated boost = %v, want 27", got)
	}
}

// TestLoadCalibration_InvalidJSON tests loading invalid JSON.
func TestLoadCalibration_InvalidJSON(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "invalid.json")
	if err := os.WriteFile(tmpFile, []byte("{invalid json}"), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	cal, err := LoadCalibration(tmpFile)
	if err == nil {
		t.Error("expected error when JSON is invalid")
	}
	if cal.FeaturedBoost != DefaultFeaturedBoost {
		t.Error("should return defaults when JSON is invalid")
	}
}

// TestMergeCalibration tests merging overrides onto a base calibration.
func TestMergeCalibration(t *testing.T) {
	tests := []struct {
		name     string
		base     *Calibration
		override *Calibration
		want     float64
	}{
		{"nil base falls back to defaults", nil, &Calibration{FeaturedBoost: 3}, DefaultFeaturedBoost},
		{"nil override copies base", &Calibration{FeaturedBoost: 7}, nil, 7},
		{"zero override keeps base", DefaultCalibration(), &Calibration{}, DefaultFeaturedBoost},
		{"negative override keeps base", DefaultCalibration(), &Calibration{FeaturedBoost: -1}, DefaultFeaturedBoost},
		{"positive override applies", DefaultCalibration(), &Calibration{FeaturedBoost: 15}, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeCalibration(tt.base, tt.override)
			if got.FeaturedBoost != tt.want {
				t.Errorf("FeaturedBoost = %v, want %v", got.FeaturedBoost, tt.want)
			}
			if tt.base != nil && got == tt.base {
				t.Error("MergeCalibration must not return the base pointer")
			}
		})
	}
}

// TestCalibration_NilOptions verifies a nil calibration yields no options.
func TestCalibration_NilOptions(t *testing.T) {
	var cal *Calibration
	if opts := cal.Options(); opts != nil {
		t.Errorf("expected nil options, got %d", len(opts))
	}
}
