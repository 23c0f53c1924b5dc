package visibility

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// Calibration holds deploy-time tunables for the ranker.
type Calibration struct {
	FeaturedBoost float64 `json:"featured_boost"` // Boost while featured (default: 10)
}

// CalibrationConfig represents the JSON structure of the calibration file.
type CalibrationConfig struct {
	Version     string      `json:"version"`     // Config version for future compatibility
	Calibration Calibration `json:"calibration"` // Ranker tunables
}

// DefaultCalibration returns the calibration that reproduces the built-in ranking.
func DefaultCalibration() *Calibration {
	return &Calibration{
		FeaturedBoost: DefaultFeaturedBoost,
	}
}

// Options converts the calibration into Ranker options.
func (c *Calibration) Options() []Option {
	if c == nil {
		return nil
	}
	return []Option{WithFeaturedBoost(c.FeaturedBoost)}
}

// LoadCalibration loads ranker tunables from a JSON calibration file.
// An empty path yields the defaults. On a read or parse error the defaults
// are returned together with the error so callers can keep serving.
func LoadCalibration(filePath string) (*Calibration, error) {
	if filePath == "" {
		return DefaultCalibration(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultCalibration(), fmt.Errorf("failed to read calibration file: %w", err)
	}

	var config CalibrationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Warn("failed to parse calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultCalibration(), fmt.Errorf("failed to parse calibration file: %w", err)
	}

	defaults := DefaultCalibration()
	merged := MergeCalibration(defaults, &config.Calibration)
	logCalibrationOverrides(defaults, merged)

	return merged, nil
}

// MergeCalibration applies the positive, finite values of override on top of base.
func MergeCalibration(base *Calibration, override *Calibration) *Calibration {
	if base == nil {
		return DefaultCalibration()
	}

	result := *base
	if override == nil {
		return &result
	}

	if isPositiveFinite(override.FeaturedBoost) {
		result.FeaturedBoost = override.FeaturedBoost
	}

	return &result
}

func logCalibrationOverrides(defaults *Calibration, loaded *Calibration) {
	if loaded.FeaturedBoost != defaults.FeaturedBoost {
		slog.Info("loaded ranking calibration with overrides",
			"overrides", []string{fmt.Sprintf("featured_boost: %.2f -> %.2f",
				defaults.FeaturedBoost, loaded.FeaturedBoost)})
		return
	}
	slog.Info("loaded ranking calibration (using all defaults)")
}
