package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical detection defaults file.
// This is the single source of truth for overridable detection values.
const DefaultConfigPath = "config/detection.defaults.json"

// Built-in defaults, used when a field is absent from both the request and
// the defaults file. VVVHDiff and TextureMax have no default on purpose:
// absence disables the criterion entirely rather than substituting a value.
const (
	DefaultVHThresholdDB = -20.0
	DefaultSlopeMaxDeg   = 5.0
	DefaultMinAreaPixels = 100
)

// DetectionParams holds the per-request detection overrides. The schema
// matches the /api/detect request body so the same JSON can be used for both
// the defaults file and request payloads. Every field is optional; nil means
// "not supplied".
type DetectionParams struct {
	// VVThreshold is the manual VV backscatter bound in dB. Nil selects the
	// adaptive threshold.
	VVThreshold *float64 `json:"vv_threshold,omitempty"`
	// VHThreshold is the VH backscatter bound in dB (diagnostic criterion).
	VHThreshold *float64 `json:"vh_threshold,omitempty"`
	// VVVHDiff is the VV−VH difference bound in dB. Nil disables the
	// criterion.
	VVVHDiff *float64 `json:"vv_vh_diff,omitempty"`
	// SlopeMax is the terrain slope bound in degrees.
	SlopeMax *float64 `json:"slope_max,omitempty"`
	// TextureMax is the local texture bound in dB. Nil disables the
	// criterion.
	TextureMax *float64 `json:"texture_max,omitempty"`
	// MinAreaPixels is the minimum connected-region size kept after
	// vectorization.
	MinAreaPixels *int `json:"min_area_pixels,omitempty"`
}

// Float64 returns a pointer to v, for building DetectionParams literals.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v, for building DetectionParams literals.
func Int(v int) *int { return &v }

// EmptyDetectionParams returns a DetectionParams with all fields set to nil.
func EmptyDetectionParams() *DetectionParams {
	return &DetectionParams{}
}

// LoadDetectionParams loads a DetectionParams from a JSON file. Fields
// omitted from the file stay nil, so partial configs are safe.
func LoadDetectionParams(path string) (*DetectionParams, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyDetectionParams()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that every supplied value lies inside its declared domain.
func (p *DetectionParams) Validate() error {
	if p.VVThreshold != nil {
		if *p.VVThreshold < -30 || *p.VVThreshold > 0 {
			return fmt.Errorf("vv_threshold must be between -30 and 0 dB, got %g", *p.VVThreshold)
		}
	}
	if p.VHThreshold != nil {
		if *p.VHThreshold < -35 || *p.VHThreshold > 0 {
			return fmt.Errorf("vh_threshold must be between -35 and 0 dB, got %g", *p.VHThreshold)
		}
	}
	if p.VVVHDiff != nil {
		if *p.VVVHDiff < 0 || *p.VVVHDiff > 10 {
			return fmt.Errorf("vv_vh_diff must be between 0 and 10 dB, got %g", *p.VVVHDiff)
		}
	}
	if p.SlopeMax != nil {
		if *p.SlopeMax < 0 || *p.SlopeMax > 30 {
			return fmt.Errorf("slope_max must be between 0 and 30 degrees, got %g", *p.SlopeMax)
		}
	}
	if p.MinAreaPixels != nil {
		if *p.MinAreaPixels < 1 {
			return fmt.Errorf("min_area_pixels must be at least 1, got %d", *p.MinAreaPixels)
		}
	}
	return nil
}

// Merge overlays the supplied params on top of p and returns the result.
// Fields set in override win; fields nil in both stay nil. Neither receiver
// nor argument is modified.
func (p *DetectionParams) Merge(override *DetectionParams) *DetectionParams {
	out := *p
	if override == nil {
		return &out
	}
	if override.VVThreshold != nil {
		out.VVThreshold = override.VVThreshold
	}
	if override.VHThreshold != nil {
		out.VHThreshold = override.VHThreshold
	}
	if override.VVVHDiff != nil {
		out.VVVHDiff = override.VVVHDiff
	}
	if override.SlopeMax != nil {
		out.SlopeMax = override.SlopeMax
	}
	if override.TextureMax != nil {
		out.TextureMax = override.TextureMax
	}
	if override.MinAreaPixels != nil {
		out.MinAreaPixels = override.MinAreaPixels
	}
	return &out
}

// GetVHThreshold returns the vh_threshold value or the default.
func (p *DetectionParams) GetVHThreshold() float64 {
	if p.VHThreshold == nil {
		return DefaultVHThresholdDB
	}
	return *p.VHThreshold
}

// GetSlopeMax returns the slope_max value or the default.
func (p *DetectionParams) GetSlopeMax() float64 {
	if p.SlopeMax == nil {
		return DefaultSlopeMaxDeg
	}
	return *p.SlopeMax
}

// GetMinAreaPixels returns the min_area_pixels value or the default.
func (p *DetectionParams) GetMinAreaPixels() int {
	if p.MinAreaPixels == nil {
		return DefaultMinAreaPixels
	}
	return *p.MinAreaPixels
}

// Defaults describes the resolved defaults table for the /api/defaults
// endpoint. Criteria without a default report "disabled".
func (p *DetectionParams) Defaults() map[string]interface{} {
	out := map[string]interface{}{
		"vv_threshold":    "auto (percentile gap)",
		"vh_threshold":    p.GetVHThreshold(),
		"vv_vh_diff":      "disabled",
		"slope_max":       p.GetSlopeMax(),
		"texture_max":     "disabled",
		"min_area_pixels": p.GetMinAreaPixels(),
	}
	if p.VVThreshold != nil {
		out["vv_threshold"] = *p.VVThreshold
	}
	if p.VVVHDiff != nil {
		out["vv_vh_diff"] = *p.VVVHDiff
	}
	if p.TextureMax != nil {
		out["texture_max"] = *p.TextureMax
	}
	return out
}
