// Package detect implements the water-decision pipeline: adaptive threshold
// selection from backscatter statistics, conjunctive rule combination into a
// binary water mask, morphological cleanup, and area-filtered vectorization
// into polygons.
package detect

import (
	"github.com/paulmach/orb"

	"github.com/floodline-data/floodline/internal/raster"
)

// Band names of a FeatureSet.
const (
	// BandVV is VV backscatter in dB, speckle-filtered.
	BandVV = "VV_db"
	// BandVVRaw is VV backscatter in dB before speckle filtering. Threshold
	// statistics prefer it for a cleaner distribution shape.
	BandVVRaw = "VV_db_raw"
	// BandVH is VH backscatter in dB, speckle-filtered.
	BandVH = "VH_db"
	// BandDiff is VV_db − VH_db.
	BandDiff = "VV_VH_diff"
	// BandTexture is the local standard deviation of VV_db.
	BandTexture = "texture"
	// BandSlope is terrain slope in degrees.
	BandSlope = "slope"
	// BandWater is the binary water mask band produced by the pipeline.
	BandWater = "water"
)

// FeatureSet is the pipeline input: a multi-band image over an AOI carrying
// the detection bands, produced upstream by the features package.
type FeatureSet struct {
	Image    raster.Image
	Geometry orb.Geometry
}

// WaterMask is a binary raster aligned to the FeatureSet's grid; nonzero
// pixels are candidate water.
type WaterMask = raster.Image

// ThresholdSource records how a VV threshold was chosen.
type ThresholdSource string

// Threshold provenance values.
const (
	ThresholdManual       ThresholdSource = "manual"
	ThresholdAuto         ThresholdSource = "auto"
	ThresholdAutoFallback ThresholdSource = "auto-fallback"
)

// ThresholdDecision is the resolved VV threshold plus its provenance. For
// auto decisions, Percentiles holds the backscatter percentiles consulted.
type ThresholdDecision struct {
	ThresholdDB float64         `json:"threshold_db"`
	Source      ThresholdSource `json:"source"`
	Percentiles map[int]float64 `json:"percentiles,omitempty"`
}

// CriterionCounts exposes per-criterion pixel counts for diagnostics.
// Optional criteria report nil when disabled. The VH count is diagnostic
// only: it is never combined into the mask.
type CriterionCounts struct {
	VVBelowThreshold int64  `json:"vv_below_threshold"`
	VHBelowThreshold int64  `json:"vh_below_threshold"`
	SlopeBelowMax    int64  `json:"slope_below_max"`
	DiffBelowMax     *int64 `json:"diff_below_max,omitempty"`
	TextureBelowMax  *int64 `json:"texture_below_max,omitempty"`
}

// WaterPolygon is one detected water body.
type WaterPolygon struct {
	Geometry orb.Polygon `json:"geometry"`
	AreaM2   float64     `json:"area_m2"`
}

// Result is the pipeline output: retained polygons largest first, their
// total area, and the diagnostics accumulated along the way.
type Result struct {
	Polygons     []WaterPolygon    `json:"polygons"`
	TotalAreaKM2 float64           `json:"total_area_km2"`
	Threshold    ThresholdDecision `json:"threshold"`
	Counts       CriterionCounts   `json:"criterion_counts"`
}
