package detect

import (
	"context"
	"time"

	"github.com/floodline-data/floodline/internal/config"
	"github.com/floodline-data/floodline/internal/monitoring"
	"github.com/floodline-data/floodline/internal/raster"
)

// Config tunes the engine-facing cost parameters of a Detector. Zero fields
// take the defaults below.
type Config struct {
	// StatsScaleMeters is the sampling resolution for region statistics.
	// Statistics tolerate coarse sampling, so this defaults well above the
	// sensor resolution.
	StatsScaleMeters float64
	// VectorizeScaleMeters is the tracing resolution for vectorization.
	VectorizeScaleMeters float64
	// MaxPixels caps every reduction and trace.
	MaxPixels int64
	// RefineRadiusMeters is the shared opening/closing kernel radius. Kept
	// small relative to sensor resolution so narrow features such as
	// streams survive refinement.
	RefineRadiusMeters float64
	// SimplifyToleranceMeters bounds vertex deviation of output polygons.
	SimplifyToleranceMeters float64
}

// Detector defaults.
const (
	DefaultStatsScaleMeters        = 100.0
	DefaultVectorizeScaleMeters    = 30.0
	DefaultMaxPixels               = int64(1e9)
	DefaultRefineRadiusMeters      = 10.0
	DefaultSimplifyToleranceMeters = 100.0
)

func (c Config) withDefaults() Config {
	if c.StatsScaleMeters <= 0 {
		c.StatsScaleMeters = DefaultStatsScaleMeters
	}
	if c.VectorizeScaleMeters <= 0 {
		c.VectorizeScaleMeters = DefaultVectorizeScaleMeters
	}
	if c.MaxPixels <= 0 {
		c.MaxPixels = DefaultMaxPixels
	}
	if c.RefineRadiusMeters <= 0 {
		c.RefineRadiusMeters = DefaultRefineRadiusMeters
	}
	if c.SimplifyToleranceMeters <= 0 {
		c.SimplifyToleranceMeters = DefaultSimplifyToleranceMeters
	}
	return c
}

// Detector runs the water-decision pipeline against an injected raster
// engine. A Detector is stateless across requests; the engine handle is the
// only shared resource and is read-only here.
type Detector struct {
	engine raster.Engine
	cfg    Config
	logf   func(format string, v ...interface{})
}

// New creates a Detector on the given engine.
func New(engine raster.Engine, cfg Config) *Detector {
	return &Detector{
		engine: engine,
		cfg:    cfg.withDefaults(),
		logf:   monitoring.Prefixed("detect"),
	}
}

// Detect runs the full chain: threshold selection, rule combination,
// morphological refinement, vectorization. Engine failures degrade to
// conservative fallbacks inside the threshold and vectorize stages; only
// the rule-combination and refinement stages can fail the request.
//
// The call blocks on engine round trips and honors ctx; callers wrap it
// with a deadline.
func (d *Detector) Detect(ctx context.Context, fs FeatureSet, params *config.DetectionParams) (*Result, error) {
	if params == nil {
		params = config.EmptyDetectionParams()
	}
	start := time.Now()

	decision := d.SelectThreshold(ctx, fs, params.VVThreshold)

	mask, counts, err := d.BuildMask(ctx, fs, decision, params)
	if err != nil {
		return nil, err
	}

	refined, err := d.Refine(ctx, mask, fs.Geometry)
	if err != nil {
		return nil, err
	}

	result := d.Vectorize(ctx, refined, fs.Geometry, params.GetMinAreaPixels())
	result.Threshold = decision
	result.Counts = counts

	d.logf("detection complete: %d polygons, %.3f km² in %.2fs",
		len(result.Polygons), result.TotalAreaKM2, time.Since(start).Seconds())
	return result, nil
}
