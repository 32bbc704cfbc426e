// Package features turns a raw catalog scene into the multi-band feature
// set the detection pipeline consumes: speckle-filtered backscatter in dB,
// the VV−VH difference, local texture, and terrain slope, all clipped to
// the area of interest.
package features

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"github.com/floodline-data/floodline/internal/detect"
	"github.com/floodline-data/floodline/internal/monitoring"
	"github.com/floodline-data/floodline/internal/raster"
)

// ErrNoImagery indicates no catalog scene inside the lookback window covers
// the area of interest. Callers treat it as an empty result, not a failure.
var ErrNoImagery = errors.New("features: no recent imagery covers the area of interest")

// Raw catalog band names (linear power).
const (
	rawBandVV = "VV"
	rawBandVH = "VH"
)

// Scene selection constants. Dual-pol interferometric-wide scenes from one
// orbit direction keep backscatter comparable across acquisitions.
const (
	DefaultLookbackDays = 30
	instrumentMode      = "IW"
	orbitPass           = "ASCENDING"
)

// Config tunes feature derivation. Zero fields take the defaults below.
type Config struct {
	// LookbackDays bounds how far back the scene search goes.
	LookbackDays int
	// SpeckleRadiusMeters is the median-filter radius applied to linear
	// power before the dB conversion.
	SpeckleRadiusMeters float64
	// TextureRadiusMeters is the local standard-deviation radius.
	TextureRadiusMeters float64
}

// Derivation defaults.
const (
	DefaultSpeckleRadiusMeters = 50.0
	DefaultTextureRadiusMeters = 30.0
)

func (c Config) withDefaults() Config {
	if c.LookbackDays <= 0 {
		c.LookbackDays = DefaultLookbackDays
	}
	if c.SpeckleRadiusMeters <= 0 {
		c.SpeckleRadiusMeters = DefaultSpeckleRadiusMeters
	}
	if c.TextureRadiusMeters <= 0 {
		c.TextureRadiusMeters = DefaultTextureRadiusMeters
	}
	return c
}

// Builder derives feature sets from catalog scenes on an injected engine.
type Builder struct {
	engine raster.Engine
	cfg    Config
	logf   func(format string, v ...interface{})
}

// NewBuilder creates a Builder on the given engine.
func NewBuilder(engine raster.Engine, cfg Config) *Builder {
	return &Builder{
		engine: engine,
		cfg:    cfg.withDefaults(),
		logf:   monitoring.Prefixed("features"),
	}
}

// FindScene returns the newest dual-pol scene covering the AOI within the
// lookback window ending at now. An empty catalog maps to ErrNoImagery.
func (b *Builder) FindScene(ctx context.Context, aoi orb.Geometry, now time.Time) (*raster.SceneInfo, raster.Image, error) {
	filter := raster.SceneFilter{
		Bounds:        aoi,
		Start:         now.AddDate(0, 0, -b.cfg.LookbackDays),
		End:           now,
		Polarisations: []string{rawBandVV, rawBandVH},
		Mode:          instrumentMode,
		OrbitPass:     orbitPass,
	}
	info, img, err := b.engine.LatestScene(ctx, filter)
	if errors.Is(err, raster.ErrNoScene) {
		return nil, nil, ErrNoImagery
	}
	if err != nil {
		return nil, nil, fmt.Errorf("scene lookup: %w", err)
	}
	b.logf("scene %s (%s) acquired %s", info.ID, info.Platform, info.AcquiredAt.Format(time.RFC3339))
	return info, img, nil
}

// Build finds a scene and derives the full feature set for the AOI.
func (b *Builder) Build(ctx context.Context, aoi orb.Geometry, now time.Time) (detect.FeatureSet, *raster.SceneInfo, error) {
	info, scene, err := b.FindScene(ctx, aoi, now)
	if err != nil {
		return detect.FeatureSet{}, nil, err
	}

	img, err := b.Derive(ctx, scene, aoi)
	if err != nil {
		return detect.FeatureSet{}, nil, err
	}
	return detect.FeatureSet{Image: img, Geometry: aoi}, info, nil
}

// Derive turns a raw dual-pol scene into the detection bands, clipped to
// the AOI.
//
// Speckle filtering runs on linear power, where the median is physically
// meaningful, and the dB conversion follows. The unfiltered VV band is kept
// alongside in dB because the threshold statistics prefer an undistorted
// distribution.
func (b *Builder) Derive(ctx context.Context, scene raster.Image, aoi orb.Geometry) (raster.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	speckle := raster.Kernel{Shape: raster.KernelSquare, RadiusMeters: b.cfg.SpeckleRadiusMeters}

	vvRaw, err := b.powerToDB(scene, rawBandVV, detect.BandVVRaw)
	if err != nil {
		return nil, fmt.Errorf("raw vv band: %w", err)
	}
	vv, err := b.filteredDB(scene, rawBandVV, detect.BandVV, speckle)
	if err != nil {
		return nil, fmt.Errorf("vv band: %w", err)
	}
	vh, err := b.filteredDB(scene, rawBandVH, detect.BandVH, speckle)
	if err != nil {
		return nil, fmt.Errorf("vh band: %w", err)
	}

	diff, err := b.engine.Subtract(vv, vh)
	if err != nil {
		return nil, fmt.Errorf("vv-vh difference: %w", err)
	}
	if diff, err = b.engine.Rename(diff, detect.BandDiff); err != nil {
		return nil, fmt.Errorf("vv-vh difference: %w", err)
	}

	texture, err := b.engine.Focal(vv, raster.FocalStdDev, raster.Kernel{
		Shape:        raster.KernelSquare,
		RadiusMeters: b.cfg.TextureRadiusMeters,
	})
	if err != nil {
		return nil, fmt.Errorf("texture band: %w", err)
	}
	if texture, err = b.engine.Rename(texture, detect.BandTexture); err != nil {
		return nil, fmt.Errorf("texture band: %w", err)
	}

	slope, err := b.engine.TerrainSlope(ctx)
	if err != nil {
		return nil, fmt.Errorf("slope band: %w", err)
	}
	if slope, err = b.engine.Rename(slope, detect.BandSlope); err != nil {
		return nil, fmt.Errorf("slope band: %w", err)
	}

	stacked, err := b.engine.AddBands(vv, vvRaw, vh, diff, texture, slope)
	if err != nil {
		return nil, fmt.Errorf("stack bands: %w", err)
	}
	clipped, err := b.engine.Clip(stacked, aoi)
	if err != nil {
		return nil, fmt.Errorf("clip to aoi: %w", err)
	}
	return clipped, nil
}

// powerToDB selects a linear-power band and converts it to decibels under a
// new name.
func (b *Builder) powerToDB(scene raster.Image, band, name string) (raster.Image, error) {
	selected, err := b.engine.SelectBand(scene, band)
	if err != nil {
		return nil, err
	}
	logged, err := b.engine.Log10(selected)
	if err != nil {
		return nil, err
	}
	db, err := b.engine.Multiply(logged, 10)
	if err != nil {
		return nil, err
	}
	return b.engine.Rename(db, name)
}

// filteredDB is powerToDB with a median speckle filter applied on linear
// power first.
func (b *Builder) filteredDB(scene raster.Image, band, name string, kernel raster.Kernel) (raster.Image, error) {
	selected, err := b.engine.SelectBand(scene, band)
	if err != nil {
		return nil, err
	}
	filtered, err := b.engine.Focal(selected, raster.FocalMedian, kernel)
	if err != nil {
		return nil, err
	}
	logged, err := b.engine.Log10(filtered)
	if err != nil {
		return nil, err
	}
	db, err := b.engine.Multiply(logged, 10)
	if err != nil {
		return nil, err
	}
	return b.engine.Rename(db, name)
}
