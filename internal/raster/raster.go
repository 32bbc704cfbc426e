// Package raster defines the capability surface of the raster engine the
// detection pipeline runs against: band algebra, focal filters, region
// reductions, and vectorization over opaque image handles.
//
// The engine is an injected service with explicit construction and shutdown,
// never a package-level singleton. Image handles are cheap descriptions of
// derived rasters; only the Reduce*, ToPolygons, SampleGrid, and catalog
// calls perform actual pixel work, and those are the pipeline's only
// blocking points. Handles are valid only with the engine that produced
// them.
package raster

import (
	"context"
	"errors"
	"time"

	"github.com/paulmach/orb"
)

// Sentinel errors shared by engine implementations.
var (
	// ErrNoScene indicates the catalog holds no scene matching a filter.
	ErrNoScene = errors.New("raster: no scene matches filter")
	// ErrBandNotFound indicates a named band is absent from an image.
	ErrBandNotFound = errors.New("raster: band not found")
	// ErrEmptyRegion indicates a reduction covered no valid pixels.
	ErrEmptyRegion = errors.New("raster: reduction region is empty")
	// ErrForeignImage indicates an image handle from another engine.
	ErrForeignImage = errors.New("raster: image handle belongs to a different engine")
	// ErrGridMismatch indicates a binary operation across misaligned grids.
	ErrGridMismatch = errors.New("raster: image grids are not aligned")
	// ErrBudgetExceeded indicates a reduction exceeded its pixel budget
	// without best-effort permission.
	ErrBudgetExceeded = errors.New("raster: pixel budget exceeded")
)

// Image is an opaque handle to a multi-band raster held by an Engine.
// Images are immutable; every operation derives a new handle.
type Image interface {
	// BandNames lists the image's bands in order.
	BandNames() []string
}

// KernelShape selects the neighborhood shape of a focal filter.
type KernelShape string

// Kernel shapes.
const (
	KernelSquare KernelShape = "square"
	KernelCircle KernelShape = "circle"
)

// FocalStat selects the statistic a focal filter computes per neighborhood.
type FocalStat string

// Focal statistics.
const (
	FocalMin    FocalStat = "min"
	FocalMax    FocalStat = "max"
	FocalMedian FocalStat = "median"
	FocalStdDev FocalStat = "stdDev"
)

// Kernel describes a focal neighborhood in physical units.
type Kernel struct {
	Shape        KernelShape
	RadiusMeters float64
}

// ReduceOpts bounds the cost of a region reduction.
type ReduceOpts struct {
	// ScaleMeters is the nominal resolution the reduction samples at.
	ScaleMeters float64
	// MaxPixels caps how many pixels the reduction may touch. Zero means
	// unlimited.
	MaxPixels int64
	// BestEffort permits approximate results (coarser sampling) instead of
	// failing when MaxPixels would be exceeded.
	BestEffort bool
}

// VectorizeOpts controls raster-to-polygon conversion.
type VectorizeOpts struct {
	// ScaleMeters is the resolution the raster is traced at.
	ScaleMeters float64
	// MaxPixels caps the traced pixel count. Zero means unlimited.
	MaxPixels int64
	// EightConnected merges diagonally adjacent pixels into one region.
	// The default, four-connectivity, keeps diagonally touching noise
	// separate.
	EightConnected bool
	// SimplifyToleranceMeters bounds vertex deviation of the returned
	// geometry. Zero disables simplification.
	SimplifyToleranceMeters float64
}

// Histogram is the result of a histogram reduction: uniform buckets from
// Min, each Width wide.
type Histogram struct {
	Min    float64
	Width  float64
	Counts []float64
}

// Stats is the result of a min/max/mean reduction.
type Stats struct {
	Min   float64
	Max   float64
	Mean  float64
	Count int64
}

// RegionFeature is one vectorized connected region. AreaM2 is the geodesic
// area of the geometry before simplification.
type RegionFeature struct {
	Geometry   orb.Polygon
	AreaM2     float64
	PixelCount int64
}

// Grid is a sampled pixel window of one band, for preview rendering. Values
// are row-major from the north-west corner; masked pixels are NaN.
type Grid struct {
	W, H   int
	Values []float64
	Bound  orb.Bound
}

// SceneFilter selects catalog scenes for an AOI.
type SceneFilter struct {
	// Bounds restricts scenes to those intersecting this geometry.
	Bounds orb.Geometry
	// Start and End bound the acquisition time, inclusive.
	Start, End time.Time
	// Polarisations lists required polarisation channels.
	Polarisations []string
	// Mode is the required instrument mode (e.g. "IW").
	Mode string
	// OrbitPass is the required orbit direction (e.g. "ASCENDING").
	OrbitPass string
}

// SceneInfo carries catalog metadata for a scene.
type SceneInfo struct {
	ID         string
	Platform   string
	AcquiredAt time.Time
}

// Engine is the raster engine capability surface consumed by the pipeline.
//
// Band algebra and Focal produce derived handles without pixel work. The
// context-taking calls are round trips; callers bound them with deadlines
// and never retry.
type Engine interface {
	// LatestScene returns the newest scene matching the filter, as catalog
	// metadata plus an image of its raw bands, or ErrNoScene.
	LatestScene(ctx context.Context, f SceneFilter) (*SceneInfo, Image, error)

	// TerrainSlope returns terrain slope in degrees derived from the
	// engine's elevation model.
	TerrainSlope(ctx context.Context) (Image, error)

	// SelectBand narrows an image to one named band.
	SelectBand(img Image, band string) (Image, error)
	// Rename renames the band of a single-band image.
	Rename(img Image, band string) (Image, error)
	// AddBands stacks single- or multi-band images into one image.
	AddBands(imgs ...Image) (Image, error)
	// Subtract computes a − b pointwise over single-band images.
	Subtract(a, b Image) (Image, error)
	// Log10 computes log10(x) pointwise.
	Log10(img Image) (Image, error)
	// Multiply scales every pixel by a constant.
	Multiply(img Image, factor float64) (Image, error)
	// LessThan produces a 0/1 image marking pixels strictly below bound.
	LessThan(img Image, bound float64) (Image, error)
	// And produces a 0/1 image marking pixels nonzero in both inputs.
	And(a, b Image) (Image, error)
	// SelfMask masks out (invalidates) zero-valued pixels.
	SelfMask(img Image) (Image, error)
	// Clip masks out pixels whose centers fall outside the geometry.
	Clip(img Image, geom orb.Geometry) (Image, error)
	// Focal applies a neighborhood statistic with the given kernel.
	Focal(img Image, stat FocalStat, kernel Kernel) (Image, error)

	// ReducePercentiles computes the given percentiles of one band over a
	// geometry.
	ReducePercentiles(ctx context.Context, img Image, band string, percentiles []int, geom orb.Geometry, opts ReduceOpts) (map[int]float64, error)
	// ReduceHistogram computes a fixed-bucket histogram of one band.
	ReduceHistogram(ctx context.Context, img Image, band string, buckets int, geom orb.Geometry, opts ReduceOpts) (*Histogram, error)
	// ReduceSum sums one band over a geometry.
	ReduceSum(ctx context.Context, img Image, band string, geom orb.Geometry, opts ReduceOpts) (float64, error)
	// ReduceStats computes min/max/mean of one band over a geometry.
	ReduceStats(ctx context.Context, img Image, band string, geom orb.Geometry, opts ReduceOpts) (*Stats, error)

	// ToPolygons vectorizes the nonzero, unmasked pixels of one band into
	// per-region polygons with geodesic areas.
	ToPolygons(ctx context.Context, img Image, band string, geom orb.Geometry, opts VectorizeOpts) ([]RegionFeature, error)

	// SampleGrid exports a downsampled pixel window of one band, at most
	// maxDim pixels on the longer side.
	SampleGrid(ctx context.Context, img Image, band string, geom orb.Geometry, maxDim int) (*Grid, error)

	// Close releases the engine session. The engine is unusable afterwards.
	Close() error
}
