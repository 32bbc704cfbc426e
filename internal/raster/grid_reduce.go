package raster

import (
	"context"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/stat"
)

// regionValues collects the unmasked values of one band whose cell centers
// fall inside geom, honoring the pixel budget. With BestEffort set, an
// over-budget region is subsampled by a uniform stride instead of failing.
func (e *GridEngine) regionValues(img Image, band string, geom orb.Geometry, opts ReduceOpts) ([]float64, error) {
	g, err := e.grid(img)
	if err != nil {
		return nil, err
	}
	src, err := g.band(band)
	if err != nil {
		return nil, err
	}

	inside := insideMask(g.def, geom)
	values := make([]float64, 0, len(src))
	for i, v := range src {
		if inside[i] && !math.IsNaN(v) {
			values = append(values, v)
		}
	}

	if opts.MaxPixels > 0 && int64(len(values)) > opts.MaxPixels {
		if !opts.BestEffort {
			return nil, ErrBudgetExceeded
		}
		stride := (len(values) + int(opts.MaxPixels) - 1) / int(opts.MaxPixels)
		sampled := make([]float64, 0, int(opts.MaxPixels))
		for i := 0; i < len(values); i += stride {
			sampled = append(sampled, values[i])
		}
		values = sampled
	}
	return values, nil
}

// ReducePercentiles computes the given percentiles of one band over a
// geometry.
func (e *GridEngine) ReducePercentiles(ctx context.Context, img Image, band string, percentiles []int, geom orb.Geometry, opts ReduceOpts) (map[int]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	values, err := e.regionValues(img, band, geom, opts)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, ErrEmptyRegion
	}
	sort.Float64s(values)

	out := make(map[int]float64, len(percentiles))
	for _, p := range percentiles {
		out[p] = stat.Quantile(float64(p)/100, stat.Empirical, values, nil)
	}
	return out, nil
}

// ReduceHistogram computes a uniform-bucket histogram of one band over a
// geometry.
func (e *GridEngine) ReduceHistogram(ctx context.Context, img Image, band string, buckets int, geom orb.Geometry, opts ReduceOpts) (*Histogram, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if buckets < 1 {
		buckets = 1
	}
	values, err := e.regionValues(img, band, geom, opts)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, ErrEmptyRegion
	}
	sort.Float64s(values)

	min, max := values[0], values[len(values)-1]
	if min == max {
		// Degenerate distribution: one bucket holds everything.
		return &Histogram{Min: min, Width: 1, Counts: []float64{float64(len(values))}}, nil
	}

	width := (max - min) / float64(buckets)
	dividers := make([]float64, buckets+1)
	for i := range dividers {
		dividers[i] = min + float64(i)*width
	}
	// Guard against the top value falling out of the last bucket.
	dividers[buckets] = math.Nextafter(max, math.Inf(1))

	counts := stat.Histogram(nil, dividers, values, nil)
	return &Histogram{Min: min, Width: width, Counts: counts}, nil
}

// ReduceSum sums one band over a geometry.
func (e *GridEngine) ReduceSum(ctx context.Context, img Image, band string, geom orb.Geometry, opts ReduceOpts) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	values, err := e.regionValues(img, band, geom, opts)
	if err != nil {
		return 0, err
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum, nil
}

// ReduceStats computes min/max/mean of one band over a geometry.
func (e *GridEngine) ReduceStats(ctx context.Context, img Image, band string, geom orb.Geometry, opts ReduceOpts) (*Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	values, err := e.regionValues(img, band, geom, opts)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, ErrEmptyRegion
	}

	out := &Stats{Min: values[0], Max: values[0], Count: int64(len(values))}
	var sum float64
	for _, v := range values {
		if v < out.Min {
			out.Min = v
		}
		if v > out.Max {
			out.Max = v
		}
		sum += v
	}
	out.Mean = sum / float64(len(values))
	return out, nil
}

// SampleGrid exports a downsampled window of one band for preview
// rendering.
func (e *GridEngine) SampleGrid(ctx context.Context, img Image, band string, geom orb.Geometry, maxDim int) (*Grid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g, err := e.grid(img)
	if err != nil {
		return nil, err
	}
	src, err := g.band(band)
	if err != nil {
		return nil, err
	}
	if maxDim < 1 {
		maxDim = 1
	}

	stride := 1
	if longest := maxInt(g.def.W, g.def.H); longest > maxDim {
		stride = (longest + maxDim - 1) / maxDim
	}

	inside := insideMask(g.def, geom)
	w := (g.def.W + stride - 1) / stride
	h := (g.def.H + stride - 1) / stride
	values := make([]float64, 0, w*h)
	for r := 0; r < g.def.H; r += stride {
		for c := 0; c < g.def.W; c += stride {
			i := r*g.def.W + c
			if inside[i] {
				values = append(values, src[i])
			} else {
				values = append(values, math.NaN())
			}
		}
	}
	return &Grid{W: w, H: h, Values: values, Bound: g.def.Bound()}, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
