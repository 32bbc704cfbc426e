package remote

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/floodline-data/floodline/internal/raster"
)

func parseTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339, value)
}

// reduceRequest is the wire form of every evaluation round trip: the full
// expression graph plus reducer parameters.
type reduceRequest struct {
	Expression  *node             `json:"expression"`
	Band        string            `json:"band"`
	Reducer     string            `json:"reducer"`
	Percentiles []int             `json:"percentiles,omitempty"`
	Buckets     int               `json:"buckets,omitempty"`
	Geometry    *geojson.Geometry `json:"geometry,omitempty"`
	ScaleMeters float64           `json:"scale_meters,omitempty"`
	MaxPixels   int64             `json:"max_pixels,omitempty"`
	BestEffort  bool              `json:"best_effort,omitempty"`
}

func newReduceRequest(n *node, band, reducer string, geom orb.Geometry, opts raster.ReduceOpts) reduceRequest {
	req := reduceRequest{
		Expression:  n,
		Band:        band,
		Reducer:     reducer,
		ScaleMeters: opts.ScaleMeters,
		MaxPixels:   opts.MaxPixels,
		BestEffort:  opts.BestEffort,
	}
	if geom != nil {
		req.Geometry = geojson.NewGeometry(geom)
	}
	return req
}

// ReducePercentiles computes percentiles of one band over a geometry.
func (e *Engine) ReducePercentiles(ctx context.Context, img raster.Image, band string, percentiles []int, geom orb.Geometry, opts raster.ReduceOpts) (map[int]float64, error) {
	n, err := e.expr(img)
	if err != nil {
		return nil, err
	}
	req := newReduceRequest(n, band, "percentiles", geom, opts)
	req.Percentiles = percentiles

	var resp struct {
		Values map[string]float64 `json:"values"`
	}
	if err := e.post(ctx, "/v1/reduce", req, &resp); err != nil {
		return nil, err
	}

	out := make(map[int]float64, len(percentiles))
	for _, p := range percentiles {
		v, ok := resp.Values[fmt.Sprintf("p%d", p)]
		if !ok {
			return nil, fmt.Errorf("raster engine: percentile p%d missing from response", p)
		}
		out[p] = v
	}
	return out, nil
}

// ReduceHistogram computes a uniform-bucket histogram of one band.
func (e *Engine) ReduceHistogram(ctx context.Context, img raster.Image, band string, buckets int, geom orb.Geometry, opts raster.ReduceOpts) (*raster.Histogram, error) {
	n, err := e.expr(img)
	if err != nil {
		return nil, err
	}
	req := newReduceRequest(n, band, "histogram", geom, opts)
	req.Buckets = buckets

	var resp struct {
		Min    float64   `json:"min"`
		Width  float64   `json:"width"`
		Counts []float64 `json:"counts"`
	}
	if err := e.post(ctx, "/v1/reduce", req, &resp); err != nil {
		return nil, err
	}
	return &raster.Histogram{Min: resp.Min, Width: resp.Width, Counts: resp.Counts}, nil
}

// ReduceSum sums one band over a geometry.
func (e *Engine) ReduceSum(ctx context.Context, img raster.Image, band string, geom orb.Geometry, opts raster.ReduceOpts) (float64, error) {
	n, err := e.expr(img)
	if err != nil {
		return 0, err
	}
	var resp struct {
		Sum float64 `json:"sum"`
	}
	if err := e.post(ctx, "/v1/reduce", newReduceRequest(n, band, "sum", geom, opts), &resp); err != nil {
		return 0, err
	}
	return resp.Sum, nil
}

// ReduceStats computes min/max/mean of one band over a geometry.
func (e *Engine) ReduceStats(ctx context.Context, img raster.Image, band string, geom orb.Geometry, opts raster.ReduceOpts) (*raster.Stats, error) {
	n, err := e.expr(img)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Min   float64 `json:"min"`
		Max   float64 `json:"max"`
		Mean  float64 `json:"mean"`
		Count int64   `json:"count"`
	}
	if err := e.post(ctx, "/v1/reduce", newReduceRequest(n, band, "stats", geom, opts), &resp); err != nil {
		return nil, err
	}
	return &raster.Stats{Min: resp.Min, Max: resp.Max, Mean: resp.Mean, Count: resp.Count}, nil
}

// ToPolygons vectorizes one band into per-region polygons.
func (e *Engine) ToPolygons(ctx context.Context, img raster.Image, band string, geom orb.Geometry, opts raster.VectorizeOpts) ([]raster.RegionFeature, error) {
	n, err := e.expr(img)
	if err != nil {
		return nil, err
	}
	req := struct {
		Expression              *node             `json:"expression"`
		Band                    string            `json:"band"`
		Geometry                *geojson.Geometry `json:"geometry,omitempty"`
		ScaleMeters             float64           `json:"scale_meters,omitempty"`
		MaxPixels               int64             `json:"max_pixels,omitempty"`
		EightConnected          bool              `json:"eight_connected"`
		SimplifyToleranceMeters float64           `json:"simplify_tolerance_meters,omitempty"`
	}{
		Expression:              n,
		Band:                    band,
		ScaleMeters:             opts.ScaleMeters,
		MaxPixels:               opts.MaxPixels,
		EightConnected:          opts.EightConnected,
		SimplifyToleranceMeters: opts.SimplifyToleranceMeters,
	}
	if geom != nil {
		req.Geometry = geojson.NewGeometry(geom)
	}

	var resp struct {
		Features []struct {
			Geometry   *geojson.Geometry `json:"geometry"`
			AreaM2     float64           `json:"area_m2"`
			PixelCount int64             `json:"pixel_count"`
		} `json:"features"`
	}
	if err := e.post(ctx, "/v1/vectorize", req, &resp); err != nil {
		return nil, err
	}

	out := make([]raster.RegionFeature, 0, len(resp.Features))
	for i, f := range resp.Features {
		if f.Geometry == nil {
			return nil, fmt.Errorf("raster engine: feature %d has no geometry", i)
		}
		poly, ok := f.Geometry.Geometry().(orb.Polygon)
		if !ok {
			return nil, fmt.Errorf("raster engine: feature %d is not a polygon", i)
		}
		out = append(out, raster.RegionFeature{
			Geometry:   poly,
			AreaM2:     f.AreaM2,
			PixelCount: f.PixelCount,
		})
	}
	return out, nil
}

// SampleGrid exports a downsampled pixel window of one band.
func (e *Engine) SampleGrid(ctx context.Context, img raster.Image, band string, geom orb.Geometry, maxDim int) (*raster.Grid, error) {
	n, err := e.expr(img)
	if err != nil {
		return nil, err
	}
	req := struct {
		Expression *node             `json:"expression"`
		Band       string            `json:"band"`
		Geometry   *geojson.Geometry `json:"geometry,omitempty"`
		MaxDim     int               `json:"max_dim"`
	}{Expression: n, Band: band, MaxDim: maxDim}
	if geom != nil {
		req.Geometry = geojson.NewGeometry(geom)
	}

	var resp struct {
		W      int        `json:"w"`
		H      int        `json:"h"`
		Values []*float64 `json:"values"`
		Bound  [4]float64 `json:"bound"`
	}
	if err := e.post(ctx, "/v1/sample", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Values) != resp.W*resp.H {
		return nil, fmt.Errorf("raster engine: sample shape %dx%d does not match %d values", resp.W, resp.H, len(resp.Values))
	}

	values := make([]float64, len(resp.Values))
	for i, v := range resp.Values {
		if v == nil {
			values[i] = math.NaN()
			continue
		}
		values[i] = *v
	}
	return &raster.Grid{
		W:      resp.W,
		H:      resp.H,
		Values: values,
		Bound: orb.Bound{
			Min: orb.Point{resp.Bound[0], resp.Bound[1]},
			Max: orb.Point{resp.Bound[2], resp.Bound[3]},
		},
	}, nil
}
