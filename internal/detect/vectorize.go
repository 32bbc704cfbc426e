package detect

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/floodline-data/floodline/internal/raster"
	"github.com/floodline-data/floodline/internal/units"
)

// Vectorize converts a refined mask into the final polygon result.
//
// Non-water pixels are masked away so only water regions are traced, one
// polygon per four-connected region. Regions smaller than
// minAreaPixels × the nominal pixel area are dropped; survivors keep their
// simplified geometry and geodesic area, and the retained areas sum to
// TotalAreaKM2.
//
// Vectorization failures are non-fatal: any engine error yields an empty
// result rather than failing the request.
func (d *Detector) Vectorize(ctx context.Context, mask WaterMask, aoi orb.Geometry, minAreaPixels int) *Result {
	empty := &Result{Polygons: []WaterPolygon{}}

	masked, err := d.engine.SelfMask(mask)
	if err != nil {
		d.logf("self-mask failed (%v), returning empty result", err)
		return empty
	}

	features, err := d.engine.ToPolygons(ctx, masked, BandWater, aoi, raster.VectorizeOpts{
		ScaleMeters:             d.cfg.VectorizeScaleMeters,
		MaxPixels:               d.cfg.MaxPixels,
		EightConnected:          false,
		SimplifyToleranceMeters: d.cfg.SimplifyToleranceMeters,
	})
	if err != nil {
		d.logf("vectorization failed (%v), returning empty result", err)
		return empty
	}

	minAreaM2 := units.PixelsToSquareMeters(minAreaPixels)
	polygons := make([]WaterPolygon, 0, len(features))
	var totalM2 float64
	for _, f := range features {
		if f.AreaM2 < minAreaM2 {
			continue
		}
		polygons = append(polygons, WaterPolygon{Geometry: f.Geometry, AreaM2: f.AreaM2})
		totalM2 += f.AreaM2
	}

	d.logf("vectorized %d regions, kept %d above %.0f m²", len(features), len(polygons), minAreaM2)
	return &Result{
		Polygons:     polygons,
		TotalAreaKM2: units.ConvertArea(totalM2, units.SquareKilometers),
	}
}
