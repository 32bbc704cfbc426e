package detect

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/floodline-data/floodline/internal/raster"
)

// Refine cleans a water mask with an opening followed by a closing, both
// with the same circular kernel, then clips the result to the AOI.
//
// The opening (minimum then maximum filter) erases blobs smaller than the
// structuring element, suppressing speckle-scale false positives. The
// closing (maximum then minimum filter) fills small false-negative gaps
// inside larger water bodies. The two passes share one radius; an all-zero
// mask refines to all-zero, an all-one mask to all-one apart from clip
// boundary effects.
func (d *Detector) Refine(ctx context.Context, mask WaterMask, aoi orb.Geometry) (WaterMask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	kernel := raster.Kernel{Shape: raster.KernelCircle, RadiusMeters: d.cfg.RefineRadiusMeters}

	// Opening: erase sub-kernel noise.
	opened, err := d.focalPair(mask, raster.FocalMin, raster.FocalMax, kernel)
	if err != nil {
		return nil, fmt.Errorf("opening: %w", err)
	}

	// Closing: fill sub-kernel gaps.
	closed, err := d.focalPair(opened, raster.FocalMax, raster.FocalMin, kernel)
	if err != nil {
		return nil, fmt.Errorf("closing: %w", err)
	}

	clipped, err := d.engine.Clip(closed, aoi)
	if err != nil {
		return nil, fmt.Errorf("clip to aoi: %w", err)
	}
	return clipped, nil
}

func (d *Detector) focalPair(img raster.Image, first, second raster.FocalStat, kernel raster.Kernel) (raster.Image, error) {
	out, err := d.engine.Focal(img, first, kernel)
	if err != nil {
		return nil, err
	}
	return d.engine.Focal(out, second, kernel)
}
