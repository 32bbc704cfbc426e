package detect

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/floodline-data/floodline/internal/config"
	"github.com/floodline-data/floodline/internal/raster"
)

// BuildMask combines the per-pixel predicates into a binary water mask.
//
// The required criteria are VV backscatter below the resolved threshold and
// slope below slope_max; they are the least noise-sensitive water
// indicators and always apply. The VV−VH difference and texture criteria
// are AND-ed in only when their parameters are explicitly supplied, so
// enabling them can only shrink the mask. The VH criterion is evaluated for
// its diagnostic pixel count but never combined into the mask.
//
// The returned mask shares the FeatureSet's grid; it is not yet clipped or
// morphologically refined.
func (d *Detector) BuildMask(ctx context.Context, fs FeatureSet, decision ThresholdDecision, params *config.DetectionParams) (WaterMask, CriterionCounts, error) {
	var counts CriterionCounts

	vvMask, err := d.criterion(fs, BandVV, decision.ThresholdDB)
	if err != nil {
		return nil, counts, fmt.Errorf("vv criterion: %w", err)
	}
	slopeMask, err := d.criterion(fs, BandSlope, params.GetSlopeMax())
	if err != nil {
		return nil, counts, fmt.Errorf("slope criterion: %w", err)
	}

	mask, err := d.engine.And(vvMask, slopeMask)
	if err != nil {
		return nil, counts, fmt.Errorf("combine vv and slope: %w", err)
	}

	if params.VVVHDiff != nil {
		diffMask, err := d.criterion(fs, BandDiff, *params.VVVHDiff)
		if err != nil {
			return nil, counts, fmt.Errorf("vv-vh diff criterion: %w", err)
		}
		if mask, err = d.engine.And(mask, diffMask); err != nil {
			return nil, counts, fmt.Errorf("combine diff: %w", err)
		}
		counts.DiffBelowMax = d.countPixels(ctx, diffMask, fs.Geometry, "vv_vh_diff")
	}

	if params.TextureMax != nil {
		textureMask, err := d.criterion(fs, BandTexture, *params.TextureMax)
		if err != nil {
			return nil, counts, fmt.Errorf("texture criterion: %w", err)
		}
		if mask, err = d.engine.And(mask, textureMask); err != nil {
			return nil, counts, fmt.Errorf("combine texture: %w", err)
		}
		counts.TextureBelowMax = d.countPixels(ctx, textureMask, fs.Geometry, "texture")
	}

	// VH is diagnostic only: counted, never combined.
	vhMask, err := d.criterion(fs, BandVH, params.GetVHThreshold())
	if err != nil {
		return nil, counts, fmt.Errorf("vh criterion: %w", err)
	}

	if c := d.countPixels(ctx, vvMask, fs.Geometry, "vv"); c != nil {
		counts.VVBelowThreshold = *c
	}
	if c := d.countPixels(ctx, slopeMask, fs.Geometry, "slope"); c != nil {
		counts.SlopeBelowMax = *c
	}
	if c := d.countPixels(ctx, vhMask, fs.Geometry, "vh"); c != nil {
		counts.VHBelowThreshold = *c
	}

	named, err := d.engine.Rename(mask, BandWater)
	if err != nil {
		return nil, counts, fmt.Errorf("rename mask: %w", err)
	}
	return named, counts, nil
}

// criterion derives a 0/1 image marking pixels of one band strictly below a
// bound.
func (d *Detector) criterion(fs FeatureSet, band string, bound float64) (raster.Image, error) {
	selected, err := d.engine.SelectBand(fs.Image, band)
	if err != nil {
		return nil, err
	}
	return d.engine.LessThan(selected, bound)
}

// countPixels sums a binary mask over the AOI at the statistics scale.
// Counts are diagnostics; a failed count degrades to nil rather than
// failing the request.
func (d *Detector) countPixels(ctx context.Context, mask raster.Image, geom orb.Geometry, label string) *int64 {
	sum, err := d.engine.ReduceSum(ctx, mask, mask.BandNames()[0], geom, raster.ReduceOpts{
		ScaleMeters: d.cfg.StatsScaleMeters,
		MaxPixels:   d.cfg.MaxPixels,
		BestEffort:  true,
	})
	if err != nil {
		d.logf("pixel count for %s criterion failed: %v", label, err)
		return nil
	}
	count := int64(sum)
	return &count
}
