package detect

import (
	"context"
	"strconv"

	"github.com/floodline-data/floodline/internal/raster"
)

// FallbackThresholdDB is the conservative VV threshold used when the
// statistics round trip fails.
const FallbackThresholdDB = -18.0

// thresholdPercentiles are the backscatter percentiles consulted by the
// adaptive rule. Only p25, p35, and p50 drive the decision; the rest are
// kept in the decision for diagnostics.
var thresholdPercentiles = []int{5, 15, 25, 35, 50, 85}

// gapRule is one row of the adaptive decision table. Rules are evaluated in
// order; the first row whose lower gap bound is exceeded wins.
type gapRule struct {
	name   string
	minGap float64 // exclusive lower bound on p50 − p25
	pick   func(p map[int]float64, gap float64) float64
}

// The gap between the 50th and 25th percentiles measures how far the
// backscatter distribution has split into water and land populations.
var gapRules = []gapRule{
	// Strongly bimodal: a clear water body is present. Undercut the median
	// toward p25 to capture the whole water population, not just its edge.
	{"bimodal", 8, func(p map[int]float64, gap float64) float64 { return p[25] + 0.4*gap }},
	// Moderate separation.
	{"moderate", 5, func(p map[int]float64, _ float64) float64 { return p[35] }},
	// Unimodal: likely dry or subtle-flood scene. Stay conservative.
	{"unimodal", -1e9, func(p map[int]float64, _ float64) float64 { return p[25] }},
}

// SelectThreshold resolves the VV threshold for a feature set. A manual
// override wins unconditionally and consults no statistics. Otherwise the
// adaptive rule runs on backscatter percentiles over the AOI; any failure
// of the statistics round trip degrades to FallbackThresholdDB rather than
// failing the request.
func (d *Detector) SelectThreshold(ctx context.Context, fs FeatureSet, manual *float64) ThresholdDecision {
	if manual != nil {
		d.logf("using manual VV threshold: %.2f dB", *manual)
		return ThresholdDecision{ThresholdDB: *manual, Source: ThresholdManual}
	}

	band := statsBand(fs.Image)
	pcts, err := d.engine.ReducePercentiles(ctx, fs.Image, band, thresholdPercentiles, fs.Geometry, raster.ReduceOpts{
		ScaleMeters: d.cfg.StatsScaleMeters,
		MaxPixels:   d.cfg.MaxPixels,
		BestEffort:  true,
	})
	if err != nil {
		d.logf("percentile statistics failed (%v), falling back to %.1f dB", err, FallbackThresholdDB)
		return ThresholdDecision{ThresholdDB: FallbackThresholdDB, Source: ThresholdAutoFallback}
	}
	if err := checkPercentiles(pcts); err != nil {
		d.logf("percentile statistics incomplete (%v), falling back to %.1f dB", err, FallbackThresholdDB)
		return ThresholdDecision{ThresholdDB: FallbackThresholdDB, Source: ThresholdAutoFallback}
	}

	gap := pcts[50] - pcts[25]
	for _, rule := range gapRules {
		if gap > rule.minGap {
			threshold := rule.pick(pcts, gap)
			d.logf("auto VV threshold %.2f dB (%s, gap %.2f, band %s)", threshold, rule.name, gap, band)
			return ThresholdDecision{ThresholdDB: threshold, Source: ThresholdAuto, Percentiles: pcts}
		}
	}

	// Unreachable: the last rule's bound is below any finite gap.
	return ThresholdDecision{ThresholdDB: FallbackThresholdDB, Source: ThresholdAutoFallback}
}

// statsBand picks the least-processed VV band available, preferring the
// pre-speckle-filter version for a cleaner distribution shape.
func statsBand(img raster.Image) string {
	for _, b := range img.BandNames() {
		if b == BandVVRaw {
			return BandVVRaw
		}
	}
	return BandVV
}

func checkPercentiles(p map[int]float64) error {
	for _, want := range thresholdPercentiles {
		if _, ok := p[want]; !ok {
			return &missingPercentileError{percentile: want}
		}
	}
	return nil
}

type missingPercentileError struct {
	percentile int
}

func (e *missingPercentileError) Error() string {
	return "missing percentile p" + strconv.Itoa(e.percentile)
}
