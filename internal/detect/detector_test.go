package detect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floodline-data/floodline/internal/config"
	"github.com/floodline-data/floodline/internal/raster"
)

// lakeFixture builds a complete feature set with a 12x12 lake (144 pixels,
// ~14,400 m²) on flat terrain. Backscatter is strongly bimodal, so the
// adaptive threshold lands between the two populations.
func lakeFixture(t *testing.T) (*raster.GridEngine, FeatureSet) {
	t.Helper()
	def := ruleDef()

	vv := constBand(def, -6)
	setRect(def, vv, 4, 15, 4, 15, -22)

	vh := constBand(def, -12)
	setRect(def, vh, 4, 15, 4, 15, -28)

	diff := make([]float64, len(vv))
	for i := range diff {
		diff[i] = vv[i] - vh[i]
	}

	e := raster.NewGridEngine()
	img := e.NewImage(def,
		raster.Band{Name: BandVV, Values: vv},
		raster.Band{Name: BandVVRaw, Values: vv},
		raster.Band{Name: BandVH, Values: vh},
		raster.Band{Name: BandDiff, Values: diff},
		raster.Band{Name: BandTexture, Values: constBand(def, 0)},
		raster.Band{Name: BandSlope, Values: constBand(def, 0)},
	)
	return e, FeatureSet{Image: img, Geometry: def.Bound().ToPolygon()}
}

func TestDetectEndToEnd(t *testing.T) {
	t.Parallel()

	e, fs := lakeFixture(t)
	d := New(e, Config{})

	result, err := d.Detect(context.Background(), fs, nil)
	require.NoError(t, err)

	// 144 of 400 pixels sit at -22 dB, the rest at -6 dB: p25 = -22,
	// p50 = -6, gap = 16, threshold = -22 + 0.4*16 = -15.6.
	assert.Equal(t, ThresholdAuto, result.Threshold.Source)
	assert.InDelta(t, -15.6, result.Threshold.ThresholdDB, 1e-9)

	assert.Equal(t, int64(144), result.Counts.VVBelowThreshold)
	assert.Equal(t, int64(144), result.Counts.VHBelowThreshold)
	assert.Equal(t, int64(400), result.Counts.SlopeBelowMax)

	// Refinement rounds off the lake's four corner pixels; the remaining
	// 140 pixels clear the default 100-pixel floor.
	require.Len(t, result.Polygons, 1)
	assert.InDelta(t, 14000, result.Polygons[0].AreaM2, 60)
	assert.InDelta(t, 0.014, result.TotalAreaKM2, 1e-4)
}

func TestDetectManualThresholdTooLow(t *testing.T) {
	t.Parallel()

	// A manual threshold below the water population leaves nothing.
	e, fs := lakeFixture(t)
	d := New(e, Config{})

	result, err := d.Detect(context.Background(), fs, &config.DetectionParams{
		VVThreshold: config.Float64(-25),
	})
	require.NoError(t, err)
	assert.Equal(t, ThresholdManual, result.Threshold.Source)
	assert.Empty(t, result.Polygons)
	assert.Zero(t, result.TotalAreaKM2)
}

func TestDetectMinAreaAboveLake(t *testing.T) {
	t.Parallel()

	e, fs := lakeFixture(t)
	d := New(e, Config{})

	result, err := d.Detect(context.Background(), fs, &config.DetectionParams{
		MinAreaPixels: config.Int(200),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(144), result.Counts.VVBelowThreshold)
	assert.Empty(t, result.Polygons)
}

func TestDetectRuleFailureIsFatal(t *testing.T) {
	t.Parallel()

	def := ruleDef()
	e := raster.NewGridEngine()
	// No slope band: the rule stage cannot run.
	img := e.NewImage(def,
		raster.Band{Name: BandVV, Values: constBand(def, -22)},
		raster.Band{Name: BandVH, Values: constBand(def, -28)},
	)
	fs := FeatureSet{Image: img, Geometry: def.Bound().ToPolygon()}

	d := New(e, Config{})
	_, err := d.Detect(context.Background(), fs, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, raster.ErrBandNotFound)
}
