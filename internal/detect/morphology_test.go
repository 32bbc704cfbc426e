package detect

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floodline-data/floodline/internal/raster"
)

func maskImage(e *raster.GridEngine, def raster.GridDef, values []float64) WaterMask {
	return e.NewImage(def, raster.Band{Name: BandWater, Values: values})
}

func orbPolygon(minLon, minLat, maxLon, maxLat float64) orb.Polygon {
	return orb.Bound{Min: orb.Point{minLon, minLat}, Max: orb.Point{maxLon, maxLat}}.ToPolygon()
}

func TestRefinePreservesTrivialMasks(t *testing.T) {
	t.Parallel()

	def := ruleDef()
	aoi := def.Bound().ToPolygon()
	ctx := context.Background()

	t.Run("all zero stays all zero", func(t *testing.T) {
		t.Parallel()
		e := raster.NewGridEngine()
		d := New(e, Config{})

		refined, err := d.Refine(ctx, maskImage(e, def, constBand(def, 0)), aoi)
		require.NoError(t, err)
		sum, err := e.ReduceSum(ctx, refined, BandWater, aoi, raster.ReduceOpts{})
		require.NoError(t, err)
		assert.Equal(t, 0.0, sum)
	})

	t.Run("all one stays all one", func(t *testing.T) {
		t.Parallel()
		e := raster.NewGridEngine()
		d := New(e, Config{})

		refined, err := d.Refine(ctx, maskImage(e, def, constBand(def, 1)), aoi)
		require.NoError(t, err)
		sum, err := e.ReduceSum(ctx, refined, BandWater, aoi, raster.ReduceOpts{})
		require.NoError(t, err)
		assert.Equal(t, 400.0, sum)
	})
}

func TestRefineRemovesSpeckleAndFillsGaps(t *testing.T) {
	t.Parallel()

	def := ruleDef()
	aoi := def.Bound().ToPolygon()
	ctx := context.Background()

	// A 10x10 water block with a one-pixel hole, plus an isolated
	// one-pixel false positive far from it.
	values := constBand(def, 0)
	setRect(def, values, 5, 14, 5, 14, 1)
	values[10*def.W+10] = 0
	values[2*def.W+17] = 1

	e := raster.NewGridEngine()
	d := New(e, Config{})

	refined, err := d.Refine(ctx, maskImage(e, def, values), aoi)
	require.NoError(t, err)

	g, err := e.SampleGrid(ctx, refined, BandWater, aoi, def.W)
	require.NoError(t, err)

	// The opening erased the speckle pixel, the closing filled the hole.
	assert.Equal(t, 0.0, g.Values[2*def.W+17], "speckle pixel should be erased")
	assert.Equal(t, 1.0, g.Values[10*def.W+10], "interior hole should be filled")

	// The block survives apart from its four corners, which the circular
	// kernel rounds off.
	sum, err := e.ReduceSum(ctx, refined, BandWater, aoi, raster.ReduceOpts{})
	require.NoError(t, err)
	assert.Equal(t, 96.0, sum)
}

func TestRefineClipsToAOI(t *testing.T) {
	t.Parallel()

	def := ruleDef()
	ctx := context.Background()

	// AOI covering only the western half of the grid.
	b := def.Bound()
	midLon := (b.Min[0] + b.Max[0]) / 2
	aoi := orbPolygon(b.Min[0], b.Min[1], midLon, b.Max[1])

	e := raster.NewGridEngine()
	d := New(e, Config{})

	refined, err := d.Refine(ctx, maskImage(e, def, constBand(def, 1)), aoi)
	require.NoError(t, err)

	sum, err := e.ReduceSum(ctx, refined, BandWater, def.Bound().ToPolygon(), raster.ReduceOpts{})
	require.NoError(t, err)
	assert.Equal(t, 200.0, sum)
}

func TestRefineHonorsCancelledContext(t *testing.T) {
	t.Parallel()

	def := ruleDef()
	e := raster.NewGridEngine()
	d := New(e, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Refine(ctx, maskImage(e, def, constBand(def, 1)), def.Bound().ToPolygon())
	assert.ErrorIs(t, err, context.Canceled)
}
