package detect

import (
	"context"
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floodline-data/floodline/internal/raster"
)

func TestVectorizeAreaFloor(t *testing.T) {
	t.Parallel()

	def := ruleDef()
	aoi := def.Bound().ToPolygon()
	ctx := context.Background()

	// Two regions separated by dry rows: 40 pixels (~4,000 m²) and
	// 60 pixels (~6,000 m²).
	values := constBand(def, 0)
	setRect(def, values, 1, 4, 1, 10, 1)
	setRect(def, values, 8, 13, 1, 10, 1)

	e := raster.NewGridEngine()
	d := New(e, Config{})
	mask := maskImage(e, def, values)

	t.Run("floor drops the small region", func(t *testing.T) {
		t.Parallel()
		// min_area_pixels = 50 means a 5,000 m² floor.
		result := d.Vectorize(ctx, mask, aoi, 50)

		require.Len(t, result.Polygons, 1)
		assert.InDelta(t, 6000, result.Polygons[0].AreaM2, 20)
		assert.InDelta(t, 0.006, result.TotalAreaKM2, 1e-4)
	})

	t.Run("without floor both survive largest first", func(t *testing.T) {
		t.Parallel()
		result := d.Vectorize(ctx, mask, aoi, 1)

		require.Len(t, result.Polygons, 2)
		assert.InDelta(t, 6000, result.Polygons[0].AreaM2, 20)
		assert.InDelta(t, 4000, result.Polygons[1].AreaM2, 20)
		assert.InDelta(t, 0.010, result.TotalAreaKM2, 1e-4)
	})

	t.Run("floor above both yields empty result", func(t *testing.T) {
		t.Parallel()
		result := d.Vectorize(ctx, mask, aoi, 200)

		assert.Empty(t, result.Polygons)
		assert.NotNil(t, result.Polygons)
		assert.Zero(t, result.TotalAreaKM2)
	})
}

func TestVectorizeEmptyMask(t *testing.T) {
	t.Parallel()

	def := ruleDef()
	e := raster.NewGridEngine()
	d := New(e, Config{})

	result := d.Vectorize(context.Background(), maskImage(e, def, constBand(def, 0)), def.Bound().ToPolygon(), 1)
	assert.Empty(t, result.Polygons)
	assert.Zero(t, result.TotalAreaKM2)
}

// failingVectorEngine fails either the self-mask or the trace itself.
type failingVectorEngine struct {
	raster.Engine
	failSelfMask bool
}

func (f *failingVectorEngine) SelfMask(img raster.Image) (raster.Image, error) {
	if f.failSelfMask {
		return nil, errors.New("compute backend unavailable")
	}
	return img, nil
}

func (f *failingVectorEngine) ToPolygons(context.Context, raster.Image, string, orb.Geometry, raster.VectorizeOpts) ([]raster.RegionFeature, error) {
	return nil, raster.ErrBudgetExceeded
}

func TestVectorizeEngineFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	def := ruleDef()
	grid := raster.NewGridEngine()
	mask := maskImage(grid, def, constBand(def, 1))
	aoi := def.Bound().ToPolygon()

	for _, failSelfMask := range []bool{true, false} {
		d := New(&failingVectorEngine{failSelfMask: failSelfMask}, Config{})
		result := d.Vectorize(context.Background(), mask, aoi, 1)

		require.NotNil(t, result)
		assert.Empty(t, result.Polygons)
		assert.NotNil(t, result.Polygons)
		assert.Zero(t, result.TotalAreaKM2)
	}
}
