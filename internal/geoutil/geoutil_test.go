package geoutil

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// squareAt builds a closed square polygon of the given side length (in
// degrees) with its south-west corner at (lon, lat).
func squareAt(lon, lat, side float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{lon, lat},
		{lon + side, lat},
		{lon + side, lat + side},
		{lon, lat + side},
		{lon, lat},
	}}
}

func TestParseGeometry(t *testing.T) {
	t.Parallel()

	t.Run("valid polygon", func(t *testing.T) {
		t.Parallel()
		raw := json.RawMessage(`{"type":"Polygon","coordinates":[[[0,0],[0.1,0],[0.1,0.1],[0,0.1],[0,0]]]}`)
		geom, err := ParseGeometry(raw)
		require.NoError(t, err)
		_, ok := geom.(orb.Polygon)
		assert.True(t, ok)
	})

	t.Run("valid multipolygon", func(t *testing.T) {
		t.Parallel()
		raw := json.RawMessage(`{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,1],[0,0]]]]}`)
		_, err := ParseGeometry(raw)
		require.NoError(t, err)
	})

	t.Run("malformed json", func(t *testing.T) {
		t.Parallel()
		_, err := ParseGeometry(json.RawMessage(`{"type":"Polygon"`))
		assert.Error(t, err)
	})

	t.Run("point rejected", func(t *testing.T) {
		t.Parallel()
		_, err := ParseGeometry(json.RawMessage(`{"type":"Point","coordinates":[0,0]}`))
		assert.ErrorIs(t, err, ErrUnsupportedGeometry)
	})

	t.Run("degenerate ring rejected", func(t *testing.T) {
		t.Parallel()
		_, err := ParseGeometry(json.RawMessage(`{"type":"Polygon","coordinates":[[[0,0],[1,1],[0,0]]]}`))
		assert.ErrorIs(t, err, ErrEmptyGeometry)
	})
}

func TestValidateAOI(t *testing.T) {
	t.Parallel()

	t.Run("empty polygon", func(t *testing.T) {
		t.Parallel()
		assert.ErrorIs(t, ValidateAOI(orb.Polygon{}), ErrEmptyGeometry)
	})

	t.Run("empty multipolygon", func(t *testing.T) {
		t.Parallel()
		assert.ErrorIs(t, ValidateAOI(orb.MultiPolygon{}), ErrEmptyGeometry)
	})

	t.Run("unclosed ring", func(t *testing.T) {
		t.Parallel()
		open := orb.Polygon{orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}}}
		assert.ErrorIs(t, ValidateAOI(open), ErrEmptyGeometry)
	})
}

func TestAreaKM2(t *testing.T) {
	t.Parallel()

	// A 0.1° x 0.1° square at the equator is close to 11.1 km x 11.1 km.
	sq := squareAt(0, -0.05, 0.1)
	got := AreaKM2(sq)
	want := 123.2 // 11.1² km², within a percent on the sphere
	if math.Abs(got-want)/want > 0.02 {
		t.Errorf("AreaKM2 = %.2f, want about %.2f", got, want)
	}

	// MultiPolygon area adds up.
	mp := orb.MultiPolygon{sq, squareAt(1, -0.05, 0.1)}
	assert.InEpsilon(t, 2*got, AreaKM2(mp), 0.02)
}

func TestContains(t *testing.T) {
	t.Parallel()

	sq := squareAt(0, 0, 1)
	assert.True(t, Contains(sq, orb.Point{0.5, 0.5}))
	assert.False(t, Contains(sq, orb.Point{1.5, 0.5}))
	assert.True(t, Contains(orb.MultiPolygon{sq}, orb.Point{0.5, 0.5}))
	assert.False(t, Contains(orb.LineString{{0, 0}, {1, 1}}, orb.Point{0.5, 0.5}))
}

func TestIntersects(t *testing.T) {
	t.Parallel()

	a := squareAt(0, 0, 1)
	b := squareAt(0.5, 0.5, 1)
	c := squareAt(5, 5, 1)
	assert.True(t, Intersects(a, b))
	assert.False(t, Intersects(a, c))
}
