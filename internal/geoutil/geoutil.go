// Package geoutil provides GeoJSON geometry parsing, validation, and area
// computation for areas of interest.
package geoutil

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// ErrUnsupportedGeometry is returned for geometry types other than Polygon
// and MultiPolygon.
var ErrUnsupportedGeometry = errors.New("geometry must be a Polygon or MultiPolygon")

// ErrEmptyGeometry is returned for syntactically valid but degenerate
// geometry (no rings, or rings with fewer than four positions).
var ErrEmptyGeometry = errors.New("geometry is empty or degenerate")

// ParseGeometry decodes a GeoJSON geometry object and validates it for use
// as an AOI.
func ParseGeometry(raw json.RawMessage) (orb.Geometry, error) {
	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, fmt.Errorf("decode geometry: %w", err)
	}
	geom := g.Geometry()
	if err := ValidateAOI(geom); err != nil {
		return nil, err
	}
	return geom, nil
}

// ValidateAOI checks that a geometry is a non-degenerate Polygon or
// MultiPolygon with closed rings.
func ValidateAOI(geom orb.Geometry) error {
	switch g := geom.(type) {
	case orb.Polygon:
		return validatePolygon(g)
	case orb.MultiPolygon:
		if len(g) == 0 {
			return ErrEmptyGeometry
		}
		for _, p := range g {
			if err := validatePolygon(p); err != nil {
				return err
			}
		}
		return nil
	default:
		return ErrUnsupportedGeometry
	}
}

func validatePolygon(p orb.Polygon) error {
	if len(p) == 0 {
		return ErrEmptyGeometry
	}
	for _, ring := range p {
		if len(ring) < 4 {
			return ErrEmptyGeometry
		}
		if !ring.Closed() {
			return fmt.Errorf("%w: ring is not closed", ErrEmptyGeometry)
		}
	}
	return nil
}

// AreaM2 returns the geodesic area of a geometry in square meters.
func AreaM2(geom orb.Geometry) float64 {
	return geo.Area(geom)
}

// AreaKM2 returns the geodesic area of a geometry in square kilometers.
func AreaKM2(geom orb.Geometry) float64 {
	return geo.Area(geom) / 1e6
}

// Contains reports whether a point falls inside a Polygon or MultiPolygon.
// Other geometry types always report false.
func Contains(geom orb.Geometry, pt orb.Point) bool {
	switch g := geom.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, pt)
	default:
		return false
	}
}

// Intersects reports whether the bounding boxes of two geometries overlap.
// Scene catalog filtering only needs the bound-level test.
func Intersects(a, b orb.Geometry) bool {
	return a.Bound().Intersects(b.Bound())
}
