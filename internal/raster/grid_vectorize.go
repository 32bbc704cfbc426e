package raster

import (
	"context"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
)

// ToPolygons traces the nonzero, unmasked pixels of one band into one
// polygon per connected region. Region membership uses four-connectivity
// unless opts.EightConnected is set. AreaM2 is the geodesic area of the
// traced geometry before simplification.
func (e *GridEngine) ToPolygons(ctx context.Context, img Image, band string, geom orb.Geometry, opts VectorizeOpts) ([]RegionFeature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g, err := e.grid(img)
	if err != nil {
		return nil, err
	}
	src, err := g.band(band)
	if err != nil {
		return nil, err
	}

	inside := insideMask(g.def, geom)
	set := make([]bool, len(src))
	var setCount int64
	for i, v := range src {
		if inside[i] && !math.IsNaN(v) && v != 0 {
			set[i] = true
			setCount++
		}
	}
	if opts.MaxPixels > 0 && setCount > opts.MaxPixels {
		return nil, ErrBudgetExceeded
	}

	components := connectedComponents(set, g.def.W, g.def.H, opts.EightConnected)

	features := make([]RegionFeature, 0, len(components))
	for _, comp := range components {
		poly := tracePolygon(comp, g.def)
		area := math.Abs(geo.Area(poly))
		if opts.SimplifyToleranceMeters > 0 {
			tolDeg := opts.SimplifyToleranceMeters / metersPerDegree
			simplified := simplify.DouglasPeucker(tolDeg).Simplify(poly.Clone())
			if p, ok := simplified.(orb.Polygon); ok && len(p) > 0 {
				poly = p
			}
		}
		features = append(features, RegionFeature{
			Geometry:   poly,
			AreaM2:     area,
			PixelCount: int64(len(comp)),
		})
	}

	// Largest regions first, for a stable output order.
	sort.Slice(features, func(i, j int) bool {
		return features[i].AreaM2 > features[j].AreaM2
	})
	return features, nil
}

// connectedComponents partitions set pixels into connected regions, each a
// list of linear pixel indexes.
func connectedComponents(set []bool, w, h int, eightConnected bool) [][]int {
	neighbors := [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	if eightConnected {
		neighbors = append(neighbors, [][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}...)
	}

	visited := make([]bool, len(set))
	var components [][]int
	queue := make([]int, 0, 64)
	for start := range set {
		if !set[start] || visited[start] {
			continue
		}
		visited[start] = true
		queue = append(queue[:0], start)
		component := []int{start}
		for len(queue) > 0 {
			i := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			c, r := i%w, i/w
			for _, n := range neighbors {
				cc, rr := c+n[0], r+n[1]
				if cc < 0 || cc >= w || rr < 0 || rr >= h {
					continue
				}
				j := rr*w + cc
				if set[j] && !visited[j] {
					visited[j] = true
					queue = append(queue, j)
					component = append(component, j)
				}
			}
		}
		components = append(components, component)
	}
	return components
}

// gridEdge is a directed boundary segment between two pixel corners, in
// corner coordinates (x east 0..W, y south 0..H).
type gridEdge struct {
	fromX, fromY int
	toX, toY     int
}

// tracePolygon converts a component's pixel set to a polygon by collecting
// every boundary edge of the pixel squares and stitching them into closed
// rings. Edges are directed so each boundary loop is traversed consistently;
// the ring enclosing the largest area becomes the exterior, the rest become
// holes.
func tracePolygon(component []int, def GridDef) orb.Polygon {
	member := make(map[int]bool, len(component))
	for _, i := range component {
		member[i] = true
	}

	// Collect directed edges wherever a pixel borders a non-member.
	bySource := make(map[[2]int][]gridEdge)
	addEdge := func(fx, fy, tx, ty int) {
		k := [2]int{fx, fy}
		bySource[k] = append(bySource[k], gridEdge{fx, fy, tx, ty})
	}
	for _, i := range component {
		c, r := i%def.W, i/def.W
		if !member[i-def.W] || r == 0 { // north neighbor absent
			addEdge(c, r, c+1, r)
		}
		if c == def.W-1 || !member[i+1] { // east neighbor absent
			addEdge(c+1, r, c+1, r+1)
		}
		if r == def.H-1 || !member[i+def.W] { // south neighbor absent
			addEdge(c+1, r+1, c, r+1)
		}
		if c == 0 || !member[i-1] { // west neighbor absent
			addEdge(c, r+1, c, r)
		}
	}

	// Stitch directed edges into closed rings.
	var rings []orb.Ring
	for {
		var start gridEdge
		found := false
		for _, edges := range bySource {
			if len(edges) > 0 {
				start = edges[0]
				found = true
				break
			}
		}
		if !found {
			break
		}

		ring := orb.Ring{def.Corner(start.fromX, start.fromY)}
		cur := start
		for {
			consumeEdge(bySource, cur)
			ring = append(ring, def.Corner(cur.toX, cur.toY))
			if cur.toX == start.fromX && cur.toY == start.fromY {
				break
			}
			next, ok := takeNext(bySource, cur.toX, cur.toY)
			if !ok {
				// Should not happen for a well-formed boundary; close the
				// ring defensively.
				ring = append(ring, ring[0])
				break
			}
			cur = next
		}
		rings = append(rings, ring)
	}

	if len(rings) == 0 {
		return orb.Polygon{}
	}

	// The exterior is the ring with the largest planar extent.
	outer := 0
	outerArea := math.Abs(planar.Area(rings[0]))
	for i := 1; i < len(rings); i++ {
		if a := math.Abs(planar.Area(rings[i])); a > outerArea {
			outer, outerArea = i, a
		}
	}

	poly := orb.Polygon{rings[outer]}
	for i, ring := range rings {
		if i != outer {
			poly = append(poly, ring)
		}
	}
	return poly
}

func consumeEdge(bySource map[[2]int][]gridEdge, edge gridEdge) {
	k := [2]int{edge.fromX, edge.fromY}
	edges := bySource[k]
	for i, e := range edges {
		if e == edge {
			bySource[k] = append(edges[:i], edges[i+1:]...)
			return
		}
	}
}

func takeNext(bySource map[[2]int][]gridEdge, x, y int) (gridEdge, bool) {
	edges := bySource[[2]int{x, y}]
	if len(edges) == 0 {
		return gridEdge{}, false
	}
	return edges[0], true
}
