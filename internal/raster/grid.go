package raster

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/stat"

	"github.com/floodline-data/floodline/internal/geoutil"
)

// metersPerDegree is the nominal ground length of one degree of latitude.
const metersPerDegree = 111320.0

// GridDef places a pixel grid on the ground. Origin is the north-west
// corner; rows advance south, columns east. ScaleMeters is the pixel edge
// length.
type GridDef struct {
	W, H        int
	OriginLon   float64
	OriginLat   float64
	ScaleMeters float64
}

// degPerPixel returns the grid's pixel size in degrees of longitude and
// latitude.
func (d GridDef) degPerPixel() (dLon, dLat float64) {
	dLat = d.ScaleMeters / metersPerDegree
	dLon = d.ScaleMeters / (metersPerDegree * math.Cos(d.OriginLat*math.Pi/180))
	return dLon, dLat
}

// CellCenter returns the geographic center of pixel (col, row).
func (d GridDef) CellCenter(col, row int) orb.Point {
	dLon, dLat := d.degPerPixel()
	return orb.Point{
		d.OriginLon + (float64(col)+0.5)*dLon,
		d.OriginLat - (float64(row)+0.5)*dLat,
	}
}

// Corner returns the geographic position of grid corner (x, y), where x runs
// 0..W east and y runs 0..H south.
func (d GridDef) Corner(x, y int) orb.Point {
	dLon, dLat := d.degPerPixel()
	return orb.Point{
		d.OriginLon + float64(x)*dLon,
		d.OriginLat - float64(y)*dLat,
	}
}

// Bound returns the grid's geographic bounding box.
func (d GridDef) Bound() orb.Bound {
	sw := d.Corner(0, d.H)
	ne := d.Corner(d.W, 0)
	return orb.Bound{Min: sw, Max: ne}
}

// gridImage is the GridEngine's image: dense row-major float64 bands with
// NaN as the mask value. Derivation copies; handles stay immutable.
type gridImage struct {
	def   GridDef
	order []string
	bands map[string][]float64
}

// BandNames lists the image's bands in order.
func (g *gridImage) BandNames() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

func (g *gridImage) band(name string) ([]float64, error) {
	b, ok := g.bands[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrBandNotFound, name, g.order)
	}
	return b, nil
}

func (g *gridImage) singleBand() (string, []float64, error) {
	if len(g.order) != 1 {
		return "", nil, fmt.Errorf("expected single-band image, have %v", g.order)
	}
	return g.order[0], g.bands[g.order[0]], nil
}

func newGridImage(def GridDef) *gridImage {
	return &gridImage{def: def, bands: make(map[string][]float64)}
}

func (g *gridImage) addBand(name string, values []float64) {
	g.order = append(g.order, name)
	g.bands[name] = values
}

// GridEngine is an in-process Engine over dense grids. It backs the -dev
// daemon mode and the test suite. Fixture registration (AddScene, SetDEM)
// must finish before the engine is shared across requests.
type GridEngine struct {
	mu     sync.Mutex
	scenes []SceneFixture
	dem    *demFixture
	closed bool
}

// SceneFixture is one synthetic catalog entry served by a GridEngine.
// Bands hold raw linear-power values (not dB), as a real catalog would.
type SceneFixture struct {
	Info          SceneInfo
	Mode          string
	OrbitPass     string
	Polarisations []string
	Def           GridDef
	Bands         map[string][]float64
}

type demFixture struct {
	def       GridDef
	elevation []float64
}

// NewGridEngine constructs an empty in-process engine.
func NewGridEngine() *GridEngine {
	return &GridEngine{}
}

// Band pairs a band name with its dense row-major values, for NewImage.
type Band struct {
	Name   string
	Values []float64
}

// NewImage builds an image handle on this engine directly from dense bands,
// bypassing the catalog. Fixture wiring and tests use it; values are copied.
func (e *GridEngine) NewImage(def GridDef, bands ...Band) Image {
	img := newGridImage(def)
	for _, b := range bands {
		img.addBand(b.Name, append([]float64(nil), b.Values...))
	}
	return img
}

// AddScene registers a catalog scene fixture.
func (e *GridEngine) AddScene(s SceneFixture) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scenes = append(e.scenes, s)
}

// SetDEM registers the elevation model (meters) used by TerrainSlope.
func (e *GridEngine) SetDEM(def GridDef, elevation []float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dem = &demFixture{def: def, elevation: elevation}
}

// Close releases the engine. The in-process engine holds no external
// session, so this only marks the handle unusable.
func (e *GridEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *GridEngine) grid(img Image) (*gridImage, error) {
	g, ok := img.(*gridImage)
	if !ok {
		return nil, ErrForeignImage
	}
	return g, nil
}

// LatestScene returns the newest registered fixture matching the filter.
func (e *GridEngine) LatestScene(_ context.Context, f SceneFilter) (*SceneInfo, Image, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var best *SceneFixture
	for i := range e.scenes {
		s := &e.scenes[i]
		if !sceneMatches(s, f) {
			continue
		}
		if best == nil || s.Info.AcquiredAt.After(best.Info.AcquiredAt) {
			best = s
		}
	}
	if best == nil {
		return nil, nil, ErrNoScene
	}

	img := newGridImage(best.Def)
	for _, name := range sortedBandNames(best.Bands) {
		img.addBand(name, append([]float64(nil), best.Bands[name]...))
	}
	info := best.Info
	return &info, img, nil
}

func sceneMatches(s *SceneFixture, f SceneFilter) bool {
	if f.Bounds != nil && !s.Def.Bound().Intersects(f.Bounds.Bound()) {
		return false
	}
	if !f.Start.IsZero() && s.Info.AcquiredAt.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && s.Info.AcquiredAt.After(f.End) {
		return false
	}
	if f.Mode != "" && s.Mode != f.Mode {
		return false
	}
	if f.OrbitPass != "" && s.OrbitPass != f.OrbitPass {
		return false
	}
	for _, want := range f.Polarisations {
		found := false
		for _, have := range s.Polarisations {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func sortedBandNames(bands map[string][]float64) []string {
	names := make([]string, 0, len(bands))
	for name := range bands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TerrainSlope derives slope in degrees from the registered DEM via central
// differences.
func (e *GridEngine) TerrainSlope(_ context.Context) (Image, error) {
	e.mu.Lock()
	dem := e.dem
	e.mu.Unlock()
	if dem == nil {
		return nil, fmt.Errorf("terrain slope: no elevation model registered")
	}

	def := dem.def
	out := make([]float64, def.W*def.H)
	for r := 0; r < def.H; r++ {
		for c := 0; c < def.W; c++ {
			gx := centralDiff(dem.elevation, def.W, def.H, c, r, 1, 0) / def.ScaleMeters
			gy := centralDiff(dem.elevation, def.W, def.H, c, r, 0, 1) / def.ScaleMeters
			out[r*def.W+c] = math.Atan(math.Hypot(gx, gy)) * 180 / math.Pi
		}
	}
	img := newGridImage(def)
	img.addBand("slope", out)
	return img, nil
}

// centralDiff returns half the elevation difference across the neighbors of
// (c, r) along (dc, dr), clamping at the grid edge.
func centralDiff(z []float64, w, h, c, r, dc, dr int) float64 {
	c0, r0 := c-dc, r-dr
	c1, r1 := c+dc, r+dr
	if c0 < 0 || c0 >= w || r0 < 0 || r0 >= h {
		c0, r0 = c, r
	}
	if c1 < 0 || c1 >= w || r1 < 0 || r1 >= h {
		c1, r1 = c, r
	}
	span := float64((c1-c0)*dc + (r1-r0)*dr)
	if span == 0 {
		return 0
	}
	return (z[r1*w+c1] - z[r0*w+c0]) / span
}

// SelectBand narrows an image to one named band.
func (e *GridEngine) SelectBand(img Image, band string) (Image, error) {
	g, err := e.grid(img)
	if err != nil {
		return nil, err
	}
	values, err := g.band(band)
	if err != nil {
		return nil, err
	}
	out := newGridImage(g.def)
	out.addBand(band, append([]float64(nil), values...))
	return out, nil
}

// Rename renames the band of a single-band image.
func (e *GridEngine) Rename(img Image, band string) (Image, error) {
	g, err := e.grid(img)
	if err != nil {
		return nil, err
	}
	_, values, err := g.singleBand()
	if err != nil {
		return nil, err
	}
	out := newGridImage(g.def)
	out.addBand(band, append([]float64(nil), values...))
	return out, nil
}

// AddBands stacks images into one. All inputs must share a grid; duplicate
// band names are rejected.
func (e *GridEngine) AddBands(imgs ...Image) (Image, error) {
	if len(imgs) == 0 {
		return nil, fmt.Errorf("add bands: no images")
	}
	first, err := e.grid(imgs[0])
	if err != nil {
		return nil, err
	}
	out := newGridImage(first.def)
	for _, img := range imgs {
		g, err := e.grid(img)
		if err != nil {
			return nil, err
		}
		if g.def.W != first.def.W || g.def.H != first.def.H {
			return nil, ErrGridMismatch
		}
		for _, name := range g.order {
			if _, dup := out.bands[name]; dup {
				return nil, fmt.Errorf("add bands: duplicate band %q", name)
			}
			out.addBand(name, append([]float64(nil), g.bands[name]...))
		}
	}
	return out, nil
}

// Subtract computes a − b over single-band images on the same grid.
func (e *GridEngine) Subtract(a, b Image) (Image, error) {
	return e.binaryOp(a, b, func(x, y float64) float64 { return x - y })
}

// And produces a 0/1 band marking pixels nonzero in both inputs. Mask (NaN)
// propagates.
func (e *GridEngine) And(a, b Image) (Image, error) {
	return e.binaryOp(a, b, func(x, y float64) float64 {
		if x != 0 && y != 0 {
			return 1
		}
		return 0
	})
}

func (e *GridEngine) binaryOp(a, b Image, op func(x, y float64) float64) (Image, error) {
	ga, err := e.grid(a)
	if err != nil {
		return nil, err
	}
	gb, err := e.grid(b)
	if err != nil {
		return nil, err
	}
	if ga.def.W != gb.def.W || ga.def.H != gb.def.H {
		return nil, ErrGridMismatch
	}
	name, va, err := ga.singleBand()
	if err != nil {
		return nil, err
	}
	_, vb, err := gb.singleBand()
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(va))
	for i := range va {
		if math.IsNaN(va[i]) || math.IsNaN(vb[i]) {
			out[i] = math.NaN()
			continue
		}
		out[i] = op(va[i], vb[i])
	}
	res := newGridImage(ga.def)
	res.addBand(name, out)
	return res, nil
}

// Log10 computes log10(x) pixelwise; non-positive pixels become masked.
func (e *GridEngine) Log10(img Image) (Image, error) {
	return e.unaryOp(img, func(x float64) float64 {
		if x <= 0 {
			return math.NaN()
		}
		return math.Log10(x)
	})
}

// Multiply scales every pixel by a constant.
func (e *GridEngine) Multiply(img Image, factor float64) (Image, error) {
	return e.unaryOp(img, func(x float64) float64 { return x * factor })
}

// LessThan produces a 0/1 band marking pixels strictly below bound.
func (e *GridEngine) LessThan(img Image, bound float64) (Image, error) {
	return e.unaryOp(img, func(x float64) float64 {
		if x < bound {
			return 1
		}
		return 0
	})
}

// SelfMask masks out zero-valued pixels.
func (e *GridEngine) SelfMask(img Image) (Image, error) {
	return e.unaryOp(img, func(x float64) float64 {
		if x == 0 {
			return math.NaN()
		}
		return x
	})
}

func (e *GridEngine) unaryOp(img Image, op func(x float64) float64) (Image, error) {
	g, err := e.grid(img)
	if err != nil {
		return nil, err
	}
	out := newGridImage(g.def)
	for _, name := range g.order {
		src := g.bands[name]
		dst := make([]float64, len(src))
		for i, v := range src {
			if math.IsNaN(v) {
				dst[i] = math.NaN()
				continue
			}
			dst[i] = op(v)
		}
		out.addBand(name, dst)
	}
	return out, nil
}

// Clip masks out pixels whose centers fall outside the geometry.
func (e *GridEngine) Clip(img Image, geom orb.Geometry) (Image, error) {
	g, err := e.grid(img)
	if err != nil {
		return nil, err
	}
	inside := insideMask(g.def, geom)
	out := newGridImage(g.def)
	for _, name := range g.order {
		src := g.bands[name]
		dst := make([]float64, len(src))
		for i, v := range src {
			if !inside[i] {
				dst[i] = math.NaN()
				continue
			}
			dst[i] = v
		}
		out.addBand(name, dst)
	}
	return out, nil
}

// insideMask reports, per pixel, whether the cell center lies inside geom.
// A nil geometry keeps everything.
func insideMask(def GridDef, geom orb.Geometry) []bool {
	inside := make([]bool, def.W*def.H)
	for r := 0; r < def.H; r++ {
		for c := 0; c < def.W; c++ {
			if geom == nil || geoutil.Contains(geom, def.CellCenter(c, r)) {
				inside[r*def.W+c] = true
			}
		}
	}
	return inside
}

// Focal applies a neighborhood statistic. The kernel radius is converted to
// whole pixels at the grid scale, with a minimum of one pixel. Masked
// neighbors are skipped; a fully masked neighborhood stays masked.
func (e *GridEngine) Focal(img Image, stat FocalStat, kernel Kernel) (Image, error) {
	g, err := e.grid(img)
	if err != nil {
		return nil, err
	}
	rPx := int(math.Round(kernel.RadiusMeters / g.def.ScaleMeters))
	if rPx < 1 {
		rPx = 1
	}
	offsets := kernelOffsets(kernel.Shape, rPx)

	out := newGridImage(g.def)
	for _, name := range g.order {
		src := g.bands[name]
		dst := make([]float64, len(src))
		window := make([]float64, 0, len(offsets))
		for r := 0; r < g.def.H; r++ {
			for c := 0; c < g.def.W; c++ {
				window = window[:0]
				for _, o := range offsets {
					cc, rr := c+o[0], r+o[1]
					if cc < 0 || cc >= g.def.W || rr < 0 || rr >= g.def.H {
						continue
					}
					if v := src[rr*g.def.W+cc]; !math.IsNaN(v) {
						window = append(window, v)
					}
				}
				dst[r*g.def.W+c] = focalReduce(stat, window)
			}
		}
		out.addBand(name, dst)
	}
	return out, nil
}

// kernelOffsets enumerates the (dc, dr) offsets of a kernel of radius rPx,
// center included.
func kernelOffsets(shape KernelShape, rPx int) [][2]int {
	var offsets [][2]int
	for dr := -rPx; dr <= rPx; dr++ {
		for dc := -rPx; dc <= rPx; dc++ {
			if shape == KernelCircle && dc*dc+dr*dr > rPx*rPx {
				continue
			}
			offsets = append(offsets, [2]int{dc, dr})
		}
	}
	return offsets
}

func focalReduce(s FocalStat, window []float64) float64 {
	if len(window) == 0 {
		return math.NaN()
	}
	switch s {
	case FocalMin:
		min := window[0]
		for _, v := range window[1:] {
			if v < min {
				min = v
			}
		}
		return min
	case FocalMax:
		max := window[0]
		for _, v := range window[1:] {
			if v > max {
				max = v
			}
		}
		return max
	case FocalMedian:
		sorted := append([]float64(nil), window...)
		sort.Float64s(sorted)
		return stat.Quantile(0.5, stat.Empirical, sorted, nil)
	case FocalStdDev:
		return stat.StdDev(window, nil)
	default:
		return math.NaN()
	}
}
