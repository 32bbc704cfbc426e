// Package remote implements the raster engine capability surface against an
// out-of-process compute service speaking JSON over HTTP.
//
// Band algebra builds an expression graph locally; only the reduction,
// vectorization, sampling, and catalog calls serialize the graph and make a
// round trip. Calls are never retried; callers bound them with a context
// deadline.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/floodline-data/floodline/internal/httputil"
	"github.com/floodline-data/floodline/internal/raster"
)

// node is one vertex of the expression graph. Nodes are immutable once
// created; derived operations allocate new nodes referencing their inputs.
type node struct {
	ID     string                 `json:"id"`
	Op     string                 `json:"op"`
	Args   map[string]interface{} `json:"args,omitempty"`
	Inputs []*node                `json:"inputs,omitempty"`

	bands []string
}

// BandNames lists the bands the expression evaluates to.
func (n *node) BandNames() []string {
	out := make([]string, len(n.bands))
	copy(out, n.bands)
	return out
}

func newNode(op string, args map[string]interface{}, bands []string, inputs ...*node) *node {
	return &node{
		ID:     uuid.NewString(),
		Op:     op,
		Args:   args,
		Inputs: inputs,
		bands:  bands,
	}
}

// Engine talks to a remote raster compute service. The zero value is not
// usable; construct with New.
type Engine struct {
	baseURL string
	client  httputil.HTTPClient
}

// New creates a remote engine for the service at baseURL. A nil client uses
// the standard HTTP client.
func New(baseURL string, client httputil.HTTPClient) *Engine {
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}
	return &Engine{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Close releases idle transport connections. The remote service itself is
// session-free.
func (e *Engine) Close() error {
	if sc, ok := e.client.(*httputil.StandardClient); ok && sc.Client != nil {
		sc.CloseIdleConnections()
	}
	return nil
}

func (e *Engine) expr(img raster.Image) (*node, error) {
	n, ok := img.(*node)
	if !ok {
		return nil, raster.ErrForeignImage
	}
	return n, nil
}

// errorBody is the service's error envelope.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// post sends one JSON round trip and decodes the response into out.
func (e *Engine) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("raster engine %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil && eb.Code != "" {
			if mapped := mapErrorCode(eb.Code); mapped != nil {
				return fmt.Errorf("raster engine %s: %s: %w", path, eb.Error, mapped)
			}
		}
		return fmt.Errorf("raster engine %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("raster engine %s: decode response: %w", path, err)
	}
	return nil
}

// mapErrorCode translates service error codes to the package sentinels so
// callers can degrade with errors.Is.
func mapErrorCode(code string) error {
	switch code {
	case "no_scene":
		return raster.ErrNoScene
	case "band_not_found":
		return raster.ErrBandNotFound
	case "empty_region":
		return raster.ErrEmptyRegion
	case "budget_exceeded":
		return raster.ErrBudgetExceeded
	default:
		return nil
	}
}

type sceneRequest struct {
	Bounds        *geojson.Geometry `json:"bounds,omitempty"`
	Start         string            `json:"start,omitempty"`
	End           string            `json:"end,omitempty"`
	Polarisations []string          `json:"polarisations,omitempty"`
	Mode          string            `json:"mode,omitempty"`
	OrbitPass     string            `json:"orbit_pass,omitempty"`
}

type sceneResponse struct {
	ID         string   `json:"id"`
	Platform   string   `json:"platform"`
	AcquiredAt string   `json:"acquired_at"`
	Bands      []string `json:"bands"`
}

// LatestScene asks the catalog for the newest scene matching the filter and
// returns a root expression node referencing it.
func (e *Engine) LatestScene(ctx context.Context, f raster.SceneFilter) (*raster.SceneInfo, raster.Image, error) {
	req := sceneRequest{
		Polarisations: f.Polarisations,
		Mode:          f.Mode,
		OrbitPass:     f.OrbitPass,
	}
	if f.Bounds != nil {
		req.Bounds = geojson.NewGeometry(f.Bounds)
	}
	if !f.Start.IsZero() {
		req.Start = f.Start.UTC().Format("2006-01-02T15:04:05Z")
	}
	if !f.End.IsZero() {
		req.End = f.End.UTC().Format("2006-01-02T15:04:05Z")
	}

	var resp sceneResponse
	if err := e.post(ctx, "/v1/scenes/latest", req, &resp); err != nil {
		return nil, nil, err
	}

	info := &raster.SceneInfo{ID: resp.ID, Platform: resp.Platform}
	if resp.AcquiredAt != "" {
		t, err := parseTime(resp.AcquiredAt)
		if err != nil {
			return nil, nil, fmt.Errorf("raster engine: bad acquisition time %q: %w", resp.AcquiredAt, err)
		}
		info.AcquiredAt = t
	}

	img := newNode("catalog.scene", map[string]interface{}{"id": resp.ID}, resp.Bands)
	return info, img, nil
}

// TerrainSlope is a pure expression node; the service resolves its elevation
// model at evaluation time.
func (e *Engine) TerrainSlope(context.Context) (raster.Image, error) {
	return newNode("terrain.slope", nil, []string{"slope"}), nil
}

// SelectBand narrows an expression to one named band.
func (e *Engine) SelectBand(img raster.Image, band string) (raster.Image, error) {
	n, err := e.expr(img)
	if err != nil {
		return nil, err
	}
	if !hasBand(n.bands, band) {
		return nil, fmt.Errorf("%w: %q", raster.ErrBandNotFound, band)
	}
	return newNode("band.select", map[string]interface{}{"band": band}, []string{band}, n), nil
}

// Rename renames the band of a single-band expression.
func (e *Engine) Rename(img raster.Image, band string) (raster.Image, error) {
	n, err := e.expr(img)
	if err != nil {
		return nil, err
	}
	if len(n.bands) != 1 {
		return nil, fmt.Errorf("rename: expected single-band image, have %v", n.bands)
	}
	return newNode("band.rename", map[string]interface{}{"band": band}, []string{band}, n), nil
}

// AddBands stacks expressions into one multi-band expression.
func (e *Engine) AddBands(imgs ...raster.Image) (raster.Image, error) {
	if len(imgs) == 0 {
		return nil, fmt.Errorf("add bands: no images")
	}
	nodes := make([]*node, 0, len(imgs))
	var bands []string
	for _, img := range imgs {
		n, err := e.expr(img)
		if err != nil {
			return nil, err
		}
		for _, b := range n.bands {
			if hasBand(bands, b) {
				return nil, fmt.Errorf("add bands: duplicate band %q", b)
			}
			bands = append(bands, b)
		}
		nodes = append(nodes, n)
	}
	return newNode("band.stack", nil, bands, nodes...), nil
}

// Subtract computes a − b pointwise.
func (e *Engine) Subtract(a, b raster.Image) (raster.Image, error) {
	return e.binary("math.subtract", a, b)
}

// And marks pixels nonzero in both inputs.
func (e *Engine) And(a, b raster.Image) (raster.Image, error) {
	return e.binary("logic.and", a, b)
}

func (e *Engine) binary(op string, a, b raster.Image) (raster.Image, error) {
	na, err := e.expr(a)
	if err != nil {
		return nil, err
	}
	nb, err := e.expr(b)
	if err != nil {
		return nil, err
	}
	if len(na.bands) != 1 || len(nb.bands) != 1 {
		return nil, fmt.Errorf("%s: expected single-band images", op)
	}
	return newNode(op, nil, na.BandNames(), na, nb), nil
}

// Log10 computes log10(x) pointwise.
func (e *Engine) Log10(img raster.Image) (raster.Image, error) {
	return e.unary("math.log10", img, nil)
}

// Multiply scales every pixel by a constant.
func (e *Engine) Multiply(img raster.Image, factor float64) (raster.Image, error) {
	return e.unary("math.multiply", img, map[string]interface{}{"factor": factor})
}

// LessThan marks pixels strictly below bound.
func (e *Engine) LessThan(img raster.Image, bound float64) (raster.Image, error) {
	return e.unary("logic.less_than", img, map[string]interface{}{"bound": bound})
}

// SelfMask masks out zero-valued pixels.
func (e *Engine) SelfMask(img raster.Image) (raster.Image, error) {
	return e.unary("mask.self", img, nil)
}

func (e *Engine) unary(op string, img raster.Image, args map[string]interface{}) (raster.Image, error) {
	n, err := e.expr(img)
	if err != nil {
		return nil, err
	}
	return newNode(op, args, n.BandNames(), n), nil
}

// Clip masks out pixels outside the geometry.
func (e *Engine) Clip(img raster.Image, geom orb.Geometry) (raster.Image, error) {
	n, err := e.expr(img)
	if err != nil {
		return nil, err
	}
	args := map[string]interface{}{"geometry": geojson.NewGeometry(geom)}
	return newNode("mask.clip", args, n.BandNames(), n), nil
}

// Focal applies a neighborhood statistic.
func (e *Engine) Focal(img raster.Image, stat raster.FocalStat, kernel raster.Kernel) (raster.Image, error) {
	n, err := e.expr(img)
	if err != nil {
		return nil, err
	}
	args := map[string]interface{}{
		"stat":          string(stat),
		"kernel_shape":  string(kernel.Shape),
		"radius_meters": kernel.RadiusMeters,
	}
	return newNode("focal", args, n.BandNames(), n), nil
}

func hasBand(bands []string, want string) bool {
	for _, b := range bands {
		if b == want {
			return true
		}
	}
	return false
}
