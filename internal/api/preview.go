package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/floodline-data/floodline/internal/detect"
	"github.com/floodline-data/floodline/internal/features"
	"github.com/floodline-data/floodline/internal/geoutil"
	"github.com/floodline-data/floodline/internal/httputil"
	"github.com/floodline-data/floodline/internal/monitoring"
	"github.com/floodline-data/floodline/internal/raster"
)

// previewMaxDim bounds the sampled pixel window; enough for a quick look
// without shipping a full-resolution raster.
const previewMaxDim = 512

// previewRequest is the POST /api/preview body.
type previewRequest struct {
	Geometry json.RawMessage `json:"geometry"`
	// Band selects which feature band to render; defaults to VV_db.
	Band string `json:"band,omitempty"`
}

// handlePreview renders one feature band over the AOI as a PNG heatmap.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req previewRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	aoi, err := geoutil.ParseGeometry(req.Geometry)
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid geometry: %v", err))
		return
	}
	if err := geoutil.ValidateAOI(aoi); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid geometry: %v", err))
		return
	}
	if geoutil.AreaKM2(aoi) > s.maxAOI {
		httputil.BadRequest(w, fmt.Sprintf("area of interest exceeds %.0f km²", s.maxAOI))
		return
	}
	band := req.Band
	if band == "" {
		band = detect.BandVV
	}

	fs, info, err := s.builder.Build(r.Context(), aoi, s.now())
	if errors.Is(err, features.ErrNoImagery) {
		httputil.NotFound(w, "no imagery acquired over the area of interest")
		return
	}
	if err != nil {
		monitoring.Logf("[api] preview: feature derivation failed: %v", err)
		httputil.InternalServerError(w, "feature derivation failed")
		return
	}

	grid, err := s.engine.SampleGrid(r.Context(), fs.Image, band, aoi, previewMaxDim)
	if err != nil {
		if errors.Is(err, raster.ErrBandNotFound) {
			httputil.BadRequest(w, fmt.Sprintf("unknown band %q", band))
			return
		}
		monitoring.Logf("[api] preview: sampling failed: %v", err)
		httputil.InternalServerError(w, "sampling failed")
		return
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s — scene %s", band, info.ID)
	p.X.Label.Text = "Longitude"
	p.Y.Label.Text = "Latitude"
	p.Add(plotter.NewHeatMap(&gridXYZ{grid}, palette.Heat(12, 1)))

	wt, err := p.WriterTo(8*vg.Inch, 8*vg.Inch, "png")
	if err != nil {
		monitoring.Logf("[api] preview: rendering failed: %v", err)
		httputil.InternalServerError(w, "rendering failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := wt.WriteTo(w); err != nil {
		monitoring.Logf("[api] preview: write failed: %v", err)
	}
}

// gridXYZ adapts a sampled raster window to the plotter grid interface.
// Raster rows run north to south; plot rows run south to north.
type gridXYZ struct {
	g *raster.Grid
}

func (p *gridXYZ) Dims() (c, r int) { return p.g.W, p.g.H }

func (p *gridXYZ) Z(c, r int) float64 {
	return p.g.Values[(p.g.H-1-r)*p.g.W+c]
}

func (p *gridXYZ) X(c int) float64 {
	return lerp(p.g.Bound.Min[0], p.g.Bound.Max[0], c, p.g.W)
}

func (p *gridXYZ) Y(r int) float64 {
	return lerp(p.g.Bound.Min[1], p.g.Bound.Max[1], r, p.g.H)
}

// lerp maps cell i of n to its center coordinate between lo and hi.
func lerp(lo, hi float64, i, n int) float64 {
	if n <= 1 {
		return (lo + hi) / 2
	}
	return lo + (hi-lo)*(float64(i)+0.5)/float64(n)
}
