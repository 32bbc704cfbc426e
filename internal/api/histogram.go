package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/floodline-data/floodline/internal/detect"
	"github.com/floodline-data/floodline/internal/features"
	"github.com/floodline-data/floodline/internal/geoutil"
	"github.com/floodline-data/floodline/internal/httputil"
	"github.com/floodline-data/floodline/internal/monitoring"
	"github.com/floodline-data/floodline/internal/raster"
)

const defaultHistogramBuckets = 40

// histogramRequest is the POST /api/histogram body.
type histogramRequest struct {
	Geometry json.RawMessage `json:"geometry"`
	// Band selects which feature band to chart; defaults to VV_db.
	Band string `json:"band,omitempty"`
	// Buckets is the histogram bucket count.
	Buckets int `json:"buckets,omitempty"`
}

// handleHistogram renders a backscatter histogram of the AOI as an HTML
// chart. The distribution shape shows at a glance whether the adaptive
// threshold has two populations to separate.
func (s *Server) handleHistogram(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req histogramRequest
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
	buckets := req.Buckets
	if buckets <= 0 {
		buckets = defaultHistogramBuckets
	}

	fs, info, err := s.builder.Build(r.Context(), aoi, s.now())
	if errors.Is(err, features.ErrNoImagery) {
		httputil.NotFound(w, "no imagery acquired over the area of interest")
		return
	}
	if err != nil {
		monitoring.Logf("[api] histogram: feature derivation failed: %v", err)
		httputil.InternalServerError(w, "feature derivation failed")
		return
	}

	hist, err := s.engine.ReduceHistogram(r.Context(), fs.Image, band, buckets, aoi, raster.ReduceOpts{
		MaxPixels:  detect.DefaultMaxPixels,
		BestEffort: true,
	})
	if err != nil {
		if errors.Is(err, raster.ErrBandNotFound) {
			httputil.BadRequest(w, fmt.Sprintf("unknown band %q", band))
			return
		}
		monitoring.Logf("[api] histogram: reduction failed: %v", err)
		httputil.InternalServerError(w, "histogram reduction failed")
		return
	}

	x := make([]string, len(hist.Counts))
	y := make([]opts.BarData, len(hist.Counts))
	for i, c := range hist.Counts {
		x[i] = fmt.Sprintf("%.1f", hist.Min+(float64(i)+0.5)*hist.Width)
		y[i] = opts.BarData{Value: c}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Backscatter Histogram", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s histogram", band),
			Subtitle: fmt.Sprintf("scene %s, acquired %s", info.ID, info.AcquiredAt.Format("2006-01-02")),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: band}),
		charts.WithYAxisOpts(opts.YAxis{Name: "pixels"}),
	)
	bar.SetXAxis(x).AddSeries("pixels", y)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		monitoring.Logf("[api] histogram: render failed: %v", err)
		httputil.InternalServerError(w, "render failed")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
