// Package api exposes the detection pipeline over HTTP: a detect endpoint
// taking a GeoJSON area of interest, a defaults endpoint describing the
// tuning surface, and diagnostic preview and histogram endpoints.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/floodline-data/floodline/internal/config"
	"github.com/floodline-data/floodline/internal/detect"
	"github.com/floodline-data/floodline/internal/features"
	"github.com/floodline-data/floodline/internal/httputil"
	"github.com/floodline-data/floodline/internal/monitoring"
	"github.com/floodline-data/floodline/internal/raster"
	"github.com/floodline-data/floodline/internal/version"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// DefaultMaxAOIKM2 caps the area of interest a single request may cover.
// Larger areas should be tiled by the caller.
const DefaultMaxAOIKM2 = 2500.0

// Options configures a Server. Zero fields take defaults.
type Options struct {
	// Defaults seeds the per-request detection parameters; request params
	// are overlaid on top of it.
	Defaults *config.DetectionParams
	// MaxAOIKM2 caps the request AOI area.
	MaxAOIKM2 float64
	// Detector tunes the detection pipeline.
	Detector detect.Config
	// Features tunes scene selection and band derivation.
	Features features.Config
	// Now supplies the reference time for the scene lookback window.
	// Defaults to time.Now; tests pin it.
	Now func() time.Time
}

// Server handles HTTP requests against one raster engine session.
type Server struct {
	engine   raster.Engine
	detector *detect.Detector
	builder  *features.Builder
	defaults *config.DetectionParams
	maxAOI   float64
	now      func() time.Time
}

// NewServer creates a Server on the given engine.
func NewServer(engine raster.Engine, opts Options) *Server {
	if opts.Defaults == nil {
		opts.Defaults = config.EmptyDetectionParams()
	}
	if opts.MaxAOIKM2 <= 0 {
		opts.MaxAOIKM2 = DefaultMaxAOIKM2
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Server{
		engine:   engine,
		detector: detect.New(engine, opts.Detector),
		builder:  features.NewBuilder(engine, opts.Features),
		defaults: opts.Defaults,
		maxAOI:   opts.MaxAOIKM2,
		now:      opts.Now,
	}
}

// ServeMux returns the route table.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/detect", s.handleDetect)
	mux.HandleFunc("/api/defaults", s.handleDefaults)
	mux.HandleFunc("/api/preview", s.handlePreview)
	mux.HandleFunc("/api/histogram", s.handleHistogram)
	return mux
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (s *Server) handleDefaults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	defaults := s.defaults.Defaults()
	defaults["max_aoi_km2"] = s.maxAOI
	httputil.WriteJSONOK(w, defaults)
}
