package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"

	"github.com/floodline-data/floodline/internal/config"
	"github.com/floodline-data/floodline/internal/detect"
	"github.com/floodline-data/floodline/internal/features"
	"github.com/floodline-data/floodline/internal/geoutil"
	"github.com/floodline-data/floodline/internal/httputil"
	"github.com/floodline-data/floodline/internal/monitoring"
)

// maxRequestBody caps the detect request size. A 1 MB GeoJSON AOI is
// already far beyond any reasonable request.
const maxRequestBody = 1 << 20

// detectRequest is the POST /api/detect body.
type detectRequest struct {
	// Geometry is the GeoJSON area of interest (Polygon or MultiPolygon).
	Geometry json.RawMessage `json:"geometry"`
	// Params overrides the server's default detection parameters. Absent
	// fields keep their defaults; absent optional criteria stay disabled.
	Params *config.DetectionParams `json:"params,omitempty"`
}

// detectResponse is the POST /api/detect body on success. When no recent
// imagery covers the AOI, the response is still a 200 with zero polygons
// and Warning set.
type detectResponse struct {
	RequestID     string                     `json:"request_id"`
	SceneID       string                     `json:"scene_id,omitempty"`
	Platform      string                     `json:"platform,omitempty"`
	AcquiredAt    *time.Time                 `json:"acquired_at,omitempty"`
	Threshold     *detect.ThresholdDecision  `json:"threshold,omitempty"`
	Counts        *detect.CriterionCounts    `json:"criterion_counts,omitempty"`
	Water         *geojson.FeatureCollection `json:"water"`
	TotalAreaKM2  float64                    `json:"total_area_km2"`
	AOIAreaKM2    float64                    `json:"aoi_area_km2"`
	WaterFraction float64                    `json:"water_fraction"`
	ElapsedMS     float64                    `json:"elapsed_ms"`
	Warning       string                     `json:"warning,omitempty"`
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	start := time.Now()
	requestID := uuid.New().String()

	var req detectRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if len(req.Geometry) == 0 {
		httputil.BadRequest(w, "missing geometry")
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

	// The area cap is checked before any engine work so oversized requests
	// cost nothing.
	aoiKM2 := geoutil.AreaKM2(aoi)
	if aoiKM2 > s.maxAOI {
		httputil.BadRequest(w, fmt.Sprintf("area of interest is %.0f km², the maximum is %.0f km²; tile larger areas", aoiKM2, s.maxAOI))
		return
	}

	params := s.defaults.Merge(req.Params)
	if err := params.Validate(); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid params: %v", err))
		return
	}

	monitoring.Logf("[api] detect %s: aoi %.1f km²", requestID, aoiKM2)

	fs, info, err := s.builder.Build(r.Context(), aoi, s.now())
	if errors.Is(err, features.ErrNoImagery) {
		httputil.WriteJSONOK(w, &detectResponse{
			RequestID:  requestID,
			Water:      geojson.NewFeatureCollection(),
			AOIAreaKM2: aoiKM2,
			ElapsedMS:  elapsedMS(start),
			Warning:    "no imagery acquired over the area of interest in the lookback window",
		})
		return
	}
	if err != nil {
		monitoring.Logf("[api] detect %s: feature derivation failed: %v", requestID, err)
		httputil.InternalServerError(w, "feature derivation failed")
		return
	}

	result, err := s.detector.Detect(r.Context(), fs, params)
	if err != nil {
		monitoring.Logf("[api] detect %s: detection failed: %v", requestID, err)
		httputil.InternalServerError(w, "detection failed")
		return
	}

	resp := &detectResponse{
		RequestID:    requestID,
		SceneID:      info.ID,
		Platform:     info.Platform,
		AcquiredAt:   &info.AcquiredAt,
		Threshold:    &result.Threshold,
		Counts:       &result.Counts,
		Water:        waterCollection(result),
		TotalAreaKM2: result.TotalAreaKM2,
		AOIAreaKM2:   aoiKM2,
		ElapsedMS:    elapsedMS(start),
	}
	if aoiKM2 > 0 {
		resp.WaterFraction = result.TotalAreaKM2 / aoiKM2
	}
	httputil.WriteJSONOK(w, resp)
}

// waterCollection converts detected polygons into a GeoJSON feature
// collection, one feature per water body with its area in properties.
func waterCollection(result *detect.Result) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range result.Polygons {
		f := geojson.NewFeature(p.Geometry)
		f.Properties["area_m2"] = p.AreaM2
		fc.Append(f)
	}
	return fc
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Nanoseconds()) / 1e6
}
