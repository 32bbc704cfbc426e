package main

import (
	"math"
	"math/rand"
	"time"

	"github.com/floodline-data/floodline/internal/raster"
)

// Dev fixture layout: a 2 km square at 10 m resolution holding a meandering
// river and a lake, with a gentle valley in the elevation model. Backscatter
// is bimodal with mild speckle so the adaptive threshold has something real
// to work with.
const (
	devGridSize  = 200
	devOriginLon = 30.0
	devOriginLat = 0.01
)

// Linear-power levels around -22 dB for water and -7 dB for land.
const (
	devWaterPower = 0.0063
	devLandPower  = 0.2
)

// devEngine builds the in-process engine served in dev mode.
func devEngine() *raster.GridEngine {
	def := raster.GridDef{
		W: devGridSize, H: devGridSize,
		OriginLon: devOriginLon, OriginLat: devOriginLat,
		ScaleMeters: 10,
	}
	rng := rand.New(rand.NewSource(1))
	n := def.W * def.H

	water := make([]bool, n)
	elevation := make([]float64, n)
	for r := 0; r < def.H; r++ {
		// River: a sine meander around mid-grid, ~8 pixels wide.
		center := float64(def.W)/2 + 20*math.Sin(float64(r)/25)
		for c := 0; c < def.W; c++ {
			i := r*def.W + c
			dist := math.Abs(float64(c) - center)
			if dist < 4 {
				water[i] = true
			}
			// Valley sloping toward the river.
			elevation[i] = 40 + 0.5*dist
		}
	}
	// Lake in the north-east corner.
	for r := 20; r < 50; r++ {
		for c := 150; c < 185; c++ {
			i := r*def.W + c
			water[i] = true
			elevation[i] = 40
		}
	}

	vv := make([]float64, n)
	vh := make([]float64, n)
	for i := range vv {
		base := devLandPower
		if water[i] {
			base = devWaterPower
		}
		// Multiplicative speckle, clamped away from zero.
		vv[i] = base * speckle(rng)
		vh[i] = base / 4 * speckle(rng)
	}

	e := raster.NewGridEngine()
	e.AddScene(raster.SceneFixture{
		Info: raster.SceneInfo{
			ID:         "dev-synthetic-001",
			Platform:   "S1A",
			AcquiredAt: time.Now().AddDate(0, 0, -2),
		},
		Mode:          "IW",
		OrbitPass:     "ASCENDING",
		Polarisations: []string{"VV", "VH"},
		Def:           def,
		Bands:         map[string][]float64{"VV": vv, "VH": vh},
	})
	e.SetDEM(def, elevation)
	return e
}

func speckle(rng *rand.Rand) float64 {
	f := 1 + 0.3*rng.NormFloat64()
	if f < 0.2 {
		f = 0.2
	}
	return f
}
