// Package units provides shared constants and conversions for ground areas.
package units

import "fmt"

// Unit constants
const (
	SquareMeters     = "m2"
	Hectares         = "ha"
	SquareKilometers = "km2"
)

// NominalPixelAreaM2 is the ground area of one Sentinel-1 GRD pixel at the
// nominal 10 m resolution.
const NominalPixelAreaM2 = 100.0

// ValidUnits contains all valid area unit values
var ValidUnits = []string{SquareMeters, Hectares, SquareKilometers}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "m2, ha, km2"
}

// PixelsToSquareMeters converts a pixel count to ground area at the nominal
// sensor resolution.
func PixelsToSquareMeters(pixels int) float64 {
	return float64(pixels) * NominalPixelAreaM2
}

// ConvertArea converts an area from square meters to the target units.
// Internal computations always carry square meters.
func ConvertArea(areaM2 float64, targetUnits string) float64 {
	switch targetUnits {
	case Hectares:
		return areaM2 / 1e4
	case SquareKilometers:
		return areaM2 / 1e6
	case SquareMeters:
		return areaM2 // no conversion needed
	default:
		return areaM2 // default to m² if unknown unit
	}
}

// FormatArea renders an area in the most readable unit: m² below one
// hectare, hectares below one km², km² above.
func FormatArea(areaM2 float64) string {
	switch {
	case areaM2 < 1e4:
		return fmt.Sprintf("%.0f m2", areaM2)
	case areaM2 < 1e6:
		return fmt.Sprintf("%.2f ha", areaM2/1e4)
	default:
		return fmt.Sprintf("%.3f km2", areaM2/1e6)
	}
}
