package units

import (
	"math"
	"testing"
)

func TestConvertArea(t *testing.T) {
	tests := []struct {
		name     string
		areaM2   float64
		units    string
		expected float64
	}{
		{"1e6 m2 to km2", 1e6, SquareKilometers, 1.0},
		{"1e4 m2 to ha", 1e4, Hectares, 1.0},
		{"5000 m2 to m2", 5000, SquareMeters, 5000},
		{"unknown units default to m2", 5000, "acres", 5000},
		{"0 m2 to km2", 0, SquareKilometers, 0},
		{"lake 3.5 km2", 3.5e6, SquareKilometers, 3.5},
		{"field 12.5 ha", 1.25e5, Hectares, 12.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertArea(tt.areaM2, tt.units)
			if math.Abs(result-tt.expected) > 1e-9 {
				t.Errorf("ConvertArea(%f, %s) = %f, want %f", tt.areaM2, tt.units, result, tt.expected)
			}
		})
	}
}

func TestPixelsToSquareMeters(t *testing.T) {
	tests := []struct {
		name     string
		pixels   int
		expected float64
	}{
		{"default minimum area", 100, 10000},
		{"worked example from tuning", 50, 5000},
		{"single pixel", 1, 100},
		{"zero pixels", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PixelsToSquareMeters(tt.pixels); got != tt.expected {
				t.Errorf("PixelsToSquareMeters(%d) = %f, want %f", tt.pixels, got, tt.expected)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name     string
		unit     string
		expected bool
	}{
		{"valid m2", SquareMeters, true},
		{"valid ha", Hectares, true},
		{"valid km2", SquareKilometers, true},
		{"invalid unit", "acres", false},
		{"empty string", "", false},
		{"case sensitive", "KM2", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(tt.unit); got != tt.expected {
				t.Errorf("IsValid(%q) = %v, want %v", tt.unit, got, tt.expected)
			}
		})
	}
}

func TestFormatArea(t *testing.T) {
	tests := []struct {
		name     string
		areaM2   float64
		expected string
	}{
		{"small pond", 4000, "4000 m2"},
		{"hectare scale", 2.5e5, "25.00 ha"},
		{"lake scale", 4.2e6, "4.200 km2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatArea(tt.areaM2); got != tt.expected {
				t.Errorf("FormatArea(%f) = %q, want %q", tt.areaM2, got, tt.expected)
			}
		})
	}
}
