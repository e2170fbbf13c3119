package geo

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestDistance_KnownPairs(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		unit                   Unit
		want                   float64
		tolerance              float64
	}{
		{"same point", 36.0788, -81.1781, 36.0788, -81.1781, Kilometers, 0, 1e-9},
		{"one degree of latitude km", 0, 0, 1, 0, Kilometers, 111.195, 0.01},
		{"one degree of latitude mi", 0, 0, 1, 0, Miles, 69.093, 0.01},
		{"london to paris km", 51.5074, -0.1278, 48.8566, 2.3522, Kilometers, 343.56, 1},
		{"new york to los angeles mi", 40.7128, -74.0060, 34.0522, -118.2437, Miles, 2445.6, 5},
		{"antipodal km", 0, 0, 0, 180, Kilometers, math.Pi * EarthRadiusKm, 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.lat1, tt.lon1, tt.lat2, tt.lon2, tt.unit)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("Distance() = %.4f %s, want %.4f ± %.4f", got, tt.unit, tt.want, tt.tolerance)
			}
		})
	}
}

func TestDistanceHelpers_UseTheirUnits(t *testing.T) {
	km := DistanceKm(40, -75, 41, -74)
	mi := DistanceMiles(40, -75, 41, -74)

	ratio := km / mi
	want := EarthRadiusKm / EarthRadiusMiles
	if math.Abs(ratio-want) > 1e-9 {
		t.Errorf("km/mi ratio = %v, want %v", ratio, want)
	}
}

func TestValidCoordinates(t *testing.T) {
	if !ValidLatitude(-90) || !ValidLatitude(90) || ValidLatitude(90.0001) {
		t.Error("latitude bounds are [-90, 90]")
	}
	if !ValidLongitude(-180) || !ValidLongitude(180) || ValidLongitude(-180.5) {
		t.Error("longitude bounds are [-180, 180]")
	}
}

func TestDistance_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	lat := gen.Float64Range(-90, 90)
	lon := gen.Float64Range(-180, 180)

	properties.Property("distance from a point to itself is zero", prop.ForAll(
		func(a, b float64) bool {
			return Distance(a, b, a, b, Kilometers) == 0
		},
		lat, lon,
	))

	properties.Property("distance is symmetric", prop.ForAll(
		func(a1, b1, a2, b2 float64) bool {
			d1 := Distance(a1, b1, a2, b2, Miles)
			d2 := Distance(a2, b2, a1, b1, Miles)
			return math.Abs(d1-d2) < 1e-6
		},
		lat, lon, lat, lon,
	))

	properties.Property("distance never exceeds half the circumference", prop.ForAll(
		func(a1, b1, a2, b2 float64) bool {
			d := Distance(a1, b1, a2, b2, Kilometers)
			return d >= 0 && d <= math.Pi*EarthRadiusKm+1e-6
		},
		lat, lon, lat, lon,
	))

	properties.TestingRun(t)
}
