// Package geo computes great-circle distances between coordinates.
package geo

import "math"

// Unit selects the Earth radius used by Distance.
type Unit int

const (
	Kilometers Unit = iota
	Miles
)

// Earth radii for each unit.
const (
	EarthRadiusKm    = 6371.0
	EarthRadiusMiles = 3958.8
)

// Radius returns the Earth radius expressed in u.
func (u Unit) Radius() float64 {
	if u == Miles {
		return EarthRadiusMiles
	}
	return EarthRadiusKm
}

func (u Unit) String() string {
	if u == Miles {
		return "mi"
	}
	return "km"
}

// Distance returns the Haversine distance between (lat1, lon1) and
// (lat2, lon2), given in decimal degrees, in the requested unit. Callers are
// expected to range-check coordinates first.
func Distance(lat1, lon1, lat2, lon2 float64, unit Unit) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	a := sinLat*sinLat + math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*sinLon*sinLon

	// Rounding can push a marginally above 1 for antipodal points.
	a = math.Min(1, math.Max(0, a))

	return 2 * unit.Radius() * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// DistanceKm is Distance in kilometers. The heuristic scorer thresholds on it.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	return Distance(lat1, lon1, lat2, lon2, Kilometers)
}

// DistanceMiles is Distance in miles, the unit shown to users.
func DistanceMiles(lat1, lon1, lat2, lon2 float64) float64 {
	return Distance(lat1, lon1, lat2, lon2, Miles)
}

// ValidLatitude reports whether lat is within [-90, 90].
func ValidLatitude(lat float64) bool {
	return lat >= -90 && lat <= 90
}

// ValidLongitude reports whether long is within [-180, 180].
func ValidLongitude(long float64) bool {
	return long >= -180 && long <= 180
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
