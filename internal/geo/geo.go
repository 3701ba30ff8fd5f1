package geo

import (
	"fmt"
	"math"
)

// earthRadiusMiles is the mean Earth radius used for great-circle distance.
const earthRadiusMiles = 3958.8

// QuantumDegrees is the grid size used when quantizing coordinates for
// cache keys and region buckets (roughly 110m of latitude).
const QuantumDegrees = 0.001

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Valid reports whether p lies within latitude/longitude bounds and is not
// the zero value (which almost always means "unset" rather than Null Island).
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return false
	}
	if p.Lat == 0 && p.Lng == 0 {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

func (p Point) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}

// Quantize snaps p onto the QuantumDegrees grid.
func Quantize(p Point) Point {
	return Point{
		Lat: math.Round(p.Lat/QuantumDegrees) * QuantumDegrees,
		Lng: math.Round(p.Lng/QuantumDegrees) * QuantumDegrees,
	}
}

// GridKey renders the quantized cell of p as a stable string.
func GridKey(p Point) string {
	q := Quantize(p)
	return fmt.Sprintf("%.3f,%.3f", q.Lat, q.Lng)
}

// DistanceMiles returns the haversine great-circle distance between a and b.
func DistanceMiles(a, b Point) float64 {
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMiles * c
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
