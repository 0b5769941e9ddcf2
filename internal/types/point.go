// README: Geographic point value object.
package types

import "math"

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// IsZero reports whether the point was left unset.
func (p Point) IsZero() bool {
	return p.Lat == 0 && p.Lng == 0
}

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance between two points.
func DistanceKm(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180.0
	lat2 := b.Lat * math.Pi / 180.0
	dlat := (b.Lat - a.Lat) * math.Pi / 180.0
	dlng := (b.Lng - a.Lng) * math.Pi / 180.0
	h := math.Sin(dlat/2)*math.Sin(dlat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlng/2)*math.Sin(dlng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}
