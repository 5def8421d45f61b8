// Package geo holds the coordinate primitives used by the directory's spatial
// queries: points, inclusive bounding boxes, and great-circle distance.
package geo

import (
	"fmt"
	"math"
)

// EarthRadiusKM is the IUGG mean Earth radius used for great-circle distances.
const EarthRadiusKM = 6371.0088

// Latitude and longitude limits accepted for stored coordinates.
const (
	MinLatitude  = -90.0
	MaxLatitude  = 90.0
	MinLongitude = -180.0
	MaxLongitude = 180.0
)

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

// Valid reports whether the point lies inside the accepted coordinate ranges.
func (p Point) Valid() bool {
	return ValidLatitude(p.Lat) && ValidLongitude(p.Lng)
}

// ValidLatitude reports whether lat is a finite value in [-90, 90].
func ValidLatitude(lat float64) bool {
	return !math.IsNaN(lat) && lat >= MinLatitude && lat <= MaxLatitude
}

// ValidLongitude reports whether lng is a finite value in [-180, 180].
func ValidLongitude(lng float64) bool {
	return !math.IsNaN(lng) && lng >= MinLongitude && lng <= MaxLongitude
}

// Bounds is a latitude/longitude box with inclusive edges on both axes.
// Boxes are never wrapped across the antimeridian. Validate rejects a box whose
// MinLng exceeds MaxLng, so a seam-crossing range must be queried as two boxes.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLng float64 `json:"max_lng"`
}

// Validate checks that the box is well formed.
func (b Bounds) Validate() error {
	if !ValidLatitude(b.MinLat) || !ValidLatitude(b.MaxLat) {
		return fmt.Errorf("latitude bounds must be within [%v, %v]", MinLatitude, MaxLatitude)
	}
	if !ValidLongitude(b.MinLng) || !ValidLongitude(b.MaxLng) {
		return fmt.Errorf("longitude bounds must be within [%v, %v]", MinLongitude, MaxLongitude)
	}
	if b.MinLat > b.MaxLat {
		return fmt.Errorf("min_lat %v exceeds max_lat %v", b.MinLat, b.MaxLat)
	}
	if b.MinLng > b.MaxLng {
		return fmt.Errorf("min_lng %v exceeds max_lng %v", b.MinLng, b.MaxLng)
	}
	return nil
}

// Contains reports whether p lies inside the box, edges included.
func (b Bounds) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat &&
		p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// HaversineKM returns the great-circle distance between a and b in kilometres
// on a spherical Earth of radius EarthRadiusKM.
func HaversineKM(a, b Point) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	// rounding can push h a hair above 1 for antipodal points
	h = math.Min(1, h)
	return 2 * EarthRadiusKM * math.Asin(math.Sqrt(h))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
