package geo

import (
	"math"

	"lief/clock-service/internal/models"
)

const earthRadiusKm = 6371

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Status string

const (
	StatusWithin  Status = "within"
	StatusOutside Status = "outside"
	// StatusIndeterminate means no perimeters are configured. Callers must not
	// treat this as outside, but it never permits a clock-in either.
	StatusIndeterminate Status = "indeterminate"
)

type Classification struct {
	Status  Status
	Matched *models.Perimeter
}

func (c Classification) Within() bool {
	return c.Status == StatusWithin
}

// Distance returns the great-circle (haversine) distance between two points
// in kilometers.
func Distance(a, b Point) float64 {
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(a.Lat))*math.Cos(radians(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

func radians(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// Classify reports whether point lies within any of the given perimeters.
// The radius comparison is inclusive and the first matching perimeter wins.
func Classify(point Point, perimeters []models.Perimeter) Classification {
	if len(perimeters) == 0 {
		return Classification{Status: StatusIndeterminate}
	}
	for i := range perimeters {
		center := Point{Lat: perimeters[i].Latitude, Lng: perimeters[i].Longitude}
		if Distance(point, center) <= perimeters[i].RadiusKm {
			return Classification{Status: StatusWithin, Matched: &perimeters[i]}
		}
	}
	return Classification{Status: StatusOutside}
}
