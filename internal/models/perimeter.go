package models

// Perimeter is a named circular geofence. Perimeters are created and deleted
// by managers and are immutable once created.
type Perimeter struct {
	PerimeterID string  `json:"perimeter_id"`
	Name        string  `json:"name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	RadiusKm    float64 `json:"radius_km"`
}
