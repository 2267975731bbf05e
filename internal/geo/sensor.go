package geo

import (
	"context"
	"errors"
)

// ErrLocationUnavailable is returned when the device sensor fails or location
// permission is denied. It is a distinct failure, never treated as within.
var ErrLocationUnavailable = errors.New("location unavailable")

// Sensor supplies the device position on demand.
type Sensor interface {
	Sample(ctx context.Context) (Point, error)
}

type SensorFunc func(ctx context.Context) (Point, error)

func (f SensorFunc) Sample(ctx context.Context) (Point, error) {
	return f(ctx)
}

// FixedSensor always reports the same position. Used when the device position
// is provided through configuration rather than a live source.
type FixedSensor struct {
	Position Point
}

func (s FixedSensor) Sample(context.Context) (Point, error) {
	return s.Position, nil
}

// UnavailableSensor models a denied or absent location source.
type UnavailableSensor struct{}

func (UnavailableSensor) Sample(context.Context) (Point, error) {
	return Point{}, ErrLocationUnavailable
}
