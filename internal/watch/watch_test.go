package watch

import (
	"context"
	"errors"
	"testing"

	"lief/clock-service/internal/geo"
	"lief/clock-service/internal/models"
)

type fakeLister struct {
	perimeters []models.Perimeter
	err        error
}

func (f fakeLister) ListPerimeters(ctx context.Context) ([]models.Perimeter, error) {
	return f.perimeters, f.err
}

func TestObserveWithinPerimeter(t *testing.T) {
	lister := fakeLister{perimeters: []models.Perimeter{
		{PerimeterID: "p1", Name: "Clinic", Latitude: 51.5, Longitude: -0.12, RadiusKm: 2},
	}}
	watcher := New(geo.FixedSensor{Position: geo.Point{Lat: 51.5, Lng: -0.12}}, lister)

	result, err := watcher.Observe(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != geo.StatusWithin {
		t.Fatalf("expected within, got %v", result.Status)
	}
	if result.Matched == nil || result.Matched.PerimeterID != "p1" {
		t.Fatalf("expected match on p1, got %+v", result.Matched)
	}
}

func TestObserveOutside(t *testing.T) {
	lister := fakeLister{perimeters: []models.Perimeter{
		{PerimeterID: "p1", Name: "Clinic", Latitude: 51.5, Longitude: -0.12, RadiusKm: 1},
	}}
	watcher := New(geo.FixedSensor{Position: geo.Point{Lat: 52.5, Lng: -1.9}}, lister)

	result, err := watcher.Observe(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != geo.StatusOutside {
		t.Fatalf("expected outside, got %v", result.Status)
	}
}

func TestObserveNoPerimeters(t *testing.T) {
	watcher := New(geo.FixedSensor{Position: geo.Point{Lat: 52.5, Lng: -1.9}}, fakeLister{})

	result, err := watcher.Observe(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != geo.StatusIndeterminate {
		t.Fatalf("expected indeterminate, got %v", result.Status)
	}
}

func TestObserveSensorFailureKeepsLastStatus(t *testing.T) {
	lister := fakeLister{perimeters: []models.Perimeter{
		{PerimeterID: "p1", Name: "Clinic", Latitude: 51.5, Longitude: -0.12, RadiusKm: 2},
	}}
	watcher := New(geo.FixedSensor{Position: geo.Point{Lat: 51.5, Lng: -0.12}}, lister)
	if _, err := watcher.Observe(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	watcher.sensor = geo.UnavailableSensor{}
	if _, err := watcher.Observe(context.Background()); !errors.Is(err, geo.ErrLocationUnavailable) {
		t.Fatalf("expected location unavailable, got %v", err)
	}
	if last, ok := watcher.Last(); !ok || last != geo.StatusWithin {
		t.Fatalf("expected last status preserved, got %v ok=%v", last, ok)
	}
}

func TestObserveListerFailure(t *testing.T) {
	lister := fakeLister{err: errors.New("db down")}
	watcher := New(geo.FixedSensor{Position: geo.Point{Lat: 51.5, Lng: -0.12}}, lister)

	if _, err := watcher.Observe(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
