// Package watch polls a location sensor and tracks whether the device
// is inside any configured perimeter. Transitions are logged so a
// worker can see when they walk in or out of the clock-in area.
package watch

import (
	"context"
	"log"
	"sync"
	"time"

	"lief/clock-service/internal/geo"
	"lief/clock-service/internal/models"
)

type PerimeterLister interface {
	ListPerimeters(ctx context.Context) ([]models.Perimeter, error)
}

type Watcher struct {
	sensor     geo.Sensor
	perimeters PerimeterLister

	mu      sync.Mutex
	last    geo.Status
	hasLast bool
}

func New(sensor geo.Sensor, perimeters PerimeterLister) *Watcher {
	return &Watcher{sensor: sensor, perimeters: perimeters}
}

// Observe takes one sample and classifies it. Sensor or store failures
// are returned to the caller; the last known status is kept unchanged.
func (w *Watcher) Observe(ctx context.Context) (geo.Classification, error) {
	point, err := w.sensor.Sample(ctx)
	if err != nil {
		return geo.Classification{}, err
	}
	perimeters, err := w.perimeters.ListPerimeters(ctx)
	if err != nil {
		return geo.Classification{}, err
	}
	result := geo.Classify(point, perimeters)
	w.mu.Lock()
	if !w.hasLast || result.Status != w.last {
		w.logTransition(result)
	}
	w.last = result.Status
	w.hasLast = true
	w.mu.Unlock()
	return result, nil
}

// Last reports the most recent classification, false before the first sample.
func (w *Watcher) Last() (geo.Status, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last, w.hasLast
}

func (w *Watcher) logTransition(result geo.Classification) {
	switch result.Status {
	case geo.StatusWithin:
		log.Printf("watch entered perimeter name=%q", result.Matched.Name)
	case geo.StatusOutside:
		log.Printf("watch left perimeter area")
	default:
		log.Printf("watch no perimeters configured")
	}
}

func Start(ctx context.Context, interval time.Duration, w *Watcher) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Observe(ctx); err != nil {
				log.Printf("watch error: %v", err)
			}
		}
	}
}
