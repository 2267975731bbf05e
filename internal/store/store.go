package store

import (
	"context"
	"time"

	"lief/clock-service/internal/models"
)

type ClockInInput struct {
	WorkerID   string
	WorkerName string
	Lat        float64
	Lng        float64
	Note       string
	ClockInAt  time.Time
}

// ClockOutInput carries the partial clock-out update. Nil location fields and
// an empty note leave the stored values unchanged. When WorkerID is set, a
// record owned by a different worker is treated as not found.
type ClockOutInput struct {
	RecordID   string
	WorkerID   string
	Lat        *float64
	Lng        *float64
	Note       string
	ClockOutAt time.Time
}

type CreatePerimeterInput struct {
	Name      string
	Latitude  float64
	Longitude float64
	RadiusKm  float64
}

type SignUpInput struct {
	Email       string
	Password    string
	DisplayName string
	Role        string
}

type LoginInput struct {
	Email    string
	Password string
}

type Store interface {
	ClockIn(ctx context.Context, input ClockInInput) (models.ClockRecord, error)
	ClockOut(ctx context.Context, input ClockOutInput) (models.ClockRecord, error)
	// FindOpenSession scans at most limit records clocked in at or after since,
	// newest first, and returns the one still open. The bound means an open
	// session older than the worker's last limit same-day records can be
	// missed; that is an accepted constraint of the query shape.
	FindOpenSession(ctx context.Context, workerID string, since time.Time, limit int) (models.ClockRecord, bool, error)
	History(ctx context.Context, workerID string, limit int) ([]models.ClockRecord, error)
	SnapshotRecords(ctx context.Context, since time.Time) ([]models.ClockRecord, error)

	ListPerimeters(ctx context.Context) ([]models.Perimeter, error)
	CreatePerimeter(ctx context.Context, input CreatePerimeterInput) (models.Perimeter, error)
	DeletePerimeter(ctx context.Context, perimeterID string) error

	SignUp(ctx context.Context, input SignUpInput) (models.User, models.Session, error)
	Login(ctx context.Context, input LoginInput) (models.User, models.Session, error)
	GetSession(ctx context.Context, sessionID string) (models.Session, models.User, error)
}
