package models

import "time"

// ClockRecord is one worker shift. A record with no clock_out_at is an open
// session; there is at most one open record per worker.
type ClockRecord struct {
	RecordID     string     `json:"record_id"`
	WorkerID     string     `json:"worker_id"`
	WorkerName   string     `json:"worker_name"`
	ClockInAt    time.Time  `json:"clock_in_at"`
	ClockInLat   float64    `json:"clock_in_lat"`
	ClockInLng   float64    `json:"clock_in_lng"`
	ClockInNote  string     `json:"clock_in_note,omitempty"`
	ClockOutAt   *time.Time `json:"clock_out_at,omitempty"`
	ClockOutLat  *float64   `json:"clock_out_lat,omitempty"`
	ClockOutLng  *float64   `json:"clock_out_lng,omitempty"`
	ClockOutNote string     `json:"clock_out_note,omitempty"`
}

func (r ClockRecord) Open() bool {
	return r.ClockOutAt == nil
}
