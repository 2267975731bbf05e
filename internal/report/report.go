package report

import (
	"fmt"
	"sort"
	"time"

	"lief/clock-service/internal/models"
)

// All functions in this package are pure over the supplied record snapshot.
// Calendar-day bucketing uses the location of the supplied reference time.

// Duration returns the shift length for a closed record. The second return
// is false while the session is still open.
func Duration(record models.ClockRecord) (time.Duration, bool) {
	if record.ClockOutAt == nil {
		return 0, false
	}
	return record.ClockOutAt.Sub(record.ClockInAt), true
}

// FormatDuration renders a closed shift as "2h 15m" with seconds truncated,
// or "-" for an open session.
func FormatDuration(record models.ClockRecord) string {
	d, closed := Duration(record)
	if !closed {
		return "-"
	}
	hours := int(d / time.Hour)
	minutes := int(d%time.Hour) / int(time.Minute)
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

// ActiveCount counts records with no clock-out yet.
func ActiveCount(records []models.ClockRecord) int {
	count := 0
	for _, record := range records {
		if record.Open() {
			count++
		}
	}
	return count
}

// TotalHoursToday sums the durations of closed records that clocked in on the
// calendar day of now.
func TotalHoursToday(records []models.ClockRecord, now time.Time) float64 {
	total := 0.0
	for _, record := range records {
		if !sameDay(record.ClockInAt, now, now.Location()) {
			continue
		}
		if d, closed := Duration(record); closed {
			total += d.Hours()
		}
	}
	return total
}

// AvgHoursPerShift is TotalHoursToday divided by the number of closed shifts
// today, or 0 when there are none.
func AvgHoursPerShift(records []models.ClockRecord, now time.Time) float64 {
	total := 0.0
	count := 0
	for _, record := range records {
		if !sameDay(record.ClockInAt, now, now.Location()) {
			continue
		}
		if d, closed := Duration(record); closed {
			total += d.Hours()
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// DayBucket is one calendar day of a series, keyed YYYY-MM-DD.
type DayBucket struct {
	Day   string  `json:"day"`
	Value float64 `json:"value"`
}

// DailySeries counts clock-ins per calendar day for the trailing days window,
// oldest day first.
func DailySeries(records []models.ClockRecord, now time.Time, days int) []DayBucket {
	buckets := emptySeries(now, days)
	index := bucketIndex(buckets)
	for _, record := range records {
		key := dayKey(record.ClockInAt, now.Location())
		if i, ok := index[key]; ok {
			buckets[i].Value++
		}
	}
	return buckets
}

// DailyAvgHoursSeries is the mean duration of closed shifts per calendar day
// for the trailing days window, oldest day first. Days without closed shifts
// report 0.
func DailyAvgHoursSeries(records []models.ClockRecord, now time.Time, days int) []DayBucket {
	buckets := emptySeries(now, days)
	index := bucketIndex(buckets)
	counts := make([]int, len(buckets))
	for _, record := range records {
		d, closed := Duration(record)
		if !closed {
			continue
		}
		key := dayKey(record.ClockInAt, now.Location())
		if i, ok := index[key]; ok {
			buckets[i].Value += d.Hours()
			counts[i]++
		}
	}
	for i := range buckets {
		if counts[i] > 0 {
			buckets[i].Value /= float64(counts[i])
		}
	}
	return buckets
}

// StaffHours is total closed-shift hours for one worker.
type StaffHours struct {
	Name  string  `json:"name"`
	Hours float64 `json:"hours"`
}

// TopStaffByHours sums closed-shift durations per worker display name over the
// trailing window and returns the top entries sorted by hours descending.
func TopStaffByHours(records []models.ClockRecord, now time.Time, windowDays, topN int) []StaffHours {
	cutoff := now.AddDate(0, 0, -windowDays)
	totals := make(map[string]float64)
	for _, record := range records {
		d, closed := Duration(record)
		if !closed || record.ClockInAt.Before(cutoff) {
			continue
		}
		totals[record.WorkerName] += d.Hours()
	}

	staff := make([]StaffHours, 0, len(totals))
	for name, hours := range totals {
		staff = append(staff, StaffHours{Name: name, Hours: hours})
	}
	sort.Slice(staff, func(i, j int) bool {
		if staff[i].Hours != staff[j].Hours {
			return staff[i].Hours > staff[j].Hours
		}
		return staff[i].Name < staff[j].Name
	})
	if topN > 0 && len(staff) > topN {
		staff = staff[:topN]
	}
	return staff
}

func emptySeries(now time.Time, days int) []DayBucket {
	if days <= 0 {
		return []DayBucket{}
	}
	buckets := make([]DayBucket, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := now.AddDate(0, 0, -i)
		buckets = append(buckets, DayBucket{Day: dayKey(day, now.Location())})
	}
	return buckets
}

func bucketIndex(buckets []DayBucket) map[string]int {
	index := make(map[string]int, len(buckets))
	for i, bucket := range buckets {
		index[bucket.Day] = i
	}
	return index
}

func dayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
