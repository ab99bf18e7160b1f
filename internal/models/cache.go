package models

import "time"

// CachedMetrics are the values most recently read by a sync cycle.
type CachedMetrics struct {
	StepCount        *int64    `json:"step_count"`
	ActiveMinutes    *int64    `json:"active_minutes"`
	RestingHeartRate *float64  `json:"resting_heart_rate"`
	ReadAt           time.Time `json:"read_at"`
}

// CachedFromSnapshot copies a snapshot's values into a cache record.
func CachedFromSnapshot(s Snapshot, readAt time.Time) CachedMetrics {
	c := CachedMetrics{ReadAt: readAt}
	if v, ok := s.StepCount(); ok {
		c.StepCount = &v
	}
	if v, ok := s.ActiveMinutes(); ok {
		c.ActiveMinutes = &v
	}
	if v, ok := s.RestingHeartRate(); ok {
		c.RestingHeartRate = &v
	}
	return c
}
