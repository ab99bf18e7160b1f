// Package health reads today's fitness metrics from a health data source.
package health

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotAuthorized means the user has not granted access to the metric.
	ErrNotAuthorized = errors.New("health data access not authorized")
	// ErrNoData means the metric has no samples in the requested range.
	ErrNoData = errors.New("no health data in range")
)

// Aggregation is how samples of a metric reduce to a single value.
type Aggregation int

const (
	Sum Aggregation = iota
	Average
)

// Metric is a metric the Reader knows how to query.
type Metric struct {
	Name        string // HAE metric name
	Aggregation Aggregation
}

var (
	StepCount        = Metric{Name: "step_count", Aggregation: Sum}
	ExerciseMinutes  = Metric{Name: "apple_exercise_time", Aggregation: Sum}
	RestingHeartRate = Metric{Name: "resting_heart_rate", Aggregation: Average}
)

// Source answers aggregate queries for one metric over a time range.
// Implementations return ErrNotAuthorized or ErrNoData where applicable.
type Source interface {
	QueryAggregate(ctx context.Context, m Metric, start, end time.Time) (float64, error)
}

// DayRange returns the start of now's local day and now.
func DayRange(now time.Time) (time.Time, time.Time) {
	y, mo, d := now.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, now.Location()), now
}

// reduce aggregates values according to agg.
func reduce(agg Aggregation, values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrNoData
	}
	var total float64
	for _, v := range values {
		total += v
	}
	if agg == Average {
		return total / float64(len(values)), nil
	}
	return total, nil
}
