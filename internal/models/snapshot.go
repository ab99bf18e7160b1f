package models

import (
	"encoding/json"
	"math"
	"time"
)

// Readings holds the raw aggregate values returned by the health data source
// for one cycle. A nil field means the metric was unavailable.
type Readings struct {
	StepCount        *float64
	ActiveMinutes    *float64
	RestingHeartRate *float64
}

// Snapshot is one sync cycle's metric values plus the upload timestamp.
// It is immutable once built by NewSnapshot.
type Snapshot struct {
	stepCount        *int64
	activeMinutes    *int64
	restingHeartRate *float64
	uploadDate       int64
}

// snapshotDocument is the wire format. Field order is the document order.
type snapshotDocument struct {
	NumberSteps      *int64   `json:"numberSteps"`
	ActiveMinutes    *int64   `json:"activeMinutes"`
	RestingHeartRate *float64 `json:"restingHeartRate"`
	UploadDate       int64    `json:"uploadDate"`
}

// NewSnapshot builds a Snapshot from readings taken at the given time.
// Counts are rounded to whole numbers. Non-finite values, negative counts and
// counts outside int64 are treated as absent.
func NewSnapshot(r Readings, at time.Time) Snapshot {
	return Snapshot{
		stepCount:        roundCount(r.StepCount),
		activeMinutes:    roundCount(r.ActiveMinutes),
		restingHeartRate: finite(r.RestingHeartRate),
		uploadDate:       at.Unix(),
	}
}

func roundCount(v *float64) *int64 {
	f := finite(v)
	if f == nil {
		return nil
	}
	// Counts are never negative; values past int64 would wrap.
	r := math.Round(*f)
	if r < 0 || r >= math.MaxInt64 {
		return nil
	}
	n := int64(r)
	return &n
}

func finite(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	f := *v
	return &f
}

// StepCount returns today's step count and whether it was available.
func (s Snapshot) StepCount() (int64, bool) {
	if s.stepCount == nil {
		return 0, false
	}
	return *s.stepCount, true
}

// ActiveMinutes returns today's exercise minutes and whether they were available.
func (s Snapshot) ActiveMinutes() (int64, bool) {
	if s.activeMinutes == nil {
		return 0, false
	}
	return *s.activeMinutes, true
}

// RestingHeartRate returns today's resting heart rate and whether it was available.
func (s Snapshot) RestingHeartRate() (float64, bool) {
	if s.restingHeartRate == nil {
		return 0, false
	}
	return *s.restingHeartRate, true
}

// UploadDate returns the snapshot timestamp as epoch seconds.
func (s Snapshot) UploadDate() int64 {
	return s.uploadDate
}

// Time returns the snapshot timestamp.
func (s Snapshot) Time() time.Time {
	return time.Unix(s.uploadDate, 0)
}

func (s Snapshot) document() snapshotDocument {
	return snapshotDocument{
		NumberSteps:      s.stepCount,
		ActiveMinutes:    s.activeMinutes,
		RestingHeartRate: s.restingHeartRate,
		UploadDate:       s.uploadDate,
	}
}

// MarshalJSON encodes the snapshot document. Absent metrics are written as null.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.document())
}

// Payload returns the serialized document sent to the object store.
// All values are finite by construction, so encoding cannot fail.
func (s Snapshot) Payload() []byte {
	data, _ := json.Marshal(s.document())
	return data
}

// ParseSnapshot decodes a snapshot document, e.g. a stored LastPayload.
func ParseSnapshot(data []byte) (Snapshot, error) {
	var doc snapshotDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		stepCount:        doc.NumberSteps,
		activeMinutes:    doc.ActiveMinutes,
		restingHeartRate: finite(doc.RestingHeartRate),
		uploadDate:       doc.UploadDate,
	}, nil
}
