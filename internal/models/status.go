package models

import (
	"fmt"
	"time"
)

// UploadState is the outcome of the most recent upload attempt.
type UploadState string

const (
	// UploadCompleted means the last attempt reached the object store.
	UploadCompleted UploadState = "Completed"
	// UploadFailed means the last attempt ran and the transfer failed.
	UploadFailed UploadState = "Failed"
	// UploadUnknown means no attempt has run yet.
	UploadUnknown UploadState = "Unknown"
)

// ParseUploadState validates a stored state string.
func ParseUploadState(s string) (UploadState, error) {
	switch UploadState(s) {
	case UploadCompleted, UploadFailed, UploadUnknown:
		return UploadState(s), nil
	}
	return "", fmt.Errorf("unknown upload state %q", s)
}

// UploadStatus is the single persisted record describing the last upload attempt.
type UploadStatus struct {
	State       UploadState `json:"state"`
	LastPayload string      `json:"last_payload"`
	Detail      *string     `json:"detail,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// CompletedStatus builds the record written after a successful transfer.
func CompletedStatus(payload []byte, at time.Time) UploadStatus {
	return UploadStatus{
		State:       UploadCompleted,
		LastPayload: string(payload),
		Timestamp:   at,
	}
}

// FailedStatus builds the record written after a failed transfer.
func FailedStatus(payload []byte, detail string, at time.Time) UploadStatus {
	return UploadStatus{
		State:       UploadFailed,
		LastPayload: string(payload),
		Detail:      &detail,
		Timestamp:   at,
	}
}

// UnknownStatus is what callers display when no attempt has run.
func UnknownStatus() UploadStatus {
	return UploadStatus{State: UploadUnknown}
}
