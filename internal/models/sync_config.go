package models

import (
	"errors"
	"fmt"
	"time"
)

const (
	// MinIntervalMinutes and MaxIntervalMinutes bound the sync interval.
	MinIntervalMinutes = 1
	MaxIntervalMinutes = 1440

	// DefaultRegion is used when the user leaves the region empty.
	DefaultRegion = "eu-west-1"

	// RedactedSecret replaces the secret access key in displayed configs.
	RedactedSecret = "********"
)

// ErrInvalidSyncConfig is wrapped by every SyncConfig validation failure.
var ErrInvalidSyncConfig = errors.New("invalid sync config")

// SyncConfig is the user-supplied destination and schedule.
type SyncConfig struct {
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
	Region          string `json:"region" yaml:"region"`
	Endpoint        string `json:"endpoint,omitempty" yaml:"endpoint"`
	Bucket          string `json:"bucket" yaml:"bucket"`
	ObjectKey       string `json:"object_key" yaml:"object_key"`
	IntervalMinutes int    `json:"interval_minutes" yaml:"interval_minutes"`
}

// Validate checks that the config is usable for an upload and fills the default region.
func (c *SyncConfig) Validate() error {
	if c.AccessKeyID == "" {
		return fmt.Errorf("%w: access key id is required", ErrInvalidSyncConfig)
	}
	if c.SecretAccessKey == "" {
		return fmt.Errorf("%w: secret access key is required", ErrInvalidSyncConfig)
	}
	if c.Bucket == "" {
		return fmt.Errorf("%w: bucket is required", ErrInvalidSyncConfig)
	}
	if c.ObjectKey == "" {
		return fmt.Errorf("%w: object key is required", ErrInvalidSyncConfig)
	}
	if err := ValidateInterval(c.IntervalMinutes); err != nil {
		return err
	}
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	return nil
}

// ValidateInterval checks a sync interval in minutes.
func ValidateInterval(minutes int) error {
	if minutes < MinIntervalMinutes || minutes > MaxIntervalMinutes {
		return fmt.Errorf("%w: interval must be between %d and %d minutes, got %d",
			ErrInvalidSyncConfig, MinIntervalMinutes, MaxIntervalMinutes, minutes)
	}
	return nil
}

// Interval returns the sync interval as a duration.
func (c SyncConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// Redacted returns a copy safe to display, with the secret masked.
func (c SyncConfig) Redacted() SyncConfig {
	if c.SecretAccessKey != "" {
		c.SecretAccessKey = RedactedSecret
	}
	return c
}
