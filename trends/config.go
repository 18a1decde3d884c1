// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package trends

import (
	"errors"
	"fmt"
	"time"

	"github.com/ppacer/trends/dag/schedule"
	"github.com/ppacer/trends/notify"
)

// Config of the github trends DAG.
type Config struct {
	Project       string        `yaml:"project"`
	Dataset       string        `yaml:"dataset"`
	Retries       int           `yaml:"retries"`
	RetryDelay    time.Duration `yaml:"retryDelay"`
	Timeout       time.Duration `yaml:"timeout"`
	DependsOnPast bool          `yaml:"dependsOnPast"`
	AlertOnRetry  bool          `yaml:"alertOnRetry"`
	StartDate     time.Time     `yaml:"startDate"`
	Schedule      string        `yaml:"schedule"`

	// Notifier used for task alerts. When nil the scheduler notifier is
	// used.
	Notifier notify.Sender `yaml:"-"`
}

// DefaultConfig returns default configuration of the DAG.
func DefaultConfig() Config {
	return Config{
		Project:    "my-project",
		Dataset:    "github_trends",
		Retries:    5,
		RetryDelay: 5 * time.Minute,
		Timeout:    30 * time.Minute,
		StartDate:  time.Date(2017, time.June, 2, 0, 0, 0, 0, time.UTC),
		Schedule:   "00 21 * * *",
	}
}

// Validate checks if the configuration is complete.
func (c Config) Validate() error {
	if c.Project == "" {
		return errors.New("project cannot be empty")
	}
	if c.Dataset == "" {
		return errors.New("dataset cannot be empty")
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries cannot be negative, got: %d", c.Retries)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay cannot be negative, got: %v", c.RetryDelay)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout should be positive, got: %v", c.Timeout)
	}
	if c.StartDate.IsZero() {
		return errors.New("start date cannot be empty")
	}
	return nil
}

// DailySchedule parses Schedule starting from StartDate.
func (c Config) DailySchedule() (schedule.Daily, error) {
	return schedule.ParseDaily(c.StartDate, c.Schedule)
}
