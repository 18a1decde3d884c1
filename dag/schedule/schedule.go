// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

// Package schedule contains implementations of DAG schedules.
package schedule

import (
	"time"

	"github.com/ppacer/trends/timeutils"
)

// Schedule represents process' schedule. Start says when schedule starts.
// Next method for given time and possibly time of the latest run determines
// when the next schedule should happen. String method should provide
// serialization to store schedule definition in the database.
type Schedule interface {
	Start() time.Time
	Next(time.Time, *time.Time) time.Time
	String() string
}

// LogicalDate returns logical date which is represented by a schedule tick. A
// daily tick at D 21:00 UTC represents logical date D.
func LogicalDate(tick time.Time) time.Time {
	return timeutils.Date(tick)
}

// Ticks returns all schedule points from Start up to and including given
// time. It's used for catching up missed runs.
func Ticks(s Schedule, until time.Time) []time.Time {
	ticks := make([]time.Time, 0)
	ts := s.Start()
	for !ts.After(until) {
		ticks = append(ticks, ts)
		next := s.Next(ts, &ts)
		if !next.After(ts) {
			break
		}
		ts = next
	}
	return ticks
}
