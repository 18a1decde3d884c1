// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Daily is a schedule which ticks every day at the same hour and minute in
// UTC. It corresponds to "M H * * *" cron expression.
type Daily struct {
	start  time.Time
	hour   int
	minute int
}

// NewDaily creates Daily schedule ticking at given hour and minute. The first
// tick is the first one which is not before start.
func NewDaily(start time.Time, hour, minute int) Daily {
	return Daily{start: start.UTC(), hour: hour % 24, minute: minute % 60}
}

// ParseDaily parses cron expression of form "M H * * *". Other cron
// expressions are not supported and non-nil error is returned.
func ParseDaily(start time.Time, expr string) (Daily, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return Daily{}, fmt.Errorf("expected 5 cron fields, got %d in %q",
			len(parts), expr)
	}
	for _, p := range parts[2:] {
		if p != "*" {
			return Daily{}, fmt.Errorf("only daily cron (M H * * *) is supported, got %q",
				expr)
		}
	}
	minute, mErr := strconv.Atoi(parts[0])
	if mErr != nil || minute < 0 || minute > 59 {
		return Daily{}, fmt.Errorf("invalid minute %q in %q", parts[0], expr)
	}
	hour, hErr := strconv.Atoi(parts[1])
	if hErr != nil || hour < 0 || hour > 23 {
		return Daily{}, fmt.Errorf("invalid hour %q in %q", parts[1], expr)
	}
	return NewDaily(start, hour, minute), nil
}

// Start returns the first tick of the schedule.
func (d Daily) Start() time.Time {
	first := d.at(d.start)
	if first.Before(d.start) {
		first = first.AddDate(0, 0, 1)
	}
	return first
}

// Next returns the first tick strictly after currentTime. Ticks before Start
// are never returned. When prevSchedule is given and currentTime is after it,
// the tick following prevSchedule is returned, so missed ticks can be caught
// up one by one.
func (d Daily) Next(currentTime time.Time, prevSchedule *time.Time) time.Time {
	start := d.Start()
	if prevSchedule == nil && currentTime.Before(start) {
		return start
	}
	if prevSchedule != nil && currentTime.After(*prevSchedule) {
		return d.at(*prevSchedule).AddDate(0, 0, 1)
	}
	next := d.at(currentTime)
	if !next.After(currentTime) {
		next = next.AddDate(0, 0, 1)
	}
	if next.Before(start) {
		return start
	}
	return next
}

// String returns cron expression of the schedule.
func (d Daily) String() string {
	return fmt.Sprintf("%02d %02d * * *", d.minute, d.hour)
}

func (d Daily) at(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), d.hour, d.minute, 0, 0,
		time.UTC)
}
