// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package schedule

import "fmt"

// Event says what caused a DAG run for a logical date.
type Event int

const (
	Regular Event = iota
	CaughtUp
	Backfill
	ManuallyTriggered
)

// String serialize Event.
func (e Event) String() string {
	return [...]string{
		"REGULAR",
		"CAUGHT_UP",
		"BACKFILL",
		"MANUALLY_TRIGGERED",
	}[e]
}

// ParseEvent parses Event based on given string. Events are case-sensitive.
func ParseEvent(s string) (Event, error) {
	events := map[string]Event{
		"REGULAR":            Regular,
		"CAUGHT_UP":          CaughtUp,
		"BACKFILL":           Backfill,
		"MANUALLY_TRIGGERED": ManuallyTriggered,
	}
	if event, ok := events[s]; ok {
		return event, nil
	}
	return 0, fmt.Errorf("invalid schedule Event: %s", s)
}
