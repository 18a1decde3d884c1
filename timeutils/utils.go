// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

// Package timeutils contains helpers for serializing timestamps and for
// logical date arithmetic used across the pipeline.
package timeutils

import (
	"fmt"
	"time"
)

// Timestamp format for time.Time serialization and deserialization. This
// format is used to store timestamps in the database. Fractional seconds have
// fixed width, so UTC timestamps are ordered lexicographically.
const TimestampFormat = "2006-01-02T15:04:05.000000MST-07:00"

// Date format for logical dates ("ds" in SQL templates).
const DateFormat = "2006-01-02"

// Date format without dashes ("ds_nodash"). It's also the format
// of day partition decorators in the warehouse.
const DateNoDashFormat = "20060102"

// ToString serialize give time.Time to string based on TimestampFormat format.
func ToString(t time.Time) string {
	return t.Format(TimestampFormat)
}

// FromString tries to recreate time.Time based on given string value according
// to TimestampFormat format.
func FromString(s string) (time.Time, error) {
	return time.Parse(TimestampFormat, s)
}

// In most cases FromString should be called on strings created by ToString and
// should succeed. In cases when we are pretty sure that FromString will
// succeed, we can use FromStringMust. If FromString would fail for given
// input, time.Time{} would be returned.
func FromStringMust(s string) time.Time {
	t, err := FromString(s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Now returns current time in UTC.
func Now() time.Time {
	return time.Now().UTC()
}

// Date truncates given time to midnight UTC of the same calendar day. Logical
// dates are always represented this way.
func Date(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// ToDateString serializes given logical date using DateFormat.
func ToDateString(t time.Time) string {
	return t.UTC().Format(DateFormat)
}

// ToDateNoDashString serializes given logical date using DateNoDashFormat.
func ToDateNoDashString(t time.Time) string {
	return t.UTC().Format(DateNoDashFormat)
}

// ParseDate parses logical date in DateFormat or DateNoDashFormat.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(DateFormat, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(DateNoDashFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid logical date %q, expected %s or %s",
			s, DateFormat, DateNoDashFormat)
	}
	return t, nil
}

// AddDays shifts given date by n calendar days. It is not affected by DST,
// because logical dates are kept in UTC.
func AddDays(t time.Time, n int) time.Time {
	return Date(t).AddDate(0, 0, n)
}

// DateRange returns all logical dates in [from, to] in ascending order. When
// to is before from, an empty slice is returned.
func DateRange(from, to time.Time) []time.Time {
	from, to = Date(from), Date(to)
	if to.Before(from) {
		return []time.Time{}
	}
	days := int(to.Sub(from).Hours()/24) + 1
	dates := make([]time.Time, 0, days)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}
