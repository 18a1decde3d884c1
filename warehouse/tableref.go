// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package warehouse

import (
	"fmt"
	"strings"
	"time"

	"github.com/ppacer/trends/timeutils"
)

// TableRef points at a table or a single day partition of a table.
type TableRef struct {
	Project   string
	Dataset   string
	Table     string
	Partition string // YYYYMMDD, empty for the whole table
}

// ParseTableRef parses table reference in one of the forms:
//
//	project.dataset.table
//	project:dataset.table
//	project.dataset.table$20170601
func ParseTableRef(s string) (TableRef, error) {
	raw := strings.Trim(strings.TrimSpace(s), "`[]")
	ref := TableRef{}
	if idx := strings.LastIndex(raw, "$"); idx >= 0 {
		ref.Partition = raw[idx+1:]
		raw = raw[:idx]
		if _, err := time.Parse(timeutils.DateNoDashFormat, ref.Partition); err != nil {
			return TableRef{}, fmt.Errorf("invalid partition decorator in %q: %w",
				s, err)
		}
	}
	if idx := strings.Index(raw, ":"); idx >= 0 {
		raw = raw[:idx] + "." + raw[idx+1:]
	}
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return TableRef{}, fmt.Errorf("invalid table reference %q, expected project.dataset.table",
			s)
	}
	for _, p := range parts {
		if p == "" {
			return TableRef{}, fmt.Errorf("invalid table reference %q, empty part",
				s)
		}
	}
	ref.Project, ref.Dataset, ref.Table = parts[0], parts[1], parts[2]
	return ref, nil
}

// String returns project.dataset.table with optional partition decorator.
func (t TableRef) String() string {
	s := t.Project + "." + t.Dataset + "." + t.Table
	if t.Partition != "" {
		s += "$" + t.Partition
	}
	return s
}

// PartitionDecorator returns table name with partition decorator, for
// example "github_agg$20170601". Without partition it's just table name.
func (t TableRef) PartitionDecorator() string {
	if t.Partition == "" {
		return t.Table
	}
	return t.Table + "$" + t.Partition
}

// WithPartition returns copy of the reference pointing at partition of given
// date.
func (t TableRef) WithPartition(date time.Time) TableRef {
	t.Partition = timeutils.ToDateNoDashString(date)
	return t
}

// Whole returns reference to the whole table, without partition.
func (t TableRef) Whole() TableRef {
	t.Partition = ""
	return t
}
