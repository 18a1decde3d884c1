// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

// Package warehouse defines the interface to a hosted SQL warehouse. Queries
// are submitted and awaited synchronously, the warehouse does all of the
// computation.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrQueryFailed is returned when the warehouse accepted a query, but its
	// execution failed.
	ErrQueryFailed = errors.New("query execution failed")

	// ErrTransient is returned for service and network errors which are
	// likely to succeed on retry.
	ErrTransient = errors.New("transient warehouse error")

	// ErrMissingDestination is returned when write mode requires a
	// destination table, but it's not set.
	ErrMissingDestination = errors.New("write mode requires destination table")
)

// Dialect of SQL query.
type Dialect int

const (
	// DialectAuto means the dialect is resolved from leading #legacySQL or
	// #standardSQL comment. Standard SQL is used, when there is no such
	// comment.
	DialectAuto Dialect = iota
	DialectLegacy
	DialectStandard
)

// String serializes Dialect.
func (d Dialect) String() string {
	return [...]string{"AUTO", "LEGACY", "STANDARD"}[d]
}

// WriteMode says what happens with destination table data.
type WriteMode int

const (
	WriteNone WriteMode = iota
	WriteAppend
	WriteTruncate
)

// String serializes WriteMode.
func (w WriteMode) String() string {
	return [...]string{"NONE", "WRITE_APPEND", "WRITE_TRUNCATE"}[w]
}

// Query is a single request to the warehouse.
type Query struct {
	SQL               string
	Dialect           Dialect
	WriteMode         WriteMode
	Destination       *TableRef
	AllowLargeResults bool
	Labels            map[string]string
}

// Validate checks whenever the query can be submitted.
func (q Query) Validate() error {
	if strings.TrimSpace(q.SQL) == "" {
		return errors.New("query SQL is empty")
	}
	if q.WriteMode != WriteNone && q.Destination == nil {
		return fmt.Errorf("%w: %s", ErrMissingDestination, q.WriteMode)
	}
	return nil
}

// ResolvedDialect returns Dialect of the query. For DialectAuto it's resolved
// from the leading SQL comment.
func (q Query) ResolvedDialect() Dialect {
	if q.Dialect != DialectAuto {
		return q.Dialect
	}
	return DetectDialect(q.SQL)
}

// DetectDialect checks the first non-empty line of given SQL for #legacySQL
// or #standardSQL comment (case-insensitive). Standard SQL is the default.
func DetectDialect(sql string) Dialect {
	for _, line := range strings.Split(sql, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch strings.ToLower(line) {
		case "#legacysql":
			return DialectLegacy
		case "#standardsql":
			return DialectStandard
		}
		return DialectStandard
	}
	return DialectStandard
}

// JobStatus describes finished warehouse job.
type JobStatus struct {
	JobId          string        `json:"jobId"`
	Done           bool          `json:"done"`
	BytesProcessed int64         `json:"bytesProcessed"`
	RowsWritten    int64         `json:"rowsWritten"`
	Duration       time.Duration `json:"duration"`
}

// Client is the only way the pipeline talks to the warehouse.
type Client interface {
	// Run submits the query and blocks until the warehouse reports
	// completion. With WriteTruncate the destination (partition) is fully
	// replaced.
	Run(context.Context, Query) (JobStatus, error)

	// Check runs read-only query and reports whenever it returned at least
	// one row.
	Check(context.Context, Query) (bool, error)

	// CreatePartitionedTable creates day-partitioned table. It's not an error
	// when the table already exists.
	CreatePartitionedTable(context.Context, TableRef) error
}
