// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

// Package memwh provides in-memory warehouse.Client. It keeps registry of
// tables and their partitions, records every submitted query and can be
// scripted to fail or to return given check results. It's used in tests and
// for dry runs.
package memwh

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ppacer/trends/timeutils"
	"github.com/ppacer/trends/warehouse"
)

// Op is the kind of recorded call.
type Op string

const (
	OpRun    Op = "RUN"
	OpCheck  Op = "CHECK"
	OpCreate Op = "CREATE"
)

// Call is a single recorded call to the warehouse.
type Call struct {
	Op    Op
	Query warehouse.Query
	Table string
	Ts    time.Time
	Err   error
}

// Row is a single row of a partition. Rows are produced by RowsFunc.
type Row map[string]any

// CheckFunc decides the result of a check query.
type CheckFunc func(warehouse.Query) (bool, error)

// FailFunc returns non-nil error, when given Run query should fail.
type FailFunc func(warehouse.Query) error

// RowsFunc produces rows written by a Run query into its destination.
type RowsFunc func(warehouse.Query) []Row

// Warehouse is in-memory warehouse.Client implementation. Zero value is not
// usable, use New.
type Warehouse struct {
	sync.Mutex
	tables  map[string]map[string][]Row // whole table -> partition -> rows
	calls   []Call
	checkFn CheckFunc
	failFn  FailFunc
	rowsFn  RowsFunc
	delay   time.Duration
}

// New creates empty in-memory warehouse. By default every check returns true,
// nothing fails and every Run writes a single row with the executed SQL.
func New() *Warehouse {
	return &Warehouse{
		tables:  make(map[string]map[string][]Row),
		calls:   make([]Call, 0, 32),
		checkFn: func(warehouse.Query) (bool, error) { return true, nil },
		failFn:  func(warehouse.Query) error { return nil },
		rowsFn:  defaultRows,
	}
}

// SetCheckFunc scripts results of Check calls.
func (w *Warehouse) SetCheckFunc(f CheckFunc) {
	w.Lock()
	defer w.Unlock()
	w.checkFn = f
}

// SetFailFunc scripts failures of Run calls.
func (w *Warehouse) SetFailFunc(f FailFunc) {
	w.Lock()
	defer w.Unlock()
	w.failFn = f
}

// SetRowsFunc sets function which produces rows written by Run calls.
func (w *Warehouse) SetRowsFunc(f RowsFunc) {
	w.Lock()
	defer w.Unlock()
	w.rowsFn = f
}

// SetDelay makes every call wait given duration (or until the context is
// done) before it's executed.
func (w *Warehouse) SetDelay(d time.Duration) {
	w.Lock()
	defer w.Unlock()
	w.delay = d
}

// Run executes the query in memory. For queries with destination, rows from
// RowsFunc are written into destination partition. WriteTruncate replaces
// partition rows, WriteAppend appends to them.
func (w *Warehouse) Run(ctx context.Context, q warehouse.Query) (warehouse.JobStatus, error) {
	start := time.Now()
	if err := w.wait(ctx); err != nil {
		w.record(Call{Op: OpRun, Query: q, Err: err})
		return warehouse.JobStatus{}, err
	}
	if err := q.Validate(); err != nil {
		w.record(Call{Op: OpRun, Query: q, Err: err})
		return warehouse.JobStatus{}, err
	}

	w.Lock()
	defer w.Unlock()
	call := Call{Op: OpRun, Query: q, Ts: timeutils.Now()}
	if err := w.failFn(q); err != nil {
		call.Err = fmt.Errorf("%w: %w", warehouse.ErrQueryFailed, err)
		w.calls = append(w.calls, call)
		return warehouse.JobStatus{}, call.Err
	}
	status := warehouse.JobStatus{
		JobId: "memwh_" + uuid.NewString(),
		Done:  true,
	}
	if q.Destination != nil {
		call.Table = q.Destination.String()
		rows := w.rowsFn(q)
		w.write(*q.Destination, q.WriteMode, rows)
		status.RowsWritten = int64(len(rows))
	}
	status.BytesProcessed = int64(len(q.SQL))
	status.Duration = time.Since(start)
	w.calls = append(w.calls, call)
	return status, nil
}

// Check returns result of CheckFunc for given query.
func (w *Warehouse) Check(ctx context.Context, q warehouse.Query) (bool, error) {
	if err := w.wait(ctx); err != nil {
		w.record(Call{Op: OpCheck, Query: q, Err: err})
		return false, err
	}
	w.Lock()
	defer w.Unlock()
	ok, err := w.checkFn(q)
	w.calls = append(w.calls, Call{
		Op: OpCheck, Query: q, Ts: timeutils.Now(), Err: err,
	})
	return ok, err
}

// CreatePartitionedTable registers the table. It's no-op for existing
// tables.
func (w *Warehouse) CreatePartitionedTable(ctx context.Context, ref warehouse.TableRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.Lock()
	defer w.Unlock()
	name := ref.Whole().String()
	if _, exists := w.tables[name]; !exists {
		w.tables[name] = make(map[string][]Row)
	}
	w.calls = append(w.calls, Call{
		Op: OpCreate, Table: name, Ts: timeutils.Now(),
	})
	return nil
}

// TableExists checks if the table was created or written into.
func (w *Warehouse) TableExists(ref warehouse.TableRef) bool {
	w.Lock()
	defer w.Unlock()
	_, exists := w.tables[ref.Whole().String()]
	return exists
}

// Partition returns copy of rows in given partition and true, if the
// partition exists.
func (w *Warehouse) Partition(ref warehouse.TableRef) ([]Row, bool) {
	w.Lock()
	defer w.Unlock()
	parts, exists := w.tables[ref.Whole().String()]
	if !exists {
		return nil, false
	}
	rows, exists := parts[ref.Partition]
	if !exists {
		return nil, false
	}
	out := make([]Row, len(rows))
	copy(out, rows)
	return out, true
}

// Partitions returns sorted list of all written partitions in the form of
// project.dataset.table$YYYYMMDD.
func (w *Warehouse) Partitions() []string {
	w.Lock()
	defer w.Unlock()
	out := make([]string, 0, len(w.tables))
	for table, parts := range w.tables {
		for p := range parts {
			if p == "" {
				out = append(out, table)
				continue
			}
			out = append(out, table+"$"+p)
		}
	}
	sort.Strings(out)
	return out
}

// Calls returns copy of all recorded calls in order of execution.
func (w *Warehouse) Calls() []Call {
	w.Lock()
	defer w.Unlock()
	out := make([]Call, len(w.calls))
	copy(out, w.calls)
	return out
}

// CallsContaining returns recorded calls which SQL contains given substring.
func (w *Warehouse) CallsContaining(substr string) []Call {
	all := w.Calls()
	out := make([]Call, 0)
	for _, c := range all {
		if strings.Contains(c.Query.SQL, substr) {
			out = append(out, c)
		}
	}
	return out
}

func (w *Warehouse) write(dst warehouse.TableRef, mode warehouse.WriteMode, rows []Row) {
	name := dst.Whole().String()
	if _, exists := w.tables[name]; !exists {
		w.tables[name] = make(map[string][]Row)
	}
	copied := make([]Row, len(rows))
	copy(copied, rows)
	switch mode {
	case warehouse.WriteAppend:
		w.tables[name][dst.Partition] = append(w.tables[name][dst.Partition], copied...)
	default:
		w.tables[name][dst.Partition] = copied
	}
}

func (w *Warehouse) record(c Call) {
	w.Lock()
	defer w.Unlock()
	c.Ts = timeutils.Now()
	w.calls = append(w.calls, c)
}

func (w *Warehouse) wait(ctx context.Context) error {
	w.Lock()
	delay := w.delay
	w.Unlock()
	if delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func defaultRows(q warehouse.Query) []Row {
	return []Row{{"sql": q.SQL}}
}
