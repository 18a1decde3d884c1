// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package tasks

import (
	"fmt"
	"strings"
	"time"

	"github.com/ppacer/trends/dag"
	"github.com/ppacer/trends/macros"
	"github.com/ppacer/trends/warehouse"
)

// Transform runs a query and writes its result into destination partition.
// With WriteTruncate (the default from NewTransform) re-running it for the
// same logical date yields the same partition.
type Transform struct {
	TaskId            string
	SQL               string // template
	Destination       string // template, e.g. p.d.t${{ yesterday_ds_nodash }}
	WriteMode         warehouse.WriteMode
	Dialect           warehouse.Dialect
	AllowLargeResults bool
	Client            warehouse.Client
}

// NewTransform creates new Transform which overwrites its destination and
// allows large results. Both templates are parsed upfront.
func NewTransform(taskId, sql, destination string, client warehouse.Client) (*Transform, error) {
	if err := macros.Parse(taskId, sql); err != nil {
		return nil, err
	}
	if err := macros.Parse(taskId+"_destination", destination); err != nil {
		return nil, err
	}
	return &Transform{
		TaskId:            taskId,
		SQL:               sql,
		Destination:       destination,
		WriteMode:         warehouse.WriteTruncate,
		AllowLargeResults: true,
		Client:            client,
	}, nil
}

func (t *Transform) Id() string { return t.TaskId }
func (t *Transform) Kind() Kind { return KindTransform }

// Fingerprint of Transform definition.
func (t *Transform) Fingerprint() string {
	return fingerprint(KindTransform.String(), t.TaskId, t.SQL, t.Destination,
		t.WriteMode.String(), t.Dialect.String(),
		fmt.Sprintf("%t", t.AllowLargeResults))
}

// DestinationRef renders destination table reference for given logical date.
func (t *Transform) DestinationRef(date time.Time) (warehouse.TableRef, error) {
	dst, err := macros.Render(t.TaskId+"_destination", t.Destination, date)
	if err != nil {
		return warehouse.TableRef{}, err
	}
	return warehouse.ParseTableRef(strings.TrimSpace(dst))
}

// Query renders the query for given logical date.
func (t *Transform) Query(date time.Time) (warehouse.Query, error) {
	sql, err := macros.Render(t.TaskId, t.SQL, date)
	if err != nil {
		return warehouse.Query{}, err
	}
	dst, err := t.DestinationRef(date)
	if err != nil {
		return warehouse.Query{}, err
	}
	return warehouse.Query{
		SQL:               sql,
		Dialect:           t.Dialect,
		WriteMode:         t.WriteMode,
		Destination:       &dst,
		AllowLargeResults: t.AllowLargeResults,
		Labels:            labels(t.TaskId, date),
	}, nil
}

// Execute runs the query for the logical date of the DAG run.
func (t *Transform) Execute(tc dag.TaskContext) error {
	q, err := t.Query(tc.DagRun.ExecTs)
	if err != nil {
		return err
	}
	tc.Logger.Info("Running query", "destination", q.Destination.String(),
		"writeMode", q.WriteMode.String(), "dialect",
		q.ResolvedDialect().String())
	status, err := t.Client.Run(tc.Context, q)
	if err != nil {
		return fmt.Errorf("transform %s into %s failed: %w", t.TaskId,
			q.Destination.String(), err)
	}
	tc.Logger.Info("Query finished", "jobId", status.JobId,
		"bytesProcessed", status.BytesProcessed, "duration",
		status.Duration.String())
	return nil
}
