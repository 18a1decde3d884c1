// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package tasks

import (
	"fmt"
	"time"

	"github.com/ppacer/trends/dag"
	"github.com/ppacer/trends/macros"
	"github.com/ppacer/trends/warehouse"
)

// Gate is a read-only check. It succeeds when its query returns at least one
// row for the logical date.
type Gate struct {
	TaskId  string
	SQL     string // template
	Dialect warehouse.Dialect
	Client  warehouse.Client
}

// NewGate creates new Gate. SQL template is parsed upfront.
func NewGate(taskId, sql string, client warehouse.Client) (*Gate, error) {
	if err := macros.Parse(taskId, sql); err != nil {
		return nil, err
	}
	return &Gate{TaskId: taskId, SQL: sql, Client: client}, nil
}

func (g *Gate) Id() string { return g.TaskId }
func (g *Gate) Kind() Kind { return KindGate }

// Fingerprint of Gate definition.
func (g *Gate) Fingerprint() string {
	return fingerprint(KindGate.String(), g.TaskId, g.SQL, g.Dialect.String())
}

// Query renders check query for given logical date.
func (g *Gate) Query(date time.Time) (warehouse.Query, error) {
	sql, err := macros.Render(g.TaskId, g.SQL, date)
	if err != nil {
		return warehouse.Query{}, err
	}
	return warehouse.Query{
		SQL:     sql,
		Dialect: g.Dialect,
		Labels:  labels(g.TaskId, date),
	}, nil
}

// Execute runs the check for the logical date of the DAG run.
func (g *Gate) Execute(tc dag.TaskContext) error {
	q, err := g.Query(tc.DagRun.ExecTs)
	if err != nil {
		return err
	}
	tc.Logger.Info("Running check query", "dialect",
		q.ResolvedDialect().String(), "sql", q.SQL)
	ok, err := g.Client.Check(tc.Context, q)
	if err != nil {
		return fmt.Errorf("check %s failed: %w", g.TaskId, err)
	}
	if !ok {
		tc.Logger.Warn("Check query returned no rows")
		return fmt.Errorf("check %s for %s: %w", g.TaskId,
			tc.DagRun.ExecTs.Format("2006-01-02"), ErrPrerequisiteNotReady)
	}
	tc.Logger.Info("Check passed")
	return nil
}
