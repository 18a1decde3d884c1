// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package e2etests

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ppacer/trends/dag"
	"github.com/ppacer/trends/db"
	"github.com/ppacer/trends/notify"
	"github.com/ppacer/trends/scheduler"
	"github.com/ppacer/trends/trends"
	"github.com/ppacer/trends/warehouse"
	"github.com/ppacer/trends/warehouse/memwh"
)

// Substrings identifying gate queries.
const (
	githubArchiveSql  = "githubarchive:day.__TABLES__"
	hackernewsFullSql = "hacker_news.full"
)

var june2 = time.Date(2017, time.June, 2, 0, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() trends.Config {
	cfg := trends.DefaultConfig()
	cfg.Retries = 2
	cfg.RetryDelay = 0
	cfg.Timeout = 10 * time.Second
	return cfg
}

type env struct {
	cfg      trends.Config
	wh       *memwh.Warehouse
	dbClient *db.Client
	dag      dag.Dag
	runner   *scheduler.DagRunner
	alerts   []string
}

func newEnv(t *testing.T, cfg trends.Config) *env {
	t.Helper()
	dbClient, err := db.NewSqliteInMemoryClient(testLogger())
	if err != nil {
		t.Fatalf("Cannot create in-memory database: %s", err.Error())
	}
	t.Cleanup(func() { dbClient.Close() })

	e := &env{cfg: cfg, wh: memwh.New(), dbClient: dbClient}
	d, dErr := trends.NewDag(cfg, e.wh)
	if dErr != nil {
		t.Fatalf("Cannot build trends DAG: %s", dErr.Error())
	}
	e.dag = d
	if _, sErr := dbClient.SyncDag(context.Background(), e.dag); sErr != nil {
		t.Fatalf("Cannot sync DAG: %s", sErr.Error())
	}
	runnerCfg := scheduler.DagRunnerConfig{
		ArchiveTimeout: time.Second,
		AlertTimeout:   time.Second,
	}
	e.runner = scheduler.NewDagRunner(dbClient, nil, notify.NewMock(&e.alerts),
		runnerCfg, testLogger())
	return e
}

func (e *env) run(t *testing.T, date time.Time) scheduler.RunResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	res, err := e.runner.Run(ctx, e.dag, date)
	if err != nil {
		t.Fatalf("Unexpected error from Run: %s", err.Error())
	}
	return res
}

// failChecksContaining makes every check query which contains given
// substring return no rows.
func (e *env) failChecksContaining(substr string) {
	e.wh.SetCheckFunc(func(q warehouse.Query) (bool, error) {
		return !strings.Contains(q.SQL, substr), nil
	})
}

// runCallIndex returns index of the first successful Run call which writes
// into given table, or -1.
func (e *env) runCallIndex(table string) int {
	for idx, c := range e.wh.Calls() {
		if c.Op != memwh.OpRun || c.Err != nil {
			continue
		}
		if strings.Contains(c.Table, "."+table+"$") {
			return idx
		}
	}
	return -1
}

func expectTaskStatuses(
	t *testing.T, res scheduler.RunResult, expected map[string]dag.TaskStatus,
) {
	t.Helper()
	for taskId, status := range expected {
		state, exists := res.Tasks[taskId]
		if !exists {
			t.Errorf("Task %s is missing in run result", taskId)
			continue
		}
		if state.Status != status {
			t.Errorf("Expected task %s in status %s, got: %s", taskId,
				status.String(), state.Status.String())
		}
	}
}
