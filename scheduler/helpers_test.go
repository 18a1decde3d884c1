// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package scheduler

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ppacer/trends/dag"
	"github.com/ppacer/trends/dag/schedule"
	"github.com/ppacer/trends/db"
	"github.com/ppacer/trends/notify"
)

type funcTask struct {
	id string
	fn func(dag.TaskContext) error
}

func (ft funcTask) Id() string                       { return ft.id }
func (ft funcTask) Execute(tc dag.TaskContext) error { return ft.fn(tc) }

// execLog records task executions across goroutines.
type execLog struct {
	sync.Mutex
	calls []string
}

func (l *execLog) add(taskId string) {
	l.Lock()
	l.calls = append(l.calls, taskId)
	l.Unlock()
}

func (l *execLog) count(taskId string) int {
	l.Lock()
	defer l.Unlock()
	cnt := 0
	for _, c := range l.calls {
		if c == taskId {
			cnt++
		}
	}
	return cnt
}

func (l *execLog) index(taskId string) int {
	l.Lock()
	defer l.Unlock()
	for idx, c := range l.calls {
		if c == taskId {
			return idx
		}
	}
	return -1
}

func okTask(id string, log *execLog) funcTask {
	return funcTask{id: id, fn: func(dag.TaskContext) error {
		log.add(id)
		return nil
	}}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDbClient(t *testing.T) *db.Client {
	t.Helper()
	c, err := db.NewSqliteInMemoryClient(testLogger())
	if err != nil {
		t.Fatalf("Cannot create in-memory database: %s", err.Error())
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func testStart() time.Time {
	return time.Date(2017, time.June, 2, 0, 0, 0, 0, time.UTC)
}

func testDate(day int) time.Time {
	return time.Date(2017, time.June, day, 0, 0, 0, 0, time.UTC)
}

// diamondDag builds DAG start -> (left, right) -> end.
func diamondDag(t *testing.T, tasks map[string]dag.Task, cfg ...dag.TaskConfigFunc) dag.Dag {
	t.Helper()
	d, err := dag.New(dag.Id("diamond")).
		AddSchedule(schedule.NewDaily(testStart(), 21, 0)).
		AddAttributes(dag.Attr{CatchUp: true}).
		AddNode(tasks["start"], cfg...).
		AddNode(tasks["left"], cfg...).
		AddNode(tasks["right"], cfg...).
		AddNode(tasks["end"], cfg...).
		AddEdge("start", "left").
		AddEdge("start", "right").
		AddEdges("end", "left", "right").
		Build()
	if err != nil {
		t.Fatalf("Cannot build diamond DAG: %s", err.Error())
	}
	return d
}

func okDiamondTasks(log *execLog) map[string]dag.Task {
	return map[string]dag.Task{
		"start": okTask("start", log),
		"left":  okTask("left", log),
		"right": okTask("right", log),
		"end":   okTask("end", log),
	}
}

func newTestRunner(dbClient *db.Client, alerts *[]string) *DagRunner {
	cfg := DagRunnerConfig{ArchiveTimeout: time.Second, AlertTimeout: time.Second}
	if alerts != nil {
		return NewDagRunner(dbClient, nil, notify.NewMock(alerts), cfg,
			testLogger())
	}
	return NewDagRunner(dbClient, nil, nil, cfg, testLogger())
}
