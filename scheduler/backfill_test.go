// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/ppacer/trends/dag"
	"github.com/ppacer/trends/dag/schedule"
	"github.com/ppacer/trends/timeutils"
)

func TestBackfillRunsDatesInOrder(t *testing.T) {
	dbClient := newTestDbClient(t)
	log := &execLog{}
	d := diamondDag(t, okDiamondTasks(log))
	runner := newTestRunner(dbClient, nil)

	results, err := runner.Backfill(context.Background(), d, testDate(2),
		testDate(5))
	if err != nil {
		t.Fatalf("Unexpected error from Backfill: %s", err.Error())
	}
	if len(results) != 4 {
		t.Fatalf("Expected 4 DAG runs, got: %d", len(results))
	}
	for idx, res := range results {
		expected := timeutils.ToDateString(testDate(2 + idx))
		if got := timeutils.ToDateString(res.ExecTs); got != expected {
			t.Errorf("Expected run %d for %s, got: %s", idx, expected, got)
		}
		if res.Status != dag.RunSuccess {
			t.Errorf("Expected run %d SUCCESS, got: %s", idx,
				res.Status.String())
		}
		if idx > 0 && res.StartTs.Before(results[idx-1].EndTs) {
			t.Errorf("Run %d started before previous one has finished", idx)
		}
	}
	if cnt := log.count("end"); cnt != 4 {
		t.Errorf("Expected end executed 4 times, got: %d", cnt)
	}
	backfills := dbClient.CountWhere("dagruns",
		"Event = '"+schedule.Backfill.String()+"'")
	if backfills != 4 {
		t.Errorf("Expected 4 BACKFILL DAG runs, got: %d", backfills)
	}
}

func TestBackfillContinuesAfterFailedRun(t *testing.T) {
	dbClient := newTestDbClient(t)
	log := &execLog{}
	tasks := okDiamondTasks(log)
	tasks["left"] = funcTask{id: "left", fn: func(tc dag.TaskContext) error {
		if timeutils.ToDateString(tc.DagRun.ExecTs) == "2017-06-03" {
			return errors.New("broken partition")
		}
		return nil
	}}
	d := diamondDag(t, tasks)
	runner := newTestRunner(dbClient, nil)

	results, err := runner.Backfill(context.Background(), d, testDate(2),
		testDate(4))
	if err != nil {
		t.Fatalf("Unexpected error from Backfill: %s", err.Error())
	}
	expected := []dag.RunStatus{dag.RunSuccess, dag.RunFailed, dag.RunSuccess}
	if len(results) != len(expected) {
		t.Fatalf("Expected %d results, got: %d", len(expected), len(results))
	}
	for idx, status := range expected {
		if results[idx].Status != status {
			t.Errorf("Expected run %d %s, got: %s", idx, status.String(),
				results[idx].Status.String())
		}
	}
}

func TestBackfillInvalidRange(t *testing.T) {
	dbClient := newTestDbClient(t)
	d := diamondDag(t, okDiamondTasks(&execLog{}))
	runner := newTestRunner(dbClient, nil)

	_, err := runner.Backfill(context.Background(), d, testDate(5), testDate(2))
	if err == nil {
		t.Error("Expected error for end date before start date")
	}
	if cnt := dbClient.Count("dagruns"); cnt != 0 {
		t.Errorf("Expected no DAG runs, got: %d", cnt)
	}
}

func TestBackfillCancelled(t *testing.T) {
	dbClient := newTestDbClient(t)
	d := diamondDag(t, okDiamondTasks(&execLog{}))
	runner := newTestRunner(dbClient, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err := runner.Backfill(ctx, d, testDate(2), testDate(5))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected no results, got: %d", len(results))
	}
}
