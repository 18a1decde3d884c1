// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package db

import (
	"database/sql"
	"errors"
	"testing"
)

func TestInsertAndReadDagRunTasks(t *testing.T) {
	c := newClientForTesting(t)
	ctx := ctxT(t)
	const dagId, execTs = "mock_dag", "2017-06-02"
	runId := insertDagRun(c, dagId, execTs, t)

	tasks := []string{"start", "t1", "t2"}
	for _, taskId := range tasks {
		iErr := c.InsertDagRunTask(ctx, runId, dagId, execTs, taskId, 0,
			statusScheduled)
		if iErr != nil {
			t.Errorf("Cannot insert dag run task %s: %s", taskId, iErr.Error())
		}
	}
	if cnt := c.Count("dagruntasks"); cnt != len(tasks) {
		t.Errorf("Expected %d rows in dagruntasks, got: %d", len(tasks), cnt)
	}

	drts, rErr := c.ReadDagRunTasks(ctx, runId)
	if rErr != nil {
		t.Fatalf("Cannot read dag run tasks: %s", rErr.Error())
	}
	if len(drts) != len(tasks) {
		t.Fatalf("Expected %d dag run tasks, got: %d", len(tasks), len(drts))
	}
	for _, drt := range drts {
		if drt.Status != statusScheduled || drt.Retry != 0 || drt.Error != nil {
			t.Errorf("Unexpected dag run task: %+v", drt)
		}
	}
}

func TestInsertDagRunTaskDuplicate(t *testing.T) {
	c := newClientForTesting(t)
	ctx := ctxT(t)
	runId := insertDagRun(c, "mock_dag", "2017-06-02", t)
	err1 := c.InsertDagRunTask(ctx, runId, "mock_dag", "2017-06-02", "t1", 0,
		statusScheduled)
	if err1 != nil {
		t.Fatal(err1)
	}
	err2 := c.InsertDagRunTask(ctx, runId, "mock_dag", "2017-06-02", "t1", 0,
		statusScheduled)
	if err2 == nil {
		t.Error("Expected primary key violation for the same attempt")
	}
}

func TestUpdateDagRunTaskStatusWithError(t *testing.T) {
	c := newClientForTesting(t)
	ctx := ctxT(t)
	runId := insertDagRun(c, "mock_dag", "2017-06-02", t)
	_ = c.InsertDagRunTask(ctx, runId, "mock_dag", "2017-06-02", "t1", 0,
		statusRunning)

	uErr := c.UpdateDagRunTaskStatus(ctx, runId, "t1", 0, statusFailed,
		errors.New("query failed: quota exceeded"))
	if uErr != nil {
		t.Fatalf("Cannot update task status: %s", uErr.Error())
	}
	drt, rErr := c.ReadDagRunTask(ctx, runId, "t1", 0)
	if rErr != nil {
		t.Fatal(rErr)
	}
	if drt.Status != statusFailed {
		t.Errorf("Expected status FAILED, got: %s", drt.Status)
	}
	if drt.Error == nil || *drt.Error != "query failed: quota exceeded" {
		t.Errorf("Expected error message to be stored, got: %v", drt.Error)
	}

	missingErr := c.UpdateDagRunTaskStatus(ctx, runId, "t1", 1, statusFailed, nil)
	if missingErr != sql.ErrNoRows {
		t.Errorf("Expected sql.ErrNoRows for not existing attempt, got: %v",
			missingErr)
	}
}

func TestReadDagRunTaskLatestAcrossRuns(t *testing.T) {
	c := newClientForTesting(t)
	ctx := ctxT(t)
	const dagId, execTs = "mock_dag", "2017-06-02"

	_, nErr := c.ReadDagRunTaskLatest(ctx, dagId, execTs, "t1")
	if nErr != sql.ErrNoRows {
		t.Errorf("Expected sql.ErrNoRows, got: %v", nErr)
	}
	succeeded, sErr := c.TaskSucceeded(ctx, dagId, execTs, "t1")
	if sErr != nil || succeeded {
		t.Errorf("Expected not succeeded task without attempts, got %v (%v)",
			succeeded, sErr)
	}

	run1 := insertDagRun(c, dagId, execTs, t)
	for retry := 0; retry < 3; retry++ {
		_ = c.InsertDagRunTask(ctx, run1, dagId, execTs, "t1", retry, statusFailed)
	}
	run2 := insertDagRun(c, dagId, execTs, t)
	_ = c.InsertDagRunTask(ctx, run2, dagId, execTs, "t1", 0, statusSuccess)

	latest, lErr := c.ReadDagRunTaskLatest(ctx, dagId, execTs, "t1")
	if lErr != nil {
		t.Fatal(lErr)
	}
	if latest.RunId != run2 || latest.Retry != 0 {
		t.Errorf("Expected latest attempt from run %d, got: %+v", run2, latest)
	}
	succeeded, sErr = c.TaskSucceeded(ctx, dagId, execTs, "t1")
	if sErr != nil || !succeeded {
		t.Errorf("Expected succeeded task, got %v (%v)", succeeded, sErr)
	}
}
