// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/ppacer/trends/timeutils"
	"github.com/ppacer/trends/version"
)

// DagRunTask represents single task attempt within a DAG run. Each retry is a
// separate row.
type DagRunTask struct {
	RunId          int64   `json:"runId"`
	DagId          string  `json:"dagId"`
	ExecTs         string  `json:"execTs"`
	TaskId         string  `json:"taskId"`
	Retry          int     `json:"retry"`
	InsertTs       string  `json:"insertTs"`
	Status         string  `json:"status"`
	StatusUpdateTs string  `json:"statusUpdateTs"`
	Error          *string `json:"error,omitempty"`
	Version        string  `json:"version"`
}

const dagRunTaskColumns = `RunId, DagId, ExecTs, TaskId, Retry, InsertTs,
	Status, StatusUpdateTs, Error, Version`

// InsertDagRunTask inserts new task attempt with given status.
func (c *Client) InsertDagRunTask(
	ctx context.Context, runId int64, dagId, execTs, taskId string, retry int,
	status string,
) error {
	start := time.Now()
	insertTs := timeutils.ToString(timeutils.Now())
	c.logger.Debug("Start inserting new dag run task", "runId", runId,
		"taskId", taskId, "retry", retry)
	query := `
		INSERT INTO dagruntasks (
			RunId, DagId, ExecTs, TaskId, Retry, InsertTs, Status,
			StatusUpdateTs, Error, Version
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)
	`
	_, iErr := c.dbConn.ExecContext(ctx, c.q(query), runId, dagId, execTs,
		taskId, retry, insertTs, status, insertTs, version.Version)
	if iErr != nil {
		c.logger.Error("Cannot insert new dag run task", "runId", runId,
			"taskId", taskId, "retry", retry, "err", iErr)
		return iErr
	}
	c.logger.Debug("Finished inserting new dag run task", "runId", runId,
		"taskId", taskId, "retry", retry, "duration", time.Since(start))
	return nil
}

// UpdateDagRunTaskStatus updates status of given task attempt. Non-nil taskErr
// is stored as the attempt error message.
func (c *Client) UpdateDagRunTaskStatus(
	ctx context.Context, runId int64, taskId string, retry int, status string,
	taskErr error,
) error {
	start := time.Now()
	updateTs := timeutils.ToString(timeutils.Now())
	var errMsg *string
	if taskErr != nil {
		msg := taskErr.Error()
		errMsg = &msg
	}
	query := `
		UPDATE dagruntasks
		SET Status = ?, StatusUpdateTs = ?, Error = ?
		WHERE RunId = ? AND TaskId = ? AND Retry = ?
	`
	res, uErr := c.dbConn.ExecContext(ctx, c.q(query), status, updateTs,
		errMsg, runId, taskId, retry)
	if uErr != nil {
		c.logger.Error("Cannot update dag run task status", "runId", runId,
			"taskId", taskId, "retry", retry, "status", status, "err", uErr)
		return uErr
	}
	if rErr := expectSingleRowAffected(res); rErr != nil {
		return rErr
	}
	c.logger.Debug("Finished updating dag run task status", "runId", runId,
		"taskId", taskId, "retry", retry, "status", status, "duration",
		time.Since(start))
	return nil
}

// ReadDagRunTasks reads all task attempts for given DAG run, ordered by
// insertion.
func (c *Client) ReadDagRunTasks(ctx context.Context, runId int64) ([]DagRunTask, error) {
	query := `
		SELECT ` + dagRunTaskColumns + `
		FROM dagruntasks
		WHERE RunId = ?
		ORDER BY InsertTs ASC, TaskId ASC, Retry ASC
	`
	return readRows(ctx, c.dbConn, c.logger, parseDagRunTask, c.q(query), runId)
}

// ReadDagRunTask reads single task attempt.
func (c *Client) ReadDagRunTask(ctx context.Context, runId int64, taskId string, retry int) (DagRunTask, error) {
	query := `
		SELECT ` + dagRunTaskColumns + `
		FROM dagruntasks
		WHERE RunId = ? AND TaskId = ? AND Retry = ?
	`
	return readRow(ctx, c.dbConn, c.logger, parseDagRunTask, c.q(query), runId,
		taskId, retry)
}

// ReadDagRunTaskLatest reads the latest attempt of given task for given DAG
// and logical date, across all runs of that date. It's sql.ErrNoRows when the
// task was never attempted.
func (c *Client) ReadDagRunTaskLatest(ctx context.Context, dagId, execTs, taskId string) (DagRunTask, error) {
	query := `
		SELECT ` + dagRunTaskColumns + `
		FROM dagruntasks
		WHERE DagId = ? AND ExecTs = ? AND TaskId = ?
		ORDER BY RunId DESC, Retry DESC
		LIMIT 1
	`
	return readRow(ctx, c.dbConn, c.logger, parseDagRunTask, c.q(query), dagId,
		execTs, taskId)
}

// TaskSucceeded checks whenever latest attempt of given task for given
// logical date has succeeded.
func (c *Client) TaskSucceeded(ctx context.Context, dagId, execTs, taskId string) (bool, error) {
	drt, err := c.ReadDagRunTaskLatest(ctx, dagId, execTs, taskId)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return drt.Status == statusSuccess, nil
}

func parseDagRunTask(row Scannable) (DagRunTask, error) {
	var drt DagRunTask
	scanErr := row.Scan(&drt.RunId, &drt.DagId, &drt.ExecTs, &drt.TaskId,
		&drt.Retry, &drt.InsertTs, &drt.Status, &drt.StatusUpdateTs,
		&drt.Error, &drt.Version)
	return drt, scanErr
}
