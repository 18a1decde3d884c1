// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package db

import (
	"context"
	"strings"
	"time"

	"github.com/ppacer/trends/timeutils"
	"github.com/ppacer/trends/version"
)

// DagRun represent a row of data in dagruns table.
type DagRun struct {
	RunId          int64  `json:"runId"`
	DagId          string `json:"dagId"`
	ExecTs         string `json:"execTs"`
	InsertTs       string `json:"insertTs"`
	Status         string `json:"status"`
	StatusUpdateTs string `json:"statusUpdateTs"`
	Event          string `json:"event"`
	Version        string `json:"version"`
}

// Those should be consistent with dag.RunStatus string values. We cannot use
// those in here, because db package cannot depend on dag package.
const (
	statusScheduled = "SCHEDULED"
	statusRunning   = "RUNNING"
	statusSuccess   = "SUCCESS"
	statusFailed    = "FAILED"
	statusCancelled = "CANCELLED"
)

const dagRunColumns = `RunId, DagId, ExecTs, InsertTs, Status, StatusUpdateTs, Event, Version`

// InsertDagRun inserts new row into dagruns table for given DagId and logical
// date. Initial status is set to SCHEDULED. RunId for just inserted dag run
// is returned or -1 in case when error is not nil.
func (c *Client) InsertDagRun(ctx context.Context, dagId, execTs, event string) (int64, error) {
	start := time.Now()
	insertTs := timeutils.ToString(timeutils.Now())
	c.logger.Debug("Start inserting dag run", "dagId", dagId, "execTs", execTs)
	args := []any{dagId, execTs, insertTs, statusScheduled, insertTs, event,
		version.Version}

	var runId int64
	if c.dbDriver == Postgres {
		// lib/pq does not support LastInsertId.
		row := c.dbConn.QueryRowContext(ctx,
			c.q(insertDagRunQuery+" RETURNING RunId"), args...)
		if err := row.Scan(&runId); err != nil {
			c.logger.Error("Cannot insert new dag run", "dagId", dagId,
				"execTs", execTs, "err", err)
			return -1, err
		}
	} else {
		res, err := c.dbConn.ExecContext(ctx, c.q(insertDagRunQuery), args...)
		if err != nil {
			c.logger.Error("Cannot insert new dag run", "dagId", dagId,
				"execTs", execTs, "err", err)
			return -1, err
		}
		id, idErr := res.LastInsertId()
		if idErr != nil {
			return -1, idErr
		}
		runId = id
	}
	c.logger.Debug("Finished inserting dag run in state SCHEDULED", "dagId",
		dagId, "execTs", execTs, "runId", runId, "duration", time.Since(start))
	return runId, nil
}

// ReadDagRun reads DAG run information for given run ID.
func (c *Client) ReadDagRun(ctx context.Context, runId int64) (DagRun, error) {
	query := `SELECT ` + dagRunColumns + ` FROM dagruns WHERE RunId = ?`
	return readRow(ctx, c.dbConn, c.logger, parseDagRun, c.q(query), runId)
}

// ReadDagRunByExecTs reads the latest DAG run for given DAG ID and logical
// date. If there is no such run, sql.ErrNoRows is returned.
func (c *Client) ReadDagRunByExecTs(ctx context.Context, dagId, execTs string) (DagRun, error) {
	query := `
		SELECT ` + dagRunColumns + `
		FROM dagruns
		WHERE DagId = ? AND ExecTs = ?
		ORDER BY RunId DESC
		LIMIT 1
	`
	return readRow(ctx, c.dbConn, c.logger, parseDagRun, c.q(query), dagId,
		execTs)
}

// ReadDagRuns reads topN latest dag runs for given DAG ID. When topN is
// negative, all runs are returned.
func (c *Client) ReadDagRuns(ctx context.Context, dagId string, topN int) ([]DagRun, error) {
	start := time.Now()
	c.logger.Debug("Start reading dag runs from DB", "dagId", dagId, "topN", topN)
	query := `SELECT ` + dagRunColumns + ` FROM dagruns WHERE DagId = ? ORDER BY RunId DESC`
	args := []any{dagId}
	if topN >= 0 {
		query += ` LIMIT ?`
		args = append(args, topN)
	}
	dagruns, err := readRows(ctx, c.dbConn, c.logger, parseDagRun, c.q(query),
		args...)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Finished reading dag runs", "dagId", dagId, "topN", topN,
		"duration", time.Since(start))
	return dagruns, nil
}

// ReadLatestDagRun reads DAG run with the latest logical date for given DAG.
// When there are many runs for that date, the most recently inserted one is
// returned. When events are given, only runs caused by those events are
// considered. If there is no such run, sql.ErrNoRows is returned.
func (c *Client) ReadLatestDagRun(ctx context.Context, dagId string, events ...string) (DagRun, error) {
	args := []any{dagId}
	eventsCond := ""
	if len(events) > 0 {
		eventsCond = " AND Event IN (?" + strings.Repeat(", ?", len(events)-1) + ")"
		for _, e := range events {
			args = append(args, e)
		}
	}
	query := `
		SELECT ` + dagRunColumns + `
		FROM dagruns
		WHERE DagId = ?` + eventsCond + `
		ORDER BY ExecTs DESC, RunId DESC
		LIMIT 1
	`
	return readRow(ctx, c.dbConn, c.logger, parseDagRun, c.q(query), args...)
}

// ReadDagRunsNotFinished reads DAG runs which are not in terminal state.
// After a crash those are runs which were interrupted.
func (c *Client) ReadDagRunsNotFinished(ctx context.Context, dagId string) ([]DagRun, error) {
	query := `
		SELECT ` + dagRunColumns + `
		FROM dagruns
		WHERE DagId = ? AND Status NOT IN (?, ?, ?)
		ORDER BY RunId ASC
	`
	return readRows(ctx, c.dbConn, c.logger, parseDagRun, c.q(query), dagId,
		statusSuccess, statusFailed, statusCancelled)
}

// UpdateDagRunStatus updates dagrun status for given runId.
func (c *Client) UpdateDagRunStatus(ctx context.Context, runId int64, status string) error {
	start := time.Now()
	updateTs := timeutils.ToString(timeutils.Now())
	c.logger.Debug("Start updating dag run status", "runId", runId)
	query := `UPDATE dagruns SET Status = ?, StatusUpdateTs = ? WHERE RunId = ?`
	res, err := c.dbConn.ExecContext(ctx, c.q(query), status, updateTs, runId)
	if err != nil {
		c.logger.Error("Cannot update dag run", "runId", runId, "status",
			status, "err", err)
		return err
	}
	if rErr := expectSingleRowAffected(res); rErr != nil {
		c.logger.Error("Unexpected number of dagruns rows updated", "runId",
			runId, "err", rErr)
		return rErr
	}
	c.logger.Debug("Finished updating dag run", "runId", runId, "status",
		status, "duration", time.Since(start))
	return nil
}

// DagRunExists checks whenever successful or in-flight DAG run exists for
// given DAG ID and logical date.
func (c *Client) DagRunExists(ctx context.Context, dagId, execTs string) (bool, error) {
	query := `
		SELECT COUNT(*)
		FROM dagruns
		WHERE DagId = ? AND ExecTs = ? AND Status IN (?, ?, ?)
	`
	row := c.dbConn.QueryRowContext(ctx, c.q(query), dagId, execTs,
		statusScheduled, statusRunning, statusSuccess)
	var count int
	if err := row.Scan(&count); err != nil {
		c.logger.Error("Cannot execute DagRunExists query", "dagId", dagId,
			"execTs", execTs, "err", err)
		return false, err
	}
	return count > 0, nil
}

// ReadDagRunsAggByStatus reads number of runs for each status.
func (c *Client) ReadDagRunsAggByStatus(ctx context.Context, dagId string) (map[string]int, error) {
	type statusCount struct {
		status string
		count  int
	}
	parse := func(row Scannable) (statusCount, error) {
		var sc statusCount
		err := row.Scan(&sc.status, &sc.count)
		return sc, err
	}
	query := `SELECT Status, COUNT(*) FROM dagruns WHERE DagId = ? GROUP BY Status`
	counts, err := readRows(ctx, c.dbConn, c.logger, parse, c.q(query), dagId)
	if err != nil {
		return nil, err
	}
	result := make(map[string]int, len(counts))
	for _, sc := range counts {
		result[sc.status] = sc.count
	}
	return result, nil
}

func parseDagRun(row Scannable) (DagRun, error) {
	var dr DagRun
	scanErr := row.Scan(&dr.RunId, &dr.DagId, &dr.ExecTs, &dr.InsertTs,
		&dr.Status, &dr.StatusUpdateTs, &dr.Event, &dr.Version)
	return dr, scanErr
}

const insertDagRunQuery = `
	INSERT INTO dagruns (DagId, ExecTs, InsertTs, Status, StatusUpdateTs, Event, Version)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
