// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/ppacer/trends/dag"
	"github.com/ppacer/trends/timeutils"
	"github.com/ppacer/trends/version"
)

// Dag represents a row in dags table.
type Dag struct {
	DagId               string  `json:"dagId"`
	StartTs             *string `json:"startTs,omitempty"`
	Schedule            *string `json:"schedule,omitempty"`
	CreateTs            string  `json:"createTs"`
	LatestUpdateTs      *string `json:"latestUpdateTs,omitempty"`
	CreateVersion       string  `json:"createVersion"`
	LatestUpdateVersion *string `json:"latestUpdateVersion,omitempty"`
	HashDagMeta         string  `json:"hashDagMeta"`
	HashTasks           string  `json:"hashTasks"`
	Attributes          string  `json:"attributes"`
}

const dagColumns = `DagId, StartTs, Schedule, CreateTs, LatestUpdateTs,
	CreateVersion, LatestUpdateVersion, HashDagMeta, HashTasks, Attributes`

// ReadDag reads metadata about DAG from dags table for given dagId.
func (c *Client) ReadDag(ctx context.Context, dagId string) (Dag, error) {
	query := `SELECT ` + dagColumns + ` FROM dags WHERE DagId = ?`
	return readRow(ctx, c.dbConn, c.logger, parseDag, c.q(query), dagId)
}

// SyncDag makes dags and dagtasks tables consistent with given DAG
// definition. DAG row is inserted or updated. New version of tasks is
// inserted into dagtasks only when tasks hash has changed. Returns true when
// DAG tasks were changed.
func (c *Client) SyncDag(ctx context.Context, d dag.Dag) (bool, error) {
	start := time.Now()
	dagId := string(d.Id)
	c.logger.Debug("Start syncing DAG", "dagId", dagId)
	now := timeutils.ToString(timeutils.Now())
	newRow := fromDag(d, now)

	curr, readErr := c.ReadDag(ctx, dagId)
	if readErr != nil && readErr != sql.ErrNoRows {
		return false, readErr
	}
	if readErr == sql.ErrNoRows {
		query := `INSERT INTO dags (` + dagColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		_, iErr := c.dbConn.ExecContext(ctx, c.q(query), newRow.DagId,
			newRow.StartTs, newRow.Schedule, newRow.CreateTs, nil,
			newRow.CreateVersion, nil, newRow.HashDagMeta, newRow.HashTasks,
			newRow.Attributes)
		if iErr != nil {
			c.logger.Error("Cannot insert DAG", "dagId", dagId, "err", iErr)
			return false, iErr
		}
		if err := c.InsertDagTasks(ctx, d); err != nil {
			return false, err
		}
		c.logger.Info("Inserted new DAG", "dagId", dagId, "duration",
			time.Since(start))
		return true, nil
	}

	if curr.HashDagMeta == newRow.HashDagMeta && curr.HashTasks == newRow.HashTasks {
		c.logger.Debug("DAG has not changed", "dagId", dagId)
		return false, nil
	}
	query := `
		UPDATE dags
		SET StartTs = ?, Schedule = ?, LatestUpdateTs = ?,
			LatestUpdateVersion = ?, HashDagMeta = ?, HashTasks = ?,
			Attributes = ?
		WHERE DagId = ?
	`
	_, uErr := c.dbConn.ExecContext(ctx, c.q(query), newRow.StartTs,
		newRow.Schedule, now, version.Version, newRow.HashDagMeta,
		newRow.HashTasks, newRow.Attributes, dagId)
	if uErr != nil {
		c.logger.Error("Cannot update DAG", "dagId", dagId, "err", uErr)
		return false, uErr
	}
	tasksChanged := curr.HashTasks != newRow.HashTasks
	if tasksChanged {
		if err := c.InsertDagTasks(ctx, d); err != nil {
			return false, err
		}
	}
	c.logger.Info("Updated DAG", "dagId", dagId, "tasksChanged", tasksChanged,
		"duration", time.Since(start))
	return tasksChanged, nil
}

func fromDag(d dag.Dag, createTs string) Dag {
	attrJson, jErr := json.Marshal(d.Attr)
	if jErr != nil {
		attrJson = []byte("FAILED DAG ATTR SERIALIZATION")
	}
	var dagStart, sched *string
	if d.Schedule != nil {
		schedStr := d.Schedule.String()
		startStr := timeutils.ToString(d.Schedule.Start())
		sched, dagStart = &schedStr, &startStr
	}
	return Dag{
		DagId:         string(d.Id),
		StartTs:       dagStart,
		Schedule:      sched,
		CreateTs:      createTs,
		CreateVersion: version.Version,
		HashDagMeta:   d.HashDagMeta(),
		HashTasks:     d.HashTasks(),
		Attributes:    string(attrJson),
	}
}

func parseDag(row Scannable) (Dag, error) {
	var d Dag
	scanErr := row.Scan(&d.DagId, &d.StartTs, &d.Schedule, &d.CreateTs,
		&d.LatestUpdateTs, &d.CreateVersion, &d.LatestUpdateVersion,
		&d.HashDagMeta, &d.HashTasks, &d.Attributes)
	return d, scanErr
}
