// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ppacer/trends/dag"
	"github.com/ppacer/trends/timeutils"
	"github.com/ppacer/trends/version"
)

// DagTask represents single row in dagtasks table in the database.
type DagTask struct {
	DagId          string `json:"dagId"`
	TaskId         string `json:"taskId"`
	IsCurrent      bool   `json:"isCurrent"`
	InsertTs       string `json:"insertTs"`
	Version        string `json:"version"`
	TaskTypeName   string `json:"taskTypeName"`
	Upstream       string `json:"upstream"`
	TaskConfig     string `json:"taskConfig"`
	TaskHash       string `json:"taskHash"`
	TaskDefinition string `json:"taskDefinition"`
}

const dagTaskColumns = `DagId, TaskId, IsCurrent, InsertTs, Version,
	TaskTypeName, Upstream, TaskConfig, TaskHash, TaskDefinition`

// InsertDagTasks inserts the tasks of given DAG to dagtasks table and set it
// as the current version. Previous versions would still be in dagtasks table
// but with set IsCurrent=0. In case of failure of any task insertion, the
// whole SQL transaction is rollbacked.
func (c *Client) InsertDagTasks(ctx context.Context, d dag.Dag) error {
	start := time.Now()
	insertTs := timeutils.ToString(timeutils.Now())
	dagId := string(d.Id)
	c.logger.Debug("Start syncing dagtasks table", "dagId", dagId)
	tx, txErr := c.dbConn.Begin()
	if txErr != nil {
		return txErr
	}

	outdate := `UPDATE dagtasks SET IsCurrent = 0 WHERE DagId = ? AND IsCurrent = 1`
	if _, uErr := tx.ExecContext(ctx, c.q(outdate), dagId); uErr != nil {
		c.logger.Error("Cannot outdate old dagtasks", "dagId", dagId, "err",
			uErr)
		_ = tx.Rollback()
		return uErr
	}

	insert := `INSERT INTO dagtasks (` + dagTaskColumns + `) VALUES (?, ?, 1, ?, ?, ?, ?, ?, ?, ?)`
	for _, node := range d.Nodes() {
		taskId := node.Task.Id()
		configJson, jErr := json.Marshal(node.Config)
		if jErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("cannot serialize task %s config into JSON: %w",
				taskId, jErr)
		}
		definition := ""
		if fp, ok := node.Task.(dag.Fingerprinter); ok {
			definition = fp.Fingerprint()
		}
		_, iErr := tx.ExecContext(ctx, c.q(insert), dagId, taskId, insertTs,
			version.Version, fmt.Sprintf("%T", node.Task),
			strings.Join(d.Parents(taskId), ","), string(configJson),
			dag.TaskHash(node.Task), definition)
		if iErr != nil {
			c.logger.Error("Cannot insert dagtask", "dagId", dagId, "taskId",
				taskId, "err", iErr)
			if rollErr := tx.Rollback(); rollErr != nil {
				c.logger.Error("Error while rollbacking SQL transaction",
					"err", rollErr)
			}
			return fmt.Errorf("could not sync dagtasks for %s, transaction was rollbacked: %w",
				dagId, iErr)
		}
	}

	if cErr := tx.Commit(); cErr != nil {
		c.logger.Error("Could not commit SQL transaction", "dagId", dagId,
			"err", cErr)
		return cErr
	}
	c.logger.Debug("Finished syncing dagtasks table", "dagId", dagId,
		"duration", time.Since(start))
	return nil
}

// ReadDagTasks reads all tasks for given dagId in the current version from
// dagtasks table.
func (c *Client) ReadDagTasks(ctx context.Context, dagId string) ([]DagTask, error) {
	query := `
		SELECT ` + dagTaskColumns + `
		FROM dagtasks
		WHERE DagId = ? AND IsCurrent = 1
		ORDER BY TaskId
	`
	return readRows(ctx, c.dbConn, c.logger, parseDagTask, c.q(query), dagId)
}

func parseDagTask(row Scannable) (DagTask, error) {
	var dt DagTask
	var isCurrent int
	scanErr := row.Scan(&dt.DagId, &dt.TaskId, &isCurrent, &dt.InsertTs,
		&dt.Version, &dt.TaskTypeName, &dt.Upstream, &dt.TaskConfig,
		&dt.TaskHash, &dt.TaskDefinition)
	dt.IsCurrent = isCurrent == 1
	return dt, scanErr
}
