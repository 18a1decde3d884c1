package db

import (
	"context"
	"fmt"
)

// TaskLogRecord represents single row in tasklogs table.
type TaskLogRecord struct {
	RunId      int64  `json:"runId"`
	DagId      string `json:"dagId"`
	ExecTs     string `json:"execTs"`
	TaskId     string `json:"taskId"`
	Retry      int    `json:"retry"`
	InsertTs   string `json:"insertTs"`
	Level      string `json:"level"`
	Message    string `json:"message"`
	Attributes string `json:"attributes"`
}

const taskLogColumns = `RunId, DagId, ExecTs, TaskId, Retry, InsertTs, Level,
	Message, Attributes`

// InsertTaskLog inserts single log record into tasklogs table.
func (c *Client) InsertTaskLog(ctx context.Context, tlr TaskLogRecord) error {
	query := `
		INSERT INTO tasklogs (` + taskLogColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, iErr := c.dbConn.ExecContext(ctx, c.q(query),
		tlr.RunId, tlr.DagId, tlr.ExecTs, tlr.TaskId, tlr.Retry, tlr.InsertTs,
		tlr.Level, tlr.Message, tlr.Attributes,
	)
	if iErr != nil {
		c.logger.Error("Cannot insert new tasklog row", "runId", tlr.RunId,
			"taskId", tlr.TaskId, "err", iErr)
		return iErr
	}
	if rErr := expectSingleRowAffected(res); rErr != nil {
		return fmt.Errorf("cannot insert tasklog into %s: %w",
			c.dbConn.DataSource(), rErr)
	}
	return nil
}

// ReadDagRunLogs reads all task logs for given DAG run in chronological order.
func (c *Client) ReadDagRunLogs(ctx context.Context, runId int64) ([]TaskLogRecord, error) {
	query := `
		SELECT ` + taskLogColumns + `
		FROM tasklogs
		WHERE RunId = ?
		ORDER BY LogId ASC
	`
	return readRows(ctx, c.dbConn, c.logger, parseTaskLog, c.q(query), runId)
}

// ReadDagRunTaskLogs reads all logs for given task attempt in chronological
// order.
func (c *Client) ReadDagRunTaskLogs(ctx context.Context, runId int64, taskId string, retry int) ([]TaskLogRecord, error) {
	query := `
		SELECT ` + taskLogColumns + `
		FROM tasklogs
		WHERE RunId = ? AND TaskId = ? AND Retry = ?
		ORDER BY LogId ASC
	`
	return readRows(ctx, c.dbConn, c.logger, parseTaskLog, c.q(query), runId,
		taskId, retry)
}

func parseTaskLog(row Scannable) (TaskLogRecord, error) {
	var tlr TaskLogRecord
	var msg, attr *string
	scanErr := row.Scan(&tlr.RunId, &tlr.DagId, &tlr.ExecTs, &tlr.TaskId,
		&tlr.Retry, &tlr.InsertTs, &tlr.Level, &msg, &attr)
	if msg != nil {
		tlr.Message = *msg
	}
	if attr != nil {
		tlr.Attributes = *attr
	}
	return tlr, scanErr
}
