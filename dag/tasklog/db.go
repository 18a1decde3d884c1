// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package tasklog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ppacer/trends/dag"
	"github.com/ppacer/trends/db"
	"github.com/ppacer/trends/timeutils"
)

const (
	timeFieldKey    = "time"
	levelFieldKey   = "level"
	messageFieldKey = "msg"
)

// DB is a Factory which stores task logs in tasklogs table of the state
// database (SQLite or PostgreSQL).
type DB struct {
	dbClient *db.Client
	opts     *slog.HandlerOptions
	logger   *slog.Logger
}

// NewDB creates new Factory backed by given database client. Logger is used
// for reporting problems with log persistence.
func NewDB(dbClient *db.Client, opts *slog.HandlerOptions, logger *slog.Logger) *DB {
	if logger == nil {
		logger = slog.Default()
	}
	return &DB{dbClient: dbClient, opts: opts, logger: logger}
}

// GetLogger returns structured logger which writes records into tasklogs
// table for given task attempt.
func (d *DB) GetLogger(tri dag.TaskRunInfo) *slog.Logger {
	w := dbLogWriter{tri: tri, dbClient: d.dbClient, logger: d.logger}
	return slog.New(slog.NewJSONHandler(&w, d.opts))
}

// GetLogReader returns Reader for given task attempt.
func (d *DB) GetLogReader(tri dag.TaskRunInfo) Reader {
	return &dbLogReader{tri: tri, dbClient: d.dbClient}
}

type dbLogWriter struct {
	tri      dag.TaskRunInfo
	dbClient *db.Client
	logger   *slog.Logger
}

// Write parses and writes given input into tasklogs table. Expected input is
// JSON produced by slog.JSONHandler.
func (w *dbLogWriter) Write(p []byte) (int, error) {
	var fields map[string]any
	if jErr := json.Unmarshal(p, &fields); jErr != nil {
		w.logger.Error("cannot deserialize JSON from slog.JSONHandler", "input",
			string(p), "err", jErr.Error())
		return 0, fmt.Errorf("cannot deserialize JSON from slog.JSONHandler: %w",
			jErr)
	}
	delete(fields, timeFieldKey)
	lvl, lErr := getKeyAndDelete(fields, levelFieldKey)
	if lErr != nil {
		return 0, lErr
	}
	msg, mErr := getKeyAndDelete(fields, messageFieldKey)
	if mErr != nil {
		return 0, mErr
	}
	fieldsJson, jErr := json.Marshal(fields)
	if jErr != nil {
		return 0, fmt.Errorf("cannot serialize attributes to JSON: %w", jErr)
	}
	tlr := db.TaskLogRecord{
		RunId:      w.tri.RunId,
		DagId:      string(w.tri.DagId),
		ExecTs:     timeutils.ToDateString(w.tri.ExecTs),
		TaskId:     w.tri.TaskId,
		Retry:      w.tri.Retry,
		InsertTs:   timeutils.ToString(timeutils.Now()),
		Level:      lvl,
		Message:    msg,
		Attributes: string(fieldsJson),
	}
	if iErr := w.dbClient.InsertTaskLog(context.Background(), tlr); iErr != nil {
		w.logger.Error("cannot insert task log", "taskId", w.tri.TaskId,
			"err", iErr)
		return 0, iErr
	}
	return len(p), nil
}

func getKeyAndDelete(m map[string]any, key string) (string, error) {
	val, exists := m[key]
	if !exists {
		return "", fmt.Errorf("missing field %s in given input", key)
	}
	valStr, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("value for key %s is not a string", key)
	}
	delete(m, key)
	return valStr, nil
}

type dbLogReader struct {
	tri      dag.TaskRunInfo
	dbClient *db.Client
}

// ReadAll reads all log records of the task attempt in chronological order.
func (r *dbLogReader) ReadAll(ctx context.Context) ([]Record, error) {
	tlrs, err := r.dbClient.ReadDagRunTaskLogs(ctx, r.tri.RunId, r.tri.TaskId,
		r.tri.Retry)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(tlrs))
	for _, tlr := range tlrs {
		records = append(records, toRecord(tlr))
	}
	return records, nil
}

// ReadLatest reads n latest log records in chronological order.
func (r *dbLogReader) ReadLatest(ctx context.Context, n int) ([]Record, error) {
	all, err := r.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	if n < 0 || n >= len(all) {
		return all, nil
	}
	return all[len(all)-n:], nil
}

func toRecord(tlr db.TaskLogRecord) Record {
	attr := map[string]any{}
	if tlr.Attributes != "" {
		_ = json.Unmarshal([]byte(tlr.Attributes), &attr)
	}
	return Record{
		Level:      tlr.Level,
		InsertTs:   timeutils.FromStringMust(tlr.InsertTs),
		Message:    tlr.Message,
		Attributes: attr,
	}
}
