// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

// Package tasklog provides structured loggers for task attempts. Each log
// record is stored along with DAG run, task and retry it belongs to, so logs
// of every attempt can be read separately.
package tasklog

import (
	"context"
	"log/slog"
	"time"

	"github.com/ppacer/trends/dag"
)

// Record represents single task log record. It doesn't contain information
// about DAG run task, because Reader is instantiated for given
// dag.TaskRunInfo.
type Record struct {
	Level      string         `json:"level"`
	InsertTs   time.Time      `json:"insertTs"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes"`
}

// Reader reads log records of a single task attempt.
type Reader interface {
	ReadAll(context.Context) ([]Record, error)
	ReadLatest(context.Context, int) ([]Record, error)
}

// Factory creates loggers and log readers for given task attempts.
type Factory interface {
	GetLogger(dag.TaskRunInfo) *slog.Logger
	GetLogReader(dag.TaskRunInfo) Reader
}
