// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package dag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"
)

// RunInfo identifies a DAG run. ExecTs is the logical date of the run.
type RunInfo struct {
	DagId  Id
	ExecTs time.Time
}

// TaskRunInfo identifies single task attempt within a DAG run.
type TaskRunInfo struct {
	RunId  int64
	DagId  Id
	ExecTs time.Time
	TaskId string
	Retry  int
}

// TaskContext is a context for Task execute method.
type TaskContext struct {
	Context context.Context
	Logger  *slog.Logger
	DagRun  RunInfo
	Retry   int
}

// Task represents single step in DAG which is going to be scheduled and
// executed. Execute should block until the step is finished and return
// non-nil error when the step has failed. Retries are not handled by tasks.
type Task interface {
	Id() string
	Execute(TaskContext) error
}

// Fingerprinter is implemented by tasks which can describe their definition
// as a string (for example SQL template). It's used for DAG hashing.
type Fingerprinter interface {
	Fingerprint() string
}

// TaskStatus enumerates possible Task states within the DAG run.
type TaskStatus int

const (
	TaskScheduled TaskStatus = iota
	TaskRunning
	TaskFailed
	TaskSuccess
	TaskUpstreamFailed
	TaskCancelled
	TaskNoStatus
)

// String serializes TaskStatus to its upper case string.
func (s TaskStatus) String() string {
	return [...]string{
		"SCHEDULED",
		"RUNNING",
		"FAILED",
		"SUCCESS",
		"UPSTREAM_FAILED",
		"CANCELLED",
		"NO_STATUS",
	}[s]
}

// CanProceed says whenever downstream tasks can be started.
func (s TaskStatus) CanProceed() bool {
	return s == TaskSuccess
}

// IsTerminal says whenever the status will not change anymore within the DAG
// run.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskSuccess || s == TaskFailed || s == TaskUpstreamFailed ||
		s == TaskCancelled
}

// ParseTaskStatus parses task status based on given string. If given string
// does not match any task status, then non-nil error is returned. Statuses are
// case-sensitive.
func ParseTaskStatus(s string) (TaskStatus, error) {
	states := map[string]TaskStatus{
		"SCHEDULED":       TaskScheduled,
		"RUNNING":         TaskRunning,
		"FAILED":          TaskFailed,
		"SUCCESS":         TaskSuccess,
		"UPSTREAM_FAILED": TaskUpstreamFailed,
		"CANCELLED":       TaskCancelled,
		"NO_STATUS":       TaskNoStatus,
	}
	if status, ok := states[s]; ok {
		return status, nil
	}
	return 0, fmt.Errorf("invalid TaskStatus: %s", s)
}

// TaskHash returns SHA256 of given task definition. For tasks implementing
// Fingerprinter the fingerprint is hashed, otherwise Go type name is used.
func TaskHash(t Task) string {
	def := fmt.Sprintf("%T", t)
	if fp, ok := t.(Fingerprinter); ok {
		def = fp.Fingerprint()
	}
	hasher := sha256.New()
	hasher.Write([]byte(def))
	return hex.EncodeToString(hasher.Sum(nil))
}

// Node represents single node (vertex) in the DAG. Besides the Task it holds
// configuration for scheduling and executing that task.
type Node struct {
	Task   Task
	Config TaskConfig
}

// NewNode initialize Node with given task and default TaskConfig updated by
// given config functions.
func NewNode(task Task, configFuncs ...TaskConfigFunc) *Node {
	config := DefaultTaskConfig
	for _, f := range configFuncs {
		f(&config)
	}
	return &Node{Task: task, Config: config}
}
