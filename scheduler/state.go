// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package scheduler

import (
	"time"

	"github.com/ppacer/trends/dag"
	"github.com/ppacer/trends/ds"
)

// TaskState is the current state of a task within a DAG run.
type TaskState struct {
	Status   dag.TaskStatus `json:"-"`
	Attempts int            `json:"attempts"`
	Error    string         `json:"error,omitempty"`
}

// RunState holds statuses of all tasks of a single DAG run (single logical
// date). It's safe for concurrent use.
type RunState struct {
	RunId  int64
	DagId  dag.Id
	ExecTs time.Time
	tasks  *ds.AsyncMap[string, TaskState]
}

// NewRunState initialize RunState with all DAG tasks in SCHEDULED status.
func NewRunState(runId int64, d *dag.Dag, execTs time.Time) *RunState {
	tasks := ds.NewAsyncMap[string, TaskState]()
	for _, taskId := range d.TaskIds() {
		tasks.Add(taskId, TaskState{Status: dag.TaskScheduled})
	}
	return &RunState{RunId: runId, DagId: d.Id, ExecTs: execTs, tasks: tasks}
}

// Get returns state of given task.
func (rs *RunState) Get(taskId string) TaskState {
	return rs.tasks.GetOrDefault(taskId, TaskState{Status: dag.TaskNoStatus})
}

// Status returns status of given task.
func (rs *RunState) Status(taskId string) dag.TaskStatus {
	return rs.Get(taskId).Status
}

// Set sets state of given task.
func (rs *RunState) Set(taskId string, state TaskState) {
	rs.tasks.Add(taskId, state)
}

// SetStatus updates only status of given task.
func (rs *RunState) SetStatus(taskId string, status dag.TaskStatus, reason string) {
	state := rs.Get(taskId)
	state.Status = status
	if reason != "" {
		state.Error = reason
	}
	rs.tasks.Add(taskId, state)
}

// Snapshot returns copy of all task states.
func (rs *RunState) Snapshot() map[string]TaskState {
	return rs.tasks.Snapshot()
}

// Statuses returns copy of all task statuses.
func (rs *RunState) Statuses() map[string]dag.TaskStatus {
	snapshot := rs.tasks.Snapshot()
	statuses := make(map[string]dag.TaskStatus, len(snapshot))
	for taskId, state := range snapshot {
		statuses[taskId] = state.Status
	}
	return statuses
}

// IsReady checks whenever given task is still SCHEDULED and all of its
// parents succeeded.
func (rs *RunState) IsReady(d *dag.Dag, taskId string) bool {
	if rs.Status(taskId) != dag.TaskScheduled {
		return false
	}
	for _, parent := range d.Parents(taskId) {
		if rs.Status(parent) != dag.TaskSuccess {
			return false
		}
	}
	return true
}

// AllSucceeded checks if all tasks are in SUCCESS status.
func (rs *RunState) AllSucceeded() bool {
	for _, state := range rs.tasks.Snapshot() {
		if state.Status != dag.TaskSuccess {
			return false
		}
	}
	return true
}

// RunStatus returns status of the whole DAG run based on task statuses.
// Cancelled runs are CANCELLED, runs with every task succeeded are SUCCESS,
// runs with non-terminal tasks are RUNNING and other runs are FAILED.
func (rs *RunState) RunStatus(cancelled bool) dag.RunStatus {
	if rs.AllSucceeded() {
		return dag.RunSuccess
	}
	if cancelled {
		return dag.RunCancelled
	}
	for _, state := range rs.tasks.Snapshot() {
		if !state.Status.IsTerminal() {
			return dag.RunRunning
		}
	}
	return dag.RunFailed
}
