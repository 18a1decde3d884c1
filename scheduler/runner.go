// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppacer/trends/archive"
	"github.com/ppacer/trends/dag"
	"github.com/ppacer/trends/dag/schedule"
	"github.com/ppacer/trends/db"
	"github.com/ppacer/trends/ds"
	"github.com/ppacer/trends/exec"
	"github.com/ppacer/trends/metrics"
	"github.com/ppacer/trends/notify"
	"github.com/ppacer/trends/pace"
	"github.com/ppacer/trends/timeutils"
)

// ErrRunInProgress is returned when DAG run for given logical date is already
// in progress.
var ErrRunInProgress = errors.New("DAG run for this logical date is already in progress")

// ArchiveStore stores summaries of finished DAG runs.
type ArchiveStore interface {
	Put(context.Context, archive.RunSummary) error
}

// RunResult is the outcome of a DAG run.
type RunResult struct {
	RunId   int64
	DagId   dag.Id
	ExecTs  time.Time
	Status  dag.RunStatus
	Tasks   map[string]TaskState
	StartTs time.Time
	EndTs   time.Time
}

// DagRunner evaluates DAG runs in-process. For a single logical date it
// starts every task once all of its parents succeeded, retries failed
// attempts, propagates failures downstream and sends alerts. Every run and
// every task attempt is persisted in the database.
type DagRunner struct {
	dbClient *db.Client
	executor *exec.Executor
	notifier notify.Sender
	archive  ArchiveStore
	metrics  *metrics.Metrics
	config   DagRunnerConfig
	logger   *slog.Logger
	inFlight *ds.AsyncMap[runKey, struct{}]
}

type runKey struct {
	DagId  dag.Id
	ExecTs string
}

type nodeResult struct {
	taskId string
	state  TaskState
}

// NewDagRunner creates new DagRunner. When executor is nil, executor without
// task logs persistence is used. When notifier is nil, then
// notify.NewLogsErr (notifications as logs) will be used. When logger is nil
// default logger is used (see ENV_LOG_LEVEL).
func NewDagRunner(
	dbClient *db.Client, executor *exec.Executor, notifier notify.Sender,
	config DagRunnerConfig, logger *slog.Logger,
) *DagRunner {
	if logger == nil {
		logger = defaultLogger()
	}
	if executor == nil {
		executor = exec.New(nil, logger, nil, nil)
	}
	if notifier == nil {
		notifier = notify.NewLogsErr(logger)
	}
	return &DagRunner{
		dbClient: dbClient,
		executor: executor,
		notifier: notifier,
		config:   config,
		logger:   logger,
		inFlight: ds.NewAsyncMap[runKey, struct{}](),
	}
}

// WithArchive sets store for summaries of finished runs.
func (dr *DagRunner) WithArchive(store ArchiveStore) *DagRunner {
	dr.archive = store
	return dr
}

// WithMetrics sets Prometheus metrics.
func (dr *DagRunner) WithMetrics(m *metrics.Metrics) *DagRunner {
	dr.metrics = m
	return dr
}

// InProgress checks whenever DAG run for given logical date is in progress.
func (dr *DagRunner) InProgress(dagId dag.Id, date time.Time) bool {
	_, exists := dr.inFlight.Get(newRunKey(dagId, date))
	return exists
}

// Run runs the DAG for given logical date as regularly scheduled run. See
// RunWithEvent for details.
func (dr *DagRunner) Run(ctx context.Context, d dag.Dag, date time.Time) (RunResult, error) {
	return dr.RunWithEvent(ctx, d, date, schedule.Regular)
}

// RunWithEvent runs the DAG for given logical date and blocks until the run
// is finished. Failed tasks does not produce an error, the outcome is in
// RunResult.Status. Non-nil error is returned when the run cannot be
// started (ErrRunInProgress, database errors). Cancelling the context
// cancels in-flight tasks and the run ends in CANCELLED status.
func (dr *DagRunner) RunWithEvent(
	ctx context.Context, d dag.Dag, date time.Time, event schedule.Event,
) (RunResult, error) {
	date = timeutils.Date(date)
	key := newRunKey(d.Id, date)
	if !dr.inFlight.AddIfAbsent(key, struct{}{}) {
		return RunResult{}, fmt.Errorf("%w: %s %s", ErrRunInProgress,
			string(d.Id), key.ExecTs)
	}
	defer dr.inFlight.Delete(key)

	start := timeutils.Now()
	runId, iErr := dr.dbClient.InsertDagRun(ctx, string(d.Id), key.ExecTs,
		event.String())
	if iErr != nil {
		return RunResult{}, fmt.Errorf("cannot insert new DAG run: %w", iErr)
	}
	if uErr := dr.dbClient.UpdateDagRunStatus(ctx, runId, dag.RunRunning.String()); uErr != nil {
		return RunResult{}, fmt.Errorf("cannot update DAG run status: %w", uErr)
	}
	dr.metrics.RunStarted()
	dr.logger.Info("Started DAG run", "dagId", string(d.Id), "execTs",
		key.ExecTs, "runId", runId, "event", event.String())

	state := NewRunState(runId, &d, date)
	dr.evaluate(ctx, &d, state)

	cancelled := ctx.Err() != nil
	runStatus := state.RunStatus(cancelled)
	end := timeutils.Now()

	// Final bookkeeping should happen even for cancelled runs.
	bgCtx := context.WithoutCancel(ctx)
	if uErr := dr.dbClient.UpdateDagRunStatus(bgCtx, runId, runStatus.String()); uErr != nil {
		dr.logger.Error("Cannot update final DAG run status", "dagId",
			string(d.Id), "execTs", key.ExecTs, "runId", runId, "status",
			runStatus.String(), "err", uErr.Error())
	}
	dr.metrics.RunFinished(string(d.Id), runStatus.String(), end.Sub(start))

	result := RunResult{
		RunId:   runId,
		DagId:   d.Id,
		ExecTs:  date,
		Status:  runStatus,
		Tasks:   state.Snapshot(),
		StartTs: start,
		EndTs:   end,
	}
	dr.archiveRun(bgCtx, &d, result)
	dr.logger.Info("Finished DAG run", "dagId", string(d.Id), "execTs",
		key.ExecTs, "runId", runId, "status", runStatus.String(),
		"duration", end.Sub(start))
	return result, nil
}

// evaluate drives the DAG run until no task is running. Tasks are started
// in separate goroutines as soon as all of their parents succeeded.
func (dr *DagRunner) evaluate(ctx context.Context, d *dag.Dag, state *RunState) {
	results := make(chan nodeResult)
	running := 0

	startReady := func(candidates []string) {
		for _, taskId := range candidates {
			if ctx.Err() != nil {
				return
			}
			if !state.IsReady(d, taskId) {
				continue
			}
			node, err := d.GetNode(taskId)
			if err != nil {
				dr.logger.Error("Cannot get DAG node", "dagId", string(d.Id),
					"taskId", taskId, "err", err.Error())
				continue
			}
			state.SetStatus(taskId, dag.TaskRunning, "")
			running++
			go func(n *dag.Node) {
				results <- dr.runNode(ctx, d, n, state)
			}(node)
		}
	}

	startReady(d.TaskIds())
	for running > 0 {
		res := <-results
		running--
		state.Set(res.taskId, res.state)

		switch res.state.Status {
		case dag.TaskSuccess:
			startReady(d.Children(res.taskId))
		case dag.TaskFailed, dag.TaskUpstreamFailed:
			dr.markDownstreamFailed(ctx, d, state, res.taskId)
		}
	}

	if ctx.Err() != nil {
		dr.markNotStarted(ctx, d, state, dag.TaskCancelled,
			"DAG run was cancelled")
	}
	// Nothing should stay SCHEDULED at this point.
	dr.markNotStarted(ctx, d, state, dag.TaskUpstreamFailed,
		"upstream task did not succeed")
}

// markDownstreamFailed marks all not started transitive downstream tasks of
// given task as UPSTREAM_FAILED. Those tasks will never be executed within
// this DAG run.
func (dr *DagRunner) markDownstreamFailed(
	ctx context.Context, d *dag.Dag, state *RunState, taskId string,
) {
	reason := fmt.Sprintf("upstream task %s did not succeed", taskId)
	for _, downId := range d.Downstream(taskId) {
		if state.Status(downId) != dag.TaskScheduled {
			continue
		}
		dr.setTerminalWithoutExecution(ctx, d, state, downId,
			dag.TaskUpstreamFailed, reason)
	}
}

func (dr *DagRunner) markNotStarted(
	ctx context.Context, d *dag.Dag, state *RunState, status dag.TaskStatus,
	reason string,
) {
	for _, taskId := range d.TaskIds() {
		if state.Status(taskId) != dag.TaskScheduled {
			continue
		}
		dr.setTerminalWithoutExecution(ctx, d, state, taskId, status, reason)
	}
}

func (dr *DagRunner) setTerminalWithoutExecution(
	ctx context.Context, d *dag.Dag, state *RunState, taskId string,
	status dag.TaskStatus, reason string,
) {
	state.SetStatus(taskId, status, reason)
	bgCtx := context.WithoutCancel(ctx)
	execTs := timeutils.ToDateString(state.ExecTs)
	iErr := dr.dbClient.InsertDagRunTask(bgCtx, state.RunId, string(d.Id),
		execTs, taskId, 0, status.String())
	if iErr == nil {
		iErr = dr.dbClient.UpdateDagRunTaskStatus(bgCtx, state.RunId, taskId,
			0, status.String(), errors.New(reason))
	}
	if iErr != nil {
		dr.logger.Error("Cannot persist task status", "dagId", string(d.Id),
			"execTs", execTs, "taskId", taskId, "status", status.String(),
			"err", iErr.Error())
	}
	dr.logger.Warn("Task will not be executed", "dagId", string(d.Id),
		"execTs", execTs, "taskId", taskId, "status", status.String(),
		"reason", reason)
}

// runNode runs the task node including retries. It returns final state of
// the task within the DAG run.
func (dr *DagRunner) runNode(
	ctx context.Context, d *dag.Dag, node *dag.Node, state *RunState,
) nodeResult {
	taskId := node.Task.Id()
	execTs := timeutils.ToDateString(state.ExecTs)
	bgCtx := context.WithoutCancel(ctx)

	if reason, ok := dr.checkDependsOnPast(ctx, d, node, state.ExecTs); !ok {
		dr.setTerminalWithoutExecution(ctx, d, state, taskId,
			dag.TaskUpstreamFailed, reason)
		return nodeResult{taskId: taskId, state: TaskState{
			Status: dag.TaskUpstreamFailed, Error: reason,
		}}
	}

	delay := pace.NewFixed(node.Config.RetriesDelay())
	for retry := 0; ; retry++ {
		tri := dag.TaskRunInfo{
			RunId:  state.RunId,
			DagId:  d.Id,
			ExecTs: state.ExecTs,
			TaskId: taskId,
			Retry:  retry,
		}
		current := TaskState{Status: dag.TaskRunning, Attempts: retry + 1}
		state.Set(taskId, current)
		if iErr := dr.dbClient.InsertDagRunTask(bgCtx, state.RunId,
			string(d.Id), execTs, taskId, retry, dag.TaskRunning.String()); iErr != nil {
			dr.logger.Error("Cannot insert task attempt", "dagId",
				string(d.Id), "execTs", execTs, "taskId", taskId, "retry",
				retry, "err", iErr.Error())
		}

		execErr := dr.executor.Execute(ctx, tri, *node)
		if execErr == nil {
			dr.updateAttempt(bgCtx, tri, dag.TaskSuccess, nil)
			current.Status = dag.TaskSuccess
			return nodeResult{taskId: taskId, state: current}
		}
		current.Error = execErr.Error()

		if ctx.Err() != nil {
			dr.updateAttempt(bgCtx, tri, dag.TaskCancelled, execErr)
			current.Status = dag.TaskCancelled
			return nodeResult{taskId: taskId, state: current}
		}

		dr.updateAttempt(bgCtx, tri, dag.TaskFailed, execErr)
		if retry >= node.Config.Retries {
			dr.sendAlert(bgCtx, node, tri, execErr, false)
			current.Status = dag.TaskFailed
			return nodeResult{taskId: taskId, state: current}
		}

		dr.metrics.ObserveRetry(string(d.Id), taskId)
		if node.Config.SendAlertOnRetry {
			dr.sendAlert(bgCtx, node, tri, execErr, true)
		}
		dr.logger.Warn("Task attempt failed, will be retried", "dagId",
			string(d.Id), "execTs", execTs, "taskId", taskId, "retry", retry,
			"retries", node.Config.Retries, "delay", node.Config.RetriesDelay(), "err",
			execErr.Error())
		if pace.Wait(ctx, delay) != nil {
			current.Status = dag.TaskCancelled
			return nodeResult{taskId: taskId, state: current}
		}
	}
}

func (dr *DagRunner) updateAttempt(
	ctx context.Context, tri dag.TaskRunInfo, status dag.TaskStatus,
	taskErr error,
) {
	uErr := dr.dbClient.UpdateDagRunTaskStatus(ctx, tri.RunId, tri.TaskId,
		tri.Retry, status.String(), taskErr)
	if uErr != nil {
		dr.logger.Error("Cannot update task attempt status", "dagId",
			string(tri.DagId), "taskId", tri.TaskId, "retry", tri.Retry,
			"status", status.String(), "err", uErr.Error())
	}
}

// checkDependsOnPast checks if the task succeeded for the previous logical
// date, in case when the task depends on past. The first date of the DAG
// schedule is exempt.
func (dr *DagRunner) checkDependsOnPast(
	ctx context.Context, d *dag.Dag, node *dag.Node, date time.Time,
) (string, bool) {
	if !node.Config.DependsOnPast {
		return "", true
	}
	if d.Schedule != nil {
		first := schedule.LogicalDate(d.Schedule.Start())
		if !date.After(first) {
			return "", true
		}
	}
	prev := timeutils.ToDateString(timeutils.AddDays(date, -1))
	taskId := node.Task.Id()
	succeeded, err := dr.dbClient.TaskSucceeded(ctx, string(d.Id), prev, taskId)
	if err != nil {
		return fmt.Sprintf("cannot check %s status for previous date %s: %s",
			taskId, prev, err.Error()), false
	}
	if !succeeded {
		return fmt.Sprintf("depends on past: %s did not succeed for %s",
			taskId, prev), false
	}
	return "", true
}

func (dr *DagRunner) archiveRun(ctx context.Context, d *dag.Dag, result RunResult) {
	if dr.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, dr.config.ArchiveTimeout)
	defer cancel()
	if err := dr.archive.Put(ctx, runSummary(d, result)); err != nil {
		dr.logger.Error("Cannot archive DAG run summary", "dagId",
			string(result.DagId), "runId", result.RunId, "err", err.Error())
	}
}

func runSummary(d *dag.Dag, result RunResult) archive.RunSummary {
	tasks := make([]archive.TaskSummary, 0, len(result.Tasks))
	for _, taskId := range d.TaskIds() {
		ts := result.Tasks[taskId]
		tasks = append(tasks, archive.TaskSummary{
			TaskId:   taskId,
			Status:   ts.Status.String(),
			Attempts: ts.Attempts,
			Error:    ts.Error,
		})
	}
	return archive.RunSummary{
		RunId:   result.RunId,
		DagId:   string(result.DagId),
		ExecTs:  timeutils.ToDateString(result.ExecTs),
		Status:  result.Status.String(),
		StartTs: result.StartTs,
		EndTs:   result.EndTs,
		Tasks:   tasks,
	}
}

func newRunKey(dagId dag.Id, date time.Time) runKey {
	return runKey{DagId: dagId, ExecTs: timeutils.ToDateString(date)}
}
